package security

import "sync"

// Blacklist is the set of session addresses the bot ignores. The management
// plane mutates it at runtime; the dispatcher consults it before routing.
type Blacklist struct {
	mu    sync.RWMutex
	addrs map[string]struct{}
}

func NewBlacklist() *Blacklist {
	return &Blacklist{addrs: make(map[string]struct{})}
}

func (b *Blacklist) Add(addr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addrs[addr] = struct{}{}
}

func (b *Blacklist) Remove(addr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.addrs, addr)
}

func (b *Blacklist) Contains(addr string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.addrs[addr]
	return ok
}
