package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the default backend: process-lifetime sessions guarded by a
// per-key mutex so updates for one session never interleave.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	locks    *keyLocks
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		locks:    newKeyLocks(),
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[key]
	s.mu.RUnlock()
	if ok {
		return sess.clone(), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[key]; ok {
		return sess.clone(), nil
	}
	sess = newSession(key)
	s.sessions[key] = sess
	return sess.clone(), nil
}

// Update is copy-on-write: published sessions are never mutated in place, so
// a concurrent Get always sees a consistent snapshot.
func (s *MemoryStore) Update(ctx context.Context, key string, mutate func(*Session)) error {
	unlock := s.locks.lock(key)
	defer unlock()

	s.mu.RLock()
	cur, ok := s.sessions[key]
	s.mu.RUnlock()

	var work *Session
	if ok {
		work = cur.clone()
	} else {
		work = newSession(key)
	}
	mutate(work)
	work.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.sessions[key] = work
	s.mu.Unlock()
	return nil
}

// clone gives callers a snapshot they can read without holding store locks.
func (s *Session) clone() *Session {
	cp := *s
	cp.Catalog = append(cp.Catalog[:0:0], s.Catalog...)
	cp.Cart = append(cp.Cart[:0:0], s.Cart...)
	return &cp
}

// keyLocks hands out one mutex per session key.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*sync.Mutex)}
}

func (k *keyLocks) lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
