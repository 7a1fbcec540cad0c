// Package journal keeps an append-only record of order submissions: what was
// sent to the remote ledger and whether it was acknowledged. The gateway
// status endpoint reads its aggregates, and it is the audit trail for the
// one-local-line-per-remote-ack invariant.
package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Record struct {
	Timestamp   time.Time `json:"timestamp"`
	DayKey      string    `json:"day_key"`
	SessionKey  string    `json:"session_key"`
	ItemID      int       `json:"item_id"`
	Quantity    int       `json:"quantity"`
	Total       float64   `json:"total"`
	Description string    `json:"description"`
	Accepted    bool      `json:"accepted"`
	Reason      string    `json:"reason,omitempty"`
}

type Filter struct {
	SessionKey string
	DayKey     string
	Limit      int
}

type Aggregate struct {
	Submissions int     `json:"submissions"`
	Accepted    int     `json:"accepted"`
	Rejected    int     `json:"rejected"`
	Total       float64 `json:"total"`
}

type Store struct {
	mu      sync.RWMutex
	records []Record
	path    string
}

// NewStore creates a journal. With a non-empty dir the journal is mirrored
// to dir/orders.json and reloaded on startup; with "" it is memory-only.
func NewStore(dir string) *Store {
	s := &Store{
		records: make([]Record, 0, 256),
	}
	if dir == "" {
		return s
	}
	_ = os.MkdirAll(dir, 0755)
	s.path = filepath.Join(dir, "orders.json")
	s.load()
	return s
}

func (s *Store) TodayKey() string {
	return time.Now().UTC().Format("2006-01-02")
}

func (s *Store) Add(r Record) {
	if r.DayKey == "" {
		r.DayKey = s.TodayKey()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	s.records = append(s.records, r)
	s.mu.Unlock()

	s.save()
}

func (s *Store) Query(f Filter) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if f.SessionKey != "" && r.SessionKey != f.SessionKey {
			continue
		}
		if f.DayKey != "" && r.DayKey != f.DayKey {
			continue
		}
		out = append(out, r)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

func AggregateRecords(records []Record) Aggregate {
	var agg Aggregate
	for _, r := range records {
		agg.Submissions++
		if r.Accepted {
			agg.Accepted++
			agg.Total += r.Total
		} else {
			agg.Rejected++
		}
	}
	return agg
}

func (s *Store) load() {
	if s.path == "" {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return
	}
	s.records = records
}

func (s *Store) save() {
	if s.path == "" {
		return
	}
	s.mu.RLock()
	snapshot := make([]Record, len(s.records))
	copy(snapshot, s.records)
	s.mu.RUnlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(s.path, data, 0644)
}
