package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStoreAddAndQuery(t *testing.T) {
	tmp, err := os.MkdirTemp("", "journal-test-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	defer os.RemoveAll(tmp)

	s := NewStore(tmp)
	s.Add(Record{
		Timestamp:   time.Now(),
		SessionKey:  "whatsapp:573001112233",
		ItemID:      4,
		Quantity:    100,
		Total:       986.0,
		Description: "Camisa | L | Azul",
		Accepted:    true,
	})

	recs := s.Query(Filter{SessionKey: "whatsapp:573001112233"})
	if len(recs) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(recs))
	}
	if recs[0].Total != 986.0 {
		t.Fatalf("total = %v, want 986.0", recs[0].Total)
	}

	if _, err := os.Stat(filepath.Join(tmp, "orders.json")); err != nil {
		t.Fatalf("orders.json missing: %v", err)
	}
}

func TestStoreReloadsFromDisk(t *testing.T) {
	tmp, err := os.MkdirTemp("", "journal-reload-test-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	defer os.RemoveAll(tmp)

	s := NewStore(tmp)
	s.Add(Record{SessionKey: "s1", Accepted: true, Total: 500})

	reloaded := NewStore(tmp)
	recs := reloaded.Query(Filter{SessionKey: "s1"})
	if len(recs) != 1 {
		t.Fatalf("len(records) after reload = %d, want 1", len(recs))
	}
}

func TestAggregateRecords(t *testing.T) {
	records := []Record{
		{Accepted: true, Total: 986.0},
		{Accepted: false, Reason: "status 502"},
		{Accepted: true, Total: 1058.0},
	}
	agg := AggregateRecords(records)
	if agg.Submissions != 3 || agg.Accepted != 2 || agg.Rejected != 1 {
		t.Fatalf("unexpected counts: %+v", agg)
	}
	if agg.Total != 2044.0 {
		t.Fatalf("total = %v, want 2044.0", agg.Total)
	}
}

func TestQueryLimitKeepsNewest(t *testing.T) {
	s := NewStore("")
	for i := 0; i < 5; i++ {
		s.Add(Record{SessionKey: "s1", ItemID: i})
	}
	recs := s.Query(Filter{SessionKey: "s1", Limit: 2})
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2", len(recs))
	}
	if recs[0].ItemID != 3 || recs[1].ItemID != 4 {
		t.Fatalf("expected newest records, got %+v", recs)
	}
}
