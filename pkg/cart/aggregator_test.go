package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/camibot/camibot/pkg/catalog"
	"github.com/camibot/camibot/pkg/journal"
	"github.com/camibot/camibot/pkg/order"
	"github.com/camibot/camibot/pkg/selection"
	"github.com/camibot/camibot/pkg/session"
)

type fakeSubmitter struct {
	lines []order.Line
	err   error
}

func (f *fakeSubmitter) Submit(ctx context.Context, line order.Line) error {
	if f.err != nil {
		return f.err
	}
	f.lines = append(f.lines, line)
	return nil
}

func seedSession(t *testing.T, store session.Store, key string) {
	t.Helper()
	err := store.Update(context.Background(), key, func(s *session.Session) {
		s.Catalog = []catalog.Item{
			{ID: 1, Category: "Falda", Size: "M", Color: "Rojo", Price50: 1058.0, Price100: 900.0, Price200: 750.0},
			{ID: 4, Category: "Camisa", Size: "L", Color: "Azul", Price50: 1138.0, Price100: 986.0, Price200: 386.0},
		}
	})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
}

func TestAddLine_TierPriceBecomesTotal(t *testing.T) {
	store := session.NewMemoryStore()
	seedSession(t, store, "k")
	sub := &fakeSubmitter{}
	agg := NewAggregator(store, sub, nil)

	line, err := agg.AddLine(context.Background(), "k", selection.Selection{Quantity: 100, ItemID: 4})
	if err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	if line.Total != 986.0 {
		t.Errorf("Total = %v, want 986.0", line.Total)
	}
	if line.UnitPrice != 986.0 {
		t.Errorf("UnitPrice = %v, want 986.0", line.UnitPrice)
	}
	if line.Description != "Camisa | L | Azul" {
		t.Errorf("Description = %q", line.Description)
	}

	sess, _ := store.Get(context.Background(), "k")
	if len(sess.Cart) != 1 {
		t.Fatalf("len(Cart) = %d, want 1", len(sess.Cart))
	}
}

func TestAddLine_ItemOutsideSliceNotFound(t *testing.T) {
	store := session.NewMemoryStore()
	seedSession(t, store, "k")
	agg := NewAggregator(store, &fakeSubmitter{}, nil)

	// Id 9 may exist in the full remote catalog; it is still not found
	// because the session's slice does not have it.
	_, err := agg.AddLine(context.Background(), "k", selection.Selection{Quantity: 50, ItemID: 9})
	if !errors.Is(err, ErrItemNotFound) {
		t.Errorf("err = %v, want ErrItemNotFound", err)
	}

	sess, _ := store.Get(context.Background(), "k")
	if len(sess.Cart) != 0 {
		t.Errorf("cart must stay empty, got %d lines", len(sess.Cart))
	}
}

func TestAddLine_RejectionLeavesCartUntouched(t *testing.T) {
	store := session.NewMemoryStore()
	seedSession(t, store, "k")
	sub := &fakeSubmitter{err: order.ErrRejected}
	agg := NewAggregator(store, sub, nil)

	_, err := agg.AddLine(context.Background(), "k", selection.Selection{Quantity: 50, ItemID: 1})
	if !errors.Is(err, order.ErrRejected) {
		t.Errorf("err = %v, want ErrRejected", err)
	}

	sess, _ := store.Get(context.Background(), "k")
	if len(sess.Cart) != 0 {
		t.Errorf("cart must stay empty after rejection, got %d lines", len(sess.Cart))
	}
}

func TestAddLine_CartLengthMatchesAcks(t *testing.T) {
	store := session.NewMemoryStore()
	seedSession(t, store, "k")
	sub := &fakeSubmitter{}
	agg := NewAggregator(store, sub, journal.NewStore(""))
	ctx := context.Background()

	if _, err := agg.AddLine(ctx, "k", selection.Selection{Quantity: 50, ItemID: 1}); err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	sub.err = order.ErrRejected
	_, _ = agg.AddLine(ctx, "k", selection.Selection{Quantity: 100, ItemID: 4})
	sub.err = nil
	if _, err := agg.AddLine(ctx, "k", selection.Selection{Quantity: 200, ItemID: 4}); err != nil {
		t.Fatalf("AddLine: %v", err)
	}

	sess, _ := store.Get(ctx, "k")
	if len(sess.Cart) != len(sub.lines) {
		t.Errorf("cart lines = %d, acks = %d; must be equal", len(sess.Cart), len(sub.lines))
	}
	if len(sess.Cart) != 2 {
		t.Errorf("len(Cart) = %d, want 2", len(sess.Cart))
	}
}

func TestAddLine_UnsupportedTier(t *testing.T) {
	store := session.NewMemoryStore()
	seedSession(t, store, "k")
	agg := NewAggregator(store, &fakeSubmitter{}, nil)

	_, err := agg.AddLine(context.Background(), "k", selection.Selection{Quantity: 75, ItemID: 1})
	if !errors.Is(err, selection.ErrQuantityTier) {
		t.Errorf("err = %v, want ErrQuantityTier", err)
	}
}
