// Package session holds per-user conversational state, keyed by the
// originating channel address. A session is created on first contact and
// lives until the process exits or the backing store evicts it.
package session

import (
	"context"
	"time"

	"github.com/camibot/camibot/pkg/catalog"
	"github.com/camibot/camibot/pkg/order"
)

// Session is everything the dialogs remember about one user: registration
// fields, the catalog slice fetched by the current browsing dialog, and the
// cart accumulated so far. Dialog cursor state lives in the dispatcher, not
// here, so a durable store never resurrects a half-finished capture step.
type Session struct {
	Key             string         `json:"key"`
	Name            string         `json:"name,omitempty"`
	BusinessName    string         `json:"business_name,omitempty"`
	BusinessAddress string         `json:"business_address,omitempty"`
	EditTarget      string         `json:"edit_target,omitempty"`
	Catalog         []catalog.Item `json:"catalog,omitempty"`
	Cart            []order.Line   `json:"cart,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// FindCatalogItem resolves an item id against the session's last-fetched
// catalog slice. An id missing from the slice is not found, even if the full
// remote catalog has it.
func (s *Session) FindCatalogItem(id int) (catalog.Item, bool) {
	for _, item := range s.Catalog {
		if item.ID == id {
			return item, true
		}
	}
	return catalog.Item{}, false
}

// Store is the contract the dialog engine depends on. Get creates an empty
// session on first access. Update applies mutate under a per-session lock;
// implementations must not run two mutations for the same key concurrently,
// but different keys need no mutual exclusion.
type Store interface {
	Get(ctx context.Context, key string) (*Session, error)
	Update(ctx context.Context, key string, mutate func(*Session)) error
}

func newSession(key string) *Session {
	now := time.Now().UTC()
	return &Session{Key: key, CreatedAt: now, UpdatedAt: now}
}
