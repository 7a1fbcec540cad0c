// Package cart accumulates confirmed line items per session. A line enters
// the cart only after the remote order ledger acknowledged it, so the local
// cart never holds a line without a corresponding remote record.
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/camibot/camibot/pkg/journal"
	"github.com/camibot/camibot/pkg/logger"
	"github.com/camibot/camibot/pkg/order"
	"github.com/camibot/camibot/pkg/selection"
	"github.com/camibot/camibot/pkg/session"
)

// ErrItemNotFound means the selected id is not in the session's last-fetched
// catalog slice. The full remote catalog is irrelevant here: the user can
// only buy what they were just shown.
var ErrItemNotFound = errors.New("item not in session catalog")

// Submitter is the slice of the order client the aggregator needs.
type Submitter interface {
	Submit(ctx context.Context, line order.Line) error
}

type Aggregator struct {
	store   session.Store
	orders  Submitter
	journal *journal.Store
	userID  int
}

func NewAggregator(store session.Store, orders Submitter, jnl *journal.Store) *Aggregator {
	return &Aggregator{
		store:   store,
		orders:  orders,
		journal: jnl,
		userID:  1,
	}
}

// AddLine resolves a parsed selection against the session's catalog slice,
// prices it by tier, submits it to the ledger, and appends it to the cart
// only on a successful acknowledgment. Failures leave the cart untouched and
// are non-fatal; the dialog stays open for further selections.
func (a *Aggregator) AddLine(ctx context.Context, sessionKey string, sel selection.Selection) (order.Line, error) {
	sess, err := a.store.Get(ctx, sessionKey)
	if err != nil {
		return order.Line{}, fmt.Errorf("load session: %w", err)
	}

	item, ok := sess.FindCatalogItem(sel.ItemID)
	if !ok {
		return order.Line{}, ErrItemNotFound
	}

	price, ok := item.PriceForQuantity(sel.Quantity)
	if !ok {
		return order.Line{}, selection.ErrQuantityTier
	}

	// The catalog prices whole lots: the tier price is the price of the
	// 50/100/200-unit batch, not per unit.
	line := order.Line{
		UserID:      a.userID,
		ItemID:      item.ID,
		Quantity:    sel.Quantity,
		UnitPrice:   price,
		Total:       price,
		Description: item.Description(),
	}

	if err := a.orders.Submit(ctx, line); err != nil {
		a.record(sessionKey, line, false, err.Error())
		return order.Line{}, err
	}

	if err := a.store.Update(ctx, sessionKey, func(s *session.Session) {
		s.Cart = append(s.Cart, line)
	}); err != nil {
		// The remote ledger has the line but the local cart does not; the
		// summary will undercount until session eviction. Loud log, no retry.
		logger.ErrorCF("cart", "Order acknowledged but cart update failed", map[string]interface{}{
			"session_key": sessionKey,
			"item_id":     line.ItemID,
			"error":       err.Error(),
		})
		return order.Line{}, fmt.Errorf("update cart: %w", err)
	}

	a.record(sessionKey, line, true, "")
	return line, nil
}

func (a *Aggregator) record(sessionKey string, line order.Line, accepted bool, reason string) {
	if a.journal == nil {
		return
	}
	a.journal.Add(journal.Record{
		SessionKey:  sessionKey,
		ItemID:      line.ItemID,
		Quantity:    line.Quantity,
		Total:       line.Total,
		Description: line.Description,
		Accepted:    accepted,
		Reason:      reason,
	})
}
