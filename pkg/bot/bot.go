// Package bot assembles the seller assistant: it registers every dialog and
// runs the dispatcher that drives them.
package bot

import (
	"context"
	"fmt"

	"github.com/camibot/camibot/pkg/bus"
	"github.com/camibot/camibot/pkg/cart"
	"github.com/camibot/camibot/pkg/catalog"
	"github.com/camibot/camibot/pkg/flow"
	"github.com/camibot/camibot/pkg/logger"
	"github.com/camibot/camibot/pkg/security"
	"github.com/camibot/camibot/pkg/session"
)

// Bot ties the dialog registry to the dispatcher. Construct once at startup,
// then Run until the context ends.
type Bot struct {
	registry   *flow.Registry
	dispatcher *flow.Dispatcher
}

// Deps are the collaborators the dialogs need. All fields are required
// except Blacklist.
type Deps struct {
	Store     session.Store
	Catalog   *catalog.Client
	Cart      *cart.Aggregator
	Bus       *bus.MessageBus
	Fallback  flow.Responder
	Blacklist *security.Blacklist
	Options   flow.Options
}

func New(deps Deps) (*Bot, error) {
	registry := flow.NewRegistry()

	flows := []*flow.Flow{
		welcomeFlow(),
		registerFlow(),
		viewRegisterFlow(),
		editRegisterFlow(),
		browseFlow(FlowInventory, []string{"inventario", "preguntar por inventario", "consulta inventario"}, "", deps.Catalog, deps.Cart),
		browseFlow(FlowFaldas, []string{"falda", "faldas"}, catalog.CategoryFalda, deps.Catalog, deps.Cart),
		browseFlow(FlowCamisas, []string{"camisa", "camisas"}, catalog.CategoryCamisa, deps.Catalog, deps.Cart),
		browseFlow(FlowChaquetas, []string{"chaqueta", "chaquetas"}, catalog.CategoryChaqueta, deps.Catalog, deps.Cart),
		browseFlow(FlowSudaderas, []string{"sudadera", "sudaderas"}, catalog.CategorySudadera, deps.Catalog, deps.Cart),
		cartFlow(),
		confirmFlow(),
		purchaseFlow(deps.Cart),
	}
	for _, f := range flows {
		if err := registry.Register(f); err != nil {
			return nil, fmt.Errorf("register flow %q: %w", f.Name, err)
		}
	}

	logger.InfoCF("bot", "Dialogs registered", map[string]interface{}{
		"count": len(flows),
	})

	dispatcher := flow.NewDispatcher(registry, deps.Store, deps.Bus, deps.Fallback, deps.Blacklist, deps.Options)

	return &Bot{
		registry:   registry,
		dispatcher: dispatcher,
	}, nil
}

// Run blocks consuming inbound messages until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	return b.dispatcher.Run(ctx)
}

// TriggerFlow activates a named dialog for a chat, as if the user had typed
// its trigger. Used by the management plane.
func (b *Bot) TriggerFlow(channel, chatID, name string) bool {
	return b.dispatcher.TriggerFlow(channel, chatID, name)
}
