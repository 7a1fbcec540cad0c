package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/camibot/camibot/pkg/bus"
	"github.com/camibot/camibot/pkg/cart"
	"github.com/camibot/camibot/pkg/catalog"
	"github.com/camibot/camibot/pkg/flow"
	"github.com/camibot/camibot/pkg/logger"
	"github.com/camibot/camibot/pkg/order"
	"github.com/camibot/camibot/pkg/selection"
	"github.com/camibot/camibot/pkg/session"
)

// Flow names, used by Goto transitions and the management dispatch endpoint.
const (
	FlowWelcome      = "welcome"
	FlowRegister     = "register"
	FlowViewRegister = "view_register"
	FlowEdit         = "edit_register"
	FlowInventory    = "inventory"
	FlowFaldas       = "faldas"
	FlowCamisas      = "camisas"
	FlowChaquetas    = "chaquetas"
	FlowSudaderas    = "sudaderas"
	FlowPurchase     = "purchase"
	FlowCart         = "cart"
	FlowConfirm      = "confirm"
)

// Edit targets for the registration edit dialog.
const (
	editName     = "name"
	editAddress  = "address"
	editBusiness = "business"
)

const notRegistered = "No registrado"

const confirmHint = `Cuando termines de agregar los productos, escribe "confirmar pedido" para finalizar.`

func welcomeFlow() *flow.Flow {
	return &flow.Flow{
		Name:     FlowWelcome,
		Keywords: []string{"hola", "buenas"},
		Mode:     flow.MatchExact,
		Steps: []flow.Step{
			{Prompt: "🙌 Hola! Soy Cami la asistente"},
			{Prompt: `Si quieres hacer un pedido o consultar precios y stock por favor escribe "inventario". También puedes buscar: ` + "\n" +
				`🧥 Faldas con "Falda", ` + "\n" + `👚 Camisas con "Camisa", ` + "\n" +
				`👕 Sudaderas con "Sudadera", ` + "\n" + `🧥 Chaquetas con "Chaqueta".`},
		},
	}
}

func registerFlow() *flow.Flow {
	return &flow.Flow{
		Name:     FlowRegister,
		Keywords: []string{"registrarme"},
		Mode:     flow.MatchSubstring,
		Steps: []flow.Step{
			{
				Prompt:  "¿Cuál es tu nombre completo?",
				Capture: true,
				Handler: func(ctx context.Context, sc *flow.StepContext) flow.Directive {
					name := sc.Message.Content
					if err := sc.Store.Update(ctx, sc.SessionKey, func(s *session.Session) {
						s.Name = name
					}); err != nil {
						return storeFailure(sc, err)
					}
					return flow.Next()
				},
			},
			{
				Prompt:  "¿Cuál es la dirección de tu negocio?",
				Capture: true,
				Handler: func(ctx context.Context, sc *flow.StepContext) flow.Directive {
					address := sc.Message.Content
					if err := sc.Store.Update(ctx, sc.SessionKey, func(s *session.Session) {
						s.BusinessAddress = address
					}); err != nil {
						return storeFailure(sc, err)
					}
					return flow.Next()
				},
			},
			{
				Prompt:  "¿Cómo se llama tu negocio?",
				Capture: true,
				Handler: func(ctx context.Context, sc *flow.StepContext) flow.Directive {
					business := sc.Message.Content
					if err := sc.Store.Update(ctx, sc.SessionKey, func(s *session.Session) {
						s.BusinessName = business
					}); err != nil {
						return storeFailure(sc, err)
					}
					return flow.Next()
				},
			},
			{
				Handler: func(ctx context.Context, sc *flow.StepContext) flow.Directive {
					sess, err := sc.Store.Get(ctx, sc.SessionKey)
					if err != nil {
						return storeFailure(sc, err)
					}
					sc.Send("Gracias por tu información! Aquí está tu registro:\n\n" + registrationSummary(sess))
					return flow.End()
				},
			},
		},
	}
}

func viewRegisterFlow() *flow.Flow {
	return &flow.Flow{
		Name:     FlowViewRegister,
		Keywords: []string{"ver mi registro", "mis datos"},
		Mode:     flow.MatchSubstring,
		Steps: []flow.Step{
			{
				Handler: func(ctx context.Context, sc *flow.StepContext) flow.Directive {
					sess, err := sc.Store.Get(ctx, sc.SessionKey)
					if err != nil {
						return storeFailure(sc, err)
					}
					sc.Send("📋 *Tu información de registro:*\n\n" + registrationSummary(sess) +
						"\n\n¿Te gustaría editar tu registro? Responde con *Registrarme* para actualizar tu información.")
					return flow.End()
				},
			},
		},
	}
}

// editRegisterFlow classifies the reply into a tagged edit target first, then
// captures the new value for that one field.
func editRegisterFlow() *flow.Flow {
	return &flow.Flow{
		Name:     FlowEdit,
		Keywords: []string{"editar"},
		Mode:     flow.MatchSubstring,
		Steps: []flow.Step{
			{
				Prompt:  "¿Qué parte de tu registro te gustaría editar? Escribe *nombre*, *dirección* o *negocio*.",
				Capture: true,
				Handler: func(ctx context.Context, sc *flow.StepContext) flow.Directive {
					target, question := classifyEditTarget(sc.Message.Content)
					if target == "" {
						sc.Send("Lo siento, no entendí la opción. Responde con *nombre*, *dirección* o *negocio*.")
						return flow.Retry()
					}
					if err := sc.Store.Update(ctx, sc.SessionKey, func(s *session.Session) {
						s.EditTarget = target
					}); err != nil {
						return storeFailure(sc, err)
					}
					sc.Send(question)
					return flow.Next()
				},
			},
			{
				Capture: true,
				Handler: func(ctx context.Context, sc *flow.StepContext) flow.Directive {
					value := sc.Message.Content
					if err := sc.Store.Update(ctx, sc.SessionKey, func(s *session.Session) {
						switch s.EditTarget {
						case editName:
							s.Name = value
						case editAddress:
							s.BusinessAddress = value
						case editBusiness:
							s.BusinessName = value
						}
						s.EditTarget = ""
					}); err != nil {
						return storeFailure(sc, err)
					}
					sess, err := sc.Store.Get(ctx, sc.SessionKey)
					if err != nil {
						return storeFailure(sc, err)
					}
					sc.Send("Tu registro actualizado:\n\n" + registrationSummary(sess))
					return flow.End()
				},
			},
		},
	}
}

func classifyEditTarget(reply string) (target, question string) {
	switch strings.ToLower(strings.TrimSpace(reply)) {
	case "nombre":
		return editName, "¿Cuál es tu nuevo nombre completo?"
	case "dirección", "direccion":
		return editAddress, "¿Cuál es la nueva dirección de tu negocio?"
	case "negocio":
		return editBusiness, "¿Cómo se llama tu negocio?"
	default:
		return "", ""
	}
}

// browseFlow is the parameterized catalog listing: the whole inventory when
// category is empty, one garment category otherwise. Fetch, stash the slice
// in the session, send one paced message per item with the three tier
// buttons, then wait for selections on a capture step.
func browseFlow(name string, keywords []string, category string, cat *catalog.Client, agg *cart.Aggregator) *flow.Flow {
	return &flow.Flow{
		Name:     name,
		Keywords: keywords,
		Mode:     flow.MatchSubstring,
		Steps: []flow.Step{
			{Prompt: "Cargando el inventario para ti..."},
			{
				Handler: func(ctx context.Context, sc *flow.StepContext) flow.Directive {
					items, err := cat.Fetch(ctx, category)
					if err != nil {
						logger.WarnCF("bot", "Catalog fetch failed", map[string]interface{}{
							"flow":  name,
							"error": err.Error(),
						})
						sc.Send("Error al obtener datos. El inventario no está disponible en este momento, intenta de nuevo más tarde.")
						return flow.End()
					}
					if len(items) == 0 {
						sc.Send("No hay prendas disponibles en esta categoría por ahora.")
						return flow.End()
					}
					if err := sc.Store.Update(ctx, sc.SessionKey, func(s *session.Session) {
						s.Catalog = items
					}); err != nil {
						return storeFailure(sc, err)
					}
					for _, item := range items {
						sc.SendButtons(itemMessage(item), tierButtons(item))
					}
					sc.Send(confirmHint)
					return flow.Next()
				},
			},
			{
				Capture: true,
				Handler: purchaseHandler(agg),
			},
		},
	}
}

// purchaseFlow catches "Comprar ..." sent outside a browsing dialog, for
// users replaying an old button after the capture step ended.
func purchaseFlow(agg *cart.Aggregator) *flow.Flow {
	return &flow.Flow{
		Name:     FlowPurchase,
		Keywords: []string{"comprar"},
		Mode:     flow.MatchSubstring,
		Steps: []flow.Step{
			{
				Handler: func(ctx context.Context, sc *flow.StepContext) flow.Directive {
					sess, err := sc.Store.Get(ctx, sc.SessionKey)
					if err != nil {
						return storeFailure(sc, err)
					}
					if len(sess.Catalog) == 0 {
						sc.Send(`Primero escribe "inventario" para ver el catálogo disponible.`)
						return flow.End()
					}
					d := purchaseHandler(agg)(ctx, sc)
					// A standalone purchase has no capture step to stay on.
					if d.IsRetry() {
						return flow.End()
					}
					return d
				},
			},
		},
	}
}

// purchaseHandler is the one generic selection handler behind every tier
// button. It parses the reply, resolves it against the session catalog and
// reports the outcome; the dialog stays open for more selections.
func purchaseHandler(agg *cart.Aggregator) flow.HandlerFunc {
	return func(ctx context.Context, sc *flow.StepContext) flow.Directive {
		reply := sc.Message.Content

		if strings.Contains(strings.ToLower(reply), "confirmar pedido") {
			return flow.Goto(FlowConfirm)
		}

		sel, err := selection.Parse(reply)
		switch {
		case errors.Is(err, selection.ErrNoSelection):
			// Not a purchase attempt; let the next message route normally.
			return flow.End()
		case errors.Is(err, selection.ErrMalformed):
			sc.Send("No se pudo determinar la cantidad o el producto. Por favor, usa los botones para seleccionar.")
			return flow.Retry()
		case errors.Is(err, selection.ErrQuantityTier):
			sc.Send("Cantidad no válida. Por favor, selecciona 50, 100 o 200 unidades.")
			return flow.Retry()
		case err != nil:
			sc.Send("❌ Error al procesar tu pedido.")
			return flow.Retry()
		}

		line, err := agg.AddLine(ctx, sc.SessionKey, sel)
		switch {
		case errors.Is(err, cart.ErrItemNotFound):
			sc.Send("No se encontró la prenda seleccionada.")
			return flow.Retry()
		case errors.Is(err, selection.ErrQuantityTier):
			sc.Send("Cantidad no válida. Por favor, selecciona 50, 100 o 200 unidades.")
			return flow.Retry()
		case errors.Is(err, order.ErrRejected):
			sc.Send("⚠️ Hubo un problema al registrar el pedido. Por favor, intenta nuevamente.")
			return flow.Retry()
		case err != nil:
			sc.Send("❌ Error al procesar tu pedido.")
			return flow.Retry()
		}

		sc.Send(fmt.Sprintf("✅ Pedido agregado: %d unidades de %s.\nTotal: $%s\n\n"+
			`Puedes seguir agregando productos o escribir "confirmar pedido" para finalizar.`,
			line.Quantity, line.Description, formatPrice(line.Total)))
		return flow.Retry()
	}
}

func cartFlow() *flow.Flow {
	return &flow.Flow{
		Name:     FlowCart,
		Keywords: []string{"carrito", "ver carrito"},
		Mode:     flow.MatchSubstring,
		Steps: []flow.Step{
			{Prompt: "Cargando el carrito para ti..."},
			{
				Handler: func(ctx context.Context, sc *flow.StepContext) flow.Directive {
					sess, err := sc.Store.Get(ctx, sc.SessionKey)
					if err != nil {
						return storeFailure(sc, err)
					}
					sc.Send("📋 *Tu información de registro:*\n\n" + registrationSummary(sess) +
						cartSummary(sess) +
						"\n\n¿Te gustaría editar tu registro? Responde con *Registrarme* para actualizar tu información.")
					return flow.End()
				},
			},
		},
	}
}

func confirmFlow() *flow.Flow {
	return &flow.Flow{
		Name:     FlowConfirm,
		Keywords: []string{"confirmar pedido", "confrimar"},
		Mode:     flow.MatchSubstring,
		Steps: []flow.Step{
			{
				Handler: func(ctx context.Context, sc *flow.StepContext) flow.Directive {
					sess, err := sc.Store.Get(ctx, sc.SessionKey)
					if err != nil {
						return storeFailure(sc, err)
					}
					if len(sess.Cart) == 0 {
						sc.Send(`No tienes prendas en tu pedido aún. Escribe "inventario" para ver el catálogo.`)
						return flow.End()
					}
					sc.Send("📋 *Tu información de registro:*\n\n" + registrationSummary(sess) +
						cartSummary(sess) +
						"\n\n✅ ¡Pedido confirmado! Gracias por tu compra.")
					return flow.End()
				},
			},
		},
	}
}

func registrationSummary(s *session.Session) string {
	name := orDefault(s.Name)
	business := orDefault(s.BusinessName)
	address := orDefault(s.BusinessAddress)
	return fmt.Sprintf("👤 Nombre: %s\n🏢 Negocio: %s\n📍 Dirección: %s", name, business, address)
}

func cartSummary(s *session.Session) string {
	if len(s.Cart) == 0 {
		return "\nNo tienes prendas en tu pedido aún."
	}
	var b strings.Builder
	b.WriteString("\n🛒 *Detalles del Pedido:*\n")
	for i, line := range s.Cart {
		fmt.Fprintf(&b, "\n%d. *%s*\n- Cantidad: %d\n- Total: $%s\n",
			i+1, line.Description, line.Quantity, formatPrice(line.Total))
	}
	return b.String()
}

func itemMessage(item catalog.Item) string {
	return fmt.Sprintf(" • %s\n • Talla: %s\n • Color: %s\n"+
		"   - Precio 50 unidades: $%s\n"+
		"   - Precio 100 unidades: $%s\n"+
		"   - Precio 200 unidades: $%s",
		item.Category, item.Size, item.Color,
		formatPrice(item.Price50), formatPrice(item.Price100), formatPrice(item.Price200))
}

func tierButtons(item catalog.Item) []bus.Button {
	return []bus.Button{
		{Body: fmt.Sprintf("Comprar 50 id:%d", item.ID)},
		{Body: fmt.Sprintf("Comprar 100id:%d", item.ID)},
		{Body: fmt.Sprintf("Comprar 200id:%d", item.ID)},
	}
}

func orDefault(v string) string {
	if v == "" {
		return notRegistered
	}
	return v
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func storeFailure(sc *flow.StepContext, err error) flow.Directive {
	logger.ErrorCF("bot", "Session store failure", map[string]interface{}{
		"session_key": sc.SessionKey,
		"error":       err.Error(),
	})
	sc.Send("Lo siento, ocurrió un error al procesar tu solicitud.")
	return flow.End()
}
