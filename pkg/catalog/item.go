package catalog

import "fmt"

// Garment categories as the remote catalog spells them.
const (
	CategoryFalda    = "Falda"
	CategoryCamisa   = "Camisa"
	CategoryChaqueta = "Chaqueta"
	CategorySudadera = "Sudadera"
)

// QuantityTiers are the only lot sizes the catalog prices.
var QuantityTiers = []int{50, 100, 200}

// Item is one sellable garment as returned by the catalog API. Field names
// follow the remote payload. Items are immutable once fetched; sessions hold
// a read-only, possibly stale, copy.
type Item struct {
	ID       int     `json:"id"`
	Category string  `json:"tipo_prenda"`
	Size     string  `json:"talla"`
	Color    string  `json:"color"`
	Price50  float64 `json:"precio_50_u"`
	Price100 float64 `json:"precio_100_u"`
	Price200 float64 `json:"precio_200_u"`
}

// PriceForQuantity returns the lot price for one of the configured tiers.
// The second return value is false for any other quantity.
func (i Item) PriceForQuantity(qty int) (float64, bool) {
	switch qty {
	case 50:
		return i.Price50, true
	case 100:
		return i.Price100, true
	case 200:
		return i.Price200, true
	default:
		return 0, false
	}
}

// Description renders the item the way order lines describe it,
// e.g. "Falda | M | Rojo".
func (i Item) Description() string {
	return fmt.Sprintf("%s | %s | %s", i.Category, i.Size, i.Color)
}
