package selection

import (
	"errors"
	"testing"
)

func TestParse_ValidReplies(t *testing.T) {
	tests := []struct {
		reply string
		want  Selection
	}{
		{"Comprar 50 id:4", Selection{Quantity: 50, ItemID: 4}},
		{"comprar 100id:12", Selection{Quantity: 100, ItemID: 12}},
		{"Comprar 200id:41", Selection{Quantity: 200, ItemID: 41}},
		{"COMPRAR 50 ID:1", Selection{Quantity: 50, ItemID: 1}},
		{"  Comprar 100 id: 7  ", Selection{Quantity: 100, ItemID: 7}},
	}
	for _, tt := range tests {
		got, err := Parse(tt.reply)
		if err != nil {
			t.Errorf("Parse(%q): unexpected error %v", tt.reply, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.reply, got, tt.want)
		}
	}
}

func TestParse_UnsupportedTier(t *testing.T) {
	_, err := Parse("Comprar 75 id:4")
	if !errors.Is(err, ErrQuantityTier) {
		t.Errorf("Parse: err = %v, want ErrQuantityTier", err)
	}
}

func TestParse_SilentNoOps(t *testing.T) {
	for _, reply := range []string{
		"hello",
		"Siguiente producto",
		"confirmar pedido",
		"quiero confirmar pedido ya",
		"gracias",
	} {
		_, err := Parse(reply)
		if !errors.Is(err, ErrNoSelection) {
			t.Errorf("Parse(%q): err = %v, want ErrNoSelection", reply, err)
		}
	}
}

func TestParse_MalformedPurchaseAttempts(t *testing.T) {
	for _, reply := range []string{
		"comprar",
		"Comprar muchas id:4",
		"comprar 50",
		"comprar id:4",
	} {
		_, err := Parse(reply)
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("Parse(%q): err = %v, want ErrMalformed", reply, err)
		}
	}
}
