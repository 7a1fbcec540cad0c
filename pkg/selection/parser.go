// Package selection turns a user's reply (button label or free text) into a
// structured purchase selection, or rejects it.
package selection

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// Selection is the parsed result of one reply. It lives only for the handler
// invocation that produced it.
type Selection struct {
	Quantity int
	ItemID   int
}

var (
	// ErrNoSelection means the reply was not a purchase attempt at all:
	// a continuation keyword or unrelated text. Callers advance silently.
	ErrNoSelection = errors.New("no selection in reply")

	// ErrMalformed means the reply tried to be a purchase ("comprar" present)
	// but did not match the expected shape. Callers re-prompt the same step.
	ErrMalformed = errors.New("malformed selection")

	// ErrQuantityTier means the quantity is not one of the configured lot
	// sizes. Callers re-prompt the same step.
	ErrQuantityTier = errors.New("unsupported quantity tier")
)

// Button labels omit the space ("Comprar 100id:12"), typed replies usually
// have it; both forms are accepted, case-insensitively.
var selectionRe = regexp.MustCompile(`(?i)comprar\s*(\d+)\s*id:\s*(\d+)`)

// continuationKeywords are replies that steer the dialog rather than select
// an item; they are silent no-ops for the parser.
var continuationKeywords = []string{
	"siguiente producto",
	"confirmar pedido",
}

// Parse extracts a Selection from one raw reply.
func Parse(reply string) (Selection, error) {
	trimmed := strings.TrimSpace(reply)
	lower := strings.ToLower(trimmed)

	for _, kw := range continuationKeywords {
		if strings.Contains(lower, kw) {
			return Selection{}, ErrNoSelection
		}
	}

	m := selectionRe.FindStringSubmatch(trimmed)
	if m == nil {
		if !strings.Contains(lower, "comprar") {
			return Selection{}, ErrNoSelection
		}
		return Selection{}, ErrMalformed
	}

	qty, err := strconv.Atoi(m[1])
	if err != nil {
		return Selection{}, ErrMalformed
	}
	itemID, err := strconv.Atoi(m[2])
	if err != nil {
		return Selection{}, ErrMalformed
	}

	if !validTier(qty) {
		return Selection{}, ErrQuantityTier
	}

	return Selection{Quantity: qty, ItemID: itemID}, nil
}

func validTier(qty int) bool {
	switch qty {
	case 50, 100, 200:
		return true
	default:
		return false
	}
}
