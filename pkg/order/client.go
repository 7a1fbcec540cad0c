package order

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrRejected marks a submission the order ledger did not accept: either a
// non-2xx response or a network failure. The cart must stay untouched when
// it is returned.
var ErrRejected = errors.New("order rejected")

// Line is one confirmed order line. Field names follow the remote ledger
// payload. A Line is never mutated after creation.
type Line struct {
	UserID      int     `json:"user_id"`
	ItemID      int     `json:"prenda_id"`
	Quantity    int     `json:"cantidad"`
	UnitPrice   float64 `json:"precio"`
	Total       float64 `json:"total"`
	Description string  `json:"prenda_descripcion"`
}

// Client performs one-shot writes against the remote order ledger. Every
// submission carries a client-generated idempotency token so an accidental
// resend cannot create a duplicate remote order.
type Client struct {
	baseURL    string
	httpClient *http.Client
	newToken   func() string
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		newToken:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit writes one line to the ledger. Only a 2xx response counts as
// accepted; anything else surfaces as ErrRejected. No automatic retry.
func (c *Client) Submit(ctx context.Context, line Line) error {
	body, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("order: marshal line: %w", err)
	}

	url := c.baseURL + "/api/pedidos"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("order: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", c.newToken())

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("%w: status %d from %s: %s", ErrRejected, res.StatusCode, url, string(buf))
	}
	return nil
}
