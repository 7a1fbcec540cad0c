package channels

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/camibot/camibot/pkg/bus"
	"github.com/camibot/camibot/pkg/config"
	"github.com/camibot/camibot/pkg/logger"
)

const whatsappReconnectDelay = 5 * time.Second

// wireFrame is the JSON envelope exchanged with the WhatsApp bridge in both
// directions.
type wireFrame struct {
	Type        string       `json:"type"`
	From        string       `json:"from,omitempty"`
	ChatID      string       `json:"chat_id,omitempty"`
	Body        string       `json:"body,omitempty"`
	ButtonReply string       `json:"button_reply,omitempty"`
	Buttons     []bus.Button `json:"buttons,omitempty"`
}

// WhatsAppChannel connects to an external WhatsApp bridge over a websocket.
// The bridge owns the phone session; this side only exchanges JSON frames.
type WhatsAppChannel struct {
	*BaseChannel
	config config.WhatsAppConfig

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
}

func NewWhatsAppChannel(cfg config.WhatsAppConfig, messageBus *bus.MessageBus) *WhatsAppChannel {
	return &WhatsAppChannel{
		BaseChannel: NewBaseChannel("whatsapp", messageBus, cfg.AllowFrom),
		config:      cfg,
	}
}

func (c *WhatsAppChannel) Start(ctx context.Context) error {
	if c.config.BridgeURL == "" {
		return fmt.Errorf("whatsapp bridge_url not configured")
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.setRunning(true)
	go c.connectLoop(ctx)

	return nil
}

func (c *WhatsAppChannel) Stop(ctx context.Context) error {
	logger.InfoC("whatsapp", "Stopping WhatsApp bridge connection...")
	c.setRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
	return nil
}

func (c *WhatsAppChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("whatsapp bridge not connected")
	}

	frame := wireFrame{
		Type:    "send",
		ChatID:  msg.ChatID,
		Body:    msg.Content,
		Buttons: msg.Buttons,
	}
	if err := c.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// connectLoop keeps one live connection to the bridge, reconnecting with a
// fixed delay after any failure.
func (c *WhatsAppChannel) connectLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		logger.InfoCF("whatsapp", "Connecting to bridge", map[string]interface{}{
			"url": c.config.BridgeURL,
		})

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.config.BridgeURL, nil)
		if err != nil {
			logger.WarnCF("whatsapp", "Bridge connection failed", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
			logger.InfoC("whatsapp", "Bridge connected")

			c.readFrames(ctx, conn)

			c.mu.Lock()
			c.conn = nil
			c.mu.Unlock()
			conn.Close()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(whatsappReconnectDelay):
		}
	}
}

func (c *WhatsAppChannel) readFrames(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame wireFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() == nil {
				logger.WarnCF("whatsapp", "Bridge read failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return
		}

		if frame.Type != "message" || frame.From == "" {
			continue
		}
		if !c.IsAllowed(frame.From) {
			logger.DebugCF("whatsapp", "Message rejected by allowlist", map[string]interface{}{
				"from": frame.From,
			})
			continue
		}

		chatID := frame.ChatID
		if chatID == "" {
			chatID = frame.From
		}

		content := frame.Body
		if content == "" && frame.ButtonReply != "" {
			content = frame.ButtonReply
		}
		if content == "" {
			continue
		}

		c.HandleMessage(frame.From, chatID, content, frame.ButtonReply, nil)
	}
}
