package channels

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/camibot/camibot/pkg/bus"
	"github.com/camibot/camibot/pkg/logger"
)

// Channel is a messaging transport: it turns platform events into inbound
// messages on the bus and delivers outbound messages back to the platform.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
}

// BaseChannel carries the pieces every channel shares: the bus, the
// allowlist and the running flag.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom []string
	running   atomic.Bool
}

func NewBaseChannel(name string, messageBus *bus.MessageBus, allowFrom []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		bus:       messageBus,
		allowFrom: allowFrom,
	}
}

func (b *BaseChannel) Name() string {
	return b.name
}

func (b *BaseChannel) IsRunning() bool {
	return b.running.Load()
}

func (b *BaseChannel) setRunning(v bool) {
	b.running.Store(v)
}

// IsAllowed reports whether a sender passes the allowlist. An empty
// allowlist admits everyone.
func (b *BaseChannel) IsAllowed(senderID string) bool {
	if len(b.allowFrom) == 0 {
		return true
	}
	for _, allowed := range b.allowFrom {
		if allowed == senderID {
			return true
		}
	}
	return false
}

// HandleMessage forwards a platform message to the bus. The session key is
// channel-scoped so the same phone number on two channels stays two sessions.
func (b *BaseChannel) HandleMessage(senderID, chatID, content, buttonReply string, metadata map[string]string) {
	b.bus.PublishInbound(bus.InboundMessage{
		Channel:       b.name,
		SenderID:      senderID,
		ChatID:        chatID,
		Content:       content,
		ButtonReply:   buttonReply,
		SessionKey:    b.name + ":" + chatID,
		Metadata:      metadata,
		CorrelationID: uuid.NewString(),
	})
}

func logSendFailure(channel string, err error) {
	logger.ErrorCF(channel, "Failed to send message", map[string]interface{}{
		"error": err.Error(),
	})
}
