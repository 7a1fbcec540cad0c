package channels

import (
	"context"
	"fmt"

	"github.com/camibot/camibot/pkg/bus"
	"github.com/camibot/camibot/pkg/config"
	"github.com/camibot/camibot/pkg/logger"
)

// Manager owns the enabled channels and routes outbound messages from the
// bus to the channel each one names.
type Manager struct {
	channels map[string]Channel
	bus      *bus.MessageBus
}

func NewManager(cfg config.ChannelsConfig, messageBus *bus.MessageBus) (*Manager, error) {
	m := &Manager{
		channels: make(map[string]Channel),
		bus:      messageBus,
	}

	if cfg.Telegram.Enabled {
		ch, err := NewTelegramChannel(cfg.Telegram, messageBus)
		if err != nil {
			return nil, fmt.Errorf("telegram channel: %w", err)
		}
		m.channels[ch.Name()] = ch
	}

	if cfg.WhatsApp.Enabled {
		ch := NewWhatsAppChannel(cfg.WhatsApp, messageBus)
		m.channels[ch.Name()] = ch
	}

	return m, nil
}

// Register adds a channel directly. Used by tests and custom transports.
func (m *Manager) Register(ch Channel) {
	m.channels[ch.Name()] = ch
}

func (m *Manager) Enabled() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}

// StartAll starts every channel and the outbound routing loop. A channel
// that fails to start is logged and skipped, the rest keep running.
func (m *Manager) StartAll(ctx context.Context) {
	for name, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			logger.ErrorCF("channels", "Channel failed to start", map[string]interface{}{
				"channel": name,
				"error":   err.Error(),
			})
			continue
		}
		logger.InfoCF("channels", "Channel started", map[string]interface{}{
			"channel": name,
		})
	}

	go m.routeOutbound(ctx)
}

func (m *Manager) StopAll(ctx context.Context) {
	for name, ch := range m.channels {
		if err := ch.Stop(ctx); err != nil {
			logger.WarnCF("channels", "Channel failed to stop cleanly", map[string]interface{}{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}
}

func (m *Manager) routeOutbound(ctx context.Context) {
	for {
		msg, ok := m.bus.ConsumeOutbound(ctx)
		if !ok {
			return
		}

		ch, found := m.channels[msg.Channel]
		if !found {
			logger.WarnCF("channels", "Outbound message for unknown channel", map[string]interface{}{
				"channel": msg.Channel,
			})
			continue
		}

		if err := ch.Send(ctx, msg); err != nil {
			logSendFailure(msg.Channel, err)
		}
	}
}
