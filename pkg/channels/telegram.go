package channels

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/camibot/camibot/pkg/bus"
	"github.com/camibot/camibot/pkg/config"
	"github.com/camibot/camibot/pkg/logger"
)

// TelegramChannel talks to Telegram through long polling. Dialog buttons are
// rendered as an inline keyboard; a pressed button comes back as a callback
// query whose data is forwarded like a typed reply.
type TelegramChannel struct {
	*BaseChannel
	bot    *telego.Bot
	config config.TelegramConfig
}

func NewTelegramChannel(cfg config.TelegramConfig, messageBus *bus.MessageBus) (*TelegramChannel, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", messageBus, cfg.AllowFrom),
		bot:         bot,
		config:      cfg,
	}, nil
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	logger.InfoC("telegram", "Starting Telegram bot (polling mode)...")

	updates, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: 30,
	})
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	c.setRunning(true)
	logger.InfoCF("telegram", "Telegram bot connected", map[string]interface{}{
		"username": c.bot.Username(),
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					logger.InfoC("telegram", "Updates channel closed")
					c.setRunning(false)
					return
				}
				switch {
				case update.Message != nil:
					c.handleMessage(update.Message)
				case update.CallbackQuery != nil:
					c.handleCallback(ctx, update.CallbackQuery)
				}
			}
		}
	}()

	return nil
}

func (c *TelegramChannel) Stop(ctx context.Context) error {
	logger.InfoC("telegram", "Stopping Telegram bot...")
	c.setRunning(false)
	return nil
}

func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bot not running")
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", msg.ChatID, err)
	}

	tgMsg := tu.Message(tu.ID(chatID), msg.Content)
	if len(msg.Buttons) > 0 {
		rows := make([][]telego.InlineKeyboardButton, 0, len(msg.Buttons))
		for _, b := range msg.Buttons {
			rows = append(rows, []telego.InlineKeyboardButton{
				{Text: b.Body, CallbackData: b.Body},
			})
		}
		tgMsg.ReplyMarkup = &telego.InlineKeyboardMarkup{InlineKeyboard: rows}
	}

	if _, err := c.bot.SendMessage(ctx, tgMsg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (c *TelegramChannel) handleMessage(message *telego.Message) {
	if message.From == nil || message.Text == "" {
		return
	}

	senderID := strconv.FormatInt(message.From.ID, 10)
	if !c.IsAllowed(senderID) {
		logger.DebugCF("telegram", "Message rejected by allowlist", map[string]interface{}{
			"user_id": senderID,
		})
		return
	}

	chatID := strconv.FormatInt(message.Chat.ID, 10)
	c.HandleMessage(senderID, chatID, message.Text, "", map[string]string{
		"message_id": strconv.Itoa(message.MessageID),
	})
}

func (c *TelegramChannel) handleCallback(ctx context.Context, query *telego.CallbackQuery) {
	senderID := strconv.FormatInt(query.From.ID, 10)
	if !c.IsAllowed(senderID) {
		return
	}

	// Ack so the client stops showing the spinner.
	if err := c.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: query.ID,
	}); err != nil {
		logger.DebugCF("telegram", "Failed to answer callback query", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if query.Data == "" {
		return
	}

	// Private chats only, so the sender is the chat.
	c.HandleMessage(senderID, senderID, query.Data, query.Data, map[string]string{
		"callback_id": query.ID,
	})
}
