package bus

// Button is a quick-reply button attached to an outbound message. Channels
// that cannot render buttons fall back to plain text.
type Button struct {
	Body string `json:"body"`
}

type InboundMessage struct {
	Channel       string            `json:"channel"`
	SenderID      string            `json:"sender_id"`
	ChatID        string            `json:"chat_id"`
	Content       string            `json:"content"`
	ButtonReply   string            `json:"button_reply,omitempty"`
	SessionKey    string            `json:"session_key"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
}

type OutboundMessage struct {
	Channel string   `json:"channel"`
	ChatID  string   `json:"chat_id"`
	Content string   `json:"content"`
	Buttons []Button `json:"buttons,omitempty"`
}

type MessageHandler func(InboundMessage) error
