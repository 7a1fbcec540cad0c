package channels

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/camibot/camibot/pkg/bus"
	"github.com/camibot/camibot/pkg/config"
)

type fakeChannel struct {
	*BaseChannel
	sent []bus.OutboundMessage
	ch   chan bus.OutboundMessage
}

func newFakeChannel(name string, messageBus *bus.MessageBus) *fakeChannel {
	f := &fakeChannel{
		BaseChannel: NewBaseChannel(name, messageBus, nil),
		ch:          make(chan bus.OutboundMessage, 16),
	}
	f.setRunning(true)
	return f
}

func (f *fakeChannel) Start(ctx context.Context) error { return nil }
func (f *fakeChannel) Stop(ctx context.Context) error  { return nil }

func (f *fakeChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	f.sent = append(f.sent, msg)
	f.ch <- msg
	return nil
}

func TestBaseChannel_Allowlist(t *testing.T) {
	b := NewBaseChannel("test", bus.NewMessageBus(), []string{"100", "200"})

	if !b.IsAllowed("100") {
		t.Error("listed sender should be allowed")
	}
	if b.IsAllowed("300") {
		t.Error("unlisted sender should be denied")
	}

	open := NewBaseChannel("test", bus.NewMessageBus(), nil)
	if !open.IsAllowed("anyone") {
		t.Error("empty allowlist should admit everyone")
	}
}

func TestBaseChannel_HandleMessagePublishesInbound(t *testing.T) {
	msgBus := bus.NewMessageBus()
	b := NewBaseChannel("whatsapp", msgBus, nil)

	b.HandleMessage("549111", "549111", "Hola", "", map[string]string{"message_id": "m1"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := msgBus.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("no inbound message published")
	}
	if msg.SessionKey != "whatsapp:549111" {
		t.Errorf("session key = %q", msg.SessionKey)
	}
	if msg.Channel != "whatsapp" || msg.Content != "Hola" {
		t.Errorf("message = %+v", msg)
	}
	if msg.CorrelationID == "" {
		t.Error("correlation id should be set")
	}
}

func TestBaseChannel_ButtonReplyCarriesLabel(t *testing.T) {
	msgBus := bus.NewMessageBus()
	b := NewBaseChannel("telegram", msgBus, nil)

	b.HandleMessage("100", "100", "Comprar 50 id:4", "Comprar 50 id:4", nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := msgBus.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("no inbound message published")
	}
	if msg.ButtonReply != "Comprar 50 id:4" {
		t.Errorf("ButtonReply = %q, want the pressed button's label", msg.ButtonReply)
	}
	if msg.Content != "Comprar 50 id:4" {
		t.Errorf("Content = %q", msg.Content)
	}
}

func TestManager_RoutesOutboundByChannelName(t *testing.T) {
	msgBus := bus.NewMessageBus()
	m, err := NewManager(config.ChannelsConfig{}, msgBus)
	if err != nil {
		t.Fatal(err)
	}
	tg := newFakeChannel("telegram", msgBus)
	wa := newFakeChannel("whatsapp", msgBus)
	m.Register(tg)
	m.Register(wa)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartAll(ctx)

	msgBus.PublishOutbound(bus.OutboundMessage{Channel: "whatsapp", ChatID: "1", Content: "hola"})
	msgBus.PublishOutbound(bus.OutboundMessage{Channel: "telegram", ChatID: "2", Content: "hi"})

	select {
	case msg := <-wa.ch:
		if msg.Content != "hola" {
			t.Errorf("whatsapp got %q", msg.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("whatsapp message not routed")
	}
	select {
	case msg := <-tg.ch:
		if msg.Content != "hi" {
			t.Errorf("telegram got %q", msg.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("telegram message not routed")
	}
}

func TestWhatsAppChannel_BridgeRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	frames := make(chan wireFrame, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		// Deliver one user message, then collect whatever the channel sends.
		conn.WriteJSON(wireFrame{Type: "message", From: "549111", Body: "inventario"})
		for {
			var f wireFrame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			frames <- f
		}
	}))
	defer srv.Close()

	msgBus := bus.NewMessageBus()
	ch := NewWhatsAppChannel(config.WhatsAppConfig{
		BridgeURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
	}, msgBus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ch.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer ch.Stop(context.Background())

	rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer rcancel()
	msg, ok := msgBus.ConsumeInbound(rctx)
	if !ok {
		t.Fatal("bridge message not forwarded to bus")
	}
	if msg.SessionKey != "whatsapp:549111" || msg.Content != "inventario" {
		t.Errorf("inbound = %+v", msg)
	}

	err := ch.Send(context.Background(), bus.OutboundMessage{
		Channel: "whatsapp",
		ChatID:  "549111",
		Content: "Hola!",
		Buttons: []bus.Button{{Body: "Comprar 50 id:4"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case f := <-frames:
		if f.Type != "send" || f.ChatID != "549111" || f.Body != "Hola!" {
			t.Errorf("frame = %+v", f)
		}
		if len(f.Buttons) != 1 || f.Buttons[0].Body != "Comprar 50 id:4" {
			t.Errorf("buttons = %+v", f.Buttons)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel never wrote the send frame")
	}
}
