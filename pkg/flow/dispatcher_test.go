package flow

import (
	"context"
	"testing"
	"time"

	"github.com/camibot/camibot/pkg/bus"
	"github.com/camibot/camibot/pkg/security"
	"github.com/camibot/camibot/pkg/session"
)

type staticResponder struct {
	answer string
	asked  []string
}

func (s *staticResponder) Respond(ctx context.Context, text string) string {
	s.asked = append(s.asked, text)
	return s.answer
}

type fixture struct {
	bus       *bus.MessageBus
	d         *Dispatcher
	responder *staticResponder
	cancel    context.CancelFunc
}

func newFixture(t *testing.T, reg *Registry) *fixture {
	t.Helper()
	msgBus := bus.NewMessageBus()
	responder := &staticResponder{answer: "fallback answer"}
	d := NewDispatcher(reg, session.NewMemoryStore(), msgBus, responder, security.NewBlacklist(), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = d.Run(ctx) }()
	t.Cleanup(cancel)

	return &fixture{bus: msgBus, d: d, responder: responder, cancel: cancel}
}

func (f *fixture) send(text string) {
	f.bus.PublishInbound(bus.InboundMessage{
		Channel:    "test",
		SenderID:   "u1",
		ChatID:     "u1",
		Content:    text,
		SessionKey: "test:u1",
	})
}

func (f *fixture) recv(t *testing.T) bus.OutboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, ok := f.bus.ConsumeOutbound(ctx)
	if !ok {
		t.Fatal("timed out waiting for outbound message")
	}
	return msg
}

func (f *fixture) expectSilence(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if msg, ok := f.bus.ConsumeOutbound(ctx); ok {
		t.Fatalf("expected no outbound message, got %q", msg.Content)
	}
}

func TestDispatch_TriggerActivatesFlow(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(&Flow{
		Name:     "welcome",
		Keywords: []string{"hola"},
		Mode:     MatchExact,
		Steps:    []Step{{Prompt: "Hola! Soy Cami"}},
	})

	f := newFixture(t, reg)
	f.send("Hola")

	if got := f.recv(t).Content; got != "Hola! Soy Cami" {
		t.Errorf("got %q", got)
	}
}

func TestDispatch_NoMatchGoesToFallback(t *testing.T) {
	reg := NewRegistry()
	f := newFixture(t, reg)
	f.send("anything at all")

	if got := f.recv(t).Content; got != "fallback answer" {
		t.Errorf("got %q", got)
	}
	if len(f.responder.asked) != 1 || f.responder.asked[0] != "anything at all" {
		t.Errorf("responder asked = %v", f.responder.asked)
	}
}

func TestDispatch_CaptureStepOwnsSession(t *testing.T) {
	reg := NewRegistry()
	var captured []string
	_ = reg.Register(&Flow{
		Name:     "register",
		Keywords: []string{"registrarme"},
		Mode:     MatchExact,
		Steps: []Step{
			{Prompt: "¿Cuál es tu nombre?", Capture: true, Handler: func(ctx context.Context, sc *StepContext) Directive {
				captured = append(captured, sc.Message.Content)
				sc.Send("gracias " + sc.Message.Content)
				return Next()
			}},
		},
	})
	_ = reg.Register(&Flow{
		Name:     "other",
		Keywords: []string{"carrito"},
		Mode:     MatchExact,
		Steps:    []Step{{Prompt: "tu carrito"}},
	})

	f := newFixture(t, reg)
	f.send("Registrarme")
	if got := f.recv(t).Content; got != "¿Cuál es tu nombre?" {
		t.Fatalf("prompt = %q", got)
	}

	// "carrito" matches another flow, but the pending capture step wins.
	f.send("carrito")
	if got := f.recv(t).Content; got != "gracias carrito" {
		t.Fatalf("got %q; reply must be routed to the capture handler", got)
	}
	if len(captured) != 1 || captured[0] != "carrito" {
		t.Errorf("captured = %v", captured)
	}

	// Flow is done; now "carrito" reaches its own flow.
	f.send("carrito")
	if got := f.recv(t).Content; got != "tu carrito" {
		t.Errorf("got %q", got)
	}
}

func TestDispatch_RetryStaysOnSameStep(t *testing.T) {
	reg := NewRegistry()
	calls := 0
	_ = reg.Register(&Flow{
		Name:     "pick",
		Keywords: []string{"elegir"},
		Mode:     MatchExact,
		Steps: []Step{
			{Prompt: "elige", Capture: true, Handler: func(ctx context.Context, sc *StepContext) Directive {
				calls++
				if sc.Message.Content != "ok" {
					sc.Send("intenta de nuevo")
					return Retry()
				}
				sc.Send("listo")
				return Next()
			}},
		},
	})

	f := newFixture(t, reg)
	f.send("elegir")
	_ = f.recv(t) // prompt

	f.send("bad")
	if got := f.recv(t).Content; got != "intenta de nuevo" {
		t.Fatalf("got %q", got)
	}
	if got := f.recv(t).Content; got != "elige" {
		t.Fatalf("retry should re-prompt, got %q", got)
	}

	f.send("ok")
	if got := f.recv(t).Content; got != "listo" {
		t.Fatalf("got %q", got)
	}
	if calls != 2 {
		t.Errorf("handler calls = %d, want 2", calls)
	}
}

func TestDispatch_GotoChainsFlows(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(&Flow{
		Name:     "doc",
		Keywords: []string{"doc"},
		Mode:     MatchExact,
		Steps: []Step{
			{Prompt: "continuar? *si*", Capture: true, Handler: func(ctx context.Context, sc *StepContext) Directive {
				if sc.Message.Content == "si" {
					return Goto("register")
				}
				sc.Send("gracias!")
				return End()
			}},
		},
	})
	_ = reg.Register(&Flow{
		Name:  "register",
		Steps: []Step{{Prompt: "¿Cuál es tu nombre?", Capture: true}},
	})

	f := newFixture(t, reg)
	f.send("doc")
	_ = f.recv(t)
	f.send("si")
	if got := f.recv(t).Content; got != "¿Cuál es tu nombre?" {
		t.Errorf("goto should start register flow, got %q", got)
	}
}

func TestDispatch_BlacklistedSenderDropped(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(&Flow{
		Name:     "welcome",
		Keywords: []string{"hola"},
		Mode:     MatchExact,
		Steps:    []Step{{Prompt: "Hola!"}},
	})

	f := newFixture(t, reg)
	f.d.blacklist.Add("u1")
	f.send("hola")
	f.expectSilence(t)
}

func TestDispatch_TriggerFlowFromManagementPlane(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(&Flow{
		Name:  "register",
		Steps: []Step{{Prompt: "¿Cuál es tu nombre?", Capture: true}},
	})

	f := newFixture(t, reg)
	if !f.d.TriggerFlow("test", "u1", "register") {
		t.Fatal("TriggerFlow returned false for a known flow")
	}
	if got := f.recv(t).Content; got != "¿Cuál es tu nombre?" {
		t.Errorf("got %q", got)
	}

	if f.d.TriggerFlow("test", "u1", "missing") {
		t.Error("TriggerFlow should refuse unknown flows")
	}
}

func TestDispatch_PacedBatchPreservesOrder(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(&Flow{
		Name:     "list",
		Keywords: []string{"inventario"},
		Mode:     MatchSubstring,
		Steps: []Step{
			{Handler: func(ctx context.Context, sc *StepContext) Directive {
				for _, m := range []string{"item 1", "item 2", "item 3"} {
					sc.Send(m)
				}
				sc.Send("resumen")
				return Next()
			}},
		},
	})

	msgBus := bus.NewMessageBus()
	d := NewDispatcher(reg, session.NewMemoryStore(), msgBus, &staticResponder{}, security.NewBlacklist(),
		Options{MessageDelay: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	msgBus.PublishInbound(bus.InboundMessage{
		Channel: "test", SenderID: "u1", ChatID: "u1", Content: "inventario", SessionKey: "test:u1",
	})

	want := []string{"item 1", "item 2", "item 3", "resumen"}
	for _, w := range want {
		rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
		msg, ok := msgBus.ConsumeOutbound(rctx)
		rcancel()
		if !ok {
			t.Fatal("timed out waiting for paced message")
		}
		if msg.Content != w {
			t.Fatalf("got %q, want %q (order must be deterministic)", msg.Content, w)
		}
	}
}
