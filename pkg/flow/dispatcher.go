package flow

import (
	"context"
	"sync"
	"time"

	"github.com/camibot/camibot/pkg/bus"
	"github.com/camibot/camibot/pkg/logger"
	"github.com/camibot/camibot/pkg/security"
	"github.com/camibot/camibot/pkg/session"
)

const workerMailboxSize = 32

// metadata key used by the management plane to activate a named flow
// through the regular per-session pipeline.
const metaTriggerFlow = "trigger_flow"

// Responder answers messages no flow matched. Failures are the responder's
// problem: it always returns something sendable.
type Responder interface {
	Respond(ctx context.Context, text string) string
}

// cursor marks the capture step a session's active dialog is suspended on.
// One cursor per session: a dialog never runs concurrently with itself.
type cursor struct {
	flow *Flow
	step int
}

// Dispatcher routes inbound messages to dialog definitions. Messages for
// one session are processed strictly in order by a dedicated worker;
// different sessions interleave freely since they share no state.
type Dispatcher struct {
	registry  *Registry
	store     session.Store
	bus       *bus.MessageBus
	fallback  Responder
	blacklist *security.Blacklist
	delay     time.Duration
	outboxBuf int

	mu       sync.Mutex
	workers  map[string]chan bus.InboundMessage
	outboxes map[string]*outbox
	cursors  map[string]*cursor
	stopped  bool

	wg sync.WaitGroup
}

type Options struct {
	MessageDelay time.Duration
	OutboxBuffer int
}

func NewDispatcher(registry *Registry, store session.Store, msgBus *bus.MessageBus, fallback Responder, blacklist *security.Blacklist, opts Options) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		store:     store,
		bus:       msgBus,
		fallback:  fallback,
		blacklist: blacklist,
		delay:     opts.MessageDelay,
		outboxBuf: opts.OutboxBuffer,
		workers:   make(map[string]chan bus.InboundMessage),
		outboxes:  make(map[string]*outbox),
		cursors:   make(map[string]*cursor),
	}
}

// Run consumes inbound messages until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		msg, ok := d.bus.ConsumeInbound(ctx)
		if !ok {
			d.shutdown()
			return nil
		}
		d.route(ctx, msg)
	}
}

func (d *Dispatcher) route(ctx context.Context, msg bus.InboundMessage) {
	if d.blacklist != nil && (d.blacklist.Contains(msg.SenderID) || d.blacklist.Contains(msg.ChatID)) {
		logger.DebugCF("flow", "Dropping message from blacklisted address", map[string]interface{}{
			"sender_id": msg.SenderID,
		})
		return
	}

	msg.Content = security.SanitizeText(msg.Content)

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	mailbox, ok := d.workers[msg.SessionKey]
	if !ok {
		mailbox = make(chan bus.InboundMessage, workerMailboxSize)
		d.workers[msg.SessionKey] = mailbox
		d.wg.Add(1)
		go d.worker(ctx, mailbox)
	}
	d.mu.Unlock()

	select {
	case mailbox <- msg:
	case <-ctx.Done():
	}
}

// worker drains one session's mailbox, processing each message to completion
// before the next. This is the per-session ordering guarantee.
func (d *Dispatcher) worker(ctx context.Context, mailbox <-chan bus.InboundMessage) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-mailbox:
			d.process(ctx, msg)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, msg bus.InboundMessage) {
	logger.InfoCF("flow", "Processing message", map[string]interface{}{
		"session_key":    msg.SessionKey,
		"channel":        msg.Channel,
		"correlation_id": msg.CorrelationID,
	})

	// Management-plane flow dispatch bypasses trigger matching but not the
	// per-session ordering.
	if name, ok := msg.Metadata[metaTriggerFlow]; ok {
		d.clearCursor(msg.SessionKey)
		if f, found := d.registry.Get(name); found {
			d.runSteps(ctx, f, 0, msg)
		} else {
			logger.WarnCF("flow", "Dispatch requested for unknown flow", map[string]interface{}{"flow": name})
		}
		return
	}

	// A pending capture step owns the session: every reply goes to it, even
	// text that would trigger another dialog.
	if cur := d.currentCursor(msg.SessionKey); cur != nil {
		d.resumeCapture(ctx, cur, msg)
		return
	}

	if f := d.registry.Match(msg.Content); f != nil {
		d.runSteps(ctx, f, 0, msg)
		return
	}

	answer := d.fallback.Respond(ctx, msg.Content)
	d.enqueueOutbound(msg.SessionKey, bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: answer,
	})
}

// resumeCapture feeds a reply to the suspended capture step and applies the
// resulting directive.
func (d *Dispatcher) resumeCapture(ctx context.Context, cur *cursor, msg bus.InboundMessage) {
	step := cur.flow.Steps[cur.step]
	sc := &StepContext{
		SessionKey: msg.SessionKey,
		Message:    msg,
		Store:      d.store,
		dispatcher: d,
	}

	directive := Next()
	if step.Handler != nil {
		directive = step.Handler(ctx, sc)
	}

	switch directive.kind {
	case directiveNext:
		d.clearCursor(msg.SessionKey)
		d.runSteps(ctx, cur.flow, cur.step+1, msg)
	case directiveRetry:
		if step.Prompt != "" {
			sc.SendButtons(step.Prompt, step.Buttons)
		}
		// Cursor stays where it is; the next reply hits the same handler.
	case directiveEnd:
		d.clearCursor(msg.SessionKey)
	case directiveGoto:
		d.clearCursor(msg.SessionKey)
		if next, ok := d.registry.Get(directive.flow); ok {
			d.runSteps(ctx, next, 0, msg)
		} else {
			logger.WarnCF("flow", "Goto to unknown flow", map[string]interface{}{"flow": directive.flow})
		}
	}
}

// runSteps executes a flow from the given step index: prompts are queued,
// action steps run inline, and the first capture step suspends the flow by
// planting a cursor.
func (d *Dispatcher) runSteps(ctx context.Context, f *Flow, from int, msg bus.InboundMessage) {
	for i := from; i < len(f.Steps); i++ {
		step := f.Steps[i]
		sc := &StepContext{
			SessionKey: msg.SessionKey,
			Message:    msg,
			Store:      d.store,
			dispatcher: d,
		}

		if step.Prompt != "" {
			sc.SendButtons(step.Prompt, step.Buttons)
		}

		if step.Capture {
			d.setCursor(msg.SessionKey, &cursor{flow: f, step: i})
			return
		}

		if step.Handler == nil {
			continue
		}
		directive := step.Handler(ctx, sc)
		switch directive.kind {
		case directiveNext:
			continue
		case directiveRetry:
			// Retry on an action step would loop forever; treat as end.
			logger.WarnCF("flow", "Retry directive on non-capture step", map[string]interface{}{
				"flow": f.Name, "step": i,
			})
			return
		case directiveEnd:
			return
		case directiveGoto:
			if next, ok := d.registry.Get(directive.flow); ok {
				d.runSteps(ctx, next, 0, msg)
			} else {
				logger.WarnCF("flow", "Goto to unknown flow", map[string]interface{}{"flow": directive.flow})
			}
			return
		}
	}
}

// TriggerFlow activates a named flow for a session through the normal
// pipeline, preserving per-session ordering. Used by the management plane.
func (d *Dispatcher) TriggerFlow(channel, chatID, name string) bool {
	if _, ok := d.registry.Get(name); !ok {
		return false
	}
	d.bus.PublishInbound(bus.InboundMessage{
		Channel:    channel,
		SenderID:   chatID,
		ChatID:     chatID,
		SessionKey: channel + ":" + chatID,
		Metadata:   map[string]string{metaTriggerFlow: name},
	})
	return true
}

func (d *Dispatcher) enqueueOutbound(sessionKey string, msg bus.OutboundMessage) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	o, ok := d.outboxes[sessionKey]
	if !ok {
		o = newOutbox(d.bus, d.delay, d.outboxBuf)
		d.outboxes[sessionKey] = o
	}
	d.mu.Unlock()

	o.enqueue(msg)
}

func (d *Dispatcher) currentCursor(sessionKey string) *cursor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursors[sessionKey]
}

func (d *Dispatcher) setCursor(sessionKey string, c *cursor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cursors[sessionKey] = c
}

func (d *Dispatcher) clearCursor(sessionKey string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.cursors, sessionKey)
}

// shutdown cancels all pending outbound batches and waits for session
// workers to notice the context cancellation.
func (d *Dispatcher) shutdown() {
	d.mu.Lock()
	d.stopped = true
	outboxes := make([]*outbox, 0, len(d.outboxes))
	for _, o := range d.outboxes {
		outboxes = append(outboxes, o)
	}
	d.mu.Unlock()

	for _, o := range outboxes {
		o.stop()
	}
	d.wg.Wait()
}
