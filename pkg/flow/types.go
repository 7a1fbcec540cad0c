// Package flow is the conversational engine: keyword-triggered multi-step
// dialog definitions, the per-session dispatcher that advances them, and the
// ordered outbound queue that paces multi-message replies.
package flow

import (
	"context"

	"github.com/camibot/camibot/pkg/bus"
	"github.com/camibot/camibot/pkg/session"
)

type MatchMode int

const (
	// MatchSubstring activates the flow when the inbound text contains any
	// trigger keyword, case-insensitively.
	MatchSubstring MatchMode = iota
	// MatchExact requires the whole (trimmed) inbound text to equal a
	// trigger keyword, case-insensitively.
	MatchExact
)

// Flow is a registered dialog definition: trigger keywords plus an ordered
// sequence of prompt/capture/action steps. Definitions are static after
// startup.
type Flow struct {
	Name     string
	Keywords []string
	Mode     MatchMode
	Steps    []Step
}

// Step is one unit of a dialog. A non-empty Prompt is sent when the step is
// reached. Capture suspends the dialog until the next inbound message, which
// is then fed to Handler. A non-capture step with a Handler is an action
// step executed immediately.
type Step struct {
	Prompt  string
	Buttons []bus.Button
	Capture bool
	Handler HandlerFunc
}

// HandlerFunc runs one step. Errors never escape a handler: anything that
// goes wrong is converted to a user-visible message inside and expressed as
// the returned directive.
type HandlerFunc func(ctx context.Context, sc *StepContext) Directive

type directiveKind int

const (
	directiveNext directiveKind = iota
	directiveRetry
	directiveEnd
	directiveGoto
)

// Directive tells the dispatcher what to do after a step handler ran.
type Directive struct {
	kind directiveKind
	flow string
}

// Next advances to the following step (or ends the flow at the last one).
func Next() Directive { return Directive{kind: directiveNext} }

// Retry re-prompts and waits on the same capture step again.
func Retry() Directive { return Directive{kind: directiveRetry} }

// End abandons the flow immediately.
func End() Directive { return Directive{kind: directiveEnd} }

// Goto ends the current flow and activates the named one from its first step.
func Goto(flowName string) Directive { return Directive{kind: directiveGoto, flow: flowName} }

// IsRetry reports whether the directive asks to stay on the same step.
func (d Directive) IsRetry() bool { return d.kind == directiveRetry }

// StepContext is what a handler gets to work with: the inbound message that
// reached the step, the session store, and paced send helpers.
type StepContext struct {
	SessionKey string
	Message    bus.InboundMessage
	Store      session.Store

	dispatcher *Dispatcher
}

// Send queues one outbound text for this session. Messages queued from one
// handler are delivered in queue order with the configured inter-message
// delay between them.
func (sc *StepContext) Send(text string) {
	sc.SendButtons(text, nil)
}

// SendButtons queues one outbound message with quick-reply buttons.
func (sc *StepContext) SendButtons(text string, buttons []bus.Button) {
	sc.dispatcher.enqueueOutbound(sc.SessionKey, bus.OutboundMessage{
		Channel: sc.Message.Channel,
		ChatID:  sc.Message.ChatID,
		Content: text,
		Buttons: buttons,
	})
}
