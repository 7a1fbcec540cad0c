package flow

import (
	"time"

	"github.com/camibot/camibot/pkg/bus"
)

// outbox is the per-session ordered queue of pending outbound sends. One
// drain goroutine delivers messages in queue order with a fixed delay
// between consecutive sends, so a catalog listing arrives paced and its
// closing summary always lands last. Stop cancels whatever is still queued.
type outbox struct {
	queue chan bus.OutboundMessage
	done  chan struct{}
}

func newOutbox(b *bus.MessageBus, delay time.Duration, buffer int) *outbox {
	if buffer <= 0 {
		buffer = 64
	}
	o := &outbox{
		queue: make(chan bus.OutboundMessage, buffer),
		done:  make(chan struct{}),
	}
	go o.drain(b, delay)
	return o
}

// enqueue blocks when the queue is full; the caller is the session's worker
// goroutine, so backpressure only slows that one session down.
func (o *outbox) enqueue(msg bus.OutboundMessage) {
	select {
	case <-o.done:
	case o.queue <- msg:
	}
}

func (o *outbox) drain(b *bus.MessageBus, delay time.Duration) {
	first := true
	for {
		select {
		case <-o.done:
			return
		case msg := <-o.queue:
			if !first && delay > 0 {
				select {
				case <-o.done:
					return
				case <-time.After(delay):
				}
			}
			first = false
			b.PublishOutbound(msg)
		}
	}
}

func (o *outbox) stop() {
	close(o.done)
}
