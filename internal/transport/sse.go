package transport

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pushrelay/pushrelay/internal/metrics"
	"github.com/pushrelay/pushrelay/internal/relay"
)

// SSEChannel is the push-only transport: a bounded delivery queue that
// the owning HTTP handler drains and streams to the client as
// Server-Sent Events. When the queue is full the oldest event is
// dropped in favor of the new one, so a stalled client bounds memory
// instead of growing an unbounded backlog.
type SSEChannel struct {
	queue     chan []byte
	done      chan struct{}
	mu        sync.Mutex
	closeOnce sync.Once
	state     atomic.Int32
}

// NewSSEChannel creates an open push channel with the given queue size.
// queueSize must be at least 1.
func NewSSEChannel(queueSize int) *SSEChannel {
	if queueSize < 1 {
		queueSize = 1
	}
	ch := &SSEChannel{
		queue: make(chan []byte, queueSize),
		done:  make(chan struct{}),
	}
	ch.state.Store(int32(relay.StateOpen))
	return ch
}

func (ch *SSEChannel) Kind() relay.Kind { return relay.KindPush }

func (ch *SSEChannel) State() relay.State { return relay.State(ch.state.Load()) }

// Deliver enqueues payload without blocking. A full queue evicts the
// oldest pending event. Only a closed channel fails delivery.
func (ch *SSEChannel) Deliver(payload []byte) error {
	if ch.State() != relay.StateOpen {
		return ErrChannelClosed
	}

	// The mutex serializes producers so drop-oldest keeps FIFO order.
	ch.mu.Lock()
	defer ch.mu.Unlock()

	select {
	case ch.queue <- payload:
		return nil
	default:
	}

	select {
	case <-ch.queue:
		metrics.DroppedEventsTotal.Inc()
	default:
		// Consumer drained the queue between the two selects.
	}
	ch.queue <- payload
	return nil
}

// Events returns the delivery queue for the owning handler to drain.
func (ch *SSEChannel) Events() <-chan []byte { return ch.queue }

// Done is closed when the channel is closed.
func (ch *SSEChannel) Done() <-chan struct{} { return ch.done }

// Close marks the channel closed and wakes the owning handler. The
// reason is unused: an SSE stream has no close frame to carry it.
func (ch *SSEChannel) Close(string) {
	ch.closeOnce.Do(func() {
		ch.state.Store(int32(relay.StateClosed))
		close(ch.done)
	})
}

// WriteEvent writes payload as one SSE event: each payload line becomes
// a "data:" line, terminated by a blank line. A standard SSE parser
// joins the data lines with newlines, reconstructing the payload
// exactly.
func WriteEvent(w io.Writer, payload []byte) error {
	for _, line := range bytes.Split(payload, []byte("\n")) {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}
