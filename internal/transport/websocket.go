package transport

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/pushrelay/pushrelay/internal/metrics"
	"github.com/pushrelay/pushrelay/internal/relay"
)

const (
	writeDeadline  = 5 * time.Second
	pingInterval   = 30 * time.Second
	pongDeadline   = 60 * time.Second
	sendBufferSize = 16
)

var (
	// ErrChannelClosed means the channel is no longer deliverable.
	ErrChannelClosed = errors.New("channel closed")
	// ErrSendBufferFull means the client is not draining its send queue.
	ErrSendBufferFull = errors.New("send buffer full")
)

// WebSocketChannel adapts a gorilla/websocket connection to the relay
// Channel interface. A dedicated writer goroutine owns all writes to
// the connection: Deliver enqueues onto a bounded send channel and
// fails fast when the client falls behind.
type WebSocketChannel struct {
	conn     *websocket.Conn
	clock    clockwork.Clock
	sendCh   chan []byte
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	state    atomic.Int32
}

// NewWebSocketChannel wraps an upgraded connection and starts its
// writer goroutine. The channel is open on return.
func NewWebSocketChannel(conn *websocket.Conn, clock clockwork.Clock) *WebSocketChannel {
	ch := &WebSocketChannel{
		conn:   conn,
		clock:  clock,
		sendCh: make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
	ch.state.Store(int32(relay.StateConnecting))
	ch.configurePongHandler()
	ch.state.Store(int32(relay.StateOpen))
	ch.wg.Add(1)
	go ch.run()
	return ch
}

func (ch *WebSocketChannel) Kind() relay.Kind { return relay.KindBidirectional }

func (ch *WebSocketChannel) State() relay.State { return relay.State(ch.state.Load()) }

// Deliver enqueues payload for the writer goroutine. It never blocks:
// a full send buffer or a closed channel is a delivery failure.
func (ch *WebSocketChannel) Deliver(payload []byte) error {
	if ch.State() != relay.StateOpen {
		return ErrChannelClosed
	}

	select {
	case ch.sendCh <- payload:
		return nil
	case <-ch.done:
		return ErrChannelClosed
	default:
		return fmt.Errorf("%w: %d messages pending", ErrSendBufferFull, cap(ch.sendCh))
	}
}

// Close sends a close frame with the given reason and tears the
// connection down. Safe to call multiple times and concurrently with
// the writer goroutine.
func (ch *WebSocketChannel) Close(reason string) {
	ch.stopOnce.Do(func() {
		ch.state.Store(int32(relay.StateClosing))

		// Signal the writer goroutine and wait for it to exit before
		// writing the close frame: the connection allows one writer.
		close(ch.done)
		ch.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		ch.updateWriteDeadline()
		_ = ch.conn.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = ch.conn.Close()

		ch.state.Store(int32(relay.StateClosed))
	})
}

func (ch *WebSocketChannel) run() {
	defer ch.wg.Done()
	defer ch.markBroken()

	ticker := ch.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-ch.sendCh:
			start := ch.clock.Now()
			ch.updateWriteDeadline()
			if err := ch.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			metrics.WebSocketMessageSendDuration.Observe(ch.clock.Since(start).Seconds())
		case <-ticker.Chan():
			ch.updateWriteDeadline()
			if err := ch.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				metrics.WebSocketPingFailures.Inc()
				return
			}
		case <-ch.done:
			return
		}
	}
}

// markBroken flips an open channel to closed when the writer exits on a
// write error, so Deliver stops accepting and the dispatcher evicts it.
func (ch *WebSocketChannel) markBroken() {
	ch.state.CompareAndSwap(int32(relay.StateOpen), int32(relay.StateClosed))
}

func (ch *WebSocketChannel) configurePongHandler() {
	ch.updateReadDeadline()
	ch.conn.SetPongHandler(func(string) error {
		ch.updateReadDeadline()
		return nil
	})
}

func (ch *WebSocketChannel) updateWriteDeadline() {
	_ = ch.conn.SetWriteDeadline(ch.clock.Now().Add(writeDeadline))
}

func (ch *WebSocketChannel) updateReadDeadline() {
	_ = ch.conn.SetReadDeadline(ch.clock.Now().Add(pongDeadline))
}
