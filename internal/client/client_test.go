package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRelay is a minimal WebSocket endpoint that hands accepted
// connections to the test for direct control.
func testRelay(t *testing.T) (string, chan *ws.Conn) {
	t.Helper()

	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conns := make(chan *ws.Conn, 4)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn

		// Read pump so close frames and disconnects are noticed.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http"), conns
}

func runClient(t *testing.T, url string) (chan []byte, context.CancelFunc) {
	t.Helper()

	received := make(chan []byte, 16)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	c := New(url, func(payload []byte) {
		received <- payload
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("client did not stop after cancellation")
		}
	})

	return received, cancel
}

func waitForConn(t *testing.T, conns chan *ws.Conn) *ws.Conn {
	t.Helper()

	select {
	case conn := <-conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("client did not connect")
		return nil
	}
}

func waitForMessage(t *testing.T, received chan []byte) string {
	t.Helper()

	select {
	case msg := <-received:
		return string(msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return ""
	}
}

func TestClient_ReceivesMessages(t *testing.T) {
	url, conns := testRelay(t)
	received, _ := runClient(t, url)

	conn := waitForConn(t, conns)
	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte("hello")))
	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte("world")))

	assert.Equal(t, "hello", waitForMessage(t, received))
	assert.Equal(t, "world", waitForMessage(t, received))
}

func TestClient_ReconnectsAfterDisconnect(t *testing.T) {
	url, conns := testRelay(t)
	received, _ := runClient(t, url)

	first := waitForConn(t, conns)
	require.NoError(t, first.WriteMessage(ws.TextMessage, []byte("before")))
	assert.Equal(t, "before", waitForMessage(t, received))

	// Drop the connection server-side; the client must come back.
	require.NoError(t, first.Close())

	second := waitForConn(t, conns)
	require.NoError(t, second.WriteMessage(ws.TextMessage, []byte("after")))
	assert.Equal(t, "after", waitForMessage(t, received))
}

func TestClient_StopsOnContextCancel(t *testing.T) {
	url, conns := testRelay(t)
	_, cancel := runClient(t, url)

	waitForConn(t, conns)
	cancel()
	// Shutdown is verified by the runClient cleanup.
}
