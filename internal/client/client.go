// Package client implements a reconnecting WebSocket consumer for the
// relay. The relay drops all channels on restart, so clients are
// expected to reconnect at any time; this loop retries with
// exponential backoff and resets the backoff after a healthy session.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pushrelay/pushrelay/internal/retry"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	handshakeWait  = 10 * time.Second
)

// Client consumes broadcast messages from a relay over WebSocket.
type Client struct {
	url       string
	onMessage func(payload []byte)
	dialer    *websocket.Dialer
}

// New creates a client for the given ws:// or wss:// URL. onMessage is
// called for every received message, from the read goroutine.
func New(url string, onMessage func(payload []byte)) *Client {
	dialer := &websocket.Dialer{HandshakeTimeout: handshakeWait}
	return &Client{url: url, onMessage: onMessage, dialer: dialer}
}

// Run connects and consumes messages until ctx is cancelled,
// reconnecting with exponential backoff after every disconnect.
func (c *Client) Run(ctx context.Context) error {
	policy := retry.Policy{
		InitialBackoff: initialBackoff,
		MaxBackoff:     maxBackoff,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Connection attempt failed, retrying",
				"attempt", attempt,
				"backoff", backoff,
				"error", err,
			)
		},
	}

	classify := func(err error) retry.Action {
		if ctx.Err() != nil {
			return retry.Stop
		}
		return retry.Retry
	}

	for {
		conn, err := retry.Do(ctx, policy, classify, func() (*websocket.Conn, error) {
			conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
			if err != nil {
				return nil, fmt.Errorf("dial %s: %w", c.url, err)
			}
			return conn, nil
		})
		if err != nil {
			var permanent *retry.PermanentError
			if errors.As(err, &permanent) && ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		slog.Info("Connected", "url", c.url)
		c.readLoop(ctx, conn)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Info("Disconnected, reconnecting", "url", c.url)
	}
}

// readLoop consumes messages until the connection drops or ctx is
// cancelled. The connection is always closed on return.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	// Close the connection when ctx is cancelled to unblock ReadMessage.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	conn.SetPingHandler(nil) // default handler answers with pongs

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if c.onMessage != nil {
			c.onMessage(payload)
		}
	}
}
