package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	apperrors "github.com/pushrelay/pushrelay/internal/errors"
	"github.com/pushrelay/pushrelay/internal/relay"
	"github.com/pushrelay/pushrelay/internal/transport"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Clients embed the relay from arbitrary origins
	},
}

type broadcastRequest struct {
	Message string `json:"message"`
}

// handleBroadcast accepts a message and fans it out. The response is
// always success regardless of how many channels actually received it;
// per-channel failures only ever remove the failing channel.
func (s *Server) handleBroadcast(c echo.Context) error {
	var req broadcastRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("request body must be a JSON object").WithCause(err)
	}
	if req.Message == "" {
		return apperrors.ValidationError("message must not be empty")
	}

	payload := []byte(req.Message)

	// With Redis configured, every instance (this one included)
	// delivers via its pub/sub subscription. Local dispatch is the
	// fallback when the publish fails, so local clients still get it.
	if s.fanout != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		if err := s.fanout.Publish(ctx, payload); err == nil {
			return c.JSON(http.StatusAccepted, map[string]any{"status": "queued"})
		} else {
			slog.WarnContext(c.Request().Context(), "Fan-out publish failed, delivering locally", "error", err)
		}
	}

	delivered := s.dispatcher.Broadcast(payload)
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "ok",
		"delivered": delivered,
	})
}

// handleWebSocket upgrades the connection and holds it open, silently
// discarding inbound frames until the client disconnects. The channel
// is unregistered on every exit path.
func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return apperrors.ValidationError("failed to upgrade connection").WithCause(err)
	}

	ch := transport.NewWebSocketChannel(conn, s.clock)
	id, err := s.registry.Register(ch)
	if err != nil {
		// The connection is already hijacked; all we can do is close.
		slog.WarnContext(c.Request().Context(), "Rejecting WebSocket client", "error", err)
		ch.Close("server at capacity")
		return nil
	}

	defer func() {
		s.registry.Unregister(id)
		ch.Close("connection closed")
	}()

	// Read pump: inbound traffic is keep-alive only.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	return nil
}

// handleEvents serves a long-lived SSE stream. Each broadcast payload
// is framed as a "data:" event and flushed immediately.
func (s *Server) handleEvents(c echo.Context) error {
	ch := transport.NewSSEChannel(s.config.PushQueueSize)
	id, err := s.registry.Register(ch)
	if err != nil {
		return apperrors.UnavailableError("server at capacity").WithCause(err)
	}

	defer func() {
		s.registry.Unregister(id)
		ch.Close("connection closed")
	}()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch.Done():
			return nil
		case payload := <-ch.Events():
			if err := transport.WriteEvent(res, payload); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

// handleStatus is an idempotent, side-effect-free status read for
// polling clients. Concurrent polls share one computation.
func (s *Server) handleStatus(c echo.Context) error {
	result, err, _ := s.statusGroup.Do("status", func() (any, error) {
		counts := s.registry.Counts()

		status := map[string]any{
			"status":         "ok",
			"uptime_seconds": s.clock.Since(s.startTime).Seconds(),
			"channels": map[string]int{
				string(relay.KindBidirectional): counts[relay.KindBidirectional],
				string(relay.KindPush):          counts[relay.KindPush],
			},
		}

		if s.instances != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			instances, err := s.instances.Instances(ctx)
			if err != nil {
				slog.Warn("Failed to list cluster instances", "error", err)
			} else {
				status["instances"] = instances
			}
		}

		return status, nil
	})
	if err != nil {
		return apperrors.InternalError("failed to collect status").WithCause(err)
	}

	return c.JSON(http.StatusOK, result)
}
