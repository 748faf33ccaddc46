package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/version", s.handleVersion)

	// Broadcast trigger (rate limited per client IP)
	s.echo.POST("/api/broadcast", s.handleBroadcast,
		newRateLimiter(float64(s.config.BroadcastRateLimit), s.config.BroadcastBurst))

	// Idempotent status read for polling clients
	s.echo.GET("/api/status", s.handleStatus)

	// Outbound channels
	s.echo.GET("/ws", s.handleWebSocket)
	s.echo.GET("/events", s.handleEvents)
}
