package server

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/pushrelay/pushrelay/internal/cluster"
	"github.com/pushrelay/pushrelay/internal/config"
	apperrors "github.com/pushrelay/pushrelay/internal/errors"
	"github.com/pushrelay/pushrelay/internal/relay"
)

// redisPinger is a minimal interface for Redis health checks.
type redisPinger interface {
	Ping(ctx context.Context) *goredis.StatusCmd
}

type Server struct {
	echo       *echo.Echo
	config     *config.Config
	registry   *relay.Registry
	dispatcher *relay.Dispatcher
	fanout     *cluster.Fanout           // nil when Redis is not configured
	instances  *cluster.InstanceRegistry // nil when Redis is not configured
	clock      clockwork.Clock
	startTime  time.Time

	statusGroup singleflight.Group

	redisClient      *goredis.Client
	redisHealthCheck redisPinger // test override
}

// New creates the HTTP server. fanout, instances and redisClient are
// nil when Redis is not configured; the relay then runs single-instance.
func New(cfg *config.Config, registry *relay.Registry, dispatcher *relay.Dispatcher, fanout *cluster.Fanout, instances *cluster.InstanceRegistry, redisClient *goredis.Client, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(correlationMiddleware)
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:        e,
		config:      cfg,
		registry:    registry,
		dispatcher:  dispatcher,
		fanout:      fanout,
		instances:   instances,
		clock:       clock,
		startTime:   clock.Now(),
		redisClient: redisClient,
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) getRedisHealthChecker() redisPinger {
	if s.redisHealthCheck != nil {
		return s.redisHealthCheck
	}
	if s.redisClient != nil {
		return s.redisClient
	}
	return nil
}
