package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pushrelay/pushrelay/internal/cluster"
	"github.com/pushrelay/pushrelay/internal/config"
	"github.com/pushrelay/pushrelay/internal/logging"
	"github.com/pushrelay/pushrelay/internal/redis"
	"github.com/pushrelay/pushrelay/internal/relay"
	"github.com/pushrelay/pushrelay/internal/server"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *server.Server, registry *relay.Registry, cfg *config.Config, cancelBackground context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		registry.DrainAndClose("server shutting down")
		cancelBackground()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "instance_id", cfg.InstanceID)

	registry := relay.NewRegistry(cfg.MaxChannels)
	dispatcher := relay.NewDispatcher(registry, clock)

	// Background loops (pub/sub listener, heartbeats) stop on cancel.
	backgroundCtx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()

	var (
		redisClient       *goredis.Client
		fanout            *cluster.Fanout
		instanceRegistry  *cluster.InstanceRegistry
		backgroundWaiters sync.WaitGroup
	)
	if cfg.RedisURL != "" {
		redisClient = setupRedis(backgroundCtx, cfg)
		defer func() { _ = redisClient.Close() }()

		fanout = cluster.NewFanout(redisClient, dispatcher)
		instanceRegistry = cluster.NewInstanceRegistry(redisClient, cfg.InstanceID, cfg.HeartbeatInterval, clock)

		backgroundWaiters.Add(2)
		go func() {
			defer backgroundWaiters.Done()
			fanout.Listen(backgroundCtx)
		}()
		go func() {
			defer backgroundWaiters.Done()
			instanceRegistry.Start(backgroundCtx)
		}()

		slog.Info("Cross-instance broadcast enabled", "instance_id", cfg.InstanceID)
	}

	srv := server.New(cfg, registry, dispatcher, fanout, instanceRegistry, redisClient, clock)

	done := runGracefulShutdown(srv, registry, cfg, cancelBackground)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	backgroundWaiters.Wait()
}
