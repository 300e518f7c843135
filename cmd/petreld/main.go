// Command petreld runs the petrel control-plane server: HTTP API, WebSocket
// fan-out, credit ledger and liveness tracking.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/petrel-net/petrel/internal/api"
	"github.com/petrel-net/petrel/internal/config"
	"github.com/petrel-net/petrel/internal/domain"
	"github.com/petrel-net/petrel/internal/hub"
	"github.com/petrel-net/petrel/internal/ledger"
	"github.com/petrel-net/petrel/internal/policy"
	"github.com/petrel-net/petrel/internal/protocol"
	"github.com/petrel-net/petrel/internal/ratelimit"
	"github.com/petrel-net/petrel/internal/reaper"
	"github.com/petrel-net/petrel/internal/registry"
	"github.com/petrel-net/petrel/internal/store"
	"github.com/petrel-net/petrel/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "petreld:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.NewSQLiteStore(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	led := ledger.New(log, ledger.WithJournal(db))
	reg := registry.New(log)
	connections := hub.NewRegistry(log)
	broadcaster := hub.NewBroadcaster(connections, log)

	limiterOpts := []ratelimit.Option{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		limiterOpts = append(limiterOpts, ratelimit.WithStats(ratelimit.NewRedisStats(rdb)))
		log.Info().Str("addr", cfg.RedisAddr).Msg("redis stats sink enabled")
	}
	limiter := ratelimit.New(log, limiterOpts...)
	limiter.StartJanitor(ctx, 5*time.Minute, 30*time.Minute)

	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		return fmt.Errorf("compile policy: %w", err)
	}

	handler := api.NewHandler(reg, led, limiter, broadcaster, connections, engine, db, cfg, log)

	sweeper := reaper.New(reg, broadcaster, cfg.SweepInterval, map[domain.EntityKind]time.Duration{
		domain.KindNode:  cfg.NodeTTL,
		domain.KindAgent: cfg.AgentTTL,
	}, log)
	go sweeper.Run(ctx)
	go metricsLoop(ctx, cfg.MetricsInterval, handler, broadcaster)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	handler.RegisterRoutes(e)
	wsServer := ws.NewServer(cfg, connections, broadcaster, handler.StateSnapshot, reg, log)
	e.GET("/api/v1/ws", wsServer.HandleWebSocket)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		log.Info().Str("addr", addr).Msg("petreld listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// metricsLoop broadcasts a metrics_update snapshot to the metrics channel on
// a fixed interval.
func metricsLoop(ctx context.Context, interval time.Duration, h *api.Handler, b *hub.Broadcaster) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.Broadcast("metrics", protocol.Event("metrics_update", map[string]any{
				"data": h.StateSnapshot(),
			}))
		}
	}
}
