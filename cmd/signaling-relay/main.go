package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Jayvir101/Signaling-Server/internal/config"
	"github.com/Jayvir101/Signaling-Server/internal/events"
	"github.com/Jayvir101/Signaling-Server/internal/exchange"
	"github.com/Jayvir101/Signaling-Server/internal/httpserver"
	"github.com/Jayvir101/Signaling-Server/internal/longpoll"
	"github.com/Jayvir101/Signaling-Server/internal/mailbox"
	"github.com/Jayvir101/Signaling-Server/internal/metrics"
	"github.com/Jayvir101/Signaling-Server/internal/origin"
	"github.com/Jayvir101/Signaling-Server/internal/ratelimit"
	"github.com/Jayvir101/Signaling-Server/internal/signaling"
)

const redisDialTimeout = 5 * time.Second

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting signaling-relay",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"store_backend", cfg.StoreBackend,
		"long_poll_timeout", cfg.LongPollTimeout,
		"duplicate_wait_policy", cfg.DuplicateWaitPolicy,
		"publisher_ids", cfg.PublisherIDs,
		"max_sessions", cfg.MaxSessions,
		"max_ice_candidates_per_queue", cfg.MaxICEPerQueue,
		"session_idle_ttl", cfg.SessionIdleTTL,
		"rate_limit_rps", cfg.RateLimitPerSecond,
		"debug_events", cfg.EventsEnabled,
		"turn_rest_enabled", cfg.TURNREST.Enabled(),
	)

	logStartupWarnings(logger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	store, closeStore, err := openStore(ctx, cfg, m, logger)
	if err != nil {
		logger.Error("failed to open mailbox store", "backend", cfg.StoreBackend, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	commit, built := resolveBuildInfo(buildCommit, buildTime)
	srv := httpserver.New(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: built})

	if rs, ok := store.(*mailbox.RedisStore); ok {
		srv.AddReadinessCheck("redis", rs.Ping)
	}

	exCfg := exchange.Config{
		Store:                store,
		Coordinator:          longpoll.New(cfg.DuplicateWaitPolicy),
		LongPollTimeout:      cfg.LongPollTimeout,
		ClearAbandonedOffers: cfg.ClearAbandonedOffers,
		Metrics:              m,
		Logger:               logger,
	}

	var hub *events.Hub
	if cfg.EventsEnabled {
		hub = events.NewHub(events.HubOptions{
			Logger:  logger,
			Metrics: m,
			CheckOrigin: func(r *http.Request) bool {
				_, ok := origin.CheckRequest(r, cfg.AllowedOrigins)
				return ok
			},
		})
		exCfg.Events = hub
		srv.Mux().Handle("GET /debug/events", hub)
	}
	ex := exchange.New(exCfg)

	limiter := ratelimit.New(ratelimit.Config{
		PerSecond:  cfg.RateLimitPerSecond,
		Burst:      cfg.RateLimitBurst,
		MaxClients: cfg.RateLimitMaxClients,
		OnEvict:    func() { m.Inc(metrics.RateLimitClientsEvicted) },
	})

	sig := signaling.NewServer(signaling.Config{
		Exchange:          ex,
		PublisherIDs:      cfg.PublisherIDs,
		Limiter:           limiter,
		MaxBodyBytes:      cfg.MaxBodyBytes,
		MaxSessionIDBytes: cfg.MaxSessionIDBytes,
		Metrics:           m,
		Logger:            logger,
	})
	sig.RegisterRoutes(srv.Mux())

	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(m, runtimeGauges(ex, store, limiter, hub)...))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if hub != nil {
			hub.Close()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	// Hijacked WebSocket connections are not tracked by Shutdown.
	if hub != nil {
		hub.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

// openStore builds the configured mailbox backend. The memory store's
// sweeper runs until ctx is done.
func openStore(ctx context.Context, cfg config.Config, m *metrics.Metrics, logger *slog.Logger) (mailbox.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreBackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("ping redis at %s: %w", cfg.RedisAddr, err)
		}
		store := mailbox.NewRedisStore(rdb, mailbox.RedisConfig{
			Prefix:      cfg.RedisKeyPrefix,
			MaxQueueLen: cfg.MaxICEPerQueue,
			IdleTTL:     cfg.SessionIdleTTL,
		})
		return store, func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("redis close failed", "err", err)
			}
		}, nil
	default:
		store := mailbox.NewMemoryStore(mailbox.MemoryConfig{
			MaxSessions: cfg.MaxSessions,
			MaxQueueLen: cfg.MaxICEPerQueue,
			IdleTTL:     cfg.SessionIdleTTL,
		})
		if cfg.SessionIdleTTL > 0 && cfg.SessionSweepInterval > 0 {
			go store.RunSweeper(ctx, cfg.SessionSweepInterval, func(n int) {
				m.Add(metrics.SessionsEvicted, uint64(n))
				logger.Debug("evicted idle sessions", "count", n)
			})
		}
		return store, func() {}, nil
	}
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// ldflags values win; go run and dev builds fall back to VCS stamps.
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}
