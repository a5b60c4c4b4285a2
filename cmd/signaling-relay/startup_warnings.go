package main

import (
	"log/slog"
	"slices"

	"github.com/Jayvir101/Signaling-Server/internal/config"
	"github.com/Jayvir101/Signaling-Server/internal/origin"
)

func logStartupWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if slices.Contains(cfg.AllowedOrigins, origin.Wildcard) {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (any page may drive the signaling endpoints)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MaxSessions <= 0 && cfg.StoreBackend == config.StoreBackendMemory {
		logger.Warn("startup security warning: MAX_SESSIONS is unset/0 (unlimited) while --mode=prod",
			"warning_code", "max_sessions_unlimited_in_prod",
			"max_sessions", cfg.MaxSessions,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.RateLimitPerSecond <= 0 {
		logger.Warn("startup security warning: rate limiting is disabled while --mode=prod",
			"warning_code", "rate_limit_disabled_in_prod",
			"rate_limit_rps", cfg.RateLimitPerSecond,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.StoreBackend == config.StoreBackendMemory {
		logger.Warn("startup warning: memory store is process-local; run a single replica or use STORE_BACKEND=redis",
			"warning_code", "memory_store_in_prod",
			"store_backend", cfg.StoreBackend,
			"mode", cfg.Mode,
		)
	}

	if cfg.StoreBackend == config.StoreBackendRedis && cfg.MaxSessions > 0 {
		logger.Warn("startup warning: MAX_SESSIONS is not enforced by the redis store",
			"warning_code", "max_sessions_ignored_by_redis",
			"max_sessions", cfg.MaxSessions,
		)
	}

	if cfg.SessionIdleTTL <= 0 {
		logger.Warn("startup warning: SESSION_IDLE_TTL is 0; abandoned sessions are never evicted",
			"warning_code", "session_idle_ttl_disabled",
			"mode", cfg.Mode,
		)
	}

	if cfg.EventsEnabled {
		logger.Warn("startup warning: debug event feed is enabled at /debug/events",
			"warning_code", "debug_events_enabled",
			"mode", cfg.Mode,
		)
	}

	if err := cfg.ICEConfigError(); err != nil {
		logger.Warn("startup warning: ICE server configuration is invalid; /readyz and /webrtc/ice will fail",
			"warning_code", "ice_config_invalid",
			"err", err,
		)
	}
}
