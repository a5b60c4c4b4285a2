package config

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/Jayvir101/Signaling-Server/internal/longpoll"
	"github.com/Jayvir101/Signaling-Server/internal/origin"
)

const (
	envVarListenAddr      = "SIGNALING_RELAY_LISTEN_ADDR"
	envVarPort            = "PORT"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"
	envVarLogFormat       = "SIGNALING_RELAY_LOG_FORMAT"
	envVarLogLevel        = "SIGNALING_RELAY_LOG_LEVEL"
	envVarShutdownTimeout = "SIGNALING_RELAY_SHUTDOWN_TIMEOUT"
	envVarMode            = "SIGNALING_RELAY_MODE"

	// Exchange knobs.
	envVarLongPollTimeout      = "LONG_POLL_TIMEOUT"
	envVarPublisherIDs         = "PUBLISHER_IDS"
	envVarDuplicateWaitPolicy  = "DUPLICATE_WAIT_POLICY"
	envVarClearAbandonedOffers = "CLEAR_ABANDONED_OFFERS"

	// Resource bounds.
	envVarMaxSessions          = "MAX_SESSIONS"
	envVarMaxICEPerQueue       = "MAX_ICE_CANDIDATES_PER_QUEUE"
	envVarSessionIdleTTL       = "SESSION_IDLE_TTL"
	envVarSessionSweepInterval = "SESSION_SWEEP_INTERVAL"
	envVarMaxBodyBytes         = "MAX_SIGNALING_BODY_BYTES"
	envVarMaxSessionIDBytes    = "MAX_SESSION_ID_BYTES"

	// Per-client HTTP rate limiting.
	envVarRateLimitPerSecond  = "RATE_LIMIT_REQUESTS_PER_SECOND"
	envVarRateLimitBurst      = "RATE_LIMIT_BURST"
	envVarRateLimitMaxClients = "RATE_LIMIT_MAX_CLIENTS"

	// Mailbox backend.
	envVarStoreBackend   = "STORE_BACKEND"
	envVarRedisAddr      = "REDIS_ADDR"
	envVarRedisPassword  = "REDIS_PASSWORD"
	envVarRedisDB        = "REDIS_DB"
	envVarRedisKeyPrefix = "REDIS_KEY_PREFIX"

	envVarEventsEnabled = "DEBUG_EVENTS"

	DefaultListenAddr          = ":3001"
	DefaultShutdown            = 15 * time.Second
	DefaultMode                = ModeDev
	DefaultAllowedOrigins      = "*"
	DefaultLongPollTimeout     = 25 * time.Second
	DefaultPublisherIDs        = "cam3"
	DefaultDuplicateWaitPolicy = longpoll.PolicyReplace

	DefaultMaxSessions          = 10000
	DefaultMaxICEPerQueue       = 256
	DefaultSessionIdleTTL       = 5 * time.Minute
	DefaultSessionSweepInterval = 30 * time.Second
	// DefaultMaxBodyBytes leaves room for SDP offers with many media sections.
	DefaultMaxBodyBytes      = int64(256 * 1024)
	DefaultMaxSessionIDBytes = 128

	DefaultRateLimitPerSecond  = 20.0
	DefaultRateLimitBurst      = 40
	DefaultRateLimitMaxClients = 10000

	DefaultStoreBackend   = StoreBackendMemory
	DefaultRedisAddr      = "127.0.0.1:6379"
	DefaultRedisKeyPrefix = "signaling"
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type StoreBackend string

const (
	StoreBackendMemory StoreBackend = "memory"
	StoreBackendRedis  StoreBackend = "redis"
)

type Config struct {
	ListenAddr      string
	AllowedOrigins  []string
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
	Mode            Mode

	// LongPollTimeout bounds every blocking signaling request.
	LongPollTimeout time.Duration
	// PublisherIDs is the allow-list for the publish namespace.
	PublisherIDs         []string
	DuplicateWaitPolicy  longpoll.DuplicatePolicy
	ClearAbandonedOffers bool

	// Resource bounds. Zero disables a bound.
	MaxSessions          int
	MaxICEPerQueue       int
	SessionIdleTTL       time.Duration
	SessionSweepInterval time.Duration
	MaxBodyBytes         int64
	MaxSessionIDBytes    int

	RateLimitPerSecond  float64
	RateLimitBurst      int
	RateLimitMaxClients int

	StoreBackend   StoreBackend
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	EventsEnabled bool

	ICEServers []webrtc.ICEServer
	TURNREST   TURNRESTConfig

	iceConfigErr error
}

func (c Config) ICEConfigError() error {
	return c.iceConfigErr
}

// IsPublisher reports whether id is on the publisher allow-list.
func (c Config) IsPublisher(id string) bool {
	for _, p := range c.PublisherIDs {
		if p == id {
			return true
		}
	}
	return false
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if envMode != "" {
		modeDefault = envMode
	}

	envLogFormat, envLogFormatOK := lookup(envVarLogFormat)
	envLogFormatSet := envLogFormatOK && envLogFormat != ""
	logFormatDefault := envLogFormat
	if !envLogFormatSet {
		logFormatDefault = defaultLogFormatForMode(modeDefault)
	}

	envLogLevel, envLogLevelOK := lookup(envVarLogLevel)
	envLogLevelSet := envLogLevelOK && envLogLevel != ""
	logLevelDefault := envLogLevel
	if !envLogLevelSet {
		logLevelDefault = defaultLogLevelForMode(modeDefault)
	}

	listenAddrDefault := DefaultListenAddr
	if port := strings.TrimSpace(envOrDefault(lookup, envVarPort, "")); port != "" {
		listenAddrDefault = net.JoinHostPort("", port)
	}
	listenAddr := envOrDefault(lookup, envVarListenAddr, listenAddrDefault)
	allowedOriginsStr := envOrDefault(lookup, envVarAllowedOrigins, DefaultAllowedOrigins)
	publisherIDsStr := envOrDefault(lookup, envVarPublisherIDs, DefaultPublisherIDs)
	duplicateWaitPolicyStr := envOrDefault(lookup, envVarDuplicateWaitPolicy, string(DefaultDuplicateWaitPolicy))
	storeBackendStr := envOrDefault(lookup, envVarStoreBackend, string(DefaultStoreBackend))
	redisAddr := envOrDefault(lookup, envVarRedisAddr, DefaultRedisAddr)
	redisPassword := envOrDefault(lookup, envVarRedisPassword, "")
	redisKeyPrefix := envOrDefault(lookup, envVarRedisKeyPrefix, DefaultRedisKeyPrefix)
	iceServersJSON := envOrDefault(lookup, envICEServersJSON, "")
	stunURLs := envOrDefault(lookup, envStunURLs, "")
	turnURLs := envOrDefault(lookup, envTurnURLs, "")
	turnUsername := envOrDefault(lookup, envTurnUsername, "")
	turnCredential := envOrDefault(lookup, envTurnCredential, "")
	turnRESTSecret := envOrDefault(lookup, envTurnRESTSharedSecret, "")
	turnRESTPrefix := envOrDefault(lookup, envTurnRESTUsernamePrefix, DefaultTURNRESTUsernamePrefix)
	turnRESTTTL, err := envIntOrDefault(lookup, envTurnRESTTTLSeconds, DefaultTURNRESTTTLSeconds)
	if err != nil {
		return Config{}, err
	}

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdown)
	if err != nil {
		return Config{}, err
	}
	longPollTimeout, err := envDurationOrDefault(lookup, envVarLongPollTimeout, DefaultLongPollTimeout)
	if err != nil {
		return Config{}, err
	}
	sessionIdleTTL, err := envDurationOrDefault(lookup, envVarSessionIdleTTL, DefaultSessionIdleTTL)
	if err != nil {
		return Config{}, err
	}
	sessionSweepInterval, err := envDurationOrDefault(lookup, envVarSessionSweepInterval, DefaultSessionSweepInterval)
	if err != nil {
		return Config{}, err
	}
	clearAbandonedOffers, err := envBoolOrDefault(lookup, envVarClearAbandonedOffers, false)
	if err != nil {
		return Config{}, err
	}
	eventsEnabled, err := envBoolOrDefault(lookup, envVarEventsEnabled, false)
	if err != nil {
		return Config{}, err
	}

	maxSessions, err := envIntOrDefault(lookup, envVarMaxSessions, DefaultMaxSessions)
	if err != nil {
		return Config{}, err
	}
	maxICEPerQueue, err := envIntOrDefault(lookup, envVarMaxICEPerQueue, DefaultMaxICEPerQueue)
	if err != nil {
		return Config{}, err
	}
	maxSessionIDBytes, err := envIntOrDefault(lookup, envVarMaxSessionIDBytes, DefaultMaxSessionIDBytes)
	if err != nil {
		return Config{}, err
	}
	maxBodyBytes := DefaultMaxBodyBytes
	if raw, ok := lookup(envVarMaxBodyBytes); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarMaxBodyBytes, raw, err)
		}
		maxBodyBytes = n
	}
	rateLimitPerSecond := DefaultRateLimitPerSecond
	if raw, ok := lookup(envVarRateLimitPerSecond); ok && strings.TrimSpace(raw) != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarRateLimitPerSecond, raw, err)
		}
		rateLimitPerSecond = f
	}
	rateLimitBurst, err := envIntOrDefault(lookup, envVarRateLimitBurst, DefaultRateLimitBurst)
	if err != nil {
		return Config{}, err
	}
	rateLimitMaxClients, err := envIntOrDefault(lookup, envVarRateLimitMaxClients, DefaultRateLimitMaxClients)
	if err != nil {
		return Config{}, err
	}
	redisDB, err := envIntOrDefault(lookup, envVarRedisDB, 0)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("signaling-relay", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		modeStr      string
		logFormatStr string
		logLevelStr  string
	)

	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "HTTP listen address (host:port; env "+envVarListenAddr+" or "+envVarPort+")")
	fs.StringVar(&allowedOriginsStr, "allowed-origins", allowedOriginsStr, "Comma-separated list of allowed browser origins, or * (env "+envVarAllowedOrigins+")")
	fs.StringVar(&modeStr, "mode", modeDefault, "Run mode: dev or prod")
	fs.StringVar(&logFormatStr, "log-format", logFormatDefault, "Log format: text or json")
	fs.StringVar(&logLevelStr, "log-level", logLevelDefault, "Log level: debug, info, warn, error")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (e.g. 15s)")

	fs.DurationVar(&longPollTimeout, "long-poll-timeout", longPollTimeout, "Max time a long-poll request waits for data (env "+envVarLongPollTimeout+")")
	fs.StringVar(&publisherIDsStr, "publisher-ids", publisherIDsStr, "Comma-separated session ids allowed in the publish namespace (env "+envVarPublisherIDs+")")
	fs.StringVar(&duplicateWaitPolicyStr, "duplicate-wait-policy", duplicateWaitPolicyStr, "Second wait on a busy slot: replace (newest wins) or reject (env "+envVarDuplicateWaitPolicy+")")
	fs.BoolVar(&clearAbandonedOffers, "clear-abandoned-offers", clearAbandonedOffers, "Remove an offer when its viewer stops waiting without an answer (env "+envVarClearAbandonedOffers+")")

	fs.IntVar(&maxSessions, "max-sessions", maxSessions, "Maximum sessions holding state (0 = unlimited; env "+envVarMaxSessions+")")
	fs.IntVar(&maxICEPerQueue, "max-ice-candidates-per-queue", maxICEPerQueue, "Maximum queued ICE candidates per session and direction (0 = unlimited; env "+envVarMaxICEPerQueue+")")
	fs.DurationVar(&sessionIdleTTL, "session-idle-ttl", sessionIdleTTL, "Evict sessions idle for this long (0 = never; env "+envVarSessionIdleTTL+")")
	fs.DurationVar(&sessionSweepInterval, "session-sweep-interval", sessionSweepInterval, "How often idle sessions are swept (env "+envVarSessionSweepInterval+")")
	fs.Int64Var(&maxBodyBytes, "max-signaling-body-bytes", maxBodyBytes, "Max signaling request body size in bytes (env "+envVarMaxBodyBytes+")")
	fs.IntVar(&maxSessionIDBytes, "max-session-id-bytes", maxSessionIDBytes, "Max session id length in bytes (env "+envVarMaxSessionIDBytes+")")

	fs.Float64Var(&rateLimitPerSecond, "rate-limit-rps", rateLimitPerSecond, "Requests per second per client address (0 = unlimited; env "+envVarRateLimitPerSecond+")")
	fs.IntVar(&rateLimitBurst, "rate-limit-burst", rateLimitBurst, "Request burst per client address (env "+envVarRateLimitBurst+")")
	fs.IntVar(&rateLimitMaxClients, "rate-limit-max-clients", rateLimitMaxClients, "Maximum client addresses tracked by the rate limiter (env "+envVarRateLimitMaxClients+")")

	fs.StringVar(&storeBackendStr, "store-backend", storeBackendStr, "Mailbox backend: memory or redis (env "+envVarStoreBackend+")")
	fs.StringVar(&redisAddr, "redis-addr", redisAddr, "Redis address (env "+envVarRedisAddr+")")
	fs.IntVar(&redisDB, "redis-db", redisDB, "Redis database number (env "+envVarRedisDB+")")
	fs.StringVar(&redisKeyPrefix, "redis-key-prefix", redisKeyPrefix, "Redis key prefix (env "+envVarRedisKeyPrefix+")")

	fs.BoolVar(&eventsEnabled, "debug-events", eventsEnabled, "Serve the exchange event feed at /debug/events (env "+envVarEventsEnabled+")")

	fs.StringVar(&iceServersJSON, "ice-servers-json", iceServersJSON, "ICE server JSON config ("+envICEServersJSON+")")
	fs.StringVar(&stunURLs, "stun-urls", stunURLs, "comma-separated STUN URLs ("+envStunURLs+")")
	fs.StringVar(&turnURLs, "turn-urls", turnURLs, "comma-separated TURN URLs ("+envTurnURLs+")")
	fs.StringVar(&turnUsername, "turn-username", turnUsername, "TURN username ("+envTurnUsername+")")
	fs.StringVar(&turnCredential, "turn-credential", turnCredential, "TURN credential ("+envTurnCredential+")")
	fs.IntVar(&turnRESTTTL, "turn-rest-ttl-seconds", turnRESTTTL, "Lifetime of minted TURN REST credentials ("+envTurnRESTTTLSeconds+")")
	fs.StringVar(&turnRESTPrefix, "turn-rest-username-prefix", turnRESTPrefix, "Username prefix for minted TURN REST credentials ("+envTurnRESTUsernamePrefix+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}

	// A --mode flag without explicit format/level flags or env vars picks the
	// defaults of the selected mode.
	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})
	if !envLogFormatSet && !setFlags["log-format"] {
		logFormatStr = defaultLogFormatForMode(string(mode))
	}
	if !envLogLevelSet && !setFlags["log-level"] {
		logLevelStr = defaultLogLevelForMode(string(mode))
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}
	allowedOrigins, err := parseAllowedOrigins(allowedOriginsStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", envVarAllowedOrigins, err)
	}
	duplicateWaitPolicy, err := longpoll.ParseDuplicatePolicy(strings.ToLower(strings.TrimSpace(duplicateWaitPolicyStr)))
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s %q: %w", envVarDuplicateWaitPolicy, duplicateWaitPolicyStr, err)
	}
	storeBackend, err := parseStoreBackend(storeBackendStr)
	if err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(listenAddr) == "" {
		return Config{}, fmt.Errorf("%s must not be empty", envVarListenAddr)
	}
	if shutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("invalid %s %s (must be > 0)", envVarShutdownTimeout, shutdownTimeout)
	}
	if longPollTimeout <= 0 {
		return Config{}, fmt.Errorf("invalid %s %s (must be > 0)", envVarLongPollTimeout, longPollTimeout)
	}
	if maxSessions < 0 {
		return Config{}, fmt.Errorf("invalid %s %d (must be >= 0)", envVarMaxSessions, maxSessions)
	}
	if maxICEPerQueue < 0 {
		return Config{}, fmt.Errorf("invalid %s %d (must be >= 0)", envVarMaxICEPerQueue, maxICEPerQueue)
	}
	if sessionIdleTTL < 0 {
		return Config{}, fmt.Errorf("invalid %s %s (must be >= 0)", envVarSessionIdleTTL, sessionIdleTTL)
	}
	if sessionIdleTTL > 0 && sessionIdleTTL <= longPollTimeout {
		return Config{}, fmt.Errorf("%s (%s) must exceed %s (%s)", envVarSessionIdleTTL, sessionIdleTTL, envVarLongPollTimeout, longPollTimeout)
	}
	if sessionSweepInterval <= 0 {
		return Config{}, fmt.Errorf("invalid %s %s (must be > 0)", envVarSessionSweepInterval, sessionSweepInterval)
	}
	if maxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("invalid %s %d (must be > 0)", envVarMaxBodyBytes, maxBodyBytes)
	}
	if maxSessionIDBytes <= 0 {
		return Config{}, fmt.Errorf("invalid %s %d (must be > 0)", envVarMaxSessionIDBytes, maxSessionIDBytes)
	}
	if rateLimitPerSecond < 0 {
		return Config{}, fmt.Errorf("invalid %s %v (must be >= 0)", envVarRateLimitPerSecond, rateLimitPerSecond)
	}
	if rateLimitPerSecond > 0 && rateLimitBurst <= 0 {
		return Config{}, fmt.Errorf("invalid %s %d (must be > 0 when rate limiting is enabled)", envVarRateLimitBurst, rateLimitBurst)
	}
	if rateLimitMaxClients <= 0 {
		return Config{}, fmt.Errorf("invalid %s %d (must be > 0)", envVarRateLimitMaxClients, rateLimitMaxClients)
	}
	if storeBackend == StoreBackendRedis && strings.TrimSpace(redisAddr) == "" {
		return Config{}, fmt.Errorf("%s is required when %s=%s", envVarRedisAddr, envVarStoreBackend, StoreBackendRedis)
	}

	cfg := Config{
		ListenAddr:      listenAddr,
		AllowedOrigins:  allowedOrigins,
		LogFormat:       logFormat,
		LogLevel:        level,
		ShutdownTimeout: shutdownTimeout,
		Mode:            mode,

		LongPollTimeout:      longPollTimeout,
		PublisherIDs:         splitCommaSeparated(publisherIDsStr),
		DuplicateWaitPolicy:  duplicateWaitPolicy,
		ClearAbandonedOffers: clearAbandonedOffers,

		MaxSessions:          maxSessions,
		MaxICEPerQueue:       maxICEPerQueue,
		SessionIdleTTL:       sessionIdleTTL,
		SessionSweepInterval: sessionSweepInterval,
		MaxBodyBytes:         maxBodyBytes,
		MaxSessionIDBytes:    maxSessionIDBytes,

		RateLimitPerSecond:  rateLimitPerSecond,
		RateLimitBurst:      rateLimitBurst,
		RateLimitMaxClients: rateLimitMaxClients,

		StoreBackend:   storeBackend,
		RedisAddr:      redisAddr,
		RedisPassword:  redisPassword,
		RedisDB:        redisDB,
		RedisKeyPrefix: redisKeyPrefix,

		EventsEnabled: eventsEnabled,

		TURNREST: TURNRESTConfig{
			SharedSecret:   strings.TrimSpace(turnRESTSecret),
			TTLSeconds:     int64(turnRESTTTL),
			UsernamePrefix: strings.TrimSpace(turnRESTPrefix),
		},
	}

	if cfg.TURNREST.Enabled() {
		if cfg.TURNREST.TTLSeconds <= 0 {
			return Config{}, fmt.Errorf("invalid %s %d (must be > 0)", envTurnRESTTTLSeconds, turnRESTTTL)
		}
		if cfg.TURNREST.UsernamePrefix == "" || strings.Contains(cfg.TURNREST.UsernamePrefix, ":") {
			return Config{}, fmt.Errorf("invalid %s %q (must be non-empty without ':')", envTurnRESTUsernamePrefix, turnRESTPrefix)
		}
	}

	iceServers, err := parseICEServersFromValues(iceServersJSON, stunURLs, turnURLs, turnUsername, turnCredential, cfg.TURNREST.Enabled())
	if err != nil {
		cfg.iceConfigErr = err
	} else {
		cfg.ICEServers = iceServers
	}

	return cfg, nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func envBoolOrDefault(lookup func(string) (string, bool), key string, fallback bool) (bool, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func defaultLogLevelForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return "info"
	default:
		return "debug"
	}
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}

func parseStoreBackend(raw string) (StoreBackend, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(StoreBackendMemory), "":
		return StoreBackendMemory, nil
	case string(StoreBackendRedis):
		return StoreBackendRedis, nil
	default:
		return "", fmt.Errorf("invalid %s %q (expected %s or %s)", envVarStoreBackend, raw, StoreBackendMemory, StoreBackendRedis)
	}
}

func parseAllowedOrigins(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var out []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == "*" {
			out = append(out, entry)
			continue
		}
		normalized, _, ok := origin.NormalizeHeader(entry)
		if !ok {
			return nil, fmt.Errorf("invalid origin %q (expected full origin like https://example.com)", entry)
		}
		out = append(out, normalized)
	}
	return out, nil
}
