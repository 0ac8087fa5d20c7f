package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel        string
	LogFormat       string // "json" or "console"
	HTTPPort        string
	AuditBufferSize int

	// Brokers
	BrokersFile             string
	Brokers                 []BrokerConfig
	BrokerCallTimeout       time.Duration
	BrokerProbeInterval     time.Duration
	BreakerFailureThreshold int
	BreakerCooldown         time.Duration

	// Market data stream
	FeedWSURL          string
	FeedInstruments    []string
	WSDialTimeout      time.Duration
	WSPongTimeout      time.Duration
	WSPingInterval     time.Duration
	WSReconnectMaxWait time.Duration
	WSMaxFailures      int
	WSCooldown         time.Duration
	FeedStaleAfter     time.Duration
	FeedCheckInterval  time.Duration
	FeedTickTTL        time.Duration
	CacheNumCounters   int64
	CacheMaxCost       int64

	// Order queue
	QueueRegularLimit  int
	QueueRegularWindow time.Duration
	QueueSmartInterval time.Duration

	// Execution gate
	ExecutionMode     string // "DRY_RUN" or "LIVE"
	ExecutionEnabled  bool
	GateFreshness     time.Duration
	GateDriftBps      float64
	GateIndexDriftBps float64
	GateIndexSymbols  []string
	GateFeedScope     string // "symbol" or "global"
	GateMaxQuantity   int64
	GateMaxNotional   float64

	// Account risk
	RiskMaxQuantity int64
	RiskMaxNotional float64
	RiskBlocklist   []string

	// Storage
	StorageMode  string // "console", "postgres" or "sqlite"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
	SQLitePath   string
}

// LoadDotEnv loads variables from a .env file when one exists. Variables
// already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	err := godotenv.Load(existing...)
	if err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		// Application defaults
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       getEnvOrDefault("LOG_FORMAT", "json"),
		HTTPPort:        getEnvOrDefault("HTTP_PORT", "8080"),
		AuditBufferSize: getIntOrDefault("AUDIT_BUFFER_SIZE", 1024),

		// Broker defaults
		BrokersFile:             os.Getenv("BROKERS_FILE"),
		BrokerCallTimeout:       getDurationOrDefault("BROKER_CALL_TIMEOUT", 5*time.Second),
		BrokerProbeInterval:     getDurationOrDefault("BROKER_PROBE_INTERVAL", 30*time.Second),
		BreakerFailureThreshold: getIntOrDefault("BREAKER_FAILURE_THRESHOLD", 3),
		BreakerCooldown:         getDurationOrDefault("BREAKER_COOLDOWN", 60*time.Second),

		// Market data defaults
		FeedWSURL:          getEnvOrDefault("FEED_WS_URL", "ws://localhost:9000/ticks"),
		FeedInstruments:    getListOrDefault("FEED_INSTRUMENTS", nil),
		WSDialTimeout:      getDurationOrDefault("WS_DIAL_TIMEOUT", 10*time.Second),
		WSPongTimeout:      getDurationOrDefault("WS_PONG_TIMEOUT", 30*time.Second),
		WSPingInterval:     getDurationOrDefault("WS_PING_INTERVAL", 15*time.Second),
		WSReconnectMaxWait: getDurationOrDefault("WS_RECONNECT_MAX_WAIT", 60*time.Second),
		WSMaxFailures:      getIntOrDefault("WS_MAX_FAILURES", 5),
		WSCooldown:         getDurationOrDefault("WS_COOLDOWN", 5*time.Minute),
		FeedStaleAfter:     getDurationOrDefault("FEED_STALE_AFTER", 15*time.Second),
		FeedCheckInterval:  getDurationOrDefault("FEED_CHECK_INTERVAL", 5*time.Second),
		FeedTickTTL:        getDurationOrDefault("FEED_TICK_TTL", 30*time.Second),
		CacheNumCounters:   int64(getIntOrDefault("CACHE_NUM_COUNTERS", 100_000)),
		CacheMaxCost:       int64(getIntOrDefault("CACHE_MAX_COST", 10_000)),

		// Queue defaults
		QueueRegularLimit:  getIntOrDefault("QUEUE_REGULAR_LIMIT", 10),
		QueueRegularWindow: getDurationOrDefault("QUEUE_REGULAR_WINDOW", time.Second),
		QueueSmartInterval: getDurationOrDefault("QUEUE_SMART_INTERVAL", time.Second),

		// Gate defaults
		ExecutionMode:     strings.ToUpper(getEnvOrDefault("EXECUTION_MODE", "DRY_RUN")),
		ExecutionEnabled:  getBoolOrDefault("EXECUTION_ENABLED", true),
		GateFreshness:     getDurationOrDefault("GATE_FRESHNESS", 5*time.Second),
		GateDriftBps:      getFloat64OrDefault("GATE_DRIFT_BPS", 10),
		GateIndexDriftBps: getFloat64OrDefault("GATE_INDEX_DRIFT_BPS", 5),
		GateIndexSymbols:  getListOrDefault("GATE_INDEX_SYMBOLS", []string{"NIFTY", "BANKNIFTY", "FINNIFTY", "SENSEX"}),
		GateFeedScope:     strings.ToLower(getEnvOrDefault("GATE_FEED_SCOPE", "symbol")),
		GateMaxQuantity:   int64(getIntOrDefault("GATE_MAX_QUANTITY", 0)),
		GateMaxNotional:   getFloat64OrDefault("GATE_MAX_NOTIONAL", 0),

		// Risk defaults
		RiskMaxQuantity: int64(getIntOrDefault("RISK_MAX_QUANTITY", 0)),
		RiskMaxNotional: getFloat64OrDefault("RISK_MAX_NOTIONAL", 0),
		RiskBlocklist:   getListOrDefault("RISK_BLOCKLIST", nil),

		// Storage defaults
		StorageMode:  getEnvOrDefault("STORAGE_MODE", "console"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "execgw"),
		PostgresPass: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "execution_gateway"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		SQLitePath:   getEnvOrDefault("SQLITE_PATH", "execution-gateway.db"),
	}

	if cfg.BrokersFile != "" {
		brokers, err := LoadBrokers(cfg.BrokersFile)
		if err != nil {
			return nil, fmt.Errorf("load brokers: %w", err)
		}
		cfg.Brokers = brokers
	} else {
		cfg.Brokers = DefaultBrokers()
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.FeedWSURL == "" {
		return fmt.Errorf("FEED_WS_URL cannot be empty")
	}

	if c.ExecutionMode != "DRY_RUN" && c.ExecutionMode != "LIVE" {
		return fmt.Errorf("EXECUTION_MODE must be 'DRY_RUN' or 'LIVE', got %q", c.ExecutionMode)
	}

	if c.GateFeedScope != "symbol" && c.GateFeedScope != "global" {
		return fmt.Errorf("GATE_FEED_SCOPE must be 'symbol' or 'global', got %q", c.GateFeedScope)
	}

	if c.GateDriftBps <= 0 || c.GateIndexDriftBps <= 0 {
		return fmt.Errorf("drift thresholds must be positive")
	}

	if c.BreakerFailureThreshold <= 0 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be positive, got %d", c.BreakerFailureThreshold)
	}

	if c.QueueRegularLimit <= 0 {
		return fmt.Errorf("QUEUE_REGULAR_LIMIT must be positive, got %d", c.QueueRegularLimit)
	}

	switch c.StorageMode {
	case "console", "postgres", "sqlite":
	default:
		return fmt.Errorf("STORAGE_MODE must be 'console', 'postgres' or 'sqlite', got %q", c.StorageMode)
	}

	if len(c.Brokers) == 0 {
		return fmt.Errorf("at least one broker must be configured")
	}

	return validateBrokers(c.Brokers)
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

// getListOrDefault splits a comma-separated variable, dropping blanks.
func getListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
