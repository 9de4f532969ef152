package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/eventbus/pkg/observability"
)

// Dispatch defaults
const (
	DefaultThreadPoolSize         = 20
	MinThreadPoolSize             = 2
	DefaultAsyncToSyncThreadRatio = 0.5
	DefaultTimeout                = 5 * time.Second
	// MinTimeout is the watchdog floor: handler timeouts of MinTimeout or
	// less disable the watchdog
	MinTimeout = 100 * time.Millisecond
)

// ErrInvalidConfig is wrapped by every validation error
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Dispatch engine configuration
	Dispatch DispatchConfig

	// Observability configuration
	Observability ObservabilityConfig

	// ConfigFile is an optional YAML file overriding dispatch settings and
	// the log level. It is re-read when it changes.
	ConfigFile string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DispatchConfig holds the engine settings
type DispatchConfig struct {
	// ThreadPoolSize is the size of the sync pool
	ThreadPoolSize int
	// AsyncToSyncThreadRatio sizes the async pool relative to the sync pool
	AsyncToSyncThreadRatio float64
	// Timeout is the per-handler watchdog timeout; 0 disables it
	Timeout time.Duration
	// IgnoreTimeout lists handlers delivered without a watchdog
	IgnoreTimeout []string
	// AsyncDaemon makes shutdown skip waiting for async workers
	AsyncDaemon bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables and the optional
// config file
func LoadConfig() (*Config, error) {
	return LoadEnv().Resolve()
}

// LoadEnv loads configuration from environment variables only, without
// normalizing or validating it
func LoadEnv() Config {
	return Config{
		Server:        loadServerConfig(),
		Dispatch:      loadDispatchConfig(),
		Observability: loadObservabilityConfig(),
		ConfigFile:    getEnv("EVENTBUS_CONFIG_FILE", ""),
	}
}

// Resolve applies the config file, normalizes dispatch settings and
// validates the result. The receiver is left untouched.
func (c Config) Resolve() (*Config, error) {
	cfg := c
	cfg.Dispatch.IgnoreTimeout = append([]string(nil), c.Dispatch.IgnoreTimeout...)

	if cfg.ConfigFile != "" {
		if err := cfg.applyFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	cfg.Dispatch = cfg.Dispatch.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("EVENTBUS_HOST", "0.0.0.0"),
		Port:            getEnv("EVENTBUS_PORT", "8080"),
		ReadTimeout:     getEnvDuration("EVENTBUS_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("EVENTBUS_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("EVENTBUS_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("EVENTBUS_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// loadDispatchConfig loads dispatch configuration from environment
func loadDispatchConfig() DispatchConfig {
	return DispatchConfig{
		ThreadPoolSize:         getEnvInt("EVENTBUS_THREAD_POOL_SIZE", DefaultThreadPoolSize),
		AsyncToSyncThreadRatio: getEnvFloat("EVENTBUS_ASYNC_TO_SYNC_THREAD_RATIO", DefaultAsyncToSyncThreadRatio),
		Timeout:                getEnvDuration("EVENTBUS_TIMEOUT", DefaultTimeout),
		IgnoreTimeout:          getEnvList("EVENTBUS_IGNORE_TIMEOUT"),
		AsyncDaemon:            getEnvBool("EVENTBUS_ASYNC_DAEMON", false),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("EVENTBUS_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("EVENTBUS_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("EVENTBUS_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("EVENTBUS_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("EVENTBUS_OTEL_SERVICE_NAME", "eventbusd"),
		OTelServiceVersion: getEnv("EVENTBUS_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("EVENTBUS_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("EVENTBUS_OTEL_SAMPLE_RATIO", 1),
	}
}

// Normalize applies the fallbacks of the dispatch settings: pool sizes below
// the minimum and negative ratios use the defaults, timeouts of
// MinTimeout or less disable the watchdog.
func (d DispatchConfig) Normalize() DispatchConfig {
	if d.ThreadPoolSize < MinThreadPoolSize {
		d.ThreadPoolSize = DefaultThreadPoolSize
	}
	if d.AsyncToSyncThreadRatio < 0 || math.IsNaN(d.AsyncToSyncThreadRatio) {
		d.AsyncToSyncThreadRatio = DefaultAsyncToSyncThreadRatio
	}
	if d.Timeout <= MinTimeout {
		d.Timeout = 0
	}
	return d
}

// SyncPoolSize returns the size of the sync pool
func (d DispatchConfig) SyncPoolSize() int {
	return d.ThreadPoolSize
}

// AsyncPoolSize returns the size of the async pool: the sync size scaled by
// the ratio for pools above 5 workers, 2 otherwise, and never below 1
func (d DispatchConfig) AsyncPoolSize() int {
	size := 2
	if d.ThreadPoolSize > 5 {
		size = int(math.Floor(float64(d.ThreadPoolSize) * d.AsyncToSyncThreadRatio))
	}
	if size < 1 {
		size = 1
	}
	return size
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("%w: server port is required", ErrInvalidConfig)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: shutdown timeout must not be negative", ErrInvalidConfig)
	}

	if c.Dispatch.ThreadPoolSize < MinThreadPoolSize {
		return fmt.Errorf("%w: thread pool size must be at least %d", ErrInvalidConfig, MinThreadPoolSize)
	}
	if c.Dispatch.AsyncToSyncThreadRatio < 0 {
		return fmt.Errorf("%w: async to sync thread ratio must not be negative", ErrInvalidConfig)
	}
	if c.Dispatch.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("%w: OpenTelemetry endpoint is required when OTel is enabled", ErrInvalidConfig)
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("%w: OpenTelemetry service name is required when OTel is enabled", ErrInvalidConfig)
		}
	}
	if r := c.Observability.OTelSampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("%w: OpenTelemetry sample ratio must be within [0, 1]", ErrInvalidConfig)
	}

	return nil
}

// Fields returns the dispatch settings as log fields
func (d DispatchConfig) Fields() map[string]interface{} {
	return map[string]interface{}{
		"thread_pool_size":           d.ThreadPoolSize,
		"async_pool_size":            d.AsyncPoolSize(),
		"async_to_sync_thread_ratio": d.AsyncToSyncThreadRatio,
		"timeout":                    d.Timeout.String(),
		"ignore_timeout":             strings.Join(d.IgnoreTimeout, ","),
		"async_daemon":               d.AsyncDaemon,
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
// Bare integers are read as milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

// getEnvList returns a comma separated environment variable as a list
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
