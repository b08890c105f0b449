package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Export protocols understood by the tracing exporter factory.
const (
	ExportHTTPJSON     = "http/json"
	ExportHTTPProtobuf = "http/protobuf"
	ExportGRPC         = "grpc"
	ExportLog          = "log"
	ExportNone         = "none"
)

// Pending request policies applied when the transport drops.
const (
	PendingReject = "reject"
	PendingRetry  = "retry"
	PendingLeave  = "leave"
)

// Offline queue backends.
const (
	QueueMemory = "memory"
	QueueRedis  = "redis"
)

// Config holds all node configuration.
type Config struct {
	Service ServiceConfig
	Tracing TracingConfig
	Bridge  BridgeConfig
	Server  ServerConfig
	Logging LogConfig
	Redis   RedisConfig
}

// ServiceConfig identifies this node in spans and messages.
type ServiceConfig struct {
	Name    string `envconfig:"SERVICE_NAME"`
	Version string `envconfig:"SERVICE_VERSION"`
	NodeID  string `envconfig:"NODE_ID"`
}

// TracingConfig holds span buffering, sampling and export settings.
type TracingConfig struct {
	ExportEndpoint   string        `envconfig:"TRACE_EXPORT_ENDPOINT"`
	ExportProtocol   string        `envconfig:"TRACE_EXPORT_PROTOCOL"`
	ExportInterval   time.Duration `envconfig:"TRACE_EXPORT_INTERVAL"`
	ExportTimeout    time.Duration `envconfig:"TRACE_EXPORT_TIMEOUT"`
	ExportGzip       bool          `envconfig:"TRACE_EXPORT_GZIP"`
	MaxBufferedSpans int           `envconfig:"TRACE_MAX_BUFFERED_SPANS"`
	SamplingRate     float64       `envconfig:"TRACE_SAMPLING_RATE"`
}

// BridgeConfig holds connection lifecycle and delivery settings.
type BridgeConfig struct {
	PeerURL               string        `envconfig:"BRIDGE_PEER_URL"`
	ReconnectBaseInterval time.Duration `envconfig:"BRIDGE_RECONNECT_BASE_INTERVAL"`
	MaxReconnectAttempts  int           `envconfig:"BRIDGE_MAX_RECONNECT_ATTEMPTS"`
	HeartbeatInterval     time.Duration `envconfig:"BRIDGE_HEARTBEAT_INTERVAL"`
	MessageTimeout        time.Duration `envconfig:"BRIDGE_MESSAGE_TIMEOUT"`
	MaxRetries            int           `envconfig:"BRIDGE_MAX_RETRIES"`
	OnDisconnectPending   string        `envconfig:"BRIDGE_ON_DISCONNECT_PENDING"`
	QueueBackend          string        `envconfig:"BRIDGE_QUEUE_BACKEND"`
}

// ServerConfig holds the admin HTTP server configuration.
type ServerConfig struct {
	Port             string `envconfig:"PORT"`
	Host             string `envconfig:"HOST"`
	RateLimitRPS     int    `envconfig:"RATE_LIMIT_RPS"`
	RateLimitBurst   int    `envconfig:"RATE_LIMIT_BURST"`
	RateLimitEnabled bool   `envconfig:"RATE_LIMIT_ENABLED"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL"`
	Development bool   `envconfig:"LOG_DEV"`
}

// RedisConfig holds the durable offline queue connection.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB"`
	QueueKey string `envconfig:"REDIS_QUEUE_KEY"`
}

// Load builds configuration from defaults, then CONFIG_FILE (YAML or TOML)
// if set, then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:    "qantum-node",
			Version: "1.0.0",
		},
		Tracing: TracingConfig{
			ExportEndpoint:   "http://localhost:4318/v1/traces",
			ExportProtocol:   ExportHTTPJSON,
			ExportInterval:   5 * time.Second,
			ExportTimeout:    10 * time.Second,
			MaxBufferedSpans: 512,
			SamplingRate:     1.0,
		},
		Bridge: BridgeConfig{
			ReconnectBaseInterval: time.Second,
			MaxReconnectAttempts:  10,
			HeartbeatInterval:     30 * time.Second,
			MessageTimeout:        30 * time.Second,
			MaxRetries:            3,
			OnDisconnectPending:   PendingLeave,
			QueueBackend:          QueueMemory,
		},
		Server: ServerConfig{
			Port:             "8000",
			Host:             "0.0.0.0",
			RateLimitRPS:     100,
			RateLimitBurst:   200,
			RateLimitEnabled: true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			QueueKey: "bridge:offline",
		},
	}
}

// Validate rejects values the core cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("samplingRate must be within [0,1], got %v", c.Tracing.SamplingRate))
	}
	if c.Tracing.MaxBufferedSpans <= 0 {
		errs = append(errs, errors.New("maxBufferedSpans must be positive"))
	}
	if c.Tracing.ExportInterval <= 0 {
		errs = append(errs, errors.New("exportInterval must be positive"))
	}
	if c.Bridge.ReconnectBaseInterval <= 0 {
		errs = append(errs, errors.New("reconnectBaseInterval must be positive"))
	}
	if c.Bridge.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("heartbeatInterval must be positive"))
	}
	if c.Bridge.MessageTimeout <= 0 {
		errs = append(errs, errors.New("messageTimeout must be positive"))
	}
	if c.Bridge.MaxReconnectAttempts < 0 {
		errs = append(errs, errors.New("maxReconnectAttempts must not be negative"))
	}

	switch c.Tracing.ExportProtocol {
	case ExportHTTPJSON, ExportHTTPProtobuf, ExportGRPC, ExportLog, ExportNone:
	default:
		errs = append(errs, fmt.Errorf("unknown export protocol %q", c.Tracing.ExportProtocol))
	}
	switch c.Bridge.OnDisconnectPending {
	case PendingReject, PendingRetry, PendingLeave:
	default:
		errs = append(errs, fmt.Errorf("unknown onDisconnectPendingPolicy %q", c.Bridge.OnDisconnectPending))
	}
	switch c.Bridge.QueueBackend {
	case QueueMemory, QueueRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown queue backend %q", c.Bridge.QueueBackend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
