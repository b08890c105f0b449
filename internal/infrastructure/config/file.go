package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// fileConfig is the on-disk layout. Keys use the option names shared with
// other implementations of the bridge (camelCase, intervals in ms). Pointer
// fields distinguish "absent" from a meaningful zero.
type fileConfig struct {
	ServiceName    string `yaml:"serviceName" toml:"serviceName"`
	ServiceVersion string `yaml:"serviceVersion" toml:"serviceVersion"`
	NodeID         string `yaml:"nodeId" toml:"nodeId"`

	ExportEndpoint   string   `yaml:"exportEndpoint" toml:"exportEndpoint"`
	ExportProtocol   string   `yaml:"exportProtocol" toml:"exportProtocol"`
	ExportIntervalMs *int64   `yaml:"exportIntervalMs" toml:"exportIntervalMs"`
	ExportTimeoutMs  *int64   `yaml:"exportTimeoutMs" toml:"exportTimeoutMs"`
	ExportGzip       *bool    `yaml:"exportGzip" toml:"exportGzip"`
	MaxBufferedSpans *int     `yaml:"maxBufferedSpans" toml:"maxBufferedSpans"`
	SamplingRate     *float64 `yaml:"samplingRate" toml:"samplingRate"`

	PeerURL                   string `yaml:"peerUrl" toml:"peerUrl"`
	ReconnectBaseIntervalMs   *int64 `yaml:"reconnectBaseIntervalMs" toml:"reconnectBaseIntervalMs"`
	MaxReconnectAttempts      *int   `yaml:"maxReconnectAttempts" toml:"maxReconnectAttempts"`
	HeartbeatIntervalMs       *int64 `yaml:"heartbeatIntervalMs" toml:"heartbeatIntervalMs"`
	MessageTimeoutMs          *int64 `yaml:"messageTimeoutMs" toml:"messageTimeoutMs"`
	MaxRetries                *int   `yaml:"maxRetries" toml:"maxRetries"`
	OnDisconnectPendingPolicy string `yaml:"onDisconnectPendingPolicy" toml:"onDisconnectPendingPolicy"`
	QueueBackend              string `yaml:"queueBackend" toml:"queueBackend"`
}

// ApplyFile overlays a YAML (.yaml/.yml) or TOML (.toml) file onto c.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	case ".toml":
		err = toml.Unmarshal(data, &fc)
	default:
		return fmt.Errorf("unsupported config file extension %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	fc.applyTo(c)
	return nil
}

func (fc *fileConfig) applyTo(c *Config) {
	setString(&c.Service.Name, fc.ServiceName)
	setString(&c.Service.Version, fc.ServiceVersion)
	setString(&c.Service.NodeID, fc.NodeID)

	setString(&c.Tracing.ExportEndpoint, fc.ExportEndpoint)
	setString(&c.Tracing.ExportProtocol, fc.ExportProtocol)
	setMillis(&c.Tracing.ExportInterval, fc.ExportIntervalMs)
	setMillis(&c.Tracing.ExportTimeout, fc.ExportTimeoutMs)
	if fc.ExportGzip != nil {
		c.Tracing.ExportGzip = *fc.ExportGzip
	}
	if fc.MaxBufferedSpans != nil {
		c.Tracing.MaxBufferedSpans = *fc.MaxBufferedSpans
	}
	if fc.SamplingRate != nil {
		c.Tracing.SamplingRate = *fc.SamplingRate
	}

	setString(&c.Bridge.PeerURL, fc.PeerURL)
	setMillis(&c.Bridge.ReconnectBaseInterval, fc.ReconnectBaseIntervalMs)
	setMillis(&c.Bridge.HeartbeatInterval, fc.HeartbeatIntervalMs)
	setMillis(&c.Bridge.MessageTimeout, fc.MessageTimeoutMs)
	if fc.MaxReconnectAttempts != nil {
		c.Bridge.MaxReconnectAttempts = *fc.MaxReconnectAttempts
	}
	if fc.MaxRetries != nil {
		c.Bridge.MaxRetries = *fc.MaxRetries
	}
	setString(&c.Bridge.OnDisconnectPending, fc.OnDisconnectPendingPolicy)
	setString(&c.Bridge.QueueBackend, fc.QueueBackend)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setMillis(dst *time.Duration, ms *int64) {
	if ms != nil {
		*dst = time.Duration(*ms) * time.Millisecond
	}
}
