package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent splice configuration stored as config.toml
// in the .splice/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Proxy       ProxyConfig       `toml:"proxy"`
	Capture     CaptureConfig     `toml:"capture"`
	Sink        SinkConfig        `toml:"sink"`
	Merge       MergeConfig       `toml:"merge"`
	EventStream EventStreamConfig `toml:"eventstream"`
}

// ProxyConfig holds capture proxy settings.
type ProxyConfig struct {
	Upstream string `toml:"upstream,omitempty"`
	Listen   string `toml:"listen,omitempty"`
}

// CaptureConfig holds correlation and reconstruction settings.
type CaptureConfig struct {
	// TargetPaths are the URL paths whose calls are correlated into pairs.
	TargetPaths []string `toml:"target_paths,omitempty"`

	// EchoHeader is the response header checked against pending request
	// headers as a secondary correlation match.
	EchoHeader string `toml:"echo_header,omitempty"`

	// AuditCap bounds the verbatim delta/ping/error archives kept per
	// reconstructed message.
	AuditCap int `toml:"audit_cap,omitempty"`
}

// SinkConfig holds record sink settings.
type SinkConfig struct {
	// Driver selects the sink backend: jsonl, sqlite, or postgres.
	Driver string `toml:"driver,omitempty"`

	JSONLPath   string `toml:"jsonl_path,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`

	// Workers and QueueSize tune the async sink wrapper.
	Workers   int `toml:"workers,omitempty"`
	QueueSize int `toml:"queue_size,omitempty"`
}

// MergeConfig holds conversation merge settings.
type MergeConfig struct {
	// Equality selects message comparison: strict or structural.
	Equality string `toml:"equality,omitempty"`
}

// EventStreamConfig holds pair event publishing settings.
type EventStreamConfig struct {
	Enabled bool     `toml:"enabled,omitempty"`
	Brokers []string `toml:"brokers,omitempty"`
	Topic   string   `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
// List-valued keys accept comma-separated values.
var configKeys = map[string]configKeyInfo{
	"proxy.upstream": {
		get: func(c *Config) string { return c.Proxy.Upstream },
		set: func(c *Config, v string) error { c.Proxy.Upstream = v; return nil },
	},
	"proxy.listen": {
		get: func(c *Config) string { return c.Proxy.Listen },
		set: func(c *Config, v string) error { c.Proxy.Listen = v; return nil },
	},
	"capture.target_paths": {
		get: func(c *Config) string { return strings.Join(c.Capture.TargetPaths, ",") },
		set: func(c *Config, v string) error { c.Capture.TargetPaths = splitList(v); return nil },
	},
	"capture.echo_header": {
		get: func(c *Config) string { return c.Capture.EchoHeader },
		set: func(c *Config, v string) error { c.Capture.EchoHeader = v; return nil },
	},
	"capture.audit_cap": {
		get: func(c *Config) string {
			if c.Capture.AuditCap == 0 {
				return ""
			}
			return strconv.Itoa(c.Capture.AuditCap)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for capture.audit_cap: %w", err)
			}
			c.Capture.AuditCap = n
			return nil
		},
	},
	"sink.driver": {
		get: func(c *Config) string { return c.Sink.Driver },
		set: func(c *Config, v string) error { c.Sink.Driver = v; return nil },
	},
	"sink.jsonl_path": {
		get: func(c *Config) string { return c.Sink.JSONLPath },
		set: func(c *Config, v string) error { c.Sink.JSONLPath = v; return nil },
	},
	"sink.sqlite_path": {
		get: func(c *Config) string { return c.Sink.SQLitePath },
		set: func(c *Config, v string) error { c.Sink.SQLitePath = v; return nil },
	},
	"sink.postgres_dsn": {
		get: func(c *Config) string { return c.Sink.PostgresDSN },
		set: func(c *Config, v string) error { c.Sink.PostgresDSN = v; return nil },
	},
	"sink.workers": {
		get: func(c *Config) string {
			if c.Sink.Workers == 0 {
				return ""
			}
			return strconv.Itoa(c.Sink.Workers)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for sink.workers: %w", err)
			}
			c.Sink.Workers = n
			return nil
		},
	},
	"sink.queue_size": {
		get: func(c *Config) string {
			if c.Sink.QueueSize == 0 {
				return ""
			}
			return strconv.Itoa(c.Sink.QueueSize)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for sink.queue_size: %w", err)
			}
			c.Sink.QueueSize = n
			return nil
		},
	},
	"merge.equality": {
		get: func(c *Config) string { return c.Merge.Equality },
		set: func(c *Config, v string) error {
			if v != "strict" && v != "structural" {
				return fmt.Errorf("invalid value for merge.equality: %q (want strict or structural)", v)
			}
			c.Merge.Equality = v
			return nil
		},
	},
	"eventstream.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.EventStream.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for eventstream.enabled: %w", err)
			}
			c.EventStream.Enabled = b
			return nil
		},
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.Brokers, ",") },
		set: func(c *Config, v string) error { c.EventStream.Brokers = splitList(v); return nil },
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
}

// splitList splits a comma-separated value into trimmed non-empty elements.
func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
