package config

const (
	defaultUpstream    = "https://api.anthropic.com"
	defaultProxyListen = ":8484"

	defaultEchoHeader = "request-id"
	defaultAuditCap   = 256

	defaultSinkDriver = "jsonl"
	defaultJSONLPath  = "capture.jsonl"
	defaultWorkers    = 3
	defaultQueueSize  = 256

	defaultEquality = "strict"

	defaultTopic = "splice.pairs"
)

// defaultTargetPaths returns the paths correlated into pairs by default.
func defaultTargetPaths() []string {
	return []string{"/v1/messages"}
}

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Proxy: ProxyConfig{
			Upstream: defaultUpstream,
			Listen:   defaultProxyListen,
		},
		Capture: CaptureConfig{
			TargetPaths: defaultTargetPaths(),
			EchoHeader:  defaultEchoHeader,
			AuditCap:    defaultAuditCap,
		},
		Sink: SinkConfig{
			Driver:    defaultSinkDriver,
			JSONLPath: defaultJSONLPath,
			Workers:   defaultWorkers,
			QueueSize: defaultQueueSize,
		},
		Merge: MergeConfig{
			Equality: defaultEquality,
		},
		EventStream: EventStreamConfig{
			Enabled: false,
			Topic:   defaultTopic,
		},
	}
}
