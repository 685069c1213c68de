package credentials

import "time"

// Credentials represents the stored tokens in credentials.toml.
type Credentials struct {
	Version int                   `toml:"version"`
	Agents  map[string]AgentToken `toml:"agents"`
}

// AgentToken holds a bearer token extracted from a single agent CLI.
type AgentToken struct {
	BearerToken string    `toml:"bearer_token"`
	ExtractedAt time.Time `toml:"extracted_at"`
}
