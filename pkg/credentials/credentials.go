// Package credentials manages bearer tokens extracted from agent CLIs,
// stored in credentials.toml inside the .splice/ directory.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/splice/pkg/dotdir"
)

const (
	credentialsFile = "credentials.toml"

	currentVersion = 0
)

// Manager manages reading and writing credentials.toml in the .splice/ directory.
type Manager struct {
	ddm        *dotdir.Manager
	targetPath string
}

// NewManager creates a new credentials Manager. If override is non-empty it is
// used as the .splice/ directory; otherwise the standard dotdir resolution applies.
func NewManager(override string) (*Manager, error) {
	mgr := &Manager{ddm: dotdir.NewManager()}

	target, err := mgr.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	mgr.targetPath = filepath.Join(target, credentialsFile)

	return mgr, nil
}

// Load reads credentials.toml from the target directory.
// Returns an empty Credentials if the file does not exist.
func (m *Manager) Load() (*Credentials, error) {
	data, err := os.ReadFile(m.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Credentials{
				Version: currentVersion,
				Agents:  make(map[string]AgentToken),
			}, nil
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	creds := &Credentials{}
	if err := toml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	if creds.Agents == nil {
		creds.Agents = make(map[string]AgentToken)
	}

	return creds, nil
}

// Save writes credentials to credentials.toml with 0600 permissions.
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	if err := os.WriteFile(m.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}

	return nil
}

// SetToken stores an extracted bearer token for the given agent.
func (m *Manager) SetToken(agent, token string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	creds.Agents[agent] = AgentToken{
		BearerToken: token,
		ExtractedAt: time.Now().UTC(),
	}

	return m.Save(creds)
}

// GetToken returns the stored bearer token for the given agent.
// Returns an empty string if no token is stored.
func (m *Manager) GetToken(agent string) (string, error) {
	creds, err := m.Load()
	if err != nil {
		return "", err
	}

	at, ok := creds.Agents[agent]
	if !ok {
		return "", nil
	}

	return at.BearerToken, nil
}

// RemoveToken deletes the stored token for an agent.
func (m *Manager) RemoveToken(agent string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	delete(creds.Agents, agent)

	return m.Save(creds)
}

// ListAgents returns the names of agents that have stored tokens.
func (m *Manager) ListAgents() ([]string, error) {
	creds, err := m.Load()
	if err != nil {
		return nil, err
	}

	agents := make([]string, 0, len(creds.Agents))
	for name := range creds.Agents {
		agents = append(agents, name)
	}

	sort.Strings(agents)

	return agents, nil
}

// GetTarget returns the resolved path to the credentials file.
func (m *Manager) GetTarget() string {
	return m.targetPath
}
