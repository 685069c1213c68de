package sink

import (
	"sync"

	"github.com/papercomputeco/splice/pkg/record"
)

// Memory buffers emitted entries in order. It exists for tests and for the
// report command's in-process folds.
type Memory struct {
	mu      sync.Mutex
	entries []*record.Entry
	closed  bool
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Emit(entry *record.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, entry)
	return nil
}

// Entries returns a snapshot of everything emitted so far.
func (m *Memory) Entries() []*record.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*record.Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// Closed reports whether Close was called, for lifecycle assertions in tests.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}
