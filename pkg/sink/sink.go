// Package sink defines where correlated records go once the core emits
// them, along with the built-in sink implementations: an append-only JSONL
// file, an in-memory buffer, and an async adapter that decouples sink I/O
// from the capture hot path.
package sink

import "github.com/papercomputeco/splice/pkg/record"

// Sink receives emitted records. Implementations own their persistence
// format; the entry's JSON shape is the only contract.
type Sink interface {
	// Emit writes one record. Emit must not mutate the entry.
	Emit(entry *record.Entry) error

	// Close flushes and releases resources. No Emit calls follow Close.
	Close() error
}
