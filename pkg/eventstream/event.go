package eventstream

import (
	"time"

	"github.com/papercomputeco/splice/pkg/record"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypePairLogged is emitted after a correlated request/response
	// pair is written to a sink.
	EventTypePairLogged = "splice.pair.logged"
)

// PairLoggedEvent is a transport-neutral event payload for a logged pair.
type PairLoggedEvent struct {
	SchemaVersion int           `json:"schema_version"`
	EventType     string        `json:"event_type"`
	EventID       string        `json:"event_id"`
	EmittedAt     time.Time     `json:"emitted_at"`
	Source        EventSource   `json:"source"`
	Entry         *record.Entry `json:"entry"`
}

// EventSource identifies where the captured traffic originated.
type EventSource struct {
	Project   string `json:"project,omitempty"`
	AgentName string `json:"agent_name,omitempty"`
	Upstream  string `json:"upstream"`
}

// NewPairLogged builds a v1 pair-logged event around entry.
func NewPairLogged(eventID string, source EventSource, entry *record.Entry) *PairLoggedEvent {
	return &PairLoggedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypePairLogged,
		EventID:       eventID,
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		Entry:         entry,
	}
}
