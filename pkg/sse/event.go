// Package sse parses SSE (Server-Sent Events) bodies as produced by
// streaming LLM APIs. It offers two entry points: Parse, which turns a
// complete captured body into an ordered event sequence, and TeeReader,
// which parses events from a live upstream stream while forwarding the raw
// bytes verbatim to a downstream client.
//
// Parsing is total: malformed data payloads are retained as raw strings
// rather than reported as errors, so every blank-line-delimited group with
// at least one recognized field yields exactly one event.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import "encoding/json"

// EndOfStream is the reserved data payload some providers (OpenAI-style
// APIs) send as a stream terminator. It is preserved as a literal and never
// parsed as JSON.
const EndOfStream = "[DONE]"

// Event represents a single parsed SSE event, delimited by a blank line
// in the upstream byte stream.
type Event struct {
	// Name is the SSE event type from the "event:" field.
	// An empty string means the default "message" type per the SSE spec.
	Name string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n" (per the SSE spec, multiple data fields are joined
	// with a single newline).
	Data string

	// ID is the last event ID from the "id:" field, if present.
	ID string

	// Value is the decoded JSON payload of Data. It is nil when Data is
	// empty, is the EndOfStream literal, or is not syntactically valid JSON;
	// in those cases Data remains the authoritative representation.
	Value any
}

// Done reports whether this event carries the end-of-stream literal.
func (e *Event) Done() bool {
	return e.Data == EndOfStream
}

// decode populates Value from Data. The EndOfStream literal and invalid
// JSON are kept as raw strings, never errors.
func (e *Event) decode() {
	if e.Data == "" || e.Data == EndOfStream {
		return
	}

	var v any
	if err := json.Unmarshal([]byte(e.Data), &v); err == nil {
		e.Value = v
	}
}
