// Package record defines the correlated record, the structural contract
// between the reconstruction core and every downstream consumer (sinks, the
// conversation merger, renderers). A normal entry carries both a request and
// a response; orphaned entries carry one side plus a note. Consumers must
// treat either body representation — parsed JSON or raw text — as valid.
package record

import (
	"encoding/json"
	"time"

	"github.com/papercomputeco/splice/pkg/stream"
)

// Note tags entries that never found their counterpart. Absent on normal pairs.
type Note string

const (
	NoteOrphanedRequest  Note = "ORPHANED_REQUEST"
	NoteOrphanedResponse Note = "ORPHANED_RESPONSE"
)

// RequestRecord is the request half of a correlated record.
type RequestRecord struct {
	Timestamp time.Time         `json:"timestamp"`
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers"`

	// Body holds the payload when it parsed as JSON; BodyRaw holds the
	// original text otherwise. The two are mutually exclusive.
	Body    json.RawMessage `json:"body,omitempty"`
	BodyRaw string          `json:"body_raw,omitempty"`
}

// ResponseRecord is the response half of a correlated record.
type ResponseRecord struct {
	Timestamp  time.Time         `json:"timestamp"`
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`

	Body    json.RawMessage `json:"body,omitempty"`
	BodyRaw string          `json:"body_raw,omitempty"`

	// Message is the reconstructed structured message for streamed bodies.
	// For non-streamed JSON responses the native Body content is
	// authoritative and Message is absent.
	Message *stream.Message `json:"message,omitempty"`
}

// Entry is one unit of correlator output.
type Entry struct {
	Request  *RequestRecord  `json:"request,omitempty"`
	Response *ResponseRecord `json:"response,omitempty"`
	LoggedAt time.Time       `json:"logged_at"`
	Note     Note            `json:"note,omitempty"`
}

// IsPair reports whether the entry is a normally correlated request/response
// pair, the unit of input for the conversation merger.
func (e *Entry) IsPair() bool {
	return e.Request != nil && e.Response != nil && e.Note == ""
}

// SplitBody classifies a captured payload: valid JSON is returned as a raw
// message, anything else as original text. An empty payload yields neither.
func SplitBody(body []byte) (json.RawMessage, string) {
	if len(body) == 0 {
		return nil, ""
	}
	if json.Valid(body) {
		return json.RawMessage(body), ""
	}
	return nil, string(body)
}

// NewRequestRecord builds the request half from captured call attributes.
func NewRequestRecord(ts time.Time, method, url string, headers map[string]string, body []byte) *RequestRecord {
	rec := &RequestRecord{
		Timestamp: ts,
		Method:    method,
		URL:       url,
		Headers:   headers,
	}
	rec.Body, rec.BodyRaw = SplitBody(body)
	return rec
}

// NewResponseRecord builds the response half from captured response attributes.
func NewResponseRecord(ts time.Time, status int, headers map[string]string, body []byte) *ResponseRecord {
	rec := &ResponseRecord{
		Timestamp:  ts,
		StatusCode: status,
		Headers:    headers,
	}
	rec.Body, rec.BodyRaw = SplitBody(body)
	return rec
}
