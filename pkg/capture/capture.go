// Package capture defines the contract between a traffic-capture layer and
// the reconstruction core. The core is a passive observer: it consumes
// captured requests and responses through the Observer callbacks and never
// touches the wire itself. Any capture implementation (the splice proxy, a
// replayed log, a test harness) can drive an Observer.
package capture

import (
	"strings"
	"time"
)

// Key identifies one in-flight call for the duration between its request
// and its response. Keys are issued by the Observer when a request is first
// seen and are consumed at most once.
type Key uint64

// KeyNone marks a call the Observer chose not to track (e.g. a request
// outside the target API path set, emitted immediately as a single record).
const KeyNone Key = 0

// Request is one captured outbound call.
type Request struct {
	Time    time.Time
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response is one captured inbound response.
type Response struct {
	Time       time.Time
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Observer receives capture callbacks. Implementations must be safe for
// concurrent use: the capture layer delivers callbacks from multiple
// in-flight calls at once.
type Observer interface {
	// OnRequest records a captured request and returns the key the capture
	// layer must carry through to the matching response. KeyNone means the
	// call is not being correlated.
	OnRequest(req Request) Key

	// OnResponse delivers the response for a previously observed request.
	OnResponse(key Key, resp Response)

	// OnShutdown signals that no further callbacks will arrive; anything
	// still pending is flushed as orphaned.
	OnShutdown()
}

// Header performs a case-insensitive single-header lookup, the one
// normalization the core applies to captured header maps.
func Header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
