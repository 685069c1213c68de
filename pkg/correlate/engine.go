// Package correlate pairs captured requests with their responses under
// concurrent, possibly overlapping in-flight calls. The Engine owns the one
// piece of shared mutable state in the reconstruction core — the pending
// table — and guarantees that no response is ever silently dropped: every
// callback eventually produces exactly one emitted record, paired or orphaned.
package correlate

import (
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/splice/pkg/capture"
	"github.com/papercomputeco/splice/pkg/record"
	"github.com/papercomputeco/splice/pkg/sink"
	"github.com/papercomputeco/splice/pkg/sse"
	"github.com/papercomputeco/splice/pkg/stream"
)

// DefaultEchoHeader is the response header the Messages API populates with a
// request identifier, used as a secondary match when the correlation key
// misses.
const DefaultEchoHeader = "request-id"

// DefaultTargetPaths is the API path set whose calls are correlated. Calls
// outside the set bypass correlation and are emitted as single records.
var DefaultTargetPaths = []string{"/v1/messages"}

// pendingRequest is one captured outbound call awaiting its response.
type pendingRequest struct {
	key capture.Key
	rec *record.RequestRecord
}

// Engine implements capture.Observer. One Engine is constructed per capture
// session; it issues monotonically increasing correlation keys and emits
// finished records to its sink.
//
// Each pending-table mutation happens under one exclusive critical section;
// the lock is never held across body parsing, reconstruction, or sink I/O,
// so unrelated concurrent calls are never serialized.
type Engine struct {
	logger     *zap.Logger
	out        sink.Sink
	targets    []string
	echoHeader string
	auditCap   int

	mu      sync.Mutex
	nextKey capture.Key
	pending map[capture.Key]*pendingRequest
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithTargetPaths overrides the API path set whose calls are correlated.
func WithTargetPaths(paths ...string) Option {
	return func(e *Engine) { e.targets = paths }
}

// WithEchoHeader overrides the response header used for secondary matching.
func WithEchoHeader(name string) Option {
	return func(e *Engine) { e.echoHeader = name }
}

// WithAuditCap overrides the reconstructor's bound on verbatim audit
// collections for streamed response bodies.
func WithAuditCap(n int) Option {
	return func(e *Engine) { e.auditCap = n }
}

// NewEngine creates an Engine emitting to out.
func NewEngine(out sink.Sink, opts ...Option) *Engine {
	e := &Engine{
		logger:     zap.NewNop(),
		out:        out,
		targets:    DefaultTargetPaths,
		echoHeader: DefaultEchoHeader,
		pending:    make(map[capture.Key]*pendingRequest),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnRequest records a pending request for calls on the target API paths and
// returns its correlation key. Calls outside the path set are emitted
// immediately as single, unpaired records and KeyNone is returned.
func (e *Engine) OnRequest(req capture.Request) capture.Key {
	rec := record.NewRequestRecord(req.Time, req.Method, req.URL, req.Headers, req.Body)

	if !e.isTarget(req.URL) {
		e.emit(&record.Entry{
			Request:  rec,
			LoggedAt: time.Now(),
		})
		return capture.KeyNone
	}

	e.mu.Lock()
	e.nextKey++
	key := e.nextKey
	e.pending[key] = &pendingRequest{key: key, rec: rec}
	e.mu.Unlock()

	e.logger.Debug("request pending",
		zap.Uint64("key", uint64(key)),
		zap.String("url", req.URL),
	)

	return key
}

// OnResponse pairs the response with its pending request. A key miss falls
// back to scanning pending request headers for the response's echoed request
// identifier; if that also fails the response is emitted as an orphan.
func (e *Engine) OnResponse(key capture.Key, resp capture.Response) {
	e.mu.Lock()
	p, ok := e.pending[key]
	if ok {
		delete(e.pending, key)
	}
	e.mu.Unlock()

	if !ok {
		p = e.secondaryMatch(resp)
	}

	respRec := e.buildResponse(resp)

	if p == nil {
		if key != capture.KeyNone {
			e.logger.Warn("response with no pending request",
				zap.Uint64("key", uint64(key)),
				zap.Int("status", resp.StatusCode),
			)
			e.emit(&record.Entry{
				Response: respRec,
				LoggedAt: time.Now(),
				Note:     record.NoteOrphanedResponse,
			})
			return
		}

		// Uncorrelated call (bypassed at request time): a plain single
		// response record, not an orphan.
		e.emit(&record.Entry{
			Response: respRec,
			LoggedAt: time.Now(),
		})
		return
	}

	e.emit(&record.Entry{
		Request:  p.rec,
		Response: respRec,
		LoggedAt: time.Now(),
	})
}

// OnShutdown drains the engine.
func (e *Engine) OnShutdown() {
	e.Drain()
}

// Drain emits every still-pending request as an orphaned record and clears
// state. Drain is synchronous and terminal: callbacks arriving afterwards
// find an empty table and take the orphan path.
func (e *Engine) Drain() {
	e.mu.Lock()
	remaining := make([]*pendingRequest, 0, len(e.pending))
	for _, p := range e.pending {
		remaining = append(remaining, p)
	}
	e.pending = make(map[capture.Key]*pendingRequest)
	e.mu.Unlock()

	// Keys are issued monotonically, so sorting restores observation order.
	sort.Slice(remaining, func(i, j int) bool {
		return remaining[i].key < remaining[j].key
	})

	for _, p := range remaining {
		e.logger.Warn("request never answered",
			zap.Uint64("key", uint64(p.key)),
			zap.String("url", p.rec.URL),
		)
		e.emit(&record.Entry{
			Request:  p.rec,
			LoggedAt: time.Now(),
			Note:     record.NoteOrphanedRequest,
		})
	}
}

// PendingCount reports the number of requests still awaiting a response.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.pending)
}

// secondaryMatch scans pending requests for one whose headers carry the
// identifier echoed by the response, removing and returning it on a hit.
func (e *Engine) secondaryMatch(resp capture.Response) *pendingRequest {
	echoed := capture.Header(resp.Headers, e.echoHeader)
	if echoed == "" {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for key, p := range e.pending {
		for _, v := range p.rec.Headers {
			if v == echoed {
				delete(e.pending, key)
				e.logger.Debug("response matched via echoed request id",
					zap.Uint64("key", uint64(key)),
					zap.String("request_id", echoed),
				)
				return p
			}
		}
	}
	return nil
}

// buildResponse converts the captured response, feeding streamed bodies
// through the event-stream parser and content reconstructor. This happens
// outside the pending-table lock.
func (e *Engine) buildResponse(resp capture.Response) *record.ResponseRecord {
	rec := record.NewResponseRecord(resp.Time, resp.StatusCode, resp.Headers, resp.Body)

	ct := capture.Header(resp.Headers, "content-type")
	if strings.HasPrefix(ct, "text/event-stream") {
		opts := []stream.Option{stream.WithLogger(e.logger)}
		if e.auditCap > 0 {
			opts = append(opts, stream.WithAuditCap(e.auditCap))
		}
		events := sse.Parse(string(resp.Body))
		rec.Message = stream.Reconstruct(events, opts...)
	}

	return rec
}

// emit hands the entry to the sink. Sink failures are logged, never
// propagated: the core is a passive observer and has nothing to retry.
func (e *Engine) emit(entry *record.Entry) {
	if err := e.out.Emit(entry); err != nil {
		e.logger.Error("sink emit failed", zap.Error(err))
	}
}

// isTarget reports whether the call's URL path is in the target API path set.
func (e *Engine) isTarget(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	for _, target := range e.targets {
		if u.Path == target || strings.HasPrefix(u.Path, target+"/") {
			return true
		}
	}
	return false
}
