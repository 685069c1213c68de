package stream

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/papercomputeco/splice/pkg/sse"
)

// DefaultAuditCap bounds the verbatim audit collections (per-block deltas,
// pings, errors, unknown events). Exceeding the cap truncates with a
// recorded count rather than failing the stream.
const DefaultAuditCap = 256

// Reconstructor folds an SSE event sequence into a finished Message. It has
// two states: no open block, and one block open. The zero value is not
// usable; construct with NewReconstructor.
//
// Reconstruction never fails: malformed or unexpected events degrade to
// raw/unknown representations but always leave the machine in a valid state.
type Reconstructor struct {
	auditCap int
	logger   *zap.Logger

	info   MessageInfo
	open   *ContentBlock
	blocks []ContentBlock
}

// Option configures a Reconstructor.
type Option func(*Reconstructor)

// WithLogger sets the logger used for anomaly reporting.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Reconstructor) { r.logger = logger }
}

// WithAuditCap overrides the bound on verbatim audit collections.
func WithAuditCap(n int) Option {
	return func(r *Reconstructor) { r.auditCap = n }
}

// NewReconstructor creates a Reconstructor in the no-open-block state.
func NewReconstructor(opts ...Option) *Reconstructor {
	r := &Reconstructor{
		auditCap: DefaultAuditCap,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconstruct folds a complete event sequence into a Message. It is a pure
// function of the sequence: applying the same events twice yields identical
// results.
func Reconstruct(events []sse.Event, opts ...Option) *Message {
	r := NewReconstructor(opts...)
	for _, ev := range events {
		r.Apply(ev)
	}
	return r.Finish()
}

// Apply advances the state machine by one event. Unrecognized events are
// archived, never rejected.
func (r *Reconstructor) Apply(ev sse.Event) {
	if ev.Done() {
		// OpenAI-style end marker; Anthropic streams end with message_stop.
		return
	}

	switch r.eventName(ev) {
	case "message_start":
		r.applyMessageStart(ev)
	case "content_block_start":
		r.applyBlockStart(ev)
	case "content_block_delta":
		r.applyBlockDelta(ev)
	case "content_block_stop":
		r.applyBlockStop(ev)
	case "message_delta":
		r.applyMessageDelta(ev)
	case "message_stop":
		// End-of-message marker, no state to update.
	case "ping":
		r.archive(&r.info.Pings, &r.info.DroppedPings, json.RawMessage(ev.Data))
	case "error":
		r.archive(&r.info.Errors, &r.info.DroppedErrors, json.RawMessage(ev.Data))
	default:
		if len(r.info.Unknown) < r.auditCap {
			r.info.Unknown = append(r.info.Unknown, UnknownEvent{
				Name: ev.Name,
				Data: json.RawMessage(ev.Data),
			})
		} else {
			r.info.DroppedUnknown++
		}
		r.logger.Debug("unrecognized stream event", zap.String("event", ev.Name))
	}
}

// Finish returns the reconstruction output. A block still open at end of
// stream is excluded from the finished list; message-level metadata seen
// before stream end is retained regardless.
func (r *Reconstructor) Finish() *Message {
	if r.open != nil {
		r.logger.Warn("stream ended with an open content block",
			zap.Int("index", r.open.Index),
			zap.String("type", string(r.open.Type)),
		)
	}

	return &Message{
		Info:   r.info,
		Blocks: r.blocks,
	}
}

// eventName resolves the event's dispatch name, falling back to the data
// payload's "type" field when no "event:" line was present.
func (r *Reconstructor) eventName(ev sse.Event) string {
	if ev.Name != "" {
		return ev.Name
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(ev.Data), &probe); err == nil {
		return probe.Type
	}
	return ""
}

func (r *Reconstructor) applyMessageStart(ev sse.Event) {
	var payload messageStartPayload
	if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
		r.logger.Debug("malformed message_start payload", zap.Error(err))
		return
	}

	r.info.ID = payload.Message.ID
	r.info.Model = payload.Message.Model
	r.info.Role = payload.Message.Role
	r.info.Usage.InputTokens = payload.Message.Usage.InputTokens
	r.info.Usage.CacheCreationInputTokens = payload.Message.Usage.CacheCreationInputTokens
	r.info.Usage.CacheReadInputTokens = payload.Message.Usage.CacheReadInputTokens
}

func (r *Reconstructor) applyBlockStart(ev sse.Event) {
	if r.open != nil {
		// A start without a preceding stop. The unterminated block never
		// reaches the finished list; the new block takes its place.
		r.logger.Warn("content_block_start with a block already open",
			zap.Int("open_index", r.open.Index),
		)
		r.open = nil
	}

	var payload contentBlockStartPayload
	if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
		r.logger.Debug("malformed content_block_start payload", zap.Error(err))
		return
	}

	var header contentBlockHeader
	// Header decode failure leaves an empty header; the block still opens
	// so subsequent deltas have somewhere to land.
	_ = json.Unmarshal(payload.ContentBlock, &header)

	block := &ContentBlock{
		Type:  blockTypeOf(header.Type),
		Index: payload.Index,
	}

	switch block.Type {
	case BlockText:
		block.Content = header.Text
	case BlockThinking:
		block.Content = header.Thinking
	case BlockRedactedThinking:
		// Redacted reasoning arrives opaque; deltas carry the payload.
	case BlockToolUse, BlockServerToolUse:
		block.ToolID = header.ID
		block.ToolName = header.Name
		block.ToolInput = header.Input
	case BlockWebSearchToolResult:
		block.ToolID = header.ID
		block.Results = header.Content
	case BlockOther:
		block.WireType = header.Type
		block.Raw = payload.ContentBlock
	}

	r.open = block
}

func (r *Reconstructor) applyBlockDelta(ev sse.Event) {
	if r.open == nil {
		// No owning block to apply it to; the only condition that is
		// neither surfaced in the output nor retried.
		r.logger.Debug("content_block_delta with no open block")
		return
	}

	var payload contentBlockDeltaPayload
	if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
		r.logger.Debug("malformed content_block_delta payload", zap.Error(err))
		return
	}

	// Every delta is archived verbatim regardless of recognized type.
	r.archive(&r.open.Deltas, &r.open.DroppedDeltas, payload.Delta)

	var delta deltaBody
	if err := json.Unmarshal(payload.Delta, &delta); err != nil {
		return
	}

	switch delta.Type {
	case "text_delta":
		r.open.Content += delta.Text
	case "thinking_delta":
		r.open.Content += delta.Thinking
	case "input_json_delta":
		r.open.Content += delta.PartialJSON
	case "signature_delta":
		r.open.Content += delta.Signature
	case "citations_delta":
		r.open.Citations = append(r.open.Citations, delta.Citation)
	default:
		r.logger.Debug("unrecognized delta type", zap.String("delta_type", delta.Type))
	}
}

func (r *Reconstructor) applyBlockStop(ev sse.Event) {
	if r.open == nil {
		r.logger.Debug("content_block_stop with no open block")
		return
	}

	var payload contentBlockStopPayload
	_ = json.Unmarshal([]byte(ev.Data), &payload)

	r.blocks = append(r.blocks, *r.open)
	r.open = nil
}

func (r *Reconstructor) applyMessageDelta(ev sse.Event) {
	var payload messageDeltaPayload
	if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
		r.logger.Debug("malformed message_delta payload", zap.Error(err))
		return
	}

	if payload.Delta.StopReason != "" {
		r.info.StopReason = payload.Delta.StopReason
	}
	if payload.Delta.StopSequence != nil {
		r.info.StopSequence = *payload.Delta.StopSequence
	}
	if payload.Usage.OutputTokens > 0 {
		r.info.Usage.OutputTokens = payload.Usage.OutputTokens
	}
}

// archive appends raw to the collection unless the audit cap is reached, in
// which case the drop counter records the truncation.
func (r *Reconstructor) archive(collection *[]json.RawMessage, dropped *int, raw json.RawMessage) {
	if len(*collection) >= r.auditCap {
		*dropped++
		return
	}
	*collection = append(*collection, raw)
}
