// Package stream reconstructs a structured assistant message from the typed
// event sequence of a streamed Messages API response. It is a one-pass state
// machine with no backtracking: events are applied in emission order and the
// finished message is read off at end of stream.
package stream

import "encoding/json"

// BlockType is the closed set of content block kinds splice understands.
// Anything else is classified BlockOther with the original payload retained.
type BlockType string

const (
	BlockText                BlockType = "text"
	BlockThinking            BlockType = "thinking"
	BlockRedactedThinking    BlockType = "redacted_thinking"
	BlockToolUse             BlockType = "tool_use"
	BlockServerToolUse       BlockType = "server_tool_use"
	BlockWebSearchToolResult BlockType = "web_search_tool_result"
	BlockOther               BlockType = "other"
)

// blockTypeOf classifies a wire type string into the closed variant set.
func blockTypeOf(wire string) BlockType {
	switch BlockType(wire) {
	case BlockText, BlockThinking, BlockRedactedThinking,
		BlockToolUse, BlockServerToolUse, BlockWebSearchToolResult:
		return BlockType(wire)
	default:
		return BlockOther
	}
}

// ContentBlock is one contiguous unit of assistant output of a single kind.
// It is mutable only between its start and stop markers; once closed it is
// appended to the finished block list and never touched again.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// Index is the block's position within the message as reported by the
	// stream. Indices are non-decreasing but need not be contiguous.
	Index int `json:"index"`

	// Content accumulates the block's deltas: text for text blocks,
	// reasoning text and signature for thinking blocks, and the
	// concatenated partial-JSON fragments of tool input for tool blocks
	// (a complete JSON document only once all deltas have arrived).
	Content string `json:"content,omitempty"`

	// Tool metadata, present for tool_use and server_tool_use blocks.
	ToolID    string          `json:"tool_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`

	// Results holds the result payload of a web_search_tool_result block.
	Results json.RawMessage `json:"results,omitempty"`

	// Citations accumulated from citations_delta events.
	Citations []json.RawMessage `json:"citations,omitempty"`

	// WireType and Raw preserve the original type string and full start
	// payload for unrecognized block kinds so nothing is silently dropped.
	WireType string          `json:"wire_type,omitempty"`
	Raw      json.RawMessage `json:"raw,omitempty"`

	// Deltas archives every delta payload verbatim for auditability,
	// bounded by the reconstructor's audit cap. DroppedDeltas counts
	// payloads truncated past the cap.
	Deltas        []json.RawMessage `json:"deltas,omitempty"`
	DroppedDeltas int               `json:"dropped_deltas,omitempty"`
}

// Usage contains token counters accumulated across the stream. Input tokens
// arrive on message_start, output tokens on message_delta.
type Usage struct {
	InputTokens              int `json:"input_tokens,omitempty"`
	OutputTokens             int `json:"output_tokens,omitempty"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// TotalInputTokens returns prompt-side tokens including cache reads and writes.
func (u Usage) TotalInputTokens() int {
	return u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens
}

// UnknownEvent preserves an event the reconstructor does not recognize.
type UnknownEvent struct {
	Name string          `json:"name,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MessageInfo is the message-level metadata accumulated across the stream.
// Incidental ping/error/unrecognized events are preserved for completeness,
// bounded by the audit cap with truncation counts.
type MessageInfo struct {
	ID           string `json:"id,omitempty"`
	Model        string `json:"model,omitempty"`
	Role         string `json:"role,omitempty"`
	StopReason   string `json:"stop_reason,omitempty"`
	StopSequence string `json:"stop_sequence,omitempty"`
	Usage        Usage  `json:"usage,omitzero"`

	Pings   []json.RawMessage `json:"pings,omitempty"`
	Errors  []json.RawMessage `json:"errors,omitempty"`
	Unknown []UnknownEvent    `json:"unknown,omitempty"`

	DroppedPings   int `json:"dropped_pings,omitempty"`
	DroppedErrors  int `json:"dropped_errors,omitempty"`
	DroppedUnknown int `json:"dropped_unknown,omitempty"`
}

// Message is the finished reconstruction output: message-level metadata plus
// the ordered list of closed content blocks.
type Message struct {
	Info   MessageInfo    `json:"info"`
	Blocks []ContentBlock `json:"blocks,omitempty"`
}

// Text returns the concatenated content of all text blocks, a convenience
// for previews and logging.
func (m *Message) Text() string {
	var out string
	for _, b := range m.Blocks {
		if b.Type == BlockText {
			out += b.Content
		}
	}
	return out
}
