// Package conversation stitches a sequence of individually correlated pairs
// into logical multi-turn conversations. A later call continues an earlier
// one when its request message history strictly extends the history already
// observed; anything else starts a new conversation.
package conversation

import (
	"encoding/json"
	"time"

	"github.com/papercomputeco/splice/pkg/record"
)

// Conversation is one logical multi-turn exchange reconstructed from its
// member pairs.
type Conversation struct {
	ID string `json:"id"`

	// Pairs are the member entries in fold order.
	Pairs []*record.Entry `json:"pairs"`

	// History is the longest observed prefix-consistent message list. It is
	// monotonically non-shrinking across the pairs folded in.
	History []json.RawMessage `json:"history,omitempty"`

	// LatestResponse is the response of the most recently folded pair.
	LatestResponse *record.ResponseRecord `json:"latest_response,omitempty"`

	Model  string          `json:"model,omitempty"`
	System json.RawMessage `json:"system,omitempty"`
	Tools  json.RawMessage `json:"tools,omitempty"`
	Params Params          `json:"params,omitzero"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Params are the request parameters carried on the conversation, included
// only when present on the seeding request.
type Params struct {
	MaxTokens     *int            `json:"max_tokens,omitempty"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	TopK          *int            `json:"top_k,omitempty"`
	Stream        *bool           `json:"stream,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	ToolChoice    json.RawMessage `json:"tool_choice,omitempty"`

	// API markers lifted from request headers.
	APIVersion string `json:"api_version,omitempty"`
	Beta       string `json:"beta,omitempty"`
}

// requestBody is the subset of the Messages API request the merger reads.
type requestBody struct {
	Model         string            `json:"model"`
	Messages      []json.RawMessage `json:"messages"`
	System        json.RawMessage   `json:"system"`
	Tools         json.RawMessage   `json:"tools"`
	MaxTokens     *int              `json:"max_tokens"`
	Temperature   *float64          `json:"temperature"`
	TopP          *float64          `json:"top_p"`
	TopK          *int              `json:"top_k"`
	Stream        *bool             `json:"stream"`
	StopSequences []string          `json:"stop_sequences"`
	ToolChoice    json.RawMessage   `json:"tool_choice"`
}

// parseRequestBody decodes the request half's JSON body. A nil return means
// the pair carries no usable history and always seeds a fresh conversation.
func parseRequestBody(rec *record.RequestRecord) *requestBody {
	if rec == nil || len(rec.Body) == 0 {
		return nil
	}

	body := &requestBody{}
	if err := json.Unmarshal(rec.Body, body); err != nil {
		return nil
	}
	return body
}
