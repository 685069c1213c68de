package conversation

import (
	"encoding/json"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/splice/pkg/capture"
	"github.com/papercomputeco/splice/pkg/record"
)

// Merger folds correlated pairs into conversations. It runs as a single
// sequential fold over ordered input and holds no shared state.
type Merger struct {
	eq     Equality
	logger *zap.Logger
}

// Option configures a Merger.
type Option func(*Merger)

// WithEquality selects the message comparison mode (default EqualityStrict).
func WithEquality(eq Equality) Option {
	return func(m *Merger) { m.eq = eq }
}

// WithLogger sets the merger's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Merger) { m.logger = logger }
}

// NewMerger creates a Merger.
func NewMerger(opts ...Option) *Merger {
	m := &Merger{
		eq:     EqualityStrict,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Merge folds the entries into conversation records. Non-pair entries
// (orphans, bypassed single records) are skipped. Entries are re-sorted by
// formation time before folding — under concurrency, emission order does not
// equal chronological order — with arrival order as the stable tie-break.
func (m *Merger) Merge(entries []*record.Entry) []*Conversation {
	pairs := make([]*record.Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsPair() {
			pairs = append(pairs, entry)
		}
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].LoggedAt.Before(pairs[j].LoggedAt)
	})

	var conversations []*Conversation
	var open *Conversation

	for _, pair := range pairs {
		body := parseRequestBody(pair.Request)
		history := []json.RawMessage(nil)
		if body != nil {
			history = body.Messages
		}

		if open != nil && m.continues(open, history) {
			open.Pairs = append(open.Pairs, pair)
			open.History = history
			open.LatestResponse = pair.Response
			open.EndTime = pair.Response.Timestamp
			continue
		}

		if open != nil {
			conversations = append(conversations, open)
		}
		open = m.seed(pair, body, history)
	}

	if open != nil {
		conversations = append(conversations, open)
	}

	m.logger.Debug("merged pairs into conversations",
		zap.Int("pairs", len(pairs)),
		zap.Int("conversations", len(conversations)),
	)

	return conversations
}

// continues reports whether a pair with the given history extends the open
// conversation: the new history must be strictly longer and the open
// history must be an exact element-wise prefix of it. Equal-length or
// non-prefix histories never continue.
func (m *Merger) continues(open *Conversation, history []json.RawMessage) bool {
	if len(history) <= len(open.History) {
		return false
	}
	return isPrefix(m.eq, open.History, history)
}

// seed starts a conversation from its first pair.
func (m *Merger) seed(pair *record.Entry, body *requestBody, history []json.RawMessage) *Conversation {
	conv := &Conversation{
		ID:             uuid.NewString(),
		Pairs:          []*record.Entry{pair},
		History:        history,
		LatestResponse: pair.Response,
		StartTime:      pair.Request.Timestamp,
		EndTime:        pair.Response.Timestamp,
	}

	if body != nil {
		conv.Model = body.Model
		conv.System = body.System
		conv.Tools = body.Tools
		conv.Params = Params{
			MaxTokens:     body.MaxTokens,
			Temperature:   body.Temperature,
			TopP:          body.TopP,
			TopK:          body.TopK,
			Stream:        body.Stream,
			StopSequences: body.StopSequences,
			ToolChoice:    body.ToolChoice,
		}
	}

	conv.Params.APIVersion = capture.Header(pair.Request.Headers, "anthropic-version")
	conv.Params.Beta = capture.Header(pair.Request.Headers, "anthropic-beta")

	return conv
}
