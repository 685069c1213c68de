package sink

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/splice/pkg/eventstream"
	"github.com/papercomputeco/splice/pkg/record"
)

const publishTimeout = 5 * time.Second

// Publishing wraps a sink and publishes a pair event for every correlated
// pair that reaches it. Orphans and bypassed records are written to the
// underlying sink but not published.
type Publishing struct {
	next      Sink
	publisher eventstream.Publisher
	source    eventstream.EventSource
	logger    *zap.Logger
}

// NewPublishing creates a publishing wrapper around next.
func NewPublishing(next Sink, publisher eventstream.Publisher, source eventstream.EventSource, logger *zap.Logger) *Publishing {
	return &Publishing{
		next:      next,
		publisher: publisher,
		source:    source,
		logger:    logger,
	}
}

// Emit writes the entry to the underlying sink, then publishes pair entries.
// Publish failures are logged, never propagated: the sink write is the
// source of truth.
func (p *Publishing) Emit(entry *record.Entry) error {
	if err := p.next.Emit(entry); err != nil {
		return err
	}

	if !entry.IsPair() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	event := eventstream.NewPairLogged(uuid.NewString(), p.source, entry)
	if err := p.publisher.PublishPair(ctx, event); err != nil {
		p.logger.Error("failed to publish pair event",
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
	}

	return nil
}

// Close closes the underlying sink and then the publisher.
func (p *Publishing) Close() error {
	err := p.next.Close()
	if perr := p.publisher.Close(); err == nil {
		err = perr
	}
	return err
}
