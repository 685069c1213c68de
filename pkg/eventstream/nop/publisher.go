package nop

import (
	"context"

	"github.com/papercomputeco/splice/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishPair validates input and otherwise does nothing.
func (p *Publisher) PublishPair(_ context.Context, event *eventstream.PairLoggedEvent) error {
	if event == nil {
		return eventstream.ErrNilPairEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
