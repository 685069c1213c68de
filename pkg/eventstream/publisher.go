package eventstream

import "context"

// Publisher publishes pair events to an event stream backend.
type Publisher interface {
	PublishPair(ctx context.Context, event *PairLoggedEvent) error
	Close() error
}
