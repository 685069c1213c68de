package sink

import (
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/splice/pkg/record"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// AsyncConfig configures an Async sink.
type AsyncConfig struct {
	// Next is the sink the workers write to.
	Next Sink

	// NumWorkers is the number of background workers draining the queue.
	NumWorkers uint

	// QueueSize is the capacity of the buffered entry channel.
	QueueSize uint

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Async wraps another sink with a worker pool so that Emit never blocks the
// correlator past a channel send. The pool decouples sink I/O (file writes,
// database inserts) from the capture hot path; when the queue is full the
// entry is dropped and logged rather than stalling a live stream.
type Async struct {
	next   Sink
	queue  chan *record.Entry
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewAsync creates an Async sink and starts its worker goroutines.
func NewAsync(c AsyncConfig) *Async {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	a := &Async{
		next:   c.Next,
		queue:  make(chan *record.Entry, c.QueueSize),
		logger: c.Logger,
	}

	a.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go a.worker(i)
	}

	return a
}

// Emit enqueues the entry for background writing. A full queue drops the
// entry; the correlator must never wait on sink I/O.
func (a *Async) Emit(entry *record.Entry) error {
	select {
	case a.queue <- entry:
		return nil
	default:
		a.logger.Error("entry dropped, sink queue full",
			zap.Time("logged_at", entry.LoggedAt),
			zap.String("note", string(entry.Note)),
		)
		return nil
	}
}

// Close stops accepting entries, waits for in-flight writes to drain, and
// closes the wrapped sink.
func (a *Async) Close() error {
	close(a.queue)
	a.wg.Wait()
	return a.next.Close()
}

// worker continuously pulls entries off the queue and writes them through.
func (a *Async) worker(id uint) {
	defer a.wg.Done()
	a.logger.Debug("sink worker started", zap.Uint("worker_id", id))

	for entry := range a.queue {
		if err := a.next.Emit(entry); err != nil {
			a.logger.Error("async sink write failed", zap.Error(err))
		}
	}

	a.logger.Debug("sink worker stopped", zap.Uint("worker_id", id))
}
