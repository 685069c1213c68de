package sink

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/splice/pkg/eventstream"
	"github.com/papercomputeco/splice/pkg/record"
)

type fakePublisher struct {
	events []*eventstream.PairLoggedEvent
	failed bool
	closed bool
}

func (f *fakePublisher) PublishPair(_ context.Context, event *eventstream.PairLoggedEvent) error {
	if f.failed {
		return errors.New("broker unavailable")
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func pairEntry() *record.Entry {
	now := time.Now()
	return &record.Entry{
		Request: record.NewRequestRecord(now, "POST", "https://api.anthropic.com/v1/messages",
			map[string]string{"content-type": "application/json"}, []byte(`{"messages":[]}`)),
		Response: record.NewResponseRecord(now, 200,
			map[string]string{"content-type": "application/json"}, []byte(`{"id":"msg_1"}`)),
		LoggedAt: now,
	}
}

var _ = Describe("Publishing", func() {
	var (
		mem *Memory
		pub *fakePublisher
		p   *Publishing
	)

	BeforeEach(func() {
		mem = NewMemory()
		pub = &fakePublisher{}
		p = NewPublishing(mem, pub, eventstream.EventSource{Upstream: "https://api.anthropic.com"}, zap.NewNop())
	})

	It("publishes an event for every pair", func() {
		Expect(p.Emit(pairEntry())).To(Succeed())

		Expect(mem.Entries()).To(HaveLen(1))
		Expect(pub.events).To(HaveLen(1))
		Expect(pub.events[0].EventType).To(Equal(eventstream.EventTypePairLogged))
		Expect(pub.events[0].EventID).NotTo(BeEmpty())
		Expect(pub.events[0].Entry.IsPair()).To(BeTrue())
	})

	It("does not publish orphans", func() {
		Expect(p.Emit(testEntry(record.NoteOrphanedRequest))).To(Succeed())

		Expect(mem.Entries()).To(HaveLen(1))
		Expect(pub.events).To(BeEmpty())
	})

	It("still writes the entry when publishing fails", func() {
		pub.failed = true

		Expect(p.Emit(pairEntry())).To(Succeed())
		Expect(mem.Entries()).To(HaveLen(1))
	})

	It("closes the sink and the publisher", func() {
		Expect(p.Close()).To(Succeed())
		Expect(mem.Closed()).To(BeTrue())
		Expect(pub.closed).To(BeTrue())
	})
})
