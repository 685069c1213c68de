package sink

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/splice/pkg/record"
)

func testEntry(note record.Note) *record.Entry {
	return &record.Entry{
		Request: record.NewRequestRecord(time.Now(), "POST", "https://api.anthropic.com/v1/messages",
			map[string]string{"content-type": "application/json"}, []byte(`{"messages":[]}`)),
		LoggedAt: time.Now(),
		Note:     note,
	}
}

var _ = Describe("JSONL", func() {
	It("round-trips entries through the capture log", func() {
		path := filepath.Join(GinkgoT().TempDir(), "capture.jsonl")

		j, err := NewJSONL(path)
		Expect(err).NotTo(HaveOccurred())

		Expect(j.Emit(testEntry(""))).To(Succeed())
		Expect(j.Emit(testEntry(record.NoteOrphanedRequest))).To(Succeed())
		Expect(j.Close()).To(Succeed())

		entries, err := ReadJSONL(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].Note).To(BeEmpty())
		Expect(entries[1].Note).To(Equal(record.NoteOrphanedRequest))
		Expect(entries[1].Request.Method).To(Equal("POST"))
	})

	It("appends across reopens", func() {
		path := filepath.Join(GinkgoT().TempDir(), "capture.jsonl")

		j, err := NewJSONL(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(j.Emit(testEntry(""))).To(Succeed())
		Expect(j.Close()).To(Succeed())

		j, err = NewJSONL(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(j.Emit(testEntry(""))).To(Succeed())
		Expect(j.Close()).To(Succeed())

		entries, err := ReadJSONL(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(2))
	})
})

var _ = Describe("Async", func() {
	It("drains queued entries to the wrapped sink on Close", func() {
		mem := NewMemory()
		a := NewAsync(AsyncConfig{Next: mem})

		for range 10 {
			Expect(a.Emit(testEntry(""))).To(Succeed())
		}
		Expect(a.Close()).To(Succeed())

		Expect(mem.Entries()).To(HaveLen(10))
		Expect(mem.Closed()).To(BeTrue())
	})

	It("drops entries instead of blocking when the queue is full", func() {
		block := make(chan struct{})
		slow := &blockingSink{release: block}
		a := NewAsync(AsyncConfig{Next: slow, NumWorkers: 1, QueueSize: 1})

		// One entry occupies the worker, one fills the queue; the rest must
		// drop without ever blocking the caller.
		for range 5 {
			Expect(a.Emit(testEntry(""))).To(Succeed())
		}

		close(block)
		Expect(a.Close()).To(Succeed())
		Expect(slow.count).To(BeNumerically("<=", 2))
	})
})

// blockingSink holds Emit until released, to exercise queue overflow.
type blockingSink struct {
	release chan struct{}
	count   int
}

func (b *blockingSink) Emit(*record.Entry) error {
	<-b.release
	b.count++
	return nil
}

func (b *blockingSink) Close() error { return nil }
