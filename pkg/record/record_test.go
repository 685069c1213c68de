package record_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/splice/pkg/record"
)

var _ = Describe("SplitBody", func() {
	It("returns a raw message for valid JSON", func() {
		body, raw := record.SplitBody([]byte(`{"model":"claude-sonnet-4"}`))
		Expect(string(body)).To(Equal(`{"model":"claude-sonnet-4"}`))
		Expect(raw).To(BeEmpty())
	})

	It("returns original text for invalid JSON", func() {
		body, raw := record.SplitBody([]byte("event: ping\ndata: {}\n\n"))
		Expect(body).To(BeNil())
		Expect(raw).To(Equal("event: ping\ndata: {}\n\n"))
	})

	It("returns neither for an empty payload", func() {
		body, raw := record.SplitBody(nil)
		Expect(body).To(BeNil())
		Expect(raw).To(BeEmpty())
	})
})

var _ = Describe("Entry", func() {
	It("serializes with body and body_raw mutually exclusive", func() {
		entry := &record.Entry{
			Request: record.NewRequestRecord(time.Now(), "POST", "https://api.anthropic.com/v1/messages",
				map[string]string{"content-type": "application/json"}, []byte(`{"messages":[]}`)),
			Response: record.NewResponseRecord(time.Now(), 200,
				map[string]string{"content-type": "text/event-stream"}, []byte("data: [DONE]\n\n")),
			LoggedAt: time.Now(),
		}

		data, err := json.Marshal(entry)
		Expect(err).NotTo(HaveOccurred())

		var decoded map[string]any
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())

		req := decoded["request"].(map[string]any)
		Expect(req).To(HaveKey("body"))
		Expect(req).NotTo(HaveKey("body_raw"))

		resp := decoded["response"].(map[string]any)
		Expect(resp).To(HaveKey("body_raw"))
		Expect(resp).NotTo(HaveKey("body"))

		Expect(decoded).NotTo(HaveKey("note"))
	})

	It("reports pair status only for noted-free two-sided entries", func() {
		pair := &record.Entry{Request: &record.RequestRecord{}, Response: &record.ResponseRecord{}}
		Expect(pair.IsPair()).To(BeTrue())

		orphan := &record.Entry{Request: &record.RequestRecord{}, Note: record.NoteOrphanedRequest}
		Expect(orphan.IsPair()).To(BeFalse())

		half := &record.Entry{Response: &record.ResponseRecord{}}
		Expect(half.IsPair()).To(BeFalse())
	})
})
