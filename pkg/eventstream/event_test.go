package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/splice/pkg/eventstream"
	"github.com/papercomputeco/splice/pkg/record"
)

var _ = Describe("Event", func() {
	It("marshals PairLoggedEvent with expected top-level keys", func() {
		now := time.Unix(1735689600, 0).UTC()
		entry := &record.Entry{
			Request: &record.RequestRecord{
				Timestamp: now.Add(-2 * time.Second),
				Method:    "POST",
				URL:       "https://api.anthropic.com/v1/messages",
				Headers:   map[string]string{"anthropic-version": "2023-06-01"},
				Body:      json.RawMessage(`{"model":"claude-sonnet-4-5"}`),
			},
			Response: &record.ResponseRecord{
				Timestamp:  now,
				StatusCode: 200,
				Body:       json.RawMessage(`{"id":"msg_1"}`),
			},
			LoggedAt: now,
		}

		event := eventstream.NewPairLogged("evt_123", eventstream.EventSource{
			Project:   "my-project",
			AgentName: "claude",
			Upstream:  "https://api.anthropic.com",
		}, entry)

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("source"))
		Expect(got).To(HaveKey("entry"))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypePairLogged).To(Equal("splice.pair.logged"))
	})

	It("provides ErrNilPairEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilPairEvent).NotTo(BeNil())
		Expect(eventstream.ErrNilPairEvent).To(MatchError("nil pair event"))
	})
})
