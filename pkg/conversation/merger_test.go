package conversation

import (
	"encoding/json"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/splice/pkg/record"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// pairAt builds a correlated pair whose request history is the given
// messages, formed at base plus the offset.
func pairAt(offset time.Duration, headers map[string]string, messages ...string) *record.Entry {
	body := fmt.Sprintf(
		`{"model":"claude-sonnet-4","max_tokens":1024,"messages":[%s]}`,
		join(messages),
	)
	if headers == nil {
		headers = map[string]string{"anthropic-version": "2023-06-01"}
	}
	ts := base.Add(offset)
	return &record.Entry{
		Request:  record.NewRequestRecord(ts, "POST", "https://api.anthropic.com/v1/messages", headers, []byte(body)),
		Response: record.NewResponseRecord(ts.Add(time.Second), 200, nil, []byte(`{"id":"msg"}`)),
		LoggedAt: ts.Add(time.Second),
	}
}

func join(messages []string) string {
	out := ""
	for i, m := range messages {
		if i > 0 {
			out += ","
		}
		out += m
	}
	return out
}

const (
	m1 = `{"role":"user","content":"hello"}`
	m2 = `{"role":"assistant","content":"hi there"}`
	m3 = `{"role":"user","content":"and now?"}`
)

var _ = Describe("Merger", func() {
	var m *Merger

	BeforeEach(func() {
		m = NewMerger()
	})

	Context("continuation", func() {
		It("folds a strict history extension into the open conversation", func() {
			convs := m.Merge([]*record.Entry{
				pairAt(0, nil, m1),
				pairAt(time.Minute, nil, m1, m2, m3),
			})

			Expect(convs).To(HaveLen(1))
			Expect(convs[0].Pairs).To(HaveLen(2))
			Expect(convs[0].History).To(HaveLen(3))
			Expect(convs[0].StartTime).To(Equal(base))
			Expect(convs[0].EndTime).To(Equal(base.Add(time.Minute + time.Second)))
		})

		It("starts a new conversation for a non-prefix history", func() {
			convs := m.Merge([]*record.Entry{
				pairAt(0, nil, m1),
				pairAt(time.Minute, nil, m1, m2),
				pairAt(2*time.Minute, nil, m3, m2, m1),
			})

			Expect(convs).To(HaveLen(2))
			Expect(convs[0].Pairs).To(HaveLen(2))
			Expect(convs[1].Pairs).To(HaveLen(1))
		})

		It("never continues on an equal-length history", func() {
			convs := m.Merge([]*record.Entry{
				pairAt(0, nil, m1),
				pairAt(time.Minute, nil, m2),
			})

			Expect(convs).To(HaveLen(2))
		})

		It("keeps the history monotonically non-shrinking", func() {
			convs := m.Merge([]*record.Entry{
				pairAt(0, nil, m1, m2, m3),
				pairAt(time.Minute, nil, m1),
			})

			// The shorter history cannot continue; it opens its own record.
			Expect(convs).To(HaveLen(2))
			Expect(convs[0].History).To(HaveLen(3))
			Expect(convs[1].History).To(HaveLen(1))
		})
	})

	Context("ordering", func() {
		It("re-sorts by formation time before folding", func() {
			later := pairAt(time.Minute, nil, m1, m2, m3)
			earlier := pairAt(0, nil, m1)

			convs := m.Merge([]*record.Entry{later, earlier})

			Expect(convs).To(HaveLen(1))
			Expect(convs[0].Pairs).To(HaveLen(2))
			Expect(convs[0].Pairs[0]).To(Equal(earlier))
		})

		It("breaks formation-time ties by arrival order", func() {
			first := pairAt(0, nil, m1)
			second := pairAt(0, nil, m2)

			convs := m.Merge([]*record.Entry{first, second})

			Expect(convs).To(HaveLen(2))
			Expect(convs[0].Pairs[0]).To(Equal(first))
			Expect(convs[1].Pairs[0]).To(Equal(second))
		})
	})

	Context("input filtering", func() {
		It("skips orphans and single records", func() {
			orphan := &record.Entry{
				Request:  record.NewRequestRecord(base, "POST", "https://api.anthropic.com/v1/messages", nil, []byte(`{"messages":[]}`)),
				LoggedAt: base,
				Note:     record.NoteOrphanedRequest,
			}

			convs := m.Merge([]*record.Entry{orphan, pairAt(0, nil, m1)})

			Expect(convs).To(HaveLen(1))
			Expect(convs[0].Pairs).To(HaveLen(1))
		})

		It("seeds a conversation even when the request body is not JSON", func() {
			raw := &record.Entry{
				Request:  record.NewRequestRecord(base, "POST", "https://api.anthropic.com/v1/messages", nil, []byte("not json")),
				Response: record.NewResponseRecord(base.Add(time.Second), 200, nil, nil),
				LoggedAt: base,
			}

			convs := m.Merge([]*record.Entry{raw})

			Expect(convs).To(HaveLen(1))
			Expect(convs[0].History).To(BeEmpty())
			Expect(convs[0].Model).To(BeEmpty())
		})
	})

	Context("seeding metadata", func() {
		It("captures model, params, and API markers from the first pair", func() {
			headers := map[string]string{
				"anthropic-version": "2023-06-01",
				"anthropic-beta":    "interleaved-thinking-2025-05-14",
			}
			convs := m.Merge([]*record.Entry{pairAt(0, headers, m1)})

			conv := convs[0]
			Expect(conv.ID).NotTo(BeEmpty())
			Expect(conv.Model).To(Equal("claude-sonnet-4"))
			Expect(*conv.Params.MaxTokens).To(Equal(1024))
			Expect(conv.Params.APIVersion).To(Equal("2023-06-01"))
			Expect(conv.Params.Beta).To(Equal("interleaved-thinking-2025-05-14"))
			Expect(conv.LatestResponse).NotTo(BeNil())
		})
	})

	Context("equality modes", func() {
		var historyWithID = func(id string) string {
			return fmt.Sprintf(`{"role":"assistant","content":[{"type":"text","text":"hi","id":"%s"}]}`, id)
		}

		It("treats differing ids as distinct under strict equality", func() {
			convs := m.Merge([]*record.Entry{
				pairAt(0, nil, m1, historyWithID("a")),
				pairAt(time.Minute, nil, m1, historyWithID("b"), m3),
			})

			Expect(convs).To(HaveLen(2))
		})

		It("matches differing ids under structural equality", func() {
			structural := NewMerger(WithEquality(EqualityStructural))
			convs := structural.Merge([]*record.Entry{
				pairAt(0, nil, m1, historyWithID("a")),
				pairAt(time.Minute, nil, m1, historyWithID("b"), m3),
			})

			Expect(convs).To(HaveLen(1))
			Expect(convs[0].Pairs).To(HaveLen(2))
		})

		It("ignores key order under structural equality", func() {
			reordered := `{"content":"hello","role":"user"}`
			structural := NewMerger(WithEquality(EqualityStructural))

			convs := structural.Merge([]*record.Entry{
				pairAt(0, nil, m1),
				pairAt(time.Minute, nil, reordered, m2),
			})

			Expect(convs).To(HaveLen(1))
		})
	})

	Context("serialization", func() {
		It("omits absent optional parameters", func() {
			convs := m.Merge([]*record.Entry{pairAt(0, nil, m1)})

			data, err := json.Marshal(convs[0])
			Expect(err).NotTo(HaveOccurred())

			var decoded map[string]any
			Expect(json.Unmarshal(data, &decoded)).To(Succeed())
			params := decoded["params"].(map[string]any)
			Expect(params).NotTo(HaveKey("temperature"))
			Expect(params).NotTo(HaveKey("tool_choice"))
		})
	})
})
