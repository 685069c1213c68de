package correlate

import (
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/splice/pkg/capture"
	"github.com/papercomputeco/splice/pkg/record"
	"github.com/papercomputeco/splice/pkg/sink"
)

const messagesURL = "https://api.anthropic.com/v1/messages"

func captureRequest(url, body string, headers map[string]string) capture.Request {
	if headers == nil {
		headers = map[string]string{"content-type": "application/json"}
	}
	return capture.Request{
		Time:    time.Now(),
		Method:  "POST",
		URL:     url,
		Headers: headers,
		Body:    []byte(body),
	}
}

func captureResponse(status int, body string, headers map[string]string) capture.Response {
	if headers == nil {
		headers = map[string]string{"content-type": "application/json"}
	}
	return capture.Response{
		Time:       time.Now(),
		StatusCode: status,
		Headers:    headers,
		Body:       []byte(body),
	}
}

var _ = Describe("Engine", func() {
	var (
		mem    *sink.Memory
		engine *Engine
	)

	BeforeEach(func() {
		mem = sink.NewMemory()
		engine = NewEngine(mem)
	})

	Context("basic pairing", func() {
		It("pairs a request with its response by correlation key", func() {
			key := engine.OnRequest(captureRequest(messagesURL, `{"messages":[]}`, nil))
			Expect(key).NotTo(Equal(capture.KeyNone))

			engine.OnResponse(key, captureResponse(200, `{"id":"msg_1"}`, nil))

			entries := mem.Entries()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].IsPair()).To(BeTrue())
			Expect(entries[0].Request.URL).To(Equal(messagesURL))
			Expect(entries[0].Response.StatusCode).To(Equal(200))
			Expect(engine.PendingCount()).To(BeZero())
		})

		It("consumes a key at most once", func() {
			key := engine.OnRequest(captureRequest(messagesURL, `{}`, nil))

			engine.OnResponse(key, captureResponse(200, `{}`, nil))
			engine.OnResponse(key, captureResponse(200, `{}`, nil))

			entries := mem.Entries()
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].IsPair()).To(BeTrue())
			Expect(entries[1].Note).To(Equal(record.NoteOrphanedResponse))
		})

		It("matches query-bearing and subresource target URLs", func() {
			key := engine.OnRequest(captureRequest(messagesURL+"?beta=true", `{}`, nil))
			Expect(key).NotTo(Equal(capture.KeyNone))

			key = engine.OnRequest(captureRequest(messagesURL+"/count_tokens", `{}`, nil))
			Expect(key).NotTo(Equal(capture.KeyNone))
		})
	})

	Context("non-target calls", func() {
		It("emits them immediately as single unpaired records", func() {
			key := engine.OnRequest(captureRequest("https://api.anthropic.com/api/hello", "", nil))
			Expect(key).To(Equal(capture.KeyNone))

			entries := mem.Entries()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Request).NotTo(BeNil())
			Expect(entries[0].Response).To(BeNil())
			Expect(entries[0].Note).To(BeEmpty())
			Expect(engine.PendingCount()).To(BeZero())
		})

		It("emits their responses as plain single records, not orphans", func() {
			engine.OnRequest(captureRequest("https://api.anthropic.com/api/hello", "", nil))
			engine.OnResponse(capture.KeyNone, captureResponse(200, `{"ok":true}`, nil))

			entries := mem.Entries()
			Expect(entries).To(HaveLen(2))
			Expect(entries[1].Response).NotTo(BeNil())
			Expect(entries[1].Note).To(BeEmpty())
		})
	})

	Context("concurrent interleaved calls", func() {
		It("pairs overlapping calls correctly regardless of response order", func() {
			k1 := engine.OnRequest(captureRequest(messagesURL, `{"call":"one"}`, nil))
			k2 := engine.OnRequest(captureRequest(messagesURL, `{"call":"two"}`, nil))

			// Response for the second call arrives first.
			engine.OnResponse(k2, captureResponse(200, `{"answer":"two"}`, nil))
			engine.OnResponse(k1, captureResponse(200, `{"answer":"one"}`, nil))

			entries := mem.Entries()
			Expect(entries).To(HaveLen(2))
			Expect(string(entries[0].Request.Body)).To(ContainSubstring("two"))
			Expect(string(entries[0].Response.Body)).To(ContainSubstring("two"))
			Expect(string(entries[1].Request.Body)).To(ContainSubstring("one"))
			Expect(string(entries[1].Response.Body)).To(ContainSubstring("one"))
		})

		It("emits every response exactly once under concurrent callbacks", func() {
			const calls = 50

			var wg sync.WaitGroup
			wg.Add(calls)
			for i := range calls {
				go func(n int) {
					defer wg.Done()
					key := engine.OnRequest(captureRequest(messagesURL,
						fmt.Sprintf(`{"call":%d}`, n), nil))
					engine.OnResponse(key, captureResponse(200,
						fmt.Sprintf(`{"answer":%d}`, n), nil))
				}(i)
			}
			wg.Wait()
			engine.Drain()

			entries := mem.Entries()
			Expect(entries).To(HaveLen(calls))
			for _, entry := range entries {
				Expect(entry.IsPair()).To(BeTrue())
			}
			Expect(engine.PendingCount()).To(BeZero())
		})
	})

	Context("secondary header matching", func() {
		It("recovers a lost key via the echoed request identifier", func() {
			engine.OnRequest(captureRequest(messagesURL, `{}`, map[string]string{
				"content-type": "application/json",
				"x-client-id":  "req_abc123",
			}))

			// The capture layer lost the key association.
			engine.OnResponse(capture.Key(999), captureResponse(200, `{}`, map[string]string{
				"content-type": "application/json",
				"request-id":   "req_abc123",
			}))

			entries := mem.Entries()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].IsPair()).To(BeTrue())
			Expect(engine.PendingCount()).To(BeZero())
		})

		It("orphans the response when no header matches", func() {
			engine.OnResponse(capture.Key(7), captureResponse(500, "upstream exploded", nil))

			entries := mem.Entries()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Note).To(Equal(record.NoteOrphanedResponse))
			Expect(entries[0].Response.BodyRaw).To(Equal("upstream exploded"))
		})
	})

	Context("streamed responses", func() {
		It("feeds event-stream bodies through the reconstructor", func() {
			body := "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"id\":\"msg_1\",\"model\":\"claude-sonnet-4\",\"role\":\"assistant\",\"usage\":{\"input_tokens\":9}}}\n\n" +
				"event: content_block_start\ndata: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"text\"}}\n\n" +
				"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Hello\"}}\n\n" +
				"event: content_block_stop\ndata: {\"type\":\"content_block_stop\",\"index\":0}\n\n" +
				"event: message_delta\ndata: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"output_tokens\":2}}\n\n" +
				"event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n"

			key := engine.OnRequest(captureRequest(messagesURL, `{"stream":true}`, nil))
			engine.OnResponse(key, captureResponse(200, body, map[string]string{
				"content-type": "text/event-stream; charset=utf-8",
			}))

			entries := mem.Entries()
			Expect(entries).To(HaveLen(1))

			resp := entries[0].Response
			Expect(resp.BodyRaw).To(Equal(body))
			Expect(resp.Message).NotTo(BeNil())
			Expect(resp.Message.Text()).To(Equal("Hello"))
			Expect(resp.Message.Info.StopReason).To(Equal("end_turn"))
			Expect(resp.Message.Info.Usage.InputTokens).To(Equal(9))
			Expect(resp.Message.Info.Usage.OutputTokens).To(Equal(2))
		})

		It("leaves non-streamed JSON bodies untouched", func() {
			key := engine.OnRequest(captureRequest(messagesURL, `{}`, nil))
			engine.OnResponse(key, captureResponse(200,
				`{"content":[{"type":"text","text":"hi"}]}`, nil))

			resp := mem.Entries()[0].Response
			Expect(resp.Body).NotTo(BeNil())
			Expect(resp.Message).To(BeNil())
		})
	})

	Context("drain", func() {
		It("emits still-pending requests as orphans in observation order", func() {
			engine.OnRequest(captureRequest(messagesURL, `{"n":1}`, nil))
			engine.OnRequest(captureRequest(messagesURL, `{"n":2}`, nil))

			engine.Drain()

			entries := mem.Entries()
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].Note).To(Equal(record.NoteOrphanedRequest))
			Expect(string(entries[0].Request.Body)).To(ContainSubstring(`"n":1`))
			Expect(entries[1].Note).To(Equal(record.NoteOrphanedRequest))
			Expect(string(entries[1].Request.Body)).To(ContainSubstring(`"n":2`))
			Expect(engine.PendingCount()).To(BeZero())
		})

		It("leaves the engine usable for the orphan path afterwards", func() {
			key := engine.OnRequest(captureRequest(messagesURL, `{}`, nil))
			engine.Drain()

			engine.OnResponse(key, captureResponse(200, `{}`, nil))

			entries := mem.Entries()
			Expect(entries).To(HaveLen(2))
			Expect(entries[1].Note).To(Equal(record.NoteOrphanedResponse))
		})
	})
})
