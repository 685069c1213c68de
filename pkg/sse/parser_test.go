package sse

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Parse", func() {
	Context("with standard SSE bodies", func() {
		It("parses a single event", func() {
			events := Parse("data: hello world\n\n")

			Expect(events).To(HaveLen(1))
			Expect(events[0].Data).To(Equal("hello world"))
			Expect(events[0].Name).To(BeEmpty())
			Expect(events[0].Value).To(BeNil())
		})

		It("parses multiple events", func() {
			events := Parse("data: first\n\ndata: second\n\n")

			Expect(events).To(HaveLen(2))
			Expect(events[0].Data).To(Equal("first"))
			Expect(events[1].Data).To(Equal("second"))
		})

		It("parses the event name", func() {
			events := Parse("event: content_block_delta\ndata: {\"type\":\"delta\"}\n\n")

			Expect(events).To(HaveLen(1))
			Expect(events[0].Name).To(Equal("content_block_delta"))
			Expect(events[0].Data).To(Equal("{\"type\":\"delta\"}"))
		})

		It("joins multiple data lines with newline", func() {
			events := Parse("data: line one\ndata: line two\n\n")

			Expect(events).To(HaveLen(1))
			Expect(events[0].Data).To(Equal("line one\nline two"))
		})

		It("includes a trailing event not closed by a blank line", func() {
			events := Parse("data: first\n\nevent: message_stop\ndata: {\"type\":\"message_stop\"}")

			Expect(events).To(HaveLen(2))
			Expect(events[1].Name).To(Equal("message_stop"))
		})

		It("tolerates CRLF line endings", func() {
			events := Parse("event: ping\r\ndata: {\"type\":\"ping\"}\r\n\r\n")

			Expect(events).To(HaveLen(1))
			Expect(events[0].Name).To(Equal("ping"))
		})
	})

	Context("with data payload decoding", func() {
		It("decodes valid JSON payloads", func() {
			events := Parse("data: {\"type\":\"message_start\",\"message\":{\"id\":\"msg_1\"}}\n\n")

			Expect(events).To(HaveLen(1))
			payload, ok := events[0].Value.(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(payload["type"]).To(Equal("message_start"))
		})

		It("preserves the end-of-stream literal without decoding", func() {
			events := Parse("data: [DONE]\n\n")

			Expect(events).To(HaveLen(1))
			Expect(events[0].Data).To(Equal(EndOfStream))
			Expect(events[0].Done()).To(BeTrue())
			Expect(events[0].Value).To(BeNil())
		})

		It("retains malformed JSON as the raw string", func() {
			events := Parse("data: {\"type\": truncat\n\n")

			Expect(events).To(HaveLen(1))
			Expect(events[0].Data).To(Equal("{\"type\": truncat"))
			Expect(events[0].Value).To(BeNil())
		})
	})

	Context("with degenerate input", func() {
		It("returns no events for an empty body", func() {
			Expect(Parse("")).To(BeEmpty())
		})

		It("skips comment-only groups", func() {
			events := Parse(": keep-alive\n\ndata: real\n\n")

			Expect(events).To(HaveLen(1))
			Expect(events[0].Data).To(Equal("real"))
		})

		It("skips groups with only unknown fields", func() {
			events := Parse("retry: 3000\n\ndata: real\n\n")

			Expect(events).To(HaveLen(1))
		})

		It("yields one event per group with at least one recognized field", func() {
			body := "event: a\ndata: 1\n\n: comment\n\nid: 7\n\ndata: 2\n\n"
			Expect(Parse(body)).To(HaveLen(3))
		})
	})

	Context("with Anthropic-style streams", func() {
		It("parses a full message stream in order", func() {
			body := "event: message_start\ndata: {\"type\":\"message_start\"}\n\n" +
				"event: content_block_start\ndata: {\"type\":\"content_block_start\",\"index\":0}\n\n" +
				"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"Hi\"}}\n\n" +
				"event: content_block_stop\ndata: {\"type\":\"content_block_stop\",\"index\":0}\n\n" +
				"event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n"

			events := Parse(body)
			Expect(events).To(HaveLen(5))
			Expect(events[0].Name).To(Equal("message_start"))
			Expect(events[4].Name).To(Equal("message_stop"))
		})
	})
})
