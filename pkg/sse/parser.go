package sse

import "strings"

// builder accumulates fields for the event under construction. It is shared
// by Parse and TeeReader so both paths frame events identically.
type builder struct {
	current  *Event
	hasField bool
}

func newBuilder() *builder {
	return &builder{current: &Event{}}
}

// line feeds one non-terminator line into the builder. Blank lines must be
// handled by the caller via flush.
func (b *builder) line(raw string) {
	// Lines starting with ':' are comments per the SSE spec.
	if strings.HasPrefix(raw, ":") {
		return
	}

	var field, value string
	if before, after, ok := strings.Cut(raw, ":"); ok {
		field = before
		// Strip a single leading space after the colon, per spec.
		value = strings.TrimPrefix(after, " ")
	} else {
		// Line with no colon: the entire line is the field name with
		// an empty value.
		field = raw
	}

	switch field {
	case "data":
		if b.hasField && b.current.Data != "" {
			// Multiple data fields are joined with "\n".
			b.current.Data += "\n"
		}
		b.current.Data += value
		b.hasField = true
	case "event":
		b.current.Name = value
		b.hasField = true
	case "id":
		b.current.ID = value
		b.hasField = true
	default:
		// "retry" and unknown fields are ignored per the SSE spec. A group
		// containing only such lines yields no event.
	}
}

// flush closes the current event, decodes its payload, and resets the
// builder. It returns nil when no recognized field was accumulated (e.g.
// leading blank lines, keep-alive newlines, comment-only groups).
func (b *builder) flush() *Event {
	if !b.hasField {
		return nil
	}

	ev := b.current
	ev.decode()
	b.current = &Event{}
	b.hasField = false
	return ev
}

// Parse turns the complete text of a streamed body into its ordered event
// sequence. Events are separated by blank lines; a trailing event not closed
// by a final blank line is still included. Parse never fails: data payloads
// that are not valid JSON are retained as raw strings on Event.Data.
func Parse(body string) []Event {
	b := newBuilder()
	var events []Event

	// Tolerate both \n and \r\n framing; LLM providers emit \n but proxies
	// in between sometimes normalize to CRLF.
	for _, raw := range strings.Split(body, "\n") {
		raw = strings.TrimSuffix(raw, "\r")

		if raw == "" {
			if ev := b.flush(); ev != nil {
				events = append(events, *ev)
			}
			continue
		}

		b.line(raw)
	}

	// Unterminated trailing event.
	if ev := b.flush(); ev != nil {
		events = append(events, *ev)
	}

	return events
}
