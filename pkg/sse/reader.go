package sse

import (
	"bufio"
	"io"
)

// TeeReader reads SSE events from a source io.Reader while simultaneously
// writing all raw bytes verbatim to a destination io.Writer. The downstream
// client receives an exact copy of the stream while the caller inspects
// parsed events.
type TeeReader struct {
	scanner *bufio.Scanner
	dest    io.Writer
	b       *builder
}

// NewTeeReader returns a TeeReader that parses SSE events from src and
// writes all raw bytes through to dest. The dest writer typically backs an
// io.Pipe connected to the downstream HTTP response.
func NewTeeReader(src io.Reader, dest io.Writer) *TeeReader {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &TeeReader{
		scanner: scanner,
		dest:    dest,
		b:       newBuilder(),
	}
}

// Next returns the next parsed SSE event from the stream. It blocks until a
// complete event is available (terminated by a blank line) and returns
// nil, nil when the source is exhausted. A trailing event not closed by a
// final blank line is still yielded before exhaustion.
func (r *TeeReader) Next() (*Event, error) {
	for r.scanner.Scan() {
		raw := r.scanner.Text()

		// bufio.Scanner strips the newline from Scan() so we reinsert it
		// when teeing through to the destination.
		if _, err := io.WriteString(r.dest, raw+"\n"); err != nil {
			return nil, err
		}

		if raw == "" {
			if ev := r.b.flush(); ev != nil {
				return ev, nil
			}
			continue
		}

		r.b.line(raw)
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	if ev := r.b.flush(); ev != nil {
		return ev, nil
	}

	return nil, nil
}
