package conversation

import (
	"bytes"
	"encoding/json"
	"reflect"
)

// Equality selects how the merger compares message objects when testing
// whether one history is a prefix of another.
type Equality string

const (
	// EqualityStrict compares compacted JSON byte-for-byte. Two messages
	// differing only in key order or in a server-assigned id are distinct.
	EqualityStrict Equality = "strict"

	// EqualityStructural compares decoded values, ignoring key order and
	// stripping server-assigned "id" and "signature" fields anywhere in the
	// message, so histories where the API echoes fresh identifiers still
	// match.
	EqualityStructural Equality = "structural"
)

// messagesEqual compares two raw message objects under the given mode.
func messagesEqual(eq Equality, a, b json.RawMessage) bool {
	switch eq {
	case EqualityStructural:
		var va, vb any
		if err := json.Unmarshal(a, &va); err != nil {
			return false
		}
		if err := json.Unmarshal(b, &vb); err != nil {
			return false
		}
		return reflect.DeepEqual(stripVolatile(va), stripVolatile(vb))

	default:
		return bytes.Equal(compact(a), compact(b))
	}
}

// isPrefix reports whether shorter is an exact element-wise prefix of longer.
func isPrefix(eq Equality, shorter, longer []json.RawMessage) bool {
	if len(shorter) > len(longer) {
		return false
	}
	for i := range shorter {
		if !messagesEqual(eq, shorter[i], longer[i]) {
			return false
		}
	}
	return true
}

// compact normalizes whitespace in a raw JSON value. Invalid JSON is
// returned as-is and compared byte-for-byte.
func compact(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

// stripVolatile removes "id" and "signature" keys recursively. These are
// server-assigned and may differ between a response and its echo in the
// next request's history.
func stripVolatile(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if k == "id" || k == "signature" {
				continue
			}
			out[k] = stripVolatile(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = stripVolatile(inner)
		}
		return out
	default:
		return v
	}
}
