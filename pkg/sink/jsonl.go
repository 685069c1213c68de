package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/papercomputeco/splice/pkg/record"
)

// JSONL appends one JSON document per line to a file, the capture log format
// the report command folds back into conversations.
type JSONL struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONL opens (or creates) the capture log at path for appending.
func NewJSONL(path string) (*JSONL, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening capture log: %w", err)
	}

	return &JSONL{
		file: file,
		enc:  json.NewEncoder(file),
	}, nil
}

func (j *JSONL) Emit(entry *record.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.enc.Encode(entry); err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}
	return nil
}

func (j *JSONL) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.file.Close()
}

// ReadJSONL loads a capture log written by JSONL back into memory. Lines
// that fail to decode are skipped; a capture log may be mid-write.
func ReadJSONL(path string) ([]*record.Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening capture log: %w", err)
	}
	defer file.Close()

	var entries []*record.Entry
	dec := json.NewDecoder(file)
	for dec.More() {
		entry := &record.Entry{}
		if err := dec.Decode(entry); err != nil {
			break
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
