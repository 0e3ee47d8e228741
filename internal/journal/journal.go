// Package journal appends one JSON line per handled utterance to a local
// file. The journal is write-only; it is never read back into the
// conversation.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Outcomes recorded in [Record.Outcome].
const (
	OutcomeResponded = "responded"
	OutcomeFailed    = "failed"
	OutcomeNoSpeech  = "no_speech"
	OutcomeSTTError  = "stt_error"
)

// Record is a single journal entry.
type Record struct {
	Timestamp  time.Time `json:"timestamp"`
	Epoch      uint64    `json:"epoch"`
	Outcome    string    `json:"outcome"`
	Utterance  float64   `json:"utterance_seconds"`
	Transcript string    `json:"transcript,omitempty"`
	Reply      string    `json:"reply,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// FileStore persists records as JSON lines. Safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewFileStore creates a FileStore writing to path. The file is created on
// the first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the journal file path.
func (fs *FileStore) Path() string { return fs.path }

// Append writes r. A zero Timestamp is set to the current time.
func (fs *FileStore) Append(r Record) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = fs.now().UTC()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("journal: marshal: %w", err)
	}
	data = append(data, '\n')

	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	return nil
}
