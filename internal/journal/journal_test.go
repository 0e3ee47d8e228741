package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileStore_Append(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.jsonl")
	fs := NewFileStore(path)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fs.now = func() time.Time { return fixed }

	if err := fs.Append(Record{Epoch: 1, Outcome: OutcomeResponded, Utterance: 1.5, Transcript: "hola", Reply: "Hola."}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := fs.Append(Record{Epoch: 2, Outcome: OutcomeNoSpeech}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var got []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		got = append(got, r)
	}
	if len(got) != 2 {
		t.Fatalf("records = %d, want 2", len(got))
	}
	if !got[0].Timestamp.Equal(fixed) || got[0].Reply != "Hola." || got[0].Transcript != "hola" {
		t.Errorf("record 0 = %+v", got[0])
	}
	if got[1].Outcome != OutcomeNoSpeech || got[1].Transcript != "" {
		t.Errorf("record 1 = %+v", got[1])
	}
}

func TestFileStore_ConcurrentAppend(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.jsonl")
	fs := NewFileStore(path)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fs.Append(Record{Epoch: uint64(i), Outcome: OutcomeResponded}); err != nil {
				t.Errorf("Append: %v", err)
			}
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 20 {
		t.Errorf("lines = %d, want 20", lines)
	}
}

func TestFileStore_OpenError(t *testing.T) {
	t.Parallel()

	fs := NewFileStore(filepath.Join(t.TempDir(), "missing", "dir", "journal.jsonl"))
	if err := fs.Append(Record{}); err == nil {
		t.Error("expected error for a missing directory")
	}
}
