// Package phrase splits a streamed language-model response into speakable
// phrases.
//
// A [Segmenter] is fed content fragments as they arrive and emits a [Phrase]
// every time one of its delimiters is seen. Each delimiter carries the pause
// to leave after the phrase it terminates. Emitted text is never trimmed or
// rewritten, so concatenating every phrase (plus the flushed remainder)
// reproduces the response exactly.
package phrase

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultPause is used for delimiters without an explicit pause and for the
// text flushed at end of stream.
const DefaultPause = 500 * time.Millisecond

// Phrase is one speakable unit of a response.
type Phrase struct {
	// Text is the exact slice of the response, including surrounding
	// whitespace and the terminating delimiter.
	Text string

	// Pause is how long to stay silent after speaking Text.
	Pause time.Duration

	// Epoch identifies the response that produced the phrase.
	Epoch uint64
}

// Delimiters maps a delimiter character to the pause that follows it.
type Delimiters map[rune]time.Duration

// DefaultDelimiters returns the standard punctuation table.
func DefaultDelimiters() Delimiters {
	return Delimiters{
		'.': 500 * time.Millisecond,
		'?': 600 * time.Millisecond,
		'!': 500 * time.Millisecond,
		',': 200 * time.Millisecond,
		';': 300 * time.Millisecond,
		':': 300 * time.Millisecond,
		')': 200 * time.Millisecond,
	}
}

// ParseDelimiters converts a string-keyed table (as found in configuration)
// into Delimiters. Every key must be exactly one character.
func ParseDelimiters(m map[string]time.Duration) (Delimiters, error) {
	out := make(Delimiters, len(m))
	for k, d := range m {
		r, size := utf8.DecodeRuneInString(k)
		if r == utf8.RuneError || size != len(k) {
			return nil, fmt.Errorf("phrase: delimiter %q must be a single character", k)
		}
		if d < 0 {
			return nil, fmt.Errorf("phrase: delimiter %q has negative pause %s", k, d)
		}
		out[r] = d
	}
	return out, nil
}

// Segmenter incrementally segments a text stream. Each byte is scanned at
// most once, so segmenting a response costs O(total length) regardless of
// how it is fragmented. A Segmenter is not safe for concurrent use.
type Segmenter struct {
	delims       Delimiters
	defaultPause time.Duration
	epoch        uint64

	pending []byte
	scanned int
}

// NewSegmenter returns a Segmenter stamping phrases with epoch. A nil delims
// selects [DefaultDelimiters]; defaultPause <= 0 selects [DefaultPause].
func NewSegmenter(delims Delimiters, defaultPause time.Duration, epoch uint64) *Segmenter {
	if delims == nil {
		delims = DefaultDelimiters()
	}
	if defaultPause <= 0 {
		defaultPause = DefaultPause
	}
	return &Segmenter{delims: delims, defaultPause: defaultPause, epoch: epoch}
}

// Push appends a fragment and returns every phrase it completes, in text
// order.
func (s *Segmenter) Push(fragment string) []Phrase {
	if fragment == "" {
		return nil
	}
	s.pending = append(s.pending, fragment...)

	var (
		out   []Phrase
		start int
	)
	i := s.scanned
	for i < len(s.pending) {
		if !utf8.FullRune(s.pending[i:]) {
			// The rest of this rune arrives with the next fragment.
			break
		}
		r, size := utf8.DecodeRune(s.pending[i:])
		i += size
		if pause, ok := s.delims[r]; ok {
			out = append(out, Phrase{
				Text:  string(s.pending[start:i]),
				Pause: pause,
				Epoch: s.epoch,
			})
			start = i
		}
	}

	if start > 0 {
		s.pending = append(s.pending[:0], s.pending[start:]...)
	}
	s.scanned = i - start
	return out
}

// Flush returns the unterminated remainder with the default pause. ok is
// false when the remainder is empty or whitespace only. The Segmenter is
// empty afterwards.
func (s *Segmenter) Flush() (p Phrase, ok bool) {
	rest := string(s.pending)
	s.pending = s.pending[:0]
	s.scanned = 0
	if strings.TrimSpace(rest) == "" {
		return Phrase{}, false
	}
	return Phrase{Text: rest, Pause: s.defaultPause, Epoch: s.epoch}, true
}

// Pending returns the buffered text not yet emitted.
func (s *Segmenter) Pending() string {
	return string(s.pending)
}
