// Package speech delivers queued phrases to the listener.
//
// The [Worker] is the single consumer of the busy coordinator's phrase queue.
// It cleans each phrase, hands it to a [Renderer], waits the phrase's pause
// and, once the queue ran dry and the grace interval passed, lets the
// coordinator drop the busy flag.
package speech

import (
	"context"
	"strings"
	"unicode"
)

// Renderer speaks one phrase. Render blocks until the phrase finished
// playing. Cancelling ctx must stop playback promptly.
type Renderer interface {
	Render(ctx context.Context, text string) error
}

// RendererFunc adapts a function to [Renderer].
type RendererFunc func(ctx context.Context, text string) error

// Render implements [Renderer].
func (f RendererFunc) Render(ctx context.Context, text string) error { return f(ctx, text) }

var stripper = strings.NewReplacer("*", "", `"`, "", "“", "", "”", "", "«", "", "»", "")

// Clean removes markdown emphasis and quotes that speech engines read out
// literally. It returns "" when nothing speakable is left.
func Clean(text string) string {
	text = strings.TrimSpace(stripper.Replace(text))
	if !strings.ContainsFunc(text, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) {
		return ""
	}
	return text
}
