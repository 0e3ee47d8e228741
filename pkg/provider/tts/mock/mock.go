// Package mock provides a test double for tts.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/tapvox/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Provider.Synthesize.
type SynthesizeCall struct {
	Text  string
	Voice tts.Voice
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned from Synthesize when Err is nil. The zero value
	// yields a 10-sample silent clip at 16 kHz mono.
	Result tts.Audio

	// Err, if non-nil, is returned from Synthesize.
	Err error

	// Calls records every Synthesize invocation.
	Calls []SynthesizeCall
}

// Synthesize records the call and returns Result, Err.
func (p *Provider) Synthesize(_ context.Context, text string, voice tts.Voice) (tts.Audio, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, SynthesizeCall{Text: text, Voice: voice})
	if p.Err != nil {
		return tts.Audio{}, p.Err
	}
	if p.Result.SampleRate == 0 {
		return tts.Audio{Samples: make([]float32, 10), SampleRate: 16000, Channels: 1}, nil
	}
	out := p.Result
	out.Samples = append([]float32(nil), p.Result.Samples...)
	return out, nil
}

// Texts returns the text of every recorded call in order.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Text
	}
	return out
}

var _ tts.Provider = (*Provider)(nil)
