// Package mock provides a test double for stt.Provider.
//
// Provider returns a fixed Transcript (or error) and records every request
// so tests can assert on the audio that reached transcription.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/tapvox/pkg/provider/stt"
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned from Transcribe when Err is nil.
	Result stt.Transcript

	// Err, if non-nil, is returned from Transcribe.
	Err error

	// Hold, if non-nil, is waited on before Transcribe returns. A cancelled
	// context wins.
	Hold <-chan struct{}

	// Calls records every request passed to Transcribe. Samples are copied.
	Calls []stt.Request
}

// Transcribe records the request and returns Result, Err.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	cp := req
	cp.Samples = append([]float32(nil), req.Samples...)

	p.mu.Lock()
	p.Calls = append(p.Calls, cp)
	hold := p.Hold
	p.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return stt.Transcript{}, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return stt.Transcript{}, p.Err
	}
	return p.Result, nil
}

// CallCount returns the number of Transcribe calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Requests returns a snapshot of all recorded requests.
func (p *Provider) Requests() []stt.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]stt.Request, len(p.Calls))
	copy(out, p.Calls)
	return out
}

var _ stt.Provider = (*Provider)(nil)
