// Package mock provides a scripted llm.Provider for tests.
//
//	p := &mock.Provider{StreamChunks: []llm.Chunk{{Text: "Hola"}, {Text: ", bien."}}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/tapvox/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Call is one recorded request. Messages are copied, so later history edits
// do not show up in the record.
type Call struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider replays StreamChunks on every stream and returns CompleteResponse
// from Complete. Configure it before use; the call records may be read while
// calls are in flight through [Provider.Streams].
type Provider struct {
	StreamChunks []llm.Chunk
	// StreamErr makes StreamCompletion fail without opening a channel.
	StreamErr error
	// StreamHold, when set, pauses every stream after its first chunk until
	// it is closed.
	StreamHold <-chan struct{}

	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	mu            sync.Mutex
	StreamCalls   []Call
	CompleteCalls []Call
}

func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, record(ctx, req))
	err, hold := p.StreamErr, p.StreamHold
	chunks := append([]llm.Chunk(nil), p.StreamChunks...)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for i, c := range chunks {
			if i == 1 && hold != nil {
				select {
				case <-hold:
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, record(ctx, req))
	return p.CompleteResponse, p.CompleteErr
}

// Streams returns a copy of StreamCalls.
func (p *Provider) Streams() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.StreamCalls...)
}

func record(ctx context.Context, req llm.CompletionRequest) Call {
	req.Messages = append([]llm.Message(nil), req.Messages...)
	return Call{Ctx: ctx, Req: req}
}
