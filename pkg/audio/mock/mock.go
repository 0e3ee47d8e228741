// Package mock provides in-memory mock implementations of [audio.Source] and
// [audio.Player] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	src := mock.NewSource(
//	    audio.Frame{Samples: []float32{0.1}, SampleRate: 16000, Channels: 1},
//	    audio.Frame{Samples: []float32{0.9}, SampleRate: 16000, Channels: 1},
//	)
//	frame, err := src.Read(ctx)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/tapvox/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Source = (*Source)(nil)
	_ audio.Player = (*Player)(nil)
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.Source]. Frames pushed with
// [Source.Push] (or passed to [NewSource]) are returned by Read in order.
// Once the queue is empty, Read blocks until another frame is pushed, the
// source is closed, or ctx is cancelled.
type Source struct {
	frames chan audio.Frame

	mu sync.Mutex

	// ReadError, when non-nil, is returned by every Read call.
	ReadError error

	// CallCountRead records how many times Read was called.
	CallCountRead int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	closed chan struct{}
	once   sync.Once
}

// NewSource returns a Source pre-loaded with frames.
func NewSource(frames ...audio.Frame) *Source {
	s := &Source{
		frames: make(chan audio.Frame, len(frames)+1024),
		closed: make(chan struct{}),
	}
	for _, f := range frames {
		s.frames <- f
	}
	return s
}

// Push queues a frame for a future Read call.
func (s *Source) Push(f audio.Frame) {
	s.frames <- f
}

// Read implements [audio.Source].
func (s *Source) Read(ctx context.Context) (audio.Frame, error) {
	s.mu.Lock()
	s.CallCountRead++
	err := s.ReadError
	s.mu.Unlock()
	if err != nil {
		return audio.Frame{}, err
	}
	select {
	case f := <-s.frames:
		return f, nil
	case <-s.closed:
		return audio.Frame{}, context.Canceled
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	}
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	s.CallCountClose++
	s.mu.Unlock()
	s.once.Do(func() { close(s.closed) })
	return nil
}

// ─── Player ───────────────────────────────────────────────────────────────────

// PlayCall records the arguments of a single [Player.Play] invocation.
type PlayCall struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// PlayError is returned by Play.
	PlayError error

	// Block, when true, makes Play wait until ctx is cancelled and return
	// ctx.Err(), simulating a long clip interrupted mid-playback.
	Block bool

	// Started, when non-nil, receives one value per Play call after the call
	// has been recorded. Sends are non-blocking.
	Started chan struct{}

	// PlayCalls records all Play invocations.
	PlayCalls []PlayCall

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Play implements [audio.Player].
func (p *Player) Play(ctx context.Context, samples []float32, sampleRate, channels int) error {
	p.mu.Lock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	p.PlayCalls = append(p.PlayCalls, PlayCall{Samples: cp, SampleRate: sampleRate, Channels: channels})
	block, err, started := p.Block, p.PlayError, p.Started
	p.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

// Close implements [audio.Player].
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountClose++
	return nil
}

// Calls returns a snapshot of PlayCalls.
func (p *Player) Calls() []PlayCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PlayCall, len(p.PlayCalls))
	copy(out, p.PlayCalls)
	return out
}
