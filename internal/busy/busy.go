// Package busy owns the state shared between the trigger path, the response
// streamer and the speech worker: the busy flag, the phrase queue and the
// playback bookkeeping.
//
// Every mutation goes through a [Coordinator] method under a single mutex.
// The busy flag is raised when an utterance is finalized and stays up until
// all phrases produced for it finished playing and the grace interval
// elapsed, unless a barge-in clears it first. While the flag is up the
// trigger path ignores audio so the system does not react to its own voice.
package busy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/tapvox/internal/phrase"
)

// ErrClosed is returned by [Coordinator.Next] once the coordinator is closed
// and its queue is drained.
var ErrClosed = errors.New("busy: coordinator closed")

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// Coordinator is the single owner of the busy state. The zero value is not
// usable; create one with [New].
type Coordinator struct {
	grace time.Duration
	now   func() time.Time

	mu         sync.Mutex
	busy       bool
	epoch      uint64
	pending    bool
	queue      []phrase.Phrase
	playing    bool
	playCancel context.CancelFunc
	lastDone   time.Time
	closed     bool

	wake chan struct{}
}

// New returns an idle Coordinator. grace is the quiet interval the speech
// worker observes after the last phrase before the busy flag may drop.
func New(grace time.Duration, opts ...Option) *Coordinator {
	c := &Coordinator{
		grace: grace,
		now:   time.Now,
		wake:  make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Grace returns the configured grace interval.
func (c *Coordinator) Grace() time.Duration { return c.grace }

// Busy reports whether the system is responding. A phrase cut short by a
// barge-in keeps Busy true until the speech worker confirms with Done.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy || c.playing
}

// Epoch returns the current response epoch.
func (c *Coordinator) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Begin raises the busy flag for a freshly finalized utterance and marks a
// response as pending. It returns the epoch the response must stamp on its
// phrases.
func (c *Coordinator) Begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = true
	c.pending = true
	return c.epoch
}

// Release abandons the pending response of epoch because there is nothing
// to respond to. Busy drops immediately if nothing is queued or playing.
func (c *Coordinator) Release(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return
	}
	c.pending = false
	if len(c.queue) == 0 && !c.playing {
		c.busy = false
	}
}

// BargeIn interrupts the current response: it clears the busy flag, drops
// every queued phrase, cancels the phrase being played and advances the
// epoch so phrases still arriving from the abandoned response are rejected.
func (c *Coordinator) BargeIn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	c.pending = false
	c.queue = nil
	c.epoch++
	if c.playCancel != nil {
		c.playCancel()
	}
}

// Enqueue appends p to the phrase queue. It returns false, dropping p, when
// p belongs to an abandoned epoch or the coordinator is closed.
func (c *Coordinator) Enqueue(p phrase.Phrase) bool {
	c.mu.Lock()
	if c.closed || p.Epoch != c.epoch {
		c.mu.Unlock()
		return false
	}
	c.queue = append(c.queue, p)
	c.mu.Unlock()
	c.signal()
	return true
}

// FinishResponse marks the response of epoch as complete, successfully or
// not. When nothing is left to play and the grace interval since the last
// phrase already elapsed, busy drops here; otherwise the speech worker's
// next Settle clears it. Stale epochs are ignored.
func (c *Coordinator) FinishResponse(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return
	}
	c.pending = false
	if len(c.queue) > 0 || c.playing {
		return
	}
	if c.lastDone.IsZero() || c.now().Sub(c.lastDone) >= c.grace {
		c.busy = false
	}
}

// Next blocks until a phrase is available and returns it together with a
// context that is cancelled on barge-in. The caller must call [Done] once
// the phrase finished or was abandoned. After [Close], Next drains the
// remaining queue and then returns [ErrClosed].
func (c *Coordinator) Next(ctx context.Context) (phrase.Phrase, context.Context, error) {
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			p := c.queue[0]
			c.queue[0] = phrase.Phrase{}
			c.queue = c.queue[1:]
			playCtx, cancel := context.WithCancel(ctx)
			c.playing = true
			c.playCancel = cancel
			c.mu.Unlock()
			return p, playCtx, nil
		}
		if c.closed {
			c.mu.Unlock()
			return phrase.Phrase{}, nil, ErrClosed
		}
		c.mu.Unlock()

		select {
		case <-c.wake:
		case <-ctx.Done():
			return phrase.Phrase{}, nil, ctx.Err()
		}
	}
}

// Done records that the phrase returned by the last Next call is no longer
// playing.
func (c *Coordinator) Done() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playCancel != nil {
		c.playCancel()
		c.playCancel = nil
	}
	c.playing = false
	c.lastDone = c.now()
}

// Idle reports whether nothing is queued or playing.
func (c *Coordinator) Idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue) == 0 && !c.playing
}

// Settle clears the busy flag if nothing is queued, playing or pending. The
// speech worker calls it after the grace interval. It reports whether busy
// is now false.
func (c *Coordinator) Settle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 && !c.playing && !c.pending {
		c.busy = false
	}
	return !c.busy
}

// Close stops accepting phrases. Queued phrases are still handed out by
// Next before it reports [ErrClosed]. Close is idempotent.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.signal()
}

func (c *Coordinator) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}
