// Package capture pumps frames from an audio source into a bounded channel.
//
// The [Loop] runs on its own goroutine for the lifetime of the process. When
// the consumer falls behind and the channel fills up, the newest frame is
// dropped so capture never blocks on the device.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrWong99/tapvox/internal/observe"
	"github.com/MrWong99/tapvox/pkg/audio"
)

const (
	// DefaultQueueSize is the channel capacity in frames.
	DefaultQueueSize = 64

	// DefaultWarnInterval throttles the "queue full" warning.
	DefaultWarnInterval = 5 * time.Second
)

// Option configures a Loop.
type Option func(*Loop)

// WithQueueSize sets the channel capacity. Values below 1 keep the default.
func WithQueueSize(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.queueSize = n
		}
	}
}

// WithWarnInterval sets the minimum time between drop warnings.
func WithWarnInterval(d time.Duration) Option {
	return func(l *Loop) { l.warnInterval = d }
}

// WithMetrics overrides the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// Loop reads frames from a Source and delivers them in order on [Loop.Frames].
type Loop struct {
	src          audio.Source
	queueSize    int
	warnInterval time.Duration
	metrics      *observe.Metrics
	now          func() time.Time

	frames  chan audio.Frame
	dropped atomic.Int64

	// Throttling state; only touched by the Run goroutine.
	lastWarn      time.Time
	droppedAtWarn int64
}

// New creates a Loop for src. Run must be called to start capturing.
func New(src audio.Source, opts ...Option) *Loop {
	l := &Loop{
		src:          src,
		queueSize:    DefaultQueueSize,
		warnInterval: DefaultWarnInterval,
		now:          time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	l.frames = make(chan audio.Frame, l.queueSize)
	return l
}

// Frames returns the receive side of the frame channel. It is closed when
// Run returns.
func (l *Loop) Frames() <-chan audio.Frame { return l.frames }

// Flush discards every frame currently queued and returns how many were
// discarded.
func (l *Loop) Flush() int { return audio.DrainPending(l.frames) }

// Dropped returns the number of frames dropped on a full queue so far.
func (l *Loop) Dropped() int64 { return l.dropped.Load() }

// Run reads frames until ctx is cancelled or the source ends. A cancelled
// context and a source at EOF are normal exits and return nil.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.frames)
	for {
		f, err := l.src.Read(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil, errors.Is(err, context.Canceled):
				return nil
			case errors.Is(err, io.EOF):
				slog.Info("capture: audio source ended")
				return nil
			default:
				return fmt.Errorf("capture: read: %w", err)
			}
		}

		select {
		case l.frames <- f:
		default:
			l.drop(ctx)
		}
	}
}

func (l *Loop) drop(ctx context.Context) {
	total := l.dropped.Add(1)
	l.metrics.DroppedFrames.Add(ctx, 1)

	now := l.now()
	if !l.lastWarn.IsZero() && now.Sub(l.lastWarn) < l.warnInterval {
		return
	}
	slog.Warn("capture: frame queue full, dropping frames",
		"dropped_since_last_warning", total-l.droppedAtWarn,
		"dropped_total", total,
		"queue_size", l.queueSize)
	l.lastWarn = now
	l.droppedAtWarn = total
}
