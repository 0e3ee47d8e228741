package speech

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrWong99/tapvox/internal/busy"
	"github.com/MrWong99/tapvox/internal/observe"
	"github.com/MrWong99/tapvox/internal/phrase"
)

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithMetrics overrides the metrics sink.
func WithMetrics(m *observe.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// WithSleep replaces the interruptible sleep used for pauses and the grace
// interval. Used by tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) WorkerOption {
	return func(w *Worker) { w.sleep = fn }
}

// Worker consumes phrases from a [busy.Coordinator].
type Worker struct {
	coord    *busy.Coordinator
	renderer Renderer
	metrics  *observe.Metrics
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewWorker creates a Worker rendering through r.
func NewWorker(c *busy.Coordinator, r Renderer, opts ...WorkerOption) *Worker {
	w := &Worker{coord: c, renderer: r, sleep: sleepCtx}
	for _, o := range opts {
		o(w)
	}
	if w.metrics == nil {
		w.metrics = observe.DefaultMetrics()
	}
	return w
}

// Run delivers phrases until the coordinator is closed and drained or ctx is
// cancelled. Both are a normal shutdown and return nil.
func (w *Worker) Run(ctx context.Context) error {
	for {
		p, playCtx, err := w.coord.Next(ctx)
		switch {
		case errors.Is(err, busy.ErrClosed):
			slog.Debug("speech: coordinator closed, worker exiting")
			return nil
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		w.deliver(playCtx, p)
		w.coord.Done()

		if w.coord.Idle() {
			if err := w.sleep(ctx, w.coord.Grace()); err != nil {
				return nil
			}
			w.coord.Settle()
		}
	}
}

// deliver renders p and waits its pause. Both are cut short by barge-in.
func (w *Worker) deliver(ctx context.Context, p phrase.Phrase) {
	text := Clean(p.Text)
	if text == "" {
		w.metrics.RecordPhrase(ctx, "skipped")
		return
	}

	stageCtx, end := observe.StartStage(ctx, "speech.render")
	start := time.Now()
	err := w.renderer.Render(stageCtx, text)
	w.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	end(err)

	switch {
	case ctx.Err() != nil:
		w.metrics.RecordPhrase(context.WithoutCancel(ctx), "interrupted")
		slog.Debug("speech: phrase interrupted", "text", text)
		return
	case err != nil:
		w.metrics.RecordPhrase(ctx, "failed")
		slog.Warn("speech: render failed", "text", text, "err", err)
	default:
		w.metrics.RecordPhrase(ctx, "spoken")
	}

	_ = w.sleep(ctx, p.Pause)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
