// Package dialogue runs the main listen → transcribe → respond loop.
//
// The [Loop] consumes captured frames, feeds them to the trigger state
// machine and performs the side effects of each transition: barge-in and the
// start cue when a recording starts; the end cue, transcription and the
// launch of an asynchronous response when it stops. Trigger evaluation never
// waits on the language model.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/tapvox/internal/busy"
	"github.com/MrWong99/tapvox/internal/effects"
	"github.com/MrWong99/tapvox/internal/journal"
	"github.com/MrWong99/tapvox/internal/observe"
	"github.com/MrWong99/tapvox/internal/trigger"
	"github.com/MrWong99/tapvox/pkg/audio"
	"github.com/MrWong99/tapvox/pkg/audio/wav"
	"github.com/MrWong99/tapvox/pkg/provider/stt"
)

// DefaultPollInterval is how long the loop waits for a frame before running
// its periodic checks.
const DefaultPollInterval = 100 * time.Millisecond

// FrameSource delivers captured frames. capture.Loop implements it.
type FrameSource interface {
	Frames() <-chan audio.Frame
	Flush() int
}

// Responder answers a transcript. responder.Responder implements it.
type Responder interface {
	Respond(ctx context.Context, text string, epoch uint64) (string, error)
}

// Journal records handled utterances. journal.FileStore implements it.
type Journal interface {
	Append(journal.Record) error
}

// Cues plays the start and end effects. effects.Set implements it.
type Cues interface {
	Play(ctx context.Context, cue effects.Cue)
}

// Config holds the loop's tunables.
type Config struct {
	// PollInterval bounds how long the loop blocks waiting for a frame.
	PollInterval time.Duration

	// StartDelay is waited after the start cue before audio is accepted.
	StartDelay time.Duration

	// MaxRecording stops a recording that ran this long without a stop
	// trigger. Zero disables the limit.
	MaxRecording time.Duration

	// Language is passed to the transcription provider.
	Language string

	// RecordingPath, when set, receives the last utterance as a WAV file.
	RecordingPath string

	// STTName labels the transcription provider in metrics.
	STTName string
}

// Deps are the collaborators of a Loop. Cues and Journal are optional.
type Deps struct {
	Frames    FrameSource
	Machine   *trigger.Machine
	Coord     *busy.Coordinator
	STT       stt.Provider
	Responder Responder
	Cues      Cues
	Journal   Journal
	Metrics   *observe.Metrics
}

// Loop is the dialogue loop. Run must be called at most once.
type Loop struct {
	cfg  Config
	deps Deps

	sleep   func(ctx context.Context, d time.Duration) error
	wg      sync.WaitGroup
	pending atomic.Pointer[TriggerUpdate]
}

// TriggerUpdate carries trigger settings changed at runtime.
type TriggerUpdate struct {
	Trigger      trigger.Config
	MaxRecording time.Duration
}

// UpdateTrigger schedules new trigger settings. They are applied by the loop
// goroutine before it evaluates the next frame. Safe for concurrent use.
func (l *Loop) UpdateTrigger(u TriggerUpdate) {
	l.pending.Store(&u)
}

func (l *Loop) applyPending() {
	u := l.pending.Swap(nil)
	if u == nil {
		return
	}
	l.deps.Machine.SetConfig(u.Trigger)
	l.cfg.StartDelay = u.Trigger.StartDelay
	l.cfg.MaxRecording = u.MaxRecording
	slog.Info("dialogue: trigger settings updated",
		"threshold", u.Trigger.Threshold,
		"debounce", u.Trigger.Debounce,
		"max_recording", u.MaxRecording,
	)
}

// Option configures a Loop.
type Option func(*Loop)

// WithSleep replaces the interruptible sleep used for the start delay.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Loop) { l.sleep = fn }
}

// New creates a Loop. Zero config values select defaults.
func New(cfg Config, deps Deps, opts ...Option) *Loop {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.STTName == "" {
		cfg.STTName = "stt"
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	l := &Loop{cfg: cfg, deps: deps, sleep: sleepCtx}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Run drives the loop until ctx is cancelled or the frame source closes. It
// waits for in-flight responses before returning.
func (l *Loop) Run(ctx context.Context) error {
	defer l.wg.Wait()

	frames := l.deps.Frames.Frames()
	timer := time.NewTimer(l.cfg.PollInterval)
	defer timer.Stop()

	slog.Info("dialogue: listening", "threshold", l.deps.Machine.Config().Threshold)
	for {
		timer.Reset(l.cfg.PollInterval)
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-frames:
			if !ok {
				slog.Info("dialogue: frame source closed")
				return nil
			}
			l.handle(ctx, f)
		case <-timer.C:
			l.tick(ctx)
		}
	}
}

// Wait blocks until every launched response finished.
func (l *Loop) Wait() { l.wg.Wait() }

func (l *Loop) handle(ctx context.Context, f audio.Frame) {
	l.applyPending()
	res := l.deps.Machine.Evaluate(f, l.deps.Coord.Busy())
	switch res.Transition {
	case trigger.Start:
		l.onStart(ctx)
	case trigger.Stop:
		l.onStop(ctx, res.Utterance)
	default:
		if l.overLimit() {
			l.forceStop(ctx)
		}
	}
}

// tick runs when no frame arrived within the poll interval.
func (l *Loop) tick(ctx context.Context) {
	l.applyPending()
	if l.overLimit() {
		l.forceStop(ctx)
	}
}

func (l *Loop) overLimit() bool {
	return l.cfg.MaxRecording > 0 && l.deps.Machine.Elapsed() >= l.cfg.MaxRecording
}

func (l *Loop) forceStop(ctx context.Context) {
	u, ok := l.deps.Machine.Stop()
	if !ok {
		return
	}
	slog.Warn("dialogue: recording hit the length limit, stopping", "limit", l.cfg.MaxRecording)
	l.onStop(ctx, u)
}

func (l *Loop) onStart(ctx context.Context) {
	m := l.deps.Metrics
	m.RecordTrigger(ctx, trigger.Start.String())

	if !l.deps.Coord.Idle() {
		m.BargeIns.Add(ctx, 1)
		slog.Info("dialogue: interrupting current response")
	}
	l.deps.Coord.BargeIn()

	l.playCue(ctx, effects.Start)
	if err := l.sleep(ctx, l.cfg.StartDelay); err != nil {
		return
	}
	n := l.deps.Frames.Flush()
	slog.Info("dialogue: recording", "discarded_frames", n)
}

func (l *Loop) onStop(ctx context.Context, u trigger.Utterance) {
	m := l.deps.Metrics
	epoch := l.deps.Coord.Begin()
	m.RecordTrigger(ctx, trigger.Stop.String())
	l.playCue(ctx, effects.End)

	// Frames captured while transcribing are ignored (busy); drop them so the
	// capture queue does not overflow.
	defer l.deps.Frames.Flush()

	rec := journal.Record{Epoch: epoch, Utterance: u.Duration().Seconds()}
	log := slog.With("epoch", epoch, "duration", u.Duration())

	if u.Empty() {
		log.Info("dialogue: empty utterance")
		l.deps.Coord.Release(epoch)
		m.RecordUtterance(ctx, "empty")
		return
	}
	m.UtteranceLength.Record(ctx, u.Duration().Seconds())
	l.saveRecording(u)

	text, err := l.transcribe(ctx, u)
	switch {
	case err != nil:
		if ctx.Err() == nil {
			log.Error("dialogue: transcription failed", "err", err)
		}
		l.deps.Coord.Release(epoch)
		m.RecordUtterance(ctx, "stt_error")
		rec.Outcome, rec.Error = journal.OutcomeSTTError, err.Error()
		l.record(rec)
		return
	case text == "":
		log.Info("dialogue: no speech detected")
		l.deps.Coord.Release(epoch)
		m.RecordUtterance(ctx, "no_speech")
		rec.Outcome = journal.OutcomeNoSpeech
		l.record(rec)
		return
	}

	log.Info("dialogue: heard", "text", text)
	m.RecordUtterance(ctx, "responded")
	rec.Transcript = text

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		reply, err := l.deps.Responder.Respond(ctx, text, epoch)
		rec.Reply = reply
		rec.Outcome = journal.OutcomeResponded
		if err != nil {
			rec.Outcome, rec.Error = journal.OutcomeFailed, err.Error()
		}
		l.record(rec)
	}()
}

func (l *Loop) transcribe(ctx context.Context, u trigger.Utterance) (text string, err error) {
	m := l.deps.Metrics
	ctx, end := observe.StartStage(ctx, "stt.transcribe", observe.Attr("provider", l.cfg.STTName))
	defer func() { end(err) }()

	start := time.Now()
	tr, err := l.deps.STT.Transcribe(ctx, stt.Request{
		Samples:    u.Samples,
		SampleRate: u.SampleRate,
		Channels:   u.Channels,
		Language:   l.cfg.Language,
	})
	m.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		m.RecordProviderRequest(ctx, l.cfg.STTName, "stt", "error")
		m.RecordProviderError(ctx, l.cfg.STTName, "stt")
		return "", err
	}
	m.RecordProviderRequest(ctx, l.cfg.STTName, "stt", "ok")
	return strings.TrimSpace(tr.Text), nil
}

func (l *Loop) saveRecording(u trigger.Utterance) {
	if l.cfg.RecordingPath == "" {
		return
	}
	if err := wav.WriteFile(l.cfg.RecordingPath, u.Samples, u.SampleRate, max(u.Channels, 1)); err != nil {
		slog.Warn("dialogue: could not save recording", "path", l.cfg.RecordingPath, "err", err)
	}
}

func (l *Loop) playCue(ctx context.Context, cue effects.Cue) {
	if l.deps.Cues != nil {
		l.deps.Cues.Play(ctx, cue)
	}
}

func (l *Loop) record(r journal.Record) {
	if l.deps.Journal == nil {
		return
	}
	if err := l.deps.Journal.Append(r); err != nil {
		slog.Warn("dialogue: journal write failed", "err", err)
	}
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

// ErrMissingDependency is returned by [Deps.Validate].
var ErrMissingDependency = errors.New("dialogue: missing dependency")

// Validate reports missing required collaborators.
func (d Deps) Validate() error {
	var errs []error
	check := func(name string, ok bool) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingDependency, name))
		}
	}
	check("Frames", d.Frames != nil)
	check("Machine", d.Machine != nil)
	check("Coord", d.Coord != nil)
	check("STT", d.STT != nil)
	check("Responder", d.Responder != nil)
	return errors.Join(errs...)
}
