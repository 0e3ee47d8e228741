// Package app wires the tapvox subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the capture, dialogue and speech tasks under one
// errgroup, and Shutdown releases the audio devices.
//
// For testing, pass mock providers and audio devices in [Providers] and use
// the functional options to replace the sleep or metrics instances.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/tapvox/internal/busy"
	"github.com/MrWong99/tapvox/internal/capture"
	"github.com/MrWong99/tapvox/internal/config"
	"github.com/MrWong99/tapvox/internal/dialogue"
	"github.com/MrWong99/tapvox/internal/effects"
	"github.com/MrWong99/tapvox/internal/health"
	"github.com/MrWong99/tapvox/internal/history"
	"github.com/MrWong99/tapvox/internal/journal"
	"github.com/MrWong99/tapvox/internal/observe"
	"github.com/MrWong99/tapvox/internal/phrase"
	"github.com/MrWong99/tapvox/internal/resilience"
	"github.com/MrWong99/tapvox/internal/responder"
	"github.com/MrWong99/tapvox/internal/speech"
	"github.com/MrWong99/tapvox/internal/trigger"
	"github.com/MrWong99/tapvox/pkg/audio"
	"github.com/MrWong99/tapvox/pkg/provider/llm"
	"github.com/MrWong99/tapvox/pkg/provider/stt"
	"github.com/MrWong99/tapvox/pkg/provider/tts"
)

// Named pairs a provider with the name it was configured under.
type Named[T any] struct {
	Name     string
	Provider T
}

// Providers holds the instantiated collaborators. Each provider list starts
// with the primary followed by its fallbacks in order. Populated by main.go
// via the config registry.
type Providers struct {
	LLM []Named[llm.Provider]
	STT []Named[stt.Provider]
	TTS []Named[tts.Provider]

	Source audio.Source
	Player audio.Player

	// Volume, when set, is raised before each phrase.
	Volume speech.VolumeControl
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	levelVar  *slog.LevelVar
	sleep     func(ctx context.Context, d time.Duration) error

	llm *resilience.LLMFallback
	stt *resilience.STTFallback
	tts *resilience.TTSFallback

	history *history.History
	coord   *busy.Coordinator
	capture *capture.Loop
	worker  *speech.Worker
	loop    *dialogue.Loop
	health  *health.Handler

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics replaces the metrics instance. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets [App.Reload] adjust the log level at runtime.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// WithSleep replaces the interruptible sleep used by the dialogue loop and
// the speech worker. Used by tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(a *App) { a.sleep = fn }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers come
// from main.go; Shutdown closes the audio devices they hold.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if err := a.initProviders(); err != nil {
		return nil, fmt.Errorf("app: init providers: %w", err)
	}
	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}
	a.initHealth()
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initProviders() error {
	p := a.providers
	switch {
	case len(p.LLM) == 0:
		return fmt.Errorf("an LLM provider is required")
	case len(p.STT) == 0:
		return fmt.Errorf("an STT provider is required")
	case len(p.TTS) == 0:
		return fmt.Errorf("a TTS provider is required")
	case p.Source == nil || p.Player == nil:
		return fmt.Errorf("audio source and player are required")
	}
	a.closers = append(a.closers, p.Source.Close, p.Player.Close)

	fcfg := resilience.FallbackConfig{}
	a.llm = resilience.NewLLMFallback(p.LLM[0].Provider, p.LLM[0].Name, fcfg)
	for _, n := range p.LLM[1:] {
		a.llm.AddFallback(n.Name, n.Provider)
	}
	a.stt = resilience.NewSTTFallback(p.STT[0].Provider, p.STT[0].Name, fcfg)
	for _, n := range p.STT[1:] {
		a.stt.AddFallback(n.Name, n.Provider)
	}
	a.tts = resilience.NewTTSFallback(p.TTS[0].Provider, p.TTS[0].Name, fcfg)
	for _, n := range p.TTS[1:] {
		a.tts.AddFallback(n.Name, n.Provider)
	}
	return nil
}

func (a *App) initPipeline() error {
	cfg := a.cfg
	delims, err := phrase.ParseDelimiters(cfg.Speech.Delimiters)
	if err != nil {
		return err
	}

	a.history = history.New(cfg.Conversation.SystemPrompt, cfg.Conversation.PrimingAck, cfg.Conversation.MaxContextPairs)
	a.coord = busy.New(cfg.Speech.Grace)

	resp := responder.New(a.llm, a.history, a.coord,
		responder.WithTimeout(cfg.Conversation.RequestTimeout),
		responder.WithDelimiters(delims),
		responder.WithDefaultPause(cfg.Speech.DefaultPause),
		responder.WithSampling(cfg.Conversation.Temperature, cfg.Conversation.MaxTokens),
		responder.WithMetrics(a.metrics),
		responder.WithProviderName(a.providers.LLM[0].Name),
	)

	synthOpts := []speech.SynthOption{
		speech.WithVoice(tts.Voice{ID: cfg.Speech.Voice, Language: cfg.Conversation.Language, Speed: cfg.Speech.Rate}),
		speech.WithGain(cfg.Speech.Volume),
		speech.WithOutputRate(cfg.Speech.OutputRate),
	}
	if a.providers.Volume != nil {
		synthOpts = append(synthOpts, speech.WithVolumeControl(a.providers.Volume))
	}
	renderer := speech.NewSynthRenderer(a.tts, a.providers.Player, synthOpts...)

	workerOpts := []speech.WorkerOption{speech.WithMetrics(a.metrics)}
	if a.sleep != nil {
		workerOpts = append(workerOpts, speech.WithSleep(a.sleep))
	}
	a.worker = speech.NewWorker(a.coord, renderer, workerOpts...)

	a.capture = capture.New(a.providers.Source,
		capture.WithQueueSize(cfg.Capture.QueueSize),
		capture.WithMetrics(a.metrics),
	)

	deps := dialogue.Deps{
		Frames:    a.capture,
		Machine:   trigger.New(triggerConfig(cfg.Trigger)),
		Coord:     a.coord,
		STT:       a.stt,
		Responder: resp,
		Cues: effects.Load(a.providers.Player, map[effects.Cue]string{
			effects.Start: cfg.Effects.Start,
			effects.End:   cfg.Effects.End,
		}),
		Metrics: a.metrics,
	}
	// Left nil when disabled so the loop skips journaling.
	if cfg.Recording.JournalPath != "" {
		deps.Journal = journal.NewFileStore(cfg.Recording.JournalPath)
	}
	if err := deps.Validate(); err != nil {
		return err
	}

	loopOpts := []dialogue.Option{}
	if a.sleep != nil {
		loopOpts = append(loopOpts, dialogue.WithSleep(a.sleep))
	}
	a.loop = dialogue.New(dialogue.Config{
		PollInterval:  cfg.Capture.PollInterval,
		StartDelay:    cfg.Trigger.StartDelay,
		MaxRecording:  cfg.Trigger.MaxRecording,
		Language:      cfg.Conversation.Language,
		RecordingPath: cfg.Recording.OutputPath,
		STTName:       a.providers.STT[0].Name,
	}, deps, loopOpts...)
	return nil
}

func (a *App) initHealth() {
	type group interface {
		States() map[string]resilience.State
		Healthy() bool
	}
	check := func(name string, g group) health.Checker {
		return health.Checker{
			Name: name,
			Check: func(context.Context) error {
				if g.Healthy() {
					return nil
				}
				return fmt.Errorf("all %s circuits open: %v", name, g.States())
			},
		}
	}
	a.health = health.New(
		check("llm", a.llm),
		check("stt", a.stt),
		check("tts", a.tts),
	).WithStatus(a.status)
}

// status is the /healthz runtime snapshot.
func (a *App) status() map[string]string {
	return map[string]string{
		"busy":           strconv.FormatBool(a.coord.Busy()),
		"epoch":          strconv.FormatUint(a.coord.Epoch(), 10),
		"history_turns":  strconv.Itoa(a.history.Len()),
		"dropped_frames": strconv.FormatInt(a.capture.Dropped(), 10),
	}
}

func triggerConfig(t config.TriggerConfig) trigger.Config {
	return trigger.Config{
		Threshold:  t.Threshold,
		Debounce:   t.Debounce,
		StartDelay: t.StartDelay,
		EndTrim:    t.EndTrim,
	}
}

// ─── Warm-up ─────────────────────────────────────────────────────────────────

// Warmup sends the warm-up prompt so the model is loaded before the first
// utterance. An error here should abort startup.
func (a *App) Warmup(ctx context.Context) error {
	reply, err := responder.Warmup(ctx, a.llm, a.cfg.Conversation.WarmupPrompt, a.cfg.Conversation.WarmupTimeout)
	if err != nil {
		return fmt.Errorf("app: warm-up: %w", err)
	}
	slog.Info("model ready", "reply", reply)
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts capture, the dialogue loop, the speech worker and, when
// server.listen_addr is set, the observability server. It blocks until ctx is
// cancelled, the audio source ends or a task fails.
//
// When the dialogue loop stops the coordinator is closed. On cancellation
// pending speech is dropped first; when the source simply ended the worker
// finishes the queued phrases.
func (a *App) Run(ctx context.Context) error {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error { return a.capture.Run(gctx) })
	g.Go(func() error {
		defer stop()
		err := a.loop.Run(gctx)
		if gctx.Err() != nil {
			a.coord.BargeIn()
		}
		a.coord.Close()
		return err
	})
	g.Go(func() error { return a.worker.Run(context.WithoutCancel(gctx)) })

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error { return serve(gctx, srv) })
	}

	return g.Wait()
}

// Reload applies the hot-reloadable parts of a changed configuration.
// Suitable as a [config.Watcher] callback.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.TriggerChanged {
		a.loop.UpdateTrigger(dialogue.TriggerUpdate{
			Trigger:      triggerConfig(d.NewTrigger),
			MaxRecording: d.NewTrigger.MaxRecording,
		})
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("configuration changes need a restart to apply", "sections", d.RestartRequired)
	}
}

// ProviderStates reports the circuit state of every configured provider,
// keyed by kind and name.
func (a *App) ProviderStates() map[string]resilience.State {
	out := make(map[string]resilience.State)
	for kind, states := range map[string]map[string]resilience.State{
		"llm": a.llm.States(),
		"stt": a.stt.States(),
		"tts": a.tts.States(),
	} {
		for _, name := range slices.Sorted(maps.Keys(states)) {
			out[kind+"/"+name] = states[name]
		}
	}
	return out
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases the audio devices. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
