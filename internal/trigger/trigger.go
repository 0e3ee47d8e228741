// Package trigger implements the clap-to-talk state machine.
//
// A [Machine] watches the peak amplitude of every captured frame. A loud
// frame (above the threshold, and more than the debounce interval after the
// previous one) toggles between Idle and Recording. Frames received while
// Recording are collected into an utterance, which is returned trimmed when
// the second trigger stops the recording.
package trigger

import (
	"time"

	"github.com/MrWong99/tapvox/pkg/audio"
)

// Defaults for a 16 kHz mono USB microphone.
const (
	DefaultThreshold  = 0.4
	DefaultDebounce   = 1500 * time.Millisecond
	DefaultStartDelay = 300 * time.Millisecond
	DefaultEndTrim    = 500 * time.Millisecond
)

// State is the recording state.
type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	default:
		return "unknown"
	}
}

// Transition is the outcome of evaluating one frame.
type Transition int

const (
	// None means the frame did not change state.
	None Transition = iota
	// Start means Idle → Recording.
	Start
	// Stop means Recording → Idle; the Result carries the utterance.
	Stop
)

func (t Transition) String() string {
	switch t {
	case None:
		return "none"
	case Start:
		return "start"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// Config holds the trigger parameters.
type Config struct {
	// Threshold is the peak amplitude (0–1) a frame must exceed.
	Threshold float64

	// Debounce is the minimum interval between two trigger events.
	Debounce time.Duration

	// StartDelay is how long the caller waits after a Start before accepting
	// audio, so the start effect and the clap tail are not recorded.
	StartDelay time.Duration

	// EndTrim is the amount of audio dropped from the end of an utterance,
	// which removes the stop clap.
	EndTrim time.Duration
}

// DefaultConfig returns the stock trigger parameters.
func DefaultConfig() Config {
	return Config{
		Threshold:  DefaultThreshold,
		Debounce:   DefaultDebounce,
		StartDelay: DefaultStartDelay,
		EndTrim:    DefaultEndTrim,
	}
}

// Utterance is the audio recorded between two triggers.
type Utterance struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Empty reports whether the utterance holds no audio.
func (u Utterance) Empty() bool { return len(u.Samples) == 0 }

// Duration returns the length of the utterance.
func (u Utterance) Duration() time.Duration {
	return audio.SamplesDuration(len(u.Samples), u.SampleRate, u.Channels)
}

// Result is returned by [Machine.Evaluate].
type Result struct {
	Transition Transition

	// Utterance is set on Stop only.
	Utterance Utterance
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock replaces the time source used for debouncing.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// Machine is the trigger state machine. It is driven from a single goroutine
// and is not safe for concurrent use.
type Machine struct {
	cfg Config
	now func() time.Time

	state       State
	lastTrigger time.Time
	triggered   bool
	startedAt   time.Time

	buf        []float32
	sampleRate int
	channels   int
}

// New returns a Machine in the Idle state.
func New(cfg Config, opts ...Option) *Machine {
	m := &Machine{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Config returns the machine's parameters.
func (m *Machine) Config() Config { return m.cfg }

// SetConfig replaces the parameters. It takes effect from the next frame; a
// recording in progress keeps its buffer.
func (m *Machine) SetConfig(cfg Config) { m.cfg = cfg }

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Evaluate feeds one frame. busy reports whether the system is currently
// responding. While Idle and busy only frames above the threshold are looked
// at; one that passes the debounce starts a recording, and the caller is
// expected to barge in on the response.
func (m *Machine) Evaluate(f audio.Frame, busy bool) Result {
	if m.state == Idle && busy && f.Peak() <= m.cfg.Threshold {
		return Result{}
	}

	if !m.isTrigger(f) {
		if m.state == Recording {
			m.record(f)
		}
		return Result{}
	}

	switch m.state {
	case Idle:
		m.state = Recording
		m.startedAt = m.lastTrigger
		m.buf = m.buf[:0]
		m.sampleRate, m.channels = f.SampleRate, f.Channels
		return Result{Transition: Start}
	default:
		m.state = Idle
		u := m.finalize()
		return Result{Transition: Stop, Utterance: u}
	}
}

// Elapsed returns how long the current recording has been running, or zero
// while Idle.
func (m *Machine) Elapsed() time.Duration {
	if m.state != Recording {
		return 0
	}
	return m.now().Sub(m.startedAt)
}

// Stop ends the current recording without a trigger event and returns the
// finalized utterance. ok is false when the machine was Idle.
func (m *Machine) Stop() (u Utterance, ok bool) {
	if m.state != Recording {
		return Utterance{}, false
	}
	m.state = Idle
	return m.finalize(), true
}

// Reset drops any partial recording and returns to Idle. The debounce
// history is kept.
func (m *Machine) Reset() {
	m.state = Idle
	m.buf = nil
}

// isTrigger reports whether f is a trigger event and, if so, records it.
func (m *Machine) isTrigger(f audio.Frame) bool {
	if f.Peak() <= m.cfg.Threshold {
		return false
	}
	now := m.now()
	if m.triggered && now.Sub(m.lastTrigger) <= m.cfg.Debounce {
		return false
	}
	m.triggered = true
	m.lastTrigger = now
	return true
}

func (m *Machine) record(f audio.Frame) {
	if m.sampleRate == 0 {
		m.sampleRate, m.channels = f.SampleRate, f.Channels
	}
	m.buf = append(m.buf, f.Samples...)
}

// finalize hands the buffer out as an utterance. EndTrim is cut from its end
// only when the recording is longer than that; shorter recordings are kept
// whole. The machine's buffer is released.
func (m *Machine) finalize() Utterance {
	samples := m.buf
	m.buf = nil

	if trim := audio.SamplesFor(m.cfg.EndTrim, m.sampleRate, m.channels); len(samples) > trim {
		keep := len(samples) - trim
		keep -= keep % max(m.channels, 1)
		samples = samples[:keep]
	}
	if len(samples) == 0 {
		samples = nil
	}
	return Utterance{Samples: samples, SampleRate: m.sampleRate, Channels: m.channels}
}
