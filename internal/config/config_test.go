package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/tapvox/internal/config"
	audiomock "github.com/MrWong99/tapvox/pkg/audio/mock"
	"github.com/MrWong99/tapvox/pkg/provider/llm"
	llmmock "github.com/MrWong99/tapvox/pkg/provider/llm/mock"
	"github.com/MrWong99/tapvox/pkg/provider/stt"
	sttmock "github.com/MrWong99/tapvox/pkg/provider/stt/mock"
	"github.com/MrWong99/tapvox/pkg/provider/tts"
	ttsmock "github.com/MrWong99/tapvox/pkg/provider/tts/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug

providers:
  llm:
    name: ollama
    model: gemma3:12b
  llm_fallbacks:
    - name: openai
      api_key: sk-test
      model: gpt-4o-mini
  stt:
    name: whisper
    base_url: http://localhost:8080
  tts:
    name: espeak
    options:
      amplitude: 20
  audio:
    name: process

trigger:
  threshold: 0.5
  debounce: 2s
  max_recording: 30s

capture:
  device: PRO
  frame_size: 800

conversation:
  max_context_pairs: 10
  temperature: 0.7

speech:
  voice: es+f2
  rate: 1.2
  delimiters:
    ".": 400ms
    "?": 600ms
  hardware_volume: true

recording:
  journal_path: /tmp/tapvox.jsonl
`

func load(t *testing.T, doc string) (*config.Config, error) {
	t.Helper()
	return config.LoadFromReader(strings.NewReader(doc))
}

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := load(t, sampleYAML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if len(cfg.Providers.LLMFallbacks) != 1 || cfg.Providers.LLMFallbacks[0].Name != "openai" {
		t.Errorf("providers.llm_fallbacks: got %+v", cfg.Providers.LLMFallbacks)
	}
	if got := cfg.Providers.TTS.IntOption("amplitude", 0); got != 20 {
		t.Errorf("providers.tts.options.amplitude: got %d, want 20", got)
	}
	if cfg.Trigger.Debounce != 2*time.Second {
		t.Errorf("trigger.debounce: got %v, want 2s", cfg.Trigger.Debounce)
	}
	if cfg.Trigger.MaxRecording != 30*time.Second {
		t.Errorf("trigger.max_recording: got %v, want 30s", cfg.Trigger.MaxRecording)
	}
	if cfg.Capture.FrameSize != 800 {
		t.Errorf("capture.frame_size: got %d, want 800", cfg.Capture.FrameSize)
	}
	if cfg.Speech.Delimiters["?"] != 600*time.Millisecond {
		t.Errorf("speech.delimiters[?]: got %v", cfg.Speech.Delimiters["?"])
	}
	if len(cfg.Speech.Delimiters) != 2 {
		t.Errorf("speech.delimiters: got %d entries, want 2 (no merge with defaults)", len(cfg.Speech.Delimiters))
	}
	if !cfg.Speech.HardwareVolume {
		t.Error("speech.hardware_volume: got false, want true")
	}
}

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := load(t, "providers:\n  stt:\n    name: whisper-native\n    model: /models/ggml-medium.bin\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"server.log_level", cfg.Server.LogLevel, config.LogInfo},
		{"providers.llm.name", cfg.Providers.LLM.Name, "ollama"},
		{"providers.llm.model", cfg.Providers.LLM.Model, "gemma3:12b"},
		{"providers.tts.name", cfg.Providers.TTS.Name, "espeak"},
		{"providers.audio.name", cfg.Providers.Audio.Name, "portaudio"},
		{"trigger.threshold", cfg.Trigger.Threshold, 0.4},
		{"trigger.debounce", cfg.Trigger.Debounce, 1500 * time.Millisecond},
		{"trigger.start_delay", cfg.Trigger.StartDelay, 300 * time.Millisecond},
		{"trigger.end_trim", cfg.Trigger.EndTrim, 500 * time.Millisecond},
		{"trigger.max_recording", cfg.Trigger.MaxRecording, time.Duration(0)},
		{"capture.sample_rate", cfg.Capture.SampleRate, 16000},
		{"capture.channels", cfg.Capture.Channels, 1},
		{"capture.queue_size", cfg.Capture.QueueSize, 64},
		{"capture.poll_interval", cfg.Capture.PollInterval, 100 * time.Millisecond},
		{"conversation.max_context_pairs", cfg.Conversation.MaxContextPairs, 24},
		{"conversation.request_timeout", cfg.Conversation.RequestTimeout, 60 * time.Second},
		{"conversation.warmup_timeout", cfg.Conversation.WarmupTimeout, 40 * time.Second},
		{"conversation.language", cfg.Conversation.Language, "es"},
		{"speech.rate", cfg.Speech.Rate, 1.0},
		{"speech.volume", cfg.Speech.Volume, 1.0},
		{"speech.default_pause", cfg.Speech.DefaultPause, 500 * time.Millisecond},
		{"speech.grace", cfg.Speech.Grace, 200 * time.Millisecond},
		{"speech.delimiters[,]", cfg.Speech.Delimiters[","], 200 * time.Millisecond},
		{"speech.delimiters[?]", cfg.Speech.Delimiters["?"], 600 * time.Millisecond},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	_, err := load(t, "trigger:\n  treshold: 0.3\n")
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoadFromReader_EmptyRequiresSTT(t *testing.T) {
	t.Parallel()

	_, err := load(t, "")
	if err == nil || !strings.Contains(err.Error(), "providers.stt.name is required") {
		t.Fatalf("expected stt requirement error, got %v", err)
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	const base = "providers:\n  stt:\n    name: whisper\n"
	tests := []struct {
		name    string
		extra   string
		wantErr string
	}{
		{"invalid log level", "server:\n  log_level: verbose\n", "server.log_level"},
		{"threshold above one", "trigger:\n  threshold: 1.5\n", "trigger.threshold"},
		{"negative trim", "trigger:\n  end_trim: -1s\n", "trigger durations"},
		{"too few pairs", "conversation:\n  max_context_pairs: 1\n", "max_context_pairs"},
		{"temperature", "conversation:\n  temperature: 3\n", "temperature"},
		{"rate", "speech:\n  rate: 5\n", "speech.rate"},
		{"volume", "speech:\n  volume: -1\n", "speech.volume"},
		{"multi-rune delimiter", "speech:\n  delimiters:\n    \"...\": 1s\n", "single character"},
		{"unnamed fallback", "providers:\n  stt:\n    name: whisper\n  tts_fallbacks:\n    - model: x\n", "tts_fallbacks[0].name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc := base + tt.extra
			if strings.HasPrefix(tt.extra, "providers:") {
				doc = tt.extra
			}
			_, err := load(t, doc)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Server.LogLevel = "loud"
	cfg.Trigger.Threshold = 2

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	msg := err.Error()
	for _, want := range []string{"providers.stt.name", "server.log_level", "trigger.threshold"} {
		if !strings.Contains(msg, want) {
			t.Errorf("joined error missing %q: %s", want, msg)
		}
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()

	for _, kind := range []string{"llm", "stt", "tts", "audio"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("no known provider names for %q", kind)
		}
	}
}

func TestLogLevel(t *testing.T) {
	t.Parallel()

	if config.LogLevel("trace").IsValid() {
		t.Error("trace should be invalid")
	}
	if got := config.LogWarn.Level().String(); got != "WARN" {
		t.Errorf("warn level: got %s", got)
	}
}

func TestProviderEntryOptions(t *testing.T) {
	t.Parallel()

	e := config.ProviderEntry{Options: map[string]any{"voice": "es+m3", "amplitude": 12, "speed": 1.5}}
	if got := e.StringOption("voice", "x"); got != "es+m3" {
		t.Errorf("StringOption: got %q", got)
	}
	if got := e.StringOption("missing", "x"); got != "x" {
		t.Errorf("StringOption default: got %q", got)
	}
	if got := e.IntOption("amplitude", 0); got != 12 {
		t.Errorf("IntOption: got %d", got)
	}
	if got := e.IntOption("voice", 7); got != 7 {
		t.Errorf("IntOption on string: got %d", got)
	}
	if got := e.IntOption("speed", 0); got != 1 {
		t.Errorf("IntOption on float: got %d", got)
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	entry := config.ProviderEntry{Name: "nope"}

	_, errLLM := reg.CreateLLM(entry)
	_, errSTT := reg.CreateSTT(entry)
	_, errTTS := reg.CreateTTS(entry)
	_, errAudio := reg.CreateAudio(context.Background(), config.AudioRequest{Entry: entry})

	for name, err := range map[string]error{"llm": errLLM, "stt": errSTT, "tts": errTTS, "audio": errAudio} {
		if !errors.Is(err, config.ErrProviderNotRegistered) {
			t.Errorf("%s: expected ErrProviderNotRegistered, got %v", name, err)
		}
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	wantLLM := &llmmock.Provider{}
	wantSTT := &sttmock.Provider{}
	wantTTS := &ttsmock.Provider{}
	reg.RegisterLLM("stub", func(config.ProviderEntry) (llm.Provider, error) { return wantLLM, nil })
	reg.RegisterSTT("stub", func(config.ProviderEntry) (stt.Provider, error) { return wantSTT, nil })
	reg.RegisterTTS("stub", func(config.ProviderEntry) (tts.Provider, error) { return wantTTS, nil })

	entry := config.ProviderEntry{Name: "stub"}
	if got, err := reg.CreateLLM(entry); err != nil || got != wantLLM {
		t.Errorf("CreateLLM: got %v, %v", got, err)
	}
	if got, err := reg.CreateSTT(entry); err != nil || got != wantSTT {
		t.Errorf("CreateSTT: got %v, %v", got, err)
	}
	if got, err := reg.CreateTTS(entry); err != nil || got != wantTTS {
		t.Errorf("CreateTTS: got %v, %v", got, err)
	}
}

func TestRegistry_AudioReceivesRequest(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	var got config.AudioRequest
	src := audiomock.NewSource()
	reg.RegisterAudio("stub", func(_ context.Context, req config.AudioRequest) (config.AudioBackend, error) {
		got = req
		return config.AudioBackend{Source: src, Player: &audiomock.Player{}}, nil
	})

	req := config.AudioRequest{
		Entry:        config.ProviderEntry{Name: "stub"},
		Capture:      config.CaptureConfig{SampleRate: 16000, Device: "PRO"},
		OutputDevice: "hw:1",
	}
	backend, err := reg.CreateAudio(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backend.Source != src {
		t.Error("returned source is not the expected instance")
	}
	if got.Capture.Device != "PRO" || got.OutputDevice != "hw:1" {
		t.Errorf("factory received %+v", got)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	wantErr := errors.New("factory boom")
	reg.RegisterLLM("broken", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, wantErr
	})
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "broken"})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected factory error %v, got %v", wantErr, err)
	}
}
