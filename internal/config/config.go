// Package config provides the configuration schema, loader, and provider
// registry for tapvox.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to an slog level. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader], which also apply defaults.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Providers    ProvidersConfig    `yaml:"providers"`
	Trigger      TriggerConfig      `yaml:"trigger"`
	Capture      CaptureConfig      `yaml:"capture"`
	Conversation ConversationConfig `yaml:"conversation"`
	Speech       SpeechConfig       `yaml:"speech"`
	Effects      EffectsConfig      `yaml:"effects"`
	Recording    RecordingConfig    `yaml:"recording"`
}

// ServerConfig holds the observability endpoint and logging settings.
type ServerConfig struct {
	// ListenAddr is the address serving /metrics, /healthz and /readyz
	// (e.g. ":9090"). Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig selects the implementation for each pipeline stage. Each
// entry names a provider registered in the [Registry]. Fallbacks are tried
// in order when the primary fails.
type ProvidersConfig struct {
	LLM          ProviderEntry   `yaml:"llm"`
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
	STT          ProviderEntry   `yaml:"stt"`
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`
	TTS          ProviderEntry   `yaml:"tts"`
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`
	Audio        ProviderEntry   `yaml:"audio"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "ollama", "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gemma3:12b").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`
}

// StringOption returns Options[key] as a string, or def when absent or not a
// string.
func (e ProviderEntry) StringOption(key, def string) string {
	if v, ok := e.Options[key].(string); ok {
		return v
	}
	return def
}

// IntOption returns Options[key] as an int, or def when absent or not a
// number.
func (e ProviderEntry) IntOption(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// TriggerConfig tunes clap detection.
type TriggerConfig struct {
	// Threshold is the peak amplitude (0–1] a frame must exceed.
	Threshold float64 `yaml:"threshold"`

	// Debounce is the minimum time between two triggers.
	Debounce time.Duration `yaml:"debounce"`

	// StartDelay is waited after the start cue before audio is recorded.
	StartDelay time.Duration `yaml:"start_delay"`

	// EndTrim is cut from the end of every utterance.
	EndTrim time.Duration `yaml:"end_trim"`

	// MaxRecording stops a recording that ran this long. Zero disables it.
	MaxRecording time.Duration `yaml:"max_recording"`
}

// CaptureConfig describes the input stream.
type CaptureConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// FrameSize is the number of samples per channel per frame.
	FrameSize int `yaml:"frame_size"`

	// QueueSize is the capture channel capacity in frames.
	QueueSize int `yaml:"queue_size"`

	// PollInterval bounds how long the dialogue loop blocks on the queue.
	PollInterval time.Duration `yaml:"poll_interval"`

	// Device is a case-insensitive substring of the input device name.
	Device string `yaml:"device"`
}

// ConversationConfig controls the language model conversation.
type ConversationConfig struct {
	// SystemPrompt is sent as the first user turn of the priming pair.
	SystemPrompt string `yaml:"system_prompt"`

	// PrimingAck is the assistant half of the priming pair.
	PrimingAck string `yaml:"priming_ack"`

	// MaxContextPairs caps the history at 2 × MaxContextPairs turns.
	MaxContextPairs int `yaml:"max_context_pairs"`

	// WarmupPrompt is sent once at startup.
	WarmupPrompt string `yaml:"warmup_prompt"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
	WarmupTimeout  time.Duration `yaml:"warmup_timeout"`

	// Language is the BCP-47 tag passed to transcription.
	Language string `yaml:"language"`

	// Temperature and MaxTokens are forwarded to the model. Zero keeps the
	// provider default.
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// SpeechConfig controls phrase delivery.
type SpeechConfig struct {
	// Voice is the provider-specific voice id.
	Voice string `yaml:"voice"`

	// Rate is a speaking speed multiplier; 1.0 is normal.
	Rate float64 `yaml:"rate"`

	// Volume is a software gain applied to synthesized audio; 1.0 is unity.
	Volume float64 `yaml:"volume"`

	// Device is a case-insensitive substring of the output device name.
	Device string `yaml:"device"`

	// OutputRate resamples synthesized audio before playback. Zero keeps
	// the provider's rate.
	OutputRate int `yaml:"output_rate"`

	// Delimiters maps a single punctuation character to the pause after it.
	Delimiters map[string]time.Duration `yaml:"delimiters"`

	// DefaultPause follows the unterminated tail of a response.
	DefaultPause time.Duration `yaml:"default_pause"`

	// Grace is the quiet time after the last phrase before triggers are
	// accepted again.
	Grace time.Duration `yaml:"grace"`

	// HardwareVolume raises the ALSA mixer controls before each phrase.
	HardwareVolume bool `yaml:"hardware_volume"`
}

// EffectsConfig names the WAV files for the recording cues. Empty paths
// disable the cue.
type EffectsConfig struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// RecordingConfig controls what is written to disk.
type RecordingConfig struct {
	// OutputPath receives the last utterance as WAV. Empty disables it.
	OutputPath string `yaml:"output_path"`

	// JournalPath receives one JSON line per utterance. Empty disables it.
	JournalPath string `yaml:"journal_path"`
}
