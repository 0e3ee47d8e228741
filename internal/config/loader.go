package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":   {"ollama", "openai", "openai-compatible", "anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":   {"whisper", "whisper-native", "deepgram", "openai"},
	"tts":   {"espeak", "coqui", "elevenlabs"},
	"audio": {"portaudio", "process"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		add("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}

	// Providers
	p := cfg.Providers
	for kind, e := range map[string]ProviderEntry{"llm": p.LLM, "stt": p.STT, "tts": p.TTS, "audio": p.Audio} {
		if e.Name == "" {
			add("providers.%s.name is required", kind)
			continue
		}
		validateProviderName(kind, e.Name)
	}
	for kind, list := range map[string][]ProviderEntry{"llm": p.LLMFallbacks, "stt": p.STTFallbacks, "tts": p.TTSFallbacks} {
		for i, e := range list {
			if e.Name == "" {
				add("providers.%s_fallbacks[%d].name is required", kind, i)
				continue
			}
			validateProviderName(kind, e.Name)
		}
	}

	// Trigger
	t := cfg.Trigger
	if t.Threshold <= 0 || t.Threshold > 1 {
		add("trigger.threshold %.2f is out of range (0, 1]", t.Threshold)
	}
	if t.Debounce < 0 || t.StartDelay < 0 || t.EndTrim < 0 || t.MaxRecording < 0 {
		add("trigger durations must not be negative")
	}

	// Capture
	c := cfg.Capture
	if c.SampleRate <= 0 {
		add("capture.sample_rate must be positive")
	}
	if c.Channels <= 0 {
		add("capture.channels must be positive")
	}
	if c.FrameSize <= 0 {
		add("capture.frame_size must be positive")
	}
	if c.QueueSize <= 0 {
		add("capture.queue_size must be positive")
	}
	if c.PollInterval <= 0 {
		add("capture.poll_interval must be positive")
	}

	// Conversation
	cv := cfg.Conversation
	if cv.MaxContextPairs < MinContextPairs {
		add("conversation.max_context_pairs %d is below the minimum of %d", cv.MaxContextPairs, MinContextPairs)
	}
	if cv.RequestTimeout <= 0 || cv.WarmupTimeout <= 0 {
		add("conversation timeouts must be positive")
	}
	if cv.Temperature < 0 || cv.Temperature > 2 {
		add("conversation.temperature %.2f is out of range [0, 2]", cv.Temperature)
	}
	if cv.MaxTokens < 0 {
		add("conversation.max_tokens must not be negative")
	}

	// Speech
	s := cfg.Speech
	if s.Rate < 0.5 || s.Rate > 3 {
		add("speech.rate %.2f is out of range [0.5, 3.0]", s.Rate)
	}
	if s.Volume <= 0 || s.Volume > 4 {
		add("speech.volume %.2f is out of range (0, 4]", s.Volume)
	}
	if s.OutputRate < 0 {
		add("speech.output_rate must not be negative")
	}
	for k, d := range s.Delimiters {
		if utf8.RuneCountInString(k) != 1 {
			add("speech.delimiters key %q must be a single character", k)
		}
		if d < 0 {
			add("speech.delimiters[%q] must not be negative", k)
		}
	}
	if s.DefaultPause < 0 || s.Grace < 0 {
		add("speech pauses must not be negative")
	}

	if len(errs) > 1 {
		// Map iteration above is unordered.
		slices.SortFunc(errs, func(a, b error) int {
			return strings.Compare(a.Error(), b.Error())
		})
	}
	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is not found in the
// [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
