package config

import (
	"maps"
	"time"

	"github.com/MrWong99/tapvox/internal/history"
	"github.com/MrWong99/tapvox/internal/phrase"
	"github.com/MrWong99/tapvox/internal/responder"
	"github.com/MrWong99/tapvox/internal/trigger"
)

// Default values applied by [ApplyDefaults].
const (
	DefaultLogLevel        = LogInfo
	DefaultSampleRate      = 16000
	DefaultChannels        = 1
	DefaultFrameSize       = 1600
	DefaultQueueSize       = 64
	DefaultPollInterval    = 100 * time.Millisecond
	DefaultMaxContextPairs = 24
	DefaultRequestTimeout  = responder.DefaultTimeout
	DefaultWarmupTimeout   = 40 * time.Second
	DefaultGrace           = 200 * time.Millisecond
	DefaultLanguage        = "es"
	DefaultLLMProvider     = "ollama"
	DefaultLLMModel        = "gemma3:12b"
	DefaultTTSProvider     = "espeak"
	DefaultAudioProvider   = "portaudio"

	DefaultSystemPrompt = "Eres un asistente de voz. Responde siempre de forma breve, " +
		"amable y en español, sin usar listas ni formato."
	DefaultPrimingAck = "Entendido. Responderé de forma corta y amigable."
)

// ApplyDefaults fills every zero-valued field that has a default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = DefaultLogLevel
	}

	t := &cfg.Trigger
	if t.Threshold == 0 {
		t.Threshold = trigger.DefaultThreshold
	}
	if t.Debounce == 0 {
		t.Debounce = trigger.DefaultDebounce
	}
	if t.StartDelay == 0 {
		t.StartDelay = trigger.DefaultStartDelay
	}
	if t.EndTrim == 0 {
		t.EndTrim = trigger.DefaultEndTrim
	}

	c := &cfg.Capture
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels == 0 {
		c.Channels = DefaultChannels
	}
	if c.FrameSize == 0 {
		c.FrameSize = DefaultFrameSize
	}
	if c.QueueSize == 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}

	cv := &cfg.Conversation
	if cv.SystemPrompt == "" {
		cv.SystemPrompt = DefaultSystemPrompt
	}
	if cv.PrimingAck == "" {
		cv.PrimingAck = DefaultPrimingAck
	}
	if cv.MaxContextPairs == 0 {
		cv.MaxContextPairs = DefaultMaxContextPairs
	}
	if cv.WarmupPrompt == "" {
		cv.WarmupPrompt = responder.DefaultWarmupPrompt
	}
	if cv.RequestTimeout == 0 {
		cv.RequestTimeout = DefaultRequestTimeout
	}
	if cv.WarmupTimeout == 0 {
		cv.WarmupTimeout = DefaultWarmupTimeout
	}
	if cv.Language == "" {
		cv.Language = DefaultLanguage
	}

	s := &cfg.Speech
	if s.Rate == 0 {
		s.Rate = 1
	}
	if s.Volume == 0 {
		s.Volume = 1
	}
	if s.Delimiters == nil {
		s.Delimiters = DefaultDelimiters()
	}
	if s.DefaultPause == 0 {
		s.DefaultPause = phrase.DefaultPause
	}
	if s.Grace == 0 {
		s.Grace = DefaultGrace
	}

	p := &cfg.Providers
	if p.LLM.Name == "" {
		p.LLM.Name = DefaultLLMProvider
		if p.LLM.Model == "" {
			p.LLM.Model = DefaultLLMModel
		}
	}
	if p.TTS.Name == "" {
		p.TTS.Name = DefaultTTSProvider
	}
	if p.Audio.Name == "" {
		p.Audio.Name = DefaultAudioProvider
	}
}

// DefaultDelimiters returns the stock delimiter table keyed by string, as it
// appears in YAML.
func DefaultDelimiters() map[string]time.Duration {
	out := make(map[string]time.Duration)
	for r, d := range maps.All(phrase.DefaultDelimiters()) {
		out[string(r)] = d
	}
	return out
}

// MinContextPairs is the smallest accepted conversation.max_context_pairs.
const MinContextPairs = history.MinPairs
