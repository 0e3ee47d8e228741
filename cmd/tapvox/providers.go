package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/tapvox/internal/app"
	"github.com/MrWong99/tapvox/internal/config"
	"github.com/MrWong99/tapvox/pkg/audio/portaudio"
	"github.com/MrWong99/tapvox/pkg/audio/process"
	"github.com/MrWong99/tapvox/pkg/provider/llm"
	"github.com/MrWong99/tapvox/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/tapvox/pkg/provider/llm/openai"
	"github.com/MrWong99/tapvox/pkg/provider/stt"
	"github.com/MrWong99/tapvox/pkg/provider/stt/deepgram"
	oastt "github.com/MrWong99/tapvox/pkg/provider/stt/openai"
	"github.com/MrWong99/tapvox/pkg/provider/stt/whisper"
	"github.com/MrWong99/tapvox/pkg/provider/tts"
	"github.com/MrWong99/tapvox/pkg/provider/tts/coqui"
	"github.com/MrWong99/tapvox/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/tapvox/pkg/provider/tts/espeak"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// Hosted backends share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})

	// Any server speaking the OpenAI chat API (vLLM, LM Studio, ...).
	reg.RegisterLLM("openai-compatible", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := entry.StringOption("organization", ""); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.StringOption("model_path", "")
		}
		var opts []whisper.NativeOption
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n := entry.IntOption("threads", 0); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oastt.Option
		if entry.Model != "" {
			opts = append(opts, oastt.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		return oastt.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("espeak", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []espeak.Option{
			espeak.WithAmplitude(entry.IntOption("amplitude", espeak.DefaultAmplitude)),
		}
		if cmd := entry.StringOption("command", ""); cmd != "" {
			opts = append(opts, espeak.WithCommand(cmd))
		}
		if entry.Model != "" {
			opts = append(opts, espeak.WithVoice(entry.Model))
		}
		return espeak.New(opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := entry.StringOption("api_mode", ""); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if speaker := entry.StringOption("speaker", ""); speaker != "" {
			opts = append(opts, coqui.WithSpeaker(speaker))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := entry.StringOption("output_format", ""); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if voice := entry.StringOption("voice", ""); voice != "" {
			opts = append(opts, elevenlabs.WithVoice(voice))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("portaudio", func(_ context.Context, req config.AudioRequest) (config.AudioBackend, error) {
		c := req.Capture
		src, err := portaudio.OpenSource(c.Device, c.SampleRate, c.Channels, c.FrameSize)
		if err != nil {
			return config.AudioBackend{}, err
		}
		player, err := portaudio.OpenPlayer(req.OutputDevice, req.OutputRate)
		if err != nil {
			src.Close()
			return config.AudioBackend{}, err
		}
		return config.AudioBackend{Source: src, Player: player}, nil
	})

	reg.RegisterAudio("process", func(ctx context.Context, req config.AudioRequest) (config.AudioBackend, error) {
		c := req.Capture
		src, err := process.StartCapture(ctx, process.CaptureConfig{
			Command:     req.Entry.StringOption("capture_command", ""),
			InputFormat: req.Entry.StringOption("input_format", ""),
			Device:      c.Device,
			SampleRate:  c.SampleRate,
			Channels:    c.Channels,
			FrameSize:   c.FrameSize,
		})
		if err != nil {
			return config.AudioBackend{}, err
		}
		device := req.OutputDevice
		if card, ok := process.ALSACard(device); ok {
			device = process.PlugDevice(card)
		}
		player := process.NewPlayer(device)
		if cmd := req.Entry.StringOption("player_command", ""); cmd != "" {
			player.Command = cmd
		}
		return config.AudioBackend{Source: src, Player: player}, nil
	})
}

// buildProviders instantiates every configured provider. Fallbacks that fail
// to build are skipped with a warning; primaries are required.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	p := &app.Providers{}

	var err error
	if p.LLM, err = buildChain(cfg.Providers.LLM, cfg.Providers.LLMFallbacks, reg.CreateLLM); err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	if p.STT, err = buildChain(withLanguage(cfg.Providers.STT, cfg), withLanguages(cfg.Providers.STTFallbacks, cfg), reg.CreateSTT); err != nil {
		return nil, fmt.Errorf("stt: %w", err)
	}
	if p.TTS, err = buildChain(cfg.Providers.TTS, cfg.Providers.TTSFallbacks, reg.CreateTTS); err != nil {
		return nil, fmt.Errorf("tts: %w", err)
	}

	backend, err := reg.CreateAudio(ctx, config.AudioRequest{
		Entry:        cfg.Providers.Audio,
		Capture:      cfg.Capture,
		OutputDevice: cfg.Speech.Device,
		OutputRate:   cfg.Speech.OutputRate,
	})
	if err != nil {
		return nil, fmt.Errorf("audio: %w", err)
	}
	p.Source, p.Player = backend.Source, backend.Player

	if cfg.Speech.HardwareVolume {
		p.Volume = mixerFor(cfg)
	}
	return p, nil
}

func buildChain[T any](primary config.ProviderEntry, fallbacks []config.ProviderEntry, create func(config.ProviderEntry) (T, error)) ([]app.Named[T], error) {
	first, err := create(primary)
	if err != nil {
		if errors.Is(err, config.ErrProviderNotRegistered) {
			return nil, fmt.Errorf("provider %q is not a built-in provider: %w", primary.Name, err)
		}
		return nil, fmt.Errorf("create %q: %w", primary.Name, err)
	}
	chain := []app.Named[T]{{Name: primary.Name, Provider: first}}
	for _, fb := range fallbacks {
		v, err := create(fb)
		if err != nil {
			slog.Warn("skipping fallback provider", "name", fb.Name, "err", err)
			continue
		}
		chain = append(chain, app.Named[T]{Name: fb.Name, Provider: v})
	}
	return chain, nil
}

// withLanguage defaults the provider's language option to the conversation
// language.
func withLanguage(e config.ProviderEntry, cfg *config.Config) config.ProviderEntry {
	if e.StringOption("language", "") != "" {
		return e
	}
	opts := make(map[string]any, len(e.Options)+1)
	for k, v := range e.Options {
		opts[k] = v
	}
	opts["language"] = cfg.Conversation.Language
	e.Options = opts
	return e
}

func withLanguages(list []config.ProviderEntry, cfg *config.Config) []config.ProviderEntry {
	out := make([]config.ProviderEntry, len(list))
	for i, e := range list {
		out[i] = withLanguage(e, cfg)
	}
	return out
}

// mixerFor returns the amixer driver for the output card. The card comes from
// a hw:N reference in speech.device, or from the matching PortAudio device
// name.
func mixerFor(cfg *config.Config) *process.Mixer {
	m := &process.Mixer{}
	if card, ok := process.ALSACard(cfg.Speech.Device); ok {
		m.Card = card
		return m
	}
	if cfg.Speech.Device == "" || cfg.Providers.Audio.Name != "portaudio" {
		return m
	}
	names, err := portaudio.DeviceNames()
	if err != nil {
		slog.Debug("cannot list devices for mixer card", "err", err)
		return m
	}
	want := strings.ToLower(cfg.Speech.Device)
	for _, n := range names {
		if !strings.Contains(strings.ToLower(n), want) {
			continue
		}
		if card, ok := process.ALSACard(n); ok {
			m.Card = card
			break
		}
	}
	return m
}

func closeAudio(p *app.Providers) {
	if p.Source != nil {
		p.Source.Close()
	}
	if p.Player != nil {
		p.Player.Close()
	}
}
