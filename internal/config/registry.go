package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/tapvox/pkg/audio"
	"github.com/MrWong99/tapvox/pkg/provider/llm"
	"github.com/MrWong99/tapvox/pkg/provider/stt"
	"github.com/MrWong99/tapvox/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// AudioRequest carries everything an audio factory needs to open devices.
type AudioRequest struct {
	Entry   ProviderEntry
	Capture CaptureConfig

	// OutputDevice is the playback device substring (speech.device).
	OutputDevice string

	// OutputRate is the preferred playback rate; zero keeps the device
	// default.
	OutputRate int
}

// AudioBackend is an opened capture source and playback sink. Closing them is
// the caller's responsibility.
type AudioBackend struct {
	Source audio.Source
	Player audio.Player
}

// AudioFactory opens the devices for one audio backend. ctx bounds the
// lifetime of any helper process the backend starts.
type AudioFactory func(ctx context.Context, req AudioRequest) (AudioBackend, error)

// Factory builds a provider of type P from its config entry.
type Factory[P any] func(ProviderEntry) (P, error)

// table is one provider kind's name-to-factory map.
type table[F any] struct {
	kind string
	m    map[string]F
}

func newTable[F any](kind string) table[F] {
	return table[F]{kind: kind, m: make(map[string]F)}
}

func (t table[F]) lookup(name string) (F, error) {
	f, ok := t.m[name]
	if !ok {
		return f, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, t.kind, name)
	}
	return f, nil
}

// Registry resolves provider names from the config to constructors. A later
// registration under the same name replaces the earlier one. Safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	llm   table[Factory[llm.Provider]]
	stt   table[Factory[stt.Provider]]
	tts   table[Factory[tts.Provider]]
	audio table[AudioFactory]
}

func NewRegistry() *Registry {
	return &Registry{
		llm:   newTable[Factory[llm.Provider]]("llm"),
		stt:   newTable[Factory[stt.Provider]]("stt"),
		tts:   newTable[Factory[tts.Provider]]("tts"),
		audio: newTable[AudioFactory]("audio"),
	}
}

func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.m[name] = f
}

func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.m[name] = f
}

func (r *Registry) RegisterTTS(name string, f Factory[tts.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts.m[name] = f
}

func (r *Registry) RegisterAudio(name string, f AudioFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio.m[name] = f
}

// CreateLLM builds the LLM provider named by entry.Name. Unknown names yield
// an error wrapping [ErrProviderNotRegistered]; so do the other Create
// methods.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	f, err := r.llm.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(entry)
}

func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	f, err := r.stt.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(entry)
}

func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	f, err := r.tts.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(entry)
}

// CreateAudio opens the devices of the backend named by req.Entry.Name.
func (r *Registry) CreateAudio(ctx context.Context, req AudioRequest) (AudioBackend, error) {
	r.mu.RLock()
	f, err := r.audio.lookup(req.Entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return AudioBackend{}, err
	}
	return f(ctx, req)
}
