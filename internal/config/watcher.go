package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats its file unless
// [WithInterval] says otherwise.
const DefaultWatchInterval = 5 * time.Second

// snapshot identifies one version of the file on disk.
type snapshot struct {
	mtime time.Time
	sum   [sha256.Size]byte
}

// Watcher reloads a config file when it changes on disk. Edits that fail to
// parse or validate are logged and ignored, so Current always holds the last
// good config.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	current atomic.Pointer[Config]

	// mu serialises polls; seen belongs to it.
	mu   sync.Mutex
	seen snapshot
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and returns a Watcher holding the result. onChange,
// which may be nil, runs on the polling goroutine after each accepted
// reload. Nothing is polled until [Watcher.Run].
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: DefaultWatchInterval, onChange: onChange}
	for _, opt := range opts {
		opt(w)
	}
	cfg, snap, err := read(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current.Store(cfg)
	w.seen = snap
	return w, nil
}

// Current returns the last config that loaded cleanly.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// Run polls until ctx is done and then returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	tick := time.NewTicker(w.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	w.mu.Lock()
	defer w.mu.Unlock()

	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: cannot stat watched file", "path", w.path, "err", err)
		return
	}
	if info.ModTime().Equal(w.seen.mtime) {
		return
	}

	cfg, snap, err := read(w.path)
	if err != nil {
		slog.Warn("config: edit rejected, keeping previous config", "path", w.path, "err", err)
		w.seen.mtime = info.ModTime()
		return
	}
	unchanged := snap.sum == w.seen.sum
	w.seen = snap
	if unchanged {
		return
	}

	old := w.current.Swap(cfg)
	slog.Info("config: reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// read loads and validates path, returning the config with the file's
// modification time and content hash.
func read(path string) (*Config, snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, snapshot{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, snapshot{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, snapshot{}, err
	}
	return cfg, snapshot{mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
