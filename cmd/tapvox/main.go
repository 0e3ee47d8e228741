// Command tapvox is a clap-triggered voice assistant: clap to start
// recording, clap again to send the utterance to the language model and hear
// the answer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/tapvox/internal/app"
	"github.com/MrWong99/tapvox/internal/config"
	"github.com/MrWong99/tapvox/internal/observe"
	"github.com/MrWong99/tapvox/pkg/audio/portaudio"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	listDevices := flag.Bool("list-devices", false, "print the audio devices PortAudio can see and exit")
	flag.Parse()

	if *listDevices {
		return printDevices()
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "tapvox: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "tapvox: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("tapvox starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.Init(observe.ProviderConfig{ServiceName: "tapvox"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(cfg, providers, app.WithLevelVar(&level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		closeAudio(providers)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := application.Shutdown(sctx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	// ── Warm-up ───────────────────────────────────────────────────────────────
	slog.Info("waking up the model", "provider", cfg.Providers.LLM.Name, "model", cfg.Providers.LLM.Model)
	if err := application.Warmup(ctx); err != nil {
		slog.Error("model warm-up failed", "err", err)
		return 1
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.Reload)
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	}

	printListening(cfg)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(gctx)
	g.Go(func() error {
		defer cancelRun()
		return application.Run(gctx)
	})
	if watcher != nil {
		g.Go(func() error { return watcher.Run(runCtx) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         tapvox · startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("LLM", providerLabel(cfg.Providers.LLM, len(cfg.Providers.LLMFallbacks)))
	printRow("STT", providerLabel(cfg.Providers.STT, len(cfg.Providers.STTFallbacks)))
	printRow("TTS", providerLabel(cfg.Providers.TTS, len(cfg.Providers.TTSFallbacks)))
	printRow("Audio", cfg.Providers.Audio.Name)
	printRow("Input device", orDefault(cfg.Capture.Device))
	printRow("Output device", orDefault(cfg.Speech.Device))
	printRow("Threshold", fmt.Sprintf("%.2f", cfg.Trigger.Threshold))
	printRow("Context pairs", fmt.Sprintf("%d", cfg.Conversation.MaxContextPairs))
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(e config.ProviderEntry, fallbacks int) string {
	label := e.Name
	if e.Model != "" {
		label += " / " + e.Model
	}
	if fallbacks > 0 {
		label += fmt.Sprintf(" +%d", fallbacks)
	}
	return label
}

func orDefault(s string) string {
	if s == "" {
		return "(default)"
	}
	return s
}

func printRow(kind, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Printf("║  %-13s  : %-19s ║\n", kind, value)
}

func printListening(cfg *config.Config) {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 41))
	fmt.Printf("  Listening. Clap to talk (threshold %.2f)\n", cfg.Trigger.Threshold)
	fmt.Println("  Clap again when you are done. Ctrl+C quits.")
	fmt.Println(strings.Repeat("=", 41))
}

func printDevices() int {
	names, err := portaudio.DeviceNames()
	if err != nil {
		fmt.Fprintf(os.Stderr, "tapvox: %v\n", err)
		return 1
	}
	for i, n := range names {
		fmt.Printf("%3d  %s\n", i, n)
	}
	return 0
}
