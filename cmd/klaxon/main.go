// Command klaxon is the main entry point for the Klaxon acoustic alarm
// detection service. It listens to a microphone (or reads a WAV file),
// runs the detection pipeline, and reports confirmed alarm patterns.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/klaxon/internal/capture"
	"github.com/MrWong99/klaxon/internal/config"
	"github.com/MrWong99/klaxon/internal/engine"
	"github.com/MrWong99/klaxon/internal/health"
	"github.com/MrWong99/klaxon/internal/observe"
	"github.com/MrWong99/klaxon/internal/synth"
	"github.com/MrWong99/klaxon/pkg/alarm"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	wavPath := flag.String("wav", "", "detect patterns in a WAV file instead of live capture")
	selfTest := flag.Bool("selftest", false, "synthesise each profile's pattern and verify it is detected")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "klaxon: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "klaxon: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(cfg.System.LogLevel.Level())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("klaxon starting",
		"config", *configPath,
		"profiles", len(cfg.Profiles),
		"mode", mode(cfg),
		"log_level", cfg.System.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "klaxon",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Engine ────────────────────────────────────────────────────────────────
	engCfg := cfg.EngineConfig()
	profiles := cfg.AlarmProfiles()

	printStartupSummary(cfg, engCfg)

	// ── Run mode ──────────────────────────────────────────────────────────────
	switch {
	case *selfTest:
		return runSelfTest(cfg, profiles)
	case *wavPath != "":
		return runWAV(ctx, cfg, profiles, *wavPath)
	default:
		return runLive(ctx, cfg, engCfg, profiles, logLevel, *configPath)
	}
}

func mode(cfg *config.Config) config.Mode {
	if cfg.Engine.Mode == "" {
		return config.ModeStandard
	}
	return cfg.Engine.Mode
}

// buildEngine constructs a standard or parallel engine per the config.
func buildEngine(cfg *config.Config, engCfg engine.Config, profiles []*alarm.Profile) (engine.Processor, error) {
	opts := []engine.Option{
		engine.WithMatchFunc(func(m alarm.PatternMatchEvent) {
			fmt.Printf("ALARM  %s  cycles=%d  at=%.2fs\n", m.ProfileName, m.CycleCount, m.Timestamp)
		}),
	}
	if mode(cfg) == config.ModeParallel {
		return engine.NewParallel(engCfg, profiles, opts...)
	}
	return engine.New(engCfg, profiles, opts...)
}

// ── Live capture ────────────────────────────────────────────────────────────

func runLive(ctx context.Context, cfg *config.Config, engCfg engine.Config, profiles []*alarm.Profile, logLevel *slog.LevelVar, configPath string) int {
	proc, err := buildEngine(cfg, engCfg, profiles)
	if err != nil {
		slog.Error("failed to build detection engine", "err", err)
		return 1
	}

	mic, err := capture.OpenMicrophone(capture.Config{
		SampleRate: engCfg.SampleRate,
		ChunkSize:  engCfg.ChunkSize,
		Device:     cfg.Audio.Device,
	})
	if err != nil {
		slog.Error("failed to open capture device", "err", err)
		return 1
	}
	defer mic.Close()

	var lastProcessed atomic.Int64
	processedAt := func() time.Time {
		ns := lastProcessed.Load()
		if ns == 0 {
			return time.Time{}
		}
		return time.Unix(0, ns)
	}

	// ── Metrics and health endpoint ───────────────────────────────────────────
	if addr := cfg.System.ListenAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		health.New(
			health.CaptureAlive(mic.LastData, 5*time.Second),
			health.PipelineFed(processedAt, 5*time.Second),
		).Register(mux)

		srv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server error", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		slog.Info("serving metrics and health", "addr", addr)
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	// Log level changes apply immediately; anything else needs a restart.
	watcher, err := config.NewWatcher(configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(d.NewLogLevel.Level())
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.ProfilesChanged || d.TuningChanged {
			slog.Warn("profile or tuning changes require a restart to take effect")
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("listening — press Ctrl+C to shut down")

	for {
		select {
		case <-ctx.Done():
			slog.Info("shutdown signal received, stopping…")
			mic.Close()
			proc.Finish()
			closeParallel(proc)
			slog.Info("goodbye")
			return 0
		case chunk, ok := <-mic.Chunks():
			if !ok {
				proc.Finish()
				closeParallel(proc)
				return 0
			}
			if _, err := proc.Process(chunk); err != nil {
				slog.Warn("chunk rejected", "err", err)
				continue
			}
			lastProcessed.Store(time.Now().UnixNano())
		}
	}
}

func closeParallel(proc engine.Processor) {
	if p, ok := proc.(*engine.Parallel); ok {
		p.Close()
	}
}

// ── WAV playback ────────────────────────────────────────────────────────────

func runWAV(ctx context.Context, cfg *config.Config, profiles []*alarm.Profile, path string) int {
	wav, err := capture.OpenWAV(path)
	if err != nil {
		slog.Error("failed to open wav file", "err", err)
		return 1
	}
	defer wav.Close()

	// The file dictates the sample rate; rebuild the engine around it.
	engCfg := cfg.EngineConfig()
	if wav.SampleRate != engCfg.SampleRate {
		slog.Info("using wav sample rate", "configured", engCfg.SampleRate, "file", wav.SampleRate)
		engCfg.SampleRate = wav.SampleRate
	}
	proc, err := buildEngine(cfg, engCfg, profiles)
	if err != nil {
		slog.Error("failed to build detection engine", "err", err)
		return 1
	}
	defer closeParallel(proc)

	slog.Info("analysing wav file",
		"path", path,
		"duration", fmt.Sprintf("%.1fs", wav.Duration()),
		"sample_rate", wav.SampleRate,
		"channels", wav.Channels,
	)

	total := 0
	for ctx.Err() == nil {
		chunk, err := wav.ReadChunk(engCfg.ChunkSize)
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Error("wav read error", "err", err)
			return 1
		}
		matches, err := proc.Process(chunk)
		if err != nil {
			slog.Warn("chunk rejected", "err", err)
			continue
		}
		total += len(matches)
	}
	total += len(proc.Finish())

	slog.Info("analysis complete", "matches", total)
	if total == 0 {
		return 2
	}
	return 0
}

// ── Self test ───────────────────────────────────────────────────────────────

// runSelfTest synthesises every profile's nominal pattern, feeds it through
// a fresh pipeline, and verifies the profile fires. Exit code 0 means all
// profiles detected their own pattern.
func runSelfTest(cfg *config.Config, profiles []*alarm.Profile) int {
	engCfg := cfg.EngineConfig()
	failures := 0

	for _, profile := range profiles {
		proc, err := engine.New(engCfg, []*alarm.Profile{profile})
		if err != nil {
			slog.Error("selftest: engine build failed", "profile", profile.Name, "err", err)
			failures++
			continue
		}

		cycles := int(profile.ConfirmationCycles) + 1
		audio := synth.FromProfile(profile, cycles, engCfg.SampleRate)
		audio = synth.MixNoise(audio, 0.02, 42)
		pcm := synth.ToPCM(audio)

		detected := 0
		for _, chunk := range synth.Chunks(pcm, engCfg.ChunkSize) {
			matches, err := proc.Process(chunk)
			if err != nil {
				slog.Error("selftest: process error", "profile", profile.Name, "err", err)
				break
			}
			detected += len(matches)
		}
		detected += len(proc.Finish())

		if detected > 0 {
			fmt.Printf("PASS  %s\n", profile.Name)
		} else {
			fmt.Printf("FAIL  %s — pattern not detected\n", profile.Name)
			failures++
		}
	}

	if failures > 0 {
		return 1
	}
	return 0
}

// ── Startup summary ─────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, engCfg engine.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Klaxon — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Mode            : %-19s║\n", mode(cfg))
	fmt.Printf("║  Sample rate     : %-19d║\n", engCfg.SampleRate)
	fmt.Printf("║  Chunk size      : %-19d║\n", engCfg.ChunkSize)
	fmt.Printf("║  Profiles        : %-19d║\n", len(cfg.Profiles))
	for _, p := range cfg.Profiles {
		name := p.Name
		if len(name) > 17 {
			name = name[:14] + "…"
		}
		fmt.Printf("║    • %-33s║\n", name)
	}
	if cfg.System.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s║\n", cfg.System.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}
