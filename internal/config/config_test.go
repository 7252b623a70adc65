package config_test

import (
	"log/slog"
	"testing"

	"github.com/MrWong99/klaxon/internal/config"
)

func toneProfile(name string) config.ProfileEntry {
	return config.ProfileEntry{
		Name:               name,
		ConfirmationCycles: 2,
		ResetTimeout:       10,
		Segments: []config.SegmentEntry{
			{Kind: "tone", Frequency: &config.RangeEntry{Min: 2900, Max: 3100}, Duration: config.RangeEntry{Min: 0.4, Max: 0.6}},
			{Kind: "silence", Duration: config.RangeEntry{Min: 0.7, Max: 1.3}},
		},
	}
}

func TestLogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		level config.LogLevel
		valid bool
		want  slog.Level
	}{
		{config.LogDebug, true, slog.LevelDebug},
		{config.LogInfo, true, slog.LevelInfo},
		{config.LogWarn, true, slog.LevelWarn},
		{config.LogError, true, slog.LevelError},
		{"", false, slog.LevelInfo},
		{"verbose", false, slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := tt.level.IsValid(); got != tt.valid {
			t.Errorf("%q.IsValid() = %v, want %v", tt.level, got, tt.valid)
		}
		if got := tt.level.Level(); got != tt.want {
			t.Errorf("%q.Level() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestModeIsValid(t *testing.T) {
	t.Parallel()
	if !config.ModeStandard.IsValid() || !config.ModeParallel.IsValid() {
		t.Error("built-in modes reported invalid")
	}
	if config.Mode("turbo").IsValid() {
		t.Error("unknown mode reported valid")
	}
}

func TestEngineConfigDefaults(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Profiles: []config.ProfileEntry{toneProfile("p")}}

	ec := cfg.EngineConfig()
	if ec.SampleRate != 44100 {
		t.Errorf("sample rate = %d, want 44100", ec.SampleRate)
	}
	if ec.ChunkSize != 1024 {
		t.Errorf("chunk size = %d, want 1024", ec.ChunkSize)
	}
	if ec.Generator.MinToneDuration != config.DefaultMinToneDuration {
		t.Errorf("min tone duration = %v, want %v", ec.Generator.MinToneDuration, config.DefaultMinToneDuration)
	}
	if ec.Generator.DropoutTolerance != config.DefaultDropoutTolerance {
		t.Errorf("dropout tolerance = %v, want %v", ec.Generator.DropoutTolerance, config.DefaultDropoutTolerance)
	}
}

func TestEngineConfigAdoptsFinestResolution(t *testing.T) {
	t.Parallel()
	coarse := toneProfile("coarse")
	fine := toneProfile("fine")
	fine.Resolution = &config.ResolutionEntry{MinToneDuration: 0.02, DropoutTolerance: 0.01}
	finer := toneProfile("finer")
	finer.Resolution = &config.ResolutionEntry{MinToneDuration: 0.03}

	cfg := &config.Config{Profiles: []config.ProfileEntry{coarse, fine, finer}}

	ec := cfg.EngineConfig()
	if ec.Generator.MinToneDuration != 0.02 {
		t.Errorf("min tone duration = %v, want finest 0.02", ec.Generator.MinToneDuration)
	}
	if ec.Generator.DropoutTolerance != 0.01 {
		t.Errorf("dropout tolerance = %v, want finest 0.01", ec.Generator.DropoutTolerance)
	}
}

func TestEngineConfigCapsChunkSizeForHighRes(t *testing.T) {
	t.Parallel()
	p := toneProfile("fast")
	p.Resolution = &config.ResolutionEntry{MinToneDuration: 0.02, DropoutTolerance: 0.01}
	cfg := &config.Config{
		Audio:    config.AudioConfig{ChunkSize: 8192},
		Profiles: []config.ProfileEntry{p},
	}

	if ec := cfg.EngineConfig(); ec.ChunkSize != 2048 {
		t.Errorf("chunk size = %d, want capped at 2048 for high-res timing", ec.ChunkSize)
	}
}

func TestEngineConfigKeepsChunkSizeAtDefaultResolution(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Audio:    config.AudioConfig{ChunkSize: 8192},
		Profiles: []config.ProfileEntry{toneProfile("p")},
	}

	if ec := cfg.EngineConfig(); ec.ChunkSize != 8192 {
		t.Errorf("chunk size = %d, want 8192 untouched", ec.ChunkSize)
	}
}

func TestEngineConfigExplicitTuningWins(t *testing.T) {
	t.Parallel()
	p := toneProfile("fast")
	p.Resolution = &config.ResolutionEntry{MinToneDuration: 0.02, DropoutTolerance: 0.01}
	cfg := &config.Config{
		Engine: config.EngineConfig{
			MinToneDuration:  0.08,
			DropoutTolerance: 0.06,
		},
		Profiles: []config.ProfileEntry{p},
	}

	ec := cfg.EngineConfig()
	if ec.Generator.MinToneDuration != 0.08 {
		t.Errorf("min tone duration = %v, want explicit 0.08", ec.Generator.MinToneDuration)
	}
	if ec.Generator.DropoutTolerance != 0.06 {
		t.Errorf("dropout tolerance = %v, want explicit 0.06", ec.Generator.DropoutTolerance)
	}
}

func TestEngineConfigCopiesTuning(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Audio: config.AudioConfig{SampleRate: 48000, ChunkSize: 2048},
		Engine: config.EngineConfig{
			MinMagnitude:       12,
			MaxPeaks:           3,
			FrequencyTolerance: 80,
			DipThreshold:       0.4,
			NoiseSkipLimit:     4,
			BufferRetention:    30,
		},
		Profiles: []config.ProfileEntry{toneProfile("p")},
	}

	ec := cfg.EngineConfig()
	if ec.SampleRate != 48000 || ec.ChunkSize != 2048 {
		t.Errorf("rates = %d/%d, want 48000/2048", ec.SampleRate, ec.ChunkSize)
	}
	if ec.Analyzer.MinMagnitude != 12 || ec.Analyzer.MaxPeaks != 3 {
		t.Errorf("analyzer config not carried over: %+v", ec.Analyzer)
	}
	if ec.Generator.FrequencyTolerance != 80 || ec.Generator.DipThreshold != 0.4 {
		t.Errorf("generator config not carried over: %+v", ec.Generator)
	}
	if ec.Matcher.NoiseSkipLimit != 4 {
		t.Errorf("matcher config not carried over: %+v", ec.Matcher)
	}
	if ec.BufferRetention != 30 {
		t.Errorf("buffer retention = %v, want 30", ec.BufferRetention)
	}
}

func TestAlarmProfiles(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Profiles: []config.ProfileEntry{toneProfile("t3-smoke")}}

	profiles := cfg.AlarmProfiles()
	if len(profiles) != 1 {
		t.Fatalf("got %d profiles, want 1", len(profiles))
	}
	p := profiles[0]
	if p.Name != "t3-smoke" || p.ConfirmationCycles != 2 || p.ResetTimeout != 10 {
		t.Errorf("profile header not carried over: %+v", p)
	}
	if len(p.Segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(p.Segments))
	}
	if p.Segments[0].Frequency.Min != 2900 || p.Segments[0].Frequency.Max != 3100 {
		t.Errorf("tone frequency = %+v", p.Segments[0].Frequency)
	}
	if p.Segments[1].Frequency.Min != 0 || p.Segments[1].Frequency.Max != 0 {
		t.Errorf("silence segment has a frequency: %+v", p.Segments[1].Frequency)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("converted profile invalid: %v", err)
	}
}
