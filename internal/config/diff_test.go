package config_test

import (
	"testing"

	"github.com/MrWong99/klaxon/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		System:   config.SystemConfig{LogLevel: config.LogInfo},
		Audio:    config.AudioConfig{SampleRate: 44100, ChunkSize: 1024},
		Engine:   config.EngineConfig{Mode: config.ModeStandard, FrequencyTolerance: 100},
		Profiles: []config.ProfileEntry{toneProfile("t3-smoke")},
	}
}

func TestDiffNoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if d.ProfilesChanged || d.TuningChanged || d.LogLevelChanged {
		t.Errorf("identical configs diff as changed: %+v", d)
	}
}

func TestDiffLogLevel(t *testing.T) {
	t.Parallel()
	next := baseConfig()
	next.System.LogLevel = config.LogDebug

	d := config.Diff(baseConfig(), next)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level change missed: %+v", d)
	}
	if d.TuningChanged || d.ProfilesChanged {
		t.Errorf("log level change flagged as tuning/profile change: %+v", d)
	}
}

func TestDiffTuning(t *testing.T) {
	t.Parallel()
	audio := baseConfig()
	audio.Audio.ChunkSize = 2048
	if d := config.Diff(baseConfig(), audio); !d.TuningChanged {
		t.Error("audio change missed")
	}

	engine := baseConfig()
	engine.Engine.DipThreshold = 0.5
	if d := config.Diff(baseConfig(), engine); !d.TuningChanged {
		t.Error("engine tuning change missed")
	}
}

func TestDiffProfiles(t *testing.T) {
	t.Parallel()

	t.Run("added", func(t *testing.T) {
		t.Parallel()
		next := baseConfig()
		next.Profiles = append(next.Profiles, toneProfile("co-alarm"))

		d := config.Diff(baseConfig(), next)
		if !d.ProfilesChanged || len(d.ProfileChanges) != 1 {
			t.Fatalf("diff = %+v, want one profile change", d)
		}
		if ch := d.ProfileChanges[0]; !ch.Added || ch.Name != "co-alarm" {
			t.Errorf("change = %+v, want co-alarm added", ch)
		}
	})

	t.Run("removed", func(t *testing.T) {
		t.Parallel()
		next := baseConfig()
		next.Profiles = nil
		// An empty profile list never validates, but Diff must still degrade
		// gracefully when handed one.
		d := config.Diff(baseConfig(), next)
		if !d.ProfilesChanged || len(d.ProfileChanges) != 1 || !d.ProfileChanges[0].Removed {
			t.Errorf("diff = %+v, want t3-smoke removed", d)
		}
	})

	t.Run("modified", func(t *testing.T) {
		t.Parallel()
		next := baseConfig()
		next.Profiles[0].Segments[0].Frequency.Max = 3200

		d := config.Diff(baseConfig(), next)
		if !d.ProfilesChanged || len(d.ProfileChanges) != 1 || !d.ProfileChanges[0].Modified {
			t.Errorf("diff = %+v, want t3-smoke modified", d)
		}
	})

	t.Run("unchanged segments", func(t *testing.T) {
		t.Parallel()
		// Same content in fresh allocations must not read as modified.
		d := config.Diff(baseConfig(), baseConfig())
		if d.ProfilesChanged {
			t.Errorf("structurally equal profiles diff as changed: %+v", d)
		}
	})
}
