// Package config provides the configuration schema, loader, and file watcher
// for the Klaxon alarm detection service.
package config

import (
	"log/slog"

	"github.com/MrWong99/klaxon/internal/dsp"
	"github.com/MrWong99/klaxon/internal/engine"
	"github.com/MrWong99/klaxon/internal/event"
	"github.com/MrWong99/klaxon/internal/match"
	"github.com/MrWong99/klaxon/pkg/alarm"
)

// LogLevel controls log verbosity for the Klaxon service.
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

// Level maps l to the corresponding [slog.Level]. Unrecognised or empty
// values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Mode selects how profiles share pipeline state.
type Mode string

const (
	// ModeStandard runs one shared pipeline: a single noise model, event
	// generator, and buffer serve every profile.
	ModeStandard Mode = "standard"

	// ModeParallel runs one fully isolated pipeline per profile, so tuning
	// one profile can never desensitise another.
	ModeParallel Mode = "parallel"
)

// IsValid reports whether m is a recognised engine mode.
func (m Mode) IsValid() bool {
	return m == ModeStandard || m == ModeParallel
}

// Default resolution values. The standard values tolerate one missing chunk
// and need roughly two chunks of signal to confirm a tone at 44.1 kHz with
// 1024-sample chunks.
const (
	DefaultMinToneDuration  = 0.04
	DefaultDropoutTolerance = 0.03

	// High-resolution preset for patterns with sub-100 ms gaps.
	HighResMinToneDuration  = 0.05
	HighResDropoutTolerance = 0.05
)

// Config is the root configuration structure for Klaxon.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	System   SystemConfig   `yaml:"system"`
	Audio    AudioConfig    `yaml:"audio"`
	Engine   EngineConfig   `yaml:"engine"`
	Profiles []ProfileEntry `yaml:"profiles"`
}

// SystemConfig holds logging and endpoint settings.
type SystemConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// ListenAddr is the TCP address serving /metrics, /healthz and /readyz
	// (e.g., ":9090"). Empty disables the HTTP endpoint entirely.
	ListenAddr string `yaml:"listen_addr"`
}

// AudioConfig holds audio capture settings.
type AudioConfig struct {
	// SampleRate is the capture sample rate in Hz. Default: 44100.
	SampleRate int `yaml:"sample_rate"`

	// ChunkSize is the number of samples per analysis chunk. Default: 1024.
	// Larger chunks sharpen frequency resolution at the cost of temporal
	// resolution; [Config.EngineConfig] caps it at 2048 when any profile
	// needs high-resolution timing.
	ChunkSize int `yaml:"chunk_size"`

	// Device selects a capture device by name. Empty uses the OS default.
	Device string `yaml:"device"`
}

// EngineConfig holds the detection tuning block. Zero values defer to the
// pipeline defaults; only set what you need to override.
type EngineConfig struct {
	// Mode selects standard (shared pipeline) or parallel (isolated
	// pipeline per profile). Default: standard.
	Mode Mode `yaml:"mode"`

	// Spectral peak detection.
	MinMagnitude      float64 `yaml:"min_magnitude"`
	MinSharpness      float64 `yaml:"min_sharpness"`
	MaxPeaks          int     `yaml:"max_peaks"`
	NoiseFloorFactor  float64 `yaml:"noise_floor_factor"`
	NoiseLearningRate float64 `yaml:"noise_learning_rate"`

	// Tone event generation. MinToneDuration and DropoutTolerance default
	// to the finest resolution any profile requests.
	MinToneDuration    float64 `yaml:"min_tone_duration"`
	DropoutTolerance   float64 `yaml:"dropout_tolerance"`
	FrequencyTolerance float64 `yaml:"frequency_tolerance"`
	FreqSmoothing      float64 `yaml:"freq_smoothing"`
	DipThreshold       float64 `yaml:"dip_threshold"`

	// Pattern matching.
	NoiseSkipLimit    int     `yaml:"noise_skip_limit"`
	DurationRelaxLow  float64 `yaml:"duration_relax_low"`
	DurationRelaxHigh float64 `yaml:"duration_relax_high"`

	// BufferRetention is the event history horizon in seconds. Zero sizes
	// it from the largest profile window.
	BufferRetention float64 `yaml:"buffer_retention"`
}

// ProfileEntry is one element of the profiles list: either an inline alarm
// profile definition or an include directive pulling profiles from another
// YAML file (path relative to the main config file).
type ProfileEntry struct {
	// Include names a YAML file whose top-level profiles list is spliced in
	// at this position. All other fields must be empty when set.
	Include string `yaml:"include"`

	Name               string           `yaml:"name"`
	ConfirmationCycles uint32           `yaml:"confirmation_cycles"`
	ResetTimeout       float64          `yaml:"reset_timeout"`
	WindowDuration     float64          `yaml:"window_duration"`
	EvalFrequency      float64          `yaml:"eval_frequency"`
	Resolution         *ResolutionEntry `yaml:"resolution"`
	Segments           []SegmentEntry   `yaml:"segments"`
}

// ResolutionEntry lets a profile request finer event timing than the
// defaults. The engine adopts the finest values any profile requests.
type ResolutionEntry struct {
	MinToneDuration  float64 `yaml:"min_tone_duration"`
	DropoutTolerance float64 `yaml:"dropout_tolerance"`
}

// SegmentEntry is one pattern segment in YAML form.
type SegmentEntry struct {
	// Kind is "tone", "silence" or "any".
	Kind string `yaml:"kind"`

	// Frequency is required for tone segments and forbidden otherwise.
	Frequency *RangeEntry `yaml:"frequency"`

	// Duration bounds the segment length in seconds.
	Duration RangeEntry `yaml:"duration"`
}

// RangeEntry is an inclusive [min, max] interval in YAML form.
type RangeEntry struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// AlarmProfiles converts the (already include-resolved) profile entries into
// [alarm.Profile] values. Deep validation happens at engine construction.
func (c *Config) AlarmProfiles() []*alarm.Profile {
	profiles := make([]*alarm.Profile, 0, len(c.Profiles))
	for i := range c.Profiles {
		profiles = append(profiles, c.Profiles[i].toProfile())
	}
	return profiles
}

func (e *ProfileEntry) toProfile() *alarm.Profile {
	p := &alarm.Profile{
		Name:               e.Name,
		ConfirmationCycles: e.ConfirmationCycles,
		ResetTimeout:       e.ResetTimeout,
		WindowDuration:     e.WindowDuration,
		EvalFrequency:      e.EvalFrequency,
	}
	for _, s := range e.Segments {
		seg := alarm.Segment{
			Kind:     alarm.SegmentKind(s.Kind),
			Duration: alarm.Range{Min: s.Duration.Min, Max: s.Duration.Max},
		}
		if s.Frequency != nil {
			seg.Frequency = alarm.Range{Min: s.Frequency.Min, Max: s.Frequency.Max}
		}
		p.Segments = append(p.Segments, seg)
	}
	return p
}

// finestResolution returns the smallest min_tone_duration and
// dropout_tolerance any profile requests, starting from the defaults. A
// single event generator can then capture events at the resolution every
// profile needs.
func (c *Config) finestResolution() (minTone, dropout float64) {
	minTone = DefaultMinToneDuration
	dropout = DefaultDropoutTolerance
	for i := range c.Profiles {
		r := c.Profiles[i].Resolution
		if r == nil {
			continue
		}
		if r.MinToneDuration > 0 {
			minTone = min(minTone, r.MinToneDuration)
		}
		if r.DropoutTolerance > 0 {
			dropout = min(dropout, r.DropoutTolerance)
		}
	}
	return minTone, dropout
}

// EngineConfig assembles the pipeline configuration: audio parameters,
// the tuning block, and resolution computed from the profiles. Explicit
// tuning values always win over computed ones.
func (c *Config) EngineConfig() engine.Config {
	sampleRate := c.Audio.SampleRate
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	chunkSize := c.Audio.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 1024
	}

	minTone, dropout := c.finestResolution()
	if minTone < DefaultMinToneDuration || dropout < DefaultDropoutTolerance {
		// High-res timing needs small chunks.
		chunkSize = min(chunkSize, 2048)
	}
	if c.Engine.MinToneDuration > 0 {
		minTone = c.Engine.MinToneDuration
	}
	if c.Engine.DropoutTolerance > 0 {
		dropout = c.Engine.DropoutTolerance
	}

	return engine.Config{
		SampleRate: sampleRate,
		ChunkSize:  chunkSize,
		Analyzer: dsp.AnalyzerConfig{
			MinMagnitude:      c.Engine.MinMagnitude,
			MinSharpness:      c.Engine.MinSharpness,
			MaxPeaks:          c.Engine.MaxPeaks,
			NoiseFloorFactor:  c.Engine.NoiseFloorFactor,
			NoiseLearningRate: c.Engine.NoiseLearningRate,
		},
		Generator: event.GeneratorConfig{
			MinToneDuration:    minTone,
			DropoutTolerance:   dropout,
			FrequencyTolerance: c.Engine.FrequencyTolerance,
			FreqSmoothing:      c.Engine.FreqSmoothing,
			DipThreshold:       c.Engine.DipThreshold,
		},
		Matcher: match.Config{
			NoiseSkipLimit:    c.Engine.NoiseSkipLimit,
			DurationRelaxLow:  c.Engine.DurationRelaxLow,
			DurationRelaxHigh: c.Engine.DurationRelaxHigh,
		},
		BufferRetention: c.Engine.BufferRetention,
	}
}
