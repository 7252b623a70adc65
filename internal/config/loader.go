package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/klaxon/pkg/alarm"
)

// Load reads the YAML configuration file at path, resolves profile includes
// relative to the file's directory, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	if err := resolveIncludes(cfg, filepath.Dir(path)); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Include directives are rejected because there is no base directory to
// resolve them against. Useful in tests where configs are string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	for i := range cfg.Profiles {
		if cfg.Profiles[i].Include != "" {
			return nil, fmt.Errorf("config: profiles[%d]: include %q requires loading from a file", i, cfg.Profiles[i].Include)
		}
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// includeFile is the schema of an included profile file: a top-level
// profiles list of inline definitions. Nested includes are rejected.
type includeFile struct {
	Profiles []ProfileEntry `yaml:"profiles"`
}

// resolveIncludes splices included profile files into the profiles list, in
// position. Relative include paths resolve against baseDir.
func resolveIncludes(cfg *Config, baseDir string) error {
	resolved := make([]ProfileEntry, 0, len(cfg.Profiles))

	for i, entry := range cfg.Profiles {
		if entry.Include == "" {
			resolved = append(resolved, entry)
			continue
		}
		if entry.Name != "" || len(entry.Segments) > 0 {
			return fmt.Errorf("config: profiles[%d] mixes include %q with an inline definition", i, entry.Include)
		}

		path := entry.Include
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("config: profiles[%d]: open include %q: %w", i, entry.Include, err)
		}

		var inc includeFile
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		err = dec.Decode(&inc)
		f.Close()
		if err != nil {
			return fmt.Errorf("config: profiles[%d]: decode include %q: %w", i, entry.Include, err)
		}

		for j, sub := range inc.Profiles {
			if sub.Include != "" {
				return fmt.Errorf("config: include %q: profiles[%d]: nested includes are not supported", entry.Include, j)
			}
		}
		slog.Debug("included profiles", "path", path, "count", len(inc.Profiles))
		resolved = append(resolved, inc.Profiles...)
	}

	cfg.Profiles = resolved
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.System.LogLevel != "" && !cfg.System.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("system.log_level %q is invalid; valid values: debug, info, warn, error", cfg.System.LogLevel))
	}
	if cfg.Engine.Mode != "" && !cfg.Engine.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("engine.mode %q is invalid; valid values: standard, parallel", cfg.Engine.Mode))
	}

	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_size %d must not be negative", cfg.Audio.ChunkSize))
	}
	if cs := cfg.Audio.ChunkSize; cs > 0 && cs&(cs-1) != 0 {
		slog.Warn("audio.chunk_size is not a power of two; FFT will be slower", "chunk_size", cs)
	}

	if d := cfg.Engine.DipThreshold; d != 0 && (d < 0 || d >= 1) {
		errs = append(errs, fmt.Errorf("engine.dip_threshold %.2f is out of range (0, 1)", d))
	}
	if w := cfg.Engine.FreqSmoothing; w < 0 || w > 1 {
		errs = append(errs, fmt.Errorf("engine.freq_smoothing %.2f is out of range [0, 1]", w))
	}
	if lo, hi := cfg.Engine.DurationRelaxLow, cfg.Engine.DurationRelaxHigh; lo != 0 && hi != 0 && lo > hi {
		errs = append(errs, fmt.Errorf("engine.duration_relax_low %.2f exceeds duration_relax_high %.2f", lo, hi))
	}

	if len(cfg.Profiles) == 0 {
		errs = append(errs, errors.New("profiles: at least one alarm profile is required"))
	}

	namesSeen := make(map[string]int, len(cfg.Profiles))
	nyquist := float64(cfg.Audio.SampleRate) / 2
	for i := range cfg.Profiles {
		p := &cfg.Profiles[i]
		if p.Include != "" {
			continue // resolved separately by Load
		}
		prefix := fmt.Sprintf("profiles[%d]", i)

		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := namesSeen[p.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of profiles[%d]", prefix, p.Name, prev))
			}
			namesSeen[p.Name] = i
		}

		if err := p.toProfile().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
		}

		for j, s := range p.Segments {
			if s.Kind != string(alarm.SegmentTone) || s.Frequency == nil || nyquist <= 0 {
				continue
			}
			if s.Frequency.Max > nyquist {
				slog.Warn("tone frequency exceeds the Nyquist limit and can never be detected",
					"profile", p.Name,
					"segment", j,
					"max_frequency", s.Frequency.Max,
					"nyquist", nyquist,
				)
			}
		}

		if r := p.Resolution; r != nil {
			if r.MinToneDuration < 0 {
				errs = append(errs, fmt.Errorf("%s.resolution.min_tone_duration %.3f must not be negative", prefix, r.MinToneDuration))
			}
			if r.DropoutTolerance < 0 {
				errs = append(errs, fmt.Errorf("%s.resolution.dropout_tolerance %.3f must not be negative", prefix, r.DropoutTolerance))
			}
		}
	}

	return errors.Join(errs...)
}
