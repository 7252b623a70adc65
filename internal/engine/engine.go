// Package engine wires the Klaxon detection pipeline together:
//
//	raw chunk → spectral peaks → filtered peaks → tone events →
//	buffered history → windowed match → callbacks
//
// The pipeline executes synchronously, single-threaded, once per chunk.
// Each component owns its mutable state exclusively, so no locks are needed
// inside the pipeline; any blocking (waiting on the next chunk) is the
// capture collaborator's responsibility.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/klaxon/internal/dsp"
	"github.com/MrWong99/klaxon/internal/event"
	"github.com/MrWong99/klaxon/internal/match"
	"github.com/MrWong99/klaxon/internal/observe"
	"github.com/MrWong99/klaxon/pkg/alarm"
)

// ErrBadInput is wrapped by [Engine.Process] when a chunk is rejected.
// The offending chunk is skipped and prior pipeline state is untouched.
var ErrBadInput = errors.New("engine: bad input chunk")

// Config collects all pipeline construction parameters. SampleRate and
// ChunkSize are authoritative here and are copied into the stage configs.
type Config struct {
	// SampleRate is the PCM sample rate in Hz, constant for the pipeline's
	// lifetime.
	SampleRate int

	// ChunkSize is the fixed number of samples per chunk.
	ChunkSize int

	// Analyzer tunes the spectral peak detection stage.
	Analyzer dsp.AnalyzerConfig

	// Generator tunes the tone event generation stage.
	Generator event.GeneratorConfig

	// Matcher tunes the windowed pattern matching stage.
	Matcher match.Config

	// BufferRetention is the event history horizon in seconds. Zero sizes
	// it from the largest profile window.
	BufferRetention float64
}

// Option configures optional Engine behaviour.
type Option func(*Engine)

// WithDetectionFunc registers the simple name-only detection callback.
func WithDetectionFunc(fn alarm.DetectionFunc) Option {
	return func(e *Engine) { e.onDetection = fn }
}

// WithMatchFunc registers the rich match callback.
func WithMatchFunc(fn alarm.MatchFunc) Option {
	return func(e *Engine) { e.onMatch = fn }
}

// WithMetrics overrides the metrics instance (tests use a private meter
// provider to avoid cross-test pollution).
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithMatchChannel attaches a bounded channel that receives every confirmed
// match. Sends never block: when the subscriber falls behind, matches are
// dropped from the channel (the callbacks still fire).
func WithMatchChannel(size int) Option {
	return func(e *Engine) { e.matchCh = make(chan alarm.PatternMatchEvent, size) }
}

// Engine is one complete detection pipeline over a set of alarm profiles.
//
// Not safe for concurrent use — feed it chunks from a single goroutine.
// For profiles with materially different timing or frequency needs, run a
// [Parallel] engine instead so tuning one profile cannot desensitise
// another.
type Engine struct {
	cfg      Config
	name     string
	chunkDur float64
	now      float64 // stream-relative clock in seconds

	analyzer  *dsp.SpectralAnalyzer
	filter    *dsp.FrequencyFilter
	generator *event.Generator
	matcher   *match.Matcher

	metrics     *observe.Metrics
	onDetection alarm.DetectionFunc
	onMatch     alarm.MatchFunc
	matchCh     chan alarm.PatternMatchEvent
}

// New builds a pipeline for the given profiles. Profile validation errors
// wrap [alarm.ErrInvalidProfile]; every violation found is reported.
func New(cfg Config, profiles []*alarm.Profile, opts ...Option) (*Engine, error) {
	if cfg.SampleRate <= 0 || cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: sample_rate %d and chunk_size %d must be positive",
			ErrBadInput, cfg.SampleRate, cfg.ChunkSize)
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("%w: at least one profile is required", alarm.ErrInvalidProfile)
	}

	var errs []error
	seen := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("%w: duplicate profile name %q", alarm.ErrInvalidProfile, p.Name))
		}
		seen[p.Name] = true

		// The window must fit the confirmation cycles it has to observe.
		if p.WindowDuration > 0 && p.WindowDuration <= p.PatternDuration()*float64(p.ConfirmationCycles) {
			errs = append(errs, fmt.Errorf("%w: %q window_duration %.2fs does not cover %d cycles of a %.2fs pattern",
				alarm.ErrInvalidProfile, p.Name, p.WindowDuration, p.ConfirmationCycles, p.PatternDuration()))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	cfg.Analyzer.SampleRate = cfg.SampleRate
	cfg.Analyzer.ChunkSize = cfg.ChunkSize
	cfg.Generator.SampleRate = cfg.SampleRate
	cfg.Generator.ChunkSize = cfg.ChunkSize
	if cfg.Generator.FrequencyTolerance <= 0 {
		// Resolved here, not just in the generator, so the frequency filter
		// expands profile bands by the same budget.
		cfg.Generator.FrequencyTolerance = event.DefaultFrequencyTolerance
	}

	analyzer, err := dsp.NewSpectralAnalyzer(cfg.Analyzer)
	if err != nil {
		return nil, err
	}

	filter := dsp.NewFrequencyFilter(cfg.Generator.FrequencyTolerance)
	for _, p := range profiles {
		filter.AddProfile(p)
	}

	buf := event.NewBuffer(cfg.BufferRetention)
	matcher := match.New(profiles, buf, cfg.Matcher)
	if cfg.BufferRetention == 0 {
		// Re-size retention to the widest profile window.
		buf = event.NewBuffer(matcher.MaxWindowDuration())
		matcher = match.New(profiles, buf, cfg.Matcher)
	}

	e := &Engine{
		cfg:       cfg,
		name:      "standard",
		chunkDur:  float64(cfg.ChunkSize) / float64(cfg.SampleRate),
		analyzer:  analyzer,
		filter:    filter,
		generator: event.NewGenerator(cfg.Generator),
		matcher:   matcher,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}

	slog.Info("engine initialised",
		"profiles", len(profiles),
		"sample_rate", cfg.SampleRate,
		"chunk_size", cfg.ChunkSize,
		"chunk_duration", e.chunkDur,
	)
	return e, nil
}

// Process runs one chunk of 16-bit mono PCM through the pipeline and
// returns any pattern matches confirmed on this tick. A chunk of the wrong
// length returns an error wrapping [ErrBadInput]; the chunk is skipped and
// no internal state changes.
func (e *Engine) Process(chunk []int16) ([]alarm.PatternMatchEvent, error) {
	ctx := context.Background()
	start := time.Now()

	peaks, err := e.analyzer.Process(chunk)
	if err != nil {
		e.metrics.InputErrors.Add(ctx, 1)
		return nil, fmt.Errorf("%w: %v", ErrBadInput, err)
	}

	// The stream clock advances only for accepted chunks.
	e.now += e.chunkDur

	relevant := e.filter.FilterPeaks(peaks)
	if n := len(relevant); n > 0 {
		e.metrics.PeaksDetected.Add(ctx, int64(n))
	}

	events := e.generator.Process(relevant, e.now)
	for _, ev := range events {
		e.matcher.Add(ev)
		slog.Debug("tone event",
			"frequency", ev.Frequency,
			"at", ev.Timestamp,
			"duration", ev.Duration,
		)
	}
	if n := len(events); n > 0 {
		e.metrics.ToneEvents.Add(ctx, int64(n))
	}

	matches := e.matcher.Evaluate(e.now)
	e.deliver(ctx, matches)

	e.metrics.RecordChunk(ctx, e.name, time.Since(start).Seconds())
	return matches, nil
}

// Finish flushes any still-open tone candidates and forces a final matcher
// evaluation for every profile, regardless of its evaluation interval. Call
// it when the input stream ends (end of a file, capture stop) to not lose a
// pattern that completed right at the cut.
func (e *Engine) Finish() []alarm.PatternMatchEvent {
	ctx := context.Background()

	e.now += e.cfg.Generator.DropoutTolerance
	for _, ev := range e.generator.Flush(e.now) {
		e.matcher.Add(ev)
	}

	matches := e.matcher.ForceEvaluate(e.now)
	e.deliver(ctx, matches)
	return matches
}

// deliver fires callbacks and the subscriber channel for each match.
func (e *Engine) deliver(ctx context.Context, matches []alarm.PatternMatchEvent) {
	for _, m := range matches {
		slog.Info("alarm detected",
			"profile", m.ProfileName,
			"cycles", m.CycleCount,
			"at", m.Timestamp,
		)
		e.metrics.RecordMatch(ctx, m.ProfileName)

		if e.onDetection != nil {
			e.onDetection(m.ProfileName)
		}
		if e.onMatch != nil {
			e.onMatch(m)
		}
		if e.matchCh != nil {
			select {
			case e.matchCh <- m:
			default: // subscriber fell behind; callbacks already fired
			}
		}
	}
}

// Matches returns the subscriber channel, or nil when [WithMatchChannel]
// was not used.
func (e *Engine) Matches() <-chan alarm.PatternMatchEvent { return e.matchCh }

// Now returns the stream-relative clock in seconds: the total duration of
// accepted audio.
func (e *Engine) Now() float64 { return e.now }

// ChunkDuration returns the duration of one chunk in seconds.
func (e *Engine) ChunkDuration() float64 { return e.chunkDur }

// Reset clears all learned and accumulated state (noise model, candidates,
// buffered events, match progress) but keeps the configuration. The stream
// clock restarts at zero.
func (e *Engine) Reset() {
	e.now = 0
	e.analyzer.ResetNoise()
	e.generator = event.NewGenerator(e.cfg.Generator)
	e.matcher.Reset()
}
