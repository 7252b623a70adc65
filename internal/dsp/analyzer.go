// Package dsp implements the spectral analysis stage of the Klaxon
// pipeline: windowed FFT peak detection with an adaptive noise model, and
// the frequency relevance filter that screens peaks against the configured
// profiles' bands.
package dsp

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/stat"

	"github.com/MrWong99/klaxon/pkg/alarm"
)

// ErrChunkSize is wrapped by [SpectralAnalyzer.Process] when the chunk
// length does not match the configured chunk size.
var ErrChunkSize = errors.New("dsp: chunk length mismatch")

// AnalyzerConfig holds the tuning parameters for a [SpectralAnalyzer].
type AnalyzerConfig struct {
	// SampleRate is the PCM sample rate in Hz.
	SampleRate int

	// ChunkSize is the number of samples per chunk (also the FFT size).
	ChunkSize int

	// MinMagnitude is the absolute magnitude floor for peak eligibility.
	MinMagnitude float64

	// MinSharpness is the minimum ratio of a peak's magnitude to the
	// average of its immediate neighbours.
	MinSharpness float64

	// MaxPeaks bounds the number of peaks returned per chunk.
	MaxPeaks int

	// NoiseFloorFactor scales the spectrum median into the adaptive floor.
	NoiseFloorFactor float64

	// NoiseLearningRate is the EMA weight of the per-bin noise model.
	// Zero disables spectral subtraction.
	NoiseLearningRate float64
}

// defaults applied by NewSpectralAnalyzer when a field is zero.
const (
	defaultMinSharpness     = 1.5
	defaultMaxPeaks         = 5
	defaultNoiseFloorFactor = 3.0
)

// SpectralAnalyzer turns one raw audio chunk into a ranked list of spectral
// peaks. It owns a [NoiseProfile] that is updated on every chunk; apart
// from that model the analyzer is stateless.
//
// Not safe for concurrent use — each pipeline owns its own instance.
type SpectralAnalyzer struct {
	cfg      AnalyzerConfig
	win      []float64
	binWidth float64
	noise    *NoiseProfile

	// Scratch buffers reused across chunks to avoid per-chunk allocation.
	samples []float64
	mags    []float64
	sorted  []float64
}

// NewSpectralAnalyzer creates an analyzer for fixed-size chunks at the
// given sample rate. Zero-valued tuning fields fall back to defaults.
func NewSpectralAnalyzer(cfg AnalyzerConfig) (*SpectralAnalyzer, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("dsp: sample rate %d must be positive", cfg.SampleRate)
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("dsp: chunk size %d must be positive", cfg.ChunkSize)
	}
	if cfg.MinSharpness == 0 {
		cfg.MinSharpness = defaultMinSharpness
	}
	if cfg.MaxPeaks == 0 {
		cfg.MaxPeaks = defaultMaxPeaks
	}
	if cfg.NoiseFloorFactor == 0 {
		cfg.NoiseFloorFactor = defaultNoiseFloorFactor
	}

	bins := cfg.ChunkSize/2 + 1
	return &SpectralAnalyzer{
		cfg:      cfg,
		win:      window.Hann(cfg.ChunkSize),
		binWidth: float64(cfg.SampleRate) / float64(cfg.ChunkSize),
		noise:    NewNoiseProfile(bins, cfg.NoiseLearningRate),
		samples:  make([]float64, cfg.ChunkSize),
		mags:     make([]float64, bins),
		sorted:   make([]float64, bins),
	}, nil
}

// BinWidth returns the frequency resolution in Hz per FFT bin.
func (a *SpectralAnalyzer) BinWidth() float64 { return a.binWidth }

// Process analyses one chunk of 16-bit mono PCM and returns the significant
// spectral peaks, magnitude-descending, at most MaxPeaks. The chunk length
// must equal the configured chunk size; a mismatch returns an error
// wrapping [ErrChunkSize] and leaves the noise model untouched.
func (a *SpectralAnalyzer) Process(chunk []int16) ([]alarm.Peak, error) {
	if len(chunk) != a.cfg.ChunkSize {
		return nil, fmt.Errorf("%w: got %d samples, want %d", ErrChunkSize, len(chunk), a.cfg.ChunkSize)
	}

	// Normalise to [-1, 1) and apply the Hann window.
	for i, s := range chunk {
		a.samples[i] = float64(s) / 32768.0 * a.win[i]
	}

	spectrum := fft.FFTReal(a.samples)

	// Magnitude spectrum up to Nyquist. Numerical anomalies are clamped to
	// zero rather than propagated, so one bad chunk never halts the stream.
	for i := range a.mags {
		m := cmplx.Abs(spectrum[i])
		if math.IsNaN(m) || math.IsInf(m, 0) {
			m = 0
		}
		a.mags[i] = m
	}

	// Spectral subtraction against the learned stationary-noise model.
	a.noise.Subtract(a.mags)

	// Adaptive floor: the spectrum median ignores the few high-energy alarm
	// bins, so it tracks the broadband noise level.
	copy(a.sorted, a.mags)
	sort.Float64s(a.sorted)
	floor := stat.Quantile(0.5, stat.Empirical, a.sorted, nil) * a.cfg.NoiseFloorFactor
	threshold := math.Max(a.cfg.MinMagnitude, floor)

	var peaks []alarm.Peak

	// Skip the DC and Nyquist edge bins.
	for i := 2; i < len(a.mags)-2; i++ {
		mag := a.mags[i]
		if mag < threshold {
			continue
		}
		if mag <= a.mags[i-1] || mag <= a.mags[i+1] {
			continue
		}

		neighbours := (a.mags[i-2] + a.mags[i-1] + a.mags[i+1] + a.mags[i+2]) / 4
		if neighbours <= 0 {
			neighbours = 1e-12
		}
		if mag/neighbours <= a.cfg.MinSharpness {
			continue
		}

		peaks = append(peaks, alarm.Peak{
			Frequency: a.interpolate(i),
			Magnitude: mag,
			Bin:       i,
		})
	}

	sort.Slice(peaks, func(i, j int) bool { return peaks[i].Magnitude > peaks[j].Magnitude })
	if len(peaks) > a.cfg.MaxPeaks {
		peaks = peaks[:a.cfg.MaxPeaks]
	}
	return peaks, nil
}

// interpolate refines the peak frequency at bin i with a parabolic fit
// across the peak and its two neighbours, yielding sub-bin resolution.
func (a *SpectralAnalyzer) interpolate(i int) float64 {
	alpha := a.mags[i-1]
	beta := a.mags[i]
	gamma := a.mags[i+1]

	delta := 0.0
	if denom := alpha - 2*beta + gamma; denom != 0 {
		delta = 0.5 * (alpha - gamma) / denom
	}
	return (float64(i) + delta) * a.binWidth
}

// ResetNoise clears the analyzer's learned noise model. Used when the
// input stream changes source.
func (a *SpectralAnalyzer) ResetNoise() { a.noise.Reset() }

// NoiseLevel exposes the learned noise estimate for a bin, for tests and
// the diagnostics endpoint.
func (a *SpectralAnalyzer) NoiseLevel(bin int) float64 { return a.noise.Level(bin) }
