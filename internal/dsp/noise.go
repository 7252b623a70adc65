package dsp

// NoiseProfile is a per-bin estimate of the stationary noise magnitude,
// learned with an exponential moving average. Subtracting it from the live
// spectrum progressively suppresses constant tones (fans, HVAC hum) while
// transient alarm energy survives.
//
// A NoiseProfile is owned by exactly one [SpectralAnalyzer]; it is mutated
// on every chunk and never read outside of it.
type NoiseProfile struct {
	levels []float64
	rate   float64
}

// NewNoiseProfile creates a profile for bins spectrum bins with the given
// learning rate. A rate of 0 disables learning (no subtraction occurs).
func NewNoiseProfile(bins int, rate float64) *NoiseProfile {
	return &NoiseProfile{
		levels: make([]float64, bins),
		rate:   rate,
	}
}

// Subtract removes the learned per-bin noise estimate from mags in place,
// clamping at zero, and then folds the raw magnitudes into the estimate.
// The subtraction happens before the update so that a freshly appeared tone
// passes through at full strength on its first chunks.
func (np *NoiseProfile) Subtract(mags []float64) {
	if np.rate <= 0 {
		return
	}
	for i, mag := range mags {
		if i >= len(np.levels) {
			break
		}
		level := np.levels[i]
		residual := mag - level
		if residual < 0 {
			residual = 0
		}
		np.levels[i] = level + np.rate*(mag-level)
		mags[i] = residual
	}
}

// Level returns the current noise estimate for a bin. Intended for tests
// and diagnostics.
func (np *NoiseProfile) Level(bin int) float64 {
	if bin < 0 || bin >= len(np.levels) {
		return 0
	}
	return np.levels[bin]
}

// Reset clears the learned estimate.
func (np *NoiseProfile) Reset() {
	clear(np.levels)
}
