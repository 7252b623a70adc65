// Package synth generates deterministic synthetic audio for tests and the
// self-test mode: pure tones, silences, frequency sweeps, reverberant
// decay tails, and white-noise mixing.
package synth

import (
	"math"
	"math/rand/v2"
)

// amplitude is the default tone amplitude relative to full scale.
const amplitude = 0.8

// rampDuration is the attack/release envelope length that avoids clicks at
// tone edges (clicks would smear broadband energy across the spectrum).
const rampDuration = 0.01

// Tone returns a pure sine tone with a short attack/release envelope.
func Tone(freq, duration float64, sampleRate int) []float64 {
	n := int(duration * float64(sampleRate))
	out := make([]float64, n)
	ramp := int(rampDuration * float64(sampleRate))

	for i := range out {
		t := float64(i) / float64(sampleRate)
		env := 1.0
		if ramp > 0 && n > 2*ramp {
			switch {
			case i < ramp:
				env = float64(i) / float64(ramp)
			case i >= n-ramp:
				env = float64(n-1-i) / float64(ramp)
			}
		}
		out[i] = math.Sin(2*math.Pi*freq*t) * env * amplitude
	}
	return out
}

// Silence returns duration seconds of zero samples.
func Silence(duration float64, sampleRate int) []float64 {
	return make([]float64, int(duration*float64(sampleRate)))
}

// Sweep returns a linear chirp from f0 to f1 Hz over the given duration,
// with the same attack/release envelope as [Tone]. The phase is integrated
// so the sweep is free of discontinuities.
func Sweep(f0, f1, duration float64, sampleRate int) []float64 {
	n := int(duration * float64(sampleRate))
	out := make([]float64, n)
	rate := (f1 - f0) / duration
	ramp := int(rampDuration * float64(sampleRate))

	for i := range out {
		t := float64(i) / float64(sampleRate)
		env := 1.0
		if ramp > 0 && n > 2*ramp {
			switch {
			case i < ramp:
				env = float64(i) / float64(ramp)
			case i >= n-ramp:
				env = float64(n-1-i) / float64(ramp)
			}
		}
		phase := 2 * math.Pi * (f0*t + rate*t*t/2)
		out[i] = math.Sin(phase) * env * amplitude
	}
	return out
}

// DecayTail returns a tone whose amplitude decays exponentially from
// startLevel (relative to full scale) down over the given duration,
// simulating the reverberant tail that follows an alarm beep in an
// echoing room.
func DecayTail(freq, duration, startLevel float64, sampleRate int) []float64 {
	n := int(duration * float64(sampleRate))
	out := make([]float64, n)

	// Decay to 1% of the start level by the end of the tail.
	tau := duration / math.Log(100)

	for i := range out {
		t := float64(i) / float64(sampleRate)
		out[i] = math.Sin(2*math.Pi*freq*t) * startLevel * math.Exp(-t/tau)
	}
	return out
}

// Concat joins signal parts into one stream.
func Concat(parts ...[]float64) []float64 {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]float64, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Repeat concatenates count copies of part, separated by gap seconds of
// silence between consecutive copies.
func Repeat(part []float64, count int, gap float64, sampleRate int) []float64 {
	parts := make([][]float64, 0, 2*count)
	for i := 0; i < count; i++ {
		parts = append(parts, part)
		if i < count-1 {
			parts = append(parts, Silence(gap, sampleRate))
		}
	}
	return Concat(parts...)
}

// T3 builds the standard smoke-alarm temporal-three pattern at the given
// frequency: three 0.5 s beeps with 0.2 s gaps, 1.0 s between cycles.
func T3(freq float64, cycles int, sampleRate int) []float64 {
	beeps := Concat(
		Tone(freq, 0.5, sampleRate), Silence(0.2, sampleRate),
		Tone(freq, 0.5, sampleRate), Silence(0.2, sampleRate),
		Tone(freq, 0.5, sampleRate),
	)
	return Repeat(beeps, cycles, 1.0, sampleRate)
}

// MixNoise adds deterministic white noise at the given level (relative to
// full scale) to a copy of signal. Pass the same seed for reproducible
// test audio.
func MixNoise(signal []float64, level float64, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]float64, len(signal))
	for i, s := range signal {
		out[i] = s + (rng.Float64()*2-1)*level
	}
	return out
}

// ToPCM converts float samples in [-1, 1] to 16-bit PCM, clamping any
// overshoot from noise mixing.
func ToPCM(samples []float64) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := s * 32767
		switch {
		case v > 32767:
			v = 32767
		case v < -32768:
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}

// Chunks splits pcm into consecutive full chunks of chunkSize samples.
// A trailing partial chunk is dropped, matching live capture behaviour.
func Chunks(pcm []int16, chunkSize int) [][]int16 {
	var out [][]int16
	for i := 0; i+chunkSize <= len(pcm); i += chunkSize {
		out = append(out, pcm[i:i+chunkSize])
	}
	return out
}
