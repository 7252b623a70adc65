// Package alarm defines the shared types used across all Klaxon packages.
//
// These types form the lingua franca between the DSP layer, the event
// generator, the pattern matcher, and external consumers. Each internal
// package defines its own working types, but cross-cutting data structures
// live here to avoid circular imports.
package alarm

// Peak is a single spectral peak detected by FFT analysis of one audio
// chunk. Peaks are transient: they are produced and consumed within the
// processing of a single chunk and never stored.
type Peak struct {
	// Frequency is the interpolated peak frequency in Hz. Parabolic
	// interpolation across neighbouring bins gives sub-bin resolution.
	Frequency float64

	// Magnitude is the FFT magnitude after noise subtraction.
	Magnitude float64

	// Bin is the index of the FFT bin the peak was found in.
	Bin int
}

// ToneEvent is a discrete, completed tone observed in the audio stream.
// Silence is never materialised as an event — it is the temporal gap
// between consecutive ToneEvents.
type ToneEvent struct {
	// Timestamp is the tone's start time in stream-relative seconds.
	Timestamp float64

	// Duration is the tone's length in seconds.
	Duration float64

	// Frequency is the smoothed tone frequency in Hz.
	Frequency float64

	// Magnitude is the strongest FFT magnitude observed during the tone.
	Magnitude float64

	// Confidence is the generator's confidence in this event (0.0–1.0).
	Confidence float64
}

// End returns the tone's end time in stream-relative seconds.
func (e ToneEvent) End() float64 { return e.Timestamp + e.Duration }

// PatternMatchEvent is emitted when a profile's full cadence has been
// confirmed. It is immutable and delivered once per confirmed window;
// re-delivery while the alarm keeps sounding is governed by the profile's
// reset timeout.
type PatternMatchEvent struct {
	// ProfileName is the name of the matched [Profile].
	ProfileName string

	// Timestamp is the evaluation time of the confirming window, in
	// stream-relative seconds.
	Timestamp float64

	// Duration is the estimated span of the matched cycles in seconds.
	Duration float64

	// CycleCount is the number of complete pattern cycles observed.
	CycleCount uint32
}

// DetectionFunc is the simple notification callback, invoked with the
// matched profile's name.
type DetectionFunc func(profileName string)

// MatchFunc is the rich notification callback, invoked with the full
// [PatternMatchEvent].
type MatchFunc func(match PatternMatchEvent)
