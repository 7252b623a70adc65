package alarm

import (
	"errors"
	"fmt"
)

// ErrInvalidProfile is wrapped by every profile validation failure, so
// callers can detect configuration errors with [errors.Is].
var ErrInvalidProfile = errors.New("alarm: invalid profile")

// SegmentKind discriminates the step types of an alarm cadence.
type SegmentKind string

const (
	// SegmentTone requires sustained energy in a frequency band.
	SegmentTone SegmentKind = "tone"

	// SegmentSilence requires absence of qualifying tone energy.
	SegmentSilence SegmentKind = "silence"

	// SegmentAny matches either a tone or a gap of the given duration.
	SegmentAny SegmentKind = "any"
)

// IsValid reports whether k is a recognised segment kind.
func (k SegmentKind) IsValid() bool {
	switch k {
	case SegmentTone, SegmentSilence, SegmentAny:
		return true
	}
	return false
}

// Range is a closed numeric interval [Min, Max].
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Contains reports whether v falls within the range, inclusive.
func (r Range) Contains(v float64) bool { return r.Min <= v && v <= r.Max }

// Mean returns the midpoint of the range.
func (r Range) Mean() float64 { return (r.Min + r.Max) / 2 }

// validate checks the range invariants: non-negative bounds, Min <= Max.
func (r Range) validate(what string) error {
	if r.Min < 0 || r.Max < 0 {
		return fmt.Errorf("%w: %s range [%g, %g] has negative bound", ErrInvalidProfile, what, r.Min, r.Max)
	}
	if r.Min > r.Max {
		return fmt.Errorf("%w: %s range min %g > max %g", ErrInvalidProfile, what, r.Min, r.Max)
	}
	return nil
}

// Segment is one step of an alarm's cadence.
type Segment struct {
	// Kind is the segment type: tone, silence, or any.
	Kind SegmentKind

	// Frequency is the expected frequency band in Hz. Only meaningful for
	// tone segments.
	Frequency Range

	// Duration is the expected duration range in seconds.
	Duration Range
}

// Profile is the definition of one repetitive alarm pattern. Profiles are
// immutable once validated; the matcher owns them for its lifetime.
type Profile struct {
	// Name uniquely identifies this profile.
	Name string

	// Segments is the ordered cadence. Must be non-empty.
	Segments []Segment

	// ConfirmationCycles is the number of full cadence traversals required
	// before a match is reported. Must be >= 1.
	ConfirmationCycles uint32

	// ResetTimeout is the span in seconds without qualifying events after
	// which a confirmed profile re-arms and may report again.
	ResetTimeout float64

	// WindowDuration overrides the matcher's evaluation window in seconds.
	// Zero means derive it from the cadence.
	WindowDuration float64

	// EvalFrequency overrides how often the matcher evaluates this profile,
	// in seconds. Zero means derive it from the cadence.
	EvalFrequency float64
}

// Validate checks the profile against all structural invariants. The
// returned error wraps [ErrInvalidProfile] and joins every violation found.
func (p *Profile) Validate() error {
	var errs []error

	if p.Name == "" {
		errs = append(errs, fmt.Errorf("%w: name is required", ErrInvalidProfile))
	}
	if len(p.Segments) == 0 {
		errs = append(errs, fmt.Errorf("%w: %q has no segments", ErrInvalidProfile, p.Name))
	}
	if p.ConfirmationCycles < 1 {
		errs = append(errs, fmt.Errorf("%w: %q confirmation_cycles must be >= 1", ErrInvalidProfile, p.Name))
	}
	if p.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("%w: %q reset_timeout must not be negative", ErrInvalidProfile, p.Name))
	}
	if p.WindowDuration < 0 {
		errs = append(errs, fmt.Errorf("%w: %q window_duration must be positive", ErrInvalidProfile, p.Name))
	}
	if p.EvalFrequency < 0 {
		errs = append(errs, fmt.Errorf("%w: %q eval_frequency must be positive", ErrInvalidProfile, p.Name))
	}

	hasTone := false
	for i, seg := range p.Segments {
		prefix := fmt.Sprintf("%q segments[%d]", p.Name, i)
		if !seg.Kind.IsValid() {
			errs = append(errs, fmt.Errorf("%w: %s kind %q is invalid; valid values: tone, silence, any", ErrInvalidProfile, prefix, seg.Kind))
			continue
		}
		if err := seg.Duration.validate(prefix + " duration"); err != nil {
			errs = append(errs, err)
		}
		if seg.Kind == SegmentTone {
			hasTone = true
			if err := seg.Frequency.validate(prefix + " frequency"); err != nil {
				errs = append(errs, err)
			}
			if seg.Frequency.Max == 0 {
				errs = append(errs, fmt.Errorf("%w: %s is a tone but has no frequency range", ErrInvalidProfile, prefix))
			}
		}
	}
	if len(p.Segments) > 0 && !hasTone {
		errs = append(errs, fmt.Errorf("%w: %q has no tone segment", ErrInvalidProfile, p.Name))
	}

	return errors.Join(errs...)
}

// PatternDuration returns the expected duration of one full cadence cycle:
// the sum of every segment's mean duration.
func (p *Profile) PatternDuration() float64 {
	var total float64
	for _, seg := range p.Segments {
		total += seg.Duration.Mean()
	}
	return total
}

// ToneSegments returns the profile's tone segments in cadence order.
func (p *Profile) ToneSegments() []Segment {
	out := make([]Segment, 0, len(p.Segments))
	for _, seg := range p.Segments {
		if seg.Kind == SegmentTone {
			out = append(out, seg)
		}
	}
	return out
}

// FrequencyRanges returns the frequency bands of all tone segments.
func (p *Profile) FrequencyRanges() []Range {
	out := make([]Range, 0, len(p.Segments))
	for _, seg := range p.Segments {
		if seg.Kind == SegmentTone {
			out = append(out, seg.Frequency)
		}
	}
	return out
}
