package synth

import "github.com/MrWong99/klaxon/pkg/alarm"

// interCycleGap separates cycles when a profile's pattern ends in a tone.
// Without it, back-to-back cycles of the same frequency would merge into
// one long tone event.
const interCycleGap = 0.3

// FromProfile renders the nominal form of a profile's pattern, repeated for
// the given number of cycles: each segment at the midpoint of its duration
// range, tones at the midpoint of their frequency range.
func FromProfile(p *alarm.Profile, cycles int, sampleRate int) []float64 {
	var cycle []float64
	endsInTone := false
	for _, seg := range p.Segments {
		dur := seg.Duration.Mean()
		switch seg.Kind {
		case alarm.SegmentTone:
			cycle = Concat(cycle, Tone(seg.Frequency.Mean(), dur, sampleRate))
			endsInTone = true
		default:
			cycle = Concat(cycle, Silence(dur, sampleRate))
			endsInTone = false
		}
	}

	gap := 0.0
	if endsInTone {
		gap = interCycleGap
	}
	return Repeat(cycle, cycles, gap, sampleRate)
}
