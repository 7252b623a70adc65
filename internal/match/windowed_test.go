package match_test

import (
	"testing"

	"github.com/MrWong99/klaxon/internal/event"
	"github.com/MrWong99/klaxon/internal/match"
	"github.com/MrWong99/klaxon/pkg/alarm"
)

// t3Profile is a smoke-alarm temporal-three cadence: three ~0.5 s beeps at
// ~3 kHz with ~0.2 s gaps, ~1 s between cycles.
func t3Profile() *alarm.Profile {
	tone := alarm.Segment{Kind: alarm.SegmentTone, Frequency: alarm.Range{Min: 2900, Max: 3100}, Duration: alarm.Range{Min: 0.4, Max: 0.6}}
	gap := alarm.Segment{Kind: alarm.SegmentSilence, Duration: alarm.Range{Min: 0.1, Max: 0.3}}
	pause := alarm.Segment{Kind: alarm.SegmentSilence, Duration: alarm.Range{Min: 0.7, Max: 1.3}}
	return &alarm.Profile{
		Name:               "t3-smoke",
		Segments:           []alarm.Segment{tone, gap, tone, gap, tone, pause},
		ConfirmationCycles: 2,
		ResetTimeout:       10,
	}
}

func newT3Matcher(t *testing.T) *match.Matcher {
	t.Helper()
	buf := event.NewBuffer(60)
	return match.New([]*alarm.Profile{t3Profile()}, buf, match.Config{})
}

func beep(ts float64) alarm.ToneEvent {
	return alarm.ToneEvent{Timestamp: ts, Duration: 0.5, Frequency: 3000, Magnitude: 100, Confidence: 1}
}

// t3Cycle returns one cycle's three beeps starting at ts. The cycle's tones
// end at ts+1.9; the next cycle should start around ts+2.9.
func t3Cycle(ts float64) []alarm.ToneEvent {
	return []alarm.ToneEvent{beep(ts), beep(ts + 0.7), beep(ts + 1.4)}
}

func addAll(m *match.Matcher, events []alarm.ToneEvent) {
	for _, e := range events {
		m.Add(e)
	}
}

func TestMatcherConfirmsTwoCycles(t *testing.T) {
	t.Parallel()
	m := newT3Matcher(t)

	addAll(m, t3Cycle(1.0))
	addAll(m, t3Cycle(3.9)) // 1.0 s after the first cycle's last beep ends

	matches := m.Evaluate(6.0)
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	got := matches[0]
	if got.ProfileName != "t3-smoke" {
		t.Errorf("profile = %q, want t3-smoke", got.ProfileName)
	}
	if got.CycleCount != 2 {
		t.Errorf("cycle count = %d, want 2", got.CycleCount)
	}
	if got.Timestamp != 6.0 {
		t.Errorf("timestamp = %v, want evaluation time 6.0", got.Timestamp)
	}
}

func TestMatcherForceEvaluateIgnoresInterval(t *testing.T) {
	t.Parallel()
	p := t3Profile()
	p.EvalFrequency = 10 // longer than the whole test stream
	m := match.New([]*alarm.Profile{p}, event.NewBuffer(60), match.Config{})

	addAll(m, t3Cycle(1.0))
	addAll(m, t3Cycle(3.9))

	if matches := m.Evaluate(6.0); len(matches) != 0 {
		t.Fatalf("got %d matches before the evaluation interval elapsed, want 0", len(matches))
	}
	matches := m.ForceEvaluate(6.0)
	if len(matches) != 1 {
		t.Fatalf("ForceEvaluate returned %d matches, want 1", len(matches))
	}
	if matches[0].CycleCount != 2 {
		t.Errorf("cycle count = %d, want 2", matches[0].CycleCount)
	}
}

func TestMatcherSingleCycleInsufficient(t *testing.T) {
	t.Parallel()
	m := newT3Matcher(t)

	addAll(m, t3Cycle(1.0))
	if matches := m.Evaluate(4.0); len(matches) != 0 {
		t.Errorf("got %d matches from one cycle, want 0 (confirmation_cycles = 2)", len(matches))
	}
}

func TestMatcherIgnoresWrongFrequency(t *testing.T) {
	t.Parallel()
	m := newT3Matcher(t)

	// The right cadence at the wrong pitch is a different alarm.
	for _, ts := range []float64{1.0, 1.7, 2.4, 3.9, 4.6, 5.3} {
		m.Add(alarm.ToneEvent{Timestamp: ts, Duration: 0.5, Frequency: 1500, Magnitude: 100})
	}
	if matches := m.Evaluate(6.0); len(matches) != 0 {
		t.Errorf("got %d matches at 1500 Hz, want 0", len(matches))
	}
}

func TestMatcherIgnoresWrongDurations(t *testing.T) {
	t.Parallel()
	m := newT3Matcher(t)

	// Right pitch, but 0.15 s chirps instead of ~0.5 s beeps.
	for _, ts := range []float64{1.0, 1.7, 2.4, 3.9, 4.6, 5.3} {
		m.Add(alarm.ToneEvent{Timestamp: ts, Duration: 0.15, Frequency: 3000, Magnitude: 100})
	}
	if matches := m.Evaluate(6.0); len(matches) != 0 {
		t.Errorf("got %d matches for too-short beeps, want 0", len(matches))
	}
}

func TestMatcherSkipsNoiseEvents(t *testing.T) {
	t.Parallel()
	m := newT3Matcher(t)

	// A short in-band chirp lands inside the first gap. The skip budget
	// absorbs it.
	cycle1 := t3Cycle(1.0)
	addAll(m, cycle1[:1])
	m.Add(alarm.ToneEvent{Timestamp: 1.55, Duration: 0.05, Frequency: 3000, Magnitude: 30})
	addAll(m, cycle1[1:])
	addAll(m, t3Cycle(3.9))

	matches := m.Evaluate(6.0)
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1 (noise chirp should be skipped)", len(matches))
	}
	if matches[0].CycleCount != 2 {
		t.Errorf("cycle count = %d, want 2", matches[0].CycleCount)
	}
}

func TestMatcherNoiseSkipLimit(t *testing.T) {
	t.Parallel()
	m := newT3Matcher(t)

	// Three chirps in one gap exceed the default skip budget of two.
	cycle1 := t3Cycle(1.0)
	addAll(m, cycle1[:1])
	for i, ts := range []float64{1.52, 1.56, 1.60} {
		m.Add(alarm.ToneEvent{Timestamp: ts + float64(i)*0.001, Duration: 0.02, Frequency: 3000, Magnitude: 30})
	}
	addAll(m, cycle1[1:])
	addAll(m, t3Cycle(3.9))

	if matches := m.Evaluate(6.0); len(matches) != 0 {
		t.Errorf("got %d matches, want 0 (noise exceeds skip limit)", len(matches))
	}
}

func TestMatcherBrokenCadence(t *testing.T) {
	t.Parallel()
	m := newT3Matcher(t)

	// Second cycle arrives far too late: the inter-cycle pause range is
	// [0.7, 1.3] and even relaxed it cannot stretch to 4 s.
	addAll(m, t3Cycle(1.0))
	addAll(m, t3Cycle(6.9))

	if matches := m.Evaluate(9.0); len(matches) != 0 {
		t.Errorf("got %d matches across a broken cadence, want 0", len(matches))
	}
}

func TestMatcherSuppressesWhileConfirmed(t *testing.T) {
	t.Parallel()
	m := newT3Matcher(t)

	addAll(m, t3Cycle(1.0))
	addAll(m, t3Cycle(3.9))

	if matches := m.Evaluate(6.0); len(matches) != 1 {
		t.Fatalf("initial confirmation missing")
	}
	// Same evidence on the next tick: suppressed.
	if matches := m.Evaluate(6.6); len(matches) != 0 {
		t.Errorf("duplicate delivery while confirmed")
	}
}

func TestMatcherRedeliversHigherCycleCount(t *testing.T) {
	t.Parallel()
	m := newT3Matcher(t)

	addAll(m, t3Cycle(1.0))
	addAll(m, t3Cycle(3.9))
	if matches := m.Evaluate(6.0); len(matches) != 1 {
		t.Fatalf("initial confirmation missing")
	}

	// A third cycle is new information.
	addAll(m, t3Cycle(6.8))
	matches := m.Evaluate(8.8)
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1 re-delivery", len(matches))
	}
	if matches[0].CycleCount != 3 {
		t.Errorf("cycle count = %d, want 3", matches[0].CycleCount)
	}
}

func TestMatcherReArmsAfterResetTimeout(t *testing.T) {
	t.Parallel()
	m := newT3Matcher(t)

	addAll(m, t3Cycle(1.0))
	addAll(m, t3Cycle(3.9))
	if matches := m.Evaluate(6.0); len(matches) != 1 {
		t.Fatalf("initial confirmation missing")
	}

	// Quiet well past the reset timeout; the old events also age out of the
	// evaluation window.
	if matches := m.Evaluate(30.0); len(matches) != 0 {
		t.Fatalf("unexpected match during silence")
	}

	// The alarm starts again: a fresh detection must fire.
	addAll(m, t3Cycle(31.0))
	addAll(m, t3Cycle(33.9))
	matches := m.Evaluate(36.0)
	if len(matches) != 1 {
		t.Fatalf("got %d matches after re-arm, want 1", len(matches))
	}
}

func TestMatcherEvaluationInterval(t *testing.T) {
	t.Parallel()
	m := newT3Matcher(t)

	addAll(m, t3Cycle(1.0))
	addAll(m, t3Cycle(3.9))

	// First tick confirms; an immediate second tick is within the eval
	// interval and must be a no-op.
	if matches := m.Evaluate(6.0); len(matches) != 1 {
		t.Fatalf("initial confirmation missing")
	}
	addAll(m, t3Cycle(6.8))
	if matches := m.Evaluate(6.1); len(matches) != 0 {
		t.Errorf("evaluation ran inside the eval interval")
	}
}

func TestMatcherAnySegmentWildcard(t *testing.T) {
	t.Parallel()
	// Cadence: beep, anything for ~0.5 s, beep. The "any" segment waives
	// the gap check entirely.
	p := &alarm.Profile{
		Name: "wildcard",
		Segments: []alarm.Segment{
			{Kind: alarm.SegmentTone, Frequency: alarm.Range{Min: 900, Max: 1100}, Duration: alarm.Range{Min: 0.2, Max: 0.4}},
			{Kind: alarm.SegmentAny, Duration: alarm.Range{Min: 0.3, Max: 0.7}},
			{Kind: alarm.SegmentTone, Frequency: alarm.Range{Min: 900, Max: 1100}, Duration: alarm.Range{Min: 0.2, Max: 0.4}},
			{Kind: alarm.SegmentSilence, Duration: alarm.Range{Min: 1.0, Max: 2.0}},
		},
		ConfirmationCycles: 1,
		ResetTimeout:       5,
	}
	buf := event.NewBuffer(60)
	m := match.New([]*alarm.Profile{p}, buf, match.Config{})

	mk := func(ts float64) alarm.ToneEvent {
		return alarm.ToneEvent{Timestamp: ts, Duration: 0.3, Frequency: 1000, Magnitude: 100}
	}
	// Gap of 2.0 s between the beeps would fail a silence check but passes
	// the wildcard.
	m.Add(mk(1.0))
	m.Add(mk(3.3))

	matches := m.Evaluate(4.0)
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1 (any segment is a wildcard)", len(matches))
	}
}

func TestMatcherTieBreakEarliestStart(t *testing.T) {
	t.Parallel()
	m := newT3Matcher(t)

	// Three consecutive cycles: the best fit must count all three from the
	// earliest start rather than two from a later one.
	addAll(m, t3Cycle(1.0))
	addAll(m, t3Cycle(3.9))
	addAll(m, t3Cycle(6.8))

	matches := m.Evaluate(9.0)
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].CycleCount != 3 {
		t.Errorf("cycle count = %d, want 3 (count from earliest start)", matches[0].CycleCount)
	}
}

func TestMatcherMaxWindowDuration(t *testing.T) {
	t.Parallel()
	m := newT3Matcher(t)

	// pattern = 3×0.5 + 2×0.2 + 1.0 = 2.9 s; window = 2.9 × 2 × 1.5.
	want := 2.9 * 2 * 1.5
	if got := m.MaxWindowDuration(); got < want-1e-9 || got > want+1e-9 {
		t.Errorf("MaxWindowDuration() = %v, want %v", got, want)
	}
}
