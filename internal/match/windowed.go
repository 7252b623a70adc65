// Package match implements sliding-window pattern matching of buffered
// tone events against alarm profiles.
//
// Instead of advancing a fragile sequential state machine on every event,
// the matcher periodically re-evaluates the trailing window of events per
// profile and searches for the best-fitting run of cadence cycles. Leading
// and trailing noise events are simply ignored, which is what makes
// detection robust in noisy rooms.
package match

import (
	"log/slog"

	"github.com/MrWong99/klaxon/internal/event"
	"github.com/MrWong99/klaxon/pkg/alarm"
)

// Config holds the matching tolerances shared by all profiles.
type Config struct {
	// NoiseSkipLimit is the number of extraneous events that may be
	// skipped between two expected cadence events without failing the
	// attempt. Zero means the default of 2.
	NoiseSkipLimit int

	// DurationRelaxLow scales segment minimum durations downwards.
	// Zero means the default of 0.5.
	DurationRelaxLow float64

	// DurationRelaxHigh scales segment maximum durations upwards.
	// Zero means the default of 1.5.
	DurationRelaxHigh float64
}

func (c Config) withDefaults() Config {
	if c.NoiseSkipLimit == 0 {
		c.NoiseSkipLimit = 2
	}
	if c.DurationRelaxLow == 0 {
		c.DurationRelaxLow = 0.5
	}
	if c.DurationRelaxHigh == 0 {
		c.DurationRelaxHigh = 1.5
	}
	return c
}

// state is the per-profile evaluation state machine. It is re-entered on
// every evaluation tick; Confirmed is terminal per tick only.
type state int

const (
	stateIdle state = iota
	stateAccumulating
	stateConfirmed
)

// profileState tracks one profile's window parameters and match progress.
type profileState struct {
	profile *alarm.Profile

	// Derived window parameters.
	patternDuration float64
	windowDuration  float64
	evalEvery       float64

	// lane screens this profile's frequency lane inside the shared buffer,
	// isolating it from co-resident distractor alarms.
	lane []alarm.Range

	st            state
	lastEval      float64
	lastQualified float64 // end time of the newest qualifying event seen
	confirmedAt   uint32  // cycle count at confirmation
}

// Matcher evaluates buffered tone events against a set of alarm profiles
// using sliding windows. It owns all cross-chunk pattern state.
//
// Not safe for concurrent use — each pipeline owns its own instance.
type Matcher struct {
	cfg      Config
	buffer   *event.Buffer
	profiles []*profileState
}

// New creates a matcher over buf for the given validated profiles.
func New(profiles []*alarm.Profile, buf *event.Buffer, cfg Config) *Matcher {
	m := &Matcher{
		cfg:    cfg.withDefaults(),
		buffer: buf,
	}
	for _, p := range profiles {
		ps := &profileState{
			profile: p,
			lane:    p.FrequencyRanges(),
		}
		ps.patternDuration = p.PatternDuration()
		ps.windowDuration = p.WindowDuration
		if ps.windowDuration == 0 {
			ps.windowDuration = ps.patternDuration * float64(p.ConfirmationCycles) * 1.5
		}
		ps.evalEvery = p.EvalFrequency
		if ps.evalEvery == 0 {
			ps.evalEvery = min(0.5, ps.patternDuration/4)
		}
		m.profiles = append(m.profiles, ps)

		slog.Debug("matcher: profile configured",
			"profile", p.Name,
			"pattern_duration", ps.patternDuration,
			"window_duration", ps.windowDuration,
			"eval_every", ps.evalEvery,
		)
	}
	return m
}

// MaxWindowDuration returns the largest evaluation window across all
// profiles; the event buffer's retention horizon is sized from it.
func (m *Matcher) MaxWindowDuration() float64 {
	var max float64
	for _, ps := range m.profiles {
		if ps.windowDuration > max {
			max = ps.windowDuration
		}
	}
	return max
}

// Add pushes a completed tone event into the underlying buffer.
func (m *Matcher) Add(e alarm.ToneEvent) {
	m.buffer.Push(e)
}

// Evaluate runs one matching tick at the stream-relative time now and
// returns any newly confirmed pattern matches. Profiles are only
// re-evaluated once their evaluation interval has elapsed; evaluation is
// idempotent per tick.
func (m *Matcher) Evaluate(now float64) []alarm.PatternMatchEvent {
	return m.evaluate(now, false)
}

// ForceEvaluate runs a matching tick for every profile regardless of its
// evaluation interval. Callers use it at end of stream, where waiting out a
// long eval_frequency would lose a pattern completed right at the cut.
func (m *Matcher) ForceEvaluate(now float64) []alarm.PatternMatchEvent {
	return m.evaluate(now, true)
}

func (m *Matcher) evaluate(now float64, force bool) []alarm.PatternMatchEvent {
	var matches []alarm.PatternMatchEvent

	for _, ps := range m.profiles {
		if !force && now-ps.lastEval < ps.evalEvery {
			continue
		}
		ps.lastEval = now

		if match, ok := m.evaluateProfile(ps, now); ok {
			matches = append(matches, match)
		}
	}

	m.buffer.Prune(now)
	return matches
}

// evaluateProfile runs the best-fit search for one profile's window.
func (m *Matcher) evaluateProfile(ps *profileState, now float64) (alarm.PatternMatchEvent, bool) {
	window := m.buffer.Window(now, ps.windowDuration)

	// Isolate this profile's frequency lane.
	var relevant []alarm.ToneEvent
	for _, e := range window {
		for _, r := range ps.lane {
			if r.Contains(e.Frequency) {
				relevant = append(relevant, e)
				break
			}
		}
	}

	if len(relevant) > 0 {
		if end := relevant[len(relevant)-1].End(); end > ps.lastQualified {
			ps.lastQualified = end
		}
	}

	// Re-arm after the reset timeout passes with no qualifying events.
	if ps.st == stateConfirmed && now-ps.lastQualified >= ps.profile.ResetTimeout {
		slog.Debug("matcher: profile re-armed", "profile", ps.profile.Name)
		ps.st = stateIdle
		ps.confirmedAt = 0
	}

	if len(relevant) == 0 {
		if ps.st == stateAccumulating {
			ps.st = stateIdle
		}
		return alarm.PatternMatchEvent{}, false
	}

	best := m.bestFit(relevant, ps.profile)

	switch {
	case best >= ps.profile.ConfirmationCycles:
		// Suppress duplicates while the alarm keeps sounding; a strictly
		// higher cycle count is new information and is re-delivered.
		if ps.st == stateConfirmed && best <= ps.confirmedAt {
			return alarm.PatternMatchEvent{}, false
		}
		ps.st = stateConfirmed
		ps.confirmedAt = best

		slog.Info("matcher: pattern confirmed",
			"profile", ps.profile.Name,
			"cycles", best,
			"at", now,
		)
		return alarm.PatternMatchEvent{
			ProfileName: ps.profile.Name,
			Timestamp:   now,
			Duration:    ps.patternDuration * float64(best),
			CycleCount:  best,
		}, true

	case best > 0:
		if ps.st == stateIdle {
			ps.st = stateAccumulating
		}
	}
	return alarm.PatternMatchEvent{}, false
}

// bestFit tries every event in the window as a candidate cycle start and
// returns the highest number of complete cycles achieved. Ties go to the
// earliest starting timestamp: the longest-observed, most-stable match.
// (The tie-break is a policy choice, made explicit here.)
func (m *Matcher) bestFit(events []alarm.ToneEvent, p *alarm.Profile) uint32 {
	var best uint32
	for i := range events {
		if c := m.countCycles(events[i:], p); c > best {
			best = c
		}
	}
	return best
}

// countCycles walks the profile's cadence cyclically from the start of
// events and returns how many complete cycles match.
//
// Silence segments are recorded as a pending gap requirement and verified
// when the next tone segment binds an event; a silence at the end of the
// cadence therefore becomes the inter-cycle gap check of the following
// cycle. "any" segments clear the requirement entirely (wildcard).
func (m *Matcher) countCycles(events []alarm.ToneEvent, p *alarm.Profile) uint32 {
	var (
		cycles     uint32
		idx        int
		pendingGap *alarm.Range
		prevEnd    float64
		havePrev   bool
	)

	for {
		ok := true

		for _, seg := range p.Segments {
			switch seg.Kind {
			case alarm.SegmentSilence:
				gap := seg.Duration
				pendingGap = &gap

			case alarm.SegmentAny:
				pendingGap = nil

			case alarm.SegmentTone:
				matched := false
				skips := 0

				for idx < len(events) {
					e := events[idx]

					if !m.toneMatches(seg, e) {
						// Extraneous event between expected cadence steps.
						if skips >= m.cfg.NoiseSkipLimit {
							break
						}
						skips++
						idx++
						continue
					}

					if pendingGap != nil && havePrev {
						gap := e.Timestamp - prevEnd
						if gap < pendingGap.Min*m.cfg.DurationRelaxLow {
							// Too soon: impulsive noise inside the silence.
							if skips >= m.cfg.NoiseSkipLimit {
								break
							}
							skips++
							idx++
							continue
						}
						if gap > pendingGap.Max*m.cfg.DurationRelaxHigh {
							// The cadence genuinely broke here.
							break
						}
					}

					matched = true
					pendingGap = nil
					prevEnd = e.End()
					havePrev = true
					idx++
					break
				}

				if !matched {
					ok = false
				}
			}

			if !ok {
				break
			}
		}

		if !ok {
			return cycles
		}
		cycles++
	}
}

// toneMatches reports whether e satisfies a tone segment's frequency band
// and relaxed duration range.
func (m *Matcher) toneMatches(seg alarm.Segment, e alarm.ToneEvent) bool {
	if !seg.Frequency.Contains(e.Frequency) {
		return false
	}
	return e.Duration >= seg.Duration.Min*m.cfg.DurationRelaxLow &&
		e.Duration <= seg.Duration.Max*m.cfg.DurationRelaxHigh
}

// Reset clears all per-profile state and the underlying buffer.
func (m *Matcher) Reset() {
	m.buffer.Clear()
	for _, ps := range m.profiles {
		ps.st = stateIdle
		ps.lastEval = 0
		ps.lastQualified = 0
		ps.confirmedAt = 0
	}
}
