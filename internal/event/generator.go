// Package event turns streams of filtered spectral peaks into discrete,
// chronologically ordered tone events, and buffers them for windowed
// pattern matching.
package event

import (
	"sort"

	"github.com/MrWong99/klaxon/pkg/alarm"
)

// GeneratorConfig holds the tuning parameters for a [Generator].
type GeneratorConfig struct {
	// SampleRate is the PCM sample rate in Hz.
	SampleRate int

	// ChunkSize is the number of samples per chunk.
	ChunkSize int

	// MinToneDuration is the debounce threshold in seconds: shorter blips
	// are discarded silently.
	MinToneDuration float64

	// DropoutTolerance is the longest gap in seconds a tone may vanish for
	// and still be stitched into one event.
	DropoutTolerance float64

	// FrequencyTolerance is the maximum distance in Hz between a peak and a
	// tracked candidate for them to be considered the same tone. Zero means
	// the default of 50 Hz; parabolic interpolation jitters the reported
	// peak frequency by a few Hz per chunk, so a zero budget would fragment
	// every steady tone.
	FrequencyTolerance float64

	// FreqSmoothing is the EMA weight applied to new frequency
	// observations, letting a candidate follow a drifting buzzer. Zero
	// keeps the first observed frequency.
	FreqSmoothing float64

	// DipThreshold ends a candidate immediately when its magnitude falls
	// below DipThreshold times the strongest recent magnitude within a
	// single chunk. This exposes the true silence behind a reverberant
	// tail. Zero disables dip-disconnect.
	DipThreshold float64

	// MaxCandidates bounds the candidate arena, capping allocation under
	// adversarial noise. Zero means the default of 16.
	MaxCandidates int
}

const defaultMaxCandidates = 16

// DefaultFrequencyTolerance is the candidate matching budget in Hz used
// when [GeneratorConfig.FrequencyTolerance] is zero.
const DefaultFrequencyTolerance = 50.0

// candidate is one slot of the fixed-capacity tracking arena.
type candidate struct {
	active    bool
	frequency float64 // EMA-smoothed
	startTime float64
	lastSeen  float64
	samples   int     // chunks the tone was observed in
	maxMag    float64 // strongest magnitude over the whole tone
	recentMag float64 // strongest magnitude seen recently, for dip detection
}

// Generator converts filtered peaks into [alarm.ToneEvent]s, hiding
// per-chunk jitter. It debounces short blips, bridges brief dropouts,
// disconnects on magnitude cliffs, and releases events strictly in
// non-decreasing timestamp order.
//
// Not safe for concurrent use — each pipeline owns its own instance.
type Generator struct {
	cfg      GeneratorConfig
	chunkDur float64

	arena   []candidate
	pending []alarm.ToneEvent
}

// NewGenerator creates a generator for fixed-size chunks.
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = defaultMaxCandidates
	}
	if cfg.FrequencyTolerance <= 0 {
		cfg.FrequencyTolerance = DefaultFrequencyTolerance
	}
	return &Generator{
		cfg:      cfg,
		chunkDur: float64(cfg.ChunkSize) / float64(cfg.SampleRate),
		arena:    make([]candidate, cfg.MaxCandidates),
	}
}

// ChunkDuration returns the duration of one chunk in seconds.
func (g *Generator) ChunkDuration() float64 { return g.chunkDur }

// Process consumes the peaks of one chunk ending at the stream-relative
// time now, and returns any tone events that completed. Events are only
// released once no earlier-starting candidate remains open, so the returned
// (and all future) events are in non-decreasing timestamp order.
func (g *Generator) Process(peaks []alarm.Peak, now float64) []alarm.ToneEvent {
	updated := make(map[int]bool, len(peaks))

	for _, peak := range peaks {
		idx := g.match(peak.Frequency, updated)
		if idx < 0 {
			g.spawn(peak, now)
			continue
		}

		c := &g.arena[idx]
		if g.cfg.DipThreshold > 0 && peak.Magnitude < g.cfg.DipThreshold*c.recentMag {
			// Magnitude cliff: the tone proper ended here even though a
			// reverberant tail is still physically present. Close it at the
			// dip point and track the tail as a fresh candidate.
			g.finish(c)
			g.spawn(peak, now)
			continue
		}

		if g.cfg.FreqSmoothing > 0 {
			c.frequency = (1-g.cfg.FreqSmoothing)*c.frequency + g.cfg.FreqSmoothing*peak.Frequency
		}
		c.lastSeen = now
		c.samples++
		if peak.Magnitude > c.maxMag {
			c.maxMag = peak.Magnitude
		}
		c.recentMag = peak.Magnitude
		updated[idx] = true
	}

	// Close out candidates that have been quiet past the dropout budget.
	for i := range g.arena {
		c := &g.arena[i]
		if !c.active || updated[i] {
			continue
		}
		if now-c.lastSeen > g.cfg.DropoutTolerance {
			g.finish(c)
		}
	}

	return g.release()
}

// Flush ends all open candidates at the stream-relative time now and
// returns every remaining event. Called when the input stream ends.
func (g *Generator) Flush(now float64) []alarm.ToneEvent {
	for i := range g.arena {
		if g.arena[i].active {
			g.finish(&g.arena[i])
		}
	}
	return g.release()
}

// match returns the arena index of the closest active candidate within the
// frequency tolerance that has not been updated this chunk, or -1.
func (g *Generator) match(freq float64, updated map[int]bool) int {
	best := -1
	bestDist := g.cfg.FrequencyTolerance
	for i := range g.arena {
		c := &g.arena[i]
		if !c.active || updated[i] {
			continue
		}
		dist := freq - c.frequency
		if dist < 0 {
			dist = -dist
		}
		if dist <= bestDist {
			best = i
			bestDist = dist
		}
	}
	return best
}

// spawn claims a free arena slot for a new candidate. When the arena is
// full the peak is dropped, bounding state under adversarial noise.
func (g *Generator) spawn(peak alarm.Peak, now float64) {
	for i := range g.arena {
		if g.arena[i].active {
			continue
		}
		g.arena[i] = candidate{
			active:    true,
			frequency: peak.Frequency,
			startTime: now,
			lastSeen:  now,
			samples:   1,
			maxMag:    peak.Magnitude,
			recentMag: peak.Magnitude,
		}
		return
	}
}

// finish retires a candidate, emitting a tone event into the pending set if
// it survives debouncing.
func (g *Generator) finish(c *candidate) {
	c.active = false

	duration := float64(c.samples) * g.chunkDur
	if duration < g.cfg.MinToneDuration {
		return
	}
	g.pending = append(g.pending, alarm.ToneEvent{
		Timestamp:  c.startTime,
		Duration:   duration,
		Frequency:  c.frequency,
		Magnitude:  c.maxMag,
		Confidence: 1.0,
	})
}

// release returns the pending events that are safe to publish: those that
// started before the oldest still-open candidate. Overlapping releases are
// coalesced into the longer event.
func (g *Generator) release() []alarm.ToneEvent {
	if len(g.pending) == 0 {
		return nil
	}
	sort.Slice(g.pending, func(i, j int) bool { return g.pending[i].Timestamp < g.pending[j].Timestamp })

	oldestOpen, anyOpen := g.oldestOpenStart()

	var ready []alarm.ToneEvent
	if !anyOpen {
		ready = g.pending
		g.pending = nil
	} else {
		split := 0
		for split < len(g.pending) && g.pending[split].Timestamp < oldestOpen {
			split++
		}
		if split == 0 {
			return nil
		}
		ready = g.pending[:split]
		g.pending = append([]alarm.ToneEvent(nil), g.pending[split:]...)
	}

	return g.coalesce(ready)
}

func (g *Generator) oldestOpenStart() (float64, bool) {
	oldest := 0.0
	any := false
	for i := range g.arena {
		c := &g.arena[i]
		if !c.active {
			continue
		}
		if !any || c.startTime < oldest {
			oldest = c.startTime
		}
		any = true
	}
	return oldest, any
}

// coalesce merges events at the same frequency (within the matching
// tolerance) that overlap by more than half of the shorter one, keeping the
// longer event. Such duplicates arise when two candidates tracked the same
// physical tone at slightly different frequencies. Overlapping events at
// clearly different frequencies are distinct tones and pass through.
func (g *Generator) coalesce(events []alarm.ToneEvent) []alarm.ToneEvent {
	if len(events) < 2 {
		return events
	}

	out := events[:0:0]
	current := events[0]
	for _, next := range events[1:] {
		overlap := min(current.End(), next.End()) - next.Timestamp
		shorter := min(current.Duration, next.Duration)
		dist := next.Frequency - current.Frequency
		if dist < 0 {
			dist = -dist
		}

		if overlap > 0.5*shorter && dist <= g.cfg.FrequencyTolerance {
			if next.Duration > current.Duration {
				current = next
			}
			continue
		}
		out = append(out, current)
		current = next
	}
	return append(out, current)
}
