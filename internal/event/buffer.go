package event

import (
	"sort"

	"github.com/MrWong99/klaxon/pkg/alarm"
)

// defaultRetention is the fallback history horizon in seconds, sized for
// the slowest common alarm cadences.
const defaultRetention = 60.0

// Buffer is a time-indexed, append-only store of tone events with lazy
// pruning. Events arrive in non-decreasing timestamp order (the generator
// guarantees this), so range queries are binary searches.
//
// Not safe for concurrent use — each pipeline owns its own instance.
type Buffer struct {
	events []alarm.ToneEvent
	maxAge float64
}

// NewBuffer creates a buffer that retains events for maxAge seconds.
// A non-positive maxAge selects the default retention horizon.
func NewBuffer(maxAge float64) *Buffer {
	if maxAge <= 0 {
		maxAge = defaultRetention
	}
	return &Buffer{maxAge: maxAge}
}

// Push appends an event. The caller guarantees non-decreasing timestamps.
func (b *Buffer) Push(e alarm.ToneEvent) {
	b.events = append(b.events, e)
}

// Prune drops events older than now minus the retention horizon. The
// survivors are copied to a fresh backing array so evicted events do not
// pin memory for the stream's lifetime.
func (b *Buffer) Prune(now float64) {
	cutoff := now - b.maxAge
	start := sort.Search(len(b.events), func(i int) bool { return b.events[i].Timestamp >= cutoff })
	if start == 0 {
		return
	}
	fresh := make([]alarm.ToneEvent, len(b.events)-start)
	copy(fresh, b.events[start:])
	b.events = fresh
}

// Query returns, in order, the events whose [Timestamp, Timestamp+Duration)
// span intersects [t0, t1]. The returned slice aliases the buffer and must
// not be retained across a Push or Prune.
func (b *Buffer) Query(t0, t1 float64) []alarm.ToneEvent {
	// Upper bound: first event starting after t1.
	hi := sort.Search(len(b.events), func(i int) bool { return b.events[i].Timestamp > t1 })

	// Lower bound: first event starting at or after t0, then widen to
	// include earlier events that are still running at t0.
	lo := sort.Search(len(b.events), func(i int) bool { return b.events[i].Timestamp >= t0 })
	for lo > 0 && b.events[lo-1].End() > t0 {
		lo--
	}

	if lo >= hi {
		return nil
	}
	return b.events[lo:hi]
}

// Window returns the events intersecting the trailing window of the given
// duration ending at now.
func (b *Buffer) Window(now, duration float64) []alarm.ToneEvent {
	return b.Query(now-duration, now)
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int { return len(b.events) }

// Clear drops all buffered events.
func (b *Buffer) Clear() { b.events = nil }
