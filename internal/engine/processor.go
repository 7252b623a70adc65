package engine

import "github.com/MrWong99/klaxon/pkg/alarm"

// Processor is the common surface of the [Engine] (standard mode, one
// shared pipeline for all profiles) and [Parallel] (one isolated pipeline
// per profile) deployment shapes. Isolation is a deployment choice, not a
// different algorithm.
type Processor interface {
	// Process runs one chunk of 16-bit mono PCM through the pipeline(s).
	Process(chunk []int16) ([]alarm.PatternMatchEvent, error)

	// Finish flushes open tone candidates at end of stream.
	Finish() []alarm.PatternMatchEvent

	// Matches returns the subscriber channel, or nil when not configured.
	Matches() <-chan alarm.PatternMatchEvent
}

var (
	_ Processor = (*Engine)(nil)
	_ Processor = (*Parallel)(nil)
)
