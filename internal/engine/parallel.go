package engine

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/klaxon/internal/observe"
	"github.com/MrWong99/klaxon/pkg/alarm"
)

// Parallel runs one fully isolated pipeline per profile: separate noise
// model, event generator, buffer, and matcher, each fed the same raw chunk.
// Tuning one profile can then never desensitise or falsely trigger another.
//
// Per-chunk fan-out runs the pipelines concurrently — safe because each
// pipeline owns its mutable state exclusively and the chunk is read-only.
// Callbacks fire sequentially, in profile order, after all pipelines have
// finished the chunk.
//
// Not safe for concurrent use by multiple feeders.
type Parallel struct {
	pipelines []*Engine
	names     []string

	metrics     *observe.Metrics
	onDetection alarm.DetectionFunc
	onMatch     alarm.MatchFunc
	matchCh     chan alarm.PatternMatchEvent
}

// NewParallel builds one isolated [Engine] per profile. Options apply to
// the Parallel wrapper; the inner pipelines deliver through it.
func NewParallel(cfg Config, profiles []*alarm.Profile, opts ...Option) (*Parallel, error) {
	p := &Parallel{}

	// Reuse Engine options by applying them to a scratch engine shell.
	shell := &Engine{}
	for _, opt := range opts {
		opt(shell)
	}
	p.onDetection = shell.onDetection
	p.onMatch = shell.onMatch
	p.matchCh = shell.matchCh
	p.metrics = shell.metrics
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}

	ctx := context.Background()
	for _, profile := range profiles {
		pipe, err := New(cfg, []*alarm.Profile{profile}, WithMetrics(p.metrics))
		if err != nil {
			return nil, err
		}
		pipe.name = profile.Name
		p.pipelines = append(p.pipelines, pipe)
		p.names = append(p.names, profile.Name)
		p.metrics.ActivePipelines.Add(ctx, 1)
	}
	return p, nil
}

// Process fans the chunk out to every pipeline concurrently and returns
// the union of confirmed matches, ordered by profile name then timestamp.
func (p *Parallel) Process(chunk []int16) ([]alarm.PatternMatchEvent, error) {
	results := make([][]alarm.PatternMatchEvent, len(p.pipelines))

	var g errgroup.Group
	for i, pipe := range p.pipelines {
		g.Go(func() error {
			matches, err := pipe.Process(chunk)
			results[i] = matches
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []alarm.PatternMatchEvent
	for _, matches := range results {
		all = append(all, matches...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].ProfileName != all[j].ProfileName {
			return all[i].ProfileName < all[j].ProfileName
		}
		return all[i].Timestamp < all[j].Timestamp
	})

	p.deliver(all)
	return all, nil
}

// Finish flushes every pipeline and returns any final matches.
func (p *Parallel) Finish() []alarm.PatternMatchEvent {
	var all []alarm.PatternMatchEvent
	for _, pipe := range p.pipelines {
		all = append(all, pipe.Finish()...)
	}
	p.deliver(all)
	return all
}

func (p *Parallel) deliver(matches []alarm.PatternMatchEvent) {
	for _, m := range matches {
		if p.onDetection != nil {
			p.onDetection(m.ProfileName)
		}
		if p.onMatch != nil {
			p.onMatch(m)
		}
		if p.matchCh != nil {
			select {
			case p.matchCh <- m:
			default:
			}
		}
	}
}

// Matches returns the subscriber channel, or nil when [WithMatchChannel]
// was not used.
func (p *Parallel) Matches() <-chan alarm.PatternMatchEvent { return p.matchCh }

// Close decrements the active-pipeline gauge. The pipelines themselves
// hold no OS resources; stopping is simply ceasing to feed chunks.
func (p *Parallel) Close() {
	ctx := context.Background()
	for range p.pipelines {
		p.metrics.ActivePipelines.Add(ctx, -1)
	}
}
