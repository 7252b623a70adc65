package dsp

import (
	"sort"

	"github.com/MrWong99/klaxon/pkg/alarm"
)

// FrequencyFilter screens spectral peaks against the union of all
// configured profiles' tone-frequency bands, expanded by a tolerance.
// Overlapping and adjacent bands are merged on insertion, so lookups are a
// binary search over a sorted, disjoint interval list.
//
// The filter never mutates a peak; it is a pure relevance screener.
// Not safe for concurrent mutation — build it up front, then only read.
type FrequencyFilter struct {
	tolerance float64
	intervals []alarm.Range // sorted by Min, pairwise disjoint
}

// NewFrequencyFilter creates an empty filter. Each added range is expanded
// by tolerance Hz on both sides before merging.
func NewFrequencyFilter(tolerance float64) *FrequencyFilter {
	return &FrequencyFilter{tolerance: tolerance}
}

// AddProfile adds every tone-segment frequency band of p.
func (f *FrequencyFilter) AddProfile(p *alarm.Profile) {
	for _, r := range p.FrequencyRanges() {
		f.AddRange(r.Min, r.Max)
	}
}

// AddRange inserts [min-tolerance, max+tolerance] into the interval set and
// re-merges. Classic interval merge: sort by start, fold overlapping runs.
func (f *FrequencyFilter) AddRange(min, max float64) {
	lo := min - f.tolerance
	if lo < 0 {
		lo = 0
	}
	f.intervals = append(f.intervals, alarm.Range{Min: lo, Max: max + f.tolerance})

	sort.Slice(f.intervals, func(i, j int) bool { return f.intervals[i].Min < f.intervals[j].Min })

	merged := f.intervals[:1]
	for _, iv := range f.intervals[1:] {
		last := &merged[len(merged)-1]
		if iv.Min <= last.Max {
			if iv.Max > last.Max {
				last.Max = iv.Max
			}
			continue
		}
		merged = append(merged, iv)
	}
	f.intervals = merged
}

// Contains reports whether freq falls inside some merged interval.
// O(log n) via binary search over the sorted interval starts.
func (f *FrequencyFilter) Contains(freq float64) bool {
	// First interval whose Min is > freq; the candidate is the one before.
	i := sort.Search(len(f.intervals), func(i int) bool { return f.intervals[i].Min > freq })
	if i == 0 {
		return false
	}
	return freq <= f.intervals[i-1].Max
}

// FilterPeaks returns the subset of peaks whose frequency lies inside some
// configured band. The relative order of surviving peaks is preserved.
func (f *FrequencyFilter) FilterPeaks(peaks []alarm.Peak) []alarm.Peak {
	if len(f.intervals) == 0 || len(peaks) == 0 {
		return nil
	}
	out := make([]alarm.Peak, 0, len(peaks))
	for _, p := range peaks {
		if f.Contains(p.Frequency) {
			out = append(out, p)
		}
	}
	return out
}

// Ranges returns a copy of the merged, sorted interval list. Intended for
// tests and diagnostics.
func (f *FrequencyFilter) Ranges() []alarm.Range {
	out := make([]alarm.Range, len(f.intervals))
	copy(out, f.intervals)
	return out
}
