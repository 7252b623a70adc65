package event_test

import (
	"testing"

	"github.com/MrWong99/klaxon/internal/event"
	"github.com/MrWong99/klaxon/pkg/alarm"
)

func pushEvents(b *event.Buffer, startTimes ...float64) {
	for _, ts := range startTimes {
		b.Push(alarm.ToneEvent{Timestamp: ts, Duration: 0.5, Frequency: 3000})
	}
}

func TestBufferQueryIntersection(t *testing.T) {
	t.Parallel()
	b := event.NewBuffer(60)
	pushEvents(b, 1.0, 2.0, 3.0, 4.0)

	tests := []struct {
		name   string
		t0, t1 float64
		want   int
	}{
		{"exact span", 1.0, 4.5, 4},
		{"inner span", 2.1, 3.1, 2},
		{"event running into t0", 2.3, 2.4, 1}, // event at 2.0 still sounding
		{"before all", 0, 0.9, 0},
		{"after all", 5, 6, 0},
		{"single", 3.0, 3.0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := b.Query(tt.t0, tt.t1)
			if len(got) != tt.want {
				t.Errorf("Query(%v, %v) returned %d events, want %d", tt.t0, tt.t1, len(got), tt.want)
			}
			for i := 1; i < len(got); i++ {
				if got[i].Timestamp < got[i-1].Timestamp {
					t.Error("query result out of order")
				}
			}
		})
	}
}

func TestBufferWindow(t *testing.T) {
	t.Parallel()
	b := event.NewBuffer(60)
	pushEvents(b, 1.0, 5.0, 9.0)

	got := b.Window(10, 3)
	if len(got) != 1 || got[0].Timestamp != 9.0 {
		t.Errorf("Window(10, 3) = %+v, want only the event at 9.0", got)
	}
}

func TestBufferPrune(t *testing.T) {
	t.Parallel()
	b := event.NewBuffer(5)
	pushEvents(b, 1.0, 2.0, 8.0, 9.0)

	b.Prune(10) // cutoff at 5.0
	if b.Len() != 2 {
		t.Fatalf("Len() = %d after prune, want 2", b.Len())
	}
	if got := b.Query(0, 100); got[0].Timestamp != 8.0 {
		t.Errorf("oldest survivor at %v, want 8.0", got[0].Timestamp)
	}
}

func TestBufferPruneKeepsAllWhenFresh(t *testing.T) {
	t.Parallel()
	b := event.NewBuffer(60)
	pushEvents(b, 1.0, 2.0)
	b.Prune(3)
	if b.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (nothing beyond horizon)", b.Len())
	}
}

func TestBufferClear(t *testing.T) {
	t.Parallel()
	b := event.NewBuffer(60)
	pushEvents(b, 1.0)
	b.Clear()
	if b.Len() != 0 {
		t.Error("Clear should drop all events")
	}
}
