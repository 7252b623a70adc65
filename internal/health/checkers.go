package health

import (
	"context"
	"fmt"
	"time"
)

// CaptureAlive returns a [Checker] that fails when the capture device has
// not delivered audio within maxAge. lastData reports the time of the most
// recent driver callback; the zero time means no audio has arrived yet.
func CaptureAlive(lastData func() time.Time, maxAge time.Duration) Checker {
	return Checker{
		Name: "capture",
		Check: func(ctx context.Context) error {
			last := lastData()
			if last.IsZero() {
				return fmt.Errorf("no audio received yet")
			}
			if age := time.Since(last); age > maxAge {
				return fmt.Errorf("no audio for %s (max %s)", age.Round(time.Millisecond), maxAge)
			}
			return nil
		},
	}
}

// PipelineFed returns a [Checker] that fails when no chunk has been fed to
// the detection pipeline within maxAge. processed reports the time the last
// chunk finished processing.
func PipelineFed(processed func() time.Time, maxAge time.Duration) Checker {
	return Checker{
		Name: "pipeline",
		Check: func(ctx context.Context) error {
			last := processed()
			if last.IsZero() {
				return fmt.Errorf("no chunks processed yet")
			}
			if age := time.Since(last); age > maxAge {
				return fmt.Errorf("pipeline stalled for %s (max %s)", age.Round(time.Millisecond), maxAge)
			}
			return nil
		},
	}
}
