// Package sweep implements the rate sweep benchmark: a transmitter that
// walks a rate table once, tagging every packet with the active rate, and a
// receiver that classifies packets by tag and detects the end of the stream
// from silence alone.
package sweep

import (
	"context"
	"time"
)

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
