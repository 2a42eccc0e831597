package injector

import (
	"context"
	"time"
)

// Decoy repeatedly presses forward-delete in the target after typing.
type Decoy struct {
	poster Poster
	timing Timing
}

// NewDecoy creates a decoy using the pause and interval from timing.
func NewDecoy(poster Poster, timing Timing) *Decoy {
	return &Decoy{poster: poster, timing: timing}
}

// Run waits DecoyPause and then presses delete every DecoyInterval until
// duration has passed or ctx is done. Failed presses are ignored.
func (d *Decoy) Run(ctx context.Context, target Target, duration time.Duration) {
	if duration <= 0 {
		return
	}
	if !sleep(ctx, d.timing.DecoyPause) {
		return
	}

	deadline := time.Now().Add(duration)
	for ctx.Err() == nil && time.Now().Before(deadline) {
		pressKey(d.poster, target, KeyDelete, d.timing.KeySettle)
		if !sleep(ctx, min(d.timing.DecoyInterval, time.Until(deadline))) {
			return
		}
	}
}
