package injector

import (
	"context"
	"math/rand/v2"
	"time"
)

// Timing controls every wait the engine performs.
type Timing struct {
	// BaseDelay is the mean pause after each character.
	BaseDelay time.Duration
	// MinDelay floors the jittered character pause.
	MinDelay time.Duration
	// JitterMin and JitterMax bound the uniform offset added to BaseDelay.
	JitterMin time.Duration
	JitterMax time.Duration
	// HesitationChance is the probability of an extra pause after a character.
	HesitationChance float64
	HesitationMin    time.Duration
	HesitationMax    time.Duration

	// KeySettle separates the press and release of a key pair.
	KeySettle     time.Duration
	NewlineSettle time.Duration
	TabSettle     time.Duration

	// SettleDelay passes between session start and focus resolution.
	SettleDelay time.Duration

	DecoyPause    time.Duration
	DecoyInterval time.Duration
	DecoyDuration time.Duration

	// ProgressEvery is the progress report cadence in processed runes.
	ProgressEvery int
}

// DefaultTiming returns the stock typing profile.
func DefaultTiming() Timing {
	return Timing{
		BaseDelay:        40 * time.Millisecond,
		MinDelay:         20 * time.Millisecond,
		JitterMin:        -10 * time.Millisecond,
		JitterMax:        25 * time.Millisecond,
		HesitationChance: 0.05,
		HesitationMin:    80 * time.Millisecond,
		HesitationMax:    200 * time.Millisecond,
		KeySettle:        time.Millisecond,
		NewlineSettle:    20 * time.Millisecond,
		TabSettle:        10 * time.Millisecond,
		SettleDelay:      300 * time.Millisecond,
		DecoyPause:       200 * time.Millisecond,
		DecoyInterval:    50 * time.Millisecond,
		DecoyDuration:    3 * time.Second,
		ProgressEvery:    50,
	}
}

// CharDelay draws the pause that follows one character:
// max(MinDelay, BaseDelay + U(JitterMin, JitterMax)), plus
// U(HesitationMin, HesitationMax) with probability HesitationChance.
func (t Timing) CharDelay(rng *rand.Rand) time.Duration {
	d := max(t.MinDelay, t.BaseDelay+uniform(rng, t.JitterMin, t.JitterMax))
	if t.HesitationChance > 0 && rng.Float64() < t.HesitationChance {
		d += uniform(rng, t.HesitationMin, t.HesitationMax)
	}
	return d
}

func uniform(rng *rand.Rand, lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rng.Int64N(int64(hi-lo)+1))
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// pressKey posts a press/release pair. The release is always sent once the
// press went out so the target never sees a stuck key; the settle between
// them does not observe cancellation.
func pressKey(p Poster, target Target, key Key, settle time.Duration) bool {
	if err := p.PostKey(target, key, true); err != nil {
		return false
	}
	if settle > 0 {
		time.Sleep(settle)
	}
	return p.PostKey(target, key, false) == nil
}
