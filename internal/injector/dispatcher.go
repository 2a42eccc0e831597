package injector

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"unicode/utf16"
)

// Progress reports how far a dispatch has got. Done counts processed runes,
// Total is the number of runes that will be processed (carriage returns are
// excluded) and Delivered counts runes whose posts succeeded.
type Progress struct {
	Done      int
	Total     int
	Delivered int
}

// Percent returns Done as a share of Total in [0, 100].
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 100
	}
	return float64(p.Done) * 100 / float64(p.Total)
}

// Dispatcher turns text into posted input messages.
type Dispatcher struct {
	poster Poster
	timing Timing
	rng    *rand.Rand

	delivered atomic.Int64
}

// NewDispatcher creates a dispatcher drawing delays from rng.
func NewDispatcher(poster Poster, timing Timing, rng *rand.Rand) *Dispatcher {
	return &Dispatcher{
		poster: poster,
		timing: timing,
		rng:    rng,
	}
}

// Delivered returns the runes delivered so far by the current or last
// Dispatch. It is safe to call from another goroutine.
func (d *Dispatcher) Delivered() int {
	return int(d.delivered.Load())
}

// DeliverableLength returns the number of runes Dispatch processes for text.
func DeliverableLength(text string) int {
	n := 0
	for _, r := range text {
		if r != '\r' {
			n++
		}
	}
	return n
}

// Dispatch posts text into target one rune at a time and returns how many
// runes were delivered. Newlines and tabs become key pairs, carriage returns
// are dropped, failed posts are skipped without retry. Cancellation is
// checked before every rune and interrupts the pauses between them.
// onProgress may be nil.
func (d *Dispatcher) Dispatch(ctx context.Context, target Target, text string, onProgress func(Progress)) int {
	total := DeliverableLength(text)
	every := max(d.timing.ProgressEvery, 1)

	report := func(p Progress) {
		if onProgress != nil {
			onProgress(p)
		}
	}

	d.delivered.Store(0)
	done, delivered := 0, 0
	for _, r := range text {
		if r == '\r' {
			continue
		}
		if ctx.Err() != nil {
			return delivered
		}

		var ok bool
		switch r {
		case '\n':
			ok = pressKey(d.poster, target, KeyReturn, d.timing.KeySettle)
			sleep(ctx, d.timing.NewlineSettle)
		case '\t':
			ok = pressKey(d.poster, target, KeyTab, d.timing.KeySettle)
			sleep(ctx, d.timing.TabSettle)
		default:
			ok = d.postRune(target, r)
			sleep(ctx, d.timing.CharDelay(d.rng))
		}

		done++
		if ok {
			delivered++
			d.delivered.Add(1)
		}

		// The last rune is reported by the final update below
		if done%every == 0 && done < total {
			report(Progress{Done: done, Total: total, Delivered: delivered})
		}
	}

	if ctx.Err() == nil {
		report(Progress{Done: total, Total: total, Delivered: delivered})
	}
	return delivered
}

// postRune sends r as one or two UTF-16 code units.
func (d *Dispatcher) postRune(target Target, r rune) bool {
	if utf16.RuneLen(r) == 2 {
		r1, r2 := utf16.EncodeRune(r)
		return d.poster.PostChar(target, uint16(r1)) == nil &&
			d.poster.PostChar(target, uint16(r2)) == nil
	}
	return d.poster.PostChar(target, uint16(r)) == nil
}
