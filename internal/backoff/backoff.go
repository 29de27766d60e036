// Package backoff implements the doubling-with-jitter retry delay used by
// the listener's bind retry and the indexer's database-error retry
// (spec.md §4.1, §4.3, §5); the NAT-PMP client doubles its own request
// timeout and does not use this package. No pack dependency
// provides this directly, so it is hand-written rather than imported; see
// DESIGN.md.
package backoff

import (
	"math/rand/v2"
	"time"
)

// Backoff produces a sequence of doubling delays between min and max,
// jittered by +/-25% so that concurrently-retrying peers don't
// synchronize.
type Backoff struct {
	min, max time.Duration
	cur      time.Duration
}

// New returns a Backoff starting at min and doubling up to max.
func New(min, max time.Duration) *Backoff {
	return &Backoff{min: min, max: max, cur: min}
}

// Next returns the next delay and advances the internal state.
func (b *Backoff) Next() time.Duration {
	d := b.cur

	b.cur *= 2
	if b.cur > b.max {
		b.cur = b.max
	}

	jitterRange := int64(d) / 4
	if jitterRange <= 0 {
		return d
	}
	jitter := rand.Int64N(2*jitterRange+1) - jitterRange
	return d + time.Duration(jitter)
}

// Reset returns the backoff to its initial delay, used after a successful
// operation.
func (b *Backoff) Reset() {
	b.cur = b.min
}
