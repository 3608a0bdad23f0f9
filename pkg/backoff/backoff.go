// Package backoff provides jittered exponential backoff delays for
// reconnect loops.
package backoff

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

var (
	// Thread-safe random source for jitter
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Backoff produces a growing sequence of delays. The zero value is not
// usable; construct with New.
type Backoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     bool

	next time.Duration
}

// Option configures a Backoff.
type Option func(*Backoff)

// WithMultiplier sets the growth factor between delays. Values below 1 are
// ignored.
func WithMultiplier(multiplier float64) Option {
	return func(b *Backoff) {
		if multiplier >= 1 {
			b.multiplier = multiplier
		}
	}
}

// WithoutJitter disables the random jitter added to each delay.
func WithoutJitter() Option {
	return func(b *Backoff) {
		b.jitter = false
	}
}

// New creates a backoff starting at initial and capped at max. Each delay
// doubles by default and carries up to 25% jitter.
func New(initial, max time.Duration, opts ...Option) *Backoff {
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	if max < initial {
		max = initial
	}

	b := &Backoff{
		initial:    initial,
		max:        max,
		multiplier: 2.0,
		jitter:     true,
		next:       initial,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Next returns the current delay and advances the sequence.
func (b *Backoff) Next() time.Duration {
	delay := b.next

	grown := time.Duration(float64(b.next) * b.multiplier)
	if grown > b.max || grown < b.next {
		grown = b.max
	}
	b.next = grown

	if b.jitter {
		randMu.Lock()
		delay += time.Duration(randSource.Int63n(int64(delay/4) + 1))
		randMu.Unlock()
	}
	return delay
}

// Reset restarts the sequence from the initial delay.
func (b *Backoff) Reset() {
	b.next = b.initial
}

// Sleep waits for the next delay or until the context ends, returning the
// context error in that case.
func (b *Backoff) Sleep(ctx context.Context) error {
	timer := time.NewTimer(b.Next())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
