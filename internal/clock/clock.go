// Package clock abstracts the time operations used by the cache and the
// agent loop so tests can control expiry and sweeping deterministically.
// Production code injects Real(); tests inject Fake().
package clock

import "time"

// Clock is the time source injected into components that expire or schedule.
type Clock interface {
	Now() time.Time
	// NewTicker delivers ticks on C every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers periodic ticks. C has capacity 1; ticks are dropped when
// the consumer falls behind, matching time.Ticker.
type Ticker struct {
	C    <-chan time.Time
	stop func()
}

// Stop turns the ticker off. It does not close C.
func (t *Ticker) Stop() { t.stop() }

type realClock struct{}

// Real returns the wall clock.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) *Ticker {
	t := time.NewTicker(d)
	return &Ticker{C: t.C, stop: t.Stop}
}
