// Package memstore keeps coins, trades and wallets in process memory. It
// backs STORE_DRIVER=memory and the engine's integration tests, and evaluates
// filters with the same semantics as the SQL store.
package memstore

import (
	"sync"
	"time"
)

// Option configures a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// timestamp matches postgres timestamptz precision.
func (o options) timestamp() time.Time {
	return o.now().UTC().Truncate(time.Microsecond)
}

// StepClock returns a clock that advances by step on every call, for tests
// that need strictly increasing timestamps.
func StepClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(step)
		return t
	}
}
