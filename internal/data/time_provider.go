package data

import (
	"sync"
	"time"
)

// TimeProvider abstracts the clock so job timestamps, lease expirations and
// artifact filename timestamps stay deterministic under test.
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider is the production clock.
type RealTimeProvider struct{}

// Now returns the current system time.
func (r *RealTimeProvider) Now() time.Time {
	return time.Now()
}

// FixedTimeProvider is a settable clock for tests. It is safe for concurrent
// use: worker tests advance it while lease and heartbeat goroutines read it.
type FixedTimeProvider struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedTimeProvider creates a FixedTimeProvider pinned to the given time.
func NewFixedTimeProvider(t time.Time) *FixedTimeProvider {
	return &FixedTimeProvider{now: t}
}

// Now returns the fixed time.
func (f *FixedTimeProvider) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// SetTime pins the clock to a new time.
func (f *FixedTimeProvider) SetTime(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

// AddTime advances the clock by the given duration.
func (f *FixedTimeProvider) AddTime(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
