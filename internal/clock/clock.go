// Package clock provides a mockable time source and a way to step the
// system clock.
//
// In production, RealClock wraps time.Now() and SystemSink writes the
// kernel clock. Tests use MockClock for both roles.
package clock

import (
	"errors"
	"sync"
	"time"
)

// MinReasonableYear is the earliest year we consider valid. A clock reading
// before it usually means the host booted without an RTC.
const MinReasonableYear = 2023

// ErrUnsupported is returned by SystemSink on platforms where the clock
// cannot be stepped.
var ErrUnsupported = errors.New("setting the system clock is not supported on this platform")

// Clock is the interface for time operations.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	Until(t time.Time) time.Duration
}

// Sink accepts a corrected time and applies it to some clock.
type Sink interface {
	Apply(t time.Time) error
}

// --- Real Clock ---

// RealClock provides the actual system time.
type RealClock struct{}

// Now returns the current system time.
func (c *RealClock) Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t.
func (c *RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// Until returns the duration until t.
func (c *RealClock) Until(t time.Time) time.Duration {
	return time.Until(t)
}

// SystemSink steps the host clock. Requires CAP_SYS_TIME on Linux.
type SystemSink struct{}

// Apply sets the system clock to t.
func (SystemSink) Apply(t time.Time) error {
	return setSystemTime(t)
}

// --- Mock Clock ---

// MockClock is a test clock with controllable time. It also implements
// Sink so tests can observe a clock step.
type MockClock struct {
	mu      sync.RWMutex
	current time.Time
	applied int
}

// NewMockClock creates a mock clock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{current: t}
}

// Now returns the mock time.
func (c *MockClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Since returns the duration since t.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Until returns the duration until t.
func (c *MockClock) Until(t time.Time) time.Duration {
	return t.Sub(c.Now())
}

// Set sets the mock time.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

// Advance advances the mock time by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Apply sets the mock time and counts the step.
func (c *MockClock) Apply(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
	c.applied++
	return nil
}

// Applied reports how many times Apply was called.
func (c *MockClock) Applied() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.applied
}

// --- Package-level convenience functions ---

// Now returns the current system time.
func Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t.
func Since(t time.Time) time.Duration {
	return time.Since(t)
}

// Until returns the duration until t.
func Until(t time.Time) time.Duration {
	return time.Until(t)
}

// --- Utilities ---

// IsReasonableTime returns true if year >= MinReasonableYear.
func IsReasonableTime(t time.Time) bool {
	return t.Year() >= MinReasonableYear
}

// Step sets the clock behind s to ref+offset, where ref is the local time
// the offset was measured at. The time that was applied is returned.
func Step(s Sink, ref time.Time, offset time.Duration) (time.Time, error) {
	target := ref.Add(offset)
	if err := s.Apply(target); err != nil {
		return time.Time{}, err
	}
	return target, nil
}
