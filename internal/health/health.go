// Package health reports whether the SNTP server is fit to answer
// clients. Reports are served as JSON next to the metrics endpoint.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/GlowingScrewdriver/go-sntp/internal/clock"
	"github.com/GlowingScrewdriver/go-sntp/internal/services"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a single health check.
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration_ms"`
}

// Report represents the overall health report.
type Report struct {
	Status    Status           `json:"status"`
	Checks    map[string]Check `json:"checks"`
	Timestamp time.Time        `json:"timestamp"`
}

// CheckFunc is a function that performs a health check.
type CheckFunc func(ctx context.Context) Check

// Checker runs registered checks and caches the report for a short TTL.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
	cache  *Report
	ttl    time.Duration
	clock  clock.Clock
}

// NewChecker creates a checker with no checks registered.
func NewChecker(c clock.Clock) *Checker {
	if c == nil {
		c = &clock.RealClock{}
	}
	return &Checker{
		checks: make(map[string]CheckFunc),
		ttl:    5 * time.Second,
		clock:  c,
	}
}

// Register adds a health check.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
	c.cache = nil
}

// Check runs all health checks and returns a report.
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.RLock()
	if c.cache != nil && c.clock.Since(c.cache.Timestamp) < c.ttl {
		report := *c.cache
		c.mu.RUnlock()
		return report
	}
	checkFuncs := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checkFuncs[name] = fn
	}
	c.mu.RUnlock()

	checks := make(map[string]Check)
	overallStatus := StatusHealthy

	var wg sync.WaitGroup
	var mu sync.Mutex
	for name, fn := range checkFuncs {
		wg.Add(1)
		go func(name string, fn CheckFunc) {
			defer wg.Done()
			check := fn(ctx)
			check.Name = name

			mu.Lock()
			checks[name] = check
			if check.Status == StatusUnhealthy {
				overallStatus = StatusUnhealthy
			} else if check.Status == StatusDegraded && overallStatus != StatusUnhealthy {
				overallStatus = StatusDegraded
			}
			mu.Unlock()
		}(name, fn)
	}
	wg.Wait()

	report := Report{
		Status:    overallStatus,
		Checks:    checks,
		Timestamp: c.clock.Now(),
	}

	c.mu.Lock()
	c.cache = &report
	c.mu.Unlock()

	return report
}

// Handler returns an HTTP handler for health checks.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		report := c.Check(ctx)

		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK) // degraded still answers clients
		}
		json.NewEncoder(w).Encode(report)
	}
}

// LivenessHandler returns a simple liveness probe handler.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

// ServiceCheck reports unhealthy when svc is not running.
func ServiceCheck(svc services.Service) CheckFunc {
	return func(ctx context.Context) Check {
		st := svc.Status()
		check := Check{LastChecked: time.Now(), Status: StatusHealthy, Message: "running"}
		switch {
		case st.Error != "":
			check.Status = StatusUnhealthy
			check.Message = st.Error
		case !st.Running:
			check.Status = StatusUnhealthy
			check.Message = "not running"
		}
		return check
	}
}

// ClockCheck reports degraded when the local clock is before
// clock.MinReasonableYear; the server then advertises an alarm leap
// indicator.
func ClockCheck(c clock.Clock) CheckFunc {
	return func(ctx context.Context) Check {
		now := c.Now()
		check := Check{LastChecked: now, Status: StatusHealthy, Message: now.UTC().Format(time.RFC3339)}
		if !clock.IsReasonableTime(now) {
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("clock reads %s, before %d", now.UTC().Format(time.RFC3339), clock.MinReasonableYear)
		}
		return check
	}
}
