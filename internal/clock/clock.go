// Package clock provides the notion of "now" used by freshness decisions.
// Production runs use RealClock; operators can pin the time through an
// environment variable to rehearse a refresh as of a given day; tests inject
// MockClock.
package clock

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rickb777/date"
)

// Clock provides an abstraction for time operations.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using actual system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// MockClock implements Clock and provides a controllable, thread-safe time for tests.
type MockClock struct {
	currentTime time.Time
	mu          sync.Mutex
}

// NewMockClock creates a new MockClock set to the specified time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{currentTime: t}
}

// Now returns the mock clock's current time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

// Set changes the mock clock's current time.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = t
}

// Advance moves the mock clock by d. Negative durations move it backward.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = m.currentTime.Add(d)
}

// EnvironmentClock reads the current time from an environment variable and
// falls back to system time when the variable is unset or unparsable.
// The variable is re-read on every call.
type EnvironmentClock struct {
	envVar   string
	location *time.Location
}

// NewEnvironmentClock creates a clock backed by envVar. Values without an
// explicit offset are interpreted in location.
func NewEnvironmentClock(envVar string, location *time.Location) *EnvironmentClock {
	return &EnvironmentClock{
		envVar:   envVar,
		location: location,
	}
}

// Now returns the pinned time if one is configured, else system time.
func (e *EnvironmentClock) Now() time.Time {
	t, err := e.syncFromEnvVar()
	if err == nil {
		return t
	}
	if os.Getenv(e.envVar) != "" {
		slog.Warn("EnvironmentClock: ignoring unparsable pinned time, falling back to system time",
			slog.String("envVar", e.envVar), slog.String("error", err.Error()))
	}
	return time.Now()
}

func (e *EnvironmentClock) syncFromEnvVar() (time.Time, error) {
	if e.envVar == "" {
		return time.Time{}, errors.New("environment variable name not configured")
	}
	timeStr := os.Getenv(e.envVar)
	if timeStr == "" {
		return time.Time{}, errors.New("environment variable is empty: " + e.envVar)
	}
	return e.parseTime(timeStr)
}

// parseTime accepts RFC3339, or a local date/date-time in the configured location.
func (e *EnvironmentClock) parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	if e.location == nil {
		return time.Time{}, errors.New("timezone not configured")
	}

	formats := []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, format := range formats {
		if t, err := time.ParseInLocation(format, s, e.location); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse time %q: expected RFC3339, YYYY-MM-DD HH:MM:SS, YYYY-MM-DDTHH:MM:SS or YYYY-MM-DD", s)
}

// Today returns the calendar date of c.Now() in loc.
func Today(c Clock, loc *time.Location) date.Date {
	if loc == nil {
		loc = time.Local
	}
	return date.NewAt(c.Now().In(loc))
}
