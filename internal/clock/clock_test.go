package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/rickb777/date"
	"github.com/stretchr/testify/assert"
)

func TestRealClock_Now(t *testing.T) {
	c := RealClock{}
	before := time.Now()
	result := c.Now()
	after := time.Now()

	assert.False(t, result.Before(before), "RealClock.Now() should not be before the call")
	assert.False(t, result.After(after), "RealClock.Now() should not be after the call")
}

func TestMockClock_SetAndAdvance(t *testing.T) {
	initialTime := time.Date(2025, 12, 30, 8, 0, 0, 0, time.UTC)
	c := NewMockClock(initialTime)
	assert.Equal(t, initialTime, c.Now())

	c.Advance(26 * time.Hour)
	assert.Equal(t, time.Date(2025, 12, 31, 10, 0, 0, 0, time.UTC), c.Now())

	c.Advance(-2 * time.Hour)
	assert.Equal(t, time.Date(2025, 12, 31, 8, 0, 0, 0, time.UTC), c.Now())

	newTime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Set(newTime)
	assert.Equal(t, newTime, c.Now())
}

func TestEnvironmentClock_FallbackToSystemTime(t *testing.T) {
	c := NewEnvironmentClock("", time.Local)

	before := time.Now()
	result := c.Now()
	after := time.Now()

	assert.False(t, result.Before(before))
	assert.False(t, result.After(after))
}

func TestEnvironmentClock_ParseTimeFormats(t *testing.T) {
	const envVarName = "TEST_BUSLADER_CLOCK"
	loc := time.FixedZone("JST", 9*3600)

	tests := []struct {
		name     string
		input    string
		expected time.Time
	}{
		{
			name:     "RFC3339",
			input:    "2025-12-31T10:30:00Z",
			expected: time.Date(2025, 12, 31, 10, 30, 0, 0, time.UTC),
		},
		{
			name:     "DateTime with space",
			input:    "2025-12-31 10:30:00",
			expected: time.Date(2025, 12, 31, 10, 30, 0, 0, loc),
		},
		{
			name:     "DateTime with T",
			input:    "2025-12-31T10:30:00",
			expected: time.Date(2025, 12, 31, 10, 30, 0, 0, loc),
		},
		{
			name:     "Date only with whitespace",
			input:    " 2025-12-31\n",
			expected: time.Date(2025, 12, 31, 0, 0, 0, 0, loc),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(envVarName, tt.input)

			result := NewEnvironmentClock(envVarName, loc).Now()

			assert.True(t, tt.expected.Equal(result), "expected %v, got %v", tt.expected, result)
		})
	}
}

func TestEnvironmentClock_InvalidValuesFallBack(t *testing.T) {
	const envVarName = "TEST_BUSLADER_CLOCK_INVALID"

	for _, input := range []string{"not-a-valid-time", "2025-", "2025-01-010", "20251231"} {
		t.Run(input, func(t *testing.T) {
			t.Setenv(envVarName, input)
			c := NewEnvironmentClock(envVarName, time.Local)

			before := time.Now()
			result := c.Now()
			after := time.Now()

			assert.False(t, result.Before(before))
			assert.False(t, result.After(after))
		})
	}
}

func TestEnvironmentClock_NilLocationOnlyAcceptsRFC3339(t *testing.T) {
	const envVarName = "TEST_BUSLADER_CLOCK_NIL_LOC"

	t.Setenv(envVarName, "2025-12-31T10:30:00Z")
	assert.Equal(t, time.Date(2025, 12, 31, 10, 30, 0, 0, time.UTC), NewEnvironmentClock(envVarName, nil).Now())

	t.Setenv(envVarName, "2025-12-31 10:30:00")
	before := time.Now()
	result := NewEnvironmentClock(envVarName, nil).Now()
	assert.False(t, result.Before(before), "should fall back to system time")
}

func TestToday(t *testing.T) {
	// 2025-12-31 20:00 UTC is already 2026-01-01 in Tokyo
	c := NewMockClock(time.Date(2025, 12, 31, 20, 0, 0, 0, time.UTC))

	assert.Equal(t, date.New(2025, time.December, 31), Today(c, time.UTC))
	assert.Equal(t, date.New(2026, time.January, 1), Today(c, time.FixedZone("JST", 9*3600)))
}

func TestMockClock_ConcurrentAccess(t *testing.T) {
	initialTime := time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)
	c := NewMockClock(initialTime)

	const goroutines = 50

	var wg sync.WaitGroup
	wg.Add(goroutines * 2)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_ = c.Now()
		}()
		go func() {
			defer wg.Done()
			c.Advance(time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, initialTime.Add(goroutines*time.Millisecond), c.Now())
}
