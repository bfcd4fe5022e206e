package scheduler_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionkit/pkg/scheduler"
)

func TestEvery(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 1, 1, 14, 15, 0, 0, time.UTC)

	s := scheduler.Every(6 * time.Hour)
	assert.Equal(t, base.Add(6*time.Hour), s.Next(base))
	assert.Equal(t, "@every 6h0m0s", s.String())

	assert.Equal(t, base.Add(time.Second), scheduler.Every(0).Next(base), "raised to one second")
}

func TestHourlyAt(t *testing.T) {
	t.Parallel()

	s := scheduler.HourlyAt(30)
	assert.Equal(t,
		time.Date(2024, 1, 1, 14, 30, 0, 0, time.UTC),
		s.Next(time.Date(2024, 1, 1, 14, 15, 0, 0, time.UTC)))
	assert.Equal(t,
		time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC),
		s.Next(time.Date(2024, 1, 1, 14, 30, 0, 0, time.UTC)), "the current minute is already past")
	assert.Equal(t, "@hourly :30", s.String())
}

func TestDailyAt(t *testing.T) {
	t.Parallel()

	s := scheduler.DailyAt(3, 0)

	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{
			name: "later today",
			from: time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC),
			want: time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly at the time",
			from: time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC),
			want: time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC),
		},
		{
			name: "across month end",
			from: time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC),
			want: time.Date(2024, 2, 1, 3, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, s.Next(tt.from))
		})
	}

	assert.Equal(t, "@daily 03:00", s.String())
	assert.Equal(t, "@daily 23:59", scheduler.DailyAt(42, 99).String(), "clamped")
}

func TestParse(t *testing.T) {
	t.Parallel()

	valid := map[string]string{
		"@every 1h":     "@every 1h0m0s",
		"  @every 90s ": "@every 1m30s",
		"@hourly :05":   "@hourly :05",
		"@hourly 45":    "@hourly :45",
		"@daily 03:00":  "@daily 03:00",
		"@daily 23:30":  "@daily 23:30",
	}
	for in, want := range valid {
		s, err := scheduler.Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, s.String(), in)
	}

	invalid := []string{
		"",
		"daily",
		"@every",
		"@every 10ms",
		"@every soon",
		"@hourly :60",
		"@daily 25:00",
		"@daily 3",
		"@weekly mon",
	}
	for _, in := range invalid {
		_, err := scheduler.Parse(in)
		assert.ErrorIs(t, err, scheduler.ErrInvalidSchedule, in)
	}
}
