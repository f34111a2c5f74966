package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestApplyAnswers(t *testing.T) {
	tests := []struct {
		name      string
		energy    float64
		correct   int
		incorrect int
		want      float64
	}{
		{name: "no answers", energy: 10, want: 10},
		{name: "correct answers", energy: 10, correct: 5, want: 11},
		{name: "incorrect answers", energy: 10, incorrect: 10, want: 9},
		{name: "mixed", energy: 10, correct: 3, incorrect: 2, want: 10.4},
		{name: "capped at max", energy: 99.9, correct: 10, want: MaxEnergy},
		{name: "floored at min", energy: 0.3, incorrect: 10, want: MinEnergy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ApplyAnswers(tt.energy, tt.correct, tt.incorrect), 1e-9)
		})
	}
}

func TestDecay(t *testing.T) {
	assert.Equal(t, 10.0, Decay(10, 0))
	assert.Equal(t, 10.0, Decay(10, -2))
	assert.Equal(t, 7.0, Decay(10, 3))
	assert.Equal(t, 0.0, Decay(2.5, 3))
}

func TestDaysBetween(t *testing.T) {
	from := time.Date(2024, 2, 28, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, 0, DaysBetween(from, from.Add(-time.Hour)))
	assert.Equal(t, 1, DaysBetween(from, from.Add(2*time.Minute)))
	assert.Equal(t, 2, DaysBetween(from, date(2024, 3, 1)))
	assert.Equal(t, -1, DaysBetween(date(2024, 3, 1), from))
}

func TestInactiveDays(t *testing.T) {
	last := date(2024, 1, 31)
	assert.Equal(t, 0, InactiveDays(last, last.Add(20*time.Hour)), "same day")
	assert.Equal(t, 0, InactiveDays(last, date(2024, 2, 1)), "consecutive days")
	assert.Equal(t, 2, InactiveDays(last, date(2024, 2, 3).Add(time.Hour)))
	assert.Equal(t, 0, InactiveDays(last, date(2024, 1, 20)))
}

func TestFillEnergyGaps(t *testing.T) {
	records := []DailyProgress{
		{Date: date(2024, 1, 5), Energy: 4},
		{Date: date(2024, 1, 2), Energy: 10},
	}

	t.Run("no records", func(t *testing.T) {
		assert.Empty(t, FillEnergyGaps(nil, date(2024, 1, 1), date(2024, 1, 10)))
	})

	t.Run("starts at first record", func(t *testing.T) {
		points := FillEnergyGaps(records, date(2024, 1, 1), date(2024, 1, 7))
		require.Len(t, points, 6)

		want := []EnergyPoint{
			{Date: date(2024, 1, 2), Energy: 10, Active: true},
			{Date: date(2024, 1, 3), Energy: 10},
			{Date: date(2024, 1, 4), Energy: 9},
			{Date: date(2024, 1, 5), Energy: 4, Active: true},
			{Date: date(2024, 1, 6), Energy: 4},
			{Date: date(2024, 1, 7), Energy: 3},
		}
		assert.Equal(t, want, points)
	})

	t.Run("starts at from", func(t *testing.T) {
		points := FillEnergyGaps(records, date(2024, 1, 4), date(2024, 1, 5))
		assert.Equal(t, []EnergyPoint{
			{Date: date(2024, 1, 4), Energy: 9},
			{Date: date(2024, 1, 5), Energy: 4, Active: true},
		}, points)
	})

	t.Run("floored at zero", func(t *testing.T) {
		points := FillEnergyGaps(records, date(2024, 1, 5), date(2024, 1, 12))
		require.Len(t, points, 8)
		assert.Equal(t, 1.0, points[4].Energy) // 9th: 3 inactive days later
		assert.Equal(t, 0.0, points[5].Energy)
		assert.Equal(t, 0.0, points[7].Energy)
	})

	t.Run("from after to", func(t *testing.T) {
		assert.Empty(t, FillEnergyGaps(records, date(2024, 1, 9), date(2024, 1, 3)))
	})

	t.Run("every day present", func(t *testing.T) {
		points := FillEnergyGaps(records, date(2023, 12, 1), date(2024, 3, 1))
		require.NotEmpty(t, points)
		for i := 1; i < len(points); i++ {
			assert.Equal(t, 1, DaysBetween(points[i-1].Date, points[i].Date))
		}
		assert.Equal(t, date(2024, 3, 1), points[len(points)-1].Date)
	})
}

func TestHistoryFilter_Clean(t *testing.T) {
	now := date(2024, 5, 31)

	hf := HistoryFilter{}
	hf.Clean(now)
	assert.Equal(t, now, hf.To)
	assert.Equal(t, date(2024, 5, 2), hf.From)

	hf = HistoryFilter{From: now, To: date(2024, 5, 1)}
	hf.Clean(now)
	assert.Equal(t, date(2024, 5, 1), hf.From)
	assert.Equal(t, now, hf.To)
}
