package progress

import (
	"math"
	"sort"
	"time"
)

// Energy model
const (
	MaxEnergy     = 100.0
	MinEnergy     = 0.0
	CorrectGain   = 0.2
	IncorrectLoss = 0.1
	DailyDecay    = 1.0 // per fully inactive day
)

// EnergyPoint is the energy of a learner on a calendar day.
type EnergyPoint struct {
	Date   time.Time `json:"date"`
	Energy float64   `json:"energy"`
	Active bool      `json:"active"` // a DailyProgress was recorded that day
}

func clampEnergy(e float64) float64 {
	return math.Max(MinEnergy, math.Min(MaxEnergy, e))
}

// roundEnergy avoids float noise piling up (0.1 + 0.2 ...) across days.
func roundEnergy(e float64) float64 {
	return math.Round(e*100) / 100
}

// ApplyAnswers returns the energy after `correct` and `incorrect` answers.
func ApplyAnswers(energy float64, correct, incorrect int) float64 {
	return roundEnergy(clampEnergy(energy + CorrectGain*float64(correct) - IncorrectLoss*float64(incorrect)))
}

// Decay returns the energy left after `days` inactive days, floored at MinEnergy.
func Decay(energy float64, days int) float64 {
	if days <= 0 {
		return energy
	}
	return roundEnergy(clampEnergy(energy - DailyDecay*float64(days)))
}

// Day truncates t to the start of its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween is the number of calendar days from `from` to `to` (negative if to is before from).
func DaysBetween(from, to time.Time) int {
	return int(Day(to).Sub(Day(from)).Hours() / 24)
}

// InactiveDays is the number of fully inactive days strictly between the last active day and `day`.
func InactiveDays(lastActive, day time.Time) int {
	if n := DaysBetween(lastActive, day) - 1; n > 0 {
		return n
	}
	return 0
}

// FillEnergyGaps returns one EnergyPoint per calendar day from max(from, first record) to `to`, both included.
// Days with a record carry its energy; the other days carry the last recorded energy decayed
// by the inactive days in between. Records before `from` only seed the carried energy.
func FillEnergyGaps(records []DailyProgress, from, to time.Time) []EnergyPoint {
	if len(records) == 0 {
		return []EnergyPoint{}
	}
	recs := make([]DailyProgress, len(records))
	copy(recs, records)
	sort.Slice(recs, func(i, j int) bool { return recs[i].Date.Before(recs[j].Date) })

	start, end := Day(from), Day(to)
	if first := Day(recs[0].Date); first.After(start) {
		start = first
	}
	if start.After(end) {
		return []EnergyPoint{}
	}

	points := make([]EnergyPoint, 0, DaysBetween(start, end)+1)
	var (
		idx      int
		last     *DailyProgress
		lastDate time.Time
	)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		active := false
		for idx < len(recs) && !Day(recs[idx].Date).After(d) {
			last = &recs[idx]
			lastDate = Day(recs[idx].Date)
			active = lastDate.Equal(d)
			idx++
		}
		p := EnergyPoint{Date: d, Active: active}
		if last != nil {
			p.Energy = Decay(last.Energy, InactiveDays(lastDate, d))
		}
		points = append(points, p)
	}
	return points
}
