package progress

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
)

type ActivityProgress struct {
	UserID      string    `json:"user_id" db:"user_id"`
	ActivityID  string    `json:"activity_id" db:"activity_id"`
	Correct     int       `json:"correct" db:"correct"`
	Incorrect   int       `json:"incorrect" db:"incorrect"`
	TimeSpent   int       `json:"time_spent" db:"time_spent"` // seconds
	CompletedAt time.Time `json:"completed_at" db:"completed_at"`
}

// DailyProgress aggregates the answers of a learner over a UTC calendar day.
// Energy is the energy at the end of that day.
type DailyProgress struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Date      time.Time `json:"date" db:"date"`
	Correct   int       `json:"correct" db:"correct"`
	Incorrect int       `json:"incorrect" db:"incorrect"`
	TimeSpent int       `json:"time_spent" db:"time_spent"`
	Energy    float64   `json:"energy" db:"energy"`
}

type CompleteActivity struct {
	Correct   int `json:"correct" validate:"min=0"`
	Incorrect int `json:"incorrect" validate:"min=0"`
	TimeSpent int `json:"time_spent" validate:"min=0"`
}

func (ca CompleteActivity) Validate(validate *validator.Validate) error { return validate.Struct(ca) }

type HistoryFilter struct {
	From time.Time `query:"from"`
	To   time.Time `query:"to"`
}

// Clean defaults the filter to the last 30 days and orders its bounds.
func (hf *HistoryFilter) Clean(now time.Time) {
	if hf.To.IsZero() {
		hf.To = now
	}
	if hf.From.IsZero() {
		hf.From = hf.To.AddDate(0, 0, -29)
	}
	if hf.From.After(hf.To) {
		hf.From, hf.To = hf.To, hf.From
	}
}

type Repository interface {
	UpsertActivityProgress(ctx context.Context, ap ActivityProgress) (ActivityProgress, error)
	QueryActivityProgress(ctx context.Context, userID string, activityIDs ...string) ([]ActivityProgress, error)

	GetDailyProgress(ctx context.Context, userID string, date time.Time) (DailyProgress, error)
	// LastDailyProgress returns the most recent record dated on or before `date`.
	LastDailyProgress(ctx context.Context, userID string, date time.Time) (DailyProgress, error)
	// QueryDailyProgress returns the records dated within [from, to], oldest first.
	QueryDailyProgress(ctx context.Context, userID string, from, to time.Time) ([]DailyProgress, error)
	UpsertDailyProgress(ctx context.Context, dp DailyProgress) (DailyProgress, error)
}
