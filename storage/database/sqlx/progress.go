package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/progress"
)

const (
	activityProgressColumns = `user_id, activity_id, correct, incorrect, time_spent, completed_at`
	dailyProgressColumns    = `user_id, date, correct, incorrect, time_spent, energy`
)

type progressRepository struct {
	db *sqlx.DB
}

var _ progress.Repository = (*progressRepository)(nil)

func NewProgressRepository(db *sqlx.DB) progress.Repository {
	return &progressRepository{db: db}
}

func utcDays(dps []progress.DailyProgress) {
	for i := range dps {
		dps[i].Date = progress.Day(dps[i].Date)
	}
}

func (repo *progressRepository) UpsertActivityProgress(ctx context.Context, ap progress.ActivityProgress) (progress.ActivityProgress, error) {
	ap.CompletedAt = ap.CompletedAt.UTC()
	q := `INSERT INTO activity_progress (` + activityProgressColumns + `)
		VALUES (:user_id, :activity_id, :correct, :incorrect, :time_spent, :completed_at)
		ON CONFLICT (user_id, activity_id) DO UPDATE SET correct = EXCLUDED.correct, incorrect = EXCLUDED.incorrect,
			time_spent = EXCLUDED.time_spent, completed_at = EXCLUDED.completed_at`
	if _, err := repo.db.NamedExecContext(ctx, q, ap); err != nil {
		return progress.ActivityProgress{}, errors.Wrap(err, "upserting activity progress")
	}
	return ap, nil
}

func (repo *progressRepository) QueryActivityProgress(ctx context.Context, userID string, activityIDs ...string) ([]progress.ActivityProgress, error) {
	q := `SELECT ` + activityProgressColumns + ` FROM activity_progress WHERE user_id::text = $1`
	args := []interface{}{userID}
	if len(activityIDs) > 0 {
		q += ` AND activity_id::text = ANY($2)`
		args = append(args, pq.Array(activityIDs))
	}
	q += ` ORDER BY completed_at`

	aps := make([]progress.ActivityProgress, 0)
	if err := repo.db.SelectContext(ctx, &aps, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying activity progress")
	}
	return aps, nil
}

func (repo *progressRepository) GetDailyProgress(ctx context.Context, userID string, date time.Time) (progress.DailyProgress, error) {
	var dp progress.DailyProgress
	q := `SELECT ` + dailyProgressColumns + ` FROM daily_progress WHERE user_id::text = $1 AND date = $2::date`
	if err := repo.db.GetContext(ctx, &dp, q, userID, progress.Day(date)); err != nil {
		return progress.DailyProgress{}, notFound(err, progress.ErrNotFound)
	}
	dp.Date = progress.Day(dp.Date)
	return dp, nil
}

func (repo *progressRepository) LastDailyProgress(ctx context.Context, userID string, date time.Time) (progress.DailyProgress, error) {
	var dp progress.DailyProgress
	q := `SELECT ` + dailyProgressColumns + ` FROM daily_progress WHERE user_id::text = $1 AND date <= $2::date
		ORDER BY date DESC LIMIT 1`
	if err := repo.db.GetContext(ctx, &dp, q, userID, progress.Day(date)); err != nil {
		return progress.DailyProgress{}, notFound(err, progress.ErrNotFound)
	}
	dp.Date = progress.Day(dp.Date)
	return dp, nil
}

func (repo *progressRepository) QueryDailyProgress(ctx context.Context, userID string, from, to time.Time) ([]progress.DailyProgress, error) {
	dps := make([]progress.DailyProgress, 0)
	q := `SELECT ` + dailyProgressColumns + ` FROM daily_progress
		WHERE user_id::text = $1 AND date BETWEEN $2::date AND $3::date ORDER BY date`
	if err := repo.db.SelectContext(ctx, &dps, q, userID, progress.Day(from), progress.Day(to)); err != nil {
		return nil, errors.Wrap(err, "querying daily progress")
	}
	utcDays(dps)
	return dps, nil
}

func (repo *progressRepository) UpsertDailyProgress(ctx context.Context, dp progress.DailyProgress) (progress.DailyProgress, error) {
	dp.Date = progress.Day(dp.Date)
	q := `INSERT INTO daily_progress (` + dailyProgressColumns + `)
		VALUES ($1, $2::date, $3, $4, $5, $6)
		ON CONFLICT (user_id, date) DO UPDATE SET correct = EXCLUDED.correct, incorrect = EXCLUDED.incorrect,
			time_spent = EXCLUDED.time_spent, energy = EXCLUDED.energy`
	_, err := repo.db.ExecContext(ctx, q, dp.UserID, dp.Date, dp.Correct, dp.Incorrect, dp.TimeSpent, dp.Energy)
	if err != nil {
		return progress.DailyProgress{}, errors.Wrap(err, "upserting daily progress")
	}
	return dp, nil
}
