package progress

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
)

var (
	ErrNotFound = core.NewNotFoundError("progress")

	NowFunc = time.Now // mockable
)

// ActivityFinder finds the activity being completed.
type ActivityFinder interface {
	GetActivity(ctx context.Context, orgID, id string) (course.Activity, error)
}

type Service interface {
	// CompleteActivity records the answers of a learner on an activity and updates today's energy.
	CompleteActivity(ctx context.Context, userID, activityID string, ca CompleteActivity) (DailyProgress, error)
	ActivityProgress(ctx context.Context, userID string, activityIDs ...string) ([]ActivityProgress, error)
	// EnergyHistory returns one point per day, see FillEnergyGaps.
	EnergyHistory(ctx context.Context, userID string, from, to time.Time) ([]EnergyPoint, error)
	CurrentEnergy(ctx context.Context, userID string, now time.Time) (float64, error)
}

type service struct {
	repo       Repository
	activities ActivityFinder
}

var _ Service = (*service)(nil)

func NewService(repo Repository, activities ActivityFinder) Service {
	return &service{repo: repo, activities: activities}
}

func (svc *service) CompleteActivity(ctx context.Context, userID, activityID string, ca CompleteActivity) (DailyProgress, error) {
	a, err := svc.activities.GetActivity(ctx, "", activityID)
	if err != nil {
		return DailyProgress{}, err
	}
	if !a.IsPublished {
		return DailyProgress{}, course.ErrActivityNotFound
	}

	now := NowFunc().UTC()
	if _, err = svc.repo.UpsertActivityProgress(ctx, ActivityProgress{
		UserID:      userID,
		ActivityID:  a.ID,
		Correct:     ca.Correct,
		Incorrect:   ca.Incorrect,
		TimeSpent:   ca.TimeSpent,
		CompletedAt: now,
	}); err != nil {
		return DailyProgress{}, errors.Wrap(err, "saving activity progress")
	}

	today := Day(now)
	dp, err := svc.repo.GetDailyProgress(ctx, userID, today)
	if err != nil {
		if !core.IsNotFound(err) {
			return DailyProgress{}, errors.Wrap(err, "getting daily progress")
		}
		energy, err := svc.CurrentEnergy(ctx, userID, now)
		if err != nil {
			return DailyProgress{}, err
		}
		dp = DailyProgress{UserID: userID, Date: today, Energy: energy}
	}
	dp.Correct += ca.Correct
	dp.Incorrect += ca.Incorrect
	dp.TimeSpent += ca.TimeSpent
	dp.Energy = ApplyAnswers(dp.Energy, ca.Correct, ca.Incorrect)

	dp, err = svc.repo.UpsertDailyProgress(ctx, dp)
	return dp, errors.Wrap(err, "saving daily progress")
}

func (svc *service) ActivityProgress(ctx context.Context, userID string, activityIDs ...string) ([]ActivityProgress, error) {
	return svc.repo.QueryActivityProgress(ctx, userID, activityIDs...)
}

func (svc *service) EnergyHistory(ctx context.Context, userID string, from, to time.Time) ([]EnergyPoint, error) {
	from, to = Day(from), Day(to)
	records, err := svc.repo.QueryDailyProgress(ctx, userID, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "querying daily progress")
	}

	// seed the carried energy with the last record before the range
	prev, err := svc.repo.LastDailyProgress(ctx, userID, from.AddDate(0, 0, -1))
	switch {
	case err == nil:
		records = append([]DailyProgress{prev}, records...)
	case !core.IsNotFound(err):
		return nil, errors.Wrap(err, "getting last daily progress")
	}
	return FillEnergyGaps(records, from, to), nil
}

func (svc *service) CurrentEnergy(ctx context.Context, userID string, now time.Time) (float64, error) {
	last, err := svc.repo.LastDailyProgress(ctx, userID, Day(now))
	if err != nil {
		if core.IsNotFound(err) {
			return MinEnergy, nil
		}
		return 0, errors.Wrap(err, "getting last daily progress")
	}
	return Decay(last.Energy, InactiveDays(last.Date, now)), nil
}
