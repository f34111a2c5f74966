package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/darasa/core/progress"
)

const dateLayout = "2006-01-02"

type progressRepository struct {
	db *DB
}

var _ progress.Repository = (*progressRepository)(nil)

func NewProgressRepository(db *DB) progress.Repository {
	return &progressRepository{db: db}
}

func dayKey(userID string, date time.Time) progressKey {
	return progressKey{userID: userID, key: progress.Day(date).Format(dateLayout)}
}

func (repo *progressRepository) UpsertActivityProgress(_ context.Context, ap progress.ActivityProgress) (progress.ActivityProgress, error) {
	repo.db.progress.Lock()
	defer repo.db.progress.Unlock()
	repo.db.progress.activities[progressKey{userID: ap.UserID, key: ap.ActivityID}] = &ap
	return ap, nil
}

func (repo *progressRepository) QueryActivityProgress(_ context.Context, userID string, activityIDs ...string) ([]progress.ActivityProgress, error) {
	repo.db.progress.RLock()
	defer repo.db.progress.RUnlock()

	wanted := make(map[string]bool, len(activityIDs))
	for _, id := range activityIDs {
		wanted[id] = true
	}
	aps := make([]progress.ActivityProgress, 0)
	for k, ap := range repo.db.progress.activities {
		if k.userID == userID && (len(wanted) == 0 || wanted[k.key]) {
			aps = append(aps, *ap)
		}
	}
	sort.Slice(aps, func(i, j int) bool { return aps[i].CompletedAt.Before(aps[j].CompletedAt) })
	return aps, nil
}

func (repo *progressRepository) GetDailyProgress(_ context.Context, userID string, date time.Time) (progress.DailyProgress, error) {
	repo.db.progress.RLock()
	defer repo.db.progress.RUnlock()
	if dp, ok := repo.db.progress.daily[dayKey(userID, date)]; ok {
		return *dp, nil
	}
	return progress.DailyProgress{}, progress.ErrNotFound
}

func (repo *progressRepository) LastDailyProgress(_ context.Context, userID string, date time.Time) (progress.DailyProgress, error) {
	repo.db.progress.RLock()
	defer repo.db.progress.RUnlock()

	day := progress.Day(date)
	var last *progress.DailyProgress
	for k, dp := range repo.db.progress.daily {
		if k.userID != userID || dp.Date.After(day) {
			continue
		}
		if last == nil || dp.Date.After(last.Date) {
			last = dp
		}
	}
	if last == nil {
		return progress.DailyProgress{}, progress.ErrNotFound
	}
	return *last, nil
}

func (repo *progressRepository) QueryDailyProgress(_ context.Context, userID string, from, to time.Time) ([]progress.DailyProgress, error) {
	repo.db.progress.RLock()
	defer repo.db.progress.RUnlock()

	from, to = progress.Day(from), progress.Day(to)
	dps := make([]progress.DailyProgress, 0)
	for k, dp := range repo.db.progress.daily {
		if k.userID == userID && !dp.Date.Before(from) && !dp.Date.After(to) {
			dps = append(dps, *dp)
		}
	}
	sort.Slice(dps, func(i, j int) bool { return dps[i].Date.Before(dps[j].Date) })
	return dps, nil
}

func (repo *progressRepository) UpsertDailyProgress(_ context.Context, dp progress.DailyProgress) (progress.DailyProgress, error) {
	repo.db.progress.Lock()
	defer repo.db.progress.Unlock()
	dp.Date = progress.Day(dp.Date)
	repo.db.progress.daily[dayKey(dp.UserID, dp.Date)] = &dp
	return dp, nil
}
