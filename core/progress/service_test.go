package progress_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/progress"
	inmemdb "github.com/trezcool/darasa/storage/database/inmem"
)

type activityFinder map[string]course.Activity

func (f activityFinder) GetActivity(_ context.Context, _, id string) (course.Activity, error) {
	if a, ok := f[id]; ok {
		return a, nil
	}
	return course.Activity{}, course.ErrActivityNotFound
}

func day(d int) time.Time {
	return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC)
}

func setup(t *testing.T) (progress.Service, progress.Repository) {
	t.Cleanup(func() { progress.NowFunc = time.Now })
	repo := inmemdb.NewProgressRepository(inmemdb.Open())
	finder := activityFinder{
		"quiz":  {ID: "quiz", IsPublished: true},
		"draft": {ID: "draft"},
	}
	return progress.NewService(repo, finder), repo
}

func TestService_CompleteActivity(t *testing.T) {
	ctx := context.Background()
	svc, repo := setup(t)

	_, err := svc.CompleteActivity(ctx, "u1", "draft", progress.CompleteActivity{Correct: 1})
	assert.True(t, core.IsNotFound(err), "unpublished activities cannot be completed")
	_, err = svc.CompleteActivity(ctx, "u1", "nope", progress.CompleteActivity{Correct: 1})
	assert.True(t, core.IsNotFound(err))

	progress.NowFunc = func() time.Time { return day(10).Add(9 * time.Hour) }
	dp, err := svc.CompleteActivity(ctx, "u1", "quiz", progress.CompleteActivity{Correct: 10, Incorrect: 2, TimeSpent: 60})
	require.NoError(t, err)
	assert.Equal(t, day(10), dp.Date)
	assert.Equal(t, 1.8, dp.Energy)

	// same day: answers add up
	progress.NowFunc = func() time.Time { return day(10).Add(18 * time.Hour) }
	dp, err = svc.CompleteActivity(ctx, "u1", "quiz", progress.CompleteActivity{Correct: 5, TimeSpent: 30})
	require.NoError(t, err)
	assert.Equal(t, 15, dp.Correct)
	assert.Equal(t, 2, dp.Incorrect)
	assert.Equal(t, 90, dp.TimeSpent)
	assert.Equal(t, 2.8, dp.Energy)

	aps, err := svc.ActivityProgress(ctx, "u1", "quiz")
	require.NoError(t, err)
	require.Len(t, aps, 1)
	assert.Equal(t, 5, aps[0].Correct, "the latest attempt wins")

	// a new day starts from the energy decayed by the inactive days in between
	_, err = repo.UpsertDailyProgress(ctx, progress.DailyProgress{UserID: "u2", Date: day(1), Energy: 10})
	require.NoError(t, err)
	progress.NowFunc = func() time.Time { return day(4).Add(time.Hour) }
	dp, err = svc.CompleteActivity(ctx, "u2", "quiz", progress.CompleteActivity{Correct: 1})
	require.NoError(t, err)
	assert.Equal(t, 8.2, dp.Energy)

	// active on consecutive days: nothing decays
	_, err = repo.UpsertDailyProgress(ctx, progress.DailyProgress{UserID: "u3", Date: day(1), Energy: 10})
	require.NoError(t, err)
	progress.NowFunc = func() time.Time { return day(2).Add(23 * time.Hour) }
	dp, err = svc.CompleteActivity(ctx, "u3", "quiz", progress.CompleteActivity{Correct: 1})
	require.NoError(t, err)
	assert.Equal(t, 10.2, dp.Energy)
	progress.NowFunc = func() time.Time { return day(3).Add(time.Hour) }
	dp, err = svc.CompleteActivity(ctx, "u3", "quiz", progress.CompleteActivity{Correct: 1})
	require.NoError(t, err)
	assert.Equal(t, 10.4, dp.Energy)
}

func TestService_CurrentEnergy(t *testing.T) {
	ctx := context.Background()
	svc, repo := setup(t)

	e, err := svc.CurrentEnergy(ctx, "u1", day(10))
	require.NoError(t, err)
	assert.Equal(t, progress.MinEnergy, e)

	_, err = repo.UpsertDailyProgress(ctx, progress.DailyProgress{UserID: "u1", Date: day(5), Energy: 3})
	require.NoError(t, err)

	e, err = svc.CurrentEnergy(ctx, "u1", day(5).Add(20*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3.0, e)
	e, err = svc.CurrentEnergy(ctx, "u1", day(6).Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3.0, e, "the day after an active day is not over yet")
	e, err = svc.CurrentEnergy(ctx, "u1", day(7))
	require.NoError(t, err)
	assert.Equal(t, 2.0, e)
	e, err = svc.CurrentEnergy(ctx, "u1", day(20))
	require.NoError(t, err)
	assert.Equal(t, 0.0, e)
}

func TestService_EnergyHistory(t *testing.T) {
	ctx := context.Background()
	svc, repo := setup(t)

	for _, dp := range []progress.DailyProgress{
		{UserID: "u1", Date: day(1), Energy: 20},
		{UserID: "u1", Date: day(4), Energy: 5},
		{UserID: "u1", Date: day(6), Energy: 8},
		{UserID: "u2", Date: day(5), Energy: 50},
	} {
		_, err := repo.UpsertDailyProgress(ctx, dp)
		require.NoError(t, err)
	}

	points, err := svc.EnergyHistory(ctx, "u1", day(3), day(7))
	require.NoError(t, err)
	require.Len(t, points, 5)

	want := []progress.EnergyPoint{
		{Date: day(3), Energy: 19},
		{Date: day(4), Energy: 5, Active: true},
		{Date: day(5), Energy: 5},
		{Date: day(6), Energy: 8, Active: true},
		{Date: day(7), Energy: 8},
	}
	assert.Equal(t, want, points)

	points, err = svc.EnergyHistory(ctx, "u3", day(1), day(7))
	require.NoError(t, err)
	assert.Empty(t, points, "no history before the first record")
}
