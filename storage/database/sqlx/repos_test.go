package sqlxrepos

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/org"
	"github.com/trezcool/darasa/core/progress"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/core/workflow"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return sqlx.NewDb(db, "postgres"), mock
}

var runCols = []string{
	"id", "kind", "entity_id", "org_id", "user_id", "status", "current_step", "completed_steps", "error",
	"created_at", "updated_at", "finished_at", "version", "outputs",
}

func TestWorkflowRepository_CreateRun(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	repo := NewWorkflowRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO workflow_run").WillReturnResult(sqlmock.NewResult(0, 1))
	r, err := repo.CreateRun(ctx, workflow.Run{ID: "r1", Kind: "k", Status: workflow.StatusPending, CreatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, []string{}, r.CompletedSteps)
	assert.NotNil(t, r.Outputs)

	mock.ExpectExec("INSERT INTO workflow_run").
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: activeRunKey})
	_, err = repo.CreateRun(ctx, workflow.Run{ID: "r2", Kind: "k"})
	assert.Equal(t, core.ErrConflict, err)
}

func TestWorkflowRepository_GetRun(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	repo := NewWorkflowRepository(db)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM workflow_run WHERE id::text = $1")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows(runCols).AddRow(
			"r1", "lesson_plan", "l1", "o1", nil, workflow.StatusRunning, "plan", []byte("{load,start}"), "",
			now, now, nil, 2, `{"load":{"title":"Greetings"}}`,
		))
	r, err := repo.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "lesson_plan", r.Kind)
	assert.Equal(t, "", r.UserID)
	assert.Equal(t, []string{"load", "start"}, r.CompletedSteps)
	assert.JSONEq(t, `{"title":"Greetings"}`, string(r.Outputs["load"]))
	assert.False(t, r.FinishedAt.Valid)
	assert.Equal(t, 2, r.Version)

	mock.ExpectQuery("FROM workflow_run").WithArgs("nope").WillReturnRows(sqlmock.NewRows(runCols))
	_, err = repo.GetRun(ctx, "nope")
	assert.Equal(t, workflow.ErrNotFound, err)
}

func TestWorkflowRepository_QueryRuns(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	repo := NewWorkflowRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE org_id::text = $1 AND status = $2 ORDER BY created_at DESC LIMIT 5")).
		WithArgs("o1", workflow.StatusFailed).
		WillReturnRows(sqlmock.NewRows(runCols))
	runs, err := repo.QueryRuns(ctx, workflow.RunFilter{OrgID: "o1", Status: workflow.StatusFailed, Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestWorkflowRepository_UpdateRun(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	repo := NewWorkflowRepository(db)

	exists := regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM workflow_run WHERE id = $1)")

	mock.ExpectExec("UPDATE workflow_run SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(exists).WithArgs("r1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	_, err := repo.UpdateRun(ctx, workflow.Run{ID: "r1"})
	assert.Equal(t, workflow.ErrNotFound, err)

	// updated since it was read
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $9 AND version = $10")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(exists).WithArgs("r1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	_, err = repo.UpdateRun(ctx, workflow.Run{ID: "r1", Version: 3})
	assert.Equal(t, core.ErrConflict, err)

	mock.ExpectExec("UPDATE workflow_run SET").WillReturnResult(sqlmock.NewResult(0, 1))
	r, err := repo.UpdateRun(ctx, workflow.Run{
		ID:      "r1",
		Status:  workflow.StatusCompleted,
		Outputs: map[string]json.RawMessage{"a": json.RawMessage(`1`)},
		Version: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`1`), r.Outputs["a"])
	assert.Equal(t, 4, r.Version)
}

func TestWorkflowRepository_QueryStaleRuns(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	repo := NewWorkflowRepository(db)
	before := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status IN ($1, $2) AND updated_at < $3")).
		WithArgs(workflow.StatusPending, workflow.StatusRunning, before).
		WillReturnRows(sqlmock.NewRows(runCols).AddRow(
			"r1", "k", "e1", "o1", "u1", workflow.StatusRunning, "", []byte("{}"), "",
			before, before, nil, 0, `{}`,
		))
	runs, err := repo.QueryStaleRuns(ctx, before)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "u1", runs[0].UserID)
	assert.Empty(t, runs[0].CompletedSteps)
}

var dailyCols = []string{"user_id", "date", "correct", "incorrect", "time_spent", "energy"}

func TestProgressRepository_DailyProgress(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	repo := NewProgressRepository(db)
	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO daily_progress").
		WithArgs("u1", day, 3, 1, 40, 2.5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dp, err := repo.UpsertDailyProgress(ctx, progress.DailyProgress{
		UserID: "u1", Date: day.Add(15 * time.Hour), Correct: 3, Incorrect: 1, TimeSpent: 40, Energy: 2.5,
	})
	require.NoError(t, err)
	assert.Equal(t, day, dp.Date)

	mock.ExpectQuery("FROM daily_progress WHERE").WithArgs("u1", day).WillReturnRows(sqlmock.NewRows(dailyCols))
	_, err = repo.GetDailyProgress(ctx, "u1", day.Add(time.Hour))
	assert.Equal(t, progress.ErrNotFound, err)

	mock.ExpectQuery(regexp.QuoteMeta("date <= $2::date")).
		WithArgs("u1", day).
		WillReturnRows(sqlmock.NewRows(dailyCols).AddRow("u1", day.AddDate(0, 0, -2), 1, 0, 10, 4.0))
	dp, err = repo.LastDailyProgress(ctx, "u1", day)
	require.NoError(t, err)
	assert.Equal(t, day.AddDate(0, 0, -2), dp.Date)
	assert.Equal(t, 4.0, dp.Energy)
}

func TestProgressRepository_QueryActivityProgress(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	repo := NewProgressRepository(db)
	cols := []string{"user_id", "activity_id", "correct", "incorrect", "time_spent", "completed_at"}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id::text = $1 ORDER BY completed_at")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(cols))
	aps, err := repo.QueryActivityProgress(ctx, "u1")
	require.NoError(t, err)
	assert.NotNil(t, aps)
	assert.Empty(t, aps)

	mock.ExpectQuery(regexp.QuoteMeta("AND activity_id::text = ANY($2)")).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u1", "a1", 2, 1, 30, time.Now()))
	aps, err = repo.QueryActivityProgress(ctx, "u1", "a1")
	require.NoError(t, err)
	require.Len(t, aps, 1)
	assert.Equal(t, 2, aps[0].Correct)
}

func TestUserRepository_CheckUsernameUniqueness(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	cols := []string{"username", "email"}

	mock.ExpectQuery(`SELECT username, email FROM "user"`).WillReturnRows(sqlmock.NewRows(cols))
	assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "joe", "joe@example.com"))

	mock.ExpectQuery(`SELECT username, email FROM "user"`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("joe", "other@example.com"))
	assert.Equal(t, user.ErrUsernameExists, repo.CheckUsernameUniqueness(ctx, "joe", "joe@example.com"))

	mock.ExpectQuery(`SELECT username, email FROM "user"`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(nil, "joe@example.com"))
	assert.Equal(t, user.ErrEmailExists, repo.CheckUsernameUniqueness(ctx, "jo", "joe@example.com"))
}

func TestUserRepository_Writes(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectExec(`INSERT INTO "user"`).WillReturnError(&pq.Error{Code: uniqueViolation})
	_, err := repo.CreateUser(ctx, user.User{ID: "u1", Username: "joe"})
	assert.Equal(t, user.ErrUserExists, err)

	mock.ExpectExec(`UPDATE "user" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	_, err = repo.UpdateUser(ctx, user.User{ID: "u1"})
	assert.Equal(t, user.ErrNotFound, err)

	n, err := repo.DeleteUsersByID(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "user" WHERE id::text = ANY($1)`)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	n, err = repo.DeleteUsersByID(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUserRepository_QueryUsers(t *testing.T) {
	active := true
	where, args := userWhere(&user.QueryFilter{Search: "jo", Roles: []string{"admin"}, IsActive: &active})
	assert.Equal(t,
		` WHERE (name ILIKE $1 OR username ILIKE $1 OR email ILIKE $1)`+
			` AND EXISTS (SELECT 1 FROM unnest(roles) AS r WHERE r LIKE ANY($2)) AND is_active = $3`,
		where,
	)
	require.Len(t, args, 3)
	assert.Equal(t, "%jo%", args[0])

	where, args = userWhere(nil)
	assert.Empty(t, where)
	assert.Nil(t, args)
}

func TestOrgRepository_CreateOrganization(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	repo := NewOrgRepository(db)
	o := org.Organization{ID: "o1", Name: "Acme", Slug: "acme"}
	owner := org.Member{UserID: "u1", Role: org.RoleOwner}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO organization ").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO organization_member").
		WithArgs("o1", "u1", org.RoleOwner, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	_, err := repo.CreateOrganization(ctx, o, owner)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO organization ").
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: orgSlugKey})
	mock.ExpectRollback()
	_, err = repo.CreateOrganization(ctx, o, owner)
	assert.Equal(t, org.ErrSlugExists, err)
}

func TestCourseRepository_ReplaceLessons(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	repo := NewCourseRepository(db)
	exists := regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM chapter WHERE id::text = $1)`)

	mock.ExpectBegin()
	mock.ExpectQuery(exists).WithArgs("ch1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()
	_, err := repo.ReplaceLessons(ctx, "ch1", nil)
	assert.Equal(t, course.ErrChapterNotFound, err)

	lessons := []course.Lesson{{ID: "l1", ChapterID: "ch1", Title: "One"}, {ID: "l2", ChapterID: "ch1", Title: "Two", Position: 1}}
	mock.ExpectBegin()
	mock.ExpectQuery(exists).WithArgs("ch1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("DELETE FROM lesson").WithArgs("ch1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO lesson").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO lesson").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	got, err := repo.ReplaceLessons(ctx, "ch1", lessons)
	require.NoError(t, err)
	assert.Equal(t, lessons, got)
}

func TestCourseRepository_Activities(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	repo := NewCourseRepository(db)

	mock.ExpectExec("INSERT INTO activity").WillReturnError(&pq.Error{Code: foreignKeyViolation})
	_, err := repo.CreateActivity(ctx, course.Activity{ID: "a1", LessonID: "nope"})
	assert.Equal(t, course.ErrLessonNotFound, err)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE activity SET generation_status = $1 WHERE id::text = $2")).
		WithArgs(course.StatusRunning, "a1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.(*courseRepository).setStatus(ctx, "activity", "a1", course.StatusRunning, course.ErrActivityNotFound)
	assert.Equal(t, course.ErrActivityNotFound, err)

	row := toActivityRow(course.Activity{ID: "a1"})
	assert.Equal(t, "null", row.Content, "empty content is stored as JSON null")
}
