package echoapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/darasa/apps/api/echo"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/user"
	testutil "github.com/trezcool/darasa/tests"
)

func Test_publicApi(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	owner := f.createUser(t, "Owner", "owner@test.cd", user.RoleEditor)
	o := testutil.CreateOrg(t, f.orgRepo, "Kin", "kin", owner)
	c, ch, l := testutil.CreateCourse(t, f.courseRepo, o, "Lingala")
	act, err := f.courses.CreateActivity(ctx, l, course.NewActivity{
		Kind: course.ActivityExplanation, Title: "Mbote", Content: json.RawMessage(`{"body": "hello"}`),
	})
	require.NoError(t, err)
	published := true

	rec := f.do(t, http.MethodGet, "/v1/public/nope/courses", "", nil)
	checkErr(t, rec, http.StatusNotFound, "organization not found")
	rec = f.do(t, http.MethodGet, "/v1/public/kin/courses/"+c.ID, "", nil)
	checkErr(t, rec, http.StatusNotFound, "course not found")
	rec = f.do(t, http.MethodGet, "/v1/public/kin/chapters/"+ch.ID, "", nil)
	checkErr(t, rec, http.StatusNotFound, "chapter not found")

	rec = f.do(t, http.MethodGet, "/v1/public/kin/courses", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	// publishing invalidates the cached listing
	c, err = f.courses.UpdateCourse(ctx, c, course.UpdateCourse{IsPublished: &published})
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, "/v1/public/kin/courses", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var courses []course.Course
	decode(t, rec, &courses)
	require.Len(t, courses, 1)
	assert.Equal(t, c.ID, courses[0].ID)

	var pc echoapi.PublicCourse
	rec = f.do(t, http.MethodGet, "/v1/public/kin/courses/lingala", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &pc)
	assert.Equal(t, c.ID, pc.ID)
	assert.Empty(t, pc.Chapters, "drafts are hidden")

	ch, err = f.courses.UpdateChapter(ctx, ch, course.UpdateChapter{IsPublished: &published})
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, "/v1/public/kin/courses/lingala", "", nil)
	decode(t, rec, &pc)
	require.Len(t, pc.Chapters, 1)
	assert.Equal(t, ch.ID, pc.Chapters[0].ID)

	rec = f.do(t, http.MethodGet, "/v1/public/kin/lessons/"+l.ID, "", nil)
	checkErr(t, rec, http.StatusNotFound, "lesson not found")
	l, err = f.courses.UpdateLesson(ctx, l, course.UpdateLesson{IsPublished: &published})
	require.NoError(t, err)

	var pch echoapi.PublicChapter
	rec = f.do(t, http.MethodGet, "/v1/public/kin/chapters/"+ch.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &pch)
	require.Len(t, pch.Lessons, 1)
	assert.Equal(t, l.ID, pch.Lessons[0].ID)

	var pl echoapi.PublicLesson
	rec = f.do(t, http.MethodGet, "/v1/public/kin/lessons/"+l.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &pl)
	assert.Empty(t, pl.Activities)

	_, err = f.courses.UpdateActivity(ctx, act, course.UpdateActivity{IsPublished: &published})
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, "/v1/public/kin/lessons/"+l.ID, "", nil)
	decode(t, rec, &pl)
	require.Len(t, pl.Activities, 1)
	assert.Equal(t, act.ID, pl.Activities[0].ID)
	assert.JSONEq(t, `{"body": "hello"}`, string(pl.Activities[0].Content))

	t.Run("cached responses", func(t *testing.T) {
		// writes that skip the service are not seen until the cache is invalidated
		stale := c
		stale.Title = "Kikongo"
		_, err := f.courseRepo.UpdateCourse(ctx, stale)
		require.NoError(t, err)
		rec := f.do(t, http.MethodGet, "/v1/public/kin/courses/lingala", "", nil)
		decode(t, rec, &pc)
		assert.Equal(t, "Lingala", pc.Title)

		_, err = f.courses.UpdateCourse(ctx, stale, course.UpdateCourse{Title: "Swahili"})
		require.NoError(t, err)
		rec = f.do(t, http.MethodGet, "/v1/public/kin/courses/lingala", "", nil)
		decode(t, rec, &pc)
		assert.Equal(t, "Swahili", pc.Title)
	})

	t.Run("unpublished parents hide their content", func(t *testing.T) {
		unpublished := false
		_, err := f.courses.UpdateChapter(ctx, ch, course.UpdateChapter{IsPublished: &unpublished})
		require.NoError(t, err)
		rec := f.do(t, http.MethodGet, "/v1/public/kin/lessons/"+l.ID, "", nil)
		checkErr(t, rec, http.StatusNotFound, "lesson not found")
	})
}
