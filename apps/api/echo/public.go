package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/org"
)

const publicCachePrefix = "public:"

type (
	PublicCourse struct {
		course.Course
		Chapters []course.Chapter `json:"chapters"`
	}

	PublicChapter struct {
		course.Chapter
		Lessons []course.Lesson `json:"lessons"`
	}

	PublicLesson struct {
		course.Lesson
		Activities []course.Activity `json:"activities"`
	}
)

// publicApi serves the published content of organizations to anyone.
// Responses are cached & tagged with every resource they embed, so that content writes invalidate them.
type publicApi struct {
	orgs    org.Service
	courses course.Service
	cache   core.Cache
	ttl     time.Duration
	logger  core.Logger
}

func registerPublicAPI(g *echo.Group, deps *Deps) {
	cache := deps.Cache
	if cache == nil {
		cache = core.NopCache{}
	}
	api := publicApi{
		orgs:    deps.OrgSvc,
		courses: deps.CourseSvc,
		cache:   cache,
		ttl:     deps.Conf.CacheTTL,
		logger:  deps.Logger,
	}

	pg := g.Group("/public/:org")
	pg.GET("/courses", api.serve(api.listCourses))
	pg.GET("/courses/:course", api.serve(api.retrieveCourse))
	pg.GET("/chapters/:id", api.serve(api.retrieveChapter))
	pg.GET("/lessons/:id", api.serve(api.retrieveLesson))
}

// publicLoader loads a response & the cache tags of the resources it embeds.
type publicLoader func(ctx echo.Context, o org.Organization) (interface{}, []string, error)

func (api *publicApi) serve(load publicLoader) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		rctx := ctx.Request().Context()
		key := publicCachePrefix + ctx.Request().URL.Path

		var cached json.RawMessage
		if found, err := api.cache.Get(rctx, key, &cached); err != nil {
			api.logger.Warn("public: reading cache", err)
		} else if found {
			return ctx.JSONBlob(http.StatusOK, cached)
		}

		o, err := api.orgs.Get(rctx, orgFilter(ctx.Param("org")))
		if err != nil {
			return errors.Wrap(err, "finding organization")
		}
		val, tags, err := load(ctx, o)
		if err != nil {
			return err
		}

		tags = append(tags, core.CacheTag("org", o.ID))
		if err = api.cache.Set(rctx, key, val, api.ttl, tags...); err != nil {
			api.logger.Warn("public: writing cache", err)
		}
		return ctx.JSON(http.StatusOK, val)
	}
}

func (api *publicApi) publishedCourse(ctx context.Context, orgID, idOrSlug string) (course.Course, error) {
	c, err := api.courses.GetCourse(ctx, orgID, idOrSlug)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "finding course")
	}
	if !c.IsPublished {
		return course.Course{}, course.ErrCourseNotFound
	}
	return c, nil
}

func (api *publicApi) publishedChapter(ctx context.Context, orgID, id string) (course.Chapter, error) {
	ch, err := api.courses.GetChapter(ctx, orgID, id)
	if err != nil {
		return course.Chapter{}, errors.Wrap(err, "finding chapter")
	}
	if !ch.IsPublished {
		return course.Chapter{}, course.ErrChapterNotFound
	}
	if _, err = api.publishedCourse(ctx, orgID, ch.CourseID); err != nil {
		return course.Chapter{}, course.ErrChapterNotFound
	}
	return ch, nil
}

func (api *publicApi) listCourses(ctx echo.Context, o org.Organization) (interface{}, []string, error) {
	courses, err := api.courses.ListCourses(ctx.Request().Context(), o.ID, true)
	if err != nil {
		return nil, nil, errors.Wrap(err, "listing courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	tags := make([]string, 0, len(courses))
	for _, c := range courses {
		tags = append(tags, core.CacheTag("course", c.ID))
	}
	return courses, tags, nil
}

func (api *publicApi) retrieveCourse(ctx echo.Context, o org.Organization) (interface{}, []string, error) {
	rctx := ctx.Request().Context()
	c, err := api.publishedCourse(rctx, o.ID, ctx.Param("course"))
	if err != nil {
		return nil, nil, err
	}
	chapters, err := api.courses.ListChapters(rctx, c.ID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "listing chapters")
	}

	pc := PublicCourse{Course: c, Chapters: []course.Chapter{}}
	tags := []string{core.CacheTag("course", c.ID)}
	for _, ch := range chapters {
		if ch.IsPublished {
			pc.Chapters = append(pc.Chapters, ch)
			tags = append(tags, core.CacheTag("chapter", ch.ID))
		}
	}
	return pc, tags, nil
}

func (api *publicApi) retrieveChapter(ctx echo.Context, o org.Organization) (interface{}, []string, error) {
	rctx := ctx.Request().Context()
	ch, err := api.publishedChapter(rctx, o.ID, ctx.Param("id"))
	if err != nil {
		return nil, nil, err
	}
	lessons, err := api.courses.ListLessons(rctx, ch.ID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "listing lessons")
	}

	pc := PublicChapter{Chapter: ch, Lessons: []course.Lesson{}}
	tags := []string{core.CacheTag("chapter", ch.ID), core.CacheTag("course", ch.CourseID)}
	for _, l := range lessons {
		if l.IsPublished {
			pc.Lessons = append(pc.Lessons, l)
			tags = append(tags, core.CacheTag("lesson", l.ID))
		}
	}
	return pc, tags, nil
}

func (api *publicApi) retrieveLesson(ctx echo.Context, o org.Organization) (interface{}, []string, error) {
	rctx := ctx.Request().Context()
	l, err := api.courses.GetLesson(rctx, o.ID, ctx.Param("id"))
	if err != nil {
		return nil, nil, errors.Wrap(err, "finding lesson")
	}
	if !l.IsPublished {
		return nil, nil, course.ErrLessonNotFound
	}
	ch, err := api.publishedChapter(rctx, o.ID, l.ChapterID)
	if err != nil {
		return nil, nil, course.ErrLessonNotFound
	}
	acts, err := api.courses.ListActivities(rctx, l.ID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "listing activities")
	}

	pl := PublicLesson{Lesson: l, Activities: []course.Activity{}}
	for _, a := range acts {
		if a.IsPublished {
			pl.Activities = append(pl.Activities, a)
		}
	}
	tags := []string{core.CacheTag("lesson", l.ID), core.CacheTag("chapter", ch.ID), core.CacheTag("course", ch.CourseID)}
	return pl, tags, nil
}
