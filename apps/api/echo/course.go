package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/course"
)

type courseApi struct {
	svc      course.Service
	validate *validator.Validate
}

func registerCourseAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := courseApi{
		svc:      deps.CourseSvc,
		validate: deps.Validate,
	}
	view := []echo.MiddlewareFunc{jwt, orgMiddleware(auth, deps.OrgSvc, canView)}
	edit := []echo.MiddlewareFunc{jwt, orgMiddleware(auth, deps.OrgSvc, canEditContent)}

	// route level middleware only: group middleware adds catch-all routes that would shadow /orgs/:org
	og := g.Group("/orgs/:org")

	cg := og.Group("/courses")
	cg.GET("", api.listCourses, view...)
	cg.POST("", api.createCourse, edit...)
	cg.GET("/:course", api.retrieveCourse, view...)
	cg.PUT("/:course", api.updateCourse, edit...)
	cg.DELETE("/:course", api.destroyCourse, edit...)
	cg.GET("/:course/chapters", api.listChapters, view...)
	cg.POST("/:course/chapters", api.createChapter, edit...)
	cg.PUT("/:course/chapters/order", api.reorderChapters, edit...)

	chg := og.Group("/chapters/:id")
	chg.GET("", api.retrieveChapter, view...)
	chg.PUT("", api.updateChapter, edit...)
	chg.DELETE("", api.destroyChapter, edit...)
	chg.GET("/lessons", api.listLessons, view...)
	chg.POST("/lessons", api.createLesson, edit...)
	chg.PUT("/lessons/order", api.reorderLessons, edit...)

	lg := og.Group("/lessons/:id")
	lg.GET("", api.retrieveLesson, view...)
	lg.PUT("", api.updateLesson, edit...)
	lg.DELETE("", api.destroyLesson, edit...)
	lg.GET("/activities", api.listActivities, view...)
	lg.POST("/activities", api.createActivity, edit...)
	lg.PUT("/activities/order", api.reorderActivities, edit...)

	ag := og.Group("/activities/:id")
	ag.GET("", api.retrieveActivity, view...)
	ag.PUT("", api.updateActivity, edit...)
	ag.DELETE("", api.destroyActivity, edit...)
}

// Loaders: every lookup is scoped to the organization of the context.

func (api *courseApi) course(ctx echo.Context) (course.Course, error) {
	o, _ := contextOrg(ctx)
	c, err := api.svc.GetCourse(ctx.Request().Context(), o.ID, ctx.Param("course"))
	return c, errors.Wrap(err, "finding course")
}

func (api *courseApi) chapter(ctx echo.Context) (course.Chapter, error) {
	o, _ := contextOrg(ctx)
	ch, err := api.svc.GetChapter(ctx.Request().Context(), o.ID, ctx.Param("id"))
	return ch, errors.Wrap(err, "finding chapter")
}

func (api *courseApi) lesson(ctx echo.Context) (course.Lesson, error) {
	o, _ := contextOrg(ctx)
	l, err := api.svc.GetLesson(ctx.Request().Context(), o.ID, ctx.Param("id"))
	return l, errors.Wrap(err, "finding lesson")
}

func (api *courseApi) activity(ctx echo.Context) (course.Activity, error) {
	o, _ := contextOrg(ctx)
	a, err := api.svc.GetActivity(ctx.Request().Context(), o.ID, ctx.Param("id"))
	return a, errors.Wrap(err, "finding activity")
}

func (api *courseApi) bindReorder(ctx echo.Context) ([]string, error) {
	var data course.Reorder
	if err := bind(ctx, &data, "Reorder"); err != nil {
		return nil, err
	}
	if err := data.Validate(api.validate); err != nil {
		return nil, err
	}
	return data.IDs, nil
}

// Courses

func (api *courseApi) listCourses(ctx echo.Context) error {
	o, _ := contextOrg(ctx)
	courses, err := api.svc.ListCourses(ctx.Request().Context(), o.ID, false)
	if err != nil {
		return errors.Wrap(err, "listing courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) createCourse(ctx echo.Context) error {
	o, _ := contextOrg(ctx)
	var data course.NewCourse
	if err := bind(ctx, &data, "NewCourse"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.CreateCourse(ctx.Request().Context(), o.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) retrieveCourse(ctx echo.Context) error {
	c, err := api.course(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) updateCourse(ctx echo.Context) error {
	c, err := api.course(ctx)
	if err != nil {
		return err
	}
	var data course.UpdateCourse
	if err = bind(ctx, &data, "UpdateCourse"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if c, err = api.svc.UpdateCourse(ctx.Request().Context(), c, data); err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) destroyCourse(ctx echo.Context) error {
	c, err := api.course(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteCourse(ctx.Request().Context(), c); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Chapters

func (api *courseApi) listChapters(ctx echo.Context) error {
	c, err := api.course(ctx)
	if err != nil {
		return err
	}
	chapters, err := api.svc.ListChapters(ctx.Request().Context(), c.ID)
	if err != nil {
		return errors.Wrap(err, "listing chapters")
	}
	if chapters == nil {
		chapters = []course.Chapter{}
	}
	return ctx.JSON(http.StatusOK, chapters)
}

func (api *courseApi) createChapter(ctx echo.Context) error {
	c, err := api.course(ctx)
	if err != nil {
		return err
	}
	var data course.NewChapter
	if err = bind(ctx, &data, "NewChapter"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	ch, err := api.svc.CreateChapter(ctx.Request().Context(), c, data)
	if err != nil {
		return errors.Wrap(err, "creating chapter")
	}
	return ctx.JSON(http.StatusCreated, ch)
}

func (api *courseApi) reorderChapters(ctx echo.Context) error {
	c, err := api.course(ctx)
	if err != nil {
		return err
	}
	ids, err := api.bindReorder(ctx)
	if err != nil {
		return err
	}
	chapters, err := api.svc.ReorderChapters(ctx.Request().Context(), c, ids)
	if err != nil {
		return errors.Wrap(err, "reordering chapters")
	}
	return ctx.JSON(http.StatusOK, chapters)
}

func (api *courseApi) retrieveChapter(ctx echo.Context) error {
	ch, err := api.chapter(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ch)
}

func (api *courseApi) updateChapter(ctx echo.Context) error {
	ch, err := api.chapter(ctx)
	if err != nil {
		return err
	}
	var data course.UpdateChapter
	if err = bind(ctx, &data, "UpdateChapter"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if ch, err = api.svc.UpdateChapter(ctx.Request().Context(), ch, data); err != nil {
		return errors.Wrap(err, "updating chapter")
	}
	return ctx.JSON(http.StatusOK, ch)
}

func (api *courseApi) destroyChapter(ctx echo.Context) error {
	ch, err := api.chapter(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteChapter(ctx.Request().Context(), ch); err != nil {
		return errors.Wrap(err, "deleting chapter")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Lessons

func (api *courseApi) listLessons(ctx echo.Context) error {
	ch, err := api.chapter(ctx)
	if err != nil {
		return err
	}
	lessons, err := api.svc.ListLessons(ctx.Request().Context(), ch.ID)
	if err != nil {
		return errors.Wrap(err, "listing lessons")
	}
	if lessons == nil {
		lessons = []course.Lesson{}
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *courseApi) createLesson(ctx echo.Context) error {
	ch, err := api.chapter(ctx)
	if err != nil {
		return err
	}
	var data course.NewLesson
	if err = bind(ctx, &data, "NewLesson"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	l, err := api.svc.CreateLesson(ctx.Request().Context(), ch, data)
	if err != nil {
		return errors.Wrap(err, "creating lesson")
	}
	return ctx.JSON(http.StatusCreated, l)
}

func (api *courseApi) reorderLessons(ctx echo.Context) error {
	ch, err := api.chapter(ctx)
	if err != nil {
		return err
	}
	ids, err := api.bindReorder(ctx)
	if err != nil {
		return err
	}
	lessons, err := api.svc.ReorderLessons(ctx.Request().Context(), ch, ids)
	if err != nil {
		return errors.Wrap(err, "reordering lessons")
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *courseApi) retrieveLesson(ctx echo.Context) error {
	l, err := api.lesson(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *courseApi) updateLesson(ctx echo.Context) error {
	l, err := api.lesson(ctx)
	if err != nil {
		return err
	}
	var data course.UpdateLesson
	if err = bind(ctx, &data, "UpdateLesson"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if l, err = api.svc.UpdateLesson(ctx.Request().Context(), l, data); err != nil {
		return errors.Wrap(err, "updating lesson")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *courseApi) destroyLesson(ctx echo.Context) error {
	l, err := api.lesson(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteLesson(ctx.Request().Context(), l); err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Activities

func (api *courseApi) listActivities(ctx echo.Context) error {
	l, err := api.lesson(ctx)
	if err != nil {
		return err
	}
	acts, err := api.svc.ListActivities(ctx.Request().Context(), l.ID)
	if err != nil {
		return errors.Wrap(err, "listing activities")
	}
	if acts == nil {
		acts = []course.Activity{}
	}
	return ctx.JSON(http.StatusOK, acts)
}

func (api *courseApi) createActivity(ctx echo.Context) error {
	l, err := api.lesson(ctx)
	if err != nil {
		return err
	}
	var data course.NewActivity
	if err = bind(ctx, &data, "NewActivity"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.svc.CreateActivity(ctx.Request().Context(), l, data)
	if err != nil {
		return errors.Wrap(err, "creating activity")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *courseApi) reorderActivities(ctx echo.Context) error {
	l, err := api.lesson(ctx)
	if err != nil {
		return err
	}
	ids, err := api.bindReorder(ctx)
	if err != nil {
		return err
	}
	acts, err := api.svc.ReorderActivities(ctx.Request().Context(), l, ids)
	if err != nil {
		return errors.Wrap(err, "reordering activities")
	}
	return ctx.JSON(http.StatusOK, acts)
}

func (api *courseApi) retrieveActivity(ctx echo.Context) error {
	a, err := api.activity(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *courseApi) updateActivity(ctx echo.Context) error {
	a, err := api.activity(ctx)
	if err != nil {
		return err
	}
	var data course.UpdateActivity
	if err = bind(ctx, &data, "UpdateActivity"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if a, err = api.svc.UpdateActivity(ctx.Request().Context(), a, data); err != nil {
		return errors.Wrap(err, "updating activity")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *courseApi) destroyActivity(ctx echo.Context) error {
	a, err := api.activity(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteActivity(ctx.Request().Context(), a); err != nil {
		return errors.Wrap(err, "deleting activity")
	}
	return ctx.NoContent(http.StatusNoContent)
}
