package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/generate"
	"github.com/trezcool/darasa/core/org"
	"github.com/trezcool/darasa/core/workflow"
)

var sseHeartbeat = 15 * time.Second // mockable

type workflowApi struct {
	runner  *workflow.Runner
	courses course.Service
	orgs    org.Service
	auth    *authenticator
	logger  core.Logger
}

func registerWorkflowAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := workflowApi{
		runner:  deps.Runner,
		courses: deps.CourseSvc,
		orgs:    deps.OrgSvc,
		auth:    auth,
		logger:  deps.Logger,
	}
	edit := orgMiddleware(auth, deps.OrgSvc, canEditContent)

	og := g.Group("/orgs/:org") // see registerCourseAPI
	og.POST("/chapters/:id/generate", api.generateLessons, jwt, edit)
	og.POST("/lessons/:id/generate", api.generatePlan, jwt, edit)
	og.POST("/lessons/:id/generate-activities", api.generateActivities, jwt, edit)
	og.GET("/workflows/runs", api.listRuns, jwt, orgMiddleware(auth, deps.OrgSvc, canView))

	wg := g.Group("/workflows/runs/:id", tokenFromQuery, jwt)
	wg.GET("", api.retrieveRun)
	wg.GET("/stream", api.streamRun)
}

func (api *workflowApi) start(ctx echo.Context, kind, entityID string) error {
	o, m := contextOrg(ctx)
	snap, err := api.runner.Start(ctx.Request().Context(), kind, entityID, o.ID, m.UserID)
	if err != nil {
		return errors.Wrapf(err, "starting %s", kind)
	}
	return ctx.JSON(http.StatusAccepted, snap)
}

func (api *workflowApi) generateLessons(ctx echo.Context) error {
	o, _ := contextOrg(ctx)
	ch, err := api.courses.GetChapter(ctx.Request().Context(), o.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding chapter")
	}
	return api.start(ctx, generate.KindChapterLessons, ch.ID)
}

func (api *workflowApi) generatePlan(ctx echo.Context) error {
	o, _ := contextOrg(ctx)
	l, err := api.courses.GetLesson(ctx.Request().Context(), o.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding lesson")
	}
	return api.start(ctx, generate.KindLessonPlan, l.ID)
}

func (api *workflowApi) generateActivities(ctx echo.Context) error {
	o, _ := contextOrg(ctx)
	l, err := api.courses.GetLesson(ctx.Request().Context(), o.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding lesson")
	}
	return api.start(ctx, generate.KindLessonActivities, l.ID)
}

func (api *workflowApi) listRuns(ctx echo.Context) error {
	o, _ := contextOrg(ctx)
	var filter workflow.RunFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to RunFilter")
	}
	filter.OrgID = o.ID

	snaps, err := api.runner.List(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "listing runs")
	}
	return ctx.JSON(http.StatusOK, snaps)
}

// run loads the `:id` run; runs of organizations the user is not a member of are not found.
func (api *workflowApi) run(ctx echo.Context) (workflow.Snapshot, error) {
	rctx := ctx.Request().Context()
	snap, err := api.runner.Get(rctx, ctx.Param("id"))
	if err != nil {
		return workflow.Snapshot{}, errors.Wrap(err, "finding run")
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return workflow.Snapshot{}, errors.Wrap(err, "getting context user")
	}
	if usr.IsAdmin() {
		return snap, nil
	}
	if _, err = api.orgs.GetMember(rctx, snap.OrgID, usr.ID); err != nil {
		if core.IsNotFound(err) {
			return workflow.Snapshot{}, workflow.ErrNotFound
		}
		return workflow.Snapshot{}, errors.Wrap(err, "finding membership")
	}
	return snap, nil
}

func (api *workflowApi) retrieveRun(ctx echo.Context) error {
	snap, err := api.run(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, snap)
}

// streamRun sends the run as Server-Sent Events: a `status` event per transition, starting with the
// current state, and comment heartbeats in between. The stream ends once the run is terminal.
func (api *workflowApi) streamRun(ctx echo.Context) error {
	snap, err := api.run(ctx)
	if err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	events, cancel, err := api.runner.Subscribe(rctx, snap.ID)
	if err != nil {
		return errors.Wrap(err, "subscribing to run")
	}
	defer cancel()

	// reload after subscribing so no transition is missed in between
	if snap, err = api.runner.Get(rctx, snap.ID); err != nil {
		return errors.Wrap(err, "finding run")
	}

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	if err = writeEvent(res, workflow.Event{Type: workflow.EventStatus, Snapshot: snap}); err != nil || snap.IsTerminal() {
		return nil
	}

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err = writeEvent(res, ev); err != nil {
				api.logger.Debug("sse: client gone", err)
				return nil
			}
			if ev.Snapshot.IsTerminal() {
				return nil
			}
		case <-heartbeat.C:
			if _, err = fmt.Fprint(res, ": heartbeat\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case <-rctx.Done():
			return nil
		}
	}
}

func writeEvent(res *echo.Response, ev workflow.Event) error {
	data, err := json.Marshal(ev.Snapshot)
	if err != nil {
		return errors.Wrap(err, "encoding event")
	}
	if _, err = fmt.Fprintf(res, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	res.Flush()
	return nil
}
