package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/progress"
)

type progressApi struct {
	svc      progress.Service
	auth     *authenticator
	validate *validator.Validate
}

const dateLayout = "2006-01-02"

type EnergyResponse struct {
	Current float64                `json:"current"`
	History []progress.EnergyPoint `json:"history"`
}

func registerProgressAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := progressApi{
		svc:      deps.ProgressSvc,
		auth:     auth,
		validate: deps.Validate,
	}

	pg := g.Group("/progress", jwt)
	pg.POST("/activities/:id/complete", api.completeActivity)
	pg.GET("/activities", api.activityProgress)
	pg.GET("/energy", api.energy)
}

func (api *progressApi) completeActivity(ctx echo.Context) error {
	var data progress.CompleteActivity
	if err := bind(ctx, &data, "CompleteActivity"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	dp, err := api.svc.CompleteActivity(ctx.Request().Context(), usr.ID, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "completing activity")
	}
	return ctx.JSON(http.StatusOK, dp)
}

func (api *progressApi) activityProgress(ctx echo.Context) error {
	var query struct {
		IDs []string `query:"id"`
	}
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding activity ids")
	}

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	aps, err := api.svc.ActivityProgress(ctx.Request().Context(), usr.ID, query.IDs...)
	if err != nil {
		return errors.Wrap(err, "querying activity progress")
	}
	if aps == nil {
		aps = []progress.ActivityProgress{}
	}
	return ctx.JSON(http.StatusOK, aps)
}

func (api *progressApi) energy(ctx echo.Context) error {
	var (
		filter progress.HistoryFilter
		err    error
	)
	if filter.From, err = queryDate(ctx, "from"); err != nil {
		return err
	}
	if filter.To, err = queryDate(ctx, "to"); err != nil {
		return err
	}
	now := progress.NowFunc().UTC()
	filter.Clean(now)

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	rctx := ctx.Request().Context()
	current, err := api.svc.CurrentEnergy(rctx, usr.ID, now)
	if err != nil {
		return errors.Wrap(err, "computing current energy")
	}
	history, err := api.svc.EnergyHistory(rctx, usr.ID, filter.From, filter.To)
	if err != nil {
		return errors.Wrap(err, "computing energy history")
	}
	if history == nil {
		history = []progress.EnergyPoint{}
	}
	return ctx.JSON(http.StatusOK, EnergyResponse{Current: current, History: history})
}

// queryDate parses an optional YYYY-MM-DD query param.
func queryDate(ctx echo.Context, name string) (time.Time, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, val)
	if err != nil {
		return time.Time{}, core.NewValidationError(nil, core.FieldError{Field: name, Error: "must be a YYYY-MM-DD date"})
	}
	return t, nil
}
