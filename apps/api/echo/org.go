package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/org"
)

type orgApi struct {
	svc      org.Service
	auth     *authenticator
	validate *validator.Validate
}

func registerOrgAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := orgApi{
		svc:      deps.OrgSvc,
		auth:     auth,
		validate: deps.Validate,
	}

	og := g.Group("/orgs", jwt)
	og.POST("", api.create, editorMiddleware)
	og.GET("", api.listForUser)

	dg := og.Group("/:org")
	dg.GET("", api.retrieve, orgMiddleware(auth, api.svc, canView))
	dg.PUT("", api.update, orgMiddleware(auth, api.svc, canManageMembers))
	dg.DELETE("", api.destroy, orgMiddleware(auth, api.svc, canDeleteOrg))

	mg := dg.Group("/members")
	mg.GET("", api.listMembers, orgMiddleware(auth, api.svc, canView))
	mg.POST("", api.addMember, orgMiddleware(auth, api.svc, canManageMembers))
	mg.PUT("/:user", api.updateMember, orgMiddleware(auth, api.svc, canManageMembers))
	mg.DELETE("/:user", api.removeMember, orgMiddleware(auth, api.svc, canView)) // members may leave
}

func (api *orgApi) create(ctx echo.Context) error {
	var data org.NewOrganization
	if err := bind(ctx, &data, "NewOrganization"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	o, err := api.svc.Create(ctx.Request().Context(), data, usr)
	if err != nil {
		return errors.Wrap(err, "creating organization")
	}
	return ctx.JSON(http.StatusCreated, o)
}

func (api *orgApi) listForUser(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	mships, err := api.svc.ListForUser(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "listing organizations")
	}
	if mships == nil {
		mships = []org.Membership{}
	}
	return ctx.JSON(http.StatusOK, mships)
}

func (api *orgApi) retrieve(ctx echo.Context) error {
	o, m := contextOrg(ctx)
	return ctx.JSON(http.StatusOK, org.Membership{Organization: o, Role: m.Role})
}

func (api *orgApi) update(ctx echo.Context) error {
	o, _ := contextOrg(ctx)
	var data org.UpdateOrganization
	if err := bind(ctx, &data, "UpdateOrganization"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	o, err := api.svc.Update(ctx.Request().Context(), o, data)
	if err != nil {
		return errors.Wrap(err, "updating organization")
	}
	return ctx.JSON(http.StatusOK, o)
}

func (api *orgApi) destroy(ctx echo.Context) error {
	o, _ := contextOrg(ctx)
	if err := api.svc.Delete(ctx.Request().Context(), o); err != nil {
		return errors.Wrap(err, "deleting organization")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *orgApi) listMembers(ctx echo.Context) error {
	o, _ := contextOrg(ctx)
	members, err := api.svc.ListMembers(ctx.Request().Context(), o.ID)
	if err != nil {
		return errors.Wrap(err, "listing members")
	}
	if members == nil {
		members = []org.Member{}
	}
	return ctx.JSON(http.StatusOK, members)
}

func (api *orgApi) addMember(ctx echo.Context) error {
	o, actor := contextOrg(ctx)
	var data org.NewMember
	if err := bind(ctx, &data, "NewMember"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	m, err := api.svc.AddMember(ctx.Request().Context(), o, actor, data)
	if err != nil {
		return errors.Wrap(err, "adding member")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *orgApi) updateMember(ctx echo.Context) error {
	o, actor := contextOrg(ctx)
	var data org.UpdateMember
	if err := bind(ctx, &data, "UpdateMember"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	m, err := api.svc.UpdateMemberRole(ctx.Request().Context(), o, actor, ctx.Param("user"), data)
	if err != nil {
		return errors.Wrap(err, "updating member")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *orgApi) removeMember(ctx echo.Context) error {
	o, actor := contextOrg(ctx)
	if err := api.svc.RemoveMember(ctx.Request().Context(), o, actor, ctx.Param("user")); err != nil {
		return errors.Wrap(err, "removing member")
	}
	return ctx.NoContent(http.StatusNoContent)
}
