package echoapi

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/org"
)

const (
	contextOrgKey    = "org"
	contextMemberKey = "member"
)

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func editorMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		if claims.IsEditor {
			return next(ctx)
		}
		return errHttpForbidden
	}
}

// tokenFromQuery lets clients that cannot set headers (eg. EventSource) authenticate with `?token=`.
// The token is moved out of the request URI, so that request logs do not record it.
func tokenFromQuery(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		req := ctx.Request()
		query := req.URL.Query()
		if token := query.Get("token"); token != "" {
			if req.Header.Get(echo.HeaderAuthorization) == "" {
				req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
			}
			query.Del("token")
			req.URL.RawQuery = query.Encode()
			req.RequestURI = req.URL.RequestURI()
		}
		return next(ctx)
	}
}

func orgFilter(idOrSlug string) org.GetFilter {
	if _, err := uuid.Parse(idOrSlug); err == nil {
		return org.GetFilter{ID: idOrSlug}
	}
	return org.GetFilter{Slug: idOrSlug}
}

// orgMiddleware loads the `:org` organization & the membership of the context user, then checks `allowed`.
// Organizations the user is not a member of are not found; platform admins act as owners.
func orgMiddleware(a *authenticator, svc org.Service, allowed func(org.Member) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			rctx := ctx.Request().Context()
			usr, err := a.contextUser(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			o, err := svc.Get(rctx, orgFilter(ctx.Param("org")))
			if err != nil {
				return errors.Wrap(err, "finding organization")
			}

			m, err := svc.GetMember(rctx, o.ID, usr.ID)
			switch {
			case err == nil:
			case core.IsNotFound(err) && usr.IsAdmin():
				m = org.Member{OrgID: o.ID, UserID: usr.ID, Role: org.RoleOwner}
			case core.IsNotFound(err):
				return org.ErrNotFound
			default:
				return errors.Wrap(err, "finding membership")
			}
			if !allowed(m) {
				return errHttpForbidden
			}

			ctx.Set(contextOrgKey, o)
			ctx.Set(contextMemberKey, m)
			return next(ctx)
		}
	}
}

func contextOrg(ctx echo.Context) (org.Organization, org.Member) {
	o, _ := ctx.Get(contextOrgKey).(org.Organization)
	m, _ := ctx.Get(contextMemberKey).(org.Member)
	return o, m
}

func canView(m org.Member) bool { return m.CanView() }

func canEditContent(m org.Member) bool { return m.CanEditContent() }

func canManageMembers(m org.Member) bool { return m.CanManageMembers() }

func canDeleteOrg(m org.Member) bool { return m.CanDeleteOrg() }
