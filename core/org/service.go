package org

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("organization")
	ErrMemberNotFound = core.NewNotFoundError("member")
	ErrMemberExists   = errors.New("user is already a member of this organization")
	ErrSlugExists     = errors.New("this slug is already taken")
	ErrLastOwner      = errors.New("an organization must keep at least one owner")

	NowFunc = time.Now // mockable
)

type Service interface {
	Create(ctx context.Context, no NewOrganization, creator user.User) (Organization, error)
	Get(ctx context.Context, filter GetFilter) (Organization, error)
	Update(ctx context.Context, o Organization, uo UpdateOrganization) (Organization, error)
	Delete(ctx context.Context, o Organization) error
	ListForUser(ctx context.Context, userID string) ([]Membership, error)

	GetMember(ctx context.Context, orgID, userID string) (Member, error)
	ListMembers(ctx context.Context, orgID string) ([]Member, error)
	AddMember(ctx context.Context, o Organization, actor Member, nm NewMember) (Member, error)
	UpdateMemberRole(ctx context.Context, o Organization, actor Member, userID string, um UpdateMember) (Member, error)
	RemoveMember(ctx context.Context, o Organization, actor Member, userID string) error
}

type service struct {
	repo    Repository
	usrSvc  user.Service
	mailSvc core.EmailService
	cache   core.Cache
	logger  core.Logger
}

var _ Service = (*service)(nil)

func NewService(repo Repository, usrSvc user.Service, mailSvc core.EmailService, cache core.Cache, logger core.Logger) Service {
	return &service{repo: repo, usrSvc: usrSvc, mailSvc: mailSvc, cache: cache, logger: logger}
}

func (svc *service) uniqueSlug(ctx context.Context, base, excludeID string) (string, error) {
	return core.UniqueSlug(base, func(slug string) (bool, error) {
		return svc.repo.SlugExists(ctx, slug, excludeID)
	})
}

func (svc *service) invalidate(ctx context.Context, orgID string) {
	tag := core.CacheTag("org", orgID)
	if err := svc.cache.InvalidateTags(ctx, tag); err != nil {
		svc.logger.Warn(fmt.Sprintf("org: invalidating cache tag %s: %v", tag, err), err)
	}
}

func (svc *service) Create(ctx context.Context, no NewOrganization, creator user.User) (Organization, error) {
	base := no.Slug
	if base == "" {
		base = core.Slugify(no.Name)
	}
	slug, err := svc.uniqueSlug(ctx, base, "")
	if err != nil {
		return Organization{}, errors.Wrap(err, "generating slug")
	}

	now := NowFunc().UTC()
	o := Organization{
		ID:        uuid.New().String(),
		Name:      no.Name,
		Slug:      slug,
		Kind:      no.Kind,
		CreatedAt: now,
		UpdatedAt: now,
	}
	owner := Member{OrgID: o.ID, UserID: creator.ID, Role: RoleOwner, CreatedAt: now}
	o, err = svc.repo.CreateOrganization(ctx, o, owner)
	if errors.Cause(err) == ErrSlugExists {
		return Organization{}, core.NewValidationError(err, core.FieldError{Field: "slug", Error: ErrSlugExists.Error()})
	}
	return o, err
}

func (svc *service) Get(ctx context.Context, filter GetFilter) (Organization, error) {
	return svc.repo.GetOrganization(ctx, filter)
}

func (svc *service) Update(ctx context.Context, o Organization, uo UpdateOrganization) (Organization, error) {
	if uo.Name != "" {
		o.Name = uo.Name
	}
	if uo.Kind != "" {
		o.Kind = uo.Kind
	}
	if uo.Slug != "" && uo.Slug != o.Slug {
		taken, err := svc.repo.SlugExists(ctx, uo.Slug, o.ID)
		if err != nil {
			return Organization{}, errors.Wrap(err, "checking slug")
		}
		if taken {
			return Organization{}, core.NewValidationError(ErrSlugExists, core.FieldError{Field: "slug", Error: ErrSlugExists.Error()})
		}
		o.Slug = uo.Slug
	}
	o.UpdatedAt = NowFunc().UTC()

	o, err := svc.repo.UpdateOrganization(ctx, o)
	if err != nil {
		return Organization{}, err
	}
	svc.invalidate(ctx, o.ID)
	return o, nil
}

func (svc *service) Delete(ctx context.Context, o Organization) error {
	if err := svc.repo.DeleteOrganization(ctx, o.ID); err != nil {
		return err
	}
	svc.invalidate(ctx, o.ID)
	return nil
}

func (svc *service) ListForUser(ctx context.Context, userID string) ([]Membership, error) {
	return svc.repo.QueryMemberships(ctx, userID)
}

func (svc *service) GetMember(ctx context.Context, orgID, userID string) (Member, error) {
	return svc.repo.GetMember(ctx, orgID, userID)
}

func (svc *service) ListMembers(ctx context.Context, orgID string) ([]Member, error) {
	return svc.repo.QueryMembers(ctx, orgID)
}

func (svc *service) AddMember(ctx context.Context, o Organization, actor Member, nm NewMember) (Member, error) {
	if !actor.CanAssign(nm.Role) {
		return Member{}, core.ErrForbidden
	}

	usr, err := svc.usrSvc.GetByEmail(ctx, nm.Email)
	if err != nil {
		if core.IsNotFound(err) {
			return Member{}, core.NewValidationError(err, core.FieldError{Field: "email", Error: "no user with this email"})
		}
		return Member{}, errors.Wrap(err, "finding user by email")
	}

	if _, err = svc.repo.GetMember(ctx, o.ID, usr.ID); err == nil {
		return Member{}, core.NewValidationError(ErrMemberExists, core.FieldError{Field: "email", Error: ErrMemberExists.Error()})
	} else if !core.IsNotFound(err) {
		return Member{}, errors.Wrap(err, "finding member")
	}

	m, err := svc.repo.AddMember(ctx, Member{OrgID: o.ID, UserID: usr.ID, Role: nm.Role, CreatedAt: NowFunc().UTC()})
	if err != nil {
		return Member{}, errors.Wrap(err, "adding member")
	}
	m.Name, m.Email = usr.Name, usr.Email

	inviter := "Someone"
	if actorUsr, err := svc.usrSvc.GetByID(ctx, actor.UserID); err == nil {
		inviter = actorUsr.Name
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      fmt.Sprintf("You have been added to %s", o.Name),
		TemplateName: "org_invite",
		TemplateData: map[string]interface{}{
			"Name":      usr.Name,
			"InvitedBy": inviter,
			"OrgName":   o.Name,
			"OrgSlug":   o.Slug,
			"Role":      nm.Role,
		},
	})
	return m, nil
}

// checkOwnerRemains fails with ErrLastOwner if `m` is the only owner left.
func (svc *service) checkOwnerRemains(ctx context.Context, m Member) error {
	if m.Role != RoleOwner {
		return nil
	}
	cnt, err := svc.repo.CountOwners(ctx, m.OrgID)
	if err != nil {
		return errors.Wrap(err, "counting owners")
	}
	if cnt <= 1 {
		return core.NewValidationError(ErrLastOwner, core.FieldError{Field: "role", Error: ErrLastOwner.Error()})
	}
	return nil
}

func (svc *service) UpdateMemberRole(ctx context.Context, o Organization, actor Member, userID string, um UpdateMember) (Member, error) {
	m, err := svc.repo.GetMember(ctx, o.ID, userID)
	if err != nil {
		return Member{}, err
	}
	if !actor.CanAssign(m.Role) || !actor.CanAssign(um.Role) {
		return Member{}, core.ErrForbidden
	}
	if m.Role == um.Role {
		return m, nil
	}
	if err = svc.checkOwnerRemains(ctx, m); err != nil {
		return Member{}, err
	}
	m.Role = um.Role
	return svc.repo.UpdateMember(ctx, m)
}

func (svc *service) RemoveMember(ctx context.Context, o Organization, actor Member, userID string) error {
	m, err := svc.repo.GetMember(ctx, o.ID, userID)
	if err != nil {
		return err
	}
	// anyone may leave; removing others requires the right to assign their role
	if actor.UserID != userID && !actor.CanAssign(m.Role) {
		return core.ErrForbidden
	}
	if err = svc.checkOwnerRemains(ctx, m); err != nil {
		return err
	}
	return svc.repo.RemoveMember(ctx, o.ID, userID)
}
