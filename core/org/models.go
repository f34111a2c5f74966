package org

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
)

// Member roles, in increasing order of power.
const (
	RoleMember = "member"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
	RoleOwner  = "owner"
)

// Organization kinds.
const (
	KindBrand    = "brand"
	KindSchool   = "school"
	KindTeam     = "team"
	KindPersonal = "personal"
)

var (
	AllRoles = []string{RoleMember, RoleEditor, RoleAdmin, RoleOwner}
	AllKinds = []string{KindBrand, KindSchool, KindTeam, KindPersonal}

	rolePriorities = map[string]int{
		RoleMember: 1,
		RoleEditor: 2,
		RoleAdmin:  3,
		RoleOwner:  4,
	}
)

type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Member struct {
	OrgID     string    `json:"org_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`

	// read-only, filled by repositories when listing members
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Membership is an organization along with the role of a given user in it.
type Membership struct {
	Organization
	Role string `json:"role"`
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

// Permissions

func (m Member) CanView() bool { return RolePriority(m.Role) >= RolePriority(RoleMember) }

func (m Member) CanEditContent() bool { return RolePriority(m.Role) >= RolePriority(RoleEditor) }

func (m Member) CanManageMembers() bool { return RolePriority(m.Role) >= RolePriority(RoleAdmin) }

func (m Member) CanDeleteOrg() bool { return m.Role == RoleOwner }

// CanAssign reports whether the member may grant (or revoke) `role`.
// Owners may grant any role, admins any role below owner.
func (m Member) CanAssign(role string) bool {
	if !m.CanManageMembers() {
		return false
	}
	if m.Role == RoleOwner {
		return true
	}
	return RolePriority(role) < RolePriority(RoleOwner)
}

type NewOrganization struct {
	Name string `json:"name" validate:"required,max=255"`
	Slug string `json:"slug" validate:"omitempty,slug,max=80"`
	Kind string `json:"kind" validate:"omitempty,orgkind"`
}

func (no *NewOrganization) Validate(validate *validator.Validate) error {
	no.Name = core.CleanString(no.Name)
	no.Slug = core.CleanString(no.Slug, true /* lower */)
	if no.Kind == "" {
		no.Kind = KindTeam
	}
	return validate.Struct(no)
}

type UpdateOrganization struct {
	Name string `json:"name" validate:"omitempty,max=255"`
	Slug string `json:"slug" validate:"omitempty,slug,max=80"`
	Kind string `json:"kind" validate:"omitempty,orgkind"`
}

func (uo *UpdateOrganization) Validate(validate *validator.Validate) error {
	uo.Name = core.CleanString(uo.Name)
	uo.Slug = core.CleanString(uo.Slug, true /* lower */)
	return validate.Struct(uo)
}

type NewMember struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,orgrole"`
}

func (nm *NewMember) Validate(validate *validator.Validate) error {
	nm.Email = core.CleanString(nm.Email, true /* lower */)
	nm.Role = core.CleanString(nm.Role, true /* lower */)
	return validate.Struct(nm)
}

type UpdateMember struct {
	Role string `json:"role" validate:"required,orgrole"`
}

func (um *UpdateMember) Validate(validate *validator.Validate) error {
	um.Role = core.CleanString(um.Role, true /* lower */)
	return validate.Struct(um)
}

// GetFilter selects a single organization; ID wins over Slug.
type GetFilter struct {
	ID   string
	Slug string
}

type Repository interface {
	// CreateOrganization stores the organization & its first member atomically.
	CreateOrganization(ctx context.Context, o Organization, owner Member) (Organization, error)
	GetOrganization(ctx context.Context, filter GetFilter) (Organization, error)
	SlugExists(ctx context.Context, slug string, excludeID string) (bool, error)
	UpdateOrganization(ctx context.Context, o Organization) (Organization, error)
	DeleteOrganization(ctx context.Context, id string) error
	QueryMemberships(ctx context.Context, userID string) ([]Membership, error)

	AddMember(ctx context.Context, m Member) (Member, error)
	GetMember(ctx context.Context, orgID, userID string) (Member, error)
	QueryMembers(ctx context.Context, orgID string) ([]Member, error)
	UpdateMember(ctx context.Context, m Member) (Member, error)
	RemoveMember(ctx context.Context, orgID, userID string) error
	CountOwners(ctx context.Context, orgID string) (int, error)
}
