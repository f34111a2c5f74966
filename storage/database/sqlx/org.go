package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/org"
)

type orgRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Slug      string    `db:"slug"`
	Kind      string    `db:"kind"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func toOrgRow(o org.Organization) orgRow {
	return orgRow{ID: o.ID, Name: o.Name, Slug: o.Slug, Kind: o.Kind, CreatedAt: o.CreatedAt.UTC(), UpdatedAt: o.UpdatedAt.UTC()}
}

func (r orgRow) organization() org.Organization {
	return org.Organization{ID: r.ID, Name: r.Name, Slug: r.Slug, Kind: r.Kind, CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC()}
}

type memberRow struct {
	OrgID     string    `db:"org_id"`
	UserID    string    `db:"user_id"`
	Role      string    `db:"role"`
	CreatedAt time.Time `db:"created_at"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
}

func (r memberRow) member() org.Member {
	return org.Member{OrgID: r.OrgID, UserID: r.UserID, Role: r.Role, CreatedAt: r.CreatedAt.UTC(), Name: r.Name, Email: r.Email}
}

const (
	orgColumns    = `id, name, slug, kind, created_at, updated_at`
	memberColumns = `m.org_id, m.user_id, m.role, m.created_at, COALESCE(u.name, '') AS name, COALESCE(u.email, '') AS email`
	memberFrom    = ` FROM organization_member m JOIN "user" u ON u.id = m.user_id`
	orgSlugKey    = "organization_slug_key"
)

type orgRepository struct {
	db *sqlx.DB
}

var _ org.Repository = (*orgRepository)(nil)

func NewOrgRepository(db *sqlx.DB) org.Repository {
	return &orgRepository{db: db}
}

func (repo *orgRepository) CreateOrganization(ctx context.Context, o org.Organization, owner org.Member) (org.Organization, error) {
	owner.OrgID = o.ID
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := `INSERT INTO organization (` + orgColumns + `) VALUES (:id, :name, :slug, :kind, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, q, toOrgRow(o)); err != nil {
			if isUniqueViolation(err, orgSlugKey) {
				return org.ErrSlugExists
			}
			return errors.Wrap(err, "inserting organization")
		}
		q = `INSERT INTO organization_member (org_id, user_id, role, created_at) VALUES ($1, $2, $3, $4)`
		if _, err := tx.ExecContext(ctx, q, owner.OrgID, owner.UserID, owner.Role, owner.CreatedAt.UTC()); err != nil {
			return errors.Wrap(err, "inserting owner")
		}
		return nil
	})
	if err != nil {
		return org.Organization{}, err
	}
	return o, nil
}

func (repo *orgRepository) GetOrganization(ctx context.Context, filter org.GetFilter) (org.Organization, error) {
	cond, arg := "id::text = $1", filter.ID
	if filter.ID == "" {
		cond, arg = "slug = $1", filter.Slug
	}
	var row orgRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+orgColumns+` FROM organization WHERE `+cond, arg); err != nil {
		return org.Organization{}, notFound(err, org.ErrNotFound)
	}
	return row.organization(), nil
}

func (repo *orgRepository) SlugExists(ctx context.Context, slug string, excludeID string) (bool, error) {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM organization WHERE slug = $1 AND id::text <> $2)`
	err := repo.db.GetContext(ctx, &exists, q, slug, excludeID)
	return exists, errors.Wrap(err, "checking organization slug")
}

func (repo *orgRepository) UpdateOrganization(ctx context.Context, o org.Organization) (org.Organization, error) {
	q := `UPDATE organization SET name = :name, slug = :slug, kind = :kind, updated_at = :updated_at WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, toOrgRow(o))
	if err != nil {
		if isUniqueViolation(err, orgSlugKey) {
			return org.Organization{}, org.ErrSlugExists
		}
		return org.Organization{}, errors.Wrap(err, "updating organization")
	}
	if err = affected(res, org.ErrNotFound); err != nil {
		return org.Organization{}, err
	}
	return o, nil
}

// DeleteOrganization deletes its members, courses & runs too (ON DELETE CASCADE).
func (repo *orgRepository) DeleteOrganization(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM organization WHERE id::text = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting organization")
	}
	return affected(res, org.ErrNotFound)
}

func (repo *orgRepository) QueryMemberships(ctx context.Context, userID string) ([]org.Membership, error) {
	var rows []struct {
		orgRow
		Role string `db:"role"`
	}
	q := `SELECT o.id, o.name, o.slug, o.kind, o.created_at, o.updated_at, m.role
		FROM organization o JOIN organization_member m ON m.org_id = o.id
		WHERE m.user_id::text = $1 ORDER BY o.name`
	if err := repo.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying memberships")
	}
	memberships := make([]org.Membership, 0, len(rows))
	for _, r := range rows {
		memberships = append(memberships, org.Membership{Organization: r.organization(), Role: r.Role})
	}
	return memberships, nil
}

func (repo *orgRepository) AddMember(ctx context.Context, m org.Member) (org.Member, error) {
	q := `INSERT INTO organization_member (org_id, user_id, role, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := repo.db.ExecContext(ctx, q, m.OrgID, m.UserID, m.Role, m.CreatedAt.UTC()); err != nil {
		switch {
		case isUniqueViolation(err):
			return org.Member{}, org.ErrMemberExists
		case isForeignKeyViolation(err):
			return org.Member{}, org.ErrNotFound
		}
		return org.Member{}, errors.Wrap(err, "inserting member")
	}
	return repo.GetMember(ctx, m.OrgID, m.UserID)
}

func (repo *orgRepository) GetMember(ctx context.Context, orgID, userID string) (org.Member, error) {
	var row memberRow
	q := `SELECT ` + memberColumns + memberFrom + ` WHERE m.org_id::text = $1 AND m.user_id::text = $2`
	if err := repo.db.GetContext(ctx, &row, q, orgID, userID); err != nil {
		return org.Member{}, notFound(err, org.ErrMemberNotFound)
	}
	return row.member(), nil
}

func (repo *orgRepository) QueryMembers(ctx context.Context, orgID string) ([]org.Member, error) {
	var rows []memberRow
	q := `SELECT ` + memberColumns + memberFrom + ` WHERE m.org_id::text = $1 ORDER BY m.created_at, m.user_id`
	if err := repo.db.SelectContext(ctx, &rows, q, orgID); err != nil {
		return nil, errors.Wrap(err, "querying members")
	}
	members := make([]org.Member, 0, len(rows))
	for _, r := range rows {
		members = append(members, r.member())
	}
	return members, nil
}

func (repo *orgRepository) UpdateMember(ctx context.Context, m org.Member) (org.Member, error) {
	q := `UPDATE organization_member SET role = $1 WHERE org_id::text = $2 AND user_id::text = $3`
	res, err := repo.db.ExecContext(ctx, q, m.Role, m.OrgID, m.UserID)
	if err != nil {
		return org.Member{}, errors.Wrap(err, "updating member")
	}
	if err = affected(res, org.ErrMemberNotFound); err != nil {
		return org.Member{}, err
	}
	return repo.GetMember(ctx, m.OrgID, m.UserID)
}

func (repo *orgRepository) RemoveMember(ctx context.Context, orgID, userID string) error {
	q := `DELETE FROM organization_member WHERE org_id::text = $1 AND user_id::text = $2`
	res, err := repo.db.ExecContext(ctx, q, orgID, userID)
	if err != nil {
		return errors.Wrap(err, "removing member")
	}
	return affected(res, org.ErrMemberNotFound)
}

func (repo *orgRepository) CountOwners(ctx context.Context, orgID string) (int, error) {
	var n int
	q := `SELECT COUNT(*) FROM organization_member WHERE org_id::text = $1 AND role = $2`
	err := repo.db.GetContext(ctx, &n, q, orgID, org.RoleOwner)
	return n, errors.Wrap(err, "counting owners")
}
