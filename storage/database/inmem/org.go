package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/darasa/core/org"
)

type orgRepository struct {
	db *DB
}

var _ org.Repository = (*orgRepository)(nil)

func NewOrgRepository(db *DB) org.Repository {
	return &orgRepository{db: db}
}

func (repo *orgRepository) CreateOrganization(_ context.Context, o org.Organization, owner org.Member) (org.Organization, error) {
	repo.db.org.Lock()
	defer repo.db.org.Unlock()

	for _, other := range repo.db.org.orgs {
		if other.Slug == o.Slug {
			return org.Organization{}, org.ErrSlugExists
		}
	}
	repo.db.org.orgs[o.ID] = &o
	owner.OrgID = o.ID
	repo.db.org.members[o.ID] = map[string]*org.Member{owner.UserID: &owner}
	return o, nil
}

func (repo *orgRepository) GetOrganization(_ context.Context, filter org.GetFilter) (org.Organization, error) {
	repo.db.org.RLock()
	defer repo.db.org.RUnlock()

	if filter.ID != "" {
		if o, ok := repo.db.org.orgs[filter.ID]; ok {
			return *o, nil
		}
		return org.Organization{}, org.ErrNotFound
	}
	for _, o := range repo.db.org.orgs {
		if filter.Slug != "" && o.Slug == filter.Slug {
			return *o, nil
		}
	}
	return org.Organization{}, org.ErrNotFound
}

func (repo *orgRepository) SlugExists(_ context.Context, slug string, excludeID string) (bool, error) {
	repo.db.org.RLock()
	defer repo.db.org.RUnlock()

	for _, o := range repo.db.org.orgs {
		if o.Slug == slug && o.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *orgRepository) UpdateOrganization(_ context.Context, o org.Organization) (org.Organization, error) {
	repo.db.org.Lock()
	defer repo.db.org.Unlock()

	if _, ok := repo.db.org.orgs[o.ID]; !ok {
		return org.Organization{}, org.ErrNotFound
	}
	repo.db.org.orgs[o.ID] = &o
	return o, nil
}

func (repo *orgRepository) DeleteOrganization(_ context.Context, id string) error {
	repo.db.org.Lock()
	if _, ok := repo.db.org.orgs[id]; !ok {
		repo.db.org.Unlock()
		return org.ErrNotFound
	}
	delete(repo.db.org.orgs, id)
	delete(repo.db.org.members, id)
	repo.db.org.Unlock()

	// cascade
	repo.db.course.Lock()
	for cid, c := range repo.db.course.courses {
		if c.OrgID == id {
			delete(repo.db.course.courses, cid)
		}
	}
	for cid, ch := range repo.db.course.chapters {
		if ch.OrgID == id {
			delete(repo.db.course.chapters, cid)
		}
	}
	for lid, l := range repo.db.course.lessons {
		if l.OrgID == id {
			delete(repo.db.course.lessons, lid)
		}
	}
	for aid, a := range repo.db.course.activities {
		if a.OrgID == id {
			delete(repo.db.course.activities, aid)
		}
	}
	repo.db.course.Unlock()

	repo.db.workflow.Lock()
	for rid, r := range repo.db.workflow.runs {
		if r.OrgID == id {
			delete(repo.db.workflow.runs, rid)
		}
	}
	repo.db.workflow.Unlock()
	return nil
}

func (repo *orgRepository) QueryMemberships(_ context.Context, userID string) ([]org.Membership, error) {
	repo.db.org.RLock()
	defer repo.db.org.RUnlock()

	memberships := make([]org.Membership, 0)
	for orgID, members := range repo.db.org.members {
		if m, ok := members[userID]; ok {
			if o, ok := repo.db.org.orgs[orgID]; ok {
				memberships = append(memberships, org.Membership{Organization: *o, Role: m.Role})
			}
		}
	}
	sort.Slice(memberships, func(i, j int) bool { return memberships[i].Name < memberships[j].Name })
	return memberships, nil
}

func (repo *orgRepository) AddMember(_ context.Context, m org.Member) (org.Member, error) {
	repo.db.org.Lock()
	defer repo.db.org.Unlock()

	members, ok := repo.db.org.members[m.OrgID]
	if !ok {
		return org.Member{}, org.ErrNotFound
	}
	if _, exists := members[m.UserID]; exists {
		return org.Member{}, org.ErrMemberExists
	}
	members[m.UserID] = &m
	return m, nil
}

// withUser fills the read-only user fields of a member. The org table must be locked.
func (repo *orgRepository) withUser(m org.Member) org.Member {
	repo.db.user.RLock()
	defer repo.db.user.RUnlock()
	if usr, ok := repo.db.user.table[m.UserID]; ok {
		m.Name, m.Email = usr.Name, usr.Email
	}
	return m
}

func (repo *orgRepository) GetMember(_ context.Context, orgID, userID string) (org.Member, error) {
	repo.db.org.RLock()
	defer repo.db.org.RUnlock()

	if m, ok := repo.db.org.members[orgID][userID]; ok {
		return repo.withUser(*m), nil
	}
	return org.Member{}, org.ErrMemberNotFound
}

func (repo *orgRepository) QueryMembers(_ context.Context, orgID string) ([]org.Member, error) {
	repo.db.org.RLock()
	defer repo.db.org.RUnlock()

	members := make([]org.Member, 0, len(repo.db.org.members[orgID]))
	for _, m := range repo.db.org.members[orgID] {
		members = append(members, repo.withUser(*m))
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].CreatedAt.Equal(members[j].CreatedAt) {
			return members[i].UserID < members[j].UserID
		}
		return members[i].CreatedAt.Before(members[j].CreatedAt)
	})
	return members, nil
}

func (repo *orgRepository) UpdateMember(_ context.Context, m org.Member) (org.Member, error) {
	repo.db.org.Lock()
	defer repo.db.org.Unlock()

	orig, ok := repo.db.org.members[m.OrgID][m.UserID]
	if !ok {
		return org.Member{}, org.ErrMemberNotFound
	}
	orig.Role = m.Role
	return repo.withUser(*orig), nil
}

func (repo *orgRepository) RemoveMember(_ context.Context, orgID, userID string) error {
	repo.db.org.Lock()
	defer repo.db.org.Unlock()

	if _, ok := repo.db.org.members[orgID][userID]; !ok {
		return org.ErrMemberNotFound
	}
	delete(repo.db.org.members[orgID], userID)
	return nil
}

func (repo *orgRepository) CountOwners(_ context.Context, orgID string) (int, error) {
	repo.db.org.RLock()
	defer repo.db.org.RUnlock()

	var n int
	for _, m := range repo.db.org.members[orgID] {
		if m.Role == org.RoleOwner {
			n++
		}
	}
	return n, nil
}
