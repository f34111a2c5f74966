package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core/org"
	"github.com/trezcool/darasa/core/user"
	testutil "github.com/trezcool/darasa/tests"
)

func Test_orgApi_create(t *testing.T) {
	f := setup(t)
	editor := f.createUser(t, "Editor", "editor@test.cd", user.RoleEditor)
	learner := f.createUser(t, "Learner", "learner@test.cd", user.RoleLearner)

	t.Run("editors only", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/orgs", f.token(t, learner), org.NewOrganization{Name: "Kinshasa School"})
		checkErr(t, rec, http.StatusForbidden, "permission denied")
	})

	rec := f.do(t, http.MethodPost, "/v1/orgs", f.token(t, editor), org.NewOrganization{Name: "Kinshasa School"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var o org.Organization
	decode(t, rec, &o)
	assert.Equal(t, "kinshasa-school", o.Slug)
	assert.Equal(t, org.KindTeam, o.Kind)

	rec = f.do(t, http.MethodPost, "/v1/orgs", f.token(t, editor), org.NewOrganization{Name: "Kinshasa School"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "kinshasa-school-2", jsonMap(t, rec)["slug"], "slugs are unique")

	rec = f.do(t, http.MethodGet, "/v1/orgs", f.token(t, editor), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mships []org.Membership
	decode(t, rec, &mships)
	require.Len(t, mships, 2)
	assert.Equal(t, org.RoleOwner, mships[0].Role)

	rec = f.do(t, http.MethodGet, "/v1/orgs", f.token(t, learner), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func Test_orgApi_permissions(t *testing.T) {
	f := setup(t)
	owner := f.createUser(t, "Owner", "owner@test.cd", user.RoleEditor)
	member := f.createUser(t, "Member", "member@test.cd", user.RoleLearner)
	stranger := f.createUser(t, "Stranger", "stranger@test.cd", user.RoleLearner)
	admin := f.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin)
	o := testutil.CreateOrg(t, f.orgRepo, "Kin", "kin", owner)
	testutil.AddMember(t, f.orgRepo, o, member, org.RoleMember)

	tests := []struct {
		name     string
		method   string
		path     string
		usr      user.User
		body     interface{}
		wantCode int
		wantErr  string
	}{
		{name: "member by slug", method: http.MethodGet, path: "/v1/orgs/kin", usr: member, wantCode: http.StatusOK},
		{name: "member by id", method: http.MethodGet, path: "/v1/orgs/" + o.ID, usr: member, wantCode: http.StatusOK},
		{name: "stranger", method: http.MethodGet, path: "/v1/orgs/kin", usr: stranger, wantCode: http.StatusNotFound, wantErr: "organization not found"},
		{name: "unknown", method: http.MethodGet, path: "/v1/orgs/nope", usr: owner, wantCode: http.StatusNotFound, wantErr: "organization not found"},
		{name: "platform admin", method: http.MethodGet, path: "/v1/orgs/kin", usr: admin, wantCode: http.StatusOK},
		{name: "member cannot update", method: http.MethodPut, path: "/v1/orgs/kin", usr: member, body: org.UpdateOrganization{Name: "X"}, wantCode: http.StatusForbidden, wantErr: "permission denied"},
		{name: "owner updates", method: http.MethodPut, path: "/v1/orgs/kin", usr: owner, body: org.UpdateOrganization{Name: "Kinshasa"}, wantCode: http.StatusOK},
		{name: "invalid slug", method: http.MethodPut, path: "/v1/orgs/kin", usr: owner, body: org.UpdateOrganization{Slug: "Not A Slug!"}, wantCode: http.StatusBadRequest},
		{name: "member lists members", method: http.MethodGet, path: "/v1/orgs/kin/members", usr: member, wantCode: http.StatusOK},
		{name: "member cannot delete", method: http.MethodDelete, path: "/v1/orgs/kin", usr: member, wantCode: http.StatusForbidden, wantErr: "permission denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, f.token(t, tt.usr), tt.body)
			if tt.wantErr != "" {
				checkErr(t, rec, tt.wantCode, tt.wantErr)
				return
			}
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}

	rec := f.do(t, http.MethodDelete, "/v1/orgs/kin", f.token(t, owner), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodGet, "/v1/orgs/kin", f.token(t, owner), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_orgApi_members(t *testing.T) {
	f := setup(t)
	owner := f.createUser(t, "Owner", "owner@test.cd", user.RoleEditor)
	admin := f.createUser(t, "Manager", "manager@test.cd", user.RoleLearner)
	newbie := f.createUser(t, "Newbie", "newbie@test.cd", user.RoleLearner)
	o := testutil.CreateOrg(t, f.orgRepo, "Kin", "kin", owner)
	testutil.AddMember(t, f.orgRepo, o, admin, org.RoleAdmin)
	adminToken := f.token(t, admin)

	t.Run("admins cannot grant owner", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/orgs/kin/members", adminToken, org.NewMember{Email: "newbie@test.cd", Role: org.RoleOwner})
		checkErr(t, rec, http.StatusForbidden, "permission denied")
	})
	t.Run("unknown email", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/orgs/kin/members", adminToken, org.NewMember{Email: "ghost@test.cd", Role: org.RoleMember})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "no user with this email", jsonMap(t, rec)["email"])
	})
	t.Run("invalid role", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/orgs/kin/members", adminToken, org.NewMember{Email: "newbie@test.cd", Role: "boss"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, jsonMap(t, rec), "role")
	})

	rec := f.do(t, http.MethodPost, "/v1/orgs/kin/members", adminToken, org.NewMember{Email: "NEWBIE@test.cd", Role: org.RoleEditor})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var m org.Member
	decode(t, rec, &m)
	assert.Equal(t, newbie.ID, m.UserID)
	assert.Equal(t, org.RoleEditor, m.Role)

	msg, ok := f.mail.LastMessage()
	require.True(t, ok, "an invite is sent")
	assert.Equal(t, "newbie@test.cd", msg.To[0].Address)

	rec = f.do(t, http.MethodPost, "/v1/orgs/kin/members", adminToken, org.NewMember{Email: "newbie@test.cd", Role: org.RoleMember})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "already a member")

	rec = f.do(t, http.MethodPut, "/v1/orgs/kin/members/"+newbie.ID, adminToken, org.UpdateMember{Role: org.RoleMember})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, org.RoleMember, jsonMap(t, rec)["role"])

	rec = f.do(t, http.MethodDelete, "/v1/orgs/kin/members/"+owner.ID, adminToken, nil)
	checkErr(t, rec, http.StatusForbidden, "permission denied")

	rec = f.do(t, http.MethodDelete, "/v1/orgs/kin/members/"+owner.ID, f.token(t, owner), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code, "the last owner cannot leave")

	rec = f.do(t, http.MethodDelete, "/v1/orgs/kin/members/"+newbie.ID, f.token(t, newbie), nil)
	require.Equal(t, http.StatusNoContent, rec.Code, "members may leave")

	rec = f.do(t, http.MethodGet, "/v1/orgs/kin/members", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var members []org.Member
	decode(t, rec, &members)
	assert.Len(t, members, 2)
}
