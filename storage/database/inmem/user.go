package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

var userOrderingFields = map[string]string{
	"name":       "name",
	"username":   "username",
	"email":      "email",
	"is_active":  "is_active",
	"created_at": "created_at",
	"updated_at": "updated_at",
	"last_login": "last_login",
}

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func copyUser(usr user.User) user.User {
	usr.Roles = append([]string{}, usr.Roles...)
	usr.PasswordHash = append([]byte(nil), usr.PasswordHash...)
	return usr
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	repo.db.user.RLock()
	defer repo.db.user.RUnlock()

	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}
	for _, usr := range repo.db.user.table {
		if excluded[usr.ID] {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.user.Lock()
	defer repo.db.user.Unlock()

	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	for _, u := range repo.db.user.table {
		if (usr.Username != "" && u.Username == usr.Username) || (usr.Email != "" && u.Email == usr.Email) {
			return user.User{}, user.ErrUserExists
		}
	}
	usr = copyUser(usr)
	repo.db.user.table[usr.ID] = &usr
	return copyUser(usr), nil
}

func matchUser(usr user.User, filter *user.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Search != "" {
		s := strings.ToLower(filter.Search)
		if !(strings.Contains(strings.ToLower(usr.Name), s) ||
			strings.Contains(strings.ToLower(usr.Username), s) ||
			strings.Contains(strings.ToLower(usr.Email), s)) {
			return false
		}
	}
	if len(filter.Roles) > 0 {
		found := false
		for _, role := range filter.Roles {
			if usr.RoleStartsWith(role) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
		return false
	}
	if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom.UTC()) {
		return false
	}
	if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo.UTC()) {
		return false
	}
	return true
}

// compareUsers returns -1, 0 or 1 comparing field `col` of a & b.
func compareUsers(a, b user.User, col string) int {
	cmpStr := func(x, y string) int { return strings.Compare(strings.ToLower(x), strings.ToLower(y)) }
	cmpTime := func(x, y time.Time) int {
		switch {
		case x.Before(y):
			return -1
		case x.After(y):
			return 1
		}
		return 0
	}
	switch col {
	case "name":
		return cmpStr(a.Name, b.Name)
	case "username":
		return cmpStr(a.Username, b.Username)
	case "email":
		return cmpStr(a.Email, b.Email)
	case "is_active":
		if a.IsActive == b.IsActive {
			return 0
		} else if !a.IsActive {
			return -1
		}
		return 1
	case "updated_at":
		return cmpTime(a.UpdatedAt, b.UpdatedAt)
	case "last_login":
		return cmpTime(a.LastLogin, b.LastLogin)
	default:
		return cmpTime(a.CreatedAt, b.CreatedAt)
	}
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	repo.db.user.RLock()
	defer repo.db.user.RUnlock()

	users := make([]user.User, 0, len(repo.db.user.table))
	for _, usr := range repo.db.user.table {
		if matchUser(*usr, filter) {
			users = append(users, copyUser(*usr))
		}
	}

	ordering = core.SanitizeOrdering(ordering, userOrderingFields)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: false}}
	}
	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareUsers(users[i], users[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	return users, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.user.RLock()
	defer repo.db.user.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.user.table[filter.ID]; ok {
			return copyUser(*usr), nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.db.user.table {
		switch {
		case filter.Username != "":
			if usr.Username == filter.Username {
				return copyUser(*usr), nil
			}
		case filter.Email != "":
			if usr.Email == filter.Email {
				return copyUser(*usr), nil
			}
		case filter.UsernameOrEmail != "":
			if usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail {
				return copyUser(*usr), nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.user.Lock()
	defer repo.db.user.Unlock()

	if _, ok := repo.db.user.table[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	usr = copyUser(usr)
	repo.db.user.table[usr.ID] = &usr
	return copyUser(usr), nil
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...string) (int, error) {
	repo.db.user.Lock()
	var n int
	for _, id := range ids {
		if _, ok := repo.db.user.table[id]; ok {
			delete(repo.db.user.table, id)
			n++
		}
	}
	repo.db.user.Unlock()

	// cascade
	repo.db.org.Lock()
	defer repo.db.org.Unlock()
	for _, members := range repo.db.org.members {
		for _, id := range ids {
			delete(members, id)
		}
	}
	return n, nil
}
