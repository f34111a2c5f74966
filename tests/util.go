package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/org"
	"github.com/trezcool/darasa/core/user"
)

// NewValidator returns a validator with every domain validator registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	enLocale := en.New()
	translator, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	org.InitValidators(validate, translator)
	course.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if roles == nil {
		roles = []string{}
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// CreateOrg stores an organization owned by `owner`.
func CreateOrg(t *testing.T, repo org.Repository, name, slug string, owner user.User) org.Organization {
	t.Helper()
	now := time.Now().UTC()
	o := org.Organization{
		ID:        uuid.New().String(),
		Name:      name,
		Slug:      slug,
		Kind:      org.KindTeam,
		CreatedAt: now,
		UpdatedAt: now,
	}
	o, err := repo.CreateOrganization(context.Background(), o, org.Member{
		UserID:    owner.ID,
		Role:      org.RoleOwner,
		CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("createOrg() failed: %v", err)
	}
	return o
}

func AddMember(t *testing.T, repo org.Repository, o org.Organization, usr user.User, role string) org.Member {
	t.Helper()
	m, err := repo.AddMember(context.Background(), org.Member{
		OrgID:     o.ID,
		UserID:    usr.ID,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("addMember() failed: %v", err)
	}
	return m
}

// CreateCourse stores a course with one chapter holding one lesson.
func CreateCourse(t *testing.T, repo course.Repository, o org.Organization, title string) (course.Course, course.Chapter, course.Lesson) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	slug := core.Slugify(title)

	c, err := repo.CreateCourse(ctx, course.Course{
		ID: uuid.New().String(), OrgID: o.ID, Title: title, Slug: slug, Language: "en",
		CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("createCourse() failed: %v", err)
	}
	ch, err := repo.CreateChapter(ctx, course.Chapter{
		ID: uuid.New().String(), CourseID: c.ID, OrgID: o.ID, Title: "Basics", Slug: "basics", Position: 1,
		GenerationStatus: course.StatusPending, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("createCourse() failed: %v", err)
	}
	l, err := repo.CreateLesson(ctx, course.Lesson{
		ID: uuid.New().String(), ChapterID: ch.ID, OrgID: o.ID, Title: "Greetings", Slug: "greetings",
		Kind: course.LessonCore, Position: 1, GenerationStatus: course.StatusPending, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("createCourse() failed: %v", err)
	}
	return c, ch, l
}
