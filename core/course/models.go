package course

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
)

// Generation statuses
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Lesson kinds
const (
	LessonCore     = "core"
	LessonLanguage = "language"
	LessonCustom   = "custom"
)

// Activity kinds
const (
	ActivityBackground  = "background"
	ActivityExplanation = "explanation"
	ActivityExamples    = "examples"
	ActivityQuiz        = "quiz"
	ActivityReview      = "review"
	ActivityCustom      = "custom"
)

var (
	AllStatuses      = []string{StatusPending, StatusRunning, StatusCompleted, StatusFailed}
	AllLessonKinds   = []string{LessonCore, LessonLanguage, LessonCustom}
	AllActivityKinds = []string{ActivityBackground, ActivityExplanation, ActivityExamples, ActivityQuiz, ActivityReview, ActivityCustom}
)

type Course struct {
	ID          string    `json:"id" db:"id"`
	OrgID       string    `json:"org_id" db:"org_id"`
	Title       string    `json:"title" db:"title"`
	Slug        string    `json:"slug" db:"slug"`
	Description string    `json:"description" db:"description"`
	Language    string    `json:"language" db:"language"`
	IsPublished bool      `json:"is_published" db:"is_published"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

type Chapter struct {
	ID               string    `json:"id" db:"id"`
	CourseID         string    `json:"course_id" db:"course_id"`
	OrgID            string    `json:"org_id" db:"org_id"`
	Title            string    `json:"title" db:"title"`
	Slug             string    `json:"slug" db:"slug"`
	Description      string    `json:"description" db:"description"`
	Position         int       `json:"position" db:"position"`
	IsPublished      bool      `json:"is_published" db:"is_published"`
	GenerationStatus string    `json:"generation_status" db:"generation_status"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

type Lesson struct {
	ID               string    `json:"id" db:"id"`
	ChapterID        string    `json:"chapter_id" db:"chapter_id"`
	OrgID            string    `json:"org_id" db:"org_id"`
	Title            string    `json:"title" db:"title"`
	Slug             string    `json:"slug" db:"slug"`
	Description      string    `json:"description" db:"description"`
	Kind             string    `json:"kind" db:"kind"`
	Position         int       `json:"position" db:"position"`
	IsPublished      bool      `json:"is_published" db:"is_published"`
	GenerationStatus string    `json:"generation_status" db:"generation_status"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

type Activity struct {
	ID               string          `json:"id" db:"id"`
	LessonID         string          `json:"lesson_id" db:"lesson_id"`
	OrgID            string          `json:"org_id" db:"org_id"`
	Kind             string          `json:"kind" db:"kind"`
	Title            string          `json:"title" db:"title"`
	Position         int             `json:"position" db:"position"`
	Content          json.RawMessage `json:"content" db:"content"`
	IsPublished      bool            `json:"is_published" db:"is_published"`
	GenerationStatus string          `json:"generation_status" db:"generation_status"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// Payloads

type NewCourse struct {
	Title       string `json:"title" validate:"required,max=255"`
	Slug        string `json:"slug" validate:"omitempty,slug,max=80"`
	Description string `json:"description"`
	Language    string `json:"language" validate:"omitempty,min=2,max=10"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Slug = core.CleanString(nc.Slug, true /* lower */)
	nc.Description = core.CleanString(nc.Description)
	nc.Language = core.CleanString(nc.Language, true /* lower */)
	if nc.Language == "" {
		nc.Language = "en"
	}
	return validate.Struct(nc)
}

type UpdateCourse struct {
	Title       string  `json:"title" validate:"omitempty,max=255"`
	Slug        string  `json:"slug" validate:"omitempty,slug,max=80"`
	Description *string `json:"description"`
	Language    string  `json:"language" validate:"omitempty,min=2,max=10"`
	IsPublished *bool   `json:"is_published"`
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	uc.Title = core.CleanString(uc.Title)
	uc.Slug = core.CleanString(uc.Slug, true /* lower */)
	uc.Language = core.CleanString(uc.Language, true /* lower */)
	return validate.Struct(uc)
}

type NewChapter struct {
	Title       string `json:"title" validate:"required,max=255"`
	Slug        string `json:"slug" validate:"omitempty,slug,max=80"`
	Description string `json:"description"`
}

func (nc *NewChapter) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Slug = core.CleanString(nc.Slug, true /* lower */)
	nc.Description = core.CleanString(nc.Description)
	return validate.Struct(nc)
}

type UpdateChapter struct {
	Title       string  `json:"title" validate:"omitempty,max=255"`
	Slug        string  `json:"slug" validate:"omitempty,slug,max=80"`
	Description *string `json:"description"`
	IsPublished *bool   `json:"is_published"`
}

func (uc *UpdateChapter) Validate(validate *validator.Validate) error {
	uc.Title = core.CleanString(uc.Title)
	uc.Slug = core.CleanString(uc.Slug, true /* lower */)
	return validate.Struct(uc)
}

type NewLesson struct {
	Title       string `json:"title" validate:"required,max=255"`
	Slug        string `json:"slug" validate:"omitempty,slug,max=80"`
	Description string `json:"description"`
	Kind        string `json:"kind" validate:"omitempty,lessonkind"`
}

func (nl *NewLesson) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	nl.Slug = core.CleanString(nl.Slug, true /* lower */)
	nl.Description = core.CleanString(nl.Description)
	if nl.Kind == "" {
		nl.Kind = LessonCore
	}
	return validate.Struct(nl)
}

type UpdateLesson struct {
	Title       string  `json:"title" validate:"omitempty,max=255"`
	Slug        string  `json:"slug" validate:"omitempty,slug,max=80"`
	Description *string `json:"description"`
	Kind        string  `json:"kind" validate:"omitempty,lessonkind"`
	IsPublished *bool   `json:"is_published"`
}

func (ul *UpdateLesson) Validate(validate *validator.Validate) error {
	ul.Title = core.CleanString(ul.Title)
	ul.Slug = core.CleanString(ul.Slug, true /* lower */)
	return validate.Struct(ul)
}

type NewActivity struct {
	Kind    string          `json:"kind" validate:"required,activitykind"`
	Title   string          `json:"title" validate:"max=255"`
	Content json.RawMessage `json:"content"`
}

func (na *NewActivity) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	return validate.Struct(na)
}

type UpdateActivity struct {
	Title       *string         `json:"title" validate:"omitempty,max=255"`
	Content     json.RawMessage `json:"content"`
	IsPublished *bool           `json:"is_published"`
}

func (ua *UpdateActivity) Validate(validate *validator.Validate) error {
	if ua.Title != nil {
		t := core.CleanString(*ua.Title)
		ua.Title = &t
	}
	return validate.Struct(ua)
}

// Reorder lists the ids of all the children of a parent in their new order.
type Reorder struct {
	IDs []string `json:"ids" validate:"required,dive,required"`
}

func (r Reorder) Validate(validate *validator.Validate) error { return validate.Struct(r) }

// CourseFilter selects a single course of an organization; ID wins over Slug.
type CourseFilter struct {
	OrgID string
	ID    string
	Slug  string
}

type Repository interface {
	CreateCourse(ctx context.Context, c Course) (Course, error)
	GetCourse(ctx context.Context, filter CourseFilter) (Course, error)
	QueryCourses(ctx context.Context, orgID string, publishedOnly bool) ([]Course, error)
	UpdateCourse(ctx context.Context, c Course) (Course, error)
	DeleteCourse(ctx context.Context, id string) error
	CourseSlugExists(ctx context.Context, orgID, slug, excludeID string) (bool, error)

	CreateChapter(ctx context.Context, ch Chapter) (Chapter, error)
	GetChapter(ctx context.Context, id string) (Chapter, error)
	QueryChapters(ctx context.Context, courseID string) ([]Chapter, error)
	UpdateChapter(ctx context.Context, ch Chapter) (Chapter, error)
	DeleteChapter(ctx context.Context, id string) error
	ChapterSlugExists(ctx context.Context, courseID, slug, excludeID string) (bool, error)
	SetChapterPositions(ctx context.Context, courseID string, ids []string) error
	SetChapterStatus(ctx context.Context, id, status string) error

	CreateLesson(ctx context.Context, l Lesson) (Lesson, error)
	GetLesson(ctx context.Context, id string) (Lesson, error)
	QueryLessons(ctx context.Context, chapterID string) ([]Lesson, error)
	UpdateLesson(ctx context.Context, l Lesson) (Lesson, error)
	DeleteLesson(ctx context.Context, id string) error
	LessonSlugExists(ctx context.Context, chapterID, slug, excludeID string) (bool, error)
	SetLessonPositions(ctx context.Context, chapterID string, ids []string) error
	SetLessonStatus(ctx context.Context, id, status string) error
	// ReplaceLessons deletes every lesson of the chapter and stores `lessons` in a single transaction.
	ReplaceLessons(ctx context.Context, chapterID string, lessons []Lesson) ([]Lesson, error)

	CreateActivity(ctx context.Context, a Activity) (Activity, error)
	GetActivity(ctx context.Context, id string) (Activity, error)
	QueryActivities(ctx context.Context, lessonID string) ([]Activity, error)
	UpdateActivity(ctx context.Context, a Activity) (Activity, error)
	DeleteActivity(ctx context.Context, id string) error
	SetActivityPositions(ctx context.Context, lessonID string, ids []string) error
	SetActivityStatus(ctx context.Context, ids []string, status string) error
	// ReplaceActivities deletes every activity of the lesson and stores `activities` in a single transaction.
	ReplaceActivities(ctx context.Context, lessonID string, activities []Activity) ([]Activity, error)
}
