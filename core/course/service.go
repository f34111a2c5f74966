package course

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

var (
	// errors
	ErrCourseNotFound   = core.NewNotFoundError("course")
	ErrChapterNotFound  = core.NewNotFoundError("chapter")
	ErrLessonNotFound   = core.NewNotFoundError("lesson")
	ErrActivityNotFound = core.NewNotFoundError("activity")

	errSlugTaken    = "this slug is already taken"
	errReorderIDs   = "ids must list every child exactly once"
	NowFunc         = time.Now // mockable
	emptyContentVal = []byte("null")
)

type Service interface {
	CreateCourse(ctx context.Context, orgID string, nc NewCourse) (Course, error)
	// GetCourse finds a course of the organization by ID or slug.
	GetCourse(ctx context.Context, orgID, idOrSlug string) (Course, error)
	ListCourses(ctx context.Context, orgID string, publishedOnly bool) ([]Course, error)
	UpdateCourse(ctx context.Context, c Course, uc UpdateCourse) (Course, error)
	DeleteCourse(ctx context.Context, c Course) error

	CreateChapter(ctx context.Context, c Course, nc NewChapter) (Chapter, error)
	GetChapter(ctx context.Context, orgID, id string) (Chapter, error)
	ListChapters(ctx context.Context, courseID string) ([]Chapter, error)
	UpdateChapter(ctx context.Context, ch Chapter, uc UpdateChapter) (Chapter, error)
	DeleteChapter(ctx context.Context, ch Chapter) error
	ReorderChapters(ctx context.Context, c Course, ids []string) ([]Chapter, error)
	SetChapterStatus(ctx context.Context, ch Chapter, status string) error

	CreateLesson(ctx context.Context, ch Chapter, nl NewLesson) (Lesson, error)
	GetLesson(ctx context.Context, orgID, id string) (Lesson, error)
	ListLessons(ctx context.Context, chapterID string) ([]Lesson, error)
	UpdateLesson(ctx context.Context, l Lesson, ul UpdateLesson) (Lesson, error)
	DeleteLesson(ctx context.Context, l Lesson) error
	ReorderLessons(ctx context.Context, ch Chapter, ids []string) ([]Lesson, error)
	ReplaceLessons(ctx context.Context, ch Chapter, lessons []NewLesson) ([]Lesson, error)
	SetLessonStatus(ctx context.Context, l Lesson, status string) error

	CreateActivity(ctx context.Context, l Lesson, na NewActivity) (Activity, error)
	GetActivity(ctx context.Context, orgID, id string) (Activity, error)
	ListActivities(ctx context.Context, lessonID string) ([]Activity, error)
	UpdateActivity(ctx context.Context, a Activity, ua UpdateActivity) (Activity, error)
	DeleteActivity(ctx context.Context, a Activity) error
	ReorderActivities(ctx context.Context, l Lesson, ids []string) ([]Activity, error)
	ReplaceActivities(ctx context.Context, l Lesson, activities []NewActivity) ([]Activity, error)
	SetActivitiesStatus(ctx context.Context, l Lesson, ids []string, status string) error
}

type service struct {
	repo   Repository
	cache  core.Cache
	logger core.Logger
}

var _ Service = (*service)(nil)

func NewService(repo Repository, cache core.Cache, logger core.Logger) Service {
	return &service{repo: repo, cache: cache, logger: logger}
}

// invalidate drops every cached response tagged with one of the given resources.
// Each write invalidates the written resource & its parent, whose responses embed it.
func (svc *service) invalidate(ctx context.Context, tags ...string) {
	if err := svc.cache.InvalidateTags(ctx, tags...); err != nil {
		svc.logger.Warn(fmt.Sprintf("course: invalidating cache tags %v: %v", tags, err), err)
	}
}

func slugBase(slug, title string) string {
	if slug != "" {
		return slug
	}
	return core.Slugify(title)
}

func slugTakenErr() error {
	return core.NewValidationError(nil, core.FieldError{Field: "slug", Error: errSlugTaken})
}

// checkReorder verifies that `ids` lists every id of `current` exactly once.
func checkReorder(current map[string]bool, ids []string) error {
	if len(ids) != len(current) {
		return core.NewValidationError(nil, core.FieldError{Field: "ids", Error: errReorderIDs})
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !current[id] || seen[id] {
			return core.NewValidationError(nil, core.FieldError{Field: "ids", Error: errReorderIDs})
		}
		seen[id] = true
	}
	return nil
}

// Courses

func (svc *service) CreateCourse(ctx context.Context, orgID string, nc NewCourse) (Course, error) {
	slug, err := core.UniqueSlug(slugBase(nc.Slug, nc.Title), func(s string) (bool, error) {
		return svc.repo.CourseSlugExists(ctx, orgID, s, "")
	})
	if err != nil {
		return Course{}, errors.Wrap(err, "generating slug")
	}

	now := NowFunc().UTC()
	c, err := svc.repo.CreateCourse(ctx, Course{
		ID:          uuid.New().String(),
		OrgID:       orgID,
		Title:       nc.Title,
		Slug:        slug,
		Description: nc.Description,
		Language:    nc.Language,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Course{}, err
	}
	svc.invalidate(ctx, core.CacheTag("org", orgID))
	return c, nil
}

func (svc *service) GetCourse(ctx context.Context, orgID, idOrSlug string) (Course, error) {
	filter := CourseFilter{OrgID: orgID}
	if _, err := uuid.Parse(idOrSlug); err == nil {
		filter.ID = idOrSlug
	} else {
		filter.Slug = idOrSlug
	}
	return svc.repo.GetCourse(ctx, filter)
}

func (svc *service) ListCourses(ctx context.Context, orgID string, publishedOnly bool) ([]Course, error) {
	return svc.repo.QueryCourses(ctx, orgID, publishedOnly)
}

func (svc *service) UpdateCourse(ctx context.Context, c Course, uc UpdateCourse) (Course, error) {
	if uc.Title != "" {
		c.Title = uc.Title
	}
	if uc.Description != nil {
		c.Description = core.CleanString(*uc.Description)
	}
	if uc.Language != "" {
		c.Language = uc.Language
	}
	if uc.IsPublished != nil {
		c.IsPublished = *uc.IsPublished
	}
	if uc.Slug != "" && uc.Slug != c.Slug {
		taken, err := svc.repo.CourseSlugExists(ctx, c.OrgID, uc.Slug, c.ID)
		if err != nil {
			return Course{}, errors.Wrap(err, "checking slug")
		}
		if taken {
			return Course{}, slugTakenErr()
		}
		c.Slug = uc.Slug
	}
	c.UpdatedAt = NowFunc().UTC()

	c, err := svc.repo.UpdateCourse(ctx, c)
	if err != nil {
		return Course{}, err
	}
	svc.invalidate(ctx, core.CacheTag("course", c.ID), core.CacheTag("org", c.OrgID))
	return c, nil
}

func (svc *service) DeleteCourse(ctx context.Context, c Course) error {
	if err := svc.repo.DeleteCourse(ctx, c.ID); err != nil {
		return err
	}
	svc.invalidate(ctx, core.CacheTag("course", c.ID), core.CacheTag("org", c.OrgID))
	return nil
}

// Chapters

func (svc *service) CreateChapter(ctx context.Context, c Course, nc NewChapter) (Chapter, error) {
	slug, err := core.UniqueSlug(slugBase(nc.Slug, nc.Title), func(s string) (bool, error) {
		return svc.repo.ChapterSlugExists(ctx, c.ID, s, "")
	})
	if err != nil {
		return Chapter{}, errors.Wrap(err, "generating slug")
	}
	siblings, err := svc.repo.QueryChapters(ctx, c.ID)
	if err != nil {
		return Chapter{}, errors.Wrap(err, "querying chapters")
	}
	pos := 0
	for _, s := range siblings {
		if s.Position >= pos {
			pos = s.Position + 1
		}
	}

	now := NowFunc().UTC()
	ch, err := svc.repo.CreateChapter(ctx, Chapter{
		ID:               uuid.New().String(),
		CourseID:         c.ID,
		OrgID:            c.OrgID,
		Title:            nc.Title,
		Slug:             slug,
		Description:      nc.Description,
		Position:         pos,
		GenerationStatus: StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return Chapter{}, err
	}
	svc.invalidate(ctx, core.CacheTag("course", c.ID))
	return ch, nil
}

func (svc *service) GetChapter(ctx context.Context, orgID, id string) (Chapter, error) {
	ch, err := svc.repo.GetChapter(ctx, id)
	if err != nil {
		return Chapter{}, err
	}
	if orgID != "" && ch.OrgID != orgID {
		return Chapter{}, ErrChapterNotFound
	}
	return ch, nil
}

func (svc *service) ListChapters(ctx context.Context, courseID string) ([]Chapter, error) {
	return svc.repo.QueryChapters(ctx, courseID)
}

func (svc *service) UpdateChapter(ctx context.Context, ch Chapter, uc UpdateChapter) (Chapter, error) {
	if uc.Title != "" {
		ch.Title = uc.Title
	}
	if uc.Description != nil {
		ch.Description = core.CleanString(*uc.Description)
	}
	if uc.IsPublished != nil {
		ch.IsPublished = *uc.IsPublished
	}
	if uc.Slug != "" && uc.Slug != ch.Slug {
		taken, err := svc.repo.ChapterSlugExists(ctx, ch.CourseID, uc.Slug, ch.ID)
		if err != nil {
			return Chapter{}, errors.Wrap(err, "checking slug")
		}
		if taken {
			return Chapter{}, slugTakenErr()
		}
		ch.Slug = uc.Slug
	}
	ch.UpdatedAt = NowFunc().UTC()

	ch, err := svc.repo.UpdateChapter(ctx, ch)
	if err != nil {
		return Chapter{}, err
	}
	svc.invalidate(ctx, core.CacheTag("chapter", ch.ID), core.CacheTag("course", ch.CourseID))
	return ch, nil
}

func (svc *service) DeleteChapter(ctx context.Context, ch Chapter) error {
	if err := svc.repo.DeleteChapter(ctx, ch.ID); err != nil {
		return err
	}
	svc.invalidate(ctx, core.CacheTag("chapter", ch.ID), core.CacheTag("course", ch.CourseID))
	return nil
}

func (svc *service) ReorderChapters(ctx context.Context, c Course, ids []string) ([]Chapter, error) {
	chapters, err := svc.repo.QueryChapters(ctx, c.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying chapters")
	}
	current := make(map[string]bool, len(chapters))
	for _, ch := range chapters {
		current[ch.ID] = true
	}
	if err = checkReorder(current, ids); err != nil {
		return nil, err
	}
	if err = svc.repo.SetChapterPositions(ctx, c.ID, ids); err != nil {
		return nil, errors.Wrap(err, "setting positions")
	}
	svc.invalidate(ctx, core.CacheTag("course", c.ID))
	return svc.repo.QueryChapters(ctx, c.ID)
}

func (svc *service) SetChapterStatus(ctx context.Context, ch Chapter, status string) error {
	if err := svc.repo.SetChapterStatus(ctx, ch.ID, status); err != nil {
		return err
	}
	svc.invalidate(ctx, core.CacheTag("chapter", ch.ID))
	return nil
}

// Lessons

func (svc *service) nextLessonPosition(ctx context.Context, chapterID string) (int, error) {
	siblings, err := svc.repo.QueryLessons(ctx, chapterID)
	if err != nil {
		return 0, errors.Wrap(err, "querying lessons")
	}
	pos := 0
	for _, s := range siblings {
		if s.Position >= pos {
			pos = s.Position + 1
		}
	}
	return pos, nil
}

func (svc *service) CreateLesson(ctx context.Context, ch Chapter, nl NewLesson) (Lesson, error) {
	slug, err := core.UniqueSlug(slugBase(nl.Slug, nl.Title), func(s string) (bool, error) {
		return svc.repo.LessonSlugExists(ctx, ch.ID, s, "")
	})
	if err != nil {
		return Lesson{}, errors.Wrap(err, "generating slug")
	}
	pos, err := svc.nextLessonPosition(ctx, ch.ID)
	if err != nil {
		return Lesson{}, err
	}
	if nl.Kind == "" {
		nl.Kind = LessonCore
	}

	now := NowFunc().UTC()
	l, err := svc.repo.CreateLesson(ctx, Lesson{
		ID:               uuid.New().String(),
		ChapterID:        ch.ID,
		OrgID:            ch.OrgID,
		Title:            nl.Title,
		Slug:             slug,
		Description:      nl.Description,
		Kind:             nl.Kind,
		Position:         pos,
		GenerationStatus: StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return Lesson{}, err
	}
	svc.invalidate(ctx, core.CacheTag("chapter", ch.ID))
	return l, nil
}

func (svc *service) GetLesson(ctx context.Context, orgID, id string) (Lesson, error) {
	l, err := svc.repo.GetLesson(ctx, id)
	if err != nil {
		return Lesson{}, err
	}
	if orgID != "" && l.OrgID != orgID {
		return Lesson{}, ErrLessonNotFound
	}
	return l, nil
}

func (svc *service) ListLessons(ctx context.Context, chapterID string) ([]Lesson, error) {
	return svc.repo.QueryLessons(ctx, chapterID)
}

func (svc *service) UpdateLesson(ctx context.Context, l Lesson, ul UpdateLesson) (Lesson, error) {
	if ul.Title != "" {
		l.Title = ul.Title
	}
	if ul.Description != nil {
		l.Description = core.CleanString(*ul.Description)
	}
	if ul.Kind != "" {
		l.Kind = ul.Kind
	}
	if ul.IsPublished != nil {
		l.IsPublished = *ul.IsPublished
	}
	if ul.Slug != "" && ul.Slug != l.Slug {
		taken, err := svc.repo.LessonSlugExists(ctx, l.ChapterID, ul.Slug, l.ID)
		if err != nil {
			return Lesson{}, errors.Wrap(err, "checking slug")
		}
		if taken {
			return Lesson{}, slugTakenErr()
		}
		l.Slug = ul.Slug
	}
	l.UpdatedAt = NowFunc().UTC()

	l, err := svc.repo.UpdateLesson(ctx, l)
	if err != nil {
		return Lesson{}, err
	}
	svc.invalidate(ctx, core.CacheTag("lesson", l.ID), core.CacheTag("chapter", l.ChapterID))
	return l, nil
}

func (svc *service) DeleteLesson(ctx context.Context, l Lesson) error {
	if err := svc.repo.DeleteLesson(ctx, l.ID); err != nil {
		return err
	}
	svc.invalidate(ctx, core.CacheTag("lesson", l.ID), core.CacheTag("chapter", l.ChapterID))
	return nil
}

func (svc *service) ReorderLessons(ctx context.Context, ch Chapter, ids []string) ([]Lesson, error) {
	lessons, err := svc.repo.QueryLessons(ctx, ch.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	current := make(map[string]bool, len(lessons))
	for _, l := range lessons {
		current[l.ID] = true
	}
	if err = checkReorder(current, ids); err != nil {
		return nil, err
	}
	if err = svc.repo.SetLessonPositions(ctx, ch.ID, ids); err != nil {
		return nil, errors.Wrap(err, "setting positions")
	}
	svc.invalidate(ctx, core.CacheTag("chapter", ch.ID))
	return svc.repo.QueryLessons(ctx, ch.ID)
}

// ReplaceLessons swaps every lesson of the chapter with new ones, in the given order.
func (svc *service) ReplaceLessons(ctx context.Context, ch Chapter, newLessons []NewLesson) ([]Lesson, error) {
	now := NowFunc().UTC()
	taken := make(map[string]bool, len(newLessons))
	lessons := make([]Lesson, 0, len(newLessons))
	for i, nl := range newLessons {
		slug, _ := core.UniqueSlug(slugBase(nl.Slug, nl.Title), func(s string) (bool, error) { return taken[s], nil })
		taken[slug] = true
		kind := nl.Kind
		if kind == "" {
			kind = LessonCore
		}
		lessons = append(lessons, Lesson{
			ID:               uuid.New().String(),
			ChapterID:        ch.ID,
			OrgID:            ch.OrgID,
			Title:            nl.Title,
			Slug:             slug,
			Description:      nl.Description,
			Kind:             kind,
			Position:         i,
			GenerationStatus: StatusPending,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}

	old, err := svc.repo.QueryLessons(ctx, ch.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	lessons, err = svc.repo.ReplaceLessons(ctx, ch.ID, lessons)
	if err != nil {
		return nil, errors.Wrap(err, "replacing lessons")
	}

	tags := []string{core.CacheTag("chapter", ch.ID)}
	for _, l := range old {
		tags = append(tags, core.CacheTag("lesson", l.ID))
	}
	svc.invalidate(ctx, tags...)
	return lessons, nil
}

func (svc *service) SetLessonStatus(ctx context.Context, l Lesson, status string) error {
	if err := svc.repo.SetLessonStatus(ctx, l.ID, status); err != nil {
		return err
	}
	svc.invalidate(ctx, core.CacheTag("lesson", l.ID))
	return nil
}

// Activities

func (svc *service) CreateActivity(ctx context.Context, l Lesson, na NewActivity) (Activity, error) {
	siblings, err := svc.repo.QueryActivities(ctx, l.ID)
	if err != nil {
		return Activity{}, errors.Wrap(err, "querying activities")
	}
	pos := 0
	for _, s := range siblings {
		if s.Position >= pos {
			pos = s.Position + 1
		}
	}
	content := na.Content
	if len(content) == 0 {
		content = emptyContentVal
	}

	now := NowFunc().UTC()
	a, err := svc.repo.CreateActivity(ctx, Activity{
		ID:               uuid.New().String(),
		LessonID:         l.ID,
		OrgID:            l.OrgID,
		Kind:             na.Kind,
		Title:            na.Title,
		Position:         pos,
		Content:          content,
		GenerationStatus: StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return Activity{}, err
	}
	svc.invalidate(ctx, core.CacheTag("lesson", l.ID))
	return a, nil
}

func (svc *service) GetActivity(ctx context.Context, orgID, id string) (Activity, error) {
	a, err := svc.repo.GetActivity(ctx, id)
	if err != nil {
		return Activity{}, err
	}
	if orgID != "" && a.OrgID != orgID {
		return Activity{}, ErrActivityNotFound
	}
	return a, nil
}

func (svc *service) ListActivities(ctx context.Context, lessonID string) ([]Activity, error) {
	return svc.repo.QueryActivities(ctx, lessonID)
}

func (svc *service) UpdateActivity(ctx context.Context, a Activity, ua UpdateActivity) (Activity, error) {
	if ua.Title != nil {
		a.Title = *ua.Title
	}
	if len(ua.Content) > 0 && string(ua.Content) != string(emptyContentVal) {
		a.Content = ua.Content
	}
	if ua.IsPublished != nil {
		a.IsPublished = *ua.IsPublished
	}
	a.UpdatedAt = NowFunc().UTC()

	a, err := svc.repo.UpdateActivity(ctx, a)
	if err != nil {
		return Activity{}, err
	}
	svc.invalidate(ctx, core.CacheTag("lesson", a.LessonID))
	return a, nil
}

func (svc *service) DeleteActivity(ctx context.Context, a Activity) error {
	if err := svc.repo.DeleteActivity(ctx, a.ID); err != nil {
		return err
	}
	svc.invalidate(ctx, core.CacheTag("lesson", a.LessonID))
	return nil
}

func (svc *service) ReorderActivities(ctx context.Context, l Lesson, ids []string) ([]Activity, error) {
	acts, err := svc.repo.QueryActivities(ctx, l.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying activities")
	}
	current := make(map[string]bool, len(acts))
	for _, a := range acts {
		current[a.ID] = true
	}
	if err = checkReorder(current, ids); err != nil {
		return nil, err
	}
	if err = svc.repo.SetActivityPositions(ctx, l.ID, ids); err != nil {
		return nil, errors.Wrap(err, "setting positions")
	}
	svc.invalidate(ctx, core.CacheTag("lesson", l.ID))
	return svc.repo.QueryActivities(ctx, l.ID)
}

// ReplaceActivities swaps every activity of the lesson with new ones, in the given order.
func (svc *service) ReplaceActivities(ctx context.Context, l Lesson, newActs []NewActivity) ([]Activity, error) {
	now := NowFunc().UTC()
	acts := make([]Activity, 0, len(newActs))
	for i, na := range newActs {
		content := na.Content
		if len(content) == 0 {
			content = emptyContentVal
		}
		acts = append(acts, Activity{
			ID:               uuid.New().String(),
			LessonID:         l.ID,
			OrgID:            l.OrgID,
			Kind:             na.Kind,
			Title:            na.Title,
			Position:         i,
			Content:          content,
			GenerationStatus: StatusPending,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}

	acts, err := svc.repo.ReplaceActivities(ctx, l.ID, acts)
	if err != nil {
		return nil, errors.Wrap(err, "replacing activities")
	}
	svc.invalidate(ctx, core.CacheTag("lesson", l.ID))
	return acts, nil
}

func (svc *service) SetActivitiesStatus(ctx context.Context, l Lesson, ids []string, status string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := svc.repo.SetActivityStatus(ctx, ids, status); err != nil {
		return err
	}
	svc.invalidate(ctx, core.CacheTag("lesson", l.ID))
	return nil
}
