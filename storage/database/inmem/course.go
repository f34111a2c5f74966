package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/darasa/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

func copyActivity(a course.Activity) course.Activity {
	a.Content = append([]byte(nil), a.Content...)
	return a
}

// Courses

func (repo *courseRepository) CreateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()
	repo.db.course.courses[c.ID] = &c
	return c, nil
}

func (repo *courseRepository) GetCourse(_ context.Context, filter course.CourseFilter) (course.Course, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()

	for _, c := range repo.db.course.courses {
		if filter.OrgID != "" && c.OrgID != filter.OrgID {
			continue
		}
		if (filter.ID != "" && c.ID == filter.ID) || (filter.ID == "" && filter.Slug != "" && c.Slug == filter.Slug) {
			return *c, nil
		}
	}
	return course.Course{}, course.ErrCourseNotFound
}

func (repo *courseRepository) QueryCourses(_ context.Context, orgID string, publishedOnly bool) ([]course.Course, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()

	courses := make([]course.Course, 0)
	for _, c := range repo.db.course.courses {
		if c.OrgID == orgID && (!publishedOnly || c.IsPublished) {
			courses = append(courses, *c)
		}
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].CreatedAt.After(courses[j].CreatedAt) })
	return courses, nil
}

func (repo *courseRepository) UpdateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()
	if _, ok := repo.db.course.courses[c.ID]; !ok {
		return course.Course{}, course.ErrCourseNotFound
	}
	repo.db.course.courses[c.ID] = &c
	return c, nil
}

func (repo *courseRepository) DeleteCourse(_ context.Context, id string) error {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()
	if _, ok := repo.db.course.courses[id]; !ok {
		return course.ErrCourseNotFound
	}
	delete(repo.db.course.courses, id)
	for chID, ch := range repo.db.course.chapters {
		if ch.CourseID == id {
			repo.deleteChapter(chID)
		}
	}
	return nil
}

func (repo *courseRepository) CourseSlugExists(_ context.Context, orgID, slug, excludeID string) (bool, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()
	for _, c := range repo.db.course.courses {
		if c.OrgID == orgID && c.Slug == slug && c.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

// Chapters

func (repo *courseRepository) CreateChapter(_ context.Context, ch course.Chapter) (course.Chapter, error) {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()
	if _, ok := repo.db.course.courses[ch.CourseID]; !ok {
		return course.Chapter{}, course.ErrCourseNotFound
	}
	repo.db.course.chapters[ch.ID] = &ch
	return ch, nil
}

func (repo *courseRepository) GetChapter(_ context.Context, id string) (course.Chapter, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()
	if ch, ok := repo.db.course.chapters[id]; ok {
		return *ch, nil
	}
	return course.Chapter{}, course.ErrChapterNotFound
}

func (repo *courseRepository) QueryChapters(_ context.Context, courseID string) ([]course.Chapter, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()

	chapters := make([]course.Chapter, 0)
	for _, ch := range repo.db.course.chapters {
		if ch.CourseID == courseID {
			chapters = append(chapters, *ch)
		}
	}
	sort.Slice(chapters, func(i, j int) bool {
		if chapters[i].Position == chapters[j].Position {
			return chapters[i].CreatedAt.Before(chapters[j].CreatedAt)
		}
		return chapters[i].Position < chapters[j].Position
	})
	return chapters, nil
}

func (repo *courseRepository) UpdateChapter(_ context.Context, ch course.Chapter) (course.Chapter, error) {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()
	if _, ok := repo.db.course.chapters[ch.ID]; !ok {
		return course.Chapter{}, course.ErrChapterNotFound
	}
	repo.db.course.chapters[ch.ID] = &ch
	return ch, nil
}

// deleteChapter removes a chapter & its children. The course table must be locked.
func (repo *courseRepository) deleteChapter(id string) {
	delete(repo.db.course.chapters, id)
	for lID, l := range repo.db.course.lessons {
		if l.ChapterID == id {
			repo.deleteLesson(lID)
		}
	}
}

func (repo *courseRepository) DeleteChapter(_ context.Context, id string) error {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()
	if _, ok := repo.db.course.chapters[id]; !ok {
		return course.ErrChapterNotFound
	}
	repo.deleteChapter(id)
	return nil
}

func (repo *courseRepository) ChapterSlugExists(_ context.Context, courseID, slug, excludeID string) (bool, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()
	for _, ch := range repo.db.course.chapters {
		if ch.CourseID == courseID && ch.Slug == slug && ch.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *courseRepository) SetChapterPositions(_ context.Context, courseID string, ids []string) error {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()
	for i, id := range ids {
		if ch, ok := repo.db.course.chapters[id]; ok && ch.CourseID == courseID {
			ch.Position = i
		}
	}
	return nil
}

func (repo *courseRepository) SetChapterStatus(_ context.Context, id, status string) error {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()
	ch, ok := repo.db.course.chapters[id]
	if !ok {
		return course.ErrChapterNotFound
	}
	ch.GenerationStatus = status
	return nil
}

// Lessons

func (repo *courseRepository) CreateLesson(_ context.Context, l course.Lesson) (course.Lesson, error) {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()
	if _, ok := repo.db.course.chapters[l.ChapterID]; !ok {
		return course.Lesson{}, course.ErrChapterNotFound
	}
	repo.db.course.lessons[l.ID] = &l
	return l, nil
}

func (repo *courseRepository) GetLesson(_ context.Context, id string) (course.Lesson, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()
	if l, ok := repo.db.course.lessons[id]; ok {
		return *l, nil
	}
	return course.Lesson{}, course.ErrLessonNotFound
}

func (repo *courseRepository) QueryLessons(_ context.Context, chapterID string) ([]course.Lesson, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()

	lessons := make([]course.Lesson, 0)
	for _, l := range repo.db.course.lessons {
		if l.ChapterID == chapterID {
			lessons = append(lessons, *l)
		}
	}
	sort.Slice(lessons, func(i, j int) bool {
		if lessons[i].Position == lessons[j].Position {
			return lessons[i].CreatedAt.Before(lessons[j].CreatedAt)
		}
		return lessons[i].Position < lessons[j].Position
	})
	return lessons, nil
}

func (repo *courseRepository) UpdateLesson(_ context.Context, l course.Lesson) (course.Lesson, error) {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()
	if _, ok := repo.db.course.lessons[l.ID]; !ok {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	repo.db.course.lessons[l.ID] = &l
	return l, nil
}

// deleteLesson removes a lesson & its activities. The course table must be locked.
func (repo *courseRepository) deleteLesson(id string) {
	delete(repo.db.course.lessons, id)
	for aID, a := range repo.db.course.activities {
		if a.LessonID == id {
			delete(repo.db.course.activities, aID)
		}
	}
}

func (repo *courseRepository) DeleteLesson(_ context.Context, id string) error {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()
	if _, ok := repo.db.course.lessons[id]; !ok {
		return course.ErrLessonNotFound
	}
	repo.deleteLesson(id)
	return nil
}

func (repo *courseRepository) LessonSlugExists(_ context.Context, chapterID, slug, excludeID string) (bool, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()
	for _, l := range repo.db.course.lessons {
		if l.ChapterID == chapterID && l.Slug == slug && l.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *courseRepository) SetLessonPositions(_ context.Context, chapterID string, ids []string) error {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()
	for i, id := range ids {
		if l, ok := repo.db.course.lessons[id]; ok && l.ChapterID == chapterID {
			l.Position = i
		}
	}
	return nil
}

func (repo *courseRepository) SetLessonStatus(_ context.Context, id, status string) error {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()
	l, ok := repo.db.course.lessons[id]
	if !ok {
		return course.ErrLessonNotFound
	}
	l.GenerationStatus = status
	return nil
}

func (repo *courseRepository) ReplaceLessons(_ context.Context, chapterID string, lessons []course.Lesson) ([]course.Lesson, error) {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()
	if _, ok := repo.db.course.chapters[chapterID]; !ok {
		return nil, course.ErrChapterNotFound
	}
	for id, l := range repo.db.course.lessons {
		if l.ChapterID == chapterID {
			repo.deleteLesson(id)
		}
	}
	for i := range lessons {
		l := lessons[i]
		repo.db.course.lessons[l.ID] = &l
	}
	return lessons, nil
}

// Activities

func (repo *courseRepository) CreateActivity(_ context.Context, a course.Activity) (course.Activity, error) {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()
	if _, ok := repo.db.course.lessons[a.LessonID]; !ok {
		return course.Activity{}, course.ErrLessonNotFound
	}
	a = copyActivity(a)
	repo.db.course.activities[a.ID] = &a
	return copyActivity(a), nil
}

func (repo *courseRepository) GetActivity(_ context.Context, id string) (course.Activity, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()
	if a, ok := repo.db.course.activities[id]; ok {
		return copyActivity(*a), nil
	}
	return course.Activity{}, course.ErrActivityNotFound
}

func (repo *courseRepository) QueryActivities(_ context.Context, lessonID string) ([]course.Activity, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()

	acts := make([]course.Activity, 0)
	for _, a := range repo.db.course.activities {
		if a.LessonID == lessonID {
			acts = append(acts, copyActivity(*a))
		}
	}
	sort.Slice(acts, func(i, j int) bool {
		if acts[i].Position == acts[j].Position {
			return acts[i].CreatedAt.Before(acts[j].CreatedAt)
		}
		return acts[i].Position < acts[j].Position
	})
	return acts, nil
}

func (repo *courseRepository) UpdateActivity(_ context.Context, a course.Activity) (course.Activity, error) {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()
	if _, ok := repo.db.course.activities[a.ID]; !ok {
		return course.Activity{}, course.ErrActivityNotFound
	}
	a = copyActivity(a)
	repo.db.course.activities[a.ID] = &a
	return copyActivity(a), nil
}

func (repo *courseRepository) DeleteActivity(_ context.Context, id string) error {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()
	if _, ok := repo.db.course.activities[id]; !ok {
		return course.ErrActivityNotFound
	}
	delete(repo.db.course.activities, id)
	return nil
}

func (repo *courseRepository) SetActivityPositions(_ context.Context, lessonID string, ids []string) error {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()
	for i, id := range ids {
		if a, ok := repo.db.course.activities[id]; ok && a.LessonID == lessonID {
			a.Position = i
		}
	}
	return nil
}

func (repo *courseRepository) SetActivityStatus(_ context.Context, ids []string, status string) error {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()
	for _, id := range ids {
		if a, ok := repo.db.course.activities[id]; ok {
			a.GenerationStatus = status
		}
	}
	return nil
}

func (repo *courseRepository) ReplaceActivities(_ context.Context, lessonID string, acts []course.Activity) ([]course.Activity, error) {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()
	if _, ok := repo.db.course.lessons[lessonID]; !ok {
		return nil, course.ErrLessonNotFound
	}
	for id, a := range repo.db.course.activities {
		if a.LessonID == lessonID {
			delete(repo.db.course.activities, id)
		}
	}
	for i := range acts {
		a := copyActivity(acts[i])
		repo.db.course.activities[a.ID] = &a
	}
	return acts, nil
}
