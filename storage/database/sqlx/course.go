package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
)

const (
	courseColumns   = `id, org_id, title, slug, description, language, is_published, created_at, updated_at`
	chapterColumns  = `id, course_id, org_id, title, slug, description, position, is_published, generation_status, created_at, updated_at`
	lessonColumns   = `id, chapter_id, org_id, title, slug, description, kind, position, is_published, generation_status, created_at, updated_at`
	activityColumns = `id, lesson_id, org_id, kind, title, position, is_published, generation_status, created_at, updated_at`
	// lib/pq sends []byte as bytea: JSONB goes through text
	activitySelect = `SELECT ` + activityColumns + `, COALESCE(content, 'null'::jsonb)::text AS content FROM activity`

	insertLesson = `INSERT INTO lesson (` + lessonColumns + `)
		VALUES (:id, :chapter_id, :org_id, :title, :slug, :description, :kind, :position, :is_published,
			:generation_status, :created_at, :updated_at)`
	insertActivity = `INSERT INTO activity (` + activityColumns + `, content)
		VALUES (:id, :lesson_id, :org_id, :kind, :title, :position, :is_published, :generation_status,
			:created_at, :updated_at, CAST(:content AS jsonb))`
)

type activityRow struct {
	ID               string    `db:"id"`
	LessonID         string    `db:"lesson_id"`
	OrgID            string    `db:"org_id"`
	Kind             string    `db:"kind"`
	Title            string    `db:"title"`
	Position         int       `db:"position"`
	Content          string    `db:"content"`
	IsPublished      bool      `db:"is_published"`
	GenerationStatus string    `db:"generation_status"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func toActivityRow(a course.Activity) activityRow {
	content := string(a.Content)
	if content == "" {
		content = "null"
	}
	return activityRow{
		ID:               a.ID,
		LessonID:         a.LessonID,
		OrgID:            a.OrgID,
		Kind:             a.Kind,
		Title:            a.Title,
		Position:         a.Position,
		Content:          content,
		IsPublished:      a.IsPublished,
		GenerationStatus: a.GenerationStatus,
		CreatedAt:        a.CreatedAt.UTC(),
		UpdatedAt:        a.UpdatedAt.UTC(),
	}
}

func (r activityRow) activity() course.Activity {
	return course.Activity{
		ID:               r.ID,
		LessonID:         r.LessonID,
		OrgID:            r.OrgID,
		Kind:             r.Kind,
		Title:            r.Title,
		Position:         r.Position,
		Content:          json.RawMessage(r.Content),
		IsPublished:      r.IsPublished,
		GenerationStatus: r.GenerationStatus,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *sqlx.DB) course.Repository {
	return &courseRepository{db: db}
}

// writeErr maps constraint violations of course content writes.
func writeErr(err error, parentNotFound error, action string) error {
	switch {
	case isUniqueViolation(err):
		return errors.Wrap(core.ErrConflict, "slug already taken")
	case isForeignKeyViolation(err):
		return parentNotFound
	}
	return errors.Wrap(err, action)
}

func (repo *courseRepository) exists(ctx context.Context, q string, args ...interface{}) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `SELECT EXISTS (`+q+`)`, args...)
	return exists, errors.Wrap(err, "checking slug")
}

// setPositions sets the position of each row of `table` to its index in ids.
func (repo *courseRepository) setPositions(ctx context.Context, table, parentCol, parentID string, ids []string) error {
	q := `UPDATE ` + table + ` t SET position = o.pos - 1
		FROM unnest($1::text[]) WITH ORDINALITY AS o(id, pos)
		WHERE t.id::text = o.id AND t.` + parentCol + `::text = $2`
	_, err := repo.db.ExecContext(ctx, q, pq.Array(ids), parentID)
	return errors.Wrapf(err, "setting %s positions", table)
}

func (repo *courseRepository) setStatus(ctx context.Context, table, id, status string, nfErr error) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE `+table+` SET generation_status = $1 WHERE id::text = $2`, status, id)
	if err != nil {
		return errors.Wrapf(err, "setting %s status", table)
	}
	return affected(res, nfErr)
}

func (repo *courseRepository) delete(ctx context.Context, table, id string, nfErr error) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id::text = $1`, id)
	if err != nil {
		return errors.Wrapf(err, "deleting %s", table)
	}
	return affected(res, nfErr)
}

// Courses

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	q := `INSERT INTO course (` + courseColumns + `)
		VALUES (:id, :org_id, :title, :slug, :description, :language, :is_published, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, c); err != nil {
		return course.Course{}, writeErr(err, core.ErrNotFound, "inserting course")
	}
	return c, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, filter course.CourseFilter) (course.Course, error) {
	cond, arg := "id::text = $1", filter.ID
	if filter.ID == "" {
		cond, arg = "slug = $1", filter.Slug
	}
	args := []interface{}{arg}
	if filter.OrgID != "" {
		cond += " AND org_id::text = $2"
		args = append(args, filter.OrgID)
	}

	var c course.Course
	if err := repo.db.GetContext(ctx, &c, `SELECT `+courseColumns+` FROM course WHERE `+cond+` LIMIT 1`, args...); err != nil {
		return course.Course{}, notFound(err, course.ErrCourseNotFound)
	}
	return c, nil
}

func (repo *courseRepository) QueryCourses(ctx context.Context, orgID string, publishedOnly bool) ([]course.Course, error) {
	q := `SELECT ` + courseColumns + ` FROM course WHERE org_id::text = $1 AND (is_published OR NOT $2) ORDER BY created_at DESC`
	courses := make([]course.Course, 0)
	if err := repo.db.SelectContext(ctx, &courses, q, orgID, publishedOnly); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	return courses, nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	q := `UPDATE course SET title = :title, slug = :slug, description = :description, language = :language,
		is_published = :is_published, updated_at = :updated_at WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, c)
	if err != nil {
		return course.Course{}, writeErr(err, course.ErrCourseNotFound, "updating course")
	}
	if err = affected(res, course.ErrCourseNotFound); err != nil {
		return course.Course{}, err
	}
	return c, nil
}

func (repo *courseRepository) DeleteCourse(ctx context.Context, id string) error {
	return repo.delete(ctx, "course", id, course.ErrCourseNotFound)
}

func (repo *courseRepository) CourseSlugExists(ctx context.Context, orgID, slug, excludeID string) (bool, error) {
	return repo.exists(ctx, `SELECT 1 FROM course WHERE org_id::text = $1 AND slug = $2 AND id::text <> $3`, orgID, slug, excludeID)
}

// Chapters

func (repo *courseRepository) CreateChapter(ctx context.Context, ch course.Chapter) (course.Chapter, error) {
	q := `INSERT INTO chapter (` + chapterColumns + `)
		VALUES (:id, :course_id, :org_id, :title, :slug, :description, :position, :is_published,
			:generation_status, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, ch); err != nil {
		return course.Chapter{}, writeErr(err, course.ErrCourseNotFound, "inserting chapter")
	}
	return ch, nil
}

func (repo *courseRepository) GetChapter(ctx context.Context, id string) (course.Chapter, error) {
	var ch course.Chapter
	if err := repo.db.GetContext(ctx, &ch, `SELECT `+chapterColumns+` FROM chapter WHERE id::text = $1`, id); err != nil {
		return course.Chapter{}, notFound(err, course.ErrChapterNotFound)
	}
	return ch, nil
}

func (repo *courseRepository) QueryChapters(ctx context.Context, courseID string) ([]course.Chapter, error) {
	chapters := make([]course.Chapter, 0)
	q := `SELECT ` + chapterColumns + ` FROM chapter WHERE course_id::text = $1 ORDER BY position, created_at`
	if err := repo.db.SelectContext(ctx, &chapters, q, courseID); err != nil {
		return nil, errors.Wrap(err, "querying chapters")
	}
	return chapters, nil
}

func (repo *courseRepository) UpdateChapter(ctx context.Context, ch course.Chapter) (course.Chapter, error) {
	q := `UPDATE chapter SET title = :title, slug = :slug, description = :description, position = :position,
		is_published = :is_published, generation_status = :generation_status, updated_at = :updated_at WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, ch)
	if err != nil {
		return course.Chapter{}, writeErr(err, course.ErrChapterNotFound, "updating chapter")
	}
	if err = affected(res, course.ErrChapterNotFound); err != nil {
		return course.Chapter{}, err
	}
	return ch, nil
}

func (repo *courseRepository) DeleteChapter(ctx context.Context, id string) error {
	return repo.delete(ctx, "chapter", id, course.ErrChapterNotFound)
}

func (repo *courseRepository) ChapterSlugExists(ctx context.Context, courseID, slug, excludeID string) (bool, error) {
	return repo.exists(ctx, `SELECT 1 FROM chapter WHERE course_id::text = $1 AND slug = $2 AND id::text <> $3`, courseID, slug, excludeID)
}

func (repo *courseRepository) SetChapterPositions(ctx context.Context, courseID string, ids []string) error {
	return repo.setPositions(ctx, "chapter", "course_id", courseID, ids)
}

func (repo *courseRepository) SetChapterStatus(ctx context.Context, id, status string) error {
	return repo.setStatus(ctx, "chapter", id, status, course.ErrChapterNotFound)
}

// Lessons

func (repo *courseRepository) CreateLesson(ctx context.Context, l course.Lesson) (course.Lesson, error) {
	if _, err := repo.db.NamedExecContext(ctx, insertLesson, l); err != nil {
		return course.Lesson{}, writeErr(err, course.ErrChapterNotFound, "inserting lesson")
	}
	return l, nil
}

func (repo *courseRepository) GetLesson(ctx context.Context, id string) (course.Lesson, error) {
	var l course.Lesson
	if err := repo.db.GetContext(ctx, &l, `SELECT `+lessonColumns+` FROM lesson WHERE id::text = $1`, id); err != nil {
		return course.Lesson{}, notFound(err, course.ErrLessonNotFound)
	}
	return l, nil
}

func (repo *courseRepository) QueryLessons(ctx context.Context, chapterID string) ([]course.Lesson, error) {
	lessons := make([]course.Lesson, 0)
	q := `SELECT ` + lessonColumns + ` FROM lesson WHERE chapter_id::text = $1 ORDER BY position, created_at`
	if err := repo.db.SelectContext(ctx, &lessons, q, chapterID); err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	return lessons, nil
}

func (repo *courseRepository) UpdateLesson(ctx context.Context, l course.Lesson) (course.Lesson, error) {
	q := `UPDATE lesson SET title = :title, slug = :slug, description = :description, kind = :kind, position = :position,
		is_published = :is_published, generation_status = :generation_status, updated_at = :updated_at WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, l)
	if err != nil {
		return course.Lesson{}, writeErr(err, course.ErrLessonNotFound, "updating lesson")
	}
	if err = affected(res, course.ErrLessonNotFound); err != nil {
		return course.Lesson{}, err
	}
	return l, nil
}

func (repo *courseRepository) DeleteLesson(ctx context.Context, id string) error {
	return repo.delete(ctx, "lesson", id, course.ErrLessonNotFound)
}

func (repo *courseRepository) LessonSlugExists(ctx context.Context, chapterID, slug, excludeID string) (bool, error) {
	return repo.exists(ctx, `SELECT 1 FROM lesson WHERE chapter_id::text = $1 AND slug = $2 AND id::text <> $3`, chapterID, slug, excludeID)
}

func (repo *courseRepository) SetLessonPositions(ctx context.Context, chapterID string, ids []string) error {
	return repo.setPositions(ctx, "lesson", "chapter_id", chapterID, ids)
}

func (repo *courseRepository) SetLessonStatus(ctx context.Context, id, status string) error {
	return repo.setStatus(ctx, "lesson", id, status, course.ErrLessonNotFound)
}

func (repo *courseRepository) ReplaceLessons(ctx context.Context, chapterID string, lessons []course.Lesson) ([]course.Lesson, error) {
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var found bool
		if err := tx.GetContext(ctx, &found, `SELECT EXISTS (SELECT 1 FROM chapter WHERE id::text = $1)`, chapterID); err != nil {
			return errors.Wrap(err, "checking chapter")
		}
		if !found {
			return course.ErrChapterNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM lesson WHERE chapter_id::text = $1`, chapterID); err != nil {
			return errors.Wrap(err, "deleting lessons")
		}
		for _, l := range lessons {
			if _, err := tx.NamedExecContext(ctx, insertLesson, l); err != nil {
				return writeErr(err, course.ErrChapterNotFound, "inserting lesson")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lessons, nil
}

// Activities

func (repo *courseRepository) CreateActivity(ctx context.Context, a course.Activity) (course.Activity, error) {
	if _, err := repo.db.NamedExecContext(ctx, insertActivity, toActivityRow(a)); err != nil {
		return course.Activity{}, writeErr(err, course.ErrLessonNotFound, "inserting activity")
	}
	return a, nil
}

func (repo *courseRepository) GetActivity(ctx context.Context, id string) (course.Activity, error) {
	var row activityRow
	if err := repo.db.GetContext(ctx, &row, activitySelect+` WHERE id::text = $1`, id); err != nil {
		return course.Activity{}, notFound(err, course.ErrActivityNotFound)
	}
	return row.activity(), nil
}

func (repo *courseRepository) QueryActivities(ctx context.Context, lessonID string) ([]course.Activity, error) {
	var rows []activityRow
	if err := repo.db.SelectContext(ctx, &rows, activitySelect+` WHERE lesson_id::text = $1 ORDER BY position, created_at`, lessonID); err != nil {
		return nil, errors.Wrap(err, "querying activities")
	}
	acts := make([]course.Activity, 0, len(rows))
	for _, r := range rows {
		acts = append(acts, r.activity())
	}
	return acts, nil
}

func (repo *courseRepository) UpdateActivity(ctx context.Context, a course.Activity) (course.Activity, error) {
	q := `UPDATE activity SET title = :title, position = :position, content = CAST(:content AS jsonb),
		is_published = :is_published, generation_status = :generation_status, updated_at = :updated_at WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, toActivityRow(a))
	if err != nil {
		return course.Activity{}, errors.Wrap(err, "updating activity")
	}
	if err = affected(res, course.ErrActivityNotFound); err != nil {
		return course.Activity{}, err
	}
	return a, nil
}

func (repo *courseRepository) DeleteActivity(ctx context.Context, id string) error {
	return repo.delete(ctx, "activity", id, course.ErrActivityNotFound)
}

func (repo *courseRepository) SetActivityPositions(ctx context.Context, lessonID string, ids []string) error {
	return repo.setPositions(ctx, "activity", "lesson_id", lessonID, ids)
}

func (repo *courseRepository) SetActivityStatus(ctx context.Context, ids []string, status string) error {
	_, err := repo.db.ExecContext(ctx, `UPDATE activity SET generation_status = $1 WHERE id::text = ANY($2)`, status, pq.Array(ids))
	return errors.Wrap(err, "setting activity status")
}

func (repo *courseRepository) ReplaceActivities(ctx context.Context, lessonID string, acts []course.Activity) ([]course.Activity, error) {
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var found bool
		if err := tx.GetContext(ctx, &found, `SELECT EXISTS (SELECT 1 FROM lesson WHERE id::text = $1)`, lessonID); err != nil {
			return errors.Wrap(err, "checking lesson")
		}
		if !found {
			return course.ErrLessonNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM activity WHERE lesson_id::text = $1`, lessonID); err != nil {
			return errors.Wrap(err, "deleting activities")
		}
		for _, a := range acts {
			if _, err := tx.NamedExecContext(ctx, insertActivity, toActivityRow(a)); err != nil {
				return writeErr(err, course.ErrLessonNotFound, "inserting activity")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acts, nil
}
