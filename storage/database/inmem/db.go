package inmemdb

import (
	"sync"

	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/org"
	"github.com/trezcool/darasa/core/progress"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/core/workflow"
)

// DB is an in-memory database, used in tests & in DEV without Postgres.
// Tables are locked independently. Members lookups nest the user table lock in the org one, never the reverse.
type (
	DB struct {
		user     *userTable
		org      *orgTable
		course   *courseTable
		workflow *workflowTable
		progress *progressTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	orgTable struct {
		sync.RWMutex
		orgs    map[string]*org.Organization
		members map[string]map[string]*org.Member // {orgID: {userID: member}}
	}

	courseTable struct {
		sync.RWMutex
		courses    map[string]*course.Course
		chapters   map[string]*course.Chapter
		lessons    map[string]*course.Lesson
		activities map[string]*course.Activity
	}

	workflowTable struct {
		sync.RWMutex
		runs map[string]*workflow.Run
	}

	progressKey struct {
		userID string
		key    string // activityID | date
	}

	progressTable struct {
		sync.RWMutex
		activities map[progressKey]*progress.ActivityProgress
		daily      map[progressKey]*progress.DailyProgress
	}
)

func Open() *DB {
	return &DB{
		user: &userTable{table: make(map[string]*user.User)},
		org: &orgTable{
			orgs:    make(map[string]*org.Organization),
			members: make(map[string]map[string]*org.Member),
		},
		course: &courseTable{
			courses:    make(map[string]*course.Course),
			chapters:   make(map[string]*course.Chapter),
			lessons:    make(map[string]*course.Lesson),
			activities: make(map[string]*course.Activity),
		},
		workflow: &workflowTable{runs: make(map[string]*workflow.Run)},
		progress: &progressTable{
			activities: make(map[progressKey]*progress.ActivityProgress),
			daily:      make(map[progressKey]*progress.DailyProgress),
		},
	}
}

// Reset empties every table.
func (db *DB) Reset() {
	fresh := Open()
	db.user.Lock()
	db.user.table = fresh.user.table
	db.user.Unlock()

	db.org.Lock()
	db.org.orgs, db.org.members = fresh.org.orgs, fresh.org.members
	db.org.Unlock()

	db.course.Lock()
	db.course.courses, db.course.chapters = fresh.course.courses, fresh.course.chapters
	db.course.lessons, db.course.activities = fresh.course.lessons, fresh.course.activities
	db.course.Unlock()

	db.workflow.Lock()
	db.workflow.runs = fresh.workflow.runs
	db.workflow.Unlock()

	db.progress.Lock()
	db.progress.activities, db.progress.daily = fresh.progress.activities, fresh.progress.daily
	db.progress.Unlock()
}
