package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/workflow"
)

// Workflow kinds
const (
	KindChapterLessons   = "chapter_lessons"
	KindLessonPlan       = "lesson_plan"
	KindLessonActivities = "lesson_activities"
)

// Deps are the dependencies of the generation pipelines.
type Deps struct {
	Courses     course.Service
	Model       Model
	Logger      core.Logger
	MaxParallel int // activities generated concurrently per step
}

// Register registers every generation pipeline on the runner.
func Register(r *workflow.Runner, d Deps) error {
	for _, p := range []workflow.Pipeline{ChapterPipeline(d), LessonPipeline(d), ActivitiesPipeline(d)} {
		if err := r.Register(p); err != nil {
			return err
		}
	}
	return nil
}

func (d Deps) parallelism() int {
	if d.MaxParallel <= 0 {
		return 1
	}
	return d.MaxParallel
}

func (d Deps) logFailure(kind, entityID string, err error) {
	if err != nil {
		d.Logger.Error(fmt.Sprintf("generate: marking %s %s as failed: %v", kind, entityID, err), err)
	}
}

// Chapter: outline the lessons of a chapter.

type chapterInput struct {
	Chapter course.Chapter `json:"chapter"`
	Context ChapterContext `json:"context"`
}

func ChapterPipeline(d Deps) workflow.Pipeline {
	input := func(st *workflow.State) (chapterInput, error) {
		var in chapterInput
		err := st.Output("getChapter", &in)
		return in, err
	}

	return workflow.Pipeline{
		Kind: KindChapterLessons,
		Steps: []workflow.Step{
			{Name: "getChapter", Run: func(ctx context.Context, st *workflow.State) (interface{}, error) {
				ch, err := d.Courses.GetChapter(ctx, st.OrgID, st.EntityID)
				if err != nil {
					return nil, err
				}
				c, err := d.Courses.GetCourse(ctx, st.OrgID, ch.CourseID)
				if err != nil {
					return nil, err
				}
				return chapterInput{Chapter: ch, Context: ChapterContext{
					Course:      c.Title,
					Language:    c.Language,
					Chapter:     ch.Title,
					Description: ch.Description,
				}}, nil
			}},
			{Name: "setChapterAsRunning", Run: func(ctx context.Context, st *workflow.State) (interface{}, error) {
				in, err := input(st)
				if err != nil {
					return nil, err
				}
				return nil, d.Courses.SetChapterStatus(ctx, in.Chapter, course.StatusRunning)
			}},
			{Name: "generateLessons", Run: func(ctx context.Context, st *workflow.State) (interface{}, error) {
				in, err := input(st)
				if err != nil {
					return nil, err
				}
				return OutlineLessons(ctx, d.Model, in.Context)
			}},
			{Name: "removeExistingLessons", Run: func(ctx context.Context, st *workflow.State) (interface{}, error) {
				in, err := input(st)
				if err != nil {
					return nil, err
				}
				lessons, err := d.Courses.ListLessons(ctx, in.Chapter.ID)
				if err != nil {
					return nil, err
				}
				for _, l := range lessons {
					if err = d.Courses.DeleteLesson(ctx, l); err != nil && !core.IsNotFound(err) {
						return nil, errors.Wrapf(err, "deleting lesson %s", l.ID)
					}
				}
				return len(lessons), nil
			}},
			{Name: "addLessons", Run: func(ctx context.Context, st *workflow.State) (interface{}, error) {
				in, err := input(st)
				if err != nil {
					return nil, err
				}
				var outlines []LessonOutline
				if err = st.Output("generateLessons", &outlines); err != nil {
					return nil, err
				}
				nls := make([]course.NewLesson, 0, len(outlines))
				for _, o := range outlines {
					nls = append(nls, course.NewLesson{Title: o.Title, Description: o.Description, Kind: o.Kind})
				}
				// replacing keeps a resumed step from adding lessons twice
				lessons, err := d.Courses.ReplaceLessons(ctx, in.Chapter, nls)
				if err != nil {
					return nil, err
				}
				ids := make([]string, 0, len(lessons))
				for _, l := range lessons {
					ids = append(ids, l.ID)
				}
				return ids, nil
			}},
			{Name: "setChapterAsCompleted", Run: func(ctx context.Context, st *workflow.State) (interface{}, error) {
				in, err := input(st)
				if err != nil {
					return nil, err
				}
				return nil, d.Courses.SetChapterStatus(ctx, in.Chapter, course.StatusCompleted)
			}},
		},
		Phases: workflow.PhaseConfig{
			Order: []string{"load", "generate", "save", "finish"},
			Steps: map[string][]string{
				"load":     {"getChapter", "setChapterAsRunning"},
				"generate": {"generateLessons"},
				"save":     {"removeExistingLessons", "addLessons"},
				"finish":   {"setChapterAsCompleted"},
			},
			Weights: map[string]float64{"load": 5, "generate": 70, "save": 20, "finish": 5},
		},
		OnFailure: func(ctx context.Context, st *workflow.State, _ error) {
			ch, err := d.Courses.GetChapter(ctx, st.OrgID, st.EntityID)
			if err == nil {
				err = d.Courses.SetChapterStatus(ctx, ch, course.StatusFailed)
			}
			d.logFailure("chapter", st.EntityID, err)
		},
	}
}

// Lesson: plan the activities of a lesson.

type lessonInput struct {
	Lesson  course.Lesson `json:"lesson"`
	Context LessonContext `json:"context"`
}

func (d Deps) loadLesson(ctx context.Context, orgID, id string) (lessonInput, error) {
	l, err := d.Courses.GetLesson(ctx, orgID, id)
	if err != nil {
		return lessonInput{}, err
	}
	ch, err := d.Courses.GetChapter(ctx, orgID, l.ChapterID)
	if err != nil {
		return lessonInput{}, err
	}
	c, err := d.Courses.GetCourse(ctx, orgID, ch.CourseID)
	if err != nil {
		return lessonInput{}, err
	}
	return lessonInput{Lesson: l, Context: LessonContext{
		Course:      c.Title,
		Language:    c.Language,
		Chapter:     ch.Title,
		Lesson:      l.Title,
		Description: l.Description,
		Kind:        l.Kind,
	}}, nil
}

// planContent is the placeholder content of planned activities, until they are written.
type planContent struct {
	Goal string `json:"goal"`
}

func LessonPipeline(d Deps) workflow.Pipeline {
	input := func(st *workflow.State) (lessonInput, error) {
		var in lessonInput
		err := st.Output("getLesson", &in)
		return in, err
	}

	return workflow.Pipeline{
		Kind: KindLessonPlan,
		Steps: []workflow.Step{
			{Name: "getLesson", Run: func(ctx context.Context, st *workflow.State) (interface{}, error) {
				return d.loadLesson(ctx, st.OrgID, st.EntityID)
			}},
			{Name: "setLessonAsRunning", Run: func(ctx context.Context, st *workflow.State) (interface{}, error) {
				in, err := input(st)
				if err != nil {
					return nil, err
				}
				return nil, d.Courses.SetLessonStatus(ctx, in.Lesson, course.StatusRunning)
			}},
			{Name: "determineLessonKind", Run: func(ctx context.Context, st *workflow.State) (interface{}, error) {
				in, err := input(st)
				if err != nil {
					return nil, err
				}
				kind, err := DetermineLessonKind(ctx, d.Model, in.Context)
				if err != nil {
					return nil, err
				}
				if kind != in.Lesson.Kind {
					l, err := d.Courses.GetLesson(ctx, st.OrgID, in.Lesson.ID)
					if err != nil {
						return nil, err
					}
					if _, err = d.Courses.UpdateLesson(ctx, l, course.UpdateLesson{Kind: kind}); err != nil {
						return nil, errors.Wrap(err, "updating lesson kind")
					}
				}
				return kind, nil
			}},
			{Name: "generateActivityPlan", Run: func(ctx context.Context, st *workflow.State) (interface{}, error) {
				in, err := input(st)
				if err != nil {
					return nil, err
				}
				if err = st.Output("determineLessonKind", &in.Context.Kind); err != nil {
					return nil, err
				}
				return PlanActivities(ctx, d.Model, in.Context)
			}},
			{Name: "addActivities", Run: func(ctx context.Context, st *workflow.State) (interface{}, error) {
				in, err := input(st)
				if err != nil {
					return nil, err
				}
				var plans []ActivityPlan
				if err = st.Output("generateActivityPlan", &plans); err != nil {
					return nil, err
				}
				nas := make([]course.NewActivity, 0, len(plans))
				for _, p := range plans {
					content, err := json.Marshal(planContent{Goal: p.Goal})
					if err != nil {
						return nil, err
					}
					nas = append(nas, course.NewActivity{Kind: p.Kind, Title: p.Title, Content: content})
				}
				acts, err := d.Courses.ReplaceActivities(ctx, in.Lesson, nas)
				if err != nil {
					return nil, err
				}
				ids := make([]string, 0, len(acts))
				for _, a := range acts {
					ids = append(ids, a.ID)
				}
				return ids, nil
			}},
			{Name: "setLessonAsCompleted", Run: func(ctx context.Context, st *workflow.State) (interface{}, error) {
				in, err := input(st)
				if err != nil {
					return nil, err
				}
				return nil, d.Courses.SetLessonStatus(ctx, in.Lesson, course.StatusCompleted)
			}},
		},
		Phases: workflow.PhaseConfig{
			Order: []string{"load", "plan", "save", "finish"},
			Steps: map[string][]string{
				"load":   {"getLesson", "setLessonAsRunning"},
				"plan":   {"determineLessonKind", "generateActivityPlan"},
				"save":   {"addActivities"},
				"finish": {"setLessonAsCompleted"},
			},
			Weights: map[string]float64{"load": 5, "plan": 65, "save": 25, "finish": 5},
		},
		OnFailure: func(ctx context.Context, st *workflow.State, _ error) {
			l, err := d.Courses.GetLesson(ctx, st.OrgID, st.EntityID)
			if err == nil {
				err = d.Courses.SetLessonStatus(ctx, l, course.StatusFailed)
			}
			d.logFailure("lesson", st.EntityID, err)
		},
	}
}

// Activities: write the content of the planned activities of a lesson.

type plannedActivity struct {
	ID       string       `json:"id"`
	Position int          `json:"position"`
	Plan     ActivityPlan `json:"plan"`
}

type activitiesInput struct {
	lessonInput
	Activities []plannedActivity `json:"activities"`
}

func (in activitiesInput) ids() []string {
	ids := make([]string, 0, len(in.Activities))
	for _, a := range in.Activities {
		ids = append(ids, a.ID)
	}
	return ids
}

// excerpts maps activity ids to the excerpts of their written content.
type excerpts map[string]string

// writeStep writes, concurrently, the activities of the given kinds.
// Activities written by the `materialSteps` are fed to the model as lesson material.
func (d Deps) writeStep(kinds []string, materialSteps ...string) workflow.StepFunc {
	return func(ctx context.Context, st *workflow.State) (interface{}, error) {
		var in activitiesInput
		if err := st.Output("getLessonActivities", &in); err != nil {
			return nil, err
		}

		var material []string
		if len(materialSteps) > 0 {
			written := make(excerpts)
			for _, step := range materialSteps {
				var ex excerpts
				if err := st.Output(step, &ex); err != nil {
					return nil, err
				}
				for id, e := range ex {
					written[id] = e
				}
			}
			for _, a := range in.Activities { // lesson order
				if e, ok := written[a.ID]; ok {
					material = append(material, e)
				}
			}
		}

		var (
			mu  sync.Mutex
			out = make(excerpts)
		)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(d.parallelism())
		for _, a := range in.Activities {
			if !isOneOf(a.Plan.Kind, kinds) {
				continue
			}
			a := a
			g.Go(func() error {
				content, err := WriteActivity(gctx, d.Model, in.Context, a.Plan, material)
				if err != nil {
					return errors.Wrapf(err, "writing activity %s", a.ID)
				}
				act, err := d.Courses.GetActivity(gctx, st.OrgID, a.ID)
				if err != nil {
					return err
				}
				if _, err = d.Courses.UpdateActivity(gctx, act, course.UpdateActivity{Content: content}); err != nil {
					return errors.Wrapf(err, "saving activity %s", a.ID)
				}
				mu.Lock()
				out[a.ID] = Excerpt(content)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return out, nil
	}
}

func ActivitiesPipeline(d Deps) workflow.Pipeline {
	input := func(st *workflow.State) (activitiesInput, error) {
		var in activitiesInput
		err := st.Output("getLessonActivities", &in)
		return in, err
	}
	setStatus := func(status string) workflow.StepFunc {
		return func(ctx context.Context, st *workflow.State) (interface{}, error) {
			in, err := input(st)
			if err != nil {
				return nil, err
			}
			return nil, d.Courses.SetActivitiesStatus(ctx, in.Lesson, in.ids(), status)
		}
	}
	writers := []string{"generateBackground", "generateExplanation", "generateExamples"}

	return workflow.Pipeline{
		Kind: KindLessonActivities,
		Steps: []workflow.Step{
			{Name: "getLessonActivities", Run: func(ctx context.Context, st *workflow.State) (interface{}, error) {
				li, err := d.loadLesson(ctx, st.OrgID, st.EntityID)
				if err != nil {
					return nil, err
				}
				acts, err := d.Courses.ListActivities(ctx, li.Lesson.ID)
				if err != nil {
					return nil, err
				}
				if len(acts) == 0 {
					return nil, errors.New("the lesson has no activities, plan them first")
				}
				in := activitiesInput{lessonInput: li, Activities: make([]plannedActivity, 0, len(acts))}
				for _, a := range acts {
					var pc planContent
					_ = json.Unmarshal(a.Content, &pc) // written activities have no goal
					in.Activities = append(in.Activities, plannedActivity{
						ID:       a.ID,
						Position: a.Position,
						Plan:     ActivityPlan{Kind: a.Kind, Title: a.Title, Goal: pc.Goal},
					})
				}
				return in, nil
			}},
			{Name: "setActivitiesAsRunning", Run: setStatus(course.StatusRunning)},
			{Name: "generateBackground", Run: d.writeStep([]string{course.ActivityBackground})},
			{Name: "generateExplanation", Run: d.writeStep([]string{course.ActivityExplanation}, "generateBackground")},
			{Name: "generateExamples", Run: d.writeStep([]string{course.ActivityExamples, course.ActivityCustom}, "generateExplanation")},
			{Name: "generateQuiz", Run: d.writeStep([]string{course.ActivityQuiz}, writers...)},
			{Name: "generateReview", Run: d.writeStep([]string{course.ActivityReview}, writers...)},
			{Name: "setActivitiesAsCompleted", Run: setStatus(course.StatusCompleted)},
		},
		Phases: workflow.PhaseConfig{
			Order: []string{"load", "write", "assess", "finish"},
			Steps: map[string][]string{
				"load":   {"getLessonActivities", "setActivitiesAsRunning"},
				"write":  writers,
				"assess": {"generateQuiz", "generateReview"},
				"finish": {"setActivitiesAsCompleted"},
			},
			Weights: map[string]float64{"load": 5, "write": 50, "assess": 35, "finish": 10},
		},
		OnFailure: func(ctx context.Context, st *workflow.State, _ error) {
			l, err := d.Courses.GetLesson(ctx, st.OrgID, st.EntityID)
			if err != nil {
				d.logFailure("activities of lesson", st.EntityID, err)
				return
			}
			acts, err := d.Courses.ListActivities(ctx, l.ID)
			if err != nil {
				d.logFailure("activities of lesson", st.EntityID, err)
				return
			}
			ids := make([]string, 0, len(acts))
			for _, a := range acts {
				ids = append(ids, a.ID)
			}
			d.logFailure("activities of lesson", st.EntityID, d.Courses.SetActivitiesStatus(ctx, l, ids, course.StatusFailed))
		},
	}
}
