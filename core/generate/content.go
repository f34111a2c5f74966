package generate

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/course"
)

// Tasks
const (
	TaskOutlineLessons = "outline_lessons"
	TaskLessonKind     = "lesson_kind"
	TaskPlanActivities = "plan_activities"
	TaskWriteActivity  = "write_activity"
)

const (
	minLessons = 3
	maxLessons = 8
	// material excerpts fed to later activities are truncated to this many runes
	maxMaterialLen = 600
)

// LessonContext locates a lesson in its course, for prompting.
type LessonContext struct {
	Course      string `json:"course"`
	Language    string `json:"language"`
	Chapter     string `json:"chapter"`
	Lesson      string `json:"lesson"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
}

// ChapterContext locates a chapter in its course, for prompting.
type ChapterContext struct {
	Course      string `json:"course"`
	Language    string `json:"language"`
	Chapter     string `json:"chapter"`
	Description string `json:"description"`
}

type LessonOutline struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
}

type ActivityPlan struct {
	Kind  string `json:"kind"`
	Title string `json:"title"`
	Goal  string `json:"goal"`
}

func isOneOf(s string, values []string) bool {
	for _, v := range values {
		if s == v {
			return true
		}
	}
	return false
}

// OutlineLessons splits a chapter into lessons.
func OutlineLessons(ctx context.Context, m Model, cc ChapterContext) ([]LessonOutline, error) {
	prompt, err := render(TaskOutlineLessons, struct {
		ChapterContext
		MinLessons, MaxLessons int
	}{cc, minLessons, maxLessons})
	if err != nil {
		return nil, errors.Wrap(err, "rendering prompt")
	}

	var out struct {
		Lessons []LessonOutline `json:"lessons"`
	}
	req := Request{Task: TaskOutlineLessons, System: systemPrompt, Prompt: prompt, Temperature: .7}
	if err = GenerateJSON(ctx, m, req, &out); err != nil {
		return nil, err
	}

	lessons := make([]LessonOutline, 0, len(out.Lessons))
	for _, l := range out.Lessons {
		if l.Title == "" {
			continue
		}
		if !isOneOf(l.Kind, course.AllLessonKinds) {
			l.Kind = course.LessonCore
		}
		lessons = append(lessons, l)
		if len(lessons) == maxLessons {
			break
		}
	}
	if len(lessons) == 0 {
		return nil, errors.Wrap(ErrBadOutput, "no lessons outlined")
	}
	return lessons, nil
}

// DetermineLessonKind classifies a lesson. Unknown kinds fall back to `lc.Kind`, then to core.
func DetermineLessonKind(ctx context.Context, m Model, lc LessonContext) (string, error) {
	prompt, err := render(TaskLessonKind, lc)
	if err != nil {
		return "", errors.Wrap(err, "rendering prompt")
	}
	var out struct {
		Kind string `json:"kind"`
	}
	if err = GenerateJSON(ctx, m, Request{Task: TaskLessonKind, System: systemPrompt, Prompt: prompt}, &out); err != nil {
		return "", err
	}
	switch {
	case isOneOf(out.Kind, course.AllLessonKinds):
		return out.Kind, nil
	case isOneOf(lc.Kind, course.AllLessonKinds):
		return lc.Kind, nil
	default:
		return course.LessonCore, nil
	}
}

// PlanActivities lists the activities of a lesson. Activities of unknown kinds are dropped.
func PlanActivities(ctx context.Context, m Model, lc LessonContext) ([]ActivityPlan, error) {
	prompt, err := render(TaskPlanActivities, lc)
	if err != nil {
		return nil, errors.Wrap(err, "rendering prompt")
	}
	var out struct {
		Activities []ActivityPlan `json:"activities"`
	}
	req := Request{Task: TaskPlanActivities, System: systemPrompt, Prompt: prompt, Temperature: .5}
	if err = GenerateJSON(ctx, m, req, &out); err != nil {
		return nil, err
	}

	plans := make([]ActivityPlan, 0, len(out.Activities))
	for _, p := range out.Activities {
		if isOneOf(p.Kind, course.AllActivityKinds) {
			plans = append(plans, p)
		}
	}
	if len(plans) == 0 {
		return nil, errors.Wrap(ErrBadOutput, "no activities planned")
	}
	return plans, nil
}

type quizContent struct {
	Questions []struct {
		Question string   `json:"question"`
		Choices  []string `json:"choices"`
		Answer   int      `json:"answer"`
	} `json:"questions"`
}

func validateContent(kind string, raw json.RawMessage) error {
	if kind != course.ActivityQuiz {
		var obj map[string]interface{}
		if err := json.Unmarshal(raw, &obj); err != nil || len(obj) == 0 {
			return errors.Wrapf(ErrBadOutput, "%s content must be a non-empty object", kind)
		}
		return nil
	}

	var quiz quizContent
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return errors.Wrapf(ErrBadOutput, "quiz: %v", err)
	}
	if len(quiz.Questions) == 0 {
		return errors.Wrap(ErrBadOutput, "quiz has no questions")
	}
	for i, q := range quiz.Questions {
		if q.Question == "" || len(q.Choices) < 2 || q.Answer < 0 || q.Answer >= len(q.Choices) {
			return errors.Wrapf(ErrBadOutput, "quiz question %d is invalid", i)
		}
	}
	return nil
}

// WriteActivity writes the content of a planned activity.
// `material` lists excerpts of the activities already written for the lesson, quizzes & reviews build on them.
func WriteActivity(ctx context.Context, m Model, lc LessonContext, plan ActivityPlan, material []string) (json.RawMessage, error) {
	prompt, err := render(TaskWriteActivity, struct {
		LessonContext
		Activity ActivityPlan
		Material []string
	}{lc, plan, material})
	if err != nil {
		return nil, errors.Wrap(err, "rendering prompt")
	}

	var raw json.RawMessage
	req := Request{Task: TaskWriteActivity, System: systemPrompt, Prompt: prompt, Temperature: .7}
	if err = GenerateJSON(ctx, m, req, &raw); err != nil {
		return nil, err
	}
	if err = validateContent(plan.Kind, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Excerpt shortens activity content into prompt material.
func Excerpt(raw json.RawMessage) string {
	r := []rune(string(raw))
	if len(r) > maxMaterialLen {
		return string(r[:maxMaterialLen]) + "..."
	}
	return string(r)
}
