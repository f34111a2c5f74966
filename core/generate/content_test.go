package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core/course"
)

func reply(out string) Model {
	return ModelFunc(func(context.Context, Request) (string, error) { return out, nil })
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"  {\"a\":1}\n", `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}```", `{"a":1}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripFences(tt.in), tt.in)
	}
}

func TestGenerateJSON(t *testing.T) {
	ctx := context.Background()

	var got Request
	m := ModelFunc(func(_ context.Context, req Request) (string, error) {
		got = req
		return "```json\n{\"kind\": \"core\"}\n```", nil
	})
	var out struct{ Kind string }
	require.NoError(t, GenerateJSON(ctx, m, Request{Task: "t"}, &out))
	assert.True(t, got.JSON)
	assert.Equal(t, "core", out.Kind)

	err := GenerateJSON(ctx, reply("not json"), Request{Task: "t"}, &out)
	assert.Equal(t, ErrBadOutput, errors.Cause(err))

	boom := errors.New("boom")
	err = GenerateJSON(ctx, ModelFunc(func(context.Context, Request) (string, error) { return "", boom }), Request{Task: "t"}, &out)
	assert.Equal(t, boom, errors.Cause(err))
}

func TestOutlineLessons(t *testing.T) {
	ctx := context.Background()
	cc := ChapterContext{Course: "Lingala", Language: "ln", Chapter: "Basics"}

	var prompt string
	m := ModelFunc(func(_ context.Context, req Request) (string, error) {
		prompt = req.Prompt
		assert.Equal(t, TaskOutlineLessons, req.Task)
		var lessons []string
		for i := 0; i < 10; i++ {
			kind := "language"
			if i == 0 {
				kind = "nonsense"
			}
			lessons = append(lessons, fmt.Sprintf(`{"title": "L%d", "kind": %q}`, i, kind))
		}
		lessons = append([]string{`{"title": ""}`}, lessons...)
		return `{"lessons": [` + strings.Join(lessons, ",") + `]}`, nil
	})

	lessons, err := OutlineLessons(ctx, m, cc)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Chapter: Basics")
	assert.Len(t, lessons, maxLessons)
	assert.Equal(t, "L0", lessons[0].Title, "untitled lessons are skipped")
	assert.Equal(t, course.LessonCore, lessons[0].Kind)
	assert.Equal(t, course.LessonLanguage, lessons[1].Kind)

	_, err = OutlineLessons(ctx, reply(`{"lessons": []}`), cc)
	assert.Equal(t, ErrBadOutput, errors.Cause(err))
}

func TestDetermineLessonKind(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name, out, current, want string
	}{
		{"model wins", `{"kind": "language"}`, course.LessonCustom, course.LessonLanguage},
		{"keeps current", `{"kind": "poetry"}`, course.LessonCustom, course.LessonCustom},
		{"defaults to core", `{"kind": "poetry"}`, "", course.LessonCore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, err := DetermineLessonKind(ctx, reply(tt.out), LessonContext{Lesson: "Greetings", Kind: tt.current})
			require.NoError(t, err)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestPlanActivities(t *testing.T) {
	ctx := context.Background()
	lc := LessonContext{Lesson: "Greetings"}

	plans, err := PlanActivities(ctx, reply(`{"activities": [
		{"kind": "explanation", "title": "Hello", "goal": "say hello"},
		{"kind": "video", "title": "Watch"},
		{"kind": "quiz", "title": "Check"}
	]}`), lc)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, ActivityPlan{Kind: "explanation", Title: "Hello", Goal: "say hello"}, plans[0])
	assert.Equal(t, course.ActivityQuiz, plans[1].Kind)

	_, err = PlanActivities(ctx, reply(`{"activities": [{"kind": "video"}]}`), lc)
	assert.Equal(t, ErrBadOutput, errors.Cause(err))
}

func TestWriteActivity(t *testing.T) {
	ctx := context.Background()
	lc := LessonContext{Lesson: "Greetings", Kind: course.LessonLanguage}
	quiz := ActivityPlan{Kind: course.ActivityQuiz, Title: "Check"}

	var prompt string
	m := ModelFunc(func(_ context.Context, req Request) (string, error) {
		prompt = req.Prompt
		return `{"questions": [{"question": "Mbote means?", "choices": ["hello", "bye"], "answer": 0}]}`, nil
	})
	content, err := WriteActivity(ctx, m, lc, quiz, []string{"mbote: hello"})
	require.NoError(t, err)
	assert.Contains(t, prompt, "- mbote: hello")
	assert.Contains(t, prompt, `"questions"`)
	assert.True(t, json.Valid(content))

	bad := []string{
		`{"questions": []}`,
		`{"questions": [{"question": "?", "choices": ["a"], "answer": 0}]}`,
		`{"questions": [{"question": "?", "choices": ["a", "b"], "answer": 2}]}`,
		`{"questions": [{"question": "", "choices": ["a", "b"], "answer": 1}]}`,
	}
	for _, out := range bad {
		_, err = WriteActivity(ctx, reply(out), lc, quiz, nil)
		assert.Equal(t, ErrBadOutput, errors.Cause(err), out)
	}

	explanation := ActivityPlan{Kind: course.ActivityExplanation, Title: "Hello"}
	_, err = WriteActivity(ctx, reply(`{}`), lc, explanation, nil)
	assert.Equal(t, ErrBadOutput, errors.Cause(err))
	_, err = WriteActivity(ctx, reply(`["body"]`), lc, explanation, nil)
	assert.Equal(t, ErrBadOutput, errors.Cause(err))
	content, err = WriteActivity(ctx, reply(`{"body": "mbote"}`), lc, explanation, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"body": "mbote"}`, string(content))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, `{"a":1}`, Excerpt(json.RawMessage(`{"a":1}`)))

	long := json.RawMessage(`"` + strings.Repeat("é", maxMaterialLen+10) + `"`)
	ex := Excerpt(long)
	assert.True(t, strings.HasSuffix(ex, "..."))
	assert.Len(t, []rune(ex), maxMaterialLen+3)
}
