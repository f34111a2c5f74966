package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/eval"
	"github.com/trezcool/darasa/core/generate"
	logsvc "github.com/trezcool/darasa/services/logger"
)

const casesYAML = `cases:
  - id: greetings-kind
    task: lesson_kind
    input:
      course: Lingala for beginners
      chapter: Greetings
      lesson: Mbote!
    expectations:
      - the lesson is classified as "language"
  - id: greetings-outline
    task: outline_lessons
    input:
      course: Lingala for beginners
      chapter: Greetings
`

type fakeModel struct {
	name  string
	calls int32
}

func (m *fakeModel) Name() string { return m.name }

func (m *fakeModel) Generate(_ context.Context, req generate.Request) (string, error) {
	atomic.AddInt32(&m.calls, 1)
	switch req.Task {
	case eval.TaskJudge:
		return `{"score": 8, "reasoning": "fine"}`, nil
	case generate.TaskLessonKind:
		return `{"kind": "language"}`, nil
	default:
		return `{"lessons": [{"title": "Mbote", "kind": "language"}]}`, nil
	}
}

type fixture struct {
	a      *app
	out    *bytes.Buffer
	models map[string]*fakeModel
	cases  string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cases := filepath.Join(dir, "cases.yaml")
	require.NoError(t, os.WriteFile(cases, []byte(casesYAML), 0o644))

	conf := core.NewTestConfig()
	conf.LLM.Model = "fake:gen"
	conf.LLM.JudgeModel = "fake:judge"

	f := &fixture{out: new(bytes.Buffer), models: map[string]*fakeModel{}, cases: cases}
	f.a = &app{conf: conf, logger: logsvc.NewZapLogger(zap.NewNop()), out: f.out}

	origNewModel := newModelFunc
	t.Cleanup(func() { newModelFunc = origNewModel })
	newModelFunc = func(_ context.Context, _ core.LLMConfig, name string) (generate.Model, error) {
		m, ok := f.models[name]
		if !ok {
			m = &fakeModel{name: name}
			f.models[name] = m
		}
		return m, nil
	}
	return f
}

func (f *fixture) run(t *testing.T, args ...string) error {
	t.Helper()
	f.out.Reset()
	return run(context.Background(), f.a, append(args, "--cache-dir", filepath.Join(filepath.Dir(f.cases), "cache")))
}

func TestRunCmd(t *testing.T) {
	f := setup(t)

	require.NoError(t, f.run(t, "run", "--cases", f.cases, "--json"))
	var rep eval.Report
	require.NoError(t, json.Unmarshal(f.out.Bytes(), &rep))
	assert.Equal(t, "fake:gen", rep.Model)
	require.Len(t, rep.Results, 2)
	assert.Equal(t, 8.0, rep.Average)
	assert.Zero(t, rep.Failed)
	assert.Zero(t, rep.Cached)
	assert.EqualValues(t, 2, f.models["fake:gen"].calls)
	assert.EqualValues(t, 2, f.models["fake:judge"].calls)

	// cached cases are not evaluated again
	require.NoError(t, f.run(t, "run", "--cases", f.cases, "--task", generate.TaskLessonKind))
	assert.EqualValues(t, 2, f.models["fake:gen"].calls)
	assert.Contains(t, f.out.String(), "greetings-kind")
	assert.Contains(t, f.out.String(), "8/10")
	assert.NotContains(t, f.out.String(), "greetings-outline")

	// another model has its own cache
	require.NoError(t, f.run(t, "run", "--cases", f.cases, "--model", "fake:other", "--json"))
	assert.EqualValues(t, 2, f.models["fake:other"].calls)

	// so does another judge
	require.NoError(t, f.run(t, "run", "--cases", f.cases, "--judge-model", "fake:strict", "--json"))
	require.NoError(t, json.Unmarshal(f.out.Bytes(), &rep))
	assert.Zero(t, rep.Cached)
	assert.EqualValues(t, 4, f.models["fake:gen"].calls)
	assert.EqualValues(t, 2, f.models["fake:strict"].calls)

	t.Run("errors", func(t *testing.T) {
		assert.Error(t, f.run(t, "run"), "--cases is required")
		err := f.run(t, "run", "--cases", f.cases, "--task", "lol")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown task "lol"`)
		err = f.run(t, "run", "--cases", f.cases, "--task", generate.TaskWriteActivity)
		require.Error(t, err)
		assert.Equal(t, "no cases to evaluate", err.Error())
	})
}

func TestReportCmd(t *testing.T) {
	f := setup(t)

	require.NoError(t, f.run(t, "report", "--json"))
	var rep eval.Report
	require.NoError(t, json.Unmarshal(f.out.Bytes(), &rep))
	assert.Empty(t, rep.Results, "nothing cached yet")

	require.NoError(t, f.run(t, "run", "--cases", f.cases))
	require.NoError(t, f.run(t, "report", "--task", generate.TaskOutlineLessons, "--json"))
	require.NoError(t, json.Unmarshal(f.out.Bytes(), &rep))
	require.Len(t, rep.Results, 1)
	assert.Equal(t, "greetings-outline", rep.Results[0].CaseID)
	assert.Equal(t, 1, rep.Cached)

	require.NoError(t, f.run(t, "report", "--judge-model", "fake:strict", "--json"))
	rep = eval.Report{}
	require.NoError(t, json.Unmarshal(f.out.Bytes(), &rep))
	assert.Empty(t, rep.Results, "nothing graded by this judge")
}

func TestTasksCmd(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.run(t, "tasks"))
	for _, task := range eval.Tasks() {
		assert.Contains(t, f.out.String(), task.Name)
	}
}
