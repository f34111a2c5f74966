package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	echoapi "github.com/trezcool/darasa/apps/api/echo"
	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/generate"
	"github.com/trezcool/darasa/core/org"
	"github.com/trezcool/darasa/core/progress"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/core/workflow"
	cachesvc "github.com/trezcool/darasa/services/cache"
	emailsvc "github.com/trezcool/darasa/services/email"
	logsvc "github.com/trezcool/darasa/services/logger"
	inmemdb "github.com/trezcool/darasa/storage/database/inmem"
	testutil "github.com/trezcool/darasa/tests"
)

const testPwd = "Mb0te!Kinshasa"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

// fakeModel answers every generation task with canned JSON.
// When gate is set, outlining a chapter waits for it to be closed.
type fakeModel struct {
	mu   sync.Mutex
	gate chan struct{}
}

func (m *fakeModel) Name() string { return "fake" }

func (m *fakeModel) Generate(ctx context.Context, req generate.Request) (string, error) {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()

	switch req.Task {
	case generate.TaskOutlineLessons:
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		return `{"lessons": [
			{"title": "Greetings", "description": "Saying hello", "kind": "language"},
			{"title": "Numbers", "description": "One to ten", "kind": "core"}
		]}`, nil
	case generate.TaskLessonKind:
		return `{"kind": "language"}`, nil
	case generate.TaskPlanActivities:
		return `{"activities": [
			{"kind": "explanation", "title": "Hello", "goal": "say hello"},
			{"kind": "quiz", "title": "Check", "goal": "remember it"}
		]}`, nil
	case generate.TaskWriteActivity:
		if strings.Contains(req.Prompt, "(quiz)") {
			return `{"questions": [{"question": "Mbote means?", "choices": ["hello", "bye"], "answer": 0}]}`, nil
		}
		return `{"title": "Mbote", "body": "mbote means hello"}`, nil
	}
	return "", errors.Errorf("unexpected task %s", req.Task)
}

type fixture struct {
	conf         *core.Config
	db           *inmemdb.DB
	usrRepo      user.Repository
	orgRepo      org.Repository
	courseRepo   course.Repository
	progressRepo progress.Repository
	mail         *emailsvc.ConsoleServiceMock
	cache        *cachesvc.Memory
	courses      course.Service
	model        *fakeModel
	runner       *workflow.Runner
	srv          *echoapi.Server
}

func setup(t *testing.T) *fixture {
	t.Helper()
	conf := core.NewTestConfig()
	logger := logsvc.NewZapLogger(zap.NewNop())
	validate, translator := testutil.NewValidator()
	db := inmemdb.Open()

	f := &fixture{
		conf:         conf,
		db:           db,
		usrRepo:      inmemdb.NewUserRepository(db),
		orgRepo:      inmemdb.NewOrgRepository(db),
		courseRepo:   inmemdb.NewCourseRepository(db),
		progressRepo: inmemdb.NewProgressRepository(db),
		mail:         emailsvc.NewConsoleServiceMock(conf),
		cache:        cachesvc.NewMemory(),
		model:        new(fakeModel),
	}

	usrSvc := user.NewService(f.usrRepo, f.mail, conf)
	orgSvc := org.NewService(f.orgRepo, usrSvc, f.mail, f.cache, logger)
	f.courses = course.NewService(f.courseRepo, f.cache, logger)
	f.runner = workflow.NewRunner(inmemdb.NewWorkflowRepository(db), workflow.NewMemoryBroker(), logger, conf.Workflow)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = f.runner.Shutdown(ctx)
	})
	err := generate.Register(f.runner, generate.Deps{Courses: f.courses, Model: f.model, Logger: logger, MaxParallel: 2})
	require.NoError(t, err)

	f.srv = echoapi.NewServer(&echoapi.Deps{
		Conf:        conf,
		Logger:      logger,
		Validate:    validate,
		Translator:  translator,
		Cache:       f.cache,
		UserSvc:     usrSvc,
		OrgSvc:      orgSvc,
		CourseSvc:   f.courses,
		ProgressSvc: progress.NewService(f.progressRepo, f.courses),
		Runner:      f.runner,
	})
	return f
}

func (f *fixture) createUser(t *testing.T, name, email string, roles ...string) user.User {
	t.Helper()
	return testutil.CreateUser(t, f.usrRepo, name, "", email, testPwd, roles, true)
}

func (f *fixture) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(f.conf, echoapi.GetUserClaims(f.conf, usr))
	require.NoError(t, err)
	return token
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func checkErr(t *testing.T, rec *httptest.ResponseRecorder, wantCode int, wantMsg string) {
	t.Helper()
	require.Equal(t, wantCode, rec.Code, rec.Body.String())
	var herr httpErr
	decode(t, rec, &herr)
	require.Equal(t, wantMsg, herr.Error)
}

func jsonMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	m := make(map[string]interface{})
	decode(t, rec, &m)
	return m
}

func TestServer_home(t *testing.T) {
	f := setup(t)
	rec := f.do(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Welcome to Darasa API!", rec.Body.String())
}
