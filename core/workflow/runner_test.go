package workflow_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/workflow"
	logsvc "github.com/trezcool/darasa/services/logger"
	inmemdb "github.com/trezcool/darasa/storage/database/inmem"
)

const testKind = "test"

var testPhases = workflow.PhaseConfig{
	Order:   []string{"prepare", "work"},
	Steps:   map[string][]string{"prepare": {"first"}, "work": {"second"}},
	Weights: map[string]float64{"prepare": 20, "work": 80},
}

type countingObserver struct {
	started, steps, finished int32
}

func (o *countingObserver) RunStarted(workflow.Run) { atomic.AddInt32(&o.started, 1) }

func (o *countingObserver) StepFinished(workflow.Run, string, time.Duration, error) {
	atomic.AddInt32(&o.steps, 1)
}

func (o *countingObserver) RunFinished(workflow.Run, time.Duration) { atomic.AddInt32(&o.finished, 1) }

func newRunner(t *testing.T, observers ...workflow.Observer) (*workflow.Runner, workflow.Repository) {
	t.Helper()
	repo := inmemdb.NewWorkflowRepository(inmemdb.Open())
	return newRunnerWith(t, repo, core.NewTestConfig().Workflow, observers...), repo
}

func newRunnerWith(t *testing.T, repo workflow.Repository, conf core.WorkflowConfig, observers ...workflow.Observer) *workflow.Runner {
	t.Helper()
	r := workflow.NewRunner(repo, workflow.NewMemoryBroker(), logsvc.NewZapLogger(zap.NewNop()), conf, observers...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})
	return r
}

func pipeline(first, second workflow.StepFunc) workflow.Pipeline {
	return workflow.Pipeline{
		Kind: testKind,
		Steps: []workflow.Step{
			{Name: "first", Run: first},
			{Name: "second", Run: second},
		},
		Phases: testPhases,
	}
}

func constStep(out interface{}) workflow.StepFunc {
	return func(context.Context, *workflow.State) (interface{}, error) { return out, nil }
}

func TestRunner_Register(t *testing.T) {
	r, _ := newRunner(t)

	err := r.Register(workflow.Pipeline{Kind: ""})
	assert.Error(t, err)

	p := pipeline(constStep(1), constStep(2))
	p.Phases = workflow.PhaseConfig{Order: []string{"prepare"}, Steps: map[string][]string{"prepare": {"first"}}}
	assert.Error(t, r.Register(p), "steps outside of any phase")

	assert.NoError(t, r.Register(pipeline(constStep(1), constStep(2))))
}

func TestRunner_Start_unknownKind(t *testing.T) {
	r, _ := newRunner(t)
	_, err := r.Start(context.Background(), "nope", "entity", "org", "user")
	assert.Equal(t, workflow.ErrUnknownKind, err)
}

func TestRunner_Start_completes(t *testing.T) {
	obs := new(countingObserver)
	r, _ := newRunner(t, obs)

	var got string
	second := func(_ context.Context, st *workflow.State) (interface{}, error) {
		if err := st.Output("first", &got); err != nil {
			return nil, err
		}
		return len(got), nil
	}
	require.NoError(t, r.Register(pipeline(constStep("hello"), second)))

	snap, err := r.Start(context.Background(), testKind, "entity", "org", "user")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPending, snap.Status)
	assert.Equal(t, 0, snap.Progress)
	r.Wait()

	snap, err = r.Get(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, snap.Status)
	assert.Equal(t, 100, snap.Progress)
	assert.Equal(t, []string{"first", "second"}, snap.CompletedSteps)
	assert.True(t, snap.FinishedAt.Valid)
	assert.Empty(t, snap.CurrentStep)
	assert.Equal(t, "hello", got)
	assert.JSONEq(t, "5", string(snap.Outputs["second"]))

	assert.EqualValues(t, 1, atomic.LoadInt32(&obs.started))
	assert.EqualValues(t, 2, atomic.LoadInt32(&obs.steps))
	assert.EqualValues(t, 1, atomic.LoadInt32(&obs.finished))

	latest, err := r.Latest(context.Background(), testKind, "entity")
	require.NoError(t, err)
	assert.Equal(t, snap.ID, latest.ID)
}

func TestRunner_Start_resumesFailedRun(t *testing.T) {
	r, _ := newRunner(t)

	var firstCalls, secondCalls int32
	first := func(context.Context, *workflow.State) (interface{}, error) {
		atomic.AddInt32(&firstCalls, 1)
		return map[string]string{"title": "Intro"}, nil
	}
	var title string
	second := func(_ context.Context, st *workflow.State) (interface{}, error) {
		if atomic.AddInt32(&secondCalls, 1) == 1 {
			return nil, errors.New("model unavailable")
		}
		var out map[string]string
		if err := st.Output("first", &out); err != nil {
			return nil, err
		}
		title = out["title"]
		return nil, nil
	}
	var failures int32
	p := pipeline(first, second)
	p.OnFailure = func(context.Context, *workflow.State, error) { atomic.AddInt32(&failures, 1) }
	require.NoError(t, r.Register(p))

	snap, err := r.Start(context.Background(), testKind, "entity", "org", "user")
	require.NoError(t, err)
	r.Wait()

	failed, err := r.Get(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "model unavailable")
	assert.Equal(t, []string{"first"}, failed.CompletedSteps)
	assert.Equal(t, 20, failed.Progress)
	assert.EqualValues(t, 1, atomic.LoadInt32(&failures))

	resumed, err := r.Start(context.Background(), testKind, "entity", "org", "user2")
	require.NoError(t, err)
	assert.Equal(t, snap.ID, resumed.ID, "failed runs are resumed, not recreated")
	assert.Equal(t, workflow.StatusPending, resumed.Status)
	assert.Empty(t, resumed.Error)
	assert.False(t, resumed.FinishedAt.Valid)
	r.Wait()

	done, err := r.Get(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, done.Status)
	assert.Equal(t, "user2", done.UserID)
	assert.EqualValues(t, 1, atomic.LoadInt32(&firstCalls), "completed steps are skipped")
	assert.EqualValues(t, 2, atomic.LoadInt32(&secondCalls))
	assert.Equal(t, "Intro", title)
}

func TestRunner_Start_returnsActiveRun(t *testing.T) {
	r, _ := newRunner(t)

	release := make(chan struct{})
	blocking := func(ctx context.Context, _ *workflow.State) (interface{}, error) {
		select {
		case <-release:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	require.NoError(t, r.Register(pipeline(blocking, constStep(nil))))

	snap1, err := r.Start(context.Background(), testKind, "entity", "org", "user")
	require.NoError(t, err)
	snap2, err := r.Start(context.Background(), testKind, "entity", "org", "user")
	require.NoError(t, err)
	assert.Equal(t, snap1.ID, snap2.ID)

	other, err := r.Start(context.Background(), testKind, "other", "org", "user")
	require.NoError(t, err)
	assert.NotEqual(t, snap1.ID, other.ID, "runs are per entity")

	close(release)
	r.Wait()

	runs, err := r.List(context.Background(), workflow.RunFilter{OrgID: "org", Status: workflow.StatusCompleted})
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	// a completed run is not resumed: a new run is created
	snap3, err := r.Start(context.Background(), testKind, "entity", "org", "user")
	require.NoError(t, err)
	assert.NotEqual(t, snap1.ID, snap3.ID)
	r.Wait()
}

func TestRunner_panicFailsRun(t *testing.T) {
	r, _ := newRunner(t)

	boom := func(context.Context, *workflow.State) (interface{}, error) { panic("boom") }
	require.NoError(t, r.Register(pipeline(constStep(nil), boom)))

	snap, err := r.Start(context.Background(), testKind, "entity", "org", "user")
	require.NoError(t, err)
	r.Wait()

	snap, err = r.Get(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusFailed, snap.Status)
	assert.Contains(t, snap.Error, "panic: boom")
}

func TestRunner_Subscribe(t *testing.T) {
	r, _ := newRunner(t)

	release := make(chan struct{})
	blocking := func(context.Context, *workflow.State) (interface{}, error) {
		<-release
		return nil, nil
	}
	require.NoError(t, r.Register(pipeline(blocking, constStep(nil))))

	snap, err := r.Start(context.Background(), testKind, "entity", "org", "user")
	require.NoError(t, err)

	events, unsubscribe, err := r.Subscribe(context.Background(), snap.ID)
	require.NoError(t, err)
	defer unsubscribe()
	close(release)

	var last workflow.Event
	timeout := time.After(2 * time.Second)
loop:
	for {
		select {
		case ev := <-events:
			assert.Equal(t, workflow.EventStatus, ev.Type)
			assert.Equal(t, snap.ID, ev.Snapshot.ID)
			last = ev
			if ev.Snapshot.IsTerminal() {
				break loop
			}
		case <-timeout:
			t.Fatal("no terminal event received")
		}
	}
	assert.Equal(t, workflow.StatusCompleted, last.Snapshot.Status)
	assert.Equal(t, 100, last.Snapshot.Progress)
	r.Wait()
}

func TestRunner_FailStale(t *testing.T) {
	r, repo := newRunner(t)
	require.NoError(t, r.Register(pipeline(constStep(nil), constStep(nil))))

	ctx := context.Background()
	old := time.Now().UTC().Add(-time.Hour)
	stale, err := repo.CreateRun(ctx, workflow.Run{
		ID: "stale", Kind: testKind, EntityID: "crashed", OrgID: "org",
		Status: workflow.StatusRunning, CurrentStep: "second", CompletedSteps: []string{"first"},
		CreatedAt: old, UpdatedAt: old,
	})
	require.NoError(t, err)
	_, err = repo.CreateRun(ctx, workflow.Run{
		ID: "fresh", Kind: testKind, EntityID: "busy", OrgID: "org",
		Status: workflow.StatusRunning, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	n, err := r.FailStale(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	snap, err := r.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusFailed, snap.Status)
	assert.NotEmpty(t, snap.Error)

	fresh, err := r.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusRunning, fresh.Status)

	// the failed stale run is resumable
	resumed, err := r.Start(ctx, testKind, "crashed", "org", "user")
	require.NoError(t, err)
	assert.Equal(t, stale.ID, resumed.ID)
	r.Wait()

	done, err := r.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, done.Status)
}

func TestRunner_Shutdown(t *testing.T) {
	r, _ := newRunner(t)

	var (
		once    sync.Once
		started = make(chan struct{})
	)
	blocking := func(ctx context.Context, _ *workflow.State) (interface{}, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return nil, ctx.Err()
	}
	require.NoError(t, r.Register(pipeline(blocking, constStep(nil))))

	snap, err := r.Start(context.Background(), testKind, "entity", "org", "user")
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	snap, err = r.Get(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusFailed, snap.Status)

	_, err = r.Start(context.Background(), testKind, "entity", "org", "user")
	assert.True(t, core.IsShutdown(err))
}

// two processes sharing one database
func TestRunner_FailStale_otherProcess(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewWorkflowRepository(inmemdb.Open())

	var firstCalls, secondCalls int32
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	first := func(ctx context.Context, _ *workflow.State) (interface{}, error) {
		if atomic.AddInt32(&firstCalls, 1) > 1 {
			return nil, nil
		}
		started <- struct{}{}
		select {
		case <-release:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	second := func(context.Context, *workflow.State) (interface{}, error) {
		atomic.AddInt32(&secondCalls, 1)
		return nil, nil
	}

	t.Run("executing runs are kept alive", func(t *testing.T) {
		conf := core.NewTestConfig().Workflow
		conf.Heartbeat = 10 * time.Millisecond
		a, b := newRunnerWith(t, repo, conf), newRunnerWith(t, repo, conf)
		require.NoError(t, a.Register(pipeline(constStep(nil), constStep(nil))))
		slow := func(ctx context.Context, _ *workflow.State) (interface{}, error) {
			select {
			case <-time.After(300 * time.Millisecond):
				return nil, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		require.NoError(t, b.Register(pipeline(slow, constStep(nil))))

		snap, err := b.Start(ctx, testKind, "alive", "org", "user")
		require.NoError(t, err)
		time.Sleep(150 * time.Millisecond)

		n, err := a.FailStale(ctx, 100*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		b.Wait()

		snap, err = a.Get(ctx, snap.ID)
		require.NoError(t, err)
		assert.Equal(t, workflow.StatusCompleted, snap.Status)
	})

	t.Run("taken over runs stop", func(t *testing.T) {
		conf := core.NewTestConfig().Workflow
		conf.Heartbeat = time.Hour
		a, b := newRunnerWith(t, repo, conf), newRunnerWith(t, repo, conf)
		require.NoError(t, a.Register(pipeline(first, second)))
		require.NoError(t, b.Register(pipeline(first, second)))

		snap, err := b.Start(ctx, testKind, "entity", "org", "user")
		require.NoError(t, err)
		<-started
		time.Sleep(20 * time.Millisecond)

		n, err := a.FailStale(ctx, 10*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		close(release)
		b.Wait()

		failed, err := a.Get(ctx, snap.ID)
		require.NoError(t, err)
		assert.Equal(t, workflow.StatusFailed, failed.Status, "the failure is not overwritten")
		assert.Empty(t, failed.CompletedSteps)
		assert.EqualValues(t, 0, atomic.LoadInt32(&secondCalls))

		resumed, err := a.Start(ctx, testKind, "entity", "org", "user")
		require.NoError(t, err)
		assert.Equal(t, snap.ID, resumed.ID)
		a.Wait()

		done, err := a.Get(ctx, snap.ID)
		require.NoError(t, err)
		assert.Equal(t, workflow.StatusCompleted, done.Status)
		assert.EqualValues(t, 2, atomic.LoadInt32(&firstCalls))
		assert.EqualValues(t, 1, atomic.LoadInt32(&secondCalls))
	})
}

// resumingRepo resumes the run from "another process" right before the Runner does.
type resumingRepo struct {
	workflow.Repository
	once sync.Once
}

func (repo *resumingRepo) UpdateRun(ctx context.Context, r workflow.Run) (workflow.Run, error) {
	if r.Status == workflow.StatusPending {
		repo.once.Do(func() {
			other := r
			other.UserID = "other"
			_, _ = repo.Repository.UpdateRun(ctx, other)
		})
	}
	return repo.Repository.UpdateRun(ctx, r)
}

func TestRunner_Start_concurrentResume(t *testing.T) {
	ctx := context.Background()
	repo := &resumingRepo{Repository: inmemdb.NewWorkflowRepository(inmemdb.Open())}
	r := newRunnerWith(t, repo, core.NewTestConfig().Workflow)
	require.NoError(t, r.Register(pipeline(constStep(nil), constStep(nil))))

	now := time.Now().UTC()
	_, err := repo.CreateRun(ctx, workflow.Run{
		ID: "failed", Kind: testKind, EntityID: "entity", OrgID: "org",
		Status: workflow.StatusFailed, Error: "boom", CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	snap, err := r.Start(ctx, testKind, "entity", "org", "user")
	require.NoError(t, err)
	assert.Equal(t, "failed", snap.ID)
	assert.Equal(t, workflow.StatusPending, snap.Status)
	assert.Equal(t, "other", snap.UserID, "the run resumed by the other process is returned")
	r.Wait()

	snap, err = r.Get(ctx, "failed")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPending, snap.Status, "not executed twice")
}
