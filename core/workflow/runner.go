package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

var (
	NowFunc = time.Now // mockable

	errStaleRun = errors.New("run stopped responding")
	errShutdown = errors.New("runner shut down")

	persistTimeout = 10 * time.Second
)

// Runner executes registered pipelines asynchronously, on a bounded number of concurrent runs.
type Runner struct {
	repo      Repository
	broker    Broker
	logger    core.Logger
	observers []Observer

	mu        sync.Mutex
	pipelines map[string]Pipeline
	active    map[string]struct{} // ids of the runs executed by this Runner

	heartbeat time.Duration

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewRunner(repo Repository, broker Broker, logger core.Logger, conf core.WorkflowConfig, observers ...Observer) *Runner {
	maxRuns := conf.MaxConcurrentRuns
	if maxRuns <= 0 {
		maxRuns = 1
	}
	heartbeat := conf.Heartbeat
	if heartbeat <= 0 {
		heartbeat = conf.StaleAfter / 3
	}
	if heartbeat <= 0 {
		heartbeat = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		repo:      repo,
		broker:    broker,
		logger:    logger,
		observers: observers,
		pipelines: make(map[string]Pipeline),
		active:    make(map[string]struct{}),
		heartbeat: heartbeat,
		sem:       make(chan struct{}, maxRuns),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Register makes a pipeline startable. Registering a kind twice replaces the previous pipeline.
func (r *Runner) Register(p Pipeline) error {
	if err := p.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.pipelines[p.Kind] = p
	r.mu.Unlock()
	return nil
}

func (r *Runner) pipeline(kind string) (Pipeline, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pipelines[kind]
	return p, ok
}

// Start runs pipeline `kind` on the entity, in the background:
//   - if a run is already active on the entity, it is returned as is;
//   - if the latest run failed, it is resumed: its completed steps are skipped;
//   - otherwise a new run is created.
func (r *Runner) Start(ctx context.Context, kind, entityID, orgID, userID string) (Snapshot, error) {
	p, ok := r.pipeline(kind)
	if !ok {
		return Snapshot{}, ErrUnknownKind
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx.Err() != nil {
		return Snapshot{}, core.NewShutdownError(errShutdown.Error())
	}

	now := NowFunc().UTC()
	run, err := r.repo.LatestRun(ctx, kind, entityID)
	switch {
	case err == nil && run.IsActive():
		return r.snapshot(p, run), nil
	case err == nil && run.Status == StatusFailed:
		run.Status = StatusPending
		run.Error = ""
		run.UserID = userID
		run.FinishedAt = null.Time{}
		run.UpdatedAt = now
		if run, err = r.repo.UpdateRun(ctx, run); err != nil {
			if errors.Cause(err) == core.ErrConflict { // resumed concurrently by another process
				if run, err = r.repo.LatestRun(ctx, kind, entityID); err == nil {
					return r.snapshot(p, run), nil
				}
			}
			return Snapshot{}, errors.Wrap(err, "resuming run")
		}
	case err == nil || core.IsNotFound(err):
		run, err = r.repo.CreateRun(ctx, Run{
			ID:             uuid.New().String(),
			Kind:           kind,
			EntityID:       entityID,
			OrgID:          orgID,
			UserID:         userID,
			Status:         StatusPending,
			CompletedSteps: []string{},
			Outputs:        map[string]json.RawMessage{},
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if err != nil {
			if errors.Cause(err) == core.ErrConflict { // started concurrently by another process
				if run, err = r.repo.LatestRun(ctx, kind, entityID); err == nil {
					return r.snapshot(p, run), nil
				}
			}
			return Snapshot{}, errors.Wrap(err, "creating run")
		}
	default:
		return Snapshot{}, errors.Wrap(err, "finding latest run")
	}

	snap := r.snapshot(p, run)
	r.publish(snap)

	r.active[run.ID] = struct{}{}
	r.wg.Add(1)
	go r.execute(p, run)
	return snap, nil
}

// Get returns the current snapshot of a run.
func (r *Runner) Get(ctx context.Context, id string) (Snapshot, error) {
	run, err := r.repo.GetRun(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	return r.Snapshot(run), nil
}

// Latest returns the snapshot of the latest run of `kind` on the entity.
func (r *Runner) Latest(ctx context.Context, kind, entityID string) (Snapshot, error) {
	run, err := r.repo.LatestRun(ctx, kind, entityID)
	if err != nil {
		return Snapshot{}, err
	}
	return r.Snapshot(run), nil
}

func (r *Runner) List(ctx context.Context, filter RunFilter) ([]Snapshot, error) {
	runs, err := r.repo.QueryRuns(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying runs")
	}
	snaps := make([]Snapshot, 0, len(runs))
	for _, run := range runs {
		snaps = append(snaps, r.Snapshot(run))
	}
	return snaps, nil
}

// Snapshot computes the progress of a run. Runs of unregistered kinds have no phases.
func (r *Runner) Snapshot(run Run) Snapshot {
	p, _ := r.pipeline(run.Kind)
	return r.snapshot(p, run)
}

func (r *Runner) snapshot(p Pipeline, run Run) Snapshot {
	if run.CompletedSteps == nil {
		run.CompletedSteps = []string{}
	}
	current := run.CurrentStep
	if run.Status != StatusRunning {
		current = ""
	}
	progress, phases := CalculateProgress(run.CompletedSteps, current, p.Phases)
	return Snapshot{Run: run, Progress: progress, Phases: phases}
}

// Subscribe streams the events of a run, see Broker.Subscribe.
func (r *Runner) Subscribe(ctx context.Context, runID string) (<-chan Event, func(), error) {
	return r.broker.Subscribe(ctx, runID)
}

// FailStale fails the active runs not updated for `olderThan`, that are not executed by this Runner
// (eg. runs of a crashed process). Their failure makes them resumable.
// Runs executed by any live Runner are refreshed every Heartbeat, so `olderThan` must be well above it.
func (r *Runner) FailStale(ctx context.Context, olderThan time.Duration) (int, error) {
	runs, err := r.repo.QueryStaleRuns(ctx, NowFunc().UTC().Add(-olderThan))
	if err != nil {
		return 0, errors.Wrap(err, "querying stale runs")
	}

	var n int
	for _, run := range runs {
		r.mu.Lock()
		_, running := r.active[run.ID]
		r.mu.Unlock()
		if running {
			continue
		}
		p, _ := r.pipeline(run.Kind)
		if r.fail(p, run, newState(run), errStaleRun) {
			n++
		}
	}
	return n, nil
}

// Wait blocks until every started run is done.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown cancels the running steps, then waits for their runs to be persisted as failed.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for runs")
	}
}

// lease is the state of a run executed by this Runner. Every update is conditioned on the run
// Version: once an update conflicts, another process took the run over and the lease is lost.
type lease struct {
	mu     sync.Mutex
	run    Run
	lost   bool
	cancel context.CancelFunc // cancels the steps of the run
}

func (l *lease) current() Run {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.run
}

func (r *Runner) execute(p Pipeline, run Run) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.active, run.ID)
		r.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(r.ctx)
	defer cancel()
	l := &lease{run: run, cancel: cancel}
	stopHeartbeat := r.keepAlive(l)
	defer stopHeartbeat()

	st := newState(run)

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		r.abort(p, l, st, errShutdown)
		return
	}

	started := NowFunc()
	ok := r.save(p, l, func(run *Run) {
		run.Status = StatusRunning
		if run.Outputs == nil {
			run.Outputs = map[string]json.RawMessage{}
		}
	})
	if !ok {
		return
	}
	for _, o := range r.observers {
		o.RunStarted(l.current())
	}

	for _, step := range p.Steps {
		if l.current().HasCompleted(step.Name) {
			continue
		}
		if ctx.Err() != nil {
			r.abort(p, l, st, errShutdown)
			return
		}

		if !r.save(p, l, func(run *Run) { run.CurrentStep = step.Name }) {
			return
		}

		t0 := NowFunc()
		out, err := r.runStep(ctx, step, st)
		for _, o := range r.observers {
			o.StepFinished(l.current(), step.Name, NowFunc().Sub(t0), err)
		}
		if err != nil {
			r.abort(p, l, st, errors.Wrapf(err, "step %s", step.Name))
			return
		}

		raw, err := json.Marshal(out)
		if err != nil {
			r.abort(p, l, st, errors.Wrapf(err, "encoding output of step %s", step.Name))
			return
		}
		st.setOutput(step.Name, raw)
		ok = r.save(p, l, func(run *Run) {
			run.Outputs[step.Name] = raw
			run.CompletedSteps = append(run.CompletedSteps, step.Name)
		})
		if !ok {
			return
		}
	}

	ok = r.save(p, l, func(run *Run) {
		run.Status = StatusCompleted
		run.CurrentStep = ""
		run.FinishedAt = null.TimeFrom(NowFunc().UTC())
	})
	if !ok {
		return
	}
	for _, o := range r.observers {
		o.RunFinished(l.current(), NowFunc().Sub(started))
	}
}

// runStep turns panics into errors so that a faulty step fails its run only.
func (r *Runner) runStep(ctx context.Context, step Step, st *State) (out interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Errorf("panic: %v\n%s", rec, debug.Stack())
		}
	}()
	return step.Run(ctx, st)
}

// keepAlive refreshes the run every heartbeat, while it waits for a slot or executes, so that
// other processes do not take it for a stale one. The returned func stops it.
func (r *Runner) keepAlive(l *lease) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(r.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				l.mu.Lock()
				if !l.lost {
					saved, err := r.update(l.run)
					switch {
					case err == nil:
						l.run = saved
					case !r.loseLease(l, err):
						r.logger.Warn(fmt.Sprintf("workflow.Runner: refreshing run %s: %v", l.run.ID, err), err)
					}
				}
				l.mu.Unlock()
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

// loseLease marks the lease lost and cancels the run steps if err is an update conflict.
// Must be called with l.mu held.
func (r *Runner) loseLease(l *lease, err error) bool {
	if errors.Cause(err) != core.ErrConflict {
		return false
	}
	l.lost = true
	l.cancel()
	r.logger.Warn(fmt.Sprintf("workflow.Runner: run %s was taken over by another process, stopping", l.run.ID), err)
	return true
}

// save applies `change` to the run, then persists it. It returns false if the lease is lost.
func (r *Runner) save(p Pipeline, l *lease, change func(run *Run)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lost {
		return false
	}
	run := l.run
	change(&run)
	saved, err := r.persist(p, run)
	if r.loseLease(l, err) {
		return false
	}
	l.run = saved
	return true
}

// abort fails the run, unless another process took it over.
func (r *Runner) abort(p Pipeline, l *lease, st *State, cause error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lost {
		return
	}
	if !r.fail(p, l.run, st, cause) {
		l.lost = true
	}
}

// fail persists the run as failed. It returns false, leaving the run as is, if the run was updated
// since it was read.
func (r *Runner) fail(p Pipeline, run Run, st *State, cause error) bool {
	run.Status = StatusFailed
	run.Error = cause.Error()
	run.FinishedAt = null.TimeFrom(NowFunc().UTC())
	run, err := r.persist(p, run)
	if errors.Cause(err) == core.ErrConflict {
		return false
	}

	r.logger.Error(fmt.Sprintf("workflow.Runner: %s run %s on %s failed: %v", run.Kind, run.ID, run.EntityID, cause), cause)
	for _, o := range r.observers {
		o.RunFinished(run, run.FinishedAt.Time.Sub(run.CreatedAt))
	}

	if p.OnFailure != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		p.OnFailure(ctx, st, cause)
	}
	return true
}

// update saves a run. Persistence outlives the Runner context:
// runs interrupted by a shutdown must still be saved as failed.
func (r *Runner) update(run Run) (Run, error) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	run.UpdatedAt = NowFunc().UTC()
	return r.repo.UpdateRun(ctx, run)
}

// persist saves & publishes a run transition. Conflicts are returned untouched; other errors are
// logged and the unsaved run is returned along with them.
func (r *Runner) persist(p Pipeline, run Run) (Run, error) {
	saved, err := r.update(run)
	if err != nil {
		if errors.Cause(err) == core.ErrConflict {
			return run, err
		}
		r.logger.Error(fmt.Sprintf("workflow.Runner: saving run %s: %v", run.ID, err), err)
		saved = run
	}
	r.publish(r.snapshot(p, saved))
	return saved, err
}

func (r *Runner) publish(snap Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.broker.Publish(ctx, Event{Type: EventStatus, Snapshot: snap}); err != nil {
		r.logger.Warn(fmt.Sprintf("workflow.Runner: publishing run %s: %v", snap.ID, err), err)
	}
}
