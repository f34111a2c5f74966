package inmemdb

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/workflow"
)

type workflowRepository struct {
	db *DB
}

var _ workflow.Repository = (*workflowRepository)(nil)

func NewWorkflowRepository(db *DB) workflow.Repository {
	return &workflowRepository{db: db}
}

func copyRun(r workflow.Run) workflow.Run {
	r.CompletedSteps = append([]string{}, r.CompletedSteps...)
	outputs := make(map[string]json.RawMessage, len(r.Outputs))
	for k, v := range r.Outputs {
		outputs[k] = append(json.RawMessage(nil), v...)
	}
	r.Outputs = outputs
	return r
}

func (repo *workflowRepository) CreateRun(_ context.Context, r workflow.Run) (workflow.Run, error) {
	repo.db.workflow.Lock()
	defer repo.db.workflow.Unlock()

	for _, other := range repo.db.workflow.runs {
		if other.Kind == r.Kind && other.EntityID == r.EntityID && other.IsActive() {
			return workflow.Run{}, core.ErrConflict
		}
	}
	r = copyRun(r)
	repo.db.workflow.runs[r.ID] = &r
	return copyRun(r), nil
}

func (repo *workflowRepository) GetRun(_ context.Context, id string) (workflow.Run, error) {
	repo.db.workflow.RLock()
	defer repo.db.workflow.RUnlock()
	if r, ok := repo.db.workflow.runs[id]; ok {
		return copyRun(*r), nil
	}
	return workflow.Run{}, workflow.ErrNotFound
}

func (repo *workflowRepository) LatestRun(_ context.Context, kind, entityID string) (workflow.Run, error) {
	repo.db.workflow.RLock()
	defer repo.db.workflow.RUnlock()

	var latest *workflow.Run
	for _, r := range repo.db.workflow.runs {
		if r.Kind == kind && r.EntityID == entityID && (latest == nil || r.CreatedAt.After(latest.CreatedAt)) {
			latest = r
		}
	}
	if latest == nil {
		return workflow.Run{}, workflow.ErrNotFound
	}
	return copyRun(*latest), nil
}

func (repo *workflowRepository) QueryRuns(_ context.Context, filter workflow.RunFilter) ([]workflow.Run, error) {
	repo.db.workflow.RLock()
	defer repo.db.workflow.RUnlock()

	runs := make([]workflow.Run, 0)
	for _, r := range repo.db.workflow.runs {
		if (filter.OrgID != "" && r.OrgID != filter.OrgID) ||
			(filter.Kind != "" && r.Kind != filter.Kind) ||
			(filter.EntityID != "" && r.EntityID != filter.EntityID) ||
			(filter.Status != "" && r.Status != filter.Status) {
			continue
		}
		runs = append(runs, copyRun(*r))
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	if filter.Limit > 0 && len(runs) > filter.Limit {
		runs = runs[:filter.Limit]
	}
	return runs, nil
}

func (repo *workflowRepository) UpdateRun(_ context.Context, r workflow.Run) (workflow.Run, error) {
	repo.db.workflow.Lock()
	defer repo.db.workflow.Unlock()
	cur, ok := repo.db.workflow.runs[r.ID]
	if !ok {
		return workflow.Run{}, workflow.ErrNotFound
	}
	if cur.Version != r.Version {
		return workflow.Run{}, core.ErrConflict
	}
	r = copyRun(r)
	r.Version++
	repo.db.workflow.runs[r.ID] = &r
	return copyRun(r), nil
}

func (repo *workflowRepository) QueryStaleRuns(_ context.Context, before time.Time) ([]workflow.Run, error) {
	repo.db.workflow.RLock()
	defer repo.db.workflow.RUnlock()

	runs := make([]workflow.Run, 0)
	for _, r := range repo.db.workflow.runs {
		if r.IsActive() && r.UpdatedAt.Before(before) {
			runs = append(runs, copyRun(*r))
		}
	}
	return runs, nil
}
