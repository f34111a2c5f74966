package sqlxrepos

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/workflow"
)

const (
	runColumns   = `id, kind, entity_id, org_id, user_id, status, current_step, completed_steps, error, created_at, updated_at, finished_at, version`
	runSelect    = `SELECT ` + runColumns + `, outputs::text AS outputs FROM workflow_run`
	activeRunKey = "workflow_run_active_idx"
)

type runRow struct {
	ID             string         `db:"id"`
	Kind           string         `db:"kind"`
	EntityID       string         `db:"entity_id"`
	OrgID          string         `db:"org_id"`
	UserID         null.String    `db:"user_id"`
	Status         string         `db:"status"`
	CurrentStep    string         `db:"current_step"`
	CompletedSteps pq.StringArray `db:"completed_steps"`
	Outputs        string         `db:"outputs"`
	Error          string         `db:"error"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
	FinishedAt     null.Time      `db:"finished_at"`
	Version        int            `db:"version"`
}

func toRunRow(r workflow.Run) (runRow, error) {
	outputs := r.Outputs
	if outputs == nil {
		outputs = map[string]json.RawMessage{}
	}
	raw, err := json.Marshal(outputs)
	if err != nil {
		return runRow{}, errors.Wrap(err, "encoding run outputs")
	}
	steps := r.CompletedSteps
	if steps == nil {
		steps = []string{}
	}
	return runRow{
		ID:             r.ID,
		Kind:           r.Kind,
		EntityID:       r.EntityID,
		OrgID:          r.OrgID,
		UserID:         null.NewString(r.UserID, r.UserID != ""),
		Status:         r.Status,
		CurrentStep:    r.CurrentStep,
		CompletedSteps: steps,
		Outputs:        string(raw),
		Error:          r.Error,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
		FinishedAt:     r.FinishedAt,
		Version:        r.Version,
	}, nil
}

func (row runRow) run() (workflow.Run, error) {
	outputs := map[string]json.RawMessage{}
	if row.Outputs != "" {
		if err := json.Unmarshal([]byte(row.Outputs), &outputs); err != nil {
			return workflow.Run{}, errors.Wrapf(err, "decoding outputs of run %s", row.ID)
		}
	}
	steps := []string(row.CompletedSteps)
	if steps == nil {
		steps = []string{}
	}
	return workflow.Run{
		ID:             row.ID,
		Kind:           row.Kind,
		EntityID:       row.EntityID,
		OrgID:          row.OrgID,
		UserID:         row.UserID.String,
		Status:         row.Status,
		CurrentStep:    row.CurrentStep,
		CompletedSteps: steps,
		Outputs:        outputs,
		Error:          row.Error,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
		FinishedAt:     row.FinishedAt,
		Version:        row.Version,
	}, nil
}

func runs(rows []runRow) ([]workflow.Run, error) {
	out := make([]workflow.Run, 0, len(rows))
	for _, row := range rows {
		r, err := row.run()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

type workflowRepository struct {
	db *sqlx.DB
}

var _ workflow.Repository = (*workflowRepository)(nil)

func NewWorkflowRepository(db *sqlx.DB) workflow.Repository {
	return &workflowRepository{db: db}
}

func (repo *workflowRepository) CreateRun(ctx context.Context, r workflow.Run) (workflow.Run, error) {
	row, err := toRunRow(r)
	if err != nil {
		return workflow.Run{}, err
	}
	q := `INSERT INTO workflow_run (` + runColumns + `, outputs)
		VALUES (:id, :kind, :entity_id, :org_id, :user_id, :status, :current_step, :completed_steps, :error,
			:created_at, :updated_at, :finished_at, :version, CAST(:outputs AS jsonb))`
	if _, err = repo.db.NamedExecContext(ctx, q, row); err != nil {
		if isUniqueViolation(err, activeRunKey) {
			return workflow.Run{}, core.ErrConflict
		}
		return workflow.Run{}, errors.Wrap(err, "inserting run")
	}
	return row.run()
}

func (repo *workflowRepository) GetRun(ctx context.Context, id string) (workflow.Run, error) {
	var row runRow
	if err := repo.db.GetContext(ctx, &row, runSelect+` WHERE id::text = $1`, id); err != nil {
		return workflow.Run{}, notFound(err, workflow.ErrNotFound)
	}
	return row.run()
}

func (repo *workflowRepository) LatestRun(ctx context.Context, kind, entityID string) (workflow.Run, error) {
	var row runRow
	q := runSelect + ` WHERE kind = $1 AND entity_id::text = $2 ORDER BY created_at DESC LIMIT 1`
	if err := repo.db.GetContext(ctx, &row, q, kind, entityID); err != nil {
		return workflow.Run{}, notFound(err, workflow.ErrNotFound)
	}
	return row.run()
}

func (repo *workflowRepository) QueryRuns(ctx context.Context, filter workflow.RunFilter) ([]workflow.Run, error) {
	var (
		conds []string
		args  []interface{}
	)
	eq := func(col, val string) {
		if val != "" {
			args = append(args, val)
			conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	eq("org_id::text", filter.OrgID)
	eq("kind", filter.Kind)
	eq("entity_id::text", filter.EntityID)
	eq("status", filter.Status)

	q := runSelect
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var rows []runRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying runs")
	}
	return runs(rows)
}

func (repo *workflowRepository) UpdateRun(ctx context.Context, r workflow.Run) (workflow.Run, error) {
	row, err := toRunRow(r)
	if err != nil {
		return workflow.Run{}, err
	}
	q := `UPDATE workflow_run SET user_id = :user_id, status = :status, current_step = :current_step,
		completed_steps = :completed_steps, outputs = CAST(:outputs AS jsonb), error = :error,
		updated_at = :updated_at, finished_at = :finished_at, version = version + 1
		WHERE id = :id AND version = :version`
	res, err := repo.db.NamedExecContext(ctx, q, row)
	if err != nil {
		if isUniqueViolation(err, activeRunKey) {
			return workflow.Run{}, core.ErrConflict
		}
		return workflow.Run{}, errors.Wrap(err, "updating run")
	}
	if err = affected(res, workflow.ErrNotFound); err != nil {
		var exists bool
		if qErr := repo.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM workflow_run WHERE id = $1)`, r.ID); qErr != nil {
			return workflow.Run{}, errors.Wrap(qErr, "checking run")
		}
		if exists {
			return workflow.Run{}, core.ErrConflict
		}
		return workflow.Run{}, err
	}
	row.Version++
	return row.run()
}

func (repo *workflowRepository) QueryStaleRuns(ctx context.Context, before time.Time) ([]workflow.Run, error) {
	var rows []runRow
	q := runSelect + ` WHERE status IN ($1, $2) AND updated_at < $3`
	if err := repo.db.SelectContext(ctx, &rows, q, workflow.StatusPending, workflow.StatusRunning, before.UTC()); err != nil {
		return nil, errors.Wrap(err, "querying stale runs")
	}
	return runs(rows)
}
