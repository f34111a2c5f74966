package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

// Run statuses
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var (
	// errors
	ErrNotFound    = core.NewNotFoundError("workflow run")
	ErrUnknownKind = core.NewNotFoundError("workflow kind")
	ErrNoOutput    = core.NewNotFoundError("step output")
)

// Run is one execution of a Pipeline on an entity (a chapter, a lesson ...).
// A failed run is resumed by the next Start of the same kind on the same entity.
type Run struct {
	ID             string                     `json:"id"`
	Kind           string                     `json:"kind"`
	EntityID       string                     `json:"entity_id"`
	OrgID          string                     `json:"org_id"`
	UserID         string                     `json:"user_id"`
	Status         string                     `json:"status"`
	CurrentStep    string                     `json:"current_step"`
	CompletedSteps []string                   `json:"completed_steps"`
	Outputs        map[string]json.RawMessage `json:"-"`
	Error          string                     `json:"error,omitempty"`
	CreatedAt      time.Time                  `json:"created_at"`
	UpdatedAt      time.Time                  `json:"updated_at"`
	FinishedAt     null.Time                  `json:"finished_at"`
	Version        int                        `json:"-"` // bumped by every update
}

func (r Run) IsActive() bool { return r.Status == StatusPending || r.Status == StatusRunning }

func (r Run) IsTerminal() bool { return r.Status == StatusCompleted || r.Status == StatusFailed }

func (r Run) HasCompleted(step string) bool {
	for _, s := range r.CompletedSteps {
		if s == step {
			return true
		}
	}
	return false
}

// Snapshot is a run along with its computed progress, as sent to clients.
type Snapshot struct {
	Run
	Progress int             `json:"progress"`
	Phases   []PhaseProgress `json:"phases"`
}

// Event types
const (
	EventStatus = "status"
)

// Event notifies subscribers of a run transition.
type Event struct {
	Type     string   `json:"type"`
	Snapshot Snapshot `json:"snapshot"`
}

// RunFilter applies AND operation on its non-empty fields.
type RunFilter struct {
	OrgID    string `query:"org_id"`
	Kind     string `query:"kind"`
	EntityID string `query:"entity_id"`
	Status   string `query:"status"`
	Limit    int    `query:"limit"`
}

type Repository interface {
	// CreateRun returns core.ErrConflict if an active run of the same kind already exists on the entity.
	CreateRun(ctx context.Context, r Run) (Run, error)
	GetRun(ctx context.Context, id string) (Run, error)
	// LatestRun returns the most recently created run of `kind` on the entity.
	LatestRun(ctx context.Context, kind, entityID string) (Run, error)
	QueryRuns(ctx context.Context, filter RunFilter) ([]Run, error)
	// UpdateRun saves `r` and bumps its Version. It returns core.ErrConflict if the stored run
	// has another Version (it was updated since `r` was read).
	UpdateRun(ctx context.Context, r Run) (Run, error)
	// QueryStaleRuns returns the active runs not updated since `before`.
	QueryStaleRuns(ctx context.Context, before time.Time) ([]Run, error)
}

// Broker fans run events out to subscribers, possibly across processes.
type Broker interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe returns the events of the run until the returned cancel func is called.
	Subscribe(ctx context.Context, runID string) (<-chan Event, func(), error)
}

// Observer is notified of the runner activity, eg. to record metrics.
type Observer interface {
	RunStarted(r Run)
	StepFinished(r Run, step string, took time.Duration, err error)
	RunFinished(r Run, took time.Duration)
}
