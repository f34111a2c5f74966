package workflow

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
)

// StepFunc executes a step. Its output is JSON-encoded & persisted with the run, so that
// later steps may read it, even after a resume.
type StepFunc func(ctx context.Context, st *State) (interface{}, error)

type Step struct {
	Name string
	Run  StepFunc
}

type Pipeline struct {
	Kind   string
	Steps  []Step
	Phases PhaseConfig
	// OnFailure is called once a run fails, after its failure has been persisted.
	OnFailure func(ctx context.Context, st *State, err error)
}

func (p Pipeline) stepNames() []string {
	names := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		names = append(names, s.Name)
	}
	return names
}

func (p Pipeline) validate() error {
	if p.Kind == "" {
		return errors.New("pipeline kind is required")
	}
	seen := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		if s.Name == "" || s.Run == nil {
			return errors.Errorf("pipeline %s: steps need a name and a func", p.Kind)
		}
		if seen[s.Name] {
			return errors.Errorf("pipeline %s: duplicate step %q", p.Kind, s.Name)
		}
		seen[s.Name] = true
	}
	if err := p.Phases.Validate(p.stepNames()); err != nil {
		return errors.Wrapf(err, "pipeline %s", p.Kind)
	}
	return nil
}

// State is shared by the steps of a run.
type State struct {
	RunID    string
	Kind     string
	EntityID string
	OrgID    string
	UserID   string

	mu      sync.RWMutex
	outputs map[string]json.RawMessage
}

func newState(r Run) *State {
	outputs := make(map[string]json.RawMessage, len(r.Outputs))
	for k, v := range r.Outputs {
		outputs[k] = v
	}
	return &State{
		RunID:    r.ID,
		Kind:     r.Kind,
		EntityID: r.EntityID,
		OrgID:    r.OrgID,
		UserID:   r.UserID,
		outputs:  outputs,
	}
}

// Output decodes the output of a previous step into v.
func (s *State) Output(step string, v interface{}) error {
	s.mu.RLock()
	raw, ok := s.outputs[step]
	s.mu.RUnlock()
	if !ok {
		return ErrNoOutput
	}
	return json.Unmarshal(raw, v)
}

func (s *State) setOutput(step string, raw json.RawMessage) {
	s.mu.Lock()
	s.outputs[step] = raw
	s.mu.Unlock()
}
