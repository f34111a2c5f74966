package workflow

import (
	"math"

	"github.com/pkg/errors"
)

// Phase statuses
const (
	PhaseCompleted = "completed"
	PhaseActive    = "active"
	PhasePending   = "pending"
)

// PhaseConfig groups the steps of a pipeline into weighted phases, as displayed to users.
type PhaseConfig struct {
	Order   []string            // phase names, in display order
	Steps   map[string][]string // {phase: steps}
	Weights map[string]float64  // {phase: weight}; missing phases weigh 0
}

type PhaseProgress struct {
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Weight    float64 `json:"weight"`
}

// PhaseOf returns the phase holding `step`, or "" if none does.
func (pc PhaseConfig) PhaseOf(step string) string {
	for _, phase := range pc.Order {
		for _, s := range pc.Steps[phase] {
			if s == step {
				return phase
			}
		}
	}
	return ""
}

// Validate checks that every one of `steps` belongs to exactly one phase, and phases hold no unknown step.
func (pc PhaseConfig) Validate(steps []string) error {
	known := make(map[string]bool, len(steps))
	for _, s := range steps {
		known[s] = true
	}
	seenPhases := make(map[string]bool, len(pc.Order))
	owner := make(map[string]string, len(steps))
	for _, phase := range pc.Order {
		if seenPhases[phase] {
			return errors.Errorf("duplicate phase %q", phase)
		}
		seenPhases[phase] = true
		for _, s := range pc.Steps[phase] {
			if !known[s] {
				return errors.Errorf("phase %q holds unknown step %q", phase, s)
			}
			if other, ok := owner[s]; ok {
				return errors.Errorf("step %q is in phases %q and %q", s, other, phase)
			}
			owner[s] = phase
		}
	}
	for _, s := range steps {
		if _, ok := owner[s]; !ok {
			return errors.Errorf("step %q is in no phase", s)
		}
	}
	return nil
}

// CalculateProgress returns the weighted progress percentage of a run & the status of each of its phases.
//
// A phase counts as fully complete when all of its steps are in completedSteps (phases with no steps
// always are); an active phase, holding currentStep or some completed steps, counts for the share of
// its completed steps; any other phase counts for nothing. The result is rounded and within [0, 100].
func CalculateProgress(completedSteps []string, currentStep string, pc PhaseConfig) (int, []PhaseProgress) {
	done := make(map[string]bool, len(completedSteps))
	for _, s := range completedSteps {
		done[s] = true
	}

	var sum, totalWeight float64
	phases := make([]PhaseProgress, 0, len(pc.Order))
	for _, phase := range pc.Order {
		steps := pc.Steps[phase]
		weight := math.Max(pc.Weights[phase], 0)

		var completed int
		hasCurrent := false
		for _, s := range steps {
			if done[s] {
				completed++
			}
			if currentStep != "" && s == currentStep {
				hasCurrent = true
			}
		}

		pp := PhaseProgress{Name: phase, Completed: completed, Total: len(steps), Weight: weight}
		var fraction float64
		switch {
		case completed == len(steps):
			pp.Status = PhaseCompleted
			fraction = 1
		case hasCurrent || completed > 0:
			pp.Status = PhaseActive
			fraction = float64(completed) / float64(len(steps))
		default:
			pp.Status = PhasePending
		}
		phases = append(phases, pp)

		sum += weight * fraction
		totalWeight += weight
	}

	if totalWeight == 0 {
		return 0, phases
	}
	pct := int(math.Round(100 * sum / totalWeight))
	if pct < 0 {
		pct = 0
	} else if pct > 100 {
		pct = 100
	}
	return pct, phases
}
