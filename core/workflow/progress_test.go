package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPhases = PhaseConfig{
	Order: []string{"load", "generate", "save", "finish"},
	Steps: map[string][]string{
		"load":     {"get", "setRunning"},
		"generate": {"gen"},
		"save":     {"remove", "add"},
		"finish":   {"setCompleted"},
	},
	Weights: map[string]float64{"load": 5, "generate": 70, "save": 20, "finish": 5},
}

var testSteps = []string{"get", "setRunning", "gen", "remove", "add", "setCompleted"}

func TestCalculateProgress(t *testing.T) {
	tests := []struct {
		name       string
		completed  []string
		current    string
		want       int
		wantStatus []string
	}{
		{
			name: "nothing done", current: "",
			want: 0, wantStatus: []string{PhasePending, PhasePending, PhasePending, PhasePending},
		},
		{
			name: "first step running", current: "get",
			want: 0, wantStatus: []string{PhaseActive, PhasePending, PhasePending, PhasePending},
		},
		{
			name: "half of first phase", completed: []string{"get"}, current: "setRunning",
			want: 3, wantStatus: []string{PhaseActive, PhasePending, PhasePending, PhasePending},
		},
		{
			name: "first phase done", completed: []string{"get", "setRunning"}, current: "gen",
			want: 5, wantStatus: []string{PhaseCompleted, PhaseActive, PhasePending, PhasePending},
		},
		{
			name: "half of save phase", completed: []string{"get", "setRunning", "gen", "remove"}, current: "add",
			want: 85, wantStatus: []string{PhaseCompleted, PhaseCompleted, PhaseActive, PhasePending},
		},
		{
			name: "partial completion without current step", completed: []string{"get", "setRunning", "gen", "remove"},
			want: 85, wantStatus: []string{PhaseCompleted, PhaseCompleted, PhaseActive, PhasePending},
		},
		{
			name: "all done", completed: testSteps,
			want: 100, wantStatus: []string{PhaseCompleted, PhaseCompleted, PhaseCompleted, PhaseCompleted},
		},
		{
			name: "unknown steps are ignored", completed: []string{"lol"}, current: "nope",
			want: 0, wantStatus: []string{PhasePending, PhasePending, PhasePending, PhasePending},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, phases := CalculateProgress(tt.completed, tt.current, testPhases)
			assert.Equal(t, tt.want, got)
			require.Len(t, phases, len(tt.wantStatus))
			for i, status := range tt.wantStatus {
				assert.Equal(t, status, phases[i].Status, phases[i].Name)
			}
		})
	}
}

func TestCalculateProgress_EdgeCases(t *testing.T) {
	t.Run("empty phase is complete", func(t *testing.T) {
		pc := PhaseConfig{
			Order:   []string{"empty", "work"},
			Steps:   map[string][]string{"work": {"a", "b"}},
			Weights: map[string]float64{"empty": 50, "work": 50},
		}
		got, phases := CalculateProgress(nil, "a", pc)
		assert.Equal(t, 50, got)
		assert.Equal(t, PhaseCompleted, phases[0].Status)
		assert.Equal(t, 0, phases[0].Total)
	})

	t.Run("missing weight counts as zero", func(t *testing.T) {
		pc := PhaseConfig{
			Order:   []string{"a", "b"},
			Steps:   map[string][]string{"a": {"x"}, "b": {"y"}},
			Weights: map[string]float64{"b": 10},
		}
		got, _ := CalculateProgress([]string{"x"}, "y", pc)
		assert.Equal(t, 0, got)
		got, _ = CalculateProgress([]string{"x", "y"}, "", pc)
		assert.Equal(t, 100, got)
	})

	t.Run("zero total weight", func(t *testing.T) {
		pc := PhaseConfig{Order: []string{"a"}, Steps: map[string][]string{"a": {"x"}}}
		got, phases := CalculateProgress([]string{"x"}, "", pc)
		assert.Equal(t, 0, got)
		assert.Equal(t, PhaseCompleted, phases[0].Status)
	})

	t.Run("idempotent", func(t *testing.T) {
		completed := []string{"get", "setRunning", "gen"}
		p1, ph1 := CalculateProgress(completed, "remove", testPhases)
		p2, ph2 := CalculateProgress(completed, "remove", testPhases)
		assert.Equal(t, p1, p2)
		assert.Equal(t, ph1, ph2)
		assert.Equal(t, 75, p1)
	})
}

func TestPhaseConfig_Validate(t *testing.T) {
	assert.NoError(t, testPhases.Validate(testSteps))
	assert.Error(t, testPhases.Validate(append(testSteps, "orphan")))
	assert.Error(t, testPhases.Validate(testSteps[1:]))

	dup := PhaseConfig{
		Order: []string{"a", "b"},
		Steps: map[string][]string{"a": {"x"}, "b": {"x"}},
	}
	assert.Error(t, dup.Validate([]string{"x"}))
}

func TestPhaseConfig_PhaseOf(t *testing.T) {
	assert.Equal(t, "save", testPhases.PhaseOf("add"))
	assert.Equal(t, "", testPhases.PhaseOf("lol"))
}
