package eval

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/generate"
)

// Task runs one generation function on a case input.
type Task struct {
	Name        string
	Description string
	Run         func(ctx context.Context, m generate.Model, input map[string]interface{}) (interface{}, error)
}

// decodeInput maps a YAML case input onto the parameters struct of a task.
func decodeInput(input map[string]interface{}, v interface{}) error {
	data, err := json.Marshal(input)
	if err != nil {
		return errors.Wrap(err, "encoding input")
	}
	return errors.Wrap(json.Unmarshal(data, v), "decoding input")
}

var tasks = map[string]Task{
	generate.TaskOutlineLessons: {
		Name:        generate.TaskOutlineLessons,
		Description: "split a chapter into lessons",
		Run: func(ctx context.Context, m generate.Model, input map[string]interface{}) (interface{}, error) {
			var cc generate.ChapterContext
			if err := decodeInput(input, &cc); err != nil {
				return nil, err
			}
			return generate.OutlineLessons(ctx, m, cc)
		},
	},
	generate.TaskLessonKind: {
		Name:        generate.TaskLessonKind,
		Description: "classify a lesson (core, language or custom)",
		Run: func(ctx context.Context, m generate.Model, input map[string]interface{}) (interface{}, error) {
			var lc generate.LessonContext
			if err := decodeInput(input, &lc); err != nil {
				return nil, err
			}
			kind, err := generate.DetermineLessonKind(ctx, m, lc)
			if err != nil {
				return nil, err
			}
			return map[string]string{"kind": kind}, nil
		},
	},
	generate.TaskPlanActivities: {
		Name:        generate.TaskPlanActivities,
		Description: "plan the activities of a lesson",
		Run: func(ctx context.Context, m generate.Model, input map[string]interface{}) (interface{}, error) {
			var lc generate.LessonContext
			if err := decodeInput(input, &lc); err != nil {
				return nil, err
			}
			return generate.PlanActivities(ctx, m, lc)
		},
	},
	generate.TaskWriteActivity: {
		Name:        generate.TaskWriteActivity,
		Description: "write the content of a planned activity",
		Run: func(ctx context.Context, m generate.Model, input map[string]interface{}) (interface{}, error) {
			var in struct {
				generate.LessonContext
				Activity generate.ActivityPlan `json:"activity"`
				Material []string              `json:"material"`
			}
			if err := decodeInput(input, &in); err != nil {
				return nil, err
			}
			return generate.WriteActivity(ctx, m, in.LessonContext, in.Activity, in.Material)
		},
	},
}

func LookupTask(name string) (Task, bool) {
	t, ok := tasks[name]
	return t, ok
}

// Tasks lists the tasks sorted by name.
func Tasks() []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
