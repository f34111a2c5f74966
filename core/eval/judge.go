package eval

import (
	"bytes"
	"context"
	"encoding/json"
	"text/template"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/generate"
)

const (
	TaskJudge = "judge"
	MaxScore  = 10
)

const judgeSystemPrompt = `You grade the output of a course content generator.
Be strict: a score of 10 means nothing could be improved, 5 means usable after edits, 0 means unusable.
Answer with a single JSON document and nothing else.`

var judgePrompt = template.Must(template.New("judge").Parse(`Task: {{.Case.Task}}
Input:
{{.Input}}

Output:
{{.Output}}
{{with .Case.Expectations}}
A good output:
{{range .}}- {{.}}
{{end}}{{end}}
Grade the output from 0 to {{.MaxScore}}.
Answer with: {"score": <0-{{.MaxScore}}>, "reasoning": "why, in two or three sentences"}`))

type Verdict struct {
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning"`
}

// Judge scores task outputs with a language model.
type Judge struct {
	model generate.Model
}

func NewJudge(model generate.Model) *Judge {
	return &Judge{model: model}
}

func (j *Judge) Name() string { return j.model.Name() }

// Score grades `output` for `c`. Scores out of [0, MaxScore] are clamped.
func (j *Judge) Score(ctx context.Context, c Case, output json.RawMessage) (Verdict, error) {
	input, err := json.MarshalIndent(c.Input, "", "  ")
	if err != nil {
		return Verdict{}, errors.Wrap(err, "encoding input")
	}
	var pretty bytes.Buffer
	if err = json.Indent(&pretty, output, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(output)
	}

	var prompt bytes.Buffer
	err = judgePrompt.Execute(&prompt, map[string]interface{}{
		"Case":     c,
		"Input":    string(input),
		"Output":   pretty.String(),
		"MaxScore": MaxScore,
	})
	if err != nil {
		return Verdict{}, errors.Wrap(err, "rendering judge prompt")
	}

	var v Verdict
	req := generate.Request{Task: TaskJudge, System: judgeSystemPrompt, Prompt: prompt.String()}
	if err = generate.GenerateJSON(ctx, j.model, req, &v); err != nil {
		return Verdict{}, err
	}
	switch {
	case v.Score < 0:
		v.Score = 0
	case v.Score > MaxScore:
		v.Score = MaxScore
	}
	return v, nil
}
