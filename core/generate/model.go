// Package generate turns course outlines into lessons & activities with a language model.
package generate

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// ErrBadOutput is returned when the model output cannot be decoded or fails validation.
var ErrBadOutput = errors.New("unusable model output")

// Request is a single prompt sent to a Model.
type Request struct {
	Task        string // eg. "outline_lessons"; used for logs, metrics & eval caches
	System      string
	Prompt      string
	JSON        bool // the response must be a JSON document
	Temperature float32
}

// Model is any text generation backend.
type Model interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, req Request) (string, error)

func (f ModelFunc) Generate(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

func (f ModelFunc) Name() string { return "func" }

// stripFences removes the markdown code fence models like to wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:] // language tag
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// GenerateJSON sends req as a JSON request and decodes the response into v.
func GenerateJSON(ctx context.Context, m Model, req Request, v interface{}) error {
	req.JSON = true
	out, err := m.Generate(ctx, req)
	if err != nil {
		return errors.Wrapf(err, "generating %s", req.Task)
	}
	if err = json.Unmarshal([]byte(stripFences(out)), v); err != nil {
		return errors.Wrapf(ErrBadOutput, "%s: %v", req.Task, err)
	}
	return nil
}
