package llmsvc

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/generate"
)

// Disabled stands in for a model that cannot be used: all its generations fail with ErrNoAPIKey.
type Disabled struct {
	model string
}

var _ generate.Model = Disabled{}

func (d Disabled) Name() string { return d.model }

func (d Disabled) Generate(context.Context, generate.Request) (string, error) {
	return "", ErrNoAPIKey
}

// NewModelOrDisabled is like NewModel, but falls back to a Disabled model when no API key is configured,
// so that the rest of the application keeps working without one.
func NewModelOrDisabled(ctx context.Context, conf core.LLMConfig, model string) (generate.Model, error) {
	m, err := NewModel(ctx, conf, model)
	if errors.Cause(err) == ErrNoAPIKey {
		return Disabled{model: model}, nil
	}
	return m, err
}
