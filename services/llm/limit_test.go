package llmsvc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/generate"
)

func TestLimited(t *testing.T) {
	var deadline time.Time
	m := generate.ModelFunc(func(ctx context.Context, req generate.Request) (string, error) {
		deadline, _ = ctx.Deadline()
		return "ok:" + req.Task, nil
	})

	l := NewLimited(m, 0, time.Minute)
	assert.Equal(t, "func", l.Name())
	for i := 0; i < 5; i++ {
		out, err := l.Generate(context.Background(), generate.Request{Task: "t"})
		require.NoError(t, err)
		assert.Equal(t, "ok:t", out)
	}
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

func TestLimited_waitHonoursContext(t *testing.T) {
	m := generate.ModelFunc(func(context.Context, generate.Request) (string, error) { return "ok", nil })
	l := NewLimited(m, 1, 0) // one request per minute

	_, err := l.Generate(context.Background(), generate.Request{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Generate(ctx, generate.Request{})
	assert.Error(t, err, "the second request would exceed the limit")
}

func TestNewModel_requiresAPIKey(t *testing.T) {
	_, err := NewModel(context.Background(), core.LLMConfig{}, "gemini-2.5-flash")
	assert.Equal(t, ErrNoAPIKey, err)
}

func TestNewModelOrDisabled(t *testing.T) {
	m, err := NewModelOrDisabled(context.Background(), core.LLMConfig{}, "gemini-2.5-flash")
	require.NoError(t, err)
	assert.IsType(t, Disabled{}, m)
	assert.Equal(t, "gemini-2.5-flash", m.Name())

	_, err = m.Generate(context.Background(), generate.Request{Task: generate.TaskLessonKind})
	assert.Equal(t, ErrNoAPIKey, err)
}
