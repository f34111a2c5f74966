package logsvc

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

func TestZapLogger(t *testing.T) {
	zcore, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(zcore))

	usr := user.User{ID: "42", Email: "me@test.cd"}
	logger.Error("boom", errors.New("kaput"), usr, map[string]interface{}{"run": "r1"}, 7)
	logger.Info("hello")

	require.Equal(t, 2, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "boom", entry.Message)
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)

	ctx := entry.ContextMap()
	assert.Equal(t, "kaput", ctx["error"])
	assert.Equal(t, "42", ctx["user_id"])
	assert.Equal(t, "me@test.cd", ctx["user_email"])
	assert.Equal(t, "r1", ctx["run"])
	assert.EqualValues(t, 7, ctx["arg3"])

	assert.Equal(t, "hello", logs.All()[1].Message)
}

func TestRollbarLogger_DisabledInTests(t *testing.T) {
	zcore, logs := observer.New(zapcore.InfoLevel)
	logger := NewRollbarLogger(zap.New(zcore), core.NewTestConfig())

	logger.Warn("careful", user.User{ID: "1"})
	logger.Debug("filtered out")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "careful", logs.All()[0].Message)
}
