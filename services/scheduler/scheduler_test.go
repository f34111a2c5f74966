package schedulersvc

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	logsvc "github.com/trezcool/darasa/services/logger"
)

func TestScheduler(t *testing.T) {
	s := New(logsvc.NewZapLogger(zap.NewNop()))
	assert.Error(t, s.Add("bad", "not a spec", func(context.Context) error { return nil }))

	var ran, failed int32
	require.NoError(t, s.Add("ok", "@every 1s", func(context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	}))
	require.NoError(t, s.Add("failing", "@every 1s", func(context.Context) error {
		atomic.AddInt32(&failed, 1)
		return errors.New("boom")
	}))
	require.NoError(t, s.Add("panicking", "@every 1s", func(context.Context) error { panic("boom") }))

	var cancelled int32
	require.NoError(t, s.Add("long", "@every 1s", func(ctx context.Context) error {
		<-ctx.Done()
		atomic.StoreInt32(&cancelled, 1)
		return ctx.Err()
	}))

	s.Start()
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&ran) > 0 && atomic.LoadInt32(&failed) > 0
	}, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.Equal(t, int32(1), atomic.LoadInt32(&cancelled), "running jobs are cancelled on stop")
}
