package brokersvc

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trezcool/darasa/core/workflow"
	cachesvc "github.com/trezcool/darasa/services/cache"
	logsvc "github.com/trezcool/darasa/services/logger"
)

func event(runID, status string) workflow.Event {
	return workflow.Event{Type: workflow.EventStatus, Snapshot: workflow.Snapshot{Run: workflow.Run{ID: runID, Status: status}}}
}

func TestForward_dropsOldest(t *testing.T) {
	out := make(chan workflow.Event, 2)
	forward(out, event("r", "a"))
	forward(out, event("r", "b"))
	forward(out, event("r", "c"))

	require.Len(t, out, 2)
	assert.Equal(t, "b", (<-out).Snapshot.Status)
	assert.Equal(t, "c", (<-out).Snapshot.Status)
}

// TestRedis runs against the server at REDIS_TEST_URL, if any.
func TestRedis(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL is not set")
	}
	ctx := context.Background()
	rdb, err := cachesvc.NewRedisClient(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	b := NewRedis(rdb, logsvc.NewZapLogger(zap.NewNop()))
	runID := uuid.New().String()
	events, cancel, err := b.Subscribe(ctx, runID)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, event(uuid.New().String(), workflow.StatusRunning)))
	require.NoError(t, b.Publish(ctx, event(runID, workflow.StatusCompleted)))

	select {
	case ev := <-events:
		assert.Equal(t, runID, ev.Snapshot.ID, "events of other runs are not delivered")
		assert.Equal(t, workflow.StatusCompleted, ev.Snapshot.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	cancel()
	_, open := <-events
	assert.False(t, open)
}
