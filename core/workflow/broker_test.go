package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(runID, status string) Event {
	return Event{Type: EventStatus, Snapshot: Snapshot{Run: Run{ID: runID, Status: status}}}
}

func TestMemoryBroker(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker()

	ch, cancel, err := b.Subscribe(ctx, "run1")
	require.NoError(t, err)
	other, cancelOther, err := b.Subscribe(ctx, "run2")
	require.NoError(t, err)
	defer cancelOther()

	require.NoError(t, b.Publish(ctx, event("run1", StatusRunning)))
	ev := <-ch
	assert.Equal(t, StatusRunning, ev.Snapshot.Status)
	assert.Len(t, other, 0, "events only reach the subscribers of their run")

	cancel()
	cancel() // idempotent
	_, open := <-ch
	assert.False(t, open)
	assert.NoError(t, b.Publish(ctx, event("run1", StatusCompleted)))
}

func TestMemoryBroker_slowSubscriberDropsOldest(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker()

	ch, cancel, err := b.Subscribe(ctx, "run")
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < subscriberBuffer+5; i++ {
		require.NoError(t, b.Publish(ctx, event("run", StatusRunning)))
	}
	require.NoError(t, b.Publish(ctx, event("run", StatusCompleted)))

	assert.Len(t, ch, subscriberBuffer)
	var last Event
	for i := 0; i < subscriberBuffer; i++ {
		last = <-ch
	}
	assert.Equal(t, StatusCompleted, last.Snapshot.Status)
}
