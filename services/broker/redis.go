// Package brokersvc fans workflow events out across app instances.
package brokersvc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/workflow"
)

const subscriberBuffer = 16

func channel(runID string) string { return "workflow:run:" + runID }

// Redis is a workflow.Broker on redis pub/sub: any instance may serve the events of a run.
type Redis struct {
	rdb    *redis.Client
	logger core.Logger
}

var _ workflow.Broker = (*Redis)(nil)

func NewRedis(rdb *redis.Client, logger core.Logger) *Redis {
	return &Redis{rdb: rdb, logger: logger}
}

func (b *Redis) Publish(ctx context.Context, ev workflow.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return errors.Wrap(b.rdb.Publish(ctx, channel(ev.Snapshot.ID), raw).Err(), "redis publish")
}

func (b *Redis) Subscribe(ctx context.Context, runID string) (<-chan workflow.Event, func(), error) {
	ps := b.rdb.Subscribe(ctx, channel(runID))
	if _, err := ps.Receive(ctx); err != nil { // subscription confirmed
		_ = ps.Close()
		return nil, nil, errors.Wrap(err, "redis subscribe")
	}

	out := make(chan workflow.Event, subscriberBuffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var ev workflow.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn(fmt.Sprintf("brokersvc: decoding event of run %s: %v", runID, err), err)
				continue
			}
			forward(out, ev)
		}
		close(done)
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = ps.Close() // closes ps.Channel()
			<-done
		})
	}
	return out, cancel, nil
}

// forward never blocks: a slow subscriber loses its oldest pending event.
func forward(out chan workflow.Event, ev workflow.Event) {
	select {
	case out <- ev:
		return
	default:
	}
	select {
	case <-out:
	default:
	}
	select {
	case out <- ev:
	default:
	}
}
