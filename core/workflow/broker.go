package workflow

import (
	"context"
	"sync"
)

const subscriberBuffer = 16

// MemoryBroker fans events out to the subscribers of this process only.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // {runID: subscribers}
}

var _ Broker = (*MemoryBroker)(nil)

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[chan Event]struct{})}
}

// Publish never blocks: a slow subscriber loses its oldest pending event.
func (b *MemoryBroker) Publish(_ context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[ev.Snapshot.ID] {
		select {
		case ch <- ev:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context, runID string) (<-chan Event, func(), error) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.subs[runID] == nil {
		b.subs[runID] = make(map[chan Event]struct{})
	}
	b.subs[runID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[runID], ch)
			if len(b.subs[runID]) == 0 {
				delete(b.subs, runID)
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}
