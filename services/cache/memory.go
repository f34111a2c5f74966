// Package cachesvc implements core.Cache in memory & on redis.
package cachesvc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/trezcool/darasa/core"
)

type memEntry struct {
	val       []byte
	expiresAt time.Time // zero: never
	tags      []string
}

// Memory is an in-process core.Cache, for a single instance deployment & tests.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memEntry
	tagged  map[string]map[string]struct{} // tag -> keys
	now     func() time.Time
}

var _ core.Cache = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memEntry),
		tagged:  make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

func (c *Memory) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.deleteLocked(key)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(e.val, dest)
}

func (c *Memory) Set(_ context.Context, key string, val interface{}, ttl time.Duration, tags ...string) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	e := memEntry{val: raw, tags: tags}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteLocked(key)
	c.entries[key] = e
	for _, tag := range tags {
		keys, ok := c.tagged[tag]
		if !ok {
			keys = make(map[string]struct{})
			c.tagged[tag] = keys
		}
		keys[key] = struct{}{}
	}
	return nil
}

func (c *Memory) InvalidateTags(_ context.Context, tags ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tag := range tags {
		for key := range c.tagged[tag] {
			c.deleteLocked(key)
		}
		delete(c.tagged, tag)
	}
	return nil
}

func (c *Memory) deleteLocked(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	delete(c.entries, key)
	for _, tag := range e.tags {
		if keys, ok := c.tagged[tag]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(c.tagged, tag)
			}
		}
	}
}
