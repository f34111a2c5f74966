package core

import (
	"context"
	"time"
)

// Cache stores JSON-serializable values under keys, each key optionally labelled with tags.
// Invalidating a tag removes every key that was set with it.
type Cache interface {
	// Get decodes the cached value of key into dest and reports whether it was found.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, val interface{}, ttl time.Duration, tags ...string) error
	InvalidateTags(ctx context.Context, tags ...string) error
}

// CacheTag builds the tag of a single resource, eg. CacheTag("course", id) -> "course:<id>".
func CacheTag(kind, id string) string {
	return kind + ":" + id
}

// NopCache never stores anything.
type NopCache struct{}

var _ Cache = NopCache{}

func (NopCache) Get(context.Context, string, interface{}) (bool, error) { return false, nil }

func (NopCache) Set(context.Context, string, interface{}, time.Duration, ...string) error { return nil }

func (NopCache) InvalidateTags(context.Context, ...string) error { return nil }
