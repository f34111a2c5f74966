package cachesvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

const (
	keyPrefix = "cache:"
	tagPrefix = "cache-tag:"
)

// Redis is a core.Cache shared by every instance of the app.
// Each tag is a redis set holding the keys it labels.
type Redis struct {
	rdb *redis.Client
}

var _ core.Cache = (*Redis)(nil)

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func (c *Redis) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := c.rdb.Get(ctx, keyPrefix+key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "redis get %s", key)
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *Redis) Set(ctx context.Context, key string, val interface{}, ttl time.Duration, tags ...string) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, keyPrefix+key, raw, ttl)
		for _, tag := range tags {
			pipe.SAdd(ctx, tagPrefix+tag, key)
			if ttl > 0 {
				// a tag outlives the keys it labels, stale members are harmless
				pipe.Expire(ctx, tagPrefix+tag, 2*ttl)
			}
		}
		return nil
	})
	return errors.Wrapf(err, "redis set %s", key)
}

func (c *Redis) InvalidateTags(ctx context.Context, tags ...string) error {
	for _, tag := range tags {
		keys, err := c.rdb.SMembers(ctx, tagPrefix+tag).Result()
		if err != nil {
			return errors.Wrapf(err, "redis smembers %s", tag)
		}
		del := make([]string, 0, len(keys)+1)
		for _, k := range keys {
			del = append(del, keyPrefix+k)
		}
		del = append(del, tagPrefix+tag)
		if err = c.rdb.Del(ctx, del...).Err(); err != nil {
			return errors.Wrapf(err, "redis del %s", tag)
		}
	}
	return nil
}

// NewRedisClient connects to the redis server at url, eg. "redis://localhost:6379/0".
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis url")
	}
	rdb := redis.NewClient(opts)
	if err = rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return rdb, nil
}
