package runcache

import (
	"bytes"
	"context"
	goerrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/run"
)

// RedisCache stores runs in Redis as TREC run text.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration // 0 = no expiry
}

// NewRedisCache creates a Redis-backed cache.
// Returns error if connection fails.
func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "parsing redis URL", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(errors.CodeUnavailable, "connecting to redis", err)
	}

	return &RedisCache{
		client: client,
		prefix: "rice:eval:run:",
		ttl:    ttl,
	}, nil
}

func (rc *RedisCache) key(tag string) string {
	return rc.prefix + tag
}

func (rc *RedisCache) Load(ctx context.Context, tag string) (*run.Run, error) {
	data, err := rc.client.Get(ctx, rc.key(tag)).Bytes()
	if err != nil {
		if goerrors.Is(err, redis.Nil) {
			return nil, errors.NotFoundError("run " + tag)
		}
		return nil, errors.IOError("loading run from redis", err)
	}

	r, err := run.Read(bytes.NewReader(data), rc.key(tag))
	if err != nil {
		return nil, err
	}
	r.Tag = tag
	return r, nil
}

func (rc *RedisCache) Save(ctx context.Context, r *run.Run) error {
	var buf bytes.Buffer
	if err := run.Write(&buf, r); err != nil {
		return err
	}

	if err := rc.client.Set(ctx, rc.key(r.Tag), buf.Bytes(), rc.ttl).Err(); err != nil {
		return errors.IOError("saving run to redis", err)
	}
	return nil
}

func (rc *RedisCache) Exists(ctx context.Context, tag string) (bool, error) {
	n, err := rc.client.Exists(ctx, rc.key(tag)).Result()
	if err != nil {
		return false, errors.IOError("checking run in redis", err)
	}
	return n > 0, nil
}

// Delete removes a stored run. Missing runs are not an error.
func (rc *RedisCache) Delete(ctx context.Context, tag string) error {
	if err := rc.client.Del(ctx, rc.key(tag)).Err(); err != nil {
		return errors.IOError("deleting run from redis", err)
	}
	return nil
}

// Close closes the Redis connection.
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}
