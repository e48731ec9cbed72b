package cache

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/encoding/json"

	"github.com/national-talent-atm/data-retrieval/pkg/common/errors"
	"github.com/national-talent-atm/data-retrieval/pkg/metrics"
)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Client redis.UniversalClient
	// Prefix is prepended to every key. Defaults to "retrieve:".
	Prefix string
	// TTL expires entries; zero keeps them forever.
	TTL     time.Duration
	Metrics *metrics.Registry
}

// RedisStore keeps bodies as Redis strings.
type RedisStore struct {
	config RedisConfig
	instrumented
}

// NewRedisStore returns a RedisStore. The client is not closed by Close.
func NewRedisStore(config RedisConfig) *RedisStore {
	if config.Prefix == "" {
		config.Prefix = "retrieve:"
	}
	return &RedisStore{config: config, instrumented: instrumented{name: "redis", metrics: config.Metrics}}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	body, err := s.config.Client.Get(ctx, s.config.Prefix+key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		err = errors.ErrNotFound
	}
	s.lookup(err)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, body []byte) error {
	err := s.config.Client.Set(ctx, s.config.Prefix+key, body, s.config.TTL).Err()
	s.wrote("body", err)
	return err
}

func (s *RedisStore) PutError(ctx context.Context, key string, index int, cause error) error {
	data, err := json.Marshal(NewErrorRecord(cause))
	if err != nil {
		return err
	}
	err = s.config.Client.Set(ctx, s.config.Prefix+ErrorKey(index, key), data, s.config.TTL).Err()
	s.wrote("error", err)
	return err
}

func (s *RedisStore) Close() error { return nil }
