package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "oracle:"

// RedisSource reads quotes that external publishers keep at
// "oracle:<ref>" as JSON. The engine never writes these keys.
type RedisSource struct {
	rdb *redis.Client
}

// NewRedisSource connects a quote source to a Redis instance.
func NewRedisSource(addr string) *RedisSource {
	return &RedisSource{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// Latest fetches and decodes the quote for ref.
func (s *RedisSource) Latest(ctx context.Context, ref string) (Quote, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+ref).Result()
	if err == redis.Nil {
		return Quote{}, fmt.Errorf("%w: no quote for %s", ErrUnavailable, ref)
	}
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var q Quote
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return Quote{}, fmt.Errorf("%w: malformed quote for %s", ErrUnavailable, ref)
	}
	return q, nil
}

// Close releases the underlying connection pool.
func (s *RedisSource) Close() error {
	return s.rdb.Close()
}
