package tokenstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the pair as two string keys: <prefix>accessToken and
// <prefix>refreshToken. Both are set (or deleted) inside one MULTI/EXEC.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces the keys, e.g. "teamdash:default:".
	Prefix string
}

// NewRedisStore dials Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, fmt.Errorf("%w: empty redis addr", ErrConfig)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewRedisStoreWithClient(client, opts.Prefix), nil
}

// NewRedisStoreWithClient wraps an existing client. The store takes ownership
// of client for Close.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(name string) string { return s.prefix + name }

func (s *RedisStore) Load(ctx context.Context) (Pair, error) {
	vals, err := s.client.MGet(ctx, s.key(KeyAccess), s.key(KeyRefresh)).Result()
	if err != nil {
		return Pair{}, fmt.Errorf("tokenstore: redis mget: %w", err)
	}

	var p Pair
	if len(vals) == 2 {
		p.Access, _ = vals[0].(string)
		p.Refresh, _ = vals[1].(string)
	}
	return p, nil
}

func (s *RedisStore) Save(ctx context.Context, p Pair) error {
	if err := p.validate(); err != nil {
		return err
	}
	if p.Empty() {
		return s.Clear(ctx)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(KeyAccess), p.Access, 0)
		pipe.Set(ctx, s.key(KeyRefresh), p.Refresh, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("tokenstore: redis save: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key(KeyAccess), s.key(KeyRefresh)).Err(); err != nil {
		return fmt.Errorf("tokenstore: redis clear: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error { return s.client.Close() }
