package redis

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	defaultTimeout = time.Second
	scanBatch      = 256
)

// Store keeps every key in one redis database. Each call gets its own
// timeout so a stalled server degrades to a cache miss instead of a hang.
type Store struct {
	client  redis.UniversalClient
	timeout time.Duration
}

func NewStore(client redis.UniversalClient, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{
		client:  client,
		timeout: timeout,
	}
}

// Connect opens a client and checks it with a PING.
func Connect(ctx context.Context, opts *redis.Options) (*Store, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout+defaultTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewStore(client, opts.ReadTimeout), nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	v, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.client.Set(ctx, key, value, 0).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.client.Del(ctx, key).Err()
}

// DeleteMany removes keys through a single pipeline. It is not atomic.
func (s *Store) DeleteMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	pipe := s.client.Pipeline()
	for start := 0; start < len(keys); start += scanBatch {
		end := min(start+scanBatch, len(keys))
		pipe.Del(ctx, keys[start:end]...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Keys walks the database with SCAN rather than KEYS so large databases do
// not block the server.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, "*", scanBatch).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (s *Store) Close() error {
	return s.client.Close()
}
