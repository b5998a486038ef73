package locks

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis is a Locker shared by every replica through redsync.
type Redis struct {
	client *redis.Client
	rs     *redsync.Redsync
	ttl    time.Duration
	log    zerolog.Logger
}

func NewRedis(ctx context.Context, url string, ttl time.Duration, log zerolog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	logger := log.With().Str("component", "redis-locks").Logger()
	logger.Info().Msg("connected to redis for upload locks")
	return &Redis{
		client: client,
		rs:     redsync.New(goredis.NewPool(client)),
		ttl:    ttl,
		log:    logger,
	}, nil
}

func (r *Redis) WithLock(ctx context.Context, keys []string, fn func() error) error {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	held := make([]*redsync.Mutex, 0, len(sorted))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			if _, err := held[i].UnlockContext(context.WithoutCancel(ctx)); err != nil {
				r.log.Error().Err(err).Str("lock", held[i].Name()).Msg("failed to unlock mutex")
			}
		}
	}()

	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		m := r.rs.NewMutex("upload-service:"+key, redsync.WithExpiry(r.ttl))
		if err := m.LockContext(ctx); err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		held = append(held, m)
	}
	return fn()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
