package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL bounds how long a crashed holder can block a group.
	DefaultTTL = 5 * time.Second
	// DefaultWait bounds how long Lock polls before giving up.
	DefaultWait = 3 * time.Second

	keyPrefix    = "lock:"
	pollInterval = 10 * time.Millisecond
	maxPoll      = 100 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every server process using the same Redis.
type RedisLocker struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
	wait   time.Duration
}

// RedisOption configures a RedisLocker.
type RedisOption func(*RedisLocker)

// WithTTL sets the lock expiry.
func WithTTL(d time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if d > 0 {
			l.ttl = d
		}
	}
}

// WithWait sets how long Lock waits for a busy key.
func WithWait(d time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if d > 0 {
			l.wait = d
		}
	}
}

// WithLogger sets the logger used for release failures.
func WithLogger(logger *slog.Logger) RedisOption {
	return func(l *RedisLocker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewRedisLocker connects to redisURL and verifies the connection.
func NewRedisLocker(ctx context.Context, redisURL string, opts ...RedisOption) (*RedisLocker, error) {
	ropts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(ropts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisLockerWithClient(client, opts...), nil
}

// NewRedisLockerWithClient wraps an existing client.
func NewRedisLockerWithClient(client *redis.Client, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client: client,
		logger: slog.New(slog.DiscardHandler),
		ttl:    DefaultTTL,
		wait:   DefaultWait,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock polls SET NX until it owns key, the wait limit passes or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	rkey := keyPrefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	delay := pollInterval

	for {
		ok, err := l.client.SetNX(ctx, rkey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return l.unlocker(rkey, token), nil
		}
		if time.Now().Add(delay).After(deadline) {
			return nil, ErrTimeout
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
		delay = min(delay*2, maxPoll)
	}
}

func (l *RedisLocker) unlocker(rkey, token string) Unlock {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{rkey}, token).Err(); err != nil {
				l.logger.Warn("failed to release lock", "key", rkey, "error", err)
			}
		})
	}
}

// Ping checks Redis is reachable.
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
