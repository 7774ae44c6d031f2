package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const extendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

const (
	defaultKeyPrefix = "condo-soa:lock:"
	defaultTTL       = 30 * time.Second
	defaultRetry     = 50 * time.Millisecond
)

// RedisConfig holds Redis connection configuration.
//
// TTL bounds how long a crashed holder blocks the key. A live holder renews
// it every TTL/3, so a transaction may outlast it; the lock is only lost when
// renewal fails for a full TTL.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Logger   *zap.Logger
}

// Redis is a distributed Locker over SET NX. A holder that dies releases
// implicitly when the TTL expires.
type Redis struct {
	client    *redis.Client
	script    *redis.Script
	extend    *redis.Script
	keyPrefix string
	ttl       time.Duration
	retry     time.Duration
	log       *zap.Logger
}

// NewRedis connects and pings the server.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisWithClient(client, "", cfg.TTL).WithLogger(cfg.Logger), nil
}

// NewRedisWithClient wraps an existing client. Empty prefix and zero ttl use defaults.
func NewRedisWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *Redis {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{
		client:    client,
		script:    redis.NewScript(releaseScript),
		extend:    redis.NewScript(extendScript),
		keyPrefix: keyPrefix,
		ttl:       ttl,
		retry:     defaultRetry,
		log:       zap.NewNop(),
	}
}

// WithLogger sets the logger for renewal and release failures. Nil keeps the current one.
func (l *Redis) WithLogger(log *zap.Logger) *Redis {
	if log != nil {
		l.log = log
	}
	return l
}

func (l *Redis) Lock(ctx context.Context, key string) (func(), error) {
	if l == nil || l.client == nil {
		return nil, errors.New("lock client not configured")
	}
	if key == "" {
		return nil, errors.New("lock key is empty")
	}

	fullKey := l.keyPrefix + key
	token := uuid.NewString()
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			stop := make(chan struct{})
			done := make(chan struct{})
			go l.keepAlive(fullKey, token, stop, done)
			var once sync.Once
			return func() {
				once.Do(func() {
					close(stop)
					<-done
					l.release(fullKey, token)
				})
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}
}

// keepAlive extends the key's TTL every ttl/3 until stop closes or the key
// no longer holds token.
func (l *Redis) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := l.ttl / 3
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		n, err := l.extend.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int64()
		cancel()
		switch {
		case err != nil:
			l.log.Warn("lock renewal failed", zap.String("key", key), zap.Error(err))
		case n == 0:
			l.log.Error("lock lost before release", zap.String("key", key))
			return
		}
	}
}

// release deletes the key if it still holds token. It runs on a fresh context
// so a cancelled request still unlocks.
func (l *Redis) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, err := l.script.Run(ctx, l.client, []string{key}, token).Int64()
	switch {
	case err != nil:
		l.log.Warn("lock release failed", zap.String("key", key), zap.Error(err))
	case n == 0:
		l.log.Warn("lock expired before release", zap.String("key", key))
	}
}

// Close closes the Redis client.
func (l *Redis) Close() error {
	return l.client.Close()
}

var _ Locker = (*Redis)(nil)
