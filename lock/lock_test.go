package lock

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMemory_SerializesSameKey(t *testing.T) {
	// GIVEN: 50 goroutines incrementing a shared counter under one key
	m := NewMemory()
	ctx := context.Background()
	counter := 0
	var wg sync.WaitGroup

	// WHEN: each increments inside the lock
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, "unit:a")
			if !assert.NoError(t, err) {
				return
			}
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
			unlock()
		}()
	}
	wg.Wait()

	// THEN: no increment is lost and the entry is dropped
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, m.Len())
}

func TestMemory_DifferentKeysDoNotBlock(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	unlockA, err := m.Lock(ctx, "unit:a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := m.Lock(ctx, "unit:b")
	require.NoError(t, err)
	unlockB()
}

func TestMemory_ContextDeadline(t *testing.T) {
	// GIVEN: a held key
	m := NewMemory()
	unlock, err := m.Lock(context.Background(), "unit:a")
	require.NoError(t, err)
	defer unlock()

	// WHEN: a second caller waits with a short deadline
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, "unit:a")

	// THEN: it gives up with ErrNotAcquired
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotAcquired)
}

func TestMemory_UnlockIsIdempotent(t *testing.T) {
	m := NewMemory()
	unlock, err := m.Lock(context.Background(), "unit:a")
	require.NoError(t, err)
	unlock()
	unlock()

	unlock, err = m.Lock(context.Background(), "unit:a")
	require.NoError(t, err)
	unlock()
	assert.Equal(t, 0, m.Len())
}

func TestRedis_RejectsBadInput(t *testing.T) {
	var nilLocker *Redis
	_, err := nilLocker.Lock(context.Background(), "k")
	assert.Error(t, err)

	l := NewRedisWithClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "", 0)
	defer l.Close()
	_, err = l.Lock(context.Background(), "")
	assert.Error(t, err)
	assert.Equal(t, defaultKeyPrefix, l.keyPrefix)
	assert.Equal(t, defaultTTL, l.ttl)
}

// Runs against a real server when SOA_TEST_REDIS_ADDR is set.
func TestRedis_Exclusive(t *testing.T) {
	addr := os.Getenv("SOA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SOA_TEST_REDIS_ADDR not set")
	}
	l, err := NewRedis(RedisConfig{Addr: addr, TTL: 5 * time.Second})
	require.NoError(t, err)
	defer l.Close()

	unlock, err := l.Lock(context.Background(), "test:unit:a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "test:unit:a")
	assert.ErrorIs(t, err, ErrNotAcquired)

	unlock()
	unlock2, err := l.Lock(context.Background(), "test:unit:a")
	require.NoError(t, err)
	unlock2()
}

func TestRedis_ReleaseFailureIsLogged(t *testing.T) {
	// GIVEN: a locker whose server is unreachable
	core, logs := observer.New(zap.WarnLevel)
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0", MaxRetries: -1})
	l := NewRedisWithClient(client, "", 0).WithLogger(zap.New(core))
	defer l.Close()

	// WHEN: a held key is released
	l.release(defaultKeyPrefix+"unit:a", "token")

	// THEN: the failure is logged with its key
	entries := logs.FilterMessage("lock release failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, defaultKeyPrefix+"unit:a", entries[0].ContextMap()["key"])
}

func TestRedis_WithLoggerIgnoresNil(t *testing.T) {
	l := NewRedisWithClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "", 0)
	defer l.Close()
	before := l.log
	assert.Same(t, before, l.WithLogger(nil).log)
}

// Runs against a real server when SOA_TEST_REDIS_ADDR is set.
func TestRedis_HolderOutlivesTTL(t *testing.T) {
	addr := os.Getenv("SOA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SOA_TEST_REDIS_ADDR not set")
	}
	l, err := NewRedis(RedisConfig{Addr: addr, TTL: 300 * time.Millisecond})
	require.NoError(t, err)
	defer l.Close()

	// GIVEN: a lock held for three times its TTL
	unlock, err := l.Lock(context.Background(), "test:unit:renew")
	require.NoError(t, err)
	time.Sleep(900 * time.Millisecond)

	// THEN: it is still exclusive
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "test:unit:renew")
	assert.ErrorIs(t, err, ErrNotAcquired)

	unlock()
	unlock()
}
