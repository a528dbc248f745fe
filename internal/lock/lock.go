// Package lock serializes purchases against one machine.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iurnickita/vending/internal/lock/config"
)

// Locker grants exclusive access to a machine until the returned unlock
// function is called.
type Locker interface {
	Lock(ctx context.Context, machineID string) (unlock func(), err error)
}

var ErrUnknownProvider = errors.New("unknown lock provider")

// NewLocker builds the locker selected by cfg.Provider.
func NewLocker(ctx context.Context, cfg config.Config) (Locker, func(), error) {
	switch cfg.Provider {
	case "", config.ProviderMemory:
		return NewMemoryLocker(), func() {}, nil
	case config.ProviderNone:
		return NopLocker{}, func() {}, nil
	case config.ProviderRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return NewRedisLocker(rdb, cfg.TTL), func() { _ = rdb.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// NopLocker leaves serialization to the store's compare-and-commit.
type NopLocker struct{}

func (NopLocker) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}

// MemoryLocker holds one channel-based mutex per machine in this process.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]chan struct{})}
}

func (l *MemoryLocker) Lock(ctx context.Context, machineID string) (func(), error) {
	l.mu.Lock()
	ch, ok := l.locks[machineID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[machineID] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Снятие блокировки только владельцем токена
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes machines across processes with SET NX PX. The TTL
// bounds how long a crashed holder can block a machine.
type RedisLocker struct {
	rdb   *redis.Client
	ttl   time.Duration
	retry time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, retry: 10 * time.Millisecond}
}

func lockKey(machineID string) string {
	return fmt.Sprintf("vending:lock:machine:%s", machineID)
}

func (l *RedisLocker) Lock(ctx context.Context, machineID string) (func(), error) {
	key := lockKey(machineID)
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire machine lock: %w", err)
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					// контекст запроса может быть уже отменен
					_ = unlockScript.Run(context.Background(), l.rdb, []string{key}, token).Err()
				})
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
