package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockNotAcquired means another request holds the slot lock right now.
	ErrLockNotAcquired = errors.New("slot lock not acquired")
	// ErrLockUnavailable means Redis could not be asked for the lock at all.
	ErrLockUnavailable = errors.New("slot lock unavailable")
)

// Outcomes reported to a lock observer.
const (
	LockAcquired  = "acquired"
	LockContended = "contended"
	LockError     = "error"
)

const defaultLockPrefix = "therapy:slot-lock:"

// Locker is used by the scheduling engine to shed contention on one slot before the conditional
// slot write runs.
type Locker interface {
	WithSlotLock(ctx context.Context, slotID string, fn func(ctx context.Context) error) error
}

type SlotLocker struct {
	client  *redis.Client
	ttl     time.Duration
	prefix  string
	observe func(outcome string)
}

type LockOption func(*SlotLocker)

// WithKeyPrefix namespaces the lock keys, e.g. per environment sharing one Redis.
func WithKeyPrefix(prefix string) LockOption {
	return func(l *SlotLocker) { l.prefix = prefix }
}

// WithObserver receives one outcome per acquisition attempt.
func WithObserver(fn func(outcome string)) LockOption {
	return func(l *SlotLocker) { l.observe = fn }
}

// NewSlotLocker creates a locker keyed per slot id. The ttl bounds both the key and the time
// fn may run under the lock.
func NewSlotLocker(client *redis.Client, ttl time.Duration, opts ...LockOption) *SlotLocker {
	l := &SlotLocker{
		client:  client,
		ttl:     ttl,
		prefix:  defaultLockPrefix,
		observe: func(string) {},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *SlotLocker) key(slotID string) string {
	return l.prefix + slotID
}

// WithSlotLock runs fn while holding the slot's lock. It returns ErrLockNotAcquired when another
// holder exists and wraps ErrLockUnavailable when Redis fails.
func (l *SlotLocker) WithSlotLock(ctx context.Context, slotID string, fn func(ctx context.Context) error) error {
	key := l.key(slotID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		l.observe(LockError)
		return fmt.Errorf("%w: %w", ErrLockUnavailable, err)
	}
	if !ok {
		l.observe(LockContended)
		return ErrLockNotAcquired
	}
	l.observe(LockAcquired)

	// released even when the caller's context is already done
	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	lockCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(lockCtx)
}

// Holder returns the token currently holding the slot lock, or "" when it is free.
func (l *SlotLocker) Holder(ctx context.Context, slotID string) (string, error) {
	token, err := l.client.Get(ctx, l.key(slotID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLockUnavailable, err)
	}
	return token, nil
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *SlotLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}
