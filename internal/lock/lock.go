// Package lock provides a Redis advisory lock used to serialize payment
// recording per invoice across service instances.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	ErrLockHeld      = errors.New("lock_held")
	ErrInvalidKey    = errors.New("lock key is empty")
	ErrInvalidTTL    = errors.New("lock ttl must be positive")
	ErrNotConfigured = errors.New("lock client not configured")
)

// Locker hands out short-lived exclusive leases keyed by name. A lease that
// is never released expires after its TTL.
type Locker struct {
	client       *redis.Client
	script       *redis.Script
	prefix       string
	retryBackoff time.Duration
}

func NewLocker(client *redis.Client, prefix string) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client:       client,
		script:       redis.NewScript(releaseScript),
		prefix:       prefix,
		retryBackoff: 25 * time.Millisecond,
	}
}

// InvoicePaymentKey names the lease that guards payment recording on one
// invoice.
func InvoicePaymentKey(invoiceID string) string {
	return "invoice_payment:" + invoiceID
}

// Lease is a held lock. Release is safe to call more than once.
type Lease struct {
	locker *Locker
	key    string
	token  string
}

// TryLock acquires key without waiting. It returns ErrLockHeld when another
// holder owns the key.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if l == nil || l.client == nil {
		return nil, ErrNotConfigured
	}
	if key == "" {
		return nil, ErrInvalidKey
	}
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}

	fullKey := l.prefix + key
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lease{locker: l, key: fullKey, token: token}, nil
}

// Acquire retries TryLock until the key is free, wait elapses, or ctx is
// done. It returns ErrLockHeld when wait elapses first.
func (l *Locker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (*Lease, error) {
	deadline := time.Now().Add(wait)
	for {
		lease, err := l.TryLock(ctx, key, ttl)
		if !errors.Is(err, ErrLockHeld) {
			return lease, err
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockHeld
		}

		timer := time.NewTimer(l.retryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Release deletes the key only if this lease still owns it.
func (lease *Lease) Release(ctx context.Context) error {
	if lease == nil || lease.locker == nil || lease.token == "" {
		return nil
	}
	err := lease.locker.script.Run(ctx, lease.locker.client, []string{lease.key}, lease.token).Err()
	lease.token = ""
	return err
}
