package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLease is a short-lived per-rule execution lock backed by SET NX.
// It prevents two concurrent triggers of the same rule from double-executing
// actions; a crashed holder is released by the TTL.
//
// With a nil client (cache disabled) every Acquire succeeds, matching the
// historical behavior of running without mutual exclusion.
type RedisLease struct {
	rc     *redis.Client
	prefix string
	ttl    time.Duration

	// token distinguishes this process's leases so Release never drops a
	// lease re-acquired by another process after our TTL expired.
	token string
}

// NewRedisLease creates a lease manager; ttl bounds a crashed invocation
func NewRedisLease(rc *redis.Client, prefix string, ttl time.Duration) *RedisLease {
	if prefix == "" {
		prefix = "tokopulse"
	}
	return &RedisLease{
		rc:     rc,
		prefix: prefix,
		ttl:    ttl,
		token:  uuid.NewString(),
	}
}

func (l *RedisLease) key(ruleID uint) string {
	return fmt.Sprintf("%s:rule_lease:%d", l.prefix, ruleID)
}

// Acquire takes the rule's lease. false means another invocation holds it and
// the caller should no-op cleanly.
func (l *RedisLease) Acquire(ctx context.Context, ruleID uint) (bool, error) {
	if l.rc == nil {
		return true, nil
	}

	ok, err := l.rc.SetNX(ctx, l.key(ruleID), l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire rule lease: %w", err)
	}
	return ok, nil
}

// Release drops the lease if this process still holds it
func (l *RedisLease) Release(ctx context.Context, ruleID uint) error {
	if l.rc == nil {
		return nil
	}

	// Compare-and-delete so an expired-and-stolen lease is left alone.
	const script = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`
	if err := l.rc.Eval(ctx, script, []string{l.key(ruleID)}, l.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release rule lease: %w", err)
	}
	return nil
}
