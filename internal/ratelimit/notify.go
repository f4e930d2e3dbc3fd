package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/skolara/skolara/internal/config"
)

const (
	keyBroadcastLock = "notify:broadcast:lock:%d:%s"
	keyUserChannel   = "notify:user:%d:%s"
)

// NotifyLimiter guards notification fan-out: a per-tenant broadcast lock so
// the same broadcast is not run twice concurrently, and a per-user channel
// budget so a misbehaving producer cannot flood one recipient. A nil limiter
// (rate limiting disabled) allows everything.
type NotifyLimiter struct {
	bucket  *TokenBucket
	locker  *Locker
	rate    float64
	burst   int
	lockTTL time.Duration
}

func NewNotifyLimiter(cfg config.Config) (*NotifyLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.UserChannelRate <= 0 || limitCfg.UserChannelBurst <= 0 {
		return nil, errors.New("user channel rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &NotifyLimiter{
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		rate:    limitCfg.UserChannelRate,
		burst:   limitCfg.UserChannelBurst,
		lockTTL: time.Duration(limitCfg.BroadcastLockTTLSeconds) * time.Second,
	}, nil
}

func (l *NotifyLimiter) Enabled() bool {
	return l != nil
}

// AllowUserChannel reports whether one more send to (userID, channel) fits
// the budget. Limiter errors fail open: delivery matters more than quota
// bookkeeping.
func (l *NotifyLimiter) AllowUserChannel(ctx context.Context, userID int64, channel string) bool {
	if !l.Enabled() {
		return true
	}
	allowed, err := l.bucket.Allow(ctx, fmt.Sprintf(keyUserChannel, userID, channel), l.rate, l.burst)
	if err != nil {
		return true
	}
	return allowed
}

// AcquireBroadcast takes the per-tenant broadcast lock for key. The returned
// release func is a no-op when the limiter is disabled.
func (l *NotifyLimiter) AcquireBroadcast(ctx context.Context, schoolID int64, key string) (func(), bool, error) {
	if !l.Enabled() {
		return func() {}, true, nil
	}
	lockKey := fmt.Sprintf(keyBroadcastLock, schoolID, key)
	token, ok, err := l.locker.TryLock(ctx, lockKey, l.lockTTL)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		_ = l.locker.Release(context.Background(), lockKey, token)
	}
	return release, true, nil
}
