package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// OnceLedger records one-time tokens in Redis so a second redemption can be refused.
type OnceLedger struct {
	client setNXer
	prefix string
}

// NewOnceLedger returns a ledger storing keys under prefix.
func NewOnceLedger(client setNXer, prefix string) *OnceLedger {
	if prefix == "" {
		prefix = "once"
	}
	return &OnceLedger{client: client, prefix: prefix}
}

// Claim marks token as used until ttl elapses. It returns false when the
// token was already claimed.
func (l *OnceLedger) Claim(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Second
	}
	ok, err := l.client.SetNX(ctx, l.prefix+":"+token, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim token: %w", err)
	}
	return ok, nil
}
