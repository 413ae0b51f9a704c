package ratelimit

import (
	"context"
	"fmt"

	"github.com/smallbiznis/estatebill/internal/config"
)

const keyActorRequests = "estatebill:api:actor:%s"

// ActorLimiter throttles mutating API calls per acting subject.
type ActorLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

// NewActorLimiter returns nil when redis or a positive rate is missing.
func NewActorLimiter(cfg config.Config, bucket *TokenBucket) *ActorLimiter {
	if bucket == nil || cfg.Redis.APIRatePerSecond <= 0 || cfg.Redis.APIBurst <= 0 {
		return nil
	}
	return &ActorLimiter{
		bucket: bucket,
		rate:   cfg.Redis.APIRatePerSecond,
		burst:  cfg.Redis.APIBurst,
	}
}

func (l *ActorLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *ActorLimiter) Allow(ctx context.Context, subject string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	if subject == "" {
		subject = "anonymous"
	}
	return l.bucket.Take(ctx, fmt.Sprintf(keyActorRequests, subject), l.rate, l.burst)
}
