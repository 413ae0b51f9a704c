package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/estatebill/internal/auditcontext"
	"github.com/smallbiznis/estatebill/internal/observability/logger"
	"go.uber.org/zap"
)

const rateLimitReasonActorRate = "actor-rate"

// ActorRateLimit throttles mutating calls per acting subject. It is a no-op
// unless the redis token bucket is configured.
func (s *Server) ActorRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.actorLimiter == nil || !s.actorLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		subject := auditcontext.ActorSubject(ctx)
		result, err := s.actorLimiter.Allow(ctx, subject)
		if err != nil {
			logger.WithContext(ctx, s.log).Warn("actor rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			denyActorRateLimit(c, s.log, subject, result.RetryAfter.Seconds())
			return
		}
		c.Next()
	}
}

func denyActorRateLimit(c *gin.Context, log *zap.Logger, subject string, retryAfterSeconds float64) {
	logger.WithContext(c.Request.Context(), log).Warn("actor rate limit exceeded",
		zap.String("reason", rateLimitReasonActorRate),
		zap.String("subject", subject),
		zap.String("endpoint", normalizeRateLimitEndpoint(c)),
	)

	retryAfter := int(math.Ceil(retryAfterSeconds))
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-Rate-Limited-Reason", rateLimitReasonActorRate)
	AbortWithError(c, ErrRateLimited)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
