package middleware

import (
	"fmt"
	"strconv"
	"time"

	"freight-commission-ledger/internal/core/ports"
	"freight-commission-ledger/pkg/apperror"
	"freight-commission-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRateLimitRules returns the per-group limits.
func DefaultRateLimitRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		"offers_create":   {Limit: 30, Window: time.Minute},
		"offers_respond":  {Limit: 60, Window: time.Minute},
		"shipments":       {Limit: 30, Window: time.Minute},
		"wallets":         {Limit: 60, Window: time.Minute},
		"wallets_deposit": {Limit: 20, Window: time.Minute},
	}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
// Counter failures let the request through.
func RateLimiter(limiter ports.RateLimiter, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", extractIdentifier(c), group)

		result, err := limiter.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := max(result.ResetAt-time.Now().Unix(), 1)
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractIdentifier keys limits by account when authenticated, else by client IP.
func extractIdentifier(c *gin.Context) string {
	if accountID, ok := AccountID(c); ok {
		return accountID.String()
	}
	return c.ClientIP()
}
