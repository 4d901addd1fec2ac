package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/tos_scan_server/internal/pkg/metrics"
	"github.com/qs3c/tos_scan_server/internal/pkg/ratelimit"
	"github.com/qs3c/tos_scan_server/internal/pkg/response"
	"github.com/qs3c/tos_scan_server/internal/plan"
)

// RateLimit 按用户套餐限流，需放在认证中间件之后
func RateLimit(limiter *ratelimit.Manager, catalog *plan.Catalog, defaultLimit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := GetUser(c)
		if !ok {
			c.Next()
			return
		}

		limit := catalog.Get(user.Plan).RateLimitPerMinute
		if limit <= 0 {
			limit = defaultLimit
		}

		result, err := limiter.Allow(c.Request.Context(), "user:"+strconv.FormatInt(user.ID, 10), limit)
		if err != nil {
			Logger(c).WithError(err).Warn("rate limit check failed")
			c.Next()
			return
		}

		if limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		}

		if !result.Allowed {
			metrics.RateLimitedTotal.Inc()
			retryAfter := int(time.Until(result.Reset).Seconds()) + 1
			if result.Reset.IsZero() || retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			Logger(c).WithField("limit", limit).Info("rate limited")
			response.RateLimitError(c, "")
			c.Abort()
			return
		}

		c.Next()
	}
}
