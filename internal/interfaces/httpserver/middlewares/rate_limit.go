package middlewares

import (
	"math"
	"net"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"agentforge/chat-api/internal/infrastructure/metrics"
	"agentforge/chat-api/internal/infrastructure/ratelimit"
	"agentforge/chat-api/internal/interfaces/httpserver/responses"
	"agentforge/chat-api/internal/utils/platformerrors"
)

// RateLimitMiddleware admits requests per user, or per client IP for
// anonymous callers. Limiter failures let the request through.
func RateLimitMiddleware(limiter ratelimit.Limiter, logger zerolog.Logger) gin.HandlerFunc {
	logger = logger.With().Str("component", "rate-limit").Logger()
	return func(c *gin.Context) {
		key := "ip:" + clientIP(c.ClientIP())
		if userID := c.GetString(userIDKey); userID != "" {
			key = "user:" + userID
		}
		decision, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			logger.Error().Err(err).Msg("rate limiter unavailable")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			metrics.RateLimitedTotal.Inc()
			retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			responses.HandleNewError(c, platformerrors.ErrorTypeRateLimited, "too many requests", "2f8c4e1a-6b3d-4a57-9e0c-d1b7a5f3c829")
			return
		}
		c.Next()
	}
}

func clientIP(raw string) string {
	if raw == "" {
		return "unknown"
	}
	if ip := net.ParseIP(raw); ip != nil {
		return ip.String()
	}
	return raw
}
