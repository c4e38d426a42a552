package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
	Burst         int
}

// RateLimitMiddleware limits requests per client IP. Health and metrics
// endpoints are never limited.
func RateLimitMiddleware(manager *RateLimitManager, cfg RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if manager == nil || shouldBypassRateLimit(c.Request) {
			c.Next()
			return
		}

		limiter := manager.GetVisitor(c.ClientIP(), cfg.Requests, cfg.WindowSeconds, cfg.Burst)
		if limiter != nil && !limiter.Allow() {
			abortWithError(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, please try again later")
			return
		}
		c.Next()
	}
}

// CriticalOperationRateLimit applies a separate, much smaller budget to
// expensive operations such as backups and imports.
func CriticalOperationRateLimit(manager *RateLimitManager, operation string, requestsPerWindow, windowSeconds int) gin.HandlerFunc {
	if requestsPerWindow <= 0 {
		requestsPerWindow = 5
	}
	if windowSeconds <= 0 {
		windowSeconds = 3600
	}

	return func(c *gin.Context) {
		if manager == nil || c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		limiter := manager.GetCriticalOperationLimiter(c.ClientIP(), operation, requestsPerWindow, windowSeconds)
		if limiter != nil && !limiter.Allow() {
			c.Header("Retry-After", fmt.Sprint(windowSeconds))
			abortWithError(c, http.StatusTooManyRequests, "RATE_LIMITED",
				fmt.Sprintf("too many %s requests, at most %d per %d seconds", operation, requestsPerWindow, windowSeconds))
			return
		}
		c.Next()
	}
}

func shouldBypassRateLimit(r *http.Request) bool {
	if r == nil || r.URL == nil {
		return false
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}

	switch r.URL.Path {
	case "/health", "/metrics":
		return true
	}
	return false
}
