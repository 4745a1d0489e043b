package middlewares

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"edith/services"

	"github.com/gin-gonic/gin"
)

const rateLimitMessage = "Too many requests from this IP, please try again later."

// RateLimit counts every request whose path starts with prefix, matched route
// or not, and answers 429 once the caller's window is exhausted. Governor
// errors let the request through.
func RateLimit(governor services.RateGovernor, prefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, prefix) {
			c.Next()
			return
		}

		decision, err := governor.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			slog.Error("Rate governor unavailable, allowing request", "error", err)
			c.Next()
			return
		}

		c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		reset := int(time.Until(decision.ResetAt).Seconds())
		if reset < 0 {
			reset = 0
		}
		c.Header("RateLimit-Reset", strconv.Itoa(reset))

		if !decision.Allowed {
			services.RecordGovernorRejection()
			c.Header("Retry-After", strconv.Itoa(reset))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": rateLimitMessage})
			return
		}
		c.Next()
	}
}
