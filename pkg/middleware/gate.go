package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corestack/corestack/pkg/metrics"
)

// Protected returns a Gin middleware that admits only requests carrying
// the shared service key in the configured header. The comparison is
// constant-time and every failure mode (missing header, wrong key)
// yields the same response.
func Protected(header, serviceKey string) gin.HandlerFunc {
	expected := []byte(serviceKey)
	return func(c *gin.Context) {
		presented := []byte(c.GetHeader(header))
		if len(presented) == 0 || subtle.ConstantTimeCompare(presented, expected) != 1 {
			metrics.GateDenied.Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
