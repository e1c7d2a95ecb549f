package middleware

import (
	"crypto/subtle"
	"net/http"

	"marketplace-auth/internal/logger"
	"marketplace-auth/internal/metrics"
	"marketplace-auth/internal/session"

	"github.com/gin-gonic/gin"
)

const CSRFHeader = "X-CSRF-Token"

// RequireCSRF rejects state-changing requests whose X-CSRF-Token header does
// not match both the csrf cookie and the token bound to the session.
// It must run after GinRequireAuth.
func RequireCSRF(csrf *session.CSRF, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		sess, ok := SessionFromContext(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session required"})
			return
		}

		presented := c.GetHeader(CSRFHeader)
		cookie, err := c.Request.Cookie(session.CSRFCookieName)

		valid := err == nil &&
			csrf.Verify(cookie.Value, presented) == nil &&
			subtle.ConstantTimeCompare([]byte(presented), []byte(sess.CSRFToken)) == 1

		if !valid {
			if m != nil {
				m.CSRFRejections.Inc()
			}
			logger.Warn("csrf validation failed", map[string]any{
				"sid":    logger.Prefix(sess.SessionID),
				"path":   c.FullPath(),
				"method": c.Request.Method,
			})
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "csrf token validation failed"})
			return
		}

		c.Next()
	}
}
