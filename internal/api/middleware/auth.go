// Package middleware provides HTTP middleware for the chaingate REST API,
// including CORS origin gating and request logging.
package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
)

// CORS enforces an origin allow-list. An empty allowed list means "allow
// any origin" (wildcard), mirroring the allow-list-driven style the teacher
// used for its API key gate.
func CORS(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowOrigin := "*"
		if len(allowed) > 0 {
			allowOrigin = ""
			if origin != "" && slices.Contains(allowed, origin) {
				allowOrigin = origin
			}
		}

		if allowOrigin != "" {
			c.Header("Access-Control-Allow-Origin", allowOrigin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}
