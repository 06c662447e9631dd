package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pryx-co/pryx/internal/token"
)

// authMiddleware accepts either a Bearer token or the pryx_admin_token
// cookie, both compared in constant time against the current admin
// token.
func authMiddleware(tokens *token.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if header := c.GetHeader("Authorization"); header != "" {
			if candidate, ok := strings.CutPrefix(header, "Bearer "); ok {
				if tokens.Matches(candidate) {
					c.Next()
					return
				}
			}
		}

		if cookie, err := c.Cookie("pryx_admin_token"); err == nil {
			if tokens.Matches(cookie) {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}
