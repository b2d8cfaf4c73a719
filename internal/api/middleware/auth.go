package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/certchain/internal/auth"
)

const (
	// AdminTokenHeader carries the shared admin token
	AdminTokenHeader = "X-Admin-Token"
	// OperatorHeader names the person acting through the admin token
	OperatorHeader = "X-Operator"
	// OperatorKey is the gin context key holding the operator
	OperatorKey = "operator"
)

// AdminAuth middleware checks for admin token
func AdminAuth(adminToken string, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(AdminTokenHeader)

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Admin token required",
			})
			return
		}

		if !auth.TokenMatches(token, adminToken) {
			logger.Warn("invalid admin token",
				"path", c.FullPath(),
				"client_ip", c.ClientIP(),
			)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Invalid admin token",
			})
			return
		}

		c.Next()
	}
}

// OperatorAuth requires the acting operator to identify themselves. It must
// run after AdminAuth.
func OperatorAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		operator := strings.TrimSpace(c.GetHeader(OperatorHeader))
		if operator == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Operator identity required",
			})
			return
		}

		c.Set(OperatorKey, operator)
		c.Next()
	}
}

// Operator returns the operator set by OperatorAuth
func Operator(c *gin.Context) string {
	return c.GetString(OperatorKey)
}
