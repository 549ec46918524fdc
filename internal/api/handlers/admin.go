package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cuepool/backend/internal/admin"
)

// RequireOperator checks the operator console token on every admin route.
func RequireOperator(svc *admin.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "operator token required"})
			return
		}
		if err := svc.VerifyOperatorToken(c.Request.Context(), token); err != nil {
			svc.LogAction(c.Request.Context(), c.ClientIP(), c.FullPath(), "auth", false)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid operator token"})
			return
		}
		c.Next()
	}
}

// OperatorSummary handles GET /admin/summary: accumulated fees and totals.
func OperatorSummary(svc *admin.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc.LogAction(c.Request.Context(), c.ClientIP(), c.FullPath(), "summary", true)
		c.JSON(http.StatusOK, svc.Summarize())
	}
}
