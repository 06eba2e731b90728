package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/weskerllc/cronicorn/internal/repository"
)

// EnsureUser runs after Auth. It upserts the tenant into the users table
// (tier defaults to free) so the jobs/endpoints/runs FK constraints are
// always satisfied, even for a tenant seen for the first time.
func EnsureUser(repo repository.UserRepository, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetString(CtxUserID)
		if err := repo.Upsert(c.Request.Context(), tenantID); err != nil {
			logger.ErrorContext(c.Request.Context(), "ensure user upsert", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				gin.H{"error": "Internal server error"})
			return
		}
		c.Next()
	}
}
