package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/weskerllc/cronicorn/internal/requestid"
)

// maxRequestIDLen bounds externally supplied IDs; anything longer (or
// containing control characters) is replaced, not trusted, so a hostile
// header cannot inject into structured logs.
const maxRequestIDLen = 64

// RequestID injects a request ID into the context and response header. A
// well-formed incoming X-Request-ID is preserved so callers can correlate
// retries; a missing or malformed one is replaced with a fresh UUID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if !validRequestID(id) {
			id = requestid.New()
		}

		ctx := requestid.WithRequestID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	return !strings.ContainsFunc(id, func(r rune) bool {
		return r < 0x20 || r == 0x7f
	})
}
