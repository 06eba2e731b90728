package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const errUnauthorized = "Unauthorized"

// CtxUserID is the gin context key under which Auth stores the tenant. Every
// handler reads it; resources whose tenant_id differs are invisible to the
// caller, which is the whole authorization model of the core.
const CtxUserID = "userID"

// tenantClaims is the token shape the API accepts: the registered claims,
// with the subject carrying the tenant ID.
type tenantClaims struct {
	jwt.RegisteredClaims
}

// Auth validates a Bearer JWT (HS256 only) and stores the tenant ID from the
// subject claim under CtxUserID.
func Auth(jwtKey []byte) gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		rawToken, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			abortUnauthorized(c)
			return
		}

		var claims tenantClaims
		token, err := parser.ParseWithClaims(rawToken, &claims, func(_ *jwt.Token) (any, error) {
			return jwtKey, nil
		})
		if err != nil || !token.Valid {
			abortUnauthorized(c)
			return
		}

		tenantID := claims.Subject
		if tenantID == "" {
			abortUnauthorized(c)
			return
		}

		c.Set(CtxUserID, tenantID)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
}
