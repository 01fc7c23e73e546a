package middlewares

import (
	"context"
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/commissions_backend/utils"
	"github.com/gin-gonic/gin"
)

type authString string

const authContextKey = authString("auth")

// AuthMiddleware validates an optional JWT bearer token and stashes its
// claims on the request context. Requests without an Authorization header
// pass through untouched; the session middleware handles those.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		if auth == "" {
			c.Next()
			return
		}

		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		validated, err := utils.JwtValidate(token)
		if err != nil || !validated.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		claim, _ := validated.Claims.(*utils.JwtCustomClaim)
		ctx := context.WithValue(c.Request.Context(), authContextKey, claim)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CtxValue returns the JWT claims attached by AuthMiddleware, or nil.
func CtxValue(ctx context.Context) *utils.JwtCustomClaim {
	raw, _ := ctx.Value(authContextKey).(*utils.JwtCustomClaim)
	return raw
}
