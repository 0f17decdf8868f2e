package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"invcore/internal/core/apperror"
	"invcore/internal/infrastructure/auth"
)

// JWTValidator checks a bearer token and returns the caller it identifies.
type JWTValidator interface {
	ValidateToken(tokenString string) (*auth.Principal, error)
}

// Auth rejects requests without a valid bearer token and stores the
// principal in the request context for handlers.
func Auth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, found := strings.Cut(header, " ")
		switch {
		case header == "":
			reject(c, "missing authorization header")
			return
		case !found || !strings.EqualFold(scheme, "bearer"):
			reject(c, "authorization header is not a bearer token")
			return
		}

		principal, err := validator.ValidateToken(token)
		if err != nil {
			reject(c, "invalid token")
			return
		}

		c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), principal))
		c.Set("user_id", principal.UserID)
		c.Next()
	}
}

func reject(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}
