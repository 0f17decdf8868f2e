// Package middleware holds the gin middleware chain: panic recovery,
// request metrics, access logging, error rendering, and JWT auth.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"invcore/internal/core/apperror"
	"invcore/pkg/logger"
)

// Recovery converts a handler panic into an INTERNAL error response. The
// stack goes to the log only; the client sees the generic envelope.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error(c.Request.Context(), "panic recovered",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			_ = c.Error(apperror.NewInternal(fmt.Errorf("panic: %v", r)))
			c.Abort()
		}()
		c.Next()
	}
}
