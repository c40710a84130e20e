// Package middleware provides HTTP middleware components.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"larder/internal/core/apperror"
	"larder/pkg/logger"
)

// Recovery converts a handler panic into an INTERNAL_ERROR for ErrorHandler to render.
// http.ErrAbortHandler is re-raised so the server drops the connection.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			logger.Error(c.Request.Context(), "handler panicked",
				"route", c.FullPath(),
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			appErr := apperror.NewInternal(fmt.Errorf("panic: %v", rec))
			if id := c.GetString("request_id"); id != "" {
				appErr = appErr.WithDetail("request_id", id)
			}
			_ = c.Error(appErr)
			c.Abort()
		}()
		c.Next()
	}
}
