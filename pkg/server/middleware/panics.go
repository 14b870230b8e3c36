package middleware

import (
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Panics recovers from panics and converts the panic into an error the Errors middleware responds with
func Panics() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				// log the stack trace for this panic'd goroutine
				logrus.Errorf("PANIC: %v\n%s", r, debug.Stack())
				_ = c.Error(errors.Errorf("panic: %v", r))
				c.Abort()
			}
		}()
		c.Next()
	}
}
