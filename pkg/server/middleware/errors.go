package middleware

import (
	"net/http"
	"os"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbd54566975/oid4vci-issuer/config"
	"github.com/tbd54566975/oid4vci-issuer/pkg/server/framework"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/oidc"
)

// Errors handles errors coming out of the call stack. Protocol errors are sent as OAuth 2.0 error bodies with
// their own status, safe errors (aka SafeError) with their message, and anything else as a bare 500. Errors with a
// status >= 500 are logged at error level.
func Errors(shutdown chan os.Signal) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 {
			return
		}
		tracer := trace.SpanFromContext(c.Request.Context()).TracerProvider().Tracer(config.ServiceName)
		_, span := tracer.Start(c.Request.Context(), "service.middleware.errors")
		defer span.End()

		// check if there's a shutdown-worthy error
		for _, e := range c.Errors {
			if framework.IsShutdown(e.Err) {
				logrus.WithError(e.Err).Error("unsafe error, shutting down")
				c.Set(framework.ShutdownErrorKey.String(), e.Err)
				select {
				case shutdown <- syscall.SIGTERM:
				default:
				}
				return
			}
		}

		err := c.Errors.Last().Err
		status := http.StatusInternalServerError
		var protocolErr *oidc.Error
		var safeErr *framework.SafeError
		switch {
		case errors.As(err, &protocolErr):
			status = protocolErr.Status
		case errors.As(err, &safeErr):
			status = safeErr.StatusCode
		}
		entry := logrus.WithError(err).WithFields(logrus.Fields{
			"traceID": span.SpanContext().TraceID().String(),
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  status,
		})
		if protocolErr != nil && protocolErr.Reason != "" {
			entry = entry.WithField("reason", protocolErr.Reason)
		}
		if status >= http.StatusInternalServerError {
			entry.Error("request failed")
		} else {
			entry.Info("request rejected")
		}

		if c.Writer.Written() {
			return
		}
		if protocolErr != nil {
			c.JSON(protocolErr.Status, protocolErr)
			return
		}
		framework.RespondError(c, err)
	}
}
