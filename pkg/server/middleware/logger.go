package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbd54566975/oid4vci-issuer/pkg/server/framework"
)

// Logger logs request info after a handler runs, e.g.
//
//	completed: POST /default/token -> 192.168.1.0 (200) (4ms)
func Logger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		// request bodies carry pins and proofs, only show them at trace level
		if logger.IsLevelEnabled(logrus.TraceLevel) {
			body, err := framework.PeekRequestBody(c.Request)
			if err != nil {
				logger.WithError(err).Error("failed to read request body")
			}
			logger.Tracef("request: %s %s %s", c.Request.Method, path, body)
		}

		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if spanContext := trace.SpanContextFromContext(c.Request.Context()); spanContext.HasTraceID() {
			entry = entry.WithField("traceID", spanContext.TraceID().String())
		}
		entry.Infof("completed: %s %s -> %s", c.Request.Method, path, c.ClientIP())
	}
}
