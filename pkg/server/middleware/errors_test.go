package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/oid4vci-issuer/pkg/server/framework"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/oidc"
)

func errorEngine(shutdown chan os.Signal, handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Errors(shutdown), Panics())
	r.GET("/test", handler)
	return r
}

func serve(r *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	return w
}

func TestErrors(t *testing.T) {
	t.Run("protocol error", func(tt *testing.T) {
		r := errorEngine(nil, func(c *gin.Context) {
			_ = c.Error(errors.Wrap(oidc.ErrPinMismatch(), "token request"))
		})
		w := serve(r)
		assert.Equal(tt, http.StatusBadRequest, w.Code)
		assert.JSONEq(tt, `{"error":"invalid_grant","error_reason":"pin_mismatch","error_description":"PIN is invalid"}`, w.Body.String())
	})

	t.Run("safe error", func(tt *testing.T) {
		r := errorEngine(nil, func(c *gin.Context) {
			_ = c.Error(framework.NewRequestError(errors.New("bad body"), http.StatusBadRequest))
		})
		w := serve(r)
		assert.Equal(tt, http.StatusBadRequest, w.Code)
		assert.JSONEq(tt, `{"error":"invalid_request","error_description":"bad body"}`, w.Body.String())
	})

	t.Run("internal error is not disclosed", func(tt *testing.T) {
		r := errorEngine(nil, func(c *gin.Context) {
			_ = c.Error(errors.New("db password is hunter2"))
		})
		w := serve(r)
		assert.Equal(tt, http.StatusInternalServerError, w.Code)
		assert.NotContains(tt, w.Body.String(), "hunter2")
	})

	t.Run("response already written", func(tt *testing.T) {
		r := errorEngine(nil, func(c *gin.Context) {
			c.String(http.StatusAccepted, "done")
			_ = c.Error(errors.New("after the fact"))
		})
		w := serve(r)
		assert.Equal(tt, http.StatusAccepted, w.Code)
		assert.Equal(tt, "done", w.Body.String())
	})

	t.Run("shutdown error", func(tt *testing.T) {
		shutdown := make(chan os.Signal, 1)
		r := errorEngine(shutdown, func(c *gin.Context) {
			_ = c.Error(framework.NewShutdownError("integrity"))
		})
		serve(r)
		require.Len(tt, shutdown, 1)
	})

	t.Run("panic", func(tt *testing.T) {
		r := errorEngine(nil, func(c *gin.Context) {
			panic("boom")
		})
		w := serve(r)
		assert.Equal(tt, http.StatusInternalServerError, w.Code)
	})
}

func TestMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	requests, failures := m.req.Value(), m.err.Value()
	serve(r)
	assert.Equal(t, requests+1, m.req.Value())
	assert.Equal(t, failures+1, m.err.Value())
}
