// Package framework is a minimal web framework over gin.
package framework

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbd54566975/oid4vci-issuer/config"
)

type contextKey string

// ShutdownErrorKey holds the error that made a request stop the server.
const ShutdownErrorKey contextKey = "shutdownError"

func (c contextKey) String() string {
	return string(c)
}

// Server wraps the http server listening for every issuer mounted on router.
type Server struct {
	*http.Server
	router *gin.Engine
}

// NewHTTPServer creates a Server that handles a set of routes for the application.
func NewHTTPServer(cfg config.ServerConfig, handler *gin.Engine) *Server {
	return &Server{
		Server: &http.Server{
			Addr:              cfg.APIHost,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
		router: handler,
	}
}

// Router is the engine routes are registered on.
func (s *Server) Router() *gin.Engine {
	return s.router
}
