package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tbd54566975/oid4vci-issuer/config"
)

const (
	bearerPrefix = "Bearer "

	// AdminKey is set on the context of requests that passed AdminAuth
	AdminKey = "admin"
)

// BearerToken returns the token of an `Authorization: Bearer` header, or the empty string.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

// AdminAuth gates the admin api of one issuer. A bearer token equal to the configured admin token passes. When an
// introspection endpoint is configured, other tokens are accepted if it reports them active, authenticating with the
// issuer's client credentials. With neither configured every request is rejected.
func AdminAuth(cfg config.IssuerConfig) gin.HandlerFunc {
	var expected [sha256.Size]byte
	if cfg.AdminToken != "" {
		expected = sha256.Sum256([]byte(cfg.AdminToken))
	}
	var intro *introspecter
	if cfg.IntrospectionEndpoint != "" {
		intro = newIntrospect(cfg.IntrospectionEndpoint, clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.IntrospectionTokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		})
	}
	if cfg.AdminToken == "" && intro == nil {
		logrus.Warnf("issuer<%s> has no admin token, its admin api is disabled", cfg.Name)
	}

	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			unauthorized(c)
			return
		}

		// compare digests so the comparison does not leak the token length
		if cfg.AdminToken != "" {
			presented := sha256.Sum256([]byte(token))
			if subtle.ConstantTimeCompare(presented[:], expected[:]) == 1 {
				c.Set(AdminKey, cfg.Name)
				c.Next()
				return
			}
		}
		if intro != nil {
			err := intro.introspect(c.Request.Context(), token)
			if err == nil {
				c.Set(AdminKey, cfg.Name)
				c.Next()
				return
			}
			logrus.WithError(err).Debugf("introspection rejected admin token for issuer<%s>", cfg.Name)
		}
		unauthorized(c)
	}
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
}
