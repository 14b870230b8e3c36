package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbd54566975/oid4vci-issuer/pkg/server/framework"
)

type GetHealthCheckResponse struct {
	// Status is always equal to `OK`.
	Status string `json:"status"`
}

const (
	HealthOK string = "OK"
)

// Health is a simple handler that always responds with a 200 OK
func Health(c *gin.Context) {
	status := GetHealthCheckResponse{Status: HealthOK}
	framework.Respond(c, status, http.StatusOK)
}
