package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbd54566975/oid4vci-issuer/pkg/server/framework"
	svcframework "github.com/tbd54566975/oid4vci-issuer/pkg/service/framework"
)

type GetReadinessResponse struct {
	Status svcframework.Status `json:"status"`
	// ServiceStatuses is keyed by service type, issuers are keyed by `issuer:<name>`.
	ServiceStatuses map[string]svcframework.Status `json:"serviceStatuses"`
}

type namedService interface {
	Name() string
}

// Readiness runs a number of application specific checks to see if all the relied upon services are
// healthy. Responds with a 503 if any of them is not ready.
func Readiness(services []svcframework.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		numServices := len(services)
		readyServices := 0
		statuses := make(map[string]svcframework.Status, numServices)
		for _, s := range services {
			key := string(s.Type())
			if named, ok := s.(namedService); ok {
				key = fmt.Sprintf("%s:%s", s.Type(), named.Name())
			}
			status := s.Status()
			statuses[key] = status
			if status.IsReady() {
				readyServices++
			}
		}

		response := GetReadinessResponse{ServiceStatuses: statuses}
		if readyServices < numServices {
			response.Status = svcframework.Status{
				Status:  svcframework.StatusNotReady,
				Message: fmt.Sprintf("out of [%d] services, [%d] are ready", numServices, readyServices),
			}
			framework.Respond(c, response, http.StatusServiceUnavailable)
			return
		}
		response.Status = svcframework.Status{
			Status:  svcframework.StatusReady,
			Message: "all services ready",
		}
		framework.Respond(c, response, http.StatusOK)
	}
}
