// Package server contains the full set of handler functions and routes
// supported by the http api
package server

import (
	"context"
	"os"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbd54566975/oid4vci-issuer/config"
	"github.com/tbd54566975/oid4vci-issuer/pkg/server/framework"
	"github.com/tbd54566975/oid4vci-issuer/pkg/server/middleware"
	"github.com/tbd54566975/oid4vci-issuer/pkg/server/router"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/oidc"
)

const (
	HealthPrefix    = "/health"
	ReadinessPrefix = "/readiness"
	ContextsPrefix  = "/contexts"

	TokenPath           = "/token"
	CredentialsPath     = "/credentials"
	CredentialOfferPath = "/get-credential-offer"

	AdminPrefix         = "/api"
	CreateOfferPath     = "/create-offer"
	CheckOfferPath      = "/check-offer"
	ListCredentialsPath = "/list-credentials"
	RevokePath          = "/revoke-credential"

	WellKnownPrefix         = "/.well-known"
	IssuerMetadataPath      = "/openid-credential-issuer"
	DIDDocumentPath         = "/did.json"
	OpenIDConfigurationPath = "/openid-configuration"
	AuthorizationServerPath = "/oauth-authorization-server"
)

// IssuerServer exposes all dependencies needed to run a http server and all its services
type IssuerServer struct {
	*config.ServerConfig
	*service.IssuerService
	*framework.Server
}

// NewIssuerServer does two things: instantiates all services and registers their HTTP bindings
func NewIssuerServer(ctx context.Context, shutdown chan os.Signal, cfg config.IssuerServiceConfig) (*IssuerServer, error) {
	// creates an HTTP server from the framework, and wrap it to extend it for the issuer
	engine := setUpEngine(cfg.Server, shutdown)
	httpServer := framework.NewHTTPServer(cfg.Server, engine)
	issuerService, err := service.InstantiateIssuerService(ctx, cfg.Services)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "unable to instantiate issuer service")
	}

	// service-level routers
	engine.GET(HealthPrefix, router.Health)
	engine.GET(ReadinessPrefix, router.Readiness(issuerService.GetServices()))
	if err = ContextAPI(engine.Group(ContextsPrefix), cfg.Services.Contexts); err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "unable to instantiate Context API")
	}

	// every issuer is mounted at the path of its base url
	for _, issuer := range issuerService.Issuers {
		if err = IssuerAPI(engine.Group(issuer.BasePath()), issuer); err != nil {
			return nil, sdkutil.LoggingErrorMsgf(err, "unable to instantiate API of issuer<%s>", issuer.Name())
		}
	}

	return &IssuerServer{
		Server:        httpServer,
		IssuerService: issuerService,
		ServerConfig:  &cfg.Server,
	}, nil
}

// setUpEngine creates the gin engine and sets up the middleware based on config
func setUpEngine(cfg config.ServerConfig, shutdown chan os.Signal) *gin.Engine {
	switch cfg.Environment {
	case config.EnvironmentDev:
		gin.SetMode(gin.DebugMode)
	case config.EnvironmentTest:
		gin.SetMode(gin.TestMode)
	case config.EnvironmentProd:
		gin.SetMode(gin.ReleaseMode)
	}

	middlewares := gin.HandlersChain{
		middleware.Errors(shutdown),
		middleware.Panics(),
		middleware.Logger(logrus.StandardLogger()),
		middleware.Metrics(),
	}
	if cfg.JagerEnabled {
		middlewares = append(gin.HandlersChain{otelgin.Middleware(config.ServiceName)}, middlewares...)
	}
	if cfg.EnableAllowAllCORS {
		middlewares = append(middlewares, middleware.CORS())
	}

	// set up engine and middleware
	engine := gin.New()
	engine.Use(middlewares...)
	return engine
}

// IssuerAPI registers the wallet facing, well-known and admin routes of one issuer
func IssuerAPI(rg *gin.RouterGroup, issuer *oidc.Service) error {
	issuerRouter, err := router.NewIssuerRouter(issuer)
	if err != nil {
		return sdkutil.LoggingErrorMsg(err, "creating issuer router")
	}

	rg.POST(TokenPath, issuerRouter.Token)
	rg.POST(CredentialsPath, issuerRouter.IssueCredential)
	rg.GET(CredentialOfferPath+"/:"+router.IDParam, issuerRouter.GetCredentialOffer)

	wellKnown := rg.Group(WellKnownPrefix)
	wellKnown.GET(IssuerMetadataPath, issuerRouter.IssuerMetadata)
	wellKnown.GET(DIDDocumentPath, issuerRouter.DIDDocument)
	wellKnown.GET(OpenIDConfigurationPath, issuerRouter.AuthorizationServerMetadata)
	wellKnown.GET(AuthorizationServerPath, issuerRouter.AuthorizationServerMetadata)

	admin := rg.Group(AdminPrefix, middleware.AdminAuth(issuer.Config()))
	if issuer.Config().EnableCreateCredentials {
		admin.POST(CreateOfferPath, issuerRouter.CreateOffer)
	}
	admin.POST(CheckOfferPath, issuerRouter.CheckOffer)
	admin.POST(ListCredentialsPath, issuerRouter.ListCredentials)
	admin.POST(RevokePath, issuerRouter.RevokeCredential)
	return nil
}

// ContextAPI serves the JSON-LD contexts of the configured directory
func ContextAPI(rg *gin.RouterGroup, cfg config.ContextConfig) error {
	contextRouter, err := router.NewContextRouter(cfg.Path)
	if err != nil {
		return sdkutil.LoggingErrorMsg(err, "creating context router")
	}
	rg.GET("/:"+router.NameParam, contextRouter.GetContext)
	logrus.Debugf("serving contexts: %v", contextRouter.Names())
	return nil
}
