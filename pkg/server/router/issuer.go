package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/tbd54566975/oid4vci-issuer/pkg/server/framework"
	"github.com/tbd54566975/oid4vci-issuer/pkg/server/middleware"
	svcframework "github.com/tbd54566975/oid4vci-issuer/pkg/service/framework"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/oidc"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/oidc/model"
)

const IDParam = "id"

// IssuerRouter serves the wallet facing and the admin endpoints of one issuer instance.
type IssuerRouter struct {
	service *oidc.Service
}

func NewIssuerRouter(s svcframework.Service) (*IssuerRouter, error) {
	if s == nil {
		return nil, errors.New("service cannot be nil")
	}
	issuerService, ok := s.(*oidc.Service)
	if !ok {
		return nil, fmt.Errorf("could not create issuer router with service type: %s", s.Type())
	}
	return &IssuerRouter{service: issuerService}, nil
}

// Token exchanges a pre-authorized code for an access token. The body may be form encoded or JSON.
func (ir IssuerRouter) Token(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")

	var request model.TokenRequest
	if err := c.ShouldBind(&request); err != nil {
		_ = c.Error(framework.NewRequestError(errors.Wrap(err, "invalid token request"), http.StatusBadRequest))
		return
	}

	resp, err := ir.service.RequestToken(c, request)
	if err != nil {
		_ = c.Error(err)
		return
	}
	framework.Respond(c, resp, http.StatusOK)
}

// IssueCredential implements https://openid.net/specs/openid-4-verifiable-credential-issuance-1_0.html#name-credential-endpoint
func (ir IssuerRouter) IssueCredential(c *gin.Context) {
	var request model.CredentialRequest
	if err := framework.Decode(c.Request, &request); err != nil {
		_ = c.Error(framework.NewRequestError(errors.Wrap(err, "invalid credential request"), http.StatusBadRequest))
		return
	}

	resp, err := ir.service.IssueCredential(c, middleware.BearerToken(c), request)
	if err != nil {
		_ = c.Error(err)
		return
	}
	framework.Respond(c, resp, http.StatusOK)
}

// GetCredentialOffer returns the offer a wallet found behind the credential_offer_uri.
func (ir IssuerRouter) GetCredentialOffer(c *gin.Context) {
	id := framework.GetParam(c, IDParam)
	if id == nil {
		framework.LoggingRespondErrMsg(c, "cannot get offer without an id", http.StatusBadRequest)
		return
	}

	resp, err := ir.service.GetOffer(c, *id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	framework.Respond(c, resp, http.StatusOK)
}

func (ir IssuerRouter) CreateOffer(c *gin.Context) {
	var request model.CreateOfferRequest
	if err := framework.Decode(c.Request, &request); err != nil {
		_ = c.Error(framework.NewRequestError(errors.Wrap(err, "invalid create offer request"), http.StatusBadRequest))
		return
	}

	resp, err := ir.service.CreateOffer(c, request)
	if err != nil {
		_ = c.Error(err)
		return
	}
	framework.Respond(c, resp, http.StatusOK)
}

func (ir IssuerRouter) CheckOffer(c *gin.Context) {
	var request model.CheckOfferRequest
	if err := framework.Decode(c.Request, &request); err != nil {
		_ = c.Error(framework.NewRequestError(errors.Wrap(err, "invalid check offer request"), http.StatusBadRequest))
		return
	}

	resp, err := ir.service.CheckOffer(c, request.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	framework.Respond(c, resp, http.StatusOK)
}

// ListCredentials lists the records of credentials this issuer issued. An empty body lists everything.
func (ir IssuerRouter) ListCredentials(c *gin.Context) {
	var request model.ListCredentialsRequest
	if c.Request.ContentLength != 0 {
		if err := framework.Decode(c.Request, &request); err != nil {
			_ = c.Error(framework.NewRequestError(errors.Wrap(err, "invalid list credentials request"), http.StatusBadRequest))
			return
		}
	}

	resp, err := ir.service.ListCredentials(c, request)
	if err != nil {
		_ = c.Error(err)
		return
	}
	framework.Respond(c, resp, http.StatusOK)
}

func (ir IssuerRouter) RevokeCredential(c *gin.Context) {
	var request model.RevokeRequest
	if err := framework.Decode(c.Request, &request); err != nil {
		_ = c.Error(framework.NewRequestError(errors.Wrap(err, "invalid revoke request"), http.StatusBadRequest))
		return
	}

	resp, err := ir.service.SetRevocationState(c, request)
	if err != nil {
		_ = c.Error(err)
		return
	}
	framework.Respond(c, resp, http.StatusOK)
}

// IssuerMetadata serves /.well-known/openid-credential-issuer
func (ir IssuerRouter) IssuerMetadata(c *gin.Context) {
	framework.Respond(c, ir.service.Metadata().Document(), http.StatusOK)
}

// DIDDocument serves the did document of the issuer's signing key at /.well-known/did.json
func (ir IssuerRouter) DIDDocument(c *gin.Context) {
	doc, err := ir.service.DIDDocument()
	if err != nil {
		framework.LoggingRespondErrWithMsg(c, err, "could not build did document", http.StatusInternalServerError)
		return
	}
	framework.Respond(c, doc, http.StatusOK)
}

// AuthorizationServerMetadata serves both the openid-configuration and the oauth-authorization-server documents.
func (ir IssuerRouter) AuthorizationServerMetadata(c *gin.Context) {
	framework.Respond(c, ir.service.AuthorizationServerMetadata(), http.StatusOK)
}
