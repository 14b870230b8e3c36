package oidc

import (
	"context"
	"net/url"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/oid4vci-issuer/pkg/service/audit"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/credential"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/oidc/model"
)

const offerURIPrefix = "openid-credential-offer://?credential_offer_uri="

// CreateOffer validates the request, stores a new session and returns the offer uri for the holder's wallet along
// with the transaction code the holder must present, if any.
func (s *Service) CreateOffer(ctx context.Context, request model.CreateOfferRequest) (*model.CreateOfferResponse, error) {
	if request.Grants.IsEmpty() {
		return nil, ErrNoGrants()
	}
	if len(request.Credentials) == 0 {
		return nil, ErrNoCredentials()
	}
	for _, id := range request.Credentials {
		if !s.metadata.IsSupported(id) {
			return nil, ErrUnsupportedCredential(id)
		}
	}
	principal := request.Credentials[0]
	kind, err := credential.KindFor(principal)
	if err != nil {
		return nil, ErrUnsupportedCredential(principal)
	}
	input := credential.Claims(request.CredentialDataSupplierInput)
	if request.Grants.PreAuthorizedCode != nil && !kind.Check(input) {
		return nil, ErrCredentialDataInvalid(principal)
	}

	grants, err := NormalizeGrants(request.Grants, request.PINLength)
	if err != nil {
		return nil, err
	}

	payload := model.CredentialOfferPayload{
		CredentialIssuer:           s.metadata.CredentialIssuer(),
		CredentialConfigurationIDs: request.Credentials,
		Grants:                     grants.Grants,
	}
	if grants.Grants.AuthorizationCode != nil {
		payload.ClientID = s.config.ClientID
		if payload.ClientID == "" {
			payload.ClientID = payload.CredentialIssuer
		}
	}

	now := s.clock.Now().UnixMilli()
	session := Session{
		ID:                          uuid.NewString(),
		PreAuthorizedCode:           grants.PreAuthorizedCode,
		IssuerState:                 grants.IssuerState,
		Status:                      OfferCreated,
		CreatedAt:                   now,
		LastUpdatedAt:               now,
		TxCode:                      grants.UserPIN,
		CredentialDataSupplierInput: input,
		CredentialOffer:             model.CredentialOffer{CredentialOffer: payload},
		ClientID:                    payload.ClientID,
	}
	if err = s.sessions.Save(ctx, session); err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "storing offer session")
	}
	issuerSession := IssuerSession{
		ID:           session.ID,
		CreatedAt:    now,
		CredentialID: principal,
		MetaData:     request.MetaData,
	}
	if err = s.issuerSessions.Set(ctx, session.ID, issuerSession); err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "storing issuer session")
	}

	id := grants.PreAuthorizedCode
	if id == "" {
		id = grants.IssuerState
	}
	s.audit.Log(ctx, audit.Event{State: id, Endpoint: audit.CreateOffer, Data: request})
	logrus.WithField("issuer", s.config.Name).Debugf("created offer for %v", request.Credentials)

	return &model.CreateOfferResponse{
		URI:     offerURIPrefix + url.QueryEscape(s.metadata.CredentialIssuer()+"/get-credential-offer/"+id),
		TxCode:  grants.UserPIN,
		UserPIN: grants.UserPIN,
	}, nil
}

// GetOffer returns the offer payload for a pre-authorized code or issuer state and records that the wallet fetched it.
func (s *Service) GetOffer(ctx context.Context, id string) (*model.CredentialOfferPayload, error) {
	session, unlock, err := s.lockedSession(ctx, id)
	defer unlock()
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrOfferNotFound(id)
	}
	if session.Status == OfferCreated {
		if err = s.advance(ctx, session, OfferURIRetrieved, nil); err != nil {
			return nil, sdkutil.LoggingErrorMsgf(err, "updating session<%s>", session.ID)
		}
	}
	s.audit.Log(ctx, audit.Event{State: id, Endpoint: audit.GetOffer, Data: session.CredentialOffer.CredentialOffer})
	return &session.CredentialOffer.CredentialOffer, nil
}

// CheckOffer reports the progress of the session keyed by id.
func (s *Service) CheckOffer(ctx context.Context, id string) (*model.CheckOfferResponse, error) {
	session, err := s.sessions.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrOfferNotFound(id)
	}
	response := model.CheckOfferResponse{
		CreatedAt:     session.CreatedAt,
		LastUpdatedAt: session.LastUpdatedAt,
		Status:        session.Status.String(),
		Error:         session.Error,
		ClientID:      session.ClientID,
	}
	issuerSession, err := s.issuerSessions.Get(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if issuerSession != nil {
		response.UUID = issuerSession.UUID
	}
	return &response, nil
}
