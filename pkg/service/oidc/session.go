package oidc

import (
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/credential"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/oidc/model"
)

// IssueStatus is the lifecycle of one offer session, advancing in declaration order.
type IssueStatus string

const (
	OfferCreated              IssueStatus = "OFFER_CREATED"
	OfferURIRetrieved         IssueStatus = "OFFER_URI_RETRIEVED"
	AccessTokenRequested      IssueStatus = "ACCESS_TOKEN_REQUESTED"
	AccessTokenCreated        IssueStatus = "ACCESS_TOKEN_CREATED"
	CredentialRequestReceived IssueStatus = "CREDENTIAL_REQUEST_RECEIVED"
	CredentialIssued          IssueStatus = "CREDENTIAL_ISSUED"
	Errored                   IssueStatus = "ERRORED"
)

func (s IssueStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status can no longer change.
func (s IssueStatus) IsTerminal() bool {
	return s == CredentialIssued || s == Errored
}

// tokenRequestable is true until a credential request has been received.
func (s IssueStatus) tokenRequestable() bool {
	switch s {
	case OfferCreated, OfferURIRetrieved, AccessTokenRequested, AccessTokenCreated:
		return true
	}
	return false
}

// Session is one credential offer. It is stored once under ID, PreAuthorizedCode and IssuerState index into it.
type Session struct {
	ID                string      `json:"id"`
	PreAuthorizedCode string      `json:"preAuthorizedCode,omitempty"`
	IssuerState       string      `json:"issuerState,omitempty"`
	Status            IssueStatus `json:"status"`
	CreatedAt         int64       `json:"createdAt"`
	LastUpdatedAt     int64       `json:"lastUpdatedAt"`

	// TxCode is the transaction code (user pin) the holder must present, empty when none is required.
	TxCode                      string                `json:"txCode,omitempty"`
	CredentialDataSupplierInput credential.Claims     `json:"credentialDataSupplierInput,omitempty"`
	CredentialOffer             model.CredentialOffer `json:"credentialOffer"`
	ClientID                    string                `json:"clientId,omitempty"`
	Error                       string                `json:"error,omitempty"`

	// CNonce is the nonce most recently minted for the session. Only it is accepted in a proof.
	CNonce string `json:"cNonce,omitempty"`
}

func (s Session) CreatedAtMillis() int64 {
	return s.CreatedAt
}

// Keys are the lookup keys the session is indexed under.
func (s Session) Keys() []string {
	var keys []string
	if s.PreAuthorizedCode != "" {
		keys = append(keys, s.PreAuthorizedCode)
	}
	if s.IssuerState != "" {
		keys = append(keys, s.IssuerState)
	}
	return keys
}

// PrincipalConfigurationID is the first credential configuration in the offer.
func (s Session) PrincipalConfigurationID() string {
	ids := s.CredentialOffer.CredentialOffer.CredentialConfigurationIDs
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// NonceState binds a c_nonce to the session it was minted for.
type NonceState struct {
	CNonce            string `json:"cNonce"`
	CreatedAt         int64  `json:"createdAt"`
	PreAuthorizedCode string `json:"preAuthorizedCode,omitempty"`
	IssuerState       string `json:"issuerState,omitempty"`
}

func (n NonceState) CreatedAtMillis() int64 {
	return n.CreatedAt
}

func (n NonceState) sessionKey() string {
	if n.PreAuthorizedCode != "" {
		return n.PreAuthorizedCode
	}
	return n.IssuerState
}

// IssuerSession is the issuer side bookkeeping of a session, keyed by the session ID.
type IssuerSession struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"createdAt"`

	Holder                string         `json:"holder,omitempty"`
	PrincipalCredentialID string         `json:"principalCredentialId,omitempty"`
	CredentialID          string         `json:"credentialId,omitempty"`
	Credential            map[string]any `json:"credential,omitempty"`
	MetaData              map[string]any `json:"metaData,omitempty"`
	// UUID is the id of the persisted credential record
	UUID                string         `json:"uuid,omitempty"`
	RequestResponseData map[string]any `json:"requestResponseData,omitempty"`
}

func (s IssuerSession) CreatedAtMillis() int64 {
	return s.CreatedAt
}

// Phases recorded on the issuer session while handling a credential request.
const (
	PhaseCredentialRequest      = "get_credential-request"
	PhaseCredentialRequestProof = "get_credential-request_proof"
	PhaseCredentialResponse     = "get_credential-response"
	PhaseCredentialResponseJWT  = "get_credential-response_jwt"
)
