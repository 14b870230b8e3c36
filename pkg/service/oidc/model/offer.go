package model

const (
	TxCodeNumeric = "numeric"
	TxCodeText    = "text"
)

// TxCode advertises the transaction code a holder must present at the token endpoint.
type TxCode struct {
	InputMode   string `json:"input_mode,omitempty"`
	Length      int    `json:"length,omitempty"`
	Description string `json:"description,omitempty"`
}

type PreAuthorizedCodeGrant struct {
	PreAuthorizedCode string  `json:"pre-authorized_code,omitempty"`
	TxCode            *TxCode `json:"tx_code,omitempty"`
	Interval          int     `json:"interval,omitempty"`
}

type AuthorizationCodeGrant struct {
	IssuerState         string `json:"issuer_state,omitempty"`
	AuthorizationServer string `json:"authorization_server,omitempty"`
}

// Grants are the grant types an offer may be redeemed through.
type Grants struct {
	AuthorizationCode *AuthorizationCodeGrant `json:"authorization_code,omitempty"`
	PreAuthorizedCode *PreAuthorizedCodeGrant `json:"urn:ietf:params:oauth:grant-type:pre-authorized_code,omitempty"`
}

func (g *Grants) IsEmpty() bool {
	return g == nil || (g.AuthorizationCode == nil && g.PreAuthorizedCode == nil)
}

// CredentialOfferPayload is what the holder's wallet retrieves from the credential offer uri.
type CredentialOfferPayload struct {
	CredentialIssuer           string   `json:"credential_issuer"`
	CredentialConfigurationIDs []string `json:"credential_configuration_ids"`
	Grants                     *Grants  `json:"grants,omitempty"`
	ClientID                   string   `json:"client_id,omitempty"`
}

type CredentialOffer struct {
	CredentialOffer CredentialOfferPayload `json:"credential_offer"`
}

// CreateOfferRequest is the admin request to start a new issuance.
type CreateOfferRequest struct {
	Credentials                 []string       `json:"credentials"`
	Grants                      *Grants        `json:"grants"`
	CredentialDataSupplierInput map[string]any `json:"credentialDataSupplierInput,omitempty"`
	PINLength                   int            `json:"pinLength,omitempty"`
	MetaData                    map[string]any `json:"metaData,omitempty"`
}

// CreateOfferResponse carries the offer uri and the pin to hand to the holder out of band. UserPIN repeats TxCode
// for admin clients that read the pin under its older name.
type CreateOfferResponse struct {
	URI     string `json:"uri"`
	TxCode  string `json:"txCode,omitempty"`
	UserPIN string `json:"userPin,omitempty"`
}

// CheckOfferResponse reports the state of one offer session.
type CheckOfferResponse struct {
	CreatedAt     int64  `json:"createdAt"`
	LastUpdatedAt int64  `json:"lastUpdatedAt"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	ClientID      string `json:"clientId,omitempty"`
	UUID          string `json:"uuid,omitempty"`
}
