package model

// PreAuthorizedCodeGrantType is the only grant type the token endpoint exchanges.
const PreAuthorizedCodeGrantType = "urn:ietf:params:oauth:grant-type:pre-authorized_code"

// TokenRequest is the form (or JSON) body posted to the token endpoint.
type TokenRequest struct {
	GrantType         string `json:"grant_type" form:"grant_type"`
	PreAuthorizedCode string `json:"pre-authorized_code" form:"pre-authorized_code"`
	TxCode            string `json:"tx_code,omitempty" form:"tx_code"`
	// UserPIN is the tx_code of earlier protocol drafts.
	UserPIN string `json:"user_pin,omitempty" form:"user_pin"`
}

type AuthorizationDetail struct {
	Type                      string `json:"type"`
	CredentialConfigurationID string `json:"credential_configuration_id"`
}

// TokenResponse is returned by the token endpoint on a successful exchange. Interval is in milliseconds.
type TokenResponse struct {
	AccessToken          string                `json:"access_token"`
	TokenType            string                `json:"token_type"`
	ExpiresIn            int                   `json:"expires_in"`
	CNonce               string                `json:"c_nonce"`
	CNonceExpiresIn      int                   `json:"c_nonce_expires_in"`
	AuthorizationPending bool                  `json:"authorization_pending"`
	Interval             int                   `json:"interval"`
	AuthorizationDetails []AuthorizationDetail `json:"authorization_details,omitempty"`
}
