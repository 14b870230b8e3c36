package model

// CredentialResponse represents a response from a Credential Issuer to a Credential Request.
type CredentialResponse struct {
	// credential: the issued Credential. A compact JWT for the JWT based formats.
	Credential any `json:"credential"`

	// c_nonce: JSON string containing a nonce to be used to create a proof of possession of key material when requesting a Credential (see Section 7.2).
	// When received, the Wallet MUST use this nonce value for its subsequent credential requests until the Credential Issuer provides a fresh nonce.
	CNonce string `json:"c_nonce,omitempty"`

	// c_nonce_expires_in: JSON integer denoting the lifetime in seconds of the c_nonce.
	CNonceExpiresIn int `json:"c_nonce_expires_in,omitempty"`

	NotificationID string `json:"notification_id,omitempty"`
}
