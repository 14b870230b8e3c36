package model

type CheckOfferRequest struct {
	ID string `json:"id" validate:"required"`
}

// ListCredentialsRequest narrows the issued credential listing. Empty fields match everything.
type ListCredentialsRequest struct {
	PrimaryID string `json:"primaryId,omitempty"`
	// Credential is the credential type, for example PID
	Credential string `json:"credential,omitempty"`
	// IssuanceDate lists only credentials issued after it
	IssuanceDate string `json:"issuanceDate,omitempty"`
	State        string `json:"state,omitempty"`
	Holder       string `json:"holder,omitempty"`
	// Filter is an AIP-160 expression over the record fields
	Filter string `json:"filter,omitempty"`
}

const RevokeState = "revoke"

// RevokeRequest revokes the credential record when State is "revoke" and unrevokes it otherwise.
type RevokeRequest struct {
	ID       string `json:"id" validate:"required"`
	State    string `json:"state"`
	ListName string `json:"listName,omitempty"`
}

func (r RevokeRequest) IsRevoke() bool {
	return r.State == RevokeState
}

type RevokeResponse struct {
	State string `json:"state"`
}
