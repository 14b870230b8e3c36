package audit

// Event is one protocol phase shipped to the log service.
type Event struct {
	State    string `json:"state"`
	Endpoint string `json:"endpoint"`
	Data     any    `json:"data,omitempty"`
}

// Phases records under which the issuer emits events.
const (
	CreateOffer        = "create_offer"
	GetOffer           = "get_offer"
	Token              = "token"
	CredentialRequest  = "credential_request"
	CredentialResponse = "credential_response"
	Revoke             = "revoke_credential"
	Error              = "error"
)
