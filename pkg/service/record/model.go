package record

import (
	"time"

	"github.com/tbd54566975/oid4vci-issuer/pkg/service/statuslist"
)

// IssuedCredential is the persisted trace of one issued credential. Claims and Holder never change after Save.
type IssuedCredential struct {
	ID                    string             `json:"id"`
	Issuer                string             `json:"issuer"`
	State                 string             `json:"state"`
	Holder                string             `json:"holder"`
	CredentialType        string             `json:"credentialType"`
	PrincipalCredentialID string             `json:"principalCredentialId"`
	Claims                map[string]any     `json:"claims,omitempty"`
	StatusLists           []statuslist.Entry `json:"statuslists,omitempty"`
	Metadata              map[string]any     `json:"metadata,omitempty"`
	IssuanceDate          time.Time          `json:"issuanceDate"`
	ExpirationDate        *time.Time         `json:"expirationDate,omitempty"`
	SaveDate              time.Time          `json:"saveDate"`
	UpdateDate            time.Time          `json:"updateDate"`
}

const (
	StateIdentifier                 = "state"
	HolderIdentifier                = "holder"
	IssuerIdentifier                = "issuer"
	CredentialTypeIdentifier        = "credentialType"
	PrincipalCredentialIDIdentifier = "principalCredentialId"
)

func (r IssuedCredential) FilterVariablesMap() map[string]any {
	return map[string]any{
		StateIdentifier:                 r.State,
		HolderIdentifier:                r.Holder,
		IssuerIdentifier:                r.Issuer,
		CredentialTypeIdentifier:        r.CredentialType,
		PrincipalCredentialIDIdentifier: r.PrincipalCredentialID,
	}
}

// ListRequest narrows a record listing. Empty fields do not filter.
type ListRequest struct {
	Issuer      string
	PrimaryID   string
	Credential  string
	State       string
	Holder      string
	IssuedAfter *time.Time
	Filter      string
}
