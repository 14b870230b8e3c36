package statuslist

// StatusList2021Entry is the credentialStatus entry type attached to issued credentials.
const StatusList2021Entry = "StatusList2021Entry"

// Allocation is the status-list service's answer to an allocation request.
type Allocation struct {
	ID      string `json:"id"`
	Purpose string `json:"purpose"`
	Index   any    `json:"index"`
	URL     string `json:"url"`
}

// Entry is a credentialStatus value as it appears in the credential and in the issued record.
type Entry struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	StatusPurpose        string `json:"statusPurpose"`
	StatusListIndex      any    `json:"statusListIndex"`
	StatusListCredential string `json:"statusListCredential"`
}

// EntryFor turns an allocation into the entry bound to the credential.
func EntryFor(a Allocation) Entry {
	return Entry{
		ID:                   a.ID,
		Type:                 StatusList2021Entry,
		StatusPurpose:        a.Purpose,
		StatusListIndex:      a.Index,
		StatusListCredential: a.URL,
	}
}

type allocateRequest struct {
	ExpirationDate string `json:"expirationDate,omitempty"`
}

type setStateRequest struct {
	List  string `json:"list"`
	Index any    `json:"index"`
	State string `json:"state"`
}

type setStateResponse struct {
	State string `json:"state"`
}

// RevocationState is the outcome of a revoke or unrevoke call.
type RevocationState string

const (
	Unknown      RevocationState = "UNKNOWN"
	Revoked      RevocationState = "REVOKED"
	WasRevoked   RevocationState = "WAS_REVOKED"
	Unrevoked    RevocationState = "UNREVOKED"
	WasUnrevoked RevocationState = "WAS_UNREVOKED"
)

func (s RevocationState) String() string {
	return string(s)
}

// Merge folds outcomes left to right. Every outcome other than Unknown replaces the accumulated one.
func Merge(states ...RevocationState) RevocationState {
	merged := Unknown
	for _, s := range states {
		if s != Unknown && s != "" {
			merged = s
		}
	}
	return merged
}

func stateFromResponse(state string, revoke bool) RevocationState {
	switch state {
	case "REVOKED":
		return Revoked
	case "UNREVOKED":
		return Unrevoked
	case "UNCHANGED":
		if revoke {
			return WasRevoked
		}
		return WasUnrevoked
	default:
		return Unknown
	}
}
