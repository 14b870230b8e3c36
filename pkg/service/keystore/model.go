package keystore

import (
	"github.com/goccy/go-json"

	"github.com/tbd54566975/oid4vci-issuer/internal/keyaccess"
)

// StoredKey is an issuer signing key as persisted. PrivateKeyJWK is encrypted along with the rest of the record.
type StoredKey struct {
	ID            string            `json:"id"`
	Controller    string            `json:"controller"`
	KeyType       keyaccess.KeyType `json:"keyType"`
	KID           string            `json:"kid"`
	PrivateKeyJWK json.RawMessage   `json:"privateKeyJwk"`
	CreatedAt     string            `json:"createdAt"`
}

// KeyDetails describes a stored key without revealing it.
type KeyDetails struct {
	ID         string            `json:"id"`
	Controller string            `json:"controller"`
	KeyType    keyaccess.KeyType `json:"keyType"`
	KID        string            `json:"kid"`
	CreatedAt  string            `json:"createdAt"`
}
