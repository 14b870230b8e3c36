package keyaccess

import (
	gocrypto "crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/pkg/errors"
)

// KeyType names the key algorithms an issuer or holder may use. The values are the ones accepted in configuration.
type KeyType string

const (
	Ed25519   KeyType = "Ed25519"
	Secp256r1 KeyType = "Secp256r1"
	Secp256k1 KeyType = "Secp256k1"
	X25519    KeyType = "X25519"
	RSA       KeyType = "RSA"
)

func (k KeyType) String() string {
	return string(k)
}

// IsIssuerKeyType reports whether the issuer can generate and sign with keys of this type.
func (k KeyType) IsIssuerKeyType() bool {
	return k == Ed25519 || k == Secp256r1
}

var verificationMethodTypes = map[KeyType]string{
	Secp256k1: "EcdsaSecp256k1VerificationKey2019",
	Secp256r1: "EcdsaSecp256r1VerificationKey2019",
	Ed25519:   "JsonWebKey2020",
	X25519:    "X25519KeyAgreementKey2019",
	RSA:       "RsaVerificationKey2018",
}

// VerificationMethodType returns the DID document verification method type for a key type.
func VerificationMethodType(kt KeyType) (string, error) {
	vmType, ok := verificationMethodTypes[kt]
	if !ok {
		return "", errors.Errorf("unsupported key type: %s", kt)
	}
	return vmType, nil
}

// AlgorithmForKeyType maps a key type to its JWS algorithm, ES256 when the type is unknown.
func AlgorithmForKeyType(kt KeyType) jwa.SignatureAlgorithm {
	switch kt {
	case Ed25519:
		return jwa.EdDSA
	case Secp256k1:
		return jwa.ES256K
	case Secp256r1:
		return jwa.ES256
	case RSA:
		return jwa.RS512
	default:
		return jwa.ES256
	}
}

// KeyTypeForJWK derives the key type from a parsed JWK.
func KeyTypeForJWK(key jwk.Key) (KeyType, error) {
	switch key.KeyType() {
	case "OKP":
		crv, ok := key.Get("crv")
		if !ok {
			return "", errors.New("okp key has no curve")
		}
		switch crv {
		case jwa.Ed25519:
			return Ed25519, nil
		case jwa.X25519:
			return X25519, nil
		}
		return "", errors.Errorf("unsupported okp curve: %v", crv)
	case "EC":
		crv, ok := key.Get("crv")
		if !ok {
			return "", errors.New("ec key has no curve")
		}
		switch crv {
		case jwa.P256:
			return Secp256r1, nil
		case jwa.Secp256k1:
			return Secp256k1, nil
		}
		return "", errors.Errorf("unsupported ec curve: %v", crv)
	case "RSA":
		return RSA, nil
	default:
		return "", errors.Errorf("unsupported key type: %s", key.KeyType())
	}
}

// GenerateKey creates a new private key usable as an issuer signing key.
func GenerateKey(kt KeyType) (gocrypto.PrivateKey, error) {
	switch kt {
	case Ed25519:
		_, privKey, err := ed25519.GenerateKey(rand.Reader)
		return privKey, err
	case Secp256r1:
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case RSA:
		return rsa.GenerateKey(rand.Reader, 2048)
	default:
		return nil, errors.Errorf("key generation not supported for key type: %s", kt)
	}
}
