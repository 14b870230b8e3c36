package keyaccess

import (
	"context"
	gocrypto "crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"encoding/base64"
	"strings"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-varint"
	"github.com/pkg/errors"
)

const (
	DIDContextV1 = "https://w3id.org/did/v1"

	KeyMethod = "key"
	JWKMethod = "jwk"

	// base58btc multibase prefix
	multibaseBase58BTC = 'z'
)

type VerificationMethod struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	Controller   string  `json:"controller"`
	PublicKeyJWK jwk.Key `json:"publicKeyJwk,omitempty"`
}

type Service struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

type DIDDocument struct {
	Context            any                  `json:"@context,omitempty"`
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod,omitempty"`
	Authentication     []string             `json:"authentication,omitempty"`
	AssertionMethod    []string             `json:"assertionMethod,omitempty"`
	KeyAgreement       []string             `json:"keyAgreement,omitempty"`
	Service            []Service            `json:"service,omitempty"`
}

func (d *DIDDocument) IsEmpty() bool {
	return d == nil || d.ID == ""
}

// VerificationKey finds the public key of the verification method with the given id, or the only one when kid is empty.
func (d *DIDDocument) VerificationKey(kid string) (jwk.Key, error) {
	if d.IsEmpty() {
		return nil, errors.New("did document is empty")
	}
	if len(d.VerificationMethod) == 0 {
		return nil, errors.Errorf("did document<%s> has no verification methods", d.ID)
	}
	if kid == "" || kid == d.ID {
		if len(d.VerificationMethod) > 1 {
			return nil, errors.Errorf("kid is required for did<%s>, which has multiple verification methods", d.ID)
		}
		return d.VerificationMethod[0].PublicKeyJWK, nil
	}
	for _, vm := range d.VerificationMethod {
		if vm.ID == kid || d.ID+vm.ID == kid {
			return vm.PublicKeyJWK, nil
		}
	}
	return nil, errors.Errorf("verification method<%s> not found in did document<%s>", kid, d.ID)
}

// Resolver resolves a DID into its document.
type Resolver interface {
	Resolve(ctx context.Context, did string) (*DIDDocument, error)
}

// LocalResolver resolves the self-certifying methods did:key and did:jwk without any network access.
type LocalResolver struct{}

var _ Resolver = (*LocalResolver)(nil)

func (LocalResolver) Resolve(_ context.Context, did string) (*DIDDocument, error) {
	did = strings.SplitN(did, "#", 2)[0]
	parts := strings.SplitN(did, ":", 3)
	if len(parts) != 3 || parts[0] != "did" {
		return nil, errors.Errorf("malformed did: %s", did)
	}
	switch parts[1] {
	case KeyMethod:
		return resolveDIDKey(did, parts[2])
	case JWKMethod:
		return resolveDIDJWK(did, parts[2])
	default:
		return nil, errors.Errorf("unsupported did method: %s", parts[1])
	}
}

// CreateDIDKey expands a public key into a did:key. It returns the DID and the multibase encoded key, which is also
// the fragment of the key's verification method.
func CreateDIDKey(pubKey gocrypto.PublicKey) (did string, multibaseKey string, err error) {
	var code multicodec.Code
	var keyBytes []byte
	switch k := pubKey.(type) {
	case ed25519.PublicKey:
		code, keyBytes = multicodec.Ed25519Pub, k
	case *ecdsa.PublicKey:
		if k.Curve != elliptic.P256() {
			return "", "", errors.Errorf("unsupported curve: %s", k.Curve.Params().Name)
		}
		code, keyBytes = multicodec.P256Pub, elliptic.MarshalCompressed(k.Curve, k.X, k.Y)
	default:
		return "", "", errors.Errorf("unsupported public key type for did:key: %T", pubKey)
	}
	prefixed := append(varint.ToUvarint(uint64(code)), keyBytes...)
	multibaseKey = string(multibaseBase58BTC) + base58.Encode(prefixed)
	return "did:" + KeyMethod + ":" + multibaseKey, multibaseKey, nil
}

func resolveDIDKey(did, encoded string) (*DIDDocument, error) {
	if len(encoded) == 0 || encoded[0] != multibaseBase58BTC {
		return nil, errors.New("did:key does not start with 'z'")
	}
	decoded, err := base58.Decode(encoded[1:])
	if err != nil {
		return nil, errors.Wrap(err, "did:key: invalid base58btc")
	}
	code, n, err := varint.FromUvarint(decoded)
	if err != nil {
		return nil, errors.Wrap(err, "did:key: invalid multicodec value")
	}
	keyBytes := decoded[n:]

	var pubKey gocrypto.PublicKey
	var kt KeyType
	switch multicodec.Code(code) {
	case multicodec.Ed25519Pub:
		if len(keyBytes) != ed25519.PublicKeySize {
			return nil, errors.New("did:key: invalid public key length")
		}
		pubKey, kt = ed25519.PublicKey(keyBytes), Ed25519
	case multicodec.P256Pub:
		if len(keyBytes) != 33 {
			return nil, errors.New("did:key: invalid public key length")
		}
		x, y := elliptic.UnmarshalCompressed(elliptic.P256(), keyBytes)
		if x == nil {
			return nil, errors.New("did:key: invalid compressed point")
		}
		pubKey, kt = &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, Secp256r1
	case multicodec.Secp256k1Pub:
		return nil, errors.New("did:key: secp256k1 public keys are not supported")
	default:
		return nil, errors.Errorf("did:key: unsupported public key type: %d", code)
	}

	key, err := jwk.FromRaw(pubKey)
	if err != nil {
		return nil, errors.Wrap(err, "did:key: converting key to jwk")
	}
	kid := did + "#" + encoded
	return newSingleKeyDocument(did, kid, kt, key)
}

// CreateDIDJWK encodes a public JWK as a did:jwk.
func CreateDIDJWK(key jwk.Key) (string, error) {
	pubKey, err := jwk.PublicKeyOf(key)
	if err != nil {
		return "", errors.Wrap(err, "getting public key")
	}
	keyBytes, err := json.Marshal(pubKey)
	if err != nil {
		return "", errors.Wrap(err, "marshalling jwk")
	}
	return "did:" + JWKMethod + ":" + base64.RawURLEncoding.EncodeToString(keyBytes), nil
}

func resolveDIDJWK(did, encoded string) (*DIDDocument, error) {
	keyBytes, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "did:jwk: invalid base64url")
	}
	key, err := jwk.ParseKey(keyBytes)
	if err != nil {
		return nil, errors.Wrap(err, "did:jwk: parsing jwk")
	}
	if isPrivateKey(key) {
		return nil, errors.New("did:jwk: private keys are forbidden")
	}
	kt, err := KeyTypeForJWK(key)
	if err != nil {
		return nil, err
	}
	return newSingleKeyDocument(did, did+"#0", kt, key)
}

func isPrivateKey(key jwk.Key) bool {
	switch key.(type) {
	case jwk.ECDSAPrivateKey, jwk.OKPPrivateKey, jwk.RSAPrivateKey:
		return true
	}
	return false
}

func newSingleKeyDocument(did, kid string, kt KeyType, key jwk.Key) (*DIDDocument, error) {
	vmType, err := VerificationMethodType(kt)
	if err != nil {
		return nil, err
	}
	doc := DIDDocument{
		Context: []string{DIDContextV1},
		ID:      did,
		VerificationMethod: []VerificationMethod{{
			ID:           kid,
			Type:         vmType,
			Controller:   did,
			PublicKeyJWK: key,
		}},
	}
	if kt == X25519 {
		doc.KeyAgreement = []string{kid}
	} else {
		doc.Authentication = []string{kid}
		doc.AssertionMethod = []string{kid}
	}
	return &doc, nil
}
