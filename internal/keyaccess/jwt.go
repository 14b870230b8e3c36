package keyaccess

import (
	gocrypto "crypto"
	"time"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/pkg/errors"
)

type JWT string

func (j JWT) String() string {
	return string(j)
}

func (j JWT) Ptr() *JWT {
	return &j
}

// JWKKeyAccess signs and verifies compact JWS tokens with a single key.
// ID is the identity the tokens are issued under (a DID) and KID the full key id placed in the header.
type JWKKeyAccess struct {
	ID        string
	KID       string
	Algorithm jwa.SignatureAlgorithm

	privateKey jwk.Key
	publicKey  jwk.Key
}

// NewJWKKeyAccess creates a JWKKeyAccess object from an id, key id, and private key, able to both sign and verify.
func NewJWKKeyAccess(id, kid string, key gocrypto.PrivateKey) (*JWKKeyAccess, error) {
	if id == "" {
		return nil, errors.New("id cannot be empty")
	}
	if kid == "" {
		return nil, errors.New("kid cannot be empty")
	}
	if key == nil {
		return nil, errors.New("key cannot be nil")
	}
	privateKey, err := jwk.FromRaw(key)
	if err != nil {
		return nil, errors.Wrapf(err, "could not create JWK Key Access object for kid: %s, error creating signer", kid)
	}
	return newJWKKeyAccess(id, kid, privateKey)
}

// NewJWKKeyAccessFromJWK is NewJWKKeyAccess for a key that has already been parsed, e.g. read back from storage.
func NewJWKKeyAccessFromJWK(id, kid string, privateKey jwk.Key) (*JWKKeyAccess, error) {
	if id == "" || kid == "" || privateKey == nil {
		return nil, errors.New("id, kid, and key are required")
	}
	return newJWKKeyAccess(id, kid, privateKey)
}

func newJWKKeyAccess(id, kid string, privateKey jwk.Key) (*JWKKeyAccess, error) {
	kt, err := KeyTypeForJWK(privateKey)
	if err != nil {
		return nil, err
	}
	publicKey, err := jwk.PublicKeyOf(privateKey)
	if err != nil {
		return nil, errors.Wrapf(err, "could not create JWK Key Access object for kid: %s, error creating verifier", kid)
	}
	alg := AlgorithmForKeyType(kt)
	for _, k := range []jwk.Key{privateKey, publicKey} {
		if err = k.Set(jwk.KeyIDKey, kid); err != nil {
			return nil, errors.Wrap(err, "setting kid")
		}
		if err = k.Set(jwk.AlgorithmKey, alg); err != nil {
			return nil, errors.Wrap(err, "setting alg")
		}
	}
	return &JWKKeyAccess{
		ID:         id,
		KID:        kid,
		Algorithm:  alg,
		privateKey: privateKey,
		publicKey:  publicKey,
	}, nil
}

// NewJWKKeyAccessVerifier creates a JWKKeyAccess that can only verify.
func NewJWKKeyAccessVerifier(id, kid string, key gocrypto.PublicKey) (*JWKKeyAccess, error) {
	if id == "" {
		return nil, errors.New("id cannot be empty")
	}
	if kid == "" {
		return nil, errors.New("kid cannot be empty")
	}
	if key == nil {
		return nil, errors.New("key cannot be nil")
	}
	publicKey, err := jwk.FromRaw(key)
	if err != nil {
		return nil, errors.Wrapf(err, "could not create JWK Key Access object for kid: %s, error creating verifier", kid)
	}
	kt, err := KeyTypeForJWK(publicKey)
	if err != nil {
		return nil, err
	}
	return &JWKKeyAccess{ID: id, KID: kid, Algorithm: AlgorithmForKeyType(kt), publicKey: publicKey}, nil
}

// PublicKey returns the public half of the key, with kid and alg set.
func (ka JWKKeyAccess) PublicKey() jwk.Key {
	return ka.publicKey
}

// PrivateKeyJSON serializes the private key as a JWK for storage.
func (ka JWKKeyAccess) PrivateKeyJSON() ([]byte, error) {
	if ka.privateKey == nil {
		return nil, errors.New("no private key")
	}
	return json.Marshal(ka.privateKey)
}

// SignJSON takes an object that is either itself json or json-serializable and signs it.
func (ka JWKKeyAccess) SignJSON(data any) (*JWT, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	payload := make(map[string]any)
	if err = json.Unmarshal(jsonBytes, &payload); err != nil {
		return nil, err
	}
	return ka.Sign(payload)
}

// Sign signs the payload as a JWT with the kid and typ JWT headers.
func (ka JWKKeyAccess) Sign(payload map[string]any) (*JWT, error) {
	return ka.SignWithType(payload, "JWT")
}

func (ka JWKKeyAccess) SignWithType(payload map[string]any, typ string) (*JWT, error) {
	if ka.privateKey == nil {
		return nil, errors.New("cannot sign with nil signer")
	}
	if payload == nil {
		return nil, errors.New("payload cannot be nil")
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling payload")
	}
	hdrs := jws.NewHeaders()
	if err = hdrs.Set(jws.KeyIDKey, ka.KID); err != nil {
		return nil, err
	}
	if err = hdrs.Set(jws.TypeKey, typ); err != nil {
		return nil, err
	}
	signed, err := jws.Sign(payloadBytes, jws.WithKey(ka.Algorithm, ka.privateKey, jws.WithProtectedHeaders(hdrs)))
	if err != nil {
		return nil, errors.Wrap(err, "could not sign payload")
	}
	return JWT(signed).Ptr(), nil
}

// Verify checks the signature and the time based claims of a token and returns its claims.
func (ka JWKKeyAccess) Verify(token JWT) (jwt.Token, error) {
	return ka.VerifyAt(token, time.Now())
}

// VerifyAt is Verify with the time based claims validated against now.
func (ka JWKKeyAccess) VerifyAt(token JWT, now time.Time) (jwt.Token, error) {
	if token == "" {
		return nil, errors.New("token cannot be empty")
	}
	parsed, err := jwt.Parse([]byte(token),
		jwt.WithKey(ka.Algorithm, ka.publicKey),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(5*time.Second),
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })))
	if err != nil {
		return nil, errors.Wrap(err, "verifying token")
	}
	return parsed, nil
}

// GetJWTHeaders returns the headers of a JWT token, assuming there is only one signature.
func GetJWTHeaders(token []byte) (jws.Headers, error) {
	msg, err := jws.Parse(token)
	if err != nil {
		return nil, err
	}
	if len(msg.Signatures()) != 1 {
		return nil, errors.Errorf("expected 1 signature, got %d", len(msg.Signatures()))
	}
	return msg.Signatures()[0].ProtectedHeaders(), nil
}
