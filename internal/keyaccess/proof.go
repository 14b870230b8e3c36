package keyaccess

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ProofResult is what a proof of possession JWT yields once parsed and, where possible, verified.
type ProofResult struct {
	// DID of the holder, empty when none could be derived from the key material
	DID         string
	DIDDocument *DIDDocument

	Type      string
	Algorithm jwa.SignatureAlgorithm
	KID       string
	JWK       jwk.Key
	X5C       []string

	Header jws.Headers
	Claims jwt.Token
}

// KeyMaterialCount is the number of kid, jwk, and x5c headers present.
func (p ProofResult) KeyMaterialCount() int {
	n := 0
	if p.KID != "" {
		n++
	}
	if p.JWK != nil {
		n++
	}
	if len(p.X5C) > 0 {
		n++
	}
	return n
}

// Nonce returns the nonce claim, empty if absent or not a string.
func (p ProofResult) Nonce() string {
	if p.Claims == nil {
		return ""
	}
	raw, ok := p.Claims.Get("nonce")
	if !ok {
		return ""
	}
	nonce, _ := raw.(string)
	return nonce
}

var allowedProofAlgs = map[jwa.SignatureAlgorithm]struct{}{
	jwa.ES256:  {},
	jwa.ES256K: {},
	jwa.ES384:  {},
	jwa.ES512:  {},
	jwa.EdDSA:  {},
	jwa.PS256:  {},
	jwa.PS384:  {},
	jwa.PS512:  {},
	jwa.RS256:  {},
	jwa.RS384:  {},
	jwa.RS512:  {},
}

// ProofVerifier verifies holder proofs, resolving kid headers through a DID resolver.
type ProofVerifier struct {
	resolver Resolver
}

func NewProofVerifier(resolver Resolver) *ProofVerifier {
	if resolver == nil {
		resolver = LocalResolver{}
	}
	return &ProofVerifier{resolver: resolver}
}

// Verify parses a proof JWT and verifies its signature against the key it points to.
// Structural problems the caller reports itself (missing alg, ambiguous key material, unresolvable kid) do not
// produce an error; the signature is simply left unverified and the relevant fields empty.
func (v ProofVerifier) Verify(ctx context.Context, proofJWT string) (*ProofResult, error) {
	message, err := jws.ParseString(proofJWT)
	if err != nil {
		return nil, errors.Wrap(err, "parsing JWT")
	}
	if len(message.Signatures()) != 1 {
		return nil, errors.New("jwt expected to have exactly one signature")
	}
	headers := message.Signatures()[0].ProtectedHeaders()

	claims, err := jwt.ParseString(proofJWT, jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return nil, errors.Wrap(err, "parsing jwt claims")
	}

	result := ProofResult{
		Type:      headers.Type(),
		Algorithm: headers.Algorithm(),
		KID:       headers.KeyID(),
		JWK:       headers.JWK(),
		Header:    headers,
		Claims:    claims,
	}
	if chain := headers.X509CertChain(); chain != nil {
		for i := 0; i < chain.Len(); i++ {
			c, _ := chain.Get(i)
			result.X5C = append(result.X5C, string(c))
		}
	}

	if result.Algorithm == "" || result.KeyMaterialCount() != 1 {
		return &result, nil
	}
	if _, ok := allowedProofAlgs[result.Algorithm]; !ok {
		return nil, errors.Errorf("alg %q is not allowed", result.Algorithm)
	}

	var key jwk.Key
	switch {
	case result.KID != "":
		doc, err := v.resolver.Resolve(ctx, strings.SplitN(result.KID, "#", 2)[0])
		if err != nil {
			logrus.WithError(err).WithField("kid", result.KID).Warn("could not resolve did from proof kid")
			return &result, nil
		}
		result.DID = doc.ID
		result.DIDDocument = doc
		if key, err = doc.VerificationKey(result.KID); err != nil {
			return nil, errors.Wrap(err, "finding proof key")
		}
	case result.JWK != nil:
		key = result.JWK
		if err = v.bindJWK(ctx, &result, key); err != nil {
			return nil, err
		}
	default:
		key, err = leafKey(result.X5C[0])
		if err != nil {
			return nil, err
		}
		if err = v.bindJWK(ctx, &result, key); err != nil {
			return nil, err
		}
	}

	if _, err = jws.Verify([]byte(proofJWT), jws.WithKey(result.Algorithm, key)); err != nil {
		return nil, errors.Wrap(err, "verifying proof signature")
	}
	return &result, nil
}

// bindJWK gives a bare key a did:jwk identity.
func (v ProofVerifier) bindJWK(ctx context.Context, result *ProofResult, key jwk.Key) error {
	did, err := CreateDIDJWK(key)
	if err != nil {
		return errors.Wrap(err, "deriving did:jwk")
	}
	doc, err := v.resolver.Resolve(ctx, did)
	if err != nil {
		return errors.Wrap(err, "resolving did:jwk")
	}
	result.DID = did
	result.DIDDocument = doc
	return nil
}

func leafKey(encodedCert string) (jwk.Key, error) {
	der, err := base64.StdEncoding.DecodeString(encodedCert)
	if err != nil {
		return nil, errors.Wrap(err, "decoding x5c certificate")
	}
	certificate, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, errors.Wrap(err, "parsing x5c certificate")
	}
	return jwk.FromRaw(certificate.PublicKey)
}
