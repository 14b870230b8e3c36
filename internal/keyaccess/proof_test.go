package keyaccess

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/cert"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func base64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func signProof(t *testing.T, key any, alg jwa.SignatureAlgorithm, hdrs map[string]any, claims map[string]any) string {
	headers := jws.NewHeaders()
	for k, v := range hdrs {
		require.NoError(t, headers.Set(k, v))
	}
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	signed, err := jws.Sign(payload, jws.WithKey(alg, key, jws.WithProtectedHeaders(headers)))
	require.NoError(t, err)
	return string(signed)
}

func TestVerifyProofWithDIDKey(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	did, fragment, err := CreateDIDKey(pub)
	require.NoError(t, err)

	proof := signProof(t, priv, jwa.EdDSA, map[string]any{
		jws.TypeKey:  "openid4vci-proof+jwt",
		jws.KeyIDKey: did + "#" + fragment,
	}, map[string]any{"nonce": "abc", "aud": "http://localhost/default", "iat": time.Now().Unix()})

	result, err := NewProofVerifier(nil).Verify(context.Background(), proof)
	require.NoError(t, err)
	assert.Equal(t, did, result.DID)
	assert.NotNil(t, result.DIDDocument)
	assert.Equal(t, "openid4vci-proof+jwt", result.Type)
	assert.Equal(t, jwa.EdDSA, result.Algorithm)
	assert.Equal(t, 1, result.KeyMaterialCount())
	assert.Equal(t, "abc", result.Nonce())
	assert.Equal(t, []string{"http://localhost/default"}, result.Claims.Audience())

	t.Run("signed by another key", func(tt *testing.T) {
		_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(tt, err)
		forged := signProof(tt, otherPriv, jwa.EdDSA, map[string]any{
			jws.TypeKey:  "openid4vci-proof+jwt",
			jws.KeyIDKey: did + "#" + fragment,
		}, map[string]any{"nonce": "abc"})
		_, err = NewProofVerifier(nil).Verify(context.Background(), forged)
		assert.ErrorContains(tt, err, "verifying proof signature")
	})
}

func TestVerifyProofWithJWK(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	pubJWK, err := jwk.FromRaw(&priv.PublicKey)
	require.NoError(t, err)

	proof := signProof(t, priv, jwa.ES256, map[string]any{
		jws.TypeKey: "openid4vci-proof+jwt",
		jws.JWKKey:  pubJWK,
	}, map[string]any{"nonce": "abc"})

	result, err := NewProofVerifier(nil).Verify(context.Background(), proof)
	require.NoError(t, err)

	wantDID, err := CreateDIDJWK(pubJWK)
	require.NoError(t, err)
	assert.Equal(t, wantDID, result.DID)
	assert.NotNil(t, result.JWK)
	assert.Empty(t, result.KID)
}

func TestVerifyProofWithX5C(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "holder"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	require.NoError(t, err)

	var chain cert.Chain
	require.NoError(t, chain.AddString(base64.StdEncoding.EncodeToString(der)))

	proof := signProof(t, priv, jwa.ES256, map[string]any{
		jws.TypeKey:          "openid4vci-proof+jwt",
		jws.X509CertChainKey: &chain,
	}, map[string]any{"nonce": "abc"})

	result, err := NewProofVerifier(nil).Verify(context.Background(), proof)
	require.NoError(t, err)
	assert.Len(t, result.X5C, 1)
	assert.Contains(t, result.DID, "did:jwk:")
}

func TestVerifyProofLeavesStructuralChecksToCaller(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	did, fragment, err := CreateDIDKey(pub)
	require.NoError(t, err)
	pubJWK, err := jwk.FromRaw(pub)
	require.NoError(t, err)

	t.Run("kid and jwk", func(tt *testing.T) {
		proof := signProof(tt, priv, jwa.EdDSA, map[string]any{
			jws.TypeKey:  "openid4vci-proof+jwt",
			jws.KeyIDKey: did + "#" + fragment,
			jws.JWKKey:   pubJWK,
		}, map[string]any{"nonce": "abc"})
		result, err := NewProofVerifier(nil).Verify(context.Background(), proof)
		require.NoError(tt, err)
		assert.Equal(tt, 2, result.KeyMaterialCount())
		assert.Empty(tt, result.DID)
	})

	t.Run("no key material", func(tt *testing.T) {
		proof := signProof(tt, priv, jwa.EdDSA, map[string]any{
			jws.TypeKey: "openid4vci-proof+jwt",
		}, map[string]any{"nonce": "abc"})
		result, err := NewProofVerifier(nil).Verify(context.Background(), proof)
		require.NoError(tt, err)
		assert.Equal(tt, 0, result.KeyMaterialCount())
	})

	t.Run("unresolvable kid", func(tt *testing.T) {
		proof := signProof(tt, priv, jwa.EdDSA, map[string]any{
			jws.TypeKey:  "openid4vci-proof+jwt",
			jws.KeyIDKey: "did:web:example.com#key-1",
		}, map[string]any{"nonce": "abc"})
		result, err := NewProofVerifier(nil).Verify(context.Background(), proof)
		require.NoError(tt, err)
		assert.Empty(tt, result.DID)
		assert.Nil(tt, result.DIDDocument)
		assert.Equal(tt, "did:web:example.com#key-1", result.KID)
	})

	t.Run("symmetric alg", func(tt *testing.T) {
		hmacKey, err := jwk.FromRaw([]byte("a-very-secret-hmac-key-for-tests"))
		require.NoError(tt, err)
		proof := signProof(tt, hmacKey, jwa.HS256, map[string]any{
			jws.TypeKey:  "openid4vci-proof+jwt",
			jws.KeyIDKey: did + "#" + fragment,
		}, map[string]any{"nonce": "abc"})
		_, err = NewProofVerifier(nil).Verify(context.Background(), proof)
		assert.ErrorContains(tt, err, "not allowed")
	})

	t.Run("garbage", func(tt *testing.T) {
		_, err := NewProofVerifier(nil).Verify(context.Background(), "a.b.c")
		assert.Error(tt, err)
	})
}
