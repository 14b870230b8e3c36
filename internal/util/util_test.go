package util

import (
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMethodForDID(t *testing.T) {
	method, err := GetMethodForDID("did:key:z6MkhaXgBZDvotDkL5257faiztiGiC2QtKLGpbnnEGta2doK")
	assert.NoError(t, err)
	assert.Equal(t, "key", method)

	_, err = GetMethodForDID("did:key")
	assert.Error(t, err)

	_, err = GetMethodForDID("bad:key:abcd")
	assert.Error(t, err)
}

func TestSanitizeLog(t *testing.T) {
	assert.Equal(t, "ab", SanitizeLog("a\r\nb"))
}

func TestAlphanumericUUID(t *testing.T) {
	id := AlphanumericUUID()
	assert.Len(t, id, 32)
	assert.Regexp(t, "^[a-z0-9]+$", id)
	assert.NotEqual(t, id, AlphanumericUUID())
}

func TestTimestamps(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 6000000, time.FixedZone("CET", 3600))
	assert.Equal(t, "2024-01-02T02:04:05.006Z", ISOTimestamp(ts))
	assert.Equal(t, ts.UnixMilli(), UnixMillis(ts))
}

func TestParseJWT(t *testing.T) {
	key, err := jwk.FromRaw([]byte("a-very-secret-hmac-key-for-tests"))
	require.NoError(t, err)

	token := jwt.New()
	require.NoError(t, token.Set("nonce", "n-0S6_WzA2Mj"))
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, key))
	require.NoError(t, err)

	sig, parsed, err := ParseJWT(string(signed))
	assert.NoError(t, err)
	assert.Equal(t, jwa.HS256, sig.ProtectedHeaders().Algorithm())
	nonce, ok := parsed.Get("nonce")
	assert.True(t, ok)
	assert.Equal(t, "n-0S6_WzA2Mj", nonce)

	_, _, err = ParseJWT("not-a-jwt")
	assert.Error(t, err)
}
