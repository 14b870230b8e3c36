package router

import (
	"bytes"
	gocrypto "crypto"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/oid4vci-issuer/config"
	"github.com/tbd54566975/oid4vci-issuer/internal/keyaccess"
	"github.com/tbd54566975/oid4vci-issuer/pkg/server/middleware"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/oidc"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/oidc/model"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/record"
	"github.com/tbd54566975/oid4vci-issuer/pkg/storage"
)

const (
	testBaseURL    = "https://issuer.example.com"
	testAdminToken = "admin-secret"
	offerURIPrefix = "openid-credential-offer://?credential_offer_uri="
)

func newTestSigner(t *testing.T) *keyaccess.JWKKeyAccess {
	privateKey, err := keyaccess.GenerateKey(keyaccess.Ed25519)
	require.NoError(t, err)
	signer, ok := privateKey.(gocrypto.Signer)
	require.True(t, ok)
	did, multibaseKey, err := keyaccess.CreateDIDKey(signer.Public())
	require.NoError(t, err)
	keyAccess, err := keyaccess.NewJWKKeyAccess(did, did+"#"+multibaseKey, privateKey)
	require.NoError(t, err)
	return keyAccess
}

func newTestIssuerRouter(t *testing.T) *IssuerRouter {
	metadata, err := oidc.NewMetadata(testBaseURL, map[string]any{
		"display":                             []any{map[string]any{"name": "Test Issuer"}},
		"credential_configurations_supported": map[string]any{"PID": map[string]any{}},
	}, map[string]map[string]any{
		"PID": {
			"format":                "jwt_vc_json",
			"credential_definition": map[string]any{"type": []any{"VerifiableCredential", "PID"}},
		},
	})
	require.NoError(t, err)

	db := new(storage.MemoryDB)
	records, err := record.NewRecordService(db, nil)
	require.NoError(t, err)
	service, err := oidc.NewIssuerService(config.IssuerConfig{
		Name:                    "default",
		BaseURL:                 testBaseURL,
		AdminToken:              testAdminToken,
		EnableCreateCredentials: true,
	}, db, newTestSigner(t), records, metadata)
	require.NoError(t, err)

	issuerRouter, err := NewIssuerRouter(service)
	require.NoError(t, err)
	return issuerRouter
}

func newIssuerEngine(ir *IssuerRouter) *gin.Engine {
	engine := newTestEngine()
	engine.POST("/token", ir.Token)
	engine.POST("/credentials", ir.IssueCredential)
	engine.GET("/get-credential-offer/:id", ir.GetCredentialOffer)
	engine.GET("/.well-known/openid-credential-issuer", ir.IssuerMetadata)
	engine.GET("/.well-known/did.json", ir.DIDDocument)
	engine.GET("/.well-known/oauth-authorization-server", ir.AuthorizationServerMetadata)

	admin := engine.Group("/api", middleware.AdminAuth(ir.service.Config()))
	admin.POST("/create-offer", ir.CreateOffer)
	admin.POST("/check-offer", ir.CheckOffer)
	admin.POST("/list-credentials", ir.ListCredentials)
	admin.POST("/revoke-credential", ir.RevokeCredential)
	return engine
}

func newRequestValue(t *testing.T, data any) io.Reader {
	dataBytes, err := json.Marshal(data)
	require.NoError(t, err)
	require.NotEmpty(t, dataBytes)
	return bytes.NewReader(dataBytes)
}

func serveJSON(engine *gin.Engine, method, target string, body io.Reader, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func testPIDInput() map[string]any {
	return map[string]any{
		"personal_administrative_number": "PAN-1234",
		"document_number":                "D-0001",
		"given_name":                     "Erika",
		"family_name":                    "Mustermann",
		"nationality":                    "DE",
	}
}

// createOffer returns the pre-authorized code of a new PID offer.
func createOffer(t *testing.T, engine *gin.Engine) string {
	w := serveJSON(engine, http.MethodPost, "/api/create-offer", newRequestValue(t, model.CreateOfferRequest{
		Credentials:                 []string{"PID"},
		Grants:                      &model.Grants{PreAuthorizedCode: &model.PreAuthorizedCodeGrant{}},
		CredentialDataSupplierInput: testPIDInput(),
	}), testAdminToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp model.CreateOfferResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, strings.HasPrefix(resp.URI, offerURIPrefix))
	offerURI, err := url.QueryUnescape(strings.TrimPrefix(resp.URI, offerURIPrefix))
	require.NoError(t, err)
	return path.Base(offerURI)
}

func requestToken(engine *gin.Engine, code string) *httptest.ResponseRecorder {
	form := url.Values{
		"grant_type":          {model.PreAuthorizedCodeGrantType},
		"pre-authorized_code": {code},
	}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestIssuerRouter(t *testing.T) {
	t.Run("bad service", func(tt *testing.T) {
		_, err := NewIssuerRouter(nil)
		assert.Error(tt, err)

		_, err = NewIssuerRouter(&testService{})
		assert.ErrorContains(tt, err, "could not create issuer router with service type: test")
	})

	t.Run("pre-authorized code exchange", func(tt *testing.T) {
		engine := newIssuerEngine(newTestIssuerRouter(tt))
		code := createOffer(tt, engine)

		w := serveJSON(engine, http.MethodGet, "/get-credential-offer/"+code, nil, "")
		require.Equal(tt, http.StatusOK, w.Code, w.Body.String())
		var offer model.CredentialOfferPayload
		require.NoError(tt, json.Unmarshal(w.Body.Bytes(), &offer))
		assert.Equal(tt, testBaseURL, offer.CredentialIssuer)
		assert.Equal(tt, []string{"PID"}, offer.CredentialConfigurationIDs)

		w = requestToken(engine, code)
		require.Equal(tt, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(tt, "no-store", w.Header().Get("Cache-Control"))
		assert.Equal(tt, "no-cache", w.Header().Get("Pragma"))
		var tokenResp model.TokenResponse
		require.NoError(tt, json.Unmarshal(w.Body.Bytes(), &tokenResp))
		assert.Equal(tt, "bearer", tokenResp.TokenType)
		assert.Equal(tt, 300, tokenResp.ExpiresIn)

		// the code is single use
		w = requestToken(engine, code)
		assert.Equal(tt, http.StatusBadRequest, w.Code)
		assert.Contains(tt, w.Body.String(), `"error":"invalid_grant"`)

		holder := newTestSigner(tt)
		proof, err := holder.SignWithType(map[string]any{
			"aud":   testBaseURL,
			"iat":   time.Now().Unix(),
			"nonce": tokenResp.CNonce,
		}, oidc.ProofJWTType)
		require.NoError(tt, err)
		w = serveJSON(engine, http.MethodPost, "/credentials", newRequestValue(tt, model.CredentialRequest{
			Format: "jwt_vc_json",
			Proof: &model.ProofParameter{
				ProofType: model.ProofTypeJWT,
				JWTProof:  &model.JWTProof{JWT: proof.String()},
			},
		}), tokenResp.AccessToken)
		require.Equal(tt, http.StatusOK, w.Code, w.Body.String())
		var credResp model.CredentialResponse
		require.NoError(tt, json.Unmarshal(w.Body.Bytes(), &credResp))
		assert.NotEmpty(tt, credResp.Credential)
		assert.NotEqual(tt, tokenResp.CNonce, credResp.CNonce)

		w = serveJSON(engine, http.MethodPost, "/api/check-offer", newRequestValue(tt, model.CheckOfferRequest{ID: code}), testAdminToken)
		require.Equal(tt, http.StatusOK, w.Code, w.Body.String())
		var check model.CheckOfferResponse
		require.NoError(tt, json.Unmarshal(w.Body.Bytes(), &check))
		assert.Equal(tt, oidc.CredentialIssued.String(), check.Status)
		assert.NotEmpty(tt, check.UUID)

		w = serveJSON(engine, http.MethodPost, "/api/list-credentials", nil, testAdminToken)
		require.Equal(tt, http.StatusOK, w.Code, w.Body.String())
		var listed []record.IssuedCredential
		require.NoError(tt, json.Unmarshal(w.Body.Bytes(), &listed))
		require.Len(tt, listed, 1)
		assert.Equal(tt, check.UUID, listed[0].ID)
		assert.Equal(tt, holder.ID, listed[0].Holder)

		w = serveJSON(engine, http.MethodPost, "/api/list-credentials",
			newRequestValue(tt, model.ListCredentialsRequest{Credential: "Diploma"}), testAdminToken)
		require.Equal(tt, http.StatusOK, w.Code, w.Body.String())
		require.NoError(tt, json.Unmarshal(w.Body.Bytes(), &listed))
		assert.Empty(tt, listed)

		// no status list is configured
		w = serveJSON(engine, http.MethodPost, "/api/revoke-credential",
			newRequestValue(tt, model.RevokeRequest{ID: check.UUID, State: model.RevokeState}), testAdminToken)
		assert.Equal(tt, http.StatusBadRequest, w.Code)
		assert.JSONEq(tt, `{"error":"invalid_request","error_description":"No statuslist available"}`, w.Body.String())
	})

	t.Run("token errors", func(tt *testing.T) {
		engine := newIssuerEngine(newTestIssuerRouter(tt))

		w := serveJSON(engine, http.MethodPost, "/token", newRequestValue(tt, model.TokenRequest{
			GrantType:         "authorization_code",
			PreAuthorizedCode: "code",
		}), "")
		assert.Equal(tt, http.StatusBadRequest, w.Code)
		assert.JSONEq(tt, `{"error":"invalid_grant","error_reason":"unsupported_grant_type","error_description":"unsupported grant_type"}`, w.Body.String())

		w = requestToken(engine, "unknown")
		assert.Equal(tt, http.StatusBadRequest, w.Code)
		assert.JSONEq(tt, `{"error":"invalid_grant","error_reason":"invalid_code","error_description":"Invalid pre-authorized code"}`, w.Body.String())
	})

	t.Run("credential errors", func(tt *testing.T) {
		engine := newIssuerEngine(newTestIssuerRouter(tt))

		w := serveJSON(engine, http.MethodPost, "/credentials", newRequestValue(tt, model.CredentialRequest{Format: "jwt_vc_json"}), "")
		assert.Equal(tt, http.StatusUnauthorized, w.Code)
		assert.JSONEq(tt, `{"error":"invalid request"}`, w.Body.String())

		w = serveJSON(engine, http.MethodPost, "/credentials", strings.NewReader("{"), "token")
		assert.Equal(tt, http.StatusBadRequest, w.Code)
		assert.Contains(tt, w.Body.String(), `"error":"invalid_request"`)

		// a token signed by someone else
		foreign, err := newTestSigner(tt).Sign(map[string]any{"iss": "did:key:other"})
		require.NoError(tt, err)
		w = serveJSON(engine, http.MethodPost, "/credentials", newRequestValue(tt, model.CredentialRequest{Format: "jwt_vc_json"}), foreign.String())
		assert.Equal(tt, http.StatusForbidden, w.Code)
		assert.JSONEq(tt, `{"error":"not authorized"}`, w.Body.String())
	})

	t.Run("offer errors", func(tt *testing.T) {
		engine := newIssuerEngine(newTestIssuerRouter(tt))

		w := serveJSON(engine, http.MethodGet, "/get-credential-offer/unknown", nil, "")
		assert.Equal(tt, http.StatusNotFound, w.Code)

		w = serveJSON(engine, http.MethodPost, "/api/check-offer", newRequestValue(tt, model.CheckOfferRequest{}), testAdminToken)
		assert.Equal(tt, http.StatusBadRequest, w.Code)

		w = serveJSON(engine, http.MethodPost, "/api/create-offer", newRequestValue(tt, model.CreateOfferRequest{
			Credentials: []string{"PID"},
		}), testAdminToken)
		assert.Equal(tt, http.StatusBadRequest, w.Code)
		assert.JSONEq(tt, `{"error":"invalid_grant","error_description":"No grant type supplied"}`, w.Body.String())
	})

	t.Run("offer pin is sent as txCode and userPin", func(tt *testing.T) {
		engine := newIssuerEngine(newTestIssuerRouter(tt))
		w := serveJSON(engine, http.MethodPost, "/api/create-offer", newRequestValue(tt, model.CreateOfferRequest{
			Credentials:                 []string{"PID"},
			Grants:                      &model.Grants{PreAuthorizedCode: &model.PreAuthorizedCodeGrant{TxCode: &model.TxCode{}}},
			CredentialDataSupplierInput: testPIDInput(),
		}), testAdminToken)
		require.Equal(tt, http.StatusOK, w.Code, w.Body.String())

		var body map[string]any
		require.NoError(tt, json.Unmarshal(w.Body.Bytes(), &body))
		pin, ok := body["userPin"].(string)
		require.True(tt, ok, w.Body.String())
		assert.Len(tt, pin, oidc.DefaultPINLength)
		assert.Equal(tt, pin, body["txCode"])
	})

	t.Run("admin api needs the admin token", func(tt *testing.T) {
		engine := newIssuerEngine(newTestIssuerRouter(tt))
		for _, target := range []string{"/api/create-offer", "/api/check-offer", "/api/list-credentials", "/api/revoke-credential"} {
			w := serveJSON(engine, http.MethodPost, target, strings.NewReader("{}"), "wrong")
			assert.Equal(tt, http.StatusUnauthorized, w.Code, target)
		}
	})

	t.Run("well-known documents", func(tt *testing.T) {
		issuerRouter := newTestIssuerRouter(tt)
		engine := newIssuerEngine(issuerRouter)

		w := serveJSON(engine, http.MethodGet, "/.well-known/openid-credential-issuer", nil, "")
		require.Equal(tt, http.StatusOK, w.Code)
		var metadata map[string]any
		require.NoError(tt, json.Unmarshal(w.Body.Bytes(), &metadata))
		assert.Equal(tt, testBaseURL, metadata["credential_issuer"])
		assert.Equal(tt, testBaseURL+"/credentials", metadata["credential_endpoint"])

		w = serveJSON(engine, http.MethodGet, "/.well-known/did.json", nil, "")
		require.Equal(tt, http.StatusOK, w.Code)
		var doc map[string]any
		require.NoError(tt, json.Unmarshal(w.Body.Bytes(), &doc))
		assert.Equal(tt, issuerRouter.service.DID(), doc["id"])
		assert.Equal(tt, keyaccess.DIDContextV1, doc["@context"])

		w = serveJSON(engine, http.MethodGet, "/.well-known/oauth-authorization-server", nil, "")
		require.Equal(tt, http.StatusOK, w.Code)
		assert.JSONEq(tt, `{"issuer":"https://issuer.example.com","token_endpoint":"https://issuer.example.com/token"}`, w.Body.String())
	})
}
