package integration

import (
	"bytes"
	gocrypto "crypto"
	"embed"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"text/template"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/oliveagle/jsonpath"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/oid4vci-issuer/internal/keyaccess"
	"github.com/tbd54566975/oid4vci-issuer/internal/util"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/oidc"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/oidc/model"
)

const (
	// Note: matches the default issuer of config/dev.toml
	endpoint       = "http://localhost:3000/"
	issuerPath     = "default/"
	adminToken     = "admin-secret"
	offerURIPrefix = "openid-credential-offer://?credential_offer_uri="
	MaxElapsedTime = 120 * time.Second
)

var (
	//go:embed testdata
	testVectors embed.FS
	client      = &http.Client{Timeout: 90 * time.Second}
)

func init() {
	// Treats "\n" as new lines, see https://github.com/sirupsen/logrus/issues/608
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableQuote: true,
		ForceColors:  true,
	})
}

func issuerURL(p string) string {
	return endpoint + issuerPath + p
}

// WaitForIssuer polls the readiness endpoint until every service reports ready.
func WaitForIssuer() error {
	exp := backoff.NewExponentialBackOff()
	exp.MaxElapsedTime = MaxElapsedTime
	return backoff.Retry(func() error {
		output, err := get(endpoint+"readiness", "")
		if err != nil {
			return err
		}
		status, err := getJSONElement(output, "$.status.status")
		if err != nil {
			return err
		}
		if status != "ready" {
			return fmt.Errorf("issuer not ready: %s", output)
		}
		return nil
	}, exp)
}

// NewHolder creates the did:key wallet key the credential is bound to.
func NewHolder() (*keyaccess.JWKKeyAccess, error) {
	privateKey, err := keyaccess.GenerateKey(keyaccess.Ed25519)
	if err != nil {
		return nil, errors.Wrap(err, "generating holder key")
	}
	signer, ok := privateKey.(gocrypto.Signer)
	if !ok {
		return nil, errors.New("holder key is not a signer")
	}
	did, multibaseKey, err := keyaccess.CreateDIDKey(signer.Public())
	if err != nil {
		return nil, errors.Wrap(err, "creating holder did")
	}
	return keyaccess.NewJWKKeyAccess(did, did+"#"+multibaseKey, privateKey)
}

type offerParams struct {
	CredentialID         string
	AdministrativeNumber string
	PINLength            int
}

func CreateOffer(params offerParams) (string, error) {
	logrus.Println("\n\nCreate a credential offer:")
	offerJSON, err := resolveTemplate(params, "create-offer-input.json")
	if err != nil {
		return "", err
	}

	output, err := post(issuerURL("api/create-offer"), "application/json", offerJSON, adminToken)
	if err != nil {
		return "", errors.Wrapf(err, "create offer endpoint with output: %s", output)
	}
	return output, nil
}

// PreAuthorizedCode takes the code out of the credential_offer_uri of a create offer response.
func PreAuthorizedCode(createOfferOutput string) (string, error) {
	uri, err := getJSONElement(createOfferOutput, "$.uri")
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(uri, offerURIPrefix) {
		return "", fmt.Errorf("unexpected offer uri: %s", uri)
	}
	offerURI, err := url.QueryUnescape(strings.TrimPrefix(uri, offerURIPrefix))
	if err != nil {
		return "", errors.Wrap(err, "unescaping offer uri")
	}
	return path.Base(offerURI), nil
}

func GetOffer(code string) (string, error) {
	logrus.Println("\n\nResolve the credential offer:")
	return get(issuerURL("get-credential-offer/"+code), "")
}

func RequestToken(code, txCode string) (string, error) {
	logrus.Println("\n\nExchange the pre-authorized code:")
	form := url.Values{
		"grant_type":          {model.PreAuthorizedCodeGrantType},
		"pre-authorized_code": {code},
	}
	if txCode != "" {
		form.Set("tx_code", txCode)
	}
	output, err := post(issuerURL("token"), "application/x-www-form-urlencoded", form.Encode(), "")
	if err != nil {
		return "", errors.Wrapf(err, "token endpoint with output: %s", output)
	}
	return output, nil
}

type credentialRequestParams struct {
	ProofJWT string
}

// RequestCredential signs a proof over cNonce with the holder key and posts it with the access token.
func RequestCredential(holder *keyaccess.JWKKeyAccess, accessToken, cNonce string) (string, error) {
	logrus.Println("\n\nRequest the credential:")
	metadata, err := get(issuerURL(".well-known/openid-credential-issuer"), "")
	if err != nil {
		return "", err
	}
	audience, err := getJSONElement(metadata, "$.credential_issuer")
	if err != nil {
		return "", err
	}

	proof, err := holder.SignWithType(map[string]any{
		"aud":   audience,
		"iat":   time.Now().Unix(),
		"nonce": cNonce,
	}, oidc.ProofJWTType)
	if err != nil {
		return "", errors.Wrap(err, "signing proof")
	}
	requestJSON, err := resolveTemplate(credentialRequestParams{ProofJWT: proof.String()}, "credential-request-input.json")
	if err != nil {
		return "", err
	}

	output, err := post(issuerURL("credentials"), "application/json", requestJSON, accessToken)
	if err != nil {
		return "", errors.Wrapf(err, "credential endpoint with output: %s", output)
	}
	return output, nil
}

func CheckOffer(code string) (string, error) {
	logrus.Println("\n\nCheck the state of the offer:")
	return post(issuerURL("api/check-offer"), "application/json", fmt.Sprintf(`{"id":%q}`, code), adminToken)
}

func ListCredentials(primaryID string) (string, error) {
	logrus.Println("\n\nList issued credentials:")
	return post(issuerURL("api/list-credentials"), "application/json", fmt.Sprintf(`{"primaryId":%q}`, primaryID), adminToken)
}

func resolveTemplate(input any, fileName string) (string, error) {
	t, err := template.ParseFS(testVectors, "testdata/"+fileName)
	if err != nil {
		return "", errors.Wrap(err, "parsing input file")
	}

	var b bytes.Buffer
	if err = t.Execute(&b, input); err != nil {
		return "", err
	}
	return b.String(), nil
}

func compactJSONOutput(jsonString string) string {
	buffer := new(bytes.Buffer)
	if err := json.Compact(buffer, []byte(jsonString)); err != nil {
		logrus.Println(err)
		panic(err)
	}
	return buffer.String()
}

func getJSONElement(jsonString string, jsonPath string) (string, error) {
	var jsonValue any
	if err := json.Unmarshal([]byte(jsonString), &jsonValue); err != nil {
		return "", errors.Wrap(err, "unmarshalling json string")
	}

	element, err := jsonpath.JsonPathLookup(jsonValue, jsonPath)
	if err != nil {
		return "", errors.Wrap(err, "finding element in json string")
	}

	if element == nil {
		return "<nil>", nil
	}
	switch e := element.(type) {
	case bool, string, float64:
		return fmt.Sprintf("%v", e), nil
	default:
		data, err := json.Marshal(element)
		if err != nil {
			return "", err
		}
		return compactJSONOutput(string(data)), nil
	}
}

func get(url, bearer string) (string, error) {
	logrus.Printf("\nPerforming GET request to:  %s\n", url)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrap(err, "building http req")
	}
	return do(req, bearer)
}

func post(url, contentType, body, bearer string) (string, error) {
	logrus.Printf("\nPerforming POST request to:  %s \n\nwith data: \n%s\n", url, body)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBufferString(body))
	if err != nil {
		return "", errors.Wrap(err, "building http req")
	}
	req.Header.Set("Content-Type", contentType)
	return do(req, bearer)
}

func do(req *http.Request, bearer string) (string, error) {
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "client http client")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "parsing body")
	}

	bodyStr := string(body)
	if !util.Is2xxResponse(resp.StatusCode) {
		return bodyStr, fmt.Errorf("status code %v not in the 200s. body: %s", resp.StatusCode, bodyStr)
	}

	logrus.Infof("Received:  %s", bodyStr)
	return bodyStr, nil
}
