package oidc

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/oid4vci-issuer/internal/keyaccess"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/credential"
)

const (
	credentialConfigurationsSupported = "credential_configurations_supported"

	// OID4VCIServiceType is the DID document service type pointing at the credential issuer.
	OID4VCIServiceType = "OID4VCI"
)

// Metadata is the credential issuer metadata of one issuer: the configured document whose supported credential
// configurations are merged over the configuration store.
type Metadata struct {
	baseURL        string
	document       map[string]any
	configurations map[string]credential.Configuration
	display        credential.Display
}

// LoadMetadata reads the issuer metadata file and the directory of credential configurations, one JSON file per
// configuration named after its id. An empty metadata path supports every configuration in the directory.
func LoadMetadata(baseURL, metadataPath, configurationsPath string) (*Metadata, error) {
	store, err := loadConfigurationStore(configurationsPath)
	if err != nil {
		return nil, err
	}

	document := make(map[string]any)
	if metadataPath != "" {
		metadataBytes, err := os.ReadFile(metadataPath)
		if err != nil {
			return nil, sdkutil.LoggingErrorMsgf(err, "reading issuer metadata: %s", metadataPath)
		}
		if err = json.Unmarshal(metadataBytes, &document); err != nil {
			return nil, sdkutil.LoggingErrorMsgf(err, "parsing issuer metadata: %s", metadataPath)
		}
	} else {
		supported := make(map[string]any, len(store))
		for id := range store {
			supported[id] = map[string]any{}
		}
		document[credentialConfigurationsSupported] = supported
	}
	return NewMetadata(baseURL, document, store)
}

func loadConfigurationStore(dir string) (map[string]map[string]any, error) {
	store := make(map[string]map[string]any)
	if dir == "" {
		return store, nil
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, errors.Wrapf(err, "listing credential configurations in %s", dir)
	}
	for _, file := range files {
		configBytes, err := os.ReadFile(file)
		if err != nil {
			return nil, sdkutil.LoggingErrorMsgf(err, "reading credential configuration: %s", file)
		}
		var configuration map[string]any
		if err = json.Unmarshal(configBytes, &configuration); err != nil {
			return nil, sdkutil.LoggingErrorMsgf(err, "parsing credential configuration: %s", file)
		}
		store[strings.TrimSuffix(filepath.Base(file), ".json")] = configuration
	}
	logrus.Debugf("loaded %d credential configurations from %s", len(store), dir)
	return store, nil
}

// NewMetadata merges each configuration the document declares over the stored configuration of the same id. Keys
// set in the document win.
func NewMetadata(baseURL string, document map[string]any, store map[string]map[string]any) (*Metadata, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	declared, _ := document[credentialConfigurationsSupported].(map[string]any)

	merged := make(map[string]any, len(declared))
	configurations := make(map[string]credential.Configuration, len(declared))
	for id, overlay := range declared {
		entry := make(map[string]any)
		for k, v := range store[id] {
			entry[k] = v
		}
		if overlayMap, ok := overlay.(map[string]any); ok {
			for k, v := range overlayMap {
				entry[k] = v
			}
		}
		merged[id] = entry

		var typed credential.Configuration
		entryBytes, err := json.Marshal(entry)
		if err != nil {
			return nil, errors.Wrapf(err, "marshalling credential configuration<%s>", id)
		}
		if err = json.Unmarshal(entryBytes, &typed); err != nil {
			return nil, errors.Wrapf(err, "credential configuration<%s> is malformed", id)
		}
		if typed.Format == "" {
			logrus.Warnf("credential configuration<%s> declares no format", id)
		}
		configurations[id] = typed
	}

	result := make(map[string]any, len(document)+3)
	for k, v := range document {
		result[k] = v
	}
	result[credentialConfigurationsSupported] = merged
	result["credential_issuer"] = baseURL
	result["credential_endpoint"] = baseURL + "/credentials"
	result["authorization_challenge_endpoint"] = baseURL + "/authorization-challenge"

	return &Metadata{
		baseURL:        baseURL,
		document:       result,
		configurations: configurations,
		display:        issuerDisplay(document),
	}, nil
}

func issuerDisplay(document map[string]any) credential.Display {
	displays, ok := document["display"].([]any)
	if !ok || len(displays) == 0 {
		return credential.Display{}
	}
	var display credential.Display
	displayBytes, err := json.Marshal(displays[0])
	if err != nil {
		return display
	}
	if err = json.Unmarshal(displayBytes, &display); err != nil {
		logrus.WithError(err).Warn("ignoring malformed issuer display")
	}
	return display
}

// CredentialIssuer is the credential_issuer identifier, the issuer's base url.
func (m *Metadata) CredentialIssuer() string {
	return m.baseURL
}

// IssuerName is the name of the first issuer display, the base url when there is none.
func (m *Metadata) IssuerName() string {
	if m.display.Name != "" {
		return m.display.Name
	}
	return m.baseURL
}

func (m *Metadata) IsSupported(configurationID string) bool {
	_, ok := m.configurations[configurationID]
	return ok
}

func (m *Metadata) Configuration(configurationID string) (credential.Configuration, bool) {
	c, ok := m.configurations[configurationID]
	return c, ok
}

// ConfigurationIDs are the supported configuration ids in lexical order.
func (m *Metadata) ConfigurationIDs() []string {
	ids := make([]string, 0, len(m.configurations))
	for id := range m.configurations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Metadata) Display() credential.Display {
	return m.display
}

// Document returns the metadata served at /.well-known/openid-credential-issuer. Callers must not modify it.
func (m *Metadata) Document() map[string]any {
	return m.document
}

// BuildDIDDocument describes the issuer's signing key and points at its credential issuer endpoint.
func BuildDIDDocument(signer *keyaccess.JWKKeyAccess, credentialIssuer string) (*keyaccess.DIDDocument, error) {
	if signer == nil {
		return nil, errors.New("no signer")
	}
	publicKey := signer.PublicKey()
	kt, err := keyaccess.KeyTypeForJWK(publicKey)
	if err != nil {
		return nil, errors.Wrap(err, "determining issuer key type")
	}
	vmType, err := keyaccess.VerificationMethodType(kt)
	if err != nil {
		return nil, err
	}

	doc := keyaccess.DIDDocument{
		Context: keyaccess.DIDContextV1,
		ID:      signer.ID,
		VerificationMethod: []keyaccess.VerificationMethod{{
			ID:           signer.KID,
			Type:         vmType,
			Controller:   signer.ID,
			PublicKeyJWK: publicKey,
		}},
		Service: []keyaccess.Service{{
			ID:              signer.ID + "#oid4vci",
			Type:            OID4VCIServiceType,
			ServiceEndpoint: credentialIssuer,
		}},
	}
	if kt == keyaccess.X25519 {
		doc.KeyAgreement = []string{signer.KID}
	} else {
		doc.Authentication = []string{signer.KID}
		doc.AssertionMethod = []string{signer.KID}
	}
	return &doc, nil
}
