package credential

import (
	"time"

	"github.com/TBD54566975/ssi-sdk/oidc/issuance"
)

const (
	VCContextV1          = "https://www.w3.org/2018/credentials/v1"
	VerifiableCredential = "VerifiableCredential"

	// SDJWTVC is not among the formats the sdk declares.
	SDJWTVC issuance.Format = "vc+sd-jwt"
)

// SupportedFormats are the credential request formats the issuer accepts.
var SupportedFormats = []issuance.Format{issuance.JWTVCJSON, issuance.JWTVCJSONLD, SDJWTVC, issuance.LDPVC}

func IsSupportedFormat(f issuance.Format) bool {
	for _, supported := range SupportedFormats {
		if f == supported {
			return true
		}
	}
	return false
}

// Claims is the opaque holder supplied payload captured at offer time.
type Claims map[string]any

type Display struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Locale      string `json:"locale,omitempty"`
}

type CredentialDefinition struct {
	Type    []string `json:"type,omitempty"`
	Context []string `json:"@context,omitempty"`
}

// Configuration is the typed view of one credential_configurations_supported entry.
type Configuration struct {
	Format               issuance.Format       `json:"format"`
	CredentialDefinition *CredentialDefinition `json:"credential_definition,omitempty"`
	VCT                  string                `json:"vct,omitempty"`
	Display              []Display             `json:"display,omitempty"`
}

// Types returns the declared credential types without the VerifiableCredential marker.
func (c Configuration) Types() []string {
	switch c.Format {
	case SDJWTVC:
		if c.VCT == "" {
			return nil
		}
		return []string{c.VCT}
	case issuance.JWTVCJSON, "jwt_vc", issuance.JWTVCJSONLD, issuance.LDPVC:
		if c.CredentialDefinition == nil {
			return nil
		}
		types := make([]string, 0, len(c.CredentialDefinition.Type))
		for _, t := range c.CredentialDefinition.Type {
			if t != VerifiableCredential {
				types = append(types, t)
			}
		}
		return types
	default:
		return nil
	}
}

func (c Configuration) firstDisplay() Display {
	if len(c.Display) == 0 {
		return Display{}
	}
	return c.Display[0]
}

// Issuer identifies who signs the credential. Name and Description come from the issuer metadata display.
type Issuer struct {
	DID         string
	Name        string
	Description string
}

// GenerateRequest carries everything a strategy needs to shape a credential body.
type GenerateRequest struct {
	ConfigurationID string
	Configuration   Configuration
	Issuer          Issuer
	Input           Claims
	Now             time.Time
}

// Result is the unsigned credential body along with the format it is issued in.
type Result struct {
	Format     issuance.Format
	Credential map[string]any
	// PrincipalClaim names the subject claim that identifies the credential holder, empty when there is none
	PrincipalClaim string
	// Types are the credential types without VerifiableCredential
	Types []string
}

// Subject returns the credentialSubject as a single object, nil when it is missing or an array.
func (r Result) Subject() map[string]any {
	if r.Credential == nil {
		return nil
	}
	subject, _ := r.Credential["credentialSubject"].(map[string]any)
	return subject
}
