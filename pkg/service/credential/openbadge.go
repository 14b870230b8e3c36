package credential

import (
	"github.com/TBD54566975/ssi-sdk/oidc/issuance"
	"github.com/oliveagle/jsonpath"
)

const OpenBadgeContextV3 = "https://purl.imsglobal.org/spec/ob/v3p0/context-3.0.2.json"

// openBadgeStrategy reshapes an achievement credential supplied by the badge platform.
// The OB 3.0 schema is too broad to validate claim by claim, so check accepts anything.
type openBadgeStrategy struct{}

func (openBadgeStrategy) check(Claims) bool {
	return true
}

func (openBadgeStrategy) generate(req GenerateRequest) (map[string]any, error) {
	input := map[string]any(req.Input)

	achievement, ok := lookup(input, "$.credential.credentialSubject.achievement").(map[string]any)
	if !ok {
		achievement = map[string]any{}
	}
	sourceIssuer, _ := lookup(input, "$.credential.issuer").(map[string]any)

	badgeTypes := []string{VerifiableCredential, OpenBadge.String()}
	body := map[string]any{
		"@context": []string{VCContextV1, OpenBadgeContextV3},
		"type":     badgeTypes,
		"issuer": map[string]any{
			"id":          req.Issuer.DID,
			"name":        sourceIssuer["name"],
			"description": sourceIssuer["description"],
		},
		"name":        achievement["name"],
		"description": achievement["description"],
		"credentialSubject": map[string]any{
			"type":        badgeTypes,
			"achievement": achievement,
		},
	}

	// both the current and the deprecated date fields are set
	if validFrom, ok := lookup(input, "$.credential.validFrom").(string); ok {
		body["validFrom"] = validFrom
		body["issuanceDate"] = validFrom
	}
	if validUntil, ok := lookup(input, "$.credential.validUntil").(string); ok {
		body["validUntil"] = validUntil
		body["expirationDate"] = validUntil
	}
	return body, nil
}

func (openBadgeStrategy) format(Configuration) issuance.Format {
	return issuance.JWTVCJSON
}

func (openBadgeStrategy) principalClaim() string {
	return ""
}

// lookup returns nil when any segment of the path is missing.
func lookup(obj map[string]any, path string) any {
	v, err := jsonpath.JsonPathLookup(obj, path)
	if err != nil {
		return nil
	}
	return v
}
