package credential

import (
	"github.com/tbd54566975/oid4vci-issuer/internal/util"
)

// baseCredential lays out the fields every strategy except OpenBadge shares.
func baseCredential(req GenerateRequest, subject map[string]any) map[string]any {
	display := req.Configuration.firstDisplay()
	types := append([]string{VerifiableCredential}, req.Configuration.Types()...)
	return map[string]any{
		"@context": []string{VCContextV1},
		"type":     types,
		"issuer": map[string]any{
			"id":          req.Issuer.DID,
			"name":        req.Issuer.Name,
			"description": req.Issuer.Description,
		},
		"iss":               req.Issuer.DID,
		"name":              display.Name,
		"description":       display.Description,
		"issuanceDate":      util.ISOTimestamp(req.Now),
		"credentialSubject": subject,
	}
}
