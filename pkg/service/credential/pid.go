package credential

import (
	"time"

	"github.com/TBD54566975/ssi-sdk/oidc/issuance"

	"github.com/tbd54566975/oid4vci-issuer/internal/util"
)

// PIDIssuanceDateLayout is the DD-MM-YYYY layout of the issuance_date claim.
const PIDIssuanceDateLayout = "02-01-2006"

var (
	pidStringClaims = []string{
		"personal_administrative_number",
		"document_number",
		"given_name",
		"family_name",
		"nationality",
		"birth_date",
		"birth_city",
		"birth_country",
		"birth_place",
		"given_name_birth",
		"family_name_birth",
		"resident_address",
		"resident_street",
		"resident_house_number",
		"resident_postal_code",
		"resident_city",
		"resident_country",
		"expiry_date",
		"issuance_date",
		"issuing_authority",
		"issuing_jurisdiction",
		"issuing_country",
		"portrait",
	}
	pidNumericClaims = []string{"age_birth_year", "age_in_years", "age_over_13", "age_over_18", "sex"}
	pidRequired      = []string{"personal_administrative_number", "document_number", "given_name", "family_name", "nationality"}
)

type pidStrategy struct{}

func (pidStrategy) check(claims Claims) bool {
	return allPresent(pidSubject(claims), pidRequired)
}

func (pidStrategy) generate(req GenerateRequest) (map[string]any, error) {
	subject := pidSubject(req.Input)
	body := baseCredential(req, subject)
	body["issuanceDate"] = util.ISOTimestamp(pidIssuanceDate(subject, req.Now))
	return body, nil
}

func (pidStrategy) format(Configuration) issuance.Format {
	return issuance.JWTVCJSON
}

func (pidStrategy) principalClaim() string {
	return "personal_administrative_number"
}

// pidSubject keeps the known string claims and coerces the numeric ones, dropping values that are not numbers.
func pidSubject(input Claims) map[string]any {
	subject := allowListed(input, pidStringClaims)
	for _, claim := range pidNumericClaims {
		v, ok := input[claim]
		if !ok {
			continue
		}
		if n, isNumber := toNumber(toStringByJoin(v)); isNumber {
			subject[claim] = n
		}
	}
	return subject
}

// pidIssuanceDate falls back to now when issuance_date is absent or not DD-MM-YYYY.
func pidIssuanceDate(subject map[string]any, now time.Time) time.Time {
	raw, ok := subject["issuance_date"].(string)
	if !ok || raw == "" {
		return now
	}
	t, err := time.Parse(PIDIssuanceDateLayout, raw)
	if err != nil {
		return now
	}
	return t
}
