package credential

import (
	"github.com/TBD54566975/ssi-sdk/oidc/issuance"
)

var (
	academicBaseClaims = []string{
		"sub",
		"eduperson_unique_id",
		"given_name",
		"family_name",
		"name",
		"schac_home_organisation",
		"email",
		"eduperson_affiliation",
		"eduperson_scoped_affiliation",
		"eduperson_entitlement",
		"eduperson_assurance",
	}
	academicBaseRequired = []string{"sub", "eduperson_unique_id", "given_name", "family_name", "email"}

	academicEnrollmentClaims = []string{
		"crohoCreboCode",
		"name",
		"phase",
		"modeOfStudy",
		"startDate",
		"endDate",
		"institutionBRINCode",
	}
)

type academicBaseStrategy struct{}

func (academicBaseStrategy) check(claims Claims) bool {
	return allPresent(allowListed(claims, academicBaseClaims), academicBaseRequired)
}

func (academicBaseStrategy) generate(req GenerateRequest) (map[string]any, error) {
	return baseCredential(req, allowListed(req.Input, academicBaseClaims)), nil
}

func (academicBaseStrategy) format(Configuration) issuance.Format {
	return issuance.JWTVCJSON
}

func (academicBaseStrategy) principalClaim() string {
	return "sub"
}

// academicEnrollmentStrategy describes enrollment in a programme. Every claim it knows is required.
type academicEnrollmentStrategy struct{}

func (academicEnrollmentStrategy) check(claims Claims) bool {
	return allPresent(allowListed(claims, academicEnrollmentClaims), academicEnrollmentClaims)
}

func (academicEnrollmentStrategy) generate(req GenerateRequest) (map[string]any, error) {
	return baseCredential(req, allowListed(req.Input, academicEnrollmentClaims)), nil
}

func (academicEnrollmentStrategy) format(Configuration) issuance.Format {
	return issuance.JWTVCJSON
}

func (academicEnrollmentStrategy) principalClaim() string {
	return "sub"
}
