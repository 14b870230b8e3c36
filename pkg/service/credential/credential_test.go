package credential

import (
	"testing"
	"time"

	"github.com/TBD54566975/ssi-sdk/oidc/issuance"
	"github.com/google/go-cmp/cmp"
	"github.com/oliveagle/jsonpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIssuerDID = "did:key:z6MkhaXgBZDvotDkL5257faiztiGiC2QtKLGpbnnEGta2doK"

var testNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func testConfiguration(t string) Configuration {
	return Configuration{
		Format: issuance.JWTVCJSON,
		CredentialDefinition: &CredentialDefinition{
			Type: []string{VerifiableCredential, t},
		},
		Display: []Display{{Name: t + " name", Description: t + " description"}},
	}
}

func testRequest(kind Kind, input Claims) GenerateRequest {
	return GenerateRequest{
		ConfigurationID: kind.String(),
		Configuration:   testConfiguration(kind.String()),
		Issuer:          Issuer{DID: testIssuerDID, Name: "Test Issuer", Description: "issues things"},
		Input:           input,
		Now:             testNow,
	}
}

func academicClaims() Claims {
	return Claims{
		"sub":                 "student-1",
		"eduperson_unique_id": "u-1",
		"given_name":          "Ada",
		"family_name":         "Lovelace",
		"email":               "ada@example.edu",
	}
}

func TestKindFor(t *testing.T) {
	t.Run("known ids", func(tt *testing.T) {
		for _, k := range []Kind{Generic, AcademicBase, AcademicEnrollment, PID, OpenBadge} {
			got, err := KindFor(k.String())
			assert.NoError(tt, err)
			assert.Equal(tt, k, got)
		}
	})

	t.Run("unknown id", func(tt *testing.T) {
		_, err := KindFor("DriversLicense")
		assert.Error(tt, err)
		assert.True(tt, IsUnknownCredentialType(err))
		assert.Contains(tt, err.Error(), "DriversLicense")

		_, err = Kind("DriversLicense").Generate(testRequest(Kind("DriversLicense"), nil))
		assert.True(tt, IsUnknownCredentialType(err))
		assert.False(tt, Kind("DriversLicense").Check(Claims{}))
	})

	t.Run("principal claims", func(tt *testing.T) {
		assert.Equal(tt, "sub", AcademicBase.PrincipalClaim())
		assert.Equal(tt, "personal_administrative_number", PID.PrincipalClaim())
		assert.Empty(tt, Generic.PrincipalClaim())
	})
}

func TestClaimPresent(t *testing.T) {
	subject := map[string]any{
		"s":     "value",
		"empty": "",
		"null":  nil,
		"n":     float64(3),
	}
	assert.True(t, claimPresent(subject, "s", stringClaim))
	assert.True(t, claimPresent(subject, "n", anyClaim))
	assert.True(t, claimPresent(subject, "n", numberClaim))
	assert.False(t, claimPresent(subject, "n", stringClaim))
	assert.False(t, claimPresent(subject, "empty", anyClaim))
	assert.False(t, claimPresent(subject, "null", anyClaim))
	assert.False(t, claimPresent(subject, "missing", anyClaim))
}

func TestToStringByJoin(t *testing.T) {
	assert.Equal(t, "a, b", toStringByJoin([]string{"a", "b"}))
	assert.Equal(t, "a, 1", toStringByJoin([]any{"a", 1}))
	assert.Equal(t, "plain", toStringByJoin("plain"))
	assert.Equal(t, 5, toStringByJoin(5))
}

func TestConfigurationTypes(t *testing.T) {
	assert.Equal(t, []string{"PID"}, testConfiguration("PID").Types())

	sdJWT := Configuration{Format: SDJWTVC, VCT: "urn:eu:pid"}
	assert.Equal(t, []string{"urn:eu:pid"}, sdJWT.Types())

	assert.Empty(t, Configuration{Format: issuance.JWTVCJSON}.Types())
	assert.Empty(t, Configuration{Format: "mso_mdoc"}.Types())

	assert.True(t, IsSupportedFormat(issuance.LDPVC))
	assert.True(t, IsSupportedFormat(SDJWTVC))
	assert.False(t, IsSupportedFormat("mso_mdoc"))
}

func TestAcademicBaseCredential(t *testing.T) {
	t.Run("check", func(tt *testing.T) {
		assert.True(tt, AcademicBase.Check(academicClaims()))

		missing := academicClaims()
		delete(missing, "family_name")
		assert.False(tt, AcademicBase.Check(missing))

		empty := academicClaims()
		empty["email"] = ""
		assert.False(tt, AcademicBase.Check(empty))

		joined := academicClaims()
		joined["given_name"] = []any{"Ada", "Augusta"}
		assert.True(tt, AcademicBase.Check(joined))

		wrongType := academicClaims()
		wrongType["sub"] = float64(12)
		assert.False(tt, AcademicBase.Check(wrongType))
	})

	t.Run("generate keeps only allow-listed claims", func(tt *testing.T) {
		input := academicClaims()
		input["eduperson_affiliation"] = []any{"student", "member"}
		input["favourite_colour"] = "green"

		result, err := AcademicBase.Generate(testRequest(AcademicBase, input))
		require.NoError(tt, err)
		assert.Equal(tt, issuance.JWTVCJSON, result.Format)
		assert.Equal(tt, "sub", result.PrincipalClaim)
		assert.Equal(tt, []string{"AcademicBaseCredential"}, result.Types)

		want := map[string]any{
			"sub":                   "student-1",
			"eduperson_unique_id":   "u-1",
			"given_name":            "Ada",
			"family_name":           "Lovelace",
			"email":                 "ada@example.edu",
			"eduperson_affiliation": "student, member",
		}
		if diff := cmp.Diff(want, result.Subject()); diff != "" {
			tt.Errorf("credentialSubject mismatch (-want +got):\n%s", diff)
		}

		body := result.Credential
		assert.Equal(tt, []string{VCContextV1}, body["@context"])
		assert.Equal(tt, []string{VerifiableCredential, "AcademicBaseCredential"}, body["type"])
		assert.Equal(tt, testIssuerDID, body["iss"])
		assert.Equal(tt, "AcademicBaseCredential name", body["name"])
		assert.Equal(tt, "2024-03-15T10:30:00.000Z", body["issuanceDate"])

		issuerName, err := jsonpath.JsonPathLookup(body, "$.issuer.name")
		require.NoError(tt, err)
		assert.Equal(tt, "Test Issuer", issuerName)
	})

	t.Run("no display falls back to empty strings", func(tt *testing.T) {
		req := testRequest(AcademicBase, academicClaims())
		req.Configuration.Display = nil
		result, err := AcademicBase.Generate(req)
		require.NoError(tt, err)
		assert.Equal(tt, "", result.Credential["name"])
		assert.Equal(tt, "", result.Credential["description"])
	})

	t.Run("generate requires an issuer did", func(tt *testing.T) {
		req := testRequest(AcademicBase, academicClaims())
		req.Issuer.DID = ""
		_, err := AcademicBase.Generate(req)
		assert.Error(tt, err)
	})
}

func TestAcademicEnrollmentCredential(t *testing.T) {
	claims := Claims{
		"crohoCreboCode":      "59312",
		"name":                "Computer Science",
		"phase":               "bachelor",
		"modeOfStudy":         "fulltime",
		"startDate":           "2023-09-01",
		"endDate":             "2026-08-31",
		"institutionBRINCode": "21PB",
	}
	assert.True(t, AcademicEnrollment.Check(claims))

	result, err := AcademicEnrollment.Generate(testRequest(AcademicEnrollment, claims))
	require.NoError(t, err)
	if diff := cmp.Diff(map[string]any(claims), result.Subject()); diff != "" {
		t.Errorf("credentialSubject mismatch (-want +got):\n%s", diff)
	}

	delete(claims, "phase")
	assert.False(t, AcademicEnrollment.Check(claims))
}

func TestPIDCredential(t *testing.T) {
	input := Claims{
		"personal_administrative_number": "123456789",
		"document_number":                "NL-0001",
		"given_name":                     "Jan",
		"family_name":                    "Jansen",
		"nationality":                    "NL",
		"issuance_date":                  "01-02-2024",
		"age_over_18":                    "1",
		"age_in_years":                   float64(42),
		"sex":                            "unknown",
		"shoe_size":                      "44",
	}

	t.Run("check", func(tt *testing.T) {
		assert.True(tt, PID.Check(input))

		missing := Claims{}
		for k, v := range input {
			missing[k] = v
		}
		delete(missing, "family_name")
		assert.False(tt, PID.Check(missing))
	})

	t.Run("generate", func(tt *testing.T) {
		result, err := PID.Generate(testRequest(PID, input))
		require.NoError(tt, err)

		assert.Equal(tt, "2024-02-01T00:00:00.000Z", result.Credential["issuanceDate"])
		assert.Equal(tt, "personal_administrative_number", result.PrincipalClaim)

		want := map[string]any{
			"personal_administrative_number": "123456789",
			"document_number":                "NL-0001",
			"given_name":                     "Jan",
			"family_name":                    "Jansen",
			"nationality":                    "NL",
			"issuance_date":                  "01-02-2024",
			"age_over_18":                    float64(1),
			"age_in_years":                   float64(42),
		}
		if diff := cmp.Diff(want, result.Subject()); diff != "" {
			tt.Errorf("credentialSubject mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unparseable issuance date uses now", func(tt *testing.T) {
		req := testRequest(PID, Claims{"issuance_date": "2024/02/01"})
		result, err := PID.Generate(req)
		require.NoError(tt, err)
		assert.Equal(tt, "2024-03-15T10:30:00.000Z", result.Credential["issuanceDate"])
	})
}

func TestGenericCredential(t *testing.T) {
	input := Claims{"anything": "goes", "nested": map[string]any{"a": float64(1)}}
	assert.True(t, Generic.Check(input))
	assert.True(t, Generic.Check(nil))

	req := testRequest(Generic, input)
	req.Configuration = Configuration{Format: SDJWTVC, VCT: "urn:example:generic"}
	result, err := Generic.Generate(req)
	require.NoError(t, err)

	assert.Equal(t, SDJWTVC, result.Format)
	assert.Equal(t, []string{VerifiableCredential, "urn:example:generic"}, result.Credential["type"])
	if diff := cmp.Diff(map[string]any{"anything": "goes", "nested": map[string]any{"a": float64(1)}}, result.Subject()); diff != "" {
		t.Errorf("credentialSubject mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenBadgeCredential(t *testing.T) {
	achievement := map[string]any{
		"id":          "urn:uuid:badge-1",
		"name":        "Go Gopher",
		"description": "Wrote some Go",
	}
	input := Claims{
		"credential": map[string]any{
			"validFrom":  "2024-01-01T00:00:00Z",
			"validUntil": "2025-01-01T00:00:00Z",
			"issuer":     map[string]any{"name": "Badge Platform", "description": "badges"},
			"credentialSubject": map[string]any{
				"achievement": achievement,
			},
		},
	}
	assert.True(t, OpenBadge.Check(Claims{}))

	result, err := OpenBadge.Generate(testRequest(OpenBadge, input))
	require.NoError(t, err)
	body := result.Credential

	assert.Equal(t, issuance.JWTVCJSON, result.Format)
	assert.Equal(t, []string{VCContextV1, OpenBadgeContextV3}, body["@context"])
	assert.Equal(t, "2024-01-01T00:00:00Z", body["issuanceDate"])
	assert.Equal(t, "2025-01-01T00:00:00Z", body["expirationDate"])
	assert.Equal(t, "Go Gopher", body["name"])

	wantIssuer := map[string]any{"id": testIssuerDID, "name": "Badge Platform", "description": "badges"}
	if diff := cmp.Diff(wantIssuer, body["issuer"]); diff != "" {
		t.Errorf("issuer mismatch (-want +got):\n%s", diff)
	}
	wantSubject := map[string]any{
		"type":        []string{VerifiableCredential, "OpenBadgeCredential"},
		"achievement": achievement,
	}
	if diff := cmp.Diff(wantSubject, result.Subject()); diff != "" {
		t.Errorf("credentialSubject mismatch (-want +got):\n%s", diff)
	}

	t.Run("missing achievement", func(tt *testing.T) {
		result, err := OpenBadge.Generate(testRequest(OpenBadge, Claims{}))
		require.NoError(tt, err)
		assert.Equal(tt, map[string]any{}, result.Subject()["achievement"])
		assert.NotContains(tt, result.Credential, "expirationDate")
	})
}
