package credential

import (
	"fmt"

	"github.com/TBD54566975/ssi-sdk/oidc/issuance"
	"github.com/pkg/errors"
)

// Kind is the closed set of credential strategies the issuer knows how to shape.
type Kind string

const (
	Generic            Kind = "GenericCredential"
	AcademicBase       Kind = "AcademicBaseCredential"
	AcademicEnrollment Kind = "AcademicEnrollmentCredential"
	PID                Kind = "PID"
	OpenBadge          Kind = "OpenBadgeCredential"
)

func (k Kind) String() string {
	return string(k)
}

// UnknownCredentialTypeError is returned for a configuration id with no strategy.
type UnknownCredentialTypeError struct {
	ConfigurationID string
}

func (e UnknownCredentialTypeError) Error() string {
	return fmt.Sprintf("unknown credential type<%s>", e.ConfigurationID)
}

type strategy interface {
	// check validates the claims at offer time
	check(claims Claims) bool
	generate(req GenerateRequest) (map[string]any, error)
	format(config Configuration) issuance.Format
	principalClaim() string
}

var strategies = map[Kind]strategy{
	Generic:            genericStrategy{},
	AcademicBase:       academicBaseStrategy{},
	AcademicEnrollment: academicEnrollmentStrategy{},
	PID:                pidStrategy{},
	OpenBadge:          openBadgeStrategy{},
}

// KindFor resolves the strategy for a credential configuration id.
func KindFor(configurationID string) (Kind, error) {
	k := Kind(configurationID)
	if _, ok := strategies[k]; !ok {
		return "", UnknownCredentialTypeError{ConfigurationID: configurationID}
	}
	return k, nil
}

// IsUnknownCredentialType reports whether err, or its cause, is an UnknownCredentialTypeError.
func IsUnknownCredentialType(err error) bool {
	var target UnknownCredentialTypeError
	return errors.As(err, &target)
}

// Check reports whether claims carry everything the kind requires to be issued.
func (k Kind) Check(claims Claims) bool {
	s, ok := strategies[k]
	if !ok {
		return false
	}
	return s.check(claims)
}

// PrincipalClaim names the subject claim identifying the holder, empty for kinds without one.
func (k Kind) PrincipalClaim() string {
	if s, ok := strategies[k]; ok {
		return s.principalClaim()
	}
	return ""
}

// Generate shapes the unsigned credential body for the request.
func (k Kind) Generate(req GenerateRequest) (*Result, error) {
	s, ok := strategies[k]
	if !ok {
		return nil, UnknownCredentialTypeError{ConfigurationID: req.ConfigurationID}
	}
	if req.Issuer.DID == "" {
		return nil, errors.New("cannot generate a credential without an issuer did")
	}
	body, err := s.generate(req)
	if err != nil {
		return nil, errors.Wrapf(err, "generating %s credential", k)
	}
	return &Result{
		Format:         s.format(req.Configuration),
		Credential:     body,
		PrincipalClaim: s.principalClaim(),
		Types:          req.Configuration.Types(),
	}, nil
}
