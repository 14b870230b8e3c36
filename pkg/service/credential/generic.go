package credential

import (
	"github.com/TBD54566975/ssi-sdk/oidc/issuance"
)

// genericStrategy copies the supplied claims verbatim into the subject.
type genericStrategy struct{}

func (genericStrategy) check(Claims) bool {
	return true
}

func (genericStrategy) generate(req GenerateRequest) (map[string]any, error) {
	subject := make(map[string]any, len(req.Input))
	for k, v := range req.Input {
		subject[k] = v
	}
	return baseCredential(req, subject), nil
}

func (genericStrategy) format(config Configuration) issuance.Format {
	if config.Format == "" {
		return issuance.JWTVCJSON
	}
	return config.Format
}

func (genericStrategy) principalClaim() string {
	return ""
}
