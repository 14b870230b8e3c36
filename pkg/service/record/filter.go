package record

import (
	"github.com/pkg/errors"
	"go.einride.tech/aip/filtering"

	"github.com/tbd54566975/oid4vci-issuer/pkg/storage"
)

// FilterCharacterLimit bounds the filter length since parsing filters can be expensive.
const FilterCharacterLimit = 1024

type filterExpression string

func (f filterExpression) GetFilter() string {
	return string(f)
}

// ParseFilter parses an AIP-160 expression over the record identifiers, e.g. `state = "CREDENTIAL_ISSUED"`.
func ParseFilter(expr string) (filtering.Filter, error) {
	if expr == "" {
		return filtering.Filter{}, nil
	}
	if len(expr) > FilterCharacterLimit {
		return filtering.Filter{}, errors.Errorf("filter longer than %d character size limit", FilterCharacterLimit)
	}

	declarations, err := filtering.NewDeclarations(
		filtering.DeclareFunction(filtering.FunctionEquals,
			filtering.NewFunctionOverload(
				filtering.FunctionOverloadEqualsString, filtering.TypeBool, filtering.TypeString, filtering.TypeString)),
		filtering.DeclareIdent(StateIdentifier, filtering.TypeString),
		filtering.DeclareIdent(HolderIdentifier, filtering.TypeString),
		filtering.DeclareIdent(IssuerIdentifier, filtering.TypeString),
		filtering.DeclareIdent(CredentialTypeIdentifier, filtering.TypeString),
		filtering.DeclareIdent(PrincipalCredentialIDIdentifier, filtering.TypeString),
	)
	if err != nil {
		return filtering.Filter{}, errors.Wrap(err, "creating new filter declarations")
	}
	filter, err := filtering.ParseFilter(filterExpression(expr), declarations)
	if err != nil {
		return filtering.Filter{}, errors.Wrap(err, "parsing filter")
	}
	return filter, nil
}

func evaluatorFor(expr string) (func(IssuedCredential) bool, error) {
	filter, err := ParseFilter(expr)
	if err != nil {
		return nil, err
	}
	include, err := storage.Evaluator(filter)
	if err != nil {
		return nil, errors.Wrap(err, "building filter evaluator")
	}
	return func(r IssuedCredential) bool {
		return include(r)
	}, nil
}
