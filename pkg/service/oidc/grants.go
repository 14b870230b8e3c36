package oidc

import (
	"regexp"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tbd54566975/oid4vci-issuer/internal/util"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/oidc/model"
)

const DefaultPINLength = 4

var validPIN = regexp.MustCompile(`^\d{1,8}$`)

// InvalidPinError is returned when a generated or presented legacy pin is not 1 to 8 digits.
type InvalidPinError struct {
	PIN string
}

func (e InvalidPinError) Error() string {
	return "pin must be 1 to 8 digits"
}

// NormalizedGrants are the grants of an offer with every generated value filled in.
type NormalizedGrants struct {
	Grants            *model.Grants
	IssuerState       string
	PreAuthorizedCode string
	UserPIN           string
}

// NormalizeGrants fills in the issuer state, the pre-authorized code and the transaction code the requested grants
// leave open. The input is not modified.
func NormalizeGrants(grants *model.Grants, pinLength int) (*NormalizedGrants, error) {
	if grants.IsEmpty() {
		return nil, ErrNoGrants()
	}
	if pinLength <= 0 {
		pinLength = DefaultPINLength
	}

	result := NormalizedGrants{Grants: new(model.Grants)}
	if grants.AuthorizationCode != nil {
		authCode := *grants.AuthorizationCode
		if authCode.IssuerState == "" {
			authCode.IssuerState = uuid.NewString()
		}
		result.IssuerState = authCode.IssuerState
		result.Grants.AuthorizationCode = &authCode
	}

	if grants.PreAuthorizedCode != nil {
		preAuth := *grants.PreAuthorizedCode
		if preAuth.TxCode != nil {
			pin, err := util.RandomDigits(pinLength)
			if err != nil {
				return nil, errors.Wrap(err, "generating pin")
			}
			if !validPIN.MatchString(pin) {
				return nil, InvalidPinError{PIN: pin}
			}
			result.UserPIN = pin
			preAuth.TxCode = &model.TxCode{
				InputMode:   model.TxCodeNumeric,
				Length:      pinLength,
				Description: "PIN",
			}
		}
		if preAuth.PreAuthorizedCode == "" {
			preAuth.PreAuthorizedCode = util.AlphanumericUUID()
		}
		result.PreAuthorizedCode = preAuth.PreAuthorizedCode
		result.Grants.PreAuthorizedCode = &preAuth
	}
	return &result, nil
}
