package oidc

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

const (
	InvalidGrant   = "invalid_grant"
	InvalidRequest = "invalid_request"
	InvalidProof   = "invalid_proof"
	StaleNonce     = "stale_nonce"

	// bearer token failures keep the bodies wallets already match on
	NotAuthorized      = "not authorized"
	NotAvailable       = "not available"
	NotFound           = "not found"
	InvalidBearerToken = "invalid request"
)

// Reasons tell apart the failures that share an OAuth 2.0 code. They are sent as error_reason.
const (
	ReasonUnsupportedGrantType = "unsupported_grant_type"
	ReasonMissingCode          = "missing_code"
	ReasonInvalidCode          = "invalid_code"
	ReasonCodeUsed             = "code_used"
	ReasonInvalidGrantState    = "invalid_grant_state"
	ReasonExpiredCode          = "expired_code"
	ReasonPinNotRequired       = "pin_not_required"
	ReasonPinRequired          = "pin_required"
	ReasonInvalidPin           = "invalid_pin"
	ReasonPinMismatch          = "pin_mismatch"
	ReasonAmbiguousKeyMaterial = "ambiguous_key_material"
	ReasonUnresolvableKID      = "unresolvable_kid"
)

// Error is a protocol error carrying the machine readable code, a description and the HTTP status it maps to.
// Reason is set on the named security failures.
type Error struct {
	Code        string `json:"error"`
	Reason      string `json:"error_reason,omitempty"`
	Description string `json:"error_description,omitempty"`
	Status      int    `json:"-"`

	cause error
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(code string, status int, format string, args ...any) *Error {
	return &Error{Code: code, Description: fmt.Sprintf(format, args...), Status: status}
}

func (e *Error) withReason(reason string) *Error {
	e.Reason = reason
	return e
}

// AsError returns the protocol error in err's chain, or wraps err as an internal invalid_request.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: InvalidRequest, Description: err.Error(), Status: http.StatusInternalServerError, cause: err}
}

// IsCode reports whether err is a protocol error with the given code or reason.
func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && (e.Code == code || (e.Reason != "" && e.Reason == code))
}

// token endpoint

func ErrUnsupportedGrantType() *Error {
	return newError(InvalidGrant, http.StatusBadRequest, "unsupported grant_type").withReason(ReasonUnsupportedGrantType)
}

func ErrMissingCode() *Error {
	return newError(InvalidRequest, http.StatusBadRequest, "pre-authorized_code is required").withReason(ReasonMissingCode)
}

func ErrInvalidPreAuthorizedCode() *Error {
	return newError(InvalidGrant, http.StatusBadRequest, "Invalid pre-authorized code").withReason(ReasonInvalidCode)
}

func ErrCodeAlreadyUsed() *Error {
	return newError(InvalidGrant, http.StatusBadRequest, "pre-authorized_code already used").withReason(ReasonCodeUsed)
}

func ErrInvalidGrantState() *Error {
	return newError(InvalidGrant, http.StatusBadRequest, "offer does not allow the pre-authorized_code grant").withReason(ReasonInvalidGrantState)
}

func ErrCodeExpired() *Error {
	return newError(InvalidGrant, http.StatusBadRequest, "pre-authorized_code is expired").withReason(ReasonExpiredCode)
}

func ErrPinNotRequired() *Error {
	return newError(InvalidRequest, http.StatusBadRequest, "User pin is not required").withReason(ReasonPinNotRequired)
}

func ErrPinRequired() *Error {
	return newError(InvalidRequest, http.StatusBadRequest, "User pin is required").withReason(ReasonPinRequired)
}

func ErrMalformedPin(length string) *Error {
	return newError(InvalidGrant, http.StatusBadRequest, "Invalid user pin %s", length).withReason(ReasonInvalidPin)
}

func ErrPinMismatch() *Error {
	return newError(InvalidGrant, http.StatusBadRequest, "PIN is invalid").withReason(ReasonPinMismatch)
}

// credential endpoint, bearer stage

func ErrNotAuthorized() *Error {
	return newError(NotAuthorized, http.StatusForbidden, "")
}

func ErrAlreadyUsed() *Error {
	return newError(NotAvailable, http.StatusGone, "")
}

func ErrCredentialNotFound() *Error {
	return newError(NotFound, http.StatusNotFound, "")
}

func ErrInvalidBearer(cause error) *Error {
	e := newError(InvalidBearerToken, http.StatusUnauthorized, "")
	e.cause = cause
	return e
}

// credential endpoint, issuance stage

func ErrUnsupportedFormat(format string) *Error {
	return newError(InvalidRequest, http.StatusBadRequest, "Format %s not supported yet", format)
}

func ErrProofRequired() *Error {
	return newError(InvalidRequest, http.StatusBadRequest,
		"Proof of possession is required. No proof value present in credential request")
}

func ErrInvalidProof(format string, args ...any) *Error {
	return newError(InvalidProof, http.StatusBadRequest, format, args...)
}

func ErrAmbiguousKeyMaterial() *Error {
	return ErrInvalidProof("exactly one of kid, jwk, or x5c must be present").withReason(ReasonAmbiguousKeyMaterial)
}

func ErrUnresolvableKID() *Error {
	return ErrInvalidProof("could not derive did from kid").withReason(ReasonUnresolvableKID)
}

func ErrStaleNonce() *Error {
	return newError(StaleNonce, http.StatusBadRequest, "nonce is not the one most recently issued for this session")
}

func ErrStatusServerUnavailable(cause error) *Error {
	e := newError(InvalidRequest, http.StatusInternalServerError, "%s", cause.Error())
	e.cause = cause
	return e
}

// offer and admin endpoints

func ErrNoGrants() *Error {
	return newError(InvalidGrant, http.StatusBadRequest, "No grant type supplied")
}

func ErrNoCredentials() *Error {
	return newError(InvalidRequest, http.StatusBadRequest, "credentials missing in credential offer payload")
}

func ErrUnsupportedCredential(id string) *Error {
	return newError(InvalidRequest, http.StatusBadRequest, "credential %s is not supported by this issuer", id)
}

func ErrCredentialDataInvalid(id string) *Error {
	return newError(InvalidRequest, http.StatusBadRequest, "credential data does not satisfy the requirements of %s", id)
}

func ErrOfferNotFound(id string) *Error {
	return newError(InvalidRequest, http.StatusNotFound, "Credential offer %s not found", id)
}

func ErrNoSuchCredential() *Error {
	return newError(InvalidRequest, http.StatusNotFound, "No such credential")
}

func ErrNoStatusList() *Error {
	return newError(InvalidRequest, http.StatusBadRequest, "No statuslist available")
}
