package oidc

import (
	"context"
	"strconv"
	"unicode"
	"unicode/utf8"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/oid4vci-issuer/internal/util"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/audit"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/oidc/model"
)

const (
	bearerTokenType  = "bearer"
	openIDCredential = "openid_credential"

	// AccessTokenCodeClaim carries the pre-authorized code of the session an access token was minted for.
	AccessTokenCodeClaim = "preAuthorizedCode"
)

// RequestToken exchanges a pre-authorized code, and the transaction code if the offer requires one, for an access
// token and a fresh c_nonce.
func (s *Service) RequestToken(ctx context.Context, request model.TokenRequest) (*model.TokenResponse, error) {
	response, err := s.requestToken(ctx, request)
	if err != nil {
		logrus.WithError(err).
			WithField("pre-authorized_code", util.SanitizeLog(request.PreAuthorizedCode)).
			Warn("access token request failed")
		s.audit.Log(ctx, audit.Event{State: request.PreAuthorizedCode, Endpoint: audit.Token, Data: err.Error()})
		return nil, err
	}
	s.audit.Log(ctx, audit.Event{State: request.PreAuthorizedCode, Endpoint: audit.Token, Data: response.AuthorizationDetails})
	return response, nil
}

func (s *Service) requestToken(ctx context.Context, request model.TokenRequest) (*model.TokenResponse, error) {
	if request.GrantType != model.PreAuthorizedCodeGrantType {
		return nil, ErrUnsupportedGrantType()
	}
	code := request.PreAuthorizedCode
	if code == "" {
		return nil, ErrMissingCode()
	}

	session, unlock, err := s.lockedSession(ctx, code)
	defer unlock()
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrInvalidPreAuthorizedCode()
	}
	if !session.Status.tokenRequestable() {
		return nil, ErrCodeAlreadyUsed()
	}
	if err = s.advance(ctx, session, AccessTokenRequested, nil); err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "updating session<%s>", session.ID)
	}

	if err = s.validateTokenRequest(session, request); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	cNonce := uuid.NewString()
	if err = s.rotateNonce(ctx, session, cNonce); err != nil {
		return nil, err
	}

	accessToken, err := s.signer.Sign(map[string]any{
		"iat":                now.Unix(),
		"exp":                now.Add(s.tokenExpiresIn).Unix(),
		"iss":                s.signer.ID,
		AccessTokenCodeClaim: code,
	})
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "signing access token")
	}
	if err = s.advance(ctx, session, AccessTokenCreated, nil); err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "updating session<%s>", session.ID)
	}

	return &model.TokenResponse{
		AccessToken:          accessToken.String(),
		TokenType:            bearerTokenType,
		ExpiresIn:            int(s.tokenExpiresIn.Seconds()),
		CNonce:               cNonce,
		CNonceExpiresIn:      int(s.cNonceExpiresIn.Seconds()),
		AuthorizationPending: false,
		Interval:             tokenPollInterval,
		AuthorizationDetails: []model.AuthorizationDetail{{
			Type:                      openIDCredential,
			CredentialConfigurationID: session.PrincipalConfigurationID(),
		}},
	}, nil
}

// validateTokenRequest checks the request against the offer in the order wallets expect the errors.
func (s *Service) validateTokenRequest(session *Session, request model.TokenRequest) error {
	grants := session.CredentialOffer.CredentialOffer.Grants
	if grants == nil || grants.PreAuthorizedCode == nil {
		return ErrInvalidGrantState()
	}
	offered := grants.PreAuthorizedCode.TxCode
	pinPresented := request.TxCode != "" || request.UserPIN != ""
	if offered == nil && pinPresented {
		return ErrPinNotRequired()
	}
	if offered != nil && !pinPresented {
		return ErrPinRequired()
	}
	if session.CreatedAt+s.preAuthorizedCodeExpiration.Milliseconds() < s.clock.Now().UnixMilli() {
		return ErrCodeExpired()
	}
	if request.PreAuthorizedCode != grants.PreAuthorizedCode.PreAuthorizedCode {
		return ErrInvalidPreAuthorizedCode()
	}
	if offered == nil {
		return nil
	}

	pin := request.TxCode
	if pin != "" {
		if !matchesTxCode(pin, *offered) {
			return ErrMalformedPin(strconv.Itoa(offered.Length))
		}
	} else {
		pin = request.UserPIN
		if !validPIN.MatchString(pin) {
			return ErrMalformedPin("1-8")
		}
	}
	if pin != session.TxCode {
		return ErrPinMismatch()
	}
	return nil
}

// matchesTxCode reports whether pin is exactly as long as the offered code and made of digits for numeric codes, of
// non digits for text codes.
func matchesTxCode(pin string, txCode model.TxCode) bool {
	if txCode.Length > 0 && utf8.RuneCountInString(pin) != txCode.Length {
		return false
	}
	numeric := txCode.InputMode != model.TxCodeText
	for _, r := range pin {
		if unicode.IsDigit(r) != numeric {
			return false
		}
	}
	return true
}

// rotateNonce replaces the session's nonce with cNonce. The caller saves the session.
func (s *Service) rotateNonce(ctx context.Context, session *Session, cNonce string) error {
	if session.CNonce != "" {
		if err := s.nonces.Delete(ctx, session.CNonce); err != nil {
			logrus.WithError(err).Warnf("deleting nonce of session<%s>", session.ID)
		}
	}
	state := NonceState{
		CNonce:            cNonce,
		CreatedAt:         s.clock.Now().UnixMilli(),
		PreAuthorizedCode: session.PreAuthorizedCode,
		IssuerState:       session.IssuerState,
	}
	if err := s.nonces.Set(ctx, cNonce, state); err != nil {
		return sdkutil.LoggingErrorMsg(err, "storing nonce")
	}
	session.CNonce = cNonce
	return nil
}
