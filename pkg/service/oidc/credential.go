package oidc

import (
	"context"
	"math"
	"strconv"
	"time"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/oid4vci-issuer/internal/keyaccess"
	"github.com/tbd54566975/oid4vci-issuer/internal/util"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/audit"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/credential"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/oidc/model"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/record"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/statuslist"
)

const (
	ProofJWTType = "openid4vci-proof+jwt"

	credentialJWTType = "JWT"

	// holder supplied expiration overrides, in seconds
	expirationClaim = "_exp"
	ttlClaim        = "_ttl"

	metaDataExpiration        = "expiration"
	metaDataEnableStatusLists = "enableStatusLists"
)

// IssueCredential authorizes the bearer token, verifies the proof of possession and issues the credential the
// session was offered. Any failure once the token is accepted leaves the session ERRORED.
func (s *Service) IssueCredential(ctx context.Context, bearer string, request model.CredentialRequest) (*model.CredentialResponse, error) {
	session, issuerSession, unlock, err := s.authorize(ctx, bearer)
	defer unlock()
	if err != nil {
		logrus.WithError(err).Warn("credential request not authorized")
		s.audit.Log(ctx, audit.Event{Endpoint: audit.CredentialRequest, Data: err.Error()})
		return nil, err
	}
	s.audit.Log(ctx, audit.Event{State: session.PreAuthorizedCode, Endpoint: audit.CredentialRequest, Data: request})

	response, err := s.issue(ctx, session, issuerSession, request)
	if err != nil {
		logrus.WithError(err).Errorf("issuing credential for session<%s>", session.ID)
		if advanceErr := s.advance(ctx, session, Errored, err); advanceErr != nil {
			logrus.WithError(advanceErr).Errorf("marking session<%s> errored", session.ID)
		}
		s.audit.Log(ctx, audit.Event{State: session.PreAuthorizedCode, Endpoint: audit.Error, Data: err.Error()})
		return nil, err
	}
	s.audit.Log(ctx, audit.Event{State: session.PreAuthorizedCode, Endpoint: audit.CredentialResponse, Data: response})
	return response, nil
}

// authorize resolves the session an access token was minted for and locks it. The returned func unlocks it and is
// never nil.
func (s *Service) authorize(ctx context.Context, bearer string) (*Session, *IssuerSession, func(), error) {
	noop := func() {}
	if bearer == "" {
		return nil, nil, noop, ErrInvalidBearer(errors.New("no bearer token"))
	}
	_, unverified, err := util.ParseJWT(bearer)
	if err != nil {
		return nil, nil, noop, ErrInvalidBearer(err)
	}
	if unverified.Issuer() != s.signer.ID {
		return nil, nil, noop, ErrNotAuthorized()
	}
	token, err := s.signer.VerifyAt(keyaccess.JWT(bearer), s.clock.Now())
	if err != nil {
		return nil, nil, noop, ErrInvalidBearer(err)
	}
	rawCode, _ := token.Get(AccessTokenCodeClaim)
	code, _ := rawCode.(string)
	if code == "" {
		return nil, nil, noop, ErrAlreadyUsed()
	}

	session, unlock, err := s.lockedSession(ctx, code)
	if err != nil {
		return nil, nil, unlock, ErrInvalidBearer(err)
	}
	if session == nil || session.Status != AccessTokenCreated {
		return nil, nil, unlock, ErrAlreadyUsed()
	}
	issuerSession, err := s.issuerSessions.Get(ctx, session.ID)
	if err != nil {
		return nil, nil, unlock, ErrInvalidBearer(err)
	}
	if issuerSession == nil {
		return nil, nil, unlock, ErrAlreadyUsed()
	}
	if !s.metadata.IsSupported(session.PrincipalConfigurationID()) {
		return nil, nil, unlock, ErrCredentialNotFound()
	}
	return session, issuerSession, unlock, nil
}

func (s *Service) issue(ctx context.Context, session *Session, issuerSession *IssuerSession, request model.CredentialRequest) (*model.CredentialResponse, error) {
	if !credential.IsSupportedFormat(request.Format) {
		return nil, ErrUnsupportedFormat(string(request.Format))
	}
	if request.Proof == nil || request.Proof.JWTProof == nil || request.Proof.JWT == "" {
		return nil, ErrProofRequired()
	}
	if request.Proof.ProofType != "" && request.Proof.ProofType != model.ProofTypeJWT {
		return nil, ErrInvalidProof("proof_type %s is not supported", request.Proof.ProofType)
	}
	recordPhase(issuerSession, PhaseCredentialRequest, request)

	proof, nonce, err := s.verifyProof(ctx, session, request.Proof.JWT)
	if err != nil {
		return nil, err
	}
	if claims, err := proof.Claims.AsMap(ctx); err == nil {
		recordPhase(issuerSession, PhaseCredentialRequestProof, claims)
	}

	issuerSession.Holder = proof.DID
	if err = s.issuerSessions.Set(ctx, issuerSession.ID, *issuerSession); err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "storing issuer session")
	}
	if err = s.advance(ctx, session, CredentialRequestReceived, nil); err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "updating session<%s>", session.ID)
	}

	if err = s.checkProofClaims(proof, nonce); err != nil {
		return nil, err
	}

	principal := session.PrincipalConfigurationID()
	kind, err := credential.KindFor(principal)
	if err != nil {
		return nil, ErrCredentialNotFound()
	}
	configuration, _ := s.metadata.Configuration(principal)
	now := s.clock.Now()
	result, err := kind.Generate(credential.GenerateRequest{
		ConfigurationID: principal,
		Configuration:   configuration,
		Issuer: credential.Issuer{
			DID:         s.signer.ID,
			Name:        s.metadata.IssuerName(),
			Description: s.metadata.Display().Description,
		},
		Input: session.CredentialDataSupplierInput,
		Now:   now,
	})
	if err != nil {
		return nil, err
	}
	body := result.Credential

	if err = bindHolder(result, proof); err != nil {
		return nil, err
	}
	if seconds, ok := expirationSeconds(session.CredentialDataSupplierInput, issuerSession.MetaData); ok {
		body["expirationDate"] = util.ISOTimestamp(now.Add(time.Duration(seconds * float64(time.Second))))
	}

	var entries []statuslist.Entry
	if statusListsEnabled(issuerSession.MetaData) {
		if entries, err = s.allocateStatusEntries(ctx, result.Types, stringField(body, "expirationDate")); err != nil {
			return nil, err
		}
	}
	switch len(entries) {
	case 0:
	case 1:
		body["credentialStatus"] = entries[0]
	default:
		body["credentialStatus"] = entries
	}

	issuerSession.Credential = body
	if len(result.Types) > 0 {
		issuerSession.CredentialID = result.Types[0]
	}
	if subject := result.Subject(); subject != nil && result.PrincipalClaim != "" {
		issuerSession.PrincipalCredentialID, _ = subject[result.PrincipalClaim].(string)
	}

	issuanceDate := parseDate(firstString(body, "issuanceDate", "validFrom"))
	if issuanceDate == nil {
		issuanceDate = &now
	}
	expirationDate := parseDate(firstString(body, "expirationDate", "validUntil"))

	payload := map[string]any{
		"iss": s.signer.ID,
		"nbf": issuanceDate.Unix(),
		"vc":  body,
	}
	if proof.DID != "" {
		payload["sub"] = proof.DID
	}
	if expirationDate != nil {
		payload["exp"] = expirationDate.Unix()
	}
	if id := stringField(body, "id"); id != "" {
		payload["jti"] = id
	}
	typ := credentialJWTType
	if result.Format == credential.SDJWTVC {
		typ = string(credential.SDJWTVC)
	}
	signed, err := s.signer.SignWithType(payload, typ)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "signing credential")
	}

	newNonce := uuid.NewString()
	if err = s.rotateNonce(ctx, session, newNonce); err != nil {
		return nil, err
	}

	issued := record.IssuedCredential{
		ID:                    uuid.NewString(),
		Issuer:                s.config.Name,
		State:                 CredentialIssued.String(),
		Holder:                proof.DID,
		CredentialType:        issuerSession.CredentialID,
		PrincipalCredentialID: issuerSession.PrincipalCredentialID,
		Claims:                result.Subject(),
		StatusLists:           entries,
		Metadata:              issuerSession.MetaData,
		IssuanceDate:          issuanceDate.UTC(),
		ExpirationDate:        expirationDate,
	}
	if err = s.records.Save(ctx, issued); err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "storing credential record")
	}
	issuerSession.UUID = issued.ID

	response := model.CredentialResponse{
		Credential:      signed.String(),
		CNonce:          newNonce,
		CNonceExpiresIn: int(s.cNonceExpiresIn.Seconds()),
	}
	recordPhase(issuerSession, PhaseCredentialResponse, response)
	recordPhase(issuerSession, PhaseCredentialResponseJWT, payload)
	if err = s.issuerSessions.Set(ctx, issuerSession.ID, *issuerSession); err != nil {
		logrus.WithError(err).Warnf("storing issuer session<%s>", issuerSession.ID)
	}

	if err = s.advance(ctx, session, CredentialIssued, nil); err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "updating session<%s>", session.ID)
	}
	logrus.WithField("issuer", s.config.Name).Infof("issued %s credential<%s>", principal, issued.ID)
	return &response, nil
}

// verifyProof checks the proof's header and that its nonce is the one most recently minted for the session.
func (s *Service) verifyProof(ctx context.Context, session *Session, proofJWT string) (*keyaccess.ProofResult, *NonceState, error) {
	proof, err := s.proofs.Verify(ctx, proofJWT)
	if err != nil {
		return nil, nil, ErrInvalidProof("%s", err.Error())
	}
	if proof.Type != ProofJWTType {
		return nil, nil, ErrInvalidProof("JWT type must be %s", ProofJWTType)
	}
	if proof.Algorithm == "" {
		return nil, nil, ErrInvalidProof("alg is required in the Proof of Possession header")
	}
	if proof.KeyMaterialCount() != 1 {
		return nil, nil, ErrAmbiguousKeyMaterial()
	}
	if proof.KID != "" && proof.DID == "" {
		return nil, nil, ErrUnresolvableKID()
	}

	cNonce := proof.Nonce()
	if cNonce == "" {
		return nil, nil, ErrInvalidProof("No nonce was found in the Proof of Possession")
	}
	nonce, err := s.nonces.Get(ctx, cNonce)
	if err != nil {
		return nil, nil, err
	}
	if nonce == nil || cNonce != session.CNonce || !containsString(session.Keys(), nonce.sessionKey()) {
		return nil, nil, ErrStaleNonce()
	}
	return proof, nonce, nil
}

// checkProofClaims checks the audience and that the proof was issued within the token lifetime of its nonce.
func (s *Service) checkProofClaims(proof *keyaccess.ProofResult, nonce *NonceState) error {
	if !containsString(proof.Claims.Audience(), s.metadata.CredentialIssuer()) {
		return ErrInvalidProof("aud must be %s", s.metadata.CredentialIssuer())
	}
	iat := proof.Claims.IssuedAt()
	if iat.IsZero() {
		return ErrInvalidProof("iat is required in the Proof of Possession")
	}
	nonceCreated := int64(math.Round(float64(nonce.CreatedAt) / 1000))
	if iat.Unix() > nonceCreated+int64(s.tokenExpiresIn.Seconds()) {
		return ErrInvalidProof("iat is outside the lifetime of the access token")
	}
	return nil
}

// bindHolder binds the credential to the proof's key: sd-jwt credentials through cnf, the rest through the subject id.
func bindHolder(result *credential.Result, proof *keyaccess.ProofResult) error {
	body := result.Credential
	if result.Format == credential.SDJWTVC && (proof.KID != "" || proof.JWK != nil) {
		if _, ok := body["cnf"]; ok {
			return nil
		}
		if proof.KID != "" {
			body["cnf"] = map[string]any{"kid": proof.KID}
			return nil
		}
		keyBytes, err := json.Marshal(proof.JWK)
		if err != nil {
			return errors.Wrap(err, "marshalling proof jwk")
		}
		var key map[string]any
		if err = json.Unmarshal(keyBytes, &key); err != nil {
			return errors.Wrap(err, "unmarshalling proof jwk")
		}
		body["cnf"] = map[string]any{"jwk": key}
		return nil
	}
	if proof.DID == "" {
		return nil
	}
	switch subject := body["credentialSubject"].(type) {
	case map[string]any:
		setIDIfAbsent(subject, proof.DID)
	case []map[string]any:
		for _, s := range subject {
			setIDIfAbsent(s, proof.DID)
		}
	case []any:
		for _, s := range subject {
			if m, ok := s.(map[string]any); ok {
				setIDIfAbsent(m, proof.DID)
			}
		}
	}
	return nil
}

func setIDIfAbsent(subject map[string]any, id string) {
	if existing, ok := subject["id"]; !ok || existing == nil || existing == "" {
		subject["id"] = id
	}
}

// expirationSeconds picks the credential lifetime: the session metadata first, then the holder's _exp and _ttl.
func expirationSeconds(input credential.Claims, metaData map[string]any) (float64, bool) {
	var seconds float64
	found := false
	if v, ok := asSeconds(metaData[metaDataExpiration]); ok {
		seconds, found = v, true
	}
	if v, ok := asSeconds(input[expirationClaim]); ok {
		seconds, found = v, true
	}
	if v, ok := asSeconds(input[ttlClaim]); ok {
		seconds, found = v, true
	}
	return seconds, found
}

func asSeconds(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	return f, f > 0
}

// statusListsEnabled is true unless the session metadata sets enableStatusLists to anything but true.
func statusListsEnabled(metaData map[string]any) bool {
	v, ok := metaData[metaDataEnableStatusLists]
	return !ok || v == nil || v == true
}

func (s *Service) allocateStatusEntries(ctx context.Context, types []string, expirationDate string) ([]statuslist.Entry, error) {
	var entries []statuslist.Entry
	for _, t := range types {
		list, ok := s.config.StatusLists[t]
		if !ok {
			continue
		}
		allocation, err := s.statusLists.Allocate(ctx, list, expirationDate)
		if err != nil {
			return nil, ErrStatusServerUnavailable(err)
		}
		entries = append(entries, statuslist.EntryFor(*allocation))
	}
	return entries, nil
}

func recordPhase(issuerSession *IssuerSession, phase string, data any) {
	if issuerSession.RequestResponseData == nil {
		issuerSession.RequestResponseData = make(map[string]any)
	}
	issuerSession.RequestResponseData[phase] = data
}

func parseDate(value string) *time.Time {
	t, err := record.ParseIssuanceDate(value)
	if err != nil || t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func stringField(body map[string]any, key string) string {
	s, _ := body[key].(string)
	return s
}

func firstString(body map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := stringField(body, key); s != "" {
			return s
		}
	}
	return ""
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
