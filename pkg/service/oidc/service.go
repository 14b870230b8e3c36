package oidc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/tbd54566975/oid4vci-issuer/config"
	"github.com/tbd54566975/oid4vci-issuer/internal/keyaccess"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/audit"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/framework"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/record"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/statuslist"
	"github.com/tbd54566975/oid4vci-issuer/pkg/storage"
)

const (
	DefaultPreAuthorizedCodeExpiration = 300 * time.Second
	DefaultTokenExpiresIn              = 300 * time.Second
	DefaultCNonceExpiresIn             = 300 * time.Second
	DefaultSessionTTL                  = 30 * time.Minute
	DefaultNonceTTL                    = 5 * time.Minute

	// polling interval advertised in token responses, in milliseconds
	tokenPollInterval = 300000
)

// Service is the issuance engine of one issuer instance: offers, the token exchange, credential issuance and
// revocation.
type Service struct {
	config   config.IssuerConfig
	metadata *Metadata
	signer   *keyaccess.JWKKeyAccess

	sessions       *SessionStore
	nonces         *Store[NonceState]
	issuerSessions *Store[IssuerSession]

	records     *record.Service
	statusLists *statuslist.Client
	proofs      *keyaccess.ProofVerifier
	audit       audit.Logger
	clock       clock.Clock

	preAuthorizedCodeExpiration time.Duration
	tokenExpiresIn              time.Duration
	cNonceExpiresIn             time.Duration

	// one mutex per session id serializes the token and credential exchanges of a session
	locks sync.Map
}

var _ framework.Service = (*Service)(nil)

func (s *Service) Type() framework.Type {
	return framework.Issuer
}

func (s *Service) Status() framework.Status {
	ae := sdkutil.NewAppendError()
	if s.signer == nil {
		ae.AppendString("no signer configured")
	}
	if s.metadata == nil {
		ae.AppendString("no metadata loaded")
	}
	if s.records == nil {
		ae.AppendString("no record service configured")
	}
	if s.sessions == nil || s.nonces == nil || s.issuerSessions == nil {
		ae.AppendString("no session storage configured")
	}
	if !ae.IsEmpty() {
		return framework.Status{
			Status:  framework.StatusNotReady,
			Message: fmt.Sprintf("issuer<%s> is not ready: %s", s.config.Name, ae.Error().Error()),
		}
	}
	return framework.Status{Status: framework.StatusReady}
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(service *Service) {
		service.clock = c
	}
}

func WithCNonceExpiresIn(d time.Duration) Option {
	return func(service *Service) {
		service.cNonceExpiresIn = d
	}
}

func WithAuditLogger(l audit.Logger) Option {
	return func(service *Service) {
		service.audit = l
	}
}

// WithHTTPClient routes status-list calls through client.
func WithHTTPClient(client *http.Client) Option {
	return func(service *Service) {
		service.statusLists = statuslist.NewClient(client)
	}
}

type noopAudit struct{}

func (noopAudit) Log(context.Context, audit.Event) {}

// NewIssuerService builds the engine of the configured issuer. Durations set in the configuration override the
// defaults, options override both.
func NewIssuerService(cfg config.IssuerConfig, db storage.ServiceStorage, signer *keyaccess.JWKKeyAccess,
	records *record.Service, metadata *Metadata, opts ...Option) (*Service, error) {
	if db == nil {
		return nil, errors.New("db reference is nil")
	}
	service := Service{
		config:                      cfg,
		metadata:                    metadata,
		signer:                      signer,
		records:                     records,
		clock:                       clock.New(),
		preAuthorizedCodeExpiration: durationOr(cfg.PreAuthorizedCodeExpiration, DefaultPreAuthorizedCodeExpiration),
		tokenExpiresIn:              durationOr(cfg.TokenExpiresIn, DefaultTokenExpiresIn),
		cNonceExpiresIn:             durationOr(cfg.CNonceExpiresIn, DefaultCNonceExpiresIn),
	}
	for _, opt := range opts {
		opt(&service)
	}
	if service.proofs == nil {
		service.proofs = keyaccess.NewProofVerifier(nil)
	}
	if service.statusLists == nil {
		service.statusLists = statuslist.NewClient(nil)
	}
	if service.audit == nil {
		service.audit = noopAudit{}
	}

	service.sessions = NewSessionStore(db, storage.MakeNamespace("issuer", cfg.Name, "sessions"),
		durationOr(cfg.SessionTTL, DefaultSessionTTL), service.clock)
	service.nonces = NewStore[NonceState](db, storage.MakeNamespace("issuer", cfg.Name, "nonces"),
		durationOr(cfg.NonceTTL, DefaultNonceTTL), service.clock)
	service.issuerSessions = NewStore[IssuerSession](db, storage.MakeNamespace("issuer", cfg.Name, "issuer-sessions"),
		durationOr(cfg.SessionTTL, DefaultSessionTTL), service.clock)

	if !service.Status().IsReady() {
		return nil, errors.New(service.Status().Message)
	}
	return &service, nil
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

func (s *Service) Name() string {
	return s.config.Name
}

func (s *Service) Config() config.IssuerConfig {
	return s.config
}

// DID is the issuer's did:key.
func (s *Service) DID() string {
	return s.signer.ID
}

func (s *Service) Metadata() *Metadata {
	return s.metadata
}

// BasePath is the path of the issuer's base url, where its routes are mounted. It has no trailing slash.
func (s *Service) BasePath() string {
	path, _ := PathOf(s.config.BaseURL)
	return strings.TrimSuffix(path, "/")
}

// PathOf returns the path component of an issuer base url.
func PathOf(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", errors.Wrapf(err, "parsing base url %q", baseURL)
	}
	return u.Path, nil
}

func (s *Service) DIDDocument() (*keyaccess.DIDDocument, error) {
	return BuildDIDDocument(s.signer, s.metadata.CredentialIssuer())
}

// AuthorizationServerMetadata is served as both the OpenID configuration and the OAuth server metadata.
type AuthorizationServerMetadata struct {
	Issuer                string `json:"issuer"`
	TokenEndpoint         string `json:"token_endpoint"`
	AuthorizationEndpoint string `json:"authorization_endpoint,omitempty"`
}

func (s *Service) AuthorizationServerMetadata() AuthorizationServerMetadata {
	tokenEndpoint := s.config.TokenEndpoint
	if tokenEndpoint == "" {
		tokenEndpoint = s.metadata.CredentialIssuer() + "/token"
	}
	return AuthorizationServerMetadata{
		Issuer:                s.metadata.CredentialIssuer(),
		TokenEndpoint:         tokenEndpoint,
		AuthorizationEndpoint: s.config.AuthorizationEndpoint,
	}
}

func (s *Service) lock(sessionID string) func() {
	m, _ := s.locks.LoadOrStore(sessionID, new(sync.Mutex))
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// advance moves the session to status and saves it. A session in a terminal status is left as is.
func (s *Service) advance(ctx context.Context, session *Session, status IssueStatus, cause error) error {
	if session.Status.IsTerminal() {
		return nil
	}
	session.Status = status
	if cause != nil {
		session.Error = cause.Error()
	}
	if now := s.clock.Now().UnixMilli(); now > session.LastUpdatedAt {
		session.LastUpdatedAt = now
	}
	return s.sessions.Save(ctx, *session)
}

// lockedSession finds the session for key and locks it. The session is read again once the lock is held. When no
// session exists nil is returned and nothing is locked.
func (s *Service) lockedSession(ctx context.Context, key string) (*Session, func(), error) {
	found, err := s.sessions.Lookup(ctx, key)
	if err != nil || found == nil {
		return nil, func() {}, err
	}
	unlock := s.lock(found.ID)
	session, err := s.sessions.Get(ctx, found.ID)
	if err != nil || session == nil {
		unlock()
		return nil, func() {}, err
	}
	return session, unlock, nil
}
