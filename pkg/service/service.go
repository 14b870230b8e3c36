package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/oid4vci-issuer/config"
	"github.com/tbd54566975/oid4vci-issuer/internal/keyaccess"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/audit"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/framework"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/keystore"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/oidc"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/record"
	"github.com/tbd54566975/oid4vci-issuer/pkg/storage"
)

// IssuerService represents every issuer instance and their shared dependencies independent of transport
type IssuerService struct {
	storage  storage.ServiceStorage
	KeyStore *keystore.Service
	Records  *record.Service
	Audit    *audit.Service
	Issuers  []*oidc.Service
}

// InstantiateIssuerService creates the shared services and one engine per configured issuer, independent of
// transport.
func InstantiateIssuerService(ctx context.Context, config config.ServicesConfig) (*IssuerService, error) {
	if err := validateServiceConfig(config); err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate the issuer service, invalid config")
	}
	service, err := instantiateServices(ctx, config)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "could not instantiate the issuer service")
	}
	return service, nil
}

func validateServiceConfig(config config.ServicesConfig) error {
	if !storage.IsStorageAvailable(storage.Type(config.Storage.Provider)) {
		return fmt.Errorf("%s storage provider configured, but not available", config.Storage.Provider)
	}
	if config.Keys.Password == "" && !config.Keys.EncryptionEnabled() {
		return fmt.Errorf("%s no password or master key uri provided", framework.Keys)
	}
	if len(config.Issuers) == 0 {
		return fmt.Errorf("%s no issuers configured", framework.Issuer)
	}
	names := make(map[string]bool, len(config.Issuers))
	paths := make(map[string]string, len(config.Issuers))
	for _, issuer := range config.Issuers {
		if err := issuer.Validate(); err != nil {
			return err
		}
		if names[issuer.Name] {
			return fmt.Errorf("issuer<%s> configured twice", issuer.Name)
		}
		names[issuer.Name] = true

		path, err := basePath(issuer.BaseURL)
		if err != nil {
			return err
		}
		if other, ok := paths[path]; ok {
			return fmt.Errorf("issuers<%s> and <%s> share the base path %q", other, issuer.Name, path)
		}
		paths[path] = issuer.Name
	}
	return nil
}

func instantiateServices(ctx context.Context, config config.ServicesConfig) (*IssuerService, error) {
	rawStorage, err := storage.NewStorage(storage.Type(config.Storage.Provider), config.Storage.Options...)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "could not instantiate storage provider: %s", config.Storage.Provider)
	}

	// issuer keys are encrypted by the key store itself, everything else only when asked to
	storageProvider := rawStorage
	if config.Storage.EncryptAll {
		encrypter, decrypter, err := keystore.NewServiceEncryption(ctx, rawStorage, config.Keys)
		if err != nil {
			return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate storage encryption")
		}
		storageProvider = storage.NewEncryptedWrapper(rawStorage, encrypter, decrypter)
	}

	keyStoreService, err := keystore.NewKeyStoreService(ctx, config.Keys, rawStorage)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate the key store service")
	}

	recordService, err := record.NewRecordService(storageProvider, nil)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate the record service")
	}

	auditService, err := audit.NewAuditService(config.Audit, nil)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate the audit service")
	}

	issuers := make([]*oidc.Service, 0, len(config.Issuers))
	for _, issuerConfig := range config.Issuers {
		issuer, err := instantiateIssuer(ctx, issuerConfig, storageProvider, keyStoreService, recordService, auditService)
		if err != nil {
			return nil, sdkutil.LoggingErrorMsgf(err, "could not instantiate issuer<%s>", issuerConfig.Name)
		}
		logrus.WithFields(logrus.Fields{
			"issuer": issuer.Name(),
			"did":    issuer.DID(),
			"path":   issuer.BasePath(),
		}).Info("issuer ready")
		issuers = append(issuers, issuer)
	}

	return &IssuerService{
		storage:  storageProvider,
		KeyStore: keyStoreService,
		Records:  recordService,
		Audit:    auditService,
		Issuers:  issuers,
	}, nil
}

func instantiateIssuer(ctx context.Context, cfg config.IssuerConfig, db storage.ServiceStorage, keys *keystore.Service,
	records *record.Service, auditLogger audit.Logger) (*oidc.Service, error) {
	keyType := keyaccess.KeyType(cfg.KeyType)
	if keyType == "" {
		keyType = keyaccess.Ed25519
	}
	signer, err := keys.GetOrCreateSigner(ctx, cfg.Name, keyType)
	if err != nil {
		return nil, errors.Wrap(err, "loading signing key")
	}
	metadata, err := oidc.LoadMetadata(cfg.BaseURL, cfg.MetadataPath, cfg.CredentialConfigurationsPath)
	if err != nil {
		return nil, errors.Wrap(err, "loading issuer metadata")
	}
	return oidc.NewIssuerService(cfg, db, signer, records, metadata, oidc.WithAuditLogger(auditLogger))
}

func basePath(baseURL string) (string, error) {
	path, err := oidc.PathOf(baseURL)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(path, "/"), nil
}

// Issuer returns the issuer instance with the given name.
func (s *IssuerService) Issuer(name string) (*oidc.Service, bool) {
	for _, issuer := range s.Issuers {
		if issuer.Name() == name {
			return issuer, true
		}
	}
	return nil, false
}

// StartSweepers runs the expiry sweeper of every issuer until ctx is done.
func (s *IssuerService) StartSweepers(ctx context.Context, interval time.Duration) {
	for _, issuer := range s.Issuers {
		issuer.StartSweeper(ctx, interval)
	}
}

// Storage is the provider shared by every service.
func (s *IssuerService) Storage() storage.ServiceStorage {
	return s.storage
}

func (s *IssuerService) Close() error {
	return s.storage.Close()
}

// GetServices returns all services
func (s *IssuerService) GetServices() []framework.Service {
	services := []framework.Service{s.KeyStore, s.Records, s.Audit}
	for _, issuer := range s.Issuers {
		services = append(services, issuer)
	}
	return services
}
