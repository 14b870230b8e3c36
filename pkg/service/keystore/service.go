package keystore

import (
	"context"
	gocrypto "crypto"
	"fmt"
	"time"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/oid4vci-issuer/config"
	"github.com/tbd54566975/oid4vci-issuer/internal/keyaccess"
	"github.com/tbd54566975/oid4vci-issuer/pkg/service/framework"
	"github.com/tbd54566975/oid4vci-issuer/pkg/storage"
)

// Service owns the signing key of every issuer instance.
type Service struct {
	storage *Storage
	config  config.KeyServiceConfig
}

func (s Service) Type() framework.Type {
	return framework.Keys
}

func (s Service) Status() framework.Status {
	ae := sdkutil.NewAppendError()
	if s.storage == nil {
		ae.AppendString("no storage configured")
	}
	if !ae.IsEmpty() {
		return framework.Status{
			Status:  framework.StatusNotReady,
			Message: fmt.Sprintf("key store service is not ready: %s", ae.Error().Error()),
		}
	}
	return framework.Status{Status: framework.StatusReady}
}

func (s Service) Config() config.KeyServiceConfig {
	return s.config
}

func NewKeyStoreService(ctx context.Context, config config.KeyServiceConfig, db storage.ServiceStorage) (*Service, error) {
	encrypter, decrypter, err := NewServiceEncryption(ctx, db, config)
	if err != nil {
		return nil, errors.Wrap(err, "creating new encryption")
	}
	keyStoreStorage, err := NewKeyStoreStorage(db, encrypter, decrypter)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "instantiating storage for the keystore service")
	}

	service := Service{
		storage: keyStoreStorage,
		config:  config,
	}
	if !service.Status().IsReady() {
		return nil, errors.New(service.Status().Message)
	}
	return &service, nil
}

// GetOrCreateSigner returns the signing key of the named issuer, generating a key of type kt and its did:key on first
// use. A key stored earlier is used as is, even when kt has since been changed.
func (s Service) GetOrCreateSigner(ctx context.Context, issuerName string, kt keyaccess.KeyType) (*keyaccess.JWKKeyAccess, error) {
	stored, err := s.storage.GetKey(ctx, issuerName)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		if stored.KeyType != kt {
			logrus.Warnf("issuer<%s> keeps its stored %s key, ignoring configured key type %s", issuerName, stored.KeyType, kt)
		}
		privateKey, err := jwk.ParseKey(stored.PrivateKeyJWK)
		if err != nil {
			return nil, sdkutil.LoggingErrorMsgf(err, "could not reconstruct private key of issuer<%s>", issuerName)
		}
		return keyaccess.NewJWKKeyAccessFromJWK(stored.Controller, stored.KID, privateKey)
	}

	if !kt.IsIssuerKeyType() {
		return nil, sdkutil.LoggingNewErrorf("unsupported issuer key type: %s", kt)
	}
	privateKey, err := keyaccess.GenerateKey(kt)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "generating %s key", kt)
	}
	signer, ok := privateKey.(gocrypto.Signer)
	if !ok {
		return nil, errors.Errorf("%s key cannot sign", kt)
	}
	did, multibaseKey, err := keyaccess.CreateDIDKey(signer.Public())
	if err != nil {
		return nil, errors.Wrap(err, "creating did:key")
	}
	keyAccess, err := keyaccess.NewJWKKeyAccess(did, did+"#"+multibaseKey, privateKey)
	if err != nil {
		return nil, err
	}
	keyJSON, err := keyAccess.PrivateKeyJSON()
	if err != nil {
		return nil, err
	}

	key := StoredKey{
		ID:            issuerName,
		Controller:    did,
		KeyType:       kt,
		KID:           keyAccess.KID,
		PrivateKeyJWK: keyJSON,
		CreatedAt:     time.Now().Format(time.RFC3339),
	}
	if err = s.storage.StoreKey(ctx, key); err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "storing key of issuer<%s>", issuerName)
	}
	logrus.Infof("created %s signing key for issuer<%s>: %s", kt, issuerName, did)
	return keyAccess, nil
}

func (s Service) GetKeyDetails(ctx context.Context, issuerName string) (*KeyDetails, error) {
	details, err := s.storage.GetKeyDetails(ctx, issuerName)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "could not get key details for issuer<%s>", issuerName)
	}
	if details == nil {
		return nil, sdkutil.LoggingNewErrorf("issuer<%s> has no key", issuerName)
	}
	return details, nil
}
