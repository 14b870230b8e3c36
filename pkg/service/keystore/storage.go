package keystore

import (
	"context"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/goccy/go-json"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/tbd54566975/oid4vci-issuer/config"
	"github.com/tbd54566975/oid4vci-issuer/internal/util"
	"github.com/tbd54566975/oid4vci-issuer/pkg/encryption"
	"github.com/tbd54566975/oid4vci-issuer/pkg/storage"
)

const (
	namespace = "issuer-keys"

	// the password salt is not secret and lives beside the keys, unencrypted
	saltNamespace = "issuer-keys-salt"
	saltKey       = "password-salt"
)

type Storage struct {
	db        storage.ServiceStorage
	encrypter encryption.Encrypter
	decrypter encryption.Decrypter
}

func NewKeyStoreStorage(db storage.ServiceStorage, encrypter encryption.Encrypter, decrypter encryption.Decrypter) (*Storage, error) {
	if db == nil {
		return nil, errors.New("db reference is nil")
	}
	if encrypter == nil || decrypter == nil {
		return nil, errors.New("encrypter and decrypter are required")
	}
	return &Storage{db: db, encrypter: encrypter, decrypter: decrypter}, nil
}

// NewServiceEncryption returns the external KMS encryption when a master key is configured, and otherwise a key
// derived from the configured password and a salt generated on first use.
func NewServiceEncryption(ctx context.Context, db storage.ServiceStorage, cfg config.KeyServiceConfig) (encryption.Encrypter, encryption.Decrypter, error) {
	if cfg.EncryptionEnabled() {
		return encryption.NewExternalEncrypter(ctx, cfg)
	}
	if cfg.Password == "" {
		return nil, nil, errors.New("a key password or a master key uri is required")
	}

	salt, err := getOrCreateSalt(ctx, db)
	if err != nil {
		return nil, nil, err
	}
	e, err := encryption.NewPasswordEncrypter(cfg.Password, salt)
	if err != nil {
		return nil, nil, err
	}
	return e, e, nil
}

func getOrCreateSalt(ctx context.Context, db storage.ServiceStorage) ([]byte, error) {
	stored, err := db.Read(ctx, saltNamespace, saltKey)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not read key salt")
	}
	if len(stored) != 0 {
		salt, err := base58.Decode(string(stored))
		if err != nil {
			return nil, errors.Wrap(err, "could not decode key salt")
		}
		return salt, nil
	}

	salt, err := util.GenerateSalt(util.Argon2SaltSize)
	if err != nil {
		return nil, errors.Wrap(err, "generating key salt")
	}
	if err = db.Write(ctx, saltNamespace, saltKey, []byte(base58.Encode(salt))); err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not store key salt")
	}
	return salt, nil
}

func (kss *Storage) StoreKey(ctx context.Context, key StoredKey) error {
	id := key.ID
	if id == "" {
		return sdkutil.LoggingNewError("could not store key without an ID")
	}

	keyBytes, err := json.Marshal(key)
	if err != nil {
		return sdkutil.LoggingErrorMsgf(err, "could not store key: %s", id)
	}

	encryptedKey, err := kss.encrypter.Encrypt(ctx, keyBytes, nil)
	if err != nil {
		return sdkutil.LoggingErrorMsgf(err, "could not encrypt key: %s", id)
	}
	return kss.db.Write(ctx, namespace, id, encryptedKey)
}

// GetKey returns nil when no key is stored under the id.
func (kss *Storage) GetKey(ctx context.Context, id string) (*StoredKey, error) {
	storedKeyBytes, err := kss.db.Read(ctx, namespace, id)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "could not get key: %s", id)
	}
	if len(storedKeyBytes) == 0 {
		return nil, nil
	}

	decryptedKey, err := kss.decrypter.Decrypt(ctx, storedKeyBytes, nil)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "could not decrypt key: %s", id)
	}

	var stored StoredKey
	if err = json.Unmarshal(decryptedKey, &stored); err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "could not unmarshal stored key: %s", id)
	}
	return &stored, nil
}

func (kss *Storage) GetKeyDetails(ctx context.Context, id string) (*KeyDetails, error) {
	stored, err := kss.GetKey(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, nil
	}
	return &KeyDetails{
		ID:         stored.ID,
		Controller: stored.Controller,
		KeyType:    stored.KeyType,
		KID:        stored.KID,
		CreatedAt:  stored.CreatedAt,
	}, nil
}
