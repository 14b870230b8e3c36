package storage

import (
	"context"

	"github.com/pkg/errors"

	"github.com/tbd54566975/oid4vci-issuer/pkg/encryption"
)

// EncryptedWrapper encrypts every value before it reaches the wrapped storage. Keys and namespaces stay in the clear.
type EncryptedWrapper struct {
	s         ServiceStorage
	encrypter encryption.Encrypter
	decrypter encryption.Decrypter
}

var _ ServiceStorage = (*EncryptedWrapper)(nil)

func NewEncryptedWrapper(s ServiceStorage, encrypter encryption.Encrypter, decrypter encryption.Decrypter) *EncryptedWrapper {
	return &EncryptedWrapper{
		s:         s,
		encrypter: encrypter,
		decrypter: decrypter,
	}
}

func (e EncryptedWrapper) Init(opts ...Option) error {
	return e.s.Init(opts...)
}

func (e EncryptedWrapper) Type() Type {
	return e.s.Type()
}

func (e EncryptedWrapper) URI() string {
	return e.s.URI()
}

func (e EncryptedWrapper) IsOpen() bool {
	return e.s.IsOpen()
}

func (e EncryptedWrapper) Close() error {
	return e.s.Close()
}

func (e EncryptedWrapper) Write(ctx context.Context, namespace, key string, value []byte) error {
	encryptedData, err := e.encrypter.Encrypt(ctx, value, nil)
	if err != nil {
		return errors.Wrap(err, "encrypting data")
	}
	return e.s.Write(ctx, namespace, key, encryptedData)
}

func (e EncryptedWrapper) WriteMany(ctx context.Context, namespaces, keys []string, values [][]byte) error {
	encryptedValues := make([][]byte, 0, len(values))
	for _, value := range values {
		encryptedData, err := e.encrypter.Encrypt(ctx, value, nil)
		if err != nil {
			return errors.Wrap(err, "encrypting data")
		}
		encryptedValues = append(encryptedValues, encryptedData)
	}
	return e.s.WriteMany(ctx, namespaces, keys, encryptedValues)
}

func (e EncryptedWrapper) Read(ctx context.Context, namespace, key string) ([]byte, error) {
	storedBytes, err := e.s.Read(ctx, namespace, key)
	if err != nil || storedBytes == nil {
		return nil, err
	}
	decryptedData, err := e.decrypter.Decrypt(ctx, storedBytes, nil)
	if err != nil {
		return nil, errors.Wrap(err, "decrypting data")
	}
	return decryptedData, nil
}

func (e EncryptedWrapper) Exists(ctx context.Context, namespace, key string) (bool, error) {
	return e.s.Exists(ctx, namespace, key)
}

func (e EncryptedWrapper) ReadAll(ctx context.Context, namespace string) (map[string][]byte, error) {
	encrypted, err := e.s.ReadAll(ctx, namespace)
	if err != nil {
		return nil, err
	}
	return e.decryptAll(ctx, encrypted)
}

func (e EncryptedWrapper) ReadPrefix(ctx context.Context, namespace, prefix string) (map[string][]byte, error) {
	encrypted, err := e.s.ReadPrefix(ctx, namespace, prefix)
	if err != nil {
		return nil, err
	}
	return e.decryptAll(ctx, encrypted)
}

func (e EncryptedWrapper) decryptAll(ctx context.Context, encrypted map[string][]byte) (map[string][]byte, error) {
	result := make(map[string][]byte, len(encrypted))
	for k, v := range encrypted {
		decrypted, err := e.decrypter.Decrypt(ctx, v, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "decrypting value for key<%s>", k)
		}
		result[k] = decrypted
	}
	return result, nil
}

func (e EncryptedWrapper) ReadAllKeys(ctx context.Context, namespace string) ([]string, error) {
	return e.s.ReadAllKeys(ctx, namespace)
}

func (e EncryptedWrapper) Delete(ctx context.Context, namespace, key string) error {
	return e.s.Delete(ctx, namespace, key)
}

func (e EncryptedWrapper) DeleteNamespace(ctx context.Context, namespace string) error {
	return e.s.DeleteNamespace(ctx, namespace)
}
