package storage

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

type Type string

const (
	Bolt        Type = "bolt"
	Redis       Type = "redis"
	DatabaseSQL Type = "postgres"
	Memory      Type = "memory"
)

func (t Type) String() string {
	return string(t)
}

type OptionKey string

// Option is a single provider-specific setting, e.g. a bolt file path or a redis address.
type Option struct {
	ID     OptionKey `toml:"id" json:"id"`
	Option any       `toml:"option" json:"option,omitempty"`
}

// ServiceStorage describes the api for storage independent of DB providers.
// Read returns (nil, nil) for a key that does not exist.
type ServiceStorage interface {
	Init(opts ...Option) error
	Type() Type
	URI() string
	IsOpen() bool
	Close() error
	Write(ctx context.Context, namespace, key string, value []byte) error
	WriteMany(ctx context.Context, namespaces, keys []string, values [][]byte) error
	Read(ctx context.Context, namespace, key string) ([]byte, error)
	Exists(ctx context.Context, namespace, key string) (bool, error)
	ReadAll(ctx context.Context, namespace string) (map[string][]byte, error)
	ReadPrefix(ctx context.Context, namespace, prefix string) (map[string][]byte, error)
	ReadAllKeys(ctx context.Context, namespace string) ([]string, error)
	Delete(ctx context.Context, namespace, key string) error
	DeleteNamespace(ctx context.Context, namespace string) error
}

// Factory builds an uninitialized storage provider.
type Factory func() ServiceStorage

var (
	availableStorages = make(map[Type]Factory)
	storagesMu        sync.RWMutex
)

// RegisterStorage registers a storage provider factory. Each provider registers itself in init.
func RegisterStorage(t Type, f Factory) error {
	storagesMu.Lock()
	defer storagesMu.Unlock()
	if _, ok := availableStorages[t]; ok {
		return errors.Errorf("storage type<%s> already registered", t)
	}
	availableStorages[t] = f
	return nil
}

func IsStorageAvailable(t Type) bool {
	storagesMu.RLock()
	defer storagesMu.RUnlock()
	_, ok := availableStorages[t]
	return ok
}

// NewStorage creates and initializes a new instance of the given storage provider.
func NewStorage(t Type, opts ...Option) (ServiceStorage, error) {
	storagesMu.RLock()
	f, ok := availableStorages[t]
	storagesMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unsupported storage type: %s", t)
	}
	s := f()
	if err := s.Init(opts...); err != nil {
		return nil, errors.Wrapf(err, "initializing %s storage", t)
	}
	return s, nil
}

// Join combines a namespace with a key, the way every provider flattens its keyspace.
func Join(parts ...string) string {
	return strings.Join(parts, "-")
}

// MakeNamespace takes a set of possible namespace values and combines them as a convention
func MakeNamespace(ns ...string) string {
	return strings.Join(ns, ":")
}

func optionValue[T any](opts []Option, key OptionKey) (T, bool, error) {
	var zero T
	for _, opt := range opts {
		if opt.ID != key {
			continue
		}
		v, ok := opt.Option.(T)
		if !ok {
			return zero, true, errors.Errorf("option<%s> has unexpected type %T", key, opt.Option)
		}
		return v, true, nil
	}
	return zero, false, nil
}
