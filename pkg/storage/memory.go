package storage

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

func init() {
	if err := RegisterStorage(Memory, func() ServiceStorage { return new(MemoryDB) }); err != nil {
		panic(err)
	}
}

// MemoryDB is an in memory implementation of ServiceStorage that is safe for concurrent use.
// Useful for tests and single process deployments where sessions need not survive a restart.
type MemoryDB struct {
	maps sync.Map
}

func (f *MemoryDB) Init(...Option) error {
	return nil
}

func (f *MemoryDB) Type() Type {
	return Memory
}

func (f *MemoryDB) URI() string {
	return "memory"
}

func (f *MemoryDB) IsOpen() bool {
	return true
}

func (f *MemoryDB) Close() error {
	return nil
}

func (f *MemoryDB) namespace(namespace string) *sync.Map {
	m, _ := f.maps.LoadOrStore(namespace, &sync.Map{})
	return m.(*sync.Map)
}

func (f *MemoryDB) Write(_ context.Context, namespace, key string, value []byte) error {
	f.namespace(namespace).Store(key, append([]byte(nil), value...))
	return nil
}

func (f *MemoryDB) WriteMany(ctx context.Context, namespaces, keys []string, values [][]byte) error {
	if len(namespaces) != len(keys) || len(namespaces) != len(values) {
		return errors.New("namespaces, keys, and values, are not of equal length")
	}
	for i := range namespaces {
		if err := f.Write(ctx, namespaces[i], keys[i], values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *MemoryDB) Read(_ context.Context, namespace, key string) ([]byte, error) {
	v, ok := f.namespace(namespace).Load(key)
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v.([]byte)...), nil
}

func (f *MemoryDB) Exists(_ context.Context, namespace, key string) (bool, error) {
	_, ok := f.namespace(namespace).Load(key)
	return ok, nil
}

func (f *MemoryDB) ReadAll(ctx context.Context, namespace string) (map[string][]byte, error) {
	return f.ReadPrefix(ctx, namespace, "")
}

func (f *MemoryDB) ReadPrefix(_ context.Context, namespace, prefix string) (map[string][]byte, error) {
	r := make(map[string][]byte)
	f.namespace(namespace).Range(func(key, value any) bool {
		if strings.HasPrefix(key.(string), prefix) {
			r[key.(string)] = append([]byte(nil), value.([]byte)...)
		}
		return true
	})
	return r, nil
}

func (f *MemoryDB) ReadAllKeys(_ context.Context, namespace string) ([]string, error) {
	r := make([]string, 0, 10)
	f.namespace(namespace).Range(func(key, _ any) bool {
		r = append(r, key.(string))
		return true
	})
	return r, nil
}

func (f *MemoryDB) Delete(_ context.Context, namespace, key string) error {
	f.namespace(namespace).Delete(key)
	return nil
}

func (f *MemoryDB) DeleteNamespace(_ context.Context, namespace string) error {
	if _, loaded := f.maps.LoadAndDelete(namespace); !loaded {
		return errors.Errorf("could not delete namespace<%s>, namespace does not exist", namespace)
	}
	return nil
}
