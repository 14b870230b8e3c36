package oidc

import (
	"context"
	"fmt"
	"time"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/oid4vci-issuer/pkg/storage"
)

type expirable interface {
	CreatedAtMillis() int64
}

// NotFoundError is returned by GetAsserted for a key with no value.
type NotFoundError struct {
	Namespace string
	Key       string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("no value for key<%s> in %s", e.Key, e.Namespace)
}

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

// Store is a TTL bearing key value store of JSON encoded states. Writes replace the whole value.
type Store[T expirable] struct {
	db        storage.ServiceStorage
	namespace string
	ttl       time.Duration
	clock     clock.Clock
}

// NewStore returns a store whose values expire ttl after they were created. A zero ttl never expires.
func NewStore[T expirable](db storage.ServiceStorage, namespace string, ttl time.Duration, c clock.Clock) *Store[T] {
	if c == nil {
		c = clock.New()
	}
	return &Store[T]{db: db, namespace: namespace, ttl: ttl, clock: c}
}

// Get returns nil when the key has no value.
func (s *Store[T]) Get(ctx context.Context, key string) (*T, error) {
	if key == "" {
		return nil, nil
	}
	valueBytes, err := s.db.Read(ctx, s.namespace, key)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "reading %s<%s>", s.namespace, key)
	}
	if len(valueBytes) == 0 {
		return nil, nil
	}
	var value T
	if err = json.Unmarshal(valueBytes, &value); err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "unmarshalling %s<%s>", s.namespace, key)
	}
	return &value, nil
}

// GetAsserted is Get failing with NotFoundError instead of returning nil.
func (s *Store[T]) GetAsserted(ctx context.Context, key string) (*T, error) {
	value, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, NotFoundError{Namespace: s.namespace, Key: key}
	}
	return value, nil
}

func (s *Store[T]) Set(ctx context.Context, key string, value T) error {
	if key == "" {
		return errors.New("cannot store a value without a key")
	}
	valueBytes, err := json.Marshal(value)
	if err != nil {
		return sdkutil.LoggingErrorMsgf(err, "marshalling %s<%s>", s.namespace, key)
	}
	return s.db.Write(ctx, s.namespace, key, valueBytes)
}

func (s *Store[T]) Delete(ctx context.Context, key string) error {
	return s.db.Delete(ctx, s.namespace, key)
}

// ClearExpired deletes every value older than the ttl and returns what it removed, keyed by storage key.
func (s *Store[T]) ClearExpired(ctx context.Context) (map[string]T, error) {
	if s.ttl <= 0 {
		return nil, nil
	}
	all, err := s.db.ReadAll(ctx, s.namespace)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "reading all of %s", s.namespace)
	}
	cutoff := s.clock.Now().Add(-s.ttl).UnixMilli()
	removed := make(map[string]T)
	for key, valueBytes := range all {
		var value T
		if err = json.Unmarshal(valueBytes, &value); err != nil {
			logrus.WithError(err).Warnf("dropping undecodable %s<%s>", s.namespace, key)
		} else if value.CreatedAtMillis() >= cutoff {
			continue
		}
		if err = s.db.Delete(ctx, s.namespace, key); err != nil {
			return removed, sdkutil.LoggingErrorMsgf(err, "deleting expired %s<%s>", s.namespace, key)
		}
		removed[key] = value
	}
	return removed, nil
}

// SessionStore keeps each session once under its canonical id. The pre-authorized code and the issuer state are
// secondary keys in a separate index namespace.
type SessionStore struct {
	*Store[Session]
	indexNamespace string
}

func NewSessionStore(db storage.ServiceStorage, namespace string, ttl time.Duration, c clock.Clock) *SessionStore {
	return &SessionStore{
		Store:          NewStore[Session](db, namespace, ttl, c),
		indexNamespace: namespace + "-index",
	}
}

// Save writes the session and points each of its keys at it.
func (s *SessionStore) Save(ctx context.Context, session Session) error {
	if session.ID == "" {
		return errors.New("session has no id")
	}
	sessionBytes, err := json.Marshal(session)
	if err != nil {
		return sdkutil.LoggingErrorMsgf(err, "marshalling session<%s>", session.ID)
	}
	namespaces := []string{s.namespace}
	keys := []string{session.ID}
	values := [][]byte{sessionBytes}
	for _, key := range session.Keys() {
		namespaces = append(namespaces, s.indexNamespace)
		keys = append(keys, key)
		values = append(values, []byte(session.ID))
	}
	return s.db.WriteMany(ctx, namespaces, keys, values)
}

// Lookup finds a session by any of its keys or its id. It returns nil when there is none.
func (s *SessionStore) Lookup(ctx context.Context, key string) (*Session, error) {
	if key == "" {
		return nil, nil
	}
	id, err := s.db.Read(ctx, s.indexNamespace, key)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "reading session index<%s>", key)
	}
	if len(id) == 0 {
		return s.Get(ctx, key)
	}
	return s.Get(ctx, string(id))
}

// LookupAsserted is Lookup failing with NotFoundError.
func (s *SessionStore) LookupAsserted(ctx context.Context, key string) (*Session, error) {
	session, err := s.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, NotFoundError{Namespace: s.namespace, Key: key}
	}
	return session, nil
}

// ClearExpired removes expired sessions along with their index entries.
func (s *SessionStore) ClearExpired(ctx context.Context) (map[string]Session, error) {
	removed, err := s.Store.ClearExpired(ctx)
	for _, session := range removed {
		for _, key := range session.Keys() {
			if delErr := s.db.Delete(ctx, s.indexNamespace, key); delErr != nil {
				logrus.WithError(delErr).Warnf("deleting session index<%s>", key)
			}
		}
	}
	return removed, err
}
