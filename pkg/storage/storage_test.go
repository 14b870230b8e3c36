package storage

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/aip/filtering"

	"github.com/tbd54566975/oid4vci-issuer/pkg/encryption"
)

func getDBImplementations(t *testing.T) map[string]ServiceStorage {
	boltDB := setupBoltDB(t)
	key := make([]byte, 32)
	return map[string]ServiceStorage{
		"bolt":   boltDB,
		"redis":  setupRedisDB(t),
		"memory": new(MemoryDB),
		"encrypted": NewEncryptedWrapper(
			setupBoltDB(t),
			encryption.NewXChaCha20Poly1305EncrypterWithKey(key),
			encryption.NewXChaCha20Poly1305EncrypterWithKey(key),
		),
	}
}

func setupBoltDB(t *testing.T) *BoltDB {
	db, err := NewStorage(Bolt, Option{
		ID:     BoltDBFilePathOption,
		Option: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, db)

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db.(*BoltDB)
}

func setupRedisDB(t *testing.T) *RedisDB {
	server := miniredis.RunT(t)
	db, err := NewStorage(Redis, Option{
		ID:     RedisAddressOption,
		Option: server.Addr(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, db)

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db.(*RedisDB)
}

func TestDB(t *testing.T) {
	for name, dbImpl := range getDBImplementations(t) {
		db := dbImpl
		t.Run(name, func(tt *testing.T) {
			ctx := context.Background()
			assert.True(tt, db.IsOpen())

			namespace := "issuer:default:sessions"
			session1 := map[string]any{"status": "OFFER_CREATED", "createdAt": 1}
			s1Bytes, err := json.Marshal(session1)
			require.NoError(tt, err)

			require.NoError(tt, db.Write(ctx, namespace, "abc", s1Bytes))

			got, err := db.Read(ctx, namespace, "abc")
			assert.NoError(tt, err)
			assert.JSONEq(tt, string(s1Bytes), string(got))

			exists, err := db.Exists(ctx, namespace, "abc")
			assert.NoError(tt, err)
			assert.True(tt, exists)

			// missing namespace and missing key both yield nothing
			missing, err := db.Read(ctx, "bad", "worse")
			assert.NoError(tt, err)
			assert.Nil(tt, missing)

			missing, err = db.Read(ctx, namespace, "nope")
			assert.NoError(tt, err)
			assert.Nil(tt, missing)

			exists, err = db.Exists(ctx, namespace, "nope")
			assert.NoError(tt, err)
			assert.False(tt, exists)

			err = db.WriteMany(ctx,
				[]string{namespace, namespace},
				[]string{"pre-auth:111", "issuer-state:222"},
				[][]byte{[]byte(`"abc"`), []byte(`"abc"`)})
			require.NoError(tt, err)

			all, err := db.ReadAll(ctx, namespace)
			assert.NoError(tt, err)
			assert.Len(tt, all, 3)

			prefixed, err := db.ReadPrefix(ctx, namespace, "pre-auth:")
			assert.NoError(tt, err)
			assert.Len(tt, prefixed, 1)
			assert.Equal(tt, []byte(`"abc"`), prefixed["pre-auth:111"])

			keys, err := db.ReadAllKeys(ctx, namespace)
			assert.NoError(tt, err)
			sort.Strings(keys)
			assert.Equal(tt, []string{"abc", "issuer-state:222", "pre-auth:111"}, keys)

			require.NoError(tt, db.Delete(ctx, namespace, "abc"))
			got, err = db.Read(ctx, namespace, "abc")
			assert.NoError(tt, err)
			assert.Nil(tt, got)

			// deleting something already gone is not an error
			assert.NoError(tt, db.Delete(ctx, "bad", "worse"))

			require.NoError(tt, db.DeleteNamespace(ctx, namespace))
			all, err = db.ReadAll(ctx, namespace)
			assert.NoError(tt, err)
			assert.Empty(tt, all)
		})
	}
}

func TestWriteManyMismatchedLengths(t *testing.T) {
	for name, dbImpl := range getDBImplementations(t) {
		db := dbImpl
		t.Run(name, func(tt *testing.T) {
			err := db.WriteMany(context.Background(), []string{"a"}, []string{"b", "c"}, [][]byte{[]byte("d")})
			assert.Error(tt, err)
		})
	}
}

func TestNamespacesDoNotOverlap(t *testing.T) {
	for name, dbImpl := range getDBImplementations(t) {
		db := dbImpl
		t.Run(name, func(tt *testing.T) {
			ctx := context.Background()
			require.NoError(tt, db.Write(ctx, MakeNamespace("issuer", "a", "nonces"), "n1", []byte("1")))
			require.NoError(tt, db.Write(ctx, MakeNamespace("issuer", "b", "nonces"), "n2", []byte("2")))

			a, err := db.ReadAll(ctx, MakeNamespace("issuer", "a", "nonces"))
			assert.NoError(tt, err)
			assert.Len(tt, a, 1)
			assert.Contains(tt, a, "n1")
		})
	}
}

func TestEncryptedWrapperStoresCiphertext(t *testing.T) {
	inner := new(MemoryDB)
	key := make([]byte, 32)
	db := NewEncryptedWrapper(inner,
		encryption.NewXChaCha20Poly1305EncrypterWithKey(key),
		encryption.NewXChaCha20Poly1305EncrypterWithKey(key))

	ctx := context.Background()
	require.NoError(t, db.Write(ctx, "keys", "k1", []byte("secret")))

	raw, err := inner.Read(ctx, "keys", "k1")
	assert.NoError(t, err)
	assert.NotEqual(t, []byte("secret"), raw)

	plain, err := db.Read(ctx, "keys", "k1")
	assert.NoError(t, err)
	assert.Equal(t, []byte("secret"), plain)
}

func TestNewStorage(t *testing.T) {
	t.Run("unknown provider", func(tt *testing.T) {
		_, err := NewStorage("dynamo")
		assert.ErrorContains(tt, err, "unsupported storage type")
	})

	t.Run("all providers registered", func(tt *testing.T) {
		for _, typ := range []Type{Bolt, Redis, DatabaseSQL, Memory} {
			assert.True(tt, IsStorageAvailable(typ), typ)
		}
		assert.Error(tt, RegisterStorage(Memory, func() ServiceStorage { return new(MemoryDB) }))
	})

	t.Run("redis requires an address", func(tt *testing.T) {
		_, err := NewStorage(Redis)
		assert.ErrorContains(tt, err, "address")
	})

	t.Run("bad option type", func(tt *testing.T) {
		_, err := NewStorage(Bolt, Option{ID: BoltDBFilePathOption, Option: 42})
		assert.ErrorContains(tt, err, "unexpected type")
	})
}

func TestProcessSQLOptions(t *testing.T) {
	t.Run("valid", func(tt *testing.T) {
		conn, driver, err := processSQLOptions(
			Option{ID: SQLConnectionString, Option: "host=localhost"},
			Option{ID: SQLDriverName, Option: "postgres"},
		)
		assert.NoError(tt, err)
		assert.Equal(tt, "host=localhost", conn)
		assert.Equal(tt, "postgres", driver)
	})

	t.Run("missing driver", func(tt *testing.T) {
		_, _, err := processSQLOptions(Option{ID: SQLConnectionString, Option: "host=localhost"})
		assert.Error(tt, err)
	})

	t.Run("empty connection string", func(tt *testing.T) {
		_, _, err := processSQLOptions(
			Option{ID: SQLConnectionString, Option: ""},
			Option{ID: SQLDriverName, Option: "postgres"},
		)
		assert.ErrorContains(tt, err, "must not be empty")
	})

	t.Run("wrong type", func(tt *testing.T) {
		_, _, err := processSQLOptions(
			Option{ID: SQLConnectionString, Option: 5},
			Option{ID: SQLDriverName, Option: "postgres"},
		)
		assert.ErrorContains(tt, err, "must be a string")
	})
}

type filterable map[string]any

func (f filterable) FilterVariablesMap() map[string]any {
	return f
}

func TestEvaluator(t *testing.T) {
	declarations, err := filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("state", filtering.TypeString),
	)
	require.NoError(t, err)

	filter, err := filtering.ParseFilter(filterRequest(`state = "REVOKED"`), declarations)
	require.NoError(t, err)

	include, err := Evaluator(filter)
	require.NoError(t, err)
	assert.True(t, include(filterable{"state": "REVOKED"}))
	assert.False(t, include(filterable{"state": "ISSUED"}))

	includeAll, err := Evaluator(filtering.Filter{})
	require.NoError(t, err)
	assert.True(t, includeAll(filterable{"state": "ISSUED"}))
}

type filterRequest string

func (f filterRequest) GetFilter() string {
	return string(f)
}
