package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/oid4vci-issuer/config"
	"github.com/tbd54566975/oid4vci-issuer/pkg/storage"
)

func testServicesConfig(t *testing.T) config.ServicesConfig {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "PID.json"),
		[]byte(`{"format":"jwt_vc_json","credential_definition":{"type":["VerifiableCredential","PID"]}}`), 0o600))
	return config.ServicesConfig{
		Storage: config.StorageConfig{Provider: storage.Memory.String()},
		Keys:    config.KeyServiceConfig{Password: "test-password"},
		Issuers: []config.IssuerConfig{
			{Name: "a", BaseURL: "https://issuer.example.com/a", CredentialConfigurationsPath: dir},
			{Name: "b", BaseURL: "https://issuer.example.com/b", KeyType: "Secp256r1", CredentialConfigurationsPath: dir},
		},
	}
}

func TestInstantiateIssuerService(t *testing.T) {
	ctx := context.Background()

	t.Run("every issuer gets its own identity", func(tt *testing.T) {
		cfg := testServicesConfig(tt)
		service, err := InstantiateIssuerService(ctx, cfg)
		require.NoError(tt, err)
		defer func() { _ = service.Close() }()

		require.Len(tt, service.Issuers, 2)
		a, ok := service.Issuer("a")
		require.True(tt, ok)
		b, ok := service.Issuer("b")
		require.True(tt, ok)
		assert.NotEqual(tt, a.DID(), b.DID())
		assert.Equal(tt, "/a", a.BasePath())
		assert.True(tt, a.Metadata().IsSupported("PID"))

		_, ok = service.Issuer("c")
		assert.False(tt, ok)

		assert.Len(tt, service.GetServices(), 5)
		for _, s := range service.GetServices() {
			assert.True(tt, s.Status().IsReady(), s.Type())
		}
	})

	t.Run("encrypting everything", func(tt *testing.T) {
		cfg := testServicesConfig(tt)
		cfg.Storage.EncryptAll = true
		service, err := InstantiateIssuerService(ctx, cfg)
		require.NoError(tt, err)
		assert.IsType(tt, &storage.EncryptedWrapper{}, service.Storage())
	})

	t.Run("invalid configurations", func(tt *testing.T) {
		tests := map[string]func(cfg *config.ServicesConfig){
			"unknown storage": func(cfg *config.ServicesConfig) { cfg.Storage.Provider = "cassette" },
			"no key password": func(cfg *config.ServicesConfig) { cfg.Keys = config.KeyServiceConfig{} },
			"no issuers":      func(cfg *config.ServicesConfig) { cfg.Issuers = nil },
			"duplicate name":  func(cfg *config.ServicesConfig) { cfg.Issuers[1].Name = "a" },
			"shared base path": func(cfg *config.ServicesConfig) {
				cfg.Issuers[1].BaseURL = "https://other.example.com/a/"
			},
			"unsupported key type": func(cfg *config.ServicesConfig) { cfg.Issuers[0].KeyType = "RSA" },
		}
		for name, mutate := range tests {
			cfg := testServicesConfig(tt)
			mutate(&cfg)
			_, err := InstantiateIssuerService(ctx, cfg)
			assert.Error(tt, err, name)
		}
	})
}
