package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	config, err := loadConfig(ConfigFileName, nil)
	assert.NoError(t, err)
	assert.NotEmpty(t, config)

	assert.False(t, config.Server.ReadTimeout.String() == "")
	assert.False(t, config.Server.WriteTimeout.String() == "")
	assert.False(t, config.Server.ShutdownTimeout.String() == "")
	assert.False(t, config.Server.APIHost == "")

	assert.NotEmpty(t, config.Services.Storage.Provider)
	require.Len(t, config.Services.Issuers, 1)

	issuer := config.Services.Issuers[0]
	assert.Equal(t, "default", issuer.Name)
	assert.Equal(t, 5*time.Minute, issuer.PreAuthorizedCodeExpiration)
	assert.Equal(t, filepath.Join("issuers", "default.json"), issuer.MetadataPath)
	assert.Contains(t, issuer.StatusLists, "PID")
	assert.Equal(t, "status-list-token", issuer.StatusLists["PID"].Token)
}

func TestDefaultConfig(t *testing.T) {
	config, err := loadConfig("", nil)
	require.NoError(t, err)
	require.NotEmpty(t, config)

	assert.Equal(t, EnvironmentDev, config.Server.Environment)
	assert.Equal(t, "0.0.0.0:3000", config.Server.APIHost)
	assert.Equal(t, 60*time.Second, config.Server.SweepInterval)
	require.Len(t, config.Services.Issuers, 1)
	assert.Equal(t, DefaultBaseURL, config.Services.Issuers[0].BaseURL)
}

func TestConfigBadExtension(t *testing.T) {
	_, err := loadConfig("config.yaml", nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "did not match the expected TOML format")
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv(LogService.String(), "https://logs.example.com/ingest")
	t.Setenv(LogUser.String(), "user")
	t.Setenv(KeyPassword.String(), "from-env")

	config, err := loadConfig(ConfigFileName, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://logs.example.com/ingest", config.Services.Audit.URL)
	assert.Equal(t, "user", config.Services.Audit.User)
	assert.Equal(t, "from-env", config.Services.Keys.Password)
}

func TestConfigEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LOG_PASSWORD=secret-from-file\n"), 0600))
	t.Setenv(EnvPath.String(), envFile)
	t.Cleanup(func() { _ = os.Unsetenv(LogPassword.String()) })

	config, err := loadConfig(ConfigFileName, nil)
	require.NoError(t, err)
	assert.Equal(t, "secret-from-file", config.Services.Audit.Password)
}

func TestIssuerConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		issuer  IssuerConfig
		wantErr string
	}{
		{
			name:    "missing name",
			issuer:  IssuerConfig{BaseURL: "http://localhost"},
			wantErr: "issuer name is required",
		},
		{
			name:    "missing base url",
			issuer:  IssuerConfig{Name: "a"},
			wantErr: "base_url is required",
		},
		{
			name:    "bad scheme",
			issuer:  IssuerConfig{Name: "a", BaseURL: "ftp://localhost"},
			wantErr: "must be an http(s) url",
		},
		{
			name: "status list without url",
			issuer: IssuerConfig{Name: "a", BaseURL: "https://localhost", StatusLists: map[string]StatusListConfig{
				"PID": {Revoke: "https://status/revoke"},
			}},
			wantErr: "has no url",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.issuer.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.NoError(t, IssuerConfig{Name: "a", BaseURL: "https://localhost/a"}.Validate())
}
