package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ardanlabs/conf"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/oid4vci-issuer/pkg/storage"
)

const (
	DefaultConfigPath = "config/dev.toml"
	DefaultEnvPath    = "config/.env"
	ConfigFileName    = "dev.toml"
	ServiceName       = "oid4vci-issuer"
	ServiceVersion    = "0.1.0"
	ConfigExtension   = ".toml"

	// conf namespace for env overrides, e.g. ISSUER_SERVER_API_HOST
	confNamespace = "ISSUER"

	DefaultBaseURL = "http://localhost:3000"
)

type (
	Environment string
	EnvVar      string
)

const (
	EnvironmentDev  Environment = "dev"
	EnvironmentTest Environment = "test"
	EnvironmentProd Environment = "prod"

	ConfigPath  EnvVar = "CONFIG_PATH"
	EnvPath     EnvVar = "ENV_PATH"
	KeyPassword EnvVar = "KEY_PASSWORD"
	LogService  EnvVar = "LOG_SERVICE"
	LogUser     EnvVar = "LOG_USER"
	LogPassword EnvVar = "LOG_PASSWORD"
)

func (e EnvVar) String() string {
	return string(e)
}

type IssuerServiceConfig struct {
	conf.Version
	Server   ServerConfig   `toml:"server"`
	Services ServicesConfig `toml:"services"`
}

// ServerConfig represents configurable properties for the HTTP server
type ServerConfig struct {
	Environment        Environment   `toml:"env" conf:"default:dev"`
	APIHost            string        `toml:"api_host" conf:"default:0.0.0.0:3000"`
	JagerHost          string        `toml:"jager_host" conf:"default:http://jaeger:14268/api/traces"`
	JagerEnabled       bool          `toml:"jager_enabled" conf:"default:false"`
	ReadTimeout        time.Duration `toml:"read_timeout" conf:"default:5s"`
	WriteTimeout       time.Duration `toml:"write_timeout" conf:"default:5s"`
	ShutdownTimeout    time.Duration `toml:"shutdown_timeout" conf:"default:5s"`
	LogLocation        string        `toml:"log_location" conf:"default:log"`
	LogLevel           string        `toml:"log_level" conf:"default:debug"`
	EnableAllowAllCORS bool          `toml:"enable_allow_all_cors" conf:"default:false"`
	SweepInterval      time.Duration `toml:"sweep_interval" conf:"default:60s"`
}

// ServicesConfig represents configurable properties for the components of the issuer service
type ServicesConfig struct {
	Storage  StorageConfig    `toml:"storage"`
	Keys     KeyServiceConfig `toml:"keys"`
	Audit    AuditConfig      `toml:"audit"`
	Contexts ContextConfig    `toml:"contexts"`
	Issuers  []IssuerConfig   `toml:"issuers"`
}

// StorageConfig selects a single storage provider shared by every issuer instance.
type StorageConfig struct {
	Provider string           `toml:"provider"`
	Options  []storage.Option `toml:"options"`
	// Encrypts every value at rest using the external KMS configured in [services.keys].
	EncryptAll bool `toml:"encrypt_all"`
}

// KeyServiceConfig configures how issuer signing keys are protected at rest.
type KeyServiceConfig struct {
	// Password is salted and run through a KDF whose output key encrypts the issuer keys.
	Password string `toml:"password"`

	// The URI for the master key. We use tink for envelope encryption as described in https://github.com/google/tink/blob/9bc2667963e20eb42611b7581e570f0dddf65a2b/docs/KEY-MANAGEMENT.md#key-management-with-tink
	// When left empty, the password KDF is used.
	MasterKeyURI string `toml:"master_key_uri"`

	// Path for credentials. Required when MasterKeyURI is set. More info at https://github.com/google/tink/blob/9bc2667963e20eb42611b7581e570f0dddf65a2b/docs/KEY-MANAGEMENT.md#credentials
	KMSCredentialsPath string `toml:"kms_credentials_path"`
}

func (k KeyServiceConfig) GetMasterKeyURI() string {
	return k.MasterKeyURI
}

func (k KeyServiceConfig) GetKMSCredentialsPath() string {
	return k.KMSCredentialsPath
}

func (k KeyServiceConfig) EncryptionEnabled() bool {
	return k.MasterKeyURI != ""
}

// AuditConfig points at an external log ingestion service. Events are only logged locally when URL is empty.
type AuditConfig struct {
	URL      string `toml:"url"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

func (a AuditConfig) IsEmpty() bool {
	return reflect.DeepEqual(a, AuditConfig{})
}

// ContextConfig holds JSON-LD context documents served by the issuer.
type ContextConfig struct {
	Path string `toml:"path"`
}

// StatusListConfig is the status-list service endpoint set for one credential configuration.
type StatusListConfig struct {
	URL    string `toml:"url" json:"url"`
	Revoke string `toml:"revoke" json:"revoke"`
	Token  string `toml:"token" json:"token"`
}

// IssuerConfig represents a single issuer instance mounted at the path of its base URL.
type IssuerConfig struct {
	Name                    string `toml:"name"`
	BaseURL                 string `toml:"base_url"`
	AdminToken              string `toml:"admin_token"`
	ClientID                string `toml:"client_id"`
	ClientSecret            string `toml:"client_secret"`
	AuthorizationEndpoint   string `toml:"authorization_endpoint"`
	TokenEndpoint           string `toml:"token_endpoint"`
	EnableCreateCredentials bool   `toml:"enable_create_credentials"`

	// RFC 7662 endpoint that admin bearer tokens other than AdminToken are checked against, authenticating with the
	// client credentials above at IntrospectionTokenURL.
	IntrospectionEndpoint string `toml:"introspection_endpoint"`
	IntrospectionTokenURL string `toml:"introspection_token_url"`

	// Ed25519 or Secp256r1
	KeyType string `toml:"key_type"`

	MetadataPath                 string `toml:"metadata_path"`
	CredentialConfigurationsPath string `toml:"credential_configurations_path"`

	StatusLists map[string]StatusListConfig `toml:"status_lists"`

	PreAuthorizedCodeExpiration time.Duration `toml:"pre_authorized_code_expiration"`
	TokenExpiresIn              time.Duration `toml:"token_expires_in"`
	CNonceExpiresIn             time.Duration `toml:"c_nonce_expires_in"`
	SessionTTL                  time.Duration `toml:"session_ttl"`
	NonceTTL                    time.Duration `toml:"nonce_ttl"`
}

func (i IssuerConfig) IsEmpty() bool {
	return reflect.DeepEqual(i, IssuerConfig{})
}

// Validate checks the constraints that must hold before an issuer instance can be constructed.
func (i IssuerConfig) Validate() error {
	if i.Name == "" {
		return errors.New("issuer name is required")
	}
	if i.BaseURL == "" {
		return errors.Errorf("issuer<%s> base_url is required", i.Name)
	}
	if !strings.HasPrefix(i.BaseURL, "http://") && !strings.HasPrefix(i.BaseURL, "https://") {
		return errors.Errorf("issuer<%s> base_url must be an http(s) url", i.Name)
	}
	if i.IntrospectionEndpoint != "" && i.IntrospectionTokenURL == "" {
		return errors.Errorf("issuer<%s> introspection_endpoint needs an introspection_token_url", i.Name)
	}
	for id, sl := range i.StatusLists {
		if sl.URL == "" {
			return errors.Errorf("issuer<%s> status list for %s has no url", i.Name, id)
		}
	}
	return nil
}

// LoadConfig attempts to load a TOML config file from the given path, and coerce it into our object model.
// Before loading, defaults are applied on certain properties, which are overwritten if specified in the TOML file.
func LoadConfig(path string) (*IssuerServiceConfig, error) {
	return loadConfig(path, os.Args[1:])
}

func loadConfig(path string, args []string) (*IssuerServiceConfig, error) {
	loadEnvFile()

	// no path, load default config
	defaultConfig := false
	if path == "" {
		logrus.Info("no config path provided, loading default config...")
		defaultConfig = true
	} else if filepath.Ext(path) != ConfigExtension {
		return nil, fmt.Errorf("path<%s> did not match the expected TOML format", path)
	}

	// create the config object
	var config IssuerServiceConfig

	// parse and apply defaults
	if err := conf.Parse(args, confNamespace, &config); err != nil {
		switch {
		case errors.Is(err, conf.ErrHelpWanted):
			usage, err := conf.Usage(confNamespace, &config)
			if err != nil {
				return nil, errors.Wrap(err, "parsing config")
			}
			fmt.Println(usage)
			return nil, nil

		case errors.Is(err, conf.ErrVersionWanted):
			version, err := conf.VersionString(confNamespace, &config)
			if err != nil {
				return nil, errors.Wrap(err, "generating config version")
			}
			fmt.Println(version)
			return nil, nil
		}

		return nil, errors.Wrap(err, "parsing config")
	}

	if defaultConfig {
		config.Services = ServicesConfig{
			Storage: StorageConfig{Provider: storage.Bolt.String()},
			Keys:    KeyServiceConfig{Password: "default-password"},
			Issuers: []IssuerConfig{{
				Name:                    "default",
				BaseURL:                 DefaultBaseURL,
				EnableCreateCredentials: true,
				KeyType:                 "Ed25519",
			}},
		}
	} else {
		// load from TOML file
		if _, err := toml.DecodeFile(path, &config); err != nil {
			return nil, errors.Wrapf(err, "could not load config: %s", path)
		}
		// resolve file paths relative to the config file
		base := filepath.Dir(path)
		for i := range config.Services.Issuers {
			config.Services.Issuers[i].MetadataPath = relativeTo(base, config.Services.Issuers[i].MetadataPath)
			config.Services.Issuers[i].CredentialConfigurationsPath = relativeTo(base, config.Services.Issuers[i].CredentialConfigurationsPath)
		}
		config.Services.Contexts.Path = relativeTo(base, config.Services.Contexts.Path)
	}

	applyEnvOverrides(&config)

	for _, issuer := range config.Services.Issuers {
		if err := issuer.Validate(); err != nil {
			return nil, errors.Wrap(err, "validating issuer config")
		}
	}
	return &config, nil
}

// loadEnvFile reads a .env file into the process environment when one exists. Existing variables win.
func loadEnvFile() {
	envPath := DefaultEnvPath
	if p, ok := os.LookupEnv(EnvPath.String()); ok {
		envPath = p
	}
	if _, err := os.Stat(envPath); err != nil {
		return
	}
	if err := godotenv.Load(envPath); err != nil {
		logrus.WithError(err).Warnf("could not load env file: %s", envPath)
	}
}

func applyEnvOverrides(config *IssuerServiceConfig) {
	if v, ok := os.LookupEnv(KeyPassword.String()); ok && v != "" {
		config.Services.Keys.Password = v
	}
	if v, ok := os.LookupEnv(LogService.String()); ok && v != "" {
		config.Services.Audit.URL = v
	}
	if v, ok := os.LookupEnv(LogUser.String()); ok && v != "" {
		config.Services.Audit.User = v
	}
	if v, ok := os.LookupEnv(LogPassword.String()); ok && v != "" {
		config.Services.Audit.Password = v
	}
}

func relativeTo(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
