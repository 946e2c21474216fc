package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "PORTFOLIOOR"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultListen is the default HTTP listen address.
	DefaultListen = ":8080"

	// DefaultSessionTTL is the default lifetime of a session cookie.
	DefaultSessionTTL = "168h"

	// DefaultGitHubAPIURL is the default GitHub REST API base URL.
	DefaultGitHubAPIURL = "https://api.github.com"

	// DefaultIdentityToolkitURL is the default Identity Toolkit REST base URL.
	DefaultIdentityToolkitURL = "https://identitytoolkit.googleapis.com/v1"

	// DefaultFirebaseJWKSURL serves the public keys for Firebase ID tokens.
	DefaultFirebaseJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

	// DefaultProjectImage is used when no image is configured for a project.
	DefaultProjectImage = "https://images.unsplash.com/photo-1555066931-4365d14bab8c?w=800&q=80"

	// DatabaseDriverSQLite selects the embedded SQLite driver.
	DatabaseDriverSQLite = "sqlite"

	// DatabaseDriverPostgres selects the PostgreSQL driver.
	DatabaseDriverPostgres = "postgres"

	// AuthProviderFirebase selects the Firebase Identity Toolkit provider.
	AuthProviderFirebase = "firebase"

	// AuthProviderLocal selects the built-in email/password provider.
	AuthProviderLocal = "local"
)

// Config is the root configuration for portfolioor.
type Config struct {
	LogLevel string         `yaml:"log_level" mapstructure:"log_level"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Auth     AuthConfig     `yaml:"auth" mapstructure:"auth"`
	GitHub   GitHubConfig   `yaml:"github" mapstructure:"github"`
	Projects ProjectsConfig `yaml:"projects" mapstructure:"projects"`
	Storage  StorageConfig  `yaml:"storage" mapstructure:"storage"`
}

// defaults are registered with viper so that every key is known to it,
// which is what makes environment overrides visible in AllSettings.
var defaults = map[string]any{
	"log_level": DefaultLogLevel,

	"server.listen":                                       DefaultListen,
	"server.cors_origins":                                 []string{},
	"server.handler_timeout":                              "30s",
	"server.rate_limit.enabled":                           true,
	"server.rate_limit.auth.requests_per_minute":          10,
	"server.rate_limit.public.requests_per_minute":        120,
	"server.rate_limit.authenticated.requests_per_minute": 60,

	"database.driver":            DatabaseDriverSQLite,
	"database.sqlite.path":       "portfolioor.db",
	"database.postgres.host":     "localhost",
	"database.postgres.port":     5432,
	"database.postgres.user":     "",
	"database.postgres.password": "",
	"database.postgres.database": "portfolioor",
	"database.postgres.ssl_mode": "disable",

	"auth.session_ttl":                   DefaultSessionTTL,
	"auth.provider":                      AuthProviderLocal,
	"auth.verify":                        true,
	"auth.bootstrap_admin_email":         "",
	"auth.firebase.project_id":           "",
	"auth.firebase.api_key":              "",
	"auth.firebase.identity_toolkit_url": DefaultIdentityToolkitURL,
	"auth.firebase.jwks_url":             DefaultFirebaseJWKSURL,
	"auth.local.secret":                  "",
	"auth.local.issuer":                  "portfolioor",
	"auth.local.token_ttl":               "24h",

	"github.owner":             "",
	"github.token":             "",
	"github.api_url":           DefaultGitHubAPIURL,
	"github.cache_ttl":         "1h",
	"github.profile_cache_ttl": "24h",

	"projects.default_image": DefaultProjectImage,

	"storage.s3.enabled":               false,
	"storage.s3.endpoint_url":          "",
	"storage.s3.region":                "us-east-1",
	"storage.s3.bucket":                "",
	"storage.s3.access_key_id":         "",
	"storage.s3.secret_access_key":     "",
	"storage.s3.force_path_style":      false,
	"storage.s3.presigned_urls.expiry": "1h",
	"storage.local.enabled":            false,
	"storage.local.dir":                "./images",
}

// Load reads the given YAML files in order, each merged over the previous
// one, then applies a .env file (if present) and PORTFOLIOOR_* environment
// overrides on top.
func Load(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	for i, path := range paths {
		v.SetConfigFile(path)

		read := v.MergeInConfig
		if i == 0 {
			read = v.ReadInConfig
		}

		if err := read(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		Result:           &cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.normalize()

	return &cfg, nil
}

// normalize cleans up values that env overrides or YAML may leave in an
// awkward shape.
func (c *Config) normalize() {
	c.Auth.BootstrapAdminEmail = strings.ToLower(strings.TrimSpace(c.Auth.BootstrapAdminEmail))
	c.GitHub.APIURL = strings.TrimRight(c.GitHub.APIURL, "/")
	c.Auth.Firebase.IdentityToolkitURL = strings.TrimRight(c.Auth.Firebase.IdentityToolkitURL, "/")

	origins := make([]string, 0, len(c.Server.CORSOrigins))

	for _, o := range c.Server.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	c.Server.CORSOrigins = origins

	if c.Storage.S3 == nil {
		c.Storage.S3 = &S3Config{}
	}

	if c.Storage.Local == nil {
		c.Storage.Local = &LocalStorageConfig{}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DatabaseDriverSQLite:
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case DatabaseDriverPostgres:
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}

		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q",
			DatabaseDriverSQLite, DatabaseDriverPostgres, c.Database.Driver)
	}

	durations := map[string]string{
		"server.handler_timeout":   c.Server.HandlerTimeout,
		"auth.session_ttl":         c.Auth.SessionTTL,
		"github.cache_ttl":         c.GitHub.CacheTTL,
		"github.profile_cache_ttl": c.GitHub.ProfileCacheTTL,
	}

	if c.Auth.Provider == AuthProviderLocal {
		durations["auth.local.token_ttl"] = c.Auth.Local.TokenTTL
	}

	if c.Storage.S3 != nil && c.Storage.S3.Enabled {
		durations["storage.s3.presigned_urls.expiry"] = c.Storage.S3.PresignedURLs.Expiry
	}

	for key, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
		}

		if d <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}

	switch c.Auth.Provider {
	case AuthProviderFirebase:
		if c.Auth.Firebase.ProjectID == "" {
			return fmt.Errorf("auth.firebase.project_id is required")
		}

		if c.Auth.Firebase.APIKey == "" {
			return fmt.Errorf("auth.firebase.api_key is required")
		}
	case AuthProviderLocal:
		if c.Auth.Local.Secret == "" {
			return fmt.Errorf("auth.local.secret is required")
		}
	default:
		return fmt.Errorf("auth.provider must be %q or %q, got %q",
			AuthProviderFirebase, AuthProviderLocal, c.Auth.Provider)
	}

	if c.Server.RateLimit.Enabled {
		tiers := map[string]int{
			"auth":          c.Server.RateLimit.Auth.RequestsPerMinute,
			"public":        c.Server.RateLimit.Public.RequestsPerMinute,
			"authenticated": c.Server.RateLimit.Authenticated.RequestsPerMinute,
		}

		for name, rpm := range tiers {
			if rpm <= 0 {
				return fmt.Errorf("server.rate_limit.%s.requests_per_minute must be positive", name)
			}
		}
	}

	s3Enabled := c.Storage.S3 != nil && c.Storage.S3.Enabled
	localEnabled := c.Storage.Local != nil && c.Storage.Local.Enabled

	if s3Enabled && localEnabled {
		return fmt.Errorf("storage.s3 and storage.local cannot both be enabled")
	}

	if s3Enabled && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket is required")
	}

	if localEnabled && c.Storage.Local.Dir == "" {
		return fmt.Errorf("storage.local.dir is required")
	}

	for i, p := range c.Projects.Featured {
		if p.Title == "" {
			return fmt.Errorf("projects.featured[%d]: title is required", i)
		}
	}

	return nil
}

// SessionDuration returns the parsed session TTL, falling back to the
// default when unset or invalid.
func (c *AuthConfig) SessionDuration() time.Duration {
	return parseDurationOr(c.SessionTTL, 7*24*time.Hour)
}

// HandlerTimeoutDuration returns the parsed per-request handler timeout.
func (c *ServerConfig) HandlerTimeoutDuration() time.Duration {
	return parseDurationOr(c.HandlerTimeout, 30*time.Second)
}

// CacheDuration returns the parsed repository cache TTL.
func (c *GitHubConfig) CacheDuration() time.Duration {
	return parseDurationOr(c.CacheTTL, time.Hour)
}

// ProfileCacheDuration returns the parsed profile cache TTL.
func (c *GitHubConfig) ProfileCacheDuration() time.Duration {
	return parseDurationOr(c.ProfileCacheTTL, 24*time.Hour)
}

// TokenDuration returns the lifetime of tokens issued by the local provider.
func (c *LocalAuthConfig) TokenDuration() time.Duration {
	return parseDurationOr(c.TokenTTL, 24*time.Hour)
}

// ExpiryDuration returns the lifetime of presigned URLs.
func (c *S3PresignedURLConfig) ExpiryDuration() time.Duration {
	return parseDurationOr(c.Expiry, time.Hour)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}

	return d
}
