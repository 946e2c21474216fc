package config

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Listen         string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins    []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	HandlerTimeout string          `yaml:"handler_timeout,omitempty" mapstructure:"handler_timeout"`
	RateLimit      RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	Auth          RateLimitTier `yaml:"auth,omitempty" mapstructure:"auth"`
	Public        RateLimitTier `yaml:"public,omitempty" mapstructure:"public"`
	Authenticated RateLimitTier `yaml:"authenticated,omitempty" mapstructure:"authenticated"`
}

// RateLimitTier defines request limits for a specific tier.
type RateLimitTier struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	SessionTTL string `yaml:"session_ttl" mapstructure:"session_ttl"`

	// Provider selects the identity provider: "firebase" or "local".
	Provider string `yaml:"provider" mapstructure:"provider"`

	// Verify controls whether ID token signatures are checked. Only
	// disable it for local development.
	Verify bool `yaml:"verify" mapstructure:"verify"`

	// BootstrapAdminEmail is granted the admin role when its user record
	// is provisioned, and promoted at startup if it already exists.
	BootstrapAdminEmail string `yaml:"bootstrap_admin_email,omitempty" mapstructure:"bootstrap_admin_email"`

	Firebase FirebaseAuthConfig `yaml:"firebase,omitempty" mapstructure:"firebase"`
	Local    LocalAuthConfig    `yaml:"local,omitempty" mapstructure:"local"`
}

// FirebaseAuthConfig configures the Firebase Identity Toolkit provider.
type FirebaseAuthConfig struct {
	ProjectID          string `yaml:"project_id" mapstructure:"project_id"`
	APIKey             string `yaml:"api_key" mapstructure:"api_key"`
	IdentityToolkitURL string `yaml:"identity_toolkit_url,omitempty" mapstructure:"identity_toolkit_url"`
	JWKSURL            string `yaml:"jwks_url,omitempty" mapstructure:"jwks_url"`
}

// LocalAuthConfig configures the built-in email/password provider.
type LocalAuthConfig struct {
	Secret   string `yaml:"secret" mapstructure:"secret"`
	Issuer   string `yaml:"issuer,omitempty" mapstructure:"issuer"`
	TokenTTL string `yaml:"token_ttl,omitempty" mapstructure:"token_ttl"`
}

// GitHubConfig configures the repository source for the project list.
type GitHubConfig struct {
	Owner           string `yaml:"owner" mapstructure:"owner"`
	Token           string `yaml:"token,omitempty" mapstructure:"token"`
	APIURL          string `yaml:"api_url,omitempty" mapstructure:"api_url"`
	CacheTTL        string `yaml:"cache_ttl,omitempty" mapstructure:"cache_ttl"`
	ProfileCacheTTL string `yaml:"profile_cache_ttl,omitempty" mapstructure:"profile_cache_ttl"`
}

// ProjectsConfig controls how repositories are presented.
type ProjectsConfig struct {
	// Featured is served when the repository API is unavailable.
	Featured []FeaturedProject `yaml:"featured,omitempty" mapstructure:"featured"`

	// Images and LiveURLs are keyed by normalized repository name
	// (lower-case, without spaces, dashes or underscores).
	Images   map[string]string `yaml:"images,omitempty" mapstructure:"images"`
	LiveURLs map[string]string `yaml:"live_urls,omitempty" mapstructure:"live_urls"`

	// LanguageImages is the fallback image per primary language.
	LanguageImages map[string]string `yaml:"language_images,omitempty" mapstructure:"language_images"`
	DefaultImage   string            `yaml:"default_image,omitempty" mapstructure:"default_image"`
}

// FeaturedProject is a statically configured project entry.
type FeaturedProject struct {
	Title       string   `yaml:"title" mapstructure:"title"`
	Description string   `yaml:"description" mapstructure:"description"`
	Image       string   `yaml:"image,omitempty" mapstructure:"image"`
	Category    string   `yaml:"category" mapstructure:"category"`
	Tags        []string `yaml:"tags,omitempty" mapstructure:"tags"`
	URL         string   `yaml:"url,omitempty" mapstructure:"url"`
	LiveURL     string   `yaml:"live_url,omitempty" mapstructure:"live_url"`
}

// StorageConfig contains image storage settings. Only one backend
// (S3 or local) may be enabled at a time.
type StorageConfig struct {
	S3    *S3Config           `yaml:"s3,omitempty" mapstructure:"s3"`
	Local *LocalStorageConfig `yaml:"local,omitempty" mapstructure:"local"`
}

// LocalStorageConfig stores uploaded images in a directory on disk.
type LocalStorageConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir     string `yaml:"dir" mapstructure:"dir"`
}

// S3Config contains S3 settings for presigned image URLs.
type S3Config struct {
	Enabled         bool                 `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string               `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string               `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string               `yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string               `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string               `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool                 `yaml:"force_path_style" mapstructure:"force_path_style"`
	PresignedURLs   S3PresignedURLConfig `yaml:"presigned_urls,omitempty" mapstructure:"presigned_urls"`
}

// S3PresignedURLConfig contains presigned URL generation settings.
type S3PresignedURLConfig struct {
	Expiry string `yaml:"expiry,omitempty" mapstructure:"expiry"`
}
