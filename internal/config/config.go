// Package config loads service and CLI settings from the environment.
// Every field has an env tag and, where sensible, a default; Load validates
// the result so a misconfigured process fails at startup.
//
// The run policy (import mode, update mode, password handling) is not part
// of this configuration. It travels with each run as core.PolicyOptions.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Upload    UploadConfig
	Directory DirectoryConfig
	Password  PasswordConfig
	Sessions  SessionsConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	History   HistoryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request, upload body included (default: 2m)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"2m"`

	// WriteTimeout is the maximum duration for writing the response (default: 0, bounded by UPLOAD_TIMEOUT)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is how long shutdown waits for the active run (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout applies to every route except uploads (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// TrustedProxies lists CIDRs whose X-Real-IP / X-Forwarded-For headers are honoured
	TrustedProxies []string `env:"SERVER_TRUSTED_PROXIES"`

	// APIKeys, when set, are required in X-API-Key on every /api route
	APIKeys []string `env:"SERVER_API_KEYS"`
}

// DatabaseConfig holds directory database settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies the embedded schema at startup (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// UploadConfig holds run settings shared by all uploads.
type UploadConfig struct {
	// MaxFileSize is the maximum accepted file size in bytes (default: 50MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"52428800"`

	// MaxConcurrent is the number of runs allowed at once (default: 1)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"1"`

	// MaxWaitTime is how long a run waits for the run gate (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds a single run (default: 30m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"30m"`

	// ReportRowLimit caps the rows kept in an HTTP report (default: 5000, 0 keeps all)
	ReportRowLimit int `env:"UPLOAD_REPORT_ROW_LIMIT" default:"5000"`

	Delimiter string `env:"UPLOAD_DELIMITER" default:"comma"`
	Encoding  string `env:"UPLOAD_ENCODING" default:"utf-8"`
}

// DirectoryConfig describes the site the users are uploaded into.
type DirectoryConfig struct {
	// LocalHostID is the host id of local users (default: 1)
	LocalHostID int64 `env:"DIRECTORY_LOCAL_HOST_ID" default:"1"`

	// DefaultAuth is the auth method of created users when neither the row
	// nor the policy defaults name one (default: manual)
	DefaultAuth string `env:"DIRECTORY_DEFAULT_AUTH" default:"manual"`

	// EnabledAuths lists the auth plugins enabled on the site
	EnabledAuths []string `env:"DIRECTORY_ENABLED_AUTHS" default:"manual,nologin,email"`

	// Languages lists the installed interface languages
	Languages []string `env:"DIRECTORY_LANGUAGES" default:"en"`
}

// PasswordConfig holds the password policy and hashing cost.
type PasswordConfig struct {
	MinLength   int `env:"PASSWORD_MIN_LENGTH" default:"8"`
	MinDigits   int `env:"PASSWORD_MIN_DIGITS" default:"1"`
	MinLower    int `env:"PASSWORD_MIN_LOWER" default:"1"`
	MinUpper    int `env:"PASSWORD_MIN_UPPER" default:"1"`
	MinNonAlnum int `env:"PASSWORD_MIN_NON_ALNUM" default:"1"`

	// BcryptCost is kept low for bulk imports (default: 6)
	BcryptCost int `env:"PASSWORD_BCRYPT_COST" default:"6"`
}

// SessionsConfig selects where active sessions are invalidated.
type SessionsConfig struct {
	// Backend is db or redis (default: db)
	Backend string `env:"SESSIONS_BACKEND" default:"db"`

	// RedisURL is required for the redis backend
	RedisURL string `env:"SESSIONS_REDIS_URL"`

	KeyPrefix string `env:"SESSIONS_KEY_PREFIX" default:"session"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" default:"true"`
	Path    string `env:"METRICS_PATH" default:"/metrics"`
}

// HistoryConfig holds run history retention settings.
type HistoryConfig struct {
	// RetentionDays is how long run summaries are kept (default: 90)
	RetentionDays int `env:"HISTORY_RETENTION_DAYS" default:"90"`

	// CheckInterval is how often old runs are purged (default: 24h)
	CheckInterval time.Duration `env:"HISTORY_CHECK_INTERVAL" default:"24h"`
}

// Retention returns the retention window as a duration.
func (c HistoryConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
