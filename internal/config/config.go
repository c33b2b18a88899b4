// Package config loads and validates the fleet admin configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the AMIGA_ prefix (e.g., AMIGA_DATABASE_HOST
// overrides database.host in the YAML), so the same binary runs with a config.yaml on a
// workstation and with pure environment variables in a container. cmd/server loads a
// .env file into the process environment before Load is called.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// MaxUploadMB caps multipart document uploads
	MaxUploadMB int `mapstructure:"max_upload_mb"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// StorageConfig selects the object storage backend for uploaded documents and audit archives
type StorageConfig struct {
	DefaultBackend string             `mapstructure:"default_backend"`
	Azure          AzureStorageConfig `mapstructure:"azure"`
	S3             S3StorageConfig    `mapstructure:"s3"`
	GCS            GCSStorageConfig   `mapstructure:"gcs"`
	Local          LocalStorageConfig `mapstructure:"local"`
}

// AzureStorageConfig holds Azure Blob Storage configuration
type AzureStorageConfig struct {
	AccountName   string `mapstructure:"account_name"`
	AccountKey    string `mapstructure:"account_key"`
	ContainerName string `mapstructure:"container_name"`
}

// S3StorageConfig holds S3-compatible storage configuration
type S3StorageConfig struct {
	// Endpoint is an S3-compatible endpoint URL (MinIO, Spaces); empty for AWS
	Endpoint string `mapstructure:"endpoint"`
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`

	// AuthMethod: "default" (AWS credential chain), "static" (access key pair) or
	// "assume_role" (STS, optionally with an external ID)
	AuthMethod string `mapstructure:"auth_method"`

	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	RoleARN         string `mapstructure:"role_arn"`
	RoleSessionName string `mapstructure:"role_session_name"`
	ExternalID      string `mapstructure:"external_id"`
}

// GCSStorageConfig holds Google Cloud Storage configuration
type GCSStorageConfig struct {
	Bucket string `mapstructure:"bucket"`
	// CredentialsFile or CredentialsJSON select a service account key; both empty means
	// Application Default Credentials
	CredentialsFile string `mapstructure:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json"`
	// Endpoint is an optional custom endpoint (fake-gcs-server in development)
	Endpoint string `mapstructure:"endpoint"`
}

// LocalStorageConfig holds local filesystem storage configuration
type LocalStorageConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// RedisConfig holds the shared Redis connection used by the distributed rate limiter.
// An empty Addr disables Redis entirely.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	// TokenExpiry is the lifetime of issued JWTs
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
	// BcryptCost is the work factor for new password hashes
	BcryptCost int `mapstructure:"bcrypt_cost"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// AuditConfig holds audit trail configuration
type AuditConfig struct {
	// Enabled turns request interception on; explicit change logging is unaffected
	Enabled bool `mapstructure:"enabled"`
	// PathPrefix bounds interception (e.g. "/api"); the action table is keyed relative to it
	PathPrefix string `mapstructure:"path_prefix"`
	// SkipPaths are exact request paths under the prefix that are never audited
	SkipPaths []string `mapstructure:"skip_paths"`
	// MaxBodyBytes caps how much of each request and response body is captured
	MaxBodyBytes int `mapstructure:"max_body_bytes"`
	// PersistTimeout bounds one asynchronous insert
	PersistTimeout time.Duration `mapstructure:"persist_timeout"`
	// Shippers configures external destinations for audit records
	Shippers []AuditShipperConfig `mapstructure:"shippers"`
}

// AuditShipperConfig holds configuration for a single audit shipper
type AuditShipperConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Type is one of webhook, file, redis, archive
	Type    string              `mapstructure:"type"`
	Webhook *AuditWebhookConfig `mapstructure:"webhook"`
	File    *AuditFileConfig    `mapstructure:"file"`
	Redis   *AuditRedisConfig   `mapstructure:"redis"`
	Archive *AuditArchiveConfig `mapstructure:"archive"`
}

// AuditWebhookConfig holds webhook shipper configuration
type AuditWebhookConfig struct {
	URL           string            `mapstructure:"url"`
	Headers       map[string]string `mapstructure:"headers"`
	TimeoutSecs   int               `mapstructure:"timeout_secs"`
	BatchSize     int               `mapstructure:"batch_size"`
	FlushInterval int               `mapstructure:"flush_interval_secs"`
}

// AuditFileConfig holds file shipper configuration
type AuditFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// AuditRedisConfig holds Redis stream shipper configuration. An empty Addr reuses the
// top-level redis connection settings.
type AuditRedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// AuditArchiveConfig holds object-storage archive shipper configuration
type AuditArchiveConfig struct {
	Prefix string `mapstructure:"prefix"`
}

// JobsConfig holds background job configuration
type JobsConfig struct {
	AlertEscalation AlertEscalationConfig `mapstructure:"alert_escalation"`
}

// AlertEscalationConfig controls the job that raises the priority of pending alerts whose
// due date is approaching
type AlertEscalationConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	DaysAhead int           `mapstructure:"days_ahead"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// AutomaticEnv() alone does not reach nested keys during Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.base_url",
		"server.read_timeout",
		"server.write_timeout",
		"server.max_upload_mb",

		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Storage
		"storage.default_backend",
		"storage.azure.account_name",
		"storage.azure.account_key",
		"storage.azure.container_name",
		"storage.s3.endpoint",
		"storage.s3.region",
		"storage.s3.bucket",
		"storage.s3.auth_method",
		"storage.s3.access_key_id",
		"storage.s3.secret_access_key",
		"storage.s3.role_arn",
		"storage.s3.role_session_name",
		"storage.s3.external_id",
		"storage.gcs.bucket",
		"storage.gcs.credentials_file",
		"storage.gcs.credentials_json",
		"storage.gcs.endpoint",
		"storage.local.base_path",

		// Redis
		"redis.addr",
		"redis.password",
		"redis.db",

		// Auth
		"auth.token_expiry",
		"auth.bcrypt_cost",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",

		// Audit
		"audit.enabled",
		"audit.path_prefix",
		"audit.skip_paths",
		"audit.max_body_bytes",
		"audit.persist_timeout",

		// Jobs
		"jobs.alert_escalation.enabled",
		"jobs.alert_escalation.interval",
		"jobs.alert_escalation.days_ahead",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/amiga")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment only
	}

	v.SetEnvPrefix("AMIGA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Secrets may reference other variables as ${VAR}
	cfg.Database.Password = os.ExpandEnv(cfg.Database.Password)
	cfg.Redis.Password = os.ExpandEnv(cfg.Redis.Password)
	cfg.Storage.Azure.AccountKey = os.ExpandEnv(cfg.Storage.Azure.AccountKey)
	cfg.Storage.S3.AccessKeyID = os.ExpandEnv(cfg.Storage.S3.AccessKeyID)
	cfg.Storage.S3.SecretAccessKey = os.ExpandEnv(cfg.Storage.S3.SecretAccessKey)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.base_url", "http://localhost:3001")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.max_upload_mb", 25)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "amiga")
	v.SetDefault("database.user", "amiga")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	v.SetDefault("storage.default_backend", "local")
	v.SetDefault("storage.local.base_path", "./uploads")
	v.SetDefault("storage.s3.auth_method", "default")

	v.SetDefault("auth.token_expiry", "24h")
	v.SetDefault("auth.bcrypt_cost", 12)

	v.SetDefault("security.cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 300)
	v.SetDefault("security.rate_limiting.burst", 50)
	v.SetDefault("security.tls.enabled", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.path_prefix", "/api")
	v.SetDefault("audit.skip_paths", []string{"/api/health"})
	v.SetDefault("audit.max_body_bytes", 64*1024)
	v.SetDefault("audit.persist_timeout", "5s")

	v.SetDefault("jobs.alert_escalation.enabled", true)
	v.SetDefault("jobs.alert_escalation.interval", "1h")
	v.SetDefault("jobs.alert_escalation.days_ahead", 7)
}

var (
	validShipperTypes = map[string]bool{"webhook": true, "file": true, "redis": true, "archive": true}
	validLogLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
)

// Validate reports every configuration problem at once, joined into a single error.
func (c *Config) Validate() error {
	var errs []error
	for _, check := range []func() []error{
		c.validateServer,
		c.validateDatabase,
		c.validateStorage,
		c.validateSecurity,
		c.validateAudit,
		c.validateJobs,
	} {
		errs = append(errs, check()...)
	}
	if !validLogLevels[c.Logging.Level] {
		errs = append(errs, fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level))
	}
	return errors.Join(errs...)
}

func (c *Config) validateServer() (errs []error) {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d", c.Server.Port))
	}
	if c.Server.BaseURL == "" {
		errs = append(errs, errors.New("server.base_url is required"))
	}
	return errs
}

func (c *Config) validateDatabase() (errs []error) {
	for key, val := range map[string]string{
		"database.host": c.Database.Host,
		"database.name": c.Database.Name,
		"database.user": c.Database.User,
	} {
		if val == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}
	return errs
}

func (c *Config) validateStorage() []error {
	st := c.Storage
	switch st.DefaultBackend {
	case "local":
		if st.Local.BasePath == "" {
			return []error{errors.New("storage.local.base_path is required when using local backend")}
		}
	case "azure":
		if st.Azure.AccountName == "" || st.Azure.AccountKey == "" || st.Azure.ContainerName == "" {
			return []error{errors.New("storage.azure.account_name, account_key and container_name are required when using Azure backend")}
		}
	case "s3":
		var errs []error
		if st.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket is required when using S3 backend"))
		}
		if st.S3.Region == "" {
			errs = append(errs, errors.New("storage.s3.region is required when using S3 backend"))
		}
		return errs
	case "gcs":
		if st.GCS.Bucket == "" {
			return []error{errors.New("storage.gcs.bucket is required when using GCS backend")}
		}
	default:
		return []error{fmt.Errorf("invalid storage backend: %s (must be azure, s3, gcs, or local)", st.DefaultBackend)}
	}
	return nil
}

func (c *Config) validateSecurity() (errs []error) {
	tls := c.Security.TLS
	if tls.Enabled && tls.CertFile == "" {
		errs = append(errs, errors.New("security.tls.cert_file is required when TLS is enabled"))
	}
	if tls.Enabled && tls.KeyFile == "" {
		errs = append(errs, errors.New("security.tls.key_file is required when TLS is enabled"))
	}
	return errs
}

func (c *Config) validateAudit() (errs []error) {
	a := c.Audit
	if a.PathPrefix != "" && !strings.HasPrefix(a.PathPrefix, "/") {
		errs = append(errs, fmt.Errorf("audit.path_prefix must start with '/': %q", a.PathPrefix))
	}
	if a.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("audit.max_body_bytes must not be negative"))
	}
	for i, s := range a.Shippers {
		if !validShipperTypes[s.Type] {
			errs = append(errs, fmt.Errorf("audit.shippers[%d]: unknown type %q (must be webhook, file, redis, or archive)", i, s.Type))
		}
	}
	return errs
}

func (c *Config) validateJobs() []error {
	if j := c.Jobs.AlertEscalation; j.Enabled && j.Interval <= 0 {
		return []error{errors.New("jobs.alert_escalation.interval must be positive when the job is enabled")}
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
