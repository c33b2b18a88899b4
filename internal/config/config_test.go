package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// DatabaseConfig.GetDSN / ServerConfig.GetAddress
// ---------------------------------------------------------------------------

func TestGetDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.fleet.internal",
		Port:     5433,
		User:     "amiga",
		Password: "secret",
		Name:     "amiga",
		SSLMode:  "require",
	}
	want := "host=db.fleet.internal port=5433 user=amiga password=secret dbname=amiga sslmode=require"
	if got := cfg.GetDSN(); got != want {
		t.Errorf("GetDSN() = %q, want %q", got, want)
	}
}

func TestGetAddress(t *testing.T) {
	cfg := ServerConfig{Host: "0.0.0.0", Port: 3001}
	if got := cfg.GetAddress(); got != "0.0.0.0:3001" {
		t.Errorf("GetAddress() = %q, want 0.0.0.0:3001", got)
	}
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func minimalValidConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: 3001, BaseURL: "http://localhost:3001"},
		Database: DatabaseConfig{Host: "localhost", Name: "amiga", User: "amiga"},
		Storage:  StorageConfig{DefaultBackend: "local", Local: LocalStorageConfig{BasePath: "./uploads"}},
		Logging:  LoggingConfig{Level: "info"},
		Audit:    AuditConfig{Enabled: true, PathPrefix: "/api"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "minimal config is valid", mutate: func(*Config) {}},
		{name: "port zero", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "invalid server port"},
		{name: "port too large", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "invalid server port"},
		{name: "missing base url", mutate: func(c *Config) { c.Server.BaseURL = "" }, wantErr: "server.base_url"},
		{name: "missing database host", mutate: func(c *Config) { c.Database.Host = "" }, wantErr: "database.host"},
		{name: "missing database name", mutate: func(c *Config) { c.Database.Name = "" }, wantErr: "database.name"},
		{name: "missing database user", mutate: func(c *Config) { c.Database.User = "" }, wantErr: "database.user"},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.DefaultBackend = "ftp" }, wantErr: "invalid storage backend"},
		{name: "local without path", mutate: func(c *Config) { c.Storage.Local.BasePath = "" }, wantErr: "base_path"},
		{
			name:    "s3 without region",
			mutate:  func(c *Config) { c.Storage.DefaultBackend = "s3"; c.Storage.S3.Bucket = "docs" },
			wantErr: "storage.s3.region",
		},
		{
			name: "s3 complete",
			mutate: func(c *Config) {
				c.Storage.DefaultBackend = "s3"
				c.Storage.S3 = S3StorageConfig{Bucket: "docs", Region: "eu-west-1"}
			},
		},
		{
			name:    "azure incomplete",
			mutate:  func(c *Config) { c.Storage.DefaultBackend = "azure"; c.Storage.Azure.AccountName = "fleet" },
			wantErr: "storage.azure",
		},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Storage.DefaultBackend = "gcs" }, wantErr: "storage.gcs.bucket"},
		{name: "tls without cert", mutate: func(c *Config) { c.Security.TLS.Enabled = true }, wantErr: "cert_file"},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "trace" }, wantErr: "invalid logging level"},
		{name: "relative audit prefix", mutate: func(c *Config) { c.Audit.PathPrefix = "api" }, wantErr: "audit.path_prefix"},
		{name: "empty audit prefix audits everything", mutate: func(c *Config) { c.Audit.PathPrefix = "" }},
		{name: "negative body cap", mutate: func(c *Config) { c.Audit.MaxBodyBytes = -1 }, wantErr: "max_body_bytes"},
		{
			name: "unknown shipper type",
			mutate: func(c *Config) {
				c.Audit.Shippers = []AuditShipperConfig{{Enabled: true, Type: "syslog"}}
			},
			wantErr: "audit.shippers[0]",
		},
		{
			name: "escalation job without interval",
			mutate: func(c *Config) {
				c.Jobs.AlertEscalation = AlertEscalationConfig{Enabled: true}
			},
			wantErr: "jobs.alert_escalation.interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := minimalValidConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := minimalValidConfig()
	cfg.Server.Port = 0
	cfg.Database.Host = ""
	cfg.Database.User = ""
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want joined errors")
	}
	for _, want := range []string{"invalid server port", "database.host", "database.user", "invalid logging level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() = %v, missing %q", err, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

// writeTempConfig creates a temp YAML file and registers a cleanup to remove it.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "config-test-*.yaml")
	if err != nil {
		t.Fatal("CreateTemp:", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatal("WriteString:", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() = nil error for an explicit missing file")
	}
	if !strings.Contains(err.Error(), "error reading config file") {
		t.Errorf("Load() unexpected error kind: %v", err)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "logging:\n  level: info\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 3001 {
		t.Errorf("default Server.Port = %d, want 3001", cfg.Server.Port)
	}
	if cfg.Database.Name != "amiga" {
		t.Errorf("default Database.Name = %q, want amiga", cfg.Database.Name)
	}
	if !cfg.Audit.Enabled || cfg.Audit.PathPrefix != "/api" {
		t.Errorf("default audit = %+v, want enabled under /api", cfg.Audit)
	}
	if cfg.Audit.PersistTimeout != 5*time.Second {
		t.Errorf("default Audit.PersistTimeout = %v, want 5s", cfg.Audit.PersistTimeout)
	}
	if cfg.Audit.MaxBodyBytes != 64*1024 {
		t.Errorf("default Audit.MaxBodyBytes = %d", cfg.Audit.MaxBodyBytes)
	}
	if cfg.Auth.TokenExpiry != 24*time.Hour {
		t.Errorf("default Auth.TokenExpiry = %v, want 24h", cfg.Auth.TokenExpiry)
	}
	if cfg.Jobs.AlertEscalation.DaysAhead != 7 || cfg.Jobs.AlertEscalation.Interval != time.Hour {
		t.Errorf("default escalation job = %+v", cfg.Jobs.AlertEscalation)
	}
}

func TestLoad_WithConfigFile(t *testing.T) {
	const content = `
server:
  host: "fleethost"
  port: 8443
  base_url: "https://fleet.example.com"
database:
  host: "dbhost"
  name: "fleet"
  user: "fleet"
storage:
  default_backend: "s3"
  s3:
    bucket: "fleet-docs"
    region: "eu-south-2"
redis:
  addr: "redis:6379"
audit:
  path_prefix: "/api"
  skip_paths: ["/api/health", "/api/auth/me"]
  persist_timeout: "2s"
  shippers:
    - enabled: true
      type: redis
      redis:
        stream: "fleet:audit"
        max_len: 50000
    - enabled: true
      type: archive
      archive:
        prefix: "trail"
logging:
  level: "debug"
`
	cfg, err := Load(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Host != "fleethost" || cfg.Server.Port != 8443 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Storage.S3.Bucket != "fleet-docs" || cfg.Storage.S3.AuthMethod != "default" {
		t.Errorf("Storage.S3 = %+v", cfg.Storage.S3)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Errorf("Redis.Addr = %q", cfg.Redis.Addr)
	}
	if len(cfg.Audit.SkipPaths) != 2 || cfg.Audit.SkipPaths[1] != "/api/auth/me" {
		t.Errorf("Audit.SkipPaths = %v", cfg.Audit.SkipPaths)
	}
	if cfg.Audit.PersistTimeout != 2*time.Second {
		t.Errorf("Audit.PersistTimeout = %v", cfg.Audit.PersistTimeout)
	}
	if len(cfg.Audit.Shippers) != 2 {
		t.Fatalf("Audit.Shippers = %+v", cfg.Audit.Shippers)
	}
	if r := cfg.Audit.Shippers[0].Redis; r == nil || r.Stream != "fleet:audit" || r.MaxLen != 50000 {
		t.Errorf("redis shipper = %+v", r)
	}
	if a := cfg.Audit.Shippers[1].Archive; a == nil || a.Prefix != "trail" {
		t.Errorf("archive shipper = %+v", a)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AMIGA_SERVER_PORT", "4000")
	t.Setenv("AMIGA_AUDIT_ENABLED", "false")
	t.Setenv("AMIGA_JOBS_ALERT_ESCALATION_DAYS_AHEAD", "14")

	cfg, err := Load(writeTempConfig(t, "server:\n  port: 3001\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want env override 4000", cfg.Server.Port)
	}
	if cfg.Audit.Enabled {
		t.Error("Audit.Enabled = true, want env override false")
	}
	if cfg.Jobs.AlertEscalation.DaysAhead != 14 {
		t.Errorf("DaysAhead = %d, want 14", cfg.Jobs.AlertEscalation.DaysAhead)
	}
}

func TestLoad_SecretExpansion(t *testing.T) {
	t.Setenv("FLEET_DB_PASS", "mysecret")
	const content = `
database:
  password: "${FLEET_DB_PASS}"
`
	cfg, err := Load(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Password != "mysecret" {
		t.Errorf("Database.Password = %q, want mysecret", cfg.Database.Password)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeTempConfig(t, "server: [unclosed")); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(writeTempConfig(t, "audit:\n  path_prefix: api\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("Load() = %v, want invalid configuration error", err)
	}
}
