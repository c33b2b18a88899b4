package api

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/amiga-fleet/amiga-backend/internal/audit"
	"github.com/amiga-fleet/amiga-backend/internal/config"
	"github.com/amiga-fleet/amiga-backend/internal/db/repositories"
	"github.com/amiga-fleet/amiga-backend/internal/storage"
)

// NewAuditRecorder builds the audit pipeline: records are classified relative to the
// configured path prefix, persisted through the audit repository and fanned out to
// every enabled shipper. The recorder is built even when request interception is
// disabled, since handlers still log explicit entity changes through it.
func NewAuditRecorder(cfg *config.Config, db *sql.DB, archive storage.Storage) (*audit.Recorder, error) {
	multi, err := audit.NewMultiShipper(shipperConfigs(cfg), archive)
	if err != nil {
		return nil, fmt.Errorf("failed to configure audit shippers: %w", err)
	}

	var shipper audit.Shipper
	if multi.Len() > 0 {
		shipper = multi
	}

	var store audit.Store
	if db != nil {
		store = repositories.NewAuditRepository(db)
	}

	builder := audit.NewBuilder(audit.NewClassifier(cfg.Audit.PathPrefix))
	return audit.NewRecorder(store, shipper, builder, cfg.Audit.PersistTimeout), nil
}

// shipperConfigs maps the file/env configuration onto shipper settings. A redis
// shipper without its own address reuses the top-level redis connection.
func shipperConfigs(cfg *config.Config) []audit.ShipperConfig {
	out := make([]audit.ShipperConfig, 0, len(cfg.Audit.Shippers))
	for _, sc := range cfg.Audit.Shippers {
		converted := audit.ShipperConfig{Enabled: sc.Enabled, Type: sc.Type}

		if sc.Webhook != nil {
			converted.Webhook = &audit.WebhookConfig{
				URL:           sc.Webhook.URL,
				Headers:       sc.Webhook.Headers,
				Timeout:       time.Duration(sc.Webhook.TimeoutSecs) * time.Second,
				BatchSize:     sc.Webhook.BatchSize,
				FlushInterval: time.Duration(sc.Webhook.FlushInterval) * time.Second,
			}
		}
		if sc.File != nil {
			converted.File = &audit.FileConfig{
				Path:       sc.File.Path,
				MaxSizeMB:  sc.File.MaxSizeMB,
				MaxBackups: sc.File.MaxBackups,
			}
		}
		if sc.Type == "redis" {
			r := &audit.RedisConfig{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			}
			if sc.Redis != nil {
				if sc.Redis.Addr != "" {
					r.Addr, r.Password, r.DB = sc.Redis.Addr, sc.Redis.Password, sc.Redis.DB
				}
				r.Stream = sc.Redis.Stream
				r.MaxLen = sc.Redis.MaxLen
			}
			converted.Redis = r
		}
		if sc.Archive != nil {
			converted.Archive = &audit.ArchiveConfig{Prefix: sc.Archive.Prefix}
		}

		out = append(out, converted)
	}
	return out
}
