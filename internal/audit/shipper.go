package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amiga-fleet/amiga-backend/internal/db/models"
	"github.com/amiga-fleet/amiga-backend/internal/storage"
	"github.com/amiga-fleet/amiga-backend/internal/telemetry"
)

// LogEntry is the wire form of an audit record sent to external destinations
type LogEntry struct {
	ID            string                 `json:"id"`
	Timestamp     time.Time              `json:"timestamp"`
	Action        string                 `json:"action"`
	EntityType    string                 `json:"entityType"`
	EntityID      string                 `json:"entityId,omitempty"`
	EntityName    string                 `json:"entityName,omitempty"`
	ActorID       string                 `json:"actorId,omitempty"`
	ActorName     string                 `json:"actorName,omitempty"`
	ActorRole     string                 `json:"actorRole,omitempty"`
	Method        string                 `json:"method,omitempty"`
	URL           string                 `json:"url,omitempty"`
	ClientAddress string                 `json:"clientAddress,omitempty"`
	Outcome       bool                   `json:"outcome"`
	ErrorMessage  string                 `json:"errorMessage,omitempty"`
	DurationMs    int64                  `json:"durationMs"`
	Changes       map[string]Change      `json:"changes,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// NewLogEntry flattens a record into its shipping form
func NewLogEntry(r *models.AuditLog) *LogEntry {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	return &LogEntry{
		ID:            r.ID,
		Timestamp:     r.CreatedAt,
		Action:        r.Action,
		EntityType:    r.EntityType,
		EntityID:      deref(r.EntityID),
		EntityName:    deref(r.EntityName),
		ActorID:       deref(r.ActorID),
		ActorName:     deref(r.ActorName),
		ActorRole:     deref(r.ActorRole),
		Method:        deref(r.Method),
		URL:           deref(r.URL),
		ClientAddress: deref(r.ClientAddress),
		Outcome:       r.Outcome,
		ErrorMessage:  deref(r.ErrorMessage),
		DurationMs:    r.DurationMs,
		Changes:       r.Changes,
		Metadata:      r.Metadata,
	}
}

// Shipper defines the interface for audit log shipping
type Shipper interface {
	// Ship sends an audit log entry to the destination
	Ship(ctx context.Context, entry *LogEntry) error
	// Close cleans up any resources
	Close() error
}

// ShipperConfig holds configuration for audit log shippers
type ShipperConfig struct {
	Enabled bool
	// Type is the shipper type (webhook, file, redis, archive)
	Type    string
	Webhook *WebhookConfig
	File    *FileConfig
	Redis   *RedisConfig
	Archive *ArchiveConfig
}

// WebhookConfig holds webhook shipper configuration
type WebhookConfig struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	// BatchSize is how many entries to batch before sending (0 = no batching)
	BatchSize     int
	FlushInterval time.Duration
}

// FileConfig holds file shipper configuration
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
}

// RedisConfig holds Redis stream shipper configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	// MaxLen approximately caps the stream length (0 = unbounded)
	MaxLen int64
}

// ArchiveConfig holds object-storage archive shipper configuration
type ArchiveConfig struct {
	// Prefix is prepended to every object key (default "audit")
	Prefix string
}

// MultiShipper ships to multiple destinations
type MultiShipper struct {
	shippers []namedShipper
	mu       sync.RWMutex
}

type namedShipper struct {
	name string
	Shipper
}

// NewMultiShipper creates a new multi-shipper from configs. archive is the object storage
// backend used by "archive" shippers and may be nil when none is configured.
func NewMultiShipper(configs []ShipperConfig, archive storage.Storage) (*MultiShipper, error) {
	ms := &MultiShipper{}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		var shipper Shipper
		var err error

		switch cfg.Type {
		case "webhook":
			if cfg.Webhook == nil {
				return nil, fmt.Errorf("webhook config is required for webhook shipper")
			}
			shipper, err = NewWebhookShipper(cfg.Webhook)
		case "file":
			if cfg.File == nil {
				return nil, fmt.Errorf("file config is required for file shipper")
			}
			shipper, err = NewFileShipper(cfg.File)
		case "redis":
			if cfg.Redis == nil {
				return nil, fmt.Errorf("redis config is required for redis shipper")
			}
			shipper, err = NewRedisShipper(cfg.Redis)
		case "archive":
			if archive == nil {
				return nil, fmt.Errorf("a storage backend is required for archive shipper")
			}
			prefix := "audit"
			if cfg.Archive != nil && cfg.Archive.Prefix != "" {
				prefix = cfg.Archive.Prefix
			}
			shipper = NewArchiveShipper(archive, prefix)
		default:
			return nil, fmt.Errorf("unknown shipper type: %s", cfg.Type)
		}

		if err != nil {
			return nil, fmt.Errorf("failed to create %s shipper: %w", cfg.Type, err)
		}

		ms.shippers = append(ms.shippers, namedShipper{name: cfg.Type, Shipper: shipper})
	}

	return ms, nil
}

// Len returns the number of active shippers
func (ms *MultiShipper) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.shippers)
}

// Ship sends an entry to all configured shippers
func (ms *MultiShipper) Ship(ctx context.Context, entry *LogEntry) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var lastErr error
	for _, s := range ms.shippers {
		if err := s.Ship(ctx, entry); err != nil {
			lastErr = err
			telemetry.AuditShipErrorsTotal.WithLabelValues(s.name).Inc()
			slog.Warn("audit shipper error", "shipper", s.name, "error", err)
		}
	}
	return lastErr
}

// Close closes all shippers
func (ms *MultiShipper) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var lastErr error
	for _, s := range ms.shippers {
		if err := s.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// WebhookShipper ships audit logs to a webhook
type WebhookShipper struct {
	cfg       *WebhookConfig
	client    *http.Client
	batchCh   chan *LogEntry
	batch     []*LogEntry
	batchMu   sync.Mutex
	closeCh   chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewWebhookShipper creates a new webhook shipper
func NewWebhookShipper(cfg *WebhookConfig) (*WebhookShipper, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	ws := &WebhookShipper{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		batchCh: make(chan *LogEntry, 1000),
		closeCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	if cfg.BatchSize > 0 {
		go ws.processBatches()
	} else {
		close(ws.doneCh)
	}

	return ws, nil
}

func (ws *WebhookShipper) processBatches() {
	defer close(ws.doneCh)

	flushInterval := ws.cfg.FlushInterval
	if flushInterval == 0 {
		flushInterval = 5 * time.Second
	}

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-ws.batchCh:
			ws.batchMu.Lock()
			ws.batch = append(ws.batch, entry)
			if len(ws.batch) >= ws.cfg.BatchSize {
				ws.flushBatch()
			}
			ws.batchMu.Unlock()
		case <-ticker.C:
			ws.batchMu.Lock()
			ws.flushBatch()
			ws.batchMu.Unlock()
		case <-ws.closeCh:
			ws.batchMu.Lock()
		drain:
			for {
				select {
				case entry := <-ws.batchCh:
					ws.batch = append(ws.batch, entry)
				default:
					break drain
				}
			}
			ws.flushBatch()
			ws.batchMu.Unlock()
			return
		}
	}
}

// flushBatch sends the current batch; callers hold batchMu
func (ws *WebhookShipper) flushBatch() {
	if len(ws.batch) == 0 {
		return
	}

	data, err := json.Marshal(ws.batch)
	ws.batch = ws.batch[:0]
	if err != nil {
		slog.Error("failed to marshal audit batch", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ws.cfg.Timeout)
	defer cancel()

	if err := ws.sendRequest(ctx, data); err != nil {
		telemetry.AuditShipErrorsTotal.WithLabelValues("webhook").Inc()
		slog.Error("failed to send audit batch", "error", err)
	}
}

// Ship sends an entry to the webhook, or queues it when batching is enabled
func (ws *WebhookShipper) Ship(ctx context.Context, entry *LogEntry) error {
	if ws.cfg.BatchSize > 0 {
		select {
		case ws.batchCh <- entry:
			return nil
		default:
			// Queue full, send directly
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	return ws.sendRequest(ctx, data)
}

func (ws *WebhookShipper) sendRequest(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range ws.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// Close stops the batch processor and flushes queued entries
func (ws *WebhookShipper) Close() error {
	ws.closeOnce.Do(func() {
		close(ws.closeCh)
	})
	<-ws.doneCh
	return nil
}

// FileShipper appends audit logs to a JSON-lines file with size-based rotation
type FileShipper struct {
	cfg  *FileConfig
	file *os.File
	mu   sync.Mutex
}

// NewFileShipper creates a new file shipper
func NewFileShipper(cfg *FileConfig) (*FileShipper, error) {
	file, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return &FileShipper{cfg: cfg, file: file}, nil
}

// Ship writes an entry to the file
func (fs *FileShipper) Ship(ctx context.Context, entry *LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.cfg.MaxSizeMB > 0 {
		info, err := fs.file.Stat()
		if err == nil && info.Size() > int64(fs.cfg.MaxSizeMB)*1024*1024 {
			if err := fs.rotate(); err != nil {
				return fmt.Errorf("failed to rotate audit log: %w", err)
			}
		}
	}

	if _, err := fs.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}

	return nil
}

// rotate shifts path.N to path.N+1, moves the live file to path.1 and reopens it
func (fs *FileShipper) rotate() error {
	if err := fs.file.Close(); err != nil {
		return err
	}

	for i := fs.cfg.MaxBackups - 1; i >= 1; i-- {
		_ = os.Rename(fmt.Sprintf("%s.%d", fs.cfg.Path, i), fmt.Sprintf("%s.%d", fs.cfg.Path, i+1))
	}
	_ = os.Rename(fs.cfg.Path, fs.cfg.Path+".1")
	if fs.cfg.MaxBackups > 0 {
		_ = os.Remove(fmt.Sprintf("%s.%d", fs.cfg.Path, fs.cfg.MaxBackups+1))
	}

	file, err := os.OpenFile(fs.cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	fs.file = file
	return nil
}

// Close closes the file
func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}

// streamAdder is the subset of *redis.Client used by RedisShipper
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisShipper publishes audit entries to a Redis stream with XADD
type RedisShipper struct {
	client streamAdder
	stream string
	maxLen int64
}

// NewRedisShipper connects to Redis and verifies the connection
func NewRedisShipper(cfg *RedisConfig) (*RedisShipper, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newRedisShipper(rdb, cfg.Stream, cfg.MaxLen), nil
}

func newRedisShipper(client streamAdder, stream string, maxLen int64) *RedisShipper {
	if stream == "" {
		stream = "audit:records"
	}
	return &RedisShipper{client: client, stream: stream, maxLen: maxLen}
}

// Ship appends the entry to the stream. The full entry is stored as JSON in the "entry" field.
func (rs *RedisShipper) Ship(ctx context.Context, entry *LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: rs.stream,
		Values: map[string]interface{}{
			"id":         entry.ID,
			"action":     entry.Action,
			"entityType": entry.EntityType,
			"entry":      string(data),
		},
	}
	if rs.maxLen > 0 {
		args.MaxLen = rs.maxLen
		args.Approx = true
	}

	if err := rs.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to XADD to stream %s: %w", rs.stream, err)
	}
	return nil
}

// Close closes the Redis connection
func (rs *RedisShipper) Close() error {
	return rs.client.Close()
}

// ArchiveShipper writes each audit entry as a JSON object to object storage,
// under <prefix>/YYYY/MM/DD/<id>.json
type ArchiveShipper struct {
	backend storage.Storage
	prefix  string
}

// NewArchiveShipper creates an archive shipper on top of a storage backend
func NewArchiveShipper(backend storage.Storage, prefix string) *ArchiveShipper {
	return &ArchiveShipper{backend: backend, prefix: prefix}
}

// ObjectKey returns the storage key for an entry
func (as *ArchiveShipper) ObjectKey(entry *LogEntry) string {
	ts := entry.Timestamp.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s.json", as.prefix, ts.Year(), ts.Month(), ts.Day(), entry.ID)
}

// Ship uploads the entry
func (as *ArchiveShipper) Ship(ctx context.Context, entry *LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	if _, err := as.backend.Upload(ctx, as.ObjectKey(entry), bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("failed to archive audit entry: %w", err)
	}
	return nil
}

// Close is a no-op; the storage backend is owned by the caller
func (as *ArchiveShipper) Close() error {
	return nil
}
