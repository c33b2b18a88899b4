// Package api wires together all HTTP routes for the fleet admin backend.
//
// Every route under /api passes through the audit interceptor, which sits ahead of
// authentication so that rejected logins and 401/403 responses are recorded too. The
// actor is read back from the gin context after the handler chain has run.
package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/amiga-fleet/amiga-backend/internal/api/admin"
	"github.com/amiga-fleet/amiga-backend/internal/audit"
	"github.com/amiga-fleet/amiga-backend/internal/config"
	"github.com/amiga-fleet/amiga-backend/internal/db/models"
	"github.com/amiga-fleet/amiga-backend/internal/db/repositories"
	"github.com/amiga-fleet/amiga-backend/internal/jobs"
	"github.com/amiga-fleet/amiga-backend/internal/middleware"
	"github.com/amiga-fleet/amiga-backend/internal/storage"
)

// Version is reported by /version. Overridden at build time with -ldflags.
var Version = "0.1.0"

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	escalationJob *jobs.AlertEscalationJob
	rateLimiters  []*middleware.RateLimiter
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.escalationJob != nil {
		bg.escalationJob.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("all background services stopped")
}

// limiter returns a Redis-backed limiter when rdb is set, so that limits hold across
// replicas, and an in-process token bucket otherwise.
func (bg *BackgroundServices) limiter(rdb *redis.Client, prefix string, cfg middleware.RateLimitConfig) middleware.Limiter {
	if rdb != nil {
		return middleware.NewRedisRateLimiter(rdb, prefix, cfg)
	}
	rl := middleware.NewRateLimiter(cfg)
	bg.rateLimiters = append(bg.rateLimiters, rl)
	return rl
}

// NewRouter creates and configures the Gin router. recorder may be nil, in which case
// the audit interceptor is a pass-through; rdb may be nil, in which case rate limits
// are kept in memory.
func NewRouter(cfg *config.Config, db *sql.DB, storageBackend storage.Storage, recorder *audit.Recorder, rdb *redis.Client) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	bg := &BackgroundServices{}

	sqlxDB := sqlx.NewDb(db, "postgres")
	userRepo := repositories.NewUserRepository(sqlxDB)
	auditRepo := repositories.NewAuditRepository(db)

	if cfg.Jobs.AlertEscalation.Enabled {
		bg.escalationJob = jobs.NewAlertEscalationJob(repositories.NewAlertRepository(sqlxDB), recorder, cfg.Jobs.AlertEscalation)
		bg.escalationJob.Start(context.Background())
	}

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))
	if h := corsMiddleware(cfg.Security.CORS); h != nil {
		router.Use(h)
	}
	router.Use(middleware.MetricsMiddleware())
	// Engine-level so unrouted /api paths and rate-limited requests are still audited; the
	// middleware checks the prefix itself.
	router.Use(middleware.AuditMiddleware(recorder, cfg.Audit))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, storageBackend))
	router.GET("/version", versionHandler())

	apiGroup := router.Group("/api")
	if cfg.Security.RateLimiting.Enabled {
		rlCfg := middleware.DefaultRateLimitConfig()
		if cfg.Security.RateLimiting.RequestsPerMinute > 0 {
			rlCfg.RequestsPerMinute = cfg.Security.RateLimiting.RequestsPerMinute
		}
		if cfg.Security.RateLimiting.Burst > 0 {
			rlCfg.BurstSize = cfg.Security.RateLimiting.Burst
		}
		apiGroup.Use(middleware.RateLimitMiddleware(bg.limiter(rdb, "api", rlCfg)))
	}

	apiGroup.GET("/health", healthCheckHandler(db))

	requireAuth := middleware.AuthMiddleware(userRepo)
	managers := middleware.RequireRole(models.RoleAdmin, models.RoleGestor)
	operators := middleware.RequireRole(models.RoleAdmin, models.RoleGestor, models.RoleOperator)
	adminsOnly := middleware.RequireRole(models.RoleAdmin)

	authHandlers := admin.NewAuthHandlers(cfg, sqlxDB)
	authGroup := apiGroup.Group("/auth")
	{
		login := []gin.HandlerFunc{authHandlers.LoginHandler()}
		if cfg.Security.RateLimiting.Enabled {
			login = append([]gin.HandlerFunc{middleware.RateLimitMiddleware(bg.limiter(rdb, "login", middleware.LoginRateLimitConfig()))}, login...)
		}
		authGroup.POST("/login", login...)
		authGroup.POST("/register", requireAuth, adminsOnly, authHandlers.RegisterHandler())
		authGroup.GET("/me", requireAuth, authHandlers.MeHandler())
		authGroup.GET("/logout", middleware.OptionalAuthMiddleware(userRepo), authHandlers.LogoutHandler())
	}

	protected := apiGroup.Group("")
	protected.Use(requireAuth)

	documentHandlers := admin.NewDocumentHandlers(cfg, sqlxDB, storageBackend)
	// every upload route shares the upload rate limit when limiting is on
	var uploadLimit gin.HandlerFunc
	if cfg.Security.RateLimiting.Enabled {
		uploadLimit = middleware.RateLimitMiddleware(bg.limiter(rdb, "upload", middleware.UploadRateLimitConfig()))
	}
	uploadChain := func(handlers ...gin.HandlerFunc) []gin.HandlerFunc {
		if uploadLimit == nil {
			return handlers
		}
		return append([]gin.HandlerFunc{uploadLimit}, handlers...)
	}

	vehicleHandlers := admin.NewVehicleHandlers(sqlxDB, recorder)
	vehicles := protected.Group("/vehicles")
	{
		vehicles.GET("", vehicleHandlers.ListVehiclesHandler())
		vehicles.GET("/:id", vehicleHandlers.GetVehicleHandler())
		vehicles.POST("", managers, vehicleHandlers.CreateVehicleHandler())
		vehicles.PUT("/:id", managers, vehicleHandlers.UpdateVehicleHandler())
		vehicles.DELETE("/:id", adminsOnly, vehicleHandlers.DeleteVehicleHandler())
		vehicles.GET("/:id/documents", documentHandlers.ListOwnerDocumentsHandler(admin.OwnerVehicle))
		vehicles.POST("/:id/documents", uploadChain(managers, documentHandlers.UploadOwnerDocumentHandler(admin.OwnerVehicle))...)
	}

	userHandlers := admin.NewUserHandlers(cfg, sqlxDB, recorder)
	users := protected.Group("/users")
	{
		users.GET("", managers, userHandlers.ListUsersHandler())
		users.GET("/:id", managers, userHandlers.GetUserHandler())
		users.POST("", adminsOnly, userHandlers.CreateUserHandler())
		users.PUT("/:id", adminsOnly, userHandlers.UpdateUserHandler())
		users.DELETE("/:id", adminsOnly, userHandlers.DeleteUserHandler())
		users.GET("/:id/documents", managers, documentHandlers.ListOwnerDocumentsHandler(admin.OwnerUser))
		users.POST("/:id/documents", uploadChain(managers, documentHandlers.UploadOwnerDocumentHandler(admin.OwnerUser))...)
	}

	alertHandlers := admin.NewAlertHandlers(sqlxDB, recorder)
	alerts := protected.Group("/alerts")
	{
		alerts.GET("", alertHandlers.ListAlertsHandler())
		alerts.GET("/upcoming", alertHandlers.UpcomingAlertsHandler())
		alerts.POST("/bulk-resolve", managers, alertHandlers.BulkResolveHandler())
		alerts.GET("/:id", alertHandlers.GetAlertHandler())
		alerts.POST("", operators, alertHandlers.CreateAlertHandler())
		alerts.PUT("/:id", operators, alertHandlers.UpdateAlertHandler())
		alerts.PUT("/:id/resolve", operators, alertHandlers.ResolveAlertHandler())
		alerts.PUT("/:id/assign", managers, alertHandlers.AssignAlertHandler())
		alerts.DELETE("/:id", managers, alertHandlers.DeleteAlertHandler())
	}

	documents := protected.Group("/erp/documents")
	{
		documents.GET("", documentHandlers.ListDocumentsHandler())
		documents.GET("/:id", documentHandlers.GetDocumentHandler())
		documents.GET("/:id/download", documentHandlers.DownloadDocumentHandler())
		documents.POST("", uploadChain(operators, documentHandlers.UploadDocumentHandler())...)
		documents.DELETE("/:id", managers, documentHandlers.DeleteDocumentHandler())
	}

	auditHandlers := admin.NewAuditHandlers(auditRepo)
	auditGroup := protected.Group("/audit", managers)
	{
		auditGroup.GET("/logs", auditHandlers.ListAuditLogsHandler())
		auditGroup.GET("/logs/:id", auditHandlers.GetAuditLogHandler())
		auditGroup.GET("/user-activity/:userId", auditHandlers.UserActivityHandler())
		auditGroup.GET("/entity-activity/:entityType/:entityId", auditHandlers.EntityActivityHandler())
	}

	return router, bg
}

// corsMiddleware builds the gin-contrib CORS handler, or returns nil when no origin
// is configured.
func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	if len(cfg.AllowedOrigins) == 0 {
		return nil
	}

	corsCfg := cors.Config{
		AllowMethods:     cfg.AllowedMethods,
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           time.Hour,
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			corsCfg.AllowAllOrigins = true
			corsCfg.AllowCredentials = false
			break
		}
	}
	if !corsCfg.AllowAllOrigins {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	if len(corsCfg.AllowMethods) == 0 {
		corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	return cors.New(corsCfg)
}

// healthCheckHandler returns the liveness status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks the storage backend so
// that a readiness gate fails when document uploads would error.
func readinessHandler(db *sql.DB, storageBackend storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// Exists() on a known-absent key exercises credentials and connectivity
		// without creating any state.
		if storageBackend != nil {
			if _, err := storageBackend.Exists(c.Request.Context(), ".readiness-probe"); err != nil {
				checks["storage"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "storage backend not ready",
				})
				return
			}
			checks["storage"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured request logging. The output format follows
// the global slog handler configured in telemetry.SetupLogger.
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		} else if cfg.Logging.Level == "debug" && len(c.Errors) > 0 {
			level = slog.LevelWarn
		}
		logRequest(c, level, time.Since(start), path, query)
	}
}

// logRequest logs a request as a structured slog record.
func logRequest(c *gin.Context, level slog.Level, latency time.Duration, path, query string) {
	slog.LogAttrs(
		c.Request.Context(),
		level,
		"http request",
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", middleware.RequestID(c)),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}
