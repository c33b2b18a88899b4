// audit.go is the HTTP side of the audit trail: it observes every request under the
// audited prefix and hands a snapshot of the finished exchange to the audit.Recorder.
package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amiga-fleet/amiga-backend/internal/audit"
	"github.com/amiga-fleet/amiga-backend/internal/config"
)

// defaultMaxAuditBody is used when the configured capture limit is not positive
const defaultMaxAuditBody = 64 * 1024

// bodyCaptureWriter passes every write through to the client unchanged and keeps a copy
// of at most limit bytes for the audit record.
type bodyCaptureWriter struct {
	gin.ResponseWriter
	buf   bytes.Buffer
	limit int
}

func (w *bodyCaptureWriter) capture(p []byte) {
	if room := w.limit - w.buf.Len(); room > 0 {
		if len(p) > room {
			p = p[:room]
		}
		w.buf.Write(p)
	}
}

func (w *bodyCaptureWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.capture(p[:n])
	return n, err
}

func (w *bodyCaptureWriter) WriteString(s string) (int, error) {
	n, err := w.ResponseWriter.WriteString(s)
	w.capture([]byte(s[:n]))
	return n, err
}

// AuditMiddleware records one audit entry per request under cfg.PathPrefix. The response
// is written to the client as the handler produces it; record construction and
// persistence happen on the recorder's goroutine once the handler chain has returned.
//
// The middleware must run before AuthMiddleware and any rate limiter in the chain: it
// reads the actor from the gin.Context after c.Next(), by which point authentication has
// populated it. Register it on the engine rather than a route group so requests that match
// no route are recorded as well.
func AuditMiddleware(recorder *audit.Recorder, cfg config.AuditConfig) gin.HandlerFunc {
	if recorder == nil || !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	limit := cfg.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxAuditBody
	}
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if !underPrefix(path, cfg.PathPrefix) || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		requestBody := captureRequestBody(c.Request, limit)

		writer := &bodyCaptureWriter{ResponseWriter: c.Writer, limit: limit}
		c.Writer = writer

		c.Next()

		size := writer.Size()
		if size < 0 {
			size = 0
		}
		recorder.RecordExchange(&audit.Exchange{
			Method:        c.Request.Method,
			Path:          path,
			URL:           c.Request.URL.RequestURI(),
			RouteTemplate: c.FullPath(),
			EntityID:      c.Param("id"),
			RequestID:     RequestID(c),
			Query:         queryParams(c.Request),
			RequestBody:   requestBody,
			ResponseBody:  writer.buf.Bytes(),
			ResponseSize:  size,
			StatusCode:    writer.Status(),
			Duration:      time.Since(start),
			ClientAddress: c.ClientIP(),
			ClientAgent:   c.Request.UserAgent(),
			Actor:         ActorFromContext(c),
		})
	}
}

// ActorFromContext returns the authenticated user set by AuthMiddleware; all fields are
// nil for anonymous requests.
func ActorFromContext(c *gin.Context) audit.Actor {
	return audit.Actor{
		ID:   contextString(c, ContextUserID),
		Name: contextString(c, ContextUserName),
		Role: contextString(c, ContextUserRole),
	}
}

func contextString(c *gin.Context, key string) *string {
	if v := c.GetString(key); v != "" {
		return &v
	}
	return nil
}

func underPrefix(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/")
}

// captureRequestBody copies up to limit bytes of the request body and puts them back in
// front of the unread remainder, so handlers still see the full body. Multipart uploads
// are not captured.
func captureRequestBody(req *http.Request, limit int) []byte {
	if req.Body == nil || req.Body == http.NoBody {
		return nil
	}
	if strings.HasPrefix(req.Header.Get("Content-Type"), "multipart/") {
		return nil
	}

	captured, err := io.ReadAll(io.LimitReader(req.Body, int64(limit)))
	req.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(captured), req.Body), req.Body}
	if err != nil || len(captured) == 0 {
		return nil
	}
	return captured
}

// queryParams flattens the query string: single values as strings, repeated keys as lists
func queryParams(req *http.Request) map[string]interface{} {
	values := req.URL.Query()
	params := make(map[string]interface{}, len(values))
	for k, v := range values {
		if len(v) == 1 {
			params[k] = v[0]
		} else {
			params[k] = v
		}
	}
	return params
}
