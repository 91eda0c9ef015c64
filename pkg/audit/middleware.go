package audit

import (
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/warden/pkg/auth"
)

// Middleware puts the recorder and the caller's origin on every request
// context and records API access and authorization denials. It must run after authentication so
// the caller is known.
type Middleware struct {
	recorder  Recorder
	apiPrefix string
}

// NewMiddleware creates a new audit middleware
func NewMiddleware(recorder Recorder, apiPrefix string) *Middleware {
	if apiPrefix == "" {
		apiPrefix = "/api/"
	}
	return &Middleware{
		recorder:  recorder,
		apiPrefix: apiPrefix,
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Handler wraps an HTTP handler with audit recording
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		ctx := WithRecorder(r.Context(), m.recorder)
		ctx = WithOrigin(ctx, Origin{IPAddress: auth.ClientIP(r), UserAgent: r.UserAgent()})
		r = r.WithContext(ctx)

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		next.ServeHTTP(wrapped, r)

		if event := m.eventFor(r, wrapped.statusCode, time.Since(startTime)); event != nil {
			m.recorder.Record(r.Context(), event)
		}
	})
}

// eventFor decides which event, if any, a finished request produces
func (m *Middleware) eventFor(r *http.Request, status int, duration time.Duration) *AuditEvent {
	var event *AuditEvent
	switch {
	case status == http.StatusForbidden:
		event = NewEvent(EventTypeUnauthorizedAccess, LevelWarn, ModuleSecurity, "Access denied")
	case status < 400 && m.isAuditedAPICall(r):
		event = NewEvent(EventTypeAPIAccess, LevelInfo, ModuleAPI, r.Method+" "+r.URL.Path)
	default:
		return nil
	}

	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		event.WithActor(p.ID, p.Email)
	}
	return event.WithRequest(r).WithDetails(map[string]interface{}{
		"method":      r.Method,
		"path":        r.URL.Path,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
}

// isAuditedAPICall reports API mutations and any admin API call
func (m *Middleware) isAuditedAPICall(r *http.Request) bool {
	if !strings.HasPrefix(r.URL.Path, m.apiPrefix) {
		return false
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodOptions {
		return true
	}
	return strings.HasPrefix(r.URL.Path, m.apiPrefix+"admin/")
}
