// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/warden/pkg/contextkeys"
//	ctx = context.WithValue(ctx, contextkeys.AuthKey, authCtx)
//	authCtx := ctx.Value(contextkeys.AuthKey).(*auth.AuthContext)
package contextkeys

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *auth.AuthContext
	// Set by: middleware.Dispatcher (pkg/middleware/dispatcher.go)
	// Required by: protected endpoints, middleware.RequireRole
	// Type: *auth.AuthContext
	AuthKey Key = "auth_context"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated identity id as a string
	// Set by: middleware.Dispatcher after authentication
	// Used by: Logger
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.LoggingMiddleware
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// AuditRecorderKey contains audit.Recorder
	// Set by: audit.Middleware (pkg/audit/middleware.go)
	// Used by: Handlers that record audit events
	// Type: audit.Recorder
	AuditRecorderKey Key = "audit_recorder"

	// OriginKey contains audit.Origin, the caller's address and user agent
	// Set by: audit.Middleware
	// Used by: audit recorders to fill events emitted below the HTTP layer
	// Type: audit.Origin
	OriginKey Key = "audit_origin"

	// ClientIPKey contains the resolved client address
	// Set by: auth.ProxyTrust.Middleware
	// Used by: auth.ClientIP (lockout, login limiter, audit origin)
	// Type: string
	ClientIPKey Key = "client_ip"
)
