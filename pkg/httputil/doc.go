// Package httputil provides the HTTP plumbing shared by warden handlers:
// structured JSON errors, request parsing helpers and middleware.
//
// Every error body has the same shape:
//
//	{"path": "/api/me", "message": "Invalid credentials", "timestamp": "...", "status": 401, "code": "INVALID_CREDENTIALS"}
//
// WriteAuthError maps errors from the auth taxonomy to that shape, so
// handlers rarely pick codes themselves:
//
//	if err != nil {
//		httputil.WriteAuthError(w, r, err)
//		return
//	}
//
// Middleware:
//
//	RequestIDMiddleware  assigns X-Request-ID (UUID) and puts it on the context
//	LoggingMiddleware    logs each request with logrus and records HTTP metrics
//	RecoveryMiddleware   turns panics into a generic 500
//	CORSMiddleware       allows configured origins
//	MaxBytesMiddleware   caps request bodies
package httputil
