// Package middleware provides HTTP middleware for authentication,
// authorization and rate limiting.
//
// # Channels
//
// Every request is authenticated on one of two channels, chosen by
// Classify. API paths, bearer tokens and JSON requests use the token
// channel; everything else is a browser request on the session channel.
//
//	dispatcher := middleware.NewDispatcher(tokens, sessions, identities,
//		middleware.DefaultDispatcherConfig(), logger)
//	router.Use(dispatcher.Handler)
//
// Token failures answer a JSON 401 with a stable code. Session failures
// clear the cookies and redirect to the login page with the original path
// in the redirect parameter. A valid remember-me cookie silently starts a
// new session and rotates the cookie.
//
// Static asset prefixes and the public paths (login, registration,
// health, metrics) are served without authentication.
//
// # Authorization
//
//	admin := router.PathPrefix("/api/admin").Subrouter()
//	admin.Use(middleware.RequireRole(auth.RoleAdmin))
//
// # Rate Limiting
//
// RateLimitMiddleware counts requests per client IP in a fixed Redis
// window shared by all instances. It guards the login endpoints against
// bursts, independently of the lockout policy, and fails open when Redis
// is unavailable.
package middleware
