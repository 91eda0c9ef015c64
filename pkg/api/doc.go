// Package api provides the warden HTTP server.
//
// # Overview
//
// The server is built on gorilla/mux. Every matched route runs through
// request logging, the authentication dispatcher and the audit
// middleware, in that order; the outer chain assigns request ids,
// recovers panics and bounds request bodies.
//
//	server, err := api.NewServer(api.Deps{...}, api.Config{})
//	http.ListenAndServe(":8080", server)
//
// # Routes
//
// Browser (session channel):
//
//	POST /login                 form login; remember-me issues a remember cookie
//	POST /logout                ends the session and remember token
//
// API (token channel):
//
//	POST  /api/auth/login       {email, password} -> {token, type, id, email, name, role}
//	POST  /api/auth/register    self-service sign-up
//	POST  /api/auth/logout
//	GET   /api/me
//	PUT   /api/me/password
//	GET   /api/me/profile
//	PATCH /api/me/profile
//
// Admin (role ADMIN):
//
//	GET    /api/admin/identities
//	GET    /api/admin/identities/{id}
//	POST   /api/admin/identities/{id}/lock | unlock | verify | restore | sync
//	PUT    /api/admin/identities/{id}/role
//	DELETE /api/admin/identities/{id}
//	POST   /api/admin/sync
//	GET    /api/admin/sync/integrity
//	GET    /api/admin/audit/...     see package audit
//
// Operational: /health, /health/live, /health/ready and /metrics.
//
// # Errors
//
// API errors are JSON bodies with path, message, timestamp, status and a
// stable code. Browser login failures redirect to /login?error without
// saying why.
package api
