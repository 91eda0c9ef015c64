// Package auth holds the authentication primitives shared by every channel.
//
// # Overview
//
// TokenService issues and validates stateless HS256 bearer tokens whose
// subject is the identity's email. TokenGenerator creates opaque random
// tokens (session ids, remember-me tokens) of which only a SHA256 hash is
// stored. BcryptHasher hashes and compares passwords.
//
// # Errors
//
// The package defines the error taxonomy used across the module:
//
//	ErrInvalidCredentials  wrong secret or unknown email (indistinguishable)
//	ErrAccountLocked       identity is locked
//	ErrAccountDisabled     identity is disabled
//	ErrAccountUnverified   identity has not been verified
//	ErrTokenExpired        bearer token past its expiry
//	ErrTokenMalformed      bearer token cannot be parsed or verified
//	ErrThrottled           too many recent failures for the email or IP
//	ErrSyncConflict        identity and profile disagree
//	ErrUnauthenticated     no principal on a protected route
//	ErrForbidden           principal lacks the role, or targets itself
//	ErrAuditWriteFailed    durable audit write failed (logged only)
//
// Code, HTTPStatus and Message map any of them to a stable code, a status
// and a caller-safe message:
//
//	if errors.Is(err, auth.ErrThrottled) {
//		w.Header().Set("Retry-After", "3600")
//	}
//	httputil.WriteError(w, r, auth.HTTPStatus(err), auth.Code(err), auth.Message(err))
//
// # Roles
//
// Roles are coarse: ADMIN, USER, COURIER, SELLER. Only ADMIN gates anything
// inside this module.
package auth
