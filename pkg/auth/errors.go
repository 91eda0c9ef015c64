package auth

import (
	"errors"
	"net/http"
)

// Authentication and account-state errors. Callers match with errors.Is;
// the HTTP layer maps them to stable codes via Code and HTTPStatus.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrAccountUnverified  = errors.New("account not verified")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenMalformed     = errors.New("token malformed")
	ErrThrottled          = errors.New("too many failed attempts")
	ErrSyncConflict       = errors.New("identity and profile disagree")
	// ErrAuditWriteFailed is only ever logged; it must not reach the caller
	// whose action was being recorded.
	ErrAuditWriteFailed = errors.New("audit write failed")
	ErrUnauthenticated  = errors.New("authentication required")
	ErrForbidden        = errors.New("insufficient privileges")
)

type errorInfo struct {
	code    string
	status  int
	message string
}

var errorTable = []struct {
	err  error
	info errorInfo
}{
	{ErrInvalidCredentials, errorInfo{"INVALID_CREDENTIALS", http.StatusUnauthorized, "Invalid email or password"}},
	{ErrAccountLocked, errorInfo{"ACCOUNT_LOCKED", http.StatusLocked, "Account is locked"}},
	{ErrAccountDisabled, errorInfo{"ACCOUNT_DISABLED", http.StatusForbidden, "Account is disabled"}},
	{ErrAccountUnverified, errorInfo{"ACCOUNT_UNVERIFIED", http.StatusForbidden, "Account is not verified"}},
	{ErrTokenExpired, errorInfo{"TOKEN_EXPIRED", http.StatusUnauthorized, "Token has expired"}},
	{ErrTokenMalformed, errorInfo{"TOKEN_MALFORMED", http.StatusUnauthorized, "Token is invalid"}},
	{ErrThrottled, errorInfo{"THROTTLED", http.StatusTooManyRequests, "Too many failed attempts, try again later"}},
	{ErrSyncConflict, errorInfo{"SYNC_CONFLICT", http.StatusConflict, "Identity data is out of sync"}},
	{ErrAuditWriteFailed, errorInfo{"AUDIT_WRITE_FAILED", http.StatusInternalServerError, "Internal error"}},
	{ErrUnauthenticated, errorInfo{"UNAUTHENTICATED", http.StatusUnauthorized, "Authentication required"}},
	{ErrForbidden, errorInfo{"FORBIDDEN", http.StatusForbidden, "Access denied"}},
}

func lookup(err error) (errorInfo, bool) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.info, true
		}
	}
	return errorInfo{}, false
}

// Code returns the stable error code for err, or "INTERNAL_ERROR".
func Code(err error) string {
	if info, ok := lookup(err); ok {
		return info.code
	}
	return "INTERNAL_ERROR"
}

// HTTPStatus returns the HTTP status that represents err.
func HTTPStatus(err error) int {
	if info, ok := lookup(err); ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// Message returns a caller-safe description of err. Unknown errors never
// leak their text.
func Message(err error) string {
	if info, ok := lookup(err); ok {
		return info.message
	}
	return "Internal error"
}
