package auth

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"ADMIN", RoleAdmin, false},
		{"user", RoleUser, false},
		{" courier ", RoleCourier, false},
		{"Seller", RoleSeller, false},
		{"root", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthContext_HasRole(t *testing.T) {
	admin := &AuthContext{Principal: &Principal{Email: "root@x.com", Role: RoleAdmin}}
	user := &AuthContext{Principal: &Principal{Email: "u@x.com", Role: RoleUser}}
	var anonymous *AuthContext

	assert.True(t, admin.IsAdmin())
	assert.False(t, user.IsAdmin())
	assert.True(t, user.HasRole(RoleUser))
	assert.False(t, anonymous.HasRole(RoleUser))
	assert.Equal(t, "root@x.com", admin.Email())
	assert.Equal(t, "", anonymous.Email())
	assert.False(t, (&AuthContext{}).HasRole(RoleAdmin))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", NormalizeEmail("  A@X.Com "))
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		code   string
		status int
	}{
		{ErrInvalidCredentials, "INVALID_CREDENTIALS", http.StatusUnauthorized},
		{ErrAccountLocked, "ACCOUNT_LOCKED", http.StatusLocked},
		{ErrAccountDisabled, "ACCOUNT_DISABLED", http.StatusForbidden},
		{ErrAccountUnverified, "ACCOUNT_UNVERIFIED", http.StatusForbidden},
		{ErrTokenExpired, "TOKEN_EXPIRED", http.StatusUnauthorized},
		{ErrTokenMalformed, "TOKEN_MALFORMED", http.StatusUnauthorized},
		{ErrThrottled, "THROTTLED", http.StatusTooManyRequests},
		{ErrSyncConflict, "SYNC_CONFLICT", http.StatusConflict},
		{fmt.Errorf("wrapped: %w", ErrThrottled), "THROTTLED", http.StatusTooManyRequests},
		{fmt.Errorf("database exploded"), "INTERNAL_ERROR", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.code, Code(tt.err))
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
			assert.NotEmpty(t, Message(tt.err))
		})
	}

	assert.Equal(t, "Internal error", Message(fmt.Errorf("pq: relation does not exist")))
}
