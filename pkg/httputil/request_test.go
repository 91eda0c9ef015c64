package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	type payload struct {
		Email string `json:"email"`
	}

	t.Run("valid", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"email":"a@x.com"}`))
		var p payload
		require.NoError(t, ParseJSON(r, &p))
		assert.Equal(t, "a@x.com", p.Email)
	})

	t.Run("invalid", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"email":`))
		var p payload
		assert.Error(t, ParseJSON(r, &p))
	})

	t.Run("empty body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(""))
		var p payload
		assert.Error(t, ParseJSON(r, &p))
	})
}

func TestParseJSONOrError(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString("nope"))

	var dest map[string]interface{}
	ok := ParseJSONOrError(w, r, &dest)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "BAD_REQUEST", decodeError(t, w).Code)
}

func TestParsePathInt64(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		want    int64
		wantErr bool
	}{
		{"valid", map[string]string{"id": "42"}, 42, false},
		{"missing", map[string]string{}, 0, true},
		{"not a number", map[string]string{"id": "abc"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), tt.vars)
			got, err := ParsePathInt64(r, "id")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePathInt64OrError(t *testing.T) {
	w := httptest.NewRecorder()
	r := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "x"})

	_, ok := ParsePathInt64OrError(w, r, "id")

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParsePathString(t *testing.T) {
	r := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"email": "a@x.com"})

	got, err := ParsePathString(r, "email")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got)

	_, err = ParsePathString(r, "missing")
	assert.Error(t, err)
}

func TestParseQueryInt(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=25&bad=x", nil)

	got, err := ParseQueryInt(r, "limit", 10)
	require.NoError(t, err)
	assert.Equal(t, 25, got)

	got, err = ParseQueryInt(r, "offset", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, got)

	_, err = ParseQueryInt(r, "bad", 10)
	assert.Error(t, err)
}

func TestParseQueryTime(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?from=2026-03-01T10:00:00Z&bad=yesterday", nil)

	got, err := ParseQueryTime(r, "from")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))

	got, err = ParseQueryTime(r, "to")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseQueryTime(r, "bad")
	assert.Error(t, err)
}

func TestParseQueryRange(t *testing.T) {
	t.Run("defaults to trailing window", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		from, to, err := ParseQueryRange(r, 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 24*time.Hour, to.Sub(from))
	})

	t.Run("explicit range", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/?from=2026-03-01T00:00:00Z&to=2026-03-02T00:00:00Z", nil)
		from, to, err := ParseQueryRange(r, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 24*time.Hour, to.Sub(from))
	})

	t.Run("inverted range", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/?from=2026-03-02T00:00:00Z&to=2026-03-01T00:00:00Z", nil)
		_, _, err := ParseQueryRange(r, time.Hour)
		assert.Error(t, err)
	})
}
