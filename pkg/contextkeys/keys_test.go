package contextkeys

import (
	"context"
	"testing"
)

func TestKeysAreDistinct(t *testing.T) {
	keys := []Key{AuthKey, RequestIDKey, UserIDKey, LoggerKey, AuditRecorderKey, OriginKey, ClientIPKey}
	seen := make(map[Key]bool)
	for _, k := range keys {
		if seen[k] {
			t.Errorf("duplicate context key %q", k)
		}
		seen[k] = true
	}
}

func TestKeyDoesNotCollideWithString(t *testing.T) {
	ctx := context.WithValue(context.Background(), "request_id", "plain")
	if v := ctx.Value(RequestIDKey); v != nil {
		t.Errorf("expected typed key to miss untyped value, got %v", v)
	}
}
