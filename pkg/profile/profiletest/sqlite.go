// Package profiletest opens throwaway profile stores for tests.
package profiletest

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/warden/pkg/profile"
)

// NewSQLiteStore returns a profile store over a private in-memory database
func NewSQLiteStore(t testing.TB) (*profile.SQLStore, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// every pooled connection would otherwise get its own empty database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := profile.NewSQLStore(db, "sqlite3")
	if err != nil {
		t.Fatalf("create profile store: %v", err)
	}
	return store, db
}
