package identity

import (
	"context"
	"time"
)

// Store persists identity records. GetByEmail matches case-insensitively
// and ignores soft-deleted records; GetByID returns them.
type Store interface {
	Create(ctx context.Context, record *Record) error
	GetByID(ctx context.Context, id int64) (*Record, error)
	GetByEmail(ctx context.Context, email string) (*Record, error)
	// Apply writes only the columns named by changes and returns the
	// stored record after the write
	Apply(ctx context.Context, id int64, changes Changes) (*Record, error)
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
	SetProfileID(ctx context.Context, id int64, profileID string) error

	// ListUnlinked pages through live records without a profile link
	ListUnlinked(ctx context.Context, afterID int64, limit int) ([]*Record, error)
	// List pages through all live records in id order
	List(ctx context.Context, afterID int64, limit int) ([]*Record, error)
}
