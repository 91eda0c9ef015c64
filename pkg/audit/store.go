package audit

import (
	"context"
	"time"
)

// Store is the durable audit log. It is append-only; DeleteBefore exists
// solely for the retention policy.
type Store interface {
	Writer

	// Search returns events matching the filter
	Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error)

	// Get retrieves a specific audit event by ID
	Get(ctx context.Context, id int64) (*AuditEvent, error)

	// Count returns the number of events matching the filter
	Count(ctx context.Context, filter SearchFilter) (int64, error)

	// GetStats retrieves aggregate counts over the matching events
	GetStats(ctx context.Context, filter SearchFilter) (*AuditStats, error)

	// Timeline counts events per bucket within [start, end)
	Timeline(ctx context.Context, start, end time.Time, bucket BucketSize, filter SearchFilter) ([]TimeBucket, error)

	// TopIPs returns the origin addresses with the most matching events
	TopIPs(ctx context.Context, filter SearchFilter, limit int) ([]IPCount, error)

	// DeleteBefore removes events older than cutoff
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

var _ Store = (*DBStore)(nil)
