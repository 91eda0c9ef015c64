// Package async provides safe concurrent execution primitives for background tasks.
//
// SafeGo runs a function in a goroutine with panic recovery, a timeout and
// structured error logging:
//
//	async.SafeGo(ctx, logger, time.Hour, "audit retention", func(ctx context.Context) error {
//		_, err := auditService.Cleanup(ctx, policy)
//		return err
//	})
//
// Batch processes a slice concurrently with bounded parallelism
// (golang.org/x/sync/errgroup). Failures are isolated per item and
// cancellation stops new items from starting:
//
//	errs := async.Batch(ctx, ids, 4, 30*time.Second, func(ctx context.Context, id int64) error {
//		return synchronizer.Synchronize(ctx, id)
//	})
//
// Used by pkg/identitysync for SynchronizeAll and by cmd/warden to run cron
// jobs.
package async
