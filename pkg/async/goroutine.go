package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/warden/pkg/observability"
)

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// Use this instead of bare `go func()` to prevent goroutine leaks and crashes.
//
// Example:
//
//	SafeGo(ctx, logger, time.Hour, "identity sync", func(ctx context.Context) error {
//	    _, err := synchronizer.SynchronizeAll(ctx)
//	    return err
//	})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer observability.RecoverPanic(logger, taskName)

		// Log error but don't crash; the caller decides if it is critical
		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Error("background task failed")
		}
	}()
}

// Batch runs fn for every item with at most workers running at once. Each
// call gets its own timeout; a failing item never stops the others. When
// ctx is cancelled no further items are started and ctx.Err() is included
// in the returned errors. Items already started run to completion.
//
// Example:
//
//	errs := Batch(ctx, ids, 4, 30*time.Second, func(ctx context.Context, id int64) error {
//	    return synchronizer.Synchronize(ctx, id)
//	})
func Batch[T any](ctx context.Context, items []T, workers int, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	if workers <= 0 {
		workers = 1
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	collect := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	// errgroup only bounds concurrency; errors are collected per item so one
	// failure does not cancel the rest
	var g errgroup.Group
	g.SetLimit(workers)

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := runItem(ctx, timeout, item, fn); err != nil {
				collect(err)
			}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func runItem[T any](ctx context.Context, timeout time.Duration, item T, fn func(context.Context, T) error) (err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	return fn(ctx, item)
}
