package observability

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

type shutdownStep struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager runs registered shutdown steps in registration order under
// one shared deadline. Order matters: the HTTP server must stop accepting
// requests before the audit queue is flushed.
type ShutdownManager struct {
	logger          *Logger
	steps           []shutdownStep
	shutdownTimeout time.Duration
	mu              sync.Mutex
	once            sync.Once
	err             error
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(logger *Logger, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	return &ShutdownManager{
		logger:          logger,
		shutdownTimeout: timeout,
	}
}

// Register adds a named shutdown step
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	if fn == nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.steps = append(sm.steps, shutdownStep{name: name, fn: fn})
}

// Shutdown runs every step once. A failing step is logged and does not stop
// the later ones. Subsequent calls return the first result.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	sm.once.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, sm.shutdownTimeout)
		defer cancel()

		sm.mu.Lock()
		steps := append([]shutdownStep(nil), sm.steps...)
		sm.mu.Unlock()

		var errs []error
		for _, step := range steps {
			log := sm.logger.WithField("step", step.name)
			log.Info("shutting down")
			if err := step.fn(ctx); err != nil {
				log.WithError(err).Error("shutdown step failed")
				errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
				continue
			}
		}

		if len(errs) > 0 {
			sm.err = errors.Join(errs...)
			return
		}
		sm.logger.Info("graceful shutdown complete")
	})
	return sm.err
}

// WaitForShutdown blocks until SIGINT/SIGTERM or ctx is done, then shuts down
func (sm *ShutdownManager) WaitForShutdown(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()
	sm.logger.Info("shutdown requested")

	// the parent ctx may already be cancelled; steps still get the full timeout
	return sm.Shutdown(context.WithoutCancel(ctx))
}
