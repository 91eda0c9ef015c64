package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/observability"
)

// Writer persists a single event
type Writer interface {
	Append(ctx context.Context, event *AuditEvent) error
}

// DeadLetter receives events whose durable write failed
type DeadLetter interface {
	Write(event *AuditEvent) error
}

// AsyncConfig configures the asynchronous recorder
type AsyncConfig struct {
	QueueSize    int
	WriteTimeout time.Duration

	// Server and Environment are stamped into every event's details
	Server      string
	Environment string
}

// DefaultAsyncConfig returns sensible defaults
func DefaultAsyncConfig() AsyncConfig {
	return AsyncConfig{
		QueueSize:    1024,
		WriteTimeout: 5 * time.Second,
		Environment:  "development",
	}
}

// AsyncRecorder is a Recorder backed by a bounded queue drained by a
// single background writer. One writer keeps events from the same
// operation in emission order. A full queue drops the event.
type AsyncRecorder struct {
	writer     Writer
	config     AsyncConfig
	logger     *observability.Logger
	metrics    *observability.Metrics
	deadLetter DeadLetter

	queue chan *AuditEvent
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// AsyncOption configures an AsyncRecorder
type AsyncOption func(*AsyncRecorder)

// WithLogger sets the local operational logger
func WithLogger(logger *observability.Logger) AsyncOption {
	return func(r *AsyncRecorder) {
		r.logger = logger
	}
}

// WithMetrics enables pipeline metrics
func WithMetrics(metrics *observability.Metrics) AsyncOption {
	return func(r *AsyncRecorder) {
		r.metrics = metrics
	}
}

// WithDeadLetter sets where failed writes are spooled
func WithDeadLetter(dl DeadLetter) AsyncOption {
	return func(r *AsyncRecorder) {
		r.deadLetter = dl
	}
}

// NewAsyncRecorder starts the background writer
func NewAsyncRecorder(writer Writer, config AsyncConfig, opts ...AsyncOption) *AsyncRecorder {
	defaults := DefaultAsyncConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}

	r := &AsyncRecorder{
		writer: writer,
		config: config,
		logger: observability.NewNopLogger(),
		queue:  make(chan *AuditEvent, config.QueueSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	go r.run()
	return r
}

// Record enqueues the event and returns immediately
func (r *AsyncRecorder) Record(ctx context.Context, event *AuditEvent) {
	if event == nil {
		return
	}
	r.enrich(ctx, event)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.drop(event, "recorder closed")
		return
	}

	select {
	case r.queue <- event:
		r.metrics.RecordAuditEvent("enqueued")
		r.metrics.SetAuditQueueDepth(len(r.queue))
	default:
		r.drop(event, "queue full")
	}
}

// Close stops accepting events and waits for the queue to drain
func (r *AsyncRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit queue not drained: %w", ctx.Err())
	}
}

// Pending returns the number of queued events
func (r *AsyncRecorder) Pending() int {
	return len(r.queue)
}

func (r *AsyncRecorder) enrich(ctx context.Context, event *AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Details == nil {
		event.Details = make(map[string]interface{})
	}
	if _, ok := event.Details["server"]; !ok && r.config.Server != "" {
		event.Details["server"] = r.config.Server
	}
	if _, ok := event.Details["environment"]; !ok && r.config.Environment != "" {
		event.Details["environment"] = r.config.Environment
	}
	if ctx != nil {
		if event.RequestID == "" {
			event.RequestID = observability.GetRequestID(ctx)
		}
		event.WithOriginFrom(ctx)
	}
}

func (r *AsyncRecorder) drop(event *AuditEvent, reason string) {
	r.metrics.RecordAuditEvent("dropped")
	r.logger.WithFields(map[string]interface{}{
		"event_type": string(event.EventType),
		"user_email": event.UserEmail,
		"reason":     reason,
	}).Warn("audit event dropped")
}

func (r *AsyncRecorder) run() {
	defer close(r.done)
	for event := range r.queue {
		r.write(event)
		r.metrics.SetAuditQueueDepth(len(r.queue))
	}
}

func (r *AsyncRecorder) write(event *AuditEvent) {
	defer observability.RecoverPanic(r.logger, "audit write")

	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	if err := r.writer.Append(ctx, event); err != nil {
		err = fmt.Errorf("%w: %v", auth.ErrAuditWriteFailed, err)
		r.metrics.RecordAuditEvent("failed")
		r.logger.WithError(err).WithFields(map[string]interface{}{
			"event_type": string(event.EventType),
			"user_email": event.UserEmail,
			"timestamp":  event.Timestamp,
		}).Error("audit event could not be persisted")

		if r.deadLetter != nil {
			if dlErr := r.deadLetter.Write(event); dlErr != nil {
				r.logger.WithError(dlErr).Error("failed to spool audit event to dead letter")
			}
		}
		return
	}
	r.metrics.RecordAuditEvent("written")
}
