// Package lockout decides whether a login attempt may proceed, based on
// recent LOGIN_FAILED events in the audit log.
//
// Counts are taken per email and, independently, per origin IP over a
// trailing window. Nothing is reset on a successful login; failures age
// out of the window instead. The audit pipeline is asynchronous, so a
// failure recorded a moment ago may not be counted yet.
package lockout

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/observability"
)

// Counter is the slice of the audit store the policy reads
type Counter interface {
	Count(ctx context.Context, filter audit.SearchFilter) (int64, error)
}

// Config tunes the policy
type Config struct {
	Window time.Duration
	// Threshold is the number of failures per email that locks it out
	Threshold int
	// IPThreshold is the number of failures per origin IP that locks it out
	IPThreshold int
}

// DefaultConfig returns a 5 failures per hour policy for both scopes
func DefaultConfig() Config {
	return Config{
		Window:      time.Hour,
		Threshold:   5,
		IPThreshold: 5,
	}
}

// Decision is the outcome of a check
type Decision struct {
	EmailFailures int64
	IPFailures    int64
	// Scope is "email" or "ip" when throttled, empty otherwise
	Scope string
}

// Throttled reports whether the attempt must be rejected
func (d Decision) Throttled() bool {
	return d.Scope != ""
}

// Policy evaluates lockout from the audit log
type Policy struct {
	counter Counter
	config  Config
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// Option configures a Policy
type Option func(*Policy)

// WithLogger sets the operational logger
func WithLogger(logger *observability.Logger) Option {
	return func(p *Policy) {
		p.logger = logger
	}
}

// WithMetrics enables throttling metrics
func WithMetrics(metrics *observability.Metrics) Option {
	return func(p *Policy) {
		p.metrics = metrics
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(p *Policy) {
		p.now = now
	}
}

// NewPolicy creates a lockout policy
func NewPolicy(counter Counter, config Config, opts ...Option) *Policy {
	defaults := DefaultConfig()
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	if config.Threshold <= 0 {
		config.Threshold = defaults.Threshold
	}
	if config.IPThreshold <= 0 {
		config.IPThreshold = defaults.IPThreshold
	}

	p := &Policy{
		counter: counter,
		config:  config,
		logger:  observability.NewNopLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate counts recent failures for the email and the IP. Either count
// reaching its threshold throttles the attempt. An empty email or IP skips
// that scope.
func (p *Policy) Evaluate(ctx context.Context, email, ip string) (Decision, error) {
	since := p.now().Add(-p.config.Window)
	email = auth.NormalizeEmail(email)

	var d Decision
	g, gctx := errgroup.WithContext(ctx)
	if email != "" {
		g.Go(func() error {
			n, err := p.counter.Count(gctx, audit.SearchFilter{
				StartTime:  &since,
				EventTypes: []audit.EventType{audit.EventTypeLoginFailed},
				UserEmail:  email,
			})
			d.EmailFailures = n
			return err
		})
	}
	if ip != "" {
		g.Go(func() error {
			n, err := p.counter.Count(gctx, audit.SearchFilter{
				StartTime:  &since,
				EventTypes: []audit.EventType{audit.EventTypeLoginFailed},
				IPAddress:  ip,
			})
			d.IPFailures = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Decision{}, fmt.Errorf("failed to count login failures: %w", err)
	}

	switch {
	case d.EmailFailures >= int64(p.config.Threshold):
		d.Scope = "email"
	case d.IPFailures >= int64(p.config.IPThreshold):
		d.Scope = "ip"
	}
	return d, nil
}

// Check returns auth.ErrThrottled when the attempt must be rejected. If the
// audit log cannot be read the attempt is allowed and the error is logged.
func (p *Policy) Check(ctx context.Context, email, ip string) error {
	d, err := p.Evaluate(ctx, email, ip)
	if err != nil {
		p.logger.WithError(err).WithField("ip_address", ip).Error("lockout check failed, allowing attempt")
		return nil
	}
	if !d.Throttled() {
		return nil
	}

	p.metrics.RecordThrottled(d.Scope)
	p.logger.WithFields(map[string]interface{}{
		"scope":          d.Scope,
		"email_failures": d.EmailFailures,
		"ip_failures":    d.IPFailures,
		"ip_address":     ip,
	}).Warn("login attempt throttled")
	return fmt.Errorf("%w: too many failed attempts by %s", auth.ErrThrottled, d.Scope)
}
