package identitysync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/platinummonkey/warden/pkg/async"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/profile"
)

// Action describes what Synchronize did
type Action string

const (
	ActionCreated   Action = "created"
	ActionLinked    Action = "linked"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
)

// Result is the outcome of synchronizing one identity
type Result struct {
	IdentityID int64
	ProfileID  string
	Action     Action
}

// Summary is the outcome of a SynchronizeAll run
type Summary struct {
	Processed int           `json:"processed"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
	Cancelled bool          `json:"cancelled"`
	Errors    []error       `json:"-"`
}

// Config tunes batch runs
type Config struct {
	Workers     int
	PageSize    int
	ItemTimeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Workers:     4,
		PageSize:    100,
		ItemTimeout: 30 * time.Second,
	}
}

// Synchronizer reconciles identities and profiles
type Synchronizer struct {
	identities identity.Store
	profiles   profile.Store
	config     Config
	recorder   audit.Recorder
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// Option configures a Synchronizer
type Option func(*Synchronizer)

// WithRecorder sets where SYNC_* events go
func WithRecorder(rec audit.Recorder) Option {
	return func(s *Synchronizer) {
		s.recorder = rec
	}
}

// WithLogger sets the operational logger
func WithLogger(logger *observability.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

// WithMetrics enables sync metrics
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Synchronizer) {
		s.metrics = metrics
	}
}

// New creates a Synchronizer
func New(identities identity.Store, profiles profile.Store, config Config, opts ...Option) *Synchronizer {
	defaults := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.ItemTimeout <= 0 {
		config.ItemTimeout = defaults.ItemTimeout
	}

	s := &Synchronizer{
		identities: identities,
		profiles:   profiles,
		config:     config,
		recorder:   audit.NopRecorder{},
		logger:     observability.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synchronize brings the profile of one identity in line with it
func (s *Synchronizer) Synchronize(ctx context.Context, identityID int64) (result *Result, err error) {
	ctx, span := observability.StartSpan(ctx, "identitysync", "Synchronize",
		observability.AttrIdentityID.Int64(identityID))
	defer func() {
		if result != nil {
			span.SetAttributes(observability.AttrSyncAction.String(string(result.Action)))
		}
		observability.EndSpan(span, err)
	}()

	record, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		s.metrics.RecordSyncIdentity("failed")
		return nil, fmt.Errorf("failed to load identity %d: %w", identityID, err)
	}

	result, err = s.synchronize(ctx, record)
	if err != nil {
		s.metrics.RecordSyncIdentity("failed")
		s.recorder.Record(ctx, audit.NewEvent(audit.EventTypeSyncFailed, audit.LevelError, audit.ModuleSync,
			"Profile synchronization failed").
			WithActor(record.ID, record.Email).
			WithDetail("identity_id", record.ID).
			WithDetail("error", err.Error()))
		return nil, err
	}

	s.metrics.RecordSyncIdentity(string(result.Action))
	if result.Action != ActionUnchanged {
		s.recorder.Record(ctx, audit.NewEvent(audit.EventTypeSyncCompleted, audit.LevelInfo, audit.ModuleSync,
			"Profile synchronized").
			WithActor(record.ID, record.Email).
			WithDetail("identity_id", record.ID).
			WithDetail("profile_id", result.ProfileID).
			WithDetail("action", string(result.Action)))
	}
	return result, nil
}

func (s *Synchronizer) synchronize(ctx context.Context, record *identity.Record) (*Result, error) {
	p, action, err := s.locateProfile(ctx, record)
	if err != nil {
		return nil, err
	}

	if action != ActionCreated && mirror(record, p) {
		if err := s.profiles.Update(ctx, p); err != nil {
			return nil, fmt.Errorf("failed to update profile %s: %w", p.ID, err)
		}
		if action == ActionUnchanged {
			action = ActionUpdated
		}
	}

	if record.ProfileID == nil || *record.ProfileID != p.ID {
		if err := s.identities.SetProfileID(ctx, record.ID, p.ID); err != nil {
			return nil, fmt.Errorf("failed to link identity %d: %w", record.ID, err)
		}
		if action == ActionUnchanged || action == ActionUpdated {
			action = ActionLinked
		}
	}

	return &Result{IdentityID: record.ID, ProfileID: p.ID, Action: action}, nil
}

// locateProfile finds the identity's profile by its link, then by the
// reciprocal id, and creates one when neither exists
func (s *Synchronizer) locateProfile(ctx context.Context, record *identity.Record) (*profile.Profile, Action, error) {
	if record.ProfileID != nil {
		p, err := s.profiles.Get(ctx, *record.ProfileID)
		switch {
		case err == nil:
			if p.IdentityID != 0 && p.IdentityID != record.ID {
				return nil, "", fmt.Errorf("%w: profile %s belongs to identity %d",
					auth.ErrSyncConflict, p.ID, p.IdentityID)
			}
			return p, ActionUnchanged, nil
		case !errors.Is(err, profile.ErrNotFound):
			return nil, "", fmt.Errorf("failed to load profile: %w", err)
		}
		// dangling link; fall through and relink
	}

	p, err := s.profiles.GetByIdentityID(ctx, record.ID)
	if err == nil {
		return p, ActionLinked, nil
	}
	if !errors.Is(err, profile.ErrNotFound) {
		return nil, "", fmt.Errorf("failed to load profile: %w", err)
	}

	p = NewProfileFor(record)
	if err := s.profiles.Create(ctx, p); err != nil {
		if errors.Is(err, profile.ErrAlreadyLinked) {
			// created concurrently by registration or another run
			existing, getErr := s.profiles.GetByIdentityID(ctx, record.ID)
			if getErr != nil {
				return nil, "", fmt.Errorf("failed to load profile: %w", getErr)
			}
			return existing, ActionLinked, nil
		}
		return nil, "", fmt.Errorf("failed to create profile: %w", err)
	}
	return p, ActionCreated, nil
}

// NewProfileFor builds a fresh profile mirroring the identity
func NewProfileFor(record *identity.Record) *profile.Profile {
	p := &profile.Profile{
		IdentityID:  record.ID,
		Preferences: profile.DefaultNotificationPreferences(),
		Metadata:    make(map[string]interface{}),
	}
	mirror(record, p)
	return p
}

// mirror copies the identity's authoritative fields into p and reports
// whether anything changed
func mirror(record *identity.Record, p *profile.Profile) bool {
	status := profile.StatusFor(record.Enabled, record.Locked, record.Verified, record.Deleted())
	changed := p.IdentityID != record.ID ||
		p.Email != record.Email ||
		p.Name != record.Name ||
		p.Status != status ||
		p.Role != string(record.Role) ||
		p.Verified != record.Verified

	p.IdentityID = record.ID
	p.Email = record.Email
	p.Name = record.Name
	p.Status = status
	p.Role = string(record.Role)
	p.Verified = record.Verified
	return changed
}

// SynchronizeAll synchronizes every live identity without a profile link.
// It pages by id so identities that keep failing are visited once per run.
func (s *Synchronizer) SynchronizeAll(ctx context.Context) (*Summary, error) {
	ctx, span := observability.StartSpan(ctx, "identitysync", "SynchronizeAll")
	start := time.Now()
	summary := &Summary{}

	var succeeded atomic.Int64
	var afterID int64
	for ctx.Err() == nil {
		page, err := s.identities.ListUnlinked(ctx, afterID, s.config.PageSize)
		if err != nil {
			observability.EndSpan(span, err)
			s.metrics.RecordSyncRun("failed")
			return summary, fmt.Errorf("failed to list unlinked identities: %w", err)
		}
		if len(page) == 0 {
			break
		}
		afterID = page[len(page)-1].ID

		errs := async.Batch(ctx, page, s.config.Workers, s.config.ItemTimeout,
			func(ctx context.Context, record *identity.Record) error {
				if _, err := s.Synchronize(ctx, record.ID); err != nil {
					return fmt.Errorf("identity %d: %w", record.ID, err)
				}
				succeeded.Add(1)
				return nil
			})
		for _, err := range errs {
			// Batch reports the run's own cancellation as a bare ctx.Err()
			if err == ctx.Err() {
				continue
			}
			summary.Failed++
			summary.Errors = append(summary.Errors, err)
		}
	}

	summary.Succeeded = int(succeeded.Load())
	summary.Processed = summary.Succeeded + summary.Failed
	summary.Cancelled = ctx.Err() != nil
	summary.Duration = time.Since(start)

	outcome := "success"
	switch {
	case summary.Cancelled:
		outcome = "cancelled"
	case summary.Failed > 0:
		outcome = "partial"
	}
	s.metrics.RecordSyncRun(outcome)

	span.SetAttributes(
		observability.AttrSyncCount.Int(summary.Processed),
		observability.AttrSyncFailed.Int(summary.Failed),
	)
	observability.EndSpan(span, nil)

	observability.WithTrace(ctx, s.logger).WithFields(map[string]interface{}{
		"processed":   summary.Processed,
		"succeeded":   summary.Succeeded,
		"failed":      summary.Failed,
		"cancelled":   summary.Cancelled,
		"duration_ms": summary.Duration.Milliseconds(),
	}).Info("identity synchronization finished")

	if summary.Cancelled {
		return summary, ctx.Err()
	}
	return summary, nil
}
