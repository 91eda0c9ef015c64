package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/observability"
)

const (
	// SuspiciousIPThreshold is the number of failed logins from one address
	// within SuspiciousIPWindow that marks it suspicious.
	SuspiciousIPThreshold = 10
	SuspiciousIPWindow    = time.Hour

	// SuspiciousActivityWindow is how far back HasRecentSuspiciousActivity looks
	SuspiciousActivityWindow = 24 * time.Hour

	// MaxExportRows caps an export whose filter has no limit
	MaxExportRows = 10000

	archiveBatchSize = 1000
)

// Archiver receives archived audit batches
type Archiver interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// Service is the read and maintenance side of the audit log: reports,
// exports and retention. It records its own actions through the recorder.
type Service struct {
	store    Store
	recorder Recorder
	archiver Archiver
	logger   *observability.Logger
	now      func() time.Time
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithArchiver enables archival of expired events before deletion
func WithArchiver(a Archiver) ServiceOption {
	return func(s *Service) {
		s.archiver = a
	}
}

// WithServiceLogger sets the service logger
func WithServiceLogger(logger *observability.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithNow overrides the time source
func WithNow(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates an audit service over store
func NewService(store Store, recorder Recorder, opts ...ServiceOption) *Service {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	s := &Service{
		store:    store,
		recorder: recorder,
		logger:   observability.NewNopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying store
func (s *Service) Store() Store {
	return s.store
}

// Search returns matching events
func (s *Service) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	return s.store.Search(ctx, filter)
}

// Get returns one event by id, or nil
func (s *Service) Get(ctx context.Context, id int64) (*AuditEvent, error) {
	return s.store.Get(ctx, id)
}

// Statistics aggregates events in [from, to)
func (s *Service) Statistics(ctx context.Context, from, to time.Time) (*AuditStats, error) {
	return s.store.GetStats(ctx, SearchFilter{StartTime: &from, EndTime: &to})
}

// Timeline counts events per bucket in [from, to)
func (s *Service) Timeline(ctx context.Context, from, to time.Time, bucket BucketSize) ([]TimeBucket, error) {
	return s.store.Timeline(ctx, from, to, bucket, SearchFilter{})
}

// SecurityReport summarizes authentication failures and security events
type SecurityReport struct {
	PeriodStart      time.Time     `json:"period_start"`
	PeriodEnd        time.Time     `json:"period_end"`
	FailedLogins     int64         `json:"failed_login_attempts"`
	SecurityEvents   int64         `json:"total_security_events"`
	SuspiciousEvents int64         `json:"suspicious_activities"`
	TopFailedIPs     []IPCount     `json:"top_failed_ips"`
	SuspiciousIPs    []string      `json:"suspicious_ips"`
	RecentEvents     []*AuditEvent `json:"recent_security_events"`
}

// SecurityReport builds the security summary for [from, to)
func (s *Service) SecurityReport(ctx context.Context, from, to time.Time) (*SecurityReport, error) {
	report := &SecurityReport{
		PeriodStart:   from,
		PeriodEnd:     to,
		SuspiciousIPs: []string{},
	}

	failed := SearchFilter{StartTime: &from, EndTime: &to, EventTypes: []EventType{EventTypeLoginFailed}}
	security := SearchFilter{StartTime: &from, EndTime: &to, Module: ModuleSecurity}
	suspicious := SearchFilter{StartTime: &from, EndTime: &to, EventTypes: []EventType{EventTypeSuspiciousActivity}}

	var err error
	if report.FailedLogins, err = s.store.Count(ctx, failed); err != nil {
		return nil, err
	}
	if report.SecurityEvents, err = s.store.Count(ctx, security); err != nil {
		return nil, err
	}
	if report.SuspiciousEvents, err = s.store.Count(ctx, suspicious); err != nil {
		return nil, err
	}
	if report.TopFailedIPs, err = s.store.TopIPs(ctx, failed, 10); err != nil {
		return nil, err
	}
	for _, ip := range report.TopFailedIPs {
		if ip.Count >= SuspiciousIPThreshold {
			report.SuspiciousIPs = append(report.SuspiciousIPs, ip.IPAddress)
		}
	}

	security.Limit = 20
	if report.RecentEvents, err = s.store.Search(ctx, security); err != nil {
		return nil, err
	}
	return report, nil
}

// UserActivityReport summarizes one identity's events
type UserActivityReport struct {
	UserEmail    string              `json:"user_email"`
	PeriodStart  time.Time           `json:"period_start"`
	PeriodEnd    time.Time           `json:"period_end"`
	TotalEvents  int64               `json:"total_events"`
	EventsByType map[EventType]int64 `json:"events_by_type"`
	RecentEvents []*AuditEvent       `json:"recent_events"`
}

// UserActivityReport builds the activity summary of email in [from, to)
func (s *Service) UserActivityReport(ctx context.Context, email string, from, to time.Time) (*UserActivityReport, error) {
	filter := SearchFilter{StartTime: &from, EndTime: &to, UserEmail: auth.NormalizeEmail(email)}

	stats, err := s.store.GetStats(ctx, filter)
	if err != nil {
		return nil, err
	}

	filter.Limit = 50
	recent, err := s.store.Search(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &UserActivityReport{
		UserEmail:    filter.UserEmail,
		PeriodStart:  from,
		PeriodEnd:    to,
		TotalEvents:  stats.TotalEvents,
		EventsByType: stats.EventsByType,
		RecentEvents: recent,
	}, nil
}

// IsIPSuspicious reports whether ip produced at least SuspiciousIPThreshold
// failed logins within the last SuspiciousIPWindow
func (s *Service) IsIPSuspicious(ctx context.Context, ip string) (bool, error) {
	since := s.now().Add(-SuspiciousIPWindow)
	count, err := s.store.Count(ctx, SearchFilter{
		StartTime:  &since,
		EventTypes: []EventType{EventTypeLoginFailed},
		IPAddress:  ip,
	})
	if err != nil {
		return false, err
	}
	return count >= SuspiciousIPThreshold, nil
}

// HasRecentSuspiciousActivity reports whether email was the actor of a
// suspicious or unauthorized-access event in the last day
func (s *Service) HasRecentSuspiciousActivity(ctx context.Context, email string) (bool, error) {
	since := s.now().Add(-SuspiciousActivityWindow)
	count, err := s.store.Count(ctx, SearchFilter{
		StartTime:  &since,
		UserEmail:  auth.NormalizeEmail(email),
		EventTypes: []EventType{EventTypeSuspiciousActivity, EventTypeUnauthorizedAccess},
	})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SystemMetrics are rolling operational totals
type SystemMetrics struct {
	TotalEvents24h      int64 `json:"total_logs_24h"`
	ErrorEvents24h      int64 `json:"error_logs_24h"`
	FailedLogins24h     int64 `json:"failed_logins_24h"`
	SuccessfulLogins24h int64 `json:"successful_logins_24h"`
	UniqueActors24h     int64 `json:"unique_actors_24h"`
	APICalls1h          int64 `json:"api_calls_1h"`
}

// SystemMetrics computes the rolling totals
func (s *Service) SystemMetrics(ctx context.Context) (*SystemMetrics, error) {
	now := s.now()
	dayAgo := now.Add(-24 * time.Hour)
	hourAgo := now.Add(-time.Hour)

	stats, err := s.store.GetStats(ctx, SearchFilter{StartTime: &dayAgo})
	if err != nil {
		return nil, err
	}
	apiCalls, err := s.store.Count(ctx, SearchFilter{StartTime: &hourAgo, EventTypes: []EventType{EventTypeAPIAccess}})
	if err != nil {
		return nil, err
	}

	return &SystemMetrics{
		TotalEvents24h:      stats.TotalEvents,
		ErrorEvents24h:      stats.ErrorCount,
		FailedLogins24h:     stats.FailedLogins,
		SuccessfulLogins24h: stats.EventsByType[EventTypeLoginSuccess],
		UniqueActors24h:     stats.UniqueActors,
		APICalls1h:          apiCalls,
	}, nil
}

// Export encodes the matching events and records a DATA_EXPORT event with
// actor as the actor
func (s *Service) Export(ctx context.Context, filter SearchFilter, format ExportFormat, actor *auth.Principal) ([]byte, error) {
	if filter.Limit <= 0 || filter.Limit > MaxExportRows {
		filter.Limit = MaxExportRows
	}

	events, err := s.store.Search(ctx, filter)
	if err != nil {
		return nil, err
	}

	data, err := Encode(events, format)
	if err != nil {
		return nil, err
	}

	event := NewEvent(EventTypeDataExport, LevelInfo, ModuleAdmin, "Audit log export").
		WithDetail("format", string(format)).
		WithDetail("count", len(events))
	if actor != nil {
		event.WithActor(actor.ID, actor.Email)
	}
	s.recorder.Record(ctx, event)

	return data, nil
}

// Cleanup applies the retention policy: expired events are archived first
// when enabled, then deleted, and a LOG_CLEANUP event is recorded.
func (s *Service) Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error) {
	cutoff := policy.Cutoff(s.now())

	archived := 0
	if policy.ArchiveEnabled {
		if s.archiver == nil {
			return 0, fmt.Errorf("archiving enabled but no archiver configured")
		}
		var err error
		archived, err = s.Archive(ctx, cutoff)
		if err != nil {
			return 0, fmt.Errorf("archive before cleanup failed: %w", err)
		}
	}

	deleted, err := s.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	s.logger.WithFields(map[string]interface{}{
		"cutoff":   cutoff,
		"deleted":  deleted,
		"archived": archived,
	}).Info("audit retention applied")

	s.recorder.Record(ctx, NewEvent(EventTypeLogCleanup, LevelInfo, ModuleSystem,
		fmt.Sprintf("Removed audit events older than %s", cutoff.UTC().Format(time.RFC3339))).
		WithDetail("deleted", deleted).
		WithDetail("archived", archived).
		WithDetail("retention_days", policy.RetentionDays))

	return deleted, nil
}

// Archive uploads every event older than before, oldest first, as NDJSON
// objects of up to archiveBatchSize events. It deletes nothing.
func (s *Service) Archive(ctx context.Context, before time.Time) (int, error) {
	if s.archiver == nil {
		return 0, fmt.Errorf("no archiver configured")
	}

	runID := uuid.New().String()
	total := 0
	for part := 0; ; part++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		events, err := s.store.Search(ctx, SearchFilter{
			EndTime:   &before,
			SortOrder: "asc",
			Limit:     archiveBatchSize,
			Offset:    total,
		})
		if err != nil {
			return total, err
		}
		if len(events) == 0 {
			break
		}

		data, err := Encode(events, ExportFormatNDJSON)
		if err != nil {
			return total, err
		}

		key := archiveKey(before, runID, part)
		if err := s.archiver.PutObject(ctx, key, data, ExportFormatNDJSON.ContentType()); err != nil {
			return total, err
		}
		total += len(events)

		if len(events) < archiveBatchSize {
			break
		}
	}

	return total, nil
}

func archiveKey(before time.Time, runID string, part int) string {
	return fmt.Sprintf("audit/%s/%s-%04d.ndjson", before.UTC().Format("2006/01/02"), runID, part)
}
