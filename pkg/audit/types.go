package audit

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeLoginSuccess         EventType = "LOGIN_SUCCESS"
	EventTypeLoginFailed          EventType = "LOGIN_FAILED"
	EventTypeLogout               EventType = "LOGOUT"
	EventTypePasswordChange       EventType = "PASSWORD_CHANGE"
	EventTypePasswordResetRequest EventType = "PASSWORD_RESET_REQUEST"
	EventTypeAccountLocked        EventType = "ACCOUNT_LOCKED"
	EventTypeAccountUnlocked      EventType = "ACCOUNT_UNLOCKED"
	EventTypeEmailVerified        EventType = "EMAIL_VERIFIED"

	// Identity lifecycle events
	EventTypeUserCreated           EventType = "USER_CREATED"
	EventTypeUserUpdated           EventType = "USER_UPDATED"
	EventTypeUserDeleted           EventType = "USER_DELETED"
	EventTypeUserRestored          EventType = "USER_RESTORED"
	EventTypeUserRoleChanged       EventType = "USER_ROLE_CHANGED"
	EventTypeUserVerifiedManually  EventType = "USER_VERIFIED_MANUALLY"
	EventTypeUserRegistrationError EventType = "USER_REGISTRATION_ERROR"
	EventTypeProfileUpdated        EventType = "PROFILE_UPDATED"

	// Security and system events
	EventTypeSuspiciousActivity EventType = "SUSPICIOUS_ACTIVITY"
	EventTypeUnauthorizedAccess EventType = "UNAUTHORIZED_ACCESS"
	EventTypeSystemError        EventType = "SYSTEM_ERROR"
	EventTypeAPIAccess          EventType = "API_ACCESS"
	EventTypeDataExport         EventType = "DATA_EXPORT"
	EventTypeLogCleanup         EventType = "LOG_CLEANUP"
	EventTypeSyncCompleted      EventType = "SYNC_COMPLETED"
	EventTypeSyncFailed         EventType = "SYNC_FAILED"

	// Business events reported by external collaborators
	EventTypeOrderCreated     EventType = "ORDER_CREATED"
	EventTypePaymentProcessed EventType = "PAYMENT_PROCESSED"
	EventTypePaymentFailed    EventType = "PAYMENT_FAILED"
)

// EventTypes lists every known event type
var EventTypes = []EventType{
	EventTypeLoginSuccess, EventTypeLoginFailed, EventTypeLogout, EventTypePasswordChange,
	EventTypePasswordResetRequest, EventTypeAccountLocked, EventTypeAccountUnlocked, EventTypeEmailVerified,
	EventTypeUserCreated, EventTypeUserUpdated, EventTypeUserDeleted, EventTypeUserRestored,
	EventTypeUserRoleChanged, EventTypeUserVerifiedManually, EventTypeUserRegistrationError, EventTypeProfileUpdated,
	EventTypeSuspiciousActivity, EventTypeUnauthorizedAccess, EventTypeSystemError, EventTypeAPIAccess,
	EventTypeDataExport, EventTypeLogCleanup, EventTypeSyncCompleted, EventTypeSyncFailed,
	EventTypeOrderCreated, EventTypePaymentProcessed, EventTypePaymentFailed,
}

// Valid reports whether t belongs to the closed set of event types
func (t EventType) Valid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Level is the severity of an event
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Module tags the functional area that produced an event
type Module string

const (
	ModuleAuth     Module = "AUTH"
	ModuleUser     Module = "USER"
	ModuleAdmin    Module = "ADMIN"
	ModuleSecurity Module = "SECURITY"
	ModuleSystem   Module = "SYSTEM"
	ModuleAPI      Module = "API"
	ModuleSync     Module = "SYNC"
	ModuleOrder    Module = "ORDER"
	ModulePayment  Module = "PAYMENT"
)

// AuditEvent represents a single, immutable audit log entry
type AuditEvent struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventType EventType `json:"event_type"`
	Level     Level     `json:"level"`
	Module    Module    `json:"module"`

	// Actor information; both are empty for unauthenticated events
	UserID    *int64 `json:"user_id,omitempty"`
	UserEmail string `json:"user_email,omitempty"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	Description string                 `json:"description"`
	Details     map[string]interface{} `json:"details,omitempty"`

	// ReferenceID points at a business entity, e.g. an order id
	ReferenceID string `json:"reference_id,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*AuditEvent, error) {
	var event AuditEvent
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	// Time range, start inclusive and end exclusive
	StartTime *time.Time
	EndTime   *time.Time

	// Actor filters
	UserID    *int64
	UserEmail string

	// Event filters
	EventTypes []EventType
	Level      Level
	Module     Module

	// Request context filters
	IPAddress string

	// Text is matched case-insensitively against the description
	Text string

	// Pagination
	Limit  int
	Offset int

	// SortOrder is "asc" or "desc" (default) on timestamp
	SortOrder string
}

// Matches reports whether event satisfies the filter's predicates.
// Pagination and ordering are ignored.
func (f SearchFilter) Matches(event *AuditEvent) bool {
	if f.StartTime != nil && event.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && !event.Timestamp.Before(*f.EndTime) {
		return false
	}
	if f.UserID != nil && (event.UserID == nil || *event.UserID != *f.UserID) {
		return false
	}
	if f.UserEmail != "" && !strings.EqualFold(event.UserEmail, f.UserEmail) {
		return false
	}
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if event.EventType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Level != "" && event.Level != f.Level {
		return false
	}
	if f.Module != "" && event.Module != f.Module {
		return false
	}
	if f.IPAddress != "" && event.IPAddress != f.IPAddress {
		return false
	}
	if f.Text != "" && !strings.Contains(strings.ToLower(event.Description), strings.ToLower(f.Text)) {
		return false
	}
	return true
}

// ExportFormat represents the format for exporting audit logs
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson" // Newline-delimited JSON
)

// AuditStats represents aggregate counts over a time range
type AuditStats struct {
	TotalEvents    int64               `json:"total_events"`
	EventsByType   map[EventType]int64 `json:"events_by_type"`
	EventsByLevel  map[Level]int64     `json:"events_by_level"`
	EventsByModule map[Module]int64    `json:"events_by_module"`
	ErrorCount     int64               `json:"error_count"`
	WarnCount      int64               `json:"warn_count"`
	InfoCount      int64               `json:"info_count"`
	LoginAttempts  int64               `json:"login_attempts"`
	FailedLogins   int64               `json:"failed_logins"`
	UniqueActors   int64               `json:"unique_actors"`
	UniqueIPs      int64               `json:"unique_ips"`
	TimeRange      *TimeRange          `json:"time_range,omitempty"`
}

// NewStats returns empty stats covering the filter's time range
func NewStats(filter SearchFilter) *AuditStats {
	stats := &AuditStats{
		EventsByType:   make(map[EventType]int64),
		EventsByLevel:  make(map[Level]int64),
		EventsByModule: make(map[Module]int64),
	}
	if filter.StartTime != nil || filter.EndTime != nil {
		stats.TimeRange = &TimeRange{}
		if filter.StartTime != nil {
			stats.TimeRange.Start = *filter.StartTime
		}
		if filter.EndTime != nil {
			stats.TimeRange.End = *filter.EndTime
		}
	}
	return stats
}

// Derive fills the summary counters from the per-type and per-level maps
func (s *AuditStats) Derive() {
	s.ErrorCount = s.EventsByLevel[LevelError]
	s.WarnCount = s.EventsByLevel[LevelWarn]
	s.InfoCount = s.EventsByLevel[LevelInfo]
	s.FailedLogins = s.EventsByType[EventTypeLoginFailed]
	s.LoginAttempts = s.EventsByType[EventTypeLoginSuccess] + s.FailedLogins
}

// TimeRange represents a time range for statistics
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// BucketSize is the granularity of a timeline
type BucketSize string

const (
	BucketHour BucketSize = "hour"
	BucketDay  BucketSize = "day"
)

// TimeBucket is the event count within one bucket of a timeline
type TimeBucket struct {
	Start time.Time `json:"start"`
	Count int64     `json:"count"`
}

// IPCount pairs an origin address with an event count
type IPCount struct {
	IPAddress string `json:"ip_address"`
	Count     int64  `json:"count"`
}

// RetentionPolicy defines how long audit logs are kept
type RetentionPolicy struct {
	// RetentionDays is the number of days to keep audit logs
	RetentionDays int

	// ArchiveEnabled exports expired events before they are deleted
	ArchiveEnabled bool
}

// DefaultRetentionPolicy returns a default retention policy (90 days)
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		RetentionDays:  90,
		ArchiveEnabled: false,
	}
}

// Cutoff returns the instant before which events are expired
func (p RetentionPolicy) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -p.RetentionDays)
}
