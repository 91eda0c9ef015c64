package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/contextkeys"
)

// Recorder is the single audit emission port. Record never blocks on the
// durable write and never reports its failure to the caller.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent)
}

// WithRecorder adds an audit recorder to the context
func WithRecorder(ctx context.Context, rec Recorder) context.Context {
	return context.WithValue(ctx, contextkeys.AuditRecorderKey, rec)
}

// FromContext retrieves the audit recorder from context
func FromContext(ctx context.Context) Recorder {
	if rec, ok := ctx.Value(contextkeys.AuditRecorderKey).(Recorder); ok {
		return rec
	}
	return NopRecorder{}
}

// Origin is where a request came from
type Origin struct {
	IPAddress string
	UserAgent string
}

// WithOrigin records the caller's origin on the context so events emitted
// by services that never see the request still carry it
func WithOrigin(ctx context.Context, origin Origin) context.Context {
	return context.WithValue(ctx, contextkeys.OriginKey, origin)
}

// OriginFromContext returns the origin set by WithOrigin, if any
func OriginFromContext(ctx context.Context) Origin {
	if ctx == nil {
		return Origin{}
	}
	origin, _ := ctx.Value(contextkeys.OriginKey).(Origin)
	return origin
}

// NopRecorder discards every event
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *AuditEvent) {}

// NewEvent creates an event stamped with the current time
func NewEvent(eventType EventType, level Level, module Module, description string) *AuditEvent {
	return &AuditEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		Level:       level,
		Module:      module,
		Description: description,
		Details:     make(map[string]interface{}),
	}
}

// WithActor sets the acting identity
func (e *AuditEvent) WithActor(userID int64, email string) *AuditEvent {
	if userID != 0 {
		id := userID
		e.UserID = &id
	}
	e.UserEmail = auth.NormalizeEmail(email)
	return e
}

// WithRequest copies the origin address and user agent of r
func (e *AuditEvent) WithRequest(r *http.Request) *AuditEvent {
	if r == nil {
		return e
	}
	e.IPAddress = auth.ClientIP(r)
	e.UserAgent = r.UserAgent()
	return e
}

// WithOriginFrom fills the origin address and user agent from ctx where
// the event does not already carry them
func (e *AuditEvent) WithOriginFrom(ctx context.Context) *AuditEvent {
	origin := OriginFromContext(ctx)
	if e.IPAddress == "" {
		e.IPAddress = origin.IPAddress
	}
	if e.UserAgent == "" {
		e.UserAgent = origin.UserAgent
	}
	return e
}

// WithIP sets the origin address
func (e *AuditEvent) WithIP(ip string) *AuditEvent {
	e.IPAddress = ip
	return e
}

// WithDetail adds a single key to the detail map
func (e *AuditEvent) WithDetail(key string, value interface{}) *AuditEvent {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithDetails merges details into the detail map
func (e *AuditEvent) WithDetails(details map[string]interface{}) *AuditEvent {
	for k, v := range details {
		e.WithDetail(k, v)
	}
	return e
}

// WithReference links the event to a business entity
func (e *AuditEvent) WithReference(referenceID string) *AuditEvent {
	e.ReferenceID = referenceID
	return e
}

// LoginSuccessEvent records an accepted login
func LoginSuccessEvent(userID int64, email string, channel auth.Channel) *AuditEvent {
	return NewEvent(EventTypeLoginSuccess, LevelInfo, ModuleAuth, "Login successful").
		WithActor(userID, email).
		WithDetail("channel", string(channel))
}

// LoginFailedEvent records a rejected login. The actor id is never set so
// that unknown and known emails produce identical records.
func LoginFailedEvent(email, reason string, channel auth.Channel) *AuditEvent {
	return NewEvent(EventTypeLoginFailed, LevelWarn, ModuleAuth, "Login failed").
		WithActor(0, email).
		WithDetail("reason", reason).
		WithDetail("channel", string(channel))
}

// LogoutEvent records an explicit logout
func LogoutEvent(userID int64, email string) *AuditEvent {
	return NewEvent(EventTypeLogout, LevelInfo, ModuleAuth, "Logout").WithActor(userID, email)
}

// SecurityEvent records suspicious or unauthorized activity
func SecurityEvent(eventType EventType, email, description string) *AuditEvent {
	return NewEvent(eventType, LevelWarn, ModuleSecurity, description).WithActor(0, email)
}

// SystemErrorEvent records an internal failure
func SystemErrorEvent(module Module, description string, err error) *AuditEvent {
	e := NewEvent(EventTypeSystemError, LevelError, module, description)
	if err != nil {
		e.WithDetail("error", err.Error())
	}
	return e
}

// AdminActionEvent records an administrative change to an identity. The
// admin is the actor; the target is carried in the details.
func AdminActionEvent(eventType EventType, admin *auth.Principal, targetID int64, targetEmail, description string) *AuditEvent {
	e := NewEvent(eventType, LevelInfo, ModuleAdmin, description).
		WithDetail("target_user_id", targetID).
		WithDetail("target_email", targetEmail)
	if admin != nil {
		e.WithActor(admin.ID, admin.Email).WithDetail("admin_email", admin.Email)
	}
	return e
}

// BusinessEvent records an action reported by an external collaborator,
// such as an order, referencing the entity by id.
func BusinessEvent(eventType EventType, module Module, email, referenceID, description string) *AuditEvent {
	return NewEvent(eventType, LevelInfo, module, description).
		WithActor(0, email).
		WithReference(referenceID)
}
