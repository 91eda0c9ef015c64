package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/identitysync"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/profile"
)

// ErrEmailTaken is returned when registering an email already in use
var ErrEmailTaken = identity.ErrDuplicateEmail

// ValidationError reports a rejected input field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// LoginGuard decides whether a login attempt may proceed
type LoginGuard interface {
	Check(ctx context.Context, email, ip string) error
}

// SessionRevoker ends browser sessions and remember tokens
type SessionRevoker interface {
	Invalidate(ctx context.Context, sessionID string) error
	RevokeRemember(ctx context.Context, token string) error
	RevokeAll(ctx context.Context, identityID int64) (int, error)
}

// ProfileSynchronizer pushes identity changes into the profile store
type ProfileSynchronizer interface {
	Synchronize(ctx context.Context, identityID int64) (*identitysync.Result, error)
}

// Config tunes account policy
type Config struct {
	// RequireVerified rejects logins of unverified accounts
	RequireVerified   bool
	MinPasswordLength int
}

// DefaultConfig returns the default policy
func DefaultConfig() Config {
	return Config{
		RequireVerified:   false,
		MinPasswordLength: 8,
	}
}

// Service implements registration, login and account administration on
// top of the identity and profile stores. Every state change is audited.
type Service struct {
	identities identity.Store
	profiles   profile.Store
	hasher     auth.PasswordHasher
	guard      LoginGuard
	sessions   SessionRevoker
	syncer     ProfileSynchronizer
	config     Config

	recorder audit.Recorder
	logger   *observability.Logger
	metrics  *observability.Metrics
	now      func() time.Time

	// dummyHash keeps unknown-email logins as slow as wrong passwords
	dummyHash string
}

// Deps are the collaborators of a Service
type Deps struct {
	Identities identity.Store
	Profiles   profile.Store
	Hasher     auth.PasswordHasher
	Guard      LoginGuard
	Sessions   SessionRevoker
	Syncer     ProfileSynchronizer
	Recorder   audit.Recorder
	Logger     *observability.Logger
	Metrics    *observability.Metrics
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates an account service
func NewService(deps Deps, config Config, opts ...Option) (*Service, error) {
	if deps.Identities == nil || deps.Profiles == nil {
		return nil, fmt.Errorf("identity and profile stores are required")
	}
	if config.MinPasswordLength <= 0 {
		config.MinPasswordLength = DefaultConfig().MinPasswordLength
	}

	s := &Service{
		identities: deps.Identities,
		profiles:   deps.Profiles,
		hasher:     deps.Hasher,
		guard:      deps.Guard,
		sessions:   deps.Sessions,
		syncer:     deps.Syncer,
		config:     config,
		recorder:   deps.Recorder,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		now:        time.Now,
	}
	if s.hasher == nil {
		s.hasher = auth.NewBcryptHasher(0)
	}
	if s.recorder == nil {
		s.recorder = audit.NopRecorder{}
	}
	if s.logger == nil {
		s.logger = observability.NewNopLogger()
	}
	for _, opt := range opts {
		opt(s)
	}

	dummy, err := s.hasher.Hash("warden-timing-equalizer")
	if err != nil {
		return nil, err
	}
	s.dummyHash = dummy
	return s, nil
}

// RegisterRequest is a self-service sign-up
type RegisterRequest struct {
	Email     string           `json:"email"`
	Password  string           `json:"password"`
	Name      string           `json:"name"`
	FirstName string           `json:"first_name,omitempty"`
	LastName  string           `json:"last_name,omitempty"`
	Phone     string           `json:"phone,omitempty"`
	Address   *profile.Address `json:"address,omitempty"`
}

func (s *Service) validatePassword(password string) error {
	if len(password) < s.config.MinPasswordLength {
		return &ValidationError{Field: "password",
			Message: fmt.Sprintf("must be at least %d characters", s.config.MinPasswordLength)}
	}
	return nil
}

// Register creates an identity with role USER, then its profile. The
// profile is best-effort: if it cannot be created the identity still
// stands and the synchronizer creates the profile later.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*identity.Record, error) {
	email := auth.NormalizeEmail(req.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, &ValidationError{Field: "email", Message: "must be a valid email address"}
	}
	if err := s.validatePassword(req.Password); err != nil {
		return nil, err
	}
	if req.Name == "" {
		req.Name = req.FirstName
		if req.LastName != "" {
			req.Name += " " + req.LastName
		}
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	record := &identity.Record{
		Email:        email,
		PasswordHash: hash,
		Name:         req.Name,
		Role:         auth.RoleUser,
		Enabled:      true,
	}
	if err := s.identities.Create(ctx, record); err != nil {
		reason := "store_error"
		if errors.Is(err, identity.ErrDuplicateEmail) {
			reason = "duplicate_email"
		}
		s.recorder.Record(ctx, audit.NewEvent(audit.EventTypeUserRegistrationError, audit.LevelWarn, audit.ModuleUser,
			"Registration rejected").
			WithActor(0, email).
			WithDetail("reason", reason))
		if errors.Is(err, identity.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to register: %w", err)
	}

	s.recorder.Record(ctx, audit.NewEvent(audit.EventTypeUserCreated, audit.LevelInfo, audit.ModuleUser,
		"User registered").
		WithActor(record.ID, record.Email).
		WithDetail("role", string(record.Role)))

	if err := s.createProfile(ctx, record, req); err != nil {
		s.logger.WithError(err).WithField("identity_id", record.ID).Warn("profile creation deferred to synchronizer")
		s.recorder.Record(ctx, audit.NewEvent(audit.EventTypeUserRegistrationError, audit.LevelWarn, audit.ModuleUser,
			"Profile could not be created at registration").
			WithActor(record.ID, record.Email).
			WithDetail("reason", "profile_store").
			WithDetail("error", err.Error()))
	}
	return record, nil
}

func (s *Service) createProfile(ctx context.Context, record *identity.Record, req RegisterRequest) error {
	p := identitysync.NewProfileFor(record)
	p.FirstName = req.FirstName
	p.LastName = req.LastName
	p.Phone = req.Phone
	if req.Address != nil {
		profile.Patch{Address: req.Address}.Apply(p)
	}

	if err := s.profiles.Create(ctx, p); err != nil {
		return err
	}
	if err := s.identities.SetProfileID(ctx, record.ID, p.ID); err != nil {
		return err
	}
	record.ProfileID = &p.ID
	return nil
}

// Credentials are a login attempt
type Credentials struct {
	Email    string
	Password string
	Channel  auth.Channel
}

// Authenticate checks a login attempt. The lockout policy is consulted
// before the password is compared, and unknown emails fail exactly like
// wrong passwords. Every failure records LOGIN_FAILED.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (record *identity.Record, err error) {
	email := auth.NormalizeEmail(creds.Email)
	ip := audit.OriginFromContext(ctx).IPAddress

	ctx, span := observability.StartSpan(ctx, "accounts", "Authenticate",
		observability.AttrAuthChannel.String(string(creds.Channel)))
	defer func() { observability.EndSpan(span, err) }()

	fail := func(reason string, cause error) (*identity.Record, error) {
		s.metrics.RecordLogin(string(creds.Channel), reason)
		s.recorder.Record(ctx, audit.LoginFailedEvent(email, reason, creds.Channel))
		return nil, cause
	}

	if s.guard != nil {
		if err := s.guard.Check(ctx, email, ip); err != nil {
			return fail("throttled", err)
		}
	}

	record, err = s.identities.GetByEmail(ctx, email)
	if errors.Is(err, identity.ErrNotFound) {
		s.hasher.Compare(s.dummyHash, creds.Password)
		return fail("bad_credentials", auth.ErrInvalidCredentials)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	if !s.hasher.Compare(record.PasswordHash, creds.Password) {
		return fail("bad_credentials", auth.ErrInvalidCredentials)
	}
	if !record.Enabled || record.Deleted() {
		return fail("disabled", auth.ErrAccountDisabled)
	}
	if record.Locked {
		return fail("locked", auth.ErrAccountLocked)
	}
	if s.config.RequireVerified && !record.Verified {
		return fail("unverified", auth.ErrAccountUnverified)
	}

	now := s.now().UTC()
	if err := s.identities.TouchLastLogin(ctx, record.ID, now); err != nil {
		observability.WithTrace(ctx, s.logger).WithError(err).WithField("identity_id", record.ID).Warn("failed to record last login")
	} else {
		record.LastLogin = &now
	}

	s.metrics.RecordLogin(string(creds.Channel), "success")
	s.recorder.Record(ctx, audit.LoginSuccessEvent(record.ID, record.Email, creds.Channel))
	return record, nil
}

// Get returns an identity by id, including soft-deleted ones
func (s *Service) Get(ctx context.Context, id int64) (*identity.Record, error) {
	return s.identities.GetByID(ctx, id)
}

// List pages through live identities in id order
func (s *Service) List(ctx context.Context, afterID int64, limit int) ([]*identity.Record, error) {
	return s.identities.List(ctx, afterID, limit)
}

// GetByEmail returns a live identity by email
func (s *Service) GetByEmail(ctx context.Context, email string) (*identity.Record, error) {
	return s.identities.GetByEmail(ctx, email)
}

// ChangePassword replaces the password after checking the current one.
// All sessions and remember tokens of the identity are revoked.
func (s *Service) ChangePassword(ctx context.Context, id int64, current, next string) error {
	record, err := s.identities.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if !s.hasher.Compare(record.PasswordHash, current) {
		s.recorder.Record(ctx, audit.NewEvent(audit.EventTypePasswordChange, audit.LevelWarn, audit.ModuleAuth,
			"Password change rejected").
			WithActor(record.ID, record.Email).
			WithDetail("outcome", "bad_current_password"))
		return auth.ErrInvalidCredentials
	}
	if err := s.validatePassword(next); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if _, err := s.identities.Apply(ctx, record.ID, identity.Changes{PasswordHash: &hash}); err != nil {
		return fmt.Errorf("failed to change password: %w", err)
	}

	revoked := s.revokeSessions(ctx, record.ID)
	s.recorder.Record(ctx, audit.NewEvent(audit.EventTypePasswordChange, audit.LevelInfo, audit.ModuleAuth,
		"Password changed").
		WithActor(record.ID, record.Email).
		WithDetail("sessions_revoked", revoked))
	return nil
}

// Logout ends the caller's session and remember token
func (s *Service) Logout(ctx context.Context, p *auth.Principal, sessionID, rememberToken string) error {
	var errs []error
	if s.sessions != nil {
		if sessionID != "" {
			errs = append(errs, s.sessions.Invalidate(ctx, sessionID))
		}
		if rememberToken != "" {
			errs = append(errs, s.sessions.RevokeRemember(ctx, rememberToken))
		}
	}
	if p != nil {
		s.recorder.Record(ctx, audit.LogoutEvent(p.ID, p.Email))
	}
	return errors.Join(errs...)
}

func (s *Service) revokeSessions(ctx context.Context, id int64) int {
	if s.sessions == nil {
		return 0
	}
	n, err := s.sessions.RevokeAll(ctx, id)
	if err != nil {
		s.logger.WithError(err).WithField("identity_id", id).Error("failed to revoke sessions")
	}
	return n
}

func (s *Service) synchronize(ctx context.Context, id int64) {
	if s.syncer == nil {
		return
	}
	if _, err := s.syncer.Synchronize(ctx, id); err != nil {
		s.logger.WithError(err).WithField("identity_id", id).Warn("profile synchronization failed")
	}
}
