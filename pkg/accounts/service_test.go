package accounts_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/audit/audittest"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/identity/identitytest"
	"github.com/platinummonkey/warden/pkg/identitysync"
	"github.com/platinummonkey/warden/pkg/lockout"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/profile"
	"github.com/platinummonkey/warden/pkg/profile/profiletest"
)

type fakeSessions struct {
	revoked     []int64
	invalidated []string
	remembers   []string
}

func (f *fakeSessions) Invalidate(_ context.Context, id string) error {
	f.invalidated = append(f.invalidated, id)
	return nil
}

func (f *fakeSessions) RevokeRemember(_ context.Context, token string) error {
	f.remembers = append(f.remembers, token)
	return nil
}

func (f *fakeSessions) RevokeAll(_ context.Context, id int64) (int, error) {
	f.revoked = append(f.revoked, id)
	return 2, nil
}

// switchableProfiles rejects creates while down
type switchableProfiles struct {
	profile.Store
	down bool
}

func (s *switchableProfiles) Create(ctx context.Context, p *profile.Profile) error {
	if s.down {
		return errors.New("profile store down")
	}
	return s.Store.Create(ctx, p)
}

// hookHasher runs onHash before hashing, standing in for a write that
// lands while a password is being hashed
type hookHasher struct {
	auth.PasswordHasher
	onHash func()
}

func (h *hookHasher) Hash(password string) (string, error) {
	if h.onHash != nil {
		h.onHash()
	}
	return h.PasswordHasher.Hash(password)
}

type fixture struct {
	svc        *accounts.Service
	hasher     *hookHasher
	identities *identitytest.Store
	profiles   profile.Store
	recorder   *audittest.Recorder
	sessions   *fakeSessions
	metrics    *observability.Metrics
}

func newFixture(t *testing.T, config accounts.Config) *fixture {
	t.Helper()
	profiles, _ := profiletest.NewSQLiteStore(t)
	return newFixtureWith(t, config, profiles)
}

func newFixtureWith(t *testing.T, config accounts.Config, profiles profile.Store) *fixture {
	t.Helper()
	f := &fixture{
		identities: identitytest.NewStore(),
		profiles:   profiles,
		recorder:   audittest.NewRecorder(),
		sessions:   &fakeSessions{},
		metrics:    observability.NewMetrics(prometheus.NewRegistry()),
		hasher:     &hookHasher{PasswordHasher: auth.NewBcryptHasher(4)},
	}
	syncer := identitysync.New(f.identities, f.profiles, identitysync.DefaultConfig(),
		identitysync.WithRecorder(f.recorder))

	svc, err := accounts.NewService(accounts.Deps{
		Identities: f.identities,
		Profiles:   f.profiles,
		Hasher:     f.hasher,
		Guard:      lockout.NewPolicy(f.recorder, lockout.DefaultConfig()),
		Sessions:   f.sessions,
		Syncer:     syncer,
		Recorder:   f.recorder,
		Metrics:    f.metrics,
	}, config)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) register(t *testing.T, email string) *identity.Record {
	t.Helper()
	record, err := f.svc.Register(context.Background(), accounts.RegisterRequest{
		Email:    email,
		Password: "correct-horse",
		Name:     "User",
	})
	require.NoError(t, err)
	return record
}

func login(f *fixture, ctx context.Context, email, password string) (*identity.Record, error) {
	return f.svc.Authenticate(ctx, accounts.Credentials{Email: email, Password: password, Channel: auth.ChannelToken})
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, accounts.DefaultConfig())

	record, err := f.svc.Register(ctx, accounts.RegisterRequest{
		Email:     "  Ana@X.com ",
		Password:  "correct-horse",
		FirstName: "Ana",
		LastName:  "Diaz",
		Phone:     "999111222",
		Address:   &profile.Address{City: "Lima"},
	})
	require.NoError(t, err)

	assert.Equal(t, "ana@x.com", record.Email)
	assert.Equal(t, "Ana Diaz", record.Name)
	assert.Equal(t, auth.RoleUser, record.Role)
	assert.True(t, record.Enabled)
	assert.False(t, record.Verified)
	assert.NotEqual(t, "correct-horse", record.PasswordHash)
	require.NotNil(t, record.ProfileID)

	p, err := f.svc.GetProfile(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "999111222", p.Phone)
	assert.Equal(t, profile.DefaultCountry, p.Address.Country)
	assert.Equal(t, profile.StatusPendingVerification, p.Status)

	assert.Equal(t, []audit.EventType{audit.EventTypeUserCreated}, f.recorder.Types())
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t, accounts.DefaultConfig())

	tests := []struct {
		name  string
		req   accounts.RegisterRequest
		field string
	}{
		{"bad email", accounts.RegisterRequest{Email: "not-an-email", Password: "correct-horse"}, "email"},
		{"display name", accounts.RegisterRequest{Email: "Ana <a@x.com>", Password: "correct-horse"}, "email"},
		{"short password", accounts.RegisterRequest{Email: "a@x.com", Password: "short"}, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(context.Background(), tt.req)
			var verr *accounts.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.Empty(t, f.recorder.Events())
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newFixture(t, accounts.DefaultConfig())
	f.register(t, "ana@x.com")

	_, err := f.svc.Register(context.Background(), accounts.RegisterRequest{Email: "ANA@x.com", Password: "another-pass"})
	assert.ErrorIs(t, err, accounts.ErrEmailTaken)

	failures := f.recorder.EventsOfType(audit.EventTypeUserRegistrationError)
	require.Len(t, failures, 1)
	assert.Equal(t, "duplicate_email", failures[0].Details["reason"])
}

func TestRegister_ProfileStoreDown(t *testing.T) {
	ctx := context.Background()
	profiles, _ := profiletest.NewSQLiteStore(t)
	f := newFixtureWith(t, accounts.DefaultConfig(), &switchableProfiles{Store: profiles, down: true})

	record, err := f.svc.Register(ctx, accounts.RegisterRequest{Email: "ana@x.com", Password: "correct-horse"})
	require.NoError(t, err, "identity must survive a profile failure")
	assert.Nil(t, record.ProfileID)

	_, err = f.identities.GetByEmail(ctx, "ana@x.com")
	assert.NoError(t, err)
	assert.Equal(t, []audit.EventType{audit.EventTypeUserCreated, audit.EventTypeUserRegistrationError}, f.recorder.Types())
}

func TestAuthenticate(t *testing.T) {
	ctx := audit.WithOrigin(context.Background(), audit.Origin{IPAddress: "10.0.0.1", UserAgent: "test"})
	f := newFixture(t, accounts.DefaultConfig())
	registered := f.register(t, "ana@x.com")

	record, err := login(f, ctx, "ANA@x.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, record.ID)
	assert.NotNil(t, record.LastLogin)

	stored, err := f.identities.GetByID(ctx, registered.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLogin)

	successes := f.recorder.EventsOfType(audit.EventTypeLoginSuccess)
	require.Len(t, successes, 1)
	assert.Equal(t, "10.0.0.1", successes[0].IPAddress)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LoginAttemptsTotal.WithLabelValues("token", "success")))
}

func TestAuthenticate_UnknownAndWrongPasswordLookAlike(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, accounts.DefaultConfig())
	f.register(t, "ana@x.com")

	_, wrongErr := login(f, ctx, "ana@x.com", "wrong-password")
	_, unknownErr := login(f, ctx, "nobody@x.com", "wrong-password")

	assert.ErrorIs(t, wrongErr, auth.ErrInvalidCredentials)
	assert.Equal(t, wrongErr, unknownErr)

	failures := f.recorder.EventsOfType(audit.EventTypeLoginFailed)
	require.Len(t, failures, 2)
	for _, e := range failures {
		assert.Equal(t, "bad_credentials", e.Details["reason"])
		assert.Nil(t, e.UserID)
	}
}

func TestAuthenticate_AccountState(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(r *identity.Record)
		config  accounts.Config
		wantErr error
		reason  string
	}{
		{"disabled", func(r *identity.Record) { r.Enabled = false }, accounts.DefaultConfig(), auth.ErrAccountDisabled, "disabled"},
		{"deleted", func(r *identity.Record) { now := time.Now(); r.DeletedAt = &now }, accounts.DefaultConfig(), auth.ErrInvalidCredentials, "bad_credentials"},
		{"locked", func(r *identity.Record) { r.Locked = true }, accounts.DefaultConfig(), auth.ErrAccountLocked, "locked"},
		{"unverified", func(r *identity.Record) {}, accounts.Config{RequireVerified: true}, auth.ErrAccountUnverified, "unverified"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.config)
			record := f.register(t, "ana@x.com")
			tt.mutate(record)
			require.NoError(t, f.identities.Update(ctx, record))

			_, err := login(f, ctx, "ana@x.com", "correct-horse")
			assert.ErrorIs(t, err, tt.wantErr)

			failures := f.recorder.EventsOfType(audit.EventTypeLoginFailed)
			require.Len(t, failures, 1)
			assert.Equal(t, tt.reason, failures[0].Details["reason"])
		})
	}
}

func TestAuthenticate_Lockout(t *testing.T) {
	ctx := audit.WithOrigin(context.Background(), audit.Origin{IPAddress: "10.0.0.9"})
	f := newFixture(t, accounts.DefaultConfig())
	f.register(t, "ana@x.com")

	for i := 0; i < 5; i++ {
		_, err := login(f, ctx, "ana@x.com", "wrong-password")
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	}

	_, err := login(f, ctx, "ana@x.com", "correct-horse")
	assert.ErrorIs(t, err, auth.ErrThrottled, "the correct password is refused once throttled")
	assert.Empty(t, f.recorder.EventsOfType(audit.EventTypeLoginSuccess))

	last := f.recorder.Events()[len(f.recorder.Events())-1]
	assert.Equal(t, audit.EventTypeLoginFailed, last.EventType)
	assert.Equal(t, "throttled", last.Details["reason"])
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LoginAttemptsTotal.WithLabelValues("token", "throttled")))
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, accounts.DefaultConfig())
	record := f.register(t, "ana@x.com")

	t.Run("wrong current password", func(t *testing.T) {
		err := f.svc.ChangePassword(ctx, record.ID, "nope", "new-password-1")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
		assert.Empty(t, f.sessions.revoked)
	})

	t.Run("too short", func(t *testing.T) {
		err := f.svc.ChangePassword(ctx, record.ID, "correct-horse", "short")
		var verr *accounts.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("success revokes sessions", func(t *testing.T) {
		require.NoError(t, f.svc.ChangePassword(ctx, record.ID, "correct-horse", "new-password-1"))
		assert.Equal(t, []int64{record.ID}, f.sessions.revoked)

		_, err := login(f, ctx, "ana@x.com", "new-password-1")
		assert.NoError(t, err)
	})

	changes := f.recorder.EventsOfType(audit.EventTypePasswordChange)
	require.Len(t, changes, 2)
	assert.Equal(t, audit.LevelWarn, changes[0].Level)
	assert.Equal(t, audit.LevelInfo, changes[1].Level)
}

func TestChangePassword_KeepsConcurrentLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, accounts.DefaultConfig())
	record := f.register(t, "ana@x.com")

	f.hasher.onHash = func() {
		f.hasher.onHash = nil
		_, err := f.svc.Lock(ctx, admin, record.ID, "fraud")
		require.NoError(t, err)
	}
	require.NoError(t, f.svc.ChangePassword(ctx, record.ID, "correct-horse", "new-password-1"))

	stored, err := f.identities.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.True(t, stored.Locked, "the password write must not undo the lock")
	assert.True(t, f.hasher.Compare(stored.PasswordHash, "new-password-1"))
}

func TestLogout(t *testing.T) {
	f := newFixture(t, accounts.DefaultConfig())
	p := &auth.Principal{ID: 7, Email: "ana@x.com"}

	require.NoError(t, f.svc.Logout(context.Background(), p, "ws_session", "wr_remember"))
	assert.Equal(t, []string{"ws_session"}, f.sessions.invalidated)
	assert.Equal(t, []string{"wr_remember"}, f.sessions.remembers)
	assert.Equal(t, []audit.EventType{audit.EventTypeLogout}, f.recorder.Types())
}
