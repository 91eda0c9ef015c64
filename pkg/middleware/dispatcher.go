package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/session"
)

// TokenValidator verifies bearer tokens and returns their subject email
type TokenValidator interface {
	Validate(token string) (string, error)
}

// SessionResolver resolves browser sessions and remember tokens
type SessionResolver interface {
	Resolve(ctx context.Context, sessionID string) (*session.Session, error)
	ResumeFromRemember(ctx context.Context, token, ip string) (*session.Resumed, error)
	Invalidate(ctx context.Context, sessionID string) error
	RevokeRemember(ctx context.Context, token string) error
}

// IdentityLookup loads live identities by email
type IdentityLookup interface {
	GetByEmail(ctx context.Context, email string) (*identity.Record, error)
}

// DispatcherConfig configures request classification and exemptions
type DispatcherConfig struct {
	APIPrefix string
	LoginPath string
	// ExemptPrefixes are static asset paths served without authentication
	ExemptPrefixes []string
	// PublicPaths are served without authentication, matched exactly
	PublicPaths []string
	Cookies     Cookies
}

// DefaultDispatcherConfig returns the default configuration
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		APIPrefix:      DefaultAPIPrefix,
		LoginPath:      "/login",
		ExemptPrefixes: []string{"/static/", "/assets/", "/css/", "/js/", "/images/", "/favicon.ico"},
		PublicPaths: []string{
			"/", "/login", "/register",
			"/api/auth/login", "/api/auth/register",
			"/health", "/health/live", "/health/ready", "/metrics",
		},
		Cookies: DefaultCookies(),
	}
}

// Dispatcher authenticates every request on the channel Classify picks.
// Token requests that fail get a JSON 401; browser requests that fail are
// redirected to the login page with the original path.
type Dispatcher struct {
	tokens     TokenValidator
	sessions   SessionResolver
	identities IdentityLookup
	config     DispatcherConfig
	logger     *observability.Logger
}

// NewDispatcher creates a dispatcher
func NewDispatcher(tokens TokenValidator, sessions SessionResolver, identities IdentityLookup, config DispatcherConfig, logger *observability.Logger) *Dispatcher {
	if config.APIPrefix == "" {
		config.APIPrefix = DefaultAPIPrefix
	}
	if config.LoginPath == "" {
		config.LoginPath = "/login"
	}
	if config.Cookies.SessionName == "" {
		config.Cookies = DefaultCookies()
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Dispatcher{
		tokens:     tokens,
		sessions:   sessions,
		identities: identities,
		config:     config,
		logger:     logger,
	}
}

// Cookies returns the cookie settings shared with the login handlers
func (d *Dispatcher) Cookies() Cookies {
	return d.config.Cookies
}

// Exempt reports whether path is served without authentication
func (d *Dispatcher) Exempt(path string) bool {
	for _, prefix := range d.config.ExemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	for _, public := range d.config.PublicPaths {
		if path == public {
			return true
		}
	}
	return false
}

// Handler wraps next with authentication
func (d *Dispatcher) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d.Exempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		switch Classify(r, d.config.APIPrefix) {
		case auth.ChannelToken:
			d.serveToken(w, r, next)
		default:
			d.serveSession(w, r, next)
		}
	})
}

func (d *Dispatcher) serveToken(w http.ResponseWriter, r *http.Request, next http.Handler) {
	token, ok := bearerToken(r)
	if !ok {
		d.unauthorized(w, r, auth.ErrUnauthenticated)
		return
	}

	email, err := d.tokens.Validate(token)
	if err != nil {
		d.unauthorized(w, r, err)
		return
	}

	record, err := d.loadIdentity(r.Context(), email)
	if err != nil {
		d.unauthorized(w, r, err)
		return
	}

	ctx := auth.WithAuthContext(r.Context(), &auth.AuthContext{
		Principal: record.Principal(),
		Channel:   auth.ChannelToken,
	})
	next.ServeHTTP(w, r.WithContext(ctx))
}

// unauthorized always answers 401, carrying the specific code of err
func (d *Dispatcher) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	code := auth.Code(err)
	message := auth.Message(err)
	if code == "INTERNAL_ERROR" {
		d.logger.WithError(err).Error("token authentication failed")
		code = auth.Code(auth.ErrUnauthenticated)
		message = auth.Message(auth.ErrUnauthenticated)
	}
	httputil.WriteError(w, r, http.StatusUnauthorized, code, message)
}

func (d *Dispatcher) serveSession(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx := r.Context()
	cookies := d.config.Cookies

	if sessionID := cookies.Session(r); sessionID != "" {
		sess, err := d.sessions.Resolve(ctx, sessionID)
		if err == nil {
			record, err := d.loadIdentity(ctx, sess.Email)
			if err == nil && record.ID == sess.IdentityID {
				d.serveWithSession(w, r, next, record, sessionID)
				return
			}
		} else if !errors.Is(err, session.ErrNotFound) {
			d.logger.WithError(err).Error("session lookup failed")
		}
	}

	if token := cookies.Remember(r); token != "" {
		resumed, err := d.sessions.ResumeFromRemember(ctx, token, auth.ClientIP(r))
		if err == nil {
			record, err := d.loadIdentity(ctx, resumed.Principal.Email)
			if err == nil && record.ID == resumed.Principal.ID {
				cookies.SetSession(w, resumed.SessionID)
				cookies.SetRemember(w, resumed.RememberToken)
				d.serveWithSession(w, r, next, record, resumed.SessionID)
				return
			}
			d.discardResumed(ctx, resumed)
		} else if !errors.Is(err, session.ErrRememberInvalid) && !errors.Is(err, session.ErrRememberReused) {
			d.logger.WithError(err).Error("remember token lookup failed")
		}
	}

	cookies.Clear(w)
	d.redirectToLogin(w, r)
}

// discardResumed ends the session and token a remember login produced for
// an identity that may no longer authenticate
func (d *Dispatcher) discardResumed(ctx context.Context, resumed *session.Resumed) {
	if err := d.sessions.Invalidate(ctx, resumed.SessionID); err != nil {
		d.logger.WithError(err).Error("failed to discard resumed session")
	}
	if err := d.sessions.RevokeRemember(ctx, resumed.RememberToken); err != nil {
		d.logger.WithError(err).Error("failed to discard replacement remember token")
	}
}

func (d *Dispatcher) serveWithSession(w http.ResponseWriter, r *http.Request, next http.Handler, record *identity.Record, sessionID string) {
	ctx := auth.WithAuthContext(r.Context(), &auth.AuthContext{
		Principal: record.Principal(),
		Channel:   auth.ChannelSession,
		SessionID: sessionID,
	})
	next.ServeHTTP(w, r.WithContext(ctx))
}

// loadIdentity returns the identity behind a credential, which must still
// be allowed to authenticate
func (d *Dispatcher) loadIdentity(ctx context.Context, email string) (*identity.Record, error) {
	record, err := d.identities.GetByEmail(ctx, email)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, auth.ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	if record.Locked {
		return nil, auth.ErrAccountLocked
	}
	if !record.CanAuthenticate() {
		return nil, auth.ErrAccountDisabled
	}
	return record, nil
}

func (d *Dispatcher) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := d.config.LoginPath + "?redirect=" + url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, target, http.StatusFound)
}

// RequireRole rejects callers without role: 401 when unauthenticated and
// 403 otherwise
func RequireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac := auth.FromContext(r.Context())
			if ac == nil || ac.Principal == nil {
				httputil.WriteAuthError(w, r, auth.ErrUnauthenticated)
				return
			}
			if !ac.HasRole(role) {
				httputil.WriteAuthError(w, r, auth.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
