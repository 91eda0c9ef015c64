package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/profile"
)

// AuthHandlers serves login, logout, registration and self-service
// account routes for both channels
type AuthHandlers struct {
	accounts *accounts.Service
	tokens   TokenIssuer
	sessions SessionStarter
	cookies  middleware.Cookies
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(svc *accounts.Service, tokens TokenIssuer, sessions SessionStarter, cookies middleware.Cookies) *AuthHandlers {
	return &AuthHandlers{
		accounts: svc,
		tokens:   tokens,
		sessions: sessions,
		cookies:  cookies,
	}
}

// LoginResponse is the body of a successful API login
type LoginResponse struct {
	Token     string    `json:"token"`
	Type      string    `json:"type"`
	ExpiresIn int64     `json:"expires_in"`
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      auth.Role `json:"role"`
}

// RegisterRoutes registers authentication routes. limiter, when set,
// guards the credential endpoints.
func (h *AuthHandlers) RegisterRoutes(router *mux.Router, limiter *middleware.RateLimitMiddleware) {
	limited := func(fn http.HandlerFunc) http.Handler {
		if limiter == nil {
			return fn
		}
		return limiter.Handler(fn)
	}

	// Browser routes
	router.Handle("/login", limited(h.webLogin)).Methods("POST")
	router.HandleFunc("/logout", h.webLogout).Methods("POST")

	// API routes
	router.Handle("/api/auth/login", limited(h.apiLogin)).Methods("POST")
	router.Handle("/api/auth/register", limited(h.register)).Methods("POST")
	router.HandleFunc("/api/auth/logout", h.apiLogout).Methods("POST")
	router.HandleFunc("/api/me", h.me).Methods("GET")
	router.HandleFunc("/api/me/password", h.changePassword).Methods("PUT")
	router.HandleFunc("/api/me/profile", h.getProfile).Methods("GET")
	router.HandleFunc("/api/me/profile", h.updateProfile).Methods("PATCH")
}

// webLogin handles POST /login from an HTML form
func (h *AuthHandlers) webLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/login?error", http.StatusFound)
		return
	}
	redirect := safeRedirect(r.PostFormValue("redirect"))
	email := r.PostFormValue("email")
	if email == "" {
		email = r.PostFormValue("username")
	}

	record, err := h.accounts.Authenticate(r.Context(), accounts.Credentials{
		Email:    email,
		Password: r.PostFormValue("password"),
		Channel:  auth.ChannelSession,
	})
	if err != nil {
		if !isAuthFailure(err) {
			observability.FromContext(r.Context()).WithError(err).Error("web login failed")
		}
		target := "/login?error"
		if redirect != "/" {
			target += "&redirect=" + url.QueryEscape(redirect)
		}
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	principal := *record.Principal()
	sessionID, err := h.sessions.CreateSession(r.Context(), principal)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to create session")
		http.Redirect(w, r, "/login?error", http.StatusFound)
		return
	}
	h.cookies.SetSession(w, sessionID)

	if isChecked(r.PostFormValue("remember-me")) {
		token, err := h.sessions.IssueRemember(r.Context(), principal)
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).Warn("failed to issue remember token")
		} else {
			h.cookies.SetRemember(w, token)
		}
	}

	http.Redirect(w, r, redirect, http.StatusFound)
}

// webLogout handles POST /logout
func (h *AuthHandlers) webLogout(w http.ResponseWriter, r *http.Request) {
	ac := auth.FromContext(r.Context())
	var principal *auth.Principal
	sessionID := h.cookies.Session(r)
	if ac != nil {
		principal = ac.Principal
		if ac.SessionID != "" {
			sessionID = ac.SessionID
		}
	}

	if err := h.accounts.Logout(r.Context(), principal, sessionID, h.cookies.Remember(r)); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("logout did not revoke every credential")
	}
	h.cookies.Clear(w)
	http.Redirect(w, r, "/login?logout", http.StatusFound)
}

// apiLogin handles POST /api/auth/login
func (h *AuthHandlers) apiLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.WriteBadRequest(w, r, "email and password are required")
		return
	}

	record, err := h.accounts.Authenticate(r.Context(), accounts.Credentials{
		Email:    req.Email,
		Password: req.Password,
		Channel:  auth.ChannelToken,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	token, err := h.tokens.Issue(*record.Principal())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, LoginResponse{
		Token:     token,
		Type:      "Bearer",
		ExpiresIn: int64(h.tokens.TTL().Seconds()),
		ID:        record.ID,
		Email:     record.Email,
		Name:      record.Name,
		Role:      record.Role,
	})
}

// apiLogout handles POST /api/auth/logout. Bearer tokens are stateless;
// the client discards its token and the logout is recorded.
func (h *AuthHandlers) apiLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Logout(r.Context(), auth.PrincipalFromContext(r.Context()), "", ""); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// register handles POST /api/auth/register
func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	var req accounts.RegisterRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	record, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, record)
}

// me handles GET /api/me
func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	if p == nil {
		httputil.WriteAuthError(w, r, auth.ErrUnauthenticated)
		return
	}
	record, err := h.accounts.Get(r.Context(), p.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, record)
}

// changePassword handles PUT /api/me/password
func (h *AuthHandlers) changePassword(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	if p == nil {
		httputil.WriteAuthError(w, r, auth.ErrUnauthenticated)
		return
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), p.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// getProfile handles GET /api/me/profile
func (h *AuthHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	if p == nil {
		httputil.WriteAuthError(w, r, auth.ErrUnauthenticated)
		return
	}
	prof, err := h.accounts.GetProfile(r.Context(), p.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, prof)
}

// updateProfile handles PATCH /api/me/profile
func (h *AuthHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	if p == nil {
		httputil.WriteAuthError(w, r, auth.ErrUnauthenticated)
		return
	}

	var patch profile.Patch
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}

	prof, err := h.accounts.UpdateProfile(r.Context(), p.ID, patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, prof)
}

// writeServiceError maps service errors onto HTTP responses
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *accounts.ValidationError
	switch {
	case errors.As(err, &verr):
		httputil.WriteError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error())
	case errors.Is(err, accounts.ErrEmailTaken):
		httputil.WriteError(w, r, http.StatusConflict, "EMAIL_TAKEN", "Email is already registered")
	case errors.Is(err, identity.ErrNotFound), errors.Is(err, profile.ErrNotFound):
		httputil.WriteNotFound(w, r, "Not found")
	case isAuthFailure(err), errors.Is(err, auth.ErrSyncConflict):
		httputil.WriteAuthError(w, r, err)
	default:
		observability.FromContext(r.Context()).WithError(err).Error("request failed")
		httputil.WriteInternalError(w, r)
	}
}

// isAuthFailure reports errors from the authentication taxonomy
func isAuthFailure(err error) bool {
	return auth.Code(err) != "INTERNAL_ERROR" && !errors.Is(err, auth.ErrAuditWriteFailed)
}

func isChecked(value string) bool {
	switch strings.ToLower(value) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

// safeRedirect keeps post-login redirects on this site
func safeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}
