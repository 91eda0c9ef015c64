package middleware

import (
	"net/http"
	"time"
)

// Cookies names and scopes the browser session cookies
type Cookies struct {
	SessionName  string
	RememberName string
	SessionTTL   time.Duration
	RememberTTL  time.Duration
	Secure       bool
}

// DefaultCookies returns the default cookie settings
func DefaultCookies() Cookies {
	return Cookies{
		SessionName:  "WARDEN_SESSION",
		RememberName: "WARDEN_REMEMBER",
		SessionTTL:   12 * time.Hour,
		RememberTTL:  7 * 24 * time.Hour,
	}
}

func (c Cookies) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// SetSession writes the session cookie
func (c Cookies) SetSession(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, c.cookie(c.SessionName, sessionID, c.SessionTTL))
}

// SetRemember writes the remember-me cookie
func (c Cookies) SetRemember(w http.ResponseWriter, token string) {
	http.SetCookie(w, c.cookie(c.RememberName, token, c.RememberTTL))
}

// Clear expires both cookies
func (c Cookies) Clear(w http.ResponseWriter) {
	session := c.cookie(c.SessionName, "", 0)
	session.MaxAge = -1
	remember := c.cookie(c.RememberName, "", 0)
	remember.MaxAge = -1
	http.SetCookie(w, session)
	http.SetCookie(w, remember)
}

// Session returns the session id sent by the browser
func (c Cookies) Session(r *http.Request) string {
	return cookieValue(r, c.SessionName)
}

// Remember returns the remember-me token sent by the browser
func (c Cookies) Remember(r *http.Request) string {
	return cookieValue(r, c.RememberName)
}

func cookieValue(r *http.Request, name string) string {
	if cookie, err := r.Cookie(name); err == nil {
		return cookie.Value
	}
	return ""
}
