package middleware

import (
	"mime"
	"net/http"
	"strings"

	"github.com/platinummonkey/warden/pkg/auth"
)

// DefaultAPIPrefix marks paths served to programmatic clients
const DefaultAPIPrefix = "/api/"

// Classify decides which channel authenticates r. The first matching
// rule wins: an API path, a bearer Authorization header, or a request
// that sends or accepts JSON all select the token channel; everything
// else is a browser request on the session channel.
func Classify(r *http.Request, apiPrefix string) auth.Channel {
	if apiPrefix == "" {
		apiPrefix = DefaultAPIPrefix
	}
	if strings.HasPrefix(r.URL.Path, apiPrefix) {
		return auth.ChannelToken
	}
	if _, ok := bearerToken(r); ok {
		return auth.ChannelToken
	}
	if isJSONContentType(r.Header.Get("Content-Type")) || acceptsJSON(r.Header.Get("Accept")) {
		return auth.ChannelToken
	}
	return auth.ChannelSession
}

// bearerToken extracts the token of an "Authorization: Bearer" header
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func isJSONContentType(value string) bool {
	if value == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return false
	}
	return isJSONMediaType(mediaType)
}

// acceptsJSON reports whether any media range of an Accept header is JSON.
// Wildcards do not count; browsers send */* on every request.
func acceptsJSON(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && isJSONMediaType(mediaType) {
			return true
		}
	}
	return false
}

func isJSONMediaType(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
