package httputil

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/platinummonkey/warden/pkg/auth"
)

// ErrorResponse is the body of every JSON error. Code is stable and safe to
// branch on; Message is for humans.
type ErrorResponse struct {
	Path      string `json:"path"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Status    int    `json:"status"`
	Code      string `json:"code"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a structured JSON error
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	path := ""
	if r != nil {
		path = r.URL.Path
	}
	WriteJSON(w, status, ErrorResponse{
		Path:      path,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    status,
		Code:      code,
	})
}

// WriteAuthError maps err through the auth error taxonomy. Unknown errors
// become a generic 500 so internals never reach the client.
func WriteAuthError(w http.ResponseWriter, r *http.Request, err error) {
	WriteError(w, r, auth.HTTPStatus(err), auth.Code(err), auth.Message(err))
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusBadRequest, "BAD_REQUEST", message)
}

// WriteNotFound writes a not found error (404)
func WriteNotFound(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusNotFound, "NOT_FOUND", message)
}

// WriteTooManyRequests writes a rate limit error (429)
func WriteTooManyRequests(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusTooManyRequests, auth.Code(auth.ErrThrottled), message)
}

// WriteInternalError writes a generic internal error (500)
func WriteInternalError(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error")
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteAttachment sends data as a downloadable file
func WriteAttachment(w http.ResponseWriter, filename, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
