package audit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/observability"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000

	defaultReportWindow   = 24 * time.Hour
	defaultActivityWindow = 30 * 24 * time.Hour
)

// Handlers serves the read-only audit query surface. Callers mount it
// behind an admin role check.
type Handlers struct {
	service *Service
}

// NewHandlers creates new audit handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{
		service: service,
	}
}

// RegisterRoutes registers audit routes on a router already scoped to the
// admin prefix, e.g. /api/admin
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit/events", h.listEvents).Methods("GET")
	router.HandleFunc("/audit/events/{id}", h.getEvent).Methods("GET")
	router.HandleFunc("/audit/stats", h.getStats).Methods("GET")
	router.HandleFunc("/audit/timeline", h.getTimeline).Methods("GET")
	router.HandleFunc("/audit/export", h.exportEvents).Methods("GET")
	router.HandleFunc("/audit/security-report", h.securityReport).Methods("GET")
	router.HandleFunc("/audit/system-metrics", h.systemMetrics).Methods("GET")
	router.HandleFunc("/audit/users/{email}/activity", h.userActivity).Methods("GET")
}

// listEvents handles GET /audit/events
func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, r, err.Error())
		return
	}

	events, err := h.service.Search(r.Context(), filter)
	if err != nil {
		h.internalError(w, r, err, "audit search failed")
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// getEvent handles GET /audit/events/{id}
func (h *Handlers) getEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	event, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.internalError(w, r, err, "audit get failed")
		return
	}
	if event == nil {
		httputil.WriteNotFound(w, r, "event not found")
		return
	}

	httputil.WriteSuccess(w, event)
}

// getStats handles GET /audit/stats
func (h *Handlers) getStats(w http.ResponseWriter, r *http.Request) {
	from, to, err := httputil.ParseQueryRange(r, defaultReportWindow)
	if err != nil {
		httputil.WriteBadRequest(w, r, err.Error())
		return
	}

	stats, err := h.service.Statistics(r.Context(), from, to)
	if err != nil {
		h.internalError(w, r, err, "audit stats failed")
		return
	}

	httputil.WriteSuccess(w, stats)
}

// getTimeline handles GET /audit/timeline?bucket=hour|day
func (h *Handlers) getTimeline(w http.ResponseWriter, r *http.Request) {
	from, to, err := httputil.ParseQueryRange(r, defaultReportWindow)
	if err != nil {
		httputil.WriteBadRequest(w, r, err.Error())
		return
	}

	bucket := BucketSize(r.URL.Query().Get("bucket"))
	if bucket == "" {
		bucket = BucketHour
	}
	if bucket != BucketHour && bucket != BucketDay {
		httputil.WriteBadRequest(w, r, "bucket must be hour or day")
		return
	}

	buckets, err := h.service.Timeline(r.Context(), from, to, bucket)
	if err != nil {
		h.internalError(w, r, err, "audit timeline failed")
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"bucket":   bucket,
		"from":     from,
		"to":       to,
		"timeline": buckets,
	})
}

// exportEvents handles GET /audit/export?format=json|ndjson|csv
func (h *Handlers) exportEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, r, err.Error())
		return
	}
	// exports are not paginated unless asked to be
	if r.URL.Query().Get("limit") == "" {
		filter.Limit = 0
	}

	format := ExportFormat(r.URL.Query().Get("format"))
	switch format {
	case "":
		format = ExportFormatJSON
	case ExportFormatJSON, ExportFormatCSV, ExportFormatNDJSON:
	default:
		httputil.WriteBadRequest(w, r, "format must be json, ndjson or csv")
		return
	}

	data, err := h.service.Export(r.Context(), filter, format, auth.PrincipalFromContext(r.Context()))
	if err != nil {
		h.internalError(w, r, err, "audit export failed")
		return
	}

	filename := fmt.Sprintf("audit-logs-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	httputil.WriteAttachment(w, filename, format.ContentType(), data)
}

// securityReport handles GET /audit/security-report
func (h *Handlers) securityReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := httputil.ParseQueryRange(r, defaultReportWindow)
	if err != nil {
		httputil.WriteBadRequest(w, r, err.Error())
		return
	}

	report, err := h.service.SecurityReport(r.Context(), from, to)
	if err != nil {
		h.internalError(w, r, err, "security report failed")
		return
	}

	httputil.WriteSuccess(w, report)
}

// systemMetrics handles GET /audit/system-metrics
func (h *Handlers) systemMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.service.SystemMetrics(r.Context())
	if err != nil {
		h.internalError(w, r, err, "system metrics failed")
		return
	}

	httputil.WriteSuccess(w, metrics)
}

// userActivity handles GET /audit/users/{email}/activity
func (h *Handlers) userActivity(w http.ResponseWriter, r *http.Request) {
	email, err := httputil.ParsePathString(r, "email")
	if err != nil {
		httputil.WriteBadRequest(w, r, err.Error())
		return
	}

	from, to, err := httputil.ParseQueryRange(r, defaultActivityWindow)
	if err != nil {
		httputil.WriteBadRequest(w, r, err.Error())
		return
	}

	report, err := h.service.UserActivityReport(r.Context(), email, from, to)
	if err != nil {
		h.internalError(w, r, err, "user activity report failed")
		return
	}

	httputil.WriteSuccess(w, report)
}

func (h *Handlers) internalError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	observability.FromContext(r.Context()).WithError(err).Error(msg)
	httputil.WriteInternalError(w, r)
}

// parseFilter parses a search filter from query parameters
func parseFilter(r *http.Request) (SearchFilter, error) {
	query := r.URL.Query()
	filter := SearchFilter{}

	var err error
	if filter.StartTime, err = httputil.ParseQueryTime(r, "from"); err != nil {
		return filter, err
	}
	if filter.EndTime, err = httputil.ParseQueryTime(r, "to"); err != nil {
		return filter, err
	}

	if userIDStr := query.Get("user_id"); userIDStr != "" {
		userID, err := strconv.ParseInt(userIDStr, 10, 64)
		if err != nil {
			return filter, fmt.Errorf("invalid user_id: %s", userIDStr)
		}
		filter.UserID = &userID
	}
	filter.UserEmail = query.Get("email")

	for _, et := range parseCommaSeparated(query.Get("event_types")) {
		eventType := EventType(strings.ToUpper(et))
		if !eventType.Valid() {
			return filter, fmt.Errorf("unknown event type: %s", et)
		}
		filter.EventTypes = append(filter.EventTypes, eventType)
	}

	filter.Level = Level(strings.ToUpper(query.Get("level")))
	filter.Module = Module(strings.ToUpper(query.Get("module")))
	filter.IPAddress = query.Get("ip_address")
	filter.Text = query.Get("q")

	if filter.Limit, err = httputil.ParseQueryInt(r, "limit", defaultPageSize); err != nil {
		return filter, err
	}
	if filter.Limit <= 0 || filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	if filter.Offset, err = httputil.ParseQueryInt(r, "offset", 0); err != nil {
		return filter, err
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	filter.SortOrder = strings.ToLower(query.Get("sort_order"))
	if filter.SortOrder != "asc" {
		filter.SortOrder = "desc"
	}

	return filter, nil
}

// parseCommaSeparated parses a comma-separated string into a slice
func parseCommaSeparated(s string) []string {
	var result []string
	for _, val := range strings.Split(s, ",") {
		if val = strings.TrimSpace(val); val != "" {
			result = append(result, val)
		}
	}
	return result
}
