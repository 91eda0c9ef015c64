package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
)

// HealthChecker reports the state of the stores the service depends on
type HealthChecker struct {
	version   string
	databases []namedDB
	redis     []namedRedis
}

type namedDB struct {
	name     string
	db       *sql.DB
	critical bool
}

type namedRedis struct {
	name     string
	client   *redis.Client
	critical bool
}

// NewHealthChecker creates a health checker with no dependencies
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{version: version}
}

// AddDatabase registers a SQL database. A critical dependency that is down
// makes the service unhealthy; a non-critical one only degrades it.
func (h *HealthChecker) AddDatabase(name string, db *sql.DB, critical bool) *HealthChecker {
	if db != nil {
		h.databases = append(h.databases, namedDB{name: name, db: db, critical: critical})
	}
	return h
}

// AddRedis registers a Redis client
func (h *HealthChecker) AddRedis(name string, client *redis.Client, critical bool) *HealthChecker {
	if client != nil {
		h.redis = append(h.redis, namedRedis{name: name, client: client, critical: critical})
	}
	return h
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Liveness returns a simple liveness probe (always returns 200 if server is running)
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness returns a readiness probe (checks all dependencies)
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")

	// Return 503 if unhealthy, 200 if healthy or degraded
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(status)
}

// Check performs a comprehensive health check
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus),
	}

	for _, d := range h.databases {
		dep := checkDatabase(ctx, d.db)
		status.Dependencies[d.name] = dep
		status.Status = worst(status.Status, dep.Status, d.critical)
	}
	for _, r := range h.redis {
		dep := checkRedis(ctx, r.client)
		status.Dependencies[r.name] = dep
		status.Status = worst(status.Status, dep.Status, r.critical)
	}

	return status
}

// Names lists the registered dependencies
func (h *HealthChecker) Names() []string {
	var names []string
	for _, d := range h.databases {
		names = append(names, d.name)
	}
	for _, r := range h.redis {
		names = append(names, r.name)
	}
	sort.Strings(names)
	return names
}

// worst folds a dependency result into the overall status. Non-critical
// failures cap at degraded.
func worst(overall, dep string, critical bool) string {
	if dep == StatusUnhealthy && !critical {
		dep = StatusDegraded
	}
	switch {
	case overall == StatusUnhealthy || dep == StatusUnhealthy:
		return StatusUnhealthy
	case overall == StatusDegraded || dep == StatusDegraded:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

func checkDatabase(ctx context.Context, db *sql.DB) DependencyStatus {
	start := time.Now()
	status := DependencyStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}

	err := db.PingContext(ctx)
	status.Latency = time.Since(start)

	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
		return status
	}

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		status.Status = StatusUnhealthy
		status.Message = "query failed: " + err.Error()
		return status
	}

	stats := db.Stats()
	if stats.MaxOpenConnections > 0 && stats.OpenConnections >= stats.MaxOpenConnections {
		status.Status = StatusDegraded
		status.Message = "connection pool exhausted"
	}

	return status
}

func checkRedis(ctx context.Context, client *redis.Client) DependencyStatus {
	start := time.Now()
	status := DependencyStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}

	err := client.Ping(ctx).Err()
	status.Latency = time.Since(start)

	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
	}
	return status
}

// RegisterHealthRoutes registers health check endpoints
func RegisterHealthRoutes(router *mux.Router, checker *HealthChecker) {
	router.HandleFunc("/health", checker.Readiness).Methods(http.MethodGet)
	router.HandleFunc("/health/live", checker.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", checker.Readiness).Methods(http.MethodGet)
}
