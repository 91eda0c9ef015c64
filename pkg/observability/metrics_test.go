package observability

import (
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	if metrics == nil {
		t.Fatal("NewMetrics returned nil")
	}
	if metrics.LoginAttemptsTotal == nil {
		t.Error("LoginAttemptsTotal is nil")
	}
	if metrics.AuditEventsTotal == nil {
		t.Error("AuditEventsTotal is nil")
	}
	if metrics.SyncRunsTotal == nil {
		t.Error("SyncRunsTotal is nil")
	}

	t.Run("double registration panics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic registering metrics twice")
			}
		}()
		NewMetrics(registry)
	})
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics

	// none of these may panic
	m.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
	m.RecordLogin("token", "success")
	m.RecordThrottled("email")
	m.RecordSessionCreated()
	m.RecordSessionEvicted(2)
	m.RecordRememberReuse()
	m.RecordAuditEvent("written")
	m.SetAuditQueueDepth(3)
	m.RecordSyncIdentity("linked")
	m.RecordSyncRun("completed")
	m.SetIntegrityDiscrepancies("missing_profile", 1)
	m.RecordCacheHit("identity")
	m.RecordCacheMiss("identity")
	m.UpdateDBStats(sql.DBStats{})
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordHTTPRequest("GET", "/api/me", 200, 10*time.Millisecond)

	expected := `
# HELP warden_http_requests_total Total number of HTTP requests
# TYPE warden_http_requests_total counter
warden_http_requests_total{method="GET",path="/api/me",status="200"} 1
`
	if err := testutil.CollectAndCompare(metrics.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
	if count := testutil.CollectAndCount(metrics.HTTPRequestDuration); count != 1 {
		t.Errorf("Expected 1 duration series, got %d", count)
	}
}

func TestMetrics_RecordLogin(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordLogin("token", "success")
	metrics.RecordLogin("token", "success")
	metrics.RecordLogin("session", "INVALID_CREDENTIALS")

	expected := `
# HELP warden_login_attempts_total Login attempts by channel and outcome
# TYPE warden_login_attempts_total counter
warden_login_attempts_total{channel="session",outcome="INVALID_CREDENTIALS"} 1
warden_login_attempts_total{channel="token",outcome="success"} 2
`
	if err := testutil.CollectAndCompare(metrics.LoginAttemptsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestMetrics_Sessions(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordSessionCreated()
	metrics.RecordSessionEvicted(2)
	metrics.RecordSessionEvicted(0)
	metrics.RecordRememberReuse()

	if v := testutil.ToFloat64(metrics.SessionsCreatedTotal); v != 1 {
		t.Errorf("Expected 1 created session, got %v", v)
	}
	if v := testutil.ToFloat64(metrics.SessionsEvictedTotal); v != 2 {
		t.Errorf("Expected 2 evicted sessions, got %v", v)
	}
	if v := testutil.ToFloat64(metrics.RememberReuseTotal); v != 1 {
		t.Errorf("Expected 1 remember reuse, got %v", v)
	}
}

func TestMetrics_Audit(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordAuditEvent("enqueued")
	metrics.RecordAuditEvent("dropped")
	metrics.SetAuditQueueDepth(7)

	expected := `
# HELP warden_audit_events_total Audit events by pipeline result
# TYPE warden_audit_events_total counter
warden_audit_events_total{result="dropped"} 1
warden_audit_events_total{result="enqueued"} 1
`
	if err := testutil.CollectAndCompare(metrics.AuditEventsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
	if v := testutil.ToFloat64(metrics.AuditQueueDepth); v != 7 {
		t.Errorf("Expected queue depth 7, got %v", v)
	}
}

func TestMetrics_Sync(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordSyncIdentity("linked")
	metrics.RecordSyncIdentity("failed")
	metrics.RecordSyncRun("completed")
	metrics.SetIntegrityDiscrepancies("email_mismatch", 3)

	if v := testutil.ToFloat64(metrics.SyncIdentitiesTotal.WithLabelValues("linked")); v != 1 {
		t.Errorf("Expected 1 linked identity, got %v", v)
	}
	if v := testutil.ToFloat64(metrics.SyncRunsTotal.WithLabelValues("completed")); v != 1 {
		t.Errorf("Expected 1 completed run, got %v", v)
	}
	if v := testutil.ToFloat64(metrics.IntegrityDiscrepancies.WithLabelValues("email_mismatch")); v != 3 {
		t.Errorf("Expected 3 discrepancies, got %v", v)
	}
}

func TestMetrics_UpdateDBStats(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.UpdateDBStats(sql.DBStats{InUse: 4, Idle: 2, WaitCount: 9})

	if v := testutil.ToFloat64(metrics.DBConnectionsActive); v != 4 {
		t.Errorf("Expected 4 active, got %v", v)
	}
	if v := testutil.ToFloat64(metrics.DBConnectionsIdle); v != 2 {
		t.Errorf("Expected 2 idle, got %v", v)
	}
	if v := testutil.ToFloat64(metrics.DBConnectionsWait); v != 9 {
		t.Errorf("Expected 9 waits, got %v", v)
	}
}

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.RecordThrottled("ip")

	server := httptest.NewServer(MetricsHandler(registry))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `warden_throttled_total{scope="ip"} 1`) {
		t.Errorf("metrics output missing throttled counter:\n%s", body)
	}
}
