package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditEvent_ToJSON(t *testing.T) {
	userID := int64(123)
	event := &AuditEvent{
		ID:          1,
		Timestamp:   time.Now().UTC(),
		EventType:   EventTypeLoginSuccess,
		Level:       LevelInfo,
		Module:      ModuleAuth,
		UserID:      &userID,
		UserEmail:   "a@x.com",
		IPAddress:   "192.168.1.1",
		Description: "Login successful",
		Details: map[string]interface{}{
			"key1": "value1",
		},
	}

	jsonData, err := event.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"event_type":"LOGIN_SUCCESS"`)

	parsed, err := FromJSON(jsonData)
	require.NoError(t, err)
	assert.Equal(t, event.ID, parsed.ID)
	assert.Equal(t, event.EventType, parsed.EventType)
	assert.Equal(t, event.Level, parsed.Level)
	assert.Equal(t, event.UserEmail, parsed.UserEmail)
	assert.Equal(t, "value1", parsed.Details["key1"])
}

func TestEventType_Valid(t *testing.T) {
	assert.Len(t, EventTypes, 27)
	for _, et := range EventTypes {
		assert.True(t, et.Valid(), string(et))
	}
	assert.False(t, EventType("auth.login").Valid())
	assert.False(t, EventType("").Valid())
}

func TestDefaultRetentionPolicy(t *testing.T) {
	policy := DefaultRetentionPolicy()
	assert.Equal(t, 90, policy.RetentionDays)
	assert.False(t, policy.ArchiveEnabled)

	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), policy.Cutoff(now))
}

func TestSearchFilter_Matches(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	userID := int64(5)
	event := &AuditEvent{
		Timestamp:   ts,
		EventType:   EventTypeLoginFailed,
		Level:       LevelWarn,
		Module:      ModuleAuth,
		UserID:      &userID,
		UserEmail:   "a@x.com",
		IPAddress:   "10.0.0.1",
		Description: "Login failed: bad password",
	}

	before := ts.Add(-time.Minute)
	after := ts.Add(time.Minute)
	otherID := int64(6)

	tests := []struct {
		name   string
		filter SearchFilter
		want   bool
	}{
		{"empty filter", SearchFilter{}, true},
		{"start inclusive", SearchFilter{StartTime: &ts}, true},
		{"end exclusive", SearchFilter{EndTime: &ts}, false},
		{"within range", SearchFilter{StartTime: &before, EndTime: &after}, true},
		{"user id", SearchFilter{UserID: &userID}, true},
		{"other user id", SearchFilter{UserID: &otherID}, false},
		{"email case insensitive", SearchFilter{UserEmail: "A@X.COM"}, true},
		{"event type in set", SearchFilter{EventTypes: []EventType{EventTypeLogout, EventTypeLoginFailed}}, true},
		{"event type not in set", SearchFilter{EventTypes: []EventType{EventTypeLogout}}, false},
		{"level", SearchFilter{Level: LevelError}, false},
		{"module", SearchFilter{Module: ModuleAuth}, true},
		{"ip", SearchFilter{IPAddress: "10.0.0.2"}, false},
		{"text", SearchFilter{Text: "BAD PASS"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(event))
		})
	}
}
