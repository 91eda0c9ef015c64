package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvents() []*AuditEvent {
	userID := int64(123)
	return []*AuditEvent{
		{
			ID:          1,
			Timestamp:   time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
			EventType:   EventTypeLoginSuccess,
			Level:       LevelInfo,
			Module:      ModuleAuth,
			UserID:      &userID,
			UserEmail:   "a@x.com",
			IPAddress:   "192.168.1.1",
			Description: "Login successful",
			Details:     map[string]interface{}{"channel": "session"},
		},
		{
			ID:          2,
			Timestamp:   time.Date(2024, 1, 1, 12, 5, 0, 0, time.UTC),
			EventType:   EventTypeOrderCreated,
			Level:       LevelInfo,
			Module:      ModuleOrder,
			UserEmail:   "a@x.com",
			Description: "Order created",
			ReferenceID: "ord-77",
		},
	}
}

func TestExportJSON(t *testing.T) {
	data, err := Encode(sampleEvents(), ExportFormatJSON)
	require.NoError(t, err)

	var parsed []*AuditEvent
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Len(t, parsed, 2)
	assert.Equal(t, "ord-77", parsed[1].ReferenceID)
}

func TestExportNDJSON(t *testing.T) {
	data, err := Encode(sampleEvents(), ExportFormatNDJSON)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		event, err := FromJSON([]byte(line))
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", event.UserEmail)
	}
}

func TestExportCSV(t *testing.T) {
	data, err := Encode(sampleEvents(), ExportFormatCSV)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{"ID", "Timestamp", "EventType", "Level", "Module"}, records[0][:5])
	assert.Equal(t, "1", records[1][0])
	assert.Equal(t, "2024-01-01T12:00:00Z", records[1][1])
	assert.Equal(t, "LOGIN_SUCCESS", records[1][2])
	assert.Equal(t, "123", records[1][5])
	assert.Equal(t, `{"channel":"session"}`, records[1][12])

	// nil actor id and details become empty cells
	assert.Equal(t, "", records[2][5])
	assert.Equal(t, "ord-77", records[2][11])
	assert.Equal(t, "", records[2][12])
}

func TestExportCSV_EmptyEvents(t *testing.T) {
	data, err := exportCSV([]*AuditEvent{})
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestEncode_UnknownFormatFallsBackToJSON(t *testing.T) {
	data, err := Encode(sampleEvents(), ExportFormat("xml"))
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}

func TestExportFormat_ContentType(t *testing.T) {
	assert.Equal(t, "text/csv", ExportFormatCSV.ContentType())
	assert.Equal(t, "application/x-ndjson", ExportFormatNDJSON.ContentType())
	assert.Equal(t, "application/json", ExportFormatJSON.ContentType())
}

func TestFormatInt64Ptr(t *testing.T) {
	assert.Equal(t, "", formatInt64Ptr(nil))

	val := int64(123)
	assert.Equal(t, "123", formatInt64Ptr(&val))

	zero := int64(0)
	assert.Equal(t, "0", formatInt64Ptr(&zero))
}
