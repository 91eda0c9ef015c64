package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var eventColumns = []string{
	"id", "timestamp", "event_type", "level", "module",
	"user_id", "user_email", "ip_address", "user_agent", "request_id",
	"description", "details", "reference_id",
}

func setupMockStore(t *testing.T) (*DBStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").WillReturnResult(sqlmock.NewResult(0, 0))

	store, err := NewDBStore(db)
	require.NoError(t, err)
	return store, mock
}

func TestNewDBStore(t *testing.T) {
	t.Run("nil database", func(t *testing.T) {
		store, err := NewDBStore(nil)
		assert.Error(t, err)
		assert.Nil(t, store)
	})

	t.Run("table creation fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").WillReturnError(errors.New("permission denied"))

		store, err := NewDBStore(db)
		assert.Error(t, err)
		assert.Nil(t, store)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDBStore_Append(t *testing.T) {
	ctx := context.Background()
	store, mock := setupMockStore(t)

	userID := int64(7)
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	event := &AuditEvent{
		Timestamp:   ts,
		EventType:   EventTypeLoginSuccess,
		Level:       LevelInfo,
		Module:      ModuleAuth,
		UserID:      &userID,
		UserEmail:   "a@x.com",
		IPAddress:   "10.0.0.1",
		Description: "Login successful",
		Details:     map[string]interface{}{"channel": "token"},
	}

	mock.ExpectQuery("INSERT INTO audit_logs").
		WithArgs(ts, "LOGIN_SUCCESS", "INFO", "AUTH",
			&userID, "a@x.com", "10.0.0.1", "", "",
			"Login successful", []byte(`{"channel":"token"}`), "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	require.NoError(t, store.Append(ctx, event))
	assert.Equal(t, int64(11), event.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_Append_Error(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery("INSERT INTO audit_logs").WillReturnError(errors.New("connection reset"))

	err := store.Append(context.Background(), NewEvent(EventTypeLogout, LevelInfo, ModuleAuth, "Logout"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert audit log")
}

func TestDBStore_Search(t *testing.T) {
	ctx := context.Background()
	store, mock := setupMockStore(t)

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(eventColumns).
		AddRow(int64(2), ts, "LOGIN_FAILED", "WARN", "AUTH",
			nil, "a@x.com", "10.0.0.1", "curl", "req-1",
			"Login failed", []byte(`{"reason":"bad password"}`), "").
		AddRow(int64(1), ts, "LOGIN_FAILED", "WARN", "AUTH",
			nil, "a@x.com", "10.0.0.1", "curl", "req-0",
			"Login failed", []byte(`{}`), "")

	start := ts.Add(-time.Hour)
	mock.ExpectQuery(`SELECT (.+) FROM audit_logs WHERE 1=1 AND timestamp >= \$1 AND user_email = \$2 AND event_type = ANY\(\$3\) ORDER BY timestamp DESC, id DESC LIMIT \$4`).
		WithArgs(start, "a@x.com", sqlmock.AnyArg(), 10).
		WillReturnRows(rows)

	events, err := store.Search(ctx, SearchFilter{
		StartTime:  &start,
		UserEmail:  "A@X.com",
		EventTypes: []EventType{EventTypeLoginFailed},
		Limit:      10,
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].ID)
	assert.Nil(t, events[0].UserID)
	assert.Equal(t, EventTypeLoginFailed, events[0].EventType)
	assert.Equal(t, "bad password", events[0].Details["reason"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_Search_AscendingWithText(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(`description ILIKE \$1 ESCAPE '\\' ORDER BY timestamp ASC, id ASC LIMIT \$2 OFFSET \$3`).
		WithArgs("%lock%", 5, 10).
		WillReturnRows(sqlmock.NewRows(eventColumns))

	events, err := store.Search(context.Background(), SearchFilter{
		Text:      "lock",
		SortOrder: "asc",
		Limit:     5,
		Offset:    10,
	})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_Search_TextIsLiteral(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(`description ILIKE \$1 ESCAPE`).
		WithArgs(`%100\% \_done\\%`, 100).
		WillReturnRows(sqlmock.NewRows(eventColumns))

	_, err := store.Search(context.Background(), SearchFilter{Text: `100% _done\`, Limit: 100})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_Search_Error(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM audit_logs").WillReturnError(errors.New("database error"))

	events, err := store.Search(context.Background(), SearchFilter{})
	assert.Error(t, err)
	assert.Nil(t, events)
}

func TestDBStore_Get(t *testing.T) {
	store, mock := setupMockStore(t)
	ts := time.Now().UTC()

	mock.ExpectQuery(`FROM audit_logs WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(eventColumns).AddRow(
			int64(5), ts, "USER_CREATED", "INFO", "USER",
			int64(9), "new@x.com", "", "", "",
			"User created", nil, ""))

	event, err := store.Get(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, int64(5), event.ID)
	require.NotNil(t, event.UserID)
	assert.Equal(t, int64(9), *event.UserID)
}

func TestDBStore_Get_NotFound(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(`FROM audit_logs WHERE id = \$1`).
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	event, err := store.Get(context.Background(), 404)
	assert.NoError(t, err)
	assert.Nil(t, event)
}

func TestDBStore_Count(t *testing.T) {
	store, mock := setupMockStore(t)
	since := time.Now().Add(-time.Hour)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_logs WHERE 1=1 AND timestamp >= \$1 AND event_type = ANY\(\$2\) AND ip_address = \$3`).
		WithArgs(since, sqlmock.AnyArg(), "10.0.0.9").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(4)))

	count, err := store.Count(context.Background(), SearchFilter{
		StartTime:  &since,
		EventTypes: []EventType{EventTypeLoginFailed},
		IPAddress:  "10.0.0.9",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestDBStore_GetStats(t *testing.T) {
	store, mock := setupMockStore(t)

	start := time.Now().Add(-24 * time.Hour)
	end := time.Now()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_logs`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(10)))
	mock.ExpectQuery(`SELECT event_type, COUNT\(\*\)`).
		WillReturnRows(sqlmock.NewRows([]string{"event_type", "count"}).
			AddRow("LOGIN_SUCCESS", int64(6)).
			AddRow("LOGIN_FAILED", int64(3)).
			AddRow("SYSTEM_ERROR", int64(1)))
	mock.ExpectQuery(`SELECT level, COUNT\(\*\)`).
		WillReturnRows(sqlmock.NewRows([]string{"level", "count"}).
			AddRow("INFO", int64(6)).
			AddRow("WARN", int64(3)).
			AddRow("ERROR", int64(1)))
	mock.ExpectQuery(`SELECT module, COUNT\(\*\)`).
		WillReturnRows(sqlmock.NewRows([]string{"module", "count"}).
			AddRow("AUTH", int64(9)).
			AddRow("SYSTEM", int64(1)))
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT user_email\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(4)))
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT ip_address\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))

	stats, err := store.GetStats(context.Background(), SearchFilter{StartTime: &start, EndTime: &end})
	require.NoError(t, err)

	assert.Equal(t, int64(10), stats.TotalEvents)
	assert.Equal(t, int64(9), stats.LoginAttempts)
	assert.Equal(t, int64(3), stats.FailedLogins)
	assert.Equal(t, int64(1), stats.ErrorCount)
	assert.Equal(t, int64(3), stats.WarnCount)
	assert.Equal(t, int64(6), stats.InfoCount)
	assert.Equal(t, int64(9), stats.EventsByModule[ModuleAuth])
	assert.Equal(t, int64(4), stats.UniqueActors)
	assert.Equal(t, int64(2), stats.UniqueIPs)
	require.NotNil(t, stats.TimeRange)
	assert.Equal(t, start, stats.TimeRange.Start)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_GetStats_Error(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_logs`).WillReturnError(errors.New("database error"))

	stats, err := store.GetStats(context.Background(), SearchFilter{})
	assert.Error(t, err)
	assert.Nil(t, stats)
}

func TestDBStore_Timeline(t *testing.T) {
	store, mock := setupMockStore(t)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Hour)

	mock.ExpectQuery(`SELECT date_trunc\('hour', timestamp\) AS bucket`).
		WithArgs(start, end).
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "count"}).
			AddRow(start, int64(2)).
			AddRow(start.Add(2*time.Hour), int64(5)))

	buckets, err := store.Timeline(context.Background(), start, end, BucketHour, SearchFilter{})
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, int64(5), buckets[1].Count)

	_, err = store.Timeline(context.Background(), start, end, BucketSize("week; DROP TABLE audit_logs"), SearchFilter{})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_TopIPs(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(`SELECT ip_address, COUNT\(\*\) AS cnt FROM audit_logs WHERE 1=1 AND event_type = ANY\(\$1\) AND ip_address <> '' GROUP BY ip_address ORDER BY cnt DESC, ip_address LIMIT \$2`).
		WithArgs(sqlmock.AnyArg(), 10).
		WillReturnRows(sqlmock.NewRows([]string{"ip_address", "cnt"}).
			AddRow("10.0.0.1", int64(12)).
			AddRow("10.0.0.2", int64(3)))

	ips, err := store.TopIPs(context.Background(), SearchFilter{EventTypes: []EventType{EventTypeLoginFailed}}, 0)
	require.NoError(t, err)
	require.Len(t, ips, 2)
	assert.Equal(t, IPCount{IPAddress: "10.0.0.1", Count: 12}, ips[0])
}

func TestDBStore_DeleteBefore(t *testing.T) {
	store, mock := setupMockStore(t)
	cutoff := time.Now().AddDate(0, 0, -90)

	mock.ExpectExec("DELETE FROM audit_logs WHERE timestamp").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 42))

	deleted, err := store.DeleteBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(42), deleted)
}

func TestDBStore_DeleteBefore_RowsAffectedError(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectExec("DELETE FROM audit_logs").
		WillReturnResult(sqlmock.NewErrorResult(errors.New("rows affected error")))

	_, err := store.DeleteBefore(context.Background(), time.Now())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get affected rows")
}
