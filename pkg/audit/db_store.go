package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// DBStore is the PostgreSQL audit log store. Rows are only ever inserted
// and, by the retention policy, deleted.
type DBStore struct {
	db *sql.DB
}

// NewDBStore creates a new database-backed audit store
func NewDBStore(db *sql.DB) (*DBStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	store := &DBStore{
		db: db,
	}

	if err := store.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_logs table: %w", err)
	}

	return store, nil
}

// ensureTable creates the audit_logs table if it doesn't exist
func (s *DBStore) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(64) NOT NULL,
		level VARCHAR(8) NOT NULL,
		module VARCHAR(32) NOT NULL,
		user_id BIGINT,
		user_email VARCHAR(255) NOT NULL DEFAULT '',
		ip_address VARCHAR(45) NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		request_id VARCHAR(100) NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		details JSONB NOT NULL DEFAULT '{}',
		reference_id VARCHAR(100) NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_type_email ON audit_logs(event_type, user_email, timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_type_ip ON audit_logs(event_type, ip_address, timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_module ON audit_logs(module);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_level ON audit_logs(level);
	`

	_, err := s.db.Exec(query)
	return err
}

const selectColumns = `
	id, timestamp, event_type, level, module,
	user_id, user_email, ip_address, user_agent, request_id,
	description, details, reference_id`

// Append inserts an audit event and sets its ID
func (s *DBStore) Append(ctx context.Context, event *AuditEvent) error {
	detailsJSON := []byte("{}")
	if len(event.Details) > 0 {
		var err error
		detailsJSON, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal details: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (
			timestamp, event_type, level, module,
			user_id, user_email, ip_address, user_agent, request_id,
			description, details, reference_id
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12
		) RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		event.Timestamp, string(event.EventType), string(event.Level), string(event.Module),
		event.UserID, event.UserEmail, event.IPAddress, event.UserAgent, event.RequestID,
		event.Description, detailsJSON, event.ReferenceID,
	).Scan(&event.ID)

	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// likeEscaper makes user text match literally inside a LIKE pattern
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// buildWhere renders the filter as a WHERE clause with positional args
func buildWhere(filter SearchFilter) (string, []interface{}) {
	clauses := []string{"1=1"}
	args := []interface{}{}
	add := func(format string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(format, len(args)))
	}

	if filter.StartTime != nil {
		add("timestamp >= $%d", *filter.StartTime)
	}
	if filter.EndTime != nil {
		add("timestamp < $%d", *filter.EndTime)
	}
	if filter.UserID != nil {
		add("user_id = $%d", *filter.UserID)
	}
	if filter.UserEmail != "" {
		add("user_email = $%d", strings.ToLower(filter.UserEmail))
	}
	if len(filter.EventTypes) > 0 {
		eventTypeStrs := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			eventTypeStrs[i] = string(et)
		}
		add("event_type = ANY($%d)", pq.Array(eventTypeStrs))
	}
	if filter.Level != "" {
		add("level = $%d", string(filter.Level))
	}
	if filter.Module != "" {
		add("module = $%d", string(filter.Module))
	}
	if filter.IPAddress != "" {
		add("ip_address = $%d", filter.IPAddress)
	}
	if filter.Text != "" {
		add(`description ILIKE $%d ESCAPE '\'`, "%"+likeEscaper.Replace(filter.Text)+"%")
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

// Search returns events matching the filter, newest first unless
// SortOrder is "asc". Ties on timestamp are broken by insertion order.
func (s *DBStore) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	where, args := buildWhere(filter)
	query := "SELECT" + selectColumns + " FROM audit_logs " + where

	if strings.EqualFold(filter.SortOrder, "asc") {
		query += " ORDER BY timestamp ASC, id ASC"
	} else {
		query += " ORDER BY timestamp DESC, id DESC"
	}

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	events := make([]*AuditEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}

	return events, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*AuditEvent, error) {
	event := &AuditEvent{
		Details: make(map[string]interface{}),
	}

	var detailsJSON []byte
	err := row.Scan(
		&event.ID, &event.Timestamp, &event.EventType, &event.Level, &event.Module,
		&event.UserID, &event.UserEmail, &event.IPAddress, &event.UserAgent, &event.RequestID,
		&event.Description, &detailsJSON, &event.ReferenceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}

	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &event.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal details: %w", err)
		}
	}

	return event, nil
}

// Get retrieves a specific audit event by ID, or nil when absent
func (s *DBStore) Get(ctx context.Context, id int64) (*AuditEvent, error) {
	row := s.db.QueryRowContext(ctx, "SELECT"+selectColumns+" FROM audit_logs WHERE id = $1", id)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return event, nil
}

// Count returns the number of events matching the filter
func (s *DBStore) Count(ctx context.Context, filter SearchFilter) (int64, error) {
	where, args := buildWhere(filter)

	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs "+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", err)
	}
	return count, nil
}

// groupCount counts events per distinct value of column. column must be
// one of the fixed names used below, never caller input.
func (s *DBStore) groupCount(ctx context.Context, column, where string, args []interface{}) (map[string]int64, error) {
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM audit_logs %s GROUP BY %s", column, where, column)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

// GetStats retrieves aggregate counts over the events matching filter
func (s *DBStore) GetStats(ctx context.Context, filter SearchFilter) (*AuditStats, error) {
	stats := NewStats(filter)
	where, args := buildWhere(filter)

	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs "+where, args...).Scan(&stats.TotalEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to get total events: %w", err)
	}

	byType, err := s.groupCount(ctx, "event_type", where, args)
	if err != nil {
		return nil, err
	}
	for k, v := range byType {
		stats.EventsByType[EventType(k)] = v
	}

	byLevel, err := s.groupCount(ctx, "level", where, args)
	if err != nil {
		return nil, err
	}
	for k, v := range byLevel {
		stats.EventsByLevel[Level(k)] = v
	}

	byModule, err := s.groupCount(ctx, "module", where, args)
	if err != nil {
		return nil, err
	}
	for k, v := range byModule {
		stats.EventsByModule[Module(k)] = v
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT user_email) FROM audit_logs "+where+" AND user_email <> ''", args...).Scan(&stats.UniqueActors)
	if err != nil {
		return nil, fmt.Errorf("failed to get unique actors: %w", err)
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT ip_address) FROM audit_logs "+where+" AND ip_address <> ''", args...).Scan(&stats.UniqueIPs)
	if err != nil {
		return nil, fmt.Errorf("failed to get unique IPs: %w", err)
	}

	stats.Derive()
	return stats, nil
}

// Timeline counts events per hour or day bucket within [start, end)
func (s *DBStore) Timeline(ctx context.Context, start, end time.Time, bucket BucketSize, filter SearchFilter) ([]TimeBucket, error) {
	if bucket != BucketHour && bucket != BucketDay {
		return nil, fmt.Errorf("invalid bucket size %q", bucket)
	}

	filter.StartTime = &start
	filter.EndTime = &end
	where, args := buildWhere(filter)

	query := fmt.Sprintf(
		"SELECT date_trunc('%s', timestamp) AS bucket, COUNT(*) FROM audit_logs %s GROUP BY bucket ORDER BY bucket",
		bucket, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get timeline: %w", err)
	}
	defer rows.Close()

	buckets := make([]TimeBucket, 0)
	for rows.Next() {
		var b TimeBucket
		if err := rows.Scan(&b.Start, &b.Count); err != nil {
			return nil, fmt.Errorf("failed to scan timeline bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// TopIPs returns the origin addresses with the most matching events
func (s *DBStore) TopIPs(ctx context.Context, filter SearchFilter, limit int) ([]IPCount, error) {
	if limit <= 0 {
		limit = 10
	}
	where, args := buildWhere(filter)
	args = append(args, limit)

	query := fmt.Sprintf(
		"SELECT ip_address, COUNT(*) AS cnt FROM audit_logs %s AND ip_address <> '' GROUP BY ip_address ORDER BY cnt DESC, ip_address LIMIT $%d",
		where, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get top IPs: %w", err)
	}
	defer rows.Close()

	result := make([]IPCount, 0)
	for rows.Next() {
		var c IPCount
		if err := rows.Scan(&c.IPAddress, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan IP count: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// DeleteBefore removes events older than cutoff. Only the retention policy
// calls this.
func (s *DBStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM audit_logs WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit logs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rowsAffected, nil
}
