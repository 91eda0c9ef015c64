package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/platinummonkey/warden/pkg/auth"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure
const uniqueViolation = "23505"

// PostgresStore is the Postgres identity store
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates the store and its table
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	store := &PostgresStore{db: db}
	if err := store.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure identities table: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS identities (
		id BIGSERIAL PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		name VARCHAR(255) NOT NULL DEFAULT '',
		role VARCHAR(16) NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		locked BOOLEAN NOT NULL DEFAULT FALSE,
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMP WITH TIME ZONE,
		last_login TIMESTAMP WITH TIME ZONE,
		profile_id VARCHAR(64)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_identities_email ON identities(LOWER(email));
	CREATE INDEX IF NOT EXISTS idx_identities_unlinked ON identities(id) WHERE profile_id IS NULL AND deleted_at IS NULL;
	`

	_, err := s.db.Exec(query)
	return err
}

const identityColumns = `
	id, email, password_hash, name, role, enabled, locked, verified,
	created_at, updated_at, deleted_at, last_login, profile_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		r         Record
		role      string
		deletedAt sql.NullTime
		lastLogin sql.NullTime
		profileID sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.Email, &r.PasswordHash, &r.Name, &role, &r.Enabled, &r.Locked, &r.Verified,
		&r.CreatedAt, &r.UpdatedAt, &deletedAt, &lastLogin, &profileID,
	)
	if err != nil {
		return nil, err
	}

	r.Role = auth.Role(role)
	if deletedAt.Valid {
		r.DeletedAt = &deletedAt.Time
	}
	if lastLogin.Valid {
		r.LastLogin = &lastLogin.Time
	}
	if profileID.Valid {
		r.ProfileID = &profileID.String
	}
	return &r, nil
}

// Create inserts a record, setting its ID and timestamps
func (s *PostgresStore) Create(ctx context.Context, record *Record) error {
	query := `
		INSERT INTO identities (email, password_hash, name, role, enabled, locked, verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		auth.NormalizeEmail(record.Email), record.PasswordHash, record.Name, string(record.Role),
		record.Enabled, record.Locked, record.Verified,
	).Scan(&record.ID, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create identity: %w", err)
	}

	record.Email = auth.NormalizeEmail(record.Email)
	return nil
}

// GetByID returns a record by id, including soft-deleted ones
func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*Record, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1`

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return record, nil
}

// GetByEmail returns the live record for an email
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*Record, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE LOWER(email) = $1 AND deleted_at IS NULL`

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, auth.NormalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return record, nil
}

// Apply updates the named columns in one statement and bumps updated_at
func (s *PostgresStore) Apply(ctx context.Context, id int64, changes Changes) (*Record, error) {
	if changes.Empty() {
		return s.GetByID(ctx, id)
	}

	sets := []string{"updated_at = NOW()"}
	args := []interface{}{id}
	set := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if changes.PasswordHash != nil {
		set("password_hash", *changes.PasswordHash)
	}
	if changes.Role != nil {
		set("role", string(*changes.Role))
	}
	if changes.Locked != nil {
		set("locked", *changes.Locked)
	}
	if changes.Verified != nil {
		set("verified", *changes.Verified)
	}
	if changes.Restore {
		sets = append(sets, "deleted_at = NULL")
	} else if changes.DeletedAt != nil {
		set("deleted_at", *changes.DeletedAt)
	}

	query := `UPDATE identities SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 RETURNING ` + identityColumns

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update identity: %w", err)
	}
	return record, nil
}

// TouchLastLogin records a successful login
func (s *PostgresStore) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	return s.exec(ctx, "touch last login",
		`UPDATE identities SET last_login = $2 WHERE id = $1`, id, at)
}

// SetProfileID links the extended profile
func (s *PostgresStore) SetProfileID(ctx context.Context, id int64, profileID string) error {
	return s.exec(ctx, "set profile id",
		`UPDATE identities SET profile_id = $2, updated_at = NOW() WHERE id = $1`, id, profileID)
}

func (s *PostgresStore) exec(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUnlinked pages through live records without a profile link
func (s *PostgresStore) ListUnlinked(ctx context.Context, afterID int64, limit int) ([]*Record, error) {
	query := `SELECT ` + identityColumns + ` FROM identities
		WHERE profile_id IS NULL AND deleted_at IS NULL AND id > $1
		ORDER BY id LIMIT $2`
	return s.list(ctx, query, afterID, limit)
}

// List pages through all live records
func (s *PostgresStore) List(ctx context.Context, afterID int64, limit int) ([]*Record, error) {
	query := `SELECT ` + identityColumns + ` FROM identities
		WHERE deleted_at IS NULL AND id > $1
		ORDER BY id LIMIT $2`
	return s.list(ctx, query, afterID, limit)
}

func (s *PostgresStore) list(ctx context.Context, query string, afterID int64, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
