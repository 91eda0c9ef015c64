package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Store persists extended profiles
type Store interface {
	Create(ctx context.Context, p *Profile) error
	Get(ctx context.Context, id string) (*Profile, error)
	GetByIdentityID(ctx context.Context, identityID int64) (*Profile, error)
	Update(ctx context.Context, p *Profile) error
	// List pages through every profile ordered by id
	List(ctx context.Context, afterID string, limit int) ([]*Profile, error)
}

// SQLStore keeps each profile as a JSON document with the lookup columns
// broken out. It runs on sqlite3 and postgres.
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates the store over db opened with driverName
func NewSQLStore(db *sql.DB, driverName string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	store := &SQLStore{
		db:  sqlx.NewDb(db, driverName),
		now: func() time.Time { return time.Now().UTC() },
	}
	if err := store.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure profiles table: %w", err)
	}
	return store, nil
}

func (s *SQLStore) ensureTable() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id VARCHAR(64) PRIMARY KEY,
			identity_id BIGINT,
			email VARCHAR(255) NOT NULL,
			status VARCHAR(32) NOT NULL,
			document TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_identity ON profiles(identity_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

type profileRow struct {
	ID         string        `db:"id"`
	IdentityID sql.NullInt64 `db:"identity_id"`
	Email      string        `db:"email"`
	Status     string        `db:"status"`
	Document   string        `db:"document"`
	CreatedAt  time.Time     `db:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at"`
}

func (r profileRow) decode() (*Profile, error) {
	var p Profile
	if err := json.Unmarshal([]byte(r.Document), &p); err != nil {
		return nil, fmt.Errorf("failed to decode profile %s: %w", r.ID, err)
	}
	// the broken-out columns are authoritative over the document copy
	p.ID = r.ID
	p.IdentityID = r.IdentityID.Int64
	p.Email = r.Email
	p.Status = Status(r.Status)
	p.CreatedAt = r.CreatedAt.UTC()
	p.UpdatedAt = r.UpdatedAt.UTC()
	return &p, nil
}

func encode(p *Profile) (profileRow, error) {
	doc, err := json.Marshal(p)
	if err != nil {
		return profileRow{}, fmt.Errorf("failed to encode profile: %w", err)
	}
	return profileRow{
		ID:         p.ID,
		IdentityID: sql.NullInt64{Int64: p.IdentityID, Valid: p.IdentityID != 0},
		Email:      p.Email,
		Status:     string(p.Status),
		Document:   string(doc),
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}, nil
}

const profileColumns = `id, identity_id, email, status, document, created_at, updated_at`

// Create inserts a profile, assigning an id and timestamps
func (s *SQLStore) Create(ctx context.Context, p *Profile) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Metadata == nil {
		p.Metadata = make(map[string]interface{})
	}
	now := s.now()
	p.CreatedAt = now
	p.UpdatedAt = now

	row, err := encode(p)
	if err != nil {
		return err
	}

	query := `INSERT INTO profiles (` + profileColumns + `)
		VALUES (:id, :identity_id, :email, :status, :document, :created_at, :updated_at)`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyLinked
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// Get returns a profile by id
func (s *SQLStore) Get(ctx context.Context, id string) (*Profile, error) {
	query := s.db.Rebind(`SELECT ` + profileColumns + ` FROM profiles WHERE id = ?`)
	return s.getOne(ctx, query, id)
}

// GetByIdentityID returns the profile linked to an identity
func (s *SQLStore) GetByIdentityID(ctx context.Context, identityID int64) (*Profile, error) {
	query := s.db.Rebind(`SELECT ` + profileColumns + ` FROM profiles WHERE identity_id = ?`)
	return s.getOne(ctx, query, identityID)
}

func (s *SQLStore) getOne(ctx context.Context, query string, arg interface{}) (*Profile, error) {
	var row profileRow
	err := s.db.GetContext(ctx, &row, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return row.decode()
}

// Update replaces the stored document and bumps updated_at
func (s *SQLStore) Update(ctx context.Context, p *Profile) error {
	p.UpdatedAt = s.now()
	row, err := encode(p)
	if err != nil {
		return err
	}

	query := `UPDATE profiles SET identity_id = :identity_id, email = :email, status = :status,
		document = :document, updated_at = :updated_at WHERE id = :id`
	result, err := s.db.NamedExecContext(ctx, query, row)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyLinked
		}
		return fmt.Errorf("failed to update profile: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List pages through every profile ordered by id
func (s *SQLStore) List(ctx context.Context, afterID string, limit int) ([]*Profile, error) {
	if limit <= 0 {
		limit = 100
	}

	query := s.db.Rebind(`SELECT ` + profileColumns + ` FROM profiles WHERE id > ? ORDER BY id LIMIT ?`)
	var rows []profileRow
	if err := s.db.SelectContext(ctx, &rows, query, afterID, limit); err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}

	profiles := make([]*Profile, 0, len(rows))
	for _, row := range rows {
		p, err := row.decode()
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
