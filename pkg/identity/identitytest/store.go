// Package identitytest provides an in-memory identity.Store for tests.
package identitytest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/identity"
)

// Store is a map-backed identity.Store
type Store struct {
	mu      sync.Mutex
	records map[int64]*identity.Record
	nextID  int64

	// Err, when set, is returned by every call
	Err error
}

var _ identity.Store = (*Store)(nil)

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{records: make(map[int64]*identity.Record)}
}

func (s *Store) Create(_ context.Context, record *identity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	email := auth.NormalizeEmail(record.Email)
	for _, r := range s.records {
		if r.Email == email {
			return identity.ErrDuplicateEmail
		}
	}

	s.nextID++
	now := time.Now().UTC()
	record.ID = s.nextID
	record.Email = email
	record.CreatedAt = now
	record.UpdatedAt = now
	s.records[record.ID] = record.Clone()
	return nil
}

func (s *Store) GetByID(_ context.Context, id int64) (*identity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if r, ok := s.records[id]; ok {
		return r.Clone(), nil
	}
	return nil, identity.ErrNotFound
}

func (s *Store) GetByEmail(_ context.Context, email string) (*identity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	email = auth.NormalizeEmail(email)
	for _, r := range s.records {
		if r.Email == email && !r.Deleted() {
			return r.Clone(), nil
		}
	}
	return nil, identity.ErrNotFound
}

func (s *Store) Apply(_ context.Context, id int64, changes identity.Changes) (*identity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	r, ok := s.records[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	changes.ApplyTo(r)
	r.UpdatedAt = time.Now().UTC()
	return r.Clone(), nil
}

// Update replaces a whole record; tests use it to arrange state
func (s *Store) Update(_ context.Context, record *identity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.records[record.ID]; !ok {
		return identity.ErrNotFound
	}
	record.Email = auth.NormalizeEmail(record.Email)
	record.UpdatedAt = time.Now().UTC()
	s.records[record.ID] = record.Clone()
	return nil
}

func (s *Store) TouchLastLogin(_ context.Context, id int64, at time.Time) error {
	return s.mutate(id, func(r *identity.Record) {
		r.LastLogin = &at
	})
}

func (s *Store) SetProfileID(_ context.Context, id int64, profileID string) error {
	return s.mutate(id, func(r *identity.Record) {
		r.ProfileID = &profileID
		r.UpdatedAt = time.Now().UTC()
	})
}

func (s *Store) mutate(id int64, fn func(*identity.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	r, ok := s.records[id]
	if !ok {
		return identity.ErrNotFound
	}
	fn(r)
	return nil
}

func (s *Store) ListUnlinked(_ context.Context, afterID int64, limit int) ([]*identity.Record, error) {
	return s.list(afterID, limit, func(r *identity.Record) bool { return r.ProfileID == nil })
}

func (s *Store) List(_ context.Context, afterID int64, limit int) ([]*identity.Record, error) {
	return s.list(afterID, limit, func(*identity.Record) bool { return true })
}

func (s *Store) list(afterID int64, limit int, keep func(*identity.Record) bool) ([]*identity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	var out []*identity.Record
	for _, r := range s.records {
		if r.ID > afterID && !r.Deleted() && keep(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Put stores a record as-is, keeping its id
func (s *Store) Put(record *identity.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID > s.nextID {
		s.nextID = record.ID
	}
	s.records[record.ID] = record.Clone()
}
