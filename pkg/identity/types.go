package identity

import (
	"errors"
	"time"

	"github.com/platinummonkey/warden/pkg/auth"
)

var (
	// ErrNotFound is returned when no identity matches
	ErrNotFound = errors.New("identity not found")
	// ErrDuplicateEmail is returned when the email is already registered
	ErrDuplicateEmail = errors.New("email already registered")
)

// Record is the authoritative identity: credentials, role and account
// state live only here.
type Record struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Name         string     `json:"name"`
	Role         auth.Role  `json:"role"`
	Enabled      bool       `json:"enabled"`
	Locked       bool       `json:"locked"`
	Verified     bool       `json:"verified"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	LastLogin    *time.Time `json:"last_login,omitempty"`

	// ProfileID links the extended profile, when one exists
	ProfileID *string `json:"profile_id,omitempty"`
}

// Changes names the columns a write touches. Unset fields keep their
// stored value, so writers of different columns never overwrite each other.
type Changes struct {
	PasswordHash *string
	Role         *auth.Role
	Locked       *bool
	Verified     *bool
	// DeletedAt soft-deletes the record; Restore clears the mark
	DeletedAt *time.Time
	Restore   bool
}

// Empty reports whether no column is touched
func (c Changes) Empty() bool {
	return c.PasswordHash == nil && c.Role == nil && c.Locked == nil && c.Verified == nil &&
		c.DeletedAt == nil && !c.Restore
}

// ApplyTo sets the changed fields on r
func (c Changes) ApplyTo(r *Record) {
	if c.PasswordHash != nil {
		r.PasswordHash = *c.PasswordHash
	}
	if c.Role != nil {
		r.Role = *c.Role
	}
	if c.Locked != nil {
		r.Locked = *c.Locked
	}
	if c.Verified != nil {
		r.Verified = *c.Verified
	}
	if c.DeletedAt != nil {
		t := *c.DeletedAt
		r.DeletedAt = &t
	}
	if c.Restore {
		r.DeletedAt = nil
	}
}

// Deleted reports whether the record is soft-deleted
func (r *Record) Deleted() bool {
	return r.DeletedAt != nil
}

// CanAuthenticate reports whether the account may be used at all
func (r *Record) CanAuthenticate() bool {
	return r.Enabled && !r.Locked && !r.Deleted()
}

// Principal returns the caller view of the record
func (r *Record) Principal() *auth.Principal {
	return &auth.Principal{
		ID:    r.ID,
		Email: r.Email,
		Name:  r.Name,
		Role:  r.Role,
	}
}

// Clone returns a deep copy
func (r *Record) Clone() *Record {
	c := *r
	if r.DeletedAt != nil {
		t := *r.DeletedAt
		c.DeletedAt = &t
	}
	if r.LastLogin != nil {
		t := *r.LastLogin
		c.LastLogin = &t
	}
	if r.ProfileID != nil {
		p := *r.ProfileID
		c.ProfileID = &p
	}
	return &c
}
