package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/profile"
)

// adminChange inspects a loaded record, names the columns to write and
// describes the change for the audit log. A nil event means nothing changed.
type adminChange func(record *identity.Record) (identity.Changes, *audit.AuditEvent, error)

// adminMutate applies change to the target identity on behalf of admin,
// then pushes the result into the profile store. revoke ends every
// session of the target after the write.
func (s *Service) adminMutate(ctx context.Context, admin *auth.Principal, targetID int64, revoke bool, change adminChange) (*identity.Record, error) {
	if admin == nil {
		return nil, auth.ErrUnauthenticated
	}
	if admin.Role != auth.RoleAdmin {
		return nil, auth.ErrForbidden
	}

	record, err := s.identities.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	changes, event, err := change(record)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return record, nil
	}

	record, err = s.identities.Apply(ctx, targetID, changes)
	if err != nil {
		return nil, fmt.Errorf("failed to update identity %d: %w", targetID, err)
	}
	if revoke {
		event.WithDetail("sessions_revoked", s.revokeSessions(ctx, record.ID))
	}

	s.recorder.Record(ctx, event)
	s.synchronize(ctx, record.ID)
	return record, nil
}

func rejectSelf(admin *auth.Principal, targetID int64, action string) error {
	if admin.ID == targetID {
		return fmt.Errorf("%w: cannot %s your own account", auth.ErrForbidden, action)
	}
	return nil
}

// Lock blocks logins of the target and ends its sessions
func (s *Service) Lock(ctx context.Context, admin *auth.Principal, targetID int64, reason string) (*identity.Record, error) {
	return s.adminMutate(ctx, admin, targetID, true, func(r *identity.Record) (identity.Changes, *audit.AuditEvent, error) {
		if err := rejectSelf(admin, targetID, "lock"); err != nil {
			return identity.Changes{}, nil, err
		}
		if r.Locked {
			return identity.Changes{}, nil, nil
		}
		locked := true
		return identity.Changes{Locked: &locked},
			audit.AdminActionEvent(audit.EventTypeAccountLocked, admin, r.ID, r.Email, "Account locked").
				WithDetail("reason", reason), nil
	})
}

// Unlock lifts a lock
func (s *Service) Unlock(ctx context.Context, admin *auth.Principal, targetID int64) (*identity.Record, error) {
	return s.adminMutate(ctx, admin, targetID, false, func(r *identity.Record) (identity.Changes, *audit.AuditEvent, error) {
		if !r.Locked {
			return identity.Changes{}, nil, nil
		}
		locked := false
		return identity.Changes{Locked: &locked},
			audit.AdminActionEvent(audit.EventTypeAccountUnlocked, admin, r.ID, r.Email, "Account unlocked"), nil
	})
}

// ChangeRole assigns a new role. Sessions are revoked so the new role
// takes effect on the next login.
func (s *Service) ChangeRole(ctx context.Context, admin *auth.Principal, targetID int64, role auth.Role) (*identity.Record, error) {
	if !role.Valid() {
		return nil, &ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", role)}
	}
	return s.adminMutate(ctx, admin, targetID, true, func(r *identity.Record) (identity.Changes, *audit.AuditEvent, error) {
		if err := rejectSelf(admin, targetID, "change the role of"); err != nil {
			return identity.Changes{}, nil, err
		}
		if r.Role == role {
			return identity.Changes{}, nil, nil
		}
		return identity.Changes{Role: &role},
			audit.AdminActionEvent(audit.EventTypeUserRoleChanged, admin, r.ID, r.Email, "Role changed").
				WithDetail("previous_role", string(r.Role)).
				WithDetail("new_role", string(role)), nil
	})
}

// VerifyManually marks the target's email as verified
func (s *Service) VerifyManually(ctx context.Context, admin *auth.Principal, targetID int64) (*identity.Record, error) {
	return s.adminMutate(ctx, admin, targetID, false, func(r *identity.Record) (identity.Changes, *audit.AuditEvent, error) {
		if r.Verified {
			return identity.Changes{}, nil, nil
		}
		verified := true
		return identity.Changes{Verified: &verified},
			audit.AdminActionEvent(audit.EventTypeUserVerifiedManually, admin, r.ID, r.Email, "Email verified by administrator"), nil
	})
}

// SoftDelete marks the target deleted; the row and its audit history stay
func (s *Service) SoftDelete(ctx context.Context, admin *auth.Principal, targetID int64) (*identity.Record, error) {
	return s.adminMutate(ctx, admin, targetID, true, func(r *identity.Record) (identity.Changes, *audit.AuditEvent, error) {
		if err := rejectSelf(admin, targetID, "delete"); err != nil {
			return identity.Changes{}, nil, err
		}
		if r.Deleted() {
			return identity.Changes{}, nil, nil
		}
		now := s.now().UTC()
		return identity.Changes{DeletedAt: &now},
			audit.AdminActionEvent(audit.EventTypeUserDeleted, admin, r.ID, r.Email, "Account deleted"), nil
	})
}

// Restore reverses a soft delete
func (s *Service) Restore(ctx context.Context, admin *auth.Principal, targetID int64) (*identity.Record, error) {
	return s.adminMutate(ctx, admin, targetID, false, func(r *identity.Record) (identity.Changes, *audit.AuditEvent, error) {
		if !r.Deleted() {
			return identity.Changes{}, nil, nil
		}
		return identity.Changes{Restore: true},
			audit.AdminActionEvent(audit.EventTypeUserRestored, admin, r.ID, r.Email, "Account restored"), nil
	})
}

// GetProfile returns the profile linked to an identity
func (s *Service) GetProfile(ctx context.Context, identityID int64) (*profile.Profile, error) {
	record, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if record.ProfileID != nil {
		p, err := s.profiles.Get(ctx, *record.ProfileID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, profile.ErrNotFound) {
			return nil, err
		}
	}
	return s.profiles.GetByIdentityID(ctx, identityID)
}

// UpdateProfile applies a self-service patch to the caller's profile.
// A missing profile is created by the synchronizer first.
func (s *Service) UpdateProfile(ctx context.Context, identityID int64, patch profile.Patch) (*profile.Profile, error) {
	if patch.Empty() {
		return nil, &ValidationError{Field: "profile", Message: "no changes"}
	}

	p, err := s.GetProfile(ctx, identityID)
	if errors.Is(err, profile.ErrNotFound) && s.syncer != nil {
		if _, err = s.syncer.Synchronize(ctx, identityID); err != nil {
			return nil, err
		}
		p, err = s.GetProfile(ctx, identityID)
	}
	if err != nil {
		return nil, err
	}

	patch.Apply(p)
	if err := s.profiles.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	fields := patch.Fields()
	s.recorder.Record(ctx, audit.NewEvent(audit.EventTypeProfileUpdated, audit.LevelInfo, audit.ModuleUser,
		"Profile updated").
		WithActor(identityID, p.Email).
		WithReference(p.ID).
		WithDetail("fields", fields))
	return p, nil
}
