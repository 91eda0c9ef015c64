package identitysync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/profile"
)

// DiscrepancyKind classifies an integrity finding
type DiscrepancyKind string

const (
	// KindMissingProfile is an identity with no profile, or whose link
	// points at a profile that does not exist
	KindMissingProfile DiscrepancyKind = "missing_profile"
	// KindOrphanProfile is a profile whose identity does not link back to it
	KindOrphanProfile DiscrepancyKind = "orphan_profile"
	// KindEmailMismatch is a linked pair whose emails disagree
	KindEmailMismatch DiscrepancyKind = "email_mismatch"
	// KindLinkConflict is an identity linked to a profile that belongs to
	// another identity
	KindLinkConflict DiscrepancyKind = "link_conflict"
)

// DiscrepancyKinds lists every kind
var DiscrepancyKinds = []DiscrepancyKind{KindMissingProfile, KindOrphanProfile, KindEmailMismatch, KindLinkConflict}

// Discrepancy is one integrity finding
type Discrepancy struct {
	Kind          DiscrepancyKind `json:"kind"`
	IdentityID    int64           `json:"identity_id,omitempty"`
	ProfileID     string          `json:"profile_id,omitempty"`
	IdentityEmail string          `json:"identity_email,omitempty"`
	ProfileEmail  string          `json:"profile_email,omitempty"`
	Detail        string          `json:"detail"`
}

// IntegrityReport is the outcome of ValidateIntegrity
type IntegrityReport struct {
	CheckedAt         time.Time     `json:"checked_at"`
	IdentitiesScanned int           `json:"identities_scanned"`
	ProfilesScanned   int           `json:"profiles_scanned"`
	Discrepancies     []Discrepancy `json:"discrepancies"`
}

// Count returns the number of findings of kind
func (r *IntegrityReport) Count(kind DiscrepancyKind) int {
	n := 0
	for _, d := range r.Discrepancies {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// Clean reports whether nothing was found
func (r *IntegrityReport) Clean() bool {
	return len(r.Discrepancies) == 0
}

// ValidateIntegrity scans both stores and reports discrepancies without
// changing either
func (s *Synchronizer) ValidateIntegrity(ctx context.Context) (report *IntegrityReport, err error) {
	ctx, span := observability.StartSpan(ctx, "identitysync", "ValidateIntegrity")
	defer func() { observability.EndSpan(span, err) }()

	report = &IntegrityReport{CheckedAt: time.Now().UTC()}
	if err := s.scanIdentities(ctx, report); err != nil {
		return nil, err
	}
	if err := s.scanProfiles(ctx, report); err != nil {
		return nil, err
	}

	for _, kind := range DiscrepancyKinds {
		s.metrics.SetIntegrityDiscrepancies(string(kind), report.Count(kind))
	}
	s.logger.WithFields(map[string]interface{}{
		"identities_scanned": report.IdentitiesScanned,
		"profiles_scanned":   report.ProfilesScanned,
		"missing_profile":    report.Count(KindMissingProfile),
		"orphan_profile":     report.Count(KindOrphanProfile),
		"email_mismatch":     report.Count(KindEmailMismatch),
		"link_conflict":      report.Count(KindLinkConflict),
	}).Info("integrity check finished")
	return report, nil
}

func (s *Synchronizer) scanIdentities(ctx context.Context, report *IntegrityReport) error {
	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := s.identities.List(ctx, afterID, s.config.PageSize)
		if err != nil {
			return fmt.Errorf("failed to list identities: %w", err)
		}
		if len(page) == 0 {
			return nil
		}
		afterID = page[len(page)-1].ID
		report.IdentitiesScanned += len(page)

		for _, record := range page {
			if err := s.checkIdentity(ctx, record, report); err != nil {
				return err
			}
		}
	}
}

func (s *Synchronizer) checkIdentity(ctx context.Context, record *identity.Record, report *IntegrityReport) error {
	if record.ProfileID == nil {
		report.Discrepancies = append(report.Discrepancies, Discrepancy{
			Kind:          KindMissingProfile,
			IdentityID:    record.ID,
			IdentityEmail: record.Email,
			Detail:        "identity has no profile link",
		})
		return nil
	}

	p, err := s.profiles.Get(ctx, *record.ProfileID)
	if errors.Is(err, profile.ErrNotFound) {
		report.Discrepancies = append(report.Discrepancies, Discrepancy{
			Kind:          KindMissingProfile,
			IdentityID:    record.ID,
			ProfileID:     *record.ProfileID,
			IdentityEmail: record.Email,
			Detail:        "linked profile does not exist",
		})
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load profile %s: %w", *record.ProfileID, err)
	}

	// the profile scan only sees the owner's side, so a second identity
	// pointing at the same profile is reported here; a profile with no
	// owner is reported from the profile side
	if p.IdentityID == 0 {
		return nil
	}
	if p.IdentityID != record.ID {
		report.Discrepancies = append(report.Discrepancies, Discrepancy{
			Kind:          KindLinkConflict,
			IdentityID:    record.ID,
			ProfileID:     p.ID,
			IdentityEmail: record.Email,
			ProfileEmail:  p.Email,
			Detail:        fmt.Sprintf("linked profile belongs to identity %d", p.IdentityID),
		})
		return nil
	}
	if !strings.EqualFold(p.Email, record.Email) {
		report.Discrepancies = append(report.Discrepancies, Discrepancy{
			Kind:          KindEmailMismatch,
			IdentityID:    record.ID,
			ProfileID:     p.ID,
			IdentityEmail: record.Email,
			ProfileEmail:  p.Email,
			Detail:        "identity and profile emails differ",
		})
	}
	return nil
}

func (s *Synchronizer) scanProfiles(ctx context.Context, report *IntegrityReport) error {
	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := s.profiles.List(ctx, afterID, s.config.PageSize)
		if err != nil {
			return fmt.Errorf("failed to list profiles: %w", err)
		}
		if len(page) == 0 {
			return nil
		}
		afterID = page[len(page)-1].ID
		report.ProfilesScanned += len(page)

		for _, p := range page {
			detail, err := s.reciprocalProblem(ctx, p)
			if err != nil {
				return err
			}
			if detail != "" {
				report.Discrepancies = append(report.Discrepancies, Discrepancy{
					Kind:         KindOrphanProfile,
					IdentityID:   p.IdentityID,
					ProfileID:    p.ID,
					ProfileEmail: p.Email,
					Detail:       detail,
				})
			}
		}
	}
}

// reciprocalProblem explains why p is not properly linked, or returns ""
func (s *Synchronizer) reciprocalProblem(ctx context.Context, p *profile.Profile) (string, error) {
	if p.IdentityID == 0 {
		return "profile has no identity reference", nil
	}
	record, err := s.identities.GetByID(ctx, p.IdentityID)
	if errors.Is(err, identity.ErrNotFound) {
		return "referenced identity does not exist", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load identity %d: %w", p.IdentityID, err)
	}
	if record.ProfileID == nil {
		return "identity does not link back", nil
	}
	if *record.ProfileID != p.ID {
		return fmt.Sprintf("identity links to profile %s", *record.ProfileID), nil
	}
	return "", nil
}
