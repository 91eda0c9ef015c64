package identitysync_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/identitysync"
	"github.com/platinummonkey/warden/pkg/profile"
)

func TestValidateIntegrity_Clean(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addIdentity(t, "a@x.com")
	f.addIdentity(t, "b@x.com")

	_, err := f.sync.SynchronizeAll(ctx)
	require.NoError(t, err)

	report, err := f.sync.ValidateIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Equal(t, 2, report.IdentitiesScanned)
	assert.Equal(t, 2, report.ProfilesScanned)
}

func TestValidateIntegrity_FindsEveryKind(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// identity without a profile
	f.addIdentity(t, "missing@x.com")

	// linked pair whose emails drifted
	drifted := f.addIdentity(t, "drift@x.com")
	result, err := f.sync.Synchronize(ctx, drifted.ID)
	require.NoError(t, err)
	p, err := f.profiles.Get(ctx, result.ProfileID)
	require.NoError(t, err)
	p.Email = "old@x.com"
	require.NoError(t, f.profiles.Update(ctx, p))

	// profile nobody points at
	require.NoError(t, f.profiles.Create(ctx, &profile.Profile{ID: "zz-stray", IdentityID: 999, Email: "stray@x.com", Status: profile.StatusActive}))

	report, err := f.sync.ValidateIntegrity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(identitysync.KindMissingProfile))
	assert.Equal(t, 1, report.Count(identitysync.KindEmailMismatch))
	assert.Equal(t, 1, report.Count(identitysync.KindOrphanProfile))

	for _, d := range report.Discrepancies {
		if d.Kind == identitysync.KindEmailMismatch {
			assert.Equal(t, "drift@x.com", d.IdentityEmail)
			assert.Equal(t, "old@x.com", d.ProfileEmail)
		}
	}

	// email mismatches are never repaired by the scan
	p, err = f.profiles.Get(ctx, result.ProfileID)
	require.NoError(t, err)
	assert.Equal(t, "old@x.com", p.Email)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IntegrityDiscrepancies.WithLabelValues("email_mismatch")))
}

func TestValidateIntegrity_ProfileNotLinkedBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	record := f.addIdentity(t, "ana@x.com")

	p := identitysync.NewProfileFor(record)
	require.NoError(t, f.profiles.Create(ctx, p))

	report, err := f.sync.ValidateIntegrity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(identitysync.KindMissingProfile))
	assert.Equal(t, 1, report.Count(identitysync.KindOrphanProfile))
}

func TestValidateIntegrity_SharedProfileLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.addIdentity(t, "owner@x.com")
	intruder := f.addIdentity(t, "intruder@x.com")

	result, err := f.sync.Synchronize(ctx, owner.ID)
	require.NoError(t, err)
	require.NoError(t, f.identities.SetProfileID(ctx, intruder.ID, result.ProfileID))

	_, err = f.sync.Synchronize(ctx, intruder.ID)
	require.ErrorIs(t, err, auth.ErrSyncConflict)

	report, err := f.sync.ValidateIntegrity(ctx)
	require.NoError(t, err)
	assert.False(t, report.Clean())
	require.Equal(t, 1, report.Count(identitysync.KindLinkConflict))
	assert.Len(t, report.Discrepancies, 1)

	d := report.Discrepancies[0]
	assert.Equal(t, intruder.ID, d.IdentityID)
	assert.Equal(t, result.ProfileID, d.ProfileID)
	assert.Contains(t, d.Detail, fmt.Sprintf("belongs to identity %d", owner.ID))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IntegrityDiscrepancies.WithLabelValues("link_conflict")))
}
