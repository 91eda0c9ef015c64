package profile_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/profile"
	"github.com/platinummonkey/warden/pkg/profile/profiletest"
)

func TestNewSQLStore_NilDatabase(t *testing.T) {
	store, err := profile.NewSQLStore(nil, "sqlite3")
	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestSQLStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store, _ := profiletest.NewSQLiteStore(t)

	p := &profile.Profile{
		IdentityID:  7,
		Email:       "ana@x.com",
		Name:        "Ana",
		Status:      profile.StatusPendingVerification,
		Role:        "USER",
		Address:     &profile.Address{City: "Lima", Country: profile.DefaultCountry},
		Preferences: profile.DefaultNotificationPreferences(),
		Metadata:    map[string]interface{}{"source": "web"},
	}
	require.NoError(t, store.Create(ctx, p))
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())

	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.IdentityID)
	assert.Equal(t, "ana@x.com", got.Email)
	assert.Equal(t, profile.StatusPendingVerification, got.Status)
	require.NotNil(t, got.Address)
	assert.Equal(t, "Perú", got.Address.Country)
	assert.True(t, got.Preferences.EmailAlerts)
	assert.False(t, got.Preferences.MarketingEmails)
	assert.Equal(t, "web", got.Metadata["source"])

	byIdentity, err := store.GetByIdentityID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, p.ID, byIdentity.ID)
}

func TestSQLStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store, _ := profiletest.NewSQLiteStore(t)

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, profile.ErrNotFound)

	_, err = store.GetByIdentityID(ctx, 42)
	assert.ErrorIs(t, err, profile.ErrNotFound)

	err = store.Update(ctx, &profile.Profile{ID: "missing", Email: "x@x.com", Status: profile.StatusActive})
	assert.ErrorIs(t, err, profile.ErrNotFound)
}

func TestSQLStore_OneProfilePerIdentity(t *testing.T) {
	ctx := context.Background()
	store, _ := profiletest.NewSQLiteStore(t)

	require.NoError(t, store.Create(ctx, &profile.Profile{IdentityID: 7, Email: "ana@x.com", Status: profile.StatusActive}))

	err := store.Create(ctx, &profile.Profile{IdentityID: 7, Email: "ana@x.com", Status: profile.StatusActive})
	assert.ErrorIs(t, err, profile.ErrAlreadyLinked)

	// unlinked profiles do not collide with each other
	require.NoError(t, store.Create(ctx, &profile.Profile{Email: "a@x.com", Status: profile.StatusActive}))
	require.NoError(t, store.Create(ctx, &profile.Profile{Email: "b@x.com", Status: profile.StatusActive}))
}

func TestSQLStore_Update(t *testing.T) {
	ctx := context.Background()
	store, _ := profiletest.NewSQLiteStore(t)

	p := &profile.Profile{IdentityID: 7, Email: "ana@x.com", Status: profile.StatusActive}
	require.NoError(t, store.Create(ctx, p))

	p.Email = "ana.new@x.com"
	p.Status = profile.StatusLocked
	p.FirstName = "Ana"
	require.NoError(t, store.Update(ctx, p))

	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana.new@x.com", got.Email)
	assert.Equal(t, profile.StatusLocked, got.Status)
	assert.Equal(t, "Ana", got.FirstName)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestSQLStore_List(t *testing.T) {
	ctx := context.Background()
	store, _ := profiletest.NewSQLiteStore(t)

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.Create(ctx, &profile.Profile{
			ID:         fmt.Sprintf("p-%d", i),
			IdentityID: int64(i),
			Email:      fmt.Sprintf("u%d@x.com", i),
			Status:     profile.StatusActive,
		}))
	}

	first, err := store.List(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "p-1", first[0].ID)
	assert.Equal(t, "p-2", first[1].ID)

	rest, err := store.List(ctx, first[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 3)
	assert.Equal(t, "p-5", rest[2].ID)
}
