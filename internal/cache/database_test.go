package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/superapp/partnerauth/internal/database/testutil"
	"github.com/superapp/partnerauth/internal/models"
)

func TestDatabaseStoreIncrementWithinWindow(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	current := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store := NewDatabaseStore(db, WithClock(func() time.Time { return current }))
	ctx := context.Background()

	count, ttl, err := store.IncrementWithTTL(ctx, "otp:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, time.Minute, ttl)

	current = current.Add(20 * time.Second)
	count, ttl, err = store.IncrementWithTTL(ctx, "otp:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
	require.Equal(t, 40*time.Second, ttl, "window must not slide")

	count, _, err = store.IncrementWithTTL(ctx, "otp:5.6.7.8", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestDatabaseStoreResetsAfterWindow(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	current := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store := NewDatabaseStore(db, WithClock(func() time.Time { return current }))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := store.IncrementWithTTL(ctx, "k", time.Minute)
		require.NoError(t, err)
	}

	current = current.Add(time.Minute)
	count, ttl, err := store.IncrementWithTTL(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, time.Minute, ttl)
}

func TestDatabaseStoreDeleteExpired(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	current := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store := NewDatabaseStore(db, WithClock(func() time.Time { return current }))
	ctx := context.Background()

	_, _, err := store.IncrementWithTTL(ctx, "short", time.Second)
	require.NoError(t, err)
	_, _, err = store.IncrementWithTTL(ctx, "long", time.Hour)
	require.NoError(t, err)

	current = current.Add(time.Minute)
	removed, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	var remaining []models.CacheEntry
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, "long", remaining[0].Key)
}

func TestNilDatabaseStore(t *testing.T) {
	require.Nil(t, NewDatabaseStore(nil))

	var store *DatabaseStore
	_, _, err := store.IncrementWithTTL(context.Background(), "k", time.Minute)
	require.Error(t, err)
}
