package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/superapp/partnerauth/internal/cache"
	"github.com/superapp/partnerauth/internal/database/testutil"
	"github.com/superapp/partnerauth/internal/models"
	"github.com/superapp/partnerauth/internal/services"
)

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &fixedClock{current: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}
	ctx := context.Background()

	store, err := services.NewOTPStore(db, services.WithOTPClock(clock.Now))
	require.NoError(t, err)
	rates := cache.NewDatabaseStore(db, cache.WithClock(clock.Now))

	_, expired, err := store.Issue(ctx, "+919876543210")
	require.NoError(t, err)
	_, _, err = rates.IncrementWithTTL(ctx, "ratelimit:1.2.3.4", time.Minute)
	require.NoError(t, err)

	clock.current = clock.current.Add(11 * time.Minute)
	_, active, err := store.Issue(ctx, "+919876543210")
	require.NoError(t, err)
	_, _, err = rates.IncrementWithTTL(ctx, "ratelimit:5.6.7.8", time.Minute)
	require.NoError(t, err)

	c := NewCleaner(store, rates, WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))))
	require.NoError(t, c.RunOnce(ctx))

	var records []models.OTPRecord
	require.NoError(t, db.Find(&records).Error)
	require.Len(t, records, 1)
	require.Equal(t, active.ID, records[0].ID)
	require.NotEqual(t, expired.ID, records[0].ID)

	var entries []models.CacheEntry
	require.NoError(t, db.Find(&entries).Error)
	require.Len(t, entries, 1)
	require.Equal(t, "ratelimit:5.6.7.8", entries[0].Key)
}

func TestCleanerRunOnceAggregatesErrors(t *testing.T) {
	otpErr := errors.New("otp table locked")
	cacheErr := errors.New("cache table locked")

	c := NewCleaner(failingSweeper{err: otpErr}, failingSweeper{err: cacheErr})
	err := c.RunOnce(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, otpErr)
	require.ErrorIs(t, err, cacheErr)
	require.Len(t, multierr.Errors(err), 2)
}

func TestCleanerSkipsMissingSweepers(t *testing.T) {
	c := NewCleaner(nil, nil)
	require.NoError(t, c.Start())
	require.NoError(t, c.RunOnce(context.Background()))
	<-c.Stop().Done()
}

func TestCleanerStartRejectsInvalidSchedule(t *testing.T) {
	c := NewCleaner(failingSweeper{}, nil, WithOTPSchedule("not a schedule"))
	require.Error(t, c.Start())
}

func TestCleanerStartRegistersJobs(t *testing.T) {
	scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))
	c := NewCleaner(failingSweeper{}, failingSweeper{},
		WithCron(scheduler),
		WithOTPSchedule("@every 1m"),
		WithCacheSchedule("@every 5m"),
	)

	require.NoError(t, c.Start())
	t.Cleanup(func() { <-c.Stop().Done() })
	require.Len(t, scheduler.Entries(), 2)
}

type failingSweeper struct {
	err error
}

func (f failingSweeper) SweepExpired(context.Context) (int64, error) {
	return 0, f.err
}

func (f failingSweeper) DeleteExpired(context.Context) (int64, error) {
	return 0, f.err
}

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}
