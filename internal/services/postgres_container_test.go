//go:build container

package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/superapp/partnerauth/internal/database"
	"github.com/superapp/partnerauth/internal/models"
)

func openPostgresContainer(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "partnerauth",
			"POSTGRES_PASSWORD": "partnerauth",
			"POSTGRES_DB":       "partnerauth",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = tc.TerminateContainer(container)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	db, err := database.Open(database.Config{
		Driver:       "postgres",
		Host:         host,
		Port:         port.Int(),
		Name:         "partnerauth",
		User:         "partnerauth",
		Password:     "partnerauth",
		MaxOpenConns: 10,
	})
	require.NoError(t, err)

	dups, err := database.Migrate(ctx, db)
	require.NoError(t, err)
	require.Empty(t, dups)
	return db
}

func TestPostgresConcurrentFirstLoginCreatesOneIdentity(t *testing.T) {
	db := openPostgresContainer(t)
	resolver, err := NewIdentityResolver(db)
	require.NoError(t, err)
	ctx := context.Background()

	const n = 16
	userIDs := make([]string, n)
	partnerIDs := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			user, partner, err := resolver.ResolvePartnerIdentity(ctx, "+919876543210")
			if err != nil {
				return err
			}
			userIDs[i], partnerIDs[i] = user.ID, partner.ID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for i := range userIDs {
		require.Equal(t, userIDs[0], userIDs[i])
		require.Equal(t, partnerIDs[0], partnerIDs[i])
	}

	var users, partners int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	require.NoError(t, db.Model(&models.ServicePartner{}).Count(&partners).Error)
	require.EqualValues(t, 1, users)
	require.EqualValues(t, 1, partners)
}

func TestPostgresConcurrentVerifyHasOneWinner(t *testing.T) {
	db := openPostgresContainer(t)
	store, err := NewOTPStore(db, WithOTPCodeGenerator(fixedCodes("417293")))
	require.NoError(t, err)
	ctx := context.Background()

	_, _, err = store.Issue(ctx, "+919876543210")
	require.NoError(t, err)

	const n = 16
	errs := make([]error, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, errs[i] = store.Verify(ctx, "+919876543210", "417293")
			return nil
		})
	}
	require.NoError(t, g.Wait())

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, ErrOTPNotFoundOrExpired)
	}
	require.Equal(t, 1, wins)
}
