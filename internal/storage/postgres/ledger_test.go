//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/marketplace-bff/internal/domain/bundle"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "bff",
				"POSTGRES_PASSWORD": "bff",
				"POSTGRES_DB":       "bff",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	pool, err := NewPool(ctx, fmt.Sprintf("postgres://bff:bff@%s:%s/bff?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	require.NoError(t, RunMigrations(ctx, pool), "schema must be re-appliable")
	return pool
}

func TestLedgerRepository(t *testing.T) {
	pool := startPostgres(t)
	repo := NewLedgerRepository(pool)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.Latest(ctx, "bundle_none")
	require.ErrorIs(t, err, bundle.ErrEntryNotFound)

	purchase := bundle.Entry{
		ID:             uuid.NewString(),
		BundleID:       "bundle_o1_o2",
		TrackingNumber: "1Z999",
		LabelURL:       "https://labels.example.com/1Z999.pdf",
		Carrier:        "UPS",
		Service:        "Ground",
		Cost:           decimal.RequireFromString("12.34"),
		OrderIDs:       []string{"o1", "o2"},
		Outcome:        bundle.OutcomePartiallySucceeded,
		FailedOrders:   []string{"o2"},
		Weight:         "16 oz",
		Dimensions:     "10x6x5",
		CreatedAt:      created,
	}
	require.NoError(t, repo.Record(ctx, purchase))

	got, err := repo.Latest(ctx, "bundle_o1_o2")
	require.NoError(t, err)
	assert.Equal(t, purchase.ID, got.ID)
	assert.True(t, purchase.Cost.Equal(got.Cost))
	assert.Equal(t, []string{"o2"}, got.FailedOrders)
	assert.Equal(t, bundle.OutcomePartiallySucceeded, got.Outcome)
	assert.True(t, created.Equal(got.CreatedAt))

	t.Run("repair refreshes outcome and keeps purchase details", func(t *testing.T) {
		require.NoError(t, repo.Record(ctx, bundle.Entry{
			ID:             uuid.NewString(),
			BundleID:       "bundle_o1_o2",
			TrackingNumber: "1Z999",
			OrderIDs:       []string{"o1", "o2"},
			Outcome:        bundle.OutcomeAllSucceeded,
			CreatedAt:      created.Add(time.Hour),
		}))

		got, err := repo.Latest(ctx, "bundle_o1_o2")
		require.NoError(t, err)
		assert.Equal(t, purchase.ID, got.ID)
		assert.Equal(t, bundle.OutcomeAllSucceeded, got.Outcome)
		assert.Empty(t, got.FailedOrders)
		assert.Equal(t, "UPS", got.Carrier)
		assert.Equal(t, "16 oz", got.Weight)
		assert.True(t, decimal.RequireFromString("12.34").Equal(got.Cost))
	})

	t.Run("list and iterate", func(t *testing.T) {
		require.NoError(t, repo.Record(ctx, bundle.Entry{
			ID:             uuid.NewString(),
			BundleID:       "bundle_o3",
			TrackingNumber: "1Z111",
			OrderIDs:       []string{"o3"},
			Outcome:        bundle.OutcomeAllSucceeded,
			CreatedAt:      created.Add(24 * time.Hour),
		}))

		ids, err := repo.ListBundleIDs(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []bundle.ID{"bundle_o1_o2", "bundle_o3"}, ids)

		var seen []string
		require.NoError(t, repo.Each(ctx, created.Add(time.Minute), func(e bundle.Entry) error {
			seen = append(seen, e.TrackingNumber)
			return nil
		}))
		assert.Equal(t, []string{"1Z111"}, seen)
	})
}
