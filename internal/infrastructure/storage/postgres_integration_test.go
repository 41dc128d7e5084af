//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pricematch/backend/internal/domain"
)

func newPostgresStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("pricematch_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := Open(ctx, DriverPostgres, dsn, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresStore(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	t.Run("catalog search", func(t *testing.T) {
		_, err := s.InsertProducts(ctx, []domain.RawProduct{
			{Supermarket: domain.StoreTesco, Name: "Greek Yogurt 0% Fat 500g", Price: "£1.20", ImageURL: "x", Category: "dairy"},
			{Supermarket: domain.StoreTesco, Name: "Greek Yogurt 500g", Price: "£1.10", ImageURL: "y", Category: "dairy"},
		})
		require.NoError(t, err)

		got, err := s.SearchProducts(ctx, domain.StoreTesco, "0%", 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "x", got[0].ImageURL)
	})

	t.Run("mapping swap", func(t *testing.T) {
		require.NoError(t, s.ReplaceMappings(ctx, "pg-run", sampleMappings(4, "pg")))
		version, got, err := s.ListMappings(ctx)
		require.NoError(t, err)
		assert.Equal(t, "pg-run", version)
		assert.Len(t, got, 4)
	})

	t.Run("run lock", func(t *testing.T) {
		run, err := s.BeginBuild(ctx)
		require.NoError(t, err)
		_, err = s.BeginBuild(ctx)
		assert.ErrorIs(t, err, domain.ErrBuildInProgress)
		require.NoError(t, s.FinishBuild(ctx, run.ID, 4, nil))
	})

	t.Run("manual conflict", func(t *testing.T) {
		require.NoError(t, s.CreateManualMapping(ctx, newManual("pg-1", "whole milk")))
		err := s.CreateManualMapping(ctx, newManual("pg-2", "whole milk"))
		assert.ErrorIs(t, err, domain.ErrManualMappingConflict)
	})
}
