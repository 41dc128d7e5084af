package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricematch/backend/internal/domain"
)

func qty(v float64) *float64 { return &v }

func sampleMappings(n int, prefix string) []domain.ProductMapping {
	mappings := make([]domain.ProductMapping, n)
	for i := range mappings {
		mappings[i] = domain.ProductMapping{
			GenericName:     fmt.Sprintf("%s item %d", prefix, i),
			TescoName:       fmt.Sprintf("Tesco %s %d", prefix, i),
			SainsburysName:  fmt.Sprintf("Sainsbury's %s %d", prefix, i),
			TescoPrice:      "£1.00",
			SainsburysPrice: "£1.10",
			Confidence:      0.8,
		}
	}
	return mappings
}

func TestReplaceMappings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	version, got, err := s.ListMappings(ctx)
	require.NoError(t, err)
	assert.Empty(t, version)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	first := []domain.ProductMapping{
		{
			GenericName: "whole milk", TescoName: "Tesco Whole Milk 2L", SainsburysName: "Sainsbury's Whole Milk 2.27L",
			TescoPrice: "£1.65", SainsburysPrice: "£1.85",
			TescoQuantity: qty(2000), TescoUnit: domain.UnitMillilitres,
			SainsburysQuantity: qty(2270), SainsburysUnit: domain.UnitMillilitres,
			Confidence: 0.91,
		},
		{
			GenericName: "bananas", TescoName: "Tesco Bananas Loose", SainsburysName: "Sainsbury's Bananas Loose",
			TescoPrice: "£0.15", SainsburysPrice: "£0.16", Confidence: 0.88,
		},
	}
	require.NoError(t, s.ReplaceMappings(ctx, "run-1", first))

	version, got, err = s.ListMappings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", version)
	require.Len(t, got, 2)
	assert.Equal(t, first[0], got[0])
	assert.Nil(t, got[1].TescoQuantity)
	assert.Nil(t, got[1].SainsburysQuantity)

	require.NoError(t, s.ReplaceMappings(ctx, "run-2", sampleMappings(3, "second")))
	version, got, err = s.ListMappings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-2", version)
	require.Len(t, got, 3)
	assert.Equal(t, "second item 0", got[0].GenericName)

	var staged int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM product_mappings_staging`).Scan(&staged))
	assert.Zero(t, staged)
}

func TestReplaceMappings_CanceledKeepsLiveTable(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ReplaceMappings(context.Background(), "live", sampleMappings(2, "live")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, s.ReplaceMappings(ctx, "lost", sampleMappings(5, "lost")))

	version, got, err := s.ListMappings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "live", version)
	require.Len(t, got, 2)
	assert.Equal(t, "live item 0", got[0].GenericName)
}

// Readers running during repeated swaps must always see one complete table
// labelled with its own version.
func TestReplaceMappings_ReadersNeverSeePartialTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const small, large = 10, 200
	require.NoError(t, s.ReplaceMappings(ctx, "a", sampleMappings(small, "a")))

	var (
		stop  atomic.Bool
		wg    sync.WaitGroup
		bad   atomic.Int64
		reads atomic.Int64
	)
	for r := 0; r < 3; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				version, rows, err := s.ListMappings(ctx)
				if err != nil {
					continue
				}
				reads.Add(1)
				switch {
				case version == "a" && len(rows) == small:
				case version == "b" && len(rows) == large:
				default:
					bad.Add(1)
				}
			}
		}()
	}

	for i := 0; i < 10; i++ {
		n, prefix := large, "b"
		if i%2 == 1 {
			n, prefix = small, "a"
		}
		require.NoError(t, s.ReplaceMappings(ctx, prefix, sampleMappings(n, prefix)))
	}
	stop.Store(true)
	wg.Wait()

	assert.Positive(t, reads.Load())
	assert.Zero(t, bad.Load(), "a reader observed a partial mapping table")
}

func TestBuildRunLock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.BeginBuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.BuildRunning, run.Status)

	_, err = s.BeginBuild(ctx)
	assert.ErrorIs(t, err, domain.ErrBuildInProgress)

	require.NoError(t, s.FinishBuild(ctx, run.ID, 42, nil))
	// finishing twice is an error, the run is no longer running
	assert.Error(t, s.FinishBuild(ctx, run.ID, 42, nil))

	next, err := s.BeginBuild(ctx)
	require.NoError(t, err)
	require.NoError(t, s.FinishBuild(ctx, next.ID, 0, errors.New("catalog empty")))

	var status, message string
	require.NoError(t, s.db.QueryRow(`SELECT status, error FROM mapping_runs WHERE id = ?`, next.ID).Scan(&status, &message))
	assert.Equal(t, domain.BuildFailed, status)
	assert.Equal(t, "catalog empty", message)
}

func TestLatestSuccessfulBuild(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	latest, err := s.LatestSuccessfulBuild(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	first, err := s.BeginBuild(ctx)
	require.NoError(t, err)
	require.NoError(t, s.FinishBuild(ctx, first.ID, 10, nil))

	second, err := s.BeginBuild(ctx)
	require.NoError(t, err)
	require.NoError(t, s.FinishBuild(ctx, second.ID, 12, nil))

	failed, err := s.BeginBuild(ctx)
	require.NoError(t, err)
	require.NoError(t, s.FinishBuild(ctx, failed.ID, 0, errors.New("boom")))

	latest, err = s.LatestSuccessfulBuild(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, 12, latest.Rows)
	require.NotNil(t, latest.FinishedAt)
}

func TestReleaseBuildLock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.ReleaseBuildLock(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.BeginBuild(ctx)
	require.NoError(t, err)

	n, err = s.ReleaseBuildLock(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.BeginBuild(ctx)
	assert.NoError(t, err)
}
