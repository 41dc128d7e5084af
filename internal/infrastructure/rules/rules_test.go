package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricematch/backend/internal/usecase"
)

func writeRules(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad(t *testing.T) {
	t.Run("empty path gives defaults", func(t *testing.T) {
		r, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, usecase.DefaultRules(), r)
	})

	t.Run("extends defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.yaml")
		writeRules(t, path, "brands:\n  - co op\nqualifiers:\n  - multipack\n")

		r, err := Load(path)
		require.NoError(t, err)
		assert.Contains(t, r.Brands, "co op")
		assert.Contains(t, r.Brands, "tesco")
		assert.Contains(t, r.Qualifiers, "multipack")
	})

	t.Run("replaces defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.yaml")
		writeRules(t, path, "replace_defaults: true\nbrands:\n  - co op\n")

		r, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"co op"}, r.Brands)
		assert.Empty(t, r.Qualifiers)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.yaml")
		writeRules(t, path, "brands: [unterminated\n")

		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestWatcher_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeRules(t, path, "brands:\n  - co op\n")

	holder := usecase.NewNormalizerHolder(usecase.NewNormalizer(usecase.DefaultRules()))
	w := NewWatcher(path, holder, zerolog.Nop())

	assert.Equal(t, "co op whole milk", holder.Load().Normalize("Co-op Whole Milk"))
	require.NoError(t, w.Reload())
	assert.Equal(t, "whole milk", holder.Load().Normalize("Co-op Whole Milk"))

	// a broken file keeps the current normalizer
	before := holder.Load()
	writeRules(t, path, "brands: [unterminated\n")
	assert.Error(t, w.Reload())
	assert.Same(t, before, holder.Load())
}

func TestWatcher_RunPicksUpWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeRules(t, path, "brands: []\n")

	holder := usecase.NewNormalizerHolder(usecase.NewNormalizer(usecase.DefaultRules()))
	w := NewWatcher(path, holder, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// let the watcher register before writing
	time.Sleep(100 * time.Millisecond)
	writeRules(t, path, "qualifiers:\n  - multipack\n")

	assert.Eventually(t, func() bool {
		return holder.Load().Normalize("Multipack Crisps") == "crisps"
	}, 3*time.Second, 50*time.Millisecond)
}
