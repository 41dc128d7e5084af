// Package rules loads normalizer removal lists from YAML and reloads them
// when the file changes.
package rules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/pricematch/backend/internal/usecase"
)

// reloadDelay coalesces the burst of events editors produce on save
const reloadDelay = 200 * time.Millisecond

// Load reads a rules file and layers it over the built-in lists. An empty
// path yields the defaults.
func Load(path string) (usecase.Rules, error) {
	if path == "" {
		return usecase.DefaultRules(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return usecase.Rules{}, fmt.Errorf("read rules: %w", err)
	}

	var r usecase.Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return usecase.Rules{}, fmt.Errorf("parse rules %s: %w", path, err)
	}
	return r.Merge(usecase.DefaultRules()), nil
}

// Watcher publishes a new normalizer into a holder whenever the rules
// file is written. A file that fails to parse keeps the previous rules.
type Watcher struct {
	path   string
	holder *usecase.NormalizerHolder
	logger zerolog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for path
func NewWatcher(path string, holder *usecase.NormalizerHolder, logger zerolog.Logger) *Watcher {
	return &Watcher{
		path:   filepath.Clean(path),
		holder: holder,
		logger: logger.With().Str("component", "rules").Str("path", path).Logger(),
	}
}

// Run watches until ctx is canceled. The parent directory is watched so
// editors that replace the file by rename are handled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create rules watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info().Msg("watching normalizer rules")

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.scheduleReload()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("rules watcher error")
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDelay, func() {
		if err := w.Reload(); err != nil {
			w.logger.Warn().Err(err).Msg("keeping previous normalizer rules")
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Reload reads the rules file now and publishes the result
func (w *Watcher) Reload() error {
	r, err := Load(w.path)
	if errors.Is(err, os.ErrNotExist) {
		// mid-rename; the Create event that follows triggers another reload
		return nil
	}
	if err != nil {
		return err
	}

	w.holder.Store(usecase.NewNormalizer(r))
	w.logger.Info().
		Int("brands", len(r.Brands)).
		Int("qualifiers", len(r.Qualifiers)).
		Msg("normalizer rules reloaded")
	return nil
}
