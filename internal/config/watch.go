package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// GateWatcher reloads a gate file when it changes on disk
type GateWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  zerolog.Logger
}

// NewGateWatcher starts watching the directory holding path. Editors that replace the
// file instead of writing it are handled the same way.
func NewGateWatcher(path string, logger zerolog.Logger) (*GateWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	return &GateWatcher{
		path:    abs,
		watcher: watcher,
		logger:  logger.With().Str("component", "gate_watcher").Str("path", path).Logger(),
	}, nil
}

// Run calls onChange with every successfully reloaded file until ctx is done.
// A file that fails to load is logged and the previous configuration stays in use.
func (w *GateWatcher) Run(ctx context.Context, onChange func(*GateFile)) error {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			f, err := LoadGateFile(w.path)
			if err != nil {
				w.logger.Error().Err(err).Msg("Failed to reload gate configuration")
				continue
			}

			w.logger.Info().Strs("wake_words", f.WakeCheck.WakeWords).Msg("Gate configuration reloaded")
			onChange(f)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("File watcher error")
		}
	}
}
