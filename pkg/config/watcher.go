package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/openfroyo/factopt/pkg/engine"
)

// DefaultDebounce is the quiet period after the last write before a watched
// factory is reloaded.
const DefaultDebounce = 500 * time.Millisecond

// ReloadFunc receives the reloaded factory, or the error that prevented it
// from loading.
type ReloadFunc func(ctx context.Context, f *engine.Factory, err error)

// Watcher reloads a factory file whenever it changes on disk.
type Watcher struct {
	loader   *Loader
	path     string
	debounce time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher for the factory at path.
func NewWatcher(loader *Loader, path string, logger zerolog.Logger) *Watcher {
	return &Watcher{
		loader:   loader,
		path:     filepath.Clean(path),
		debounce: DefaultDebounce,
		logger:   logger.With().Str("component", "config-watcher").Str("path", path).Logger(),
	}
}

// WithDebounce overrides the reload delay.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// Watch loads the factory once, then reloads it after every change until
// ctx is done. It blocks. The directory is watched rather than the file so
// that editors replacing the file on save are seen.
func (w *Watcher) Watch(ctx context.Context, reload ReloadFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()
	defer w.Stop()

	w.logger.Info().Dur("debounce", w.debounce).Msg("Watching factory")
	w.reload(ctx, reload)

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			w.logger.Debug().Str("op", event.Op.String()).Msg("Factory file changed")

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			w.reload(ctx, reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) reload(ctx context.Context, reload ReloadFunc) {
	f, err := w.loader.Load(ctx, w.path)
	if err == nil {
		err = f.Freeze()
	}
	if err != nil {
		w.logger.Warn().Err(err).Msg("Factory reload failed")
		reload(ctx, nil, err)
		return
	}
	w.logger.Info().Str("factory", f.Name).Msg("Factory reloaded")
	reload(ctx, f, nil)
}

// Stop closes the underlying file watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	w.watcher = nil
	return err
}
