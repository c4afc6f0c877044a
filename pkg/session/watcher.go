package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/pgvet-io/pgvet-engine/pkg/models"
)

// ManifestSource produces the manifest for a run. In watch mode it is
// re-invoked after every file change so the extraction layer can re-read the
// changed sources.
type ManifestSource interface {
	Load(ctx context.Context) (*models.Manifest, error)
}

// ManifestSourceFunc adapts a function to the ManifestSource interface.
type ManifestSourceFunc func(ctx context.Context) (*models.Manifest, error)

// Load implements ManifestSource.
func (f ManifestSourceFunc) Load(ctx context.Context) (*models.Manifest, error) {
	return f(ctx)
}

// ResultHandler receives the diagnostics of each completed watch-mode run.
type ResultHandler func(diags []models.Diagnostic, err error)

// Watcher reruns validation whenever watched files change. Changes arriving
// while a run is in flight are queued and folded into the next run; runs
// never overlap because the loop is single-threaded over one sandbox
// connection.
type Watcher struct {
	session  *Session
	source   ManifestSource
	dirs     []string
	debounce time.Duration
	handler  ResultHandler
	logger   *zap.Logger
}

// NewWatcher creates a watcher over the given directories. A zero debounce
// defaults to 200ms, long enough to coalesce editor save bursts.
func NewWatcher(s *Session, source ManifestSource, dirs []string, debounce time.Duration, handler ResultHandler, logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		session:  s,
		source:   source,
		dirs:     dirs,
		debounce: debounce,
		handler:  handler,
		logger:   logger,
	}
}

// Run performs an initial validation pass, then blocks rerunning validation
// on file changes until ctx is cancelled. Per-run failures that are not
// connection-level are reported through the handler and the loop continues;
// only unrecoverable errors end the loop.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	for _, dir := range w.dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	w.runOnce(ctx)

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(event) {
				continue
			}
			pending[event.Name] = struct{}{}
			// Reset the debounce window on every change so a burst of saves
			// produces one run.
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", zap.Error(err))

		case <-timer.C:
			changed := make([]string, 0, len(pending))
			for name := range pending {
				changed = append(changed, name)
			}
			pending = make(map[string]struct{})

			w.logger.Info("Files changed, revalidating",
				zap.Strings("files", changed))
			w.runOnce(ctx)
		}
	}
}

func (w *Watcher) runOnce(ctx context.Context) {
	manifest, err := w.source.Load(ctx)
	if err != nil {
		w.handler(nil, fmt.Errorf("load manifest: %w", err))
		return
	}
	diags, err := w.session.Check(ctx, manifest)
	w.handler(diags, err)
}

func relevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	// Skip editor swap and backup files.
	name := event.Name
	return !strings.HasSuffix(name, "~") && !strings.HasSuffix(name, ".swp")
}
