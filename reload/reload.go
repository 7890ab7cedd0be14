// Package reload rebuilds the catalog when the snapshot corpus changes and
// swaps the result into the live store.
package reload

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/docutag/animescraper/db"
	"github.com/docutag/animescraper/models"
	"github.com/docutag/animescraper/repository"
)

// DefaultDebounce is how long the corpus must be quiet before a rebuild
const DefaultDebounce = 2 * time.Second

// Builder assembles a fresh catalog
type Builder interface {
	Build(ctx context.Context) (*models.Catalog, error)
}

// Reloader serialises rebuilds and publishes successful ones
type Reloader struct {
	builder  Builder
	store    *repository.Store
	debounce time.Duration
	onSwap   func(*models.Catalog)
	logger   *slog.Logger

	mu   sync.Mutex
	done chan struct{}
}

// New creates a Reloader. onSwap, when not nil, is called after each swap.
func New(builder Builder, store *repository.Store, debounce time.Duration, onSwap func(*models.Catalog), logger *slog.Logger) *Reloader {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{
		builder:  builder,
		store:    store,
		debounce: debounce,
		onSwap:   onSwap,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Rebuild builds a catalog and swaps it in. On failure the live catalog is kept.
func (r *Reloader) Rebuild(ctx context.Context) (*models.Catalog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	catalog, err := r.builder.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("rebuild failed: %w", err)
	}

	r.store.Swap(catalog)
	if r.onSwap != nil {
		r.onSwap(catalog)
	}
	return catalog, nil
}

// SnapshotSource supplies the most recently stored catalog
type SnapshotSource interface {
	LatestSnapshot(ctx context.Context) (*db.Snapshot, error)
}

// RestoreLatest swaps in the newest stored snapshot. It serialises with
// Rebuild and returns db.ErrNoSnapshot when nothing is stored.
func (r *Reloader) RestoreLatest(ctx context.Context, src SnapshotSource) (*db.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := src.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snap.Catalog == nil {
		return nil, fmt.Errorf("snapshot %s has no catalog", snap.ID)
	}

	r.store.Swap(snap.Catalog)
	if r.onSwap != nil {
		r.onSwap(snap.Catalog)
	}
	return snap, nil
}

// Watch registers watches on dir and its subdirectories, then rebuilds in
// the background whenever changes settle, until ctx is done. Done is closed
// once the background loop exits. Watch may be called once per Reloader.
func (r *Reloader) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := r.addTree(watcher, dir); err != nil {
		watcher.Close()
		return err
	}

	go r.loop(ctx, watcher)
	return nil
}

// Done is closed when the watch loop has stopped
func (r *Reloader) Done() <-chan struct{} {
	return r.done
}

func (r *Reloader) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer close(r.done)
	defer watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := r.addTree(watcher, event.Name); err != nil {
						r.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(r.debounce)
			fire = timer.C

		case <-fire:
			fire = nil
			start := time.Now()
			catalog, err := r.Rebuild(ctx)
			if err != nil {
				r.logger.Error("catalog reload failed, keeping previous catalog", "error", err)
				continue
			}
			counts := catalog.Counts()
			r.logger.Info("catalog reloaded",
				"anime", counts.Anime,
				"episodes", counts.Episodes,
				"duration", time.Since(start),
			)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("watch error", "error", err)
		}
	}
}

// addTree watches dir and every directory below it
func (r *Reloader) addTree(watcher *fsnotify.Watcher, dir string) error {
	root := filepath.Clean(dir)
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return fmt.Errorf("failed to access %s: %w", p, err)
			}
			r.logger.Warn("failed to access path", "path", p, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		r.logger.Debug("added watch", "path", p)
		return nil
	})
}
