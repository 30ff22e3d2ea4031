package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vk/modforge/internal/ctxlog"
)

// watchDebounce is how long the tree must stay quiet before a rebuild.
const watchDebounce = 500 * time.Millisecond

// Watch builds once and then rebuilds whenever the source tree or a build
// definition changes, until ctx is done. Builds run on this goroutine, so
// they never overlap; a failed build is logged and watching goes on.
func (a *App) Watch(ctx context.Context) error {
	ctx = a.context(ctx)
	logger := ctxlog.FromContext(ctx)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	defer w.Close()

	roots := append([]string{a.config.sourceRoot()}, a.config.Paths...)
	for _, root := range roots {
		if err := addTree(w, root); err != nil {
			return err
		}
	}
	logger.Info("👀 Watching for changes.", "roots", roots)

	ignore := a.build(ctx)

	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			logger.Info("Watch stopped.")
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ignore != "" && within(event.Name, ignore) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addTree(w, event.Name); err != nil {
						logger.Warn("Failed to watch new directory.", "path", event.Name, "error", err)
					}
				}
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			logger.Debug("Change detected.", "path", event.Name, "op", event.Op.String())
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(watchDebounce)
			pending = true

		case <-timer.C:
			pending = false
			ignore = a.build(ctx)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("File watcher error.", "error", err)
		}
	}
}

// build runs one watched build and returns its staging path, whose changes
// the watcher must not react to.
func (a *App) build(ctx context.Context) string {
	p, err := a.Build(ctx)
	if err != nil {
		ctxlog.FromContext(ctx).Error("Build failed, waiting for changes.", "error", err)
	}
	return p.Build.StagingPath
}

// addTree watches root and every directory below it, skipping hidden ones.
// A file root watches its directory.
func addTree(w *fsnotify.Watcher, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}
	if !info.IsDir() {
		return w.Add(filepath.Dir(root))
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
