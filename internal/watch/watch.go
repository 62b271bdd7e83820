// Package watch re-triggers verification when project files change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bgricker/matrixdrive/internal/ctxlog"
)

// Watcher monitors a project tree and invokes a trigger after changes
// settle for the debounce interval. Rapid bursts (editor saves, generated
// files) collapse into a single trigger.
type Watcher struct {
	root     string
	debounce time.Duration
	ignore   map[string]struct{}
	watcher  *fsnotify.Watcher
}

// New creates a watcher over root. Directory names in ignore are not
// descended into.
func New(root string, debounce time.Duration, ignore []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}

	ignored := make(map[string]struct{}, len(ignore))
	for _, name := range ignore {
		ignored[name] = struct{}{}
	}

	w := &Watcher{
		root:     absRoot,
		debounce: debounce,
		ignore:   ignored,
		watcher:  fsw,
	}
	if err := w.addTree(absRoot); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if _, skip := w.ignore[d.Name()]; skip && path != root {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %q: %w", path, err)
		}
		return nil
	})
}

// Run blocks, invoking trigger after each debounced change burst, until the
// context is canceled. The trigger runs on the watch goroutine; overlapping
// triggers are therefore impossible.
func (w *Watcher) Run(ctx context.Context, trigger func(context.Context)) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("watching for changes", "root", w.root, "debounce", w.debounce.String())

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.ignored(event.Name) {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					// New directories need their own watch to catch files
					// created inside them.
					_ = w.addTree(event.Name)
				}
			}
			logger.Debug("change detected", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)

		case <-timerC:
			timer = nil
			timerC = nil
			trigger(ctx)
		}
	}
}

func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	for part := range splitPath(rel) {
		if _, skip := w.ignore[part]; skip {
			return true
		}
	}
	return false
}

func splitPath(rel string) map[string]struct{} {
	parts := make(map[string]struct{})
	for rel != "" && rel != "." {
		dir, file := filepath.Split(rel)
		if file != "" {
			parts[file] = struct{}{}
		}
		rel = filepath.Clean(dir)
		if rel == "." || rel == string(filepath.Separator) {
			break
		}
	}
	return parts
}

// Close releases the underlying file watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
