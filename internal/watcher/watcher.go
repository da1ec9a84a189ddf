package watcher

import (
	"context"
	"log"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Event represents a change to one of the watched files.
type Event struct {
	Path string
	Op   fsnotify.Op
}

// Watcher reports changes to a fixed set of files. It watches their parent
// directories, so files that do not exist yet or get rotated are still seen.
type Watcher struct {
	fsw     *fsnotify.Watcher
	Events  chan Event
	paths   []string
	tracked map[string]bool
}

// New creates a Watcher for the given glob patterns. Patterns are expanded
// once at startup; a plain path that matches nothing is tracked as-is.
func New(patterns []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:     fsw,
		Events:  make(chan Event, 256),
		tracked: make(map[string]bool),
	}

	dirs := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := expandGlob(pattern)
		if err != nil {
			log.Printf("warning: failed to expand pattern %q: %v", pattern, err)
			continue
		}
		if len(matches) == 0 && !hasMeta(pattern) {
			matches = []string{pattern}
		}
		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil || w.tracked[abs] {
				continue
			}
			dir := filepath.Dir(abs)
			if !dirs[dir] {
				if err := fsw.Add(dir); err != nil {
					log.Printf("warning: cannot watch %s: %v", dir, err)
					continue
				}
				dirs[dir] = true
			}
			w.tracked[abs] = true
			w.paths = append(w.paths, abs)
		}
	}

	return w, nil
}

// Start forwards events for tracked files until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	defer w.fsw.Close()
	defer close(w.Events)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			path := filepath.Clean(ev.Name)
			if !w.tracked[path] {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case w.Events <- Event{Path: path, Op: ev.Op}:
			case <-ctx.Done():
				return
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("watcher error: %v", err)
		}
	}
}

// Paths returns the absolute paths being tracked.
func (w *Watcher) Paths() []string {
	return w.paths
}

// expandGlob resolves a glob pattern to matching file paths.
// Supports recursive patterns like logs/**/*.log via doublestar.
func expandGlob(pattern string) ([]string, error) {
	return doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, `*?[{\`)
}
