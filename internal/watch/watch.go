// Package watch observes the documentation, frontend and backend roots and
// reports settled batches of changed files as root-relative paths.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/dshills/veridoc/internal/gitctx"
	"github.com/dshills/veridoc/internal/project"
)

// DefaultDebounce is the quiet period before a batch is released.
const DefaultDebounce = 500 * time.Millisecond

// Root is one watched directory.
type Root struct {
	Category project.Category
	Dir      string
}

// Batch is a settled set of changes.
type Batch struct {
	// Changed maps a category to the sorted root-relative paths that changed.
	Changed map[project.Category][]string
}

// All returns every changed path across categories, sorted and distinct.
func (b Batch) All() []string {
	seen := map[string]bool{}
	var all []string
	for _, files := range b.Changed {
		for _, f := range files {
			if !seen[f] {
				seen[f] = true
				all = append(all, f)
			}
		}
	}
	sort.Strings(all)
	return all
}

// Empty reports whether the batch holds no changes.
func (b Batch) Empty() bool { return len(b.Changed) == 0 }

// Config configures a Watcher.
type Config struct {
	Roots    []Root
	Debounce time.Duration
	// Exclude holds doublestar patterns matched against root-relative paths.
	Exclude []string
	Logger  *zap.Logger
}

// Watcher turns filesystem events into batches.
type Watcher struct {
	roots    []Root
	debounce time.Duration
	exclude  []string
	log      *zap.Logger
	fsw      *fsnotify.Watcher
	pending  map[project.Category]map[string]bool
}

// New creates a watcher over every existing root directory.
func New(cfg Config) (*Watcher, error) {
	w := &Watcher{
		debounce: cfg.Debounce,
		exclude:  cfg.Exclude,
		log:      cfg.Logger,
		pending:  map[project.Category]map[string]bool{},
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if w.log == nil {
		w.log = zap.NewNop()
	}
	for _, r := range cfg.Roots {
		if r.Dir == "" {
			continue
		}
		abs, err := filepath.Abs(r.Dir)
		if err != nil {
			return nil, err
		}
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			w.log.Warn("skipping missing watch root", zap.String("category", string(r.Category)), zap.String("dir", abs))
			continue
		}
		w.roots = append(w.roots, Root{Category: r.Category, Dir: abs})
	}
	if len(w.roots) == 0 {
		return nil, errors.New("watch: no existing root directories")
	}
	// Longest first so nested roots claim their own files.
	sort.SliceStable(w.roots, func(i, j int) bool { return len(w.roots[i].Dir) > len(w.roots[j].Dir) })

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w.fsw = fsw
	for _, r := range w.roots {
		if err := w.addRecursive(r.Dir); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Roots returns the watched roots as absolute paths.
func (w *Watcher) Roots() []Root { return append([]Root(nil), w.roots...) }

// Run delivers batches to fn until ctx is done, then closes the watcher.
// fn runs on the watcher goroutine, so batches never overlap; changes made
// while fn runs are collected into the next batch.
func (w *Watcher) Run(ctx context.Context, fn func(context.Context, Batch)) error {
	defer w.fsw.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.handle(ev) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watcher error", zap.Error(err))
		case <-timer.C:
			if b := w.flush(); !b.Empty() {
				w.log.Debug("change batch settled", zap.Int("files", len(b.All())))
				fn(ctx, b)
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !hidden(filepath.Base(ev.Name)) {
				if err := w.addRecursive(ev.Name); err != nil {
					w.log.Warn("failed to watch new directory", zap.String("path", ev.Name), zap.Error(err))
				}
			}
			return false
		}
	}
	if ev.Op == fsnotify.Chmod {
		return false
	}
	c, rel, ok := w.classify(ev.Name)
	if !ok {
		return false
	}
	if w.pending[c] == nil {
		w.pending[c] = map[string]bool{}
	}
	w.pending[c][rel] = true
	return true
}

// classify maps an absolute path to its category and root-relative path.
func (w *Watcher) classify(path string) (project.Category, string, bool) {
	for _, r := range w.roots {
		rel, err := filepath.Rel(r.Dir, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		rel = filepath.ToSlash(rel)
		for _, seg := range strings.Split(rel, "/") {
			if hidden(seg) {
				return "", "", false
			}
		}
		if gitctx.MatchesAny(rel, w.exclude) {
			return "", "", false
		}
		return r.Category, rel, true
	}
	return "", "", false
}

func (w *Watcher) flush() Batch {
	b := Batch{Changed: map[project.Category][]string{}}
	for c, set := range w.pending {
		files := make([]string, 0, len(set))
		for f := range set {
			files = append(files, f)
		}
		sort.Strings(files)
		b.Changed[c] = files
	}
	w.pending = map[project.Category]map[string]bool{}
	if len(b.Changed) == 0 {
		b.Changed = nil
	}
	return b
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && (hidden(d.Name()) || d.Name() == "node_modules" || d.Name() == "__pycache__") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.log.Warn("failed to watch directory", zap.String("path", path), zap.Error(err))
		}
		return nil
	})
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
