package prompt

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dshills/veridoc/internal/envsubst"
	"github.com/dshills/veridoc/internal/project"
)

// Evidence is the resolution of one evidence reference.
type Evidence struct {
	Reference string
	Category  project.Category
	// Root is the substituted category root, absolute when one is set.
	Root string
	// Path is the resolved location of the reference.
	Path string
	// Files lists regular files in lexical depth-first order.
	Files    []string
	NotFound bool
	// Blank is set for references that are empty after substitution.
	Blank bool
}

// Locator resolves evidence references against category roots.
type Locator struct {
	lookup  envsubst.Lookup
	exclude []string
}

// NewLocator returns a Locator that expands variables with lookup and skips
// files whose path relative to the walked directory matches an exclude glob.
func NewLocator(lookup envsubst.Lookup, exclude []string) *Locator {
	return &Locator{lookup: lookup, exclude: exclude}
}

// Locate resolves ref within category c of p.
func (l *Locator) Locate(ref string, c project.Category, p *project.Project) Evidence {
	ev := Evidence{Reference: ref, Category: c}

	sub := strings.TrimSpace(envsubst.String(ref, l.lookup))
	if sub == "" {
		ev.NotFound = true
		ev.Blank = true
		return ev
	}

	root := strings.TrimSpace(envsubst.String(p.Root(c), l.lookup))
	path := sub
	if root != "" {
		root = absPath(root)
		if !filepath.IsAbs(sub) {
			path = filepath.Join(root, sub)
		}
	}
	ev.Root = root
	ev.Path = absPath(path)

	info, err := os.Stat(ev.Path)
	if err != nil {
		ev.NotFound = true
		return ev
	}
	if info.Mode().IsRegular() {
		ev.Files = []string{ev.Path}
		return ev
	}
	if info.IsDir() {
		ev.Files = l.walk(ev.Path)
	}
	return ev
}

// walk relies on filepath.WalkDir visiting entries in lexical order.
func (l *Locator) walk(dir string) []string {
	var files []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != dir && (strings.HasPrefix(name, ".") || name == "__pycache__") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || skipFile(name) {
			return nil
		}
		if l.excluded(dir, path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files
}

func skipFile(name string) bool {
	return strings.HasPrefix(name, ".") ||
		strings.HasSuffix(name, ".pyc") ||
		strings.HasSuffix(name, ".pyo") ||
		strings.HasSuffix(name, "__pycache__")
}

func (l *Locator) excluded(base, path string) bool {
	if len(l.exclude) == 0 {
		return false
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range l.exclude {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
