// Package affected maps changed file paths to the verification units whose
// evidence references them.
//
// Matching is by exact string equality between a changed path and a stored
// reference. Paths are not normalized and directory references do not
// match files beneath them: a change to "docs/api/auth.md" affects a unit
// referencing "docs/api/auth.md" but not one referencing "docs/api". Callers
// should hand in paths in the same form the project file uses, usually
// relative to the category root.
package affected

import (
	"sort"

	"github.com/dshills/veridoc/internal/project"
)

// Set is a set of unit names.
type Set map[string]struct{}

// Has reports whether name is in the set.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the names in lexical order.
func (s Set) Sorted() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Index is a reverse index from evidence reference to unit names.
type Index map[string]Set

// BuildIndex indexes every reference of every unit across the given
// categories (all three when none are given).
func BuildIndex(units []project.Unit, categories ...project.Category) Index {
	if len(categories) == 0 {
		categories = project.Categories
	}
	ix := make(Index)
	for _, u := range units {
		for _, c := range categories {
			for _, ref := range u.References(c) {
				names, ok := ix[ref]
				if !ok {
					names = make(Set)
					ix[ref] = names
				}
				names[u.Name] = struct{}{}
			}
		}
	}
	return ix
}

// Lookup returns the units referenced by any of the changed paths.
func (ix Index) Lookup(changed []string) Set {
	out := make(Set)
	for _, path := range changed {
		for name := range ix[path] {
			out[name] = struct{}{}
		}
	}
	return out
}

// Resolve returns the units affected by changed.
func Resolve(changed []string, units []project.Unit) Set {
	return BuildIndex(units).Lookup(changed)
}

// ResolveCategory is Resolve restricted to references of one category, for
// change sets known to come from that category's repository.
func ResolveCategory(changed []string, units []project.Unit, c project.Category) Set {
	return BuildIndex(units, c).Lookup(changed)
}
