// Package registry provides a strict, concurrency-safe name registry.
// Entries are registered under a qualified id ("namespace.name") and are also
// reachable by their short name as long as only one namespace declares it.
// Lookups that miss report near matches to help diagnose typos.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapmap/pkg/core"
)

// maxSuggestionDistance bounds the edit distance of suggested ids.
const maxSuggestionDistance = 2

// maxSuggestions caps how many near matches a NotFoundError carries.
const maxSuggestions = 5

// Registry maps qualified ids to values of one kind (statements, result maps, fragments).
type Registry[T any] struct {
	mu sync.RWMutex

	// kind names the entries in errors: "mapped statement", "result map", ...
	kind string

	// byID maps qualified ids to entries: "users.findByID" → T
	byID map[string]T

	// byShort maps short names to qualified ids: "findByID" → "users.findByID"
	// Short names declared by more than one namespace are recorded in ambiguous.
	byShort map[string]string

	ambiguous map[string][]string

	// order keeps registration order for deterministic iteration.
	order []string
}

// New creates an empty registry. kind is used in error messages.
func New[T any](kind string) *Registry[T] {
	return &Registry[T]{
		kind:      kind,
		byID:      make(map[string]T),
		byShort:   make(map[string]string),
		ambiguous: make(map[string][]string),
	}
}

// Register adds v under id. Registering the same id twice is a configuration error.
func (r *Registry[T]) Register(id string, v T) error {
	if strings.TrimSpace(id) == "" {
		return core.Errorf(core.ErrConfiguration, "%s id must not be empty", r.kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[id]; exists {
		return &DuplicateError{Kind: r.kind, ID: id}
	}
	r.byID[id] = v
	r.order = append(r.order, id)

	short := ShortName(id)
	if short == id {
		return nil
	}
	if owners, ok := r.ambiguous[short]; ok {
		r.ambiguous[short] = append(owners, id)
		return nil
	}
	if prev, ok := r.byShort[short]; ok {
		delete(r.byShort, short)
		r.ambiguous[short] = []string{prev, id}
		return nil
	}
	r.byShort[short] = id
	return nil
}

// Get resolves id. Lookup order:
//  1. Exact qualified id
//  2. Unambiguous short name
//
// Misses return a NotFoundError carrying suggestions, ambiguous short names
// an AmbiguousError listing the candidates.
func (r *Registry[T]) Get(id string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if v, ok := r.byID[id]; ok {
		return v, nil
	}
	if full, ok := r.byShort[id]; ok {
		return r.byID[full], nil
	}
	var zero T
	if owners, ok := r.ambiguous[id]; ok {
		return zero, &AmbiguousError{Kind: r.kind, ID: id, Candidates: append([]string(nil), owners...)}
	}
	return zero, &NotFoundError{Kind: r.kind, ID: id, Suggestions: r.suggest(id)}
}

// Lookup is Get without the error detail.
func (r *Registry[T]) Lookup(id string) (T, bool) {
	v, err := r.Get(id)
	return v, err == nil
}

// Has reports whether id resolves to an entry.
func (r *Registry[T]) Has(id string) bool {
	_, ok := r.Lookup(id)
	return ok
}

// IDs returns the qualified ids in registration order.
func (r *Registry[T]) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// All returns the entries in registration order.
func (r *Registry[T]) All() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Count returns the number of registered entries.
func (r *Registry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// suggest collects near matches: case-insensitive equality, equal short
// names and small edit distances, best first.
func (r *Registry[T]) suggest(id string) []string {
	type scored struct {
		id    string
		score int
	}
	lowerID := strings.ToLower(id)
	lowerShort := strings.ToLower(ShortName(id))

	var candidates []scored
	for _, known := range r.order {
		lowerKnown := strings.ToLower(known)
		switch {
		case lowerKnown == lowerID:
			candidates = append(candidates, scored{known, 0})
		case strings.ToLower(ShortName(known)) == lowerShort:
			candidates = append(candidates, scored{known, 1})
		default:
			d := levenshtein(lowerID, lowerKnown)
			if ds := levenshtein(lowerShort, strings.ToLower(ShortName(known))); ds < d {
				d = ds
			}
			if d <= maxSuggestionDistance {
				candidates = append(candidates, scored{known, 1 + d})
			}
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score < candidates[j].score })

	var out []string
	for _, c := range candidates {
		if len(out) == maxSuggestions {
			break
		}
		out = append(out, c.id)
	}
	return out
}

// ShortName returns the part of id after the last dot.
func ShortName(id string) string {
	if i := strings.LastIndexByte(id, '.'); i >= 0 {
		return id[i+1:]
	}
	return id
}

// Namespace returns the part of id before the last dot, or "".
func Namespace(id string) string {
	if i := strings.LastIndexByte(id, '.'); i >= 0 {
		return id[:i]
	}
	return ""
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// =============================================================================
// Errors
// =============================================================================

// DuplicateError is returned when an id is registered twice.
type DuplicateError struct {
	Kind string
	ID   string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s %q is already registered", e.Kind, e.ID)
}

// Unwrap classifies the error as a configuration error.
func (e *DuplicateError) Unwrap() error { return core.ErrConfiguration }

// NotFoundError is returned when an id does not resolve.
type NotFoundError struct {
	Kind        string
	ID          string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s %q is not registered", e.Kind, e.ID)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

// Unwrap classifies the error as a configuration error.
func (e *NotFoundError) Unwrap() error { return core.ErrConfiguration }

// AmbiguousError is returned when a short name is declared by several namespaces.
type AmbiguousError struct {
	Kind       string
	ID         string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%s %q is ambiguous (candidates: %s); use the full id including the namespace",
		e.Kind, e.ID, strings.Join(e.Candidates, ", "))
}

// Unwrap classifies the error as a configuration error.
func (e *AmbiguousError) Unwrap() error { return core.ErrConfiguration }
