package template

import (
	"maps"
	"slices"

	"github.com/leapstack-labs/leapmap/internal/registry"
	"github.com/leapstack-labs/leapmap/pkg/core"
)

// FragmentResolver returns the compiled nodes of a fragment referenced from
// a template in namespace.
type FragmentResolver interface {
	ResolveFragment(ref, namespace string) ([]Node, error)
}

// FragmentSet compiles fragments on first reference and detects include
// cycles. It is used while building a configuration and is not safe for
// concurrent use.
type FragmentSet struct {
	sources  map[string]string
	compiled map[string][]Node
	visiting []string
}

// NewFragmentSet creates an empty set.
func NewFragmentSet() *FragmentSet {
	return &FragmentSet{
		sources:  make(map[string]string),
		compiled: make(map[string][]Node),
	}
}

// Add registers the source of fragment id.
func (s *FragmentSet) Add(id, source string) error {
	if _, dup := s.sources[id]; dup {
		return core.Errorf(core.ErrConfiguration, "duplicate sql fragment %q", id).WithResource(id)
	}
	s.sources[id] = source
	return nil
}

// Len returns the number of fragments.
func (s *FragmentSet) Len() int { return len(s.sources) }

// ResolveFragment looks ref up as namespace.ref, then as a full id.
func (s *FragmentSet) ResolveFragment(ref, namespace string) ([]Node, error) {
	id, ok := s.lookup(ref, namespace)
	if !ok {
		return nil, core.Errorf(core.ErrConfiguration, "sql fragment %q not found", ref).WithResource(namespace)
	}
	if nodes, ok := s.compiled[id]; ok {
		return nodes, nil
	}
	for i, v := range s.visiting {
		if v == id {
			path := append(append([]string(nil), s.visiting[i:]...), id)
			return nil, &CycleError{Path: path}
		}
	}

	s.visiting = append(s.visiting, id)
	defer func() { s.visiting = s.visiting[:len(s.visiting)-1] }()

	tmpl, err := Parse(s.sources[id], id)
	if err != nil {
		return nil, err
	}
	if err := resolveIncludes(tmpl.Nodes, registry.Namespace(id), s); err != nil {
		return nil, err
	}
	s.compiled[id] = tmpl.Nodes
	return tmpl.Nodes, nil
}

// CompileAll resolves every fragment so that unreferenced fragments are
// checked too.
func (s *FragmentSet) CompileAll() error {
	for _, id := range slices.Sorted(maps.Keys(s.sources)) {
		if _, err := s.ResolveFragment(id, ""); err != nil {
			return err
		}
	}
	return nil
}

func (s *FragmentSet) lookup(ref, namespace string) (string, bool) {
	if namespace != "" {
		if _, ok := s.sources[namespace+"."+ref]; ok {
			return namespace + "." + ref, true
		}
	}
	_, ok := s.sources[ref]
	return ref, ok
}
