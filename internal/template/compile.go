package template

import (
	"slices"

	starctx "github.com/leapstack-labs/leapmap/internal/starlark"
	"github.com/leapstack-labs/leapmap/pkg/config"
	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/leapstack-labs/leapmap/pkg/mapping"
)

// Options control how a compiled template renders.
type Options struct {
	// Lenient makes missing properties and names evaluate to None.
	Lenient bool
	// ShrinkWhitespace collapses whitespace runs outside quoted literals.
	ShrinkWhitespace bool
	// NullableOnForeach lets every for loop accept a None collection.
	NullableOnForeach bool
	// ThreadPoolSize bounds the Starlark threads kept for reuse.
	ThreadPoolSize int
}

// NewOptions derives render options from configuration settings.
func NewOptions(s *config.Settings) Options {
	return Options{
		Lenient:           s.LenientPropertyAccess,
		ShrinkWhitespace:  s.ShrinkWhitespacesInSQL,
		NullableOnForeach: s.NullableOnForEach,
	}
}

// Template represents a parsed template. A template returned by Compile
// has its includes resolved and implements mapping.SQLSource.
type Template struct {
	Nodes []Node
	File  string // Source file path or statement id

	namespace string
	opts      Options
	pool      *starctx.ThreadPool

	// set for templates without dynamic nodes
	static *mapping.StaticSQL
}

var _ mapping.SQLSource = (*Template)(nil)

// Option configures Compile.
type Option func(*Template)

// WithNamespace resolves relative include ids against ns first.
func WithNamespace(ns string) Option {
	return func(t *Template) { t.namespace = ns }
}

// WithOptions sets render options.
func WithOptions(o Options) Option {
	return func(t *Template) { t.opts = o }
}

// Compile parses source, resolves its includes through resolver and
// pre-renders it when it has no dynamic content. resolver may be nil for
// templates without includes.
func Compile(source, file string, resolver FragmentResolver, opts ...Option) (*Template, error) {
	tmpl, err := Parse(source, file)
	if err != nil {
		return nil, err
	}
	tmpl.opts = Options{ShrinkWhitespace: true}
	for _, opt := range opts {
		opt(tmpl)
	}
	if err := resolveIncludes(tmpl.Nodes, tmpl.namespace, resolver); err != nil {
		return nil, err
	}

	if isStatic(tmpl.Nodes) {
		st := &renderState{tmpl: tmpl}
		sql, err := st.renderSQL()
		if err != nil {
			return nil, err
		}
		tmpl.static = &mapping.StaticSQL{SQL: sql, Mappings: st.mappings}
		return tmpl, nil
	}
	tmpl.pool = starctx.NewThreadPool(tmpl.opts.ThreadPoolSize)
	return tmpl, nil
}

// IsDynamic reports whether the SQL depends on the parameter object beyond
// placeholder values.
func (t *Template) IsDynamic() bool { return t.static == nil }

// BoundSQL renders the template for param.
func (t *Template) BoundSQL(param any) (*mapping.BoundSQL, error) {
	if t.static != nil {
		return mapping.NewBoundSQL(t.static.SQL, slices.Clone(t.static.Mappings), param), nil
	}

	ctx, err := starctx.NewContext(param,
		starctx.WithThreadPool(t.pool),
		starctx.WithLenient(t.opts.Lenient),
	)
	if err != nil {
		return nil, WrapRenderError(Position{File: t.File}, "exposing parameter object", err)
	}
	st := &renderState{tmpl: t, ctx: ctx, additional: make(map[string]any)}
	sql, err := st.renderSQL()
	if err != nil {
		return nil, err
	}
	bound := mapping.NewBoundSQL(sql, st.mappings, param)
	for k, v := range st.additional {
		bound.SetAdditionalParameter(k, v)
	}
	return bound, nil
}

// isStatic reports whether nodes contain only text, placeholders and
// static includes.
func isStatic(nodes []Node) bool {
	for _, n := range nodes {
		switch n := n.(type) {
		case *TextNode, *ParamNode:
		case *IncludeNode:
			if !isStatic(n.Body) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// resolveIncludes fills the body of every include below nodes.
func resolveIncludes(nodes []Node, namespace string, resolver FragmentResolver) error {
	for _, n := range nodes {
		switch n := n.(type) {
		case *IncludeNode:
			if resolver == nil {
				return core.Errorf(core.ErrConfiguration, "%s:%d: include %q with no fragments available", n.pos.File, n.pos.Line, n.RefID)
			}
			body, err := resolver.ResolveFragment(n.RefID, namespace)
			if err != nil {
				return err
			}
			n.Body = body
		case *IfBlock:
			if err := resolveIncludes(n.Body, namespace, resolver); err != nil {
				return err
			}
		case *ChooseBlock:
			for _, b := range n.Branches {
				if err := resolveIncludes(b.Body, namespace, resolver); err != nil {
					return err
				}
			}
			if err := resolveIncludes(n.Otherwise, namespace, resolver); err != nil {
				return err
			}
		case *ForBlock:
			if err := resolveIncludes(n.Body, namespace, resolver); err != nil {
				return err
			}
		case *TrimBlock:
			if err := resolveIncludes(n.Body, namespace, resolver); err != nil {
				return err
			}
		}
	}
	return nil
}
