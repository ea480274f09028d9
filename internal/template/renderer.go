package template

import (
	"fmt"
	"maps"
	"strings"
	"unicode"

	"github.com/leapstack-labs/leapmap/internal/reflection"
	starctx "github.com/leapstack-labs/leapmap/internal/starlark"
	"github.com/leapstack-labs/leapmap/pkg/mapping"
	"go.starlark.net/starlark"
)

// renderState carries one render of a template.
type renderState struct {
	tmpl       *Template
	ctx        *starctx.ExecutionContext
	mappings   []mapping.ParameterMapping
	additional map[string]any

	// loop variables of the enclosing for blocks
	locals starlark.StringDict
	// loop variable name -> unique additional parameter name
	renames map[string]string
	// counter behind the unique names, per render
	uniq int
}

// renderSQL renders the whole template and normalizes whitespace.
func (r *renderState) renderSQL() (string, error) {
	var b strings.Builder
	if err := r.render(&b, r.tmpl.Nodes); err != nil {
		return "", err
	}
	sql := b.String()
	if r.tmpl.opts.ShrinkWhitespace {
		sql = shrinkWhitespace(sql)
	}
	return strings.TrimSpace(sql), nil
}

func (r *renderState) render(b *strings.Builder, nodes []Node) error {
	for _, node := range nodes {
		if err := r.renderNode(b, node); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderState) renderNode(b *strings.Builder, node Node) error {
	switch n := node.(type) {
	case *TextNode:
		b.WriteString(n.Text)

	case *ParamNode:
		r.mappings = append(r.mappings, mapping.ParameterMapping{
			Property: r.rewrite(n.Path),
			DBType:   n.DBType,
			Handler:  n.Handler,
		})
		b.WriteByte('?')

	case *ExprNode:
		s, err := r.ctx.EvalExprStringWithLocals(n.Expr, r.tmpl.File, n.pos.Line, r.locals)
		if err != nil {
			return WrapRenderError(n.pos, "evaluating expression", err)
		}
		b.WriteString(s)

	case *IfBlock:
		ok, err := r.test(n.Condition, n.pos)
		if err != nil {
			return err
		}
		if ok {
			return r.render(b, n.Body)
		}

	case *ChooseBlock:
		for _, br := range n.Branches {
			ok, err := r.test(br.Condition, br.pos)
			if err != nil {
				return err
			}
			if ok {
				return r.render(b, br.Body)
			}
		}
		return r.render(b, n.Otherwise)

	case *ForBlock:
		return r.renderFor(b, n)

	case *TrimBlock:
		var body strings.Builder
		if err := r.render(&body, n.Body); err != nil {
			return err
		}
		b.WriteString(applyTrim(n, body.String()))

	case *IncludeNode:
		if n.Body == nil {
			return NewRenderErrorf(n.pos, "include %q was not resolved", n.RefID)
		}
		return r.render(b, n.Body)

	case *BindNode:
		v, err := r.ctx.EvalExprWithLocals(n.Expr, r.tmpl.File, n.pos.Line, r.locals)
		if err != nil {
			return WrapRenderError(n.pos, fmt.Sprintf("evaluating bind %s", n.Name), err)
		}
		goValue, err := starctx.ToGo(v)
		if err != nil {
			return WrapRenderError(n.pos, fmt.Sprintf("converting bind %s", n.Name), err)
		}
		r.ctx.Bind(n.Name, v)
		r.additional[n.Name] = goValue
		if _, shadowed := r.renames[n.Name]; shadowed {
			r.renames = maps.Clone(r.renames)
			delete(r.renames, n.Name)
		}

	default:
		return NewRenderErrorf(node.Pos(), "unexpected node %T", node)
	}
	return nil
}

func (r *renderState) test(cond string, pos Position) (bool, error) {
	ok, err := r.ctx.EvalCondition(cond, r.tmpl.File, pos.Line, r.locals)
	if err != nil {
		return false, WrapRenderError(pos, "evaluating condition", err)
	}
	return ok, nil
}

// rewrite maps a placeholder path rooted at a loop variable to the unique
// additional parameter holding the current item.
func (r *renderState) rewrite(path string) string {
	root := reflection.Root(path)
	if name, ok := r.renames[root]; ok {
		return name + path[len(root):]
	}
	return path
}

func (r *renderState) renderFor(b *strings.Builder, n *ForBlock) error {
	v, err := r.ctx.EvalExprWithLocals(n.IterExpr, r.tmpl.File, n.pos.Line, r.locals)
	if err != nil {
		return WrapRenderError(n.pos, "evaluating collection", err)
	}
	if v == starlark.None {
		if n.Nullable || r.tmpl.opts.NullableOnForeach {
			return nil
		}
		return NewRenderErrorf(n.pos, "collection %q evaluated to null", n.IterExpr)
	}
	entries, err := starctx.Entries(v)
	if err != nil {
		return WrapRenderError(n.pos, fmt.Sprintf("iterating %q", n.IterExpr), err)
	}
	if len(entries) == 0 {
		return nil
	}

	outerLocals, outerRenames := r.locals, r.renames
	defer func() { r.locals, r.renames = outerLocals, outerRenames }()

	b.WriteString(n.Open)
	first := true
	for _, e := range entries {
		r.uniq++
		locals := maps.Clone(outerLocals)
		if locals == nil {
			locals = make(starlark.StringDict, 2)
		}
		renames := maps.Clone(outerRenames)
		if renames == nil {
			renames = make(map[string]string, 2)
		}

		r.bindLoopVar(n.VarName, e.Item, e.GoItem, locals, renames)
		if n.IndexName != "" {
			r.bindLoopVar(n.IndexName, e.Index, e.GoIndex, locals, renames)
		}
		r.locals, r.renames = locals, renames

		var body strings.Builder
		if err := r.render(&body, n.Body); err != nil {
			return err
		}
		if strings.TrimSpace(body.String()) == "" {
			continue
		}
		if !first {
			b.WriteString(n.Separator)
		}
		first = false
		b.WriteString(body.String())
	}
	b.WriteString(n.Close)
	return nil
}

func (r *renderState) bindLoopVar(name string, v starlark.Value, goValue any, locals starlark.StringDict, renames map[string]string) {
	unique := fmt.Sprintf("__frch_%s_%d", name, r.uniq)
	r.additional[unique] = goValue
	locals[name] = v
	renames[name] = unique
}

// applyTrim strips the first matching prefix and suffix override from the
// trimmed body and wraps what is left in the block's prefix and suffix.
func applyTrim(n *TrimBlock, body string) string {
	s := strings.TrimSpace(body)
	if s == "" {
		return ""
	}
	for _, o := range n.PrefixOverrides {
		if len(s) >= len(o) && strings.EqualFold(s[:len(o)], o) {
			s = strings.TrimSpace(s[len(o):])
			break
		}
		// a body made of the override alone leaves nothing to wrap
		if strings.EqualFold(s, strings.TrimSpace(o)) {
			s = ""
			break
		}
	}
	for _, o := range n.SuffixOverrides {
		o = strings.TrimSpace(o)
		if o != "" && len(s) >= len(o) && strings.EqualFold(s[len(s)-len(o):], o) {
			s = strings.TrimSpace(s[:len(s)-len(o)])
			break
		}
	}
	if s == "" {
		return ""
	}

	parts := make([]string, 0, 3)
	if n.Prefix != "" {
		parts = append(parts, n.Prefix)
	}
	parts = append(parts, s)
	if n.Suffix != "" {
		parts = append(parts, n.Suffix)
	}
	return " " + strings.Join(parts, " ") + " "
}

// shrinkWhitespace collapses runs of whitespace outside quoted literals into
// a single space.
func shrinkWhitespace(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))
	var quote rune
	pending := false
	for _, r := range sql {
		if quote != 0 {
			b.WriteRune(r)
			if r == quote {
				quote = 0
			}
			continue
		}
		if unicode.IsSpace(r) {
			pending = true
			continue
		}
		if pending && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pending = false
		if r == '\'' || r == '"' {
			quote = r
		}
		b.WriteRune(r)
	}
	return b.String()
}
