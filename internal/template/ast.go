// Package template compiles dynamic SQL templates. A template is SQL text with
// #{path} parameter placeholders, {{ expr }} Starlark substitutions and
// {* stmt *} control flow (if, choose, for, where, set, trim, include, bind).
package template

import "github.com/leapstack-labs/leapmap/pkg/core"

// Position tracks source location for error reporting.
type Position struct {
	File   string
	Line   int
	Column int
}

// Node is the interface for all template AST nodes.
type Node interface {
	Pos() Position
	node() // marker method to restrict implementation
}

// nodeBase provides common Position handling for all nodes.
type nodeBase struct {
	pos Position
}

func (n *nodeBase) Pos() Position { return n.pos }
func (n *nodeBase) node()         {}

// TextNode represents literal SQL text (passed through unchanged).
type TextNode struct {
	nodeBase
	Text string
}

// ExprNode represents a {{ expr }} expression. Its stringified result is
// spliced into the SQL text.
type ExprNode struct {
	nodeBase
	Expr string
}

// ParamNode represents a #{path} placeholder, rendered as "?".
type ParamNode struct {
	nodeBase
	Path    string
	DBType  core.DBType
	Handler string
}

// StmtKind identifies the type of control flow statement.
type StmtKind int

// StmtKind constants for control flow statement types.
const (
	StmtUnknown   StmtKind = iota // Unknown/invalid statement
	StmtFor                       // {* for x in items: *}
	StmtEndFor                    // {* endfor *}
	StmtIf                        // {* if cond: *}
	StmtElif                      // {* elif cond: *}
	StmtElse                      // {* else: *}
	StmtEndIf                     // {* endif *}
	StmtChoose                    // {* choose: *}
	StmtWhen                      // {* when cond: *}
	StmtOtherwise                 // {* otherwise: *}
	StmtEndChoose                 // {* endchoose *}
	StmtWhere                     // {* where: *}
	StmtEndWhere                  // {* endwhere *}
	StmtSet                       // {* set: *}
	StmtEndSet                    // {* endset *}
	StmtTrim                      // {* trim prefix="WHERE": *}
	StmtEndTrim                   // {* endtrim *}
	StmtInclude                   // {* include "id" *}
	StmtBind                      // {* bind name = expr *}
)

var stmtNames = map[StmtKind]string{
	StmtFor:       "for",
	StmtEndFor:    "endfor",
	StmtIf:        "if",
	StmtElif:      "elif",
	StmtElse:      "else",
	StmtEndIf:     "endif",
	StmtChoose:    "choose",
	StmtWhen:      "when",
	StmtOtherwise: "otherwise",
	StmtEndChoose: "endchoose",
	StmtWhere:     "where",
	StmtEndWhere:  "endwhere",
	StmtSet:       "set",
	StmtEndSet:    "endset",
	StmtTrim:      "trim",
	StmtEndTrim:   "endtrim",
	StmtInclude:   "include",
	StmtBind:      "bind",
}

func (k StmtKind) String() string {
	if s, ok := stmtNames[k]; ok {
		return s
	}
	return "unknown"
}

// closer returns the statement that ends a block opened by k.
func (k StmtKind) closer() StmtKind {
	switch k {
	case StmtFor:
		return StmtEndFor
	case StmtIf, StmtElif, StmtElse:
		return StmtEndIf
	case StmtChoose, StmtWhen, StmtOtherwise:
		return StmtEndChoose
	case StmtWhere:
		return StmtEndWhere
	case StmtSet:
		return StmtEndSet
	case StmtTrim:
		return StmtEndTrim
	default:
		return StmtUnknown
	}
}

// StmtNode represents a {* stmt *} statement (raw from lexer, before parsing into blocks).
type StmtNode struct {
	nodeBase
	Kind StmtKind
	Expr string // Condition (if/elif/when), collection (for) or bound expression (bind)

	// for
	VarName   string
	IndexName string

	// for, trim
	Options map[string]string

	// include: fragment id; bind: variable name
	Name string
}

// IfBlock is a single conditional without alternatives.
type IfBlock struct {
	nodeBase
	Condition string
	Body      []Node
}

// ChooseBlock renders the body of the first branch whose condition holds,
// else Otherwise. if/elif/else chains are parsed into a ChooseBlock.
type ChooseBlock struct {
	nodeBase
	Branches  []Branch
	Otherwise []Node // may be nil
}

// Branch is one conditional arm of a ChooseBlock.
type Branch struct {
	Condition string
	Body      []Node
	pos       Position
}

// ForBlock iterates a collection. Index holds the position for lists and
// the key for maps.
type ForBlock struct {
	nodeBase
	VarName   string
	IndexName string
	IterExpr  string
	Open      string
	Close     string
	Separator string
	Nullable  bool
	Body      []Node
}

// TrimKind distinguishes where and set blocks from general trim blocks.
type TrimKind int

// TrimKind values.
const (
	TrimGeneral TrimKind = iota
	TrimWhere
	TrimSet
)

// TrimBlock renders its body, strips the first matching prefix and suffix
// override and wraps a non-empty result in Prefix and Suffix.
type TrimBlock struct {
	nodeBase
	Kind            TrimKind
	Prefix          string
	Suffix          string
	PrefixOverrides []string
	SuffixOverrides []string
	Body            []Node
}

// IncludeNode splices a fragment. Body is filled in when the template is
// compiled.
type IncludeNode struct {
	nodeBase
	RefID string
	Body  []Node
}

// BindNode evaluates Expr and binds it to Name for the rest of the render.
type BindNode struct {
	nodeBase
	Name string
	Expr string
}
