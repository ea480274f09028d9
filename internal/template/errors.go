package template

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapmap/pkg/core"
)

// Error is the base interface for all template errors. Lex and parse errors
// match core.ErrConfiguration; render errors match core.ErrBinding.
type Error interface {
	error
	Position() Position
}

// baseError provides common error functionality.
type baseError struct {
	pos Position
	msg string
}

func (e *baseError) Position() Position { return e.pos }
func (e *baseError) Error() string {
	if e.pos.File != "" {
		return fmt.Sprintf("%s:%d:%d: %s", e.pos.File, e.pos.Line, e.pos.Column, e.msg)
	}
	return fmt.Sprintf("%d:%d: %s", e.pos.Line, e.pos.Column, e.msg)
}

// LexError represents an error during lexical analysis.
type LexError struct {
	baseError
}

func (e *LexError) Unwrap() error { return core.ErrConfiguration }

// NewLexError creates a new lexer error.
func NewLexError(pos Position, msg string) *LexError {
	return &LexError{baseError: baseError{pos: pos, msg: msg}}
}

// ParseError represents an error during parsing.
type ParseError struct {
	baseError
}

func (e *ParseError) Unwrap() error { return core.ErrConfiguration }

// NewParseError creates a new parser error.
func NewParseError(pos Position, msg string) *ParseError {
	return &ParseError{baseError: baseError{pos: pos, msg: msg}}
}

// NewParseErrorf creates a new parser error with formatting.
func NewParseErrorf(pos Position, format string, args ...any) *ParseError {
	return &ParseError{baseError: baseError{pos: pos, msg: fmt.Sprintf(format, args...)}}
}

// RenderError represents an error during template rendering.
type RenderError struct {
	baseError
	Cause error // Underlying Starlark error, if any
}

// NewRenderError creates a new render error.
func NewRenderError(pos Position, msg string) *RenderError {
	return &RenderError{baseError: baseError{pos: pos, msg: msg}}
}

// NewRenderErrorf creates a new render error with formatting.
func NewRenderErrorf(pos Position, format string, args ...any) *RenderError {
	return &RenderError{baseError: baseError{pos: pos, msg: fmt.Sprintf(format, args...)}}
}

// WrapRenderError wraps an underlying error as a render error.
func WrapRenderError(pos Position, msg string, cause error) *RenderError {
	return &RenderError{
		baseError: baseError{pos: pos, msg: msg},
		Cause:     cause,
	}
}

func (e *RenderError) Error() string {
	base := e.baseError.Error()
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", base, e.Cause)
	}
	return base
}

func (e *RenderError) Unwrap() []error {
	if e.Cause != nil {
		return []error{core.ErrBinding, e.Cause}
	}
	return []error{core.ErrBinding}
}

// UnmatchedBlockError indicates a control flow block without its closing counterpart.
type UnmatchedBlockError struct {
	baseError
	BlockKind StmtKind // The kind of block that was unmatched
}

func (e *UnmatchedBlockError) Unwrap() error { return core.ErrConfiguration }

// NewUnmatchedBlockError creates a new unmatched block error.
func NewUnmatchedBlockError(pos Position, kind StmtKind) *UnmatchedBlockError {
	var msg string
	switch kind {
	case StmtFor, StmtIf, StmtChoose, StmtWhere, StmtSet, StmtTrim:
		msg = fmt.Sprintf("unclosed '%s' block (missing '%s')", kind, kind.closer())
	case StmtEndFor:
		msg = "'endfor' without matching 'for'"
	case StmtEndIf, StmtElse, StmtElif:
		msg = fmt.Sprintf("'%s' without matching 'if'", kind)
	case StmtEndChoose, StmtWhen, StmtOtherwise:
		msg = fmt.Sprintf("'%s' without matching 'choose'", kind)
	case StmtEndWhere:
		msg = "'endwhere' without matching 'where'"
	case StmtEndSet:
		msg = "'endset' without matching 'set'"
	case StmtEndTrim:
		msg = "'endtrim' without matching 'trim'"
	default:
		msg = fmt.Sprintf("unmatched block: %s", kind)
	}
	return &UnmatchedBlockError{
		baseError: baseError{pos: pos, msg: msg},
		BlockKind: kind,
	}
}

// CycleError reports fragments that include each other.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular fragment include: %s", strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return core.ErrConfiguration }
