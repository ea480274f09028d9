package template

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// TokenType identifies the type of token.
type TokenType int

// TokenType constants for template token types.
const (
	TokenText  TokenType = iota // Literal SQL text
	TokenExpr                   // {{ expr }}
	TokenStmt                   // {* stmt *}
	TokenParam                  // #{ path, options }
	TokenEOF
)

func (t TokenType) String() string {
	switch t {
	case TokenText:
		return "TEXT"
	case TokenParam:
		return "PARAM"
	case TokenExpr:
		return "EXPR"
	case TokenStmt:
		return "STMT"
	case TokenEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}

// Token represents a lexical token. Delimited tokens carry their trimmed body.
type Token struct {
	Type  TokenType
	Value string
	Pos   Position
}

type delimiter struct {
	open, close string
	typ         TokenType
	name        string
}

var delimiters = []delimiter{
	{open: "{{", close: "}}", typ: TokenExpr, name: "expression"},
	{open: "{*", close: "*}", typ: TokenStmt, name: "statement"},
	{open: "#{", close: "}", typ: TokenParam, name: "parameter"},
}

// Lexer splits a template into text and delimited tokens.
type Lexer struct {
	input string
	file  string
	off   int
	line  int
	col   int
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input, file string) *Lexer {
	return &Lexer{input: input, file: file, line: 1, col: 1}
}

// Tokenize converts the input into tokens ending with a TokenEOF.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for l.off < len(l.input) {
		d, at := l.nextDelimiter()
		if at > l.off {
			tokens = append(tokens, Token{Type: TokenText, Value: l.input[l.off:at], Pos: l.position()})
			l.moveTo(at)
		}
		if d == nil {
			break
		}
		tok, err := l.delimited(*d)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
	return append(tokens, Token{Type: TokenEOF, Pos: l.position()}), nil
}

// nextDelimiter finds the earliest opening delimiter at or after the cursor.
// It returns nil and the input length when there is none.
func (l *Lexer) nextDelimiter() (*delimiter, int) {
	var found *delimiter
	at := len(l.input)
	rest := l.input[l.off:]
	for i := range delimiters {
		if idx := strings.Index(rest, delimiters[i].open); idx >= 0 && l.off+idx < at {
			found, at = &delimiters[i], l.off+idx
		}
	}
	return found, at
}

// delimited consumes one delimited token starting at the cursor.
func (l *Lexer) delimited(d delimiter) (Token, error) {
	start := l.position()
	bodyStart := l.off + len(d.open)
	end := l.closing(d, bodyStart)
	if end < 0 {
		return Token{}, NewLexError(start, fmt.Sprintf("unclosed %s: missing '%s'", d.name, d.close))
	}
	body := strings.TrimSpace(l.input[bodyStart:end])
	if d.typ == TokenParam && body == "" {
		return Token{}, NewLexError(start, "empty parameter placeholder")
	}
	l.moveTo(end + len(d.close))
	return Token{Type: d.typ, Value: body, Pos: start}, nil
}

// closing returns the offset of the closing delimiter of a body starting at
// from, or -1. Expressions may contain balanced braces (dict literals);
// parameters end at the line.
func (l *Lexer) closing(d delimiter, from int) int {
	switch d.typ {
	case TokenStmt:
		if idx := strings.Index(l.input[from:], d.close); idx >= 0 {
			return from + idx
		}
	case TokenExpr:
		depth := 0
		for i := from; i < len(l.input); i++ {
			switch {
			case depth == 0 && strings.HasPrefix(l.input[i:], d.close):
				return i
			case l.input[i] == '{':
				depth++
			case l.input[i] == '}' && depth > 0:
				depth--
			}
		}
	case TokenParam:
		for i := from; i < len(l.input); i++ {
			switch l.input[i] {
			case '}':
				return i
			case '\n', '{':
				return -1
			}
		}
	}
	return -1
}

// moveTo advances the cursor to off, keeping line and column in runes.
func (l *Lexer) moveTo(off int) {
	for l.off < off {
		r, size := utf8.DecodeRuneInString(l.input[l.off:])
		l.off += size
		if r == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
	}
}

func (l *Lexer) position() Position {
	return Position{File: l.file, Line: l.line, Column: l.col}
}
