package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tok struct {
	typ TokenType
	val string
}

func TestLexer_Tokens(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []tok
	}{
		{
			name:  "plain text",
			input: "SELECT * FROM blog",
			want:  []tok{{TokenText, "SELECT * FROM blog"}},
		},
		{
			name:  "parameter",
			input: "WHERE id = #{id}",
			want:  []tok{{TokenText, "WHERE id = "}, {TokenParam, "id"}},
		},
		{
			name:  "parameter with options",
			input: "#{ author.email , type=VARCHAR }",
			want:  []tok{{TokenParam, "author.email , type=VARCHAR"}},
		},
		{
			name:  "expression between text",
			input: "ORDER BY {{ column }} DESC",
			want:  []tok{{TokenText, "ORDER BY "}, {TokenExpr, "column"}, {TokenText, " DESC"}},
		},
		{
			name:  "statement",
			input: "{*  for id in ids:  *}",
			want:  []tok{{TokenStmt, "for id in ids:"}},
		},
		{
			name:  "dict literal in expression",
			input: `{{ {"key": "value"}["key"] }}`,
			want:  []tok{{TokenExpr, `{"key": "value"}["key"]`}},
		},
		{
			name:  "hash without brace is text",
			input: "SELECT '#' || name",
			want:  []tok{{TokenText, "SELECT '#' || name"}},
		},
		{
			name:  "empty expression",
			input: "{{ }}",
			want:  []tok{{TokenExpr, ""}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := NewLexer(tt.input, "test.sql").Tokenize()
			require.NoError(t, err)
			require.Len(t, tokens, len(tt.want)+1)
			for i, w := range tt.want {
				assert.Equal(t, w.typ, tokens[i].Type, "token[%d] type", i)
				assert.Equal(t, w.val, tokens[i].Value, "token[%d] value", i)
			}
			assert.Equal(t, TokenEOF, tokens[len(tokens)-1].Type)
		})
	}
}

func TestLexer_DynamicStatement(t *testing.T) {
	input := `SELECT * FROM blog
{* where: *}
  {* if title != null: *}AND title = #{title}{* endif *}
{* endwhere *}`

	tokens, err := NewLexer(input, "blog.sql").Tokenize()
	require.NoError(t, err)

	counts := make(map[TokenType]int)
	for _, tok := range tokens {
		counts[tok.Type]++
	}
	assert.Equal(t, 4, counts[TokenStmt])
	assert.Equal(t, 1, counts[TokenParam])
	assert.Equal(t, 0, counts[TokenExpr])
}

func TestLexer_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  int
	}{
		{"unclosed expression", "SELECT {{ column FROM users", 1},
		{"unclosed statement", "SELECT 1\n{* if x: SELECT", 2},
		{"unclosed parameter", "WHERE id = #{id\nAND x", 1},
		{"empty parameter", "WHERE id = #{ }", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLexer(tt.input, "test.sql").Tokenize()
			require.Error(t, err)

			var lexErr *LexError
			require.ErrorAs(t, err, &lexErr)
			assert.Equal(t, tt.line, lexErr.Position().Line)
		})
	}
}

func TestLexer_PositionTracking(t *testing.T) {
	tokens, err := NewLexer("SELECT *\nFROM blog\nWHERE id = #{id}", "test.sql").Tokenize()
	require.NoError(t, err)

	require.Equal(t, TokenParam, tokens[1].Type)
	assert.Equal(t, 3, tokens[1].Pos.Line)
	assert.Equal(t, 12, tokens[1].Pos.Column)
}
