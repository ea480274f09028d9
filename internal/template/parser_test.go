package template

import (
	"errors"
	"testing"

	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_ValidInput(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantNodes int
		checkFunc func(t *testing.T, tmpl *Template)
	}{
		{
			name:      "parameter with options",
			input:     "id = #{id, type=INT8, handler=custom}",
			wantNodes: 2,
			checkFunc: func(t *testing.T, tmpl *Template) {
				p, ok := tmpl.Nodes[1].(*ParamNode)
				require.True(t, ok, "expected ParamNode, got %T", tmpl.Nodes[1])
				assert.Equal(t, "id", p.Path)
				assert.Equal(t, core.DBTypeBigInt, p.DBType)
				assert.Equal(t, "custom", p.Handler)
			},
		},
		{
			name:      "bare if",
			input:     "{* if a: *}x{* endif *}",
			wantNodes: 1,
			checkFunc: func(t *testing.T, tmpl *Template) {
				n, ok := tmpl.Nodes[0].(*IfBlock)
				require.True(t, ok, "expected IfBlock, got %T", tmpl.Nodes[0])
				assert.Equal(t, "a", n.Condition)
				require.Len(t, n.Body, 1)
			},
		},
		{
			name:      "if chain lowers to choose",
			input:     "{* if a: *}1{* elif b: *}2{* else: *}3{* endif *}",
			wantNodes: 1,
			checkFunc: func(t *testing.T, tmpl *Template) {
				n, ok := tmpl.Nodes[0].(*ChooseBlock)
				require.True(t, ok, "expected ChooseBlock, got %T", tmpl.Nodes[0])
				require.Len(t, n.Branches, 2)
				assert.Equal(t, "a", n.Branches[0].Condition)
				assert.Equal(t, "b", n.Branches[1].Condition)
				require.Len(t, n.Otherwise, 1)
			},
		},
		{
			name:      "for with options",
			input:     `{* for i, item in list open="(" close=")" separator=", " nullable="true": *}#{item}{* endfor *}`,
			wantNodes: 1,
			checkFunc: func(t *testing.T, tmpl *Template) {
				n, ok := tmpl.Nodes[0].(*ForBlock)
				require.True(t, ok, "expected ForBlock, got %T", tmpl.Nodes[0])
				assert.Equal(t, "item", n.VarName)
				assert.Equal(t, "i", n.IndexName)
				assert.Equal(t, "list", n.IterExpr)
				assert.Equal(t, "(", n.Open)
				assert.Equal(t, ")", n.Close)
				assert.Equal(t, ", ", n.Separator)
				assert.True(t, n.Nullable)
			},
		},
		{
			name:      "for over literal",
			input:     `{* for x in ["a", "b"]: *}{{ x }}{* endfor *}`,
			wantNodes: 1,
			checkFunc: func(t *testing.T, tmpl *Template) {
				n := tmpl.Nodes[0].(*ForBlock)
				assert.Equal(t, `["a", "b"]`, n.IterExpr)
				assert.Empty(t, n.Separator)
			},
		},
		{
			name:      "where and set",
			input:     "{* where: *}a{* endwhere *}{* set: *}b{* endset *}",
			wantNodes: 2,
			checkFunc: func(t *testing.T, tmpl *Template) {
				w := tmpl.Nodes[0].(*TrimBlock)
				assert.Equal(t, TrimWhere, w.Kind)
				assert.Equal(t, "WHERE", w.Prefix)
				s := tmpl.Nodes[1].(*TrimBlock)
				assert.Equal(t, TrimSet, s.Kind)
				assert.Equal(t, []string{","}, s.SuffixOverrides)
			},
		},
		{
			name:      "trim options",
			input:     `{* trim prefix="(" suffix=")" prefixOverrides="AND |OR " suffixOverrides=",": *}x{* endtrim *}`,
			wantNodes: 1,
			checkFunc: func(t *testing.T, tmpl *Template) {
				n := tmpl.Nodes[0].(*TrimBlock)
				assert.Equal(t, TrimGeneral, n.Kind)
				assert.Equal(t, []string{"AND ", "OR "}, n.PrefixOverrides)
				assert.Equal(t, []string{","}, n.SuffixOverrides)
			},
		},
		{
			name:      "include and bind",
			input:     `{* include "columns" *}{* bind p = name + "%" *}`,
			wantNodes: 2,
			checkFunc: func(t *testing.T, tmpl *Template) {
				inc := tmpl.Nodes[0].(*IncludeNode)
				assert.Equal(t, "columns", inc.RefID)
				b := tmpl.Nodes[1].(*BindNode)
				assert.Equal(t, "p", b.Name)
				assert.Equal(t, `name + "%"`, b.Expr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Parse(tt.input, "test.sql")
			require.NoError(t, err)
			require.Len(t, tmpl.Nodes, tt.wantNodes)
			if tt.checkFunc != nil {
				tt.checkFunc(t, tmpl)
			}
		})
	}
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		unmatched bool
	}{
		{"unclosed if", "{* if a: *}x", true},
		{"unclosed for", "{* for x in y: *}x", true},
		{"stray endif", "x{* endif *}", true},
		{"else without if", "{* else: *}", true},
		{"wrong closer", "{* where: *}x{* endset *}", true},
		{"when outside choose", "{* when a: *}x{* endchoose *}", true},
		{"unknown statement", "{* loop x *}", false},
		{"if without condition", "{* if: *}x{* endif *}", false},
		{"bad for", "{* for in x: *}{* endfor *}", false},
		{"text in choose", "{* choose: *}junk{* when a: *}x{* endchoose *}", false},
		{"unknown db type", "#{id, type=NOPE}", false},
		{"unknown param option", "#{id, mode=IN}", false},
		{"bad param path", "#{a..b}", false},
		{"bad nullable", `{* for x in y nullable="maybe": *}{* endfor *}`, false},
		{"unknown trim option", `{* trim prefx="(": *}{* endtrim *}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input, "test.sql")
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrConfiguration)

			var unmatched *UnmatchedBlockError
			assert.Equal(t, tt.unmatched, errors.As(err, &unmatched))
		})
	}
}
