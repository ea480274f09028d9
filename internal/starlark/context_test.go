package starlark

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

type author struct {
	ID      int64
	Name    string
	Email   *string
	Tags    []string
	Profile *profile
}

type profile struct {
	Bio string
}

func TestNewContext_ExposesParameter(t *testing.T) {
	email := "a@example.com"
	tests := []struct {
		name  string
		param any
		expr  string
		want  any
	}{
		{"map key", map[string]any{"title": "Go"}, "title", "Go"},
		{"map whole", map[string]any{"title": "Go"}, "_parameter.title", "Go"},
		{"struct lower", author{Name: "Ann"}, "name", "Ann"},
		{"struct exact", &author{Name: "Ann"}, "Name", "Ann"},
		{"struct pointer field", author{Email: &email}, "email", "a@example.com"},
		{"nil pointer is None", author{}, "email == null", true},
		{"nested struct", author{Profile: &profile{Bio: "hi"}}, "profile.bio", "hi"},
		{"scalar", int64(42), "value + 1", int64(43)},
		{"scalar whole", "x", "_parameter", "x"},
		{"slice len", author{Tags: []string{"a", "b"}}, "len(tags)", int64(2)},
		{"slice index", author{Tags: []string{"a", "b"}}, "tags[1]", "b"},
		{"nil param", nil, "_parameter == None", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, err := NewContext(tt.param)
			require.NoError(t, err)

			v, err := ctx.EvalExpr(tt.expr, "test", 1)
			require.NoError(t, err)

			got, err := ToGo(v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalCondition_Truthiness(t *testing.T) {
	ctx, err := NewContext(map[string]any{
		"zero":  0,
		"blank": "",
		"name":  "x",
		"none":  nil,
		"list":  []int{},
		"flag":  false,
	})
	require.NoError(t, err)

	tests := []struct {
		expr string
		want bool
	}{
		{"zero", true},
		{"blank", false},
		{"name", true},
		{"none", false},
		{"list", false},
		{"flag", false},
		{"name != null and name != ''", true},
		{"notEmpty(name)", true},
		{"empty(list)", true},
		{"not zero", false},
		{"not none", true},
		{"zero or none", true},
		{"none or zero", true},
		{"zero and name", true},
		{"zero and blank", false},
		{"not (zero and not flag)", false},
		{"blank if zero else name", false},
		{"flag or none", false},
		{"none.missing if none else name", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := ctx.EvalCondition(tt.expr, "test", 1, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalExpr_MissingProperty(t *testing.T) {
	strict, err := NewContext(author{Name: "Ann"})
	require.NoError(t, err)

	_, err = strict.EvalExpr("_parameter.missing", "stmt", 3)
	require.Error(t, err)
	var evalErr *EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, 3, evalErr.Line)
	assert.Contains(t, err.Error(), "stmt:3")

	_, err = strict.EvalExpr("undefined_name", "stmt", 1)
	require.Error(t, err)

	lenient, err := NewContext(author{Name: "Ann"}, WithLenient(true))
	require.NoError(t, err)

	v, err := lenient.EvalExpr("_parameter.missing", "stmt", 1)
	require.NoError(t, err)
	assert.Equal(t, starlark.None, v)

	ok, err := lenient.EvalCondition("undefined_name != null", "stmt", 1, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = lenient.EvalCondition("not undefined_name or _parameter.missing", "stmt", 1, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = strict.EvalCondition("not undefined_name", "stmt", 4, nil)
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, 4, evalErr.Line)
}

func TestEvalExprWithLocals(t *testing.T) {
	ctx, err := NewContext(map[string]any{"item": "global"}, WithThreadPool(NewThreadPool(2)))
	require.NoError(t, err)

	s, err := ctx.EvalExprStringWithLocals("item", "test", 1, starlark.StringDict{"item": starlark.String("local")})
	require.NoError(t, err)
	assert.Equal(t, "local", s)

	s, err = ctx.EvalExprString("item", "test", 1)
	require.NoError(t, err)
	assert.Equal(t, "global", s)
}

func TestBind(t *testing.T) {
	ctx, err := NewContext(map[string]any{"name": "ann"})
	require.NoError(t, err)

	before := ctx.Globals()
	ctx.Bind("pattern", starlark.String("%ann%"))

	s, err := ctx.EvalExprString("pattern", "test", 1)
	require.NoError(t, err)
	assert.Equal(t, "%ann%", s)
	assert.NotContains(t, before, "pattern")
}

func TestToGo_UnwrapsGoValues(t *testing.T) {
	a := &author{Name: "Ann"}
	v, err := Wrap(a, false)
	require.NoError(t, err)

	got, err := ToGo(v)
	require.NoError(t, err)
	assert.Equal(t, *a, got)

	m := map[string]int{"b": 2, "a": 1}
	v, err = Wrap(m, false)
	require.NoError(t, err)

	var keys []string
	iter := starlark.Iterate(v)
	defer iter.Done()
	var k starlark.Value
	for iter.Next(&k) {
		keys = append(keys, string(k.(starlark.String)))
	}
	assert.Equal(t, []string{"a", "b"}, keys)

	b, err := Wrap([]byte("raw"), false)
	require.NoError(t, err)
	assert.Equal(t, starlark.Bytes("raw"), b)
}

func TestThreadPool(t *testing.T) {
	pool := NewThreadPool(1)
	t1 := pool.Get("a")
	t2 := pool.Get("b")
	assert.NotSame(t, t1, t2)

	pool.Put(t1)
	pool.Put(t2)
	assert.Equal(t, 1, pool.Size())

	reused := pool.Get("c")
	assert.Same(t, t1, reused)
	assert.Equal(t, "c", reused.Name)
}
