package mapper

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapmap/pkg/adapter"
	"github.com/leapstack-labs/leapmap/pkg/config"
	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/leapstack-labs/leapmap/pkg/mapping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type address struct {
	City string
}

type user struct {
	ID      int64
	Name    string
	Address *address
	Tags    []string
	Meta    map[string]any
}

func TestBindParameters(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name       string
		param      any
		mappings   []mapping.ParameterMapping
		additional map[string]any
		want       []adapter.BoundValue
	}{
		{
			name:     "scalar parameter binds directly",
			param:    int64(42),
			mappings: []mapping.ParameterMapping{{Property: "id"}},
			want:     []adapter.BoundValue{{Value: int64(42)}},
		},
		{
			name:     "uuid converts through its handler",
			param:    id,
			mappings: []mapping.ParameterMapping{{Property: "value"}},
			want:     []adapter.BoundValue{{Value: id.String()}},
		},
		{
			name:  "struct paths",
			param: &user{ID: 1, Name: "ann", Address: &address{City: "Oslo"}, Tags: []string{"x", "y"}},
			mappings: []mapping.ParameterMapping{
				{Property: "ID"},
				{Property: "name"},
				{Property: "address.city"},
				{Property: "tags[1]"},
			},
			want: []adapter.BoundValue{{Value: int64(1)}, {Value: "ann"}, {Value: "Oslo"}, {Value: "y"}},
		},
		{
			name:     "nil along the path binds null",
			param:    &user{},
			mappings: []mapping.ParameterMapping{{Property: "address.city"}},
			want:     []adapter.BoundValue{{Value: nil, Hint: core.DBTypeNull}},
		},
		{
			name:     "explicit hint is kept for nulls",
			param:    map[string]any{"at": nil},
			mappings: []mapping.ParameterMapping{{Property: "at", DBType: core.DBTypeTimestamp}},
			want:     []adapter.BoundValue{{Value: nil, Hint: core.DBTypeTimestamp}},
		},
		{
			name:       "additional parameters shadow the parameter object",
			param:      map[string]any{"__frch_id_0": "from param"},
			mappings:   []mapping.ParameterMapping{{Property: "__frch_id_0"}, {Property: "item.City"}},
			additional: map[string]any{"__frch_id_0": int32(7), "item": address{City: "Rome"}},
			want:       []adapter.BoundValue{{Value: int64(7)}, {Value: "Rome"}},
		},
		{
			name:  "param map arguments",
			param: mapping.ParamMap{"user": user{Name: "bob"}, "since": ts},
			mappings: []mapping.ParameterMapping{
				{Property: "user.Name"},
				{Property: "since"},
			},
			want: []adapter.BoundValue{{Value: "bob"}, {Value: ts}},
		},
		{
			name:     "named handler",
			param:    &user{Meta: map[string]any{"a": 1}},
			mappings: []mapping.ParameterMapping{{Property: "meta", Handler: "json"}},
			want:     []adapter.BoundValue{{Value: `{"a":1}`}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := mapping.NewConfiguration(config.DefaultSettings())
			ms := &mapping.MappedStatement{ID: "users.find"}
			bound := mapping.NewBoundSQL("SELECT", tt.mappings, tt.param)
			for k, v := range tt.additional {
				bound.SetAdditionalParameter(k, v)
			}

			got, err := BindParameters(cfg, ms, bound)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBindParameters_NullHint(t *testing.T) {
	tests := []struct {
		setting string
		want    core.DBType
	}{
		{setting: "", want: core.DBTypeNull},
		{setting: "null", want: core.DBTypeNull},
		{setting: "varchar", want: core.DBTypeVarchar},
		{setting: "OTHER", want: core.DBTypeOther},
	}
	for _, tt := range tests {
		t.Run(tt.setting, func(t *testing.T) {
			s := config.DefaultSettings()
			s.DBTypeForNull = tt.setting
			cfg := mapping.NewConfiguration(s)
			mappings := []mapping.ParameterMapping{{Property: "name"}, {Property: "at", DBType: core.DBTypeDate}}
			bound := mapping.NewBoundSQL("SELECT", mappings, map[string]any{"name": nil, "at": nil})

			got, err := BindParameters(cfg, &mapping.MappedStatement{ID: "users.find"}, bound)
			require.NoError(t, err)
			assert.Equal(t, []adapter.BoundValue{{Hint: tt.want}, {Hint: core.DBTypeDate}}, got)
		})
	}
}

func TestBindParameters_Errors(t *testing.T) {
	type opaque struct{ C chan int }

	tests := []struct {
		name     string
		param    any
		property string
		lenient  bool
		contains string
	}{
		{name: "missing property", param: &user{}, property: "nickname", contains: "nickname"},
		{name: "missing param map name lists available names", param: mapping.ParamMap{"a": 1, "b": 2}, property: "c", contains: "[a, b]"},
		{name: "unsupported value type", param: map[string]any{"ch": opaque{}}, property: "ch", contains: "no type handler"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := mapping.NewConfiguration(config.DefaultSettings())
			bound := mapping.NewBoundSQL("SELECT ?", []mapping.ParameterMapping{{Property: tt.property}}, tt.param)

			_, err := BindParameters(cfg, &mapping.MappedStatement{ID: "users.find"}, bound)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrBinding)
			assert.Contains(t, err.Error(), tt.contains)
			assert.Contains(t, err.Error(), "users.find")
		})
	}

	t.Run("lenient property access binds null", func(t *testing.T) {
		s := config.DefaultSettings()
		s.LenientPropertyAccess = true
		cfg := mapping.NewConfiguration(s)
		bound := mapping.NewBoundSQL("SELECT ?", []mapping.ParameterMapping{{Property: "nickname"}}, &user{})

		got, err := BindParameters(cfg, &mapping.MappedStatement{ID: "users.find"}, bound)
		require.NoError(t, err)
		assert.Equal(t, []adapter.BoundValue{{Hint: core.DBTypeNull}}, got)
	})
}

func TestAssignGeneratedKey(t *testing.T) {
	cfg := mapping.NewConfiguration(config.DefaultSettings())
	ms := &mapping.MappedStatement{ID: "users.insert", KeyProperty: "ID"}

	t.Run("struct pointer", func(t *testing.T) {
		u := &user{Name: "ann"}
		require.NoError(t, AssignGeneratedKey(cfg, ms, u, 12))
		assert.Equal(t, int64(12), u.ID)
	})

	t.Run("single argument param map", func(t *testing.T) {
		u := &user{}
		require.NoError(t, AssignGeneratedKey(cfg, ms, mapping.ParamMap{"user": u}, 5))
		assert.Equal(t, int64(5), u.ID)
	})

	t.Run("map", func(t *testing.T) {
		m := map[string]any{}
		require.NoError(t, AssignGeneratedKey(cfg, ms, m, 3))
		assert.Equal(t, map[string]any{"ID": int64(3)}, m)
	})

	t.Run("value struct is rejected", func(t *testing.T) {
		err := AssignGeneratedKey(cfg, ms, user{}, 3)
		assert.ErrorIs(t, err, core.ErrBinding)
	})
}
