package builder

import (
	"reflect"
	"testing"
	"time"

	"github.com/leapstack-labs/leapmap/internal/testutil"
	"github.com/leapstack-labs/leapmap/pkg/cache"
	"github.com/leapstack-labs/leapmap/pkg/config"
	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/leapstack-labs/leapmap/pkg/lazy"
	"github.com/leapstack-labs/leapmap/pkg/mapping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type author struct {
	ID   int64
	Name string
}

type post struct {
	ID     int64
	Title  string
	Author lazy.Value[*author]
}

type blog struct {
	ID    int64
	Title string
	Posts []post
}

func usersNamespace() Namespace {
	return Namespace{
		Name:  "users",
		Cache: &CacheDef{Eviction: "fifo", Size: 10},
		Fragments: map[string]string{
			"columns": "id, name",
		},
		ResultMaps: []ResultMap{{
			ID:   "author",
			Type: reflect.TypeOf(author{}),
			Mappings: []Mapping{
				{Property: "ID", Column: "id", ID: true},
				{Property: "name", Column: "user_name"},
			},
		}},
		Statements: []Statement{
			{ID: "findByID", Kind: core.KindSelect, SQL: `SELECT {* include "columns" *} FROM users WHERE id = #{id}`, ResultMap: "author"},
			{ID: "count", Kind: core.KindSelect, SQL: "SELECT count(*) FROM users", ResultType: reflect.TypeOf(int64(0))},
			{ID: "insert", Kind: core.KindInsert, SQL: "INSERT INTO users (name) VALUES (#{name})", KeyProperty: "ID"},
			{ID: "touch", Kind: core.KindUpdate, SQL: "UPDATE users SET seen = 1", FlushCache: Bool(false)},
		},
	}
}

func TestBuild(t *testing.T) {
	cfg, err := New(config.DefaultSettings(), WithLogger(testutil.NewTestLogger(t))).
		Add(usersNamespace(), Namespace{Name: "admins", CacheRef: "users"}).
		Build()
	require.NoError(t, err)
	assert.True(t, cfg.Frozen())

	find, err := cfg.MappedStatement("users.findByID")
	require.NoError(t, err)
	assert.Equal(t, "users", find.Namespace)
	assert.True(t, find.UseCache)
	assert.False(t, find.FlushCache)
	require.NotNil(t, find.Cache)
	assert.Equal(t, "users", find.Cache.ID())
	assert.Equal(t, "users.author", find.ResultMap().ID)

	bound, err := find.BoundSQL(map[string]any{"id": 1})
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, name FROM users WHERE id = ?", bound.SQL)

	count, err := cfg.MappedStatement("count")
	require.NoError(t, err, "short names resolve while unambiguous")
	assert.Equal(t, "users.count-Inline", count.ResultMap().ID)

	insert, err := cfg.MappedStatement("users.insert")
	require.NoError(t, err)
	assert.True(t, insert.FlushCache)
	assert.False(t, insert.UseCache)
	assert.Equal(t, "ID", insert.KeyProperty)

	touch, err := cfg.MappedStatement("users.touch")
	require.NoError(t, err)
	assert.False(t, touch.FlushCache)

	shared, ok := cfg.Cache("admins")
	require.True(t, ok)
	assert.Same(t, find.Cache, shared)

	rm, err := cfg.ResultMap("users.author")
	require.NoError(t, err)
	require.Len(t, rm.Mappings, 2)
	assert.Equal(t, reflect.TypeOf(""), rm.Mappings[1].GoType)
	assert.True(t, rm.IsMappedColumn("USER_NAME"))

	err = cfg.AddFragment(&mapping.Fragment{ID: "late"})
	assert.ErrorIs(t, err, core.ErrConfiguration, "frozen configurations reject changes")
}

func TestBuild_NestedMappings(t *testing.T) {
	blogs := Namespace{
		Name: "blogs",
		ResultMaps: []ResultMap{
			{
				ID:   "blog",
				Type: reflect.TypeOf(blog{}),
				Mappings: []Mapping{
					{Property: "ID", Column: "id", ID: true},
					{Property: "Posts", NestedResultMap: "post", ColumnPrefix: "post_"},
				},
			},
			{
				ID:   "post",
				Type: reflect.TypeOf(post{}),
				Mappings: []Mapping{
					{Property: "ID", Column: "id", ID: true},
					{Property: "Author", NestedSelect: "users.findByID", Column: "author_id"},
				},
			},
		},
		Statements: []Statement{
			{ID: "find", Kind: core.KindSelect, SQL: "SELECT 1", ResultMap: "blog"},
		},
	}

	t.Run("global lazy loading", func(t *testing.T) {
		s := config.DefaultSettings()
		s.LazyLoadingEnabled = true
		cfg, err := New(s).Add(usersNamespace(), blogs).Build()
		require.NoError(t, err)

		rm, err := cfg.ResultMap("blogs.blog")
		require.NoError(t, err)
		assert.True(t, rm.HasNestedResultMaps)
		assert.Equal(t, "blogs.post", rm.Mappings[1].NestedResultMapID)

		nested, err := cfg.ResultMap("blogs.post")
		require.NoError(t, err)
		assert.Equal(t, "users.findByID", nested.Mappings[1].NestedSelectID)
		assert.True(t, nested.Mappings[1].Lazy)
	})

	t.Run("eager by default", func(t *testing.T) {
		cfg, err := New(config.DefaultSettings()).Add(usersNamespace(), blogs).Build()
		require.NoError(t, err)
		nested, err := cfg.ResultMap("blogs.post")
		require.NoError(t, err)
		assert.False(t, nested.Mappings[1].Lazy)
	})
}

func TestBuild_CustomCache(t *testing.T) {
	impls := cache.NewImplementations()
	require.NoError(t, impls.Register("memory", func(id string) cache.Cache { return cache.NewPerpetual(id) }))

	ns := usersNamespace()
	ns.Cache = &CacheDef{Type: "memory"}
	cfg, err := New(config.DefaultSettings(), WithCacheImplementations(impls)).Add(ns).Build()
	require.NoError(t, err)
	c, ok := cfg.Cache("users")
	require.True(t, ok)
	assert.Equal(t, "users", c.ID())
}

func TestBuild_Errors(t *testing.T) {
	withStatement := func(st Statement) Namespace {
		ns := usersNamespace()
		ns.Statements = append(ns.Statements, st)
		return ns
	}
	withMapping := func(m Mapping) Namespace {
		ns := usersNamespace()
		ns.ResultMaps[0].Mappings = append(ns.ResultMaps[0].Mappings, m)
		return ns
	}

	tests := []struct {
		name       string
		settings   func(*config.Settings)
		namespaces []Namespace
		contains   string
	}{
		{
			name:       "invalid settings",
			settings:   func(s *config.Settings) { s.AutoMappingBehavior = "sometimes" },
			namespaces: []Namespace{usersNamespace()},
			contains:   "auto_mapping_behavior",
		},
		{
			name:       "unknown null type",
			settings:   func(s *config.Settings) { s.DBTypeForNull = "VARCHAR2" },
			namespaces: []Namespace{usersNamespace()},
			contains:   "db_type_for_null",
		},
		{
			name:       "duplicate namespace",
			namespaces: []Namespace{usersNamespace(), usersNamespace()},
			contains:   `duplicate namespace "users"`,
		},
		{
			name:       "duplicate statement id",
			namespaces: []Namespace{withStatement(Statement{ID: "count", Kind: core.KindSelect, SQL: "SELECT 2", ResultType: reflect.TypeOf(0)})},
			contains:   "users.count",
		},
		{
			name:       "malformed template names the statement",
			namespaces: []Namespace{withStatement(Statement{ID: "broken", Kind: core.KindSelect, SQL: "SELECT {* if x: *} 1", ResultType: reflect.TypeOf(0)})},
			contains:   "users.broken",
		},
		{
			name: "fragment cycle",
			namespaces: []Namespace{{
				Name:      "loops",
				Fragments: map[string]string{"a": `{* include "b" *}`, "b": `{* include "a" *}`},
			}},
			contains: "circular fragment include",
		},
		{
			name:       "unknown fragment",
			namespaces: []Namespace{withStatement(Statement{ID: "bad", Kind: core.KindDelete, SQL: `DELETE {* include "nope" *}`})},
			contains:   `"nope" not found`,
		},
		{
			name:       "unknown result map",
			namespaces: []Namespace{withStatement(Statement{ID: "bad", Kind: core.KindSelect, SQL: "SELECT 1", ResultMap: "nope"})},
			contains:   "nope",
		},
		{
			name:       "select without result description",
			namespaces: []Namespace{withStatement(Statement{ID: "bad", Kind: core.KindSelect, SQL: "SELECT 1"})},
			contains:   "neither result map nor result type",
		},
		{
			name:       "unknown property",
			namespaces: []Namespace{withMapping(Mapping{Property: "Nickname", Column: "nick"})},
			contains:   `no property "Nickname"`,
		},
		{
			name:       "unknown type handler",
			namespaces: []Namespace{withMapping(Mapping{Property: "Name", Column: "n", Handler: "yaml"})},
			contains:   `unknown type handler "yaml"`,
		},
		{
			name:       "lazy on a plain property",
			namespaces: []Namespace{withMapping(Mapping{Property: "Name", Column: "id", NestedSelect: "findByID", Lazy: Bool(true)})},
			contains:   "lazy.Value",
		},
		{
			name:       "nested select to a missing statement",
			namespaces: []Namespace{withMapping(Mapping{Property: "Name", Column: "id", NestedSelect: "missing"})},
			contains:   "missing",
		},
		{
			name:       "cache reference to unknown namespace",
			namespaces: []Namespace{{Name: "admins", CacheRef: "nobody"}},
			contains:   `unknown namespace "nobody"`,
		},
		{
			name: "unknown eviction policy",
			namespaces: []Namespace{func() Namespace {
				ns := usersNamespace()
				ns.Cache = &CacheDef{Eviction: "random", FlushInterval: time.Minute}
				return ns
			}()},
			contains: "random",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := config.DefaultSettings()
			if tt.settings != nil {
				tt.settings(&s)
			}
			cfg, err := New(s).Add(tt.namespaces...).Build()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.ErrorIs(t, err, core.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}
