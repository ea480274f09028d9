package session

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapmap/internal/testutil"
	"github.com/leapstack-labs/leapmap/pkg/adapter"
	_ "github.com/leapstack-labs/leapmap/pkg/adapters/sqlite"
	"github.com/leapstack-labs/leapmap/pkg/builder"
	"github.com/leapstack-labs/leapmap/pkg/config"
	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/leapstack-labs/leapmap/pkg/lazy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blogAuthor struct {
	ID       int64
	UserName string
}

type blogPost struct {
	ID     int64
	Title  string
	Tags   []string
	Author lazy.Value[*blogAuthor]
}

const blogSchema = `
CREATE TABLE authors (id INTEGER PRIMARY KEY, user_name TEXT NOT NULL);
CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT NOT NULL, author_id INTEGER REFERENCES authors(id));
CREATE TABLE tags (post_id INTEGER NOT NULL, tag TEXT NOT NULL);
INSERT INTO authors (id, user_name) VALUES (1, 'ann'), (2, 'bob');
INSERT INTO posts (id, title, author_id) VALUES (1, 'first', 1), (2, 'second', 2), (3, 'third', 1);
INSERT INTO tags (post_id, tag) VALUES (1, 'a'), (1, 'b'), (2, 'c');
`

func blogNamespaces() []builder.Namespace {
	return []builder.Namespace{
		{
			Name: "authors",
			Statements: []builder.Statement{
				{ID: "findByID", Kind: core.KindSelect, SQL: "SELECT id, user_name FROM authors WHERE id = #{id}", ResultType: reflect.TypeOf(blogAuthor{})},
			},
		},
		{
			Name:  "posts",
			Cache: &builder.CacheDef{Blocking: true, ReadWrite: builder.Bool(false)},
			Fragments: map[string]string{
				"columns": "p.id, p.title, p.author_id, t.tag",
			},
			ResultMaps: []builder.ResultMap{
				{ID: "tag", Type: reflect.TypeOf(""), Mappings: []builder.Mapping{{Property: "value", Column: "tag"}}},
				{
					ID:   "post",
					Type: reflect.TypeOf(blogPost{}),
					Mappings: []builder.Mapping{
						{Property: "ID", Column: "id", ID: true},
						{Property: "Title", Column: "title"},
						{Property: "Tags", NestedResultMap: "tag"},
						{Property: "Author", NestedSelect: "authors.findByID", Column: "author_id", Lazy: builder.Bool(true)},
					},
				},
			},
			Statements: []builder.Statement{
				{
					ID:   "withTags",
					Kind: core.KindSelect,
					SQL: `SELECT {* include "columns" *}
					FROM posts p LEFT JOIN tags t ON t.post_id = p.id
					{* where: *}
						{* if ids: *}AND p.id IN {* for id in ids open="(" separator="," close=")": *}#{id}{* endfor *}{* endif *}
						{* if title: *}AND p.title = #{title}{* endif *}
					{* endwhere *}
					ORDER BY p.id, t.tag`,
					ResultMap: "post",
				},
				{ID: "insert", Kind: core.KindInsert, SQL: "INSERT INTO posts (title, author_id) VALUES (#{Title}, #{authorID})", KeyProperty: "ID"},
			},
		},
	}
}

func openBlog(t *testing.T) *Session {
	t.Helper()
	s := config.DefaultSettings()
	s.MapUnderscoreToCamelCase = true
	cfg, err := builder.New(s, builder.WithLogger(testutil.NewTestLogger(t))).Add(blogNamespaces()...).Build()
	require.NoError(t, err)

	ctx := context.Background()
	sess, err := Open(ctx, cfg, adapter.Config{Type: "sqlite", Path: filepath.Join(t.TempDir(), "blog.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	for _, ddl := range strings.Split(blogSchema, ";") {
		if ddl = strings.TrimSpace(ddl); ddl == "" {
			continue
		}
		st, err := sess.Adapter().Prepare(ctx, ddl, adapter.StatementOptions{})
		require.NoError(t, err)
		_, err = st.Exec(ctx)
		require.NoError(t, err, ddl)
		require.NoError(t, st.Close())
	}
	return sess
}

func TestSQLite_JoinGroupsChildrenInRowOrder(t *testing.T) {
	sess := openBlog(t)
	ctx := context.Background()

	posts, err := List[blogPost](ctx, sess, "posts.withTags", map[string]any{"ids": nil, "title": nil})
	require.NoError(t, err)
	require.Len(t, posts, 3)

	assert.Equal(t, int64(1), posts[0].ID)
	assert.Equal(t, []string{"a", "b"}, posts[0].Tags)
	assert.Equal(t, int64(2), posts[1].ID)
	assert.Equal(t, []string{"c"}, posts[1].Tags)
	assert.Equal(t, int64(3), posts[2].ID)
	assert.Empty(t, posts[2].Tags)

	assert.False(t, posts[0].Author.Loaded())
	author, err := posts[0].Author.Get()
	require.NoError(t, err)
	assert.Equal(t, &blogAuthor{ID: 1, UserName: "ann"}, author)
}

func TestSQLite_DynamicFilters(t *testing.T) {
	sess := openBlog(t)
	ctx := context.Background()

	posts, err := List[blogPost](ctx, sess, "posts.withTags", map[string]any{"ids": []int{3, 2}, "title": nil})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "second", posts[0].Title)
	assert.Equal(t, "third", posts[1].Title)

	posts, err = List[blogPost](ctx, sess, "posts.withTags", map[string]any{"ids": []int{}, "title": "first"})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, []string{"a", "b"}, posts[0].Tags)
}

func TestSQLite_InsertFlushesNamespaceCache(t *testing.T) {
	sess := openBlog(t)
	ctx := context.Background()
	all := map[string]any{"ids": nil, "title": nil}

	before, err := sess.SelectList(ctx, "posts.withTags", all)
	require.NoError(t, err)
	require.Len(t, before, 3)

	p := &struct {
		ID       int64
		Title    string
		AuthorID int64
	}{Title: "fourth", AuthorID: 2}
	n, err := sess.Insert(ctx, "posts.insert", p)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(4), p.ID)

	after, err := sess.SelectList(ctx, "posts.withTags", all)
	require.NoError(t, err)
	assert.Len(t, after, 4)
}

func TestSQLite_ConfigurationErrors(t *testing.T) {
	t.Run("duplicate statement id", func(t *testing.T) {
		namespaces := blogNamespaces()
		namespaces[0].Statements = append(namespaces[0].Statements, namespaces[0].Statements[0])
		_, err := builder.New(config.DefaultSettings()).Add(namespaces...).Build()
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrConfiguration)
		assert.Contains(t, err.Error(), "authors.findByID")
	})

	t.Run("fragment cycle", func(t *testing.T) {
		namespaces := blogNamespaces()
		namespaces[1].Fragments = map[string]string{
			"columns": `{* include "more" *}`,
			"more":    `p.id, {* include "columns" *}`,
		}
		_, err := builder.New(config.DefaultSettings()).Add(namespaces...).Build()
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrConfiguration)
		assert.Contains(t, err.Error(), "posts.columns -> posts.more -> posts.columns")
	})
}
