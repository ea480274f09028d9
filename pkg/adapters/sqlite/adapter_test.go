package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapmap/pkg/adapter"
	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPragmas(t *testing.T) {
	got := pragmas(map[string]any{"journal_mode": "wal", "foreign_keys": "on"})
	assert.Equal(t, []string{"PRAGMA foreign_keys = on", "PRAGMA journal_mode = wal"}, got)
	assert.Empty(t, pragmas(nil))
}

func TestAdapter_RoundTrip(t *testing.T) {
	ctx := context.Background()
	a := New(nil)
	require.NoError(t, a.Connect(ctx, adapter.Config{
		Path:               filepath.Join(t.TempDir(), "blog.db"),
		Params:             map[string]any{"foreign_keys": "on"},
		StatementCacheSize: 4,
	}))
	defer func() { _ = a.Close() }()

	run := func(sql string, args ...any) adapter.Result {
		st, err := a.Prepare(ctx, sql, adapter.StatementOptions{})
		require.NoError(t, err)
		for i, v := range args {
			require.NoError(t, st.Bind(i+1, v, core.DBTypeUnset))
		}
		res, err := st.Exec(ctx)
		require.NoError(t, err)
		return res
	}

	run("CREATE TABLE author (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)")
	res := run("INSERT INTO author (name) VALUES (?)", "ann")
	assert.Equal(t, int64(1), res.RowsAffected)
	assert.True(t, res.HasLastInsertID)
	assert.Equal(t, int64(1), res.LastInsertID)
	run("INSERT INTO author (name) VALUES (?)", "bob")
	assert.Equal(t, 2, a.CachedStatements())

	st, err := a.Prepare(ctx, "SELECT id, name FROM author WHERE name = ?", adapter.StatementOptions{})
	require.NoError(t, err)
	require.NoError(t, st.Bind(1, "bob", core.DBTypeVarchar))
	cur, err := st.Query(ctx)
	require.NoError(t, err)
	defer func() { _ = cur.Close() }()

	require.True(t, cur.Next())
	assert.Equal(t, int64(2), cur.Value(0))
	assert.Equal(t, "bob", cur.Value(1))
	assert.False(t, cur.Next())
	require.NoError(t, cur.Err())
}

func TestAdapter_InMemoryDefault(t *testing.T) {
	a, err := adapter.NewAdapter(adapter.Config{Type: "sqlite"}, nil)
	require.NoError(t, err)
	require.NoError(t, a.Connect(context.Background(), adapter.Config{}))
	defer func() { _ = a.Close() }()
	assert.Equal(t, "sqlite", a.Dialect().Name)
}
