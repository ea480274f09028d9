package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockAdapter(t *testing.T, cfg Config, style PlaceholderStyle) (*BaseSQLAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	base := &BaseSQLAdapter{Flavor: Dialect{Name: "mock", Placeholder: style}}
	require.NoError(t, base.Init(db, cfg))
	return base, mock
}

func TestRebind(t *testing.T) {
	tests := []struct {
		name  string
		style PlaceholderStyle
		in    string
		want  string
		count int
	}{
		{"question untouched", PlaceholderQuestion, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = ? AND b = ?", 2},
		{"dollar", PlaceholderDollar, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2", 2},
		{"quoted question mark", PlaceholderDollar, "SELECT '?' FROM t WHERE a = ?", "SELECT '?' FROM t WHERE a = $1", 1},
		{"quoted identifier", PlaceholderDollar, `SELECT "a?b" FROM t`, `SELECT "a?b" FROM t`, 0},
		{"no placeholders", PlaceholderDollar, "SELECT 1", "SELECT 1", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n := Rebind(tt.style, tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.count, n)
		})
	}
}

func TestBaseSQLAdapter_NotConnected(t *testing.T) {
	base := &BaseSQLAdapter{}
	assert.False(t, base.IsConnected())
	assert.NoError(t, base.Close())

	_, err := base.Prepare(context.Background(), "SELECT 1", StatementOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database connection not established")
}

func TestStatement_Exec(t *testing.T) {
	base, mock := newMockAdapter(t, Config{}, PlaceholderDollar)
	mock.ExpectExec("UPDATE author SET name = $1 WHERE id = $2").
		WithArgs("ann", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	st, err := base.Prepare(context.Background(), "UPDATE author SET name = ? WHERE id = ?", StatementOptions{})
	require.NoError(t, err)
	require.NoError(t, st.Bind(1, "ann", core.DBTypeVarchar))
	require.NoError(t, st.Bind(2, int64(7), core.DBTypeUnset))
	assert.Error(t, st.Bind(3, "x", core.DBTypeUnset))

	res, err := st.Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)
	assert.True(t, res.HasLastInsertID)
	require.NoError(t, st.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatement_ExecError(t *testing.T) {
	base, mock := newMockAdapter(t, Config{}, PlaceholderQuestion)
	mock.ExpectExec("INVALID SQL").WillReturnError(assert.AnError)

	st, err := base.Prepare(context.Background(), "INVALID SQL", StatementOptions{})
	require.NoError(t, err)
	_, err = st.Exec(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute SQL")
	assert.ErrorIs(t, err, assert.AnError)
}

func TestStatement_Query(t *testing.T) {
	base, mock := newMockAdapter(t, Config{}, PlaceholderQuestion)
	rows := sqlmock.NewRows([]string{"id", "name"}).
		AddRow(int64(1), "alice").
		AddRow(int64(2), nil)
	mock.ExpectQuery("SELECT id, name FROM users WHERE id > ?").WithArgs(0).WillReturnRows(rows)

	st, err := base.Prepare(context.Background(), "SELECT id, name FROM users WHERE id > ?", StatementOptions{Timeout: time.Second})
	require.NoError(t, err)
	require.NoError(t, st.Bind(1, 0, core.DBTypeInteger))

	cur, err := st.Query(context.Background())
	require.NoError(t, err)
	defer func() { _ = cur.Close() }()

	assert.Equal(t, []string{"id", "name"}, cur.Columns())
	var got [][]any
	for cur.Next() {
		got = append(got, []any{cur.Value(0), cur.Value(1)})
	}
	require.NoError(t, cur.Err())
	assert.Equal(t, [][]any{{int64(1), "alice"}, {int64(2), nil}}, got)
	assert.Nil(t, cur.Value(5))
}

func TestStatement_NullHint(t *testing.T) {
	base, mock := newMockAdapter(t, Config{}, PlaceholderQuestion)
	mock.ExpectExec("UPDATE t SET a = ?").WithArgs(nil).WillReturnResult(sqlmock.NewResult(0, 3))

	st, err := base.Prepare(context.Background(), "UPDATE t SET a = ?", StatementOptions{})
	require.NoError(t, err)
	require.NoError(t, st.Bind(1, "ignored", core.DBTypeNull))
	res, err := st.Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.RowsAffected)
}

func TestBaseSQLAdapter_StatementCache(t *testing.T) {
	base, mock := newMockAdapter(t, Config{StatementCacheSize: 1}, PlaceholderQuestion)

	mock.ExpectPrepare("SELECT ?")
	mock.ExpectPrepare("SELECT ?, ?")
	mock.ExpectPrepare("SELECT ?")

	ctx := context.Background()
	_, err := base.Prepare(ctx, "SELECT ?", StatementOptions{})
	require.NoError(t, err)
	_, err = base.Prepare(ctx, "SELECT ?", StatementOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, base.CachedStatements())

	// capacity one: preparing another statement evicts the first
	_, err = base.Prepare(ctx, "SELECT ?, ?", StatementOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, base.CachedStatements())

	_, err = base.Prepare(ctx, "SELECT ?", StatementOptions{})
	require.NoError(t, err)
}
