package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/leapstack-labs/leapmap/pkg/core"
)

// BaseSQLAdapter provides the capability set over database/sql.
// Embed this struct in concrete adapter implementations and call Init
// from Connect.
type BaseSQLAdapter struct {
	DB     *sql.DB
	Cfg    Config
	Logger *slog.Logger
	Flavor Dialect
	stmts  *lru.Cache[uint64, *sql.Stmt]
}

// Init stores the connection and enables the prepared statement cache when
// cfg asks for one.
func (b *BaseSQLAdapter) Init(db *sql.DB, cfg Config) error {
	b.DB = db
	b.Cfg = cfg
	if b.Logger == nil {
		b.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.StatementCacheSize > 0 {
		cache, err := lru.NewWithEvict(cfg.StatementCacheSize, func(_ uint64, st *sql.Stmt) {
			_ = st.Close()
		})
		if err != nil {
			return fmt.Errorf("statement cache: %w", err)
		}
		b.stmts = cache
	}
	return nil
}

// Close closes cached statements and the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.stmts != nil {
		b.stmts.Purge()
	}
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing database connection")
		}
		return b.DB.Close()
	}
	return nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}

// Dialect returns the SQL dialect of the adapter.
func (b *BaseSQLAdapter) Dialect() Dialect {
	return b.Flavor
}

// Prepare rewrites placeholders for the dialect and returns a statement.
// With the statement cache enabled the statement is prepared once per SQL
// text; otherwise SQL and arguments are sent together on execution.
func (b *BaseSQLAdapter) Prepare(ctx context.Context, sqlStr string, opts StatementOptions) (Statement, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	query, n := Rebind(b.Flavor.Placeholder, sqlStr)
	st := &sqlStatement{db: b.DB, sql: query, args: make([]any, n), opts: opts}
	if b.stmts == nil {
		return st, nil
	}

	key := xxhash.Sum64String(query)
	if cached, ok := b.stmts.Get(key); ok {
		st.stmt = cached
		return st, nil
	}
	prepared, err := b.DB.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	b.stmts.Add(key, prepared)
	st.stmt = prepared
	return st, nil
}

// CachedStatements returns the number of prepared statements held.
func (b *BaseSQLAdapter) CachedStatements() int {
	if b.stmts == nil {
		return 0
	}
	return b.stmts.Len()
}

// Rebind rewrites ? placeholders outside quoted literals into style and
// returns the number of placeholders.
func Rebind(style PlaceholderStyle, query string) (string, int) {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	var quote byte
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '?':
			n++
			if style == PlaceholderDollar {
				b.WriteByte('$')
				b.WriteString(strconv.Itoa(n))
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String(), n
}

type sqlStatement struct {
	db   *sql.DB
	stmt *sql.Stmt // shared with the statement cache; never closed here
	sql  string
	args []any
	opts StatementOptions
}

func (s *sqlStatement) Bind(pos int, value any, hint core.DBType) error {
	if pos < 1 || pos > len(s.args) {
		return fmt.Errorf("parameter index %d out of range [1, %d]", pos, len(s.args))
	}
	if hint == core.DBTypeNull {
		value = nil
	}
	s.args[pos-1] = value
	return nil
}

func (s *sqlStatement) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout > 0 {
		return context.WithTimeout(ctx, s.opts.Timeout)
	}
	return ctx, func() {}
}

func (s *sqlStatement) Exec(ctx context.Context) (Result, error) {
	ctx, cancel := s.context(ctx)
	defer cancel()

	var (
		res sql.Result
		err error
	)
	if s.stmt != nil {
		res, err = s.stmt.ExecContext(ctx, s.args...)
	} else {
		res, err = s.db.ExecContext(ctx, s.sql, s.args...)
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to execute SQL: %w", err)
	}

	out := Result{RowsAffected: -1}
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID = id
		out.HasLastInsertID = true
	}
	return out, nil
}

func (s *sqlStatement) Query(ctx context.Context) (Cursor, error) {
	ctx, cancel := s.context(ctx)

	var (
		rows *sql.Rows
		err  error
	)
	//nolint:rowserrcheck // rows.Err() is surfaced through Cursor.Err
	if s.stmt != nil {
		rows, err = s.stmt.QueryContext(ctx, s.args...)
	} else {
		rows, err = s.db.QueryContext(ctx, s.sql, s.args...)
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		cancel()
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	return newRowsCursor(rows, cols, cancel), nil
}

func (s *sqlStatement) Close() error { return nil }

// rowsCursor adapts sql.Rows to Cursor.
type rowsCursor struct {
	rows   *sql.Rows
	cols   []string
	vals   []any
	ptrs   []any
	err    error
	cancel context.CancelFunc
}

func newRowsCursor(rows *sql.Rows, cols []string, cancel context.CancelFunc) *rowsCursor {
	c := &rowsCursor{rows: rows, cols: cols, cancel: cancel}
	c.vals = make([]any, len(cols))
	c.ptrs = make([]any, len(cols))
	for i := range c.vals {
		c.ptrs[i] = &c.vals[i]
	}
	return c
}

func (c *rowsCursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	clear(c.vals)
	if err := c.rows.Scan(c.ptrs...); err != nil {
		c.err = fmt.Errorf("failed to scan row: %w", err)
		return false
	}
	return true
}

func (c *rowsCursor) Columns() []string { return c.cols }

func (c *rowsCursor) Value(i int) any {
	if i < 0 || i >= len(c.vals) {
		return nil
	}
	return c.vals[i]
}

func (c *rowsCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *rowsCursor) Close() error {
	defer c.cancel()
	return c.rows.Close()
}
