package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapmap/pkg/adapter"
	"github.com/leapstack-labs/leapmap/pkg/core"
)

// Cursor is an adapter.Cursor over fixed rows.
type Cursor struct {
	cols   []string
	rows   [][]any
	pos    int
	err    error
	Closed bool
}

// NewCursor returns a cursor over rows with the given column labels.
func NewCursor(cols []string, rows ...[]any) *Cursor {
	return &Cursor{cols: cols, rows: rows}
}

// FailAfter makes Err report err once every row was read.
func (c *Cursor) FailAfter(err error) *Cursor {
	c.err = err
	return c
}

func (c *Cursor) Next() bool {
	if c.pos >= len(c.rows) {
		return false
	}
	c.pos++
	return true
}

func (c *Cursor) Columns() []string { return c.cols }

func (c *Cursor) Value(i int) any {
	if c.pos == 0 || i < 0 || i >= len(c.rows[c.pos-1]) {
		return nil
	}
	return c.rows[c.pos-1][i]
}

func (c *Cursor) Err() error {
	if c.pos >= len(c.rows) {
		return c.err
	}
	return nil
}

func (c *Cursor) Close() error {
	c.Closed = true
	return nil
}

// Call records one statement execution.
type Call struct {
	SQL   string
	Args  []any
	Hints []core.DBType
	Opts  adapter.StatementOptions
	Query bool
}

// FakeAdapter records every execution and answers with scripted results.
// QueryFunc and ExecFunc may be replaced before use.
type FakeAdapter struct {
	mu    sync.Mutex
	calls []Call

	QueryFunc func(sql string, args []any) (adapter.Cursor, error)
	ExecFunc  func(sql string, args []any) (adapter.Result, error)
	Flavor    adapter.Dialect
}

// NewFakeAdapter returns an adapter whose queries return no rows and whose
// writes affect one row.
func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{Flavor: adapter.Dialect{Name: "fake", Placeholder: adapter.PlaceholderQuestion}}
}

func (a *FakeAdapter) Connect(context.Context, adapter.Config) error { return nil }

func (a *FakeAdapter) Close() error { return nil }

func (a *FakeAdapter) Dialect() adapter.Dialect { return a.Flavor }

func (a *FakeAdapter) Prepare(_ context.Context, sql string, opts adapter.StatementOptions) (adapter.Statement, error) {
	n := strings.Count(sql, "?")
	return &fakeStatement{a: a, sql: sql, opts: opts, args: make([]any, n), hints: make([]core.DBType, n)}, nil
}

// Calls returns a copy of the recorded executions.
func (a *FakeAdapter) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Call(nil), a.calls...)
}

// QueryCount returns how many queries were executed.
func (a *FakeAdapter) QueryCount() int {
	n := 0
	for _, c := range a.Calls() {
		if c.Query {
			n++
		}
	}
	return n
}

func (a *FakeAdapter) record(c Call) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, c)
}

type fakeStatement struct {
	a     *FakeAdapter
	sql   string
	opts  adapter.StatementOptions
	args  []any
	hints []core.DBType
}

func (s *fakeStatement) Bind(pos int, value any, hint core.DBType) error {
	for len(s.args) < pos {
		s.args = append(s.args, nil)
		s.hints = append(s.hints, core.DBTypeUnset)
	}
	s.args[pos-1] = value
	s.hints[pos-1] = hint
	return nil
}

func (s *fakeStatement) Exec(context.Context) (adapter.Result, error) {
	s.a.record(Call{SQL: s.sql, Args: s.args, Hints: s.hints, Opts: s.opts})
	if s.a.ExecFunc != nil {
		return s.a.ExecFunc(s.sql, s.args)
	}
	return adapter.Result{RowsAffected: 1}, nil
}

func (s *fakeStatement) Query(context.Context) (adapter.Cursor, error) {
	s.a.record(Call{SQL: s.sql, Args: s.args, Hints: s.hints, Opts: s.opts, Query: true})
	if s.a.QueryFunc != nil {
		return s.a.QueryFunc(s.sql, s.args)
	}
	return NewCursor(nil), nil
}

func (s *fakeStatement) Close() error { return nil }

var _ adapter.Adapter = (*FakeAdapter)(nil)
