// Package adapter defines the database capability set the mapping core
// executes through: prepare a statement, bind positional values, execute it
// and read result rows by column.
//
// Concrete adapter implementations are in pkg/adapters/ subdirectories.
package adapter

import (
	"context"
	"time"

	"github.com/leapstack-labs/leapmap/pkg/core"
)

// Config describes how to reach a database.
type Config struct {
	Type     string            `koanf:"type" yaml:"type"`
	Path     string            `koanf:"path" yaml:"path,omitempty"`
	Host     string            `koanf:"host" yaml:"host,omitempty"`
	Port     int               `koanf:"port" yaml:"port,omitempty"`
	Database string            `koanf:"database" yaml:"database,omitempty"`
	Username string            `koanf:"username" yaml:"username,omitempty"`
	Password string            `koanf:"password" yaml:"-"`
	Options  map[string]string `koanf:"options" yaml:"options,omitempty"`

	// Params holds adapter specific settings, decoded by each adapter.
	Params map[string]any `koanf:"params" yaml:"params,omitempty"`

	// StatementCacheSize enables a prepared statement cache of that many
	// entries when positive.
	StatementCacheSize int `koanf:"statement_cache_size" yaml:"statement_cache_size,omitempty"`
}

// PlaceholderStyle is how a database spells positional parameters.
type PlaceholderStyle int

// PlaceholderStyle values.
const (
	PlaceholderQuestion PlaceholderStyle = iota // ?
	PlaceholderDollar                           // $1, $2
)

// Dialect describes the SQL flavor of an adapter.
type Dialect struct {
	Name        string
	Placeholder PlaceholderStyle
}

// StatementOptions carries per-statement execution settings.
type StatementOptions struct {
	// Timeout bounds execution when positive.
	Timeout time.Duration
	// FetchSize is a row fetching hint; drivers may ignore it.
	FetchSize int
}

// BoundValue is a parameter value ready for the driver together with the
// database type hint of its placeholder.
type BoundValue struct {
	Value any
	Hint  core.DBType
}

// Result summarizes a statement that does not return rows.
type Result struct {
	RowsAffected int64
	// LastInsertID is valid only when HasLastInsertID is set; not every
	// driver reports generated keys.
	LastInsertID    int64
	HasLastInsertID bool
}

// Adapter defines the interface that all database adapters must implement.
type Adapter interface {
	// Connect establishes a connection to the database using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the database connection and releases resources.
	Close() error

	// Prepare creates a statement for sql, which uses ? placeholders.
	Prepare(ctx context.Context, sql string, opts StatementOptions) (Statement, error)

	// Dialect returns the SQL dialect of this adapter.
	Dialect() Dialect
}

// Statement is a prepared statement with its bound values.
type Statement interface {
	// Bind sets the value of the 1-based placeholder pos.
	Bind(pos int, value any, hint core.DBType) error

	// Exec runs a statement that does not return rows.
	Exec(ctx context.Context) (Result, error)

	// Query runs a statement that returns rows.
	Query(ctx context.Context) (Cursor, error)

	// Close releases the statement.
	Close() error
}

// Cursor iterates result rows. Values are only valid until the next call
// to Next.
type Cursor interface {
	Next() bool
	Columns() []string
	// Value returns the raw driver value of column i of the current row.
	Value(i int) any
	Err() error
	Close() error
}
