// Package sqlite provides an embedded SQLite adapter built on the pure-Go
// modernc.org/sqlite driver. It is the adapter used by the end-to-end tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"

	"github.com/leapstack-labs/leapmap/pkg/adapter"

	_ "modernc.org/sqlite" // sqlite driver
)

// Adapter implements the adapter.Adapter interface for SQLite.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new SQLite adapter instance.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{
			Logger: logger,
			Flavor: adapter.Dialect{Name: "sqlite", Placeholder: adapter.PlaceholderQuestion},
		},
	}
}

// Connect opens the database at cfg.Path, or a private in-memory database
// when the path is empty. Entries of cfg.Params are applied as PRAGMAs.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	a.Logger.Debug("connecting to sqlite", slog.String("path", path))

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// single writer; also keeps an in-memory database on one connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite: %w", err)
	}

	for _, p := range pragmas(cfg.Params) {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return a.Init(db, cfg)
}

// pragmas renders params as PRAGMA statements in key order.
func pragmas(params map[string]any) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("PRAGMA %s = %v", k, params[k]))
	}
	return out
}

var _ adapter.Adapter = (*Adapter)(nil)
