package duckdb

import (
	"log/slog"

	"github.com/leapstack-labs/leapmap/pkg/adapter"
)

// Importing this package with a blank identifier registers the adapter:
//
//	import _ "github.com/leapstack-labs/leapmap/pkg/adapters/duckdb"
func init() {
	adapter.Register("duckdb", func(l *slog.Logger) adapter.Adapter { return New(l) })
}
