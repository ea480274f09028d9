package postgres

import (
	"log/slog"

	"github.com/leapstack-labs/leapmap/pkg/adapter"
)

// Importing this package with a blank identifier registers the adapter:
//
//	import _ "github.com/leapstack-labs/leapmap/pkg/adapters/postgres"
func init() {
	adapter.Register("postgres", func(l *slog.Logger) adapter.Adapter { return New(l) })
}
