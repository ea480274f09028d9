// Package postgres provides a PostgreSQL database adapter.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/leapstack-labs/leapmap/pkg/adapter"
)

// Adapter implements the adapter.Adapter interface for PostgreSQL.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new PostgreSQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{
			Logger: logger,
			Flavor: adapter.Dialect{Name: "postgres", Placeholder: adapter.PlaceholderDollar},
		},
	}
}

// Connect establishes a connection to PostgreSQL.
// Scalar entries of cfg.Params are sent as runtime parameters (search_path, application_name, ...).
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	connCfg, err := pgx.ParseConfig(buildPostgresDSN(cfg))
	if err != nil {
		return fmt.Errorf("invalid postgres configuration: %w", err)
	}
	for k, v := range cfg.Params {
		connCfg.RuntimeParams[k] = fmt.Sprint(v)
	}

	a.Logger.Debug("connecting to postgres", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db := stdlib.OpenDB(*connCfg)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	return a.Init(db, cfg)
}

// buildPostgresDSN constructs a PostgreSQL connection string.
func buildPostgresDSN(cfg adapter.Config) string {
	// key=value format: host=localhost port=5432 user=postgres ...
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	sslmode := "disable"
	if mode, ok := cfg.Options["sslmode"]; ok {
		sslmode = mode
	}

	parts := []string{
		"host=" + host,
		fmt.Sprintf("port=%d", port),
		"dbname=" + quoteValue(cfg.Database),
		"sslmode=" + sslmode,
	}
	if cfg.Username != "" {
		parts = append(parts, "user="+quoteValue(cfg.Username))
	}
	if cfg.Password != "" {
		parts = append(parts, "password="+quoteValue(cfg.Password))
	}

	extra := make([]string, 0, len(cfg.Options))
	for k := range cfg.Options {
		if k != "sslmode" {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		parts = append(parts, k+"="+quoteValue(cfg.Options[k]))
	}

	return strings.Join(parts, " ")
}

// quoteValue quotes a DSN value when it is empty or contains spaces or quotes.
func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
