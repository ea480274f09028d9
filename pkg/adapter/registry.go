package adapter

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/puzpuzpuz/xsync/v3"
)

// Factory creates an unconnected adapter.
type Factory func(*slog.Logger) Adapter

// factories holds every adapter package that registered itself from init.
var factories = xsync.NewMapOf[string, Factory]()

// Register makes an adapter available to NewAdapter under name. A later
// registration under the same name replaces the earlier one.
func Register(name string, factory Factory) {
	factories.Store(name, factory)
}

// Get returns the factory registered under name.
func Get(name string) (Factory, bool) {
	return factories.Load(name)
}

// NewAdapter creates an unconnected adapter of cfg.Type.
// A nil logger discards output.
func NewAdapter(cfg Config, logger *slog.Logger) (Adapter, error) {
	if strings.TrimSpace(cfg.Type) == "" {
		return nil, core.Errorf(core.ErrConfiguration, "adapter type not specified")
	}
	factory, ok := factories.Load(cfg.Type)
	if !ok {
		return nil, &UnknownAdapterError{Type: cfg.Type, Available: ListAdapters()}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return factory(logger), nil
}

// ListAdapters returns the registered adapter names in order.
func ListAdapters() []string {
	names := make([]string, 0, factories.Size())
	factories.Range(func(name string, _ Factory) bool {
		names = append(names, name)
		return true
	})
	slices.Sort(names)
	return names
}

// IsRegistered reports whether an adapter is registered under name.
func IsRegistered(name string) bool {
	_, ok := factories.Load(name)
	return ok
}

// UnknownAdapterError is returned by NewAdapter for unregistered types.
type UnknownAdapterError struct {
	Type      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown adapter type %q (registered: %s); import the adapter package, e.g. _ %q",
		e.Type, strings.Join(e.Available, ", "), "github.com/leapstack-labs/leapmap/pkg/adapters/sqlite")
}

func (e *UnknownAdapterError) Unwrap() error { return core.ErrConfiguration }
