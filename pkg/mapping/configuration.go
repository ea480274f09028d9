package mapping

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/leapstack-labs/leapmap/internal/registry"
	"github.com/leapstack-labs/leapmap/pkg/cache"
	"github.com/leapstack-labs/leapmap/pkg/config"
	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/leapstack-labs/leapmap/pkg/typehandler"
)

// Fragment is a named, reusable piece of SQL template.
type Fragment struct {
	ID        string
	Namespace string
	Source    string
}

// Configuration owns every compiled artifact of one mapping setup. Several
// configurations may coexist in a process; nothing here is global.
type Configuration struct {
	settings     config.Settings
	typeHandlers *typehandler.Registry
	logger       *slog.Logger

	statements *registry.Registry[*MappedStatement]
	resultMaps *registry.Registry[*ResultMap]
	fragments  *registry.Registry[*Fragment]

	cacheMu sync.RWMutex
	// caches maps namespaces to their cache: "users" → Cache
	caches map[string]cache.Cache
	// cacheRefs maps namespaces to the namespace whose cache they share.
	cacheRefs map[string]string

	frozen atomic.Bool
}

// Option configures a Configuration.
type Option func(*Configuration)

// WithLogger sets the logger shared by executors and mappers.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Configuration) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTypeHandlers replaces the default type handler registry.
func WithTypeHandlers(r *typehandler.Registry) Option {
	return func(c *Configuration) {
		if r != nil {
			c.typeHandlers = r
		}
	}
}

// NewConfiguration creates an empty, mutable configuration.
func NewConfiguration(settings config.Settings, opts ...Option) *Configuration {
	settings.ApplyDefaults()
	c := &Configuration{
		settings:     settings,
		typeHandlers: typehandler.NewRegistry(),
		logger:       slog.New(slog.DiscardHandler),
		statements:   registry.New[*MappedStatement]("mapped statement"),
		resultMaps:   registry.New[*ResultMap]("result map"),
		fragments:    registry.New[*Fragment]("sql fragment"),
		caches:       make(map[string]cache.Cache),
		cacheRefs:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Settings returns the behavior switches.
func (c *Configuration) Settings() *config.Settings { return &c.settings }

// TypeHandlers returns the type handler registry.
func (c *Configuration) TypeHandlers() *typehandler.Registry { return c.typeHandlers }

// Logger returns the configured logger.
func (c *Configuration) Logger() *slog.Logger { return c.logger }

// Freeze makes the configuration read-only. Further Add calls fail.
func (c *Configuration) Freeze() { c.frozen.Store(true) }

// Frozen reports whether Freeze was called.
func (c *Configuration) Frozen() bool { return c.frozen.Load() }

func (c *Configuration) checkMutable(what, id string) error {
	if c.frozen.Load() {
		return core.Errorf(core.ErrConfiguration, "cannot add %s %q to a built configuration", what, id)
	}
	return nil
}

// =============================================================================
// Statements
// =============================================================================

// AddMappedStatement registers ms. Duplicate ids are configuration errors.
func (c *Configuration) AddMappedStatement(ms *MappedStatement) error {
	if err := c.checkMutable("mapped statement", ms.ID); err != nil {
		return err
	}
	if err := c.statements.Register(ms.ID, ms); err != nil {
		return core.Wrap(core.ErrConfiguration, ms.ID, err).WithResource(ms.Resource)
	}
	return nil
}

// MappedStatement returns the statement registered under id (or its unique short name).
func (c *Configuration) MappedStatement(id string) (*MappedStatement, error) {
	ms, err := c.statements.Get(id)
	if err != nil {
		return nil, core.Wrap(core.ErrConfiguration, id, err)
	}
	return ms, nil
}

// HasStatement reports whether id resolves to a statement.
func (c *Configuration) HasStatement(id string) bool { return c.statements.Has(id) }

// MappedStatements returns all statements in registration order.
func (c *Configuration) MappedStatements() []*MappedStatement { return c.statements.All() }

// =============================================================================
// Result maps and fragments
// =============================================================================

// AddResultMap registers rm.
func (c *Configuration) AddResultMap(rm *ResultMap) error {
	if err := c.checkMutable("result map", rm.ID); err != nil {
		return err
	}
	if err := c.resultMaps.Register(rm.ID, rm); err != nil {
		return core.Wrap(core.ErrConfiguration, "", err).WithResource(rm.ID)
	}
	return nil
}

// ResultMap returns the result map registered under id.
func (c *Configuration) ResultMap(id string) (*ResultMap, error) {
	rm, err := c.resultMaps.Get(id)
	if err != nil {
		return nil, core.Wrap(core.ErrConfiguration, "", err)
	}
	return rm, nil
}

// ResultMaps returns all result maps in registration order.
func (c *Configuration) ResultMaps() []*ResultMap { return c.resultMaps.All() }

// AddFragment registers a named SQL fragment.
func (c *Configuration) AddFragment(f *Fragment) error {
	if err := c.checkMutable("sql fragment", f.ID); err != nil {
		return err
	}
	if err := c.fragments.Register(f.ID, f); err != nil {
		return core.Wrap(core.ErrConfiguration, "", err).WithResource(f.ID)
	}
	return nil
}

// Fragment returns the fragment registered under id.
func (c *Configuration) Fragment(id string) (*Fragment, error) {
	f, err := c.fragments.Get(id)
	if err != nil {
		return nil, core.Wrap(core.ErrConfiguration, "", err)
	}
	return f, nil
}

// Fragments returns all fragments in registration order.
func (c *Configuration) Fragments() []*Fragment { return c.fragments.All() }

// =============================================================================
// Caches
// =============================================================================

// AddCache registers the cache of a namespace.
func (c *Configuration) AddCache(namespace string, cc cache.Cache) error {
	if err := c.checkMutable("cache", namespace); err != nil {
		return err
	}
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	if _, exists := c.caches[namespace]; exists {
		return core.Errorf(core.ErrConfiguration, "cache for namespace %q is already registered", namespace)
	}
	c.caches[namespace] = cc
	return nil
}

// AddCacheRef makes namespace share the cache of target.
func (c *Configuration) AddCacheRef(namespace, target string) error {
	if err := c.checkMutable("cache reference", namespace); err != nil {
		return err
	}
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cacheRefs[namespace] = target
	return nil
}

// Cache returns the cache used by namespace, following cache references.
func (c *Configuration) Cache(namespace string) (cache.Cache, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()

	seen := make(map[string]bool)
	for ns := namespace; !seen[ns]; {
		seen[ns] = true
		if cc, ok := c.caches[ns]; ok {
			return cc, true
		}
		target, ok := c.cacheRefs[ns]
		if !ok {
			return nil, false
		}
		ns = target
	}
	return nil, false
}

// CacheRefs returns the namespace → referenced namespace table.
func (c *Configuration) CacheRefs() map[string]string {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	out := make(map[string]string, len(c.cacheRefs))
	for k, v := range c.cacheRefs {
		out[k] = v
	}
	return out
}

// Caches returns all distinct caches sorted by id.
func (c *Configuration) Caches() []cache.Cache {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	out := make([]cache.Cache, 0, len(c.caches))
	for _, cc := range c.caches {
		out = append(out, cc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (c *Configuration) String() string {
	return fmt.Sprintf("Configuration{statements: %d, resultMaps: %d, fragments: %d}",
		c.statements.Count(), c.resultMaps.Count(), c.fragments.Count())
}
