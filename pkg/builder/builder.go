// Package builder turns namespace definitions into an immutable
// mapping.Configuration. Build compiles every template, resolves every
// result map and cache, and either returns a complete configuration or the
// first error.
package builder

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/leapstack-labs/leapmap/internal/reflection"
	"github.com/leapstack-labs/leapmap/internal/template"
	"github.com/leapstack-labs/leapmap/pkg/cache"
	"github.com/leapstack-labs/leapmap/pkg/config"
	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/leapstack-labs/leapmap/pkg/lazy"
	"github.com/leapstack-labs/leapmap/pkg/mapping"
	"github.com/leapstack-labs/leapmap/pkg/typehandler"
)

// InlineSuffix names the result map generated for a statement's result type.
const InlineSuffix = "-Inline"

var cellType = reflect.TypeOf((*lazy.Cell)(nil)).Elem()

// Builder collects namespace definitions.
type Builder struct {
	settings   config.Settings
	logger     *slog.Logger
	handlers   *typehandler.Registry
	cacheImpls *cache.Implementations
	namespaces []Namespace
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger of the configuration and its caches.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithTypeHandlers replaces the default type handler registry.
func WithTypeHandlers(r *typehandler.Registry) Option {
	return func(b *Builder) { b.handlers = r }
}

// WithCacheImplementations makes custom cache implementations available to
// CacheDef.Type.
func WithCacheImplementations(impls *cache.Implementations) Option {
	return func(b *Builder) { b.cacheImpls = impls }
}

// New creates a builder for settings.
func New(settings config.Settings, opts ...Option) *Builder {
	b := &Builder{
		settings: settings,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add appends namespace definitions.
func (b *Builder) Add(namespaces ...Namespace) *Builder {
	b.namespaces = append(b.namespaces, namespaces...)
	return b
}

// Build compiles every namespace into a frozen configuration.
func (b *Builder) Build() (*mapping.Configuration, error) {
	settings := b.settings
	settings.ApplyDefaults()
	if err := settings.Validate(); err != nil {
		return nil, core.Wrap(core.ErrConfiguration, "", err).WithResource("settings")
	}
	if _, ok := core.ParseDBType(settings.DBTypeForNull); !ok {
		err := &config.SettingError{Key: "db_type_for_null", Value: settings.DBTypeForNull}
		return nil, core.Wrap(core.ErrConfiguration, "", err).WithResource("settings")
	}

	cfg := mapping.NewConfiguration(settings,
		mapping.WithLogger(b.logger),
		mapping.WithTypeHandlers(b.handlers))

	st := &buildState{
		Builder:    b,
		cfg:        cfg,
		fragments:  template.NewFragmentSet(),
		resultMaps: make(map[string]bool),
		statements: make(map[string]bool),
		tmplOpts:   template.NewOptions(cfg.Settings()),
	}
	for _, step := range []func() error{
		st.checkNamespaces,
		st.addFragments,
		st.addCaches,
		st.addResultMaps,
		st.addStatements,
		st.checkReferences,
	} {
		if err := step(); err != nil {
			return nil, err
		}
	}

	cfg.Freeze()
	b.logger.Debug("configuration built",
		slog.Int("namespaces", len(b.namespaces)),
		slog.Int("statements", len(cfg.MappedStatements())),
		slog.Int("result_maps", len(cfg.ResultMaps())))
	return cfg, nil
}

// buildState carries the intermediate tables of one Build call.
type buildState struct {
	*Builder
	cfg       *mapping.Configuration
	fragments *template.FragmentSet
	tmplOpts  template.Options

	// qualified ids declared across all namespaces
	resultMaps map[string]bool
	statements map[string]bool
}

func (s *buildState) checkNamespaces() error {
	seen := make(map[string]bool)
	for _, ns := range s.namespaces {
		name := strings.TrimSpace(ns.Name)
		if name == "" {
			return core.Errorf(core.ErrConfiguration, "namespace name must not be empty")
		}
		if seen[name] {
			return core.Errorf(core.ErrConfiguration, "duplicate namespace %q", name).WithResource(name)
		}
		seen[name] = true
		for _, rm := range ns.ResultMaps {
			if strings.TrimSpace(rm.ID) == "" {
				return core.Errorf(core.ErrConfiguration, "result map id must not be empty").WithResource(name)
			}
			s.resultMaps[qualify(name, rm.ID)] = true
		}
		for _, st := range ns.Statements {
			if strings.TrimSpace(st.ID) == "" {
				return core.Errorf(core.ErrConfiguration, "statement id must not be empty").WithResource(name)
			}
			s.statements[qualify(name, st.ID)] = true
		}
	}
	return nil
}

func (s *buildState) addFragments() error {
	for _, ns := range s.namespaces {
		for _, id := range slices.Sorted(maps.Keys(ns.Fragments)) {
			full := qualify(ns.Name, id)
			if err := s.fragments.Add(full, ns.Fragments[id]); err != nil {
				return err
			}
			if err := s.cfg.AddFragment(&mapping.Fragment{ID: full, Namespace: ns.Name, Source: ns.Fragments[id]}); err != nil {
				return err
			}
		}
	}
	if err := s.fragments.CompileAll(); err != nil {
		return configError("", err)
	}
	return nil
}

func (s *buildState) addCaches() error {
	names := make(map[string]bool, len(s.namespaces))
	for _, ns := range s.namespaces {
		names[ns.Name] = true
	}
	for _, ns := range s.namespaces {
		switch {
		case ns.Cache != nil:
			c, err := s.buildCache(ns.Name, ns.Cache)
			if err != nil {
				return configError("", err).WithResource(ns.Name)
			}
			if err := s.cfg.AddCache(ns.Name, c); err != nil {
				return err
			}
		case ns.CacheRef != "":
			if !names[ns.CacheRef] {
				return core.Errorf(core.ErrConfiguration, "cache reference to unknown namespace %q", ns.CacheRef).WithResource(ns.Name)
			}
			if err := s.cfg.AddCacheRef(ns.Name, ns.CacheRef); err != nil {
				return err
			}
		}
	}
	for _, ns := range s.namespaces {
		if ns.Cache == nil && ns.CacheRef != "" {
			if _, ok := s.cfg.Cache(ns.Name); !ok {
				return core.Errorf(core.ErrConfiguration, "cache reference %q does not lead to a cache", ns.CacheRef).WithResource(ns.Name)
			}
		}
	}
	return nil
}

func (s *buildState) buildCache(namespace string, def *CacheDef) (cache.Cache, error) {
	readWrite := true
	if def.ReadWrite != nil {
		readWrite = *def.ReadWrite
	}
	return cache.NewBuilder(namespace).
		Implementation(def.Type, s.cacheImpls).
		Eviction(def.Eviction).
		Size(def.Size).
		FlushInterval(def.FlushInterval).
		ReadWrite(readWrite).
		Blocking(def.Blocking, def.BlockingTimeout).
		Properties(def.Properties).
		Logger(s.logger).
		Build()
}

func (s *buildState) addResultMaps() error {
	for _, ns := range s.namespaces {
		for _, def := range ns.ResultMaps {
			rm, err := s.buildResultMap(ns.Name, qualify(ns.Name, def.ID), def.Type, def.Mappings, def.AutoMapping)
			if err != nil {
				return err
			}
			if err := s.cfg.AddResultMap(rm); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *buildState) buildResultMap(namespace, id string, t reflect.Type, defs []Mapping, autoMapping *bool) (*mapping.ResultMap, error) {
	var meta *reflection.StructMeta
	if t != nil && !isMapType(t) && !s.cfg.TypeHandlers().Has(t) {
		var err error
		if meta, err = reflection.Of(t); err != nil {
			return nil, configError("", err).WithResource(id)
		}
	}

	mappings := make([]*mapping.ResultMapping, 0, len(defs))
	for _, def := range defs {
		m, err := s.buildMapping(namespace, meta, def)
		if err != nil {
			return nil, configError("", err).WithResource(id)
		}
		mappings = append(mappings, m)
	}
	return mapping.NewResultMap(id, t, mappings, autoMapping), nil
}

func (s *buildState) buildMapping(namespace string, meta *reflection.StructMeta, def Mapping) (*mapping.ResultMapping, error) {
	if def.Property == "" {
		return nil, errors.New("mapping without property")
	}
	m := &mapping.ResultMapping{
		Property:       def.Property,
		Column:         def.Column,
		ID:             def.ID,
		Handler:        def.Handler,
		ColumnPrefix:   def.ColumnPrefix,
		NotNullColumns: def.NotNullColumns,
	}

	dbType, ok := core.ParseDBType(def.DBType)
	if !ok {
		return nil, fmt.Errorf("property %s: unknown database type %q", def.Property, def.DBType)
	}
	m.DBType = dbType
	if def.Handler != "" {
		if _, ok := s.cfg.TypeHandlers().Named(def.Handler); !ok {
			return nil, fmt.Errorf("property %s: unknown type handler %q", def.Property, def.Handler)
		}
	}

	if meta != nil {
		prop, ok := meta.FindProperty(def.Property, false)
		if !ok {
			return nil, fmt.Errorf("type %s has no property %q", meta.Type, def.Property)
		}
		m.GoType = prop.Type
	}

	switch {
	case def.NestedResultMap != "" && def.NestedSelect != "":
		return nil, fmt.Errorf("property %s: nested result map and nested select are exclusive", def.Property)
	case def.NestedResultMap != "":
		m.NestedResultMapID = resolve(namespace, def.NestedResultMap, s.resultMaps)
	case def.NestedSelect != "":
		m.NestedSelectID = resolve(namespace, def.NestedSelect, s.statements)
		for _, param := range slices.Sorted(maps.Keys(def.Composites)) {
			m.Composites = append(m.Composites, mapping.ResultMapping{Property: param, Column: def.Composites[param]})
		}
		if m.Column == "" && len(m.Composites) == 0 {
			return nil, fmt.Errorf("property %s: nested select needs a column", def.Property)
		}
		lazyLoad := s.cfg.Settings().LazyLoadingEnabled
		if def.Lazy != nil {
			lazyLoad = *def.Lazy
		}
		isCell := m.GoType != nil && reflect.PointerTo(m.GoType).Implements(cellType)
		if def.Lazy != nil && *def.Lazy && !isCell {
			return nil, fmt.Errorf("property %s: lazy loading needs a lazy.Value property", def.Property)
		}
		m.Lazy = lazyLoad && isCell
	default:
		if def.Column == "" {
			return nil, fmt.Errorf("property %s: mapping needs a column", def.Property)
		}
		if def.Lazy != nil {
			return nil, fmt.Errorf("property %s: only nested selects can be lazy", def.Property)
		}
	}
	return m, nil
}

func (s *buildState) addStatements() error {
	for _, ns := range s.namespaces {
		for _, def := range ns.Statements {
			ms, err := s.buildStatement(ns, def)
			if err != nil {
				return err
			}
			if err := s.cfg.AddMappedStatement(ms); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *buildState) buildStatement(ns Namespace, def Statement) (*mapping.MappedStatement, error) {
	id := qualify(ns.Name, def.ID)
	if def.Kind == core.KindUnknown {
		return nil, core.Errorf(core.ErrConfiguration, "statement kind is not set").WithStatement(id)
	}

	tmpl, err := template.Compile(def.SQL, id, s.fragments,
		template.WithNamespace(ns.Name),
		template.WithOptions(s.tmplOpts))
	if err != nil {
		return nil, configError(id, err)
	}

	ms := &mapping.MappedStatement{
		ID:            id,
		Namespace:     ns.Name,
		Resource:      ns.Name,
		Kind:          def.Kind,
		Source:        tmpl,
		ParameterType: def.ParameterType,
		FlushCache:    def.Kind.IsWrite(),
		UseCache:      def.Kind == core.KindSelect,
		Timeout:       def.Timeout,
		FetchSize:     def.FetchSize,
		KeyProperty:   def.KeyProperty,
	}
	if def.FlushCache != nil {
		ms.FlushCache = *def.FlushCache
	}
	if def.UseCache != nil {
		ms.UseCache = *def.UseCache
	}
	if c, ok := s.cfg.Cache(ns.Name); ok {
		ms.Cache = c
	}

	switch {
	case def.ResultMap != "" && def.ResultType != nil:
		return nil, core.Errorf(core.ErrConfiguration, "result map and result type are exclusive").WithStatement(id)
	case def.ResultMap != "":
		rm, err := s.cfg.ResultMap(resolve(ns.Name, def.ResultMap, s.resultMaps))
		if err != nil {
			return nil, configError(id, err)
		}
		ms.ResultMaps = []*mapping.ResultMap{rm}
	case def.ResultType != nil:
		rm, err := s.buildResultMap(ns.Name, id+InlineSuffix, def.ResultType, nil, nil)
		if err != nil {
			return nil, configError(id, err)
		}
		ms.ResultMaps = []*mapping.ResultMap{rm}
	case def.Kind == core.KindSelect:
		return nil, core.Errorf(core.ErrConfiguration, "select declares neither result map nor result type").WithStatement(id)
	}
	return ms, nil
}

// checkReferences verifies nested result maps and nested selects once every
// id is registered.
func (s *buildState) checkReferences() error {
	for _, rm := range s.cfg.ResultMaps() {
		for _, m := range rm.Mappings {
			if m.NestedResultMapID != "" {
				nested, err := s.cfg.ResultMap(m.NestedResultMapID)
				if err != nil {
					return configError("", err).WithResource(rm.ID)
				}
				if err := checkNestedType(m, nested); err != nil {
					return configError("", err).WithResource(rm.ID)
				}
			}
			if m.NestedSelectID != "" {
				nested, err := s.cfg.MappedStatement(m.NestedSelectID)
				if err != nil {
					return configError("", err).WithResource(rm.ID)
				}
				if nested.Kind != core.KindSelect {
					return core.Errorf(core.ErrConfiguration, "nested select %q is a %s", nested.ID, nested.Kind).WithResource(rm.ID)
				}
			}
		}
	}
	return nil
}

// checkNestedType rejects nested result maps whose struct type cannot be
// stored in the property.
func checkNestedType(m *mapping.ResultMapping, nested *mapping.ResultMap) error {
	if m.GoType == nil || nested.Type == nil {
		return nil
	}
	want := m.GoType
	if m.IsCollection() {
		want = derefType(want).Elem()
	}
	want, got := derefType(want), derefType(nested.Type)
	if want.Kind() != reflect.Struct || got.Kind() != reflect.Struct {
		return nil
	}
	if want != got {
		return fmt.Errorf("property %s of type %s cannot hold result map %s of type %s", m.Property, m.GoType, nested.ID, nested.Type)
	}
	return nil
}

// qualify prefixes id with namespace unless it already is.
func qualify(namespace, id string) string {
	if strings.HasPrefix(id, namespace+".") {
		return id
	}
	return namespace + "." + id
}

// resolve returns the namespace-relative id when declared, else ref as given.
func resolve(namespace, ref string, declared map[string]bool) string {
	if q := qualify(namespace, ref); declared[q] {
		return q
	}
	return ref
}

func configError(statementID string, err error) *core.Error {
	return core.Wrap(core.ErrConfiguration, statementID, err)
}

func isMapType(t reflect.Type) bool {
	return t.Kind() == reflect.Map || t.Kind() == reflect.Interface
}

func derefType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
