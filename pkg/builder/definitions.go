package builder

import (
	"reflect"
	"time"

	"github.com/leapstack-labs/leapmap/pkg/core"
)

// Namespace groups the statements, result maps, fragments and cache of one
// mapper. Ids inside a namespace are short; Build qualifies them as
// "<namespace>.<id>".
type Namespace struct {
	Name string

	// CacheRef shares the cache of another namespace. Ignored when Cache is set.
	CacheRef string
	Cache    *CacheDef

	// Fragments maps fragment ids to template sources.
	Fragments  map[string]string
	ResultMaps []ResultMap
	Statements []Statement
}

// Statement defines one mapped statement.
type Statement struct {
	ID   string
	Kind core.StatementKind
	SQL  string

	// ResultMap names a result map; ResultType declares an inline one.
	// Selects need exactly one of them.
	ResultMap  string
	ResultType reflect.Type

	ParameterType reflect.Type

	// FlushCache defaults to true for writes and false for selects.
	FlushCache *bool
	// UseCache defaults to true for selects.
	UseCache *bool

	Timeout   time.Duration
	FetchSize int

	// KeyProperty receives the generated key of an insert.
	KeyProperty string
}

// ResultMap defines how rows become values of Type. A nil Type or a map type
// produces map[string]any rows.
type ResultMap struct {
	ID          string
	Type        reflect.Type
	Mappings    []Mapping
	AutoMapping *bool
}

// Mapping maps a column, a nested result map or a nested select onto a property.
type Mapping struct {
	Property string
	Column   string
	ID       bool
	DBType   string
	Handler  string

	NestedResultMap string
	NestedSelect    string
	// Composites passes several columns to a nested select, keyed by the
	// parameter name the nested statement reads.
	Composites map[string]string

	ColumnPrefix   string
	NotNullColumns []string
	// Lazy overrides lazy_loading_enabled for a nested select. The property
	// must be a lazy.Value.
	Lazy *bool
}

// CacheDef configures the second-level cache of a namespace.
type CacheDef struct {
	// Type names a custom implementation registered with
	// WithCacheImplementations. Empty selects the built-in store.
	Type          string
	Eviction      string
	Size          int
	FlushInterval time.Duration
	// ReadWrite defaults to true: callers get copies of cached values.
	ReadWrite       *bool
	Blocking        bool
	BlockingTimeout time.Duration
	Properties      map[string]any
}

// Bool returns a pointer to b, for the optional flags of the definitions.
func Bool(b bool) *bool { return &b }
