package mapping

import (
	"reflect"
	"strings"

	"github.com/leapstack-labs/leapmap/pkg/core"
)

// ResultMapping maps one column (or nested result) onto one property.
type ResultMapping struct {
	Property string
	Column   string
	ID       bool
	// GoType is the property type, resolved at build time.
	GoType  reflect.Type
	DBType  core.DBType
	Handler string

	// NestedResultMapID groups joined rows into an association or collection.
	NestedResultMapID string
	// NestedSelectID loads the property with a separate statement.
	NestedSelectID string
	// Composites passes several columns to a nested select: {id=user_id,kind=kind}.
	Composites []ResultMapping

	ColumnPrefix   string
	NotNullColumns []string
	Lazy           bool
}

// IsNested reports whether the mapping is resolved from other rows or statements.
func (m *ResultMapping) IsNested() bool {
	return m.NestedResultMapID != "" || m.NestedSelectID != ""
}

// IsCollection reports whether the property holds many values.
func (m *ResultMapping) IsCollection() bool {
	if m.GoType == nil {
		return false
	}
	t := m.GoType
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8
}

// ResultMap describes how rows become values of Type.
type ResultMap struct {
	ID   string
	Type reflect.Type

	Mappings         []*ResultMapping
	IDMappings       []*ResultMapping
	PropertyMappings []*ResultMapping

	// AutoMapping overrides the configured auto-mapping behavior when set.
	AutoMapping *bool

	HasNestedResultMaps bool
	HasNestedQueries    bool

	mappedColumns map[string]struct{}
}

// NewResultMap creates a result map and derives its lookup tables.
func NewResultMap(id string, t reflect.Type, mappings []*ResultMapping, autoMapping *bool) *ResultMap {
	rm := &ResultMap{
		ID:            id,
		Type:          t,
		Mappings:      mappings,
		AutoMapping:   autoMapping,
		mappedColumns: make(map[string]struct{}),
	}
	for _, m := range mappings {
		if m.ID {
			rm.IDMappings = append(rm.IDMappings, m)
		} else {
			rm.PropertyMappings = append(rm.PropertyMappings, m)
		}
		if m.NestedResultMapID != "" {
			rm.HasNestedResultMaps = true
		}
		if m.NestedSelectID != "" {
			rm.HasNestedQueries = true
		}
		if m.Column != "" {
			rm.mappedColumns[strings.ToUpper(m.Column)] = struct{}{}
		}
		for _, c := range m.Composites {
			rm.mappedColumns[strings.ToUpper(c.Column)] = struct{}{}
		}
	}
	if len(rm.IDMappings) == 0 {
		for _, m := range mappings {
			if !m.IsNested() {
				rm.IDMappings = append(rm.IDMappings, m)
			}
		}
	}
	return rm
}

// IsMappedColumn reports whether column (case-insensitive) is explicitly mapped.
func (rm *ResultMap) IsMappedColumn(column string) bool {
	_, ok := rm.mappedColumns[strings.ToUpper(column)]
	return ok
}

// IsMap reports whether rows become map[string]any values.
func (rm *ResultMap) IsMap() bool {
	return rm.Type == nil || rm.Type.Kind() == reflect.Map || rm.Type.Kind() == reflect.Interface
}
