// Package config provides the runtime settings of a leapmap configuration.
// Settings can be built in code or loaded with Load from defaults, an
// optional YAML file and LEAPMAP_* environment variables.
package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AutoMappingBehavior controls which columns are mapped without an explicit mapping.
type AutoMappingBehavior string

// AutoMappingBehavior values.
const (
	// AutoMappingNone disables auto-mapping; only declared mappings apply.
	AutoMappingNone AutoMappingBehavior = "none"
	// AutoMappingPartial auto-maps result maps that have no nested result maps.
	AutoMappingPartial AutoMappingBehavior = "partial"
	// AutoMappingFull auto-maps every result map, nested ones included.
	AutoMappingFull AutoMappingBehavior = "full"
)

// UnknownColumnBehavior controls what happens when an auto-mapped column has
// no matching property.
type UnknownColumnBehavior string

// UnknownColumnBehavior values.
const (
	UnknownColumnNone    UnknownColumnBehavior = "none"
	UnknownColumnWarning UnknownColumnBehavior = "warning"
	UnknownColumnFailing UnknownColumnBehavior = "failing"
)

// LocalCacheScope controls how long the per-session local cache keeps results.
type LocalCacheScope string

// LocalCacheScope values.
const (
	// LocalCacheSession keeps results until the session writes or the cache
	// is cleared.
	LocalCacheSession LocalCacheScope = "session"
	// LocalCacheStatement keeps results only while one top-level select and
	// its nested selects run.
	LocalCacheStatement LocalCacheScope = "statement"
)

// Settings holds the behavior switches shared by every statement of a configuration.
type Settings struct {
	CacheEnabled                     bool                  `koanf:"cache_enabled" yaml:"cache_enabled"`
	LazyLoadingEnabled               bool                  `koanf:"lazy_loading_enabled" yaml:"lazy_loading_enabled"`
	AggressiveLazyLoading            bool                  `koanf:"aggressive_lazy_loading" yaml:"aggressive_lazy_loading"`
	LazyLoadTriggerMethods           []string              `koanf:"lazy_load_trigger_methods" yaml:"lazy_load_trigger_methods"`
	AutoMappingBehavior              AutoMappingBehavior   `koanf:"auto_mapping_behavior" yaml:"auto_mapping_behavior"`
	AutoMappingUnknownColumnBehavior UnknownColumnBehavior `koanf:"auto_mapping_unknown_column_behavior" yaml:"auto_mapping_unknown_column_behavior"`
	MapUnderscoreToCamelCase         bool                  `koanf:"map_underscore_to_camel_case" yaml:"map_underscore_to_camel_case"`
	CallSettersOnNulls               bool                  `koanf:"call_setters_on_nulls" yaml:"call_setters_on_nulls"`
	ReturnInstanceForEmptyRow        bool                  `koanf:"return_instance_for_empty_row" yaml:"return_instance_for_empty_row"`
	DefaultStatementTimeout          time.Duration         `koanf:"default_statement_timeout" yaml:"default_statement_timeout"`
	DefaultFetchSize                 int                   `koanf:"default_fetch_size" yaml:"default_fetch_size"`
	LenientPropertyAccess            bool                  `koanf:"lenient_property_access" yaml:"lenient_property_access"`
	ShrinkWhitespacesInSQL           bool                  `koanf:"shrink_whitespaces_in_sql" yaml:"shrink_whitespaces_in_sql"`
	UseActualParamName               bool                  `koanf:"use_actual_param_name" yaml:"use_actual_param_name"`
	SafeRowBoundsEnabled             bool                  `koanf:"safe_row_bounds_enabled" yaml:"safe_row_bounds_enabled"`
	NullableOnForEach                bool                  `koanf:"nullable_on_foreach" yaml:"nullable_on_foreach"`
	LogPrefix                        string                `koanf:"log_prefix" yaml:"log_prefix"`
	StatementCacheSize               int                   `koanf:"statement_cache_size" yaml:"statement_cache_size"`
	LocalCacheScope                  LocalCacheScope       `koanf:"local_cache_scope" yaml:"local_cache_scope"`
	UseGeneratedKeys                 bool                  `koanf:"use_generated_keys" yaml:"use_generated_keys"`
	// DBTypeForNull is the type hint sent for null values whose placeholder
	// names no type, e.g. "NULL", "VARCHAR" or "OTHER".
	DBTypeForNull string `koanf:"db_type_for_null" yaml:"db_type_for_null"`
}

// Default configuration values.
const (
	DefaultAutoMappingBehavior   = AutoMappingPartial
	DefaultUnknownColumnBehavior = UnknownColumnNone
	DefaultLocalCacheScope       = LocalCacheStatement
	DefaultDBTypeForNull         = "NULL"
)

// DefaultLazyLoadTriggerMethods are the lazy cell methods that force loading.
var DefaultLazyLoadTriggerMethods = []string{"Equal", "String", "MarshalJSON"}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		CacheEnabled:                     true,
		LazyLoadTriggerMethods:           append([]string(nil), DefaultLazyLoadTriggerMethods...),
		AutoMappingBehavior:              DefaultAutoMappingBehavior,
		AutoMappingUnknownColumnBehavior: DefaultUnknownColumnBehavior,
		ShrinkWhitespacesInSQL:           true,
		UseActualParamName:               true,
		LocalCacheScope:                  DefaultLocalCacheScope,
		UseGeneratedKeys:                 true,
		DBTypeForNull:                    DefaultDBTypeForNull,
	}
}

// ApplyDefaults fills zero-valued enum fields with their defaults.
func (s *Settings) ApplyDefaults() {
	if s.AutoMappingBehavior == "" {
		s.AutoMappingBehavior = DefaultAutoMappingBehavior
	}
	if s.AutoMappingUnknownColumnBehavior == "" {
		s.AutoMappingUnknownColumnBehavior = DefaultUnknownColumnBehavior
	}
	if s.LazyLoadTriggerMethods == nil {
		s.LazyLoadTriggerMethods = append([]string(nil), DefaultLazyLoadTriggerMethods...)
	}
	if s.LocalCacheScope == "" {
		s.LocalCacheScope = DefaultLocalCacheScope
	}
	if s.DBTypeForNull == "" {
		s.DBTypeForNull = DefaultDBTypeForNull
	}
}

// Validate checks enum values and numeric bounds.
func (s *Settings) Validate() error {
	switch AutoMappingBehavior(strings.ToLower(string(s.AutoMappingBehavior))) {
	case AutoMappingNone, AutoMappingPartial, AutoMappingFull:
		s.AutoMappingBehavior = AutoMappingBehavior(strings.ToLower(string(s.AutoMappingBehavior)))
	default:
		return &SettingError{Key: "auto_mapping_behavior", Value: string(s.AutoMappingBehavior), Allowed: []string{"none", "partial", "full"}}
	}
	switch UnknownColumnBehavior(strings.ToLower(string(s.AutoMappingUnknownColumnBehavior))) {
	case UnknownColumnNone, UnknownColumnWarning, UnknownColumnFailing:
		s.AutoMappingUnknownColumnBehavior = UnknownColumnBehavior(strings.ToLower(string(s.AutoMappingUnknownColumnBehavior)))
	default:
		return &SettingError{Key: "auto_mapping_unknown_column_behavior", Value: string(s.AutoMappingUnknownColumnBehavior), Allowed: []string{"none", "warning", "failing"}}
	}
	switch LocalCacheScope(strings.ToLower(string(s.LocalCacheScope))) {
	case LocalCacheSession, LocalCacheStatement:
		s.LocalCacheScope = LocalCacheScope(strings.ToLower(string(s.LocalCacheScope)))
	default:
		return &SettingError{Key: "local_cache_scope", Value: string(s.LocalCacheScope), Allowed: []string{"session", "statement"}}
	}
	if s.DefaultStatementTimeout < 0 {
		return &SettingError{Key: "default_statement_timeout", Value: s.DefaultStatementTimeout.String()}
	}
	if s.DefaultFetchSize < 0 {
		return &SettingError{Key: "default_fetch_size", Value: fmt.Sprint(s.DefaultFetchSize)}
	}
	if s.StatementCacheSize < 0 {
		return &SettingError{Key: "statement_cache_size", Value: fmt.Sprint(s.StatementCacheSize)}
	}
	return nil
}

// IsLazyLoadTrigger reports whether method is configured to force lazy loading.
func (s *Settings) IsLazyLoadTrigger(method string) bool {
	for _, m := range s.LazyLoadTriggerMethods {
		if strings.EqualFold(strings.TrimSpace(m), method) {
			return true
		}
	}
	return false
}

// WriteYAML writes the settings as a YAML document readable by Load.
func (s Settings) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(settingsDocument(s)); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return enc.Close()
}

// settingsDocument renders durations as strings so the document round-trips
// through koanf's duration decoding.
func settingsDocument(s Settings) map[string]any {
	return map[string]any{
		"cache_enabled":                        s.CacheEnabled,
		"lazy_loading_enabled":                 s.LazyLoadingEnabled,
		"aggressive_lazy_loading":              s.AggressiveLazyLoading,
		"lazy_load_trigger_methods":            s.LazyLoadTriggerMethods,
		"auto_mapping_behavior":                string(s.AutoMappingBehavior),
		"auto_mapping_unknown_column_behavior": string(s.AutoMappingUnknownColumnBehavior),
		"map_underscore_to_camel_case":         s.MapUnderscoreToCamelCase,
		"call_setters_on_nulls":                s.CallSettersOnNulls,
		"return_instance_for_empty_row":        s.ReturnInstanceForEmptyRow,
		"default_statement_timeout":            s.DefaultStatementTimeout.String(),
		"default_fetch_size":                   s.DefaultFetchSize,
		"lenient_property_access":              s.LenientPropertyAccess,
		"shrink_whitespaces_in_sql":            s.ShrinkWhitespacesInSQL,
		"use_actual_param_name":                s.UseActualParamName,
		"safe_row_bounds_enabled":              s.SafeRowBoundsEnabled,
		"nullable_on_foreach":                  s.NullableOnForEach,
		"log_prefix":                           s.LogPrefix,
		"statement_cache_size":                 s.StatementCacheSize,
		"local_cache_scope":                    string(s.LocalCacheScope),
		"use_generated_keys":                   s.UseGeneratedKeys,
		"db_type_for_null":                     s.DBTypeForNull,
	}
}

// SettingError is returned when a setting has an invalid value.
type SettingError struct {
	Key     string
	Value   string
	Allowed []string
}

func (e *SettingError) Error() string {
	if len(e.Allowed) > 0 {
		return fmt.Sprintf("invalid value %q for setting %s (allowed: %s)", e.Value, e.Key, strings.Join(e.Allowed, ", "))
	}
	return fmt.Sprintf("invalid value %q for setting %s", e.Value, e.Key)
}
