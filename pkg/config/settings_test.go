package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	s, err := Load(LoadOptions{SkipEnv: true})
	require.NoError(t, err)

	assert.True(t, s.CacheEnabled)
	assert.True(t, s.ShrinkWhitespacesInSQL)
	assert.True(t, s.UseActualParamName)
	assert.False(t, s.LazyLoadingEnabled)
	assert.Equal(t, AutoMappingPartial, s.AutoMappingBehavior)
	assert.Equal(t, UnknownColumnNone, s.AutoMappingUnknownColumnBehavior)
	assert.Equal(t, []string{"Equal", "String", "MarshalJSON"}, s.LazyLoadTriggerMethods)
	assert.Zero(t, s.DefaultStatementTimeout)
	assert.Equal(t, LocalCacheStatement, s.LocalCacheScope)
	assert.True(t, s.UseGeneratedKeys)
	assert.Equal(t, "NULL", s.DBTypeForNull)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	content := `
cache_enabled: false
auto_mapping_behavior: full
default_statement_timeout: 5s
map_underscore_to_camel_case: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := Load(LoadOptions{
		File:    path,
		Environ: []string{"LEAPMAP_AUTO_MAPPING_BEHAVIOR=none", "OTHER=1", "LEAPMAP_LAZY_LOAD_TRIGGER_METHODS=String, Equal"},
	})
	require.NoError(t, err)

	assert.False(t, s.CacheEnabled)
	assert.True(t, s.MapUnderscoreToCamelCase)
	assert.Equal(t, 5*time.Second, s.DefaultStatementTimeout)
	assert.Equal(t, AutoMappingNone, s.AutoMappingBehavior, "env should override file")
	assert.Equal(t, []string{"String", "Equal"}, s.LazyLoadTriggerMethods)
}

func TestLoadFromDir_NoFile(t *testing.T) {
	t.Setenv("LEAPMAP_LOG_PREFIX", "app.")
	s, err := LoadFromDir(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "app.", s.LogPrefix)
	assert.True(t, s.CacheEnabled)
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Settings) {}},
		{name: "upper case enum", mutate: func(s *Settings) { s.AutoMappingBehavior = "FULL" }},
		{
			name:    "bad auto mapping",
			mutate:  func(s *Settings) { s.AutoMappingBehavior = "sometimes" },
			wantErr: "auto_mapping_behavior",
		},
		{
			name:    "bad unknown column",
			mutate:  func(s *Settings) { s.AutoMappingUnknownColumnBehavior = "explode" },
			wantErr: "auto_mapping_unknown_column_behavior",
		},
		{name: "session local cache", mutate: func(s *Settings) { s.LocalCacheScope = "SESSION" }},
		{
			name:    "bad local cache scope",
			mutate:  func(s *Settings) { s.LocalCacheScope = "request" },
			wantErr: "local_cache_scope",
		},
		{
			name:    "negative fetch size",
			mutate:  func(s *Settings) { s.DefaultFetchSize = -1 },
			wantErr: "default_fetch_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			var se *SettingError
			require.ErrorAs(t, err, &se)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSettings_WriteYAMLRoundTrip(t *testing.T) {
	s := DefaultSettings()
	s.AggressiveLazyLoading = true
	s.DefaultStatementTimeout = 1500 * time.Millisecond
	s.AutoMappingUnknownColumnBehavior = UnknownColumnWarning
	s.LocalCacheScope = LocalCacheSession
	s.UseGeneratedKeys = false
	s.DBTypeForNull = "VARCHAR"

	var buf bytes.Buffer
	require.NoError(t, s.WriteYAML(&buf))

	path := filepath.Join(t.TempDir(), "dump.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	loaded, err := Load(LoadOptions{File: path, SkipEnv: true})
	require.NoError(t, err)
	assert.Equal(t, s, *loaded)
}

func TestSettings_IsLazyLoadTrigger(t *testing.T) {
	s := DefaultSettings()
	assert.True(t, s.IsLazyLoadTrigger("string"))
	assert.False(t, s.IsLazyLoadTrigger("Get"))
}
