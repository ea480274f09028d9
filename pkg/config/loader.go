package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "LEAPMAP_"

// ConfigFileName is the settings file looked up by LoadFromDir.
const ConfigFileName = "leapmap.yaml"

// ConfigFileNameAlt is the alternate name of the settings file.
const ConfigFileNameAlt = "leapmap.yml"

// LoadOptions controls where Load reads settings from.
type LoadOptions struct {
	// File is an optional YAML settings file. Missing files are an error.
	File string
	// SkipEnv disables LEAPMAP_* environment overrides.
	SkipEnv bool
	// Environ replaces os.Environ as the environment source when set.
	Environ []string
}

// Load builds Settings from defaults, an optional YAML file and environment variables.
// Precedence (highest to lowest): env vars > config file > defaults
func Load(opts LoadOptions) (*Settings, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaultsMap(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", opts.File, err)
		}
	}

	// 3. Environment variables
	// Transform: LEAPMAP_CACHE_ENABLED -> cache_enabled
	if !opts.SkipEnv {
		if err := loadEnv(k, opts.Environ); err != nil {
			return nil, fmt.Errorf("failed to load env vars: %w", err)
		}
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("unable to decode settings: %w", err)
	}
	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFromDir loads settings from leapmap.yaml or leapmap.yml in dir.
// Defaults are returned when neither file exists.
func LoadFromDir(dir string) (*Settings, error) {
	return Load(LoadOptions{File: findConfigFile(dir)})
}

func loadEnv(k *koanf.Koanf, environ []string) error {
	transform := func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}
	if environ == nil {
		return k.Load(env.Provider(EnvPrefix, ".", transform), nil)
	}

	// Explicit environment, parsed the same way the env provider does.
	values := make(map[string]any)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		name := transform(key)
		if name == "lazy_load_trigger_methods" {
			values[name] = splitList(value)
			continue
		}
		values[name] = value
	}
	return k.Load(confmap.Provider(values, "."), nil)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultsMap() map[string]any {
	d := DefaultSettings()
	m := settingsDocument(d)
	// koanf decodes "0s" back into a zero duration.
	m["lazy_load_trigger_methods"] = append([]string(nil), d.LazyLoadTriggerMethods...)
	return m
}

func findConfigFile(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
