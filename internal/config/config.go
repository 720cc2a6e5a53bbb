// Package config loads the engine's tunable caps from a YAML file next to
// the host executable, falling back to defaults for anything absent or
// malformed.
//
// Grounded on the teacher's app/settings/settings.go: GetEffectiveSettings
// starts from a defaults struct and overlays a manually-decoded
// map[string]any read from YAML, validating each field's type (and, for
// some fields, its range) before accepting it. This package follows the
// same shape for the engine's own knobs instead of the teacher's UI
// settings (window size, license, sync tokens - none of which apply here).
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EngineConfig holds the knobs named in spec.md (CoreOptions) plus the
// recent-files/settings store location.
type EngineConfig struct {
	DefaultPageSize    int
	PreviewMaxChars    int
	RawMaxChars        int
	MaxConcurrentTasks int
	SearchMaxHits      uint64
	JSONValueMaxBytes  int64
	SQLitePath         string // empty means "use the platform default"
}

// Default mirrors original_source/core/src/engine.rs's CoreOptions::default().
func Default() EngineConfig {
	return EngineConfig{
		DefaultPageSize:    10,
		PreviewMaxChars:    300,
		RawMaxChars:        40_000,
		MaxConcurrentTasks: 2,
		SearchMaxHits:      10_000,
		JSONValueMaxBytes:  50 * 1024 * 1024,
		SQLitePath:         "",
	}
}

// Load returns the effective configuration: defaults overlaid with
// datalens.yml next to the running executable, if present and parseable.
// Any error reading or parsing the file yields the defaults, matching the
// teacher's "if anything goes wrong, return defaults" contract.
func Load() EngineConfig {
	cfg := Default()
	path, err := configFilePath()
	if err != nil {
		return cfg
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return cfg
	}

	if v, ok := m["default_page_size"].(int); ok && v > 0 {
		cfg.DefaultPageSize = v
	}
	if v, ok := m["preview_max_chars"].(int); ok && v >= 0 {
		cfg.PreviewMaxChars = v
	}
	if v, ok := m["raw_max_chars"].(int); ok && v >= 0 {
		cfg.RawMaxChars = v
	}
	if v, ok := m["max_concurrent_tasks"].(int); ok && v > 0 {
		cfg.MaxConcurrentTasks = v
	}
	if v, ok := m["search_max_hits"].(int); ok && v > 0 {
		cfg.SearchMaxHits = uint64(v)
	}
	if v, ok := m["json_value_max_bytes"].(int); ok && v > 0 {
		cfg.JSONValueMaxBytes = int64(v)
	}
	if v, ok := m["sqlite_path"].(string); ok && v != "" {
		cfg.SQLitePath = v
	}
	return cfg
}

func configFilePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(exe), "datalens.yml"), nil
}
