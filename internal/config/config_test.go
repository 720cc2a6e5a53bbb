package config

import "testing"

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.DefaultPageSize != 10 {
		t.Fatalf("DefaultPageSize = %d, want 10", cfg.DefaultPageSize)
	}
	if cfg.PreviewMaxChars != 300 {
		t.Fatalf("PreviewMaxChars = %d, want 300", cfg.PreviewMaxChars)
	}
	if cfg.RawMaxChars != 40_000 {
		t.Fatalf("RawMaxChars = %d, want 40000", cfg.RawMaxChars)
	}
	if cfg.MaxConcurrentTasks != 2 {
		t.Fatalf("MaxConcurrentTasks = %d, want 2", cfg.MaxConcurrentTasks)
	}
	if cfg.SearchMaxHits != 10_000 {
		t.Fatalf("SearchMaxHits = %d, want 10000", cfg.SearchMaxHits)
	}
	if cfg.JSONValueMaxBytes != 50*1024*1024 {
		t.Fatalf("JSONValueMaxBytes = %d, want 50MiB", cfg.JSONValueMaxBytes)
	}
}

func TestLoadFallsBackToDefaultsWithoutConfigFile(t *testing.T) {
	// The test binary's own directory almost never carries a datalens.yml,
	// so Load should silently fall back to Default() rather than erroring.
	cfg := Load()
	if cfg.DefaultPageSize <= 0 {
		t.Fatalf("DefaultPageSize = %d, want a positive default", cfg.DefaultPageSize)
	}
}
