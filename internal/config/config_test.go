package config

import (
	"os"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.Cache.Enabled {
		t.Error("expected cache enabled by default")
	}
	if cfg.Cache.MaxEntries != 100 {
		t.Errorf("expected default MaxEntries 100, got %d", cfg.Cache.MaxEntries)
	}
	if cfg.Cache.MaxMemoryBytes != 200*1024*1024 {
		t.Errorf("expected default MaxMemoryBytes 200MB, got %d", cfg.Cache.MaxMemoryBytes)
	}
	if cfg.Cache.StaleTTLMs != 5*60*1000 {
		t.Errorf("expected default StaleTTLMs 5 minutes, got %d", cfg.Cache.StaleTTLMs)
	}
	if cfg.Validation.SemanticThreshold != 0.82 {
		t.Errorf("expected default SemanticThreshold 0.82, got %v", cfg.Validation.SemanticThreshold)
	}
	if cfg.Validation.StructuralThreshold != 0.7 {
		t.Errorf("expected default StructuralThreshold 0.7, got %v", cfg.Validation.StructuralThreshold)
	}
	if cfg.Rollback.MaxBackupsPerFile != 10 {
		t.Errorf("expected default MaxBackupsPerFile 10, got %d", cfg.Rollback.MaxBackupsPerFile)
	}
	if cfg.Graphstore.Enabled {
		t.Error("expected graphstore disabled by default")
	}
}

func TestValidateConfig(t *testing.T) {
	cfg := DefaultConfig()
	if warnings := Validate(cfg); len(warnings) > 0 {
		t.Errorf("expected no validation warnings for default config, got %v", warnings)
	}

	cfg.Validation.SemanticThreshold = 1.5
	warnings := Validate(cfg)
	if !contains(warnings, "semantic_threshold") {
		t.Error("expected validation warning for out-of-range semantic_threshold")
	}

	cfg = DefaultConfig()
	cfg.Rollback.MaxBackupsPerFile = 0
	warnings = Validate(cfg)
	if !contains(warnings, "max_backups_per_file") {
		t.Error("expected validation warning for max_backups_per_file < 1")
	}

	cfg = DefaultConfig()
	cfg.Cache.Strategy = "bogus"
	warnings = Validate(cfg)
	if !contains(warnings, "cache_strategy") {
		t.Error("expected validation warning for unknown cache_strategy")
	}
}

func TestEnvOverrideSemanticThreshold(t *testing.T) {
	origVal := os.Getenv("CODESURGEON_SEMANTIC_THRESHOLD")
	defer func() {
		if origVal == "" {
			os.Unsetenv("CODESURGEON_SEMANTIC_THRESHOLD")
		} else {
			os.Setenv("CODESURGEON_SEMANTIC_THRESHOLD", origVal)
		}
	}()

	os.Setenv("CODESURGEON_SEMANTIC_THRESHOLD", "0.9")

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Validation.SemanticThreshold != 0.9 {
		t.Errorf("expected SemanticThreshold 0.9 from env, got %v", cfg.Validation.SemanticThreshold)
	}
}

func TestEnvOverrideMaxBackupsPerFile(t *testing.T) {
	origVal := os.Getenv("CODESURGEON_MAX_BACKUPS_PER_FILE")
	defer func() {
		if origVal == "" {
			os.Unsetenv("CODESURGEON_MAX_BACKUPS_PER_FILE")
		} else {
			os.Setenv("CODESURGEON_MAX_BACKUPS_PER_FILE", origVal)
		}
	}()

	os.Setenv("CODESURGEON_MAX_BACKUPS_PER_FILE", "25")

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Rollback.MaxBackupsPerFile != 25 {
		t.Errorf("expected MaxBackupsPerFile 25 from env, got %d", cfg.Rollback.MaxBackupsPerFile)
	}
}

func contains(warnings []string, substr string) bool {
	for _, w := range warnings {
		if containsSubstr(w, substr) {
			return true
		}
	}
	return false
}

func containsSubstr(s, substr string) bool {
	if len(substr) == 0 {
		return true
	}
	if len(s) < len(substr) {
		return false
	}
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
