package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config is the engine's full configuration, loaded from a TOML file with
// well-known-location fallback and environment-variable overrides, in that
// order.
type Config struct {
	Cache      CacheConfig      `toml:"cache"`
	Validation ValidationConfig `toml:"validation"`
	Rollback   RollbackConfig   `toml:"rollback"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	Graphstore GraphstoreConfig `toml:"graphstore"`
}

// CacheConfig governs the Tree Cache (spec §4.2).
type CacheConfig struct {
	Enabled        bool   `toml:"enable_cache"`
	Strategy       string `toml:"cache_strategy"` // "memory_only", "disk_and_memory", "memory_with_disk_fallback"
	MaxEntries     int    `toml:"max_cache_entries"`
	MaxMemoryBytes int64  `toml:"max_memory_bytes"`
	StaleTTLMs     int64  `toml:"stale_ttl_ms"`
	DiskDir        string `toml:"disk_dir"`
	SweepInterval  int64  `toml:"sweep_interval_ms"`
}

// ValidationConfig governs the Semantic Validator (spec §4.6).
type ValidationConfig struct {
	SemanticThreshold   float64  `toml:"semantic_threshold"`
	StructuralThreshold float64  `toml:"structural_threshold"`
	ValidateImports     bool     `toml:"validate_imports"`
	SkipSemantic        bool     `toml:"skip_semantic"`
	SkipTypes           []string `toml:"skip_types"`
}

// RollbackConfig governs the Rollback Store (spec §4.7).
type RollbackConfig struct {
	MaxBackupsPerFile int `toml:"max_backups_per_file"`
}

// EmbeddingConfig selects and configures the semantic validator's embedding
// backend.
type EmbeddingConfig struct {
	Provider  string `toml:"provider"` // "ollama", "openai", or "" to disable (structural-only)
	Model     string `toml:"model"`
	Dimension int    `toml:"dimension"`
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"embedding_api_key"`
	BatchSize int    `toml:"batch_size"`
}

// GraphstoreConfig governs the optional persisted cross-file reference graph.
type GraphstoreConfig struct {
	Enabled   bool   `toml:"enabled"`
	URL       string `toml:"url"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// Load reads configuration from path, or failing that from a list of
// well-known locations, then applies environment-variable overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		locations := []string{
			".codesurgeon/config.toml",
			filepath.Join(os.Getenv("HOME"), ".codesurgeon/config.toml"),
			"/etc/codesurgeon/config.toml",
		}
		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				if _, err := toml.DecodeFile(loc, cfg); err == nil {
					break
				}
			}
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// DefaultConfig returns the engine's defaults, matching spec §4's stated
// defaults (100 entries, 200MB, 5 minute staleness, 0.82/0.7 thresholds, 10
// backups per file).
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			Enabled:        true,
			Strategy:       "memory_only",
			MaxEntries:     100,
			MaxMemoryBytes: 200 * 1024 * 1024,
			StaleTTLMs:     5 * 60 * 1000,
			DiskDir:        filepath.Join(os.TempDir(), "roo-ast-cache"),
			SweepInterval:  10 * 60 * 1000,
		},
		Validation: ValidationConfig{
			SemanticThreshold:   0.82,
			StructuralThreshold: 0.7,
			ValidateImports:     true,
			SkipSemantic:        false,
		},
		Rollback: RollbackConfig{
			MaxBackupsPerFile: 10,
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Model:     "nomic-embed-text",
			Dimension: 768,
			BaseURL:   "http://localhost:11434",
			BatchSize: 64,
		},
		Graphstore: GraphstoreConfig{
			Enabled:   false,
			URL:       "ws://localhost:3004",
			Namespace: "codesurgeon",
			Database:  "main",
			Username:  "root",
			Password:  "root",
		},
	}
}

// Validate checks cfg for out-of-range values and returns human-readable
// warnings; it never returns an error, matching the teacher's
// warn-don't-fail convention.
func Validate(cfg *Config) []string {
	var warnings []string

	if cfg.Cache.MaxEntries < 1 {
		warnings = append(warnings, "cache max_cache_entries must be at least 1")
	}
	if cfg.Cache.MaxMemoryBytes < 1 {
		warnings = append(warnings, "cache max_memory_bytes must be positive")
	}
	if cfg.Cache.StaleTTLMs < 0 {
		warnings = append(warnings, "cache stale_ttl_ms cannot be negative")
	}
	switch cfg.Cache.Strategy {
	case "memory_only", "disk_and_memory", "memory_with_disk_fallback":
	default:
		warnings = append(warnings, "cache_strategy must be one of memory_only, disk_and_memory, memory_with_disk_fallback")
	}

	if cfg.Validation.SemanticThreshold < 0 || cfg.Validation.SemanticThreshold > 1 {
		warnings = append(warnings, "semantic_threshold must be between 0 and 1")
	}
	if cfg.Validation.StructuralThreshold < 0 || cfg.Validation.StructuralThreshold > 1 {
		warnings = append(warnings, "structural_threshold must be between 0 and 1")
	}

	if cfg.Rollback.MaxBackupsPerFile < 1 {
		warnings = append(warnings, "max_backups_per_file must be at least 1")
	}
	if cfg.Rollback.MaxBackupsPerFile > 1000 {
		warnings = append(warnings, "max_backups_per_file exceeds reasonable maximum (1000)")
	}

	if cfg.Embedding.Provider != "" {
		if cfg.Embedding.Dimension < 1 || cfg.Embedding.Dimension > 10000 {
			warnings = append(warnings, "embedding dimension must be between 1 and 10000")
		}
		if cfg.Embedding.BatchSize < 1 || cfg.Embedding.BatchSize > 1000 {
			warnings = append(warnings, "embedding batch size must be between 1 and 1000")
		}
	}

	if cfg.Graphstore.Enabled {
		if cfg.Graphstore.URL == "" {
			warnings = append(warnings, "graphstore url cannot be empty when enabled")
		}
		if cfg.Graphstore.Namespace == "" {
			warnings = append(warnings, "graphstore namespace cannot be empty when enabled")
		}
		if cfg.Graphstore.Database == "" {
			warnings = append(warnings, "graphstore database cannot be empty when enabled")
		}
	}

	return warnings
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CODESURGEON_ENABLE_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.Enabled = b
		}
	}
	if v := os.Getenv("CODESURGEON_CACHE_STRATEGY"); v != "" {
		cfg.Cache.Strategy = v
	}
	if v := os.Getenv("CODESURGEON_MAX_CACHE_ENTRIES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxEntries = i
		}
	}
	if v := os.Getenv("CODESURGEON_MAX_MEMORY_BYTES"); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Cache.MaxMemoryBytes = i
		}
	}
	if v := os.Getenv("CODESURGEON_STALE_TTL_MS"); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Cache.StaleTTLMs = i
		}
	}

	if v := os.Getenv("CODESURGEON_SEMANTIC_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Validation.SemanticThreshold = f
		}
	}
	if v := os.Getenv("CODESURGEON_STRUCTURAL_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Validation.StructuralThreshold = f
		}
	}

	if v := os.Getenv("CODESURGEON_MAX_BACKUPS_PER_FILE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Rollback.MaxBackupsPerFile = i
		}
	}

	if v := os.Getenv("CODESURGEON_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("CODESURGEON_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("CODESURGEON_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("CODESURGEON_OLLAMA_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}

	if v := os.Getenv("CODESURGEON_GRAPHSTORE_URL"); v != "" {
		cfg.Graphstore.URL = v
	}
	if v := os.Getenv("CODESURGEON_GRAPHSTORE_NAMESPACE"); v != "" {
		cfg.Graphstore.Namespace = v
	}
	if v := os.Getenv("CODESURGEON_GRAPHSTORE_DATABASE"); v != "" {
		cfg.Graphstore.Database = v
	}
}
