// Package config loads findx's configuration from a YAML file into a
// plain, immutable value — never a package-level global. The value is
// constructed once at the command entry point and passed by value
// into every component's constructor.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration value for a findx process.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Roots     []string        `yaml:"roots" json:"roots"`
	StateDir  string          `yaml:"state_dir" json:"state_dir"`
	Catalog   CatalogConfig   `yaml:"catalog" json:"catalog"`
	Mirror    MirrorConfig    `yaml:"mirror" json:"mirror"`
	Bus       BusConfig       `yaml:"bus" json:"bus"`
	Scan      ScanConfig      `yaml:"scan" json:"scan"`
	Extract   ExtractConfig   `yaml:"extract" json:"extract"`
	Retention RetentionConfig `yaml:"retention" json:"retention"`
	Lexical   LexicalConfig   `yaml:"lexical" json:"lexical"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking" json:"chunking"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// CatalogConfig configures the embedded relational store.
type CatalogConfig struct {
	Path string `yaml:"path" json:"path"`
}

// MirrorConfig configures the content-addressed on-disk mirror tree.
type MirrorConfig struct {
	Root string `yaml:"root" json:"root"`
}

// BusConfig configures the EventBus's two per-subscriber queue bounds.
type BusConfig struct {
	SourceFS   int `yaml:"source_fs" json:"source_fs"`
	MirrorText int `yaml:"mirror_text" json:"mirror_text"`
}

// ScanConfig configures the scanner/watcher's traversal policy.
type ScanConfig struct {
	IncludeGlobs          []string      `yaml:"include_globs" json:"include_globs"`
	ExcludeGlobs          []string      `yaml:"exclude_globs" json:"exclude_globs"`
	MaxFileSizeMB         int64         `yaml:"max_file_size_mb" json:"max_file_size_mb"`
	FollowSymlinks        bool          `yaml:"follow_symlinks" json:"follow_symlinks"`
	HiddenFiles           bool          `yaml:"hidden_files" json:"hidden_files"`
	DebounceWindow        time.Duration `yaml:"debounce_window" json:"debounce_window"`
	AllowOfflineHydration bool          `yaml:"allow_offline_hydration" json:"allow_offline_hydration"`
}

// ExtractConfig configures the extraction worker pool.
type ExtractConfig struct {
	PoolSize     int    `yaml:"pool_size" json:"pool_size"`
	JobsBound    int    `yaml:"jobs_bound" json:"jobs_bound"`
	ExtractorCmd string `yaml:"extractor_cmd" json:"extractor_cmd"`
}

// RetentionConfig configures the retention engine's pruning windows.
type RetentionConfig struct {
	EventsDays         int `yaml:"events_days" json:"events_days"`
	JobsKeepPerFile    int `yaml:"jobs_keep_per_file" json:"jobs_keep_per_file"`
	JobsFailedDays     int `yaml:"jobs_failed_days" json:"jobs_failed_days"`
	FilesTombstoneDays int `yaml:"files_tombstone_days" json:"files_tombstone_days"`
}

// LexicalConfig selects and configures the full-text index backend.
type LexicalConfig struct {
	Backend string `yaml:"backend" json:"backend"` // "sqlite" (default) or "bleve"
	Dir     string `yaml:"dir" json:"dir"`
}

// EmbeddingConfig configures the (optional) dense-vector embedder.
type EmbeddingConfig struct {
	Provider string `yaml:"provider" json:"provider"` // "disabled", "static", "http"
	URL      string `yaml:"url" json:"url"`
	APIKey   string `yaml:"api_key" json:"api_key"`
	Model    string `yaml:"model" json:"model"`
}

// ChunkingConfig configures the mirror builder's chunk boundary strategy.
type ChunkingConfig struct {
	CodeAware bool `yaml:"code_aware" json:"code_aware"`
}

// LoggingConfig configures the logging layer.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	FilePath string `yaml:"file_path" json:"file_path"`
	Stderr   bool   `yaml:"stderr" json:"stderr"`
}

// Default returns a Config populated with the reference implementation's
// defaults: bus bounds of 1024 per topic, an extraction pool of 4 workers
// with a 2048-deep job queue, and the retention engine's four pruning
// windows (events 14d, job history 3-per-file plus 14d for failures,
// tombstoned files 30d).
func Default() Config {
	return Config{
		Version:  1,
		StateDir: filepath.Join(".findx", "state"),
		Catalog:  CatalogConfig{Path: filepath.Join(".findx", "catalog.db")},
		Mirror:   MirrorConfig{Root: filepath.Join(".findx", "raw")},
		Bus: BusConfig{
			SourceFS:   1024,
			MirrorText: 1024,
		},
		Scan: ScanConfig{
			MaxFileSizeMB:  50,
			DebounceWindow: 300 * time.Millisecond,
		},
		Extract: ExtractConfig{
			PoolSize:  4,
			JobsBound: 2048,
		},
		Retention: RetentionConfig{
			EventsDays:         14,
			JobsKeepPerFile:    3,
			JobsFailedDays:     14,
			FilesTombstoneDays: 30,
		},
		Lexical: LexicalConfig{
			Backend: "sqlite",
			Dir:     filepath.Join(".findx", "index"),
		},
		Embedding: EmbeddingConfig{
			Provider: "disabled",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Stderr: true,
		},
	}
}

// Load reads and parses a YAML config file, layering it over Default()
// so an omitted field keeps its default rather than zeroing out.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns Default() unchanged when
// the file does not exist, so a first run needs no config file at all.
func LoadOrDefault(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// GetUserConfigDir returns the directory holding the user-level config
// file (~/.config/findx/ on Linux, per os.UserConfigDir).
func GetUserConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "findx")
	}
	return filepath.Join(dir, "findx")
}

// GetUserConfigPath returns the full path to the user-level config file.
func GetUserConfigPath() string {
	return filepath.Join(GetUserConfigDir(), "config.yaml")
}

// UserConfigExists reports whether a user-level config file is present.
func UserConfigExists() bool {
	_, err := os.Stat(GetUserConfigPath())
	return err == nil
}
