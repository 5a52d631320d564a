// Package config defines the single Config value object passed explicitly
// into every stage entry point (§6). There is no package-level global
// configuration; CLI-side config loading is out of scope for the core,
// but the value object and its YAML loader live here because every stage
// needs a concrete type to accept.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// JSXMode controls whether JSX/TSX files are indexed once (transformed
// only) or twice (transformed + preserved, see §4.3 "Two-pass JSX
// extraction").
type JSXMode string

const (
	JSXTransformedOnly JSXMode = "transformed_only"
	JSXBoth            JSXMode = "both"
)

// DedupPaths controls flow-audit dedup output: keep the shortest/first
// path per dedup group, or enumerate all contributing paths.
type DedupPaths string

const (
	DedupShortest DedupPaths = "shortest"
	DedupAll      DedupPaths = "all"
)

// Config is the engine's single configuration value object (§6).
type Config struct {
	RootDir    string `yaml:"root_dir"`
	RepoIndex  string `yaml:"repo_index_path"`
	GraphDB    string `yaml:"graph_db_path"`
	MaxWorkers int    `yaml:"max_workers"`
	BatchSize  int    `yaml:"batch_size"`

	MaxDepthTaint     int `yaml:"max_depth_taint"`
	KLimitAccessPath  int `yaml:"k_limit_access_path"`
	TimeoutPerFileSec int `yaml:"timeout_per_file_sec"`

	JSXMode      JSXMode    `yaml:"jsx_mode"`
	EmitGraphJSON bool      `yaml:"emit_graph_json"`
	DedupPaths   DedupPaths `yaml:"dedup_paths"`
	StrictSchema bool       `yaml:"strict_schema"`
}

// Default returns the configuration with every documented default applied,
// rooted at rootDir.
func Default(rootDir string) Config {
	return Config{
		RootDir:           rootDir,
		RepoIndex:         filepath.Join(rootDir, ".pf", "repo_index.db"),
		GraphDB:           filepath.Join(rootDir, ".pf", "graphs.db"),
		MaxWorkers:        0, // 0 means "computed from runtime.NumCPU()", see internal/index
		BatchSize:         1000,
		MaxDepthTaint:     10,
		KLimitAccessPath:  5,
		TimeoutPerFileSec: 600,
		JSXMode:           JSXBoth,
		EmitGraphJSON:     false,
		DedupPaths:        DedupShortest,
		StrictSchema:      true,
	}
}

// Load reads a YAML configuration file and overlays it onto Default(rootDir)
// for whatever fields it sets.
func Load(path, rootDir string) (Config, error) {
	cfg := Default(rootDir)
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// GraphJSONPath returns the optional JSON mirror path for the graph store.
func (c Config) GraphJSONPath() string {
	return filepath.Join(c.RootDir, ".pf", "graphs.json")
}

// TaintDumpPath returns the optional backward-compatible JSON dump path
// for resolved_flow_audit.
func (c Config) TaintDumpPath() string {
	return filepath.Join(c.RootDir, ".pf", "raw", "taint_analysis.json")
}

// Validate rejects a Config with out-of-range or missing required values
// before it is handed to any stage entry point.
func (c Config) Validate() error {
	if c.RootDir == "" {
		return fmt.Errorf("config: root_dir is required")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("config: batch_size must be >= 1, got %d", c.BatchSize)
	}
	if c.MaxDepthTaint <= 0 {
		return fmt.Errorf("config: max_depth_taint must be >= 1, got %d", c.MaxDepthTaint)
	}
	if c.KLimitAccessPath <= 0 {
		return fmt.Errorf("config: k_limit_access_path must be >= 1, got %d", c.KLimitAccessPath)
	}
	if c.TimeoutPerFileSec <= 0 {
		return fmt.Errorf("config: timeout_per_file_sec must be >= 1, got %d", c.TimeoutPerFileSec)
	}
	switch c.JSXMode {
	case JSXTransformedOnly, JSXBoth:
	default:
		return fmt.Errorf("config: jsx_mode %q is not one of {transformed_only, both}", c.JSXMode)
	}
	switch c.DedupPaths {
	case DedupShortest, DedupAll:
	default:
		return fmt.Errorf("config: dedup_paths %q is not one of {shortest, all}", c.DedupPaths)
	}
	return nil
}
