package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_AppliesDocumentedDefaults(t *testing.T) {
	cfg := Default("/srv/project")

	assert.Equal(t, "/srv/project/.pf/repo_index.db", cfg.RepoIndex)
	assert.Equal(t, "/srv/project/.pf/graphs.db", cfg.GraphDB)
	assert.Equal(t, 1000, cfg.BatchSize)
	assert.Equal(t, 10, cfg.MaxDepthTaint)
	assert.Equal(t, 5, cfg.KLimitAccessPath)
	assert.Equal(t, 600, cfg.TimeoutPerFileSec)
	assert.Equal(t, JSXBoth, cfg.JSXMode)
	assert.Equal(t, DedupShortest, cfg.DedupPaths)
	assert.True(t, cfg.StrictSchema)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_OverlaysYAMLOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_workers: 8\nbatch_size: 500\n"), 0o644))

	cfg, err := Load(path, dir)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.MaxWorkers)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, 10, cfg.MaxDepthTaint, "unset fields keep their default")
}

func TestValidate_RejectsOutOfRangeValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(c *Config)
	}{
		{"missing root dir", func(c *Config) { c.RootDir = "" }},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }},
		{"zero max depth", func(c *Config) { c.MaxDepthTaint = 0 }},
		{"zero k limit", func(c *Config) { c.KLimitAccessPath = 0 }},
		{"bad jsx mode", func(c *Config) { c.JSXMode = "weird" }},
		{"bad dedup mode", func(c *Config) { c.DedupPaths = "weird" }},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default("/srv/project")
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
