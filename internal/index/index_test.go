package index

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/sastcore/engine/internal/config"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRun_IndexesMixedWorkset(t *testing.T) {
	dir := t.TempDir()
	py := writeFile(t, dir, "views.py", "def handler(request):\n    x = request.GET.get(\"id\")\n    return x\n")
	js := writeFile(t, dir, "routes.js", "app.get(\"/ping\", function f() { return 1; });\n")
	tf := writeFile(t, dir, "main.tf", "resource \"aws_s3_bucket_acl\" \"b\" {\n  acl = \"public-read\"\n}\n")
	writeFile(t, dir, "README.md", "not code")

	cfg := config.Default(dir)
	cfg.RepoIndex = filepath.Join(dir, ".pf", "repo_index.db")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".pf"), 0o755))

	stats, err := Run(context.Background(), []string{py, js, tf}, cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.FilesIndexed)
	assert.Equal(t, 0, stats.FilesFailed)

	db, err := sql.Open("sqlite", cfg.RepoIndex)
	require.NoError(t, err)
	defer db.Close()

	var fileCount int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM files").Scan(&fileCount))
	assert.Equal(t, 3, fileCount)

	var findingCount int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM terraform_findings").Scan(&findingCount))
	assert.Equal(t, 1, findingCount)
}

func TestRun_RecordsExtractionFailureWithoutAbortingStage(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.py", "def f():\n    return 1\n")
	bad := writeFile(t, dir, "bad.py", "def f(:\n  pass\n")

	cfg := config.Default(dir)
	cfg.RepoIndex = filepath.Join(dir, ".pf", "repo_index.db")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".pf"), 0o755))

	stats, err := Run(context.Background(), []string{good, bad}, cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesFailed)
	require.Len(t, stats.Failures, 1)
	assert.Equal(t, bad, stats.Failures[0].File)
}

func TestGetOptimalWorkerCount_NeverExceedsFileCount(t *testing.T) {
	cfg := config.Default("/tmp")
	cfg.MaxWorkers = 16
	assert.Equal(t, 2, getOptimalWorkerCount(cfg, 2))
}

func TestGetOptimalWorkerCount_RespectsExplicitOverride(t *testing.T) {
	cfg := config.Default("/tmp")
	cfg.MaxWorkers = 3
	assert.Equal(t, 3, getOptimalWorkerCount(cfg, 100))
}
