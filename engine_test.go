package engine

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

func openRepoIndexForAssertions(path string) (*sql.DB, error) {
	return sql.Open("sqlite", path)
}

// TestPipeline_IndexThenGraphThenTaint runs all three stages end to end
// against a single Python handler where a request parameter flows
// unsanitized into a db.query call, and confirms a vulnerable finding
// comes out the other side and lands in resolved_flow_audit.
func TestPipeline_IndexThenGraphThenTaint(t *testing.T) {
	dir := t.TempDir()
	src := "def handler(request):\n" +
		"    user_id = request.GET.get(\"id\")\n" +
		"    query = user_id\n" +
		"    db.query(query)\n"
	path := filepath.Join(dir, "views.py")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	cfg := config.Default(dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.RepoIndex), 0o755))

	idxStats, err := Index(context.Background(), []string{path}, cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, idxStats.FilesIndexed)
	assert.Empty(t, idxStats.Failures)

	graphStats, err := BuildGraphs(cfg, nil, nil)
	require.NoError(t, err)
	assert.Greater(t, graphStats.NodesEmitted, 0)
	assert.Greater(t, graphStats.EdgesEmitted, 0)

	require.NoError(t, ValidateSchema(cfg))

	taintStats, err := RunTaint(cfg, nil)
	require.NoError(t, err)
	require.NotEmpty(t, taintStats.Findings)

	f := taintStats.Findings[0]
	assert.Equal(t, "vulnerable", f.Status)
	assert.Equal(t, path, f.SinkFile)
	assert.Equal(t, 1, taintStats.AuditStats.Vulnerable)

	db, err := openRepoIndexForAssertions(cfg.RepoIndex)
	require.NoError(t, err)
	defer db.Close()
	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM resolved_flow_audit WHERE status = 'vulnerable'`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestValidateSchema_MissingStoreFileErrors(t *testing.T) {
	cfg := config.Default(t.TempDir())
	err := ValidateSchema(cfg)
	require.Error(t, err, "a store file that was never created cannot pass schema validation")
}
