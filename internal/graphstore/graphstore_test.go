package graphstore

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/sastcore/engine/internal/contract"
	"github.com/sastcore/engine/internal/store"
)

func openRepoIndex(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, contract.RepoIndex.Create(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func openGraphStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graphs.db")
	s, err := store.Open(path, contract.GraphStore, true, 1000, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBuildCallGraph_UnresolvedCalleeBecomesGhost(t *testing.T) {
	repo := openRepoIndex(t)
	_, err := repo.Exec(`INSERT INTO files (path, language, size_bytes, content_hash, parse_status) VALUES ('a.py','python',1,'h','ok')`)
	require.NoError(t, err)
	_, err = repo.Exec(`INSERT INTO function_call_args
		(file, line, caller_function, callee_function, argument_index, argument_expr, param_name, callee_file_path)
		VALUES ('a.py', 3, 'handler', 'external_lib.call', 0, 'x', '', NULL)`)
	require.NoError(t, err)

	gs := openGraphStore(t)
	b := Open(repo, gs, nil, nil)
	stats, err := b.Run()
	require.NoError(t, err)
	assert.Greater(t, stats.NodesEmitted, 0)
	assert.Greater(t, stats.EdgesEmitted, 0)

	var ghostCount int
	require.NoError(t, gs.DB().QueryRow("SELECT COUNT(*) FROM nodes WHERE node_type = 'ghost'").Scan(&ghostCount))
	assert.Equal(t, 1, ghostCount)
}

func TestBuildDFG_AssignmentEdgeConnectsSourceToTarget(t *testing.T) {
	repo := openRepoIndex(t)
	_, err := repo.Exec(`INSERT INTO files (path, language, size_bytes, content_hash, parse_status) VALUES ('a.py','python',1,'h','ok')`)
	require.NoError(t, err)
	_, err = repo.Exec(`INSERT INTO assignments (file, line, in_function, target_var, source_expr) VALUES ('a.py', 2, 'handler', 'result', 'user_id')`)
	require.NoError(t, err)
	_, err = repo.Exec(`INSERT INTO assignment_sources (assignment_file, assignment_line, assignment_target, source_var_name) VALUES ('a.py', 2, 'result', 'user_id')`)
	require.NoError(t, err)

	gs := openGraphStore(t)
	b := Open(repo, gs, nil, nil)
	_, err = b.Run()
	require.NoError(t, err)

	var edgeCount int
	require.NoError(t, gs.DB().QueryRow("SELECT COUNT(*) FROM edges WHERE edge_type = 'assignment'").Scan(&edgeCount))
	assert.Equal(t, 1, edgeCount)
}

func TestBuildMiddlewareChains_HubCollapseAndSequencing(t *testing.T) {
	repo := openRepoIndex(t)
	_, err := repo.Exec(`INSERT INTO files (path, language, size_bytes, content_hash, parse_status) VALUES ('routes.js','javascript',1,'h','ok')`)
	require.NoError(t, err)
	_, err = repo.Exec(`INSERT INTO middleware_chains (endpoint_file, endpoint_line, seq, middleware_name, middleware_file) VALUES ('routes.js', 5, 0, 'authenticate', '')`)
	require.NoError(t, err)
	_, err = repo.Exec(`INSERT INTO middleware_chains (endpoint_file, endpoint_line, seq, middleware_name, middleware_file) VALUES ('routes.js', 5, 1, 'authorize', '')`)
	require.NoError(t, err)

	gs := openGraphStore(t)
	b := Open(repo, gs, nil, nil)
	_, err = b.Run()
	require.NoError(t, err)

	var hubEdges, chainEdges int
	require.NoError(t, gs.DB().QueryRow("SELECT COUNT(*) FROM edges WHERE edge_type = 'django_hub'").Scan(&hubEdges))
	require.NoError(t, gs.DB().QueryRow("SELECT COUNT(*) FROM edges WHERE edge_type = 'middleware_next'").Scan(&chainEdges))
	assert.Equal(t, 2, hubEdges, "one hub edge per middleware in the chain")
	assert.Equal(t, 1, chainEdges, "one sequencing edge between the two middlewares")
}

func TestNodeID_CanonicalForm(t *testing.T) {
	assert.Equal(t, "a.py::handler::user_id", NodeID("a.py", "handler", "user_id"))
	assert.Equal(t, "a.py::<module>::<self>", NodeID("a.py", "", ""))
}
