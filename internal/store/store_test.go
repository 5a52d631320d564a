package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sastcore/engine/internal/contract"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repo_index.db")
	s, err := Open(path, contract.RepoIndex, true, 1000, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBegin_RejectsNestedTransaction(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Begin())
	defer s.Rollback()

	err := s.Begin()
	assert.Error(t, err)
}

func TestAdd_UnknownTableRejected(t *testing.T) {
	s := openTestStore(t)
	err := s.Add("not_a_table", Row{})
	assert.Error(t, err)
}

func TestFlushAll_CFGBlockIDFixup(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Begin())

	blockID, err := s.AddCFGBlock("a.py", "foo", "entry", 1, 1)
	require.NoError(t, err)
	assert.Less(t, blockID, int64(0), "temporary block ID must be negative before flush")

	require.NoError(t, s.Add("cfg_edges", Row{
		"source_block_id": blockID, "target_block_id": blockID, "edge_type": "normal",
	}))
	require.NoError(t, s.Add("cfg_block_statements", Row{
		"block_id": blockID, "seq": 0, "statement_type": "return", "line": 2, "detail": "",
	}))

	require.NoError(t, s.FlushAll())
	require.NoError(t, s.Commit())

	var realID int64
	require.NoError(t, s.DB().QueryRow("SELECT id FROM cfg_blocks WHERE function_name = 'foo'").Scan(&realID))
	assert.Greater(t, realID, int64(0))

	var sourceID, targetID int64
	require.NoError(t, s.DB().QueryRow("SELECT source_block_id, target_block_id FROM cfg_edges").Scan(&sourceID, &targetID))
	assert.Equal(t, realID, sourceID, "cfg_edges foreign key must be rewritten to the real autoincrement ID")
	assert.Equal(t, realID, targetID)

	var stmtBlockID int64
	require.NoError(t, s.DB().QueryRow("SELECT block_id FROM cfg_block_statements").Scan(&stmtBlockID))
	assert.Equal(t, realID, stmtBlockID)
}

func TestAdd_DefensiveDefaultSubstitutesSentinel(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Begin())

	require.NoError(t, s.Add("files", Row{
		"path": "x.py", "language": "python", "size_bytes": 10, "content_hash": "", "parse_status": "ok",
	}))
	require.NoError(t, s.FlushAll())
	require.NoError(t, s.Commit())

	var hash string
	require.NoError(t, s.DB().QueryRow("SELECT content_hash FROM files WHERE path = 'x.py'").Scan(&hash))
	assert.Equal(t, "unknown", hash)
}

func TestChunkStrings_SplitsAt900(t *testing.T) {
	ids := make([]string, 2500)
	for i := range ids {
		ids[i] = "id"
	}
	chunks := ChunkStrings(ids)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 900)
	assert.Len(t, chunks[1], 900)
	assert.Len(t, chunks[2], 700)
}

func TestINPlaceholders(t *testing.T) {
	assert.Equal(t, "(?, ?, ?)", INPlaceholders(3))
	assert.Equal(t, "()", INPlaceholders(0))
}
