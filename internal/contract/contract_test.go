package contract

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRepoIndex_CreateThenValidate(t *testing.T) {
	db := openMemDB(t)
	require.NoError(t, RepoIndex.Create(db))
	assert.NoError(t, RepoIndex.Validate(db))
}

func TestGraphStore_CreateThenValidate(t *testing.T) {
	db := openMemDB(t)
	require.NoError(t, GraphStore.Create(db))
	assert.NoError(t, GraphStore.Validate(db))
}

func TestValidate_MissingTableIsFatal(t *testing.T) {
	db := openMemDB(t)
	err := RepoIndex.Validate(db)
	require.Error(t, err)

	var violation *SchemaContractViolation
	require.ErrorAs(t, err, &violation)
	assert.NotEmpty(t, violation.Violations)
}

func TestValidate_MissingIndexIsFatal(t *testing.T) {
	db := openMemDB(t)
	require.NoError(t, RepoIndex.Create(db))

	_, err := db.Exec("DROP INDEX idx_symbols_path_span")
	require.NoError(t, err)

	err = RepoIndex.Validate(db)
	require.Error(t, err)

	var violation *SchemaContractViolation
	require.ErrorAs(t, err, &violation)
	found := false
	for _, v := range violation.Violations {
		if v.Table == "symbols" {
			found = true
		}
	}
	assert.True(t, found, "expected a violation against the symbols table")
}

func TestTablesInFlushOrder_CFGBlocksBeforeEdgesAndStatements(t *testing.T) {
	order := RepoIndex.TablesInFlushOrder()

	pos := make(map[string]int, len(order))
	for i, tbl := range order {
		pos[tbl.Name] = i
	}

	assert.Less(t, pos["cfg_blocks"], pos["cfg_edges"])
	assert.Less(t, pos["cfg_blocks"], pos["cfg_block_statements"])
	assert.Less(t, pos["symbols"], pos["refs"])
	assert.Less(t, pos["assignments"], pos["assignment_sources"])
	assert.Less(t, pos["function_returns"], pos["function_return_sources"])
	assert.Less(t, pos["resolved_flow_audit"], pos["taint_flows"]+1)
}

func TestTable_LookupByName(t *testing.T) {
	tbl, ok := RepoIndex.Table("cfg_blocks")
	require.True(t, ok)
	assert.Equal(t, "cfg_blocks", tbl.Name)

	_, ok = RepoIndex.Table("does_not_exist")
	assert.False(t, ok)
}
