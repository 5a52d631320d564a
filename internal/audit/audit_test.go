package audit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/sastcore/engine/internal/contract"
	"github.com/sastcore/engine/internal/store"
	"github.com/sastcore/engine/internal/taint"
)

func openRepoIndexStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repo_index.db")
	s, err := store.Open(path, contract.RepoIndex, true, 1000, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleFindings() []taint.Finding {
	return []taint.Finding{
		{
			SourceFile: "views.py", SourceLine: 2, SourceVarRoot: "user_id",
			SinkFile: "views.py", SinkLine: 4, SinkFunction: "handler",
			Status: "vulnerable", Hops: 2,
			Path:     []taint.PathStep{{NodeID: "a"}, {NodeID: "b"}},
			Category: "sql_injection", Severity: "critical",
		},
		{
			SourceFile: "views.py", SourceLine: 8, SourceVarRoot: "raw_name",
			SinkFile: "views.py", SinkLine: 12, SinkFunction: "other_handler",
			Status: "sanitized", Hops: 1,
			Path:          []taint.PathStep{{NodeID: "c"}},
			SanitizerRule: "saniz-escape",
			Category:      "xss", Severity: "high",
		},
	}
}

func TestWrite_PersistsResolvedFlowAuditAndTaintFlowsMirror(t *testing.T) {
	s := openRepoIndexStore(t)
	stats, err := Write(s, sampleFindings())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.RecordsWritten)
	assert.Equal(t, 1, stats.Vulnerable)
	assert.Equal(t, 1, stats.Sanitized)

	db := s.DB()
	var auditCount, flowCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM resolved_flow_audit`).Scan(&auditCount))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM taint_flows`).Scan(&flowCount))
	assert.Equal(t, 2, auditCount)
	assert.Equal(t, 1, flowCount, "only the vulnerable finding mirrors into taint_flows")

	var status, pathJSON string
	require.NoError(t, db.QueryRow(
		`SELECT status, path_json FROM resolved_flow_audit WHERE sink_line = 4`).Scan(&status, &pathJSON))
	assert.Equal(t, "vulnerable", status)
	assert.Contains(t, pathJSON, "a")
}

func TestWrite_EmptyFindingsIsANoOp(t *testing.T) {
	s := openRepoIndexStore(t)
	stats, err := Write(s, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.RecordsWritten)

	var count int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM resolved_flow_audit`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestBuildSARIF_OneRulePerCategoryAndCodeFlowForEachFinding(t *testing.T) {
	report, err := BuildSARIF(sampleFindings())
	require.NoError(t, err)
	require.Len(t, report.Runs, 1)

	run := report.Runs[0]
	assert.Len(t, run.Tool.Driver.Rules, 2, "one rule per distinct category")
	assert.Len(t, run.Results, 2)

	for _, r := range run.Results {
		assert.NotEmpty(t, r.CodeFlows, "every result carries a reconstructed code flow")
	}
}
