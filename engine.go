// Package engine is the module's public surface (§6): four program-level
// entry points — Index, BuildGraphs, RunTaint (which also performs the
// flow-audit write), and ValidateSchema — that wire the three stages and
// two stores together.
// Each opens only the store connections its stage needs, in the
// direction the dual-store contract allows, and returns a typed error
// (from internal/engine) the moment something in that stage cannot
// proceed rather than patching around it. The CLI front-end, workset
// selection, and report rendering this package's callers would need are
// explicitly out of scope (§1 Non-goals) — this is the library core.
package engine

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/sastcore/engine/internal/audit"
	"github.com/sastcore/engine/internal/config"
	"github.com/sastcore/engine/internal/contract"
	coreerrors "github.com/sastcore/engine/internal/engine"
	"github.com/sastcore/engine/internal/graphstore"
	"github.com/sastcore/engine/internal/index"
	"github.com/sastcore/engine/internal/store"
	"github.com/sastcore/engine/internal/taint"
	"github.com/sastcore/engine/internal/taint/sanitizer"
	"github.com/sastcore/engine/internal/telemetry"
)

// IndexStats is Stage 1's result, re-exported at the program boundary.
type IndexStats = index.Stats

// GraphStats is Stage 2b's result, re-exported at the program boundary.
type GraphStats = graphstore.Stats

// TaintStats summarizes Stage 3 end to end: analysis plus the audit write.
type TaintStats struct {
	Findings   []taint.Finding
	AuditStats audit.Stats
}

// Index runs Stage 1 over workset, writing a fresh repo-index store at
// cfg.RepoIndex (§4.3). Per-file extraction failures are recorded in the
// returned Stats, not returned as an error — only a condition that aborts
// the whole stage (e.g. the store can't be opened) is.
func Index(ctx context.Context, workset []string, cfg config.Config, logger *telemetry.Logger, metrics *telemetry.StageMetrics) (IndexStats, error) {
	return index.Run(ctx, workset, cfg, logger, metrics)
}

// BuildGraphs runs Stage 2b (§4.6) against the repo-index store Index
// already populated, writing a fresh graph store at cfg.GraphDB. Stage 2a
// (internal/resolve) is exercised internally by internal/graphstore — it
// is never a separate program-level entry point since nothing outside
// graph construction consumes its answers.
func BuildGraphs(cfg config.Config, logger *telemetry.Logger, metrics *telemetry.StageMetrics) (GraphStats, error) {
	var stats GraphStats

	repo, err := sql.Open("sqlite", cfg.RepoIndex+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return stats, fmt.Errorf("engine: open repo-index %s: %w", cfg.RepoIndex, err)
	}
	defer repo.Close()
	if err := validateConn(repo, cfg.RepoIndex, contract.RepoIndex); err != nil {
		return stats, err
	}

	gs, err := store.Open(cfg.GraphDB, contract.GraphStore, true, cfg.BatchSize, logger)
	if err != nil {
		return stats, fmt.Errorf("engine: open graph store %s: %w", cfg.GraphDB, err)
	}
	defer gs.Close()

	b := graphstore.Open(repo, gs, logger, metrics)
	return b.Run()
}

// RunTaint runs Stage 3 (§4.7): it sweeps backward from every recognized
// sink over the already-built graph store using rules (DefaultRules if
// nil), then writes every finding through internal/audit into the
// repo-index store's resolved_flow_audit table and its vulnerabilities-only
// taint_flows mirror — the only tables Stage 3 ever writes to there (§5).
func RunTaint(cfg config.Config, rules []sanitizer.Rule) (TaintStats, error) {
	var stats TaintStats

	repo, err := sql.Open("sqlite", cfg.RepoIndex+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return stats, fmt.Errorf("engine: open repo-index %s: %w", cfg.RepoIndex, err)
	}
	if err := validateConn(repo, cfg.RepoIndex, contract.RepoIndex); err != nil {
		repo.Close()
		return stats, err
	}

	graph, err := sql.Open("sqlite", cfg.GraphDB+"?_pragma=busy_timeout(5000)")
	if err != nil {
		repo.Close()
		return stats, fmt.Errorf("engine: open graph store %s: %w", cfg.GraphDB, err)
	}
	defer graph.Close()

	if rules == nil {
		rules = sanitizer.DefaultRules()
	}
	a, err := taint.Open(repo, graph, rules, taint.Config{MaxDepth: cfg.MaxDepthTaint, KLimit: cfg.KLimitAccessPath})
	if err != nil {
		repo.Close()
		return stats, err
	}
	findings, err := a.Run()
	repo.Close() // release the read connection before reopening for the audit write below
	if err != nil {
		return stats, err
	}
	stats.Findings = findings

	writer, err := store.Open(cfg.RepoIndex, contract.RepoIndex, false, cfg.BatchSize, nil)
	if err != nil {
		return stats, fmt.Errorf("engine: reopen repo-index %s for audit write: %w", cfg.RepoIndex, err)
	}
	defer writer.Close()
	auditStats, err := audit.Write(writer, findings)
	if err != nil {
		return stats, err
	}
	stats.AuditStats = auditStats
	return stats, nil
}

// ValidateSchema opens both stores and validates their live schema against
// the contract, without writing anything.
func ValidateSchema(cfg config.Config) error {
	repo, err := sql.Open("sqlite", cfg.RepoIndex+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("engine: open repo-index %s: %w", cfg.RepoIndex, err)
	}
	defer repo.Close()
	if err := validateConn(repo, cfg.RepoIndex, contract.RepoIndex); err != nil {
		return err
	}

	graph, err := sql.Open("sqlite", cfg.GraphDB+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("engine: open graph store %s: %w", cfg.GraphDB, err)
	}
	defer graph.Close()
	return validateConn(graph, cfg.GraphDB, contract.GraphStore)
}

func validateConn(db *sql.DB, storeName string, c *contract.Contract) error {
	if err := c.Validate(db); err != nil {
		violation, _ := err.(*contract.SchemaContractViolation)
		return &coreerrors.SchemaContractViolation{Store: storeName, Cause: violation}
	}
	return nil
}
