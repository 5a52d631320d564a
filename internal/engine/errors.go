// Package engine holds the small closed set of typed errors stage
// functions return instead of smuggling failures through sentinel values
// (§7, §9 "Tagged error variants"). The program-level entry points (Index,
// BuildGraphs, RunTaint, ValidateSchema) live in the module's root package,
// which imports this one.
package engine

import (
	"fmt"

	"github.com/sastcore/engine/internal/contract"
)

// SchemaContractViolation is raised during ValidateSchema (or implicitly
// at the start of any stage) when the live schema of a store disagrees
// with its declared contract. Always fatal; the run aborts before any
// write. Wraps contract.SchemaContractViolation for callers that only
// need the engine-level taxonomy.
type SchemaContractViolation struct {
	Store string
	Cause *contract.SchemaContractViolation
}

func (e *SchemaContractViolation) Error() string {
	return fmt.Sprintf("schema contract violation in %s: %v", e.Store, e.Cause)
}

func (e *SchemaContractViolation) Unwrap() error { return e.Cause }

// ExtractionFailed marks a single file as failed extraction. It is
// non-fatal: the orchestrator records the file with parse_status=failed
// and continues the stage (§7 kind 2).
type ExtractionFailed struct {
	File   string
	Reason string
}

func (e *ExtractionFailed) Error() string {
	return fmt.Sprintf("extraction failed for %s: %s", e.File, e.Reason)
}

// GraphIntegrityError is fatal: a dangling edge (an endpoint with no
// corresponding node row) or a mode violation (e.g., CFG extracted twice
// for one function) was detected while building the graph store.
type GraphIntegrityError struct {
	EdgeSourceID string
	EdgeTargetID string
	Reason       string
}

func (e *GraphIntegrityError) Error() string {
	return fmt.Sprintf("graph integrity error (%s -> %s): %s", e.EdgeSourceID, e.EdgeTargetID, e.Reason)
}

// TaintAnalysisAborted is fatal: the analyzer cannot proceed, e.g. because
// the graph store is missing. The analyzer never synthesizes a graph on
// the fly as a fallback (§4.7.7).
type TaintAnalysisAborted struct {
	Reason string
}

func (e *TaintAnalysisAborted) Error() string {
	return fmt.Sprintf("taint analysis aborted: %s", e.Reason)
}
