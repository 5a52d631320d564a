package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// StageMetrics holds the process-local Prometheus counters for the
// three-stage pipeline's user-visible behavior (§7): files indexed/failed,
// symbols/assignments/CFG blocks created, graph nodes/edges emitted, sinks
// considered/skipped, and paths reported by status.
type StageMetrics struct {
	once sync.Once

	FilesIndexed prometheus.Counter
	FilesFailed  prometheus.Counter

	SymbolsCreated     prometheus.Counter
	AssignmentsCreated prometheus.Counter
	CFGBlocksCreated   prometheus.Counter

	GraphNodesEmitted prometheus.Counter
	GraphEdgesEmitted prometheus.Counter

	SinksConsidered prometheus.Counter
	SinksSkipped    prometheus.Counter

	PathsVulnerable prometheus.Counter
	PathsSanitized  prometheus.Counter

	ExtractionSeconds prometheus.Histogram
	GraphBuildSeconds prometheus.Histogram
	TaintSweepSeconds prometheus.Histogram
}

// NewStageMetrics constructs and registers the engine's counters against
// reg. Each engine run should use its own registry (tests pass a fresh
// prometheus.NewRegistry()) so repeated runs in one process don't collide
// on duplicate registration.
func NewStageMetrics(reg prometheus.Registerer) *StageMetrics {
	m := &StageMetrics{}
	m.once.Do(func() {
		m.FilesIndexed = prometheus.NewCounter(prometheus.CounterOpts{Name: "sastcore_files_indexed_total", Help: "Files successfully indexed in Stage 1"})
		m.FilesFailed = prometheus.NewCounter(prometheus.CounterOpts{Name: "sastcore_files_failed_total", Help: "Files that failed extraction in Stage 1"})

		m.SymbolsCreated = prometheus.NewCounter(prometheus.CounterOpts{Name: "sastcore_symbols_created_total", Help: "Symbol rows written"})
		m.AssignmentsCreated = prometheus.NewCounter(prometheus.CounterOpts{Name: "sastcore_assignments_created_total", Help: "Assignment rows written"})
		m.CFGBlocksCreated = prometheus.NewCounter(prometheus.CounterOpts{Name: "sastcore_cfg_blocks_created_total", Help: "CFG block rows written"})

		m.GraphNodesEmitted = prometheus.NewCounter(prometheus.CounterOpts{Name: "sastcore_graph_nodes_emitted_total", Help: "Graph nodes emitted in Stage 2"})
		m.GraphEdgesEmitted = prometheus.NewCounter(prometheus.CounterOpts{Name: "sastcore_graph_edges_emitted_total", Help: "Graph edges emitted in Stage 2"})

		m.SinksConsidered = prometheus.NewCounter(prometheus.CounterOpts{Name: "sastcore_sinks_considered_total", Help: "Sinks the taint analyzer attempted to resolve"})
		m.SinksSkipped = prometheus.NewCounter(prometheus.CounterOpts{Name: "sastcore_sinks_skipped_total", Help: "Sinks skipped because their graph node could not be resolved"})

		m.PathsVulnerable = prometheus.NewCounter(prometheus.CounterOpts{Name: "sastcore_paths_vulnerable_total", Help: "Resolved flow-audit rows classified VULNERABLE"})
		m.PathsSanitized = prometheus.NewCounter(prometheus.CounterOpts{Name: "sastcore_paths_sanitized_total", Help: "Resolved flow-audit rows classified SANITIZED"})

		buckets := []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300}
		m.ExtractionSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "sastcore_extraction_seconds", Help: "Stage 1 wall-clock duration", Buckets: buckets})
		m.GraphBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "sastcore_graph_build_seconds", Help: "Stage 2 wall-clock duration", Buckets: buckets})
		m.TaintSweepSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "sastcore_taint_sweep_seconds", Help: "Stage 3 wall-clock duration", Buckets: buckets})

		reg.MustRegister(
			m.FilesIndexed, m.FilesFailed,
			m.SymbolsCreated, m.AssignmentsCreated, m.CFGBlocksCreated,
			m.GraphNodesEmitted, m.GraphEdgesEmitted,
			m.SinksConsidered, m.SinksSkipped,
			m.PathsVulnerable, m.PathsSanitized,
			m.ExtractionSeconds, m.GraphBuildSeconds, m.TaintSweepSeconds,
		)
	})
	return m
}
