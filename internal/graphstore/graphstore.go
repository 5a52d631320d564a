// Package graphstore implements Stage 2b (Graph Construction, §4.6): it
// reads the repo-index store (read-only) through internal/resolve and
// writes the call graph, data-flow graph, CFG mirror, and framework
// graphs into the graph store. Data flows strictly one way — repo-index
// to graph store — and this package never writes back to repo-index
// (§5 "no back-edges between stores").
package graphstore

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/sastcore/engine/internal/contract"
	"github.com/sastcore/engine/internal/engine"
	"github.com/sastcore/engine/internal/extract"
	"github.com/sastcore/engine/internal/resolve"
	"github.com/sastcore/engine/internal/store"
	"github.com/sastcore/engine/internal/telemetry"
)

// fieldAccessKLimit bounds the depth of a field_access chain a dotted
// assignment source expands into (§4.6 "recursive up to the k-limit").
// It is a package constant rather than a Config field: the chain depth is
// a graph-construction concern, independent of the taint sweep's own
// AccessPath k-limit (internal/taint.Config.KLimit), even though the two
// default to the same value.
const fieldAccessKLimit = 5

// Node and edge type domains for the `nodes.node_type` / `edges.edge_type`
// columns (§3.2).
const (
	NodeVariable   = "variable"
	NodeFunction   = "function"
	NodeCFGBlock   = "cfg_block"
	NodeEndpoint   = "endpoint"
	NodeMiddleware = "middleware"
	NodeORMModel   = "orm_model"
	NodeGhost      = "ghost"

	EdgeCall           = "call"
	EdgeAssignment     = "assignment"
	EdgeReturn         = "return"
	EdgeCallArgument   = "call_argument"
	EdgeFieldAccess    = "field_access"
	EdgeCFGNormal      = "cfg_normal"
	EdgeCFGTrue        = "cfg_true"
	EdgeCFGFalse       = "cfg_false"
	EdgeCFGBack        = "cfg_back"
	EdgeCFGException   = "cfg_exception"
	EdgeMiddlewareNext = "middleware_next"
	EdgeDjangoHub      = "django_hub"
	EdgeORMAccess      = "orm_access"
	EdgeCrossBoundary  = "cross_boundary"
)

// GraphTypes, one per disjoint Stage 2b builder (§3.2 "one discriminated
// schema shared by the call graph, DFG, CFG mirror, and framework graphs").
const (
	GraphCall      = "call_graph"
	GraphDFG       = "dfg"
	GraphCFG       = "cfg"
	GraphFramework = "framework"
)

// Builder constructs every Stage 2b subgraph from one repo-index
// connection into one graph store.
type Builder struct {
	repo     *sql.DB
	resolver *resolve.Resolver
	gs       *store.Store
	logger   *telemetry.Logger
	metrics  *telemetry.StageMetrics

	seenNodes  map[string]bool
	scopeCache map[string]string
}

// Open binds a Builder to an already-open repo-index connection and a
// freshly opened graph store.
func Open(repo *sql.DB, gs *store.Store, logger *telemetry.Logger, metrics *telemetry.StageMetrics) *Builder {
	return &Builder{
		repo: repo, resolver: resolve.Open(repo), gs: gs, logger: logger, metrics: metrics,
		seenNodes:  make(map[string]bool),
		scopeCache: make(map[string]string),
	}
}

// scopeAt resolves the function/method/arrow enclosing (file, line) via
// internal/resolve's spatial lookup against the symbols table, instead of
// trusting whatever raw caller_function/in_function/function_name string
// the extractor wrote down (§4.6 "normalized_function comes from spatial
// lookup, not the raw caller_function field"; spec.md:109 names divergent
// IDs between graph and analyzer as "the dominant cause of 'zero paths'").
// Memoized per (file, line) since every subgraph builder below resolves
// the same spans repeatedly.
func (b *Builder) scopeAt(file string, line int) string {
	key := fmt.Sprintf("%s:%d", file, line)
	if fn, ok := b.scopeCache[key]; ok {
		return fn
	}
	fn, err := b.resolver.ResolveScope(file, line)
	if err != nil || fn == "" {
		fn = "<module>"
	}
	b.scopeCache[key] = fn
	return fn
}

// NodeID is the canonical node-ID form (§4.6): "{file}::{function}::{variable_or_role}".
func NodeID(file, function, variableOrRole string) string {
	if function == "" {
		function = "<module>"
	}
	if variableOrRole == "" {
		variableOrRole = "<self>"
	}
	return fmt.Sprintf("%s::%s::%s", file, function, variableOrRole)
}

// GhostNodeID prefixes an unresolved endpoint's ID with its owning file so
// a later per-file cleanup pass (e.g. when a file is re-indexed) can find
// and remove every ghost it introduced without touching anyone else's.
func GhostNodeID(owningFile, file, function, variableOrRole string) string {
	return owningFile + "#ghost#" + NodeID(file, function, variableOrRole)
}

// Stats summarizes one Stage 2b run.
type Stats struct {
	NodesEmitted int
	EdgesEmitted int
}

// Run builds every subgraph in sequence and commits once at the end; a
// mid-build GraphIntegrityError rolls back the whole transaction rather
// than leaving a partially-built graph store (§4.6 "atomic per run").
func (b *Builder) Run() (Stats, error) {
	var stats Stats
	if err := b.gs.Begin(); err != nil {
		return stats, fmt.Errorf("graphstore: begin: %w", err)
	}

	steps := []func(*Stats) error{
		b.buildCallGraph,
		b.buildDFG,
		b.buildCFGMirror,
		b.buildFrameworkGraphs,
	}
	for _, step := range steps {
		if err := step(&stats); err != nil {
			_ = b.gs.Rollback()
			return stats, err
		}
	}

	if err := b.gs.FlushAll(); err != nil {
		_ = b.gs.Rollback()
		return stats, fmt.Errorf("graphstore: flush: %w", err)
	}
	if err := b.gs.Commit(); err != nil {
		return stats, fmt.Errorf("graphstore: commit: %w", err)
	}
	return stats, nil
}

func (b *Builder) addNode(stats *Stats, id, graphType, file, function, variable, scope, nodeType string) error {
	if b.seenNodes[id] {
		return nil
	}
	b.seenNodes[id] = true
	stats.NodesEmitted++
	if b.metrics != nil {
		b.metrics.GraphNodesEmitted.Inc()
	}
	return b.gs.Add("nodes", store.Row{
		"id": id, "graph_type": graphType, "file": file, "function": function,
		"variable_name": variable, "scope": scope, "node_type": nodeType,
	})
}

func (b *Builder) addEdge(stats *Stats, sourceID, targetID, edgeType, graphType string, line int) error {
	if !b.seenNodes[sourceID] || !b.seenNodes[targetID] {
		return &engine.GraphIntegrityError{EdgeSourceID: sourceID, EdgeTargetID: targetID, Reason: "edge endpoint has no corresponding node row"}
	}
	stats.EdgesEmitted++
	if b.metrics != nil {
		b.metrics.GraphEdgesEmitted.Inc()
	}
	return b.gs.Add("edges", store.Row{
		"source_id": sourceID, "target_id": targetID, "edge_type": edgeType, "graph_type": graphType, "line": line,
	})
}

// buildCallGraph emits one function node per (file, function) pair seen in
// function_call_args, plus a ghost callee node when callee_file_path could
// not be resolved (an external/dynamic call, §4.6 "ghost nodes").
func (b *Builder) buildCallGraph(stats *Stats) error {
	rows, err := b.repo.Query(`SELECT file, line, callee_function, callee_file_path FROM function_call_args GROUP BY file, line, caller_function, callee_function`)
	if err != nil {
		return fmt.Errorf("graphstore: call graph query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var file, calleeFn, calleeFilePath sql.NullString
		var line int
		if err := rows.Scan(&file, &line, &calleeFn, &calleeFilePath); err != nil {
			return err
		}
		scope := b.scopeAt(file.String, line)
		callerID := NodeID(file.String, scope, "<function>")
		if err := b.addNode(stats, callerID, GraphCall, file.String, scope, "", scope, NodeFunction); err != nil {
			return err
		}

		// calleeFn/calleeFilePath name the callee itself, not a scope
		// enclosing this call site, and this query carries no line number
		// for the callee's own definition — there is nothing to resolve
		// against, so the callee side stays keyed on the raw identifier.
		var calleeID string
		if calleeFilePath.Valid && calleeFilePath.String != "" {
			calleeID = NodeID(calleeFilePath.String, calleeFn.String, "<function>")
			if err := b.addNode(stats, calleeID, GraphCall, calleeFilePath.String, calleeFn.String, "", calleeFn.String, NodeFunction); err != nil {
				return err
			}
		} else {
			calleeID = GhostNodeID(file.String, file.String, calleeFn.String, "<function>")
			if err := b.addNode(stats, calleeID, GraphCall, file.String, calleeFn.String, "", calleeFn.String, NodeGhost); err != nil {
				return err
			}
		}
		if err := b.addEdge(stats, callerID, calleeID, EdgeCall, GraphCall, line); err != nil {
			return err
		}
	}
	return rows.Err()
}

// buildDFG emits assignment/return/call_argument/field_access edges
// between variable nodes, scoped per (file, function) so the same
// variable name in two different functions never collapses to one node.
func (b *Builder) buildDFG(stats *Stats) error {
	if err := b.dfgAssignments(stats); err != nil {
		return err
	}
	if err := b.dfgReturns(stats); err != nil {
		return err
	}
	return b.dfgCallArguments(stats)
}

func (b *Builder) dfgAssignments(stats *Stats) error {
	rows, err := b.repo.Query(`
		SELECT a.file, a.line, a.target_var, s.source_var_name
		FROM assignments a LEFT JOIN assignment_sources s
		  ON s.assignment_file = a.file AND s.assignment_line = a.line AND s.assignment_target = a.target_var`)
	if err != nil {
		return fmt.Errorf("graphstore: dfg assignments query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var file, target string
		var line int
		var source sql.NullString
		if err := rows.Scan(&file, &line, &target, &source); err != nil {
			return err
		}
		fn := b.scopeAt(file, line)
		targetID := NodeID(file, fn, target)
		if err := b.addNode(stats, targetID, GraphDFG, file, fn, target, fn, NodeVariable); err != nil {
			return err
		}
		if !source.Valid || source.String == "" || source.String == target {
			continue
		}
		deepestID, err := b.emitFieldAccessChain(stats, file, fn, source.String)
		if err != nil {
			return err
		}
		if err := b.addEdge(stats, deepestID, targetID, EdgeAssignment, GraphDFG, line); err != nil {
			return err
		}
	}
	return rows.Err()
}

// emitFieldAccessChain decomposes a (possibly dotted) assignment-source
// expression into a chain of nodes linked by recursive field_access edges
// (§4.6/§4.7.2: "field_access: from base object node to base.field node;
// recursive up to the k-limit"), e.g. "req.body.user" becomes
// req -> req.body -> req.body.user, each hop its own EdgeFieldAccess edge.
// Fields beyond fieldAccessKLimit fold into the last retained segment,
// mirroring internal/taint.AccessPath.Extend's own folding so the DFG and
// the taint sweep agree on where a long chain bottoms out. It returns the
// deepest node's ID, which is what the caller's assignment edge originates
// from. A plain (undotted) source is a one-node "chain" and no
// field_access edge is emitted for it.
func (b *Builder) emitFieldAccessChain(stats *Stats, file, fn, expr string) (string, error) {
	parts := strings.Split(expr, ".")
	base := parts[0]
	baseID := NodeID(file, fn, base)
	if err := b.addNode(stats, baseID, GraphDFG, file, fn, base, fn, NodeVariable); err != nil {
		return "", err
	}
	if len(parts) == 1 {
		return baseID, nil
	}

	fields := parts[1:]
	if len(fields) > fieldAccessKLimit {
		folded := strings.Join(fields[fieldAccessKLimit-1:], ".")
		fields = append(append([]string{}, fields[:fieldAccessKLimit-1]...), folded)
	}

	prevID, prevChain := baseID, base
	for _, field := range fields {
		chain := prevChain + "." + field
		nodeID := NodeID(file, fn, chain)
		if err := b.addNode(stats, nodeID, GraphDFG, file, fn, chain, fn, NodeVariable); err != nil {
			return "", err
		}
		if err := b.addEdge(stats, prevID, nodeID, EdgeFieldAccess, GraphDFG, 0); err != nil {
			return "", err
		}
		prevID, prevChain = nodeID, chain
	}
	return prevID, nil
}

func (b *Builder) dfgReturns(stats *Stats) error {
	rows, err := b.repo.Query(`
		SELECT r.file, r.line, s.return_var_name
		FROM function_returns r LEFT JOIN function_return_sources s
		  ON s.return_file = r.file AND s.return_line = r.line AND s.return_function = r.function`)
	if err != nil {
		return fmt.Errorf("graphstore: dfg returns query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var file string
		var line int
		var source sql.NullString
		if err := rows.Scan(&file, &line, &source); err != nil {
			return err
		}
		fn := b.scopeAt(file, line)
		returnID := NodeID(file, fn, "<return>")
		if err := b.addNode(stats, returnID, GraphDFG, file, fn, "<return>", fn, NodeVariable); err != nil {
			return err
		}
		if !source.Valid || source.String == "" {
			continue
		}
		sourceID := NodeID(file, fn, source.String)
		if err := b.addNode(stats, sourceID, GraphDFG, file, fn, source.String, fn, NodeVariable); err != nil {
			return err
		}
		if err := b.addEdge(stats, sourceID, returnID, EdgeReturn, GraphDFG, line); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (b *Builder) dfgCallArguments(stats *Stats) error {
	rows, err := b.repo.Query(`SELECT file, line, callee_function, argument_index, argument_expr, param_name, callee_file_path FROM function_call_args`)
	if err != nil {
		return fmt.Errorf("graphstore: dfg call args query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var file, calleeFn, argExpr string
		var paramName, calleeFilePath sql.NullString
		var line, argIdx int
		if err := rows.Scan(&file, &line, &calleeFn, &argIdx, &argExpr, &paramName, &calleeFilePath); err != nil {
			return err
		}
		callerFn := b.scopeAt(file, line)

		role := fmt.Sprintf("<arg%d@%d>", argIdx, line)
		callSiteID := NodeID(file, callerFn, role)
		if err := b.addNode(stats, callSiteID, GraphDFG, file, callerFn, role, callerFn, NodeVariable); err != nil {
			return err
		}

		// Every call argument gets an edge from the root variable it was
		// built from (if any) into the call-site node, so the analyzer's
		// backward sweep can step from a sink's argument to the variable
		// that fed it regardless of whether the callee's parameter name
		// could be resolved.
		if root := extract.RootVariable(argExpr); root != "" {
			argVarID := NodeID(file, callerFn, root)
			if err := b.addNode(stats, argVarID, GraphDFG, file, callerFn, root, callerFn, NodeVariable); err != nil {
				return err
			}
			if err := b.addEdge(stats, argVarID, callSiteID, EdgeCallArgument, GraphDFG, line); err != nil {
				return err
			}
		}

		if !paramName.Valid || paramName.String == "" {
			continue // unresolved parameter binding: no callee-side edge, caller-side edge already emitted above
		}
		calleeFile := file
		if calleeFilePath.Valid && calleeFilePath.String != "" {
			calleeFile = calleeFilePath.String
		}
		paramID := NodeID(calleeFile, calleeFn, paramName.String)
		if err := b.addNode(stats, paramID, GraphDFG, calleeFile, calleeFn, paramName.String, calleeFn, NodeVariable); err != nil {
			return err
		}
		if err := b.addEdge(stats, callSiteID, paramID, EdgeCallArgument, GraphDFG, line); err != nil {
			return err
		}
	}
	return rows.Err()
}

// buildCFGMirror copies cfg_blocks/cfg_edges into graph nodes/edges so the
// taint analyzer can walk control flow using the same node/edge query
// surface as every other subgraph, instead of a second schema.
func (b *Builder) buildCFGMirror(stats *Stats) error {
	rows, err := b.repo.Query(`SELECT id, file, start_line, block_type FROM cfg_blocks`)
	if err != nil {
		return fmt.Errorf("graphstore: cfg blocks query: %w", err)
	}
	blockNodeID := make(map[int64]string)
	for rows.Next() {
		var id int64
		var file, blockType string
		var startLine int
		if err := rows.Scan(&id, &file, &startLine, &blockType); err != nil {
			rows.Close()
			return err
		}
		fn := b.scopeAt(file, startLine)
		nodeID := NodeID(file, fn, fmt.Sprintf("<block%d:%s>", id, blockType))
		blockNodeID[id] = nodeID
		if err := b.addNode(stats, nodeID, GraphCFG, file, fn, fmt.Sprintf("<block%d>", id), fn, NodeCFGBlock); err != nil {
			rows.Close()
			return err
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	edgeRows, err := b.repo.Query(`SELECT source_block_id, target_block_id, edge_type FROM cfg_edges`)
	if err != nil {
		return fmt.Errorf("graphstore: cfg edges query: %w", err)
	}
	defer edgeRows.Close()
	for edgeRows.Next() {
		var src, dst int64
		var edgeType string
		if err := edgeRows.Scan(&src, &dst, &edgeType); err != nil {
			return err
		}
		srcID, dstID := blockNodeID[src], blockNodeID[dst]
		if srcID == "" || dstID == "" {
			continue
		}
		if err := b.addEdge(stats, srcID, dstID, cfgEdgeType(edgeType), GraphCFG, 0); err != nil {
			return err
		}
	}
	return edgeRows.Err()
}

func cfgEdgeType(raw string) string {
	switch raw {
	case "true":
		return EdgeCFGTrue
	case "false":
		return EdgeCFGFalse
	case "back_edge":
		return EdgeCFGBack
	case "exception":
		return EdgeCFGException
	default:
		return EdgeCFGNormal
	}
}

// buildFrameworkGraphs wires middleware chains and ORM query access edges
// (§4.6). For each endpoint with a middleware chain it emits one hub node
// (`<mw-hub:LINE>`), a django_hub edge from that hub to each of the
// endpoint's middleware nodes, and middleware_next edges linking
// consecutive middlewares in seq order. No edge links the chain to the
// route handler, and no hub is shared across endpoints or views.
func (b *Builder) buildFrameworkGraphs(stats *Stats) error {
	if err := b.buildMiddlewareChains(stats); err != nil {
		return err
	}
	return b.buildORMAccess(stats)
}

func (b *Builder) buildMiddlewareChains(stats *Stats) error {
	rows, err := b.repo.Query(`SELECT endpoint_file, endpoint_line, seq, middleware_name FROM middleware_chains ORDER BY endpoint_file, endpoint_line, seq`)
	if err != nil {
		return fmt.Errorf("graphstore: middleware chains query: %w", err)
	}
	defer rows.Close()

	type key struct {
		file string
		line int
	}
	prevByEndpoint := make(map[key]string)

	for rows.Next() {
		var file, mw string
		var line, seq int
		if err := rows.Scan(&file, &line, &seq, &mw); err != nil {
			return err
		}
		k := key{file, line}
		hubID := NodeID(file, "<endpoint>", fmt.Sprintf("<mw-hub:%d>", line))
		if err := b.addNode(stats, hubID, GraphFramework, file, "<endpoint>", fmt.Sprintf("<mw-hub:%d>", line), "", NodeEndpoint); err != nil {
			return err
		}
		mwID := NodeID(file, mw, "<middleware>")
		if err := b.addNode(stats, mwID, GraphFramework, file, mw, "", mw, NodeMiddleware); err != nil {
			return err
		}
		if err := b.addEdge(stats, hubID, mwID, EdgeDjangoHub, GraphFramework, line); err != nil {
			return err
		}
		if prev, ok := prevByEndpoint[k]; ok {
			if err := b.addEdge(stats, prev, mwID, EdgeMiddlewareNext, GraphFramework, line); err != nil {
				return err
			}
		}
		prevByEndpoint[k] = mwID
	}
	return rows.Err()
}

func (b *Builder) buildORMAccess(stats *Stats) error {
	rows, err := b.repo.Query(`SELECT file, line, model_name, method FROM orm_queries`)
	if err != nil {
		return fmt.Errorf("graphstore: orm queries query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var file, model, method string
		var line int
		if err := rows.Scan(&file, &line, &model, &method); err != nil {
			return err
		}
		fn := b.scopeAt(file, line)
		callerID := NodeID(file, fn, "<function>")
		if err := b.addNode(stats, callerID, GraphFramework, file, fn, "", fn, NodeFunction); err != nil {
			return err
		}
		modelID := NodeID(file, model, "<model>")
		if err := b.addNode(stats, modelID, GraphFramework, file, model, "", model, NodeORMModel); err != nil {
			return err
		}
		if err := b.addEdge(stats, callerID, modelID, EdgeORMAccess, GraphFramework, line); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Validate checks the graph store's live schema against its contract
// (§4.1); callers run this before Run to fail fast on drift rather than
// discovering it mid-build.
func Validate(db *sql.DB) error {
	if err := contract.GraphStore.Validate(db); err != nil {
		violation, _ := err.(*contract.SchemaContractViolation)
		return &engine.SchemaContractViolation{Store: "graphs.db", Cause: violation}
	}
	return nil
}
