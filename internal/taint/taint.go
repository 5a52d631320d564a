// Package taint implements Stage 3 (the IFDS-style taint analyzer,
// §4.7): a demand-driven backward reachability sweep from every resolved
// sink to its reachable sources over the graph store's DFG/call-graph
// edges, tracking access paths with k-limiting and classifying each
// discovered path as vulnerable or sanitized via data-driven rules.
// The analyzer never synthesizes a graph on the fly if the graph store is
// missing or empty — that is a TaintAnalysisAborted, not a fallback
// (§4.7.7 "no fallbacks").
package taint

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/sastcore/engine/internal/engine"
	"github.com/sastcore/engine/internal/graphstore"
	"github.com/sastcore/engine/internal/resolve"
	"github.com/sastcore/engine/internal/store"
	"github.com/sastcore/engine/internal/taint/sanitizer"
)

// Config bounds the analyzer's exploration (§6 defaults: max_depth=10,
// k_limit_access_path=5).
type Config struct {
	MaxDepth int
	KLimit   int
}

// PathStep is one hop of a reconstructed taint path, in source-to-sink
// order.
type PathStep struct {
	NodeID   string
	File     string
	Function string
	Variable string
	Line     int
	EdgeType string
}

// Finding is one resolved flow: a concrete route from a matched source to
// a matched sink, classified vulnerable or sanitized.
type Finding struct {
	SourceFile    string
	SourceLine    int
	SourceVarRoot string
	SinkFile      string
	SinkLine      int
	SinkFunction  string
	Status        string // "vulnerable" | "sanitized"
	Hops          int
	Path          []PathStep
	SanitizerRule string
	Category      string
	Severity      string
}

// dedupKey is the tuple findings are deduplicated on (§4.7.6).
type dedupKey struct {
	sourceFile, sinkFile, sinkFunction string
	sourceLine, sinkLine               int
}

// Analyzer holds the read-only connections and compiled rule set for one
// taint sweep.
type Analyzer struct {
	repo     *sql.DB
	graph    *sql.DB
	resolver *resolve.Resolver
	rules    sanitizer.Set
	cfg      Config

	scopeCache map[string]string
}

// Open binds an Analyzer to already-open repo-index and graph-store
// connections. Neither is ever written to by this package.
func Open(repo, graph *sql.DB, rules []sanitizer.Rule, cfg Config) (*Analyzer, error) {
	if repo == nil || graph == nil {
		return nil, &engine.TaintAnalysisAborted{Reason: "repo-index or graph store connection is nil"}
	}
	compiled, err := sanitizer.Compile(rules)
	if err != nil {
		return nil, &engine.TaintAnalysisAborted{Reason: err.Error()}
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 10
	}
	if cfg.KLimit <= 0 {
		cfg.KLimit = 5
	}
	return &Analyzer{
		repo: repo, graph: graph, resolver: resolve.Open(repo), rules: sanitizer.NewSet(compiled), cfg: cfg,
		scopeCache: make(map[string]string),
	}, nil
}

// scopeAt mirrors internal/graphstore.Builder.scopeAt: the repo-index
// tables this package queries (assignments, validation_framework_usage,
// orm_queries, function_call_args) all carry the extractor's raw
// in_function/caller_function string, but every graph node this package
// walks was built keyed on the spatially resolved scope. Any lookup that
// compares a graph node's function against a repo-index row's raw
// in_function column would silently never match once the two diverge, so
// every such lookup below resolves each candidate row's own scope before
// comparing it to the function the caller is asking about.
func (a *Analyzer) scopeAt(file string, line int) string {
	key := fmt.Sprintf("%s:%d", file, line)
	if fn, ok := a.scopeCache[key]; ok {
		return fn
	}
	fn, err := a.resolver.ResolveScope(file, line)
	if err != nil || fn == "" {
		fn = "<module>"
	}
	a.scopeCache[key] = fn
	return fn
}

type sinkCallSite struct {
	file, callerFunction, calleeFunction, argExpr string
	line, argIndex                                int
	rule                                           sanitizer.Rule
}

// Run performs the full backward sweep: Pass 1 (detection) discovers
// every sink, walks backward over graph edges building a predecessor map,
// and classifies any source it reaches; Pass 2 (explanation) reconstructs
// the concrete hop-by-hop path for every finding via that map.
func (a *Analyzer) Run() ([]Finding, error) {
	var nodeCount int
	if err := a.graph.QueryRow(`SELECT COUNT(*) FROM nodes`).Scan(&nodeCount); err != nil {
		return nil, &engine.TaintAnalysisAborted{Reason: fmt.Sprintf("graph store unreadable: %v", err)}
	}
	if nodeCount == 0 {
		return nil, &engine.TaintAnalysisAborted{Reason: "graph store is empty; Stage 2 must run before Stage 3"}
	}

	sinks, err := a.findSinks()
	if err != nil {
		return nil, err
	}

	// Batch the sink-argument-node existence check across every candidate
	// sink instead of one EXISTS query per sink, since the sink count can
	// run into the thousands on a large repo (§8 property 16).
	startIDs := make([]string, len(sinks))
	for i, sink := range sinks {
		startIDs[i] = graphstore.NodeID(sink.file, sink.callerFunction, fmt.Sprintf("<arg%d@%d>", sink.argIndex, sink.line))
	}
	existing, err := a.existingNodeIDs(startIDs)
	if err != nil {
		return nil, err
	}

	groups := make(map[dedupKey][]Finding)
	var order []dedupKey

	for i, sink := range sinks {
		if !existing[startIDs[i]] {
			continue // sink argument never reached the DFG (e.g., a literal); nothing to sweep
		}
		found, err := a.sweepFromSink(sink, startIDs[i])
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			key := dedupKey{f.SourceFile, f.SinkFile, f.SinkFunction, f.SourceLine, f.SinkLine}
			if _, ok := groups[key]; !ok {
				order = append(order, key)
			}
			groups[key] = append(groups[key], f)
		}
	}

	findings := make([]Finding, 0, len(order))
	for _, key := range order {
		findings = append(findings, mergeGroup(groups[key]))
	}
	return findings, nil
}

// mergeGroup reduces every finding sharing one dedupKey to a single
// resolved flow, per §4.7.6: "a group is SANITIZED iff every contributing
// path is sanitized; VULNERABLE if any contributing path is vulnerable" —
// distinct paths between the same (source, sink) pair are evidence about
// one underlying flow, not independent findings, so losing the sanitized
// ones the instant one vulnerable path is seen would under-report, and
// keeping only the first path seen (regardless of status) would silently
// downgrade a real vulnerability to sanitized if a sanitized path happened
// to be discovered first.
func mergeGroup(group []Finding) Finding {
	for _, f := range group {
		if f.Status == "vulnerable" {
			return f
		}
	}
	merged := group[0]
	merged.Status = "sanitized"
	return merged
}

// existingNodeIDs reports which of ids actually have a row in the graph
// store's nodes table, chunking the IN-list query to stay under SQLite's
// bound-variable ceiling (internal/store.QueryINChunked, §4.2/§8 property 16).
func (a *Analyzer) existingNodeIDs(ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	err := store.QueryINChunked(
		`SELECT id FROM nodes WHERE id IN %s`, ids, nil,
		func(query string, args []any) error {
			rows, err := a.graph.Query(query, args...)
			if err != nil {
				return fmt.Errorf("taint: sink node existence query: %w", err)
			}
			defer rows.Close()
			for rows.Next() {
				var id string
				if err := rows.Scan(&id); err != nil {
					return err
				}
				out[id] = true
			}
			return rows.Err()
		})
	return out, err
}

// findSinks locates every function_call_args row whose callee matches a
// sink rule (§4.7.1, data-driven — never a hardcoded name switch).
func (a *Analyzer) findSinks() ([]sinkCallSite, error) {
	rows, err := a.repo.Query(`SELECT file, line, caller_function, callee_function, argument_index, argument_expr FROM function_call_args`)
	if err != nil {
		return nil, fmt.Errorf("taint: sink query: %w", err)
	}
	defer rows.Close()

	var sinks []sinkCallSite
	for rows.Next() {
		var file, rawCallerFn, calleeFn, argExpr string
		var line, argIdx int
		if err := rows.Scan(&file, &line, &rawCallerFn, &calleeFn, &argIdx, &argExpr); err != nil {
			return nil, err
		}
		// Resolved the same way internal/graphstore resolves caller_function
		// when it builds this call site's node ID — if the two packages
		// disagreed here, the sweep below would start from a node ID the
		// graph store never wrote, and every sink would silently find zero
		// paths (spec.md:109).
		callerFn := a.scopeAt(file, line)
		ctx := sanitizer.MatchContext{File: file, Function: rawCallerFn, Callee: calleeFn}
		rule, ok, err := a.rules.MatchSink(ctx)
		if err != nil {
			return nil, &engine.TaintAnalysisAborted{Reason: err.Error()}
		}
		if !ok {
			continue
		}
		sinks = append(sinks, sinkCallSite{file: file, line: line, callerFunction: callerFn, calleeFunction: calleeFn, argExpr: argExpr, argIndex: argIdx, rule: rule})
	}
	return sinks, rows.Err()
}

type queueItem struct {
	nodeID        string
	depth         int
	path          []PathStep // sink-to-current order; reversed at the end
	sanitizedBy   string
	sanitizerRule sanitizer.Rule
	accessPath    AccessPath
	matched       *Finding   // furthest-back source matched on this branch so far, if any
	matchedAP     AccessPath // access path matched.SourceVarRoot was computed from
}

// accessPathFor builds the k-limited AccessPath a graph node's dotted
// variable name represents (§4.7.2): internal/graphstore's field-access
// chain construction (emitFieldAccessChain) emits one node per field hop
// ("req", "req.body", "req.body.user", ...), so splitting a node's own
// variable name on "." and replaying it through Extend reconstructs the
// same access path the graph builder k-limited it to.
func accessPathFor(file, function, variable string, kLimit int) AccessPath {
	parts := strings.Split(variable, ".")
	ap := NewAccessPath(file, function, parts[0])
	for _, f := range parts[1:] {
		ap = ap.Extend(f, kLimit)
	}
	return ap
}

// sweepFromSink runs the backward worklist from one sink's call-argument
// node (startID, already confirmed to exist in the graph store by the
// caller). A source match is a waypoint, not a termination (spec.md:282-285):
// the walk keeps going past it to worklist exhaustion or the depth limit,
// so a 3-5 hop chain is captured in full rather than stopping at the first
// variable a source rule happens to match. Each branch remembers only the
// furthest-back (most recently matched) source via matched/matchedAP, and
// a finding is only emitted once a branch truly dead-ends — either no
// predecessors exist, or every predecessor was already visited by another
// branch — so a branch that keeps extending past its first match never
// double-reports the earlier, closer-to-sink one.
func (a *Analyzer) sweepFromSink(sink sinkCallSite, startID string) ([]Finding, error) {
	visited := map[string]bool{startID: true}
	queue := []queueItem{{nodeID: startID, depth: 0}}
	var findings []Finding
	emitted := make(map[*Finding]bool)

	emit := func(item queueItem) {
		if item.matched == nil || emitted[item.matched] {
			return
		}
		emitted[item.matched] = true
		findings = append(findings, *item.matched)
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if item.depth >= a.cfg.MaxDepth {
			emit(item)
			continue
		}

		preds, err := a.predecessors(item.nodeID)
		if err != nil {
			return nil, err
		}
		if len(preds) == 0 {
			emit(item)
			continue
		}

		anyNew := false
		for _, p := range preds {
			if visited[p.nodeID] {
				continue
			}
			visited[p.nodeID] = true
			anyNew = true

			step := PathStep{NodeID: p.nodeID, File: p.file, Function: p.function, Variable: p.variable, Line: p.line, EdgeType: p.edgeType}
			nextPath := append(append([]PathStep(nil), item.path...), step)
			ap := accessPathFor(p.file, p.function, p.variable, a.cfg.KLimit)

			sanitizedBy, sanitizerRule := item.sanitizedBy, item.sanitizerRule
			if sanitizedBy == "" {
				ruleHit, ok, err := a.checkSanitizer(p.file, p.function, p.variable)
				if err != nil {
					return nil, err
				}
				if ok {
					sanitizedBy, sanitizerRule = ruleHit.ID, ruleHit
				}
			}

			matched, matchedAP := item.matched, item.matchedAP
			if srcExpr, ok, err := a.assignmentSourceExpr(p.file, p.function, p.variable); err != nil {
				return nil, err
			} else if ok {
				ctx := sanitizer.MatchContext{File: p.file, Function: p.function, VariableName: p.variable, Expr: srcExpr}
				if _, isSource, err := a.rules.MatchSource(ctx); err != nil {
					return nil, err
				} else if isSource && (matched == nil || !matchedAP.Matches(ap)) {
					status := "vulnerable"
					if sanitizedBy != "" {
						status = "sanitized"
					}
					f := Finding{
						SourceFile: p.file, SourceLine: p.line, SourceVarRoot: ap.Base,
						SinkFile: sink.file, SinkLine: sink.line, SinkFunction: sink.callerFunction,
						Status: status, Hops: len(nextPath),
						Path:          reversePath(nextPath),
						SanitizerRule: sanitizedBy,
						Category:      sink.rule.Category, Severity: sink.rule.Severity,
					}
					matched, matchedAP = &f, ap
				}
			}

			queue = append(queue, queueItem{
				nodeID: p.nodeID, depth: item.depth + 1, path: nextPath,
				sanitizedBy: sanitizedBy, sanitizerRule: sanitizerRule,
				accessPath: ap, matched: matched, matchedAP: matchedAP,
			})
		}
		if !anyNew {
			emit(item)
		}
	}
	return findings, nil
}

func reversePath(path []PathStep) []PathStep {
	out := make([]PathStep, len(path))
	for i, s := range path {
		out[len(path)-1-i] = s
	}
	return out
}

type predNode struct {
	nodeID, file, function, variable, edgeType string
	line                                       int
}

// predecessors returns every node with an edge into nodeID (the DFG/call
// graph's forward direction), since the sweep walks data flow backward
// from the sink.
func (a *Analyzer) predecessors(nodeID string) ([]predNode, error) {
	rows, err := a.graph.Query(`
		SELECT n.id, n.file, n.function, n.variable_name, e.edge_type, COALESCE(e.line, 0)
		FROM edges e JOIN nodes n ON n.id = e.source_id
		WHERE e.target_id = ?`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("taint: predecessor query: %w", err)
	}
	defer rows.Close()

	var out []predNode
	for rows.Next() {
		var p predNode
		var variable sql.NullString
		if err := rows.Scan(&p.nodeID, &p.file, &p.function, &variable, &p.edgeType, &p.line); err != nil {
			return nil, err
		}
		p.variable = variable.String
		out = append(out, p)
	}
	return out, rows.Err()
}

// assignmentSourceExpr looks up the RHS text that produced (file,
// function, variable), if any — the text a source rule matches against.
// function is the resolved scope a graph node carries, so each candidate
// row's own in_function is re-resolved via scopeAt before comparing,
// rather than trusting the raw column (§4.6/spec.md:109).
func (a *Analyzer) assignmentSourceExpr(file, function, variable string) (string, bool, error) {
	rows, err := a.repo.Query(
		`SELECT line, source_expr FROM assignments WHERE file = ? AND target_var = ? ORDER BY line DESC`,
		file, variable)
	if err != nil {
		return "", false, fmt.Errorf("taint: assignment lookup: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var line int
		var expr string
		if err := rows.Scan(&line, &expr); err != nil {
			return "", false, err
		}
		if a.scopeAt(file, line) == function {
			return expr, true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return "", false, err
	}
	return variable, true, nil // no assignment found in this scope: match on the bare variable/parameter name itself
}

// checkSanitizer reports whether (file, function, variable) passed
// through a recognized validation/escaping/parameterization call before
// reaching this point in the backward sweep (§4.7.1). Same resolved-scope
// comparison as assignmentSourceExpr, for the same reason.
func (a *Analyzer) checkSanitizer(file, function, variable string) (sanitizer.Rule, bool, error) {
	rows, err := a.repo.Query(
		`SELECT line, framework FROM validation_framework_usage WHERE file = ? AND target_var = ? ORDER BY line DESC`,
		file, variable)
	if err != nil {
		return sanitizer.Rule{}, false, fmt.Errorf("taint: sanitizer lookup: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var line int
		var framework string
		if err := rows.Scan(&line, &framework); err != nil {
			return sanitizer.Rule{}, false, err
		}
		if a.scopeAt(file, line) == function {
			return a.rules.MatchSanitizer(sanitizer.MatchContext{File: file, Function: function, Framework: framework})
		}
	}
	if err := rows.Err(); err != nil {
		return sanitizer.Rule{}, false, err
	}

	ormRows, err := a.repo.Query(`SELECT line, framework FROM orm_queries WHERE file = ?`, file)
	if err != nil {
		return sanitizer.Rule{}, false, fmt.Errorf("taint: orm sanitizer lookup: %w", err)
	}
	defer ormRows.Close()
	for ormRows.Next() {
		var line int
		var framework string
		if err := ormRows.Scan(&line, &framework); err != nil {
			return sanitizer.Rule{}, false, err
		}
		if a.scopeAt(file, line) == function {
			return a.rules.MatchSanitizer(sanitizer.MatchContext{File: file, Function: function, Framework: framework})
		}
	}
	return sanitizer.Rule{}, false, ormRows.Err()
}
