// Package index implements Stage 1 (Extraction & Indexing, §4.3): it
// walks a workset of file paths, dispatches each to the matching Language
// Extractor, and writes the resulting payloads into the repo-index store
// through a single writer goroutine. Extraction itself is embarrassingly
// parallel (each file is parsed independently); only the store write side
// is serialized, per the batched storage engine's single-writer discipline.
package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/sastcore/engine/internal/config"
	"github.com/sastcore/engine/internal/contract"
	"github.com/sastcore/engine/internal/engine"
	"github.com/sastcore/engine/internal/extract"
	"github.com/sastcore/engine/internal/resolve"
	"github.com/sastcore/engine/internal/store"
	"github.com/sastcore/engine/internal/telemetry"
)

// Stats summarizes one Stage 1 run.
type Stats struct {
	FilesConsidered int
	FilesIndexed    int
	FilesFailed     int
	FilesSkipped    int // no matching extractor (not ours to parse)
	Failures        []engine.ExtractionFailed
}

type extractionResult struct {
	path    string
	jsxBoth bool
	payload extract.Payload
	err     error
}

// getOptimalWorkerCount mirrors the teacher's channel-fanout sizing:
// default to NumCPU, but never spin up more workers than files to process,
// and allow an explicit override via cfg.MaxWorkers.
func getOptimalWorkerCount(cfg config.Config, fileCount int) int {
	n := cfg.MaxWorkers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n > fileCount {
		n = fileCount
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Run performs Stage 1 over workset (absolute file paths) and commits every
// extracted row into a fresh repo-index store at cfg.RepoIndex.
//
// Worker supervision uses golang.org/x/sync/errgroup instead of a bare
// sync.WaitGroup: a plain WaitGroup has no way to tell the producer and
// extraction workers to stop early, so a fatal write error discovered
// mid-stream (the consumer loop below) would leave them blocked forever
// sending into an unread results channel. errgroup.WithContext gives every
// goroutine a shared cancellation signal, and the consumer loop cancels it
// the moment a write fails.
func Run(ctx context.Context, workset []string, cfg config.Config, logger *telemetry.Logger, metrics *telemetry.StageMetrics) (Stats, error) {
	stats := Stats{FilesConsidered: len(workset)}

	s, err := store.Open(cfg.RepoIndex, contract.RepoIndex, true, cfg.BatchSize, logger)
	if err != nil {
		return stats, fmt.Errorf("index: open repo-index store: %w", err)
	}
	defer s.Close()

	if err := s.Begin(); err != nil {
		return stats, fmt.Errorf("index: begin transaction: %w", err)
	}

	// ResolveImport never touches a DB connection (it only consults the
	// maps passed to it), so it's safe to use here even though the
	// repo-index store's files table isn't queryable until FlushAll runs
	// at the very end — knownFiles comes from the workset already in
	// memory instead (§4.5).
	knownFiles := make(map[string]bool, len(workset))
	for _, p := range workset {
		knownFiles[p] = true
	}
	resolver := resolve.Open(nil)

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(cctx)

	jobs := make(chan string)
	results := make(chan extractionResult)

	workers := getOptimalWorkerCount(cfg, len(workset))
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case path, ok := <-jobs:
					if !ok {
						return nil
					}
					res := extractFile(path, cfg)
					select {
					case results <- res:
					case <-gctx.Done():
						return gctx.Err()
					}
				}
			}
		})
	}

	g.Go(func() error {
		defer close(jobs)
		for _, path := range workset {
			select {
			case jobs <- path:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	go func() {
		_ = g.Wait() // a non-nil error here only ever reflects cancellation; the consumer loop below owns the fatal-error path
		close(results)
	}()

	if logger != nil {
		_ = logger.StartProgress("Indexing", len(workset))
	}

	var writeErr error
	for res := range results {
		if logger != nil {
			_ = logger.UpdateProgress(1)
		}
		if res.err != nil {
			stats.FilesFailed++
			stats.Failures = append(stats.Failures, engine.ExtractionFailed{File: res.path, Reason: res.err.Error()})
			if metrics != nil {
				metrics.FilesFailed.Inc()
			}
			_ = s.Add("files", store.Row{
				"path": res.path, "language": "", "size_bytes": 0, "content_hash": "", "parse_status": "failed",
			})
			continue
		}
		if !res.payload.Success {
			stats.FilesFailed++
			stats.Failures = append(stats.Failures, engine.ExtractionFailed{File: res.path, Reason: joinErrors(res.payload.Errors)})
			if metrics != nil {
				metrics.FilesFailed.Inc()
			}
			_ = s.Add("files", store.Row{
				"path": res.path, "language": string(res.payload.Language), "size_bytes": 0,
				"content_hash": "", "parse_status": "failed",
			})
			continue
		}

		if err := writePayload(s, res.path, res.payload, resolver, knownFiles, metrics); err != nil {
			writeErr = fmt.Errorf("index: write payload for %s: %w", res.path, err)
			cancel() // unblock any worker/producer goroutine still sending into results
			break
		}
		stats.FilesIndexed++
		if metrics != nil {
			metrics.FilesIndexed.Inc()
		}
	}
	for range results {
		// drain whatever the worker pool had in flight so it can observe
		// cctx.Done() and exit instead of blocking on a send forever
	}

	if logger != nil {
		_ = logger.FinishProgress()
	}

	if gerr := g.Wait(); writeErr == nil && gerr != nil && gerr != context.Canceled {
		writeErr = fmt.Errorf("index: extraction worker pool: %w", gerr)
	}
	if writeErr != nil {
		_ = s.Rollback()
		return stats, writeErr
	}

	if err := s.FlushAll(); err != nil {
		_ = s.Rollback()
		return stats, fmt.Errorf("index: flush: %w", err)
	}
	if err := s.Commit(); err != nil {
		return stats, fmt.Errorf("index: commit: %w", err)
	}

	return stats, nil
}

// resolveRefValue normalizes an import ref's raw specifier to the absolute
// file path it resolves to, so graphstore's import edges connect to the
// same node IDs the rest of the graph uses (§4.5) instead of trusting
// whatever relative or aliased string the extractor recorded verbatim.
// Nothing in this workset has a tsconfig/webpack alias map to consult yet,
// so aliasMap is empty; an unresolved specifier is recorded as external.
func resolveRefValue(resolver *resolve.Resolver, knownFiles map[string]bool, fromFile, specifier string) string {
	if resolved, ok := resolver.ResolveImport(fromFile, specifier, nil, knownFiles); ok {
		return resolved
	}
	return "external::" + specifier
}

func joinErrors(errs []string) string {
	if len(errs) == 0 {
		return "unknown extraction error"
	}
	out := errs[0]
	for _, e := range errs[1:] {
		out += "; " + e
	}
	return out
}

// extractFile reads and parses one file. It never returns a partial
// success disguised as a failure or vice-versa: Payload.Success carries
// that distinction, and extractFile's own error is reserved for I/O
// failures the extractor never got a chance to classify.
func extractFile(path string, cfg config.Config) extractionResult {
	ex, ok := extract.ForPath(path)
	if !ok {
		return extractionResult{path: path, err: fmt.Errorf("no extractor registered for %s", filepath.Ext(path))}
	}
	source, err := os.ReadFile(path)
	if err != nil {
		return extractionResult{path: path, err: err}
	}
	payload, err := ex.Extract(path, source)
	if err != nil {
		return extractionResult{path: path, err: err}
	}
	return extractionResult{path: path, jsxBoth: cfg.JSXMode == config.JSXBoth, payload: payload}
}

// writePayload is the only place Stage 1 writes rows; it runs exclusively
// on the consuming goroutine, preserving the store's single-writer rule.
func writePayload(s *store.Store, path string, p extract.Payload, resolver *resolve.Resolver, knownFiles map[string]bool, metrics *telemetry.StageMetrics) error {
	if err := s.Add("files", store.Row{
		"path": path, "language": string(p.Language), "size_bytes": 0,
		"content_hash": "", "parse_status": "ok",
	}); err != nil {
		return err
	}

	symbolsTable, assignmentsTable, sourcesTable, refsTable, callArgsTable := "symbols", "assignments", "assignment_sources", "refs", "function_call_args"
	if p.JSXPreserved {
		symbolsTable, assignmentsTable, sourcesTable, refsTable, callArgsTable = "symbols_jsx", "assignments_jsx", "assignment_sources_jsx", "refs_jsx", "function_call_args_jsx"
	}

	for _, sym := range p.Symbols {
		if err := s.Add(symbolsTable, store.Row{
			"path": path, "name": sym.Name, "type": sym.Type, "line": sym.Line, "end_line": sym.EndLine,
			"type_annotation": sym.TypeAnnotation, "is_typed": boolToInt(sym.IsTyped),
		}); err != nil {
			return err
		}
		if metrics != nil {
			metrics.SymbolsCreated.Inc()
		}
	}

	for _, ref := range p.Refs {
		value := ref.Value
		if ref.Kind == "import" {
			value = resolveRefValue(resolver, knownFiles, path, ref.Value)
		}
		if err := s.Add(refsTable, store.Row{"src": path, "kind": ref.Kind, "value": value, "line": ref.Line}); err != nil {
			return err
		}
	}

	for _, a := range p.Assignments {
		if err := s.Add(assignmentsTable, store.Row{
			"file": path, "line": a.Line, "in_function": a.InFunction, "target_var": a.TargetVar, "source_expr": a.SourceExpr,
		}); err != nil {
			return err
		}
		if metrics != nil {
			metrics.AssignmentsCreated.Inc()
		}
		for _, src := range a.Sources {
			if err := s.Add(sourcesTable, store.Row{
				"assignment_file": path, "assignment_line": a.Line, "assignment_target": a.TargetVar, "source_var_name": src,
			}); err != nil {
				return err
			}
		}
	}

	for _, c := range p.FunctionCalls {
		for i, arg := range c.Arguments {
			paramName := ""
			if i < len(c.ParamNames) {
				paramName = c.ParamNames[i]
			}
			if err := s.Add(callArgsTable, store.Row{
				"file": path, "line": c.Line, "caller_function": c.CallerFunction, "callee_function": c.CalleeFunction,
				"argument_index": i, "argument_expr": arg.Raw, "param_name": paramName, "callee_file_path": c.CalleeFilePath,
			}); err != nil {
				return err
			}
		}
	}

	for _, r := range p.FunctionReturns {
		if err := s.Add("function_returns", store.Row{"file": path, "line": r.Line, "function": r.Function, "return_expr": r.ReturnExpr}); err != nil {
			return err
		}
		for _, src := range r.Sources {
			if err := s.Add("function_return_sources", store.Row{
				"return_file": path, "return_line": r.Line, "return_function": r.Function, "return_var_name": src,
			}); err != nil {
				return err
			}
		}
	}

	if !p.JSXPreserved {
		if err := writeCFG(s, path, p.CFG, metrics); err != nil {
			return err
		}
	}

	return writeFrameworkArtifacts(s, path, p.Framework)
}

func writeCFG(s *store.Store, path string, cfg extract.CFG, metrics *telemetry.StageMetrics) error {
	if len(cfg.Blocks) == 0 {
		return nil
	}
	ids := make([]int64, len(cfg.Blocks))
	for i, b := range cfg.Blocks {
		id, err := s.AddCFGBlock(path, b.FunctionName, string(b.Type), b.StartLine, b.EndLine)
		if err != nil {
			return err
		}
		ids[i] = id
		if metrics != nil {
			metrics.CFGBlocksCreated.Inc()
		}
		for seq, stmt := range b.Statements {
			if err := s.Add("cfg_block_statements", store.Row{
				"block_id": id, "seq": seq, "statement_type": stmt.Type, "line": stmt.Line, "detail": "",
			}); err != nil {
				return err
			}
		}
	}
	for _, e := range cfg.Edges {
		if e.SourceIdx < 0 || e.SourceIdx >= len(ids) || e.TargetIdx < 0 || e.TargetIdx >= len(ids) {
			continue
		}
		if err := s.Add("cfg_edges", store.Row{
			"source_block_id": ids[e.SourceIdx], "target_block_id": ids[e.TargetIdx], "edge_type": string(e.EdgeType),
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeFrameworkArtifacts(s *store.Store, path string, f extract.FrameworkArtifacts) error {
	for _, q := range f.ORMQueries {
		if err := s.Add("orm_queries", store.Row{
			"file": path, "line": q.Line, "in_function": q.InFunction, "model_name": q.ModelName,
			"method": q.Method, "framework": q.Framework, "argument_expr": q.ArgumentExpr,
		}); err != nil {
			return err
		}
	}
	for _, mc := range f.MiddlewareChains {
		for seq, name := range mc.Names {
			if err := s.Add("middleware_chains", store.Row{
				"endpoint_file": path, "endpoint_line": mc.EndpointLine, "seq": seq, "middleware_name": name, "middleware_file": "",
			}); err != nil {
				return err
			}
		}
	}
	for _, v := range f.ValidationUsages {
		if err := s.Add("validation_framework_usage", store.Row{
			"file": path, "line": v.Line, "in_function": v.InFunction, "framework": v.Framework,
			"method": v.Method, "target_var": v.TargetVar, "schema_name": v.SchemaName,
		}); err != nil {
			return err
		}
	}
	for _, ep := range f.APIEndpoints {
		if err := s.Add("api_endpoints", store.Row{
			"file": path, "line": ep.Line, "method": ep.Method, "pattern": ep.Pattern, "path": ep.Path, "handler_function": ep.HandlerFunction,
		}); err != nil {
			return err
		}
		for seq, ctrl := range ep.Controls {
			if err := s.Add("api_endpoint_controls", store.Row{
				"endpoint_file": path, "endpoint_line": ep.Line, "seq": seq, "control_name": ctrl,
			}); err != nil {
				return err
			}
		}
	}
	for _, rc := range f.ReactComponents {
		if err := s.Add("react_components", store.Row{
			"file": path, "line": rc.Line, "component_name": rc.ComponentName, "kind": rc.Kind, "hooks_used": joinHooks(rc.HooksUsed),
		}); err != nil {
			return err
		}
	}
	for _, d := range f.DjangoArtifacts {
		if err := s.Add("django_artifacts", store.Row{"file": path, "line": d.Line, "kind": d.Kind, "name": d.Name, "detail": d.Detail}); err != nil {
			return err
		}
	}
	for _, r := range f.TerraformResources {
		if err := s.Add("terraform_resources", store.Row{
			"file": path, "line": r.Line, "resource_type": r.ResourceType, "resource_name": r.ResourceName, "attributes_json": r.AttributesJSON,
		}); err != nil {
			return err
		}
	}
	for _, v := range f.TerraformVariables {
		if err := s.Add("terraform_variables", store.Row{"file": path, "line": v.Line, "variable_name": v.VariableName, "default_expr": v.DefaultExpr}); err != nil {
			return err
		}
	}
	for _, o := range f.TerraformOutputs {
		if err := s.Add("terraform_outputs", store.Row{"file": path, "line": o.Line, "output_name": o.OutputName, "value_expr": o.ValueExpr}); err != nil {
			return err
		}
	}
	for _, tf := range f.TerraformFindings {
		if err := s.Add("terraform_findings", store.Row{
			"file": path, "line": tf.Line, "resource_type": tf.ResourceType, "resource_name": tf.ResourceName,
			"category": tf.Category, "severity": tf.Severity, "message": tf.Message,
		}); err != nil {
			return err
		}
	}
	for _, j := range f.JWTPatterns {
		if err := s.Add("jwt_patterns", store.Row{
			"file": path, "line": j.Line, "in_function": j.InFunction, "library": j.Library, "operation": j.Operation, "algorithm": j.Algorithm,
		}); err != nil {
			return err
		}
	}
	for _, e := range f.EnvVarUsages {
		if err := s.Add("env_var_usage", store.Row{
			"file": path, "line": e.Line, "in_function": e.InFunction, "var_name": e.VarName, "untrusted": boolToInt(e.Untrusted),
		}); err != nil {
			return err
		}
	}
	return nil
}

func joinHooks(hooks []string) string {
	out := ""
	for i, h := range hooks {
		if i > 0 {
			out += ","
		}
		out += h
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
