package extract

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// PythonExtractor is the reference Python extractor. Per §4.3 it is the
// only parser ever used for Python files — there is no generic
// tree-sitter-by-extension fallback and no regex fallback on parse
// failure (§7 "No fallbacks").
type PythonExtractor struct{}

func (PythonExtractor) Language() Language { return Python }

// Extract parses path's source and returns its extraction payload. A
// parse error produces a failed (not partial) payload; the caller records
// the file as parse_status=failed and writes nothing else for it.
func (e PythonExtractor) Extract(path string, source []byte) (Payload, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return Payload{Language: Python, Success: false, Errors: []string{err.Error()}}, nil
	}
	root := tree.RootNode()
	if root == nil || root.HasError() {
		return Payload{Language: Python, Success: false, Partial: false, Errors: []string{"python: syntax error"}}, nil
	}

	w := &pyWalker{source: source, path: path}
	w.walk(root, "<module>")

	return Payload{
		Language:        Python,
		Success:         true,
		Symbols:         w.symbols,
		Refs:            w.refs,
		Assignments:     w.assignments,
		FunctionCalls:   w.calls,
		FunctionReturns: w.returns,
		CFG:             w.cfg,
		Framework:       w.framework,
	}, nil
}

type pyWalker struct {
	source []byte
	path   string

	symbols     []Symbol
	refs        []Ref
	assignments []Assignment
	calls       []FunctionCall
	returns     []FunctionReturn
	cfg         CFG
	framework   FrameworkArtifacts
}

func (w *pyWalker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(w.source)
}

func (w *pyWalker) line(n *sitter.Node) int { return int(n.StartPoint().Row) + 1 }

// walk visits statements under a function scope (fn: "<module>" for
// top-level, or "Class.method"/"function_name" once normalized downstream
// by internal/resolve's spatial scope lookup). The extractor itself only
// needs the raw enclosing name as emitted by the parser; resolve.go is
// responsible for normalizing aliases to canonical names (§4.5).
func (w *pyWalker) walk(node *sitter.Node, fn string) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "function_definition":
			w.visitFunctionDef(child, fn)
		case "class_definition":
			w.visitClassDef(child)
		case "import_statement", "import_from_statement":
			w.visitImport(child)
		case "assignment":
			w.visitAssignment(child, fn)
		case "return_statement":
			w.visitReturn(child, fn)
		case "expression_statement":
			w.walkExpressionStatement(child, fn)
		case "if_statement", "for_statement", "while_statement", "try_statement", "with_statement":
			w.walk(child, fn)
		default:
			w.walk(child, fn)
		}
	}
}

func (w *pyWalker) walkExpressionStatement(node *sitter.Node, fn string) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "call" {
			w.visitCall(child, fn)
		} else if child.Type() == "assignment" {
			w.visitAssignment(child, fn)
		}
	}
}

func (w *pyWalker) visitFunctionDef(node *sitter.Node, enclosing string) {
	nameNode := node.ChildByFieldName("name")
	name := w.text(nameNode)
	qualified := name
	if enclosing != "<module>" {
		qualified = enclosing + "." + name
	}

	bodyNode := node.ChildByFieldName("body")
	endLine := w.line(node)
	if bodyNode != nil && bodyNode.NamedChildCount() > 0 {
		last := bodyNode.NamedChild(int(bodyNode.NamedChildCount()) - 1)
		endLine = w.line(last)
	}

	w.symbols = append(w.symbols, Symbol{
		Name: qualified, Type: "function", Line: w.line(node), EndLine: endLine,
	})

	w.buildCFG(qualified, bodyNode)

	if bodyNode != nil {
		w.walk(bodyNode, qualified)
	}
}

func (w *pyWalker) visitClassDef(node *sitter.Node) {
	nameNode := node.ChildByFieldName("name")
	name := w.text(nameNode)
	bodyNode := node.ChildByFieldName("body")
	endLine := w.line(node)
	if bodyNode != nil && bodyNode.NamedChildCount() > 0 {
		last := bodyNode.NamedChild(int(bodyNode.NamedChildCount()) - 1)
		endLine = w.line(last)
	}
	w.symbols = append(w.symbols, Symbol{Name: name, Type: "class", Line: w.line(node), EndLine: endLine})

	if bodyNode == nil {
		return
	}
	for i := 0; i < int(bodyNode.NamedChildCount()); i++ {
		member := bodyNode.NamedChild(i)
		if member.Type() == "function_definition" {
			w.visitFunctionDef(member, name)
		}
	}
}

func (w *pyWalker) visitImport(node *sitter.Node) {
	line := w.line(node)
	raw := w.text(node)
	kind := "import"
	value := raw
	if node.Type() == "import_from_statement" {
		kind = "from-import"
		if moduleNode := node.ChildByFieldName("module_name"); moduleNode != nil {
			value = w.text(moduleNode)
		}
	} else {
		value = strings.TrimSpace(strings.TrimPrefix(raw, "import"))
	}
	w.refs = append(w.refs, Ref{Kind: kind, Value: value, Line: line})
}

func (w *pyWalker) visitAssignment(node *sitter.Node, fn string) {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")
	if left == nil || right == nil || left.Type() != "identifier" {
		return
	}
	target := w.text(left)
	sourceExpr := w.text(right)
	sources := identifiersIn(right, w.source)

	w.assignments = append(w.assignments, Assignment{
		Line: w.line(node), InFunction: fn, TargetVar: target, SourceExpr: sourceExpr, Sources: sources,
	})

	if right.Type() == "call" {
		w.visitCall(right, fn)
	}
}

func (w *pyWalker) visitReturn(node *sitter.Node, fn string) {
	var expr string
	var sources []string
	if node.NamedChildCount() > 0 {
		valueNode := node.NamedChild(0)
		expr = w.text(valueNode)
		sources = identifiersIn(valueNode, w.source)
	}
	w.returns = append(w.returns, FunctionReturn{Line: w.line(node), Function: fn, ReturnExpr: expr, Sources: sources})
}

func (w *pyWalker) visitCall(node *sitter.Node, fn string) {
	functionNode := node.ChildByFieldName("function")
	callee := w.text(functionNode)
	line := w.line(node)

	w.checkFrameworkCall(callee, line, fn, node)

	argsNode := node.ChildByFieldName("arguments")
	var args []CallArgument
	if argsNode != nil {
		for i := 0; i < int(argsNode.NamedChildCount()); i++ {
			arg := argsNode.NamedChild(i)
			raw := w.text(arg)
			args = append(args, CallArgument{Raw: raw, RootVar: RootVariable(raw)})
			if arg.Type() == "call" {
				w.visitCall(arg, fn)
			}
		}
	}
	if len(args) == 0 {
		args = []CallArgument{{Raw: "", RootVar: ""}}
	}

	w.calls = append(w.calls, FunctionCall{
		Line: line, CallerFunction: fn, CalleeFunction: callee, Arguments: args,
	})
}

// checkFrameworkCall recognizes a handful of canonical calls (schema
// `.parse` validation calls, recorded as pydantic; os.environ.get/os.getenv
// reads; Django `.objects.filter/get/create` and `.query(` ORM calls) so
// the framework tables have real, database-driven rows for the
// sanitizer matcher (§4.7.1) to query instead of name lists embedded in
// the analyzer.
func (w *pyWalker) checkFrameworkCall(callee string, line int, fn string, node *sitter.Node) {
	switch {
	case strings.Contains(callee, ".parse") && (strings.Contains(callee, "Schema") || strings.Contains(callee, "schema")):
		w.framework.ValidationUsages = append(w.framework.ValidationUsages, ValidationUsage{
			Line: line, InFunction: fn, Framework: "pydantic", Method: lastSegment(callee),
		})
	case strings.HasPrefix(callee, "os.environ.get") || callee == "os.getenv":
		w.framework.EnvVarUsages = append(w.framework.EnvVarUsages, EnvVarUsage{
			Line: line, InFunction: fn, VarName: firstArgLiteral(node, w.source), Untrusted: true,
		})
	case strings.HasSuffix(callee, ".objects.filter") || strings.HasSuffix(callee, ".objects.get") ||
		strings.HasSuffix(callee, ".objects.create") || strings.Contains(callee, ".query("):
		w.framework.ORMQueries = append(w.framework.ORMQueries, ORMQuery{
			Line: line, InFunction: fn, ModelName: strings.TrimSuffix(callee, lastSegment(callee)), Method: lastSegment(callee), Framework: ormFramework(callee),
		})
	}
}

func ormFramework(callee string) string {
	switch {
	case strings.Contains(callee, ".objects."):
		return "django_orm"
	case strings.Contains(callee, "sqlalchemy") || strings.Contains(callee, ".query("):
		return "sqlalchemy"
	default:
		return "orm"
	}
}

func lastSegment(dotted string) string {
	parts := strings.Split(dotted, ".")
	return parts[len(parts)-1]
}

func firstArgLiteral(callNode *sitter.Node, source []byte) string {
	argsNode := callNode.ChildByFieldName("arguments")
	if argsNode == nil || argsNode.NamedChildCount() == 0 {
		return ""
	}
	return strings.Trim(argsNode.NamedChild(0).Content(source), `"'`)
}

// identifiersIn walks an expression subtree and returns every simple
// identifier it reads, in source order, for the assignment_sources /
// function_return_sources junction tables (§3.1 "every identifier read is
// a row in the junction, not a substring in a JSON blob").
func identifiersIn(node *sitter.Node, source []byte) []string {
	if node == nil {
		return nil
	}
	var out []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "identifier" {
			out = append(out, n.Content(source))
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(node)
	return out
}

// buildCFG constructs a minimal but structurally valid control flow graph
// for one function body: an entry block, one block per top-level
// statement chained in order (an if statement gets a condition block,
// for/while a loop_condition block, try a try block, anything else a basic
// block; nested statements get no blocks of their own), and a single exit
// block the last statement block leads to.
func (w *pyWalker) buildCFG(fn string, body *sitter.Node) {
	if body == nil {
		return
	}
	base := len(w.cfg.Blocks)
	entryIdx := base
	w.cfg.Blocks = append(w.cfg.Blocks, CFGBlock{FunctionName: fn, Type: BlockEntry, StartLine: w.line(body), EndLine: w.line(body)})

	prev := entryIdx
	for i := 0; i < int(body.NamedChildCount()); i++ {
		stmt := body.NamedChild(i)
		blockType := BlockBasic
		switch stmt.Type() {
		case "if_statement":
			blockType = BlockCondition
		case "for_statement", "while_statement":
			blockType = BlockLoopCondition
		case "try_statement":
			blockType = BlockTry
		}
		idx := len(w.cfg.Blocks)
		w.cfg.Blocks = append(w.cfg.Blocks, CFGBlock{
			FunctionName: fn, Type: blockType, StartLine: w.line(stmt), EndLine: w.line(stmt),
			Statements: []CFGStatement{{Type: stmt.Type(), Line: w.line(stmt)}},
		})
		w.cfg.Edges = append(w.cfg.Edges, CFGEdgeRef{SourceIdx: prev, TargetIdx: idx, EdgeType: EdgeNormal})
		prev = idx
	}

	exitIdx := len(w.cfg.Blocks)
	w.cfg.Blocks = append(w.cfg.Blocks, CFGBlock{FunctionName: fn, Type: BlockExit, StartLine: w.line(body), EndLine: w.line(body)})
	w.cfg.Edges = append(w.cfg.Edges, CFGEdgeRef{SourceIdx: prev, TargetIdx: exitIdx, EdgeType: EdgeNormal})
}
