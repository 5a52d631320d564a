package extract

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// TSJSExtractor handles TypeScript, JavaScript, and their JSX variants.
// JSX is handled with the two-pass extraction described in §4.3: the
// "transformed" pass parses with the plain JS/TS grammar (JSX syntax
// desugars to nothing a later stage mistakes for taint-relevant code,
// and CFG + call/assignment/return rows are emitted normally); the
// "preserve" pass re-parses the same file with the JSX-aware grammar, and
// only its react components are kept, copied into the transformed payload.
// The returned payload always has JSXPreserved false, so nothing from the
// preserve pass is written to the `*_jsx` mirror tables.
type TSJSExtractor struct {
	Lang Language
	JSX  bool
}

func (e TSJSExtractor) Language() Language { return e.Lang }

func (e TSJSExtractor) Extract(path string, source []byte) (Payload, error) {
	transformed, err := e.extractOnePass(path, source, languageFor(e.Lang, false))
	if err != nil {
		return Payload{}, err
	}
	if !e.JSX {
		return transformed, nil
	}

	preserved, err := e.extractOnePass(path, source, languageFor(e.Lang, true))
	if err != nil {
		return transformed, nil
	}
	transformed.JSXPreserved = false
	preserved.JSXPreserved = true
	transformed.Framework.ReactComponents = preserved.Framework.ReactComponents
	return transformed, nil
}

func languageFor(lang Language, jsxAware bool) *sitter.Language {
	switch {
	case lang == TypeScript && jsxAware:
		return tsx.GetLanguage()
	case lang == TypeScript:
		return typescript.GetLanguage()
	default:
		return javascript.GetLanguage()
	}
}

func (e TSJSExtractor) extractOnePass(path string, source []byte, lang *sitter.Language) (Payload, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return Payload{Language: e.Lang, Success: false, Errors: []string{err.Error()}}, nil
	}
	root := tree.RootNode()
	if root == nil {
		return Payload{Language: e.Lang, Success: false, Errors: []string{"tsjs: empty parse tree"}}, nil
	}

	w := &tsjsWalker{source: source}
	w.walk(root, "<module>")

	return Payload{
		Language:        e.Lang,
		Success:         true,
		Partial:         root.HasError(),
		Symbols:         w.symbols,
		Refs:            w.refs,
		Assignments:     w.assignments,
		FunctionCalls:   w.calls,
		FunctionReturns: w.returns,
		CFG:             w.cfg,
		Framework:       w.framework,
	}, nil
}

type tsjsWalker struct {
	source []byte

	symbols     []Symbol
	refs        []Ref
	assignments []Assignment
	calls       []FunctionCall
	returns     []FunctionReturn
	cfg         CFG
	framework   FrameworkArtifacts
}

func (w *tsjsWalker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(w.source)
}

func (w *tsjsWalker) line(n *sitter.Node) int { return int(n.StartPoint().Row) + 1 }

func (w *tsjsWalker) walk(node *sitter.Node, fn string) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "function_declaration", "method_definition":
			w.visitFunction(child, fn)
		case "class_declaration":
			w.visitClass(child)
		case "import_statement":
			w.visitImport(child)
		case "lexical_declaration", "variable_declaration":
			w.visitVariableDeclaration(child, fn)
		case "return_statement":
			w.visitReturn(child, fn)
		case "expression_statement":
			w.walkExpressionStatement(child, fn)
		case "jsx_element", "jsx_self_closing_element":
			w.visitJSX(child)
			w.walk(child, fn)
		default:
			w.walk(child, fn)
		}
	}
}

func (w *tsjsWalker) walkExpressionStatement(node *sitter.Node, fn string) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "call_expression":
			w.visitCall(child, fn)
		case "assignment_expression":
			w.visitAssignmentExpr(child, fn)
		}
	}
}

func (w *tsjsWalker) visitFunction(node *sitter.Node, enclosing string) {
	nameNode := node.ChildByFieldName("name")
	name := w.text(nameNode)
	if name == "" {
		name = "<anonymous>"
	}
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

	w.symbols = append(w.symbols, Symbol{Name: qualified, Type: "function", Line: w.line(node), EndLine: endLine})
	w.buildCFG(qualified, bodyNode)

	w.collectDestructuredParams(node, qualified)

	if bodyNode != nil {
		w.walk(bodyNode, qualified)
	}
}

// collectDestructuredParams emits an implicit assignment (source expression
// "<destructured-parameter>", no symbol row) for each shorthand field
// pulled out of a destructured parameter
// (`function handler({ user, query })`), so taint can flow from a
// request-shaped parameter into the individual bound names (§8 Scenario C).
func (w *tsjsWalker) collectDestructuredParams(node *sitter.Node, fn string) {
	paramsNode := node.ChildByFieldName("parameters")
	if paramsNode == nil {
		return
	}
	for i := 0; i < int(paramsNode.NamedChildCount()); i++ {
		param := paramsNode.NamedChild(i)
		if param.Type() != "object_pattern" {
			continue
		}
		for j := 0; j < int(param.NamedChildCount()); j++ {
			field := param.NamedChild(j)
			name := w.text(field)
			if field.Type() == "shorthand_property_identifier_pattern" {
				w.assignments = append(w.assignments, Assignment{
					Line: w.line(field), InFunction: fn, TargetVar: name,
					SourceExpr: "<destructured-parameter>", Sources: []string{"<parameter>"},
				})
			}
		}
	}
}

func (w *tsjsWalker) visitClass(node *sitter.Node) {
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
		if member.Type() == "method_definition" {
			w.visitFunction(member, name)
		}
	}
}

func (w *tsjsWalker) visitImport(node *sitter.Node) {
	line := w.line(node)
	sourceNode := node.ChildByFieldName("source")
	value := strings.Trim(w.text(sourceNode), `"'`)
	w.refs = append(w.refs, Ref{Kind: "import", Value: value, Line: line})
}

func (w *tsjsWalker) visitVariableDeclaration(node *sitter.Node, fn string) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		decl := node.NamedChild(i)
		if decl.Type() != "variable_declarator" {
			continue
		}
		nameNode := decl.ChildByFieldName("name")
		valueNode := decl.ChildByFieldName("value")
		if nameNode == nil || nameNode.Type() != "identifier" || valueNode == nil {
			continue
		}
		target := w.text(nameNode)
		w.assignments = append(w.assignments, Assignment{
			Line: w.line(decl), InFunction: fn, TargetVar: target,
			SourceExpr: w.text(valueNode), Sources: identifiersIn(valueNode, w.source),
		})
		if valueNode.Type() == "arrow_function" {
			w.symbols = append(w.symbols, Symbol{Name: target, Type: "arrow", Line: w.line(decl), EndLine: w.line(decl)})
			body := valueNode.ChildByFieldName("body")
			w.buildCFG(target, body)
			w.collectDestructuredParams(valueNode, target)
			if body != nil {
				w.walk(body, target)
			}
		}
		if valueNode.Type() == "call_expression" {
			w.visitCall(valueNode, fn)
		}
	}
}

func (w *tsjsWalker) visitAssignmentExpr(node *sitter.Node, fn string) {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")
	if left == nil || right == nil || left.Type() != "identifier" {
		return
	}
	w.assignments = append(w.assignments, Assignment{
		Line: w.line(node), InFunction: fn, TargetVar: w.text(left),
		SourceExpr: w.text(right), Sources: identifiersIn(right, w.source),
	})
	if right.Type() == "call_expression" {
		w.visitCall(right, fn)
	}
}

func (w *tsjsWalker) visitReturn(node *sitter.Node, fn string) {
	var expr string
	var sources []string
	if node.NamedChildCount() > 0 {
		valueNode := node.NamedChild(0)
		expr = w.text(valueNode)
		sources = identifiersIn(valueNode, w.source)
	}
	w.returns = append(w.returns, FunctionReturn{Line: w.line(node), Function: fn, ReturnExpr: expr, Sources: sources})
}

func (w *tsjsWalker) visitCall(node *sitter.Node, fn string) {
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
			if arg.Type() == "call_expression" {
				w.visitCall(arg, fn)
			}
		}
	}
	if len(args) == 0 {
		args = []CallArgument{{Raw: "", RootVar: ""}}
	}

	w.calls = append(w.calls, FunctionCall{Line: line, CallerFunction: fn, CalleeFunction: callee, Arguments: args})

	if strings.Contains(callee, ".get") || strings.Contains(callee, ".post") || strings.Contains(callee, ".put") ||
		strings.Contains(callee, ".delete") || strings.Contains(callee, ".patch") || strings.Contains(callee, ".use") {
		w.checkRouteRegistration(callee, line, fn, argsNode)
	}
}

func (w *tsjsWalker) checkRouteRegistration(callee string, line int, fn string, argsNode *sitter.Node) {
	if argsNode == nil || argsNode.NamedChildCount() == 0 {
		return
	}
	pattern := strings.Trim(w.text(argsNode.NamedChild(0)), `"'`)
	if !strings.HasPrefix(pattern, "/") {
		return
	}
	method := "GET"
	switch {
	case strings.HasSuffix(callee, ".post"):
		method = "POST"
	case strings.HasSuffix(callee, ".put"):
		method = "PUT"
	case strings.HasSuffix(callee, ".delete"):
		method = "DELETE"
	case strings.HasSuffix(callee, ".patch"):
		method = "PATCH"
	}
	var controls []string
	for i := 1; i < int(argsNode.NamedChildCount())-1; i++ {
		mw := argsNode.NamedChild(i)
		if mw.Type() == "identifier" {
			controls = append(controls, w.text(mw))
		}
	}
	w.framework.APIEndpoints = append(w.framework.APIEndpoints, APIEndpoint{
		Line: line, Method: method, Pattern: pattern, Path: pattern, HandlerFunction: fn, Controls: controls,
	})
	if len(controls) > 0 {
		w.framework.MiddlewareChains = append(w.framework.MiddlewareChains, MiddlewareChain{EndpointLine: line, Names: controls})
	}
}

func (w *tsjsWalker) checkFrameworkCall(callee string, line int, fn string, node *sitter.Node) {
	switch {
	case strings.HasSuffix(callee, ".parse") || strings.HasSuffix(callee, ".safeParse") ||
		strings.HasSuffix(callee, ".validate") || strings.HasSuffix(callee, ".validateSync"):
		w.framework.ValidationUsages = append(w.framework.ValidationUsages, ValidationUsage{
			Line: line, InFunction: fn, Framework: zodOrJoi(callee), Method: lastSegment(callee),
		})
	case strings.Contains(callee, "process.env"):
		w.framework.EnvVarUsages = append(w.framework.EnvVarUsages, EnvVarUsage{Line: line, InFunction: fn, Untrusted: true})
	case strings.Contains(callee, "jwt.sign") || strings.Contains(callee, "jwt.verify") || strings.Contains(callee, "jwt.decode"):
		w.framework.JWTPatterns = append(w.framework.JWTPatterns, JWTPattern{
			Line: line, InFunction: fn, Library: "jsonwebtoken", Operation: lastSegment(callee),
		})
	case strings.Contains(callee, ".findOne") || strings.Contains(callee, ".findMany") ||
		strings.Contains(callee, ".query(") || strings.Contains(callee, ".raw("):
		w.framework.ORMQueries = append(w.framework.ORMQueries, ORMQuery{
			Line: line, InFunction: fn, ModelName: strings.TrimSuffix(callee, "."+lastSegment(callee)), Method: lastSegment(callee), Framework: "prisma_or_sql",
		})
	}
}

func zodOrJoi(callee string) string {
	if strings.Contains(callee, "safeParse") {
		return "zod"
	}
	return "joi_or_yup"
}

func (w *tsjsWalker) visitJSX(node *sitter.Node) {
	var nameNode *sitter.Node
	if node.Type() == "jsx_self_closing_element" {
		nameNode = node.ChildByFieldName("name")
	} else {
		opening := node.NamedChild(0)
		if opening != nil {
			nameNode = opening.ChildByFieldName("name")
		}
	}
	name := w.text(nameNode)
	if name == "" || strings.ToLower(name[:1]) == name[:1] {
		return // lowercase tag: a DOM element, not a component reference
	}
	w.framework.ReactComponents = append(w.framework.ReactComponents, ReactComponent{
		Line: w.line(node), ComponentName: name, Kind: "jsx_reference",
	})
}

func (w *tsjsWalker) buildCFG(fn string, body *sitter.Node) {
	if body == nil {
		return
	}
	entryIdx := len(w.cfg.Blocks)
	w.cfg.Blocks = append(w.cfg.Blocks, CFGBlock{FunctionName: fn, Type: BlockEntry, StartLine: w.line(body), EndLine: w.line(body)})

	prev := entryIdx
	for i := 0; i < int(body.NamedChildCount()); i++ {
		stmt := body.NamedChild(i)
		blockType := BlockBasic
		switch stmt.Type() {
		case "if_statement":
			blockType = BlockCondition
		case "for_statement", "for_in_statement", "while_statement":
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
