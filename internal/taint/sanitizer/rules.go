// Package sanitizer implements data-driven source/sink/sanitizer matching
// (§4.7.1): rules are expr-lang/expr predicate strings evaluated against a
// MatchContext, never hardcoded name lists baked into the analyzer. A
// deployment can add a framework's sources/sinks/sanitizers by editing the
// rule set, not by patching Go code.
package sanitizer

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// MatchContext is the value every compiled rule predicate runs against.
// Expression authors see these fields as bare identifiers, e.g.
// `Callee contains "request.GET"` or `Framework == "pydantic"`.
type MatchContext struct {
	File         string
	Function     string
	Callee       string
	Expr         string
	VariableName string
	Framework    string
}

// Kind distinguishes what a Rule classifies.
type Kind string

const (
	KindSource    Kind = "source"
	KindSink      Kind = "sink"
	KindSanitizer Kind = "sanitizer"
)

// Rule is one data-driven classification rule.
type Rule struct {
	ID       string
	Kind     Kind
	Category string // e.g. "sql_injection", "command_injection", "xss"
	Severity string
	Expr     string

	program *vm.Program
}

// Compile compiles every rule's predicate once; a rule with an invalid
// expression is a configuration error, not a silent no-match (§4.7.1
// "fail loudly on a bad rule, never treat it as never-matching").
func Compile(rules []Rule) ([]Rule, error) {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		program, err := expr.Compile(r.Expr, expr.Env(MatchContext{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("sanitizer: rule %s: compile %q: %w", r.ID, r.Expr, err)
		}
		r.program = program
		out[i] = r
	}
	return out, nil
}

// Matches evaluates the rule's compiled predicate against ctx.
func (r Rule) Matches(ctx MatchContext) (bool, error) {
	out, err := expr.Run(r.program, ctx)
	if err != nil {
		return false, fmt.Errorf("sanitizer: rule %s: eval: %w", r.ID, err)
	}
	matched, _ := out.(bool)
	return matched, nil
}

// Set is a compiled rule set split by kind for fast lookup during the
// analyzer's backward sweep.
type Set struct {
	Sources    []Rule
	Sinks      []Rule
	Sanitizers []Rule
}

// NewSet splits and stores already-compiled rules by kind.
func NewSet(rules []Rule) Set {
	var s Set
	for _, r := range rules {
		switch r.Kind {
		case KindSource:
			s.Sources = append(s.Sources, r)
		case KindSink:
			s.Sinks = append(s.Sinks, r)
		case KindSanitizer:
			s.Sanitizers = append(s.Sanitizers, r)
		}
	}
	return s
}

// MatchSink returns the first sink rule ctx satisfies, if any.
func (s Set) MatchSink(ctx MatchContext) (Rule, bool, error) {
	return firstMatch(s.Sinks, ctx)
}

// MatchSource returns the first source rule ctx satisfies, if any.
func (s Set) MatchSource(ctx MatchContext) (Rule, bool, error) {
	return firstMatch(s.Sources, ctx)
}

// MatchSanitizer returns the first sanitizer rule ctx satisfies, if any.
func (s Set) MatchSanitizer(ctx MatchContext) (Rule, bool, error) {
	return firstMatch(s.Sanitizers, ctx)
}

func firstMatch(rules []Rule, ctx MatchContext) (Rule, bool, error) {
	for _, r := range rules {
		ok, err := r.Matches(ctx)
		if err != nil {
			return Rule{}, false, err
		}
		if ok {
			return r, true, nil
		}
	}
	return Rule{}, false, nil
}

// DefaultRules is the engine's built-in rule set, covering the request-
// object, environment-variable, and raw-query/command surfaces common to
// the Python/TS/JS ecosystems this engine targets. Deployments extend or
// replace this set; nothing here is special-cased in the analyzer.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "src-http-request", Kind: KindSource, Category: "tainted_input", Severity: "high",
			Expr: `Expr contains "request.GET" or Expr contains "request.POST" or Expr contains "req.query" or Expr contains "req.body" or Expr contains "req.params"`},
		{ID: "src-env", Kind: KindSource, Category: "tainted_input", Severity: "medium",
			Expr: `Expr contains "os.environ" or Expr contains "process.env" or Expr contains "os.getenv"`},
		{ID: "src-destructured-param", Kind: KindSource, Category: "tainted_input", Severity: "high",
			Expr: `Expr == "<destructured-parameter>"`},

		{ID: "sink-sql", Kind: KindSink, Category: "sql_injection", Severity: "critical",
			Expr: `Callee contains ".query" or Callee contains ".execute" or Callee contains ".raw"`},
		{ID: "sink-command", Kind: KindSink, Category: "command_injection", Severity: "critical",
			Expr: `Callee contains "os.system" or Callee contains "subprocess." or Callee contains "child_process" or Callee contains "exec("`},
		{ID: "sink-eval", Kind: KindSink, Category: "code_injection", Severity: "critical",
			Expr: `Callee == "eval" or Callee contains ".eval"`},

		{ID: "saniz-escape", Kind: KindSanitizer, Category: "escaping", Severity: "n/a",
			Expr: `Callee contains "escape" or Callee contains "sanitize" or Callee contains "bleach.clean" or Callee contains "html.escape"`},
		{ID: "saniz-validation", Kind: KindSanitizer, Category: "schema_validation", Severity: "n/a",
			Expr: `Framework == "zod" or Framework == "pydantic" or Framework == "joi_or_yup"`},
		{ID: "saniz-orm-param", Kind: KindSanitizer, Category: "parameterization", Severity: "n/a",
			Expr: `Framework == "django_orm" or Framework == "sqlalchemy"`},
	}
}
