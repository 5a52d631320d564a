// Package extract defines the uniform extraction payload (§4.3) and
// provides reference Language Extractor implementations for Python,
// TypeScript/JavaScript, and HCL built on github.com/smacker/go-tree-sitter.
//
// These are reference implementations, not the contract: Extractor is the
// seam an external, fancier extractor (e.g. a real TS compiler-service
// subprocess) could replace without touching Stage 1 orchestration
// (internal/index).
package extract

// Language tags one of the extractor variants this engine dispatches on.
type Language string

const (
	Python     Language = "python"
	TypeScript Language = "typescript"
	JavaScript Language = "javascript"
	HCL        Language = "hcl"
)

// Symbol is one row destined for the `symbols` table.
type Symbol struct {
	Name           string
	Type           string // function, class, method, arrow, variable, type, ...
	Line           int
	EndLine        int
	TypeAnnotation string
	IsTyped        bool
}

// Ref is one row destined for the `refs` table. Value is filled by the
// extractor's own absolute-path resolution (§4.3 "Absolute path resolution
// is the extractor's job"); unresolved specifiers are later normalized to
// `external::<specifier>` by internal/resolve if the extractor could not
// resolve them itself.
type Ref struct {
	Kind  string // import, require, from-import
	Value string
	Line  int
}

// Assignment is one row destined for `assignments`, with its RHS simple
// identifiers already split out into Sources (destined for the
// `assignment_sources` junction table) rather than stashed in a blob.
type Assignment struct {
	Line       int
	InFunction string
	TargetVar  string
	SourceExpr string
	Sources    []string
}

// CallArgument carries both the original source text (for display) and the
// root identifier after stripping `await`/`new`/`yield`/`typeof`/`void`/
// `delete`, outer parentheses, and post-call chains (§4.3).
type CallArgument struct {
	Raw     string
	RootVar string
}

// FunctionCall is one row destined for `function_call_args` (one row per
// argument; a zero-argument call still emits a single sentinel row so the
// call site is never silently dropped, §8 Scenario D).
type FunctionCall struct {
	Line           int
	CallerFunction string
	CalleeFunction string
	Arguments      []CallArgument
	ParamNames     []string // same length as Arguments when known, else empty
	CalleeFilePath string   // resolved absolute path, empty when dynamic/external
}

// FunctionReturn is one row destined for `function_returns`, with RHS
// identifiers split into Sources for `function_return_sources`.
type FunctionReturn struct {
	Line       int
	Function   string
	ReturnExpr string
	Sources    []string
}

// BlockType mirrors the cfg_blocks.block_type domain (SPEC_FULL §4.10).
type BlockType string

const (
	BlockEntry         BlockType = "entry"
	BlockExit          BlockType = "exit"
	BlockBasic         BlockType = "basic"
	BlockCondition     BlockType = "condition"
	BlockLoopBody      BlockType = "loop_body"
	BlockLoopCondition BlockType = "loop_condition"
	BlockTry           BlockType = "try"
	BlockExcept        BlockType = "except"
	BlockFinally       BlockType = "finally"
	BlockMerge         BlockType = "merge"
	BlockReturn        BlockType = "return"
)

// CFGEdgeType mirrors cfg_edges.edge_type.
type CFGEdgeType string

const (
	EdgeNormal    CFGEdgeType = "normal"
	EdgeTrue      CFGEdgeType = "true"
	EdgeFalse     CFGEdgeType = "false"
	EdgeBack      CFGEdgeType = "back_edge"
	EdgeException CFGEdgeType = "exception"
)

// CFGStatement is one entry of a block's statement list.
type CFGStatement struct {
	Type string
	Line int
}

// CFGBlock is one basic block, indexed by its position in CFG.Blocks;
// edges reference blocks by that index until the indexer assigns real
// storage IDs via the batched storage engine's CFG ID fixup.
type CFGBlock struct {
	FunctionName string
	Type         BlockType
	StartLine    int
	EndLine      int
	Statements   []CFGStatement
}

// CFGEdgeRef references blocks by index into the owning CFG.Blocks slice.
type CFGEdgeRef struct {
	SourceIdx int
	TargetIdx int
	EdgeType  CFGEdgeType
}

// CFG holds the control flow graphs of every function in one file, each
// block tagged with its FunctionName; for JSX/TSX files it comes from the
// transformed pass (§4.3 "Two-pass JSX extraction").
type CFG struct {
	Blocks []CFGBlock
	Edges  []CFGEdgeRef
}

// ORMQuery is one ORM call site artifact.
type ORMQuery struct {
	Line          int
	InFunction    string
	ModelName     string
	Method        string
	Framework     string
	ArgumentExpr  string
}

// MiddlewareChain is the ordered middleware list for one route.
type MiddlewareChain struct {
	EndpointLine int
	Names        []string
}

// ValidationUsage is one call into a validation framework (Zod, Joi, Yup,
// class-validator, Pydantic, Marshmallow, ...), matched later by the
// analyzer's data-driven sanitizer matcher (§4.7.1).
type ValidationUsage struct {
	Line       int
	InFunction string
	Framework  string
	Method     string
	TargetVar  string
	SchemaName string
}

// APIEndpoint is one route definition.
type APIEndpoint struct {
	Line            int
	Method          string
	Pattern         string
	Path            string
	HandlerFunction string
	Controls        []string // authn/authz middleware names, in order
}

// ReactComponent is one JSX/TSX component artifact.
type ReactComponent struct {
	Line          int
	ComponentName string
	Kind          string
	HooksUsed     []string
}

// DjangoArtifact is one Django view/form/admin artifact.
type DjangoArtifact struct {
	Line   int
	Kind   string
	Name   string
	Detail string
}

// TerraformResource is one HCL `resource` block.
type TerraformResource struct {
	Line           int
	ResourceType   string
	ResourceName   string
	AttributesJSON string
}

// TerraformVariable is one HCL `variable` block.
type TerraformVariable struct {
	Line         int
	VariableName string
	DefaultExpr  string
}

// TerraformOutput is one HCL `output` block.
type TerraformOutput struct {
	Line       int
	OutputName string
	ValueExpr  string
}

// TerraformFinding is one security/config finding raised directly by the
// HCL extractor (Scenario E: a public-read S3 bucket ACL).
type TerraformFinding struct {
	Line         int
	ResourceType string
	ResourceName string
	Category     string
	Severity     string
	Message      string
}

// JWTPattern is one JWT sign/verify/decode call site.
type JWTPattern struct {
	Line       int
	InFunction string
	Library    string
	Operation  string
	Algorithm  string
}

// EnvVarUsage is one environment-variable read.
type EnvVarUsage struct {
	Line       int
	InFunction string
	VarName    string
	Untrusted  bool
}

// FrameworkArtifacts groups every framework-specific table an extractor
// may populate (SPEC_FULL §3.4). Each field is a first-class slice of a
// tagged struct, never a stringified catch-all blob.
type FrameworkArtifacts struct {
	ORMQueries         []ORMQuery
	MiddlewareChains   []MiddlewareChain
	ValidationUsages   []ValidationUsage
	APIEndpoints       []APIEndpoint
	ReactComponents    []ReactComponent
	DjangoArtifacts    []DjangoArtifact
	TerraformResources []TerraformResource
	TerraformVariables []TerraformVariable
	TerraformOutputs   []TerraformOutput
	TerraformFindings  []TerraformFinding
	JWTPatterns        []JWTPattern
	EnvVarUsages       []EnvVarUsage
}

// Payload is the uniform extraction payload for one file (§4.3).
// When JSXPreserved is set, Stage 1 writes the payload's symbols, refs,
// assignments and call arguments to the `*_jsx` tables instead of the
// primary ones. No extractor in this package returns a payload with it
// set: TSJSExtractor keeps only the preserve pass's react components.
type Payload struct {
	Language     Language
	Success      bool
	Partial      bool
	JSXPreserved bool

	Symbols         []Symbol
	Refs            []Ref
	Assignments     []Assignment
	FunctionCalls   []FunctionCall
	FunctionReturns []FunctionReturn
	CFG             CFG
	Framework       FrameworkArtifacts

	Errors []string
}
