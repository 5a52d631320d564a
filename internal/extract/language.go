package extract

import "path/filepath"

// Extractor is the capability interface every language extractor
// satisfies. A single Extract call returns the full uniform payload for
// one file; there is no separate ExtractSymbols/ExtractCFG split because
// every reference extractor builds its payload from one tree-sitter parse
// pass and splitting the interface would just force a second parse.
type Extractor interface {
	Language() Language
	Extract(path string, source []byte) (Payload, error)
}

// ForPath resolves the Extractor for path by extension, enforcing the
// fixed parser-priority rule from §4.3: Python files are always routed to
// the Python core parser, HCL files to the HCL parser, and everything
// else that tree-sitter can plausibly parse as a script goes to the
// JS/TS extractor (which itself detects TSX/JSX two-pass handling).
// A file with no matching extension returns ok=false and the caller
// skips it; that is not an ExtractionFailed (the file was never claimed
// as ours to parse).
func ForPath(path string) (Extractor, bool) {
	switch filepath.Ext(path) {
	case ".py", ".pyi":
		return PythonExtractor{}, true
	case ".ts", ".tsx":
		return TSJSExtractor{Lang: TypeScript, JSX: filepath.Ext(path) == ".tsx"}, true
	case ".js", ".jsx", ".mjs", ".cjs":
		return TSJSExtractor{Lang: JavaScript, JSX: filepath.Ext(path) == ".jsx"}, true
	case ".tf", ".tfvars", ".hcl":
		return HCLExtractor{}, true
	default:
		return nil, false
	}
}
