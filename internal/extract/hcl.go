package extract

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/hcl"
)

// HCLExtractor parses Terraform configuration. It never builds a CFG or
// call graph — HCL is declarative, so the only rows it produces are the
// terraform_* framework tables (§3.4, §8 Scenario E).
type HCLExtractor struct{}

func (HCLExtractor) Language() Language { return HCL }

func (e HCLExtractor) Extract(path string, source []byte) (Payload, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(hcl.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return Payload{Language: HCL, Success: false, Errors: []string{err.Error()}}, nil
	}
	root := tree.RootNode()
	if root == nil {
		return Payload{Language: HCL, Success: false, Errors: []string{"hcl: empty parse tree"}}, nil
	}

	w := &hclWalker{source: source}
	w.walk(root)

	return Payload{
		Language:  HCL,
		Success:   true,
		Partial:   root.HasError(),
		Framework: w.framework,
	}, nil
}

type hclWalker struct {
	source    []byte
	framework FrameworkArtifacts
}

func (w *hclWalker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(w.source)
}

func (w *hclWalker) line(n *sitter.Node) int { return int(n.StartPoint().Row) + 1 }

func (w *hclWalker) walk(node *sitter.Node) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "block" {
			w.visitBlock(child)
			continue
		}
		w.walk(child)
	}
}

// visitBlock handles top-level `resource "type" "name" { ... }`,
// `variable "name" { ... }`, and `output "name" { ... }` blocks. HCL's
// tree-sitter grammar represents a block as an identifier sequence
// (block type + labels) followed by a body; we read the leading
// identifiers directly rather than via named fields since the grammar
// does not label them.
func (w *hclWalker) visitBlock(node *sitter.Node) {
	var idents []string
	var body *sitter.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "identifier":
			idents = append(idents, w.text(child))
		case "string_lit", "quoted_template":
			idents = append(idents, strings.Trim(w.text(child), `"`))
		case "body":
			body = child
		}
	}
	if len(idents) == 0 {
		return
	}

	switch idents[0] {
	case "resource":
		w.visitResource(node, idents, body)
	case "variable":
		if len(idents) >= 2 {
			w.framework.TerraformVariables = append(w.framework.TerraformVariables, TerraformVariable{
				Line: w.line(node), VariableName: idents[1], DefaultExpr: attrValue(body, "default", w.source),
			})
		}
	case "output":
		if len(idents) >= 2 {
			w.framework.TerraformOutputs = append(w.framework.TerraformOutputs, TerraformOutput{
				Line: w.line(node), OutputName: idents[1], ValueExpr: attrValue(body, "value", w.source),
			})
		}
	}

	if body != nil {
		w.walk(body)
	}
}

func (w *hclWalker) visitResource(node *sitter.Node, idents []string, body *sitter.Node) {
	if len(idents) < 3 {
		return
	}
	resourceType, resourceName := idents[1], idents[2]
	w.framework.TerraformResources = append(w.framework.TerraformResources, TerraformResource{
		Line: w.line(node), ResourceType: resourceType, ResourceName: resourceName,
		AttributesJSON: w.text(body),
	})

	// Scenario E: a public-read S3 bucket ACL is a high-severity public
	// exposure finding raised directly by the extractor, not deferred to
	// the taint analyzer (ACLs are a config fact, not a data flow). Terraform
	// allows the ACL to be set two ways: the modern separate
	// aws_s3_bucket_acl resource, or an inline `acl` attribute directly on
	// aws_s3_bucket itself — both are checked.
	if resourceType == "aws_s3_bucket_acl" || resourceType == "aws_s3_bucket" {
		acl := attrValue(body, "acl", w.source)
		if acl == "public-read" || acl == "public-read-write" {
			w.framework.TerraformFindings = append(w.framework.TerraformFindings, TerraformFinding{
				Line: w.line(node), ResourceType: resourceType, ResourceName: resourceName,
				Category: "public_exposure", Severity: "high",
				Message: "S3 bucket ACL grants public read access",
			})
		}
	}
}

// attrValue finds `name = <expr>` inside an HCL block body and returns the
// trimmed expression text, or "" if absent.
func attrValue(body *sitter.Node, name string, source []byte) string {
	if body == nil {
		return ""
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child.Type() != "attribute" {
			continue
		}
		keyNode := child.ChildByFieldName("name")
		if keyNode == nil || keyNode.Content(source) != name {
			continue
		}
		valueNode := child.ChildByFieldName("value")
		return strings.Trim(valueNode.Content(source), `"`)
	}
	return ""
}
