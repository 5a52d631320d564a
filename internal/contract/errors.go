package contract

import "strings"

// SchemaContractViolation is raised when the live schema of a store
// disagrees with its declared contract: a missing table, a missing or
// wrong-typed column, a nullability disagreement, or an absent declared
// index. It is always fatal and always raised before any read or write
// against the offending store.
type SchemaContractViolation struct {
	Violations []Violation
}

func (e *SchemaContractViolation) Error() string {
	var b strings.Builder
	b.WriteString("schema contract violation:")
	for _, v := range e.Violations {
		b.WriteString("\n  - ")
		b.WriteString(v.String())
	}
	return b.String()
}
