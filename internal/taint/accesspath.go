package taint

import "strings"

// AccessPath is the field-sensitive abstraction the analyzer tracks
// instead of a bare variable name (§4.7.2): a base variable plus a
// k-limited chain of field accesses, scoped to one (file, function).
type AccessPath struct {
	File     string
	Function string
	Base     string
	Fields   []string
}

// NewAccessPath constructs a zero-field access path for a base variable.
func NewAccessPath(file, function, base string) AccessPath {
	return AccessPath{File: file, Function: function, Base: base}
}

// Extend appends one field access, k-limiting the resulting field chain:
// once Fields reaches kLimit entries, further extensions are folded into
// the last entry rather than growing the path without bound (§4.7.2
// "k-limiting, default k=5").
func (a AccessPath) Extend(field string, kLimit int) AccessPath {
	out := AccessPath{File: a.File, Function: a.Function, Base: a.Base, Fields: append([]string(nil), a.Fields...)}
	if kLimit <= 0 {
		kLimit = 5
	}
	if len(out.Fields) < kLimit {
		out.Fields = append(out.Fields, field)
	} else if len(out.Fields) > 0 {
		out.Fields[len(out.Fields)-1] = out.Fields[len(out.Fields)-1] + "." + field
	}
	return out
}

// String renders the access path as "file::function::base.field1.field2".
func (a AccessPath) String() string {
	s := a.File + "::" + a.Function + "::" + a.Base
	if len(a.Fields) > 0 {
		s += "." + strings.Join(a.Fields, ".")
	}
	return s
}

// Matches implements the prefix-aliasing equality rule (§4.7.2): two
// access paths refer to the same tainted value if one's field chain is a
// prefix of the other's (same base, in the same scope) — `user.profile`
// taints anything reached through `user.profile.email`, and vice versa a
// read of the shorter path observes taint written through the longer one.
func (a AccessPath) Matches(other AccessPath) bool {
	if a.File != other.File || a.Function != other.Function || a.Base != other.Base {
		return false
	}
	shortest, longest := a.Fields, other.Fields
	if len(longest) < len(shortest) {
		shortest, longest = longest, shortest
	}
	for i, f := range shortest {
		if longest[i] != f {
			return false
		}
	}
	return true
}
