package extract

import "strings"

// stripKeywords are prefix operators/keywords the root-identifier parser
// strips before looking for the base variable (§4.3).
var stripKeywords = []string{"await", "new", "yield", "typeof", "void", "delete"}

// RootVariable derives the root identifier of an argument expression
// after stripping `await`, `new`, `yield`, `typeof`, `void`, `delete`,
// outer parentheses, and post-call/member chains. This is the analyzer's
// argument parser; it never uses a naive split(" ")[0].
//
// Examples:
//
//	"await service.getById(id).then(r => r.data)" -> "service"
//	"new UserService()"                            -> "UserService"
//	"(x)"                                           -> "x"
//	"req.body.user"                                 -> "req"
func RootVariable(raw string) string {
	s := strings.TrimSpace(raw)

	for changed := true; changed; {
		changed = false
		for _, kw := range stripKeywords {
			if !strings.HasPrefix(s, kw) {
				continue
			}
			tail := s[len(kw):]
			if tail == "" {
				continue
			}
			boundary := tail[0] == ' ' || tail[0] == '\t' || tail[0] == '('
			if !boundary {
				continue
			}
			s = strings.TrimSpace(tail)
			changed = true
		}
		for strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") && parensBalanced(s) {
			inner := strings.TrimSpace(s[1 : len(s)-1])
			if inner == s {
				break
			}
			s = inner
			changed = true
		}
	}

	// Stop at the first delimiter that ends the base identifier/member
	// chain root: call parens, indexing, arithmetic/comparison operators,
	// or whitespace (a binary expression).
	end := len(s)
	for i, r := range s {
		switch r {
		case '(', '[', ' ', '\t', '+', '-', '*', '/', '%', '=', '<', '>', '!', '&', '|', ',', ';':
			if i < end {
				end = i
			}
		}
		if i >= end {
			break
		}
	}
	s = s[:end]

	// Reduce a dotted member chain (`service.getById`) to its root
	// identifier (`service`); a bare identifier passes through unchanged.
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		s = s[:idx]
	}

	return strings.TrimSpace(s)
}

func parensBalanced(s string) bool {
	depth := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}
