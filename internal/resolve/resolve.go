// Package resolve implements Stage 2a (§4.4/§4.5): it opens the
// repo-index store read-only and answers the scope-normalization and
// import-resolution questions Stage 2b (internal/graphstore) needs before
// it can emit a single graph node or edge. Nothing in this package writes
// to any store — the dual-store data flow is strictly one-way (§5).
package resolve

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
)

// Resolver answers scope and import-resolution queries against a
// read-only connection to the repo-index store.
type Resolver struct {
	db *sql.DB
}

// Open wraps an existing *sql.DB connection to the repo-index store.
// Stage 2b is expected to open the store itself (possibly a second
// connection to the same file) and hand it here; Resolver never opens a
// store by path so it can never accidentally acquire write access.
func Open(db *sql.DB) *Resolver { return &Resolver{db: db} }

// ResolveScope performs the spatial lookup §4.5 requires: given a file and
// a line number, it returns the innermost enclosing function/method symbol
// whose [line, end_line] span contains it, or "<module>" if none does.
// "Innermost" is the symbol with the smallest span, since nested function
// definitions produce nested, non-disjoint spans in the symbols table.
func (r *Resolver) ResolveScope(file string, line int) (string, error) {
	rows, err := r.db.Query(
		`SELECT name, line, end_line FROM symbols
		 WHERE path = ? AND type IN ('function', 'method', 'arrow') AND line <= ? AND end_line >= ?`,
		file, line, line)
	if err != nil {
		return "", fmt.Errorf("resolve: scope lookup for %s:%d: %w", file, line, err)
	}
	defer rows.Close()

	best := ""
	bestSpan := -1
	for rows.Next() {
		var name string
		var start, end int
		if err := rows.Scan(&name, &start, &end); err != nil {
			return "", err
		}
		span := end - start
		if bestSpan == -1 || span < bestSpan {
			best, bestSpan = name, span
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if best == "" {
		return "<module>", nil
	}
	return best, nil
}

// ResolveImport resolves an import specifier recorded against fromFile to
// an absolute file path known to the repo-index store's `files` table.
// It tries relative path resolution (./ and ../ specifiers) and, for
// any other specifier, path-alias resolution against aliasMap (tsconfig
// paths / webpack resolve.alias-style prefixes). Monorepo workspace
// package roots are not consulted.
// A specifier that resolves to neither is left for the caller to
// record as `external::<specifier>` — resolve never guesses.
func (r *Resolver) ResolveImport(fromFile, specifier string, aliasMap map[string]string, knownFiles map[string]bool) (string, bool) {
	if strings.HasPrefix(specifier, ".") {
		candidate := filepath.Clean(filepath.Join(filepath.Dir(fromFile), specifier))
		if resolved, ok := matchKnownFile(candidate, knownFiles); ok {
			return resolved, true
		}
		return "", false
	}

	for prefix, target := range aliasMap {
		if specifier == prefix || strings.HasPrefix(specifier, prefix+"/") {
			rest := strings.TrimPrefix(specifier, prefix)
			candidate := filepath.Clean(filepath.Join(target, rest))
			if resolved, ok := matchKnownFile(candidate, knownFiles); ok {
				return resolved, true
			}
		}
	}

	return "", false
}

// matchKnownFile tries candidate verbatim and with the extensions a
// bare-specifier import commonly omits (§4.5 "barrel files").
func matchKnownFile(candidate string, knownFiles map[string]bool) (string, bool) {
	if knownFiles[candidate] {
		return candidate, true
	}
	for _, ext := range []string{".ts", ".tsx", ".js", ".jsx", ".py"} {
		if knownFiles[candidate+ext] {
			return candidate + ext, true
		}
	}
	for _, index := range []string{"index.ts", "index.tsx", "index.js", "__init__.py"} {
		joined := filepath.Join(candidate, index)
		if knownFiles[joined] {
			return joined, true
		}
	}
	return "", false
}

// ResolveController finds the api_endpoints row matching method and
// pattern exactly. §4.5 is explicit that route-to-controller resolution
// is exact-match only; there is no fuzzy substring or prefix matching
// that could silently attach the wrong authn/authz chain to a route.
func (r *Resolver) ResolveController(method, pattern string) (file string, line int, handler string, found bool, err error) {
	row := r.db.QueryRow(`SELECT file, line, handler_function FROM api_endpoints WHERE method = ? AND pattern = ?`, method, pattern)
	err = row.Scan(&file, &line, &handler)
	if err == sql.ErrNoRows {
		return "", 0, "", false, nil
	}
	if err != nil {
		return "", 0, "", false, fmt.Errorf("resolve: controller lookup for %s %s: %w", method, pattern, err)
	}
	return file, line, handler, true, nil
}

// KnownFiles loads every path the repo-index store's `files` table
// recorded as successfully parsed, for ResolveImport's candidate matching.
func KnownFiles(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query(`SELECT path FROM files WHERE parse_status = 'ok'`)
	if err != nil {
		return nil, fmt.Errorf("resolve: load known files: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		out[path] = true
	}
	return out, rows.Err()
}
