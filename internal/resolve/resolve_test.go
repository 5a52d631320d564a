package resolve

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/sastcore/engine/internal/contract"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, contract.RepoIndex.Create(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func TestResolveScope_PicksInnermostEnclosingFunction(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`INSERT INTO files (path, language, size_bytes, content_hash, parse_status) VALUES ('a.py','python',1,'h','ok')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO symbols (path, name, type, line, end_line) VALUES ('a.py', 'outer', 'function', 1, 20)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO symbols (path, name, type, line, end_line) VALUES ('a.py', 'outer.inner', 'function', 5, 10)`)
	require.NoError(t, err)

	r := Open(db)
	scope, err := r.ResolveScope("a.py", 7)
	require.NoError(t, err)
	assert.Equal(t, "outer.inner", scope)
}

func TestResolveScope_NoEnclosingFunctionReturnsModule(t *testing.T) {
	db := openTestDB(t)
	r := Open(db)
	scope, err := r.ResolveScope("a.py", 1)
	require.NoError(t, err)
	assert.Equal(t, "<module>", scope)
}

func TestResolveImport_RelativeSpecifier(t *testing.T) {
	db := openTestDB(t)
	r := Open(db)
	known := map[string]bool{"src/services/user.ts": true}
	resolved, ok := r.ResolveImport("src/routes/handler.ts", "../services/user", nil, known)
	require.True(t, ok)
	assert.Equal(t, "src/services/user.ts", resolved)
}

func TestResolveImport_AliasPrefix(t *testing.T) {
	db := openTestDB(t)
	r := Open(db)
	known := map[string]bool{"src/services/user.ts": true}
	alias := map[string]string{"@services": "src/services"}
	resolved, ok := r.ResolveImport("src/routes/handler.ts", "@services/user", alias, known)
	require.True(t, ok)
	assert.Equal(t, "src/services/user.ts", resolved)
}

func TestResolveImport_UnknownSpecifierIsLeftUnresolved(t *testing.T) {
	db := openTestDB(t)
	r := Open(db)
	_, ok := r.ResolveImport("a.ts", "left-pad", nil, map[string]bool{})
	assert.False(t, ok)
}

func TestResolveController_ExactMatchOnly(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`INSERT INTO files (path, language, size_bytes, content_hash, parse_status) VALUES ('routes.js','javascript',1,'h','ok')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO api_endpoints (file, line, method, pattern, path, handler_function) VALUES ('routes.js', 3, 'GET', '/users/:id', '/users/:id', 'getUser')`)
	require.NoError(t, err)

	r := Open(db)
	file, line, handler, found, err := r.ResolveController("GET", "/users/:id")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "routes.js", file)
	assert.Equal(t, 3, line)
	assert.Equal(t, "getUser", handler)

	_, _, _, found, err = r.ResolveController("GET", "/users/")
	require.NoError(t, err)
	assert.False(t, found, "prefix match must not count as a resolution")
}
