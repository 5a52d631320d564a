package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPythonExtractor_SymbolsAndAssignments(t *testing.T) {
	src := []byte(`
def handler(request):
    user_id = request.GET.get("id")
    result = lookup(user_id)
    return result
`)
	p, err := PythonExtractor{}.Extract("views.py", src)
	require.NoError(t, err)
	require.True(t, p.Success)

	var found bool
	for _, s := range p.Symbols {
		if s.Name == "handler" && s.Type == "function" {
			found = true
		}
	}
	assert.True(t, found, "expected a function symbol named handler")

	require.Len(t, p.Assignments, 2)
	assert.Equal(t, "user_id", p.Assignments[0].TargetVar)
	assert.Equal(t, "result", p.Assignments[1].TargetVar)
	assert.Contains(t, p.Assignments[1].Sources, "user_id")

	require.Len(t, p.FunctionReturns, 1)
	assert.Equal(t, "handler", p.FunctionReturns[0].Function)
	assert.Contains(t, p.FunctionReturns[0].Sources, "result")
}

func TestPythonExtractor_CFGHasEntryAndExit(t *testing.T) {
	src := []byte(`
def f():
    x = 1
    return x
`)
	p, err := PythonExtractor{}.Extract("a.py", src)
	require.NoError(t, err)
	require.NotEmpty(t, p.CFG.Blocks)

	var hasEntry, hasExit bool
	for _, b := range p.CFG.Blocks {
		if b.FunctionName != "f" {
			continue
		}
		if b.Type == BlockEntry {
			hasEntry = true
		}
		if b.Type == BlockExit {
			hasExit = true
		}
	}
	assert.True(t, hasEntry)
	assert.True(t, hasExit)
}

func TestPythonExtractor_DjangoORMCallRecognized(t *testing.T) {
	src := []byte(`
def view(request):
    users = User.objects.filter(name=request.GET.get("name"))
`)
	p, err := PythonExtractor{}.Extract("views.py", src)
	require.NoError(t, err)
	require.NotEmpty(t, p.Framework.ORMQueries)
	assert.Equal(t, "django_orm", p.Framework.ORMQueries[0].Framework)
}

func TestPythonExtractor_SyntaxErrorIsNotPartial(t *testing.T) {
	src := []byte("def f(:\n    pass\n")
	p, err := PythonExtractor{}.Extract("broken.py", src)
	require.NoError(t, err)
	assert.False(t, p.Success)
	assert.False(t, p.Partial)
}
