package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTSJSExtractor_CrossFileCallWithRootVariable(t *testing.T) {
	src := []byte(`
function handler(req) {
  const query = req.query.q;
  db.query("SELECT * FROM t WHERE x = " + query);
}
`)
	p, err := (TSJSExtractor{Lang: JavaScript}).Extract("handler.js", src)
	require.NoError(t, err)
	require.True(t, p.Success)

	var sawDBCall bool
	for _, c := range p.FunctionCalls {
		if c.CalleeFunction == "db.query" {
			sawDBCall = true
			require.NotEmpty(t, c.Arguments)
		}
	}
	assert.True(t, sawDBCall)
}

func TestTSJSExtractor_DestructuredParameter(t *testing.T) {
	src := []byte(`
function handler({ user, query }) {
  return query;
}
`)
	p, err := (TSJSExtractor{Lang: JavaScript}).Extract("h.js", src)
	require.NoError(t, err)

	var sawQuery bool
	for _, a := range p.Assignments {
		if a.TargetVar == "query" {
			sawQuery = true
		}
	}
	assert.True(t, sawQuery, "expected a destructured binding for `query`")
}

func TestTSJSExtractor_ZeroArgumentCallStillEmitsRow(t *testing.T) {
	src := []byte(`
function f() {
  doWork();
}
`)
	p, err := (TSJSExtractor{Lang: JavaScript}).Extract("f.js", src)
	require.NoError(t, err)
	require.Len(t, p.FunctionCalls, 1)
	require.Len(t, p.FunctionCalls[0].Arguments, 1)
	assert.Equal(t, "", p.FunctionCalls[0].Arguments[0].RootVar)
}

func TestTSJSExtractor_RouteRegistrationWithMiddleware(t *testing.T) {
	src := []byte(`
app.post("/users", authenticate, authorize, createUser);
`)
	p, err := (TSJSExtractor{Lang: JavaScript}).Extract("routes.js", src)
	require.NoError(t, err)
	require.NotEmpty(t, p.Framework.APIEndpoints)
	ep := p.Framework.APIEndpoints[0]
	assert.Equal(t, "POST", ep.Method)
	assert.Equal(t, "/users", ep.Pattern)
	assert.Contains(t, ep.Controls, "authenticate")
}

func TestTSJSExtractor_ZodValidationRecognized(t *testing.T) {
	src := []byte(`
function handler(req) {
  const parsed = schema.safeParse(req.body);
}
`)
	p, err := (TSJSExtractor{Lang: TypeScript}).Extract("h.ts", src)
	require.NoError(t, err)
	require.NotEmpty(t, p.Framework.ValidationUsages)
	assert.Equal(t, "zod", p.Framework.ValidationUsages[0].Framework)
}
