package datalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynguyendang/gca-datalog/internal/term"
)

func TestParse_DeclaresSchemasAndRules(t *testing.T) {
	src := `
% linear transitive closure
.decl edge(x: symbol, y: symbol).
.decl path(x: symbol, y: symbol).
.input edge.
.output path.

path(X, Y) :- edge(X, Y).
path(X, Z) :- edge(X, Y), path(Y, Z).
`
	prog, facts, err := Parse(src)
	require.NoError(t, err)

	edgeSchema, ok := prog.Schema("edge")
	require.True(t, ok)
	assert.True(t, edgeSchema.IsEDB)
	assert.Equal(t, []term.Kind{term.Symbol, term.Symbol}, edgeSchema.Columns)

	pathSchema, ok := prog.Schema("path")
	require.True(t, ok)
	assert.False(t, pathSchema.IsEDB)

	require.Len(t, prog.Rules, 2)
	assert.Equal(t, "path", prog.Rules[0].Head.Relation)
	require.Len(t, prog.Rules[1].Body, 2)
	assert.Equal(t, "path", prog.Rules[1].Body[1].Relation)

	require.Len(t, prog.Outputs, 1)
	assert.Equal(t, "path", prog.Outputs[0].Relation)
	assert.Empty(t, prog.Outputs[0].Pattern)

	assert.Empty(t, facts)
}

func TestParse_InlineFactsBecomeEDBTuples(t *testing.T) {
	src := `
.decl edge(x: symbol, y: symbol).
.input edge.

edge(a, b).
edge(b, c).
`
	prog, facts, err := Parse(src)
	require.NoError(t, err)
	assert.Empty(t, prog.Rules)

	require.Len(t, facts["edge"], 2)
	assert.Equal(t, term.Tuple{term.Sym("a"), term.Sym("b")}, facts["edge"][0])
	assert.Equal(t, term.Tuple{term.Sym("b"), term.Sym("c")}, facts["edge"][1])
}

func TestParse_NegatedBodyAtom(t *testing.T) {
	src := `
.decl node(x: symbol).
.decl edge(x: symbol, y: symbol).
.decl path(x: symbol, y: symbol).
.decl not_path(x: symbol, y: symbol).
.input node.
.input edge.

path(X, Y) :- edge(X, Y).
not_path(X, Y) :- node(X), node(Y), !path(X, Y).
`
	prog, _, err := Parse(src)
	require.NoError(t, err)

	require.Len(t, prog.Rules, 2)
	notPath := prog.Rules[1]
	require.Len(t, notPath.Body, 3)
	assert.True(t, notPath.Body[2].Negated)
	assert.Equal(t, "path", notPath.Body[2].Relation)
}

func TestParse_OutputPatternWithConstantAndWildcard(t *testing.T) {
	src := `
.decl path(x: symbol, y: symbol).
.output path(a, _).
`
	prog, _, err := Parse(src)
	require.NoError(t, err)

	require.Len(t, prog.Outputs, 1)
	pattern := prog.Outputs[0].Pattern
	require.Len(t, pattern, 2)
	assert.False(t, pattern[0].IsVar)
	assert.Equal(t, term.Sym("a"), pattern[0].Constant)
	assert.True(t, pattern[1].IsVar)
}

func TestParse_IntegerColumnRoundTrips(t *testing.T) {
	src := `
.decl score(name: symbol, value: integer).
.input score.

score(alice, 42).
`
	_, facts, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, facts["score"], 1)
	assert.Equal(t, term.Int(42), facts["score"][0][1])
}

func TestParse_InputBeforeDeclIsAnError(t *testing.T) {
	_, _, err := Parse(`.input edge.`)
	assert.Error(t, err)
}

func TestParse_UngroundBodylessHeadIsARuleNotAFact(t *testing.T) {
	// A variable head with no body is syntactically a rule (not a fact,
	// since it isn't fully ground); it fails range restriction, but that
	// is Rule.CheckSafety's job when engine.Run validates, not the parser's.
	prog, facts, err := Parse(`edge(X, b).`)
	require.NoError(t, err)
	assert.Empty(t, facts)
	require.Len(t, prog.Rules, 1)
	assert.Error(t, prog.Rules[0].CheckSafety())
}

func TestParse_CommentsAreIgnored(t *testing.T) {
	src := `
% a comment on its own line
.decl edge(x: symbol, y: symbol). % trailing comment
.input edge.
edge(a, b). % another one
`
	prog, facts, err := Parse(src)
	require.NoError(t, err)
	_, ok := prog.Schema("edge")
	assert.True(t, ok)
	assert.Len(t, facts["edge"], 1)
}
