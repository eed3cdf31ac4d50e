package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynguyendang/gca-datalog/internal/term"
	"github.com/duynguyendang/gca-datalog/pkg/apperr"
)

func sym(s string) term.Constant { return term.Sym(s) }
func v(name string) term.Term    { return term.V(term.Variable(name)) }
func c(s string) term.Term       { return term.C(sym(s)) }

func binarySchema(name string, isEDB bool) term.Schema {
	return term.Schema{Name: name, Columns: []term.Kind{term.Symbol, term.Symbol}, IsEDB: isEDB}
}

func unarySchema(name string, isEDB bool) term.Schema {
	return term.Schema{Name: name, Columns: []term.Kind{term.Symbol}, IsEDB: isEDB}
}

func atom(rel string, negated bool, args ...term.Term) term.Atom {
	return term.Atom{Relation: rel, Args: args, Negated: negated}
}

func tuplesOf(t *testing.T, res *Result, relation string) []term.Tuple {
	t.Helper()
	h, ok := res.Relations[relation]
	require.True(t, ok, "relation %q not found", relation)
	tuples, err := collect(h.Scan())
	require.NoError(t, err)
	return tuples
}

func assertTupleSet(t *testing.T, got []term.Tuple, want ...term.Tuple) {
	t.Helper()
	require.Len(t, got, len(want))
	for _, w := range want {
		found := false
		for _, g := range got {
			if g.Equal(w) {
				found = true
				break
			}
		}
		assert.True(t, found, "expected tuple %s in %v", w, got)
	}
}

// S1: transitive closure.
func TestRun_S1_TransitiveClosure(t *testing.T) {
	prog := term.Program{
		Schemas: map[string]term.Schema{
			"edge": binarySchema("edge", true),
			"path": binarySchema("path", false),
		},
		Rules: []term.Rule{
			{Head: atom("path", false, v("X"), v("Y")), Body: []term.Atom{atom("edge", false, v("X"), v("Y"))}},
			{Head: atom("path", false, v("X"), v("Z")), Body: []term.Atom{
				atom("edge", false, v("X"), v("Y")), atom("path", false, v("Y"), v("Z")),
			}},
		},
		Outputs: []term.OutputDecl{{Relation: "path"}},
	}
	edb := map[string][]term.Tuple{
		"edge": {{sym("a"), sym("b")}, {sym("b"), sym("c")}, {sym("c"), sym("d")}},
	}

	res, err := Run(context.Background(), prog, edb, Options{})
	require.NoError(t, err)
	defer res.Close()

	got := tuplesOf(t, res, "path")
	assertTupleSet(t, got,
		term.Tuple{sym("a"), sym("b")}, term.Tuple{sym("b"), sym("c")}, term.Tuple{sym("c"), sym("d")},
		term.Tuple{sym("a"), sym("c")}, term.Tuple{sym("b"), sym("d")}, term.Tuple{sym("a"), sym("d")},
	)
}

// A successful Run hands ownership of its Store to the Result: Close must
// release it without error, and a Result from a failed Run must not leak
// even though the caller never sees one to close.
func TestRun_ResultCloseReleasesStore(t *testing.T) {
	prog := term.Program{
		Schemas: map[string]term.Schema{"edge": binarySchema("edge", true)},
		Outputs: []term.OutputDecl{{Relation: "edge"}},
	}
	edb := map[string][]term.Tuple{"edge": {{sym("a"), sym("b")}}}

	res, err := Run(context.Background(), prog, edb, Options{})
	require.NoError(t, err)
	assert.NoError(t, res.Close())

	_, err = Run(context.Background(), term.Program{
		Schemas: map[string]term.Schema{"edge": binarySchema("edge", true)},
		Rules: []term.Rule{
			{Head: atom("edge", false, v("X"), v("Y")), Body: []term.Atom{atom("missing", false, v("X"), v("Y"))}},
		},
	}, edb, Options{})
	require.Error(t, err, "rule body references an unknown relation, so Run must fail before returning a Result")
}

// S2: nonlinear transitive closure, same expected result as S1.
func TestRun_S2_NonlinearTransitiveClosure(t *testing.T) {
	prog := term.Program{
		Schemas: map[string]term.Schema{
			"edge": binarySchema("edge", true),
			"p":    binarySchema("p", false),
		},
		Rules: []term.Rule{
			{Head: atom("p", false, v("X"), v("Y")), Body: []term.Atom{atom("edge", false, v("X"), v("Y"))}},
			{Head: atom("p", false, v("X"), v("Z")), Body: []term.Atom{
				atom("p", false, v("X"), v("Y")), atom("p", false, v("Y"), v("Z")),
			}},
		},
		Outputs: []term.OutputDecl{{Relation: "p"}},
	}
	edb := map[string][]term.Tuple{
		"edge": {{sym("a"), sym("b")}, {sym("b"), sym("c")}, {sym("c"), sym("d")}},
	}

	res, err := Run(context.Background(), prog, edb, Options{})
	require.NoError(t, err)
	defer res.Close()

	got := tuplesOf(t, res, "p")
	assertTupleSet(t, got,
		term.Tuple{sym("a"), sym("b")}, term.Tuple{sym("b"), sym("c")}, term.Tuple{sym("c"), sym("d")},
		term.Tuple{sym("a"), sym("c")}, term.Tuple{sym("b"), sym("d")}, term.Tuple{sym("a"), sym("d")},
	)
}

// S3: self-loop detection.
func TestRun_S3_SelfLoopDetection(t *testing.T) {
	prog := term.Program{
		Schemas: map[string]term.Schema{
			"edge": binarySchema("edge", true),
			"node": unarySchema("node", false),
		},
		Rules: []term.Rule{
			{Head: atom("node", false, v("X")), Body: []term.Atom{atom("edge", false, v("X"), v("X"))}},
		},
		Outputs: []term.OutputDecl{{Relation: "node"}},
	}
	edb := map[string][]term.Tuple{
		"edge": {{sym("a"), sym("a")}, {sym("b"), sym("c")}, {sym("c"), sym("c")}},
	}

	res, err := Run(context.Background(), prog, edb, Options{})
	require.NoError(t, err)
	defer res.Close()

	got := tuplesOf(t, res, "node")
	assertTupleSet(t, got, term.Tuple{sym("a")}, term.Tuple{sym("c")})
}

// S4: stratified negation.
func TestRun_S4_StratifiedNegation(t *testing.T) {
	prog := term.Program{
		Schemas: map[string]term.Schema{
			"edge":     binarySchema("edge", true),
			"node":     unarySchema("node", false),
			"path":     binarySchema("path", false),
			"not_path": binarySchema("not_path", false),
		},
		Rules: []term.Rule{
			{Head: atom("node", false, v("X")), Body: []term.Atom{atom("edge", false, v("X"), v("X"))}},
			{Head: atom("path", false, v("X"), v("Y")), Body: []term.Atom{atom("edge", false, v("X"), v("Y"))}},
			{Head: atom("path", false, v("X"), v("Z")), Body: []term.Atom{
				atom("edge", false, v("X"), v("Y")), atom("path", false, v("Y"), v("Z")),
			}},
			{Head: atom("not_path", false, v("X"), v("Y")), Body: []term.Atom{
				atom("node", false, v("X")), atom("node", false, v("Y")), atom("path", true, v("X"), v("Y")),
			}},
		},
		Outputs: []term.OutputDecl{{Relation: "path"}, {Relation: "not_path"}},
	}
	edb := map[string][]term.Tuple{
		"edge": {{sym("a"), sym("a")}, {sym("b"), sym("b")}, {sym("a"), sym("b")}},
	}

	res, err := Run(context.Background(), prog, edb, Options{})
	require.NoError(t, err)
	defer res.Close()

	path := tuplesOf(t, res, "path")
	assertTupleSet(t, path, term.Tuple{sym("a"), sym("a")}, term.Tuple{sym("a"), sym("b")}, term.Tuple{sym("b"), sym("b")})

	notPath := tuplesOf(t, res, "not_path")
	assertTupleSet(t, notPath, term.Tuple{sym("b"), sym("a")})
}

// S5: unstratifiable rejection.
func TestRun_S5_UnstratifiableRejection(t *testing.T) {
	prog := term.Program{
		Schemas: map[string]term.Schema{
			"r": unarySchema("r", true),
			"q": unarySchema("q", false),
			"p": unarySchema("p", false),
		},
		Rules: []term.Rule{
			{Head: atom("q", false, v("X")), Body: []term.Atom{atom("r", false, v("X")), atom("p", true, v("X"))}},
			{Head: atom("p", false, v("X")), Body: []term.Atom{atom("q", true, v("X"))}},
		},
	}
	_, err := Run(context.Background(), prog, nil, Options{})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrUnstratifiable))
}

// S6: empty input.
func TestRun_S6_EmptyInput(t *testing.T) {
	prog := term.Program{
		Schemas: map[string]term.Schema{
			"edge": binarySchema("edge", true),
			"path": binarySchema("path", false),
		},
		Rules: []term.Rule{
			{Head: atom("path", false, v("X"), v("Y")), Body: []term.Atom{atom("edge", false, v("X"), v("Y"))}},
			{Head: atom("path", false, v("X"), v("Z")), Body: []term.Atom{
				atom("edge", false, v("X"), v("Y")), atom("path", false, v("Y"), v("Z")),
			}},
		},
		Outputs: []term.OutputDecl{{Relation: "path"}},
	}

	res, err := Run(context.Background(), prog, map[string][]term.Tuple{}, Options{})
	require.NoError(t, err)
	defer res.Close()
	assert.Empty(t, tuplesOf(t, res, "path"))
}

func TestRun_SchemaViolation_UnknownRelation(t *testing.T) {
	prog := term.Program{
		Schemas: map[string]term.Schema{"path": binarySchema("path", false)},
		Rules: []term.Rule{
			{Head: atom("path", false, v("X"), v("Y")), Body: []term.Atom{atom("edge", false, v("X"), v("Y"))}},
		},
	}
	_, err := Run(context.Background(), prog, nil, Options{})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrSchemaViolation))
}

func TestRun_UndeclaredOutput(t *testing.T) {
	prog := term.Program{
		Schemas: map[string]term.Schema{
			"edge": binarySchema("edge", true),
		},
		Outputs: []term.OutputDecl{{Relation: "path"}},
	}
	_, err := Run(context.Background(), prog, nil, Options{})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrUndeclaredOutput))
}

// Parallel evaluation must produce the same result as sequential.
func TestRun_ParallelismMatchesSequential(t *testing.T) {
	prog := term.Program{
		Schemas: map[string]term.Schema{
			"edge": binarySchema("edge", true),
			"p":    binarySchema("p", false),
		},
		Rules: []term.Rule{
			{Head: atom("p", false, v("X"), v("Y")), Body: []term.Atom{atom("edge", false, v("X"), v("Y"))}},
			{Head: atom("p", false, v("X"), v("Z")), Body: []term.Atom{
				atom("p", false, v("X"), v("Y")), atom("p", false, v("Y"), v("Z")),
			}},
		},
		Outputs: []term.OutputDecl{{Relation: "p"}},
	}
	edb := map[string][]term.Tuple{
		"edge": {{sym("a"), sym("b")}, {sym("b"), sym("c")}, {sym("c"), sym("d")}, {sym("d"), sym("e")}},
	}

	seq, err := Run(context.Background(), prog, edb, Options{Parallelism: 1})
	require.NoError(t, err)
	defer seq.Close()
	par, err := Run(context.Background(), prog, edb, Options{Parallelism: 4})
	require.NoError(t, err)
	defer par.Close()

	assertTupleSet(t, tuplesOf(t, par, "p"), tuplesOf(t, seq, "p")...)
}

func TestRun_ExplainPopulatesRenderedPlans(t *testing.T) {
	prog := term.Program{
		Schemas: map[string]term.Schema{
			"edge": binarySchema("edge", true),
			"path": binarySchema("path", false),
		},
		Rules: []term.Rule{
			{Head: atom("path", false, v("X"), v("Y")), Body: []term.Atom{atom("edge", false, v("X"), v("Y"))}},
			{Head: atom("path", false, v("X"), v("Z")), Body: []term.Atom{
				atom("edge", false, v("X"), v("Y")), atom("path", false, v("Y"), v("Z")),
			}},
		},
		Outputs: []term.OutputDecl{{Relation: "path"}},
	}
	edb := map[string][]term.Tuple{"edge": {{sym("a"), sym("b")}}}

	res, err := Run(context.Background(), prog, edb, Options{Explain: true})
	require.NoError(t, err)
	defer res.Close()
	assert.NotEmpty(t, res.Explain)
}

func TestRun_MaxTuplesExceeded(t *testing.T) {
	prog := term.Program{
		Schemas: map[string]term.Schema{
			"edge": binarySchema("edge", true),
			"path": binarySchema("path", false),
		},
		Rules: []term.Rule{
			{Head: atom("path", false, v("X"), v("Y")), Body: []term.Atom{atom("edge", false, v("X"), v("Y"))}},
			{Head: atom("path", false, v("X"), v("Z")), Body: []term.Atom{
				atom("edge", false, v("X"), v("Y")), atom("path", false, v("Y"), v("Z")),
			}},
		},
		Outputs: []term.OutputDecl{{Relation: "path"}},
	}
	edb := map[string][]term.Tuple{
		"edge": {{sym("a"), sym("b")}, {sym("b"), sym("c")}, {sym("c"), sym("d")}},
	}

	_, err := Run(context.Background(), prog, edb, Options{MaxTuples: 2})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrRuntimeExhaustion))
}

func TestQueryOutputs_WildcardPatternFilters(t *testing.T) {
	prog := term.Program{
		Schemas: map[string]term.Schema{
			"edge": binarySchema("edge", true),
			"path": binarySchema("path", false),
		},
		Rules: []term.Rule{
			{Head: atom("path", false, v("X"), v("Y")), Body: []term.Atom{atom("edge", false, v("X"), v("Y"))}},
		},
		Outputs: []term.OutputDecl{{Relation: "path", Pattern: term.OutputPattern{c("a"), v("Y")}}},
	}
	edb := map[string][]term.Tuple{
		"edge": {{sym("a"), sym("b")}, {sym("x"), sym("y")}},
	}

	res, err := Run(context.Background(), prog, edb, Options{})
	require.NoError(t, err)
	defer res.Close()

	outputs, err := QueryOutputs(prog, res)
	require.NoError(t, err)
	assertTupleSet(t, outputs["path"], term.Tuple{sym("a"), sym("b")})
}
