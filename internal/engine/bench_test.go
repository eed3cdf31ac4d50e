package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/duynguyendang/gca-datalog/internal/term"
)

// chainProgram builds a transitive-closure program over a chain EDB of n
// edges, used to characterize semi-naive fixpoint cost as chain length
// grows.
func chainProgram(n int) (term.Program, map[string][]term.Tuple) {
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
	tuples := make([]term.Tuple, n)
	for i := 0; i < n; i++ {
		tuples[i] = term.Tuple{sym(fmt.Sprintf("n%d", i)), sym(fmt.Sprintf("n%d", i+1))}
	}
	return prog, map[string][]term.Tuple{"edge": tuples}
}

func BenchmarkRun_ChainTransitiveClosure(b *testing.B) {
	for _, n := range []int{10, 50, 200} {
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			prog, edb := chainProgram(n)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				res, err := Run(context.Background(), prog, edb, Options{})
				if err != nil {
					b.Fatal(err)
				}
				res.Close()
			}
		})
	}
}

func BenchmarkRun_ChainTransitiveClosureParallel(b *testing.B) {
	prog, edb := chainProgram(50)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := Run(context.Background(), prog, edb, Options{Parallelism: 4})
		if err != nil {
			b.Fatal(err)
		}
		res.Close()
	}
}
