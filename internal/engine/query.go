package engine

import (
	"fmt"

	"github.com/duynguyendang/gca-datalog/internal/store"
	"github.com/duynguyendang/gca-datalog/internal/term"
)

// QueryOutputs runs the Query Runner over a completed
// Result: for every Output Declaration in the program, it scans the named
// relation and applies the declaration's pattern filter, if any.
//
// A pattern position holding a Variable is a wildcard; a Constant filters
// the scan to tuples agreeing with it in that column. A nil or empty
// Pattern applies no filter at all.
func QueryOutputs(prog term.Program, res *Result) (map[string][]term.Tuple, error) {
	out := make(map[string][]term.Tuple, len(prog.Outputs))
	for _, decl := range prog.Outputs {
		h, ok := res.Relations[decl.Relation]
		if !ok {
			return nil, fmt.Errorf("engine: output relation %q not found in result", decl.Relation)
		}
		tuples, err := queryOne(h, decl.Pattern)
		if err != nil {
			return nil, err
		}
		out[decl.Relation] = append(out[decl.Relation], tuples...)
	}
	return out, nil
}

func queryOne(h *store.Handle, pattern term.OutputPattern) ([]term.Tuple, error) {
	if len(pattern) == 0 {
		return collect(h.Scan())
	}
	if len(pattern) != h.Schema().Arity() {
		return nil, fmt.Errorf("engine: output pattern arity %d does not match relation arity %d", len(pattern), h.Schema().Arity())
	}

	var keyCols []int
	var keyVals term.Tuple
	for i, t := range pattern {
		if !t.IsVar {
			keyCols = append(keyCols, i)
			keyVals = append(keyVals, t.Constant)
		}
	}
	return collect(h.Probe(keyCols, keyVals))
}

func collect(seq func(func(term.Tuple, error) bool)) ([]term.Tuple, error) {
	var out []term.Tuple
	var outerErr error
	seq(func(t term.Tuple, err error) bool {
		if err != nil {
			outerErr = err
			return false
		}
		out = append(out, t)
		return true
	})
	return out, outerErr
}
