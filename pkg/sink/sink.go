// Package sink defines the Sink collaborator: the engine
// yields a (relation-name, tuple sequence) pair per output declaration and
// is otherwise unaware of how the result is formatted or delivered.
package sink

import (
	"iter"

	"github.com/duynguyendang/gca-datalog/internal/term"
)

// Sink receives one relation's query result at a time. Implementations
// decide format and destination; the engine only ever calls Emit.
type Sink interface {
	Emit(relation string, rows iter.Seq[term.Tuple]) error
}

// Seq adapts a materialized tuple slice into an iter.Seq[term.Tuple], the
// shape QueryRunner results (internal/engine.QueryOutputs) are handed to a
// Sink in.
func Seq(tuples []term.Tuple) iter.Seq[term.Tuple] {
	return func(yield func(term.Tuple) bool) {
		for _, t := range tuples {
			if !yield(t) {
				return
			}
		}
	}
}
