// Package plan implements the Rule Compiler: it lowers a
// resolved Rule into an ordered join plan of Bind/Filter/AntiFilter steps
// plus a head projection, and expands nonlinear recursive rules into their
// delta variants.
//
// A Plan never touches storage; it is a pure, immutable description of how
// to evaluate one rule, resolved against concrete relations by the driver
// in internal/engine, which consumes a compiled Plan without ever
// re-analyzing the rule it came from.
package plan

import (
	"fmt"
	"strings"

	"github.com/duynguyendang/gca-datalog/internal/term"
)

// Role tags which iteration-relative view of a relation a step should read
// from. Only relations belonging to the stage being evaluated ever carry a role other than Static; EDB relations and IDBs
// frozen by an earlier stage are always Static.
type Role int

const (
	// RoleStatic reads the relation's single, unchanging handle: an EDB
	// relation, or an IDB relation frozen by a lower stratum.
	RoleStatic Role = iota
	// RoleCurrent reads T^i, the accumulator as of the start of this
	// iteration.
	RoleCurrent
	// RolePrevious reads T^{i-1}, the accumulator one iteration back.
	RolePrevious
	// RoleDelta reads ΔT^i, the tuples first derived in this iteration.
	RoleDelta
)

func (r Role) String() string {
	switch r {
	case RoleStatic:
		return "static"
	case RoleCurrent:
		return "current"
	case RolePrevious:
		return "previous"
	case RoleDelta:
		return "delta"
	default:
		return "unknown"
	}
}

// Source names which relation a step reads and under which Role.
type Source struct {
	Relation string
	Role     Role
}

func (s Source) String() string {
	if s.Role == RoleStatic {
		return s.Relation
	}
	return fmt.Sprintf("%s^%s", s.Relation, s.Role)
}

// StepKind discriminates the three step variants from .
type StepKind int

const (
	StepBind StepKind = iota
	StepFilter
	StepAntiFilter
)

// Step is one instruction in a compiled Plan.
type Step struct {
	Kind StepKind

	// Bind / AntiFilter
	Atom   term.Atom
	Source Source

	// Bind only: which atom column positions are already bound (constant
	// literal or a variable seen earlier in the rule) versus which
	// introduce a fresh binding.
	BoundCols   []int
	BoundValues []term.Term // len == len(BoundCols); Constant literal or V(var) meaning "read env"
	FreeCols    []int
	FreeVars    []term.Variable // len == len(FreeCols)

	// Filter only: two column positions of the immediately preceding
	// Bind step's atom whose extracted values must agree — generated
	// when the same fresh variable occurs twice within one atom.
	FilterColA int
	FilterColB int
}

func (s Step) String() string {
	switch s.Kind {
	case StepBind:
		return fmt.Sprintf("Bind(%s <- %s, bound=%v, free=%v)", s.Atom, s.Source, s.BoundCols, s.FreeCols)
	case StepFilter:
		return fmt.Sprintf("Filter(col%d == col%d of %s)", s.FilterColA, s.FilterColB, s.Atom)
	case StepAntiFilter:
		return fmt.Sprintf("AntiFilter(!%s <- %s)", s.Atom, s.Source)
	default:
		return "?"
	}
}

// HeadColumn describes how one head column's value is produced.
type HeadColumn struct {
	IsConstant bool
	Constant   term.Constant
	Variable   term.Variable
}

// Plan is the compiled join order for one rule (or one delta variant of a
// nonlinear recursive rule).
type Plan struct {
	Rule  term.Rule
	Steps []Step
	Head  []HeadColumn

	// DeltaAtom is the body index this variant treats as the delta
	// occurrence, or -1 for a non-recursive (seed) plan.
	DeltaAtom int
}

// String renders a human-readable join order, wired into `datalogd run
// --explain` for debugging join scheduling decisions.
func (p *Plan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", p.Rule)
	for i, s := range p.Steps {
		fmt.Fprintf(&b, "  %d: %s\n", i, s)
	}
	b.WriteString("  head:")
	for _, h := range p.Head {
		if h.IsConstant {
			fmt.Fprintf(&b, " %s", h.Constant)
		} else {
			fmt.Fprintf(&b, " %s", h.Variable)
		}
	}
	return b.String()
}
