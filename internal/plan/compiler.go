package plan

import (
	"fmt"
	"sort"

	"github.com/duynguyendang/gca-datalog/internal/term"
)

// RoleFunc tells the compiler which iteration-relative view a given body
// position should read from. The Dependency Analyzer / Semi-Naive Driver
// supply one closure per delta variant (see Seed and Recursive in delta.go); the
// compiler itself never decides roles.
type RoleFunc func(bodyIndex int, relation string) Role

// Preferred reports whether a relation should be scheduled ahead of others
// with an equal number of newly-bound variables: in the absence of
// cardinality statistics, prefer joining against an EDB relation first.
type Preferred func(relation string) bool

// Compile lowers rule into a single Plan under the given role assignment.
// The caller is responsible for having already run Rule.CheckSafety.
func Compile(rule term.Rule, roleOf RoleFunc, preferred Preferred, deltaAtom int) (*Plan, error) {
	n := len(rule.Body)
	scheduled := make([]bool, n)
	bound := make(map[term.Variable]bool)
	var steps []Step

	positive := make([]int, 0, n)
	negative := make([]int, 0, n)
	for i, a := range rule.Body {
		if a.Negated {
			negative = append(negative, i)
		} else {
			positive = append(positive, i)
		}
	}

	scheduleReadyAntiFilters := func() {
		for _, i := range negative {
			if scheduled[i] {
				continue
			}
			if allBound(rule.Body[i], bound) {
				steps = append(steps, Step{
					Kind:   StepAntiFilter,
					Atom:   rule.Body[i],
					Source: Source{Relation: rule.Body[i].Relation, Role: roleOf(i, rule.Body[i].Relation)},
				})
				scheduled[i] = true
			}
		}
	}

	remaining := append([]int(nil), positive...)
	for len(remaining) > 0 {
		sort.SliceStable(remaining, func(a, b int) bool {
			ia, ib := remaining[a], remaining[b]
			pa, pb := 0, 0
			if !preferred(rule.Body[ia].Relation) {
				pa = 1
			}
			if !preferred(rule.Body[ib].Relation) {
				pb = 1
			}
			if pa != pb {
				return pa < pb
			}
			fa := newFreeVarCount(rule.Body[ia], bound)
			fb := newFreeVarCount(rule.Body[ib], bound)
			if fa != fb {
				return fa < fb
			}
			return ia < ib
		})

		idx := remaining[0]
		remaining = remaining[1:]
		atom := rule.Body[idx]

		bindStep, filterSteps := compileAtom(atom, bound)
		bindStep.Source = Source{Relation: atom.Relation, Role: roleOf(idx, atom.Relation)}
		steps = append(steps, bindStep)
		steps = append(steps, filterSteps...)
		scheduled[idx] = true
		for _, v := range atom.Variables() {
			bound[v] = true
		}

		scheduleReadyAntiFilters()
	}
	scheduleReadyAntiFilters()

	for _, i := range negative {
		if !scheduled[i] {
			return nil, fmt.Errorf("plan: negated atom %s could not be scheduled (unbound variables)", rule.Body[i])
		}
	}

	head := make([]HeadColumn, len(rule.Head.Args))
	for i, t := range rule.Head.Args {
		if t.IsVar {
			if !bound[t.Variable] {
				return nil, fmt.Errorf("plan: head variable %s is unbound", t.Variable)
			}
			head[i] = HeadColumn{Variable: t.Variable}
		} else {
			head[i] = HeadColumn{IsConstant: true, Constant: t.Constant}
		}
	}

	return &Plan{Rule: rule, Steps: steps, Head: head, DeltaAtom: deltaAtom}, nil
}

func allBound(a term.Atom, bound map[term.Variable]bool) bool {
	for _, v := range a.Variables() {
		if !bound[v] {
			return false
		}
	}
	return true
}

func newFreeVarCount(a term.Atom, bound map[term.Variable]bool) int {
	seen := make(map[term.Variable]bool)
	n := 0
	for _, v := range a.Variables() {
		if bound[v] || seen[v] {
			continue
		}
		seen[v] = true
		n++
	}
	return n
}

// compileAtom produces the Bind step for atom given the variables already
// bound by earlier steps, plus any Filter steps needed when the same fresh
// variable occurs at more than one position within atom (a self-join the
// Store's probe interface can't express as extra bound key columns, since
// neither occurrence is bound yet).
func compileAtom(atom term.Atom, bound map[term.Variable]bool) (Step, []Step) {
	step := Step{Kind: StepBind, Atom: atom}
	firstFreeOccurrence := make(map[term.Variable]int)
	var filters []Step

	for pos, t := range atom.Args {
		switch {
		case !t.IsVar:
			step.BoundCols = append(step.BoundCols, pos)
			step.BoundValues = append(step.BoundValues, t)
		case bound[t.Variable]:
			step.BoundCols = append(step.BoundCols, pos)
			step.BoundValues = append(step.BoundValues, t)
		default:
			if first, ok := firstFreeOccurrence[t.Variable]; ok {
				filters = append(filters, Step{
					Kind:       StepFilter,
					Atom:       atom,
					FilterColA: first,
					FilterColB: pos,
				})
				continue
			}
			firstFreeOccurrence[t.Variable] = pos
			step.FreeCols = append(step.FreeCols, pos)
			step.FreeVars = append(step.FreeVars, t.Variable)
		}
	}

	return step, filters
}
