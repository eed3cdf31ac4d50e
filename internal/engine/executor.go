package engine

import (
	"fmt"

	"github.com/duynguyendang/gca-datalog/internal/plan"
	"github.com/duynguyendang/gca-datalog/internal/store"
	"github.com/duynguyendang/gca-datalog/internal/term"
)

// resolver maps a compiled Source to the concrete relation handle the
// driver has bound it to for the current iteration.
type resolver func(plan.Source) (*store.Handle, error)

// env carries variable bindings while walking a Plan's steps.
type env map[term.Variable]term.Constant

func (e env) clone() env {
	c := make(env, len(e)+1)
	for k, v := range e {
		c[k] = v
	}
	return c
}

func resolveValue(t term.Term, e env) term.Constant {
	if t.IsVar {
		return e[t.Variable]
	}
	return t.Constant
}

// evaluate walks p's steps depth-first, invoking emit once per fully bound
// head tuple. It implements the Bind/Filter/AntiFilter join described in
// /§4.5.
func evaluate(p *plan.Plan, resolve resolver, emit func(term.Tuple) error) error {
	if len(p.Steps) == 0 {
		t, err := projectHead(p.Head, nil)
		if err != nil {
			return err
		}
		return emit(t)
	}
	return evalStep(p, 0, make(env), nil, resolve, emit)
}

func evalStep(p *plan.Plan, si int, e env, lastRow term.Tuple, resolve resolver, emit func(term.Tuple) error) error {
	if si == len(p.Steps) {
		t, err := projectHead(p.Head, e)
		if err != nil {
			return err
		}
		return emit(t)
	}

	step := p.Steps[si]
	switch step.Kind {
	case plan.StepFilter:
		if !lastRow[step.FilterColA].Equal(lastRow[step.FilterColB]) {
			return nil
		}
		return evalStep(p, si+1, e, lastRow, resolve, emit)

	case plan.StepAntiFilter:
		h, err := resolve(step.Source)
		if err != nil {
			return err
		}
		probe := make(term.Tuple, len(step.Atom.Args))
		for i, t := range step.Atom.Args {
			probe[i] = resolveValue(t, e)
		}
		found, err := h.Contains(probe)
		if err != nil {
			return err
		}
		if found {
			return nil // negated atom holds; this branch fails
		}
		return evalStep(p, si+1, e, lastRow, resolve, emit)

	case plan.StepBind:
		h, err := resolve(step.Source)
		if err != nil {
			return err
		}
		keyCols := step.BoundCols
		keyVals := make(term.Tuple, len(step.BoundValues))
		for i, t := range step.BoundValues {
			keyVals[i] = resolveValue(t, e)
		}
		for row, perr := range h.Probe(keyCols, keyVals) {
			if perr != nil {
				return perr
			}
			next := e.clone()
			for i, col := range step.FreeCols {
				next[step.FreeVars[i]] = row[col]
			}
			if err := evalStep(p, si+1, next, row, resolve, emit); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("engine: unknown plan step kind %v", step.Kind)
	}
}

func projectHead(head []plan.HeadColumn, e env) (term.Tuple, error) {
	t := make(term.Tuple, len(head))
	for i, h := range head {
		if h.IsConstant {
			t[i] = h.Constant
			continue
		}
		v, ok := e[h.Variable]
		if !ok {
			return nil, fmt.Errorf("engine: head variable %q unbound during evaluation", h.Variable)
		}
		t[i] = v
	}
	return t, nil
}
