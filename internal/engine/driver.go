package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/duynguyendang/gca-datalog/internal/analysis"
	"github.com/duynguyendang/gca-datalog/internal/plan"
	"github.com/duynguyendang/gca-datalog/internal/store"
	"github.com/duynguyendang/gca-datalog/internal/term"
	"github.com/duynguyendang/gca-datalog/pkg/apperr"
)

// driver runs the Semi-Naive Driver over one Program, one Stage at a time,
// accumulating finished relations for later stages (and negated atoms) to
// read as frozen, EDB-like input.
type driver struct {
	store     *store.Store
	prog      term.Program
	relations map[string]*store.Handle
	opts      Options
	logger    *slog.Logger
	explain   []string
}

func (d *driver) preferred(relation string) bool {
	s, ok := d.prog.Schema(relation)
	return ok && s.IsEDB
}

func (d *driver) runStage(ctx context.Context, stage analysis.Stage) error {
	if len(stage.Members) == 0 {
		return nil
	}
	members := make(map[string]bool, len(stage.Members))
	for _, m := range stage.Members {
		members[m] = true
	}

	current := make(map[string]*store.Handle)
	previous := make(map[string]*store.Handle)
	delta := make(map[string]*store.Handle)
	for _, m := range stage.Members {
		schema, ok := d.prog.Schema(m)
		if !ok {
			return fmt.Errorf("engine: stage member %q has no schema", m)
		}
		current[m] = d.store.NewRelation(schema)
		previous[m] = d.store.NewRelation(schema)
		delta[m] = d.store.NewRelation(schema)
	}

	var seedPlans []*plan.Plan
	var recRules []term.Rule
	for _, rule := range stage.Rules {
		if ruleReferencesMember(rule, members) {
			recRules = append(recRules, rule)
			continue
		}
		p, err := plan.Seed(rule, d.preferred)
		if err != nil {
			return err
		}
		seedPlans = append(seedPlans, p)
	}

	var recVariants []*plan.Plan
	for _, rule := range recRules {
		variants, err := plan.Recursive(rule, members, d.preferred)
		if err != nil {
			return err
		}
		recVariants = append(recVariants, variants...)
	}

	if d.opts.Explain {
		for _, p := range seedPlans {
			d.explain = append(d.explain, p.String())
		}
		for _, p := range recVariants {
			d.explain = append(d.explain, p.String())
		}
	}

	static := d.relations // EDB + relations frozen by earlier stages

	seedResolve := func(src plan.Source) (*store.Handle, error) {
		h, ok := static[src.Relation]
		if !ok {
			return nil, fmt.Errorf("engine: relation %q not available for seeding", src.Relation)
		}
		return h, nil
	}

	// Initialization: ΔR^1 from every rule whose body has
	// no member of this stage.
	seedTuples, err := d.evaluateJobs(ctx, seedPlans, seedResolve)
	if err != nil {
		return err
	}
	for relName, tuples := range seedTuples {
		for _, t := range tuples {
			if _, err := delta[relName].Insert(t); err != nil {
				return err
			}
		}
	}
	for _, m := range stage.Members {
		if _, err := current[m].BulkMerge(delta[m]); err != nil {
			return err
		}
	}

	iteration := 1
	for {
		anyDelta := false
		for _, m := range stage.Members {
			if !delta[m].Empty() {
				anyDelta = true
				break
			}
		}
		if !anyDelta {
			break
		}

		d.logger.Debug("iterating stage", "stage", stage.Members, "iteration", iteration)

		resolve := func(src plan.Source) (*store.Handle, error) {
			switch src.Role {
			case plan.RoleStatic:
				h, ok := static[src.Relation]
				if !ok {
					return nil, fmt.Errorf("engine: relation %q not available", src.Relation)
				}
				return h, nil
			case plan.RoleCurrent:
				return current[src.Relation], nil
			case plan.RolePrevious:
				return previous[src.Relation], nil
			case plan.RoleDelta:
				return delta[src.Relation], nil
			default:
				return nil, fmt.Errorf("engine: unknown role %v", src.Role)
			}
		}

		candidates, err := d.evaluateJobs(ctx, recVariants, resolve)
		if err != nil {
			return err
		}

		newDelta := make(map[string]*store.Handle, len(stage.Members))
		for _, m := range stage.Members {
			schema, _ := d.prog.Schema(m)
			nd := d.store.NewRelation(schema)
			for _, t := range candidates[m] {
				in, err := current[m].Contains(t)
				if err != nil {
					return err
				}
				if !in {
					if _, err := nd.Insert(t); err != nil {
						return err
					}
				}
			}
			newDelta[m] = nd
			d.logger.Debug("computed delta", "stage", m, "iteration", iteration, "size", nd.Size())
		}

		for _, m := range stage.Members {
			schema, _ := d.prog.Schema(m)
			newCurrent := d.store.NewRelation(schema)
			if _, err := newCurrent.BulkMerge(current[m]); err != nil {
				return err
			}
			if _, err := newCurrent.BulkMerge(newDelta[m]); err != nil {
				return err
			}
			if d.opts.MaxTuples > 0 && newCurrent.Size() > d.opts.MaxTuples {
				return apperr.RuntimeExhaustion(m, fmt.Sprintf("relation exceeded %d tuples", d.opts.MaxTuples))
			}
			previous[m] = current[m]
			current[m] = newCurrent
			delta[m] = newDelta[m]
		}
		iteration++
	}

	for _, m := range stage.Members {
		d.relations[m] = current[m]
	}
	d.logger.Info("stage complete", "members", stage.Members, "iterations", iteration)
	return nil
}

func ruleReferencesMember(rule term.Rule, members map[string]bool) bool {
	for _, a := range rule.Body {
		if !a.Negated && members[a.Relation] {
			return true
		}
	}
	return false
}

// evaluateJobs runs every plan against resolve, collecting emitted tuples
// grouped by head relation. When Options.Parallelism > 1 the plans are
// evaluated concurrently over a bounded worker pool; the merge back into
// per-relation results always happens single-threaded, so the result is
// identical regardless of Parallelism.
func (d *driver) evaluateJobs(ctx context.Context, plans []*plan.Plan, resolve resolver) (map[string][]term.Tuple, error) {
	results := make(map[string][]term.Tuple)
	if len(plans) == 0 {
		return results, nil
	}

	type outcome struct {
		relation string
		tuples   []term.Tuple
		err      error
	}
	outcomes := make([]outcome, len(plans))

	if d.opts.Parallelism <= 1 {
		for i, p := range plans {
			tuples, err := runPlan(p, resolve)
			outcomes[i] = outcome{relation: p.Rule.Head.Relation, tuples: tuples, err: err}
		}
	} else {
		sem := make(chan struct{}, d.opts.Parallelism)
		var wg sync.WaitGroup
		for i, p := range plans {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, p *plan.Plan) {
				defer wg.Done()
				defer func() { <-sem }()
				tuples, err := runPlan(p, resolve)
				outcomes[i] = outcome{relation: p.Rule.Head.Relation, tuples: tuples, err: err}
			}(i, p)
		}
		wg.Wait()
	}

	for _, o := range outcomes {
		if o.err != nil {
			return nil, o.err
		}
		results[o.relation] = append(results[o.relation], o.tuples...)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return results, nil
}

func runPlan(p *plan.Plan, resolve resolver) ([]term.Tuple, error) {
	var out []term.Tuple
	err := evaluate(p, resolve, func(t term.Tuple) error {
		out = append(out, t)
		return nil
	})
	return out, err
}
