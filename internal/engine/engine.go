// Package engine implements the Semi-Naive Driver and Query Runner: it
// validates a resolved Program against a supplied EDB instance, runs the
// Dependency Analyzer, executes each Stage's iterated delta fixpoint in
// topological order, and projects the requested Output Declarations.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/duynguyendang/gca-datalog/internal/analysis"
	"github.com/duynguyendang/gca-datalog/internal/store"
	"github.com/duynguyendang/gca-datalog/internal/term"
	"github.com/duynguyendang/gca-datalog/pkg/apperr"
)

// Options controls a Run beyond what the Program itself specifies.
type Options struct {
	// Parallelism bounds how many delta-variant plans are evaluated
	// concurrently within one iteration. 1 (the default) is fully
	// sequential; the result is identical either way.
	Parallelism int

	// Explain, when true, causes Run to also return the rendered join
	// plan for every compiled rule variant, wired into `datalogd run
	// --explain`.
	Explain bool

	// Logger receives structured progress events. A nil Logger disables
	// logging (slog.New(slog.DiscardHandler) is used internally).
	Logger *slog.Logger

	// MaxTuples bounds the total number of tuples any single IDB relation
	// computed by a stage may hold; EDB relations are not checked against
	// it. Zero means unbounded. A run that would exceed the bound fails
	// with apperr.ErrRuntimeExhaustion instead of continuing to iterate.
	MaxTuples int
}

// Result is the outcome of one evaluation run.
type Result struct {
	// Relations holds every relation's final Handle, EDB and IDB alike,
	// keyed by name.
	Relations map[string]*store.Handle
	// Stages is the topologically-ordered stage decomposition the
	// Analyzer produced, exposed for callers that want to inspect
	// stratification without re-running analysis.
	Stages []analysis.Stage
	// Explain holds one rendered Plan per compiled rule variant, present
	// only when Options.Explain is set.
	Explain []string
	// RunID identifies this evaluation for log correlation.
	RunID string

	store *store.Store
}

// Close releases the Badger instance backing every Handle in Relations.
// Once closed, none of those Handles may be used again. A caller done
// with a Result's relations (a CLI run after printing outputs, a server
// evicting an old run) must call Close or the run's storage and
// background compactor goroutines live until the process exits.
func (r *Result) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

// Run validates prog against edb, computes every IDB relation's least
// fixed point, and returns the resulting relation set. edb supplies tuples
// for relations declared @input in the schema; a declared EDB relation
// absent from edb is simply empty.
func Run(ctx context.Context, prog term.Program, edb map[string][]term.Tuple, opts Options) (*Result, error) {
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	// Stratification is checked before per-rule validation, so a program
	// whose negation runs through a cycle is reported as unstratifiable
	// even when its rules are also unsafe.
	stages, err := analysis.Analyze(prog)
	if err != nil {
		return nil, err
	}
	logger.Info("dependency analysis complete", "stages", len(stages))

	if err := validateProgram(prog); err != nil {
		return nil, err
	}

	st, err := store.Open(store.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	// Every early return below is a failed run: nothing keeps a reference
	// to st, so close it here rather than leaking its Badger instance and
	// compactor goroutines. The success path clears this flag and hands
	// ownership of st to the returned Result instead.
	succeeded := false
	defer func() {
		if !succeeded {
			_ = st.Close()
		}
	}()

	relations := make(map[string]*store.Handle)
	for name, schema := range prog.Schemas {
		if !schema.IsEDB {
			continue
		}
		h := st.NewRelation(schema)
		for _, t := range edb[name] {
			if _, err := h.Insert(t); err != nil {
				return nil, apperr.SchemaViolation(name, err.Error())
			}
		}
		relations[name] = h
	}

	d := &driver{
		store:     st,
		prog:      prog,
		relations: relations,
		opts:      opts,
		logger:    logger,
	}

	for _, stage := range stages {
		if err := d.runStage(ctx, stage); err != nil {
			return nil, err
		}
	}

	if err := validateOutputs(prog, relations); err != nil {
		return nil, err
	}

	succeeded = true
	return &Result{
		Relations: relations,
		Stages:    stages,
		Explain:   d.explain,
		RunID:     runID,
		store:     st,
	}, nil
}

// validateProgram checks schema and safety invariants before any evaluation begins.
func validateProgram(prog term.Program) error {
	for _, rule := range prog.Rules {
		if err := checkAtomSchema(prog, rule.Head); err != nil {
			return err
		}
		for _, b := range rule.Body {
			if err := checkAtomSchema(prog, b); err != nil {
				return err
			}
		}
		if err := rule.CheckSafety(); err != nil {
			return apperr.SafetyViolation(err.Error())
		}
		headSchema, ok := prog.Schema(rule.Head.Relation)
		if ok && headSchema.IsEDB {
			return apperr.SchemaViolation(rule.Head.Relation, "rule head names a relation declared as EDB input")
		}
	}
	return nil
}

func checkAtomSchema(prog term.Program, a term.Atom) error {
	schema, ok := prog.Schema(a.Relation)
	if !ok {
		return apperr.SchemaViolation(a.Relation, "unknown relation referenced by a rule")
	}
	if schema.Arity() != len(a.Args) {
		return apperr.SchemaViolation(a.Relation, fmt.Sprintf("arity mismatch: schema declares %d, atom has %d", schema.Arity(), len(a.Args)))
	}
	return nil
}

// validateOutputs enforces the "Output of undeclared relation" rule: an
// @output naming a relation with no defining rules and not declared
// @input is fatal.
func validateOutputs(prog term.Program, relations map[string]*store.Handle) error {
	for _, o := range prog.Outputs {
		if _, ok := relations[o.Relation]; !ok {
			return apperr.UndeclaredOutput(o.Relation)
		}
	}
	return nil
}
