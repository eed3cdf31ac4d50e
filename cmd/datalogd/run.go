package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/duynguyendang/gca-datalog/internal/engine"
	"github.com/duynguyendang/gca-datalog/pkg/datalog"
	"github.com/duynguyendang/gca-datalog/pkg/sink"
	sinkcsv "github.com/duynguyendang/gca-datalog/pkg/sink/csv"
	sinktable "github.com/duynguyendang/gca-datalog/pkg/sink/table"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <program> <data-dir>",
		Short: "Evaluate a Datalog program against a data directory and print its outputs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(args[0], args[1])
		},
	}
}

func runProgram(programPath, dataDir string) error {
	src, err := os.ReadFile(programPath)
	if err != nil {
		return fmt.Errorf("reading program: %w", err)
	}

	prog, inlineFacts, err := datalog.Parse(string(src))
	if err != nil {
		return fmt.Errorf("parsing program: %w", err)
	}

	edb, err := datalog.LoadFacts(dataDir, prog)
	if err != nil {
		return fmt.Errorf("loading data directory: %w", err)
	}
	for relation, tuples := range inlineFacts {
		edb[relation] = append(edb[relation], tuples...)
	}

	res, err := engine.Run(context.Background(), prog, edb, engine.Options{
		Parallelism: cfg.Parallelism,
		Explain:     explain,
		MaxTuples:   cfg.MaxTuples,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer res.Close()

	if explain {
		for _, plan := range res.Explain {
			fmt.Fprintln(os.Stderr, plan)
		}
	}

	outputs, err := engine.QueryOutputs(prog, res)
	if err != nil {
		return err
	}

	out, err := selectSink(cfg.Output)
	if err != nil {
		return err
	}
	for _, decl := range prog.Outputs {
		if err := out.Emit(decl.Relation, sink.Seq(outputs[decl.Relation])); err != nil {
			return fmt.Errorf("writing %s: %w", decl.Relation, err)
		}
	}

	fmt.Fprintf(os.Stderr, "run %s complete: %d stages, %d output relations\n", res.RunID, len(res.Stages), len(prog.Outputs))
	return nil
}

// selectSink honors the run configuration's Output field: "table" and
// "csv" print to stdout, anything else is treated as a directory that
// receives one "<relation>.csv" file per Output Declaration.
func selectSink(output string) (sink.Sink, error) {
	switch output {
	case "", "table":
		return sinktable.New(os.Stdout), nil
	case "csv":
		return sinkcsv.New(os.Stdout), nil
	default:
		return newDirCSVSink(output), nil
	}
}
