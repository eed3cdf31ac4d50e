package main

import (
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"github.com/duynguyendang/gca-datalog/internal/term"
	sinkcsv "github.com/duynguyendang/gca-datalog/pkg/sink/csv"
)

// dirCSVSink writes each relation to its own "<dir>/<relation>.csv" file,
// the batch-output counterpart of pkg/sink/csv's single-stream writer,
// for a `datalogd run` whose Output configuration names a directory.
type dirCSVSink struct {
	dir string
}

func newDirCSVSink(dir string) *dirCSVSink {
	return &dirCSVSink{dir: dir}
}

func (d *dirCSVSink) Emit(relation string, rows iter.Seq[term.Tuple]) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(filepath.Join(d.dir, relation+".csv"))
	if err != nil {
		return err
	}
	defer f.Close()
	return sinkcsv.New(f).Emit(relation, rows)
}
