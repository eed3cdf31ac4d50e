// Package table implements an aligned-column Sink for interactive use from
// `datalogd query`, the REPL-friendly counterpart to pkg/sink/csv.
package table

import (
	"fmt"
	"io"
	"iter"
	"text/tabwriter"

	"github.com/duynguyendang/gca-datalog/internal/term"
)

// Sink writes each relation's rows as a header line followed by
// tab-aligned columns.
type Sink struct {
	w io.Writer
}

// New wraps w (typically os.Stdout) as a table Sink.
func New(w io.Writer) *Sink {
	return &Sink{w: w}
}

// Emit prints relation as a header followed by one aligned row per tuple.
func (s *Sink) Emit(relation string, rows iter.Seq[term.Tuple]) error {
	tw := tabwriter.NewWriter(s.w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\n", relation)

	n := 0
	var writeErr error
	rows(func(t term.Tuple) bool {
		n++
		cells := make([]string, len(t))
		for i, c := range t {
			cells[i] = c.String()
		}
		if _, err := fmt.Fprintln(tw, joinTabs(cells)); err != nil {
			writeErr = err
			return false
		}
		return true
	})
	if writeErr != nil {
		return writeErr
	}
	if n == 0 {
		fmt.Fprintln(tw, "(empty)")
	}
	return tw.Flush()
}

func joinTabs(cells []string) string {
	out := ""
	for i, c := range cells {
		if i > 0 {
			out += "\t"
		}
		out += c
	}
	return out
}
