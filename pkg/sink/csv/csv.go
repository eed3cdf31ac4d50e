// Package csv implements the file-destination Sink from : a
// newline-terminated, comma-separated representation of constant values.
package csv

import (
	"encoding/csv"
	"io"
	"iter"

	"github.com/duynguyendang/gca-datalog/internal/term"
)

// Sink writes every Emit call's rows as CSV to an underlying writer, one
// row per tuple. It does not write a header row: a Program's Schema, not
// the Sink, owns column naming, and its format is plain
// comma-separated constant values.
type Sink struct {
	w *csv.Writer
}

// New wraps w (typically a file or os.Stdout) as a CSV Sink.
func New(w io.Writer) *Sink {
	return &Sink{w: csv.NewWriter(w)}
}

// Emit writes rows to the underlying writer and flushes.
func (s *Sink) Emit(relation string, rows iter.Seq[term.Tuple]) error {
	var writeErr error
	rows(func(t term.Tuple) bool {
		record := make([]string, len(t))
		for i, c := range t {
			record[i] = c.String()
		}
		if err := s.w.Write(record); err != nil {
			writeErr = err
			return false
		}
		return true
	})
	if writeErr != nil {
		return writeErr
	}
	s.w.Flush()
	return s.w.Error()
}
