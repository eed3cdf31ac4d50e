package datalog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/duynguyendang/gca-datalog/internal/term"
)

// LoadFacts reads one CSV file per EDB relation from dir (named
// "<relation>.csv") and decodes each row against the relation's declared
// Schema, matching `datalogd run <program> <data-dir>`'s batch entry
// point. A missing file is not an error: an EDB relation is simply empty
// unless facts for it are also written inline in the program text.
func LoadFacts(dir string, prog term.Program) (map[string][]term.Tuple, error) {
	facts := map[string][]term.Tuple{}
	for name, schema := range prog.Schemas {
		if !schema.IsEDB {
			continue
		}
		path := filepath.Join(dir, name+".csv")
		rows, err := loadCSV(path, schema)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		facts[name] = rows
	}
	return facts, nil
}

func loadCSV(path string, schema term.Schema) ([]term.Tuple, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = schema.Arity()
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("datalog: reading %s: %w", path, err)
	}

	tuples := make([]term.Tuple, 0, len(records))
	for i, record := range records {
		tup := make(term.Tuple, len(record))
		for col, field := range record {
			c, err := decodeField(field, schema.Columns[col])
			if err != nil {
				return nil, fmt.Errorf("datalog: %s row %d column %d: %w", path, i, col, err)
			}
			tup[col] = c
		}
		if err := schema.Validate(tup); err != nil {
			return nil, fmt.Errorf("datalog: %s row %d: %w", path, i, err)
		}
		tuples = append(tuples, tup)
	}
	return tuples, nil
}

func decodeField(field string, kind term.Kind) (term.Constant, error) {
	if kind == term.Integer {
		n, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return term.Constant{}, fmt.Errorf("invalid integer %q: %w", field, err)
		}
		return term.Int(n), nil
	}
	return term.Sym(field), nil
}
