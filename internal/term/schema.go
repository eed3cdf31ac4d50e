package term

import "fmt"

// Schema names a relation, its arity and the type of each column, and
// marks whether the relation is extensional (EDB) or intensional (IDB).
type Schema struct {
	Name    string
	Columns []Kind
	IsEDB   bool
}

// Arity returns the number of columns in the schema.
func (s Schema) Arity() int { return len(s.Columns) }

// Tuple is a fixed-arity vector of Constants whose types match a Schema.
type Tuple []Constant

// Equal reports componentwise constant equality.
func (t Tuple) Equal(o Tuple) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if !t[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

func (t Tuple) String() string {
	out := "("
	for i, c := range t {
		if i > 0 {
			out += ", "
		}
		out += c.String()
	}
	return out + ")"
}

// Validate reports a schema violation if the tuple's arity or column types
// do not match the schema.
func (s Schema) Validate(t Tuple) error {
	if len(t) != len(s.Columns) {
		return fmt.Errorf("relation %s: expected arity %d, got %d", s.Name, len(s.Columns), len(t))
	}
	for i, c := range t {
		if c.Kind != s.Columns[i] {
			return fmt.Errorf("relation %s: column %d expected type %s, got %s", s.Name, i, s.Columns[i], c.Kind)
		}
	}
	return nil
}
