// Package datalog is the Parser collaborator: the engine never parses
// program text itself, so this package turns a textual program into an
// already-resolved term.Program (plus any EDB facts written inline) for
// internal/engine.Run to consume.
//
// Surface syntax: lowercase symbols, uppercase variables, "!" negation,
// "Head :- Body1, Body2." rules terminated by a period, "%" line
// comments. Schema declarations are static (every column has a fixed
// Kind), spelled ".decl relation(col: kind, ...)." plus
// ".input"/".output" directives naming which files feed and receive a
// relation's tuples.
package datalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/duynguyendang/gca-datalog/internal/term"
)

// Parse turns program text into a resolved Program together with any EDB
// tuples written as inline ground facts. Relations named on an .input
// directive but never assigned inline facts still get a Schema entry with
// zero rows; a Loader (loader.go) may fill them in from external data.
func Parse(src string) (term.Program, map[string][]term.Tuple, error) {
	prog := term.Program{Schemas: map[string]term.Schema{}}
	facts := map[string][]term.Tuple{}

	for _, stmt := range splitStatements(stripComments(src)) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		switch {
		case strings.HasPrefix(stmt, ".decl "):
			schema, err := parseDecl(stmt)
			if err != nil {
				return term.Program{}, nil, err
			}
			prog.Schemas[schema.Name] = schema
		case strings.HasPrefix(stmt, ".input "):
			name := strings.TrimSpace(strings.TrimPrefix(stmt, ".input "))
			schema, ok := prog.Schemas[name]
			if !ok {
				return term.Program{}, nil, fmt.Errorf("datalog: .input %q before .decl", name)
			}
			schema.IsEDB = true
			prog.Schemas[name] = schema
		case strings.HasPrefix(stmt, ".output "):
			decl, err := parseOutput(strings.TrimSpace(strings.TrimPrefix(stmt, ".output ")))
			if err != nil {
				return term.Program{}, nil, err
			}
			prog.Outputs = append(prog.Outputs, decl)
		default:
			rule, isFact, err := parseRuleOrFact(stmt)
			if err != nil {
				return term.Program{}, nil, err
			}
			if isFact {
				tup := make(term.Tuple, len(rule.Head.Args))
				for i, a := range rule.Head.Args {
					if a.IsVar {
						return term.Program{}, nil, fmt.Errorf("datalog: fact %q must be fully ground", stmt)
					}
					tup[i] = a.Constant
				}
				facts[rule.Head.Relation] = append(facts[rule.Head.Relation], tup)
				continue
			}
			prog.Rules = append(prog.Rules, rule)
		}
	}

	return prog, facts, nil
}

func parseDecl(stmt string) (term.Schema, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(stmt, ".decl "))
	open := strings.Index(rest, "(")
	close := strings.LastIndex(rest, ")")
	if open == -1 || close == -1 || open >= close {
		return term.Schema{}, fmt.Errorf("datalog: malformed .decl %q", stmt)
	}
	name := strings.TrimSpace(rest[:open])
	if name == "" {
		return term.Schema{}, fmt.Errorf("datalog: .decl missing relation name in %q", stmt)
	}

	var columns []term.Kind
	for _, col := range smartSplit(rest[open+1:close], ',') {
		col = strings.TrimSpace(col)
		if col == "" {
			continue
		}
		parts := strings.SplitN(col, ":", 2)
		kindName := col
		if len(parts) == 2 {
			kindName = strings.TrimSpace(parts[1])
		}
		kind, err := parseKind(kindName)
		if err != nil {
			return term.Schema{}, fmt.Errorf("datalog: %s in .decl %q", err, name)
		}
		columns = append(columns, kind)
	}

	return term.Schema{Name: name, Columns: columns}, nil
}

func parseKind(s string) (term.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "symbol", "sym":
		return term.Symbol, nil
	case "integer", "int":
		return term.Integer, nil
	default:
		return 0, fmt.Errorf("unknown column kind %q", s)
	}
}

func parseOutput(rest string) (term.OutputDecl, error) {
	if !strings.Contains(rest, "(") {
		return term.OutputDecl{Relation: strings.TrimSpace(rest)}, nil
	}
	relation, args, err := parseAtomShape(rest, 0)
	if err != nil {
		return term.OutputDecl{}, fmt.Errorf("datalog: malformed .output %q: %w", rest, err)
	}
	return term.OutputDecl{Relation: relation, Pattern: term.OutputPattern(args)}, nil
}

// parseRuleOrFact parses "Head :- Body1, Body2" or a bare "Head" (a fact
// when every argument is a constant, an empty-body rule otherwise). Range
// restriction is checked by Rule.CheckSafety when internal/engine.Run
// validates the program, not here, so a nonsensical unrestricted rule
// still parses and only fails the safety check later.
func parseRuleOrFact(stmt string) (term.Rule, bool, error) {
	arrow := strings.Index(stmt, ":-")
	headText := stmt
	var bodyText string
	hasArrow := arrow != -1
	if hasArrow {
		headText = stmt[:arrow]
		bodyText = stmt[arrow+2:]
	}

	headRelation, headArgs, err := parseAtomShape(strings.TrimSpace(headText), 0)
	if err != nil {
		return term.Rule{}, false, fmt.Errorf("datalog: malformed head in %q: %w", stmt, err)
	}
	head := term.Atom{Relation: headRelation, Args: headArgs}

	var body []term.Atom
	if hasArrow {
		atomIndex := 1
		for _, raw := range smartSplit(bodyText, ',') {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			negated := false
			if strings.HasPrefix(raw, "!") {
				negated = true
				raw = strings.TrimSpace(raw[1:])
			}
			relation, args, err := parseAtomShape(raw, atomIndex)
			if err != nil {
				return term.Rule{}, false, fmt.Errorf("datalog: malformed body atom %q: %w", raw, err)
			}
			body = append(body, term.Atom{Relation: relation, Args: args, Negated: negated})
			atomIndex++
		}
	}

	isFact := !hasArrow && allGround(headArgs)
	return term.Rule{Head: head, Body: body}, isFact, nil
}

func allGround(args []term.Term) bool {
	for _, a := range args {
		if a.IsVar {
			return false
		}
	}
	return true
}

// parseAtomShape parses "relation(arg1, arg2, ...)" into a relation name
// and a Term list; "_" is treated as a wildcard variable, given a fresh
// synthesized name so it never accidentally unifies with another "_" in
// the same atom. atomIndex identifies this atom's position
// within its enclosing rule (0 for the head, 1-based for body atoms), so
// each wildcard's synthesized variable name is unique within the rule
// without depending on parse order or memory addresses: the same source
// text always compiles to the same plan.
func parseAtomShape(s string, atomIndex int) (string, []term.Term, error) {
	open := strings.Index(s, "(")
	close := strings.LastIndex(s, ")")
	if open == -1 || close == -1 || open >= close {
		return "", nil, fmt.Errorf("expected relation(args...), got %q", s)
	}
	relation := strings.TrimSpace(s[:open])
	if relation == "" {
		return "", nil, fmt.Errorf("missing relation name in %q", s)
	}

	rawArgs := smartSplit(s[open+1:close], ',')
	args := make([]term.Term, 0, len(rawArgs))
	for i, raw := range rawArgs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return "", nil, fmt.Errorf("empty argument %d in %q", i, s)
		}
		args = append(args, parseTerm(raw, atomIndex, i))
	}
	return relation, args, nil
}

func parseTerm(raw string, atomIndex, col int) term.Term {
	if raw == "_" {
		return term.V(term.Variable(fmt.Sprintf("_wild_%d_%d", atomIndex, col)))
	}
	if unquoted, ok := unquote(raw); ok {
		return term.C(term.Sym(unquoted))
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return term.C(term.Int(n))
	}
	r := rune(raw[0])
	if r >= 'A' && r <= 'Z' {
		return term.V(term.Variable(raw))
	}
	return term.C(term.Sym(raw))
}

func unquote(s string) (string, bool) {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1], true
	}
	return "", false
}

// stripComments removes everything from an unquoted "%" to end of line.
func stripComments(src string) string {
	var out strings.Builder
	inQuote := false
	var quoteChar byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case inQuote:
			out.WriteByte(c)
			if c == quoteChar {
				inQuote = false
			}
		case c == '"' || c == '\'':
			inQuote = true
			quoteChar = c
			out.WriteByte(c)
		case c == '%':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			out.WriteByte('\n')
		default:
			out.WriteByte(c)
		}
	}
	return out.String()
}

// splitStatements splits on a top-level '.' that terminates a clause, the
// way smartSplit splits on ',' for argument lists. A '.' only ends a
// statement when it is not immediately followed by a letter, digit or
// underscore: that excludes the leading dot of a ".decl"/".input"/
// ".output" directive keyword while still recognizing the terminating dot
// after "path(X, Y)" or a bare relation name.
func splitStatements(src string) []string {
	var results []string
	var current strings.Builder
	depth := 0
	inQuote := false
	var quoteChar byte

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case inQuote:
			current.WriteByte(c)
			if c == quoteChar {
				inQuote = false
			}
		case c == '"' || c == '\'':
			inQuote = true
			quoteChar = c
			current.WriteByte(c)
		case c == '(':
			depth++
			current.WriteByte(c)
		case c == ')':
			depth--
			current.WriteByte(c)
		case c == '.' && depth == 0 && !isWordByte(nextByte(src, i+1)):
			results = append(results, current.String())
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		results = append(results, current.String())
	}
	return results
}

func nextByte(s string, i int) byte {
	if i >= len(s) {
		return 0
	}
	return s[i]
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// smartSplit splits s on sep at paren-depth 0 outside quotes, the same
// way splitStatements splits on '.', so a comma inside a quoted symbol or
// a nested atom argument never breaks an argument list apart.
func smartSplit(s string, sep byte) []string {
	var results []string
	var current strings.Builder
	depth := 0
	inQuote := false
	var quoteChar byte

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote:
			current.WriteByte(c)
			if c == quoteChar {
				inQuote = false
			}
		case c == '"' || c == '\'':
			inQuote = true
			quoteChar = c
			current.WriteByte(c)
		case c == '(':
			depth++
			current.WriteByte(c)
		case c == ')':
			depth--
			current.WriteByte(c)
		case c == sep && depth == 0:
			results = append(results, current.String())
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		results = append(results, current.String())
	}
	return results
}
