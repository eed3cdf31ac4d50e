package plan

import "github.com/duynguyendang/gca-datalog/internal/term"

// Seed compiles a single Plan for a rule whose body contains no member of
// the current stage. Every body atom resolves to its
// Static view — an EDB relation, or an IDB relation frozen by an earlier
// stage.
func Seed(rule term.Rule, preferred Preferred) (*Plan, error) {
	roleOf := func(int, string) Role { return RoleStatic }
	return Compile(rule, roleOf, preferred, -1)
}

// Recursive expands a rule that references stage members into its delta
// variants.
// members holds the relation names being computed by the current stage.
//
// For a rule with k occurrences of stage members in its body, k variants
// are produced. Variant j reads ΔT at the j'th occurrence, T^i (current)
// at member occurrences preceding j, and T^{i-1} (previous) at member
// occurrences following j; non-member atoms are always Static.
func Recursive(rule term.Rule, members map[string]bool, preferred Preferred) ([]*Plan, error) {
	var memberPositions []int
	for i, a := range rule.Body {
		if !a.Negated && members[a.Relation] {
			memberPositions = append(memberPositions, i)
		}
	}

	if len(memberPositions) == 0 {
		p, err := Seed(rule, preferred)
		if err != nil {
			return nil, err
		}
		return []*Plan{p}, nil
	}

	variants := make([]*Plan, 0, len(memberPositions))
	for _, j := range memberPositions {
		roleOf := func(idx int, relation string) Role {
			if !members[relation] {
				return RoleStatic
			}
			switch {
			case idx == j:
				return RoleDelta
			case idx < j:
				return RoleCurrent
			default:
				return RolePrevious
			}
		}
		p, err := Compile(rule, roleOf, preferred, j)
		if err != nil {
			return nil, err
		}
		variants = append(variants, p)
	}
	return variants, nil
}
