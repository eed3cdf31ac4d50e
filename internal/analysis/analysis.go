// Package analysis implements the Dependency Analyzer: it
// builds the precedence graph over IDB predicates, decomposes it into
// strongly-connected components with an iterative Tarjan pass (avoiding
// recursion depth limits on pathological programs), topologically orders
// the components, and assigns each a stratum number equal to the longest
// chain of negative edges leading into it. A negative edge inside one
// component makes the program unstratifiable.
package analysis

import (
	"fmt"
	"sort"

	"github.com/duynguyendang/gca-datalog/internal/term"
	"github.com/duynguyendang/gca-datalog/pkg/apperr"
)

// Stage is one strongly-connected component of the precedence graph: the
// unit of fixpoint computation the Semi-Naive Driver executes as a whole.
type Stage struct {
	// Members is the set of IDB relation names in this component, sorted
	// for determinism.
	Members []string
	// Rules is the subset of the program's rules whose head relation is
	// in Members, in original program order.
	Rules []term.Rule
	// Stratum is the longest path of negative precedence edges leading
	// into this component.
	Stratum int
}

type edge struct {
	to       string
	negative bool
}

// Analyze builds the precedence graph, decomposes it into stages, and
// returns them in topological (execution) order. It returns an
// apperr-wrapped ErrUnstratifiable if any component contains a negative
// edge within itself.
func Analyze(prog term.Program) ([]Stage, error) {
	heads := map[string]bool{}
	for _, r := range prog.Rules {
		heads[r.Head.Relation] = true
	}

	nodes := make([]string, 0, len(heads))
	for h := range heads {
		nodes = append(nodes, h)
	}
	sort.Strings(nodes)

	adj := make(map[string][]edge)
	for _, r := range prog.Rules {
		for _, b := range r.Body {
			if !heads[b.Relation] {
				continue // EDB, or an IDB with no defining rules: not part of the graph
			}
			adj[b.Relation] = append(adj[b.Relation], edge{to: r.Head.Relation, negative: b.Negated})
		}
	}
	for _, n := range nodes {
		sort.Slice(adj[n], func(i, j int) bool { return adj[n][i].to < adj[n][j].to })
	}

	plainAdj := make(map[string][]string, len(adj))
	for n, es := range adj {
		seen := map[string]bool{}
		for _, e := range es {
			if !seen[e.to] {
				seen[e.to] = true
				plainAdj[n] = append(plainAdj[n], e.to)
			}
		}
	}

	sccs := tarjanSCC(nodes, plainAdj)
	// Tarjan finishes a component only after everything it points to has
	// finished, i.e. it yields components in reverse topological order
	// relative to a body->head edge; reverse to get execution order.
	for i, j := 0, len(sccs)-1; i < j; i, j = i+1, j-1 {
		sccs[i], sccs[j] = sccs[j], sccs[i]
	}

	sccIndex := make(map[string]int)
	for i, scc := range sccs {
		for _, n := range scc {
			sccIndex[n] = i
		}
	}

	stages := make([]Stage, len(sccs))
	for i, scc := range sccs {
		members := append([]string(nil), scc...)
		sort.Strings(members)
		stages[i] = Stage{Members: members}
	}

	for _, r := range prog.Rules {
		i := sccIndex[r.Head.Relation]
		stages[i].Rules = append(stages[i].Rules, r)
	}

	stratum := make([]int, len(sccs))
	for i, scc := range sccs {
		for _, p := range scc {
			for _, e := range adj[p] {
				j := sccIndex[e.to]
				if j == i {
					if e.negative {
						return nil, apperr.Unstratifiable(fmt.Sprintf("negative precedence edge %s -> %s lies inside one component", p, e.to))
					}
					continue
				}
				want := stratum[i]
				if e.negative {
					want++
				}
				if want > stratum[j] {
					stratum[j] = want
				}
			}
		}
	}
	for i := range stages {
		stages[i].Stratum = stratum[i]
	}

	return stages, nil
}

// tarjanSCC decomposes the graph (nodes, adj) into strongly-connected
// components using an explicit work stack in place of recursion.
func tarjanSCC(nodes []string, adj map[string][]string) [][]string {
	index := 0
	indices := make(map[string]int, len(nodes))
	lowlink := make(map[string]int, len(nodes))
	onStack := make(map[string]bool, len(nodes))
	var tstack []string
	var sccs [][]string

	type frame struct {
		node     string
		children []string
		ci       int
	}

	for _, start := range nodes {
		if _, seen := indices[start]; seen {
			continue
		}

		work := []*frame{{node: start, children: adj[start]}}
		indices[start] = index
		lowlink[start] = index
		index++
		tstack = append(tstack, start)
		onStack[start] = true

		for len(work) > 0 {
			top := work[len(work)-1]
			if top.ci < len(top.children) {
				child := top.children[top.ci]
				top.ci++
				if _, seen := indices[child]; !seen {
					indices[child] = index
					lowlink[child] = index
					index++
					tstack = append(tstack, child)
					onStack[child] = true
					work = append(work, &frame{node: child, children: adj[child]})
				} else if onStack[child] {
					if indices[child] < lowlink[top.node] {
						lowlink[top.node] = indices[child]
					}
				}
				continue
			}

			work = work[:len(work)-1]
			if len(work) > 0 {
				parent := work[len(work)-1]
				if lowlink[top.node] < lowlink[parent.node] {
					lowlink[parent.node] = lowlink[top.node]
				}
			}
			if lowlink[top.node] == indices[top.node] {
				var scc []string
				for {
					n := tstack[len(tstack)-1]
					tstack = tstack[:len(tstack)-1]
					onStack[n] = false
					scc = append(scc, n)
					if n == top.node {
						break
					}
				}
				sccs = append(sccs, scc)
			}
		}
	}

	return sccs
}
