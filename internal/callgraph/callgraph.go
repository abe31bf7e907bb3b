// Package callgraph builds the block call graph of an effective module.
// Blocks may call each other recursively, so the graph is not required to be
// acyclic; cycles are reported, not rejected.
package callgraph

import (
	"fmt"
	"sort"

	"github.com/leapstack-labs/transvm/pkg/core"
)

// Graph maps each block to the blocks it calls.
type Graph struct {
	entry   string
	order   []string
	callees map[string][]string // caller -> callees
	callers map[string][]string // callee -> callers
}

// Build derives the call graph of eff from its unqualified call operations.
// Library calls are not edges. Calls to unknown blocks are errors; a linked
// module never has them.
func Build(eff *core.EffectiveModule) (*Graph, error) {
	g := &Graph{
		entry:   eff.Entry,
		order:   append([]string(nil), eff.Order...),
		callees: make(map[string][]string, len(eff.Order)),
		callers: make(map[string][]string, len(eff.Order)),
	}
	for _, name := range eff.Order {
		g.callees[name] = []string{}
		g.callers[name] = []string{}
	}

	for _, name := range eff.Order {
		for _, op := range eff.Blocks[name].Ops {
			if op.Code != core.OpCall || len(op.Args) == 0 {
				continue
			}
			callee := op.Args[0].Text
			if lib, _ := core.SplitCallee(callee); lib != "" {
				continue
			}
			if err := g.addEdge(name, callee); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

func (g *Graph) addEdge(caller, callee string) error {
	if _, ok := g.callees[callee]; !ok {
		return fmt.Errorf("block %q calls unknown block %q", caller, callee)
	}
	if !contains(g.callees[caller], callee) {
		g.callees[caller] = append(g.callees[caller], callee)
	}
	if !contains(g.callers[callee], caller) {
		g.callers[callee] = append(g.callers[callee], caller)
	}
	return nil
}

// Callees returns the blocks name calls, in call order.
func (g *Graph) Callees(name string) []string { return g.callees[name] }

// Callers returns the blocks calling name.
func (g *Graph) Callers(name string) []string { return g.callers[name] }

// EdgeCount returns the number of distinct caller/callee pairs.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, c := range g.callees {
		count += len(c)
	}
	return count
}

// Reachable returns the blocks reachable from the given blocks, including
// themselves, sorted.
func (g *Graph) Reachable(from ...string) []string {
	seen := make(map[string]bool)

	var mark func(id string)
	mark = func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		for _, c := range g.callees[id] {
			mark(c)
		}
	}
	for _, id := range from {
		if _, ok := g.callees[id]; ok {
			mark(id)
		}
	}

	result := make([]string, 0, len(seen))
	for id := range seen {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// Unreachable returns the blocks the entry block can never reach, in
// module order.
func (g *Graph) Unreachable() []string {
	reached := make(map[string]bool)
	for _, id := range g.Reachable(g.entry) {
		reached[id] = true
	}
	var out []string
	for _, id := range g.order {
		if !reached[id] {
			out = append(out, id)
		}
	}
	return out
}

// Cycle returns a recursive call path such as [a b a], or nil when no block
// can reach itself. Blocks are visited in module order so the result is
// deterministic.
func (g *Graph) Cycle() []string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	parent := make(map[string]string)

	var cycle []string
	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		for _, c := range g.callees[id] {
			if !visited[c] {
				parent[c] = id
				if dfs(c) {
					return true
				}
			} else if onStack[c] {
				cycle = []string{c}
				for cur := id; cur != c; cur = parent[cur] {
					cycle = append([]string{cur}, cycle...)
				}
				cycle = append([]string{c}, cycle...)
				return true
			}
		}
		onStack[id] = false
		return false
	}

	for _, id := range g.order {
		if !visited[id] && dfs(id) {
			return cycle
		}
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
