// Package deps orders flows for loading and reports their dependency
// closures.
//
// An edge From -> To means From must be loaded before To.
package deps

import (
	"fmt"
	"sort"
	"strings"

	"github.com/HendryAvila/ctxkeeper/internal/ctxerr"
	"github.com/HendryAvila/ctxkeeper/internal/graph"
)

// OrderForLoading returns flowIDs in an order that respects every
// dependency whose endpoints are both requested. Edges touching flows
// outside the request are ignored. Among ready flows the one touching the
// fewest requested edges goes first, then the smallest id.
//
// A cycle among the requested flows yields a Cyclic error naming the flows
// that could not be placed.
func OrderForLoading(flowIDs []string, deps []graph.Dependency) ([]string, error) {
	requested := make(map[string]bool, len(flowIDs))
	var nodes []string
	for _, id := range flowIDs {
		if !requested[id] {
			requested[id] = true
			nodes = append(nodes, id)
		}
	}

	inDegree := make(map[string]int, len(nodes))
	score := make(map[string]int, len(nodes))
	next := make(map[string][]string, len(nodes))
	for _, d := range deps {
		if !requested[d.From] || !requested[d.To] {
			continue
		}
		inDegree[d.To]++
		next[d.From] = append(next[d.From], d.To)
		score[d.From]++
		score[d.To]++
	}

	less := func(a, b string) bool {
		if score[a] != score[b] {
			return score[a] < score[b]
		}
		return a < b
	}

	var ready []string
	for _, id := range nodes {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, to := range next[id] {
			inDegree[to]--
			if inDegree[to] == 0 {
				ready = append(ready, to)
			}
		}
	}

	if len(order) < len(nodes) {
		placed := make(map[string]bool, len(order))
		for _, id := range order {
			placed[id] = true
		}
		var stuck []string
		for _, id := range nodes {
			if !placed[id] {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, ctxerr.Cyclic(strings.Join(stuck, ", "),
			fmt.Errorf("%d of %d flows form or follow a dependency cycle", len(stuck), len(nodes)))
	}
	return order, nil
}

// Priority is a qualitative label derived from a flow's dependency count.
type Priority string

const (
	PriorityIndependent Priority = "independent"
	PriorityLow         Priority = "low"
	PriorityModerate    Priority = "moderate"
	PriorityHigh        Priority = "high"
)

// PriorityFor labels a total dependency count.
func PriorityFor(total int) Priority {
	switch {
	case total <= 0:
		return PriorityIndependent
	case total <= 2:
		return PriorityLow
	case total <= 4:
		return PriorityModerate
	default:
		return PriorityHigh
	}
}

// FlowAnalysis describes one flow's place in the dependency graph.
type FlowAnalysis struct {
	Flow string `json:"flow"`
	// DependsOn lists flows that must load before this one.
	DependsOn []string `json:"depends_on"`
	// Dependents lists flows that load after this one.
	Dependents []string `json:"dependents"`
	// Indirect lists transitive prerequisites not already in DependsOn.
	Indirect []string `json:"indirect"`
	Total    int      `json:"total"`
	Priority Priority `json:"priority"`
}

// Analysis is the result of AnalyzeDependencies.
type Analysis struct {
	Flows []FlowAnalysis `json:"flows"`
	// Dangling lists edges whose endpoints are missing from known.
	Dangling []string `json:"dangling,omitempty"`
}

// AnalyzeDependencies reports direct and indirect dependencies for each of
// flowIDs across the whole dependency list. known is the set of defined
// flow ids; pass nil to skip dangling-edge detection.
func AnalyzeDependencies(flowIDs []string, deps []graph.Dependency, known map[string]bool) *Analysis {
	upstream := make(map[string][]string)
	downstream := make(map[string][]string)
	for _, d := range deps {
		upstream[d.To] = appendUnique(upstream[d.To], d.From)
		downstream[d.From] = appendUnique(downstream[d.From], d.To)
	}

	out := &Analysis{Flows: make([]FlowAnalysis, 0, len(flowIDs))}
	seen := make(map[string]bool, len(flowIDs))
	for _, id := range flowIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		direct := sortedCopy(upstream[id])
		dependents := sortedCopy(downstream[id])

		closure := make(map[string]bool)
		collectUpstream(id, upstream, map[string]bool{id: true}, closure)
		indirect := []string{}
		for dep := range closure {
			if dep != id && !contains(direct, dep) {
				indirect = append(indirect, dep)
			}
		}
		sort.Strings(indirect)

		total := len(direct) + len(dependents)
		out.Flows = append(out.Flows, FlowAnalysis{
			Flow:       id,
			DependsOn:  direct,
			Dependents: dependents,
			Indirect:   indirect,
			Total:      total,
			Priority:   PriorityFor(total),
		})
	}

	if known != nil {
		for _, d := range deps {
			if !known[d.From] || !known[d.To] {
				out.Dangling = append(out.Dangling, d.From+" -> "+d.To)
			}
		}
	}
	return out
}

// collectUpstream walks prerequisites depth-first. path holds the flows on
// the current branch only, so a cycle stops that branch without hiding
// nodes reachable through another. A flow already in closure has had its
// own prerequisites collected and is not walked again.
func collectUpstream(id string, upstream map[string][]string, path, closure map[string]bool) {
	for _, dep := range upstream[id] {
		if path[dep] || closure[dep] {
			continue
		}
		closure[dep] = true
		path[dep] = true
		collectUpstream(dep, upstream, path, closure)
		delete(path, dep)
	}
}

func appendUnique(list []string, s string) []string {
	if contains(list, s) {
		return list
	}
	return append(list, s)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedCopy(list []string) []string {
	out := append([]string{}, list...)
	sort.Strings(out)
	return out
}
