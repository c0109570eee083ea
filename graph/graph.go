// Package graph builds the workspace dependency graph, detects cycles,
// computes affected sets via reverse-edge traversal, and partitions
// affected work into parallel-safe waves.
package graph

import (
	"fmt"
	"io"
	"sort"

	"github.com/loom-build/loom/manifest"
)

// DependencyGraph is the forward/reverse edge map over workspace projects.
// Edges are created only for dependency names that resolve to a known
// workspace project; external package dependencies are not represented.
type DependencyGraph struct {
	Projects map[string]*manifest.Project
	Deps     map[string]map[string]bool // A -> set of B, A depends on B
	RDeps    map[string]map[string]bool // B -> set of A, A depends on B
}

// Build constructs the dependency graph for a set of projects, grounded on
// the teacher's BuildDependencyGraph/BuildForwardDependencyGraph pair,
// generalized to keep both directions on a single struct.
func Build(projects map[string]*manifest.Project) *DependencyGraph {
	g := &DependencyGraph{
		Projects: projects,
		Deps:     make(map[string]map[string]bool),
		RDeps:    make(map[string]map[string]bool),
	}
	for name := range projects {
		g.Deps[name] = make(map[string]bool)
		g.RDeps[name] = make(map[string]bool)
	}
	for name, p := range projects {
		for _, dep := range p.DependencyNames() {
			if _, known := projects[dep]; !known {
				continue // external dependency, ignored for graph purposes
			}
			g.Deps[name][dep] = true
			g.RDeps[dep][name] = true
		}
	}
	return g
}

// DetectCycles runs a three-color DFS over every project in name order,
// reporting every simple cycle found. An empty result means the graph is
// acyclic.
func DetectCycles(g *DependencyGraph) [][]string {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(g.Projects))
	for name := range g.Projects {
		color[name] = white
	}

	var cycles [][]string
	var stack []string
	stackIndex := make(map[string]int)

	var visit func(name string)
	visit = func(name string) {
		color[name] = gray
		stackIndex[name] = len(stack)
		stack = append(stack, name)

		deps := sortedKeys(g.Deps[name])
		for _, dep := range deps {
			switch color[dep] {
			case white:
				visit(dep)
			case gray:
				start := stackIndex[dep]
				cycle := append([]string{}, stack[start:]...)
				cycle = append(cycle, dep)
				cycles = append(cycles, cycle)
			case black:
				// already fully explored, no cycle through dep from here
			}
		}

		stack = stack[:len(stack)-1]
		delete(stackIndex, name)
		color[name] = black
	}

	for _, name := range sortedNames(g.Projects) {
		if color[name] == white {
			visit(name)
		}
	}
	return cycles
}

// Affected returns the smallest set A containing seed and closed under
// reverse dependency edges: if x is in A and y depends on x, y is in A.
// Implemented as BFS over RDeps; order of the result is not significant.
func Affected(seed map[string]bool, g *DependencyGraph) map[string]bool {
	affected := make(map[string]bool, len(seed))
	queue := make([]string, 0, len(seed))
	for name := range seed {
		if !affected[name] {
			affected[name] = true
			queue = append(queue, name)
		}
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for dep := range g.RDeps[current] {
			if !affected[dep] {
				affected[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	return affected
}

// DependsOn returns the smallest set D containing seed and closed under
// forward dependency edges: if x is in D and x depends on y, y is in D.
// This is Affected's mirror image — BFS over Deps instead of RDeps — used
// to compute what a set of targets needs built before it, rather than
// what rebuilding the set would affect downstream.
func DependsOn(seed map[string]bool, g *DependencyGraph) map[string]bool {
	closure := make(map[string]bool, len(seed))
	queue := make([]string, 0, len(seed))
	for name := range seed {
		if !closure[name] {
			closure[name] = true
			queue = append(queue, name)
		}
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for dep := range g.Deps[current] {
			if !closure[dep] {
				closure[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	return closure
}

// BuildPlan is the wave-partitioned schedule of a change set's affected
// work.
type BuildPlan struct {
	Affected map[string]bool
	Waves    [][]string
}

// PlanWaves computes the induced subgraph over affected, then applies
// Kahn's algorithm layer by layer: each round, every node with zero
// remaining in-degree (restricted to the affected set) forms the next
// wave, sorted lexicographically for determinism. Grounded on the
// teacher's devplan.ComputePlan, generalized to report an error instead
// of a best-effort partial plan when a round produces an empty wave while
// nodes remain — per spec this should be unreachable after a prior global
// cycle check, and is treated as a defensive invariant violation.
func PlanWaves(affected map[string]bool, g *DependencyGraph) (*BuildPlan, error) {
	inDegree := make(map[string]int, len(affected))
	for name := range affected {
		count := 0
		for dep := range g.Deps[name] {
			if affected[dep] {
				count++
			}
		}
		inDegree[name] = count
	}

	remaining := make(map[string]bool, len(affected))
	for name := range affected {
		remaining[name] = true
	}

	var waves [][]string
	for len(remaining) > 0 {
		var wave []string
		for name := range remaining {
			if inDegree[name] == 0 {
				wave = append(wave, name)
			}
		}
		if len(wave) == 0 {
			return nil, fmt.Errorf("cycle in affected subgraph")
		}
		sort.Strings(wave)
		waves = append(waves, wave)

		for _, name := range wave {
			delete(remaining, name)
		}
		for _, name := range wave {
			for dependent := range g.RDeps[name] {
				if remaining[dependent] {
					inDegree[dependent]--
				}
			}
		}
	}

	return &BuildPlan{Affected: affected, Waves: waves}, nil
}

func sortedNames(projects map[string]*manifest.Project) []string {
	names := make([]string, 0, len(projects))
	for name := range projects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Print renders a BuildPlan as a human-readable wave listing, grounded on
// the teacher's devplan.Plan.Print.
func (p *BuildPlan) Print(w io.Writer, g *DependencyGraph, colors Colors) {
	fmt.Fprintf(w, "%s%saffected: %d project(s)%s\n", colors.Bold, colors.Cyan, len(p.Affected), colors.Reset)
	for i, wave := range p.Waves {
		fmt.Fprintf(w, "\n%s%swave %d%s %s(%d project(s), can run in parallel)%s\n",
			colors.Bold, colors.Green, i+1, colors.Reset, colors.Dim, len(wave), colors.Reset)
		for _, name := range wave {
			var deps []string
			for dep := range g.Deps[name] {
				if p.Affected[dep] {
					deps = append(deps, dep)
				}
			}
			sort.Strings(deps)
			if len(deps) == 0 {
				fmt.Fprintf(w, "  %s•%s %s\n", colors.Green, colors.Reset, name)
			} else {
				fmt.Fprintf(w, "  %s•%s %s %s(after: %v)%s\n", colors.Yellow, colors.Reset, name, colors.Dim, deps, colors.Reset)
			}
		}
	}
}

// Colors controls whether Print emits ANSI escapes.
type Colors struct {
	Reset, Bold, Red, Green, Yellow, Cyan, Dim string
}

// DefaultColors returns ANSI color codes.
func DefaultColors() Colors {
	return Colors{
		Reset:  "\033[0m",
		Bold:   "\033[1m",
		Red:    "\033[31m",
		Green:  "\033[32m",
		Yellow: "\033[33m",
		Cyan:   "\033[36m",
		Dim:    "\033[2m",
	}
}

// PlainColors returns empty escape codes (no colors).
func PlainColors() Colors { return Colors{} }
