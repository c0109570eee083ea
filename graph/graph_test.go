package graph

import (
	"reflect"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/loom-build/loom/manifest"
)

func project(name string, deps ...string) *manifest.Project {
	m := &manifest.Manifest{Name: name, Dependencies: map[string]string{}}
	for _, d := range deps {
		m.Dependencies[d] = "*"
	}
	return &manifest.Project{Name: name, Path: name, Manifest: m}
}

func makeGraph(projects ...*manifest.Project) *DependencyGraph {
	m := make(map[string]*manifest.Project, len(projects))
	for _, p := range projects {
		m[p.Name] = p
	}
	return Build(m)
}

func TestReverseEdgeInvariant(t *testing.T) {
	g := makeGraph(project("a", "b"), project("b", "c"), project("c"))
	for a, deps := range g.Deps {
		for b := range deps {
			if !g.RDeps[b][a] {
				t.Errorf("B %q in deps[%q] but A not in rdeps[%q]", b, a, b)
			}
		}
	}
}

func TestDiamondScenario(t *testing.T) {
	// A->B, A->C, B->D, C->D; changed={D}
	g := makeGraph(
		project("A", "B", "C"),
		project("B", "D"),
		project("C", "D"),
		project("D"),
	)

	affected := Affected(map[string]bool{"D": true}, g)
	want := map[string]bool{"A": true, "B": true, "C": true, "D": true}
	if !reflect.DeepEqual(affected, want) {
		t.Fatalf("Affected() = %v, want %v", affected, want)
	}

	plan, err := PlanWaves(affected, g)
	if err != nil {
		t.Fatalf("PlanWaves() failed: %v", err)
	}
	want_waves := [][]string{{"D"}, {"B", "C"}, {"A"}}
	if diff := cmp.Diff(want_waves, plan.Waves); diff != "" {
		t.Errorf("waves mismatch (-want +got):\n%s", diff)
	}
}

func TestCycleScenario(t *testing.T) {
	g := makeGraph(project("A", "B"), project("B", "C"), project("C", "A"))
	cycles := DetectCycles(g)
	if len(cycles) == 0 {
		t.Fatal("expected at least one cycle")
	}
	// Every cycle found must be a rotation containing A, B, C.
	for _, c := range cycles {
		got := append([]string{}, c...)
		sort.Strings(got)
		want := []string{"A", "A", "B", "C"} // first+last duplicate closes the loop
		sort.Strings(want)
		// allow either 3 or 4 element representation depending on rotation start
		if len(got) != 4 {
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("cycle %v does not contain exactly {A,B,C}", c)
		}
	}
}

func TestUnrelatedScenario(t *testing.T) {
	g := makeGraph(project("A"), project("B"), project("C", "A"))
	affected := Affected(map[string]bool{"B": true}, g)
	want := map[string]bool{"B": true}
	if !reflect.DeepEqual(affected, want) {
		t.Fatalf("Affected() = %v, want %v", affected, want)
	}
	plan, err := PlanWaves(affected, g)
	if err != nil {
		t.Fatalf("PlanWaves() failed: %v", err)
	}
	if diff := cmp.Diff([][]string{{"B"}}, plan.Waves); diff != "" {
		t.Errorf("waves mismatch (-want +got):\n%s", diff)
	}
}

func TestWaveIntraWaveIndependence(t *testing.T) {
	g := makeGraph(
		project("A", "B", "C"),
		project("B", "D"),
		project("C", "D"),
		project("D"),
	)
	affected := Affected(map[string]bool{"D": true}, g)
	plan, err := PlanWaves(affected, g)
	if err != nil {
		t.Fatalf("PlanWaves() failed: %v", err)
	}
	for _, wave := range plan.Waves {
		for _, x := range wave {
			for _, y := range wave {
				if x == y {
					continue
				}
				if g.Deps[x][y] || g.Deps[y][x] {
					t.Errorf("wave %v has an edge between %q and %q", wave, x, y)
				}
			}
		}
	}
}

func TestPlanWavesDeterministic(t *testing.T) {
	g := makeGraph(
		project("A", "B", "C"),
		project("B", "D"),
		project("C", "D"),
		project("D"),
	)
	affected := Affected(map[string]bool{"D": true}, g)
	plan1, err := PlanWaves(affected, g)
	if err != nil {
		t.Fatal(err)
	}
	plan2, err := PlanWaves(affected, g)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(plan1.Waves, plan2.Waves); diff != "" {
		t.Errorf("planning the same input twice diverged (-first +second):\n%s", diff)
	}
}

func TestPlanWavesRejectsResidualCycle(t *testing.T) {
	g := makeGraph(project("A", "B"), project("B", "A"))
	_, err := PlanWaves(map[string]bool{"A": true, "B": true}, g)
	if err == nil {
		t.Fatal("expected an error for a cyclic affected subgraph")
	}
}
