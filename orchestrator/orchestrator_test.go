package orchestrator

import (
	"context"
	"os/exec"
	"sync"
	"testing"

	"github.com/loom-build/loom/executor"
	"github.com/loom-build/loom/generator"
	"github.com/loom-build/loom/graph"
	"github.com/loom-build/loom/manifest"
	"github.com/loom-build/loom/supervisor"
	"github.com/loom-build/loom/watcher"
)

type countingReporter struct {
	mu     sync.Mutex
	builds []map[string]bool
}

func (r *countingReporter) OnStart(string)                          {}
func (r *countingReporter) OnOutput(string, string, bool)            {}
func (r *countingReporter) OnComplete(string, executor.BuildResult)  {}
func (r *countingReporter) OnBuildStart(affected map[string]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builds = append(r.builds, affected)
}
func (r *countingReporter) OnBuildDone(*executor.RunResult)        {}
func (r *countingReporter) OnGeneratorStart(*generator.Spec)       {}
func (r *countingReporter) OnGeneratorDone(*generator.Spec, error) {}

func testGraph() (*graph.DependencyGraph, *manifest.Workspace) {
	ws := &manifest.Workspace{Projects: map[string]*manifest.Project{
		"a": {Name: "a", Manifest: &manifest.Manifest{Dependencies: map[string]string{"b": "*"}}},
		"b": {Name: "b", Manifest: &manifest.Manifest{}},
	}}
	return graph.Build(ws.Projects), ws
}

func TestHandleBatchRunsBuild(t *testing.T) {
	g, ws := testGraph()
	reporter := &countingReporter{}
	o := New(Options{
		Graph:     g,
		Workspace: ws,
		Executor:  executor.Options{Concurrency: 1, DryRun: true},
		Reporter:  reporter,
	})

	o.handleBatch(context.Background(), watcher.ChangeBatch{ChangedProjects: map[string]bool{"b": true}})

	if len(reporter.builds) != 1 {
		t.Fatalf("expected 1 build, got %d", len(reporter.builds))
	}
	if !reporter.builds[0]["a"] || !reporter.builds[0]["b"] {
		t.Errorf("expected affected set to include a and b, got %v", reporter.builds[0])
	}
}

func TestHandleBatchCoalescesWhileBuilding(t *testing.T) {
	g, ws := testGraph()
	reporter := &countingReporter{}
	o := New(Options{
		Graph:     g,
		Workspace: ws,
		Executor:  executor.Options{Concurrency: 1, DryRun: true},
		Reporter:  reporter,
	})
	o.isBuilding = true

	o.handleBatch(context.Background(), watcher.ChangeBatch{ChangedProjects: map[string]bool{"b": true}})

	if len(reporter.builds) != 0 {
		t.Fatalf("expected no build to run while isBuilding is true, got %d", len(reporter.builds))
	}
	if !o.pendingChanges["b"] {
		t.Errorf("expected b to be queued in pendingChanges, got %v", o.pendingChanges)
	}
}

func TestHandleBatchRootEscalation(t *testing.T) {
	g, ws := testGraph()
	reporter := &countingReporter{}
	o := New(Options{
		Graph:     g,
		Workspace: ws,
		Executor:  executor.Options{Concurrency: 1, DryRun: true},
		Reporter:  reporter,
	})

	o.handleBatch(context.Background(), watcher.ChangeBatch{RootEscalation: true})

	if len(reporter.builds) != 1 {
		t.Fatalf("expected 1 build, got %d", len(reporter.builds))
	}
	if len(reporter.builds[0]) != 2 {
		t.Errorf("expected every project to be affected by root escalation, got %v", reporter.builds[0])
	}
}

func TestHandleBatchReentersWithPendingChanges(t *testing.T) {
	g, ws := testGraph()
	reporter := &countingReporter{}
	o := New(Options{
		Graph:     g,
		Workspace: ws,
		Executor:  executor.Options{Concurrency: 1, DryRun: true},
		Reporter:  reporter,
	})
	o.pendingChanges["a"] = true
	// Simulate a batch that completes while pendingChanges is already queued;
	// the build it triggers should re-enter once with the queued project.
	o.handleBatch(context.Background(), watcher.ChangeBatch{ChangedProjects: map[string]bool{"b": true}})

	if len(reporter.builds) != 2 {
		t.Fatalf("expected the initial build plus a re-entrant build for pendingChanges, got %d", len(reporter.builds))
	}
	if len(o.pendingChanges) != 0 {
		t.Errorf("expected pendingChanges to be drained, got %v", o.pendingChanges)
	}
}

// TestPrepareWatchTargetsBuildsForwardDependencies guards against computing
// the watch closure with the wrong edge direction: a's target build must
// pull in b (what a depends on), not whatever depends on a.
func TestPrepareWatchTargetsBuildsForwardDependencies(t *testing.T) {
	g, ws := testGraph() // a depends on b
	reporter := &countingReporter{}
	o := New(Options{
		Graph:     g,
		Workspace: ws,
		Executor:  executor.Options{Concurrency: 1, DryRun: true},
		Reporter:  reporter,
	})

	sup := supervisor.New(nil)
	toCmd := func(name string) *exec.Cmd { return exec.Command("true") }

	if err := o.PrepareWatchTargets(context.Background(), []string{"a"}, sup, toCmd); err != nil {
		t.Fatalf("PrepareWatchTargets() error = %v", err)
	}

	// With the bug this guards (computing the watch closure over reverse
	// edges instead of forward ones), buildOnly comes back empty for a
	// leaf target like a — nothing depends on it — so no pre-watch build
	// ever runs and b is never built before a's dev server starts.
	if len(reporter.builds) != 1 {
		t.Fatalf("expected 1 pre-watch build, got %d", len(reporter.builds))
	}
	if !reporter.builds[0]["b"] {
		t.Errorf("expected the pre-watch build to include b (what a depends on), got %v", reporter.builds[0])
	}

	started := sup.Tasks()
	if len(started) != 1 || started[0].Name != "a" {
		t.Errorf("expected supervisor to start only target a, got %v", started)
	}
}
