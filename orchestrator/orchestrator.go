// Package orchestrator drives the watch loop: a single-goroutine actor
// that serializes rebuilds, grounded on the teacher's watch.go runWatchMode/runPending closures,
// generalized from "always re-test" to affected-set/wave/generator
// pipeline this spec describes.
package orchestrator

import (
	"context"
	"os/exec"

	"github.com/loom-build/loom/executor"
	"github.com/loom-build/loom/generator"
	"github.com/loom-build/loom/graph"
	"github.com/loom-build/loom/manifest"
	"github.com/loom-build/loom/supervisor"
	"github.com/loom-build/loom/watcher"
)

// Reporter surfaces orchestrator lifecycle events to the UI sink.
type Reporter interface {
	executor.Reporter
	OnBuildStart(affected map[string]bool)
	OnBuildDone(result *executor.RunResult)
	OnGeneratorStart(spec *generator.Spec)
	OnGeneratorDone(spec *generator.Spec, err error)
}

// Options configures an Orchestrator.
type Options struct {
	Graph        *graph.DependencyGraph
	Workspace    *manifest.Workspace
	Generators   []*generator.Spec
	Executor     executor.Options
	Filter       map[string]bool // restrict builds to this set, if non-nil
	Reporter     Reporter
	GeneratorCmd func(spec *generator.Spec) (string, []string)
}

// Orchestrator is the actor: isBuilding + pendingChanges, fed by a
// watcher's ChangeBatch channel.
type Orchestrator struct {
	opts           Options
	isBuilding     bool
	pendingChanges map[string]bool
}

// New creates an idle Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.GeneratorCmd == nil {
		opts.GeneratorCmd = defaultGeneratorCmd
	}
	return &Orchestrator{opts: opts, pendingChanges: map[string]bool{}}
}

// Run consumes batches from batches until ctx is cancelled, one at a time
// on the calling goroutine, so rebuilds never overlap. A batch that arrives
// while a build runs waits in the channel and is handled after that build
// finishes, as a rebuild of its own; batches queued behind one another are
// not merged into one build. handleBatch merges a batch into pendingChanges
// only when it is called while isBuilding is already set.
func (o *Orchestrator) Run(ctx context.Context, batches <-chan watcher.ChangeBatch) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-batches:
			if !ok {
				return
			}
			o.handleBatch(ctx, batch)
		}
	}
}

func (o *Orchestrator) handleBatch(ctx context.Context, batch watcher.ChangeBatch) {
	changed := batch.ChangedProjects
	if batch.RootEscalation {
		changed = map[string]bool{}
		for name := range o.opts.Workspace.Projects {
			changed[name] = true
		}
	}

	if o.isBuilding {
		for name := range changed {
			o.pendingChanges[name] = true
		}
		return
	}

	o.isBuilding = true
	o.rebuild(ctx, graph.Affected(changed, o.opts.Graph))
	o.isBuilding = false

	if len(o.pendingChanges) > 0 {
		next := o.pendingChanges
		o.pendingChanges = map[string]bool{}
		o.isBuilding = true
		o.rebuild(ctx, graph.Affected(next, o.opts.Graph))
		o.isBuilding = false
	}
}

// rebuild restricts affected to the filter, runs triggered generators,
// plans waves, and executes the build. A generator failure aborts the
// rebuild without running the executor.
func (o *Orchestrator) rebuild(ctx context.Context, affected map[string]bool) {
	if o.opts.Filter != nil {
		for name := range affected {
			if !o.opts.Filter[name] {
				delete(affected, name)
			}
		}
	}
	if len(affected) == 0 {
		return
	}

	if o.opts.Reporter != nil {
		o.opts.Reporter.OnBuildStart(affected)
	}

	triggered := generator.Triggered(o.opts.Generators, affected, o.opts.Workspace)
	for _, spec := range generator.Order(triggered) {
		if o.opts.Reporter != nil {
			o.opts.Reporter.OnGeneratorStart(spec)
		}
		err := runGenerator(ctx, spec, o.opts.GeneratorCmd)
		if o.opts.Reporter != nil {
			o.opts.Reporter.OnGeneratorDone(spec, err)
		}
		if err != nil {
			return // abort: a failed generator leaves affected projects unbuilt
		}
	}

	plan, err := graph.PlanWaves(affected, o.opts.Graph)
	if err != nil {
		return
	}

	execOpts := o.opts.Executor
	execOpts.Reporter = o.opts.Reporter
	result, err := executor.Run(ctx, plan, o.opts.Workspace, execOpts)
	if err != nil {
		return
	}
	if o.opts.Reporter != nil {
		o.opts.Reporter.OnBuildDone(result)
	}
}

func runGenerator(ctx context.Context, spec *generator.Spec, toCmd func(*generator.Spec) (string, []string)) error {
	program, args := toCmd(spec)
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Dir = spec.Cwd
	return cmd.Run()
}

func defaultGeneratorCmd(spec *generator.Spec) (string, []string) {
	return "sh", []string{"-c", spec.Command}
}

// PrepareWatchTargets computes the transitive dependency closure of
// targets (excluding the targets themselves), builds that closure, runs
// every generator it triggers, and hands each target to sup.Start via
// toCmd. Grounded on watch.go's pre-watch "run initial build/test" step,
// generalized to the dev-task closure-then-supervise flow spec.md §5
// describes.
func (o *Orchestrator) PrepareWatchTargets(ctx context.Context, targets []string, sup *supervisor.Supervisor, toCmd func(name string) *exec.Cmd) error {
	targetSet := make(map[string]bool, len(targets))
	for _, t := range targets {
		targetSet[t] = true
	}

	closure := graph.DependsOn(targetSet, o.opts.Graph)
	buildOnly := map[string]bool{}
	for name := range closure {
		if !targetSet[name] {
			buildOnly[name] = true
		}
	}

	if len(buildOnly) > 0 {
		o.rebuild(ctx, buildOnly)
	}

	triggered := generator.Triggered(o.opts.Generators, closure, o.opts.Workspace)
	for _, spec := range generator.Order(triggered) {
		if err := runGenerator(ctx, spec, o.opts.GeneratorCmd); err != nil {
			return err
		}
	}

	for _, name := range targets {
		if _, err := sup.Start(name, toCmd(name)); err != nil {
			return err
		}
	}
	return nil
}
