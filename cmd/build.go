package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/loom-build/loom/executor"
	"github.com/loom-build/loom/generator"
	"github.com/loom-build/loom/graph"
	"github.com/loom-build/loom/term"
	"github.com/spf13/cobra"
)

var (
	buildFlagChanged     []string
	buildFlagConcurrency int
	buildFlagDryRun      bool
	buildFlagScript      string
)

var buildCmd = &cobra.Command{
	Use:   "build [--changed ids...] [--concurrency N] [--dry-run]",
	Short: "Run generators then build the affected projects",
	Long: `Build the affected set: generators the change set triggers, then every
affected project wave by wave.

With no --changed ids, every project in the workspace is treated as
the seed (a full build).

Examples:
  loom build                      Build the whole workspace
  loom build --changed api        Build api and everything depending on it
  loom build --concurrency 4      Cap parallel builds within a wave
  loom build --dry-run            Print what would run without running it`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringSliceVar(&buildFlagChanged, "changed", nil, "Project ids to treat as changed (default: every project)")
	buildCmd.Flags().IntVar(&buildFlagConcurrency, "concurrency", 0, "Override the configured concurrency for this run")
	buildCmd.Flags().BoolVar(&buildFlagDryRun, "dry-run", false, "Print the build plan without running any commands")
	buildCmd.Flags().StringVar(&buildFlagScript, "script", "build", "Manifest script name to run for each project")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	seed, err := resolveIDs(buildFlagChanged)
	if err != nil {
		return err
	}
	if len(seed) == 0 {
		for name := range ws.Projects {
			seed[name] = true
		}
	}

	g := graph.Build(ws.Projects)
	if cycles := graph.DetectCycles(g); len(cycles) > 0 {
		return fmt.Errorf("dependency cycle(s) detected, refusing to plan: %v", cycles)
	}
	affected := graph.Affected(seed, g)

	specs, err := generator.Load(ws)
	if err != nil {
		return err
	}
	triggered := generator.Triggered(specs, affected, ws)
	for _, spec := range generator.Order(triggered) {
		sink.Log(fmt.Sprintf("generator %s: %s", spec.Key, spec.Command))
		if buildFlagDryRun {
			continue
		}
		if err := runGeneratorSpec(spec); err != nil {
			sink.Log(fmt.Sprintf("generator %s failed: %v", spec.Key, err))
			return err
		}
	}

	plan, err := graph.PlanWaves(affected, g)
	if err != nil {
		return err
	}

	concurrency := cfg.EffectiveConcurrency()
	if buildFlagConcurrency > 0 {
		concurrency = buildFlagConcurrency
	}

	reporter := newBuildReporter(sink)
	defer reporter.stopHeartbeat()

	result, err := executor.Run(context.Background(), plan, ws, executor.Options{
		Concurrency: concurrency,
		DryRun:      buildFlagDryRun,
		Reporter:    reporter,
		Script:      buildFlagScript,
	})
	if err != nil {
		return err
	}

	succeeded := 0
	for _, r := range result.Results {
		if r.OK {
			succeeded++
		}
		term.BuildResultLine(r.OK, padName(r.Project), (time.Duration(r.DurationMs) * time.Millisecond).String())
	}
	term.Summary(succeeded, len(result.Results), time.Duration(result.DurationMs)*time.Millisecond, result.OverallSuccess)

	if !result.OverallSuccess {
		os.Exit(1)
	}
	return nil
}

func runGeneratorSpec(spec *generator.Spec) error {
	c := exec.Command("sh", "-c", spec.Command)
	c.Dir = spec.Cwd
	return c.Run()
}

// buildReporter forwards executor lifecycle events to the UI sink and runs
// a 1-second heartbeat that re-announces the longest-running in-flight
// project, grounded on the teacher's runner.go ticker-driven showStatus.
type buildReporter struct {
	sink term.Sink

	mu       sync.Mutex
	started  map[string]time.Time
	lastLine map[string]string

	stopCh chan struct{}
	done   chan struct{}
}

func newBuildReporter(sink term.Sink) *buildReporter {
	r := &buildReporter{
		sink:     sink,
		started:  make(map[string]time.Time),
		lastLine: make(map[string]string),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go r.heartbeat()
	return r
}

func (r *buildReporter) heartbeat() {
	defer close(r.done)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			project, elapsed, line, ok := r.longestRunning()
			if !ok {
				continue
			}
			r.sink.SetStatus(fmt.Sprintf("[%s] %s: %s ...", elapsed.Round(time.Second), project, line))
		}
	}
}

func (r *buildReporter) longestRunning() (string, time.Duration, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var project string
	var oldest time.Time
	for name, started := range r.started {
		if oldest.IsZero() || started.Before(oldest) {
			oldest = started
			project = name
		}
	}
	if project == "" {
		return "", 0, "", false
	}
	return project, time.Since(oldest), r.lastLine[project], true
}

func (r *buildReporter) stopHeartbeat() {
	close(r.stopCh)
	<-r.done
	r.sink.SetStatus("")
}

func (r *buildReporter) OnStart(project string) {
	r.mu.Lock()
	r.started[project] = time.Now()
	r.mu.Unlock()
	r.sink.AddTask(project, project, 0, term.TaskRunning)
}

func (r *buildReporter) OnOutput(project, line string, isStderr bool) {
	r.mu.Lock()
	r.lastLine[project] = line
	r.mu.Unlock()
	r.sink.TaskLog(project, line)
}

func (r *buildReporter) OnComplete(project string, result executor.BuildResult) {
	r.mu.Lock()
	delete(r.started, project)
	delete(r.lastLine, project)
	r.mu.Unlock()

	status := term.TaskStopped
	if !result.OK {
		status = term.TaskError
	}
	r.sink.UpdateTask(project, status)
	r.sink.RemoveTask(project)
}

func padName(name string) string {
	const width = 24
	if len(name) >= width {
		return name
	}
	return name + strings.Repeat(" ", width-len(name))
}
