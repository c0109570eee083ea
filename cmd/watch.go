package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/loom-build/loom/executor"
	"github.com/loom-build/loom/generator"
	"github.com/loom-build/loom/graph"
	"github.com/loom-build/loom/orchestrator"
	"github.com/loom-build/loom/supervisor"
	"github.com/loom-build/loom/term"
	"github.com/loom-build/loom/watcher"
	"github.com/spf13/cobra"
)

var (
	watchFlagFilter    string
	watchFlagDebounce  int
	watchFlagScript    string
	watchFlagDevScript string
)

// shutdownSignals are the signals that trigger a cooperative teardown of
// every supervised task.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

var watchCmd = &cobra.Command{
	Use:   "watch [targets...]",
	Short: "Run dev tasks and rebuild their dependencies as files change",
	Long: `Start each named target's "dev" script under supervision, after
building its dependency closure once. Subsequent file changes rebuild
every project they affect (restricted by --filter, if given), targets
included; the targets' dev processes keep running as long-lived processes
and are not restarted.

With no targets, every project declaring a "dev" script is started.

Examples:
  loom watch api web        Supervise api and web's dev servers
  loom watch --filter 'libs/*'   Only rebuild projects matching the glob`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchFlagFilter, "filter", "", "Glob restricting which projects rebuild on change (* wildcard)")
	watchCmd.Flags().IntVar(&watchFlagDebounce, "debounce", 0, "Debounce window in milliseconds (default from config)")
	watchCmd.Flags().StringVar(&watchFlagScript, "script", "build", "Manifest script name to run for rebuilds")
	watchCmd.Flags().StringVar(&watchFlagDevScript, "dev-script", "dev", "Manifest script name to run for supervised targets")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	targets := args
	if len(targets) == 0 {
		for name, p := range ws.Projects {
			if _, ok := p.Manifest.Scripts[watchFlagDevScript]; ok {
				targets = append(targets, name)
			}
		}
	} else {
		resolved, err := resolveProjectIDs(targets)
		if err != nil {
			return err
		}
		targets = resolved
	}
	if len(targets) == 0 {
		term.Warn("no project declares a %q script, nothing to watch", watchFlagDevScript)
		return nil
	}

	debounce := cfg.Watch.DebounceMs
	if watchFlagDebounce > 0 {
		debounce = watchFlagDebounce
	}

	filter, err := buildFilterSet(watchFlagFilter)
	if err != nil {
		return err
	}

	g := graph.Build(ws.Projects)
	if cycles := graph.DetectCycles(g); len(cycles) > 0 {
		return fmt.Errorf("dependency cycle(s) detected, refusing to plan: %v", cycles)
	}
	specs, err := generator.Load(ws)
	if err != nil {
		return err
	}

	reporter := newWatchReporter(sink)

	orc := orchestrator.New(orchestrator.Options{
		Graph:      g,
		Workspace:  ws,
		Generators: specs,
		Executor: executor.Options{
			Concurrency: cfg.EffectiveConcurrency(),
			Script:      watchFlagScript,
		},
		Filter:   filter,
		Reporter: reporter,
	})

	sup := supervisor.New(sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	toCmd := func(name string) *exec.Cmd {
		p := ws.Projects[name]
		program, cmdArgs := executor.Command(p, watchFlagDevScript)
		c := exec.CommandContext(ctx, program, cmdArgs...)
		c.Dir = p.AbsolutePath
		return c
	}

	sink.Log(fmt.Sprintf("watch: preparing %d target(s)", len(targets)))
	if err := orc.PrepareWatchTargets(ctx, targets, sup, toCmd); err != nil {
		return fmt.Errorf("preparing watch targets: %w", err)
	}

	outputs := make([]string, 0, len(specs))
	for _, spec := range specs {
		outputs = append(outputs, spec.Key)
	}
	w, err := watcher.New(ws, watcher.Options{
		DebounceMs:       debounce,
		GeneratorOutputs: outputs,
	})
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer w.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, shutdownSignals...)
	defer signal.Stop(sigChan)

	go orc.Run(ctx, w.Batches())

	sink.Log("watching for changes, press ctrl-c to stop")
	<-sigChan

	sink.Log("shutting down supervised tasks...")
	cancel()
	// Always SIGKILL the process group, regardless of which signal
	// triggered this teardown: a dev server's own SIGTERM handling can
	// hang the shutdown, so the group is killed outright.
	sup.Shutdown(syscall.SIGKILL)
	sink.Destroy()
	return nil
}

// buildFilterSet resolves a --filter glob against every project's
// workspace-relative path; empty pattern means no restriction (filter ==
// nil, which orchestrator.Options treats as "build everything affected").
func buildFilterSet(pattern string) (map[string]bool, error) {
	if pattern == "" {
		return nil, nil
	}
	out := make(map[string]bool)
	for name, p := range ws.Projects {
		matched, err := filepath.Match(pattern, p.Path)
		if err != nil {
			return nil, fmt.Errorf("invalid --filter pattern %q: %w", pattern, err)
		}
		if matched {
			out[name] = true
		}
	}
	return out, nil
}

// watchReporter adapts the orchestrator/executor/supervisor lifecycle
// callbacks onto the UI sink, the watch-mode analogue of buildReporter.
type watchReporter struct {
	sink term.Sink
}

func newWatchReporter(sink term.Sink) *watchReporter {
	return &watchReporter{sink: sink}
}

func (r *watchReporter) OnStart(project string) {
	r.sink.AddTask(project, project, 0, term.TaskRunning)
}

func (r *watchReporter) OnOutput(project, line string, isStderr bool) {
	r.sink.TaskLog(project, line)
}

func (r *watchReporter) OnComplete(project string, result executor.BuildResult) {
	status := term.TaskStopped
	if !result.OK {
		status = term.TaskError
	}
	r.sink.UpdateTask(project, status)
}

func (r *watchReporter) OnBuildStart(affected map[string]bool) {
	r.sink.Log(fmt.Sprintf("rebuilding %d affected project(s)", len(affected)))
}

func (r *watchReporter) OnBuildDone(result *executor.RunResult) {
	succeeded := 0
	for _, res := range result.Results {
		if res.OK {
			succeeded++
		}
	}
	r.sink.Log(fmt.Sprintf("rebuild done: %d/%d succeeded (%s)",
		succeeded, len(result.Results), (time.Duration(result.DurationMs) * time.Millisecond).String()))
}

func (r *watchReporter) OnGeneratorStart(spec *generator.Spec) {
	r.sink.Log(fmt.Sprintf("generator %s: %s", spec.Key, spec.Command))
}

func (r *watchReporter) OnGeneratorDone(spec *generator.Spec, err error) {
	if err != nil {
		r.sink.Log(fmt.Sprintf("generator %s failed: %v", spec.Key, err))
	}
}
