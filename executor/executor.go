// Package executor runs a graph.BuildPlan wave by wave: every project in a
// wave builds concurrently, bounded by a configurable worker count, and a
// failure is recorded but does not cancel the sibling builds already
// in-flight in the same wave. Only subsequent waves are skipped.
package executor

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loom-build/loom/graph"
	"github.com/loom-build/loom/manifest"
)

// BuildResult is the outcome of running a single project's build command.
type BuildResult struct {
	Project    string
	OK         bool
	DurationMs int64
	Stdout     string
	Stderr     string
	Err        error
}

// RunResult aggregates every BuildResult produced by a Run call.
type RunResult struct {
	Results        []BuildResult
	OverallSuccess bool
	DurationMs     int64
}

// Reporter receives build lifecycle events. Implementations must be safe
// for concurrent use, since OnStart/OnOutput/OnComplete are called from
// every in-flight worker goroutine.
type Reporter interface {
	OnStart(project string)
	OnOutput(project string, line string, isStderr bool)
	OnComplete(project string, result BuildResult)
}

// NopReporter discards every event.
type NopReporter struct{}

func (NopReporter) OnStart(string)                {}
func (NopReporter) OnOutput(string, string, bool)  {}
func (NopReporter) OnComplete(string, BuildResult) {}

// BuildCommand renders the (program, args) pair to run for a project. The
// default, renderBuild, is a PackageManager-aware strategy table that runs
// Options.Script; callers may override it entirely (e.g. tests).
type BuildCommand func(p *manifest.Project) (string, []string)

// Options configures a Run call.
type Options struct {
	Concurrency  int
	DryRun       bool
	BuildCommand BuildCommand
	Reporter     Reporter
	Script       string // the manifest script name to run, e.g. "build"
}

// Run executes plan wave by wave. Within a wave, up to opts.Concurrency
// projects build at once via a semaphore-bounded errgroup.Group. A failing
// project does not cancel its wave-mates — errgroup's context is deliberately
// left uncancelled on error, since spec requires the current wave to finish
// before subsequent waves are skipped.
func Run(ctx context.Context, plan *graph.BuildPlan, ws *manifest.Workspace, opts Options) (*RunResult, error) {
	reporter := opts.Reporter
	if reporter == nil {
		reporter = NopReporter{}
	}
	buildCommand := opts.BuildCommand
	if buildCommand == nil {
		buildCommand = renderBuild(opts.Script)
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	start := time.Now()
	var (
		mu             sync.Mutex
		results        []BuildResult
		overallSuccess = true
	)

	for _, wave := range plan.Waves {
		sem := make(chan struct{}, concurrency)
		eg, groupCtx := errgroup.WithContext(context.Background())
		_ = groupCtx // intentionally not passed to exec.CommandContext: a sibling's
		// failure must not cancel this wave's still-running builds.

		for _, name := range wave {
			name := name
			sem <- struct{}{}
			eg.Go(func() error {
				defer func() { <-sem }()
				p := ws.Projects[name]
				result := runOne(ctx, p, buildCommand, opts.DryRun, reporter)
				mu.Lock()
				results = append(results, result)
				if !result.OK {
					overallSuccess = false
				}
				mu.Unlock()
				return nil // never propagate: we want every wave member to run
			})
		}
		// eg.Wait never returns an error here since runOne's goroutine always
		// returns nil; the real failure is carried in result.OK.
		_ = eg.Wait()

		if !overallSuccess {
			break // current wave finished; remaining waves are skipped
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Project < results[j].Project })

	return &RunResult{
		Results:        results,
		OverallSuccess: overallSuccess,
		DurationMs:     time.Since(start).Milliseconds(),
	}, nil
}

func runOne(ctx context.Context, p *manifest.Project, buildCommand BuildCommand, dryRun bool, reporter Reporter) BuildResult {
	reporter.OnStart(p.Name)
	start := time.Now()

	if dryRun {
		result := BuildResult{Project: p.Name, OK: true, DurationMs: time.Since(start).Milliseconds()}
		reporter.OnComplete(p.Name, result)
		return result
	}

	program, args := buildCommand(p)
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Dir = p.AbsolutePath

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = io.MultiWriter(stdoutW, &nopCloseWriter{&stdoutBuf})
	cmd.Stderr = io.MultiWriter(stderrW, &nopCloseWriter{&stderrBuf})

	var wg sync.WaitGroup
	wg.Add(2)
	go tee(stdoutR, p.Name, false, reporter, &wg)
	go tee(stderrR, p.Name, true, reporter, &wg)

	runErr := cmd.Run()
	stdoutW.Close()
	stderrW.Close()
	wg.Wait()

	result := BuildResult{
		Project:    p.Name,
		OK:         runErr == nil,
		DurationMs: time.Since(start).Milliseconds(),
		Stdout:     stdoutBuf.String(),
		Stderr:     stderrBuf.String(),
		Err:        runErr,
	}
	reporter.OnComplete(p.Name, result)
	return result
}

type nopCloseWriter struct{ w io.Writer }

func (n *nopCloseWriter) Write(p []byte) (int, error) { return n.w.Write(p) }

func tee(r io.Reader, project string, isStderr bool, reporter Reporter, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		reporter.OnOutput(project, scanner.Text(), isStderr)
	}
}

// Command exposes the package-manager-aware (program, args) pair Run would
// use for script on p, for callers that need to launch a script outside
// the wave executor (the supervisor starting a "dev" task, for instance).
func Command(p *manifest.Project, script string) (string, []string) {
	return renderBuild(script)(p)
}

// renderBuild returns a BuildCommand that picks npm/yarn/pnpm/bun by
// lockfile presence (or the manifest's explicit packageManager field) and
// runs the named script as a structured argv, never a shell string.
func renderBuild(script string) BuildCommand {
	if script == "" {
		script = "build"
	}
	return func(p *manifest.Project) (string, []string) {
		mgr := detectPackageManager(p)
		switch mgr {
		case "yarn":
			return "yarn", []string{"run", script}
		case "pnpm":
			return "pnpm", []string{"run", script}
		case "bun":
			return "bun", []string{"run", script}
		default:
			return "npm", []string{"run", script}
		}
	}
}

func detectPackageManager(p *manifest.Project) string {
	if p.Manifest.PackageManager != "" {
		name := p.Manifest.PackageManager
		for i, c := range name {
			if c == '@' {
				return name[:i]
			}
		}
		return name
	}
	for lockfile, mgr := range map[string]string{
		"yarn.lock":         "yarn",
		"pnpm-lock.yaml":    "pnpm",
		"bun.lockb":         "bun",
		"package-lock.json": "npm",
	} {
		if _, err := os.Stat(filepath.Join(p.AbsolutePath, lockfile)); err == nil {
			return mgr
		}
	}
	return "npm"
}
