// Package watcher wraps fsnotify into a debounced source of ChangeBatch
// events attributed to workspace projects, grounded on the teacher's
// runWatchMode event loop and addDirRecursive walk.
package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/loom-build/loom/manifest"
)

// Kind classifies a single filesystem change.
type Kind int

const (
	Write Kind = iota
	Create
	Remove
)

// ChangeEvent is a single attributed filesystem change.
type ChangeEvent struct {
	Path      string
	Kind      Kind
	Timestamp int64
}

// ChangeBatch is everything the debounce window coalesced into one rebuild
// decision.
type ChangeBatch struct {
	Events          []ChangeEvent
	ChangedProjects map[string]bool
	RootEscalation  bool // true if a root-level/config file changed: rebuild everything
}

// defaultIgnoreDirs mirrors the teacher's addDirRecursive skip list,
// generalized past .NET-specific "obj"/".vs" to the JS/TS ecosystem's
// common build-output directories.
var defaultIgnoreDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
	"build":        true,
	".turbo":       true,
	".cache":       true,
}

// Options configures a Watcher.
type Options struct {
	DebounceMs        int
	StabilizationMs   int // quiescence window before a write is considered settled
	ExtraIgnoreGlobs  []string
	GeneratorOutputs  []string // paths produced by generators, excluded from triggering rebuilds
}

// Watcher wraps fsnotify.Watcher with debouncing and project attribution.
type Watcher struct {
	ws      *manifest.Workspace
	fsw     *fsnotify.Watcher
	opts    Options
	ignore  *ignore.GitIgnore
	batches chan ChangeBatch

	mu             sync.Mutex
	pending        map[string]ChangeEvent // path -> latest event
	debounceTimer  *time.Timer
}

// New creates a Watcher rooted at ws and recursively watches every project
// directory, skipping the ignore set.
func New(ws *manifest.Workspace, opts Options) (*Watcher, error) {
	if opts.DebounceMs <= 0 {
		opts.DebounceMs = 100
	}
	if opts.StabilizationMs <= 0 {
		opts.StabilizationMs = 100
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	lines := append([]string{}, opts.ExtraIgnoreGlobs...)
	for _, out := range opts.GeneratorOutputs {
		lines = append(lines, out)
	}
	gi := ignore.CompileIgnoreLines(lines...)

	w := &Watcher{
		ws:      ws,
		fsw:     fsw,
		opts:    opts,
		ignore:  gi,
		batches: make(chan ChangeBatch, 16),
		pending: make(map[string]ChangeEvent),
	}

	watched := make(map[string]bool)
	for _, name := range ws.SortedNames() {
		p := ws.Projects[name]
		if err := addDirRecursive(fsw, p.AbsolutePath, watched); err != nil {
			// A single unwatchable project directory should not prevent
			// watching the rest of the workspace.
			continue
		}
	}
	if err := fsw.Add(ws.Root); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

// Batches returns the channel on which coalesced ChangeBatch values arrive.
func (w *Watcher) Batches() <-chan ChangeBatch { return w.batches }

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error { return w.fsw.Close() }

func addDirRecursive(fsw *fsnotify.Watcher, dir string, watched map[string]bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if defaultIgnoreDirs[d.Name()] {
			return filepath.SkipDir
		}
		if watched[path] {
			return nil
		}
		if err := fsw.Add(path); err != nil {
			return err
		}
		watched[path] = true
		return nil
	})
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// A transient fsnotify error is not fatal to the watch session;
			// the caller observes gaps only if events stop arriving entirely.
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
		return
	}

	relPath, err := filepath.Rel(w.ws.Root, event.Name)
	if err != nil {
		return
	}
	if w.ignore != nil && w.ignore.MatchesPath(relPath) {
		return
	}

	kind := Write
	switch {
	case event.Op&fsnotify.Create != 0:
		kind = Create
	case event.Op&fsnotify.Remove != 0:
		kind = Remove
	}

	w.mu.Lock()
	w.pending[event.Name] = ChangeEvent{Path: event.Name, Kind: kind, Timestamp: time.Now().UnixMilli()}
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(
		time.Duration(w.opts.StabilizationMs+w.opts.DebounceMs)*time.Millisecond,
		w.flush,
	)
	w.mu.Unlock()
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	events := make([]ChangeEvent, 0, len(w.pending))
	for _, e := range w.pending {
		events = append(events, e)
	}
	w.pending = make(map[string]ChangeEvent)
	w.mu.Unlock()

	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	batch := ChangeBatch{Events: events, ChangedProjects: map[string]bool{}}
	for _, e := range events {
		if w.isRootEscalation(e.Path) {
			batch.RootEscalation = true
			continue
		}
		if name, ok := w.attribute(e.Path); ok {
			batch.ChangedProjects[name] = true
		}
	}

	select {
	case w.batches <- batch:
	default:
		// flush runs on the debounce timer's goroutine; when the consumer
		// is slow and the channel is full, this batch is dropped rather than
		// leaving that goroutine blocked. The next flush carries only the
		// changes made after this one.
	}
}

// isRootEscalation reports whether path should trigger a full rebuild: the
// workspace manifest itself, or any other top-level non-directory file
// (a lockfile, tsconfig, README, whatever) — every project implicitly
// depends on the workspace root, so a direct child file of it escalates
// regardless of name. A top-level directory (a project root) does not.
func (w *Watcher) isRootEscalation(path string) bool {
	dir := filepath.Dir(path)
	if filepath.Clean(dir) != filepath.Clean(w.ws.Root) {
		return false
	}
	if info, err := os.Stat(path); err == nil {
		return !info.IsDir()
	}
	// Stat fails on a removed path, so a removed top-level entry is treated
	// as a file and escalates, whether it was a file or a directory.
	return true
}

// attribute assigns a changed path to the project with the longest
// matching absolute-path prefix.
func (w *Watcher) attribute(path string) (string, bool) {
	var bestName string
	bestLen := -1
	for name, p := range w.ws.Projects {
		dir := filepath.Clean(p.AbsolutePath)
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			if len(dir) > bestLen {
				bestLen = len(dir)
				bestName = name
			}
		}
	}
	if bestLen < 0 {
		return "", false
	}
	return bestName, true
}
