package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loom-build/loom/manifest"
)

func newTestWorkspace(t *testing.T) *manifest.Workspace {
	t.Helper()
	root := t.TempDir()
	apiDir := filepath.Join(root, "packages", "api")
	webDir := filepath.Join(root, "packages", "web")
	if err := os.MkdirAll(apiDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(webDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return &manifest.Workspace{
		Root:     root,
		Manifest: &manifest.Manifest{Name: "root"},
		Projects: map[string]*manifest.Project{
			"api": {Name: "api", Path: "packages/api", AbsolutePath: apiDir, Manifest: &manifest.Manifest{}},
			"web": {Name: "web", Path: "packages/web", AbsolutePath: webDir, Manifest: &manifest.Manifest{}},
		},
	}
}

func TestAttributeLongestPrefix(t *testing.T) {
	ws := newTestWorkspace(t)
	w := &Watcher{ws: ws}

	name, ok := w.attribute(filepath.Join(ws.Projects["api"].AbsolutePath, "src", "index.ts"))
	if !ok || name != "api" {
		t.Fatalf("attribute() = (%q, %v), want (api, true)", name, ok)
	}

	_, ok = w.attribute(filepath.Join(ws.Root, "README.md"))
	if ok {
		t.Fatalf("expected no attribution for a root-level file outside any project")
	}
}

func TestIsRootEscalation(t *testing.T) {
	ws := newTestWorkspace(t)
	w := &Watcher{ws: ws}

	cases := []struct {
		path string
		want bool
	}{
		{filepath.Join(ws.Root, manifest.FileName), true},
		{filepath.Join(ws.Root, "package-lock.json"), true},
		{filepath.Join(ws.Root, "yarn.lock"), true},
		{filepath.Join(ws.Root, "tsconfig.base.json"), true},
		// Any other top-level non-directory file escalates too, not just
		// the enumerated lockfile/tsconfig names.
		{filepath.Join(ws.Root, "README.md"), true},
		{filepath.Join(ws.Root, ".eslintrc"), true},
		// A top-level directory (a project root) is not a file, so it
		// does not escalate.
		{filepath.Join(ws.Root, "packages"), false},
		{filepath.Join(ws.Projects["api"].AbsolutePath, manifest.FileName), false},
	}
	for _, c := range cases {
		if got := w.isRootEscalation(c.path); got != c.want {
			t.Errorf("isRootEscalation(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestNewAndDebouncedBatch(t *testing.T) {
	ws := newTestWorkspace(t)
	w, err := New(ws, Options{DebounceMs: 10, StabilizationMs: 10})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer w.Close()

	file := filepath.Join(ws.Projects["api"].AbsolutePath, "index.ts")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	// A second write shortly after should coalesce into the same batch.
	time.Sleep(5 * time.Millisecond)
	if err := os.WriteFile(file, []byte("xy"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case batch := <-w.Batches():
		if !batch.ChangedProjects["api"] {
			t.Errorf("expected api in ChangedProjects, got %v", batch.ChangedProjects)
		}
		if batch.RootEscalation {
			t.Errorf("did not expect root escalation for a project-local file")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a change batch")
	}
}
