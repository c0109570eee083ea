package generator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/loom-build/loom/manifest"
)

func loadWorkspace(t *testing.T, files map[string]string) *manifest.Workspace {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	ws, err := manifest.Load(root)
	if err != nil {
		t.Fatalf("manifest.Load() failed: %v", err)
	}
	return ws
}

func TestLoadNormalizesShorthandAndObject(t *testing.T) {
	ws := loadWorkspace(t, map[string]string{
		manifest.FileName: `{"name": "root", "workspaces": ["packages/*"]}`,
		"packages/api/" + manifest.FileName: `{
			"name": "api",
			"sources": {
				"codegen": "protoc --go_out=. api.proto",
				"openapi": {"command": "openapi-gen", "deps": ["schemas"]}
			}
		}`,
	})

	specs, err := Load(ws)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}
	byKey := map[string]*Spec{}
	for _, s := range specs {
		byKey[s.Key] = s
	}
	codegen := byKey["codegen"]
	if codegen.Command != "protoc --go_out=. api.proto" {
		t.Errorf("codegen command = %q", codegen.Command)
	}
	if codegen.Target != "api" {
		t.Errorf("codegen target = %q, want api (per-project default)", codegen.Target)
	}
	if len(codegen.Deps) != 0 {
		t.Errorf("shorthand spec should have empty deps, got %v", codegen.Deps)
	}

	openapi := byKey["openapi"]
	if !openapi.Deps["schemas"] {
		t.Errorf("openapi deps = %v, want schemas", openapi.Deps)
	}
}

func TestPerProjectOverridesRoot(t *testing.T) {
	ws := loadWorkspace(t, map[string]string{
		manifest.FileName: `{
			"name": "root",
			"workspaces": ["packages/*"],
			"sources": {"codegen": "root-command"}
		}`,
		"packages/api/" + manifest.FileName: `{
			"name": "api",
			"sources": {"codegen": "project-command"}
		}`,
	})

	specs, err := Load(ws)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("expected the keys to merge into 1 spec, got %d", len(specs))
	}
	if specs[0].Command != "project-command" {
		t.Errorf("Command = %q, want project-command to override root", specs[0].Command)
	}
}

func TestTriggeredFallsBackToPathContainment(t *testing.T) {
	ws := loadWorkspace(t, map[string]string{
		manifest.FileName: `{"name": "root", "workspaces": ["packages/*"]}`,
		"packages/api/" + manifest.FileName: `{"name": "api"}`,
	})
	specs := []*Spec{{Key: "packages/api/gen.ts", Command: "gen", Deps: map[string]bool{}}}

	affected := map[string]bool{"api": true}
	got := Triggered(specs, affected, ws)
	if len(got) != 1 {
		t.Fatalf("expected generator to trigger via path containment, got %d", len(got))
	}

	notAffected := map[string]bool{}
	if got := Triggered(specs, notAffected, ws); len(got) != 0 {
		t.Errorf("expected no generators to trigger, got %d", len(got))
	}
}

func TestOrderRespectsProducerBeforeConsumer(t *testing.T) {
	specs := []*Spec{
		{Key: "consumer", Command: "c", Deps: map[string]bool{"schemas": true}, Target: "consumer-proj"},
		{Key: "producer", Command: "p", Deps: map[string]bool{}, Target: "schemas"},
	}
	ordered := Order(specs)
	if ordered[0].Key != "producer" || ordered[1].Key != "consumer" {
		t.Errorf("Order() = %v, want [producer, consumer]", []string{ordered[0].Key, ordered[1].Key})
	}
}
