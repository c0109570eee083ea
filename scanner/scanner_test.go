package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/loom-build/loom/manifest"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScanFindsUnresolvedRelativeImport(t *testing.T) {
	root := t.TempDir()
	apiDir := filepath.Join(root, "packages", "api")
	writeFile(t, filepath.Join(apiDir, "src", "index.ts"), `
		import { widget } from "./widget";
		import missing from "./does-not-exist";
		const x = require("../lib/helper");
	`)
	writeFile(t, filepath.Join(apiDir, "src", "widget.ts"), `export const widget = 1;`)
	writeFile(t, filepath.Join(apiDir, "lib", "helper.js"), `module.exports = {};`)

	ws := &manifest.Workspace{
		Root: root,
		Projects: map[string]*manifest.Project{
			"api": {Name: "api", AbsolutePath: apiDir, Manifest: &manifest.Manifest{}},
		},
	}

	report, err := Scan(ws, nil)
	if err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}
	if len(report.Unresolved) != 1 {
		t.Fatalf("expected 1 unresolved import, got %d: %+v", len(report.Unresolved), report.Unresolved)
	}
	if report.Unresolved[0].Specifier != "./does-not-exist" {
		t.Errorf("Specifier = %q, want ./does-not-exist", report.Unresolved[0].Specifier)
	}
}

func TestScanIgnoresGeneratorOutputs(t *testing.T) {
	root := t.TempDir()
	apiDir := filepath.Join(root, "packages", "api")
	writeFile(t, filepath.Join(apiDir, "src", "index.ts"), `import gen from "./generated/schema";`)

	ws := &manifest.Workspace{
		Root: root,
		Projects: map[string]*manifest.Project{
			"api": {Name: "api", AbsolutePath: apiDir, Manifest: &manifest.Manifest{}},
		},
	}

	report, err := Scan(ws, []string{filepath.Join(apiDir, "src", "generated")})
	if err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}
	if len(report.Unresolved) != 0 {
		t.Errorf("expected generator output to be filtered out, got %+v", report.Unresolved)
	}
}

func TestScanIgnoresBareSpecifiers(t *testing.T) {
	root := t.TempDir()
	apiDir := filepath.Join(root, "packages", "api")
	writeFile(t, filepath.Join(apiDir, "src", "index.ts"), `import express from "express";`)

	ws := &manifest.Workspace{
		Root: root,
		Projects: map[string]*manifest.Project{
			"api": {Name: "api", AbsolutePath: apiDir, Manifest: &manifest.Manifest{}},
		},
	}

	report, err := Scan(ws, nil)
	if err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}
	if len(report.Unresolved) != 0 {
		t.Errorf("expected bare package specifiers to be out of scope, got %+v", report.Unresolved)
	}
}
