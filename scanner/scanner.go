// Package scanner extracts import/require specifier literals from a
// project's source tree and reports specifiers that don't resolve to a
// file on disk, grounded on the teacher's project.Parse regex-per-construct
// idiom (there: <ProjectReference>/<PackageReference> attributes; here:
// JS/TS import and require specifiers).
package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/loom-build/loom/manifest"
)

var (
	importRegex  = regexp.MustCompile(`(?:import|export)\s+(?:[\w*${}\s,]+from\s+)?['"]([^'"]+)['"]`)
	requireRegex = regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`)
)

var sourceExtensions = map[string]bool{
	".js": true, ".jsx": true, ".ts": true, ".tsx": true, ".mjs": true, ".cjs": true,
}

var skipDirs = map[string]bool{
	"node_modules": true, ".git": true, "dist": true, "build": true, ".turbo": true,
}

var resolveExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".json"}

// UnresolvedImport is a specifier that couldn't be found on disk.
type UnresolvedImport struct {
	Specifier  string
	Project    string
	ImportedBy []string
}

// Report is the outcome of scanning a workspace.
type Report struct {
	Unresolved []UnresolvedImport
}

// Scan walks every project's source tree, extracts import/require
// specifiers, and reports every relative specifier that fails to resolve
// on disk. Specifiers under a generator's output path are never reported
// (expected missing on a clean checkout).
func Scan(ws *manifest.Workspace, generatorOutputs []string) (*Report, error) {
	unresolvedByKey := make(map[string]*UnresolvedImport)

	for _, name := range ws.SortedNames() {
		p := ws.Projects[name]
		err := filepath.WalkDir(p.AbsolutePath, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if skipDirs[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			if !sourceExtensions[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			for _, spec := range extractSpecifiers(string(content)) {
				if !isRelative(spec) {
					continue // bare package specifiers are resolved by node_modules, out of scope
				}
				resolved := resolveSpecifier(filepath.Dir(path), spec)
				if resolved != "" {
					continue
				}
				if isGeneratorOutput(filepath.Dir(path), spec, generatorOutputs) {
					continue
				}
				key := name + "\x00" + filepath.Clean(filepath.Join(filepath.Dir(path), spec))
				entry, ok := unresolvedByKey[key]
				if !ok {
					entry = &UnresolvedImport{Specifier: spec, Project: name}
					unresolvedByKey[key] = entry
				}
				entry.ImportedBy = append(entry.ImportedBy, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	report := &Report{}
	for _, entry := range unresolvedByKey {
		sort.Strings(entry.ImportedBy)
		report.Unresolved = append(report.Unresolved, *entry)
	}
	sort.Slice(report.Unresolved, func(i, j int) bool {
		if report.Unresolved[i].Project != report.Unresolved[j].Project {
			return report.Unresolved[i].Project < report.Unresolved[j].Project
		}
		return report.Unresolved[i].Specifier < report.Unresolved[j].Specifier
	})
	return report, nil
}

func extractSpecifiers(content string) []string {
	var specs []string
	for _, m := range importRegex.FindAllStringSubmatch(content, -1) {
		specs = append(specs, m[1])
	}
	for _, m := range requireRegex.FindAllStringSubmatch(content, -1) {
		specs = append(specs, m[1])
	}
	return specs
}

func isRelative(spec string) bool {
	return strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../")
}

// resolveSpecifier probes the conventional extension and index.* variants,
// returning the resolved absolute path, or "" if none exist.
func resolveSpecifier(fromDir, spec string) string {
	base := filepath.Join(fromDir, spec)
	if fileExists(base) {
		return base
	}
	for _, ext := range resolveExtensions {
		if fileExists(base + ext) {
			return base + ext
		}
	}
	for _, ext := range resolveExtensions {
		candidate := filepath.Join(base, "index"+ext)
		if fileExists(candidate) {
			return candidate
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isGeneratorOutput(fromDir, spec string, outputs []string) bool {
	resolved := filepath.Clean(filepath.Join(fromDir, spec))
	for _, out := range outputs {
		out = filepath.Clean(out)
		if resolved == out || strings.HasPrefix(resolved, out+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
