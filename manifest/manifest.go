// Package manifest discovers and parses the projects that make up a loom
// workspace: the root manifest's workspace glob patterns, and each matched
// project's own manifest (name, dependency maps, scripts, generator
// declarations).
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// FileName is the reserved manifest file name, at the workspace root and in
// every project directory.
const FileName = "loom.json"

// SourcesKey is the reserved manifest key under which generator
// declarations live (either a bare shell string, or an object).
const SourcesKey = "sources"

// Manifest is the parsed shape of a loom.json file, before it is attached
// to a discovered Project.
type Manifest struct {
	Name                 string                     `json:"name"`
	Workspaces           []string                   `json:"workspaces,omitempty"`
	Dependencies         map[string]string          `json:"dependencies,omitempty"`
	DevDependencies      map[string]string          `json:"devDependencies,omitempty"`
	PeerDependencies      map[string]string          `json:"peerDependencies,omitempty"`
	OptionalDependencies map[string]string          `json:"optionalDependencies,omitempty"`
	Scripts              map[string]string          `json:"scripts,omitempty"`
	PackageManager       string                     `json:"packageManager,omitempty"`
	Sources              map[string]json.RawMessage `json:"sources,omitempty"`
}

// Project is a single workspace member: a directory with its own manifest
// declaring a unique name and a set of dependency edges.
type Project struct {
	Name         string
	Path         string // workspace-relative
	AbsolutePath string
	Manifest     *Manifest
}

// DependencyNames returns the union of the four dependency maps' keys,
// which is how the graph builder treats them: identically, for the
// purposes of edge construction.
func (p *Project) DependencyNames() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(m map[string]string) {
		for name := range m {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	add(p.Manifest.Dependencies)
	add(p.Manifest.DevDependencies)
	add(p.Manifest.PeerDependencies)
	add(p.Manifest.OptionalDependencies)
	sort.Strings(names)
	return names
}

// Workspace is the fully loaded set of projects rooted at a single
// workspace directory.
type Workspace struct {
	Root     string
	Manifest *Manifest
	Projects map[string]*Project // keyed by project name
}

// DuplicateNameError is returned when two discovered projects declare the
// same name.
type DuplicateNameError struct {
	Name        string
	FirstPath   string
	SecondPath  string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate project name %q declared at both %q and %q", e.Name, e.FirstPath, e.SecondPath)
}

// Load reads the root manifest at root, expands its workspace globs, and
// parses every matched project manifest into a Workspace.
func Load(root string) (*Workspace, error) {
	rootManifestPath := filepath.Join(root, FileName)
	rootManifest, err := parseFile(rootManifestPath)
	if err != nil {
		return nil, fmt.Errorf("reading root manifest %q: %w", rootManifestPath, err)
	}

	ws := &Workspace{
		Root:     root,
		Manifest: rootManifest,
		Projects: make(map[string]*Project),
	}

	var matches []string
	for _, pattern := range rootManifest.Workspaces {
		globMatches, err := filepath.Glob(filepath.Join(root, pattern))
		if err != nil {
			return nil, fmt.Errorf("expanding workspace glob %q: %w", pattern, err)
		}
		matches = append(matches, globMatches...)
	}
	sort.Strings(matches)

	pathsByName := make(map[string]string)
	for _, dir := range matches {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		manifestPath := filepath.Join(dir, FileName)
		if _, err := os.Stat(manifestPath); err != nil {
			continue // not a project directory
		}
		m, err := parseFile(manifestPath)
		if err != nil {
			return nil, fmt.Errorf("reading manifest %q: %w", manifestPath, err)
		}
		if m.Name == "" {
			continue // name is required to register as a project
		}

		relPath, err := filepath.Rel(root, dir)
		if err != nil {
			return nil, fmt.Errorf("resolving relative path for %q: %w", dir, err)
		}

		if firstPath, ok := pathsByName[m.Name]; ok {
			return nil, &DuplicateNameError{Name: m.Name, FirstPath: firstPath, SecondPath: relPath}
		}
		pathsByName[m.Name] = relPath

		ws.Projects[m.Name] = &Project{
			Name:         m.Name,
			Path:         relPath,
			AbsolutePath: dir,
			Manifest:     m,
		}
	}

	return ws, nil
}

func parseFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parsing %q: %w", path, err)
	}
	if m.Dependencies == nil {
		m.Dependencies = map[string]string{}
	}
	if m.DevDependencies == nil {
		m.DevDependencies = map[string]string{}
	}
	if m.PeerDependencies == nil {
		m.PeerDependencies = map[string]string{}
	}
	if m.OptionalDependencies == nil {
		m.OptionalDependencies = map[string]string{}
	}
	if m.Scripts == nil {
		m.Scripts = map[string]string{}
	}
	return m, nil
}

// SortedNames returns every project name in a Workspace, sorted, since
// discovery order is not part of the loader's contract.
func (ws *Workspace) SortedNames() []string {
	names := make([]string, 0, len(ws.Projects))
	for name := range ws.Projects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve implements the identifier resolution rule shared by --changed and
// generator.deps: first an exact project name, then a path match against
// the project's workspace-relative path, then a suffix match on "/<id>"
// against any project name.
func (ws *Workspace) Resolve(id string) (string, bool) {
	if _, ok := ws.Projects[id]; ok {
		return id, true
	}
	cleanID := filepath.Clean(id)
	for name, p := range ws.Projects {
		if filepath.Clean(p.Path) == cleanID {
			return name, true
		}
	}
	suffix := "/" + id
	for name := range ws.Projects {
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			return name, true
		}
	}
	return "", false
}
