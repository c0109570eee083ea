// Package generator loads source-generator declarations from the root and
// per-project manifests, normalizes them, decides which ones a given
// affected set triggers, and orders them so that a generator whose inputs
// depend on another generator's output runs after it.
package generator

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/loom-build/loom/manifest"
)

// Spec is a single normalized generator declaration.
type Spec struct {
	Key     string
	Command string
	Deps    map[string]bool
	Cwd     string
	Target  string // project whose build consumes this generator's output
}

// rawSpec mirrors the object form of a sources entry: { command, deps?, target?, cwd? }.
type rawSpec struct {
	Command string   `json:"command"`
	Deps    []string `json:"deps,omitempty"`
	Target  string   `json:"target,omitempty"`
	Cwd     string   `json:"cwd,omitempty"`
}

// Load reads the reserved "sources" key from the root manifest and every
// project manifest, normalizing shorthand strings and objects, and
// merging per-project declarations over root declarations that share the
// same key. Root declarations come first, then each project's in
// project-name order; within one manifest the keys come in no defined
// order, since the sources object is decoded into a map.
func Load(ws *manifest.Workspace) ([]*Spec, error) {
	specsByKey := make(map[string]*Spec)
	var order []string

	// Per-project declarations override root declarations sharing the same
	// key, so root is loaded first and projects are free to overwrite it.
	addSpec := func(key string, raw json.RawMessage, defaultCwd, defaultTarget string) error {
		spec, err := normalize(key, raw, defaultCwd, defaultTarget)
		if err != nil {
			return fmt.Errorf("generator %q: %w", key, err)
		}
		if _, exists := specsByKey[key]; !exists {
			order = append(order, key)
		}
		specsByKey[key] = spec
		return nil
	}

	for key, raw := range ws.Manifest.Sources {
		if err := addSpec(key, raw, ws.Root, ""); err != nil {
			return nil, err
		}
	}

	for _, name := range ws.SortedNames() {
		p := ws.Projects[name]
		for key, raw := range p.Manifest.Sources {
			if err := addSpec(key, raw, p.AbsolutePath, p.Name); err != nil {
				return nil, err
			}
		}
	}

	specs := make([]*Spec, 0, len(order))
	for _, key := range order {
		specs = append(specs, specsByKey[key])
	}
	return specs, nil
}

func normalize(key string, raw json.RawMessage, defaultCwd, defaultTarget string) (*Spec, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return &Spec{
			Key:     key,
			Command: asString,
			Deps:    map[string]bool{},
			Cwd:     defaultCwd,
			Target:  defaultTarget,
		}, nil
	}

	var r rawSpec
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("not a string or object: %w", err)
	}
	if r.Command == "" {
		return nil, fmt.Errorf("missing command")
	}
	deps := make(map[string]bool, len(r.Deps))
	for _, d := range r.Deps {
		deps[d] = true
	}
	cwd := r.Cwd
	if cwd == "" {
		cwd = defaultCwd
	}
	target := r.Target
	if target == "" {
		target = defaultTarget
	}
	return &Spec{Key: key, Command: r.Command, Deps: deps, Cwd: cwd, Target: target}, nil
}

// Triggered returns the subset of specs that an affected set triggers.
// Per generator: run iff any declared dep resolves (via ws.Resolve: exact
// name, then workspace-relative path, then "/name" suffix) to a project in
// affected. If deps is
// empty, fall back to path containment: run iff the generator's key,
// resolved as a path under the workspace root, lies inside an affected
// project.
func Triggered(specs []*Spec, affected map[string]bool, ws *manifest.Workspace) []*Spec {
	var triggered []*Spec
	for _, spec := range specs {
		if len(spec.Deps) > 0 {
			if depTriggers(spec.Deps, affected, ws) {
				triggered = append(triggered, spec)
			}
			continue
		}
		if pathTriggers(spec.Key, affected, ws) {
			triggered = append(triggered, spec)
		}
	}
	return triggered
}

func depTriggers(deps map[string]bool, affected map[string]bool, ws *manifest.Workspace) bool {
	for dep := range deps {
		if name, ok := ws.Resolve(dep); ok && affected[name] {
			return true
		}
	}
	return false
}

func pathTriggers(key string, affected map[string]bool, ws *manifest.Workspace) bool {
	resolved := filepath.Clean(filepath.Join(ws.Root, key))
	for name := range affected {
		p, ok := ws.Projects[name]
		if !ok {
			continue
		}
		projectDir := filepath.Clean(p.AbsolutePath)
		if resolved == projectDir || strings.HasPrefix(resolved, projectDir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Order topologically orders generators: a generator whose deps include
// another generator's target runs after it; ties break by position in
// specs. This is the conservative rule spec.md's open question settles
// on, implemented with the same Kahn layering the wave planner uses, over
// a synthetic graph keyed by generator key.
func Order(specs []*Spec) []*Spec {
	targetToKey := make(map[string]string, len(specs))
	for _, s := range specs {
		if s.Target != "" {
			targetToKey[s.Target] = s.Key
		}
	}

	indexOf := make(map[string]int, len(specs))
	byKey := make(map[string]*Spec, len(specs))
	for i, s := range specs {
		indexOf[s.Key] = i
		byKey[s.Key] = s
	}

	// edges[key] = set of generator keys that must run before key
	before := make(map[string]map[string]bool, len(specs))
	for _, s := range specs {
		before[s.Key] = make(map[string]bool)
		for dep := range s.Deps {
			if producerKey, ok := targetToKey[dep]; ok && producerKey != s.Key {
				before[s.Key][producerKey] = true
			}
		}
	}

	done := make(map[string]bool, len(specs))
	var ordered []*Spec
	for len(ordered) < len(specs) {
		var ready []*Spec
		for _, s := range specs {
			if done[s.Key] {
				continue
			}
			isReady := true
			for dep := range before[s.Key] {
				if !done[dep] {
					isReady = false
					break
				}
			}
			if isReady {
				ready = append(ready, s)
			}
		}
		if len(ready) == 0 {
			// a cycle among generator targets: fall back to declaration order
			// for everything still pending rather than deadlocking.
			for _, s := range specs {
				if !done[s.Key] {
					ready = append(ready, s)
				}
			}
		}
		sort.Slice(ready, func(i, j int) bool {
			return indexOf[ready[i].Key] < indexOf[ready[j].Key]
		})
		for _, s := range ready {
			ordered = append(ordered, s)
			done[s.Key] = true
		}
	}
	return ordered
}
