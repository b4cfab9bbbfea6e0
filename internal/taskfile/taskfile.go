// Package taskfile loads workflow definitions from YAML files.
//
// A file looks like:
//
//	workflow: release-notes
//	strategy: hybrid
//	workers:
//	  - id: planner
//	    capabilities: [planning, analysis]
//	tasks:
//	  - id: outline
//	    type: planning
//	    priority: high
//	  - id: draft
//	    type: implementation
//	    depends_on: [outline]
//
// Several files matched by one glob are merged into a single definition.
package taskfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/qforge/pkg/models"
)

// ErrNoFiles is returned when a pattern matches nothing.
var ErrNoFiles = errors.New("no task files match")

// Definition is a workflow described on disk.
type Definition struct {
	Workflow string           `yaml:"workflow,omitempty"`
	Strategy models.Strategy  `yaml:"strategy,omitempty"`
	Workers  []*models.Worker `yaml:"workers,omitempty"`
	Tasks    []*models.Task   `yaml:"tasks"`

	// Sources lists the files the definition was read from.
	Sources []string `yaml:"-"`
}

// Parse decodes one definition. Unknown fields are rejected so typos in
// task keys do not silently drop dependencies.
func Parse(r io.Reader) (*Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return &Definition{}, nil
		}
		return nil, err
	}
	if def.Strategy != "" && !def.Strategy.Valid() {
		return nil, fmt.Errorf("unknown strategy %q", def.Strategy)
	}
	for i, t := range def.Tasks {
		if t == nil {
			return nil, fmt.Errorf("tasks[%d] is empty", i)
		}
	}
	return &def, nil
}

// LoadFile reads one definition from path.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	def, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	def.Sources = []string{path}
	return def, nil
}

// Resolve expands a path or doublestar pattern (e.g. "flows/**/*.yaml") to
// matching files in lexical order.
func Resolve(pattern string) ([]string, error) {
	if !strings.ContainsAny(pattern, "*?[{") {
		if _, err := os.Stat(pattern); err != nil {
			return nil, err
		}
		return []string{pattern}, nil
	}

	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob error: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFiles, pattern)
	}
	sort.Strings(matches)
	return matches, nil
}

// Load resolves pattern and merges every matching file, in lexical order.
func Load(pattern string) (*Definition, error) {
	paths, err := Resolve(pattern)
	if err != nil {
		return nil, err
	}

	defs := make([]*Definition, 0, len(paths))
	for _, p := range paths {
		def, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return Merge(defs...)
}

// Merge concatenates definitions. Task and worker IDs must be unique across
// files, and files that name a workflow or strategy must agree.
func Merge(defs ...*Definition) (*Definition, error) {
	out := &Definition{}
	taskSource := make(map[string]string)
	workerSource := make(map[string]string)

	for _, def := range defs {
		src := strings.Join(def.Sources, ",")
		if src == "" {
			src = "<input>"
		}

		if def.Workflow != "" {
			if out.Workflow != "" && out.Workflow != def.Workflow {
				return nil, fmt.Errorf("%s: workflow %q conflicts with %q", src, def.Workflow, out.Workflow)
			}
			out.Workflow = def.Workflow
		}
		if def.Strategy != "" {
			if out.Strategy != "" && out.Strategy != def.Strategy {
				return nil, fmt.Errorf("%s: strategy %q conflicts with %q", src, def.Strategy, out.Strategy)
			}
			out.Strategy = def.Strategy
		}

		for _, w := range def.Workers {
			if prev, ok := workerSource[w.ID]; ok {
				return nil, fmt.Errorf("%s: worker %q already defined in %s", src, w.ID, prev)
			}
			workerSource[w.ID] = src
			out.Workers = append(out.Workers, w)
		}
		for _, t := range def.Tasks {
			if prev, ok := taskSource[t.ID]; ok {
				return nil, fmt.Errorf("%s: task %q already defined in %s", src, t.ID, prev)
			}
			taskSource[t.ID] = src
			out.Tasks = append(out.Tasks, t)
		}
		out.Sources = append(out.Sources, def.Sources...)
	}
	return out, nil
}

