// Package scenario loads and runs YAML scenario files: step sequences
// against the ownership tracker with expected outcomes.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is one YAML document.
type Scenario struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Steps       []Step  `yaml:"steps"`
	Script      *Script `yaml:"script"`

	// File is the path the scenario was loaded from.
	File string `yaml:"-"`
}

// Step is a single tracker operation. Exactly one of Value, Move and Clone
// supplies the value for bind and assign.
type Step struct {
	Op    string `yaml:"op"`
	Name  string `yaml:"name"`
	Label string `yaml:"label"` // frame label
	Mut   bool   `yaml:"mut"`
	Value string `yaml:"value"` // ownscript constant expression
	Move  string `yaml:"move"`  // move out of this binding
	Clone string `yaml:"clone"` // duplicate this binding

	Error    string    `yaml:"error"`    // expected error code
	Want     string    `yaml:"want"`     // expected rendered value
	Released *[]string `yaml:"released"` // expected released names, in order
}

// Script is an ownscript program with its expected output.
type Script struct {
	Source string `yaml:"source"`
	Output string `yaml:"output"`
	Error  string `yaml:"error"`
}

// Ops lists the valid step operations.
var Ops = []string{"enter", "frame", "exit", "bind", "read", "move", "duplicate", "assign", "drop"}

// ValidationError reports a malformed scenario.
type ValidationError struct {
	File    string
	Step    int // 1-based; 0 for document-level problems
	Message string
}

func (e *ValidationError) Error() string {
	if e.Step > 0 {
		return fmt.Sprintf("%s: step %d: %s", e.File, e.Step, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Load reads every scenario document in the file at path.
func Load(path string) ([]*Scenario, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is a user-supplied scenario file
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return Parse(data, path)
}

// Parse decodes scenario documents from data. Unknown fields are rejected.
func Parse(data []byte, file string) ([]*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var scenarios []*Scenario
	for i := 1; ; i++ {
		var sc Scenario
		err := dec.Decode(&sc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ValidationError{File: file, Message: fmt.Sprintf("invalid YAML: %v", err)}
		}

		sc.File = file
		if sc.Name == "" {
			sc.Name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
			if i > 1 {
				sc.Name = fmt.Sprintf("%s#%d", sc.Name, i)
			}
		}
		if err := sc.Validate(); err != nil {
			return nil, err
		}
		scenarios = append(scenarios, &sc)
	}
	return scenarios, nil
}

// LoadDir loads all .yaml and .yml files in dir, sorted by path.
func LoadDir(dir string) ([]*Scenario, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to scan scenario directory: %w", err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	var all []*Scenario
	for _, f := range files {
		scs, err := Load(f)
		if err != nil {
			return nil, err
		}
		all = append(all, scs...)
	}
	return all, nil
}

// LoadPaths loads scenario files and directories. Directories are walked
// recursively for .yaml and .yml files, skipping hidden directories.
func LoadPaths(paths []string) ([]*Scenario, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read scenario path: %w", err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		var found []string
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != p && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if isScenarioFile(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", p, err)
		}
		sort.Strings(found)
		files = append(files, found...)
	}

	var all []*Scenario
	for _, f := range files {
		scs, err := Load(f)
		if err != nil {
			return nil, err
		}
		all = append(all, scs...)
	}
	return all, nil
}

func isScenarioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Validate checks that every step is well formed.
func (s *Scenario) Validate() error {
	if len(s.Steps) == 0 && s.Script == nil {
		return &ValidationError{File: s.File, Message: "scenario has no steps and no script"}
	}
	for i, st := range s.Steps {
		if msg := st.problem(); msg != "" {
			return &ValidationError{File: s.File, Step: i + 1, Message: msg}
		}
	}
	if s.Script != nil && strings.TrimSpace(s.Script.Source) == "" {
		return &ValidationError{File: s.File, Message: "script has no source"}
	}
	return nil
}

func (st Step) problem() string {
	valid := false
	for _, op := range Ops {
		if st.Op == op {
			valid = true
		}
	}
	if !valid {
		return fmt.Sprintf("unknown op %q, must be one of: %s", st.Op, strings.Join(Ops, ", "))
	}

	sources := 0
	for _, src := range []string{st.Value, st.Move, st.Clone} {
		if src != "" {
			sources++
		}
	}

	switch st.Op {
	case "enter", "frame", "exit":
		if st.Name != "" || sources > 0 {
			return fmt.Sprintf("%s takes no name or value", st.Op)
		}
	case "bind", "assign":
		if st.Name == "" {
			return fmt.Sprintf("%s needs a name", st.Op)
		}
		if sources != 1 {
			return fmt.Sprintf("%s needs exactly one of value, move or clone", st.Op)
		}
	default:
		if st.Name == "" {
			return fmt.Sprintf("%s needs a name", st.Op)
		}
		if sources > 0 {
			return fmt.Sprintf("%s takes no value", st.Op)
		}
	}

	if st.Released != nil && st.Op != "exit" && st.Op != "assign" && st.Op != "drop" {
		return "released is only checked for exit, assign and drop"
	}
	if st.Want != "" && st.Op != "read" && st.Op != "move" && st.Op != "duplicate" {
		return "want is only checked for read, move and duplicate"
	}
	if st.Label != "" && st.Op != "frame" {
		return "label is only used by frame"
	}
	return ""
}
