package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Extensions lists the file extensions recognized as scenario files.
var Extensions = []string{".yaml", ".yml", ".json", ".cue"}

// IsScenarioFile reports whether path has a scenario file extension.
func IsScenarioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// LoadFile reads and strictly decodes a single scenario file without
// expanding blocks or validating.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".cue") {
		data, err = cueToJSON(path, data)
		if err != nil {
			return nil, err
		}
	}

	f, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i := range f.Scenarios {
		f.Scenarios[i].Source = path
	}
	return f, nil
}

// decode parses YAML (or JSON, a YAML subset) rejecting unknown fields.
func decode(data []byte) (*File, error) {
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // typos such as "step:" must not be silently ignored
	if err := decoder.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty scenario file")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &f, nil
}

// cueToJSON evaluates a CUE document and exports it as concrete JSON.
func cueToJSON(path string, data []byte) ([]byte, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile CUE %s: %w", path, err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("CUE %s is not concrete: %w", path, err)
	}
	out, err := v.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export CUE %s: %w", path, err)
	}
	return out, nil
}

// FindFiles expands files and directories into a sorted list of scenario
// files. Directories are walked recursively.
func FindFiles(paths ...string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("scenario path %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !IsScenarioFile(path) {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

// Load reads every scenario file under paths, merges their blocks, expands
// "use" steps and validates the result.
//
// Blocks share one namespace across all files so a suite can keep its
// helpers in a dedicated file. Scenario names must be unique.
func Load(paths ...string) (*Suite, error) {
	files, err := FindFiles(paths...)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", strings.Join(paths, ", "))
	}

	blocks := make(map[string][]Step)
	blockSource := make(map[string]string)
	var decoded []*File
	for _, path := range files {
		f, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for name, steps := range f.Blocks {
			if prev, dup := blockSource[name]; dup {
				return nil, fmt.Errorf("block %q defined in both %s and %s", name, prev, path)
			}
			blocks[name] = steps
			blockSource[name] = path
		}
		decoded = append(decoded, f)
	}

	suite := &Suite{}
	names := make(map[string]string)
	for _, f := range decoded {
		for i := range f.Scenarios {
			sc := f.Scenarios[i]
			if prev, dup := names[sc.Name]; dup && sc.Name != "" {
				return nil, fmt.Errorf("scenario %q defined in both %s and %s", sc.Name, prev, sc.Source)
			}
			names[sc.Name] = sc.Source

			steps, err := expandSteps(sc.Steps, blocks)
			if err != nil {
				return nil, fmt.Errorf("%s: scenario %q: %w", sc.Source, sc.Name, err)
			}
			sc.Steps = steps
			if err := Validate(&sc); err != nil {
				return nil, fmt.Errorf("%s: invalid scenario: %w", sc.Source, err)
			}
			suite.Scenarios = append(suite.Scenarios, &sc)
		}
	}
	return suite, nil
}
