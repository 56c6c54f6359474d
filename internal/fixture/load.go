package fixture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Extensions lists the file extensions recognized as fixture files.
var Extensions = []string{".json", ".yaml", ".yml", ".toml"}

// IsFixtureFile reports whether path has a fixture file extension.
func IsFixtureFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// LoadDir loads every fixture file directly inside dir. Subdirectories and
// files with other extensions are ignored. Two files with the same base name
// (admin.json and admin.yaml) are an error.
func LoadDir(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !IsFixtureFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	r := New(nil)
	for _, path := range files {
		rec, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if err := r.add(Name(path), path, rec); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Name returns the fixture name for a file path: its base name without
// extension.
func Name(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoadFile decodes and flattens a single fixture file.
func LoadFile(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	doc, err := decode(strings.ToLower(filepath.Ext(path)), data)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	rec := Record{}
	if err := Flatten("", doc, rec); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return rec, nil
}

func decode(ext string, data []byte) (map[string]any, error) {
	var doc any
	switch ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber() // keep 123 as "123", not "123.0"
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".toml":
		var m map[string]any
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
		doc = m
	default:
		return nil, fmt.Errorf("unsupported fixture format %q", ext)
	}

	if doc == nil {
		return map[string]any{}, nil
	}
	m, ok := asMap(doc)
	if !ok {
		return nil, fmt.Errorf("top-level value must be a mapping, got %T", doc)
	}
	return m, nil
}

// Flatten writes v into out under prefix. Mappings and lists recurse with
// dotted keys; scalars are rendered as strings.
func Flatten(prefix string, v any, out Record) error {
	if m, ok := asMap(v); ok {
		if len(m) == 0 && prefix != "" {
			out[prefix] = ""
		}
		for k, child := range m {
			if err := Flatten(join(prefix, k), child, out); err != nil {
				return err
			}
		}
		return nil
	}
	if list, ok := v.([]any); ok {
		if len(list) == 0 && prefix != "" {
			out[prefix] = ""
		}
		for i, child := range list {
			if err := Flatten(join(prefix, strconv.Itoa(i)), child, out); err != nil {
				return err
			}
		}
		return nil
	}
	if prefix == "" {
		return fmt.Errorf("scalar value without a key")
	}
	if _, dup := out[prefix]; dup {
		return fmt.Errorf("duplicate key %q after flattening", prefix)
	}
	out[prefix] = scalar(v)
	return nil
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// asMap accepts both map shapes produced by the decoders.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
