// Package fixture supplies named data records (credentials, entity
// attributes) to scenarios.
//
// Fixtures are loaded once from a directory and are read-only afterwards.
// Every file becomes one record named after the file without its extension:
//
//	fixtures/admin.json     -> fixture "admin"
//	fixtures/dataset.yaml   -> fixture "dataset"
//
// Nested documents are flattened into dotted keys, so
//
//	project: {id: 123, name: E2E Tests}
//
// yields the keys "project.id" and "project.name", referenced from scenarios
// as ${dataset.project.id}. List elements use their position: "tags.0".
package fixture

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
)

// ErrNotFound is matched by errors.Is for every NotFoundError.
var ErrNotFound = errors.New("fixture not found")

// NotFoundError reports a fixture name that is not registered.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("fixture %q not found", e.Name)
}

// Is makes errors.Is(err, ErrNotFound) true.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Record is a flat key/value mapping for one actor or entity.
type Record = map[string]string

// Registry holds every loaded fixture. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	records map[string]Record
	sources map[string]string
}

// New returns a registry holding copies of records.
func New(records map[string]Record) *Registry {
	r := &Registry{
		records: make(map[string]Record, len(records)),
		sources: make(map[string]string, len(records)),
	}
	for name, rec := range records {
		r.records[name] = maps.Clone(rec)
	}
	return r
}

// Load returns a copy of the named record. Callers may modify the copy.
func (r *Registry) Load(name string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	out := maps.Clone(rec)
	if out == nil {
		out = Record{}
	}
	return out, nil
}

// Names returns the registered fixture names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.records))
	for name := range r.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Source returns the file a fixture was loaded from, or "" for fixtures
// registered in code.
func (r *Registry) Source(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[name]
}

// Len returns the number of registered fixtures.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func (r *Registry) add(name, source string, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, dup := r.sources[name]; dup {
		return fmt.Errorf("fixture %q defined in both %s and %s", name, prev, source)
	}
	r.records[name] = rec
	r.sources[name] = source
	return nil
}
