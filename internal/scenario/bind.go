package scenario

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/uirun/internal/page"
)

// ParamNamespace is the placeholder namespace bound by block arguments.
const ParamNamespace = "param"

// placeholder matches ${namespace.key}; key may itself contain dots.
var placeholder = regexp.MustCompile(`\$\{\s*([A-Za-z0-9_-]+)\.([A-Za-z0-9_.-]+)\s*\}`)

// Lookup resolves a fixture by name. fixture.Registry.Load satisfies it.
type Lookup func(name string) (map[string]string, error)

// FixtureRefs returns the sorted set of fixture names the scenario needs:
// its fixtures list plus every placeholder namespace other than param.
func (s *Scenario) FixtureRefs() []string {
	seen := make(map[string]bool)
	for _, name := range s.Fixtures {
		seen[name] = true
	}
	for _, step := range s.Steps {
		_, _ = step.mapStrings(func(v string) (string, error) {
			for _, m := range placeholder.FindAllStringSubmatch(v, -1) {
				if m[1] != ParamNamespace {
					seen[m[1]] = true
				}
			}
			return v, nil
		})
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bind returns a copy of the scenario with every fixture placeholder
// replaced. All referenced fixtures are resolved before any substitution, so
// a missing fixture fails the whole bind. The receiver is not modified.
func (s *Scenario) Bind(lookup Lookup) (*Scenario, error) {
	records := make(map[string]map[string]string)
	for _, name := range s.FixtureRefs() {
		rec, err := lookup(name)
		if err != nil {
			return nil, err
		}
		records[name] = rec
	}

	bound := *s
	bound.Tags = append([]string(nil), s.Tags...)
	bound.Fixtures = append([]string(nil), s.Fixtures...)
	bound.Steps = make([]Step, len(s.Steps))
	for i, step := range s.Steps {
		out, err := step.mapStrings(func(v string) (string, error) {
			return substitute(v, func(ns, key string) (string, bool) {
				if ns == ParamNamespace {
					return "", false
				}
				val, ok := records[ns][key]
				return val, ok
			})
		})
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		bound.Steps[i] = out
	}
	return &bound, nil
}

// substitute replaces placeholders using resolve. A placeholder whose
// namespace resolve declines (ok=false with an unknown namespace) is an error
// unless it is a param placeholder, which is left for block expansion.
func substitute(v string, resolve func(ns, key string) (string, bool)) (string, error) {
	var firstErr error
	out := placeholder.ReplaceAllStringFunc(v, func(m string) string {
		parts := placeholder.FindStringSubmatch(m)
		ns, key := parts[1], parts[2]
		val, ok := resolve(ns, key)
		if ok {
			return val
		}
		if firstErr == nil {
			if ns == ParamNamespace {
				firstErr = fmt.Errorf("unbound block parameter %q", key)
			} else {
				firstErr = fmt.Errorf("fixture %q has no key %q", ns, key)
			}
		}
		return m
	})
	return out, firstErr
}

// mapStrings returns a deep copy of the step with f applied to every
// user-supplied string: value, target fields and condition fields.
func (s Step) mapStrings(f func(string) (string, error)) (Step, error) {
	out := s
	var err error
	if out.Value, err = f(s.Value); err != nil {
		return s, err
	}
	if s.Target != nil {
		t, err := mapTarget(*s.Target, f)
		if err != nil {
			return s, err
		}
		out.Target = &t
	}
	if s.Expect != nil {
		c := *s.Expect
		if c.Value, err = f(s.Expect.Value); err != nil {
			return s, err
		}
		if s.Expect.Target != nil {
			t, err := mapTarget(*s.Expect.Target, f)
			if err != nil {
				return s, err
			}
			c.Target = &t
		}
		out.Expect = &c
	}
	if s.With != nil {
		out.With = make(map[string]string, len(s.With))
		for k, v := range s.With {
			if out.With[k], err = f(v); err != nil {
				return s, err
			}
		}
	}
	return out, nil
}

func mapTarget(t page.Target, f func(string) (string, error)) (page.Target, error) {
	var err error
	out := t
	for _, field := range []*string{&out.Selector, &out.Text, &out.Closest, &out.Find} {
		if *field, err = f(*field); err != nil {
			return t, err
		}
	}
	if t.Index != nil {
		out.Index = page.IntPtr(*t.Index)
	}
	return out, nil
}

// hasPlaceholder reports whether v still contains an unresolved placeholder.
func hasPlaceholder(v string) bool {
	return strings.Contains(v, "${") && placeholder.MatchString(v)
}
