package scenario

import (
	"path/filepath"
	"slices"
	"time"

	"github.com/roach88/uirun/internal/page"
)

// Action is the kind of work a step performs.
type Action string

// Step actions.
const (
	ActionNavigate Action = "navigate"
	ActionType     Action = "type"
	ActionClick    Action = "click"
	ActionSelect   Action = "select"
	ActionWaitFor  Action = "wait-for"
)

// ConditionKind selects what a Condition checks.
type ConditionKind string

// Condition kinds.
const (
	ElementExists  ConditionKind = "element-exists"
	ElementVisible ConditionKind = "element-visible"
	ElementAbsent  ConditionKind = "element-absent"
	URLContains    ConditionKind = "url-contains"
	RequestMade    ConditionKind = "request-made"
)

// File is the on-disk document: shared blocks plus scenarios.
type File struct {
	// Blocks are named step sequences referenced with "use".
	Blocks map[string][]Step `yaml:"blocks,omitempty"`

	// Scenarios declared in this file.
	Scenarios []Scenario `yaml:"scenarios,omitempty"`
}

// Scenario is a named, ordered sequence of steps representing one user
// journey. A loaded Scenario is never mutated; Bind returns a copy.
type Scenario struct {
	// Name uniquely identifies this scenario within a suite.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Tags select scenarios from the command line.
	Tags []string `yaml:"tags,omitempty"`

	// Fixtures lists fixture names to load even when no placeholder
	// references them.
	Fixtures []string `yaml:"fixtures,omitempty"`

	// Steps run strictly in order.
	Steps []Step `yaml:"steps"`

	// Source is the file the scenario was loaded from.
	Source string `yaml:"-"`
}

// Step is one atomic action-plus-expectation unit.
type Step struct {
	// Name is an optional human label used in reports.
	Name string `yaml:"name,omitempty"`

	// Use expands the named block in place of this step. Only valid before
	// expansion; With supplies the block's ${param.X} arguments.
	Use  string            `yaml:"use,omitempty"`
	With map[string]string `yaml:"with,omitempty"`

	Action Action       `yaml:"action,omitempty"`
	Target *page.Target `yaml:"target,omitempty"`

	// Value is the URL for navigate, the text for type and the option for
	// select.
	Value string `yaml:"value,omitempty"`

	// Force clicks without visibility checks.
	Force bool `yaml:"force,omitempty"`

	// Clear empties an input before typing.
	Clear bool `yaml:"clear,omitempty"`

	// Expect is the post-condition awaited after the action.
	Expect *Condition `yaml:"expect,omitempty"`

	// Timeout bounds target resolution and, unless the condition overrides
	// it, the post-condition. Nil means the configured default.
	Timeout *time.Duration `yaml:"timeout,omitempty"`

	// Poll is the initial polling interval. Nil means the configured default.
	Poll *time.Duration `yaml:"poll,omitempty"`
}

// RequestScope selects which recorded requests a request-made condition
// considers.
type RequestScope string

const (
	// SinceStep counts requests sent after the step began. It is the
	// default for an empty scope.
	SinceStep RequestScope = "step"

	// SinceSession counts every request the page recorded.
	SinceSession RequestScope = "session"
)

// SessionScoped reports whether the condition looks at the whole request
// history of the page instead of the current step.
func (c Condition) SessionScoped() bool {
	return c.Since == SinceSession
}

// Condition is a post-condition evaluated against the page.
type Condition struct {
	Kind   ConditionKind `yaml:"kind"`
	Target *page.Target  `yaml:"target,omitempty"`

	// Value is the substring for url-contains and the URL regexp for
	// request-made.
	Value string `yaml:"value,omitempty"`

	// Since is the request history request-made searches. The default,
	// SinceStep, counts only requests sent after the step started.
	Since RequestScope `yaml:"since,omitempty"`

	Timeout *time.Duration `yaml:"timeout,omitempty"`
	Poll    *time.Duration `yaml:"poll,omitempty"`
}

// Label returns the step name, or a description derived from its action.
func (s Step) Label() string {
	if s.Name != "" {
		return s.Name
	}
	switch {
	case s.Target != nil:
		return string(s.Action) + " " + s.Target.String()
	case s.Value != "":
		return string(s.Action) + " " + s.Value
	case s.Expect != nil:
		return string(s.Action) + " " + string(s.Expect.Kind)
	default:
		return string(s.Action)
	}
}

// HasTag reports whether the scenario carries tag.
func (s *Scenario) HasTag(tag string) bool {
	return slices.Contains(s.Tags, tag)
}

// Suite is a set of loaded, expanded and validated scenarios.
type Suite struct {
	Scenarios []*Scenario
}

// Filter returns the scenarios whose name matches the glob pattern (empty
// matches all) and that carry every tag in tags.
func (s *Suite) Filter(pattern string, tags []string) ([]*Scenario, error) {
	var out []*Scenario
	for _, sc := range s.Scenarios {
		if pattern != "" {
			ok, err := filepath.Match(pattern, sc.Name)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		keep := true
		for _, tag := range tags {
			if !sc.HasTag(tag) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, sc)
		}
	}
	return out, nil
}
