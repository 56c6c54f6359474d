package page

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Target identifies the page element a step acts upon.
//
// Resolution runs left to right:
//
//	Selector -> Text filter -> Closest ancestor -> Find descendants -> Visible filter -> Index
//
// which mirrors chains such as
// contains(".card", "E2E Tests").closest(".MuiBox-root").find("[id^=open-]").filter(":visible").eq(0).
type Target struct {
	// Selector is a CSS selector. Required.
	Selector string `yaml:"selector" json:"selector"`

	// Text keeps only elements whose normalized text content contains Text.
	Text string `yaml:"text,omitempty" json:"text,omitempty"`

	// Exact makes Text match the whole normalized text content instead of a
	// substring, so "X" no longer matches an element reading "X 2".
	Exact bool `yaml:"exact,omitempty" json:"exact,omitempty"`

	// Closest replaces each match with its closest ancestor (or self)
	// matching this selector.
	Closest string `yaml:"closest,omitempty" json:"closest,omitempty"`

	// Find replaces each match with its descendants matching this selector.
	Find string `yaml:"find,omitempty" json:"find,omitempty"`

	// Visible keeps only rendered, visible elements.
	Visible bool `yaml:"visible,omitempty" json:"visible,omitempty"`

	// Index picks the n-th match (0-based). Without it a target that
	// matches several elements is ambiguous for actions.
	Index *int `yaml:"index,omitempty" json:"index,omitempty"`
}

// Validate checks that the target can be resolved.
func (t Target) Validate() error {
	if strings.TrimSpace(t.Selector) == "" {
		return fmt.Errorf("selector is required")
	}
	if t.Exact && t.Text == "" {
		return fmt.Errorf("exact requires text")
	}
	if t.Index != nil && *t.Index < 0 {
		return fmt.Errorf("index must be non-negative, got %d", *t.Index)
	}
	return nil
}

// String renders the target the way it appears in failure messages.
func (t Target) String() string {
	var b strings.Builder
	b.WriteString(t.Selector)
	switch {
	case t.Text != "" && t.Exact:
		fmt.Fprintf(&b, " with text %q", t.Text)
	case t.Text != "":
		fmt.Fprintf(&b, " containing %q", t.Text)
	}
	if t.Closest != "" {
		fmt.Fprintf(&b, " closest %s", t.Closest)
	}
	if t.Find != "" {
		fmt.Fprintf(&b, " find %s", t.Find)
	}
	if t.Visible {
		b.WriteString(" :visible")
	}
	if t.Index != nil {
		fmt.Fprintf(&b, " [%d]", *t.Index)
	}
	return b.String()
}

// Pick applies Index to the matches returned by Query.
// It reports false when the index is out of range.
func (t Target) Pick(matches []Element) (Element, bool) {
	i := 0
	if t.Index != nil {
		i = *t.Index
	}
	if i >= len(matches) {
		return Element{}, false
	}
	return matches[i], true
}

// MatchText applies the text filter to an element's text content.
func (t Target) MatchText(text string) bool {
	if t.Exact {
		return NormalizeText(text) == NormalizeText(t.Text)
	}
	return ContainsText(text, t.Text)
}

// IntPtr is a convenience for building targets in code and tests.
func IntPtr(i int) *int { return &i }

// NormalizeText prepares DOM text for matching: NFC normalization, case
// folding and whitespace collapsing.
func NormalizeText(s string) string {
	s = norm.NFC.String(s)
	s = cases.Fold().String(s) // Casers are stateful; never share one across goroutines.
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// ContainsText reports whether haystack contains needle after normalization.
// An empty needle always matches.
func ContainsText(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(NormalizeText(haystack), NormalizeText(needle))
}
