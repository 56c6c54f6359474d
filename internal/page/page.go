package page

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Page is a live session against the application under test.
//
// Implementations must be safe for use by a single goroutine at a time; the
// runner never shares a Page between scenarios.
type Page interface {
	// Navigate loads an absolute URL and returns once the document is loaded.
	Navigate(ctx context.Context, url string) error

	// URL returns the current document URL.
	URL(ctx context.Context) (string, error)

	// Query returns every element currently matching the target, in document
	// order. The Index field of the target is NOT applied by drivers; callers
	// pick the element. An empty slice means no match.
	Query(ctx context.Context, t Target) ([]Element, error)

	// Click clicks an element previously returned by Query.
	Click(ctx context.Context, el Element, opts ClickOptions) error

	// Type sends text to an input element. When clear is true any existing
	// value is removed first; otherwise text is appended.
	Type(ctx context.Context, el Element, text string, clear bool) error

	// Select chooses the option of a <select> whose visible text or value
	// equals option.
	Select(ctx context.Context, el Element, option string) error

	// Requests returns every outbound request observed since the session
	// opened, oldest first.
	Requests(ctx context.Context) ([]Request, error)

	// Snapshot captures the current page state for diagnostics.
	Snapshot(ctx context.Context) (Snapshot, error)

	// Close releases the session.
	Close() error
}

// Factory opens a new isolated Page session.
type Factory func(ctx context.Context) (Page, error)

// ClickOptions tunes a click.
type ClickOptions struct {
	// Force dispatches the click without waiting for the element to be
	// visible or interactable.
	Force bool
}

// Element is a handle to a DOM element returned by Query.
type Element struct {
	// Handle identifies the element within its session. Opaque to callers.
	Handle string `json:"handle"`

	Tag     string `json:"tag"`
	ID      string `json:"id,omitempty"`
	Text    string `json:"text,omitempty"`
	Visible bool   `json:"visible"`
}

// String renders the element for logs and diagnostics.
func (e Element) String() string {
	var b strings.Builder
	b.WriteString(e.Tag)
	if e.ID != "" {
		b.WriteString("#")
		b.WriteString(e.ID)
	}
	if e.Text != "" {
		fmt.Fprintf(&b, " %q", truncate(e.Text, 40))
	}
	return b.String()
}

// Request is an outbound HTTP request observed by the driver.
type Request struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// Snapshot is the last known page state attached to failures.
type Snapshot struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	// HTML is the document markup, truncated to MaxSnapshotHTML bytes.
	HTML string `json:"html,omitempty"`
}

// MaxSnapshotHTML bounds the markup kept in a Snapshot.
const MaxSnapshotHTML = 16 * 1024

// TruncateHTML cuts markup to MaxSnapshotHTML bytes.
func TruncateHTML(html string) string {
	return truncate(html, MaxSnapshotHTML)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
