package testutil

import (
	"context"
	"errors"
	"fmt"
	"html"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/uirun/internal/page"
)

// ErrPageClosed is returned by every FakePage method after Close.
var ErrPageClosed = errors.New("fake page closed")

// El is an element of a FakePage document.
type El struct {
	// Handle identifies the element. Required and unique.
	Handle string

	Tag  string
	ID   string
	Text string

	// Selectors are the exact selector strings this element answers to. The
	// fake does not parse CSS: a target selector matches when it equals one
	// of these.
	Selectors []string

	// Parent is the parent element's handle; empty for roots.
	Parent string

	Visible bool

	// Options are the choices of a <select>.
	Options []string

	// AfterQueries hides the element until the page has served this many
	// queries, simulating content that renders late.
	AfterQueries int
}

// FakePage is a scriptable in-memory page.Page.
//
// Tests build a document with Add, script reactions with OnClick and
// OnNavigate, and inspect the effect of actions with Value and Actions.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakePage struct {
	mu         sync.Mutex
	url        string
	title      string
	els        []*El
	values     map[string]string
	requests   []page.Request
	actions    []string
	queries    int
	closed     bool
	onClick    map[string]func(*FakePage)
	onNavigate func(p *FakePage, url string)

	// QueryErr, when set, is returned by Query.
	QueryErr error
}

// NewFakePage creates an empty page at about:blank.
func NewFakePage() *FakePage {
	return &FakePage{
		url:     "about:blank",
		values:  make(map[string]string),
		onClick: make(map[string]func(*FakePage)),
	}
}

// Add appends elements to the document.
func (p *FakePage) Add(els ...El) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range els {
		el := els[i]
		p.els = append(p.els, &el)
	}
	return p
}

// Remove deletes the element with handle and all of its descendants.
func (p *FakePage) Remove(handle string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	doomed := make(map[*El]bool)
	for _, el := range p.els {
		if el.Handle == handle || p.isDescendant(el, handle) {
			doomed[el] = true
		}
	}
	p.els = slices.DeleteFunc(p.els, func(el *El) bool { return doomed[el] })
}

// SetText replaces the text of an element.
func (p *FakePage) SetText(handle, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el := p.find(handle); el != nil {
		el.Text = text
	}
}

// SetURL changes the current URL without recording a navigation.
func (p *FakePage) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// SetTitle changes the document title reported by Snapshot.
func (p *FakePage) SetTitle(title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.title = title
}

// Record appends an outbound request.
func (p *FakePage) Record(method, url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, page.Request{Method: method, URL: url})
}

// OnClick registers a reaction to clicks on handle. The callback runs
// without the page lock held and may call any FakePage method.
func (p *FakePage) OnClick(handle string, f func(*FakePage)) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClick[handle] = f
	return p
}

// OnNavigate registers a reaction to Navigate, called after the URL changes.
func (p *FakePage) OnNavigate(f func(p *FakePage, url string)) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNavigate = f
	return p
}

// Value returns what has been typed into or selected on an element.
func (p *FakePage) Value(handle string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[handle]
}

// Actions returns the log of mutating calls: "navigate <url>",
// "click <handle>", "type <handle> <text>", "select <handle> <option>".
func (p *FakePage) Actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.actions...)
}

// Queries returns the number of Query calls served.
func (p *FakePage) Queries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queries
}

// Closed reports whether Close was called.
func (p *FakePage) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Navigate implements page.Page.
func (p *FakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPageClosed
	}
	p.url = url
	p.actions = append(p.actions, "navigate "+url)
	p.requests = append(p.requests, page.Request{Method: "GET", URL: url})
	f := p.onNavigate
	p.mu.Unlock()

	if f != nil {
		f(p, url)
	}
	return ctx.Err()
}

// URL implements page.Page.
func (p *FakePage) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrPageClosed
	}
	return p.url, nil
}

// Query implements page.Page.
func (p *FakePage) Query(_ context.Context, t page.Target) ([]page.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPageClosed
	}
	p.queries++
	if p.QueryErr != nil {
		return nil, p.QueryErr
	}

	var matched []*El
	for _, el := range p.live() {
		if slices.Contains(el.Selectors, t.Selector) && t.MatchText(p.textOf(el)) {
			matched = append(matched, el)
		}
	}
	if t.Closest != "" {
		var next []*El
		for _, el := range matched {
			for cur := el; cur != nil; cur = p.find(cur.Parent) {
				if slices.Contains(cur.Selectors, t.Closest) {
					next = appendUnique(next, cur)
					break
				}
			}
		}
		matched = next
	}
	if t.Find != "" {
		var next []*El
		for _, el := range p.live() {
			if !slices.Contains(el.Selectors, t.Find) {
				continue
			}
			for _, anc := range matched {
				if p.isDescendant(el, anc.Handle) {
					next = appendUnique(next, el)
					break
				}
			}
		}
		matched = next
	}

	out := make([]page.Element, 0, len(matched))
	for _, el := range matched {
		if t.Visible && !el.Visible {
			continue
		}
		out = append(out, page.Element{
			Handle:  el.Handle,
			Tag:     el.Tag,
			ID:      el.ID,
			Text:    p.textOf(el),
			Visible: el.Visible,
		})
	}
	return out, nil
}

// Click implements page.Page. Clicking a hidden element without Force
// fails like a real browser would.
func (p *FakePage) Click(_ context.Context, el page.Element, opts page.ClickOptions) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPageClosed
	}
	cur := p.find(el.Handle)
	if cur == nil {
		p.mu.Unlock()
		return fmt.Errorf("element %s is detached", el.Handle)
	}
	if !cur.Visible && !opts.Force {
		p.mu.Unlock()
		return fmt.Errorf("element %s is not visible", el.Handle)
	}
	p.actions = append(p.actions, "click "+el.Handle)
	f := p.onClick[el.Handle]
	p.mu.Unlock()

	if f != nil {
		f(p)
	}
	return nil
}

// Type implements page.Page.
func (p *FakePage) Type(_ context.Context, el page.Element, text string, clear bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPageClosed
	}
	if p.find(el.Handle) == nil {
		return fmt.Errorf("element %s is detached", el.Handle)
	}
	if clear {
		p.values[el.Handle] = ""
	}
	p.values[el.Handle] += text
	p.actions = append(p.actions, fmt.Sprintf("type %s %s", el.Handle, text))
	return nil
}

// Select implements page.Page.
func (p *FakePage) Select(_ context.Context, el page.Element, option string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPageClosed
	}
	cur := p.find(el.Handle)
	if cur == nil {
		return fmt.Errorf("element %s is detached", el.Handle)
	}
	if !slices.Contains(cur.Options, option) {
		return fmt.Errorf("element %s has no option %q", el.Handle, option)
	}
	p.values[el.Handle] = option
	p.actions = append(p.actions, fmt.Sprintf("select %s %s", el.Handle, option))
	return nil
}

// Requests implements page.Page.
func (p *FakePage) Requests(context.Context) ([]page.Request, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPageClosed
	}
	return append([]page.Request(nil), p.requests...), nil
}

// Snapshot implements page.Page. The HTML is a flat rendering of the live
// elements, one per line.
func (p *FakePage) Snapshot(context.Context) (page.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return page.Snapshot{}, ErrPageClosed
	}
	var b strings.Builder
	for _, el := range p.live() {
		fmt.Fprintf(&b, "<%s id=%q>%s</%s>\n", el.Tag, el.ID, html.EscapeString(el.Text), el.Tag)
	}
	return page.Snapshot{URL: p.url, Title: p.title, HTML: b.String()}, nil
}

// Close implements page.Page.
func (p *FakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// live returns the elements rendered at the current query count.
func (p *FakePage) live() []*El {
	out := make([]*El, 0, len(p.els))
	for _, el := range p.els {
		if p.queries >= el.AfterQueries {
			out = append(out, el)
		}
	}
	return out
}

func (p *FakePage) find(handle string) *El {
	if handle == "" {
		return nil
	}
	for _, el := range p.els {
		if el.Handle == handle {
			return el
		}
	}
	return nil
}

func (p *FakePage) isDescendant(el *El, ancestor string) bool {
	for cur := p.find(el.Parent); cur != nil; cur = p.find(cur.Parent) {
		if cur.Handle == ancestor {
			return true
		}
	}
	return false
}

// textOf is the element's own text followed by its descendants' text, like
// DOM textContent.
func (p *FakePage) textOf(el *El) string {
	parts := []string{el.Text}
	for _, other := range p.els {
		if p.isDescendant(other, el.Handle) {
			parts = append(parts, other.Text)
		}
	}
	return strings.Join(parts, " ")
}

func appendUnique(list []*El, el *El) []*El {
	if slices.Contains(list, el) {
		return list
	}
	return append(list, el)
}

var _ page.Page = (*FakePage)(nil)
