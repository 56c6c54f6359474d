package htmlpage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/roach88/uirun/internal/page"
)

// maxBody bounds a fetched document.
const maxBody = 8 << 20

// ErrClosed is returned by every method after Close.
var ErrClosed = errors.New("html page closed")

// Options configures sessions.
type Options struct {
	// Transport performs requests. Defaults to http.DefaultTransport.
	Transport http.RoundTripper

	// UserAgent is sent with every request when set.
	UserAgent string

	Logger *slog.Logger
}

// NewFactory returns a page.Factory opening independent sessions, each with
// its own cookie jar.
func NewFactory(opts Options) page.Factory {
	return func(ctx context.Context) (page.Page, error) {
		return Open(opts)
	}
}

// Page is a page.Page over plain HTTP.
type Page struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger

	mu       sync.Mutex
	gen      int
	url      *url.URL
	doc      *goquery.Document
	order    map[*html.Node]int
	nodes    []*html.Node
	values   map[*html.Node]string
	checked  map[*html.Node]bool
	requests []page.Request
	closed   bool
}

// Open creates a session at about:blank.
func Open(opts Options) (*Page, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	p := &Page{
		userAgent: opts.UserAgent,
		logger:    logger,
		url:       &url.URL{Scheme: "about", Opaque: "blank"},
		requests:  []page.Request{},
	}
	p.client = &http.Client{
		Transport: opts.Transport,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			p.record(req)
			return nil
		},
	}
	return p, nil
}

// record appends a request. Caller holds p.mu; redirects are recorded
// from inside fetch.
func (p *Page) record(req *http.Request) {
	p.requests = append(p.requests, page.Request{Method: req.Method, URL: req.URL.String()})
}

// Navigate loads rawURL with GET.
func (p *Page) Navigate(ctx context.Context, rawURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	return p.fetch(ctx, http.MethodGet, u, nil)
}

// fetch loads a document and makes it current. Caller holds p.mu.
func (p *Page) fetch(ctx context.Context, method string, u *url.URL, form url.Values) error {
	var body io.Reader
	if form != nil && method == http.MethodPost {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	p.record(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("parse %s: %w", resp.Request.URL, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		p.logger.Warn("page loaded with error status", "url", resp.Request.URL.String(), "status", resp.StatusCode)
	}

	p.load(resp.Request.URL, doc)
	return nil
}

// load replaces the current document.
func (p *Page) load(u *url.URL, doc *goquery.Document) {
	p.gen++
	p.url = u
	p.doc = doc
	p.values = make(map[*html.Node]string)
	p.checked = make(map[*html.Node]bool)
	p.order = make(map[*html.Node]int)
	p.nodes = p.nodes[:0]

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			p.order[n] = len(p.nodes)
			p.nodes = append(p.nodes, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
}

// URL returns the current document URL.
func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}
	return p.url.String(), nil
}

// Query resolves t against the current document.
func (p *Page) Query(ctx context.Context, t page.Target) ([]page.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	sel, err := compile(t.Selector)
	if err != nil {
		return nil, err
	}
	if p.doc == nil {
		return []page.Element{}, nil
	}

	matches := p.doc.FindMatcher(sel).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return t.MatchText(s.Text())
	})

	if t.Closest != "" {
		closest, err := compile(t.Closest)
		if err != nil {
			return nil, err
		}
		matches = matches.ClosestMatcher(closest)
	}
	if t.Find != "" {
		find, err := compile(t.Find)
		if err != nil {
			return nil, err
		}
		matches = matches.FindMatcher(find)
	}

	nodes := p.inDocumentOrder(matches.Nodes)
	out := make([]page.Element, 0, len(nodes))
	for _, n := range nodes {
		el := p.describe(n)
		if t.Visible && !el.Visible {
			continue
		}
		out = append(out, el)
	}
	return out, nil
}

func compile(selector string) (cascadia.Selector, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	return sel, nil
}

// inDocumentOrder dedupes nodes and sorts them by position.
func (p *Page) inDocumentOrder(nodes []*html.Node) []*html.Node {
	seen := make(map[*html.Node]bool, len(nodes))
	out := make([]*html.Node, 0, len(nodes))
	for _, n := range nodes {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sortByOrder(out, p.order)
	return out
}

func (p *Page) describe(n *html.Node) page.Element {
	s := p.doc.FindNodes(n)
	return page.Element{
		Handle:  fmt.Sprintf("%d.%d", p.gen, p.order[n]),
		Tag:     n.Data,
		ID:      s.AttrOr("id", ""),
		Text:    strings.TrimSpace(s.Text()),
		Visible: visible(n),
	}
}

// node resolves a handle from the current document.
func (p *Page) node(el page.Element) (*html.Node, error) {
	var gen, idx int
	if _, err := fmt.Sscanf(el.Handle, "%d.%d", &gen, &idx); err != nil {
		return nil, fmt.Errorf("invalid element handle %q", el.Handle)
	}
	if gen != p.gen || idx < 0 || idx >= len(p.nodes) {
		return nil, fmt.Errorf("%s is no longer attached", el)
	}
	return p.nodes[idx], nil
}

// Click follows links, submits forms and toggles checkable inputs. Other
// elements accept the click without effect.
func (p *Page) Click(ctx context.Context, el page.Element, opts page.ClickOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	n, err := p.node(el)
	if err != nil {
		return err
	}
	if !opts.Force && !visible(n) {
		return fmt.Errorf("click %s: element is not visible", el)
	}

	s := p.doc.FindNodes(n)
	switch {
	case n.Data == "a":
		href, ok := s.Attr("href")
		if !ok || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return nil
		}
		target, err := p.url.Parse(href)
		if err != nil {
			return fmt.Errorf("click %s: %w", el, err)
		}
		return p.fetch(ctx, http.MethodGet, target, nil)

	case isSubmitter(s):
		form := s.Closest("form")
		if form.Length() == 0 {
			return nil
		}
		return p.submit(ctx, form, s)

	case isCheckable(s):
		if strings.EqualFold(s.AttrOr("type", ""), "radio") {
			p.uncheckGroup(s)
		}
		p.checked[n] = !p.isChecked(s) || strings.EqualFold(s.AttrOr("type", ""), "radio")
		return nil
	}
	return nil
}

// Type edits the value of a text input or textarea.
func (p *Page) Type(ctx context.Context, el page.Element, text string, clear bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	n, err := p.node(el)
	if err != nil {
		return err
	}
	s := p.doc.FindNodes(n)
	if !isTextInput(s) {
		return fmt.Errorf("type into %s: element does not accept text", el)
	}
	if !visible(n) {
		return fmt.Errorf("type into %s: element is not visible", el)
	}

	if clear {
		p.values[n] = text
	} else {
		p.values[n] = p.value(s) + text
	}
	return nil
}

// Select chooses an option of a <select> by value or visible text.
func (p *Page) Select(ctx context.Context, el page.Element, option string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	n, err := p.node(el)
	if err != nil {
		return err
	}
	if n.Data != "select" {
		return fmt.Errorf("select on %s: element is <%s>, not <select>", el, n.Data)
	}

	var chosen string
	found := false
	p.doc.FindNodes(n).Find("option").EachWithBreak(func(_ int, o *goquery.Selection) bool {
		v := optionValue(o)
		if v == option || strings.TrimSpace(o.Text()) == option {
			chosen, found = v, true
			return false
		}
		return true
	})
	if !found {
		return fmt.Errorf("select on %s: no option %q", el, option)
	}
	p.values[n] = chosen
	return nil
}

// Requests returns every request issued so far, redirects included.
func (p *Page) Requests(ctx context.Context) ([]page.Request, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	out := make([]page.Request, len(p.requests))
	copy(out, p.requests)
	return out, nil
}

// Snapshot returns the current URL, title and markup as served.
func (p *Page) Snapshot(ctx context.Context) (page.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return page.Snapshot{}, ErrClosed
	}
	snap := page.Snapshot{URL: p.url.String()}
	if p.doc == nil {
		return snap, nil
	}
	snap.Title = strings.TrimSpace(p.doc.Find("title").First().Text())
	markup, err := p.doc.Html()
	if err != nil {
		return page.Snapshot{}, fmt.Errorf("render document: %w", err)
	}
	snap.HTML = markup
	return snap, nil
}

// Close releases the session's idle connections.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.client.CloseIdleConnections()
	return nil
}
