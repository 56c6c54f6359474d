package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/roach88/uirun/internal/page"
)

// Options configures the Chrome process of each session.
type Options struct {
	// Headless runs Chrome without a window.
	Headless bool

	// ExecPath is the Chrome binary. Empty means search the usual locations.
	ExecPath string

	// Width and Height set the window size. Zero means 1280x800.
	Width  int
	Height int

	// NoSandbox disables the Chrome sandbox, required in most containers.
	NoSandbox bool
}

const (
	defaultWidth  = 1280
	defaultHeight = 800
)

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = defaultWidth
	}
	if o.Height <= 0 {
		o.Height = defaultHeight
	}
	return o
}

func (o Options) allocatorOptions() []chromedp.ExecAllocatorOption {
	o = o.withDefaults()
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", o.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(o.Width, o.Height),
	)
	if o.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	return opts
}

// NewFactory returns a page.Factory that starts a Chrome process per
// session.
func NewFactory(opts Options, logger *slog.Logger) page.Factory {
	return func(ctx context.Context) (page.Page, error) {
		return Open(ctx, opts, logger)
	}
}

// Session is a page.Page backed by one Chrome tab.
type Session struct {
	ctx         context.Context // chromedp tab context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	logger      *slog.Logger

	mu       sync.Mutex
	requests []page.Request
	closed   bool
}

// Open starts Chrome and returns a session on a blank tab. ctx bounds the
// start-up only; the session lives until Close. A nil logger discards.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts.allocatorOptions()...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Debug("chrome devtools error", "message", fmt.Sprintf(format, args...))
		}),
	)

	s := &Session{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		logger:      logger,
		requests:    []page.Request{},
	}
	chromedp.ListenTarget(tabCtx, s.onEvent)

	// The first Run launches the browser.
	err := s.run(ctx, cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorDeny))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	logger.Debug("chrome session started")
	return s, nil
}

func (s *Session) onEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Request == nil {
			return
		}
		s.mu.Lock()
		s.requests = append(s.requests, page.Request{Method: e.Request.Method, URL: e.Request.URL})
		s.mu.Unlock()
	}
}

// run executes actions on the tab, bounded by both the tab and ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if s.isClosed() {
		return errSessionClosed
	}

	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

var errSessionClosed = errors.New("browser session closed")

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// URL returns the tab's current location.
func (s *Session) URL(ctx context.Context) (string, error) {
	var u string
	if err := s.run(ctx, chromedp.Location(&u)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return u, nil
}

// Query resolves t in two passes: the selector in the page, the text
// filter in Go, then closest, find and visibility in the page.
func (s *Session) Query(ctx context.Context, t page.Target) ([]page.Element, error) {
	expr, err := call("select", t.Selector)
	if err != nil {
		return nil, err
	}
	var matches []page.Element
	if err := s.run(ctx, chromedp.Evaluate(expr, &matches)); err != nil {
		return nil, fmt.Errorf("query %s: %w", t.Selector, err)
	}

	handles := make([]string, 0, len(matches))
	for _, el := range matches {
		if t.MatchText(el.Text) {
			handles = append(handles, el.Handle)
		}
	}
	if len(handles) == 0 {
		return []page.Element{}, nil
	}

	if expr, err = call("refine", handles, t.Closest, t.Find, t.Visible); err != nil {
		return nil, err
	}
	var refined []page.Element
	if err := s.run(ctx, chromedp.Evaluate(expr, &refined)); err != nil {
		return nil, fmt.Errorf("query %s: %w", t, err)
	}
	if refined == nil {
		refined = []page.Element{}
	}
	return refined, nil
}

// Click clicks el with a real mouse event, or dispatches a DOM click when
// opts.Force is set.
func (s *Session) Click(ctx context.Context, el page.Element, opts page.ClickOptions) error {
	if opts.Force {
		return s.evalAction(ctx, "click", el.Handle)
	}
	if !el.Visible {
		return fmt.Errorf("click %s: element is not visible", el)
	}
	if err := s.run(ctx, chromedp.Click(handlePath(el.Handle), chromedp.ByJSPath)); err != nil {
		return fmt.Errorf("click %s: %w", el, err)
	}
	return nil
}

// Type sends key events to el, clearing its value first when clear is set.
func (s *Session) Type(ctx context.Context, el page.Element, text string, clear bool) error {
	if !el.Visible {
		return fmt.Errorf("type into %s: element is not visible", el)
	}
	sel := handlePath(el.Handle)
	var actions chromedp.Tasks
	if clear {
		actions = append(actions, chromedp.SetValue(sel, "", chromedp.ByJSPath))
	}
	actions = append(actions, chromedp.SendKeys(sel, text, chromedp.ByJSPath))
	if err := s.run(ctx, actions); err != nil {
		return fmt.Errorf("type into %s: %w", el, err)
	}
	return nil
}

// Select picks an option of a native <select> and fires input and change.
func (s *Session) Select(ctx context.Context, el page.Element, option string) error {
	return s.evalAction(ctx, "selectOption", el.Handle, option)
}

// evalAction runs a page-side action that returns an error message, or
// the empty string on success.
func (s *Session) evalAction(ctx context.Context, fn string, args ...any) error {
	expr, err := call(fn, args...)
	if err != nil {
		return err
	}
	var msg string
	if err := s.run(ctx, chromedp.Evaluate(expr, &msg)); err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}
	if msg != "" {
		return fmt.Errorf("%s: %s", fn, msg)
	}
	return nil
}

// Requests returns the requests issued by the tab so far.
func (s *Session) Requests(ctx context.Context) ([]page.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errSessionClosed
	}
	out := make([]page.Request, len(s.requests))
	copy(out, s.requests)
	return out, nil
}

// Snapshot captures location, title and document markup.
func (s *Session) Snapshot(ctx context.Context) (page.Snapshot, error) {
	var snap page.Snapshot
	err := s.run(ctx,
		chromedp.Location(&snap.URL),
		chromedp.Title(&snap.Title),
		chromedp.OuterHTML("html", &snap.HTML, chromedp.ByQuery),
	)
	if err != nil {
		return page.Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	return snap, nil
}

// Close shuts down the tab and its Chrome process. Calling Close twice is
// a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := chromedp.Cancel(s.ctx)
	s.cancelTab()
	s.cancelAlloc()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, chromedp.ErrInvalidContext) {
		return fmt.Errorf("close chrome: %w", err)
	}
	return nil
}
