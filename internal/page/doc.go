// Package page defines the contract between the scenario engine and the
// drivers that talk to a live web application.
//
// A Page is one isolated session (one browser profile, one cookie jar). The
// engine never touches a driver directly: it resolves Targets through Query,
// acts on the returned Elements and inspects URL, Requests and Snapshot when
// evaluating conditions.
//
// Two drivers implement Page:
//   - internal/browser: headless Chrome over the DevTools protocol (chromedp)
//   - internal/htmlpage: plain HTTP plus goquery for server-rendered pages
//
// internal/testutil provides an in-memory fake for unit tests.
package page
