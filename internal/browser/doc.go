// Package browser drives a real Chrome through the DevTools protocol.
//
// Every Session owns its own Chrome process, so scenarios running in
// parallel share no cookies, storage or history. Sessions are created by
// the page.Factory returned from NewFactory.
//
// # Element Handles
//
// An injected runtime keeps a registry of the elements Query returned,
// held through WeakRefs, and the registry key becomes page.Element.Handle.
// The document itself is never written to. Actions address the element
// with a chromedp.ByJSPath lookup into the registry, so a handle survives
// DOM changes around the element but not a navigation.
//
// Text filtering runs in Go with page.Target.MatchText, so both drivers
// agree on normalization.
//
// # Network
//
// Every request the tab issues is recorded from
// network.EventRequestWillBeSent. Downloads are denied: the request is still
// observed, but nothing is written to disk.
package browser
