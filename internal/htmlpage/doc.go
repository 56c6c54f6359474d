// Package htmlpage is a page.Page driver for server-rendered applications.
//
// It fetches documents over HTTP with a per-session cookie jar, parses them
// with goquery and emulates the user-visible parts of a browser that need
// no JavaScript: links, form submission, text inputs, checkboxes and native
// selects. Client-rendered applications need the browser package instead.
//
// Visibility is computed statically: an element is hidden when it or an
// ancestor carries the hidden attribute, an inline display:none or
// visibility:hidden style, or is a non-rendered element such as <script>
// or <input type=hidden>.
package htmlpage
