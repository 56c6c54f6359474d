// Package scenario defines declarative UI scenarios and loads them from disk.
//
// # File Format
//
// A scenario file holds reusable step blocks and a list of scenarios:
//
//	blocks:
//	  login:
//	    - action: type
//	      target: {selector: "#username"}
//	      value: "${param.username}"
//	    - action: click
//	      target: {selector: "button", text: "Log in"}
//	      expect: {kind: url-contains, value: /projects}
//	scenarios:
//	  - name: AT-03 administrator sees create affordance
//	    fixtures: [admin]
//	    steps:
//	      - action: navigate
//	        value: /
//	      - use: login
//	        with: {username: "${admin.username}"}
//	      - action: wait-for
//	        expect:
//	          kind: element-exists
//	          target: {selector: ".MuiAvatar-root .MuiSvgIcon-root"}
//
// Files may be YAML, JSON or CUE. Decoding is strict: unknown fields are
// rejected so typos surface at load time.
//
// # Targets
//
// A target selects elements with a CSS selector, then optionally keeps
// those whose normalized text contains text (or equals it with exact: true),
// moves to the closest ancestor, descends with find, drops hidden elements
// and picks one by index.
//
// # Actions
//
//   - navigate: load Value (relative URLs resolve against the base URL)
//   - type: send Value to Target (append, or replace with clear: true)
//   - click: click Target (force: true skips visibility checks)
//   - select: choose the option of Target whose text or value is Value
//   - wait-for: perform nothing, wait for Expect (or for Target to exist)
//
// # Conditions
//
//   - element-exists, element-visible, element-absent: on Target
//   - url-contains: current URL contains Value
//   - request-made: a request sent after the step began has a URL matching
//     the regexp Value; since: session searches every request of the page
//
// # Placeholders
//
// "${param.X}" is replaced when a block is expanded by its "with" argument X.
// "${name.key}" reads key from fixture name when the scenario is bound at
// run time. A scenario's fixture set is the union of its fixtures list and
// every placeholder namespace it references.
package scenario
