package browser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// maxElementText bounds page.Element.Text for refined elements.
const maxElementText = 200

// runtimeJS installs window.__uirun once per document.
//
// Elements are tracked in a registry keyed by handle instead of being
// marked in the DOM, so queries leave the page untouched. Handles carry a
// per-document token; a handle from a previous document resolves to null.
var runtimeJS = strings.NewReplacer("$MAXTEXT", fmt.Sprint(maxElementText)).Replace(`
window.__uirun = window.__uirun || (function () {
  const token = Math.random().toString(36).slice(2, 8);
  let seq = 0;
  const ids = new WeakMap();
  const refs = new Map();

  function handle(el) {
    let h = ids.get(el);
    if (!h) {
      h = token + "-" + (++seq);
      ids.set(el, h);
      refs.set(h, new WeakRef(el));
    }
    return h;
  }

  function node(h) {
    const ref = refs.get(h);
    const el = ref && ref.deref();
    if (!el || !el.isConnected) return null;
    return el;
  }

  function visible(el) {
    const style = window.getComputedStyle(el);
    if (style.display === "none" || style.visibility === "hidden") return false;
    const r = el.getBoundingClientRect();
    return r.width > 0 && r.height > 0;
  }

  function describe(el, full) {
    let text = (el.innerText || el.textContent || "").trim();
    if (!full && text.length > $MAXTEXT) text = text.slice(0, $MAXTEXT);
    return { handle: handle(el), tag: el.tagName.toLowerCase(), id: el.id || "", text: text, visible: visible(el) };
  }

  function order(els) {
    const seen = new Set();
    els = els.filter(function (e) { if (seen.has(e)) return false; seen.add(e); return true; });
    return els.sort(function (a, b) {
      if (a === b) return 0;
      return a.compareDocumentPosition(b) & Node.DOCUMENT_POSITION_FOLLOWING ? -1 : 1;
    });
  }

  return {
    node: node,

    select: function (sel) {
      return Array.from(document.querySelectorAll(sel)).map(function (e) { return describe(e, true); });
    },

    refine: function (handles, closest, find, visibleOnly) {
      let els = handles.map(node).filter(Boolean);
      if (closest) els = els.map(function (e) { return e.closest(closest); }).filter(Boolean);
      if (find) els = els.flatMap(function (e) { return Array.from(e.querySelectorAll(find)); });
      els = order(els);
      if (visibleOnly) els = els.filter(visible);
      return els.map(function (e) { return describe(e, false); });
    },

    click: function (h) {
      const el = node(h);
      if (!el) return "element is no longer attached";
      el.click();
      return "";
    },

    selectOption: function (h, option) {
      const el = node(h);
      if (!el) return "element is no longer attached";
      if (el.tagName !== "SELECT") return "element is <" + el.tagName.toLowerCase() + ">, not <select>";
      for (const o of el.options) {
        if (o.value === option || o.text.trim() === option) {
          el.value = o.value;
          el.dispatchEvent(new Event("input", { bubbles: true }));
          el.dispatchEvent(new Event("change", { bubbles: true }));
          return "";
        }
      }
      return "no option " + JSON.stringify(option);
    }
  };
})();
`)

// call builds an expression invoking fn on window.__uirun with JSON
// encoded arguments.
func call(fn string, args ...any) (string, error) {
	encoded := make([]string, len(args))
	for i, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("encode argument %d of %s: %w", i, fn, err)
		}
		encoded[i] = string(data)
	}
	return runtimeJS + "window.__uirun." + fn + "(" + strings.Join(encoded, ", ") + ");", nil
}

// handlePath is a chromedp.ByJSPath expression for an element returned by
// Query. It yields null once the element is detached or the document
// changed.
func handlePath(handle string) string {
	data, _ := json.Marshal(handle)
	return "(window.__uirun ? window.__uirun.node(" + string(data) + ") : null)"
}
