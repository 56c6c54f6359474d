package htmlpage

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// submit sends form with the values of its controls, as a browser does
// when submitter is clicked. Caller holds p.mu.
func (p *Page) submit(ctx context.Context, form, submitter *goquery.Selection) error {
	method := strings.ToUpper(form.AttrOr("method", http.MethodGet))
	if method != http.MethodPost {
		method = http.MethodGet
	}

	action := submitter.AttrOr("formaction", form.AttrOr("action", ""))
	target, err := p.url.Parse(action)
	if err != nil {
		return err
	}

	vals := p.formValues(form)
	if name := submitter.AttrOr("name", ""); name != "" {
		vals.Add(name, submitter.AttrOr("value", ""))
	}

	if method == http.MethodGet {
		t := *target
		t.RawQuery = vals.Encode()
		return p.fetch(ctx, method, &t, nil)
	}
	return p.fetch(ctx, method, target, vals)
}

// formValues collects the successful controls of form.
func (p *Page) formValues(form *goquery.Selection) url.Values {
	vals := url.Values{}
	form.Find("input, textarea, select").Each(func(_ int, s *goquery.Selection) {
		name := s.AttrOr("name", "")
		if name == "" {
			return
		}
		if _, disabled := s.Attr("disabled"); disabled {
			return
		}
		switch {
		case isSubmitter(s), inputType(s) == "reset", inputType(s) == "file", inputType(s) == "button":
		case isCheckable(s):
			if p.isChecked(s) {
				vals.Add(name, s.AttrOr("value", "on"))
			}
		default:
			vals.Add(name, p.value(s))
		}
	})
	return vals
}

// value is the current value of a text control or select.
func (p *Page) value(s *goquery.Selection) string {
	n := s.Nodes[0]
	if v, ok := p.values[n]; ok {
		return v
	}
	switch n.Data {
	case "textarea":
		return s.Text()
	case "select":
		opts := s.Find("option")
		selected := opts.FilterFunction(func(_ int, o *goquery.Selection) bool {
			_, ok := o.Attr("selected")
			return ok
		})
		if selected.Length() > 0 {
			return optionValue(selected.First())
		}
		if opts.Length() > 0 {
			return optionValue(opts.First())
		}
		return ""
	default:
		return s.AttrOr("value", "")
	}
}

func optionValue(o *goquery.Selection) string {
	if v, ok := o.Attr("value"); ok {
		return v
	}
	return strings.TrimSpace(o.Text())
}

func (p *Page) isChecked(s *goquery.Selection) bool {
	if c, ok := p.checked[s.Nodes[0]]; ok {
		return c
	}
	_, ok := s.Attr("checked")
	return ok
}

// uncheckGroup clears every radio sharing s's name in the same form.
func (p *Page) uncheckGroup(s *goquery.Selection) {
	name := s.AttrOr("name", "")
	if name == "" {
		return
	}
	scope := s.Closest("form")
	if scope.Length() == 0 {
		scope = p.doc.Selection
	}
	scope.Find(`input[type="radio"]`).Each(func(_ int, r *goquery.Selection) {
		if r.AttrOr("name", "") == name {
			p.checked[r.Nodes[0]] = false
		}
	})
}

func inputType(s *goquery.Selection) string {
	if goquery.NodeName(s) != "input" {
		return ""
	}
	return strings.ToLower(s.AttrOr("type", "text"))
}

func isSubmitter(s *goquery.Selection) bool {
	switch goquery.NodeName(s) {
	case "button":
		t := strings.ToLower(s.AttrOr("type", "submit"))
		return t == "submit"
	case "input":
		t := inputType(s)
		return t == "submit" || t == "image"
	}
	return false
}

func isCheckable(s *goquery.Selection) bool {
	t := inputType(s)
	return t == "checkbox" || t == "radio"
}

func isTextInput(s *goquery.Selection) bool {
	switch goquery.NodeName(s) {
	case "textarea":
		return true
	case "input":
		switch inputType(s) {
		case "checkbox", "radio", "submit", "image", "button", "reset", "file", "hidden":
			return false
		}
		return true
	}
	return false
}

// nonRendered elements are never visible.
var nonRendered = map[string]bool{
	"head": true, "script": true, "style": true, "template": true,
	"noscript": true, "meta": true, "link": true, "title": true,
}

// visible reports whether n renders, judged from markup alone.
func visible(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		if nonRendered[cur.Data] {
			return false
		}
		if cur.Data == "input" && strings.EqualFold(attr(cur, "type"), "hidden") {
			return false
		}
		if hasAttr(cur, "hidden") {
			return false
		}
		style := strings.ToLower(strings.ReplaceAll(attr(cur, "style"), " ", ""))
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
	}
	return true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func sortByOrder(nodes []*html.Node, order map[*html.Node]int) {
	slices.SortFunc(nodes, func(a, b *html.Node) int {
		return order[a] - order[b]
	})
}
