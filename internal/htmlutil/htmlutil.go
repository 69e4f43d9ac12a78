// Package htmlutil holds the small x/net/html helpers shared by the
// HTML-listing vendor adapters: node walking, attribute lookup, and
// whitespace-normalized text extraction.
package htmlutil

import (
	"strings"

	"golang.org/x/net/html"
)

// Parse parses an HTML document. Unlike XML parsers it never fails on
// real-world tag soup; an error means the reader itself failed.
func Parse(body string) (*html.Node, error) {
	return html.Parse(strings.NewReader(body))
}

// Attr returns the value of the named attribute, or "".
func Attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// HasClass reports whether the node's class list contains name.
func HasClass(n *html.Node, name string) bool {
	for _, c := range strings.Fields(Attr(n, "class")) {
		if c == name {
			return true
		}
	}
	return false
}

// Walk visits n and all descendants in document order. The visitor
// returns false to stop the walk.
func Walk(n *html.Node, visit func(*html.Node) bool) bool {
	if !visit(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !Walk(c, visit) {
			return false
		}
	}
	return true
}

// FindAll returns every element node matching the predicate.
func FindAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	Walk(n, func(c *html.Node) bool {
		if c.Type == html.ElementNode && match(c) {
			out = append(out, c)
		}
		return true
	})
	return out
}

// FindFirst returns the first element node matching the predicate.
func FindFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	var found *html.Node
	Walk(n, func(c *html.Node) bool {
		if c.Type == html.ElementNode && match(c) {
			found = c
			return false
		}
		return true
	})
	return found
}

// ByTag matches elements with the given tag name.
func ByTag(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Data == tag }
}

// ByTagClass matches elements with the given tag carrying the class.
func ByTagClass(tag, class string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Data == tag && HasClass(n, class) }
}

// ByID matches the element with the given id.
func ByID(id string) func(*html.Node) bool {
	return func(n *html.Node) bool { return Attr(n, "id") == id }
}

// Text returns the concatenated text content of n with runs of
// whitespace collapsed to single spaces.
func Text(n *html.Node) string {
	var b strings.Builder
	Walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
		return true
	})
	return strings.Join(strings.Fields(b.String()), " ")
}

// Links returns every (href, anchor text) pair under n.
func Links(n *html.Node) [][2]string {
	var out [][2]string
	for _, a := range FindAll(n, ByTag("a")) {
		href := Attr(a, "href")
		if href == "" {
			continue
		}
		out = append(out, [2]string{href, Text(a)})
	}
	return out
}

// AbsoluteURL resolves href against base when href is relative. Both
// malformed inputs fall through to returning href unchanged.
func AbsoluteURL(base, href string) string {
	if href == "" || strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base = strings.TrimSuffix(base, "/")
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if strings.HasPrefix(href, "/") {
		// Keep scheme+host of base only.
		idx := strings.Index(base, "://")
		if idx < 0 {
			return href
		}
		rest := base[idx+3:]
		if slash := strings.Index(rest, "/"); slash >= 0 {
			base = base[:idx+3+slash]
		}
		return base + href
	}
	return base + "/" + href
}
