package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// parse parses markup into a DOM tree.
//
// Design decision: We use golang.org/x/net/html rather than regex because:
//  1. It correctly handles the malformed HTML the portal serves
//  2. Provides a proper DOM-like structure for class/attribute lookups
//  3. More maintainable than complex regex patterns
func parse(markup string) (*html.Node, error) {
	return html.Parse(strings.NewReader(markup))
}

// attr returns the value of the named attribute, or "" if absent.
func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// hasClass reports whether the node carries the given CSS class.
func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// isElement reports whether n is an element node with the given tag.
// An empty tag matches any element.
func isElement(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && (tag == "" || n.Data == tag)
}

// findFirst walks the tree depth-first and returns the first node matching
// the predicate, or nil.
func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

// findAll walks the tree depth-first and collects every node matching the
// predicate, in document order.
func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var nodes []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if match(n) {
			nodes = append(nodes, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return nodes
}

// directChildren returns the immediate element children of n with the given
// tag. Used where nesting matters, such as the profile_tree sections.
func directChildren(n *html.Node, tag string) []*html.Node {
	var children []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if isElement(c, tag) {
			children = append(children, c)
		}
	}
	return children
}

// textContent concatenates all text nodes under n.
// Callers normalize the result; raw text keeps the template's whitespace.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
