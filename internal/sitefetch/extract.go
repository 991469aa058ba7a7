package sitefetch

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

const maxPageChars = 5000

var skippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"nav":      true,
	"footer":   true,
	"noscript": true,
}

// extractPage parses an HTML document and returns its title and readable text.
// ok is false when the document has no main, article or body element.
func extractPage(r io.Reader) (title, text string, ok bool) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", false
	}

	if n := findElement(doc, "title"); n != nil {
		title = strings.TrimSpace(textOf(n, " "))
	}

	root := findElement(doc, "main")
	if root == nil {
		root = findElement(doc, "article")
	}
	if root == nil {
		root = findElement(doc, "body")
	}
	if root == nil {
		return title, "", false
	}

	text = textOf(root, "\n")
	if r := []rune(text); len(r) > maxPageChars {
		text = string(r[:maxPageChars])
	}
	return title, text, true
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode {
		if skippedTags[n.Data] {
			return nil
		}
		if n.Data == tag {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// textOf joins the non-empty trimmed text nodes under n.
func textOf(n *html.Node, sep string) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && skippedTags[node.Data] {
			return
		}
		if node.Type == html.TextNode {
			if s := strings.TrimSpace(node.Data); s != "" {
				parts = append(parts, s)
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, sep)
}
