package htmldoc

import (
	"strings"

	"golang.org/x/net/html"
)

// ExtractText returns the visible text content of an HTML document with
// script/style subtrees dropped and whitespace collapsed.
func ExtractText(doc string) string {
	node, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		// Fall back to the raw input; word counts degrade gracefully.
		return strings.Join(strings.Fields(doc), " ")
	}
	var b strings.Builder
	collectText(node, &b)
	return strings.Join(strings.Fields(b.String()), " ")
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

// CountWords counts whitespace-separated words in the visible text of doc.
func CountWords(doc string) int {
	return len(strings.Fields(ExtractText(doc)))
}

// ExtractTitle returns the first <title> text, or failing that the first
// h1..h6 heading text. Empty string when neither exists.
func ExtractTitle(doc string) string {
	node, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return ""
	}
	if t := findElementText(node, isTitleElement); t != "" {
		return t
	}
	return findElementText(node, isHeadingElement)
}

// ExtractMetaAuthor returns the content of the first
// <meta name="author"|"dc.creator"> tag, if any.
func ExtractMetaAuthor(doc string) string {
	node, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return ""
	}
	var author string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if author != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "meta" {
			var name, content string
			for _, a := range n.Attr {
				switch strings.ToLower(a.Key) {
				case "name":
					name = strings.ToLower(a.Val)
				case "content":
					content = a.Val
				}
			}
			if content != "" && (name == "author" || name == "dc.creator") {
				author = strings.TrimSpace(content)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return author
}

func isTitleElement(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Data == "title"
}

func isHeadingElement(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.Data {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}

func findElementText(n *html.Node, match func(*html.Node) bool) string {
	if match(n) {
		var b strings.Builder
		collectText(n, &b)
		return strings.Join(strings.Fields(b.String()), " ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findElementText(c, match); t != "" {
			return t
		}
	}
	return ""
}
