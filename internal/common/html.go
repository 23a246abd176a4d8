package common

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// blockTags are the only elements whose text survives CleanHTML. Raw text
// outside these tags is dropped, matching the renderer this feeds.
var blockTags = map[string]bool{
	"p": true, "div": true, "li": true, "span": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// CleanHTML converts an HTML fragment into readable text: one line per
// block element in document order, list items prefixed with a bullet and
// headings wrapped in bold markers.
func CleanHTML(input string) string {
	if input == "" {
		return ""
	}

	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(input), ctx)
	if err != nil {
		return ""
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && blockTags[n.Data] {
			text := ExtractText(n)
			if text != "" {
				switch {
				case n.Data == "li":
					b.WriteString("• " + text + "\n")
				case strings.HasPrefix(n.Data, "h"):
					b.WriteString("\n**" + text + "**\n")
				default:
					b.WriteString(text + "\n")
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}

	cleaned := strings.Join(lines, "\n")
	cleaned = strings.ReplaceAll(cleaned, "\n\n\n", "\n\n")
	return strings.TrimSpace(cleaned)
}

// ExtractText gets all text content from an HTML node and its children
func ExtractText(node *html.Node) string {
	var text strings.Builder

	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}

	traverse(node)
	return strings.TrimSpace(text.String())
}
