package tools

import (
	"bytes"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"

	"github.com/codefionn/taskpilot/internal/logger"
)

var htmlTagPattern = regexp.MustCompile(`<([a-zA-Z][a-zA-Z0-9]*)\b[^>]*>`)

var multipleNewlines = regexp.MustCompile(`\n{3,}`)

// Threshold for considering text as HTML (number of HTML tags)
const htmlTagThreshold = 3

// ConvertIfHTML detects whether input is HTML and converts it to markdown if
// so. Returns the resulting text and whether a conversion happened.
func ConvertIfHTML(input string) (string, bool) {
	if !isHTML(input) {
		return input, false
	}

	cleaned, err := stripNonContent(input)
	if err != nil {
		logger.Warn("Failed to preprocess HTML: %v, using original", err)
		cleaned = input
	}

	markdown, err := htmltomarkdown.ConvertString(cleaned)
	if err != nil {
		logger.Warn("Failed to convert HTML to markdown: %v", err)
		return input, false
	}

	markdown = strings.TrimSpace(multipleNewlines.ReplaceAllString(markdown, "\n\n"))
	logger.Debug("Converted HTML to markdown (%d -> %d bytes)", len(input), len(markdown))
	return markdown, true
}

func isHTML(input string) bool {
	trimmed := strings.TrimSpace(input)
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "<!doctype") || strings.HasPrefix(lower, "<html") {
		return true
	}
	return len(htmlTagPattern.FindAllString(input, -1)) >= htmlTagThreshold
}

// stripNonContent narrows the document to its main content node and removes
// script, style and other non-content elements before markdown conversion.
func stripNonContent(input string) (string, error) {
	doc, err := html.Parse(strings.NewReader(input))
	if err != nil {
		return input, err
	}

	content := findMainContent(doc)
	removeUnwantedNodes(content)

	var buf bytes.Buffer
	if err := html.Render(&buf, content); err != nil {
		return input, err
	}
	return buf.String(), nil
}

// findMainContent locates the node most likely to hold the page's main
// content: <main>, then <article>, then an element whose class or id looks
// content-bearing, then <body>. Falls back to the whole document.
func findMainContent(doc *html.Node) *html.Node {
	if doc.Type != html.DocumentNode {
		return doc
	}

	var mainNode, articleNode, identifiedNode, bodyNode *html.Node

	var search func(n *html.Node)
	search = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch strings.ToLower(n.Data) {
			case "main":
				if mainNode == nil {
					mainNode = n
				}
			case "article":
				if articleNode == nil {
					articleNode = n
				}
			case "body":
				if bodyNode == nil {
					bodyNode = n
				}
			default:
				if identifiedNode == nil && hasContentIdentifier(n) {
					identifiedNode = n
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			search(c)
		}
	}
	search(doc)

	switch {
	case mainNode != nil:
		return mainNode
	case articleNode != nil:
		return articleNode
	case identifiedNode != nil:
		return identifiedNode
	case bodyNode != nil:
		return bodyNode
	}
	return doc
}

var contentIdentifiers = []string{
	"content", "main", "article", "post", "entry", "story",
	"text", "body-content", "page-content", "main-content",
}

// hasContentIdentifier reports whether a node's class or id attribute
// suggests it carries the main content.
func hasContentIdentifier(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}

	for _, attr := range n.Attr {
		switch strings.ToLower(attr.Key) {
		case "id":
			val := strings.ToLower(attr.Val)
			for _, id := range contentIdentifiers {
				if strings.Contains(val, id) {
					return true
				}
			}
		case "class":
			for _, class := range strings.Fields(attr.Val) {
				lower := strings.ToLower(class)
				for _, id := range contentIdentifiers {
					if strings.Contains(lower, id) {
						return true
					}
				}
			}
		}
	}
	return false
}

func removeUnwantedNodes(n *html.Node) {
	child := n.FirstChild
	for child != nil {
		next := child.NextSibling
		removeUnwantedNodes(child)
		child = next
	}

	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "script", "style", "noscript", "iframe", "svg",
			"nav", "header", "footer", "aside", "head", "meta", "link":
			if n.Parent != nil {
				n.Parent.RemoveChild(n)
			}
		}
	}
}
