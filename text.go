package scraper

import (
	"strings"

	"golang.org/x/net/html"
)

// Normalize turns an HTML fragment into plain text. Tags are dropped,
// entities decoded and whitespace runs collapsed to a single space.
// Script and style contents are not text and are removed. Malformed markup
// never fails; the tokenizer recovers and whatever text it saw is returned.
func Normalize(fragment string) string {
	if fragment == "" {
		return ""
	}

	z := html.NewTokenizer(strings.NewReader(fragment))
	var buf strings.Builder
	skipDepth := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapseSpace(buf.String())
		case html.TextToken:
			if skipDepth == 0 {
				buf.Write(z.Text())
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			if isRawTextTag(name) {
				skipDepth++
			}
			buf.WriteByte(' ')
		case html.EndTagToken:
			name, _ := z.TagName()
			if isRawTextTag(name) && skipDepth > 0 {
				skipDepth--
			}
			buf.WriteByte(' ')
		case html.SelfClosingTagToken:
			buf.WriteByte(' ')
		}
	}
}

func isRawTextTag(name []byte) bool {
	s := string(name)
	return s == "script" || s == "style"
}

// collapseSpace trims s and collapses every whitespace run to one space
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// nodeText returns the normalized text content of an HTML node
func nodeText(n *html.Node) string {
	var buf strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
			buf.WriteByte(' ')
		}
		// Skip script and style tags
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return collapseSpace(buf.String())
}

// ownText returns the text of n's direct text children only
func ownText(n *html.Node) string {
	var buf strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			buf.WriteString(c.Data)
			buf.WriteByte(' ')
		}
	}
	return collapseSpace(buf.String())
}
