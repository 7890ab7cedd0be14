package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Link is an anchor found on a page
type Link struct {
	Href  string
	Label string // Normalized anchor text
}

// ExtractLinks returns every anchor with a non-empty href in document order
func ExtractLinks(doc *goquery.Document) []Link {
	return linksIn(doc.Selection)
}

// ExtractLinksFromHTML parses fragment and returns its links.
// Unparseable input yields no links.
func ExtractLinksFromHTML(fragment string) []Link {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil
	}
	return ExtractLinks(doc)
}

func linksIn(sel *goquery.Selection) []Link {
	var links []Link
	sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" {
			return
		}
		links = append(links, Link{Href: href, Label: anchorLabel(a)})
	})
	return links
}

func anchorLabel(a *goquery.Selection) string {
	if len(a.Nodes) == 0 {
		return ""
	}
	return nodeText(a.Nodes[0])
}
