package scraper

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func mustDoc(t *testing.T, s string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		t.Fatalf("Failed to parse HTML: %v", err)
	}
	return doc
}

func TestPageTitle(t *testing.T) {
	tests := []struct {
		name     string
		htmlDoc  string
		expected string
	}{
		{
			name:     "truncated at first separator",
			htmlDoc:  `<html><head><title>Demo Title Sub Indo | Otakudesu | Nonton Anime</title></head></html>`,
			expected: "Demo Title Sub Indo",
		},
		{
			name:     "no separator",
			htmlDoc:  `<html><head><title>  Demo   Title </title></head></html>`,
			expected: "Demo Title",
		},
		{
			name:     "entities decoded",
			htmlDoc:  `<html><head><title>Tom &amp; Jerry | Site</title></head></html>`,
			expected: "Tom & Jerry",
		},
		{
			name:     "separator first",
			htmlDoc:  `<html><head><title>| Otakudesu</title></head></html>`,
			expected: "",
		},
		{
			name:     "missing title",
			htmlDoc:  `<html><head></head><body><h1>Heading</h1></body></html>`,
			expected: "",
		},
		{
			name:     "first title wins",
			htmlDoc:  `<html><head><title>First</title></head><body><svg><title>Second</title></svg></body></html>`,
			expected: "First",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := pageTitle(mustDoc(t, tt.htmlDoc))
			if result != tt.expected {
				t.Errorf("pageTitle() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name     string
		htmlDoc  string
		expected string
		found    bool
	}{
		{
			name:     "label element then colon text",
			htmlDoc:  `<div class="infozingle"><p><span><b>Status</b>: Completed</span></p></div>`,
			expected: "Completed",
			found:    true,
		},
		{
			name:     "label and value in one element",
			htmlDoc:  `<p><span>Status: Ongoing</span></p>`,
			expected: "Ongoing",
			found:    true,
		},
		{
			name:     "case insensitive label",
			htmlDoc:  `<p><b>STATUS</b> : On-Going</p>`,
			expected: "On-Going",
			found:    true,
		},
		{
			name:     "first labelled value wins",
			htmlDoc:  `<p><b>Status</b>: Completed</p><p><b>Status</b>: Ongoing</p>`,
			expected: "Completed",
			found:    true,
		},
		{
			name:     "label without value is ignored",
			htmlDoc:  `<p><b>Status</b><i>x</i></p>`,
			expected: "",
			found:    false,
		},
		{
			name:     "word starting with status is not a label",
			htmlDoc:  `<p>Statusnya belum jelas</p>`,
			expected: "",
			found:    false,
		},
		{
			name:     "script content ignored",
			htmlDoc:  `<script>var s = "Status: hacked";</script><p>nothing</p>`,
			expected: "",
			found:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, ok := parseStatus(mustDoc(t, tt.htmlDoc))
			if ok != tt.found || result != tt.expected {
				t.Errorf("parseStatus() = (%q, %v), want (%q, %v)", result, ok, tt.expected, tt.found)
			}
		})
	}
}

func TestMetaContent(t *testing.T) {
	doc := mustDoc(t, `<html><head>
		<meta property="OG:URL" content=" https://otakudesu.best/anime/demo/ " />
		<meta property="og:description" content="" />
		<meta property="og:description" content="A &amp; B" />
	</head></html>`)

	if got, ok := metaContent(doc, "og:url"); !ok || got != "https://otakudesu.best/anime/demo/" {
		t.Errorf("metaContent(og:url) = (%q, %v)", got, ok)
	}
	if got := description(doc); got != "A & B" {
		t.Errorf("description() = %q, want %q", got, "A & B")
	}
	if _, ok := metaContent(doc, "og:image"); ok {
		t.Error("metaContent(og:image) should not be found")
	}
}
