package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/docutag/animescraper/corpus"
	"github.com/docutag/animescraper/models"
	"github.com/docutag/animescraper/slug"
	"golang.org/x/net/html"
)

// DayNames are the schedule day labels, Indonesian first and then English,
// both in weekday order starting Monday.
var DayNames = []string{
	"Senin", "Selasa", "Rabu", "Kamis", "Jumat", "Sabtu", "Minggu",
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

// builder carries the catalog under construction through one assembly pass
type builder struct {
	catalog   *models.Catalog
	resolver  *slug.Resolver
	collector *Collector
	seed      []models.StreamSource
	// detailed holds anime whose detail page has been applied; listing
	// pages no longer overwrite their title or status.
	detailed map[string]bool
}

func newBuilder(resolver *slug.Resolver, collector *Collector, seed []models.StreamSource) *builder {
	return &builder{
		catalog:   models.NewCatalog(),
		resolver:  resolver,
		collector: collector,
		seed:      seed,
		detailed:  make(map[string]bool),
	}
}

// classifyFunc merges one page into the catalog. It returns false when the
// page lacks the marker it needs and contributed nothing.
type classifyFunc func(b *builder, doc *goquery.Document) bool

var classifiers = map[corpus.Kind]classifyFunc{
	corpus.KindAnimeIndex:  classifyAnimeIndex,
	corpus.KindOngoing:     classifyOngoing,
	corpus.KindGenreIndex:  classifyGenreIndex,
	corpus.KindSchedule:    classifySchedule,
	corpus.KindAnimeDetail: classifyAnimeDetail,
	corpus.KindEpisode:     classifyEpisode,
	corpus.KindGenreDetail: classifyGenreDetail,
	corpus.KindHome:        classifyHome,
}

func isAnimeLink(href string) bool   { return strings.Contains(href, "/anime/") }
func isEpisodeLink(href string) bool { return strings.Contains(href, "/episode/") }
func isGenreLink(href string) bool   { return strings.Contains(href, "/genres/") }

func (b *builder) animeSlug(href string) string {
	return b.resolver.Alias(slug.FromURL(href))
}

func genreSlug(href string) string {
	if g := slug.Segment(href, "genres"); g != "" {
		return g
	}
	return slug.FromURL(href)
}

// listAnime upserts an anime seen on a listing page
func (b *builder) listAnime(l Link) *models.Anime {
	s := b.animeSlug(l.Href)
	a := b.catalog.EnsureAnime(s, l.Label)
	if a != nil && l.Label != "" && !b.detailed[s] {
		a.Title = l.Label
	}
	return a
}

func (b *builder) listEpisode(l Link) {
	e := slug.FromURL(l.Href)
	b.catalog.EnsureEpisode(e, l.Label, b.resolver.CanonicalAnime(e))
}

func classifyAnimeIndex(b *builder, doc *goquery.Document) bool {
	for _, l := range ExtractLinks(doc) {
		if isAnimeLink(l.Href) {
			b.listAnime(l)
		}
	}
	return true
}

func classifyOngoing(b *builder, doc *goquery.Document) bool {
	for _, l := range ExtractLinks(doc) {
		if isAnimeLink(l.Href) {
			if a := b.listAnime(l); a != nil && !b.detailed[a.Slug] {
				a.Status = models.StatusOngoing
			}
		}
		if isEpisodeLink(l.Href) {
			b.listEpisode(l)
		}
	}
	return true
}

func classifyGenreIndex(b *builder, doc *goquery.Document) bool {
	for _, l := range ExtractLinks(doc) {
		if isGenreLink(l.Href) {
			b.catalog.EnsureGenre(genreSlug(l.Href))
		}
	}
	return true
}

// classifySchedule assigns each anime link the day named by its nearest
// li, tr or div block. A block is labelled by its own text, leaving out link
// text and nested blocks that carry links of their own. Climbing stops at the
// first labelled block; a block naming several days is a container of day
// blocks, and links reaching it are skipped like links in no block at all.
func classifySchedule(b *builder, doc *goquery.Document) bool {
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if !isAnimeLink(href) {
			return
		}

		day := scheduleDay(a.Nodes[0])
		if day == "" {
			return
		}

		s := b.animeSlug(href)
		label := anchorLabel(a)
		anime := b.catalog.EnsureAnime(s, label)
		if anime == nil {
			return
		}
		title := label
		if title == "" {
			title = anime.Title
		}
		b.catalog.Schedule = append(b.catalog.Schedule, models.ScheduleItem{
			Day:         day,
			AnimeTitle:  title,
			AnimeSlug:   s,
			NextEpisode: models.NextEpisodeUpcoming,
		})
	})
	return true
}

func isScheduleBlock(n *html.Node) bool {
	return n.Type == html.ElementNode && (n.Data == "li" || n.Data == "tr" || n.Data == "div")
}

// scheduleDay returns the day of the nearest labelled block around link, or ""
func scheduleDay(link *html.Node) string {
	for p := link.Parent; p != nil; p = p.Parent {
		if !isScheduleBlock(p) {
			continue
		}
		switch days := weekdaysIn(blockLabel(p)); len(days) {
		case 0:
			continue
		case 1:
			return days[0]
		default:
			return ""
		}
	}
	return ""
}

// blockLabel returns the text of block outside links and outside nested
// blocks that contain links
func blockLabel(block *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch {
			case c.Type == html.TextNode:
				sb.WriteString(c.Data)
				sb.WriteByte(' ')
			case c.Type != html.ElementNode:
			case c.Data == "a" || c.Data == "script" || c.Data == "style":
			case isScheduleBlock(c) && hasLink(c):
			default:
				walk(c)
			}
		}
	}
	walk(block)
	return collapseSpace(sb.String())
}

func hasLink(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "a" {
			return true
		}
		if hasLink(c) {
			return true
		}
	}
	return false
}

// weekdaysIn returns the distinct weekdays named in text, one label per
// weekday, so "Senin / Monday" counts once
func weekdaysIn(text string) []string {
	lower := strings.ToLower(text)
	week := len(DayNames) / 2
	seen := make([]bool, week)
	var days []string
	for i, d := range DayNames {
		if seen[i%week] || !strings.Contains(lower, strings.ToLower(d)) {
			continue
		}
		seen[i%week] = true
		days = append(days, d)
	}
	return days
}

func classifyAnimeDetail(b *builder, doc *goquery.Document) bool {
	canonical, ok := metaContent(doc, "og:url")
	if !ok {
		return false
	}
	s := b.animeSlug(canonical)
	title := pageTitle(doc)
	anime := b.catalog.EnsureAnime(s, title)
	if anime == nil {
		return false
	}
	if anime.Title == "" {
		anime.Title = title
	}
	anime.Synopsis = description(doc)
	if status, ok := parseStatus(doc); ok {
		anime.Status = status
	}
	b.detailed[s] = true

	for _, l := range ExtractLinks(doc) {
		if isGenreLink(l.Href) {
			if g := genreSlug(l.Href); g != "" {
				anime.AddGenre(g)
				b.catalog.AddToGenre(g, s)
			}
		}
		if isEpisodeLink(l.Href) {
			e := slug.FromURL(l.Href)
			if e == "" {
				continue
			}
			owner := s
			if strings.Contains(e, slug.EpisodeMarker) {
				owner = b.resolver.CanonicalAnime(e)
			}
			b.catalog.EnsureEpisode(e, l.Label, owner)
			anime.LatestEpisode = l.Label
		}
	}
	return true
}

func classifyEpisode(b *builder, doc *goquery.Document) bool {
	canonical, ok := metaContent(doc, "og:url")
	if !ok {
		return false
	}
	e := slug.FromURL(canonical)
	title := pageTitle(doc)
	owner := b.resolver.CanonicalAnime(e)
	ep := b.catalog.EnsureEpisode(e, title, owner)
	if ep == nil {
		return false
	}
	ep.Title = title
	ep.AnimeSlug = owner
	ep.Description = description(doc)
	ep.Streams = b.collector.Collect(ExtractLinks(doc), b.seed)
	ep.Mirrors = episodeMirrors(doc)
	ep.PrevEpisode, ep.NextEpisode = episodeNav(doc)
	return true
}

// episodeMirrors reads the player mirrors grouped by quality lists such as
// <ul class="m720p"> inside div.mirrorstream. Links without a token are dropped.
func episodeMirrors(doc *goquery.Document) []models.Mirror {
	var mirrors []models.Mirror
	doc.Find("div.mirrorstream ul").Each(func(_ int, ul *goquery.Selection) {
		quality := "unknown"
		if class := strings.Fields(ul.AttrOr("class", "")); len(class) > 0 {
			quality = strings.TrimPrefix(class[0], "m")
		}
		ul.Find("li a[data-content]").Each(func(_ int, a *goquery.Selection) {
			token := strings.TrimSpace(a.AttrOr("data-content", ""))
			if token == "" {
				return
			}
			mirrors = append(mirrors, models.Mirror{
				Quality:     quality,
				Host:        collapseSpace(a.Text()),
				DataContent: token,
			})
		})
	})
	return mirrors
}

// episodeNav returns the slugs behind the Prev and Next links of div.prevnext
func episodeNav(doc *goquery.Document) (prev, next string) {
	doc.Find("div.prevnext div.flir a[href]").Each(func(_ int, a *goquery.Selection) {
		label := a.Text()
		target := slug.FromURL(a.AttrOr("href", ""))
		switch {
		case strings.Contains(label, "Next"):
			next = target
		case strings.Contains(label, "Prev"):
			prev = target
		}
	})
	return prev, next
}

func classifyGenreDetail(b *builder, doc *goquery.Document) bool {
	links := ExtractLinks(doc)
	g := genreOfPage(doc, links)
	if g == "" {
		return false
	}
	b.catalog.EnsureGenre(g)
	for _, l := range links {
		if !isAnimeLink(l.Href) {
			continue
		}
		s := b.animeSlug(l.Href)
		if b.catalog.EnsureAnime(s, l.Label) != nil {
			b.catalog.AddToGenre(g, s)
		}
	}
	return true
}

// genreOfPage finds the genre a listing page is about: its canonical URL
// first, then the first genre link on the page.
func genreOfPage(doc *goquery.Document, links []Link) string {
	if u, ok := metaContent(doc, "og:url"); ok {
		if g := slug.Segment(u, "genres"); g != "" {
			return g
		}
	}
	if u := strings.TrimSpace(doc.Find(`link[rel="canonical"]`).First().AttrOr("href", "")); u != "" {
		if g := slug.Segment(u, "genres"); g != "" {
			return g
		}
	}
	for _, l := range links {
		if g := slug.Segment(l.Href, "genres"); g != "" {
			return g
		}
	}
	return ""
}

func classifyHome(b *builder, doc *goquery.Document) bool {
	for _, l := range ExtractLinks(doc) {
		if !isAnimeLink(l.Href) {
			continue
		}
		s := b.animeSlug(l.Href)
		if _, ok := b.catalog.Anime[s]; ok {
			b.catalog.AddFeatured(s)
		}
	}
	return true
}

// metaContent returns the content of the first meta tag with the given
// property. ok is false when no such tag has a non-empty content.
func metaContent(doc *goquery.Document, property string) (string, bool) {
	var content string
	doc.Find("meta[property]").EachWithBreak(func(_ int, m *goquery.Selection) bool {
		if !strings.EqualFold(strings.TrimSpace(m.AttrOr("property", "")), property) {
			return true
		}
		content = strings.TrimSpace(m.AttrOr("content", ""))
		return content == ""
	})
	return content, content != ""
}

func description(doc *goquery.Document) string {
	content, _ := metaContent(doc, "og:description")
	return Normalize(content)
}

// pageTitle returns the document title up to the first "|"
func pageTitle(doc *goquery.Document) string {
	title := collapseSpace(doc.Find("title").First().Text())
	before, _, _ := strings.Cut(title, "|")
	return strings.TrimSpace(before)
}

// parseStatus finds a "Status" label element and reads the value that
// follows it, either in the same text ("Status: Ongoing") or in the text
// right after the element ("<b>Status</b>: Ongoing").
func parseStatus(doc *goquery.Document) (string, bool) {
	var status string
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			if n.Data == "script" || n.Data == "style" {
				return false
			}
			if rest, ok := cutStatusLabel(ownText(n)); ok {
				if rest == "" {
					rest = textAfter(n)
				}
				if rest != "" {
					status = rest
					return true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}

	for _, n := range doc.Nodes {
		if walk(n) {
			return status, true
		}
	}
	return "", false
}

// cutStatusLabel reports whether s is a status label and returns any value
// written after a colon in the same text.
func cutStatusLabel(s string) (string, bool) {
	if len(s) < len("status") || !strings.EqualFold(s[:len("status")], "status") {
		return "", false
	}
	rest := strings.TrimSpace(s[len("status"):])
	if rest == "" {
		return "", true
	}
	if value, ok := strings.CutPrefix(rest, ":"); ok {
		return strings.TrimSpace(value), true
	}
	return "", false
}

// textAfter returns the text between n and the next element sibling, minus a leading colon
func textAfter(n *html.Node) string {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return ""
		}
		if s.Type != html.TextNode {
			continue
		}
		v := collapseSpace(s.Data)
		v = strings.TrimSpace(strings.TrimPrefix(v, ":"))
		if v != "" {
			return v
		}
	}
	return ""
}
