package scraper

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/docutag/animescraper/models"
)

const (
	Quality360 = "360p"
	Quality480 = "480p"
	Quality720 = "720p"

	// DefaultMaxStreams bounds the stream list of an episode
	DefaultMaxStreams = 6
)

// DefaultStreamHosts lists hosting providers whose links count as streams
var DefaultStreamHosts = []string{
	"blogger.com",
	"filedon.co",
	"odvidhide.com",
	"mega.nz",
	"desustream.com",
}

// StreamQuality guesses the quality tier from a link label.
// This is best effort: labels are free text and may lie.
func StreamQuality(label string) string {
	switch {
	case strings.Contains(label, "720") || strings.Contains(strings.ToLower(label), "hq"):
		return Quality720
	case strings.Contains(label, "360"):
		return Quality360
	default:
		return Quality480
	}
}

// DedupeStreams drops repeated (quality, URL) pairs keeping the first and
// truncates to max. The input is not modified.
func DedupeStreams(streams []models.StreamSource, max int) []models.StreamSource {
	if max <= 0 {
		return []models.StreamSource{}
	}
	seen := make(map[[2]string]bool, len(streams))
	out := make([]models.StreamSource, 0, min(len(streams), max))
	for _, s := range streams {
		if len(out) >= max {
			break
		}
		if seen[s.Key()] {
			continue
		}
		seen[s.Key()] = true
		out = append(out, s)
	}
	return out
}

// Collector picks stream candidates out of episode page links
type Collector struct {
	hosts      []string
	maxStreams int
}

// NewCollector creates a Collector accepting links to hosts.
// Empty hosts means DefaultStreamHosts; max <= 0 means DefaultMaxStreams.
func NewCollector(hosts []string, max int) *Collector {
	if len(hosts) == 0 {
		hosts = DefaultStreamHosts
	}
	if max <= 0 {
		max = DefaultMaxStreams
	}
	normalized := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			normalized = append(normalized, h)
		}
	}
	return &Collector{hosts: normalized, maxStreams: max}
}

// Collect returns the deduplicated stream candidates among links, or seed
// when there are none. Both paths obey the same dedup and length bound.
func (c *Collector) Collect(links []Link, seed []models.StreamSource) []models.StreamSource {
	var found []models.StreamSource
	for _, l := range links {
		host, ok := c.acceptedHost(l.Href)
		if !ok {
			continue
		}
		provider := l.Label
		if provider == "" {
			provider = host
		}
		found = append(found, models.StreamSource{
			Quality:  StreamQuality(l.Label),
			Provider: provider,
			URL:      l.Href,
		})
	}

	if len(found) == 0 {
		return DedupeStreams(seed, c.maxStreams)
	}
	return DedupeStreams(found, c.maxStreams)
}

// acceptedHost returns the link host when it is an allowed provider or a subdomain of one
func (c *Collector) acceptedHost(href string) (string, bool) {
	u, err := url.Parse(href)
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range c.hosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return u.Host, true
		}
	}
	return "", false
}

// SeedEmbed is a saved embed page whose player URL seeds the fallback stream list
type SeedEmbed struct {
	Host     string
	Name     string // Snapshot directory under Host
	Quality  string
	Provider string
}

// DefaultSeedEmbeds are the embed snapshots shipped with the dataset
var DefaultSeedEmbeds = []SeedEmbed{
	{Host: "filedon.co", Name: "00799_GET_embed_QvvubTKG5k", Quality: Quality360, Provider: "Filedon"},
	{Host: "odvidhide.com", Name: "00824_GET_embed_yblec6u1eavr", Quality: Quality480, Provider: "ODVidHide #1"},
	{Host: "odvidhide.com", Name: "00846_GET_embed_7vh4zo2k5378", Quality: Quality720, Provider: "ODVidHide #2"},
}

// SnapshotReader reads saved response bodies
type SnapshotReader interface {
	ReadSnapshot(ctx context.Context, host, name string) ([]byte, error)
}

// FallbackSeed reads each saved embed page for its iframe URL. An embed
// whose snapshot cannot be read is dropped; one without an iframe falls back
// to the provider landing page.
func FallbackSeed(ctx context.Context, r SnapshotReader, embeds []SeedEmbed) []models.StreamSource {
	seed := []models.StreamSource{}
	for _, p := range embeds {
		body, err := r.ReadSnapshot(ctx, p.Host, p.Name)
		if err != nil {
			continue
		}
		src := iframeSrc(string(body))
		if src == "" {
			src = "https://" + p.Host + "/"
		}
		seed = append(seed, models.StreamSource{Quality: p.Quality, Provider: p.Provider, URL: src})
	}
	return seed
}

// iframeSrc returns the src of the first iframe in an HTML fragment
func iframeSrc(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("iframe[src]").First().AttrOr("src", ""))
}
