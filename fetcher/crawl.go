package fetcher

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/docutag/animescraper/corpus"
)

// DefaultSeedPaths are the listing pages a crawl starts from
var DefaultSeedPaths = []string{"/", "/anime-list/", "/ongoing-anime/", "/genre-list/", "/jadwal-rilis/"}

// followPrefixes are the detail paths discovered links are followed into
var followPrefixes = []string{"/anime/", "/episode/", "/genres/"}

// CrawlConfig controls a crawl
type CrawlConfig struct {
	SeedPaths     []string
	FollowDetails bool // Follow anime, episode and genre links found on crawled pages
	MaxPages      int  // Zero means no limit
}

// CrawlResult summarises a crawl
type CrawlResult struct {
	Saved  int      `json:"saved"`
	Failed []string `json:"failed"`
}

// Crawler saves live pages in the snapshot layout and records them in an index
type Crawler struct {
	fetcher *Fetcher
	writer  *corpus.Writer
	index   *Index
	logger  *slog.Logger
}

// NewCrawler creates a Crawler. New snapshots are numbered after the highest
// sequence number already in index.
func NewCrawler(f *Fetcher, w *corpus.Writer, index *Index, logger *slog.Logger) *Crawler {
	if index == nil {
		index = NewIndex()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{fetcher: f, writer: w, index: index, logger: logger}
}

// Index returns the index updated by the crawl
func (c *Crawler) Index() *Index {
	return c.index
}

// Crawl fetches the seed pages and, when configured, the detail pages they link
// to. Pages that fail to fetch are reported and skipped.
func (c *Crawler) Crawl(ctx context.Context, cfg CrawlConfig) (CrawlResult, error) {
	result := CrawlResult{Failed: []string{}}

	base, err := url.Parse(c.fetcher.BaseURL() + "/")
	if err != nil {
		return result, err
	}

	seeds := cfg.SeedPaths
	if len(seeds) == 0 {
		seeds = DefaultSeedPaths
	}

	queue := make([]string, 0, len(seeds))
	seen := make(map[string]bool)
	enqueue := func(u string) {
		if !seen[u] {
			seen[u] = true
			queue = append(queue, u)
		}
	}
	for _, p := range seeds {
		ref, err := url.Parse(p)
		if err != nil {
			continue
		}
		enqueue(base.ResolveReference(ref).String())
	}

	seq := c.index.MaxSeq() + 1
	for len(queue) > 0 {
		if cfg.MaxPages > 0 && result.Saved >= cfg.MaxPages {
			break
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		target := queue[0]
		queue = queue[1:]

		body, err := c.fetcher.Live(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			c.logger.Warn("crawl fetch failed", "url", target, "error", err)
			result.Failed = append(result.Failed, target)
			continue
		}

		key, err := c.writer.Save(ctx, seq, target, body)
		if err != nil {
			return result, err
		}
		c.index.Add(target, seq)
		c.logger.Debug("page saved", "url", target, "key", key)
		seq++
		result.Saved++

		if cfg.FollowDetails {
			for _, link := range detailLinks(base, body) {
				enqueue(link)
			}
		}
	}

	return result, nil
}

// detailLinks returns same-host links into detail paths, in document order
func detailLinks(base *url.URL, body []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		u := base.ResolveReference(ref)
		u.Fragment = ""
		if u.Host != base.Host {
			return
		}
		for _, prefix := range followPrefixes {
			if strings.HasPrefix(u.Path, prefix) && len(u.Path) > len(prefix) {
				out = append(out, u.String())
				return
			}
		}
	})
	return out
}
