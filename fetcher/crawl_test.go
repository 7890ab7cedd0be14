package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docutag/animescraper/corpus"
	"github.com/docutag/animescraper/storage"
)

func TestCrawl(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="/anime/demo-title/">Demo</a>
			<a href="/anime/demo-title/#top">Demo again</a>
			<a href="https://example.com/anime/elsewhere/">External</a>
			<a href="/anime/">Bare prefix</a>
			<a href="/about/">About</a>`)
	})
	mux.HandleFunc("/anime/demo-title/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<title>Demo Title</title>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store, err := storage.New(storage.Config{BasePath: t.TempDir()})
	require.NoError(t, err)

	idx := NewIndex()
	idx.Add("https://otakudesu.best/", 40)

	c := NewCrawler(New(testConfig(server.URL), nil, nil, nil, nil), corpus.NewWriter(store), idx, nil)
	result, err := c.Crawl(context.Background(), CrawlConfig{
		SeedPaths:     []string{"/", "/missing/"},
		FollowDetails: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Saved)
	assert.Equal(t, []string{server.URL + "/missing/"}, result.Failed)

	seq, ok := c.Index().Lookup(server.URL + "/anime/demo-title/")
	require.True(t, ok)
	assert.Equal(t, 42, seq, "numbering continues after the existing index")

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	src := corpus.NewSource(store, corpus.Config{Host: u.Host}, nil)
	pages, err := src.Pages(context.Background())
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, corpus.KindHome, pages[0].Kind)
	assert.Equal(t, corpus.KindAnimeDetail, pages[1].Kind)

	// Saved pages are served locally afterwards.
	f := New(testConfig(server.URL), c.Index(), src, nil, nil)
	body, source, err := f.Fetch(context.Background(), server.URL+"/anime/demo-title/")
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, source)
	assert.Equal(t, "<title>Demo Title</title>", string(body))
}

func TestCrawlMaxPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "page")
	}))
	defer server.Close()

	store, err := storage.New(storage.Config{BasePath: t.TempDir()})
	require.NoError(t, err)

	c := NewCrawler(New(testConfig(server.URL), nil, nil, nil, nil), corpus.NewWriter(store), nil, nil)
	result, err := c.Crawl(context.Background(), CrawlConfig{MaxPages: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Saved)
	assert.Equal(t, 2, c.Index().Len())
}
