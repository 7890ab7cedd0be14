package scraper

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/docutag/animescraper/corpus"
	"github.com/docutag/animescraper/models"
)

func sampleCorpus() []corpus.Page {
	return []corpus.Page{
		page("00001_GET_", `<a href="/anime/demo-title/">Demo</a>`),
		page("00002_GET_anime-list_", `<a href="/anime/demo-title/">Demo Title</a><a href="/anime/other-show/">Other Show</a>`),
		page("00003_GET_ongoing-anime_", `<a href="/anime/demo-title/">Demo Title</a><a href="/episode/demo-title-episode-3/">Episode 3</a>`),
		page("00005_GET_genre-list_", `<a href="/genres/action/">Action</a><a href="/genres/isekai/">Isekai</a>`),
		page("00006_GET_jadwal-rilis_", `<div><h2>Kamis</h2><ul><li><a href="/anime/other-show/">Other Show</a></li></ul></div>`),
		page("00100_GET_anime_demo-title_", animeDetailPage),
		page("00200_GET_episode_demo-title-episode-1_", `<html><head><title>Demo Title Episode 1 | X</title>
			<meta property="og:url" content="https://otakudesu.best/episode/demo-title-episode-1/"></head>
			<body><a href="https://mega.nz/file/1">Mega 720p</a></body></html>`),
		page("00300_GET_genres_action_", `<link rel="canonical" href="https://otakudesu.best/genres/action/"><a href="/anime/other-show/">Other Show</a>`),
		page("00400_GET_embed_whatever", `<iframe src="x"></iframe>`),
	}
}

func TestAssembleIdempotent(t *testing.T) {
	seed := []models.StreamSource{{Quality: Quality480, Provider: "Seed", URL: "https://seed/"}}

	first := Assemble(sampleCorpus(), seed)
	second := Assemble(sampleCorpus(), seed)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("assembling the same corpus twice differs:\n%+v\n%+v", first, second)
	}
}

func TestAssembleOrderIndependentOfInput(t *testing.T) {
	pages := sampleCorpus()
	reversed := make([]corpus.Page, len(pages))
	for i, p := range pages {
		reversed[len(pages)-1-i] = p
	}

	if !reflect.DeepEqual(Assemble(pages, nil), Assemble(reversed, nil)) {
		t.Error("Expected pages to be processed in key order regardless of input order")
	}
	if pages[0].Name != "00001_GET_" {
		t.Error("Assemble must not reorder the caller's slice")
	}
}

func TestAssembleReport(t *testing.T) {
	pages := append(sampleCorpus(), page("00500_GET_anime_no-marker_", `<title>x</title>`))
	_, report := NewAssembler(nil, nil, 0).Assemble(pages, nil)

	if report.Pages != len(pages) {
		t.Errorf("Pages = %d, want %d", report.Pages, len(pages))
	}
	if report.Ignored != 1 {
		t.Errorf("Ignored = %d, want 1", report.Ignored)
	}
	if len(report.Skipped) != 1 || report.Skipped[0] != "00500_GET_anime_no-marker_" {
		t.Errorf("Skipped = %v", report.Skipped)
	}
	if report.Applied[corpus.KindAnimeDetail] != 1 || report.Applied[corpus.KindHome] != 1 {
		t.Errorf("Applied = %v", report.Applied)
	}
}

func TestAssembleSampleCorpus(t *testing.T) {
	catalog := Assemble(sampleCorpus(), nil)

	// Home is processed first, so featured falls back to insertion order.
	if !reflect.DeepEqual(catalog.Featured, []string{"demo-title", "other-show"}) {
		t.Errorf("featured = %v", catalog.Featured)
	}
	if !reflect.DeepEqual(catalog.Genres["action"], []string{"demo-title", "other-show"}) {
		t.Errorf("action = %v", catalog.Genres["action"])
	}
	if members, ok := catalog.Genres["isekai"]; !ok || len(members) != 0 {
		t.Errorf("isekai = %v, %v", members, ok)
	}
	if len(catalog.Schedule) != 1 || catalog.Schedule[0].Day != "Kamis" {
		t.Errorf("schedule = %+v", catalog.Schedule)
	}
	ep := catalog.Episodes["demo-title-episode-1"]
	if ep == nil || len(ep.Streams) != 1 || ep.Streams[0].Quality != Quality720 {
		t.Errorf("episode = %+v", ep)
	}
	if catalog.Anime["demo-title"].Status != "Completed" {
		t.Errorf("status = %q", catalog.Anime["demo-title"].Status)
	}
}

func TestAssembleEmptyCorpus(t *testing.T) {
	catalog := Assemble(nil, nil)
	if catalog == nil {
		t.Fatal("Expected empty catalog, got nil")
	}
	if len(catalog.Anime) != 0 || len(catalog.Episodes) != 0 || len(catalog.Featured) != 0 {
		t.Errorf("Expected empty catalog, got %+v", catalog.Counts())
	}
}

func TestAssembleDefaultFeaturedCap(t *testing.T) {
	body := ""
	for i := 0; i < 12; i++ {
		body += fmt.Sprintf(`<a href="/anime/show-%02d/">Show %d</a>`, i, i)
	}
	catalog := Assemble([]corpus.Page{page("00002_GET_anime-list_", body)}, nil)

	if len(catalog.Featured) != DefaultFeatured {
		t.Fatalf("featured = %v", catalog.Featured)
	}
	for i, s := range catalog.Featured {
		if s != fmt.Sprintf("show-%02d", i) {
			t.Errorf("featured[%d] = %q", i, s)
		}
	}

	catalog, _ = NewAssembler(nil, nil, 3).Assemble([]corpus.Page{page("00002_GET_anime-list_", body)}, nil)
	if len(catalog.Featured) != 3 {
		t.Errorf("featured = %v, want configured size 3", catalog.Featured)
	}
}
