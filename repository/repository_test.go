package repository

import (
	"sync"
	"testing"

	"github.com/docutag/animescraper/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() *models.Catalog {
	c := models.NewCatalog()

	oshi := c.EnsureAnime("oshi-ko-s3-sub-indo", "Oshi no Ko Season 3")
	oshi.Status = "Ongoing"
	oshi.Synopsis = "Idol drama."
	oshi.AddGenre("drama")
	c.AddToGenre("drama", oshi.Slug)

	demo := c.EnsureAnime("demo-title", "Demo Title")
	demo.Status = "Completed"
	demo.Synopsis = "A demo about isekai heroes."

	// Only the bucket side knows this membership.
	c.EnsureAnime("action-show", "Action Show").Status = "On-Going"
	c.AddToGenre("action", "action-show")

	c.EnsureAnime("alpha", "Alpha")

	c.EnsureEpisode("demo-title-episode-2", "Ep 2", "demo-title")
	c.EnsureEpisode("demo-title-episode-10", "Ep 10", "demo-title")
	c.EnsureEpisode("oshi-ko-s3-sub-indo-episode-1", "Ep 1", "oshi-ko-s3-sub-indo")
	c.EnsureEpisode("orphan-episode-1", "Orphan", "never-ingested")

	c.Featured = []string{"demo-title", "gone", "alpha"}
	c.Schedule = []models.ScheduleItem{
		{Day: "Senin", AnimeTitle: "Demo Title", AnimeSlug: "demo-title", NextEpisode: models.NextEpisodeUpcoming},
		{Day: "Selasa", AnimeTitle: "Alpha", AnimeSlug: "alpha", NextEpisode: models.NextEpisodeUpcoming},
	}
	return c
}

func slugs(anime []*models.Anime) []string {
	out := []string{}
	for _, a := range anime {
		out = append(out, a.Slug)
	}
	return out
}

func episodeSlugs(eps []*models.Episode) []string {
	out := []string{}
	for _, e := range eps {
		out = append(out, e.Slug)
	}
	return out
}

func TestFeatured(t *testing.T) {
	r := New(testCatalog())

	assert.Equal(t, []string{"demo-title", "alpha"}, slugs(r.Featured(DefaultFeaturedLimit)))
	assert.Equal(t, []string{"demo-title"}, slugs(r.Featured(2)), "limit applies before skipping missing slugs")
	assert.Empty(t, r.Featured(0))
}

func TestLatestUpdates(t *testing.T) {
	r := New(testCatalog())

	assert.Equal(t, []string{
		"oshi-ko-s3-sub-indo-episode-1",
		"orphan-episode-1",
		"demo-title-episode-2",
		"demo-title-episode-10",
	}, episodeSlugs(r.LatestUpdates(DefaultLatestLimit)))
	assert.Len(t, r.LatestUpdates(2), 2)
}

func TestOngoing(t *testing.T) {
	r := New(testCatalog())
	// Neither "Completed" nor "Unknown" contains "on".
	assert.Equal(t, []string{"action-show", "oshi-ko-s3-sub-indo"}, slugs(r.Ongoing()))
}

func TestAnimeList(t *testing.T) {
	r := New(testCatalog())

	assert.Equal(t, []string{"action-show", "alpha", "demo-title", "oshi-ko-s3-sub-indo"}, slugs(r.AnimeList(SortTitle, "")))
	assert.Equal(t, []string{"demo-title", "action-show", "oshi-ko-s3-sub-indo", "alpha"}, slugs(r.AnimeList(SortStatus, "")))

	assert.Equal(t, []string{"action-show"}, slugs(r.AnimeList(SortTitle, "action")), "bucket-only membership")
	assert.Equal(t, []string{"oshi-ko-s3-sub-indo"}, slugs(r.AnimeList(SortTitle, "drama")))

	missing := r.AnimeList(SortTitle, "isekai")
	assert.NotNil(t, missing)
	assert.Empty(t, missing)
}

func TestGenres(t *testing.T) {
	r := New(testCatalog())
	genres := r.Genres()
	require.Len(t, genres, 2)
	assert.Equal(t, "action", genres[0].Slug)
	assert.Equal(t, "drama", genres[1].Slug)

	anime, err := r.GenreAnime("drama")
	require.NoError(t, err)
	assert.Equal(t, []string{"oshi-ko-s3-sub-indo"}, slugs(anime))

	_, err = r.GenreAnime("isekai")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNextSchedule(t *testing.T) {
	r := New(testCatalog())
	assert.Len(t, r.NextSchedule(DefaultScheduleLimit), 2)
	assert.Len(t, r.NextSchedule(1), 1)
}

func TestFind(t *testing.T) {
	r := New(testCatalog())

	a, err := r.FindAnime("demo-title")
	require.NoError(t, err)
	assert.Equal(t, "Demo Title", a.Title)

	_, err = r.FindAnime("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	e, err := r.FindEpisode("orphan-episode-1")
	require.NoError(t, err)
	_, err = r.FindAnime(e.AnimeSlug)
	assert.ErrorIs(t, err, ErrNotFound, "dangling anime reference is a normal miss")

	_, err = r.FindEpisode("")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEpisodesForAnime(t *testing.T) {
	r := New(testCatalog())
	assert.Equal(t, []string{"demo-title-episode-10", "demo-title-episode-2"}, episodeSlugs(r.EpisodesForAnime("demo-title")))
	assert.Empty(t, r.EpisodesForAnime("unknown"))
}

func TestSearch(t *testing.T) {
	r := New(testCatalog())

	assert.Equal(t, []string{"oshi-ko-s3-sub-indo"}, slugs(r.Search("OSHI", "")))
	assert.Equal(t, []string{"demo-title"}, slugs(r.Search("isekai", "")), "synopsis is searched")
	assert.Equal(t, []string{"oshi-ko-s3-sub-indo"}, slugs(r.Search("drama", "")), "genre slugs are searched")
	assert.Len(t, r.Search("  ", ""), 4)
	assert.Equal(t, []string{"action-show"}, slugs(r.Search("", "action")))
	assert.Empty(t, r.Search("oshi", "action"))
}

func TestSearchNoMatch(t *testing.T) {
	c := models.NewCatalog()
	c.EnsureAnime("demo-title", "Demo Title")
	result := New(c).Search("oshi", "")
	assert.NotNil(t, result)
	assert.Empty(t, result)
}

func TestEmptyCatalog(t *testing.T) {
	r := New(nil)

	assert.Empty(t, r.Featured(DefaultFeaturedLimit))
	assert.Empty(t, r.LatestUpdates(DefaultLatestLimit))
	assert.Empty(t, r.Ongoing())
	assert.Empty(t, r.AnimeList(SortStatus, "isekai"))
	assert.Empty(t, r.Genres())
	assert.Empty(t, r.NextSchedule(DefaultScheduleLimit))
	assert.Empty(t, r.EpisodesForAnime("x"))
	assert.Empty(t, r.Search("x", ""))

	d := r.Debug()
	assert.Empty(t, d.Anime)
	assert.Empty(t, d.Episodes)
}

func TestDebug(t *testing.T) {
	d := New(testCatalog()).Debug()
	assert.Len(t, d.Anime, 4)
	assert.Len(t, d.Episodes, 4)
	assert.Len(t, d.Genres, 2)
	assert.Len(t, d.Schedule, 2)
}

func TestAnimeWithoutInsertionOrder(t *testing.T) {
	c := &models.Catalog{Anime: map[string]*models.Anime{
		"b": {Slug: "b", Title: "Same"},
		"a": {Slug: "a", Title: "Same"},
	}}
	assert.Equal(t, []string{"a", "b"}, slugs(New(c).AnimeList(SortTitle, "")))
}

func TestStoreSwap(t *testing.T) {
	store := NewStore(nil)
	assert.Empty(t, store.Get().AnimeList(SortTitle, ""))

	old := store.Get()
	store.Swap(testCatalog())
	assert.Empty(t, old.AnimeList(SortTitle, ""), "earlier readers keep their catalog")
	assert.Len(t, store.Get().AnimeList(SortTitle, ""), 4)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = store.Get().Search("demo", "")
			}
		}()
	}
	for i := 0; i < 10; i++ {
		store.Swap(testCatalog())
	}
	wg.Wait()
}
