package models

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestEnsureAnime(t *testing.T) {
	c := NewCatalog()

	if c.EnsureAnime("", "Nameless") != nil {
		t.Error("Expected empty slug to be rejected")
	}

	a := c.EnsureAnime("demo-title", "")
	if a.Title != "Demo Title" || a.Status != DefaultStatus {
		t.Errorf("stub = %+v", a)
	}

	again := c.EnsureAnime("demo-title", "Other Label")
	if again != a || again.Title != "Demo Title" {
		t.Error("EnsureAnime must return the existing record unchanged")
	}

	c.EnsureAnime("second", "Second")
	if !reflect.DeepEqual(c.AnimeSlugs(), []string{"demo-title", "second"}) {
		t.Errorf("AnimeSlugs() = %v", c.AnimeSlugs())
	}
}

func TestEnsureEpisode(t *testing.T) {
	c := NewCatalog()

	if c.EnsureEpisode("", "x", "y") != nil {
		t.Error("Expected empty slug to be rejected")
	}

	e := c.EnsureEpisode("demo-title-episode-1", "", "demo-title")
	if e.Title != "Demo Title Episode 1" || e.AnimeSlug != "demo-title" || e.Streams == nil {
		t.Errorf("stub = %+v", e)
	}
	if c.EnsureEpisode("demo-title-episode-1", "New", "other") != e || e.Title != "Demo Title Episode 1" {
		t.Error("EnsureEpisode must not overwrite an existing episode")
	}
}

func TestGenreMembership(t *testing.T) {
	c := NewCatalog()
	a := c.EnsureAnime("demo-title", "Demo")

	if !a.AddGenre("action") || a.AddGenre("action") {
		t.Error("AddGenre should add once")
	}
	if !a.HasGenre("action") || a.HasGenre("drama") {
		t.Errorf("genres = %v", a.Genres)
	}

	c.AddToGenre("action", "demo-title")
	c.AddToGenre("action", "demo-title")
	c.AddToGenre("action", "")
	if !reflect.DeepEqual(c.Genres["action"], []string{"demo-title"}) {
		t.Errorf("bucket = %v", c.Genres["action"])
	}

	if c.EnsureGenre("") {
		t.Error("empty genre slug must be rejected")
	}
	c.EnsureGenre("isekai")
	if members, ok := c.Genres["isekai"]; !ok || len(members) != 0 {
		t.Errorf("isekai = %v, %v", members, ok)
	}
}

func TestAddFeatured(t *testing.T) {
	c := NewCatalog()
	c.AddFeatured("a")
	c.AddFeatured("b")
	c.AddFeatured("a")
	if !reflect.DeepEqual(c.Featured, []string{"a", "b"}) {
		t.Errorf("featured = %v", c.Featured)
	}
}

func TestCatalogJSONFieldNames(t *testing.T) {
	c := NewCatalog()
	a := c.EnsureAnime("demo-title", "Demo")
	a.LatestEpisode = "Episode 3"
	e := c.EnsureEpisode("demo-title-episode-3", "Ep 3", "demo-title")
	e.Streams = append(e.Streams, StreamSource{Quality: "720p", Provider: "Mega", URL: "https://mega.nz/x"})
	c.Schedule = append(c.Schedule, ScheduleItem{Day: "Senin", AnimeTitle: "Demo", AnimeSlug: "demo-title", NextEpisode: NextEpisodeUpcoming})

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Failed to marshal catalog: %v", err)
	}

	var generic map[string]interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}
	for _, key := range []string{"anime", "episodes", "genres", "schedule", "featured", "anime_order"} {
		if _, ok := generic[key]; !ok {
			t.Errorf("missing %q in catalog JSON", key)
		}
	}

	anime := generic["anime"].(map[string]interface{})["demo-title"].(map[string]interface{})
	if anime["latest_episode"] != "Episode 3" {
		t.Errorf("anime JSON = %v", anime)
	}
	episode := generic["episodes"].(map[string]interface{})["demo-title-episode-3"].(map[string]interface{})
	if episode["anime_slug"] != "demo-title" {
		t.Errorf("episode JSON = %v", episode)
	}

	var decoded Catalog
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to decode catalog: %v", err)
	}
	if !reflect.DeepEqual(&decoded, c) {
		t.Errorf("decoded catalog differs:\n%+v\n%+v", decoded, c)
	}
}

func TestCounts(t *testing.T) {
	c := NewCatalog()
	c.EnsureAnime("a", "A")
	c.EnsureEpisode("a-episode-1", "", "a")
	c.EnsureGenre("g")
	c.AddFeatured("a")

	want := Counts{Anime: 1, Episodes: 1, Genres: 1, Schedule: 0, Featured: 1}
	if got := c.Counts(); got != want {
		t.Errorf("Counts() = %+v, want %+v", got, want)
	}
}
