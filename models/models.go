package models

import (
	"github.com/docutag/animescraper/slug"
)

const (
	// DefaultStatus is the status of an anime no page has described yet
	DefaultStatus = "Unknown"
	// StatusOngoing is the status set by the ongoing index
	StatusOngoing = "On-Going"
	// NextEpisodeUpcoming is the next-episode label of schedule entries
	NextEpisodeUpcoming = "Upcoming"
)

// StreamSource is a playable link candidate for an episode.
// Two sources are the same source when quality and URL match.
type StreamSource struct {
	Quality  string `json:"quality"`  // "360p", "480p" or "720p"
	Provider string `json:"provider"` // Link text, or host when the link had none
	URL      string `json:"url"`
}

// Key returns the deduplication identity of the source
func (s StreamSource) Key() [2]string {
	return [2]string{s.Quality, s.URL}
}

// Anime is a title in the catalog
type Anime struct {
	Slug          string   `json:"slug"`
	Title         string   `json:"title"`
	Synopsis      string   `json:"synopsis"`
	Status        string   `json:"status"`
	Genres        []string `json:"genres"`         // Genre slugs in first-seen order
	LatestEpisode string   `json:"latest_episode"` // Label of the last episode link seen on the detail page
}

// AddGenre appends a genre slug unless it is already present
func (a *Anime) AddGenre(genre string) bool {
	for _, g := range a.Genres {
		if g == genre {
			return false
		}
	}
	a.Genres = append(a.Genres, genre)
	return true
}

// HasGenre reports whether the anime lists the genre
func (a *Anime) HasGenre(genre string) bool {
	for _, g := range a.Genres {
		if g == genre {
			return true
		}
	}
	return false
}

// Mirror is a player mirror listed on an episode page. DataContent is the
// opaque token the site's player exchanges for an embed URL.
type Mirror struct {
	Quality     string `json:"quality"` // From the list class, "m720p" -> "720p"
	Host        string `json:"host"`
	DataContent string `json:"data_content"`
}

// Episode is a single episode of an anime
type Episode struct {
	Slug        string         `json:"slug"`
	Title       string         `json:"title"`
	AnimeSlug   string         `json:"anime_slug"` // May reference an anime that is not in the catalog
	Description string         `json:"description"`
	Streams     []StreamSource `json:"streams"`
	Mirrors     []Mirror       `json:"mirrors,omitempty"`
	PrevEpisode string         `json:"prev_episode,omitempty"` // Episode slug
	NextEpisode string         `json:"next_episode,omitempty"` // Episode slug
}

// ScheduleItem is one release-schedule entry
type ScheduleItem struct {
	Day         string `json:"day"`
	AnimeTitle  string `json:"anime_title"`
	AnimeSlug   string `json:"anime_slug"`
	NextEpisode string `json:"next_episode"`
}

// Catalog is the aggregate built by one ingestion pass.
// It is mutated only while being assembled and read-only afterwards.
type Catalog struct {
	Anime      map[string]*Anime   `json:"anime"`
	Episodes   map[string]*Episode `json:"episodes"`
	Genres     map[string][]string `json:"genres"` // Genre slug -> anime slugs in first-seen order
	Schedule   []ScheduleItem      `json:"schedule"`
	Featured   []string            `json:"featured"`
	AnimeOrder []string            `json:"anime_order"` // Anime slugs in insertion order
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{
		Anime:      make(map[string]*Anime),
		Episodes:   make(map[string]*Episode),
		Genres:     make(map[string][]string),
		Schedule:   []ScheduleItem{},
		Featured:   []string{},
		AnimeOrder: []string{},
	}
}

// EnsureAnime returns the anime for s, creating a stub when it is absent.
// The stub title is label, or a title derived from the slug. An empty slug is
// rejected and yields nil.
func (c *Catalog) EnsureAnime(s, label string) *Anime {
	if s == "" {
		return nil
	}
	if a, ok := c.Anime[s]; ok {
		return a
	}
	title := label
	if title == "" {
		title = slug.Title(s)
	}
	a := &Anime{
		Slug:   s,
		Title:  title,
		Status: DefaultStatus,
		Genres: []string{},
	}
	c.Anime[s] = a
	c.AnimeOrder = append(c.AnimeOrder, s)
	return a
}

// EnsureEpisode returns the episode for s, creating a stub when it is absent.
// Existing episodes are returned unchanged.
func (c *Catalog) EnsureEpisode(s, title, animeSlug string) *Episode {
	if s == "" {
		return nil
	}
	if e, ok := c.Episodes[s]; ok {
		return e
	}
	if title == "" {
		title = slug.Title(s)
	}
	e := &Episode{
		Slug:      s,
		Title:     title,
		AnimeSlug: animeSlug,
		Streams:   []StreamSource{},
	}
	c.Episodes[s] = e
	return e
}

// EnsureGenre registers an empty genre bucket if the genre is unknown
func (c *Catalog) EnsureGenre(genre string) bool {
	if genre == "" {
		return false
	}
	if _, ok := c.Genres[genre]; !ok {
		c.Genres[genre] = []string{}
	}
	return true
}

// AddToGenre appends an anime slug to a genre bucket, creating the bucket if needed
func (c *Catalog) AddToGenre(genre, animeSlug string) {
	if !c.EnsureGenre(genre) || animeSlug == "" {
		return
	}
	for _, s := range c.Genres[genre] {
		if s == animeSlug {
			return
		}
	}
	c.Genres[genre] = append(c.Genres[genre], animeSlug)
}

// AddFeatured appends an anime slug to the featured list unless already present
func (c *Catalog) AddFeatured(animeSlug string) {
	for _, s := range c.Featured {
		if s == animeSlug {
			return
		}
	}
	c.Featured = append(c.Featured, animeSlug)
}

// AnimeSlugs returns anime slugs in insertion order
func (c *Catalog) AnimeSlugs() []string {
	out := make([]string, 0, len(c.AnimeOrder))
	for _, s := range c.AnimeOrder {
		if _, ok := c.Anime[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Counts summarises the catalog size
type Counts struct {
	Anime    int `json:"anime"`
	Episodes int `json:"episodes"`
	Genres   int `json:"genres"`
	Schedule int `json:"schedule"`
	Featured int `json:"featured"`
}

// Counts returns the number of records of each kind
func (c *Catalog) Counts() Counts {
	return Counts{
		Anime:    len(c.Anime),
		Episodes: len(c.Episodes),
		Genres:   len(c.Genres),
		Schedule: len(c.Schedule),
		Featured: len(c.Featured),
	}
}
