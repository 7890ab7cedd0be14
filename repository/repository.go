// Package repository provides read-only views over an assembled catalog.
package repository

import (
	"cmp"
	"errors"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/docutag/animescraper/models"
)

// ErrNotFound is returned by lookups for slugs that are not in the catalog
var ErrNotFound = errors.New("not found")

const (
	DefaultFeaturedLimit = 8
	DefaultLatestLimit   = 12
	DefaultScheduleLimit = 20
)

// Sort orders for AnimeList
const (
	SortTitle  = "title"
	SortStatus = "status"
)

// Repository answers queries against one catalog. The catalog must not be
// mutated once handed over; every method is safe for concurrent use.
type Repository struct {
	catalog *models.Catalog
}

// New wraps catalog. A nil catalog is treated as empty.
func New(catalog *models.Catalog) *Repository {
	if catalog == nil {
		catalog = models.NewCatalog()
	}
	return &Repository{catalog: catalog}
}

// Catalog returns the underlying catalog
func (r *Repository) Catalog() *models.Catalog {
	return r.catalog
}

// Featured returns up to limit featured anime, skipping slugs no longer present
func (r *Repository) Featured(limit int) []*models.Anime {
	slugs := r.catalog.Featured
	if limit >= 0 && limit < len(slugs) {
		slugs = slugs[:limit]
	}
	out := []*models.Anime{}
	for _, s := range slugs {
		if a, ok := r.catalog.Anime[s]; ok {
			out = append(out, a)
		}
	}
	return out
}

// LatestUpdates returns episodes by slug descending, truncated to limit.
// Slug order only approximates recency.
func (r *Repository) LatestUpdates(limit int) []*models.Episode {
	eps := r.episodes()
	slices.SortFunc(eps, func(a, b *models.Episode) int {
		return strings.Compare(b.Slug, a.Slug)
	})
	return truncate(eps, limit)
}

// Ongoing returns anime whose status contains "on" case-insensitively, by title
func (r *Repository) Ongoing() []*models.Anime {
	out := []*models.Anime{}
	for _, a := range r.anime() {
		if strings.Contains(strings.ToLower(a.Status), "on") {
			out = append(out, a)
		}
	}
	slices.SortStableFunc(out, byTitle)
	return out
}

// AnimeList returns all anime, optionally limited to a genre, sorted by
// title or by (status, title) when sortBy is SortStatus. Genre membership
// is checked on both the genre bucket and the anime's own genre list.
func (r *Repository) AnimeList(sortBy, genre string) []*models.Anime {
	all := r.anime()
	out := all
	if genre != "" {
		allowed := make(map[string]bool)
		for _, s := range r.catalog.Genres[genre] {
			allowed[s] = true
		}
		out = []*models.Anime{}
		for _, a := range all {
			if allowed[a.Slug] || a.HasGenre(genre) {
				out = append(out, a)
			}
		}
	}

	if sortBy == SortStatus {
		slices.SortStableFunc(out, func(a, b *models.Anime) int {
			return cmp.Or(strings.Compare(a.Status, b.Status), strings.Compare(a.Title, b.Title))
		})
	} else {
		slices.SortStableFunc(out, byTitle)
	}
	return out
}

// Genre is a genre bucket
type Genre struct {
	Slug  string   `json:"slug"`
	Anime []string `json:"anime"`
}

// Genres returns genre buckets sorted by slug
func (r *Repository) Genres() []Genre {
	out := make([]Genre, 0, len(r.catalog.Genres))
	for s, members := range r.catalog.Genres {
		out = append(out, Genre{Slug: s, Anime: slices.Clone(members)})
	}
	slices.SortFunc(out, func(a, b Genre) int { return strings.Compare(a.Slug, b.Slug) })
	return out
}

// GenreAnime returns the anime of a genre bucket in bucket order, skipping
// slugs with no record
func (r *Repository) GenreAnime(genre string) ([]*models.Anime, error) {
	members, ok := r.catalog.Genres[genre]
	if !ok {
		return nil, ErrNotFound
	}
	out := []*models.Anime{}
	for _, s := range members {
		if a, ok := r.catalog.Anime[s]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// NextSchedule returns the first limit schedule entries
func (r *Repository) NextSchedule(limit int) []models.ScheduleItem {
	return truncate(slices.Clone(r.catalog.Schedule), limit)
}

// FindAnime looks up an anime by slug
func (r *Repository) FindAnime(slug string) (*models.Anime, error) {
	if a, ok := r.catalog.Anime[slug]; ok {
		return a, nil
	}
	return nil, ErrNotFound
}

// FindEpisode looks up an episode by slug
func (r *Repository) FindEpisode(slug string) (*models.Episode, error) {
	if e, ok := r.catalog.Episodes[slug]; ok {
		return e, nil
	}
	return nil, ErrNotFound
}

// EpisodesForAnime returns the episodes owned by animeSlug, by slug ascending
func (r *Repository) EpisodesForAnime(animeSlug string) []*models.Episode {
	out := []*models.Episode{}
	for _, e := range r.catalog.Episodes {
		if e.AnimeSlug == animeSlug {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b *models.Episode) int { return strings.Compare(a.Slug, b.Slug) })
	return out
}

// Search matches query case-insensitively against title, synopsis, status
// and genre slugs. An empty query returns the (genre-filtered) title-sorted list.
func (r *Repository) Search(query, genre string) []*models.Anime {
	candidates := r.AnimeList(SortTitle, genre)
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return candidates
	}

	out := []*models.Anime{}
	for _, a := range candidates {
		haystack := strings.ToLower(strings.Join([]string{a.Title, a.Synopsis, a.Status, strings.Join(a.Genres, " ")}, " "))
		if strings.Contains(haystack, query) {
			out = append(out, a)
		}
	}
	return out
}

// Debug is the whole catalog as plain nested data
type Debug struct {
	Anime    map[string]*models.Anime   `json:"anime"`
	Episodes map[string]*models.Episode `json:"episodes"`
	Genres   map[string][]string        `json:"genres"`
	Schedule []models.ScheduleItem      `json:"schedule"`
}

// Debug returns the catalog for inspection
func (r *Repository) Debug() Debug {
	return Debug{
		Anime:    r.catalog.Anime,
		Episodes: r.catalog.Episodes,
		Genres:   r.catalog.Genres,
		Schedule: r.catalog.Schedule,
	}
}

// anime returns all anime in insertion order, so stable sorts break ties deterministically
func (r *Repository) anime() []*models.Anime {
	out := make([]*models.Anime, 0, len(r.catalog.Anime))
	seen := make(map[string]bool, len(r.catalog.Anime))
	for _, s := range r.catalog.AnimeSlugs() {
		out = append(out, r.catalog.Anime[s])
		seen[s] = true
	}
	// Catalogs decoded from snapshots may lack an insertion order.
	if len(out) < len(r.catalog.Anime) {
		var rest []string
		for s := range r.catalog.Anime {
			if !seen[s] {
				rest = append(rest, s)
			}
		}
		slices.Sort(rest)
		for _, s := range rest {
			out = append(out, r.catalog.Anime[s])
		}
	}
	return out
}

func (r *Repository) episodes() []*models.Episode {
	out := make([]*models.Episode, 0, len(r.catalog.Episodes))
	for _, e := range r.catalog.Episodes {
		out = append(out, e)
	}
	return out
}

func byTitle(a, b *models.Anime) int {
	return strings.Compare(a.Title, b.Title)
}

func truncate[T any](s []T, limit int) []T {
	if limit >= 0 && limit < len(s) {
		return s[:limit]
	}
	return s
}

// Store holds the live repository and swaps in rebuilt ones atomically.
// Readers never observe a catalog being assembled.
type Store struct {
	current atomic.Pointer[Repository]
}

// NewStore creates a Store serving catalog
func NewStore(catalog *models.Catalog) *Store {
	s := &Store{}
	s.Swap(catalog)
	return s
}

// Get returns the live repository
func (s *Store) Get() *Repository {
	return s.current.Load()
}

// Swap replaces the live catalog with a freshly built one
func (s *Store) Swap(catalog *models.Catalog) {
	s.current.Store(New(catalog))
}
