package slug

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// EpisodeMarker separates the owning anime prefix from the episode part of an episode slug
const EpisodeMarker = "-episode-"

// DefaultAliases maps known inconsistent anime slugs to the slug the site publishes
// for the same series. Extend it explicitly when a new drift is found.
var DefaultAliases = map[string]string{
	"onk-s3": "oshi-ko-s3-sub-indo",
}

var (
	nonSlugChars = regexp.MustCompile("[^a-z0-9-]+")
	hyphenRuns   = regexp.MustCompile("-+")
	titleCaser   = cases.Title(language.Und)
)

// Generate creates a URL-friendly slug from a string
func Generate(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ToLower(s)
	s = transliterate(s)

	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")

	s = nonSlugChars.ReplaceAllString(s, "")
	s = hyphenRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	// Limit length to 100 characters
	if len(s) > 100 {
		s = s[:100]
		s = strings.TrimRight(s, "-")
	}

	return s
}

// GenerateWithFallback generates a slug, falling back to a default if the input produces an empty slug
func GenerateWithFallback(s, fallback string) string {
	slug := Generate(s)
	if slug == "" {
		return Generate(fallback)
	}
	return slug
}

// transliterate converts unicode characters to ASCII equivalents
func transliterate(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// isMn checks if a rune is a nonspacing mark (accents, diacritics)
func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}

// FromURL returns the last non-empty path segment of a URL.
// Scheme, host, query and fragment are ignored. Unparseable or empty input
// yields an empty slug, which callers treat as unknown.
func FromURL(raw string) string {
	segments := pathSegments(raw)
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}

// Segment returns the path segment that directly follows marker, e.g.
// Segment("https://x/genres/action/page/2/", "genres") == "action".
func Segment(raw, marker string) string {
	segments := pathSegments(raw)
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] == marker {
			return segments[i+1]
		}
	}
	return ""
}

func pathSegments(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	var segments []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// Resolver reconciles anime identities across inconsistent slugs
type Resolver struct {
	aliases map[string]string
}

// NewResolver creates a Resolver using DefaultAliases extended with extra.
// Entries in extra win over the defaults.
func NewResolver(extra map[string]string) *Resolver {
	aliases := make(map[string]string, len(DefaultAliases)+len(extra))
	for k, v := range DefaultAliases {
		aliases[k] = v
	}
	for k, v := range extra {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		aliases[k] = v
	}
	return &Resolver{aliases: aliases}
}

// Alias returns the canonical slug for s, or s itself when no alias is known
func (r *Resolver) Alias(s string) string {
	if canonical, ok := r.aliases[s]; ok {
		return canonical
	}
	return s
}

// CanonicalAnime derives the owning anime slug of an episode slug: the part
// before EpisodeMarker, passed through the alias table.
func (r *Resolver) CanonicalAnime(episodeSlug string) string {
	prefix, _, _ := strings.Cut(episodeSlug, EpisodeMarker)
	return r.Alias(prefix)
}

var defaultResolver = NewResolver(nil)

// CanonicalAnime resolves an episode slug with the default alias table
func CanonicalAnime(episodeSlug string) string {
	return defaultResolver.CanonicalAnime(episodeSlug)
}

// Title derives a human readable title from a slug when no label is available
func Title(s string) string {
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	return titleCaser.String(strings.Join(strings.Fields(s), " "))
}
