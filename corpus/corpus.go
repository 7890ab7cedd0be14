// Package corpus supplies saved page snapshots to the catalog builder.
//
// Snapshots are laid out as <host>/<seq>_<METHOD>_<path>/04_res_body.html,
// where the middle directory name is the request name used to pick a parser.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/docutag/animescraper/storage"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultHost is the site directory scanned for pages
	DefaultHost = "otakudesu.best"
	// BodyFile is the response body file inside each snapshot directory
	BodyFile = "04_res_body.html"
)

// Kind identifies the page shape of a snapshot
type Kind string

const (
	KindUnknown     Kind = ""
	KindAnimeIndex  Kind = "anime-index"
	KindOngoing     Kind = "ongoing"
	KindGenreIndex  Kind = "genre-index"
	KindSchedule    Kind = "schedule"
	KindAnimeDetail Kind = "anime-detail"
	KindEpisode     Kind = "episode"
	KindGenreDetail Kind = "genre-detail"
	KindHome        Kind = "home"
)

// kindRules are checked in order; the first match wins.
var kindRules = []struct {
	marker string
	kind   Kind
}{
	{"GET_anime-list_", KindAnimeIndex},
	{"GET_ongoing-anime_", KindOngoing},
	{"GET_genre-list_", KindGenreIndex},
	{"GET_jadwal-rilis_", KindSchedule},
	{"GET_anime_", KindAnimeDetail},
	{"episode_", KindEpisode},
	{"GET_genres_", KindGenreDetail},
}

// KindOf maps a snapshot request name to its page kind.
// Names that match no rule are KindUnknown and get ignored.
func KindOf(requestName string) Kind {
	for _, r := range kindRules {
		if strings.Contains(requestName, r.marker) {
			return r.kind
		}
	}
	if strings.HasSuffix(requestName, "GET_") {
		return KindHome
	}
	return KindUnknown
}

// Page is one snapshot handed to the catalog builder
type Page struct {
	Key  string // Storage key of the body file
	Name string // Request name (snapshot directory)
	Kind Kind
	Body []byte
}

// Config contains corpus source configuration
type Config struct {
	Host        string // Site directory under the store root
	Concurrency int    // Maximum parallel page reads
}

// DefaultConfig returns default corpus configuration
func DefaultConfig() Config {
	return Config{
		Host:        DefaultHost,
		Concurrency: 8,
	}
}

// Source lists and reads snapshots from a store
type Source struct {
	store  storage.Store
	config Config
	logger *slog.Logger
}

// NewSource creates a Source over store
func NewSource(store storage.Store, config Config, logger *slog.Logger) *Source {
	if config.Host == "" {
		config.Host = DefaultHost
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{store: store, config: config, logger: logger}
}

// Store returns the underlying store
func (s *Source) Store() storage.Store {
	return s.store
}

// Pages returns every snapshot body of the configured host in lexicographic
// key order. Pages that vanish or cannot be read are skipped with a warning.
func (s *Source) Pages(ctx context.Context) ([]Page, error) {
	keys, err := s.store.List(ctx, s.config.Host+"/")
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	var candidates []Page
	for _, key := range keys {
		name, ok := requestName(s.config.Host, key)
		if !ok {
			continue
		}
		candidates = append(candidates, Page{Key: key, Name: name, Kind: KindOf(name)})
	}

	loaded := make([]bool, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	for i := range candidates {
		g.Go(func() error {
			body, err := s.store.Read(gctx, candidates[i].Key)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.logger.Warn("skipping unreadable snapshot", "key", candidates[i].Key, "error", err)
				return nil
			}
			candidates[i].Body = body
			loaded[i] = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	pages := make([]Page, 0, len(candidates))
	for i, p := range candidates {
		if loaded[i] {
			pages = append(pages, p)
		}
	}
	return pages, nil
}

// ReadSnapshot reads the body of a snapshot directory on any host.
// A missing snapshot yields an error wrapping storage.ErrNotFound.
func (s *Source) ReadSnapshot(ctx context.Context, host, name string) ([]byte, error) {
	return s.store.Read(ctx, path.Join(host, name, BodyFile))
}

// FindBySeq reads the body of the snapshot with sequence number seq on host.
// A missing snapshot yields an error wrapping storage.ErrNotFound.
func (s *Source) FindBySeq(ctx context.Context, host string, seq int) ([]byte, error) {
	keys, err := s.store.List(ctx, fmt.Sprintf("%s/%05d_", host, seq))
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if _, ok := requestName(host, key); ok {
			return s.store.Read(ctx, key)
		}
	}
	return nil, fmt.Errorf("snapshot %05d on %s: %w", seq, host, storage.ErrNotFound)
}

// IsNotFound reports whether err means the snapshot does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

// requestName extracts the snapshot directory from host/<name>/04_res_body.html
func requestName(host, key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, host+"/")
	if !ok {
		return "", false
	}
	name, file, ok := strings.Cut(rest, "/")
	if !ok || file != BodyFile || name == "" {
		return "", false
	}
	return name, true
}
