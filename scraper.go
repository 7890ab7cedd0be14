package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docutag/animescraper/corpus"
	"github.com/docutag/animescraper/metrics"
	"github.com/docutag/animescraper/models"
	"github.com/docutag/animescraper/slug"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/docutag/animescraper"

// Config contains scraper configuration
type Config struct {
	Aliases         map[string]string // Extra anime slug aliases on top of slug.DefaultAliases
	StreamHosts     []string          // Accepted stream providers
	MaxStreams      int               // Maximum stream sources per episode
	FeaturedDefault int               // Featured list size when no home page filled it
	SeedEmbeds      []SeedEmbed       // Embed snapshots read for the fallback stream seed
}

// DefaultConfig returns default scraper configuration
func DefaultConfig() Config {
	return Config{
		StreamHosts:     DefaultStreamHosts,
		MaxStreams:      DefaultMaxStreams,
		FeaturedDefault: DefaultFeatured,
		SeedEmbeds:      DefaultSeedEmbeds,
	}
}

// PageSource supplies snapshot pages and saved embed bodies
type PageSource interface {
	Pages(ctx context.Context) ([]corpus.Page, error)
	SnapshotReader
}

// Scraper builds catalogs from a page source
type Scraper struct {
	config    Config
	source    PageSource
	assembler *Assembler
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// New creates a new Scraper instance.
// logger and m may be nil.
func New(config Config, source PageSource, logger *slog.Logger, m *metrics.Metrics) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	resolver := slug.NewResolver(config.Aliases)
	collector := NewCollector(config.StreamHosts, config.MaxStreams)

	return &Scraper{
		config:    config,
		source:    source,
		assembler: NewAssembler(resolver, collector, config.FeaturedDefault),
		logger:    logger,
		metrics:   m,
		tracer:    otel.Tracer(tracerName),
	}
}

// Build loads every page from the source and assembles a fresh catalog.
// Only failing to list or read the corpus is an error; bad pages are skipped.
func (s *Scraper) Build(ctx context.Context) (*models.Catalog, error) {
	ctx, span := s.tracer.Start(ctx, "scraper.Build")
	defer span.End()

	start := time.Now()

	pages, err := s.source.Pages(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load pages")
		s.metrics.ObserveBuild(time.Since(start), err)
		return nil, fmt.Errorf("failed to load pages: %w", err)
	}

	seed := FallbackSeed(ctx, s.source, s.config.SeedEmbeds)
	if len(seed) == 0 {
		s.logger.Warn("no fallback stream seed available")
	}

	catalog, report := s.assembler.Assemble(pages, seed)
	for _, name := range report.Skipped {
		s.logger.Debug("page skipped, required marker missing", "page", name)
	}

	duration := time.Since(start)
	counts := catalog.Counts()

	for kind, n := range report.Applied {
		s.metrics.ObservePages(string(kind), "applied", n)
	}
	s.metrics.ObservePages("any", "skipped", len(report.Skipped))
	s.metrics.ObservePages("unknown", "ignored", report.Ignored)
	s.metrics.ObserveBuild(duration, nil)

	span.SetAttributes(
		attribute.Int("corpus.pages", report.Pages),
		attribute.Int("corpus.skipped", len(report.Skipped)),
		attribute.Int("catalog.anime", counts.Anime),
		attribute.Int("catalog.episodes", counts.Episodes),
		attribute.Int("catalog.genres", counts.Genres),
	)

	s.logger.Info("catalog built",
		"pages", report.Pages,
		"skipped", len(report.Skipped),
		"ignored", report.Ignored,
		"anime", counts.Anime,
		"episodes", counts.Episodes,
		"genres", counts.Genres,
		"schedule", counts.Schedule,
		"featured", counts.Featured,
		"seed_streams", len(seed),
		"duration_ms", duration.Milliseconds(),
	)

	return catalog, nil
}
