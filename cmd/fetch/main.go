package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	scraper "github.com/docutag/animescraper"
	"github.com/docutag/animescraper/config"
	"github.com/docutag/animescraper/corpus"
	"github.com/docutag/animescraper/db"
	"github.com/docutag/animescraper/fetcher"
	"github.com/docutag/animescraper/storage"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to YAML configuration file")
	out := flag.String("out", "", "Corpus root to write snapshots into (overrides config)")
	seeds := flag.String("seeds", strings.Join(fetcher.DefaultSeedPaths, ","), "Comma-separated seed paths")
	follow := flag.Bool("follow", true, "Follow anime, episode and genre links on seed pages")
	maxPages := flag.Int("max-pages", 200, "Maximum number of pages to save (0 for no limit)")
	snapshot := flag.String("snapshot", "", "Build the catalog after crawling and save it to the database under this label")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *out != "" {
		cfg.Corpus.Root = *out
	}

	logger := cfg.Logger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(storage.Config{BasePath: cfg.Corpus.Root})
	if err != nil {
		logger.Error("failed to open corpus root", "root", cfg.Corpus.Root, "error", err)
		os.Exit(1)
	}

	index, err := fetcher.LoadIndexFile(cfg.Fetch.IndexPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Error("failed to load snapshot index", "path", cfg.Fetch.IndexPath, "error", err)
		os.Exit(1)
	}

	// Live only: the crawler exists to refresh snapshots.
	f := fetcher.New(cfg.Fetch, nil, nil, logger, nil)
	crawler := fetcher.NewCrawler(f, corpus.NewWriter(store), index, logger)

	result, err := crawler.Crawl(ctx, fetcher.CrawlConfig{
		SeedPaths:     splitPaths(*seeds),
		FollowDetails: *follow,
		MaxPages:      *maxPages,
	})
	if err != nil {
		logger.Error("crawl failed", "error", err, "saved", result.Saved)
	}

	if werr := writeIndex(cfg.Fetch.IndexPath, crawler.Index()); werr != nil {
		logger.Error("failed to write snapshot index", "path", cfg.Fetch.IndexPath, "error", werr)
		os.Exit(1)
	}

	logger.Info("crawl complete",
		"saved", result.Saved,
		"failed", len(result.Failed),
		"indexed", crawler.Index().Len(),
		"root", cfg.Corpus.Root,
	)
	if err != nil {
		os.Exit(1)
	}

	if *snapshot == "" {
		return
	}
	if err := saveSnapshot(ctx, cfg, store, *snapshot, logger); err != nil {
		logger.Error("failed to save catalog snapshot", "error", err)
		os.Exit(1)
	}
}

func splitPaths(s string) []string {
	var paths []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

func writeIndex(path string, index *fetcher.Index) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := index.WriteTo(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func saveSnapshot(ctx context.Context, cfg *config.Config, store storage.Store, label string, logger *slog.Logger) error {
	dbConfig := cfg.DB
	if dbConfig.DSN == "" {
		dbConfig = db.DefaultConfig()
	}
	database, err := db.New(dbConfig)
	if err != nil {
		return err
	}
	defer database.Close()

	source := corpus.NewSource(store, cfg.CorpusSourceConfig(), logger)
	catalog, err := scraper.New(cfg.ScraperConfig(), source, logger, nil).Build(ctx)
	if err != nil {
		return err
	}

	snap, err := database.SaveSnapshot(ctx, catalog, label)
	if err != nil {
		return err
	}
	logger.Info("catalog snapshot saved", "id", snap.ID, "label", snap.Label, "anime", snap.Counts.Anime, "episodes", snap.Counts.Episodes)
	return nil
}
