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
	"syscall"
	"time"

	scraper "github.com/docutag/animescraper"
	"github.com/docutag/animescraper/api"
	"github.com/docutag/animescraper/config"
	"github.com/docutag/animescraper/corpus"
	"github.com/docutag/animescraper/db"
	"github.com/docutag/animescraper/fetcher"
	"github.com/docutag/animescraper/metrics"
	"github.com/docutag/animescraper/models"
	"github.com/docutag/animescraper/reload"
	"github.com/docutag/animescraper/repository"
	"github.com/docutag/animescraper/storage"
	"github.com/docutag/animescraper/tracing"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to YAML configuration file")
	addr := flag.String("addr", "", "Server listen address (overrides config)")
	dataRoot := flag.String("data", "", "Corpus root directory (overrides config)")
	disableCORS := flag.Bool("disable-cors", false, "Disable CORS")
	watch := flag.Bool("watch", false, "Rebuild the catalog when the corpus changes")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Command-line flags (override file and environment)
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dataRoot != "" {
		cfg.Corpus.Root = *dataRoot
	}
	if *disableCORS {
		cfg.Server.CORSEnabled = false
	}
	if *watch {
		cfg.Corpus.Watch = true
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger()
	slog.SetDefault(logger)
	logger.Info("anime catalog service initializing", "version", "1.0.0")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
		logger.Info("tracing initialized successfully", "endpoint", cfg.Tracing.Endpoint)
	}

	m := metrics.New()

	corpusStore, err := openCorpusStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open corpus", "error", err)
		os.Exit(1)
	}
	source := corpus.NewSource(corpusStore, cfg.CorpusSourceConfig(), logger)

	builder := scraper.New(cfg.ScraperConfig(), source, logger, m)
	catalog := repository.NewStore(nil)
	reloader := reload.New(builder, catalog, cfg.Corpus.Debounce, func(c *models.Catalog) {
		m.SetCatalogCounts(c.Counts())
	}, logger)

	var snapshots *db.DB
	if cfg.DB.DSN != "" {
		snapshots, err = db.New(cfg.DB)
		if err != nil {
			logger.Error("failed to open snapshot database", "error", err)
			os.Exit(1)
		}
		logger.Info("snapshot database ready", "driver", snapshots.Driver())

		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					m.UpdateDBStats(snapshots.DB().Stats())
				}
			}
		}()
	} else {
		logger.Info("no snapshot database configured, snapshot routes disabled")
	}

	built, err := reloader.Rebuild(ctx)
	if err != nil {
		logger.Error("failed to build catalog", "error", err)
		os.Exit(1)
	}
	if counts := built.Counts(); counts.Anime == 0 && counts.Episodes == 0 && snapshots != nil {
		snap, err := reloader.RestoreLatest(ctx, snapshots)
		switch {
		case errors.Is(err, db.ErrNoSnapshot):
			logger.Info("corpus is empty and no snapshot is stored, serving an empty catalog")
		case err != nil:
			logger.Warn("failed to restore latest snapshot", "error", err)
		default:
			logger.Info("corpus is empty, serving latest snapshot", "id", snap.ID, "created_at", snap.CreatedAt, "anime", snap.Counts.Anime)
		}
	}

	if cfg.Corpus.Watch {
		if cfg.Corpus.Source != config.BackendFS {
			logger.Warn("corpus watching needs a filesystem corpus, ignoring", "source", cfg.Corpus.Source)
		} else if err := reloader.Watch(ctx, filepath.Join(cfg.Corpus.Root, cfg.Corpus.Host)); err != nil {
			logger.Error("failed to watch corpus", "error", err)
			os.Exit(1)
		} else {
			logger.Info("watching corpus for changes", "debounce", cfg.Corpus.Debounce)
		}
	}

	index, err := fetcher.LoadIndexFile(cfg.Fetch.IndexPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("no snapshot index found, resolving live only", "path", cfg.Fetch.IndexPath)
	} else if err != nil {
		logger.Warn("failed to load snapshot index", "path", cfg.Fetch.IndexPath, "error", err)
		index = fetcher.NewIndex()
	}
	resolver := fetcher.NewResolver(fetcher.New(cfg.Fetch, index, source, logger, m))

	exports, err := openExportStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open export storage", "error", err)
		os.Exit(1)
	}

	server := api.NewServer(api.Config{
		Addr:         cfg.Server.Addr,
		CORSEnabled:  cfg.Server.CORSEnabled,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, api.Deps{
		Catalog:   catalog,
		Rebuilder: reloader,
		Resolver:  resolver,
		Exports:   exports,
		Snapshots: snapshots,
		Metrics:   m,
		Logger:    logger,
	})

	go func() {
		logger.Info("anime catalog service starting",
			"addr", cfg.Server.Addr,
			"corpus_source", cfg.Corpus.Source,
			"corpus_root", cfg.Corpus.Root,
			"host", cfg.Corpus.Host,
			"exports", cfg.Exports.Backend,
		)
		if err := server.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	// Graceful shutdown
	logger.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func openCorpusStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.Corpus.Source == config.BackendS3 {
		s3, err := storage.NewS3Storage(ctx, cfg.Corpus.S3)
		if err != nil {
			return nil, err
		}
		return s3, nil
	}
	if err := corpus.EnsureDataset(cfg.Corpus.Root, cfg.Corpus.Host, cfg.Corpus.Archive, logger); err != nil {
		return nil, err
	}
	local, err := storage.New(storage.Config{BasePath: cfg.Corpus.Root})
	if err != nil {
		return nil, err
	}
	return local, nil
}

func openExportStore(ctx context.Context, cfg *config.Config) (api.ExportStore, error) {
	if cfg.Exports.Backend == config.BackendS3 {
		s3, err := storage.NewS3Storage(ctx, cfg.Exports.S3)
		if err != nil {
			return nil, err
		}
		return s3, nil
	}
	local, err := storage.New(storage.Config{BasePath: cfg.Exports.BasePath})
	if err != nil {
		return nil, err
	}
	return local, nil
}
