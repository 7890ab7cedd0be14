// Package config loads service configuration from defaults, a YAML file and
// environment variables, and validates the result.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	scraper "github.com/docutag/animescraper"
	"github.com/docutag/animescraper/corpus"
	"github.com/docutag/animescraper/db"
	"github.com/docutag/animescraper/fetcher"
	"github.com/docutag/animescraper/storage"
	"github.com/docutag/animescraper/tracing"
)

// ServiceName identifies the service in traces and logs
const ServiceName = "animescraper"

// Storage backends
const (
	BackendFS = "fs"
	BackendS3 = "s3"
)

// Config holds the application configuration.
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Log     LogConfig      `yaml:"log"`
	Corpus  CorpusConfig   `yaml:"corpus"`
	Catalog CatalogConfig  `yaml:"catalog"`
	DB      db.Config      `yaml:"db"`
	Fetch   fetcher.Config `yaml:"fetch"`
	Exports ExportsConfig  `yaml:"exports"`
	Tracing tracing.Config `yaml:"tracing"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	CORSEnabled     bool          `yaml:"cors_enabled"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// CorpusConfig describes where snapshot pages are read from.
type CorpusConfig struct {
	Source      string           `yaml:"source" validate:"oneof=fs s3"`
	Root        string           `yaml:"root" validate:"required_if=Source fs"`
	Host        string           `yaml:"host" validate:"required"`
	Archive     string           `yaml:"archive"`
	Concurrency int              `yaml:"concurrency" validate:"min=1"`
	Watch       bool             `yaml:"watch"`
	Debounce    time.Duration    `yaml:"debounce" validate:"gte=0"`
	S3          storage.S3Config `yaml:"s3"`
}

// CatalogConfig tunes catalog assembly.
type CatalogConfig struct {
	FeaturedDefault int               `yaml:"featured_default" validate:"min=1"`
	MaxStreams      int               `yaml:"max_streams" validate:"min=1"`
	Aliases         map[string]string `yaml:"aliases"`
	StreamHosts     []string          `yaml:"stream_hosts" validate:"min=1,dive,hostname"`
}

// ExportsConfig describes where catalog exports are written.
type ExportsConfig struct {
	Backend  string           `yaml:"backend" validate:"oneof=fs s3"`
	BasePath string           `yaml:"base_path" validate:"required_if=Backend fs"`
	S3       storage.S3Config `yaml:"s3"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	sc := scraper.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			CORSEnabled:     true,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Corpus: CorpusConfig{
			Source:      BackendFS,
			Root:        ".",
			Host:        corpus.DefaultHost,
			Archive:     corpus.DefaultArchive,
			Concurrency: corpus.DefaultConfig().Concurrency,
			Debounce:    2 * time.Second,
		},
		Catalog: CatalogConfig{
			FeaturedDefault: sc.FeaturedDefault,
			MaxStreams:      sc.MaxStreams,
			Aliases:         map[string]string{},
			StreamHosts:     append([]string(nil), sc.StreamHosts...),
		},
		Fetch: fetcher.DefaultConfig(),
		Exports: ExportsConfig{
			Backend:  BackendFS,
			BasePath: storage.DefaultConfig().BasePath,
		},
		Tracing: tracing.DefaultConfig(ServiceName),
	}
}

// Load builds the configuration with precedence:
// 1. Environment variables (highest priority).
// 2. YAML file at path, when path is not empty.
// 3. Default values (lowest priority).
// Command-line flags are applied by the caller, which must call Validate again.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	c.Server.Addr = getEnv("SERVER_ADDR", c.Server.Addr)
	c.Log.Level = strings.ToLower(getEnv("LOG_LEVEL", c.Log.Level))
	c.Log.Format = strings.ToLower(getEnv("LOG_FORMAT", c.Log.Format))

	c.Corpus.Source = getEnv("CORPUS_SOURCE", c.Corpus.Source)
	c.Corpus.Root = getEnv("CORPUS_ROOT", c.Corpus.Root)
	c.Corpus.Host = getEnv("CORPUS_HOST", c.Corpus.Host)
	c.Corpus.Archive = getEnv("CORPUS_ARCHIVE", c.Corpus.Archive)
	applyS3Env("CORPUS_S3_", &c.Corpus.S3)

	c.DB.Driver = getEnv("DB_DRIVER", c.DB.Driver)
	c.DB.DSN = getEnv("DB_DSN", c.DB.DSN)

	c.Fetch.BaseURL = getEnv("FETCH_BASE_URL", c.Fetch.BaseURL)
	c.Fetch.IndexPath = getEnv("FETCH_INDEX_PATH", c.Fetch.IndexPath)

	c.Exports.Backend = getEnv("EXPORTS_BACKEND", c.Exports.Backend)
	c.Exports.BasePath = getEnv("STORAGE_BASE_PATH", c.Exports.BasePath)
	applyS3Env("EXPORTS_S3_", &c.Exports.S3)

	var err error
	if c.Corpus.Watch, err = getBoolEnv("CORPUS_WATCH", c.Corpus.Watch); err != nil {
		return err
	}
	if c.Server.CORSEnabled, err = getBoolEnv("CORS_ENABLED", c.Server.CORSEnabled); err != nil {
		return err
	}
	if c.Corpus.Debounce, err = getDurationEnv("CORPUS_DEBOUNCE", c.Corpus.Debounce); err != nil {
		return err
	}
	if c.Catalog.MaxStreams, err = getIntEnv("MAX_STREAMS", c.Catalog.MaxStreams); err != nil {
		return err
	}
	if c.Catalog.FeaturedDefault, err = getIntEnv("FEATURED_DEFAULT", c.Catalog.FeaturedDefault); err != nil {
		return err
	}
	if c.Fetch.RequestsPerSecond, err = getFloatEnv("FETCH_RPS", c.Fetch.RequestsPerSecond); err != nil {
		return err
	}
	return nil
}

func applyS3Env(prefix string, s3 *storage.S3Config) {
	s3.Endpoint = getEnv(prefix+"ENDPOINT", s3.Endpoint)
	s3.Region = getEnv(prefix+"REGION", s3.Region)
	s3.Bucket = getEnv(prefix+"BUCKET", s3.Bucket)
	s3.AccessKeyID = getEnv(prefix+"ACCESS_KEY_ID", s3.AccessKeyID)
	s3.SecretAccessKey = getEnv(prefix+"SECRET_ACCESS_KEY", s3.SecretAccessKey)
}

// Validate checks struct constraints. Error messages use YAML key names.
func (c *Config) Validate() error {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	err := v.Struct(c)
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	msgs := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", strings.TrimPrefix(e.Namespace(), "Config."), e.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// ScraperConfig returns the assembly settings
func (c *Config) ScraperConfig() scraper.Config {
	sc := scraper.DefaultConfig()
	sc.Aliases = c.Catalog.Aliases
	sc.StreamHosts = c.Catalog.StreamHosts
	sc.MaxStreams = c.Catalog.MaxStreams
	sc.FeaturedDefault = c.Catalog.FeaturedDefault
	return sc
}

// CorpusSourceConfig returns the page source settings
func (c *Config) CorpusSourceConfig() corpus.Config {
	return corpus.Config{Host: c.Corpus.Host, Concurrency: c.Corpus.Concurrency}
}

// Logger builds the process logger described by the log section
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	switch c.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return b, nil
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getFloatEnv(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return f, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
