// Package fetcher retrieves site pages, preferring saved snapshots over live
// requests, and resolves mirror stream links.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/docutag/animescraper/corpus"
	"github.com/docutag/animescraper/metrics"
)

// DefaultUserAgent is sent with live requests
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Fetch sources reported to metrics
const (
	SourceLocal = "local"
	SourceLive  = "live"
)

// maxBodyBytes caps a single response body
const maxBodyBytes = 16 << 20

// Config contains fetcher configuration
type Config struct {
	BaseURL           string        `yaml:"base_url" validate:"required,url"`
	UserAgent         string        `yaml:"user_agent"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gt=0"`
	Burst             int           `yaml:"burst" validate:"min=1"`
	MaxRetries        int           `yaml:"max_retries" validate:"min=0"`
	RetryBackoff      time.Duration `yaml:"retry_backoff" validate:"gte=0"` // Initial retry interval
	IndexPath         string        `yaml:"index_path"`
}

// DefaultConfig returns default fetcher configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://otakudesu.best",
		UserAgent:         DefaultUserAgent,
		Timeout:           10 * time.Second,
		RequestsPerSecond: 2,
		Burst:             4,
		MaxRetries:        3,
		RetryBackoff:      500 * time.Millisecond,
		IndexPath:         "data/index.csv",
	}
}

// LocalReader reads saved snapshots by sequence number
type LocalReader interface {
	FindBySeq(ctx context.Context, host string, seq int) ([]byte, error)
}

// StatusError is returned for non-200 live responses
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s (%s)", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// Fetcher retrieves pages from local snapshots or the live site
type Fetcher struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	index      *Index
	local      LocalReader
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// New creates a Fetcher. index and local may be nil to fetch live only.
func New(config Config, index *Index, local LocalReader, logger *slog.Logger, m *metrics.Metrics) *Fetcher {
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = defaults.Burst
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Fetcher{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		index:   index,
		local:   local,
		logger:  logger,
		metrics: m,
	}
}

// BaseURL returns the site root without a trailing slash
func (f *Fetcher) BaseURL() string {
	return f.config.BaseURL
}

// Fetch returns the body of rawURL from its indexed snapshot when one exists,
// otherwise from the live site. The second result names the source used.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	if body, ok := f.fetchLocal(ctx, rawURL); ok {
		f.metrics.ObserveFetch(SourceLocal, nil)
		return body, SourceLocal, nil
	}

	body, err := f.Live(ctx, rawURL)
	f.metrics.ObserveFetch(SourceLive, err)
	if err != nil {
		return nil, SourceLive, err
	}
	return body, SourceLive, nil
}

// Document fetches rawURL and parses it
func (f *Fetcher) Document(ctx context.Context, rawURL string) (*goquery.Document, error) {
	body, _, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

func (f *Fetcher) fetchLocal(ctx context.Context, rawURL string) ([]byte, bool) {
	if f.local == nil {
		return nil, false
	}
	seq, ok := f.index.Lookup(rawURL)
	if !ok {
		return nil, false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, false
	}

	body, err := f.local.FindBySeq(ctx, u.Host, seq)
	if corpus.IsNotFound(err) {
		f.logger.Debug("indexed snapshot missing, fetching live", "url", rawURL, "seq", seq)
		return nil, false
	}
	if err != nil {
		f.logger.Warn("indexed snapshot unreadable, fetching live", "url", rawURL, "seq", seq, "error", err)
		return nil, false
	}
	return body, true
}

// Live performs a rate-limited GET with retries on network errors, 429 and 5xx
func (f *Fetcher) Live(ctx context.Context, rawURL string) ([]byte, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	return f.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	})
}

// PostForm performs a rate-limited form POST with the same retry policy as Live
func (f *Fetcher) PostForm(ctx context.Context, rawURL string, form url.Values) ([]byte, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	encoded := form.Encode()
	return f.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
}

func (f *Fetcher) do(ctx context.Context, newRequest func() (*http.Request, error)) ([]byte, error) {
	var body []byte
	attempt := 0

	operation := func() error {
		attempt++
		if err := f.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := newRequest()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("User-Agent", f.config.UserAgent)

		resp, err := f.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("failed to fetch URL: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			statusErr := &StatusError{URL: req.URL.String(), StatusCode: resp.StatusCode}
			if retryable(resp.StatusCode) {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		f.logger.Warn("request failed, retrying", "attempt", attempt, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(operation, f.backoff(ctx), notify); err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if f.config.RetryBackoff > 0 {
		b.InitialInterval = f.config.RetryBackoff
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.config.MaxRetries)), ctx)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("URL must be http or https")
	}
	return nil
}
