package fetcher

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Admin-ajax actions used by the episode mirror player
const (
	NonceAction = "aa1208d27f29ca340c92c66d1926f13f"
	EmbedAction = "2a3505c93b0035d3f455df82bf976b84"
)

// ErrNotResolved is returned when a mirror does not yield an embed URL
var ErrNotResolved = errors.New("stream not resolved")

// DefaultVideoHosts serve the player pages that carry VIDEO_CONFIG
var DefaultVideoHosts = []string{"blogger.com"}

// Resolver turns a mirror's data-content token into its player URL, and a
// player URL into the video it plays
type Resolver struct {
	fetcher    *Fetcher
	endpoint   string
	videoHosts []string
}

// NewResolver creates a Resolver posting to the site's admin-ajax endpoint
func NewResolver(f *Fetcher) *Resolver {
	return &Resolver{
		fetcher:    f,
		endpoint:   f.BaseURL() + "/wp-admin/admin-ajax.php",
		videoHosts: DefaultVideoHosts,
	}
}

type ajaxResponse struct {
	Data string `json:"data"`
}

// Resolve requests a nonce, posts the decoded mirror parameters with it, and
// returns the iframe src of the embed HTML the site answers with.
func (r *Resolver) Resolve(ctx context.Context, dataContent string) (string, error) {
	params, err := decodeMirror(dataContent)
	if err != nil {
		return "", err
	}

	nonce, err := r.post(ctx, url.Values{"action": {NonceAction}})
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}
	if nonce == "" {
		return "", fmt.Errorf("%w: empty nonce", ErrNotResolved)
	}

	params.Set("nonce", nonce)
	params.Set("action", EmbedAction)
	embed, err := r.post(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to get embed: %w", err)
	}
	if embed == "" {
		return "", fmt.Errorf("%w: empty embed", ErrNotResolved)
	}

	html, err := base64.StdEncoding.DecodeString(embed)
	if err != nil {
		return "", fmt.Errorf("%w: embed is not base64: %v", ErrNotResolved, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse embed: %w", err)
	}
	src, ok := doc.Find("iframe[src]").First().Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return "", fmt.Errorf("%w: embed has no iframe", ErrNotResolved)
	}
	return strings.TrimSpace(src), nil
}

// ExtractVideo returns the direct video URL behind a player URL. A desustream
// player is followed through its iframe to the blogger page, whose
// VIDEO_CONFIG names the video; a blogger URL is read directly.
func (r *Resolver) ExtractVideo(ctx context.Context, playerURL string) (string, error) {
	target := strings.TrimSpace(playerURL)
	if !r.isVideoHost(target) {
		doc, err := r.fetcher.Document(ctx, target)
		if err != nil {
			return "", fmt.Errorf("failed to load player page: %w", err)
		}
		src := strings.TrimSpace(doc.Find("iframe[src]").First().AttrOr("src", ""))
		if !r.isVideoHost(src) {
			return "", fmt.Errorf("%w: player page has no video iframe", ErrNotResolved)
		}
		target = src
	}

	doc, err := r.fetcher.Document(ctx, target)
	if err != nil {
		return "", fmt.Errorf("failed to load video page: %w", err)
	}
	return playURL(doc)
}

func (r *Resolver) isVideoHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range r.videoHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

type videoConfig struct {
	Streams []struct {
		PlayURL string `json:"play_url"`
	} `json:"streams"`
}

// playURL reads the first stream of the VIDEO_CONFIG object assigned in one
// of the page scripts
func playURL(doc *goquery.Document) (string, error) {
	var found string
	doc.Find("script").EachWithBreak(func(_ int, script *goquery.Selection) bool {
		_, rest, ok := strings.Cut(script.Text(), "VIDEO_CONFIG")
		if !ok {
			return true
		}
		rest, ok = strings.CutPrefix(strings.TrimSpace(rest), "=")
		if !ok {
			return true
		}
		var cfg videoConfig
		if err := json.NewDecoder(strings.NewReader(rest)).Decode(&cfg); err != nil {
			return true
		}
		if len(cfg.Streams) > 0 {
			found = strings.TrimSpace(cfg.Streams[0].PlayURL)
		}
		return found == ""
	})
	if found == "" {
		return "", fmt.Errorf("%w: no VIDEO_CONFIG stream", ErrNotResolved)
	}
	return found, nil
}

func (r *Resolver) post(ctx context.Context, form url.Values) (string, error) {
	body, err := r.fetcher.PostForm(ctx, r.endpoint, form)
	if err != nil {
		return "", err
	}
	var resp ajaxResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: malformed response: %v", ErrNotResolved, err)
	}
	return resp.Data, nil
}

// decodeMirror decodes base64 JSON mirror parameters into form values
func decodeMirror(dataContent string) (url.Values, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(dataContent))
	if err != nil {
		return nil, fmt.Errorf("%w: data content is not base64: %v", ErrNotResolved, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var params map[string]any
	if err := dec.Decode(&params); err != nil {
		return nil, fmt.Errorf("%w: data content is not a JSON object: %v", ErrNotResolved, err)
	}

	form := url.Values{}
	for k, v := range params {
		form.Set(k, fmt.Sprint(v))
	}
	return form, nil
}
