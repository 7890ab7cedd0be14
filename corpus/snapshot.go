package corpus

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/docutag/animescraper/storage"
)

// SnapshotName builds the request name for a saved response, e.g.
// SnapshotName(3, "GET", "/anime/demo/") == "00003_GET_anime_demo_".
func SnapshotName(seq int, method, urlPath string) string {
	p := strings.ReplaceAll(strings.TrimPrefix(urlPath, "/"), "/", "_")
	return fmt.Sprintf("%05d_%s_%s", seq, strings.ToUpper(method), p)
}

// Writer saves fetched pages in the snapshot layout
type Writer struct {
	store storage.Store
}

// NewWriter creates a Writer over store
func NewWriter(store storage.Store) *Writer {
	return &Writer{store: store}
}

// Save stores body for rawURL under <host>/<name>/04_res_body.html and
// returns the storage key.
func (w *Writer) Save(ctx context.Context, seq int, rawURL string, body []byte) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid snapshot URL %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("snapshot URL %q has no host", rawURL)
	}

	key := path.Join(u.Host, SnapshotName(seq, "GET", u.Path), BodyFile)
	if err := w.store.Save(ctx, key, body, "text/html"); err != nil {
		return "", err
	}
	return key, nil
}
