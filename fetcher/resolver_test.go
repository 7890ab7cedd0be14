package fetcher

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// ajaxServer mimics admin-ajax.php: a nonce action and an embed action that
// requires the nonce and answers with base64 embed HTML.
func ajaxServer(t *testing.T, nonce, embedHTML string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/wp-admin/admin-ajax.php" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var data string
		switch r.PostForm.Get("action") {
		case NonceAction:
			data = nonce
		case EmbedAction:
			if r.PostForm.Get("nonce") != nonce || r.PostForm.Get("id") != "123" || r.PostForm.Get("q") != "720p" {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			data = b64(embedHTML)
		default:
			http.Error(w, "unknown action", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"data": data})
	}))
}

var mirror = b64(`{"id":123,"i":0,"q":"720p"}`)

func TestResolve(t *testing.T) {
	server := ajaxServer(t, "n0nce", `<div class="responsive-embed"><iframe src=" https://desustream.info/dstream/x " allowfullscreen></iframe></div>`)
	defer server.Close()

	r := NewResolver(New(testConfig(server.URL), nil, nil, nil, nil))
	src, err := r.Resolve(context.Background(), mirror)
	require.NoError(t, err)
	assert.Equal(t, "https://desustream.info/dstream/x", src)
}

func TestResolveEmptyNonce(t *testing.T) {
	server := ajaxServer(t, "", `<iframe src="x"></iframe>`)
	defer server.Close()

	r := NewResolver(New(testConfig(server.URL), nil, nil, nil, nil))
	_, err := r.Resolve(context.Background(), mirror)
	assert.ErrorIs(t, err, ErrNotResolved)
}

func TestResolveEmbedWithoutIframe(t *testing.T) {
	server := ajaxServer(t, "n0nce", `<p>removed</p>`)
	defer server.Close()

	r := NewResolver(New(testConfig(server.URL), nil, nil, nil, nil))
	_, err := r.Resolve(context.Background(), mirror)
	assert.ErrorIs(t, err, ErrNotResolved)
}

func TestResolveBadDataContent(t *testing.T) {
	r := NewResolver(New(testConfig("http://127.0.0.1:1"), nil, nil, nil, nil))

	_, err := r.Resolve(context.Background(), "%%%not-base64")
	assert.ErrorIs(t, err, ErrNotResolved)

	_, err = r.Resolve(context.Background(), b64(`["not", "an", "object"]`))
	assert.ErrorIs(t, err, ErrNotResolved)
}

func TestDecodeMirror(t *testing.T) {
	form, err := decodeMirror(mirror)
	require.NoError(t, err)
	assert.Equal(t, "123", form.Get("id"))
	assert.Equal(t, "0", form.Get("i"))
	assert.Equal(t, "720p", form.Get("q"))
}

const videoPage = `<html><head><script>window.x = 1;</script><script>
var VIDEO_CONFIG = {"thumbnail":"https://i.ytimg.com/x.jpg","streams":[{"play_url":"https://rr.googlevideo.com/videoplayback?id=1\u0026itag=18","format_id":18},{"play_url":"https://rr.googlevideo.com/videoplayback?id=1\u0026itag=22","format_id":22}]};
</script></head><body></body></html>`

// playerServer serves a desustream-style player page at /dstream/ whose
// iframe points at the video page on localhost, and the video page itself
func playerServer(t *testing.T, player, video string) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dstream/x":
			fmt.Fprintf(w, player, localhostURL(server))
		case "/video.g":
			fmt.Fprint(w, video)
		default:
			http.NotFound(w, r)
		}
	}))
	return server
}

func localhostURL(server *httptest.Server) string {
	return strings.Replace(server.URL, "127.0.0.1", "localhost", 1)
}

func videoResolver(server *httptest.Server) *Resolver {
	r := NewResolver(New(testConfig(server.URL), nil, nil, nil, nil))
	r.videoHosts = []string{"localhost"}
	return r
}

func TestExtractVideoFollowsPlayerIframe(t *testing.T) {
	server := playerServer(t, `<div><iframe src="%s/video.g?token=abc"></iframe></div>`, videoPage)
	defer server.Close()

	got, err := videoResolver(server).ExtractVideo(context.Background(), server.URL+"/dstream/x")
	require.NoError(t, err)
	assert.Equal(t, "https://rr.googlevideo.com/videoplayback?id=1&itag=18", got)
}

func TestExtractVideoFromVideoPage(t *testing.T) {
	server := playerServer(t, "", videoPage)
	defer server.Close()

	got, err := videoResolver(server).ExtractVideo(context.Background(), localhostURL(server)+"/video.g?token=abc")
	require.NoError(t, err)
	assert.Equal(t, "https://rr.googlevideo.com/videoplayback?id=1&itag=18", got)
}

func TestExtractVideoNotResolved(t *testing.T) {
	tests := []struct {
		name   string
		player string
		video  string
	}{
		{"player without iframe", `<p>removed %s</p>`, videoPage},
		{"iframe to another host", `<iframe src="https://example.com/embed/%s"></iframe>`, videoPage},
		{"video page without config", `<iframe src="%s/video.g"></iframe>`, `<script>var PLAYER = {};</script>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := playerServer(t, tt.player, tt.video)
			defer server.Close()

			_, err := videoResolver(server).ExtractVideo(context.Background(), server.URL+"/dstream/x")
			assert.ErrorIs(t, err, ErrNotResolved)
		})
	}
}

func TestPlayURL(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		want    string
		wantErr bool
	}{
		{"assignment with semicolon", `VIDEO_CONFIG = {"streams":[{"play_url":"https://v/1"}]};`, "https://v/1", false},
		{"no trailing semicolon", `var VIDEO_CONFIG={"streams":[{"play_url":"https://v/2"}]}`, "https://v/2", false},
		{"nested objects", `VIDEO_CONFIG = {"meta":{"a":{"b":1}},"streams":[{"play_url":"https://v/3","x":{"y":2}}]}; next();`, "https://v/3", false},
		{"empty streams", `VIDEO_CONFIG = {"streams":[]};`, "", true},
		{"malformed json", `VIDEO_CONFIG = {streams: broken};`, "", true},
		{"missing", `var other = 1;`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader("<script>" + tt.script + "</script>"))
			require.NoError(t, err)

			got, err := playURL(doc)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotResolved)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
