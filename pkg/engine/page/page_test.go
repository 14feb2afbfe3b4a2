package page

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imggrab/pkg/fetch"
	"imggrab/pkg/logger"
)

func newTestEngine(t *testing.T, depth int) *Engine {
	t.Helper()
	client := fetch.NewClient(5*time.Second, "test-agent", logger.NewTestLogger())
	return New(client, depth, logger.NewTestLogger())
}

func TestCandidatesCollectsImageSources(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<img src="/images/a.jpg">
			<img data-src="/images/lazy.png">
			<img data-original="https://cdn.example.com/original.gif">
			<img srcset="/small.jpg 1x, /large.jpg 2x">
			<img src="">
			<img>
		</body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	eng := newTestEngine(t, 0)
	candidates, err := eng.Candidates(context.Background(), server.URL, 0)
	require.NoError(t, err)

	urls := make([]string, 0, len(candidates))
	for _, c := range candidates {
		urls = append(urls, c.URL)
		assert.Equal(t, server.URL, c.Referer)
	}
	assert.ElementsMatch(t, []string{
		server.URL + "/images/a.jpg",
		server.URL + "/images/lazy.png",
		"https://cdn.example.com/original.gif",
		server.URL + "/large.jpg",
	}, urls)
}

func TestCandidatesFollowsSameHostLinks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<img src="/root.jpg">
			<a href="/gallery">gallery</a>
			<a href="https://other-host.example.com/page">external</a>
			<a href="/login">login</a>
			<a href="/about">about</a>
		</body></html>`)
	})
	mux.HandleFunc("/gallery", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<img src="/gallery/one.jpg">
			<a href="/gallery/deep">deeper</a>
		</body></html>`)
	})
	mux.HandleFunc("/gallery/deep", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><img src="/deep.jpg"></body></html>`)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><img src="/login.jpg"></body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	eng := newTestEngine(t, 1)
	candidates, err := eng.Candidates(context.Background(), server.URL, 0)
	require.NoError(t, err)

	urls := make([]string, 0, len(candidates))
	for _, c := range candidates {
		urls = append(urls, c.URL)
	}
	// Depth 1 reaches /gallery but not /gallery/deep; /login is skipped.
	assert.ElementsMatch(t, []string{
		server.URL + "/root.jpg",
		server.URL + "/gallery/one.jpg",
	}, urls)
}

func TestCandidatesDepthZeroStaysOnPage(t *testing.T) {
	var galleryHits int
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><img src="/root.jpg"><a href="/gallery">g</a></body></html>`)
	})
	mux.HandleFunc("/gallery", func(w http.ResponseWriter, r *http.Request) {
		galleryHits++
		fmt.Fprint(w, `<html><body><img src="/g.jpg"></body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	eng := newTestEngine(t, 0)
	candidates, err := eng.Candidates(context.Background(), server.URL, 0)
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, 0, galleryHits)
}

func TestCandidatesDoesNotRevisitPages(t *testing.T) {
	var rootHits int
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		rootHits++
		fmt.Fprint(w, `<html><body>
			<img src="/a.jpg">
			<a href="/next">next</a>
		</body></html>`)
	})
	mux.HandleFunc("/next", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><img src="/b.jpg"><a href="%s/">back</a></body></html>`, "")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	eng := newTestEngine(t, 3)
	_, err := eng.Candidates(context.Background(), server.URL, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, rootHits, 2)
}

func TestCandidatesSchemelessInputGetsHTTPS(t *testing.T) {
	eng := newTestEngine(t, 0)
	// The host does not resolve; the point is that the input parses as a URL
	// instead of failing outright, so the crawl yields zero candidates.
	candidates, err := eng.Candidates(context.Background(), "nonexistent.invalid/gallery", 0)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestCandidatesKeepsDataURIs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<img src="data:image/png;base64,iVBORw0KGgo=">
		</body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	eng := newTestEngine(t, 0)
	candidates, err := eng.Candidates(context.Background(), server.URL, 0)
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, "data:image/png;base64,iVBORw0KGgo=", candidates[0].URL)
	assert.Empty(t, candidates[0].Name)
}

func TestCandidatesLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<img src="/a.jpg"><img src="/b.jpg"><img src="/c.jpg">
		</body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	eng := newTestEngine(t, 0)
	candidates, err := eng.Candidates(context.Background(), server.URL, 2)
	require.NoError(t, err)
	assert.Len(t, candidates, 2)
}

func TestName(t *testing.T) {
	assert.Equal(t, "page", newTestEngine(t, 0).Name())
}
