package google

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imggrab/pkg/fetch"
	"imggrab/pkg/logger"
)

const resultsPage = `<!DOCTYPE html>
<html><body><script>
var data = [["https://example.com/photos/cat.jpg",1200,800],
["https://encrypted-tbn0.gstatic.com/images?q=thumb.jpg",150,100],
["https://www.google.com/logos/logo.png",300,100],
["https://lh3.googleusercontent.com/abc.jpg",500,500],
["https://example.org/dog.JPEG",640,480],
["https://example.com/photos/cat.jpg",1200,800],
["https://example.net/page.html",0,0],
["https://example.net/bird.webp"]];
</script></body></html>`

func newTestEngine(t *testing.T, serverURL string) *Engine {
	t.Helper()
	client := fetch.NewClient(5*time.Second, "test-agent", logger.NewTestLogger())
	eng := New(client, logger.NewTestLogger())
	eng.SetBaseURL(serverURL)
	return eng
}

func TestCandidatesExtractsExternalImageURLs(t *testing.T) {
	var gotParams map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotParams = r.URL.Query()
		w.Write([]byte(resultsPage))
	}))
	defer server.Close()

	eng := newTestEngine(t, server.URL)
	candidates, err := eng.Candidates(context.Background(), "mountain lake", 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"isch"}, gotParams["tbm"])
	assert.Equal(t, []string{"mountain lake"}, gotParams["q"])

	require.Len(t, candidates, 3)
	assert.Equal(t, "https://example.com/photos/cat.jpg", candidates[0].URL)
	assert.Equal(t, "cat.jpg", candidates[0].Name)
	assert.Equal(t, "https://www.google.com/", candidates[0].Referer)
	assert.Equal(t, "https://example.org/dog.JPEG", candidates[1].URL)
	assert.Equal(t, "https://example.net/bird.webp", candidates[2].URL)
}

func TestCandidatesRejectsGoogleHosts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(resultsPage))
	}))
	defer server.Close()

	eng := newTestEngine(t, server.URL)
	candidates, err := eng.Candidates(context.Background(), "q", 10)
	require.NoError(t, err)

	for _, c := range candidates {
		assert.NotContains(t, c.URL, "gstatic.com")
		assert.NotContains(t, c.URL, "google.com")
		assert.NotContains(t, c.URL, "googleusercontent.com")
	}
}

func TestCandidatesRespectsLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(resultsPage))
	}))
	defer server.Close()

	eng := newTestEngine(t, server.URL)
	candidates, err := eng.Candidates(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
}

func TestIsGoogleHosted(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.google.com/a.jpg", true},
		{"https://gstatic.com/a.jpg", true},
		{"https://lh3.googleusercontent.com/a.jpg", true},
		{"https://example.com/a.jpg", false},
		{"https://notgoogle.com/a.jpg", false},
		{"https://mygstatic.com.example.org/a.jpg", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isGoogleHosted(tt.url), "url %s", tt.url)
	}
}

func TestName(t *testing.T) {
	eng := newTestEngine(t, "http://unused")
	assert.Equal(t, "google", eng.Name())
}
