// Package google scrapes Google image search over plain HTTP. The results
// page embeds full-size image URLs in its script data; we extract those
// instead of driving a browser, and reject Google-hosted thumbnails so only
// external images remain.
package google

import (
	"context"
	"net/url"
	"path"
	"regexp"
	"strings"

	"imggrab/pkg/engine"
	"imggrab/pkg/fetch"
	"imggrab/pkg/logger"
)

const searchURL = "https://www.google.com/search"

// imageURLPattern matches image URLs embedded in the page's script data,
// e.g. ["https://example.com/photo.jpg",1200,800].
var imageURLPattern = regexp.MustCompile(`(?i)\["(https?://[^"]+\.(?:jpg|jpeg|png|gif|webp))"(?:,|\])`)

// googleHosts are hosts whose images are thumbnails or UI assets, not results.
var googleHosts = []string{"google.com", "gstatic.com", "googleusercontent.com"}

// Engine scrapes Google image search.
type Engine struct {
	client  *fetch.Client
	baseURL string
	logger  logger.Logger
}

// New creates a Google engine using the shared fetch client.
func New(client *fetch.Client, log logger.Logger) *Engine {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Engine{
		client:  client,
		baseURL: searchURL,
		logger:  log,
	}
}

// SetBaseURL overrides the search endpoint. Used by tests.
func (e *Engine) SetBaseURL(u string) {
	e.baseURL = u
}

func (e *Engine) Name() string {
	return "google"
}

// Candidates fetches the image search page and extracts embedded image URLs.
func (e *Engine) Candidates(ctx context.Context, query string, limit int) ([]engine.Candidate, error) {
	params := url.Values{
		"tbm": {"isch"},
		"hl":  {"en"},
		"q":   {query},
	}

	e.logger.InfoWithFields("fetching google results", map[string]interface{}{
		"query": query,
	})

	body, err := e.client.GetHTML(ctx, e.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var candidates []engine.Candidate
	for _, match := range imageURLPattern.FindAllStringSubmatch(body, -1) {
		if len(candidates) >= limit {
			break
		}
		imageURL := match[1]
		if isGoogleHosted(imageURL) {
			continue
		}
		if _, dup := seen[imageURL]; dup {
			continue
		}
		seen[imageURL] = struct{}{}

		candidates = append(candidates, engine.Candidate{
			URL:     imageURL,
			Name:    basename(imageURL),
			Referer: "https://www.google.com/",
		})
	}

	e.logger.InfoWithFields("google returned candidate URLs", map[string]interface{}{
		"query": query,
		"count": len(candidates),
	})

	return candidates, nil
}

// isGoogleHosted reports whether the URL points at Google's own
// infrastructure rather than an external image host.
func isGoogleHosted(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	host := strings.ToLower(u.Hostname())
	for _, g := range googleHosts {
		if host == g || strings.HasSuffix(host, "."+g) {
			return true
		}
	}
	return false
}

// basename extracts the final path element of a URL, or "" when unusable.
func basename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
