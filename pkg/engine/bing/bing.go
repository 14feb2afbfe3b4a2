// Package bing scrapes the Bing image search results page. Each result
// anchor carries a JSON metadata attribute with the full-size image URL, so
// a single HTML fetch yields the whole candidate list.
package bing

import (
	"context"
	"encoding/json"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"imggrab/pkg/engine"
	errs "imggrab/pkg/errors"
	"imggrab/pkg/fetch"
	"imggrab/pkg/logger"
)

const searchURL = "https://www.bing.com/images/search"

// Engine scrapes Bing image search.
type Engine struct {
	client  *fetch.Client
	baseURL string
	logger  logger.Logger
}

// New creates a Bing engine using the shared fetch client.
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
	return "bing"
}

// resultMeta is the JSON payload inside each result anchor's "m" attribute.
type resultMeta struct {
	MediaURL     string `json:"murl"`
	ThumbnailURL string `json:"turl"`
}

// Candidates fetches one results page and returns up to limit candidates.
func (e *Engine) Candidates(ctx context.Context, query string, limit int) ([]engine.Candidate, error) {
	params := url.Values{
		"q":     {query},
		"form":  {"HDRSC2"},
		"first": {"0"},
		"tsc":   {"ImageBasicHover"},
	}

	e.logger.InfoWithFields("fetching bing results", map[string]interface{}{
		"query": query,
	})

	body, err := e.client.GetHTML(ctx, e.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeParsing, "failed to parse bing results: %v", err)
	}

	var candidates []engine.Candidate
	doc.Find("a.iusc").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		raw, ok := sel.Attr("m")
		if !ok || raw == "" {
			return true
		}

		var meta resultMeta
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			// Bad metadata on one result is not worth aborting the page.
			e.logger.DebugWithFields("skipping unparseable result metadata", map[string]interface{}{
				"error": err.Error(),
			})
			return true
		}
		if meta.MediaURL == "" {
			return true
		}

		candidates = append(candidates, engine.Candidate{
			URL:     meta.MediaURL,
			Name:    basename(meta.MediaURL),
			Referer: "https://www.bing.com/",
		})
		return len(candidates) < limit
	})

	e.logger.InfoWithFields("bing returned candidate URLs", map[string]interface{}{
		"query": query,
		"count": len(candidates),
	})

	return candidates, nil
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
