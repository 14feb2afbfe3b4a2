// Package page scrapes every image from an arbitrary web page, optionally
// crawling same-host links to a configured depth. The query passed to this
// engine is the page URL itself.
package page

import (
	"context"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"imggrab/pkg/engine"
	errs "imggrab/pkg/errors"
	"imggrab/pkg/fetch"
	"imggrab/pkg/logger"
)

// skipLinkPatterns filters out navigation links that never lead to content.
var skipLinkPatterns = []string{"login", "signup", "signin", "register", "help", "about", "policy"}

// Engine scrapes images from a single page, or a same-host crawl of pages.
type Engine struct {
	client *fetch.Client
	depth  int
	logger logger.Logger
}

// New creates a page engine. depth is the same-host link recursion depth;
// zero scrapes only the given page.
func New(client *fetch.Client, depth int, log logger.Logger) *Engine {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Engine{
		client: client,
		depth:  depth,
		logger: log,
	}
}

func (e *Engine) Name() string {
	return "page"
}

type queuedPage struct {
	url   string
	depth int
}

// Candidates crawls from the given page URL and returns up to limit image
// candidates, sorted by URL for a stable order across runs.
func (e *Engine) Candidates(ctx context.Context, pageURL string, limit int) ([]engine.Candidate, error) {
	if !strings.HasPrefix(pageURL, "http://") && !strings.HasPrefix(pageURL, "https://") {
		pageURL = "https://" + pageURL
	}

	root, err := url.Parse(pageURL)
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeParsing, "invalid page URL: %v", err)
	}

	// url -> referring page
	found := make(map[string]string)
	visited := make(map[string]struct{})
	queue := []queuedPage{{url: pageURL, depth: 0}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current := queue[0]
		queue = queue[1:]

		if _, ok := visited[current.url]; ok {
			continue
		}
		visited[current.url] = struct{}{}

		e.logger.InfoWithFields("crawling page", map[string]interface{}{
			"url":   current.url,
			"depth": current.depth,
		})

		body, err := e.client.GetHTML(ctx, current.url)
		if err != nil {
			e.logger.WithError(err).WithField("url", current.url).Warn("failed to crawl page")
			continue
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err != nil {
			e.logger.WithError(err).WithField("url", current.url).Warn("failed to parse page")
			continue
		}

		base, err := url.Parse(current.url)
		if err != nil {
			continue
		}

		doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
			src := imageSource(sel)
			if src == "" {
				return
			}
			resolved := resolveURL(base, src)
			if resolved == "" {
				return
			}
			if _, ok := found[resolved]; !ok {
				found[resolved] = current.url
			}
		})

		if current.depth < e.depth {
			doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
				href, _ := sel.Attr("href")
				link := resolveURL(base, href)
				if link == "" || !sameHost(root, link) || skipLink(link) {
					return
				}
				if _, ok := visited[link]; !ok {
					queue = append(queue, queuedPage{url: link, depth: current.depth + 1})
				}
			})
		}
	}

	e.logger.InfoWithFields("crawl finished", map[string]interface{}{
		"images": len(found),
		"pages":  len(visited),
	})

	urls := make([]string, 0, len(found))
	for u := range found {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	if limit > 0 && len(urls) > limit {
		urls = urls[:limit]
	}

	candidates := make([]engine.Candidate, 0, len(urls))
	for _, u := range urls {
		candidates = append(candidates, engine.Candidate{
			URL:     u,
			Name:    basename(u),
			Referer: found[u],
		})
	}

	return candidates, nil
}

// imageSource pulls the best source attribute from an img element: src,
// then the common lazy-loading attributes, then the last srcset entry.
func imageSource(sel *goquery.Selection) string {
	for _, attr := range []string{"src", "data-src", "data-original"} {
		if val, ok := sel.Attr(attr); ok && val != "" {
			return val
		}
	}
	if srcset, ok := sel.Attr("srcset"); ok && srcset != "" {
		parts := strings.Split(srcset, ",")
		last := strings.TrimSpace(parts[len(parts)-1])
		if fields := strings.Fields(last); len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

// resolveURL resolves a possibly relative reference against the page URL,
// keeping data: URIs as-is and dropping anything that is neither http(s)
// nor a data image.
func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "data:image") {
		return ref
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}

func sameHost(root *url.URL, link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), root.Hostname())
}

func skipLink(link string) bool {
	lower := strings.ToLower(link)
	for _, pattern := range skipLinkPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// basename extracts the final path element of a URL, or "" when unusable.
func basename(rawURL string) string {
	if strings.HasPrefix(rawURL, "data:image") {
		return ""
	}
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
