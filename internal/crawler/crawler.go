// Package crawler discovers page URLs for ingestion from a site's sitemap
// tree, filtered by its robots-exclusion policy.
package crawler

import (
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/log"
)

// Traversal bounds. A sitemap tree that nests deeper or wider than this is
// either broken or adversarial.
const (
	maxDepth    = 5
	maxSitemaps = 500

	// maxDocBytes caps a single robots or sitemap document read.
	maxDocBytes = 50 << 20 // 50 MiB, the sitemap protocol's own limit

	// robotsAgent is the user-agent group checked against the policy.
	robotsAgent = "*"
)

// DefaultTimeout bounds each robots/sitemap fetch.
const DefaultTimeout = 30 * time.Second

// Crawler discovers sitemap-listed URLs for a base site.
type Crawler struct {
	client    *http.Client
	userAgent string
	logger    log.Logger
}

// New creates a Crawler. A zero timeout falls back to DefaultTimeout.
func New(timeout time.Duration, userAgent string, logger log.Logger) *Crawler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Crawler{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger,
	}
}

// Discover returns the de-duplicated set of page URLs listed in the site's
// sitemap tree that the robots policy permits for a generic user agent.
// The result is sorted for deterministic processing order.
//
// A site without a discoverable sitemap yields an empty slice and no error:
// ingestion treats that as nothing to do. Network failures fetching robots
// or sitemap documents are fatal for this crawl.
func (c *Crawler) Discover(ctx context.Context, baseURL string) ([]string, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}

	robots, sitemaps, err := c.fetchRobots(ctx, base)
	if err != nil {
		return nil, err
	}

	if len(sitemaps) == 0 {
		sitemaps = []string{base.String() + "/sitemap.xml"}
	}

	pages := make(map[string]struct{})
	seen := make(map[string]struct{})
	if err := c.walk(ctx, sitemaps, 0, seen, pages); err != nil {
		return nil, err
	}

	group := robots.FindGroup(robotsAgent)
	allowed := make([]string, 0, len(pages))
	for page := range pages {
		u, err := url.Parse(page)
		if err != nil {
			c.logger.Debug("skipping unparsable sitemap entry", "url", page)
			continue
		}
		path := u.Path
		if path == "" {
			path = "/"
		}
		if u.RawQuery != "" {
			path += "?" + u.RawQuery
		}
		if group.Test(path) {
			allowed = append(allowed, page)
		}
	}
	sort.Strings(allowed)

	c.logger.Info("sitemap crawl complete",
		"base", base.String(),
		"found", len(pages),
		"allowed", len(allowed),
	)
	return allowed, nil
}

// fetchRobots loads and parses robots.txt, returning the policy and any
// Sitemap: directives it declares. A missing robots.txt (404) means
// everything is allowed; a transport failure is fatal.
func (c *Crawler) fetchRobots(ctx context.Context, base *url.URL) (*robotstxt.RobotsData, []string, error) {
	robotsURL := base.String() + "/robots.txt"

	status, body, err := c.get(ctx, robotsURL)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching robots.txt: %w", err)
	}

	robots, err := robotstxt.FromStatusAndBytes(status, body)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing robots.txt: %w", err)
	}

	return robots, robots.Sitemaps, nil
}

// walk traverses sitemap documents breadth-first, collecting page URLs.
func (c *Crawler) walk(ctx context.Context, locs []string, depth int, seen, pages map[string]struct{}) error {
	if depth > maxDepth {
		c.logger.Warn("sitemap tree deeper than limit, pruning", "depth", depth)
		return nil
	}

	var children []string
	for _, loc := range locs {
		if _, ok := seen[loc]; ok {
			continue
		}
		if len(seen) >= maxSitemaps {
			c.logger.Warn("sitemap count limit reached, pruning")
			break
		}
		seen[loc] = struct{}{}

		status, body, err := c.get(ctx, loc)
		if err != nil {
			return fmt.Errorf("fetching sitemap %s: %w", loc, err)
		}
		switch {
		case status == http.StatusOK:
			// parse below
		case status == http.StatusNotFound || status == http.StatusGone:
			// Not discoverable is not an error.
			c.logger.Debug("sitemap not found", "url", loc)
			continue
		default:
			return fmt.Errorf("fetching sitemap %s: unexpected status %d", loc, status)
		}

		subs, urls, err := parseSitemap(body)
		if err != nil {
			c.logger.Warn("skipping malformed sitemap", "url", loc, "error", err)
			continue
		}
		children = append(children, subs...)
		for _, u := range urls {
			pages[u] = struct{}{}
		}
	}

	if len(children) > 0 {
		return c.walk(ctx, children, depth+1, seen, pages)
	}
	return nil
}

// get fetches a document, transparently decompressing gzip payloads
// (sitemap.xml.gz files are common).
func (c *Crawler) get(ctx context.Context, rawURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var reader io.Reader = io.LimitReader(resp.Body, maxDocBytes)
	if isGzip(resp, rawURL) {
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return 0, nil, fmt.Errorf("gzip sitemap: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func isGzip(resp *http.Response, rawURL string) bool {
	if strings.Contains(resp.Header.Get("Content-Type"), "gzip") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(rawURL), ".gz")
}

// sitemapIndex is a <sitemapindex> document referencing nested sitemaps.
type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []locRef `xml:"sitemap"`
}

// urlSet is a <urlset> document listing page URLs.
type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []locRef `xml:"url"`
}

type locRef struct {
	Loc string `xml:"loc"`
}

// parseSitemap decodes either sitemap document shape, returning nested
// sitemap locations and page URLs.
func parseSitemap(body []byte) (subs []string, pages []string, err error) {
	var idx sitemapIndex
	if err := xml.Unmarshal(body, &idx); err == nil {
		for _, ref := range idx.Sitemaps {
			if loc := strings.TrimSpace(ref.Loc); loc != "" {
				subs = append(subs, loc)
			}
		}
		return subs, nil, nil
	}

	var set urlSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, nil, fmt.Errorf("not a sitemap document: %w", err)
	}
	for _, ref := range set.URLs {
		if loc := strings.TrimSpace(ref.Loc); loc != "" {
			pages = append(pages, loc)
		}
	}
	return nil, pages, nil
}
