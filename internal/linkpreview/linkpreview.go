// Package linkpreview extracts Open Graph / Twitter Card metadata for URLs
// found in message content, for the Channel Hub's link preview orchestration.
// Grounded on the other_examples web-extraction tools' goquery-based metadata
// scraping (og:title/og:description/og:image parsing over a bounded, timed
// fetch), adapted here into a small concurrency-bounded, TTL-cached service
// instead of an on-demand tool call.
package linkpreview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	fetchTimeout   = 5 * time.Second
	maxBodyBytes   = 2 << 20 // 2 MiB
	cacheTTL       = 1 * time.Hour
	maxConcurrency = 4
	maxURLsPerMsg  = 3
)

type Preview struct {
	URL         string
	Title       string
	Description string
	ImageURL    string
	SiteName    string
}

type cacheEntry struct {
	preview   *Preview // nil means "fetched, nothing usable found"
	fetchedAt time.Time
}

// Service fetches and caches link previews. Failures are swallowed at the
// Fetch boundary — a broken link preview must never fail message send.
type Service struct {
	client *http.Client
	sem    chan struct{}

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewService() *Service {
	return &Service{
		client: &http.Client{
			Timeout: fetchTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		sem:   make(chan struct{}, maxConcurrency),
		cache: make(map[string]cacheEntry),
	}
}

// ExtractURLs returns up to maxURLsPerMsg distinct http(s) URLs found in
// content, in first-seen order.
func ExtractURLs(content string) []string {
	var urls []string
	seen := make(map[string]struct{})

	for _, field := range strings.Fields(content) {
		trimmed := strings.TrimLeft(strings.TrimRight(field, ".,!?)]}\"'"), "([{\"'")
		parsed, err := url.Parse(trimmed)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		urls = append(urls, trimmed)
		if len(urls) >= maxURLsPerMsg {
			break
		}
	}

	return urls
}

// Fetch returns a cached or freshly-fetched preview for rawURL, or nil if
// none could be produced. It never returns an error — callers treat a link
// preview as best-effort enrichment, not a required step.
func (s *Service) Fetch(ctx context.Context, rawURL string) *Preview {
	if p, ok := s.fromCache(rawURL); ok {
		return p
	}

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return nil
	}

	// Re-check after acquiring the slot: another goroutine may have raced us.
	if p, ok := s.fromCache(rawURL); ok {
		return p
	}

	p := s.fetch(ctx, rawURL)
	s.mu.Lock()
	s.cache[rawURL] = cacheEntry{preview: p, fetchedAt: time.Now()}
	s.mu.Unlock()

	return p
}

func (s *Service) fromCache(rawURL string) (*Preview, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.cache[rawURL]
	if !ok || time.Since(entry.fetchedAt) > cacheTTL {
		return nil, false
	}
	return entry.preview, true
}

func (s *Service) fetch(ctx context.Context, rawURL string) *Preview {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; RelayBot/1.0; +link-preview)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}

	preview := &Preview{URL: rawURL}

	doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		property, _ := sel.Attr("property")
		name, _ := sel.Attr("name")
		content, _ := sel.Attr("content")
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}

		switch {
		case property == "og:title":
			preview.Title = content
		case property == "og:description", name == "description":
			if preview.Description == "" {
				preview.Description = content
			}
		case property == "og:image":
			preview.ImageURL = content
		case property == "og:site_name":
			preview.SiteName = content
		}
	})

	if preview.Title == "" {
		preview.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	if preview.Title == "" && preview.Description == "" && preview.ImageURL == "" {
		return nil
	}

	return preview
}
