// Package scraper fetches listing search pages and extracts listing
// candidates from them. Candidates go through the normal validation and
// persistence pipeline; nothing here writes to storage.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/JonMunkholm/listings/internal/core"
)

// Runner implements core.Scraper.
type Runner struct {
	fetcher    Fetcher
	extractors []Extractor
	fallback   Extractor
	logger     *slog.Logger
}

// NewRunner builds a Runner. Extractors are tried in order; pages no
// extractor matches are read as JSON-LD.
func NewRunner(fetcher Fetcher, logger *slog.Logger, extractors ...Extractor) *Runner {
	if len(extractors) == 0 {
		extractors = []Extractor{AvitoExtractor{}}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		fetcher:    fetcher,
		extractors: extractors,
		fallback:   JSONLDExtractor{},
		logger:     logger,
	}
}

func (r *Runner) extractorFor(u *url.URL) Extractor {
	for _, e := range r.extractors {
		if e.Match(u) {
			return e
		}
	}
	return r.fallback
}

// Scrape walks up to req.MaxPages result pages starting at req.URL.
// A failure on the first page fails the scrape; later failures end it early
// with what was collected.
func (r *Runner) Scrape(ctx context.Context, req core.ScrapeRequest) ([]core.RawListing, error) {
	pageURL, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	ext := r.extractorFor(pageURL)
	logger := r.logger.With("extractor", ext.Name(), "url", req.URL)

	var (
		out     []core.RawListing
		seen    = make(map[string]bool)
		visited = make(map[string]bool)
	)

	for page := 1; page <= maxPages && pageURL != nil; page++ {
		if visited[pageURL.String()] {
			break
		}
		visited[pageURL.String()] = true

		body, err := r.fetcher.Fetch(ctx, pageURL.String())
		if err != nil {
			if page == 1 {
				return nil, err
			}
			logger.Warn("stopping scrape after page error", "page", page, "error", err)
			break
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("parse page: %w", err)
			}
			logger.Warn("stopping scrape after parse error", "page", page, "error", err)
			break
		}

		found, err := ext.Extract(doc, pageURL)
		if err != nil {
			return nil, fmt.Errorf("%s extract page %d: %w", ext.Name(), page, err)
		}

		added := 0
		for _, raw := range found {
			if raw.URL != "" {
				if seen[raw.URL] {
					continue
				}
				seen[raw.URL] = true
			}
			out = append(out, raw)
			added++
		}
		logger.Debug("page scraped", "page", page, "found", len(found), "added", added)

		pageURL = ext.NextPage(doc, pageURL)
	}

	return out, nil
}
