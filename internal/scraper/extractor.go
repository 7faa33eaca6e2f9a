package scraper

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JonMunkholm/listings/internal/core"
)

// Extractor turns a parsed results page into listing candidates.
type Extractor interface {
	Name() string
	// Match reports whether the extractor understands pages from u.
	Match(u *url.URL) bool
	Extract(doc *goquery.Document, pageURL *url.URL) ([]core.RawListing, error)
	// NextPage returns the following results page, or nil on the last one.
	NextPage(doc *goquery.Document, pageURL *url.URL) *url.URL
}

var (
	spaceRun   = regexp.MustCompile(`\s+`)
	roomsTitle = regexp.MustCompile(`(\d+)\s*-?\s*(?:к\.|комн|room|bed)`)
)

func clean(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// resolve makes href absolute against base. Empty or unparsable hrefs give "".
func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func roomsFromTitle(title string) string {
	if m := roomsTitle.FindStringSubmatch(strings.ToLower(title)); m != nil {
		return m[1]
	}
	return ""
}

// AvitoExtractor reads Avito search result cards.
type AvitoExtractor struct{}

func (AvitoExtractor) Name() string { return "avito" }

func (AvitoExtractor) Match(u *url.URL) bool {
	return strings.Contains(strings.ToLower(u.Hostname()), "avito")
}

func (AvitoExtractor) Extract(doc *goquery.Document, pageURL *url.URL) ([]core.RawListing, error) {
	var out []core.RawListing
	doc.Find(`[data-marker="item"]`).Each(func(_ int, card *goquery.Selection) {
		title := clean(card.Find(`[itemprop="name"]`).First().Text())
		if title == "" {
			title = clean(card.Find(`[data-marker="item-title"]`).First().Text())
		}

		href := card.Find(`a[itemprop="url"]`).First().AttrOr("href", "")
		if href == "" {
			href = card.Find(`[data-marker="item-title"]`).First().AttrOr("href", "")
		}

		out = append(out, core.RawListing{
			Title:       title,
			Description: clean(card.Find(`meta[itemprop="description"]`).First().AttrOr("content", "")),
			Price:       clean(card.Find(`meta[itemprop="price"]`).First().AttrOr("content", "")),
			District:    clean(card.Find(`[data-marker="item-address"]`).First().Text()),
			Rooms:       roomsFromTitle(title),
			SourceName:  core.AvitoSourceName,
			SourceURL:   core.AvitoSourceURL,
			URL:         resolve(pageURL, href),
		})
	})
	return out, nil
}

func (AvitoExtractor) NextPage(doc *goquery.Document, pageURL *url.URL) *url.URL {
	href, ok := doc.Find(`[data-marker="pagination-button/nextPage"]`).First().Attr("href")
	if !ok {
		return nil
	}
	return nextURL(pageURL, href)
}

func nextURL(pageURL *url.URL, href string) *url.URL {
	abs := resolve(pageURL, href)
	if abs == "" {
		return nil
	}
	u, err := url.Parse(abs)
	if err != nil || u.String() == pageURL.String() {
		return nil
	}
	return u
}
