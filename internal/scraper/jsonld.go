package scraper

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JonMunkholm/listings/internal/core"
)

// listingTypes are the schema.org types treated as listings.
var listingTypes = map[string]bool{
	"product":               true,
	"offer":                 true,
	"realestatelisting":     true,
	"residence":             true,
	"apartment":             true,
	"house":                 true,
	"singlefamilyresidence": true,
	"accommodation":         true,
}

// JSONLDExtractor reads schema.org objects embedded as JSON-LD. It matches
// any host and serves as the fallback for sites without a dedicated extractor.
type JSONLDExtractor struct{}

func (JSONLDExtractor) Name() string { return "json-ld" }

func (JSONLDExtractor) Match(*url.URL) bool { return true }

func (JSONLDExtractor) Extract(doc *goquery.Document, pageURL *url.URL) ([]core.RawListing, error) {
	sourceName, sourceURL := core.SourceForListingURL(pageURL.String())
	if sourceName == core.DefaultSourceName {
		sourceName = pageURL.Hostname()
		sourceURL = pageURL.Scheme + "://" + pageURL.Host
	}

	var out []core.RawListing
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		dec := json.NewDecoder(strings.NewReader(s.Text()))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			// Broken blocks are common; the rest of the page may still be usable.
			return
		}
		for _, obj := range flattenLD(v) {
			if !isListing(obj) {
				continue
			}
			raw := listingFromLD(obj, pageURL)
			raw.SourceName = sourceName
			raw.SourceURL = sourceURL
			out = append(out, raw)
		}
	})
	return out, nil
}

func (JSONLDExtractor) NextPage(doc *goquery.Document, pageURL *url.URL) *url.URL {
	href, ok := doc.Find(`link[rel="next"], a[rel="next"]`).First().Attr("href")
	if !ok {
		return nil
	}
	return nextURL(pageURL, href)
}

// flattenLD collects objects from a top-level value, an array, an @graph or
// an ItemList's itemListElement.
func flattenLD(v any) []map[string]any {
	var out []map[string]any
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			out = append(out, flattenLD(item)...)
		}
	case map[string]any:
		if g, ok := t["@graph"]; ok {
			out = append(out, flattenLD(g)...)
		}
		if items, ok := t["itemListElement"]; ok {
			out = append(out, flattenLD(items)...)
		}
		if item, ok := t["item"].(map[string]any); ok {
			out = append(out, item)
		}
		out = append(out, t)
	}
	return out
}

func isListing(obj map[string]any) bool {
	switch t := obj["@type"].(type) {
	case string:
		return listingTypes[strings.ToLower(t)]
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && listingTypes[strings.ToLower(s)] {
				return true
			}
		}
	}
	return false
}

func listingFromLD(obj map[string]any, pageURL *url.URL) core.RawListing {
	raw := core.RawListing{
		Title:           clean(ldString(obj["name"])),
		Description:     clean(ldString(obj["description"])),
		Price:           ldString(obj["price"]),
		Rooms:           ldString(obj["numberOfRooms"]),
		URL:             resolve(pageURL, ldString(obj["url"])),
		PublicationDate: firstNonEmpty(ldString(obj["datePosted"]), ldString(obj["datePublished"])),
	}

	if offer := firstObject(obj["offers"]); offer != nil {
		if raw.Price == "" {
			raw.Price = ldString(offer["price"])
		}
		if raw.URL == "" {
			raw.URL = resolve(pageURL, ldString(offer["url"]))
		}
	}

	addr := firstObject(obj["address"])
	if addr == nil {
		if loc := firstObject(obj["itemOffered"]); loc != nil {
			addr = firstObject(loc["address"])
			if raw.Rooms == "" {
				raw.Rooms = ldString(loc["numberOfRooms"])
			}
		}
	}
	if addr != nil {
		raw.CityName = clean(ldString(addr["addressLocality"]))
		raw.District = clean(ldString(addr["streetAddress"]))
	}

	if raw.Rooms == "" {
		raw.Rooms = roomsFromTitle(raw.Title)
	}
	return raw
}

func firstObject(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case []any:
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

func ldString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case map[string]any:
		// QuantitativeValue and similar wrappers.
		return ldString(t["value"])
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
