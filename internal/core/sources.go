package core

import "strings"

// Recognized scraped sources and the placeholder used for everything else.
const (
	AvitoSourceName = "Avito"
	AvitoSourceURL  = "https://www.avito.ru"

	DefaultSourceName = "Non-Avito"
	DefaultSourceURL  = "default"

	manualSourceScheme = "manual://"
)

type knownSource struct {
	Name   string
	URL    string
	Marker string // lowercase substring identifying the site in a listing URL
}

var knownSources = []knownSource{
	{Name: AvitoSourceName, URL: AvitoSourceURL, Marker: "avito"},
}

// SourceForListingURL attributes a listing URL to a recognized source, or to
// the default placeholder source when nothing matches.
func SourceForListingURL(listingURL string) (name, url string) {
	lower := strings.ToLower(listingURL)
	for _, ks := range knownSources {
		if strings.Contains(lower, ks.Marker) {
			return ks.Name, ks.URL
		}
	}
	return DefaultSourceName, DefaultSourceURL
}

// SourceURLForName returns the natural key for a source named by hand.
// Names of recognized sources map to their real URL so manual and scraped
// listings share one row.
func SourceURLForName(name string) string {
	name = strings.TrimSpace(name)
	for _, ks := range knownSources {
		if strings.EqualFold(ks.Name, name) {
			return ks.URL
		}
	}
	if strings.EqualFold(name, DefaultSourceName) {
		return DefaultSourceURL
	}
	return manualSourceScheme + name
}
