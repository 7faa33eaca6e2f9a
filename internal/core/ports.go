package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CityRepository stores cities. Finders return (nil, nil) when absent.
// InsertCity returns ErrDuplicateKey when the name is already taken.
type CityRepository interface {
	FindCityByName(ctx context.Context, name string) (*City, error)
	FindCityByID(ctx context.Context, id uuid.UUID) (*City, error)
	InsertCity(ctx context.Context, city City) (*City, error)
}

// SourceRepository stores sources keyed by URL.
// InsertSource returns ErrDuplicateKey when the URL is already taken.
type SourceRepository interface {
	FindSourceByURL(ctx context.Context, url string) (*Source, error)
	FindSourceByID(ctx context.Context, id uuid.UUID) (*Source, error)
	InsertSource(ctx context.Context, src Source) (*Source, error)
}

// UserRepository stores users keyed by email.
// InsertUser returns ErrDuplicateKey when the email is already taken.
type UserRepository interface {
	FindUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	InsertUser(ctx context.Context, u User) (*User, error)
}

// ListingRepository stores listings and their images.
type ListingRepository interface {
	InsertListing(ctx context.Context, l Listing) error
	InsertImage(ctx context.Context, img ListingImage) error
	GetListing(ctx context.Context, id uuid.UUID) (*Listing, error)
	ListImageIDs(ctx context.Context, listingID uuid.UUID) ([]uuid.UUID, error)
	GetImage(ctx context.Context, listingID, imageID uuid.UUID) (*ListingImage, error)
}

// Repositories groups the repositories bound to one connection or transaction.
type Repositories struct {
	Cities   CityRepository
	Sources  SourceRepository
	Users    UserRepository
	Listings ListingRepository
}

// Store hands out repositories and runs transactions.
type Store interface {
	// Repos returns repositories outside of any transaction.
	Repos() Repositories
	// InTx runs fn against transaction-bound repositories. The transaction
	// commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// Notifier publishes refresh signals to downstream readers.
type Notifier interface {
	ListingsRefreshed(ctx context.Context, event RefreshEvent) error
}

// ImageCache caches immutable image payloads.
type ImageCache interface {
	GetImage(ctx context.Context, listingID, imageID uuid.UUID) ([]byte, bool, error)
	SetImage(ctx context.Context, listingID, imageID uuid.UUID, data []byte) error
}

// Metrics records ingestion outcomes.
type Metrics interface {
	ListingsIngested(path IngestPath, n int)
	IngestRejected(path IngestPath, kind Kind)
	ImagesStored(n int)
	ImportDuration(d time.Duration)
	ScrapeJobFinished(status JobStatus)
}

// Scraper fetches pages for a scrape request and extracts candidates.
type Scraper interface {
	Scrape(ctx context.Context, req ScrapeRequest) ([]RawListing, error)
}

type nopNotifier struct{}

func (nopNotifier) ListingsRefreshed(context.Context, RefreshEvent) error { return nil }

type nopMetrics struct{}

func (nopMetrics) ListingsIngested(IngestPath, int) {}
func (nopMetrics) IngestRejected(IngestPath, Kind)  {}
func (nopMetrics) ImagesStored(int)                 {}
func (nopMetrics) ImportDuration(time.Duration)     {}
func (nopMetrics) ScrapeJobFinished(JobStatus)      {}
