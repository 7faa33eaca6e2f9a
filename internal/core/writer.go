package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListingWriter is the single commit point for listings and their images.
// It must run against transaction-bound repositories so that a failed image
// insert discards the listing row too.
type ListingWriter struct {
	listings ListingRepository
	now      func() time.Time
}

// NewListingWriter creates a writer over a transaction-bound repository.
func NewListingWriter(listings ListingRepository) *ListingWriter {
	return &ListingWriter{listings: listings, now: time.Now}
}

// Refs are the resolved reference ids for one listing.
type Refs struct {
	CityID   uuid.UUID
	SourceID uuid.UUID
	OwnerID  uuid.UUID
}

// Create inserts the listing followed by each image and returns the new id.
// createdAt defaults to now; publicationDate defaults to createdAt.
func (w *ListingWriter) Create(ctx context.Context, v *ValidListing, refs Refs) (uuid.UUID, error) {
	now := w.now().UTC()
	createdAt := timeOr(v.CreatedAt, now)

	l := Listing{
		ID:              uuid.New(),
		Title:           v.Title,
		Description:     v.Description,
		Price:           v.Price,
		District:        v.District,
		Rooms:           v.Rooms,
		URL:             v.URL,
		CreatedAt:       createdAt,
		PublicationDate: timeOr(v.PublicationDate, createdAt),
		CityID:          refs.CityID,
		SourceID:        refs.SourceID,
		OwnerID:         refs.OwnerID,
	}
	if err := w.listings.InsertListing(ctx, l); err != nil {
		return uuid.Nil, persistErr("insert listing", err)
	}

	for _, data := range v.Images {
		img := ListingImage{
			ID:        uuid.New(),
			ListingID: l.ID,
			Data:      data,
			CreatedAt: now,
		}
		if err := w.listings.InsertImage(ctx, img); err != nil {
			return uuid.Nil, persistErr("insert listing image", err)
		}
	}

	return l.ID, nil
}
