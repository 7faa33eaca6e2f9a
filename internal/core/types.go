package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// City is a shared reference row resolved by its unique name.
type City struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// Source is a shared reference row resolved by its unique URL.
type Source struct {
	ID        uuid.UUID
	Name      string
	URL       string
	CreatedAt time.Time
}

// User is a listing owner. Only administrators may ingest listings.
type User struct {
	ID         uuid.UUID
	Email      string
	FirstName  string
	LastName   string
	MiddleName string
	IsAdmin    bool
	CreatedAt  time.Time
}

// Listing is a stored real-estate offer.
type Listing struct {
	ID              uuid.UUID
	Title           string
	Description     string
	Price           pgtype.Numeric // scale 2
	District        string
	Rooms           *int32
	URL             string
	CreatedAt       time.Time
	PublicationDate time.Time
	CityID          uuid.UUID
	SourceID        uuid.UUID
	OwnerID         uuid.UUID
}

// ListingImage is a binary image attached to exactly one listing.
type ListingImage struct {
	ID        uuid.UUID
	ListingID uuid.UUID
	Data      []byte
	CreatedAt time.Time
}

// ListingDetails is a listing with its references resolved to names.
type ListingDetails struct {
	Listing
	CityName   string
	SourceName string
	SourceURL  string
	ImageIDs   []uuid.UUID
}

// UserRef identifies the owner of an imported row by email.
type UserRef struct {
	Email      string
	FirstName  string
	LastName   string
	MiddleName string
}

// RawListing is the source-agnostic candidate produced by the manual form,
// a CSV row or a scraped page, before validation and reference resolution.
// All values are kept as text; the validator owns parsing.
type RawListing struct {
	Title           string
	Description     string
	Price           string
	District        string
	Rooms           string
	CityName        string
	SourceName      string
	SourceURL       string
	URL             string
	PublicationDate string
	CreatedAt       string
	Owner           *UserRef
	Images          []string // base64 payloads
}

// ValidListing is a candidate that passed every validation rule.
type ValidListing struct {
	Title           string
	Description     string
	Price           pgtype.Numeric
	District        string
	Rooms           *int32
	CityName        string
	SourceName      string
	SourceURL       string
	URL             string
	PublicationDate *time.Time
	CreatedAt       *time.Time
	Owner           *UserRef
	Images          [][]byte
}

// CSVRow is a parsed data row with its 1-based line number in the document.
type CSVRow struct {
	Line    int
	Listing RawListing
}

// ImportResult summarizes a committed CSV import.
type ImportResult struct {
	Imported   int         `json:"imported"`
	Skipped    int         `json:"skipped"`
	FailedRows []FailedRow `json:"failed_rows,omitempty"`
}

// FailedRow describes a row rejected under the skip policy.
type FailedRow struct {
	Line    int    `json:"line"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// RowPolicy controls how an import reacts to an invalid row.
type RowPolicy string

const (
	// RowPolicyAbort rejects the whole import on the first invalid row.
	RowPolicyAbort RowPolicy = "abort"
	// RowPolicySkip drops invalid rows, reports them and imports the rest.
	RowPolicySkip RowPolicy = "skip"
)

// IngestPath labels where a listing came from, for logs and metrics.
type IngestPath string

const (
	PathManual  IngestPath = "manual"
	PathCSV     IngestPath = "csv"
	PathScraper IngestPath = "scraper"
)

// RefreshEvent is published after listings are committed.
type RefreshEvent struct {
	Path       IngestPath  `json:"path"`
	ListingIDs []uuid.UUID `json:"listing_ids"`
	Count      int         `json:"count"`
	At         time.Time   `json:"at"`
}
