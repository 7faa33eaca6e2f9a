package core

// validation.go holds the single rulebook shared by every ingestion path.
//
// Validation happens at two levels:
//  1. Header validation: the CSV header must carry the required columns
//  2. Listing validation: each candidate is checked rule by rule, in a fixed
//     order, and the first failing rule is reported
//
// Both levels are pure: no repositories, no clock.

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// FieldSpec describes one CSV column.
type FieldSpec struct {
	Name     string   // canonical header name
	Aliases  []string // alternative header names
	Required bool     // column must exist in the header
}

// ValidateHeaders checks that every required column is present (by name or
// alias) and returns the header index. Missing columns are reported together.
func ValidateHeaders(headers []string, columns []FieldSpec) (HeaderIndex, error) {
	idx := MakeHeaderIndex(headers)
	var missing []string

	for _, col := range columns {
		if !col.Required {
			continue
		}
		if _, ok := lookupColumn(idx, col); !ok {
			missing = append(missing, col.Name)
		}
	}

	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}
	return idx, nil
}

// lookupColumn returns the position of col, trying aliases in order.
func lookupColumn(idx HeaderIndex, col FieldSpec) (int, bool) {
	if pos, ok := idx[strings.ToLower(col.Name)]; ok {
		return pos, true
	}
	for _, alias := range col.Aliases {
		if pos, ok := idx[strings.ToLower(alias)]; ok {
			return pos, true
		}
	}
	return 0, false
}

// ListingValidator enforces the listing rules. Rules run in this order and
// the first failure wins:
//
//  1. title is not blank
//  2. price is not blank and parses as a non-negative decimal with scale 2
//  3. city name is not blank
//  4. source name is not blank
//  5. every image decodes through the ImageCodec
//  6. rooms, when given, is a non-negative whole number
//  7. publication date, when given, is an ISO-8601 date-time
type ListingValidator struct {
	codec ImageCodec
}

// NewListingValidator creates a validator that decodes images with codec.
func NewListingValidator(codec ImageCodec) *ListingValidator {
	return &ListingValidator{codec: codec}
}

// Validate checks raw and returns the parsed listing with decoded images.
func (v *ListingValidator) Validate(raw RawListing) (*ValidListing, error) {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return nil, &ValidationError{Field: "title", Message: "title is required"}
	}

	price, err := ParsePrice(raw.Price)
	if err != nil {
		return nil, &ValidationError{Field: "price", Value: raw.Price, Message: err.Error()}
	}

	city := strings.TrimSpace(raw.CityName)
	if city == "" {
		return nil, &ValidationError{Field: "cityName", Message: "city name is required"}
	}

	source := strings.TrimSpace(raw.SourceName)
	if source == "" {
		return nil, &ValidationError{Field: "sourceName", Message: "source name is required"}
	}

	var images [][]byte
	for i, payload := range raw.Images {
		data, err := v.codec.Decode(payload)
		if err != nil {
			return nil, &ValidationError{
				Field:   fmt.Sprintf("images[%d]", i),
				Message: imageMessage(err, v.codec.limit()),
				Err:     err,
			}
		}
		images = append(images, data)
	}

	out := &ValidListing{
		Title:       title,
		Description: strings.TrimSpace(raw.Description),
		Price:       price,
		District:    strings.TrimSpace(raw.District),
		CityName:    city,
		SourceName:  source,
		SourceURL:   strings.TrimSpace(raw.SourceURL),
		URL:         strings.TrimSpace(raw.URL),
		Owner:       raw.Owner,
		Images:      images,
	}

	if s := strings.TrimSpace(raw.Rooms); s != "" {
		rooms, err := ParseRooms(s)
		if err != nil {
			return nil, &ValidationError{Field: "rooms", Value: raw.Rooms, Message: err.Error()}
		}
		out.Rooms = &rooms
	}

	if s := strings.TrimSpace(raw.PublicationDate); s != "" {
		t, ok := ParseTimestamp(s)
		if !ok {
			return nil, &ValidationError{
				Field:   "publicationDate",
				Value:   raw.PublicationDate,
				Message: "publication date must be an ISO-8601 date-time",
			}
		}
		out.PublicationDate = &t
	}

	if t, ok := ParseTimestamp(raw.CreatedAt); ok {
		out.CreatedAt = &t
	}

	return out, nil
}

func imageMessage(err error, limit int) string {
	if errors.Is(err, ErrPayloadTooLarge) {
		return fmt.Sprintf("image exceeds %d bytes", limit)
	}
	return "image is not valid base64"
}

// timeOr returns *t, or fallback when t is nil.
func timeOr(t *time.Time, fallback time.Time) time.Time {
	if t == nil {
		return fallback
	}
	return *t
}
