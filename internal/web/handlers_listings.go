package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/listings/internal/contracts"
	"github.com/JonMunkholm/listings/internal/core"
)

// flexString accepts a JSON string or number and keeps its text.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*f = flexString(n.String())
	}
	return nil
}

type ownerRequest struct {
	Email      string `json:"email"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	MiddleName string `json:"middleName"`
}

// createListingRequest mirrors schemas/create_listing.schema.json.
type createListingRequest struct {
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Price           flexString    `json:"price"`
	District        string        `json:"district"`
	Rooms           flexString    `json:"rooms"`
	CityName        string        `json:"cityName"`
	SourceName      string        `json:"sourceName"`
	SourceURL       string        `json:"sourceUrl"`
	URL             string        `json:"url"`
	PublicationDate string        `json:"publicationDate"`
	CreatedAt       string        `json:"createdAt"`
	Owner           *ownerRequest `json:"owner"`
	Images          []string      `json:"images"`
}

func (req createListingRequest) raw() core.RawListing {
	raw := core.RawListing{
		Title:           req.Title,
		Description:     req.Description,
		Price:           string(req.Price),
		District:        req.District,
		Rooms:           string(req.Rooms),
		CityName:        req.CityName,
		SourceName:      req.SourceName,
		SourceURL:       req.SourceURL,
		URL:             req.URL,
		PublicationDate: req.PublicationDate,
		CreatedAt:       req.CreatedAt,
		Images:          req.Images,
	}
	if req.Owner != nil {
		raw.Owner = &core.UserRef{
			Email:      req.Owner.Email,
			FirstName:  req.Owner.FirstName,
			LastName:   req.Owner.LastName,
			MiddleName: req.Owner.MiddleName,
		}
	}
	return raw
}

// handleCreateListing validates the body against its schema, then runs the
// ingestion pipeline. Responds 201 with the new id.
func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Ingest.MaxRequestBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.contracts.Validate(contracts.CreateListing, body); err != nil {
		s.respondError(w, r, err)
		return
	}

	var req createListingRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.respondError(w, r, &core.ValidationError{Field: "body", Message: "malformed listing", Err: err})
		return
	}

	id, err := s.service.CreateListing(r.Context(), core.CallerFromContext(r.Context()), req.raw())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/listings/"+id.String())
	writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

type imageRef struct {
	ID  uuid.UUID `json:"id"`
	URL string    `json:"url"`
}

type listingResponse struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Price           string     `json:"price"`
	District        string     `json:"district,omitempty"`
	Rooms           *int32     `json:"rooms,omitempty"`
	URL             string     `json:"url,omitempty"`
	CityID          uuid.UUID  `json:"cityId"`
	CityName        string     `json:"cityName"`
	SourceID        uuid.UUID  `json:"sourceId"`
	SourceName      string     `json:"sourceName"`
	SourceURL       string     `json:"sourceUrl"`
	OwnerID         uuid.UUID  `json:"ownerId"`
	PublicationDate time.Time  `json:"publicationDate"`
	CreatedAt       time.Time  `json:"createdAt"`
	Images          []imageRef `json:"images"`
}

func newListingResponse(d *core.ListingDetails) listingResponse {
	resp := listingResponse{
		ID:              d.ID,
		Title:           d.Title,
		Description:     d.Description,
		Price:           core.FormatPrice(d.Price),
		District:        d.District,
		Rooms:           d.Rooms,
		URL:             d.URL,
		CityID:          d.CityID,
		CityName:        d.CityName,
		SourceID:        d.SourceID,
		SourceName:      d.SourceName,
		SourceURL:       d.SourceURL,
		OwnerID:         d.OwnerID,
		PublicationDate: d.PublicationDate,
		CreatedAt:       d.CreatedAt,
		Images:          make([]imageRef, 0, len(d.ImageIDs)),
	}
	for _, imgID := range d.ImageIDs {
		resp.Images = append(resp.Images, imageRef{
			ID:  imgID,
			URL: fmt.Sprintf("/api/listings/%s/images/%s", d.ID, imgID),
		})
	}
	return resp
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "listingID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	d, err := s.service.GetListing(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newListingResponse(d))
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	listingID, err := uuidParam(r, "listingID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	imageID, err := uuidParam(r, "imageID")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	data, err := s.service.GetImage(r.Context(), listingID, imageID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"ingest": s.service.IngestStatus(),
	})
}

// uuidParam parses a chi URL parameter as a UUID.
func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &core.ValidationError{Field: name, Value: raw, Message: "must be a UUID", Err: err}
	}
	return id, nil
}
