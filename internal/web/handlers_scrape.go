package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/listings/internal/core"
)

// maxScrapeRequestBytes caps the small JSON body of a scrape request.
const maxScrapeRequestBytes = 64 << 10

// handleStartScrape queues a scrape job and responds 202 with its id.
func (s *Server) handleStartScrape(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxScrapeRequestBytes)

	var req core.ScrapeRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.respondError(w, r, &core.ValidationError{Field: "body", Message: "malformed scrape request", Err: err})
		return
	}

	job, err := s.service.StartScrape(r.Context(), core.CallerFromContext(r.Context()), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/scrape/"+job.ID)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
	})
}

func (s *Server) handleScrapeJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.ScrapeJob(chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListScrapeJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.service.ScrapeJobs()})
}

func (s *Server) handleCancelScrapeJob(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CancelScrapeJob(chi.URLParam(r, "jobID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
