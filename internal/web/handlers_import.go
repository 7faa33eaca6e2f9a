package web

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/JonMunkholm/listings/internal/core"
)

// multipartMemory is how much of a multipart upload is buffered in memory
// before spilling to disk.
const multipartMemory = 32 << 20

// handleImport accepts a CSV document either as the raw request body
// (text/csv) or as the "file" part of a multipart form.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Ingest.MaxCSVBytes)

	doc, closeDoc, err := csvDocument(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer closeDoc()

	result, err := s.service.ImportCSV(r.Context(), core.CallerFromContext(r.Context()), doc)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if result.FailedRows == nil {
		result.FailedRows = []core.FailedRow{}
	}
	writeJSON(w, http.StatusOK, result)
}

// csvDocument returns the CSV stream of an import request.
func csvDocument(r *http.Request) (io.Reader, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, func() {}, nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, nil, err
		}
		return nil, nil, &core.ValidationError{Field: "file", Message: "invalid multipart form", Err: err}
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, nil, &core.ValidationError{Field: "file", Message: "no file provided", Err: err}
	}
	return file, func() { _ = file.Close() }, nil
}
