package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/listings/internal/core"
)

func scrape(t *testing.T, r *Recorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRecorder_IngestCounters(t *testing.T) {
	r := New()
	r.ListingsIngested(core.PathCSV, 3)
	r.IngestRejected(core.PathManual, core.KindValidation)
	r.ImagesStored(2)
	r.ImportDuration(150 * time.Millisecond)
	r.ScrapeJobFinished(core.JobCompleted)

	out := scrape(t, r)
	assert.Contains(t, out, `listings_ingested_total{path="csv"} 3`)
	assert.Contains(t, out, `listings_rejected_total{kind="validation",path="manual"} 1`)
	assert.Contains(t, out, `listings_images_stored_total 2`)
	assert.Contains(t, out, `listings_csv_import_duration_seconds_count 1`)
	assert.Contains(t, out, `listings_scrape_jobs_total{status="completed"} 1`)
	assert.Contains(t, out, "go_goroutines")
}

func TestRecorder_MiddlewareUsesRoutePattern(t *testing.T) {
	r := New()
	router := chi.NewRouter()
	router.Use(r.Middleware)
	router.Get("/api/listings/{listingID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	out := scrape(t, r)
	assert.Contains(t, out, `listings_http_requests_total{code="404",method="GET",route="/api/listings/{listingID}"} 2`)
}

var _ core.Metrics = (*Recorder)(nil)
