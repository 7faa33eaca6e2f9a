package core_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/listings/internal/core"
)

type scrapeFunc func(ctx context.Context, req core.ScrapeRequest) ([]core.RawListing, error)

func (f scrapeFunc) Scrape(ctx context.Context, req core.ScrapeRequest) ([]core.RawListing, error) {
	return f(ctx, req)
}

func staticScraper(listings ...core.RawListing) core.Scraper {
	return scrapeFunc(func(context.Context, core.ScrapeRequest) ([]core.RawListing, error) {
		return listings, nil
	})
}

// blockingScraper holds its ingest slot until the job is cancelled.
func blockingScraper(started chan<- struct{}) core.Scraper {
	return scrapeFunc(func(ctx context.Context, _ core.ScrapeRequest) ([]core.RawListing, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

func waitJob(t *testing.T, svc *core.Service, id string) core.ScrapeJob {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := svc.WaitScrapeJob(ctx, id)
	require.NoError(t, err)
	return job
}

func TestStartScrape_Imports(t *testing.T) {
	scraped := []core.RawListing{
		{Title: "Studio", Price: "900", SourceName: "Avito", SourceURL: core.AvitoSourceURL, URL: "https://www.avito.ru/1"},
		{Title: "", Price: "100", CityName: "Omsk", SourceName: "Avito"},
		{
			Title: "Loft", Price: "2 500", CityName: "Kazan", SourceName: "Avito", SourceURL: core.AvitoSourceURL,
			Owner: &core.UserRef{Email: "scraped@example.com"},
		},
	}
	f := newFixture(t, core.ServiceConfig{}, nil, core.WithScraper(staticScraper(scraped...)))

	job, err := f.svc.StartScrape(context.Background(), f.admin, core.ScrapeRequest{
		URL:      " https://www.avito.ru/moskva/kvartiry ",
		CityName: "Moscow",
	})
	require.NoError(t, err)
	assert.Equal(t, core.JobPending, job.Status)
	assert.Equal(t, 1, job.Request.MaxPages)
	assert.Equal(t, "https://www.avito.ru/moskva/kvartiry", job.Request.URL)
	assert.Equal(t, f.admin, job.CreatedBy)

	done := waitJob(t, f.svc, job.ID)
	assert.Equal(t, core.JobCompleted, done.Status)
	assert.Equal(t, 3, done.Found)
	assert.Equal(t, 2, done.Imported)
	assert.Equal(t, 1, done.Skipped)
	assert.Empty(t, done.Error)
	require.NotNil(t, done.StartedAt)
	require.NotNil(t, done.FinishedAt)

	byTitle := f.store.ListingsByTitle()
	require.Len(t, byTitle, 2)
	assert.Equal(t, f.admin, byTitle["Loft"].OwnerID, "scraped listings belong to the caller")
	assert.Equal(t, "2500.00", core.FormatPrice(byTitle["Loft"].Price))

	var cities []string
	for _, c := range f.store.Cities() {
		cities = append(cities, c.Name)
	}
	assert.Equal(t, []string{"Kazan", "Moscow"}, cities, "request city fills pages without one")
	assert.Equal(t, 0, f.written().Users)

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, core.PathScraper, events[0].Path)
	assert.Equal(t, 2, events[0].Count)

	jobs := f.svc.ScrapeJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)
}

func TestStartScrape_Rejections(t *testing.T) {
	f := newFixture(t, core.ServiceConfig{}, nil, core.WithScraper(staticScraper()))
	ctx := context.Background()

	_, err := f.svc.StartScrape(ctx, f.member, core.ScrapeRequest{URL: "https://www.avito.ru"})
	assert.ErrorIs(t, err, core.ErrForbidden)

	for _, req := range []core.ScrapeRequest{
		{URL: ""},
		{URL: "ftp://example.com/list"},
		{URL: "/relative/path"},
		{URL: "https://example.com", MaxPages: -1},
	} {
		_, err := f.svc.StartScrape(ctx, f.admin, req)
		assert.Equal(t, core.KindValidation, core.KindOf(err), "request %+v", req)
	}

	assert.Empty(t, f.svc.ScrapeJobs())
}

func TestStartScrape_Disabled(t *testing.T) {
	f := newFixture(t, core.ServiceConfig{}, nil)

	_, err := f.svc.StartScrape(context.Background(), f.admin, core.ScrapeRequest{URL: "https://www.avito.ru"})
	assert.ErrorIs(t, err, core.ErrScrapingDisabled)
	assert.Equal(t, "ING002", core.MapError(err).Code)
}

func TestStartScrape_ScraperFailure(t *testing.T) {
	failing := scrapeFunc(func(context.Context, core.ScrapeRequest) ([]core.RawListing, error) {
		return nil, errors.New("403 Forbidden")
	})
	f := newFixture(t, core.ServiceConfig{}, nil, core.WithScraper(failing))

	job, err := f.svc.StartScrape(context.Background(), f.admin, core.ScrapeRequest{URL: "https://www.avito.ru/x"})
	require.NoError(t, err)

	done := waitJob(t, f.svc, job.ID)
	assert.Equal(t, core.JobFailed, done.Status)
	assert.Contains(t, done.Error, "403 Forbidden")
	assert.Equal(t, 0, f.written().Listings)
}

func TestStartScrape_Panic(t *testing.T) {
	panicking := scrapeFunc(func(context.Context, core.ScrapeRequest) ([]core.RawListing, error) {
		panic("selector exploded")
	})
	f := newFixture(t, core.ServiceConfig{}, nil, core.WithScraper(panicking))

	job, err := f.svc.StartScrape(context.Background(), f.admin, core.ScrapeRequest{URL: "https://www.avito.ru/x"})
	require.NoError(t, err)

	done := waitJob(t, f.svc, job.ID)
	assert.Equal(t, core.JobFailed, done.Status)
	assert.Contains(t, done.Error, "selector exploded")
	assert.Equal(t, 0, f.svc.IngestStatus().Active, "slot released after panic")
}

func TestScrapeJob_CancelAndLookup(t *testing.T) {
	started := make(chan struct{})
	f := newFixture(t, core.ServiceConfig{}, nil, core.WithScraper(blockingScraper(started)))

	_, err := f.svc.ScrapeJob("missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, f.svc.CancelScrapeJob("missing"), core.ErrNotFound)

	job, err := f.svc.StartScrape(context.Background(), f.admin, core.ScrapeRequest{URL: "https://www.avito.ru/x"})
	require.NoError(t, err)
	<-started

	running, err := f.svc.ScrapeJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.JobRunning, running.Status)

	require.NoError(t, f.svc.CancelScrapeJob(job.ID))
	done := waitJob(t, f.svc, job.ID)
	assert.Equal(t, core.JobFailed, done.Status)
	assert.Contains(t, done.Error, context.Canceled.Error())
}

func TestScrapeJob_SharesIngestSlots(t *testing.T) {
	started := make(chan struct{})
	f := newFixture(t, core.ServiceConfig{
		MaxConcurrentIngest: 1,
		IngestWait:          50 * time.Millisecond,
	}, nil, core.WithScraper(blockingScraper(started)))

	job, err := f.svc.StartScrape(context.Background(), f.admin, core.ScrapeRequest{URL: "https://www.avito.ru/x"})
	require.NoError(t, err)
	<-started
	assert.Equal(t, 1, f.svc.IngestStatus().Active)

	_, err = f.svc.ImportCSV(context.Background(), f.admin, strings.NewReader(importDoc))
	assert.ErrorIs(t, err, core.ErrTooManyImports)
	assert.Equal(t, "ING001", core.MapError(err).Code)

	f.svc.CancelScrapeJobs()
	waitJob(t, f.svc, job.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.svc.WaitForIngest(ctx))
	assert.Equal(t, 0, f.svc.IngestStatus().Active)
}

func TestPurgeFinishedJobs(t *testing.T) {
	started := make(chan struct{})
	blocking := blockingScraper(started)
	calls := 0
	scraper := scrapeFunc(func(ctx context.Context, req core.ScrapeRequest) ([]core.RawListing, error) {
		calls++
		if calls == 1 {
			return nil, nil
		}
		return blocking.Scrape(ctx, req)
	})
	f := newFixture(t, core.ServiceConfig{MaxConcurrentIngest: 1}, nil, core.WithScraper(scraper))
	ctx := context.Background()

	finished, err := f.svc.StartScrape(ctx, f.admin, core.ScrapeRequest{URL: "https://www.avito.ru/a"})
	require.NoError(t, err)
	waitJob(t, f.svc, finished.ID)

	running, err := f.svc.StartScrape(ctx, f.admin, core.ScrapeRequest{URL: "https://www.avito.ru/b"})
	require.NoError(t, err)
	<-started

	assert.Equal(t, 1, f.svc.PurgeFinishedJobs(-time.Minute))

	_, err = f.svc.ScrapeJob(finished.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = f.svc.ScrapeJob(running.ID)
	assert.NoError(t, err, "running jobs are never purged")

	f.svc.CancelScrapeJobs()
	waitJob(t, f.svc, running.ID)
}

func TestStartJobJanitor(t *testing.T) {
	f := newFixture(t, core.ServiceConfig{}, nil, core.WithScraper(staticScraper()))

	job, err := f.svc.StartScrape(context.Background(), f.admin, core.ScrapeRequest{URL: "https://www.avito.ru/a"})
	require.NoError(t, err)
	waitJob(t, f.svc, job.ID)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		f.svc.StartJobJanitor(ctx, core.JanitorConfig{Retention: time.Nanosecond, CheckInterval: 10 * time.Millisecond})
		close(stopped)
	}()

	assert.Eventually(t, func() bool { return len(f.svc.ScrapeJobs()) == 0 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop after cancel")
	}
}

func TestScrapeJobs_NewestFirst(t *testing.T) {
	f := newFixture(t, core.ServiceConfig{}, nil, core.WithScraper(staticScraper()))
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		job, err := f.svc.StartScrape(ctx, f.admin, core.ScrapeRequest{URL: "https://www.avito.ru/" + uuid.NewString()})
		require.NoError(t, err)
		waitJob(t, f.svc, job.ID)
		ids = append(ids, job.ID)
		time.Sleep(2 * time.Millisecond)
	}

	jobs := f.svc.ScrapeJobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{jobs[0].ID, jobs[1].ID, jobs[2].ID})
}
