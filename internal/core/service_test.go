package core_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/listings/internal/core"
	"github.com/JonMunkholm/listings/internal/memstore"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []core.RefreshEvent
}

func (n *recordingNotifier) ListingsRefreshed(_ context.Context, e core.RefreshEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *recordingNotifier) Events() []core.RefreshEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]core.RefreshEvent(nil), n.events...)
}

type countingMetrics struct {
	mu       sync.Mutex
	ingested map[core.IngestPath]int
	rejected map[core.Kind]int
	images   int
	jobs     map[core.JobStatus]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		ingested: make(map[core.IngestPath]int),
		rejected: make(map[core.Kind]int),
		jobs:     make(map[core.JobStatus]int),
	}
}

func (m *countingMetrics) ListingsIngested(path core.IngestPath, n int) {
	m.mu.Lock()
	m.ingested[path] += n
	m.mu.Unlock()
}

func (m *countingMetrics) IngestRejected(_ core.IngestPath, kind core.Kind) {
	m.mu.Lock()
	m.rejected[kind]++
	m.mu.Unlock()
}

func (m *countingMetrics) ImagesStored(n int) {
	m.mu.Lock()
	m.images += n
	m.mu.Unlock()
}

func (m *countingMetrics) ImportDuration(time.Duration) {}

func (m *countingMetrics) ScrapeJobFinished(status core.JobStatus) {
	m.mu.Lock()
	m.jobs[status]++
	m.mu.Unlock()
}

func (m *countingMetrics) Ingested(path core.IngestPath) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ingested[path]
}

func (m *countingMetrics) Rejected(kind core.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rejected[kind]
}

type fixture struct {
	svc      *core.Service
	store    *memstore.Store
	admin    uuid.UUID
	member   uuid.UUID
	notifier *recordingNotifier
	metrics  *countingMetrics
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFixture builds a service over a memory store seeded with one
// administrator and one regular user. wrap, when not nil, decorates the
// store handed to the service.
func newFixture(t *testing.T, cfg core.ServiceConfig, wrap func(core.Store) core.Store, opts ...core.Option) *fixture {
	t.Helper()

	mem := memstore.New()
	f := &fixture{
		store:    mem,
		admin:    uuid.New(),
		member:   uuid.New(),
		notifier: &recordingNotifier{},
		metrics:  newCountingMetrics(),
	}
	mem.AddUser(core.User{ID: f.admin, Email: "admin@example.com", IsAdmin: true})
	mem.AddUser(core.User{ID: f.member, Email: "member@example.com"})

	var store core.Store = mem
	if wrap != nil {
		store = wrap(mem)
	}

	opts = append([]core.Option{
		core.WithNotifier(f.notifier),
		core.WithMetrics(f.metrics),
		core.WithLogger(discardLogger()),
	}, opts...)
	f.svc = core.NewService(store, cfg, opts...)
	return f
}

// written returns the row counts excluding the two seeded users.
func (f *fixture) written() memstore.Counts {
	c := f.store.Counts()
	c.Users -= 2
	return c
}

func manualListing() core.RawListing {
	return core.RawListing{
		Title:       "2-room flat near the park",
		Description: "Quiet street",
		Price:       "1500.50",
		District:    "Arbat",
		Rooms:       "2",
		CityName:    "Moscow",
		SourceName:  "Avito",
		URL:         "https://www.avito.ru/moskva/1",
	}
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestCreateListing_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, core.ServiceConfig{}, nil)

	raw := manualListing()
	raw.PublicationDate = "2024-05-01T09:00:00Z"
	raw.Images = []string{b64("first image"), b64("second image")}
	raw.Owner = &core.UserRef{Email: "someone@example.com"}

	id, err := f.svc.CreateListing(ctx, f.admin, raw)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	got, err := f.svc.GetListing(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "2-room flat near the park", got.Title)
	assert.Equal(t, "Quiet street", got.Description)
	assert.Equal(t, "1500.50", core.FormatPrice(got.Price))
	assert.Equal(t, "Arbat", got.District)
	require.NotNil(t, got.Rooms)
	assert.EqualValues(t, 2, *got.Rooms)
	assert.Equal(t, "Moscow", got.CityName)
	assert.Equal(t, core.AvitoSourceName, got.SourceName)
	assert.Equal(t, core.AvitoSourceURL, got.SourceURL)
	assert.Equal(t, f.admin, got.OwnerID, "manual listings belong to the caller")
	assert.True(t, got.PublicationDate.Equal(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)))
	require.Len(t, got.ImageIDs, 2)

	var images []string
	for _, imgID := range got.ImageIDs {
		data, err := f.svc.GetImage(ctx, id, imgID)
		require.NoError(t, err)
		images = append(images, string(data))
	}
	assert.ElementsMatch(t, []string{"first image", "second image"}, images)

	c := f.written()
	assert.Equal(t, memstore.Counts{Cities: 1, Sources: 1, Listings: 1, Images: 2}, c)

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, core.PathManual, events[0].Path)
	assert.Equal(t, []uuid.UUID{id}, events[0].ListingIDs)
	assert.Equal(t, 1, f.metrics.Ingested(core.PathManual))
}

func TestCreateListing_PublicationDateDefaultsToCreatedAt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, core.ServiceConfig{}, nil)

	id, err := f.svc.CreateListing(ctx, f.admin, manualListing())
	require.NoError(t, err)

	got, err := f.svc.GetListing(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.CreatedAt.IsZero())
	assert.True(t, got.PublicationDate.Equal(got.CreatedAt))
	assert.Empty(t, got.ImageIDs)
}

func TestCreateListing_ValidationWritesNothing(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*core.RawListing)
		wantCode string
	}{
		{name: "blank title", mutate: func(r *core.RawListing) { r.Title = " " }, wantCode: "VAL001"},
		{name: "price not a number", mutate: func(r *core.RawListing) { r.Price = "abc" }, wantCode: "VAL002"},
		{name: "blank city", mutate: func(r *core.RawListing) { r.CityName = "" }, wantCode: "VAL003"},
		{name: "blank source", mutate: func(r *core.RawListing) { r.SourceName = "" }, wantCode: "VAL004"},
		{name: "bad image", mutate: func(r *core.RawListing) { r.Images = []string{"%%%"} }, wantCode: "IMG001"},
		{name: "bad rooms", mutate: func(r *core.RawListing) { r.Rooms = "two" }, wantCode: "VAL005"},
		{name: "bad publication date", mutate: func(r *core.RawListing) { r.PublicationDate = "May 1" }, wantCode: "VAL006"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, core.ServiceConfig{}, nil)
			raw := manualListing()
			tt.mutate(&raw)

			id, err := f.svc.CreateListing(context.Background(), f.admin, raw)
			require.Error(t, err)
			assert.Equal(t, uuid.Nil, id)
			assert.Equal(t, core.KindValidation, core.KindOf(err))
			assert.Equal(t, tt.wantCode, core.MapError(err).Code)

			assert.Equal(t, memstore.Counts{}, f.written())
			assert.Empty(t, f.notifier.Events())
			assert.Equal(t, 1, f.metrics.Rejected(core.KindValidation))
		})
	}
}

func TestCreateListing_ImageTooLarge(t *testing.T) {
	f := newFixture(t, core.ServiceConfig{MaxImageBytes: 16}, nil)

	raw := manualListing()
	raw.Images = []string{b64("small"), b64(strings.Repeat("x", 17))}

	_, err := f.svc.CreateListing(context.Background(), f.admin, raw)
	assert.ErrorIs(t, err, core.ErrPayloadTooLarge)
	assert.Equal(t, "IMG002", core.MapError(err).Code)
	assert.Equal(t, memstore.Counts{}, f.written())
}

func TestCreateListing_Forbidden(t *testing.T) {
	f := newFixture(t, core.ServiceConfig{}, nil)

	for name, caller := range map[string]uuid.UUID{
		"regular user": f.member,
		"unknown user": uuid.New(),
		"anonymous":    uuid.Nil,
	} {
		t.Run(name, func(t *testing.T) {
			// An invalid body still reports the authorization failure.
			_, err := f.svc.CreateListing(context.Background(), caller, core.RawListing{})
			assert.ErrorIs(t, err, core.ErrForbidden)
			assert.Equal(t, core.KindForbidden, core.KindOf(err))
		})
	}
	assert.Equal(t, memstore.Counts{}, f.written())
}

func TestCreateListing_ConcurrentSharesCity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, core.ServiceConfig{}, nil)

	const n = 12
	ids := make([]uuid.UUID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw := manualListing()
			raw.Title = fmt.Sprintf("flat %d", i)
			raw.CityName = "Kazan"
			id, err := f.svc.CreateListing(ctx, f.admin, raw)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	require.Len(t, f.store.Cities(), 1)
	cityID := f.store.Cities()[0].ID
	for _, l := range f.store.ListingsByTitle() {
		assert.Equal(t, cityID, l.CityID)
	}
	assert.Equal(t, n, f.written().Listings)
}

func TestGetListing_NotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, core.ServiceConfig{}, nil)

	_, err := f.svc.GetListing(ctx, uuid.New())
	assert.ErrorIs(t, err, core.ErrNotFound)

	raw := manualListing()
	raw.Images = []string{b64("img")}
	id, err := f.svc.CreateListing(ctx, f.admin, raw)
	require.NoError(t, err)
	got, err := f.svc.GetListing(ctx, id)
	require.NoError(t, err)

	_, err = f.svc.GetImage(ctx, uuid.New(), got.ImageIDs[0])
	assert.ErrorIs(t, err, core.ErrNotFound, "image must belong to the listing")
	_, err = f.svc.GetImage(ctx, id, uuid.New())
	assert.ErrorIs(t, err, core.ErrNotFound)
}

type mapImageCache struct {
	mu   sync.Mutex
	data map[uuid.UUID][]byte
	hits int
}

func (c *mapImageCache) GetImage(_ context.Context, _, imageID uuid.UUID) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.data[imageID]
	if ok {
		c.hits++
	}
	return d, ok, nil
}

func (c *mapImageCache) SetImage(_ context.Context, _, imageID uuid.UUID, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[imageID] = data
	return nil
}

func TestGetImage_Cache(t *testing.T) {
	ctx := context.Background()
	cache := &mapImageCache{data: make(map[uuid.UUID][]byte)}
	f := newFixture(t, core.ServiceConfig{}, nil, core.WithImageCache(cache))

	raw := manualListing()
	raw.Images = []string{b64("cached")}
	id, err := f.svc.CreateListing(ctx, f.admin, raw)
	require.NoError(t, err)
	got, err := f.svc.GetListing(ctx, id)
	require.NoError(t, err)
	imgID := got.ImageIDs[0]

	data, err := f.svc.GetImage(ctx, id, imgID)
	require.NoError(t, err)
	assert.Equal(t, "cached", string(data))
	assert.Equal(t, 0, cache.hits)

	data, err = f.svc.GetImage(ctx, id, imgID)
	require.NoError(t, err)
	assert.Equal(t, "cached", string(data))
	assert.Equal(t, 1, cache.hits)
}

const importDoc = "title,price,city,url,user_email\n" +
	"Flat A,1000,Moscow,https://www.avito.ru/a,\n" +
	"Flat B,2000.5,Kazan,https://example.com/b,owner@example.com\n" +
	"Flat C,3000,Moscow,,owner@example.com\n"

func TestImportCSV_AllValid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, core.ServiceConfig{}, nil)

	result, err := f.svc.ImportCSV(ctx, f.admin, strings.NewReader(importDoc))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Imported)
	assert.Equal(t, 0, result.Skipped)
	assert.Empty(t, result.FailedRows)

	assert.Equal(t, memstore.Counts{Cities: 2, Sources: 2, Users: 1, Listings: 3}, f.written())

	byTitle := f.store.ListingsByTitle()
	assert.Equal(t, f.admin, byTitle["Flat A"].OwnerID, "rows without an email belong to the caller")
	assert.NotEqual(t, f.admin, byTitle["Flat B"].OwnerID)
	assert.Equal(t, byTitle["Flat B"].OwnerID, byTitle["Flat C"].OwnerID)
	assert.Equal(t, "2000.50", core.FormatPrice(byTitle["Flat B"].Price))

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, core.PathCSV, events[0].Path)
	assert.Equal(t, 3, events[0].Count)
	assert.Equal(t, 3, f.metrics.Ingested(core.PathCSV))
}

const importDocWithBadRow = importDoc + "Flat D,abc,Omsk,,\n"

func TestImportCSV_AbortPolicy(t *testing.T) {
	f := newFixture(t, core.ServiceConfig{RowPolicy: core.RowPolicyAbort}, nil)

	result, err := f.svc.ImportCSV(context.Background(), f.admin, strings.NewReader(importDocWithBadRow))
	require.Nil(t, result)

	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "price", ve.Field)
	assert.Equal(t, 5, ve.Line)
	assert.Equal(t, "VAL002", core.MapError(err).Code)

	assert.Equal(t, memstore.Counts{}, f.written(), "nothing is written when one row is invalid")
	assert.Empty(t, f.notifier.Events())
}

func TestImportCSV_SkipPolicy(t *testing.T) {
	f := newFixture(t, core.ServiceConfig{RowPolicy: core.RowPolicySkip}, nil)

	result, err := f.svc.ImportCSV(context.Background(), f.admin, strings.NewReader(importDocWithBadRow))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.FailedRows, 1)
	assert.Equal(t, core.FailedRow{Line: 5, Field: "price", Message: result.FailedRows[0].Message}, result.FailedRows[0])
	assert.NotEmpty(t, result.FailedRows[0].Message)

	assert.Equal(t, 3, f.written().Listings)
	_, omsk := f.store.ListingsByTitle()["Flat D"]
	assert.False(t, omsk)
}

func TestImportCSV_DocumentErrors(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		wantCode string
	}{
		{name: "empty", doc: "", wantCode: "CSV001"},
		{name: "header only", doc: "title,price\n", wantCode: "CSV001"},
		{name: "incomplete header only", doc: "title,description\n", wantCode: "CSV001"},
		{name: "missing price column", doc: "title,city\nFlat,Moscow\n", wantCode: "CSV002"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, core.ServiceConfig{}, nil)

			_, err := f.svc.ImportCSV(context.Background(), f.admin, strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Equal(t, core.KindValidation, core.KindOf(err))
			assert.Equal(t, tt.wantCode, core.MapError(err).Code)
			assert.Equal(t, memstore.Counts{}, f.written())
		})
	}
}

func TestImportCSV_Forbidden(t *testing.T) {
	f := newFixture(t, core.ServiceConfig{}, nil)

	_, err := f.svc.ImportCSV(context.Background(), f.member, strings.NewReader(importDoc))
	assert.ErrorIs(t, err, core.ErrForbidden)
	assert.Equal(t, memstore.Counts{}, f.written())
	assert.Equal(t, 1, f.metrics.Rejected(core.KindForbidden))
}

// flakyStore fails the nth listing insert of every transaction.
type flakyStore struct {
	core.Store
	failOn int
}

type flakyListings struct {
	core.ListingRepository
	failOn  int
	inserts int
}

func (l *flakyListings) InsertListing(ctx context.Context, listing core.Listing) error {
	l.inserts++
	if l.inserts == l.failOn {
		return errors.New("connection reset by peer")
	}
	return l.ListingRepository.InsertListing(ctx, listing)
}

func (s *flakyStore) InTx(ctx context.Context, fn func(ctx context.Context, repos core.Repositories) error) error {
	return s.Store.InTx(ctx, func(ctx context.Context, repos core.Repositories) error {
		repos.Listings = &flakyListings{ListingRepository: repos.Listings, failOn: s.failOn}
		return fn(ctx, repos)
	})
}

func TestImportCSV_StorageFailureRollsBack(t *testing.T) {
	wrap := func(s core.Store) core.Store { return &flakyStore{Store: s, failOn: 3} }
	f := newFixture(t, core.ServiceConfig{}, wrap)

	_, err := f.svc.ImportCSV(context.Background(), f.admin, strings.NewReader(importDoc))
	require.Error(t, err)
	assert.Equal(t, core.KindPersistence, core.KindOf(err))
	assert.Equal(t, "DB001", core.MapError(err).Code)

	assert.Equal(t, memstore.Counts{}, f.written(), "references created before the failure are rolled back")
	assert.Empty(t, f.notifier.Events())
}

func TestCreateListing_StorageFailureRollsBack(t *testing.T) {
	wrap := func(s core.Store) core.Store { return &flakyStore{Store: s, failOn: 1} }
	f := newFixture(t, core.ServiceConfig{}, wrap)

	_, err := f.svc.CreateListing(context.Background(), f.admin, manualListing())
	assert.Equal(t, core.KindPersistence, core.KindOf(err))
	assert.Equal(t, memstore.Counts{}, f.written())
}

func TestImportCSV_FoldCityNames(t *testing.T) {
	f := newFixture(t, core.ServiceConfig{FoldCityNames: true}, nil)

	doc := "title,price,city\nA,1,moscow\nB,2,MOSCOW\nC,3,\n"
	result, err := f.svc.ImportCSV(context.Background(), f.admin, strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Imported)

	var names []string
	for _, c := range f.store.Cities() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Moscow", "Unknown"}, names)
}
