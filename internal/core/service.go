package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultImportTimeout bounds one CSV import.
const DefaultImportTimeout = 10 * time.Minute

// ServiceConfig holds the ingestion settings.
type ServiceConfig struct {
	MaxImageBytes       int
	RowPolicy           RowPolicy
	DefaultCity         string
	FoldCityNames       bool
	MaxConcurrentIngest int
	IngestWait          time.Duration
	ImportTimeout       time.Duration
	ScrapeTimeout       time.Duration
}

// Option configures optional collaborators of a Service.
type Option func(*Service)

// WithNotifier sets the refresh-signal publisher.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithImageCache puts a cache in front of image reads.
func WithImageCache(c ImageCache) Option {
	return func(s *Service) { s.images = c }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithScraper enables scrape jobs.
func WithScraper(sc Scraper) Option {
	return func(s *Service) { s.scraper = sc }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// Service runs the ingestion pipeline for every entry path.
type Service struct {
	store     Store
	cfg       ServiceConfig
	gate      *AdminGate
	validator *ListingValidator
	csv       *CsvIngestor
	cityName  func(string) string
	limiter   *IngestLimiter
	jobs      *jobTracker

	notifier Notifier
	images   ImageCache
	metrics  Metrics
	scraper  Scraper
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a Service over store.
func NewService(store Store, cfg ServiceConfig, opts ...Option) *Service {
	if cfg.RowPolicy == "" {
		cfg.RowPolicy = RowPolicyAbort
	}
	if cfg.ImportTimeout <= 0 {
		cfg.ImportTimeout = DefaultImportTimeout
	}
	if cfg.ScrapeTimeout <= 0 {
		cfg.ScrapeTimeout = DefaultImportTimeout
	}

	s := &Service{
		store:     store,
		cfg:       cfg,
		gate:      NewAdminGate(store.Repos().Users),
		validator: NewListingValidator(NewImageCodec(cfg.MaxImageBytes)),
		csv:       NewCsvIngestor(cfg.DefaultCity),
		cityName:  CityNameFolder(cfg.FoldCityNames),
		limiter:   NewIngestLimiter(cfg.MaxConcurrentIngest, cfg.IngestWait),
		jobs:      newJobTracker(),
		notifier:  nopNotifier{},
		metrics:   nopMetrics{},
		logger:    slog.Default().With("component", "ingest"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequireAdmin exposes the admin gate to transports that must authorize
// before decoding a request.
func (s *Service) RequireAdmin(ctx context.Context, callerID uuid.UUID) error {
	return s.gate.RequireAdmin(ctx, callerID)
}

// CreateListing ingests one listing from the manual form. The caller owns it.
func (s *Service) CreateListing(ctx context.Context, callerID uuid.UUID, raw RawListing) (uuid.UUID, error) {
	if err := s.gate.RequireAdmin(ctx, callerID); err != nil {
		s.reject(PathManual, err)
		return uuid.Nil, err
	}

	v, err := s.validator.Validate(raw)
	if err != nil {
		s.reject(PathManual, err)
		return uuid.Nil, err
	}
	if v.SourceURL == "" {
		v.SourceURL = SourceURLForName(v.SourceName)
	}
	v.Owner = nil

	var id uuid.UUID
	err = s.store.InTx(ctx, func(ctx context.Context, repos Repositories) error {
		var err error
		id, err = s.newPipeline(repos).ingest(ctx, v, callerID)
		return err
	})
	if err != nil {
		s.reject(PathManual, err)
		return uuid.Nil, err
	}

	s.metrics.ListingsIngested(PathManual, 1)
	s.metrics.ImagesStored(len(v.Images))
	s.logger.Info("listing created",
		"listing_id", id,
		"caller_id", callerID,
		"ip", IPAddressFromContext(ctx),
		"images", len(v.Images),
	)
	s.notify(ctx, PathManual, []uuid.UUID{id})
	return id, nil
}

// ImportCSV parses, validates and stores a CSV document in one transaction.
// Under RowPolicyAbort the first invalid row rejects the document and nothing
// is written; under RowPolicySkip invalid rows are reported and skipped.
// Storage failures always abort the whole import.
func (s *Service) ImportCSV(ctx context.Context, callerID uuid.UUID, r io.Reader) (*ImportResult, error) {
	if err := s.gate.RequireAdmin(ctx, callerID); err != nil {
		s.reject(PathCSV, err)
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ImportTimeout)
	defer cancel()
	start := s.now()

	rows, err := s.csv.Parse(r)
	if err != nil {
		s.reject(PathCSV, err)
		return nil, err
	}

	result := &ImportResult{}
	valid := make([]*ValidListing, 0, len(rows))
	for _, row := range rows {
		v, err := s.validator.Validate(row.Listing)
		if err == nil {
			valid = append(valid, v)
			continue
		}

		var ve *ValidationError
		if errors.As(err, &ve) {
			ve.Line = row.Line
		}
		if s.cfg.RowPolicy != RowPolicySkip {
			s.reject(PathCSV, err)
			return nil, err
		}
		result.Skipped++
		fr := FailedRow{Line: row.Line, Message: err.Error()}
		if ve != nil {
			fr.Field = ve.Field
			fr.Message = ve.Message
		}
		result.FailedRows = append(result.FailedRows, fr)
	}

	var ids []uuid.UUID
	images := 0
	err = s.store.InTx(ctx, func(ctx context.Context, repos Repositories) error {
		ids = ids[:0]
		images = 0
		p := s.newPipeline(repos)
		for _, v := range valid {
			id, err := p.ingest(ctx, v, callerID)
			if err != nil {
				return err
			}
			ids = append(ids, id)
			images += len(v.Images)
		}
		return nil
	})
	if err != nil {
		s.reject(PathCSV, err)
		return nil, err
	}

	result.Imported = len(ids)
	s.metrics.ListingsIngested(PathCSV, result.Imported)
	s.metrics.ImagesStored(images)
	s.metrics.ImportDuration(s.now().Sub(start))
	s.logger.Info("csv import committed",
		"caller_id", callerID,
		"ip", IPAddressFromContext(ctx),
		"rows", len(rows),
		"imported", result.Imported,
		"skipped", result.Skipped,
		"duration_ms", s.now().Sub(start).Milliseconds(),
	)
	if len(ids) > 0 {
		s.notify(ctx, PathCSV, ids)
	}
	return result, nil
}

// GetListing returns a stored listing with its reference names.
func (s *Service) GetListing(ctx context.Context, id uuid.UUID) (*ListingDetails, error) {
	repos := s.store.Repos()

	l, err := repos.Listings.GetListing(ctx, id)
	if err != nil {
		return nil, persistErr("get listing", err)
	}
	if l == nil {
		return nil, ErrNotFound
	}

	d := &ListingDetails{Listing: *l}
	city, err := repos.Cities.FindCityByID(ctx, l.CityID)
	if err != nil {
		return nil, persistErr("get listing city", err)
	}
	if city != nil {
		d.CityName = city.Name
	}
	src, err := repos.Sources.FindSourceByID(ctx, l.SourceID)
	if err != nil {
		return nil, persistErr("get listing source", err)
	}
	if src != nil {
		d.SourceName = src.Name
		d.SourceURL = src.URL
	}
	if d.ImageIDs, err = repos.Listings.ListImageIDs(ctx, id); err != nil {
		return nil, persistErr("list listing images", err)
	}
	return d, nil
}

// GetImage returns the bytes of one image of one listing, or ErrNotFound
// when the pair does not exist.
func (s *Service) GetImage(ctx context.Context, listingID, imageID uuid.UUID) ([]byte, error) {
	if s.images != nil {
		data, ok, err := s.images.GetImage(ctx, listingID, imageID)
		if err != nil {
			s.logger.Warn("image cache read failed", "image_id", imageID, "error", err)
		} else if ok {
			return data, nil
		}
	}

	img, err := s.store.Repos().Listings.GetImage(ctx, listingID, imageID)
	if err != nil {
		return nil, persistErr("get image", err)
	}
	if img == nil {
		return nil, ErrNotFound
	}

	if s.images != nil {
		if err := s.images.SetImage(ctx, listingID, imageID, img.Data); err != nil {
			s.logger.Warn("image cache write failed", "image_id", imageID, "error", err)
		}
	}
	return img.Data, nil
}

// WaitForIngest blocks until running imports and scrape jobs release their
// slots or ctx is done.
func (s *Service) WaitForIngest(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// IngestStatus reports slot usage.
func (s *Service) IngestStatus() IngestLimiterStatus {
	return s.limiter.Status()
}

// pipeline is the resolve-then-write half of ingestion, bound to one
// transaction.
type pipeline struct {
	resolver *ReferenceResolver
	writer   *ListingWriter
}

func (s *Service) newPipeline(repos Repositories) pipeline {
	r := NewReferenceResolver(repos, s.cityName)
	r.now = s.now
	w := NewListingWriter(repos.Listings)
	w.now = s.now
	return pipeline{resolver: r, writer: w}
}

// ingest resolves references then writes. References resolve before the
// listing insert so every foreign key exists at commit.
func (p pipeline) ingest(ctx context.Context, v *ValidListing, callerID uuid.UUID) (uuid.UUID, error) {
	cityID, err := p.resolver.ResolveCity(ctx, v.CityName)
	if err != nil {
		return uuid.Nil, err
	}
	sourceID, err := p.resolver.ResolveSource(ctx, v.SourceName, v.SourceURL)
	if err != nil {
		return uuid.Nil, err
	}
	ownerID, err := p.resolver.ResolveOwner(ctx, v.Owner, callerID)
	if err != nil {
		return uuid.Nil, err
	}
	return p.writer.Create(ctx, v, Refs{CityID: cityID, SourceID: sourceID, OwnerID: ownerID})
}

func (s *Service) reject(path IngestPath, err error) {
	kind := KindOf(err)
	s.metrics.IngestRejected(path, kind)
	if kind == KindPersistence || kind == KindInternal {
		s.logger.Error("ingest failed", "path", path, "error", err)
		return
	}
	s.logger.Debug("ingest rejected", "path", path, "kind", kind.String(), "error", err)
}

// notify publishes a refresh signal. The listings are already committed, so
// a publish failure is logged and otherwise ignored.
func (s *Service) notify(ctx context.Context, path IngestPath, ids []uuid.UUID) {
	event := RefreshEvent{Path: path, ListingIDs: ids, Count: len(ids), At: s.now().UTC()}
	if err := s.notifier.ListingsRefreshed(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("refresh signal failed", "path", path, "count", len(ids), "error", err)
	}
}
