package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// ErrScrapingDisabled is returned when no Scraper is configured.
var ErrScrapingDisabled = errors.New("scraping is not configured")

// StartScrape authorizes the caller, registers a job and runs it in the
// background. The returned snapshot is in the pending state; use ScrapeJob or
// WaitScrapeJob to observe the outcome.
func (s *Service) StartScrape(ctx context.Context, callerID uuid.UUID, req ScrapeRequest) (ScrapeJob, error) {
	if err := s.gate.RequireAdmin(ctx, callerID); err != nil {
		s.reject(PathScraper, err)
		return ScrapeJob{}, err
	}
	if s.scraper == nil {
		return ScrapeJob{}, ErrScrapingDisabled
	}
	if err := validateScrapeRequest(&req); err != nil {
		return ScrapeJob{}, err
	}

	// The job outlives the request that started it.
	jobCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ScrapeTimeout)
	t := s.jobs.add(req, callerID, cancel, s.now().UTC())
	snap := t.snapshot()

	s.logger.Info("scrape job started", "job_id", snap.ID, "url", req.URL,
		"caller_id", callerID, "ip", IPAddressFromContext(ctx))

	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic in scrape job", "job_id", snap.ID, "panic", r)
				s.finishJob(t, JobFailed, fmt.Errorf("internal error: %v", r))
			}
		}()
		s.runScrapeJob(jobCtx, t, callerID)
	}()

	return snap, nil
}

// ScrapeJob returns the current snapshot of a job.
func (s *Service) ScrapeJob(id string) (ScrapeJob, error) {
	t, ok := s.jobs.get(id)
	if !ok {
		return ScrapeJob{}, ErrNotFound
	}
	return t.snapshot(), nil
}

// ScrapeJobs lists known jobs, newest first.
func (s *Service) ScrapeJobs() []ScrapeJob {
	return s.jobs.list()
}

// WaitScrapeJob blocks until the job finishes or ctx is done.
func (s *Service) WaitScrapeJob(ctx context.Context, id string) (ScrapeJob, error) {
	t, ok := s.jobs.get(id)
	if !ok {
		return ScrapeJob{}, ErrNotFound
	}
	select {
	case <-t.done:
		return t.snapshot(), nil
	case <-ctx.Done():
		return t.snapshot(), ctx.Err()
	}
}

// CancelScrapeJob cancels a running job.
func (s *Service) CancelScrapeJob(id string) error {
	t, ok := s.jobs.get(id)
	if !ok {
		return ErrNotFound
	}
	t.cancel()
	return nil
}

// CancelScrapeJobs cancels every job. Used at shutdown.
func (s *Service) CancelScrapeJobs() {
	s.jobs.cancelAll()
}

func (s *Service) runScrapeJob(ctx context.Context, t *trackedJob, callerID uuid.UUID) {
	if err := s.limiter.Acquire(ctx); err != nil {
		s.finishJob(t, JobFailed, err)
		return
	}
	defer s.limiter.Release()

	started := s.now().UTC()
	t.update(func(j *ScrapeJob) {
		j.Status = JobRunning
		j.StartedAt = &started
	})

	req := t.snapshot().Request
	candidates, err := s.scraper.Scrape(ctx, req)
	if err != nil {
		s.finishJob(t, JobFailed, fmt.Errorf("scrape %s: %w", req.URL, err))
		return
	}
	t.update(func(j *ScrapeJob) { j.Found = len(candidates) })

	var ids []uuid.UUID
	for _, raw := range candidates {
		if ctx.Err() != nil {
			s.finishJob(t, JobFailed, ctx.Err())
			return
		}
		if strings.TrimSpace(raw.CityName) == "" {
			raw.CityName = req.CityName
		}
		raw.Owner = nil

		v, err := s.validator.Validate(raw)
		if err != nil {
			s.reject(PathScraper, err)
			t.update(func(j *ScrapeJob) { j.Skipped++ })
			continue
		}

		var id uuid.UUID
		err = s.store.InTx(ctx, func(ctx context.Context, repos Repositories) error {
			var err error
			id, err = s.newPipeline(repos).ingest(ctx, v, callerID)
			return err
		})
		if err != nil {
			s.reject(PathScraper, err)
			s.finishJob(t, JobFailed, err)
			if len(ids) > 0 {
				s.notify(ctx, PathScraper, ids)
			}
			return
		}
		ids = append(ids, id)
		s.metrics.ImagesStored(len(v.Images))
		t.update(func(j *ScrapeJob) { j.Imported++ })
	}

	s.metrics.ListingsIngested(PathScraper, len(ids))
	if len(ids) > 0 {
		s.notify(ctx, PathScraper, ids)
	}
	s.finishJob(t, JobCompleted, nil)
}

func (s *Service) finishJob(t *trackedJob, status JobStatus, err error) {
	t.finish(status, err, s.now().UTC())
	snap := t.snapshot()
	s.metrics.ScrapeJobFinished(snap.Status)

	if status == JobFailed {
		s.logger.Error("scrape job failed",
			"job_id", snap.ID,
			"found", snap.Found,
			"imported", snap.Imported,
			"error", err,
		)
		return
	}
	s.logger.Info("scrape job completed",
		"job_id", snap.ID,
		"found", snap.Found,
		"imported", snap.Imported,
		"skipped", snap.Skipped,
	)
}

func validateScrapeRequest(req *ScrapeRequest) error {
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return &ValidationError{Field: "url", Message: "url is required"}
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Field: "url", Value: req.URL, Message: "url must be an absolute http(s) URL"}
	}
	req.CityName = strings.TrimSpace(req.CityName)
	if req.MaxPages < 0 {
		return &ValidationError{Field: "max_pages", Message: "max_pages must not be negative"}
	}
	if req.MaxPages == 0 {
		req.MaxPages = 1
	}
	return nil
}
