package core

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a scrape job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Finished reports whether the job reached a terminal state.
func (s JobStatus) Finished() bool {
	return s == JobCompleted || s == JobFailed
}

// ScrapeRequest describes what a scrape job should fetch.
type ScrapeRequest struct {
	URL      string `json:"url"`
	CityName string `json:"city_name,omitempty"` // used when a page does not name the city
	MaxPages int    `json:"max_pages,omitempty"`
}

// ScrapeJob is a snapshot of a background scrape.
type ScrapeJob struct {
	ID         string        `json:"id"`
	Request    ScrapeRequest `json:"request"`
	Status     JobStatus     `json:"status"`
	Found      int           `json:"found"`
	Imported   int           `json:"imported"`
	Skipped    int           `json:"skipped"`
	Error      string        `json:"error,omitempty"`
	CreatedBy  uuid.UUID     `json:"created_by"`
	CreatedAt  time.Time     `json:"created_at"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

type trackedJob struct {
	mu     sync.Mutex
	job    ScrapeJob
	done   chan struct{}
	cancel context.CancelFunc
}

func (t *trackedJob) snapshot() ScrapeJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job
}

func (t *trackedJob) update(fn func(*ScrapeJob)) {
	t.mu.Lock()
	fn(&t.job)
	t.mu.Unlock()
}

// finish records the terminal state and closes done. It is a no-op once the
// job has finished.
func (t *trackedJob) finish(status JobStatus, err error, at time.Time) {
	t.mu.Lock()
	if t.job.Status.Finished() {
		t.mu.Unlock()
		return
	}
	t.job.Status = status
	t.job.FinishedAt = &at
	if err != nil {
		t.job.Error = err.Error()
	}
	t.mu.Unlock()
	close(t.done)
}

// jobTracker is the status store for scrape jobs.
type jobTracker struct {
	mu   sync.RWMutex
	jobs map[string]*trackedJob
}

func newJobTracker() *jobTracker {
	return &jobTracker{jobs: make(map[string]*trackedJob)}
}

func (jt *jobTracker) add(req ScrapeRequest, caller uuid.UUID, cancel context.CancelFunc, now time.Time) *trackedJob {
	t := &trackedJob{
		job: ScrapeJob{
			ID:        uuid.New().String(),
			Request:   req,
			Status:    JobPending,
			CreatedBy: caller,
			CreatedAt: now,
		},
		done:   make(chan struct{}),
		cancel: cancel,
	}
	jt.mu.Lock()
	jt.jobs[t.job.ID] = t
	jt.mu.Unlock()
	return t
}

func (jt *jobTracker) get(id string) (*trackedJob, bool) {
	jt.mu.RLock()
	defer jt.mu.RUnlock()
	t, ok := jt.jobs[id]
	return t, ok
}

// list returns snapshots ordered newest first.
func (jt *jobTracker) list() []ScrapeJob {
	jt.mu.RLock()
	out := make([]ScrapeJob, 0, len(jt.jobs))
	for _, t := range jt.jobs {
		out = append(out, t.snapshot())
	}
	jt.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// purge drops finished jobs that ended before cutoff.
func (jt *jobTracker) purge(cutoff time.Time) int {
	jt.mu.Lock()
	defer jt.mu.Unlock()

	n := 0
	for id, t := range jt.jobs {
		s := t.snapshot()
		if s.Status.Finished() && s.FinishedAt != nil && s.FinishedAt.Before(cutoff) {
			delete(jt.jobs, id)
			n++
		}
	}
	return n
}

func (jt *jobTracker) cancelAll() {
	jt.mu.RLock()
	defer jt.mu.RUnlock()
	for _, t := range jt.jobs {
		t.cancel()
	}
}
