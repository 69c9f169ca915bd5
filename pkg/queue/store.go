package queue

import (
	"sync"
	"time"

	"github.com/gooseworks/goose/pkg/models"
)

// JobStore holds job state in process memory. All mutations funnel through
// Mutate, which serializes state transitions per the single-owner contract:
// any two transitions for one job are totally ordered and every published
// clone reflects a consistent state.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]*models.Job
	order []string // creation order, oldest first
}

// NewJobStore creates an empty store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*models.Job)}
}

// Insert registers a new job. The store takes ownership of the value.
func (s *JobStore) Insert(job *models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
}

// Get returns a detached clone of one job.
func (s *JobStore) Get(id string) (models.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.Job{}, false
	}
	return job.Clone(), true
}

// List returns detached clones of all jobs, newest first.
func (s *JobStore) List() []models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Job, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.jobs[s.order[i]].Clone())
	}
	return out
}

// Count returns the number of jobs with the given status.
func (s *JobStore) Count(status models.JobStatus) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, job := range s.jobs {
		if job.Status == status {
			n++
		}
	}
	return n
}

// Mutate applies fn to one job under the store lock, refreshes UpdatedAt,
// and returns a detached clone of the new state. The manager is the only
// caller; a job may already be failed while its remaining tests run to
// completion, so terminal status does not block per-test transitions.
func (s *JobStore) Mutate(id string, fn func(*models.Job)) (models.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.Job{}, false
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC()
	return job.Clone(), true
}
