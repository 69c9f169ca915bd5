package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gooseworks/goose/pkg/config"
	"github.com/gooseworks/goose/pkg/discovery"
	"github.com/gooseworks/goose/pkg/events"
	"github.com/gooseworks/goose/pkg/history"
	"github.com/gooseworks/goose/pkg/models"
)

// taskQueueCapacity bounds the in-flight task buffer. Jobs enqueue at most
// their test count; the dispatcher blocks if a burst ever exceeds this.
const taskQueueCapacity = 1024

// Manager owns the job lifecycle: it accepts jobs from the API, resolves
// their tests against a fresh discovery snapshot, fans per-test tasks out to
// the worker pool, records transitions, and publishes every mutation to the
// event bus.
type Manager struct {
	cfg       config.QueueConfig
	store     *JobStore
	discovery *discovery.Service
	executor  Executor
	history   *history.Store
	bus       *events.Bus
	logger    *slog.Logger

	jobCh   chan string
	taskCh  chan Task
	workers []*Worker

	stopCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewManager wires the job manager. Start must be called before jobs run.
func NewManager(cfg config.QueueConfig, disc *discovery.Service, executor Executor, hist *history.Store, bus *events.Bus, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		store:     NewJobStore(),
		discovery: disc,
		executor:  executor,
		history:   hist,
		bus:       bus,
		logger:    logger.With("component", "queue"),
		jobCh:     make(chan string, cfg.JobBacklog),
		taskCh:    make(chan Task, taskQueueCapacity),
		stopCh:    make(chan struct{}),
	}
}

// Start spawns the dispatcher and the worker pool. Safe to call multiple
// times; subsequent calls are no-ops.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.logger.Info("Starting job manager", "worker_count", m.cfg.WorkerCount)

		for i := 0; i < m.cfg.WorkerCount; i++ {
			worker := NewWorker(fmt.Sprintf("worker-%d", i), m.taskCh, m)
			m.workers = append(m.workers, worker)
			worker.Start(ctx)
		}

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.runDispatcher(ctx)
		}()
	})
}

// Stop drains the dispatcher and waits for workers to finish their current
// tasks. Queued-but-unstarted tasks are abandoned; the process-local job
// state disappears with the process anyway.
func (m *Manager) Stop() {
	m.logger.Info("Stopping job manager")
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
	for _, worker := range m.workers {
		worker.Stop()
	}
	m.logger.Info("Job manager stopped")
}

// CreateJob schedules a run of the given tests. An absent or empty list
// means every discovered test. Unknown names produce a failed job with
// ErrorText rather than an HTTP-level error: the job record is the audit
// trail either way.
func (m *Manager) CreateJob(ctx context.Context, tests []string) (models.Job, error) {
	snapshot, err := m.discovery.List(ctx)
	if err != nil {
		return models.Job{}, fmt.Errorf("resolving tests: %w", err)
	}

	resolved, unknown := resolveTests(&snapshot, tests)

	now := time.Now().UTC()
	job := &models.Job{
		ID:           uuid.New().String(),
		Status:       models.JobStatusQueued,
		Tests:        resolved,
		CreatedAt:    now,
		UpdatedAt:    now,
		Results:      []models.TestResult{},
		TestStatuses: make(map[string]models.TestStatus, len(resolved)),
	}
	for _, name := range resolved {
		job.TestStatuses[name] = models.TestStatusQueued
	}

	switch {
	case len(unknown) > 0:
		job.Status = models.JobStatusFailed
		job.ErrorText = fmt.Sprintf("unknown tests: %v", unknown)
	case len(resolved) == 0:
		job.Status = models.JobStatusFailed
		job.ErrorText = "no tests to run"
		if snapshot.ErrorText != "" {
			job.ErrorText = snapshot.ErrorText
		}
	}

	m.store.Insert(job)
	clone := job.Clone()
	m.bus.PublishDelta(clone)

	if job.Status == models.JobStatusFailed {
		m.logger.Warn("Job rejected", "job_id", job.ID, "error", job.ErrorText)
		return clone, nil
	}

	m.logger.Info("Job created", "job_id", job.ID, "tests", len(resolved))

	select {
	case m.jobCh <- job.ID:
	case <-m.stopCh:
		return clone, fmt.Errorf("job manager is shutting down")
	}
	return clone, nil
}

// Requeue clones a job's test list into a fresh queued job.
func (m *Manager) Requeue(ctx context.Context, id string) (models.Job, error) {
	job, ok := m.store.Get(id)
	if !ok {
		return models.Job{}, ErrJobNotFound
	}
	return m.CreateJob(ctx, job.Tests)
}

// ListJobs returns all jobs, newest first.
func (m *Manager) ListJobs() []models.Job {
	return m.store.List()
}

// GetJob returns one job by id.
func (m *Manager) GetJob(id string) (models.Job, error) {
	job, ok := m.store.Get(id)
	if !ok {
		return models.Job{}, ErrJobNotFound
	}
	return job, nil
}

// Subscribe attaches a new event-bus subscriber seeded with a snapshot of
// all current jobs.
func (m *Manager) Subscribe() *events.Subscription {
	return m.bus.Subscribe(m.store.List())
}

// Health returns the pool health snapshot.
func (m *Manager) Health() PoolHealth {
	stats := make([]WorkerHealth, len(m.workers))
	active := 0
	for i, worker := range m.workers {
		stats[i] = worker.Health()
		if stats[i].Status == WorkerStatusWorking {
			active++
		}
	}
	return PoolHealth{
		ActiveWorkers: active,
		TotalWorkers:  len(m.workers),
		PendingJobs:   m.store.Count(models.JobStatusQueued),
		WorkerStats:   stats,
	}
}

// runDispatcher is the single goroutine that turns queued jobs into tasks.
func (m *Manager) runDispatcher(ctx context.Context) {
	m.logger.Info("Dispatcher started")
	for {
		select {
		case <-m.stopCh:
			m.logger.Info("Dispatcher shutting down")
			return
		case <-ctx.Done():
			m.logger.Info("Context cancelled, dispatcher shutting down")
			return
		case jobID := <-m.jobCh:
			m.dispatch(ctx, jobID)
		}
	}
}

// dispatch reloads user code once, re-resolves the job's tests against the
// fresh snapshot, and enqueues one task per test in discovery order.
func (m *Manager) dispatch(ctx context.Context, jobID string) {
	job, ok := m.store.Get(jobID)
	if !ok || job.Status.Terminal() {
		return
	}

	snapshot, err := m.discovery.Reload(ctx)
	if err != nil {
		m.failJob(jobID, fmt.Sprintf("reload failed: %v", err))
		return
	}

	tasks := make([]Task, 0, len(job.Tests))
	for _, name := range orderBySnapshot(&snapshot, job.Tests) {
		descriptor, found := snapshot.Descriptor(name)
		if !found {
			errText := fmt.Sprintf("test no longer exists: %s", name)
			if snapshot.ErrorText != "" {
				errText = fmt.Sprintf("%s (%s)", errText, snapshot.ErrorText)
			}
			m.failJob(jobID, errText)
			return
		}
		tasks = append(tasks, Task{JobID: jobID, Test: descriptor})
	}

	for _, task := range tasks {
		select {
		case m.taskCh <- task:
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// process runs one task on a worker: mark running, execute, persist, mark
// terminal. Each transition publishes a delta with the re-derived aggregate
// status.
func (m *Manager) process(ctx context.Context, task Task) {
	name := task.Test.QualifiedName

	// A job already failed by a sibling test keeps running its remaining
	// tasks: there is no per-test cancellation in this core.
	if _, ok := m.mutateAndPublish(task.JobID, func(job *models.Job) {
		job.TestStatuses[name] = models.TestStatusRunning
		job.Status = job.DeriveStatus()
	}); !ok {
		return
	}

	result := m.executor.Execute(ctx, task.Test)

	if err := m.history.Append(result); err != nil {
		m.logger.Error("Failed to persist test result",
			"test", name, "job_id", task.JobID, "error", err)
	}

	status := models.TestStatusPassed
	if !result.Passed {
		status = models.TestStatusFailed
	}
	m.mutateAndPublish(task.JobID, func(job *models.Job) {
		job.TestStatuses[name] = status
		job.Results = append(job.Results, result)
		job.Status = job.DeriveStatus()
	})

	m.logger.Info("Test completed",
		"test", name, "job_id", task.JobID, "passed", result.Passed)
}

func (m *Manager) failJob(jobID, errText string) {
	m.logger.Warn("Job failed", "job_id", jobID, "error", errText)
	m.mutateAndPublish(jobID, func(job *models.Job) {
		job.Status = models.JobStatusFailed
		job.ErrorText = errText
	})
}

func (m *Manager) mutateAndPublish(jobID string, fn func(*models.Job)) (models.Job, bool) {
	clone, ok := m.store.Mutate(jobID, fn)
	if !ok {
		return models.Job{}, false
	}
	m.bus.PublishDelta(clone)
	return clone, true
}

// resolveTests maps requested names onto the snapshot. Empty request means
// all discovered tests (already in discovery order).
func resolveTests(snapshot *models.DiscoverySnapshot, requested []string) (resolved, unknown []string) {
	if len(requested) == 0 {
		resolved = make([]string, 0, len(snapshot.Tests))
		for _, descriptor := range snapshot.Tests {
			resolved = append(resolved, descriptor.QualifiedName)
		}
		return resolved, nil
	}
	for _, name := range requested {
		if _, ok := snapshot.Descriptor(name); ok {
			resolved = append(resolved, name)
		} else {
			unknown = append(unknown, name)
		}
	}
	return resolved, unknown
}

// orderBySnapshot returns the job's tests in discovery order, with any name
// missing from the snapshot kept at the tail so dispatch reports it.
func orderBySnapshot(snapshot *models.DiscoverySnapshot, tests []string) []string {
	wanted := make(map[string]bool, len(tests))
	for _, name := range tests {
		wanted[name] = true
	}
	ordered := make([]string, 0, len(tests))
	for _, descriptor := range snapshot.Tests {
		if wanted[descriptor.QualifiedName] {
			ordered = append(ordered, descriptor.QualifiedName)
			delete(wanted, descriptor.QualifiedName)
		}
	}
	for _, name := range tests {
		if wanted[name] {
			ordered = append(ordered, name)
		}
	}
	return ordered
}
