// Package queue schedules test-run jobs on a bounded worker pool. A single
// dispatcher goroutine turns jobs into per-test tasks; workers execute the
// pipeline and report transitions back through the job store.
package queue

import (
	"context"
	"errors"

	"github.com/gooseworks/goose/pkg/models"
)

// ErrJobNotFound is returned when no job exists with the requested id.
var ErrJobNotFound = errors.New("queue: job not found")

// Task is one unit of worker work: run a single test for a job.
type Task struct {
	JobID string
	Test  models.TestDescriptor
}

// Executor runs one test end to end. Implementations never return an error:
// every failure mode is classified into the result itself.
type Executor interface {
	Execute(ctx context.Context, test models.TestDescriptor) models.TestResult
}

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth is one worker's health snapshot.
type WorkerHealth struct {
	ID             string       `json:"id"`
	Status         WorkerStatus `json:"status"`
	CurrentTest    string       `json:"current_test,omitempty"`
	TasksProcessed int          `json:"tasks_processed"`
}

// PoolHealth is the aggregate worker-pool health snapshot.
type PoolHealth struct {
	ActiveWorkers int            `json:"active_workers"`
	TotalWorkers  int            `json:"total_workers"`
	PendingJobs   int            `json:"pending_jobs"`
	WorkerStats   []WorkerHealth `json:"worker_stats"`
}
