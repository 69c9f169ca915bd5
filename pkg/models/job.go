package models

import "time"

// JobStatus is the lifecycle state of a run job.
type JobStatus string

// Job lifecycle states.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// TestStatus is the per-test state within a job.
type TestStatus string

// Per-test states within a job.
const (
	TestStatusQueued  TestStatus = "queued"
	TestStatusRunning TestStatus = "running"
	TestStatusPassed  TestStatus = "passed"
	TestStatusFailed  TestStatus = "failed"
)

// Job is one scheduled execution of one or more tests. Jobs are mutated only
// by the job manager and become immutable once terminal.
type Job struct {
	ID           string                `json:"id"`
	Status       JobStatus             `json:"status"`
	Tests        []string              `json:"tests"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	ErrorText    string                `json:"error_text,omitempty"`
	Results      []TestResult          `json:"results"`
	TestStatuses map[string]TestStatus `json:"test_statuses"`
}

// Clone returns a deep copy safe to hand to subscribers and API responses
// while the manager keeps mutating the original.
func (j *Job) Clone() Job {
	out := *j
	out.Tests = append([]string(nil), j.Tests...)
	out.Results = append([]TestResult(nil), j.Results...)
	out.TestStatuses = make(map[string]TestStatus, len(j.TestStatuses))
	for name, status := range j.TestStatuses {
		out.TestStatuses[name] = status
	}
	return out
}

// DeriveStatus recomputes the aggregate job status from per-test statuses:
// succeeded iff every test passed, failed when any test failed, running when
// at least one test has started, queued otherwise.
func (j *Job) DeriveStatus() JobStatus {
	if len(j.TestStatuses) == 0 {
		return j.Status
	}
	anyFailed := false
	anyStarted := false
	allPassed := true
	for _, status := range j.TestStatuses {
		switch status {
		case TestStatusFailed:
			anyFailed = true
			anyStarted = true
			allPassed = false
		case TestStatusPassed:
			anyStarted = true
		case TestStatusRunning:
			anyStarted = true
			allPassed = false
		default:
			allPassed = false
		}
	}
	switch {
	case anyFailed:
		return JobStatusFailed
	case allPassed:
		return JobStatusSucceeded
	case anyStarted:
		return JobStatusRunning
	default:
		return JobStatusQueued
	}
}
