package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gooseworks/goose/pkg/config"
	"github.com/gooseworks/goose/pkg/discovery"
	"github.com/gooseworks/goose/pkg/events"
	"github.com/gooseworks/goose/pkg/history"
	"github.com/gooseworks/goose/pkg/models"
	"github.com/gooseworks/goose/pkg/runner"
)

// fakeRunner backs discovery and the pipeline for manager tests. Every test
// passes unless failNext is set, which fails the next judged run.
type fakeRunner struct {
	runner.Client

	mu       sync.Mutex
	reloads  int
	tests    []models.TestDescriptor
	failNext bool
}

func (f *fakeRunner) Reload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	return nil
}

func (f *fakeRunner) ListTests(ctx context.Context) (models.DiscoverySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.DiscoverySnapshot{Tests: append([]models.TestDescriptor(nil), f.tests...)}, nil
}

func (f *fakeRunner) CaptureCases(ctx context.Context, module, name string) ([]models.CaseSpec, error) {
	return []models.CaseSpec{{
		Prompt:       fmt.Sprintf("prompt for %s", name),
		Expectations: []string{"behaves"},
	}}, nil
}

func (f *fakeRunner) QueryAgent(ctx context.Context, prompt string) (models.AgentResponse, error) {
	return models.AgentResponse{Messages: []models.Message{{Role: "ai", Content: "done"}}}, nil
}

func (f *fakeRunner) Judge(ctx context.Context, response models.AgentResponse, expectations []string) (models.ValidationVerdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return models.ValidationVerdict{Success: false, Unmet: []string{"behaves"}}, nil
	}
	return models.ValidationVerdict{Success: true}, nil
}

func (f *fakeRunner) reloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reloads
}

func descriptor(module, name string) models.TestDescriptor {
	return models.TestDescriptor{
		QualifiedName: models.QualifiedName(module, name),
		Module:        module,
		Name:          name,
	}
}

type managerFixture struct {
	manager *Manager
	runner  *fakeRunner
	history *history.Store
	bus     *events.Bus
}

func newManagerFixture(t *testing.T, tests ...models.TestDescriptor) *managerFixture {
	t.Helper()
	logger := slog.Default()

	fr := &fakeRunner{tests: tests}
	hist, err := history.NewStore(t.TempDir(), logger)
	require.NoError(t, err)
	bus := events.NewBus(logger)

	cfg := config.QueueConfig{WorkerCount: 2, JobBacklog: 8}
	manager := NewManager(cfg, discovery.NewService(fr, logger), NewPipeline(fr, logger), hist, bus, logger)
	manager.Start(context.Background())
	t.Cleanup(manager.Stop)

	return &managerFixture{manager: manager, runner: fr, history: hist, bus: bus}
}

func (fx *managerFixture) waitTerminal(t *testing.T, jobID string) models.Job {
	t.Helper()
	var job models.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = fx.manager.GetJob(jobID)
		if err != nil {
			return false
		}
		for _, status := range job.TestStatuses {
			if status != models.TestStatusPassed && status != models.TestStatusFailed {
				return false
			}
		}
		return job.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestCreateJobRunsAllTests(t *testing.T) {
	fx := newManagerFixture(t,
		descriptor("test_alpha", "test_one"),
		descriptor("test_beta", "test_two"),
	)

	job, err := fx.manager.CreateJob(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Len(t, job.Tests, 2)

	done := fx.waitTerminal(t, job.ID)
	assert.Equal(t, models.JobStatusSucceeded, done.Status)
	assert.Len(t, done.Results, 2)
	for _, status := range done.TestStatuses {
		assert.Equal(t, models.TestStatusPassed, status)
	}

	// One result row lands in history per test.
	assert.Len(t, fx.history.List("test_alpha::test_one"), 1)
	assert.Len(t, fx.history.List("test_beta::test_two"), 1)
}

func TestReloadHappensOncePerJob(t *testing.T) {
	fx := newManagerFixture(t, descriptor("test_alpha", "test_one"))

	job, err := fx.manager.CreateJob(context.Background(), nil)
	require.NoError(t, err)
	fx.waitTerminal(t, job.ID)

	// One reload for the cold discovery scan at create, one for dispatch.
	assert.Equal(t, 2, fx.runner.reloadCount())

	job2, err := fx.manager.CreateJob(context.Background(), nil)
	require.NoError(t, err)
	fx.waitTerminal(t, job2.ID)

	// The warm cache adds exactly one reload per subsequent job.
	assert.Equal(t, 3, fx.runner.reloadCount())
}

func TestCreateJobUnknownTestFailsJob(t *testing.T) {
	fx := newManagerFixture(t, descriptor("test_alpha", "test_one"))

	job, err := fx.manager.CreateJob(context.Background(), []string{"nope::test_missing"})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorText, "nope::test_missing")
	assert.Empty(t, job.Results)
}

func TestFailingTestFailsJobButStillRecordsResult(t *testing.T) {
	fx := newManagerFixture(t, descriptor("test_alpha", "test_one"))
	fx.runner.mu.Lock()
	fx.runner.failNext = true
	fx.runner.mu.Unlock()

	job, err := fx.manager.CreateJob(context.Background(), nil)
	require.NoError(t, err)

	done := fx.waitTerminal(t, job.ID)
	assert.Equal(t, models.JobStatusFailed, done.Status)
	require.Len(t, done.Results, 1)
	assert.Equal(t, models.ErrorTypeExpectation, done.Results[0].ErrorType)
	assert.Len(t, fx.history.List("test_alpha::test_one"), 1)
}

func TestRequeue(t *testing.T) {
	fx := newManagerFixture(t, descriptor("test_alpha", "test_one"))

	job, err := fx.manager.CreateJob(context.Background(), []string{"test_alpha::test_one"})
	require.NoError(t, err)
	fx.waitTerminal(t, job.ID)

	requeued, err := fx.manager.Requeue(context.Background(), job.ID)
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, requeued.ID)
	assert.Equal(t, job.Tests, requeued.Tests)
	fx.waitTerminal(t, requeued.ID)

	_, err = fx.manager.Requeue(context.Background(), "no-such-job")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestListJobsNewestFirst(t *testing.T) {
	fx := newManagerFixture(t, descriptor("test_alpha", "test_one"))

	first, err := fx.manager.CreateJob(context.Background(), nil)
	require.NoError(t, err)
	second, err := fx.manager.CreateJob(context.Background(), nil)
	require.NoError(t, err)

	jobs := fx.manager.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, second.ID, jobs[0].ID)
	assert.Equal(t, first.ID, jobs[1].ID)

	_, err = fx.manager.GetJob("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestSubscriberConvergesToJobState(t *testing.T) {
	fx := newManagerFixture(t,
		descriptor("test_alpha", "test_one"),
		descriptor("test_beta", "test_two"),
	)

	sub := fx.manager.Subscribe()
	defer sub.Close()

	job, err := fx.manager.CreateJob(context.Background(), nil)
	require.NoError(t, err)
	done := fx.waitTerminal(t, job.ID)

	// Drain events until the subscriber has seen the terminal state.
	var last models.Job
	sawSnapshot := false
	deadline := time.After(5 * time.Second)
	for {
		select {
		case event := <-sub.Events():
			switch event.Type {
			case events.EventTypeSnapshot:
				sawSnapshot = true
			case events.EventTypeJob:
				if event.Job.ID == job.ID {
					last = *event.Job
				}
			}
		case <-deadline:
			t.Fatal("subscriber never observed terminal job state")
		}
		if last.Status.Terminal() && len(last.Results) == len(done.Results) {
			break
		}
	}

	assert.True(t, sawSnapshot, "snapshot must precede deltas")
	assert.Equal(t, done.Status, last.Status)
	assert.Equal(t, done.TestStatuses, last.TestStatuses)
}

func TestStartIsIdempotent(t *testing.T) {
	fx := newManagerFixture(t, descriptor("test_mod", "test_a"))

	// The fixture already called Start; concurrent duplicates must not
	// spawn a second pool or dispatcher.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fx.manager.Start(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, fx.manager.Health().TotalWorkers)

	job, err := fx.manager.CreateJob(context.Background(), nil)
	require.NoError(t, err)
	done := fx.waitTerminal(t, job.ID)
	assert.Equal(t, models.JobStatusSucceeded, done.Status)
}
